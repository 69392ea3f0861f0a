// Package shell builds POSIX shell command lines. Every dynamic value is
// quoted here and nowhere else.
package shell

import "strings"

// Quote wraps s in single quotes, escaping embedded single quotes.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// Builder accumulates quoted words and raw shell syntax.
type Builder struct {
	parts []string
}

// Command starts a command line with name followed by quoted args.
func Command(name string, args ...string) *Builder {
	b := &Builder{}
	b.parts = append(b.parts, Quote(name))
	return b.Args(args...)
}

// Args appends quoted arguments.
func (b *Builder) Args(args ...string) *Builder {
	for _, a := range args {
		b.parts = append(b.parts, Quote(a))
	}
	return b
}

// Word appends a value that is safe to pass unquoted, such as a flag or a
// number produced by the caller.
func (b *Builder) Word(w string) *Builder {
	b.parts = append(b.parts, w)
	return b
}

// Raw appends shell syntax verbatim. Only constant operators belong here.
func (b *Builder) Raw(syntax string) *Builder {
	b.parts = append(b.parts, syntax)
	return b
}

// RedirectIn appends `<path`.
func (b *Builder) RedirectIn(path string) *Builder {
	return b.Raw("<" + Quote(path))
}

// RedirectOut appends `>path`.
func (b *Builder) RedirectOut(path string) *Builder {
	return b.Raw(">" + Quote(path))
}

// Then appends `op` followed by another command.
func (b *Builder) Then(op string, next *Builder) *Builder {
	b.parts = append(b.parts, op)
	b.parts = append(b.parts, next.parts...)
	return b
}

func (b *Builder) String() string {
	return strings.Join(b.parts, " ")
}
