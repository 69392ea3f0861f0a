package job

import (
	"bytes"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/luccadibe/remotejob/internal/shell"
)

const namePrefix = "remotejob-"

// Spec is the local description of what to run remotely.
type Spec struct {
	Script string
	Args   []string
}

// Validate checks that a script is set.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.Script) == "" {
		return errors.New("script path must not be empty")
	}
	return nil
}

// Artifact names the remote files belonging to one job. All of them live in
// the same directory and share the generated ID.
type Artifact struct {
	ID         string
	ScriptPath string
	LockPath   string
	LogPath    string
}

// NewArtifact generates a fresh artifact under remoteDir. A non-empty logPath
// replaces the generated log path.
func NewArtifact(remoteDir, logPath string) Artifact {
	return ArtifactFor(namePrefix+uuid.NewString(), remoteDir, logPath)
}

// ArtifactFor derives the artifact paths for an existing id.
func ArtifactFor(id, remoteDir, logPath string) Artifact {
	a := Artifact{
		ID:         id,
		ScriptPath: path.Join(remoteDir, id+".sh"),
		LockPath:   path.Join(remoteDir, id+".lock"),
		LogPath:    path.Join(remoteDir, id+".log"),
	}
	if logPath != "" {
		a.LogPath = logPath
	}
	return a
}

// Paths lists every remote path of the artifact.
func (a Artifact) Paths() []string {
	return []string{a.ScriptPath, a.LockPath, a.LogPath}
}

// NormalizeQuoting wraps arg in double quotes unless it already starts and
// ends with one. Characters the shell would interpret inside double quotes
// are escaped when wrapping. Already quoted arguments are passed through
// untouched, so applying it twice is the same as applying it once.
func NormalizeQuoting(arg string) string {
	if len(arg) >= 2 && arg[0] == '"' && arg[len(arg)-1] == '"' {
		return arg
	}
	var b strings.Builder
	b.Grow(len(arg) + 2)
	b.WriteByte('"')
	for i := 0; i < len(arg); i++ {
		switch c := arg[i]; c {
		case '\\', '"', '$', '`':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// Compose renders the wrapper script. It creates the lock file, runs the
// target and removes the lock only when the target exited zero.
func Compose(spec Spec, art Artifact) ([]byte, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if art.LockPath == "" {
		return nil, errors.New("artifact has no lock path")
	}

	invocation := shell.Quote(spec.Script)
	for _, a := range spec.Args {
		invocation += " " + NormalizeQuoting(a)
	}

	var buf bytes.Buffer
	fmt.Fprintln(&buf, "#!/bin/sh")
	fmt.Fprintln(&buf, shell.Command("touch", art.LockPath))
	fmt.Fprintln(&buf, invocation)
	fmt.Fprintf(&buf, "if [ $? -eq 0 ]; then %s; fi\n", shell.Command("rm").Word("-f").Args(art.LockPath))
	return buf.Bytes(), nil
}
