package execution

import (
	"bytes"
	"io"
	"reflect"
	"sync"
)

type captureBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func newCaptureBuffer() *captureBuffer {
	return &captureBuffer{}
}

func (c *captureBuffer) Write(p []byte) (int, error) {
	c.mu.Lock()
	n, err := c.buf.Write(p)
	c.mu.Unlock()
	return n, err
}

func (c *captureBuffer) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

// multiWriterFiltered drops nil writers and writers already seen by pointer,
// so a caller passing the same writer for stdout and stderr does not get
// every byte twice.
func multiWriterFiltered(writers ...io.Writer) io.Writer {
	filtered := make([]io.Writer, 0, len(writers))
	seenPtrs := map[uintptr]struct{}{}
	for _, w := range writers {
		if w == nil {
			continue
		}
		rv := reflect.ValueOf(w)
		if rv.Kind() == reflect.Pointer || rv.Kind() == reflect.UnsafePointer {
			ptr := rv.Pointer()
			if _, ok := seenPtrs[ptr]; ok {
				continue
			}
			seenPtrs[ptr] = struct{}{}
		}
		filtered = append(filtered, w)
	}
	if len(filtered) == 0 {
		return io.Discard
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return io.MultiWriter(filtered...)
}
