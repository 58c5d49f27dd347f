package logging

import (
	"bytes"
	"io"
	"sync"
)

// PrefixWriter writes every complete line to the underlying writer with a
// fixed prefix. Partial lines are held until their newline arrives.
type PrefixWriter struct {
	prefix []byte
	writer io.Writer

	mu     sync.Mutex
	buffer bytes.Buffer
}

// NewPrefixWriter creates a new PrefixWriter.
func NewPrefixWriter(prefix string, w io.Writer) *PrefixWriter {
	return &PrefixWriter{
		prefix: []byte(prefix),
		writer: w,
	}
}

func (pw *PrefixWriter) Write(p []byte) (int, error) {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	pw.buffer.Write(p)
	for {
		idx := bytes.IndexByte(pw.buffer.Bytes(), '\n')
		if idx < 0 {
			break
		}
		line := pw.buffer.Next(idx + 1)
		if _, err := pw.writer.Write(append(append([]byte{}, pw.prefix...), line...)); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}
