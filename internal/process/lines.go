package process

import (
	"bytes"
	"strings"
	"sync"
)

// lineWriter splits a byte stream into lines on \n, \r\n and \r. Line
// terminators are stripped and invalid UTF-8 is replaced with U+FFFD.
// A \r\n pair split across two writes still counts as one terminator.
type lineWriter struct {
	mu      sync.Mutex
	buf     []byte
	afterCR bool
	emit    func(string)
}

func newLineWriter(emit func(string)) *lineWriter {
	return &lineWriter{emit: emit}
}

func (lw *lineWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	data := p
	if lw.afterCR && len(data) > 0 {
		lw.afterCR = false
		if data[0] == '\n' {
			data = data[1:]
		}
	}

	for len(data) > 0 {
		i := bytes.IndexAny(data, "\r\n")
		if i < 0 {
			lw.buf = append(lw.buf, data...)
			break
		}
		lw.buf = append(lw.buf, data[:i]...)
		lw.emitLocked()

		if data[i] == '\r' {
			if i+1 == len(data) {
				lw.afterCR = true
			} else if data[i+1] == '\n' {
				i++
			}
		}
		data = data[i+1:]
	}
	return len(p), nil
}

// Flush emits any trailing text that was not followed by a terminator.
func (lw *lineWriter) Flush() {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	if len(lw.buf) > 0 {
		lw.emitLocked()
	}
}

func (lw *lineWriter) emitLocked() {
	line := strings.ToValidUTF8(string(lw.buf), "\uFFFD")
	lw.buf = lw.buf[:0]
	lw.emit(line)
}
