package process

import (
	"bytes"
	"strings"
	"sync"
)

// LineBuffer is an io.WriteCloser that splits a byte stream into lines.
// Writes may end mid-line; the fragment is kept and completed by later
// writes. Close emits a non-empty remainder as a final line.
type LineBuffer struct {
	mu   sync.Mutex
	emit func(line string)
	buf  []byte
}

// NewLineBuffer returns a LineBuffer calling emit once per complete line,
// without the line terminator.
func NewLineBuffer(emit func(line string)) *LineBuffer {
	return &LineBuffer{emit: emit}
}

func (b *LineBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf = append(b.buf, p...)
	for {
		i := bytes.IndexByte(b.buf, '\n')
		if i < 0 {
			break
		}
		b.emit(strings.TrimSuffix(string(b.buf[:i]), "\r"))
		b.buf = b.buf[i+1:]
	}
	// release the backing array once drained
	if len(b.buf) == 0 {
		b.buf = nil
	}
	return len(p), nil
}

// Close flushes the pending fragment.
func (b *LineBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.buf) > 0 {
		b.emit(strings.TrimSuffix(string(b.buf), "\r"))
		b.buf = nil
	}
	return nil
}
