package worker

import (
	"bytes"
	"sync"
)

// buffer collects a stream written by os/exec while the supervision loop
// reads from it.
type buffer struct {
	mx  sync.Mutex
	buf bytes.Buffer
}

func (b *buffer) Write(p []byte) (int, error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.buf.Write(p)
}

// Since returns a copy of the bytes written after offset off.
func (b *buffer) Since(off int) []byte {
	b.mx.Lock()
	defer b.mx.Unlock()
	data := b.buf.Bytes()
	if off >= len(data) {
		return nil
	}
	return bytes.Clone(data[off:])
}

func (b *buffer) String() string {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.buf.String()
}
