package pool

import (
	"bytes"
	"sync"
)

// BufferPool holds encode buffers shared by the converter workers and the
// HTTP handlers.
var BufferPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

// GetBuffer returns an empty buffer from the pool
func GetBuffer() *bytes.Buffer {
	return BufferPool.Get().(*bytes.Buffer)
}

// PutBuffer returns a buffer to the pool after resetting it. Buffers that grew
// past maxRetained are dropped so one huge frame does not pin its memory.
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() > maxRetained {
		return
	}
	buf.Reset()
	BufferPool.Put(buf)
}

const maxRetained = 16 << 20

// Bytes copies the buffer contents out so the buffer can go back to the pool.
func Bytes(buf *bytes.Buffer) []byte {
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out
}
