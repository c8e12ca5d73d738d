package relay

import (
	"io"
	"sync"
)

// copyBufferSize matches the internal buffer size used by io.Copy.
const copyBufferSize = 32 * 1024

// bufferPool holds copy buffers shared by all tunnels.
var bufferPool = sync.Pool{
	New: func() any {
		buf := make([]byte, copyBufferSize)
		return &buf
	},
}

// copyBuffer copies from src to dst using a pooled buffer.
func copyBuffer(dst io.Writer, src io.Reader) (int64, error) {
	buf := bufferPool.Get().(*[]byte)
	defer bufferPool.Put(buf)
	return io.CopyBuffer(dst, src, *buf)
}
