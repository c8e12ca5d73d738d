// Package stream reads one logical message from a byte stream.
package stream

import (
	"errors"
	"io"
)

// DefaultChunkSize is the read size used when none is configured.
const DefaultChunkSize = 1024

// MessageReader reads one complete inbound message from r.
//
// Implementations return whatever bytes were accumulated together with any
// read error other than a clean end-of-stream; the caller decides what to do
// with a partial message.
type MessageReader interface {
	ReadMessage(r io.Reader) ([]byte, error)
}

// ChunkReader detects the end of a message with a fixed-size read heuristic:
// a read that fills the whole chunk means more data may follow, a shorter read
// means the burst is over, and a zero-byte read means the peer closed its
// write side.
//
// This does not consult Content-Length or chunked transfer markers. A message
// whose tail lands exactly on a chunk boundary, or that arrives in several
// full-chunk reads separated by a pause, blocks until more data or EOF arrives.
type ChunkReader struct {
	size int
}

// NewChunkReader creates a ChunkReader reading size bytes at a time.
// A non-positive size selects DefaultChunkSize.
func NewChunkReader(size int) *ChunkReader {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return &ChunkReader{size: size}
}

// ChunkSize returns the read size.
func (c *ChunkReader) ChunkSize() int {
	return c.size
}

// ReadMessage implements MessageReader.
func (c *ChunkReader) ReadMessage(r io.Reader) ([]byte, error) {
	var msg []byte
	chunk := make([]byte, c.size)
	for {
		n, err := r.Read(chunk)
		msg = append(msg, chunk[:n]...)

		switch {
		case err != nil && errors.Is(err, io.EOF):
			return msg, nil
		case err != nil:
			return msg, err
		case n == 0:
			// A zero-byte read without an error carries no boundary
			// information; treat it like the peer going quiet.
			return msg, nil
		case n < c.size:
			return msg, nil
		}
	}
}
