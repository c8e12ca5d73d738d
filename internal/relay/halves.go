package relay

import (
	"errors"
	"io"
	"net"
)

// closeWriter is implemented by streams that can shut down only their write
// direction, such as *net.TCPConn and *net.UnixConn.
type closeWriter interface {
	CloseWrite() error
}

// readHalf is the receive side of a split stream. Each readHalf is used by
// exactly one copy operation.
type readHalf struct {
	r io.Reader
}

func (h readHalf) Read(p []byte) (int, error) {
	return h.r.Read(p)
}

// writeHalf is the send side of a split stream. Each writeHalf is used by
// exactly one copy operation, which is also the only caller of closeWrite.
type writeHalf struct {
	w io.Writer
}

func (h writeHalf) Write(p []byte) (int, error) {
	return h.w.Write(p)
}

// closeWrite signals end-of-stream to the peer. Streams without half-close
// support are left open; they are closed when the connection is dropped.
func (h writeHalf) closeWrite() error {
	cw, ok := h.w.(closeWriter)
	if !ok {
		return nil
	}
	if err := cw.CloseWrite(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// split divides rw into independently owned read and write halves. The
// halves hide any ReaderFrom/WriterTo on rw so copies go through the pool.
func split(rw io.ReadWriter) (readHalf, writeHalf) {
	return readHalf{r: rw}, writeHalf{w: rw}
}

// pipe copies src into dst until src reports end-of-stream or an error, then
// half-closes dst. The half-close runs on error too, so the peer is not left
// waiting on a direction that will carry nothing more.
func pipe(dst writeHalf, src readHalf) (int64, error) {
	n, err := copyBuffer(dst, src)
	if cerr := dst.closeWrite(); err == nil {
		err = cerr
	}
	return n, err
}
