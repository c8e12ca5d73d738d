// Package relay forwards bytes between a client and a remote peer once the
// route is known.
package relay

import (
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"rserver/internal/model"
	"rserver/internal/stream"
)

// Result reports the bytes a relay moved in each direction.
type Result struct {
	// Upstream counts bytes written to the remote peer.
	Upstream int64
	// Downstream counts bytes written to the client, excluding the CONNECT acknowledgement.
	Downstream int64
}

// Direct forwards req.Raw verbatim to remote, reads one message back with
// reader, and writes it verbatim to client. It makes at most one round trip
// and does not look at the response.
func Direct(client io.Writer, remote io.ReadWriter, req *model.Request, reader stream.MessageReader) (Result, error) {
	var res Result

	n, err := remote.Write(req.Raw)
	res.Upstream = int64(n)
	if err != nil {
		return res, fmt.Errorf("%w: write request to remote: %w", model.ErrRelayIO, err)
	}

	resp, readErr := reader.ReadMessage(remote)
	if len(resp) > 0 {
		n, err := client.Write(resp)
		res.Downstream = int64(n)
		if err != nil {
			return res, fmt.Errorf("%w: write response to client: %w", model.ErrRelayIO, err)
		}
	}
	if readErr != nil {
		return res, fmt.Errorf("%w: read response from remote: %w", model.ErrRelayIO, readErr)
	}
	return res, nil
}

// ConnectEstablished returns the acknowledgement sent for a CONNECT request.
func ConnectEstablished(version string) string {
	return version + " 200 Connection Established\r\n\r\n"
}

// Tunnel acknowledges a CONNECT request, forwards pending (client bytes read
// together with the CONNECT head) to remote, and then copies bytes in both
// directions until each source reports end-of-stream. When one direction
// finishes it half-closes its destination so the peer sees EOF while the
// other direction keeps flowing.
//
// Tunnel returns after both directions complete. The first copy error is
// returned; the sibling copy is not cancelled. There is no idle timeout.
func Tunnel(client, remote io.ReadWriter, version string, pending []byte) (Result, error) {
	if _, err := io.WriteString(client, ConnectEstablished(version)); err != nil {
		return Result{}, fmt.Errorf("%w: write connect acknowledgement: %w", model.ErrRelayIO, err)
	}
	var res Result
	if len(pending) > 0 {
		n, err := remote.Write(pending)
		res.Upstream = int64(n)
		if err != nil {
			return res, fmt.Errorf("%w: forward pending tunnel bytes: %w", model.ErrRelayIO, err)
		}
	}
	return copyBoth(client, remote, res)
}

// TunnelThrough chains a CONNECT request to an upstream proxy: raw is
// forwarded unmodified and the upstream's own reply reaches the client
// through the tunnel, so no acknowledgement is synthesized here.
func TunnelThrough(client, remote io.ReadWriter, raw []byte) (Result, error) {
	n, err := remote.Write(raw)
	if err != nil {
		return Result{Upstream: int64(n)}, fmt.Errorf("%w: forward connect request: %w", model.ErrRelayIO, err)
	}
	return copyBoth(client, remote, Result{Upstream: int64(n)})
}

// copyBoth runs the two copy directions concurrently and waits for both.
func copyBoth(client, remote io.ReadWriter, res Result) (Result, error) {
	var up, down int64

	clientR, clientW := split(client)
	remoteR, remoteW := split(remote)

	var g errgroup.Group
	g.Go(func() error {
		var err error
		up, err = pipe(remoteW, clientR)
		if err != nil {
			return fmt.Errorf("%w: client to remote: %w", model.ErrRelayIO, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		down, err = pipe(clientW, remoteR)
		if err != nil {
			return fmt.Errorf("%w: remote to client: %w", model.ErrRelayIO, err)
		}
		return nil
	})

	err := g.Wait()
	res.Upstream += up
	res.Downstream += down
	return res, err
}
