package model

import "errors"

// Error kinds. Failures are wrapped around one of these so callers can
// classify them with errors.Is.
var (
	ErrBind             = errors.New("bind listener")
	ErrAccept           = errors.New("accept connection")
	ErrMalformedRequest = errors.New("malformed request")
	ErrRemoteConnect    = errors.New("remote connect")
	ErrRelayIO          = errors.New("relay i/o")
)

// ErrorKind returns a bounded label for err, suitable for logs and metrics.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrMalformedRequest):
		return "malformed_request"
	case errors.Is(err, ErrRemoteConnect):
		return "remote_connect"
	case errors.Is(err, ErrRelayIO):
		return "relay_io"
	case errors.Is(err, ErrAccept):
		return "accept"
	case errors.Is(err, ErrBind):
		return "bind"
	default:
		return "other"
	}
}
