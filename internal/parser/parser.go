// Package parser extracts the routing view of an HTTP request from raw bytes.
package parser

import (
	"bytes"
	"fmt"
	"net"
	"strconv"
	"strings"

	"rserver/internal/model"
)

const hostHeader = "Host"

// Parse builds a Request from the raw bytes of one inbound message. Only the
// request line and the header block are inspected; any body bytes stay in
// Request.Raw untouched and are also exposed as Request.Body.
func Parse(raw []byte) (*model.Request, error) {
	lines := splitLines(raw)
	if len(lines) == 0 || lines[0] == "" {
		return nil, fmt.Errorf("%w: empty request line", model.ErrMalformedRequest)
	}

	parts := strings.Split(lines[0], " ")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: request line %q does not have three fields", model.ErrMalformedRequest, lines[0])
	}
	method, target, version := parts[0], parts[1], parts[2]

	headers := make(map[string]string)
	for _, line := range lines[1:] {
		if line == "" {
			break
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: header line %q has no colon", model.ErrMalformedRequest, line)
		}
		headers[key] = strings.TrimSpace(value)
	}

	hostValue, ok := headers[hostHeader]
	if !ok {
		return nil, fmt.Errorf("%w: missing Host header", model.ErrMalformedRequest)
	}

	kind := model.KindOf(method)
	host, port, err := splitHost(hostValue, kind)
	if err != nil {
		return nil, err
	}

	return &model.Request{
		Method:  method,
		Kind:    kind,
		Target:  target,
		Version: version,
		Headers: headers,
		Host:    host,
		Port:    port,
		Raw:     raw,
		Body:    body(raw),
	}, nil
}

// body returns the bytes after the header block terminator, CRLF or bare LF.
// The earlier of the two terminators wins.
func body(raw []byte) []byte {
	end := -1
	if i := bytes.Index(raw, []byte("\r\n\r\n")); i >= 0 {
		end = i + 4
	}
	if i := bytes.Index(raw, []byte("\n\n")); i >= 0 && (end < 0 || i+2 < end) {
		end = i + 2
	}
	if end < 0 {
		return nil
	}
	return raw[end:]
}

// splitLines splits the head of the message on LF, dropping a trailing CR
// from each line. Splitting stops at the first blank line since nothing after
// it is parsed.
func splitLines(raw []byte) []string {
	head := raw
	if i := bytes.Index(raw, []byte("\r\n\r\n")); i >= 0 {
		head = raw[:i+2]
	}

	var lines []string
	for len(head) > 0 {
		line, rest, _ := bytes.Cut(head, []byte("\n"))
		lines = append(lines, string(bytes.TrimSuffix(line, []byte("\r"))))
		head = rest
	}
	return lines
}

// splitHost derives the routing host and port from a Host header value. Both
// parts come from the original value: "h:p" splits at the first colon, a
// bracketed IPv6 literal goes through net.SplitHostPort, and a bare host gets
// 443 for CONNECT and 80 otherwise.
func splitHost(value string, kind model.MethodKind) (string, int, error) {
	if value == "" {
		return "", 0, fmt.Errorf("%w: empty Host header", model.ErrMalformedRequest)
	}

	defaultPort := 80
	if kind == model.MethodConnect {
		defaultPort = 443
	}

	var host, portStr string
	switch {
	case strings.HasPrefix(value, "["):
		if !strings.Contains(value, "]:") {
			return strings.Trim(value, "[]"), defaultPort, nil
		}
		h, p, err := net.SplitHostPort(value)
		if err != nil {
			return "", 0, fmt.Errorf("%w: Host %q: %v", model.ErrMalformedRequest, value, err)
		}
		host, portStr = h, p
	default:
		h, p, ok := strings.Cut(value, ":")
		if !ok {
			return value, defaultPort, nil
		}
		host, portStr = h, p
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("%w: Host %q has invalid port", model.ErrMalformedRequest, value)
	}
	if host == "" {
		return "", 0, fmt.Errorf("%w: Host %q has empty host", model.ErrMalformedRequest, value)
	}
	return host, port, nil
}
