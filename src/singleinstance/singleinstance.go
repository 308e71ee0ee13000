// Package singleinstance lets one GUI process own the screenshot file and
// serve captures for CLI invocations over TCP loopback.
//
// Wire protocol, one request per connection:
//
//	PING\n                  -> PONG\n
//	CAPTURE\n | COPY\n      -> SUCCESS\n<text>  or  ERROR <kind>\n<message>
package singleinstance

import (
	"context"
)

// Server owns the TCP endpoint and answers capture requests.
type Server interface {
	// Start listens on the first port of the configured range; it fails if
	// another resident already holds it.
	Start(ctx context.Context) error
	// Port returns the bound TCP port, or 0 if not started.
	Port() int
	// Next returns the next accepted request, or ctx error.
	Next(ctx context.Context) (Conn, error)
	Close() error
}

// Conn is one client request awaiting a response.
type Conn interface {
	Request() Request
	// RespondSuccess sends the recognized text. For copy requests text is the
	// status line shown by the client.
	RespondSuccess(text string) error
	// RespondError sends the failure, preserving its kind.
	RespondError(err error) error
	Close() error
}

// Request is a single capture request.
type Request struct {
	// Copy asks the resident to put the text on the clipboard.
	Copy bool
}

// Client delegates a capture to a resident GUI.
type Client interface {
	// TryCapture scans the port range and delegates to the first resident.
	// With no resident it returns delegated=false and a nil error.
	TryCapture(ctx context.Context, copy bool) (delegated bool, text string, err error)
}

func NewServer() Server { return newTCPServer() }

func NewClient() Client { return newTCPClient() }
