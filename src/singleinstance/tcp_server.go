package singleinstance

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"snappy-ocr/src/failure"
)

const (
	residentHost   = "127.0.0.1"
	pingRequest    = "PING\n"
	pongResponse   = "PONG\n"
	captureRequest = "CAPTURE\n"
	copyRequest    = "COPY\n"
	successStatus  = "SUCCESS\n"
	errorStatus    = "ERROR"
)

// tcpServer implements Server over TCP loopback.
type tcpServer struct {
	lis       net.Listener
	incoming  chan *tcpConn
	port      int
	closeOnce sync.Once
	done      chan struct{}
}

func newTCPServer() *tcpServer {
	return &tcpServer{incoming: make(chan *tcpConn, 8), done: make(chan struct{})}
}

// Start binds only the first port of the configured range. If it is taken,
// another resident exists and Start fails.
func (s *tcpServer) Start(ctx context.Context) error {
	if s.lis != nil {
		return nil
	}
	start, _ := PortRange()
	addr := fmt.Sprintf("%s:%d", residentHost, start)
	var lc net.ListenConfig
	lis, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("another instance holds %s: %w", addr, err)
	}
	s.lis = lis
	s.port = start
	zap.S().Infow("singleinstance: listening", "addr", addr)
	go s.acceptLoop(ctx)
	return nil
}

func (s *tcpServer) Port() int { return s.port }

func (s *tcpServer) acceptLoop(ctx context.Context) {
	for {
		c, err := s.lis.Accept()
		if err != nil {
			return
		}
		go s.handshake(ctx, c)
	}
}

func (s *tcpServer) handshake(ctx context.Context, c net.Conn) {
	remote := c.RemoteAddr().String()
	_ = c.SetDeadline(time.Now().Add(3 * time.Second))
	br := bufio.NewReader(c)
	line, _ := br.ReadString('\n')
	bw := bufio.NewWriter(c)

	switch line {
	case pingRequest:
		_, _ = bw.WriteString(pongResponse)
		_ = bw.Flush()
		_ = c.Close()
		return
	case captureRequest, copyRequest:
	default:
		zap.S().Warnw("singleinstance: bad request", "remote", remote, "line", line)
		_ = c.Close()
		return
	}

	// The capture may take up to the OCR deadline; the client bounds the wait.
	_ = c.SetDeadline(time.Time{})
	req := Request{Copy: line == copyRequest}
	zap.S().Infow("singleinstance: request", "remote", remote, "copy", req.Copy)
	select {
	case s.incoming <- &tcpConn{c: c, r: req, w: bw}:
	case <-s.done:
		_ = c.Close()
	case <-ctx.Done():
		_ = c.Close()
	}
}

func (s *tcpServer) Next(ctx context.Context) (Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, net.ErrClosed
	case tc := <-s.incoming:
		return tc, nil
	}
}

func (s *tcpServer) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.lis != nil {
			err = s.lis.Close()
		}
	})
	return err
}

type tcpConn struct {
	c net.Conn
	r Request
	w *bufio.Writer
}

func (tc *tcpConn) Request() Request { return tc.r }

func (tc *tcpConn) RespondSuccess(text string) error {
	if _, err := tc.w.WriteString(successStatus + text); err != nil {
		return err
	}
	return tc.w.Flush()
}

// RespondError sends the kind on the status line and the message without its
// kind prefix; the client puts the prefix back when it rebuilds the error.
func (tc *tcpConn) RespondError(err error) error {
	kind := failure.KindOf(err)
	msg := err.Error()
	if kind != failure.Unknown {
		msg = strings.TrimPrefix(msg, kind.String()+": ")
	}
	if _, werr := fmt.Fprintf(tc.w, "%s %d\n%s", errorStatus, int(kind), msg); werr != nil {
		return werr
	}
	return tc.w.Flush()
}

func (tc *tcpConn) Close() error { return tc.c.Close() }
