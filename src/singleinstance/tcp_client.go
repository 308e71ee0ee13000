package singleinstance

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"snappy-ocr/src/failure"
)

type tcpClient struct{}

func newTCPClient() Client { return &tcpClient{} }

func (c *tcpClient) TryCapture(ctx context.Context, copy bool) (bool, string, error) {
	port, ok := DetectResidentPort(ctx)
	if !ok {
		return false, "", nil
	}
	addr := net.JoinHostPort(residentHost, strconv.Itoa(port))

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		// The resident went away between PING and request.
		return false, "", nil
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	req := captureRequest
	if copy {
		req = copyRequest
	}
	w := bufio.NewWriter(conn)
	if _, err := w.WriteString(req); err != nil {
		return true, "", fmt.Errorf("send request to resident on port %d: %w", port, err)
	}
	if err := w.Flush(); err != nil {
		return true, "", fmt.Errorf("send request to resident on port %d: %w", port, err)
	}

	br := bufio.NewReader(conn)
	status, err := br.ReadString('\n')
	if err != nil {
		if ctx.Err() != nil {
			return true, "", failure.New(failure.Cancelled, "wait for resident", ctx.Err())
		}
		return true, "", fmt.Errorf("read response from resident: %w", err)
	}
	body, _ := io.ReadAll(br)

	switch {
	case status == successStatus:
		return true, string(body), nil
	case strings.HasPrefix(status, errorStatus):
		return true, "", decodeError(status, string(body))
	default:
		return true, "", fmt.Errorf("unexpected response from resident: %q", strings.TrimSpace(status))
	}
}

// decodeError rebuilds a typed failure from "ERROR <kind>\n<message>".
func decodeError(status, msg string) error {
	fields := strings.Fields(status)
	kind := failure.Unknown
	if len(fields) == 2 {
		if n, err := strconv.Atoi(fields[1]); err == nil {
			kind = failure.Kind(n)
		}
	}
	err := errors.New(msg)
	if kind == failure.Unknown {
		return fmt.Errorf("resident: %w", err)
	}
	return failure.New(kind, "", err)
}
