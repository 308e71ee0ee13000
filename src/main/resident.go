package main

import (
	"context"
	"errors"
	"fmt"
	"net"

	"go.uber.org/zap"

	"snappy-ocr/src/clipboard"
	"snappy-ocr/src/failure"
	"snappy-ocr/src/pipeline"
	"snappy-ocr/src/singleinstance"
)

// recapturer is the session operation delegated captures run through.
type recapturer interface {
	Recapture(ctx context.Context, done func(pipeline.Result, error)) error
}

// serveResident answers CLI capture requests with the window's session so
// only this process writes the screenshot file. It returns when ctx ends or
// the server closes.
func serveResident(ctx context.Context, srv singleinstance.Server, sess recapturer, cb clipboard.Writer) {
	for {
		conn, err := srv.Next(ctx)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) && ctx.Err() == nil {
				zap.S().Warnw("resident stopped", "error", err)
			}
			return
		}
		handleResident(ctx, conn, sess, cb)
	}
}

func handleResident(ctx context.Context, conn singleinstance.Conn, sess recapturer, cb clipboard.Writer) {
	req := conn.Request()
	respond := func(res pipeline.Result, err error) {
		defer conn.Close()
		if err == nil && req.Copy {
			if werr := cb.Write(res.Text); werr != nil {
				err = werr
				if failure.KindOf(err) == failure.Unknown {
					err = failure.New(failure.ClipboardUnavailable, "write", err)
				}
			}
		}
		if err != nil {
			_ = conn.RespondError(err)
			return
		}
		out := res.Text + "\n"
		if req.Copy {
			out = fmt.Sprintf("Copied %d characters to clipboard\n", len(res.Text))
		}
		_ = conn.RespondSuccess(out)
	}
	if err := sess.Recapture(ctx, respond); err != nil {
		respond(pipeline.Result{}, err)
	}
}
