package singleinstance

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snappy-ocr/src/failure"
)

func usePort(t *testing.T, port int) {
	t.Helper()
	t.Setenv("SINGLEINSTANCE_PORT_START", strconv.Itoa(port))
	t.Setenv("SINGLEINSTANCE_PORT_END", strconv.Itoa(port))
}

func startServer(t *testing.T, ctx context.Context) Server {
	t.Helper()
	srv := NewServer()
	if err := srv.Start(ctx); err != nil {
		t.Skipf("loopback listener unavailable in this environment: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func TestServerClientRoundTrip(t *testing.T) {
	usePort(t, 49571)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv := startServer(t, ctx)

	port, ok := DetectResidentPort(ctx)
	require.True(t, ok)
	assert.Equal(t, srv.Port(), port)

	type reply struct {
		delegated bool
		text      string
		err       error
	}
	got := make(chan reply, 1)
	go func() {
		delegated, text, err := NewClient().TryCapture(ctx, true)
		got <- reply{delegated, text, err}
	}()

	conn, err := srv.Next(ctx)
	require.NoError(t, err)
	assert.True(t, conn.Request().Copy)
	require.NoError(t, conn.RespondSuccess("Copied 11 characters to clipboard\n"))
	require.NoError(t, conn.Close())

	r := <-got
	require.NoError(t, r.err)
	assert.True(t, r.delegated)
	assert.Equal(t, "Copied 11 characters to clipboard\n", r.text)
}

func TestErrorKeepsKind(t *testing.T) {
	usePort(t, 49572)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv := startServer(t, ctx)

	errc := make(chan error, 1)
	go func() {
		_, _, err := NewClient().TryCapture(ctx, false)
		errc <- err
	}()

	conn, err := srv.Next(ctx)
	require.NoError(t, err)
	assert.False(t, conn.Request().Copy)
	require.NoError(t, conn.RespondError(failure.New(failure.CaptureUnavailable, "list displays", failure.ErrNoDisplay)))
	require.NoError(t, conn.Close())

	err = <-errc
	assert.Equal(t, failure.CaptureUnavailable, failure.KindOf(err))
	assert.EqualError(t, err, "capture unavailable: list displays: no display found")
}

func TestSecondServerFails(t *testing.T) {
	usePort(t, 49573)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	startServer(t, ctx)

	assert.Error(t, NewServer().Start(ctx))
}

func TestNoResident(t *testing.T) {
	usePort(t, 49574)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	delegated, text, err := NewClient().TryCapture(ctx, false)
	assert.NoError(t, err)
	assert.False(t, delegated)
	assert.Empty(t, text)
}

func TestDecodeError(t *testing.T) {
	err := decodeError("ERROR 0\n", "boom")
	assert.Equal(t, failure.Unknown, failure.KindOf(err))
	assert.ErrorContains(t, err, "boom")

	err = decodeError("ERROR 5\n", "no eng.traineddata")
	assert.Equal(t, failure.RecognitionFailed, failure.KindOf(err))
	assert.EqualError(t, err, "recognition failed: no eng.traineddata")
	assert.False(t, errors.Is(err, failure.ErrNoDisplay))
}

func TestPortRangeClamps(t *testing.T) {
	t.Setenv("SINGLEINSTANCE_PORT_START", "80")
	t.Setenv("SINGLEINSTANCE_PORT_END", "70000")
	start, end := PortRange()
	assert.Equal(t, 1024, start)
	assert.Equal(t, 65535, end)
}

func TestPortRangeFrom(t *testing.T) {
	env := map[string]string{portStartEnv: "49600", portEndEnv: "49590"}
	start, end := portRangeFrom(func(k string) string { return env[k] })
	assert.Equal(t, 49590, start)
	assert.Equal(t, 49600, end)

	start, end = portRangeFrom(func(string) string { return "not-a-port" })
	assert.Equal(t, defaultPortStart, start)
	assert.Equal(t, defaultPortEnd, end)
}
