package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFrame(vals ...float64) *Frame {
	return &Frame{NBands: 1, NT: 1, NY: 1, NX: len(vals), NoData: -1, Data: vals}
}

func TestRunWorkerIdentity(t *testing.T) {
	// cat speaks the protocol for free: it echoes the frame bit-exactly
	resp, err := RunWorker(context.Background(), []string{"cat"}, nil, testFrame(1, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, resp.Data)
	assert.Equal(t, -1.0, resp.NoData)
}

func TestRunWorkerExitsEarly(t *testing.T) {
	_, err := RunWorker(context.Background(), []string{"false"}, nil, testFrame(1))
	var procErr *ProcessError
	require.True(t, errors.As(err, &procErr), "got %v", err)
}

func TestRunWorkerStderrAttached(t *testing.T) {
	_, err := RunWorker(context.Background(), []string{"sh", "-c", "echo boom >&2; exit 3"}, nil, testFrame(1))
	var procErr *ProcessError
	require.True(t, errors.As(err, &procErr), "got %v", err)
	assert.Contains(t, procErr.Stderr, "boom")
}

func TestRunWorkerGarbageOutput(t *testing.T) {
	_, err := RunWorker(context.Background(), []string{"sh", "-c", "echo not-a-frame-but-long-enough-to-fill-the-prefix"}, nil, testFrame(1))
	var procErr *ProcessError
	require.True(t, errors.As(err, &procErr), "got %v", err)
}

func TestRunWorkerTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := RunWorker(ctx, []string{"sleep", "30"}, nil, testFrame(1))
	var procErr *ProcessError
	require.True(t, errors.As(err, &procErr), "got %v", err)
	assert.Less(t, time.Since(start), 5*time.Second, "timeout must kill the worker")
}

func TestPoolExchange(t *testing.T) {
	pool, err := NewPool(2, []string{"cat"}, nil)
	require.NoError(t, err)
	defer pool.Close()

	for i := 0; i < 8; i++ {
		resp, err := pool.Exchange(context.Background(), testFrame(float64(i), float64(i+1)))
		require.NoError(t, err)
		assert.Equal(t, []float64{float64(i), float64(i + 1)}, resp.Data)
	}
}

func TestPoolRestartsCrashedWorker(t *testing.T) {
	// every exchange crashes its worker; the pool must keep serving
	pool, err := NewPool(1, []string{"sh", "-c", "head -c 16 > /dev/null"}, nil)
	require.NoError(t, err)
	defer pool.Close()

	for i := 0; i < 3; i++ {
		_, err := pool.Exchange(context.Background(), testFrame(1, 2, 3))
		require.Error(t, err)
	}

	// a later exchange still reaches a fresh worker rather than a dead pipe
	_, err = pool.Exchange(context.Background(), testFrame(1))
	require.Error(t, err)
}
