package cube

import (
	"context"
	"fmt"
	"time"

	"github.com/ctessum/sparse"

	"github.com/nci/geocube/bridge"
	"github.com/nci/geocube/cubeview"
)

// ApplyChunk hands whole chunks to an external worker process and passes
// the transformed chunk through. The worker runs out of process so a crash
// in user code fails one chunk, not the host, and the worker may be written
// in any language that speaks the frame protocol.
type ApplyChunk struct {
	input    Node
	command  []string
	env      []string
	timeout  time.Duration
	pool     *bridge.Pool
	outBands []string
}

type ApplyChunkOption func(*ApplyChunk)

// WithWorkerPool reuses a pool of long-lived workers instead of spawning
// one process per chunk.
func WithWorkerPool(p *bridge.Pool) ApplyChunkOption {
	return func(n *ApplyChunk) { n.pool = p }
}

// WithTimeout bounds one worker round trip.
func WithTimeout(d time.Duration) ApplyChunkOption {
	return func(n *ApplyChunk) { n.timeout = d }
}

// WithOutputBands names the bands the worker produces when it changes the
// band count.
func WithOutputBands(names []string) ApplyChunkOption {
	return func(n *ApplyChunk) { n.outBands = names }
}

// WithWorkerEnv sets the worker's environment.
func WithWorkerEnv(env []string) ApplyChunkOption {
	return func(n *ApplyChunk) { n.env = env }
}

func NewApplyChunk(input Node, command []string, opts ...ApplyChunkOption) (*ApplyChunk, error) {
	if len(command) == 0 {
		return nil, cubeview.ConfigErrorf("apply_chunk requires a worker command")
	}
	n := &ApplyChunk{input: input, command: command, timeout: 5 * time.Minute}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

func (n *ApplyChunk) Kind() string               { return "apply_chunk" }
func (n *ApplyChunk) View() *cubeview.View       { return n.input.View() }
func (n *ApplyChunk) ChunkGrid() (int, int, int) { return n.input.ChunkGrid() }
func (n *ApplyChunk) Timestamps() []time.Time    { return n.input.Timestamps() }

func (n *ApplyChunk) Bands() []string {
	if len(n.outBands) > 0 {
		return n.outBands
	}
	return n.input.Bands()
}

func (n *ApplyChunk) Read(ctx context.Context, coord cubeview.Coord) (*ChunkBuffer, error) {
	in, err := n.input.Read(ctx, coord)
	if err != nil {
		return nil, err
	}
	nb, nt, ny, nx := in.Shape()
	req := &bridge.Frame{
		NBands: nb, NT: nt, NY: ny, NX: nx,
		NoData: in.NoData,
		Data:   in.Data.Elements,
	}

	wctx := ctx
	if n.timeout > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	var resp *bridge.Frame
	if n.pool != nil {
		resp, err = n.pool.Exchange(wctx, req)
	} else {
		resp, err = bridge.RunWorker(wctx, n.command, n.env, req)
	}
	if err != nil {
		return nil, fmt.Errorf("apply_chunk %v: %w", coord, err)
	}

	// band count changes are the worker's business; the tile geometry is not
	if resp.NT != nt || resp.NY != ny || resp.NX != nx {
		return nil, fmt.Errorf("apply_chunk %v: %w", coord, &bridge.ProcessError{
			Command: n.command[0],
			Err: fmt.Errorf("worker changed chunk shape from (%d,%d,%d) to (%d,%d,%d)",
				nt, ny, nx, resp.NT, resp.NY, resp.NX),
		})
	}

	return &ChunkBuffer{
		Bands:  n.respBands(resp.NBands),
		NoData: resp.NoData,
		Data: &sparse.DenseArray{
			Shape:    []int{resp.NBands, nt, ny, nx},
			Elements: resp.Data,
		},
	}, nil
}

func (n *ApplyChunk) respBands(nb int) []string {
	if len(n.outBands) == nb {
		return n.outBands
	}
	if in := n.input.Bands(); len(in) == nb {
		return in
	}
	names := make([]string, nb)
	for i := range names {
		names[i] = fmt.Sprintf("band_%d", i+1)
	}
	return names
}
