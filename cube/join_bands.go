package cube

import (
	"context"
	"fmt"
	"time"

	"github.com/nci/geocube/cubeview"
)

// JoinBands concatenates the band axes of two or more inputs sharing one
// view, in input order.
type JoinBands struct {
	inputs []Node
	bands  []string
}

func NewJoinBands(inputs ...Node) (*JoinBands, error) {
	if len(inputs) < 2 {
		return nil, cubeview.ConfigErrorf("join_bands requires at least two inputs")
	}
	if err := sameView(inputs); err != nil {
		return nil, err
	}
	names := bandNames(inputs)
	seen := map[string]bool{}
	for _, name := range names {
		if seen[name] {
			return nil, cubeview.ConfigErrorf("join_bands inputs both provide band %q", name)
		}
		seen[name] = true
	}
	return &JoinBands{inputs: inputs, bands: names}, nil
}

func (n *JoinBands) Kind() string               { return "join_bands" }
func (n *JoinBands) Bands() []string            { return n.bands }
func (n *JoinBands) View() *cubeview.View       { return n.inputs[0].View() }
func (n *JoinBands) ChunkGrid() (int, int, int) { return n.inputs[0].ChunkGrid() }
func (n *JoinBands) Timestamps() []time.Time    { return n.inputs[0].Timestamps() }

func (n *JoinBands) Read(ctx context.Context, coord cubeview.Coord) (*ChunkBuffer, error) {
	chunks := make([]*ChunkBuffer, len(n.inputs))
	for i, input := range n.inputs {
		c, err := input.Read(ctx, coord)
		if err != nil {
			return nil, err
		}
		chunks[i] = c
	}

	_, nt, ny, nx := chunks[0].Shape()
	for i := 1; i < len(chunks); i++ {
		_, t, y, x := chunks[i].Shape()
		if t != nt || y != ny || x != nx {
			return nil, &BandMismatchError{Reason: fmt.Sprintf(
				"join_bands chunk %v: input %d shape (%d,%d,%d) differs from (%d,%d,%d)",
				coord, i, t, y, x, nt, ny, nx)}
		}
	}

	out := NewChunkBuffer(n.bands, nt, ny, nx, NoDataNaN)
	bi := 0
	for _, c := range chunks {
		for i := range c.Bands {
			dst := out.BandData(bi)
			src := c.BandData(i)
			if IsNoData(c.NoData, NoDataNaN) {
				copy(dst, src)
			} else {
				// normalize the no-data sentinel while copying
				for k, v := range src {
					if c.IsNoData(v) {
						dst[k] = out.NoData
					} else {
						dst[k] = v
					}
				}
			}
			bi++
		}
	}
	return out, nil
}
