package cube

import (
	"context"
	"time"

	"github.com/nci/geocube/cubeview"
)

// SelectBands slices the band axis of its input to a subset in requested
// order.
type SelectBands struct {
	input Node
	bands []string
}

// NewSelectBands fails with a BandMismatchError if any requested name is
// absent from the input, so a bad selection never starts computing.
func NewSelectBands(input Node, bands []string) (*SelectBands, error) {
	if len(bands) == 0 {
		return nil, cubeview.ConfigErrorf("select_bands requires at least one band")
	}
	in := input.Bands()
	for _, name := range bands {
		found := false
		for _, b := range in {
			if b == name {
				found = true
				break
			}
		}
		if !found {
			return nil, &BandMismatchError{Band: name, Reason: "is not provided by the input"}
		}
	}
	return &SelectBands{input: input, bands: bands}, nil
}

func (n *SelectBands) Kind() string               { return "select_bands" }
func (n *SelectBands) Bands() []string            { return n.bands }
func (n *SelectBands) View() *cubeview.View       { return n.input.View() }
func (n *SelectBands) ChunkGrid() (int, int, int) { return n.input.ChunkGrid() }
func (n *SelectBands) Timestamps() []time.Time    { return n.input.Timestamps() }

func (n *SelectBands) Read(ctx context.Context, coord cubeview.Coord) (*ChunkBuffer, error) {
	in, err := n.input.Read(ctx, coord)
	if err != nil {
		return nil, err
	}
	_, nt, ny, nx := in.Shape()
	out := NewChunkBuffer(n.bands, nt, ny, nx, in.NoData)
	for i, name := range n.bands {
		copy(out.BandData(i), in.BandData(in.BandIndex(name)))
	}
	return out, nil
}
