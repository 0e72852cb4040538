package cube

import (
	"context"
	"fmt"
	"time"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"

	"github.com/nci/geocube/cubeview"
)

// Reducers supported by NewReduce.
var reducers = map[string]bool{
	"min":    true,
	"max":    true,
	"mean":   true,
	"median": true,
	"sum":    true,
	"count":  true,
	"first":  true,
}

// Reduce collapses the time axis of its input with a per-pixel reduction
// over valid samples. No-data samples are ignored; a pixel with no valid
// sample at all reduces to no-data (count is the exception: it reduces to
// zero, which is data).
type Reduce struct {
	input  Node
	method string
}

func NewReduce(input Node, method string) (*Reduce, error) {
	if !reducers[method] {
		return nil, cubeview.ConfigErrorf("unknown reducer %q", method)
	}
	return &Reduce{input: input, method: method}, nil
}

func (n *Reduce) Kind() string         { return "reduce_" + n.method }
func (n *Reduce) Bands() []string      { return n.input.Bands() }
func (n *Reduce) View() *cubeview.View { return n.input.View() }

func (n *Reduce) ChunkGrid() (int, int, int) {
	_, cy, cx := n.input.ChunkGrid()
	return 1, cy, cx
}

func (n *Reduce) Timestamps() []time.Time {
	return []time.Time{n.View().Start}
}

func (n *Reduce) Read(ctx context.Context, coord cubeview.Coord) (*ChunkBuffer, error) {
	if coord.T != 0 {
		return nil, fmt.Errorf("%s: chunk %v: time axis is collapsed, only t=0 exists", n.Kind(), coord)
	}

	bands := n.Bands()
	ct, _, _ := n.input.ChunkGrid()

	var samples [][]float64
	var noData float64 = NoDataNaN
	ny, nx := 0, 0

	// pull every time chunk covering this spatial tile
	for t := 0; t < ct; t++ {
		in, err := n.input.Read(ctx, cubeview.Coord{T: t, Y: coord.Y, X: coord.X})
		if err != nil {
			return nil, err
		}
		nb, nt, y, x := in.Shape()
		if samples == nil {
			ny, nx = y, x
			samples = make([][]float64, nb*ny*nx)
		} else if y != ny || x != nx {
			return nil, &BandMismatchError{Reason: fmt.Sprintf(
				"%s chunk %v: time chunk %d spatial shape (%d,%d) differs from (%d,%d)",
				n.Kind(), coord, t, y, x, ny, nx)}
		}
		plane := ny * nx
		for bi := 0; bi < nb; bi++ {
			data := in.BandData(bi)
			for ti := 0; ti < nt; ti++ {
				block := data[ti*plane : (ti+1)*plane]
				for i, v := range block {
					if in.IsNoData(v) {
						continue
					}
					samples[bi*plane+i] = append(samples[bi*plane+i], v)
				}
			}
		}
	}

	out := NewChunkBuffer(bands, 1, ny, nx, noData)
	for i, s := range samples {
		v, ok := reduceSamples(n.method, s)
		if ok {
			out.Data.Elements[i] = v
		}
	}
	return out, nil
}

func reduceSamples(method string, s []float64) (float64, bool) {
	if method == "count" {
		return float64(len(s)), true
	}
	if len(s) == 0 {
		return 0, false
	}
	switch method {
	case "min":
		return floats.Min(s), true
	case "max":
		return floats.Max(s), true
	case "sum":
		return floats.Sum(s), true
	case "mean":
		return floats.Sum(s) / float64(len(s)), true
	case "median":
		v, err := stats.Median(s)
		if err != nil {
			return 0, false
		}
		return v, true
	case "first":
		return s[0], true
	}
	return 0, false
}
