// Package cube implements the lazy data cube graph: a DAG of immutable
// nodes, each answering chunk requests by reading source rasters or by
// pulling and transforming chunks from its inputs.
package cube

import (
	"math"

	"github.com/ctessum/sparse"
)

// NoDataNaN is the default no-data sentinel of computed chunks.
var NoDataNaN = math.NaN()

// ChunkBuffer is one dense chunk of cube data with axes
// (band, time, y, x). Buffers are produced fresh on every request and are
// never shared between chunk computations.
type ChunkBuffer struct {
	Bands  []string
	NoData float64
	Data   *sparse.DenseArray
}

// NewChunkBuffer allocates a chunk filled with noData.
func NewChunkBuffer(bands []string, nt, ny, nx int, noData float64) *ChunkBuffer {
	buf := &ChunkBuffer{
		Bands:  bands,
		NoData: noData,
		Data:   sparse.ZerosDense(len(bands), nt, ny, nx),
	}
	if noData != 0 {
		for i := range buf.Data.Elements {
			buf.Data.Elements[i] = noData
		}
	}
	return buf
}

// Shape returns the axis lengths (band, time, y, x).
func (b *ChunkBuffer) Shape() (nb, nt, ny, nx int) {
	s := b.Data.Shape
	return s[0], s[1], s[2], s[3]
}

func (b *ChunkBuffer) index(bi, t, y, x int) int {
	s := b.Data.Shape
	return ((bi*s[1]+t)*s[2]+y)*s[3] + x
}

// At reads one sample.
func (b *ChunkBuffer) At(bi, t, y, x int) float64 {
	return b.Data.Elements[b.index(bi, t, y, x)]
}

// Set writes one sample.
func (b *ChunkBuffer) Set(v float64, bi, t, y, x int) {
	b.Data.Elements[b.index(bi, t, y, x)] = v
}

// BandData is the contiguous (time, y, x) block of one band.
func (b *ChunkBuffer) BandData(bi int) []float64 {
	s := b.Data.Shape
	n := s[1] * s[2] * s[3]
	return b.Data.Elements[bi*n : (bi+1)*n]
}

// BandIndex locates a band by name.
func (b *ChunkBuffer) BandIndex(name string) int {
	for i, n := range b.Bands {
		if n == name {
			return i
		}
	}
	return -1
}

// IsNoData reports whether v is the buffer's no-data sentinel. NaN
// sentinels compare by NaN-ness since NaN never equals itself.
func (b *ChunkBuffer) IsNoData(v float64) bool {
	if math.IsNaN(b.NoData) {
		return math.IsNaN(v)
	}
	return v == b.NoData
}

// IsNoData compares a sample against an arbitrary no-data sentinel.
func IsNoData(v, noData float64) bool {
	if math.IsNaN(noData) {
		return math.IsNaN(v)
	}
	return v == noData
}
