package sink

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ctessum/cdf"

	"github.com/nci/geocube/cube"
	"github.com/nci/geocube/cubeview"
)

// NetCDF materializes a cube into a NetCDF-3 file with one variable per
// band over dims (time, y, x). The header carries the x0/y0/dx/dy/proj4
// grid attributes the netcdf driver expects, so evaluation outputs can be
// indexed and read back as sources. Chunks arrive in any order; the
// windowed writer places each slab directly.
type NetCDF struct {
	mu         sync.Mutex
	fh         *os.File
	f          *cdf.File
	view       *cubeview.View
	timestamps []time.Time
	bands      []string
	closed     bool
}

// NewNetCDF creates path and writes the file header for node's bands and
// grid. The file is only valid once Close has run.
func NewNetCDF(path string, node cube.Node, noData float64) (*NetCDF, error) {
	view := node.View()
	bands := node.Bands()
	timestamps := node.Timestamps()
	if len(bands) == 0 {
		return nil, fmt.Errorf("NetCDF sink: node has no bands")
	}

	h := cdf.NewHeader(
		[]string{"time", "y", "x"},
		[]int{len(timestamps), view.Height, view.Width})
	h.AddAttribute("", "x0", []float64{view.BBox[0]})
	h.AddAttribute("", "y0", []float64{view.BBox[3]})
	h.AddAttribute("", "dx", []float64{view.XRes})
	h.AddAttribute("", "dy", []float64{view.YRes})
	h.AddAttribute("", "proj4", view.Projection)

	h.AddVariable("time", []string{"time"}, []float64{0})
	h.AddAttribute("time", "units", "seconds since 1970-01-01 00:00:00 UTC")
	h.AddVariable("y", []string{"y"}, []float64{0})
	h.AddVariable("x", []string{"x"}, []float64{0})

	for _, band := range bands {
		h.AddVariable(band, []string{"time", "y", "x"}, []float64{0})
		h.AddAttribute(band, "_FillValue", []float64{noData})
	}
	h.Define()

	fh, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	f, err := cdf.Create(fh, h)
	if err != nil {
		fh.Close()
		os.Remove(path)
		return nil, fmt.Errorf("NetCDF sink: writing header: %v", err)
	}

	s := &NetCDF{
		fh:         fh,
		f:          f,
		view:       view,
		timestamps: timestamps,
		bands:      bands,
	}
	if err := s.writeCoordVars(); err != nil {
		fh.Close()
		os.Remove(path)
		return nil, err
	}
	return s, nil
}

func (s *NetCDF) writeCoordVars() error {
	times := make([]float64, len(s.timestamps))
	for i, ts := range s.timestamps {
		times[i] = float64(ts.Unix())
	}
	ys := make([]float64, s.view.Height)
	for i := range ys {
		ys[i] = s.view.BBox[3] - (float64(i)+0.5)*s.view.YRes
	}
	xs := make([]float64, s.view.Width)
	for i := range xs {
		xs[i] = s.view.BBox[0] + (float64(i)+0.5)*s.view.XRes
	}

	for _, cv := range []struct {
		name string
		vals []float64
	}{{"time", times}, {"y", ys}, {"x", xs}} {
		w := s.f.Writer(cv.name, []int{0}, []int{len(cv.vals)})
		if _, err := w.Write(cv.vals); err != nil {
			return fmt.Errorf("NetCDF sink: writing %s: %v", cv.name, err)
		}
	}
	return nil
}

func (s *NetCDF) Write(coord cubeview.Coord, buf *cube.ChunkBuffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("NetCDF sink: write after close")
	}

	_, nt, ny, nx := buf.Shape()
	t0 := coord.T * s.view.Chunk.T
	offY, offX := s.view.PixelOrigin(coord)
	if t0+nt > len(s.timestamps) || offY+ny > s.view.Height || offX+nx > s.view.Width {
		return fmt.Errorf("NetCDF sink: chunk %v exceeds grid", coord)
	}

	// The cdf writer covers a contiguous run of cells, not a hyperslab, so
	// a chunk narrower than the grid goes out one (t, y) row at a time.
	for bi, band := range buf.Bands {
		if !s.hasBand(band) {
			return fmt.Errorf("NetCDF sink: unexpected band %q in chunk %v", band, coord)
		}
		data := buf.BandData(bi)
		for t := 0; t < nt; t++ {
			for y := 0; y < ny; y++ {
				begin := []int{t0 + t, offY + y, offX}
				end := []int{t0 + t, offY + y, offX + nx}
				row := data[(t*ny+y)*nx : (t*ny+y+1)*nx]
				w := s.f.Writer(band, begin, end)
				if _, err := w.Write(row); err != nil {
					return fmt.Errorf("NetCDF sink: writing band %s chunk %v: %v", band, coord, err)
				}
			}
		}
	}
	return nil
}

func (s *NetCDF) hasBand(band string) bool {
	for _, b := range s.bands {
		if b == band {
			return true
		}
	}
	return false
}

func (s *NetCDF) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if err := cdf.UpdateNumRecs(s.fh); err != nil {
		s.fh.Close()
		return fmt.Errorf("NetCDF sink: finalizing: %v", err)
	}
	return s.fh.Close()
}
