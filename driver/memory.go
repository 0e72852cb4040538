package driver

import (
	"fmt"
	"strings"
	"sync"
)

func init() {
	Register(&memDriver{grids: map[string]*MemDataset{}})
}

type memDriver struct {
	mu    sync.Mutex
	grids map[string]*MemDataset
}

func (d *memDriver) Name() string { return "memory" }

func (d *memDriver) Open(path string) (Dataset, error) {
	name := strings.TrimPrefix(path, "mem://")
	d.mu.Lock()
	defer d.mu.Unlock()
	ds, ok := d.grids[name]
	if !ok {
		return nil, fmt.Errorf("no memory dataset %q", name)
	}
	return ds, nil
}

// MemDataset is an in-memory raster used by tests and file-less pipelines.
type MemDataset struct {
	W, H      int
	GT        [6]float64
	Proj4     string
	NoDataV   float64
	BandNames []string
	Grids     map[string][]float64 // row major, W*H per band

	// FailReads simulates an unreadable file; FailBands fails single bands.
	FailReads bool
	FailBands map[string]bool
}

// RegisterMemDataset publishes ds under mem://name.
func RegisterMemDataset(name string, ds *MemDataset) {
	d, _ := lookup("memory")
	md := d.(*memDriver)
	md.mu.Lock()
	md.grids[name] = ds
	md.mu.Unlock()
}

func (ds *MemDataset) Size() (int, int)         { return ds.W, ds.H }
func (ds *MemDataset) GeoTransform() [6]float64 { return ds.GT }
func (ds *MemDataset) Projection() string       { return ds.Proj4 }
func (ds *MemDataset) Bands() []string          { return ds.BandNames }
func (ds *MemDataset) NoData() float64          { return ds.NoDataV }

func (ds *MemDataset) Read(band string, x0, y0, w, h int) ([]float64, error) {
	if ds.FailReads || ds.FailBands[band] {
		return nil, fmt.Errorf("simulated read failure")
	}
	grid, ok := ds.Grids[band]
	if !ok {
		return nil, fmt.Errorf("no band %q", band)
	}
	if x0 < 0 || y0 < 0 || x0+w > ds.W || y0+h > ds.H {
		return nil, fmt.Errorf("window (%d,%d,%d,%d) outside %dx%d raster", x0, y0, w, h, ds.W, ds.H)
	}
	out := make([]float64, w*h)
	for row := 0; row < h; row++ {
		copy(out[row*w:(row+1)*w], grid[(y0+row)*ds.W+x0:(y0+row)*ds.W+x0+w])
	}
	return out, nil
}

func (ds *MemDataset) Close() error { return nil }
