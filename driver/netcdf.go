package driver

import (
	"fmt"
	"os"

	"github.com/ctessum/cdf"
)

func init() {
	Register(&netcdfDriver{})
}

// netcdfDriver reads NetCDF-3 rasters carrying the grid attributes this
// module's sink writes: x0, y0 (top-left origin), dx, dy, proj4 and per
// variable _FillValue. Every non-coordinate variable is a band; files with
// a time dimension expose their first slice.
type netcdfDriver struct{}

func (d *netcdfDriver) Name() string { return "netcdf" }

func (d *netcdfDriver) Open(path string) (Dataset, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	f, err := cdf.Open(fh)
	if err != nil {
		fh.Close()
		return nil, fmt.Errorf("cannot open NetCDF %s: %v", path, err)
	}

	ds := &netcdfDataset{path: path, fh: fh, f: f}
	if err := ds.parseGrid(); err != nil {
		fh.Close()
		return nil, err
	}
	return ds, nil
}

type netcdfDataset struct {
	path   string
	fh     *os.File
	f      *cdf.File
	w, h   int
	gt     [6]float64
	proj4  string
	bands  []string
	noData float64
}

func attrFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case []float64:
		if len(t) > 0 {
			return t[0], true
		}
	case []float32:
		if len(t) > 0 {
			return float64(t[0]), true
		}
	case []int32:
		if len(t) > 0 {
			return float64(t[0]), true
		}
	case float64:
		return t, true
	}
	return 0, false
}

func (ds *netcdfDataset) globalFloat(name string) (float64, error) {
	v, ok := attrFloat(ds.f.Header.GetAttribute("", name))
	if !ok {
		return 0, fmt.Errorf("%s: missing grid attribute %q", ds.path, name)
	}
	return v, nil
}

func (ds *netcdfDataset) parseGrid() error {
	x0, err := ds.globalFloat("x0")
	if err != nil {
		return err
	}
	y0, err := ds.globalFloat("y0")
	if err != nil {
		return err
	}
	dx, err := ds.globalFloat("dx")
	if err != nil {
		return err
	}
	dy, err := ds.globalFloat("dy")
	if err != nil {
		return err
	}
	proj4, _ := ds.f.Header.GetAttribute("", "proj4").(string)
	if proj4 == "" {
		proj4 = "+proj=longlat +datum=WGS84 +no_defs"
	}
	ds.gt = [6]float64{x0, dx, 0, y0, 0, -dy}
	ds.proj4 = proj4

	for _, v := range ds.f.Header.Variables() {
		dims := ds.f.Header.Dimensions(v)
		lens := ds.f.Header.Lengths(v)
		if len(dims) != 2 && len(dims) != 3 {
			continue // coordinate variable
		}
		w := lens[len(lens)-1]
		h := lens[len(lens)-2]
		if ds.w == 0 {
			ds.w, ds.h = w, h
		} else if w != ds.w || h != ds.h {
			return fmt.Errorf("%s: variable %s grid %dx%d differs from %dx%d", ds.path, v, w, h, ds.w, ds.h)
		}
		ds.bands = append(ds.bands, v)
		if fill, ok := attrFloat(ds.f.Header.GetAttribute(v, "_FillValue")); ok {
			ds.noData = fill
		}
	}
	if len(ds.bands) == 0 {
		return fmt.Errorf("%s: no raster variables", ds.path)
	}
	return nil
}

func (ds *netcdfDataset) Size() (int, int)           { return ds.w, ds.h }
func (ds *netcdfDataset) GeoTransform() [6]float64   { return ds.gt }
func (ds *netcdfDataset) Projection() string         { return ds.proj4 }
func (ds *netcdfDataset) Bands() []string            { return ds.bands }
func (ds *netcdfDataset) NoData() float64            { return ds.noData }

func (ds *netcdfDataset) Read(band string, x0, y0, w, h int) ([]float64, error) {
	found := false
	for _, b := range ds.bands {
		if b == band {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%s: no band %q", ds.path, band)
	}
	// cdf readers cover contiguous runs of cells, so a window narrower
	// than the raster is read row by row.
	dims := ds.f.Header.Dimensions(band)
	out := make([]float64, 0, w*h)
	for row := y0; row < y0+h; row++ {
		var begin, end []int
		if len(dims) == 3 {
			begin = []int{0, row, x0}
			end = []int{0, row, x0 + w}
		} else {
			begin = []int{row, x0}
			end = []int{row, x0 + w}
		}
		r := ds.f.Reader(band, begin, end)
		buf := r.Zero(w)
		if n, err := r.Read(buf); n != w && err != nil {
			return nil, fmt.Errorf("%s: reading band %s row %d: %v", ds.path, band, row, err)
		}
		vals, err := toFloat64(buf, w)
		if err != nil {
			return nil, err
		}
		out = append(out, vals...)
	}
	return out, nil
}

func toFloat64(buf interface{}, n int) ([]float64, error) {
	out := make([]float64, n)
	switch t := buf.(type) {
	case []float64:
		copy(out, t)
	case []float32:
		for i, v := range t {
			out[i] = float64(v)
		}
	case []int32:
		for i, v := range t {
			out[i] = float64(v)
		}
	case []int16:
		for i, v := range t {
			out[i] = float64(v)
		}
	case []int8:
		for i, v := range t {
			out[i] = float64(v)
		}
	case []uint8:
		for i, v := range t {
			out[i] = float64(v)
		}
	default:
		return nil, fmt.Errorf("unsupported NetCDF array type %T", buf)
	}
	return out, nil
}

func (ds *netcdfDataset) Close() error {
	return ds.fh.Close()
}
