// Package driver abstracts raster file access behind per-format drivers and
// owns the handle discipline: native handles are never shared between
// goroutines, they are checked out of a pool for exclusive use.
package driver

import (
	"fmt"
	"strings"
	"sync"
)

// Dataset is an open raster file holding one acquisition: a set of named
// bands over a single (y, x) grid in the file's native projection. A
// Dataset is not safe for concurrent use.
type Dataset interface {
	// Size is the native raster width and height in pixels.
	Size() (w, h int)

	// GeoTransform is the affine pixel-to-projected transform in GDAL
	// order: x origin, x pixel size, row rotation, y origin, column
	// rotation, y pixel size (negative for north-up).
	GeoTransform() [6]float64

	// Projection is the native spatial reference as a proj4 string.
	Projection() string

	Bands() []string
	NoData() float64

	// Read returns the native samples of a window of one band, row
	// major, converted to float64.
	Read(band string, x0, y0, w, h int) ([]float64, error)

	Close() error
}

// Driver opens datasets of one format.
type Driver interface {
	Name() string
	Open(path string) (Dataset, error)
}

var (
	driversMu sync.Mutex
	drivers   = map[string]Driver{}
)

// Register makes a driver available to Open.
func Register(d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[d.Name()] = d
}

func lookup(name string) (Driver, bool) {
	driversMu.Lock()
	defer driversMu.Unlock()
	d, ok := drivers[name]
	return d, ok
}

// Open resolves a driver from the path and opens the dataset. mem:// paths
// go to the memory driver; everything else is resolved by extension.
func Open(path string) (Dataset, error) {
	name := "netcdf"
	if strings.HasPrefix(path, "mem://") {
		name = "memory"
	}
	d, ok := lookup(name)
	if !ok {
		return nil, fmt.Errorf("no %s driver registered for %s", name, path)
	}
	return d.Open(path)
}
