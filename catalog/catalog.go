// Package catalog is the query layer over the raster catalog index: the
// read-only store of source images, their acquisition times, footprints and
// bands that the cube source node composites from.
package catalog

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ctessum/geom"
)

// Band describes one band of a cataloged image.
type Band struct {
	Name     string  `json:"name"`
	DataType string  `json:"data_type"`
	NoData   float64 `json:"no_data"`
}

// Image is one source raster asset. Immutable once cataloged.
type Image struct {
	Path       string    `json:"path"`
	TimeStamp  time.Time `json:"timestamp"`
	Footprint  string    `json:"footprint"` // polygon WKT in WGS84
	Projection string    `json:"projection"`
	Bands      []Band    `json:"bands"`

	polygon geom.Polygon
	seq     int
}

// Polygon is the parsed footprint.
func (img *Image) Polygon() geom.Polygon {
	return img.polygon
}

func (img *Image) init(seq int) error {
	p, err := ParsePolygonWKT(img.Footprint)
	if err != nil {
		return fmt.Errorf("image %s: %v", img.Path, err)
	}
	img.polygon = p
	img.seq = seq
	return nil
}

// HasBand reports whether the image provides the named band.
func (img *Image) HasBand(name string) (Band, bool) {
	for _, b := range img.Bands {
		if b.Name == name {
			return b, true
		}
	}
	return Band{}, false
}

// Ref is one (image, band) pair returned by a catalog query.
type Ref struct {
	Image *Image
	Band  Band
}

// Index is a queryable catalog of source images. Implementations must be
// safe for concurrent readers; the index is read-only during evaluation.
type Index interface {
	// Query returns every (image, band) pair whose footprint intersects
	// bounds (WGS84 lon/lat) and whose acquisition time falls in
	// [start, end), restricted to the named bands (all bands when the
	// filter is empty). Results are sorted by timestamp, ties broken by
	// insertion order, so compositing is deterministic.
	Query(bounds *geom.Bounds, start, end time.Time, bands []string) ([]Ref, error)

	// Bands lists the band metadata known to the collection.
	Bands() ([]Band, error)

	Close() error
}

// BBox2WKT formats a bounding box (xMin, yMin, xMax, yMax) as polygon WKT.
func BBox2WKT(bbox []float64) string {
	return fmt.Sprintf("POLYGON ((%f %f, %f %f, %f %f, %f %f, %f %f))",
		bbox[0], bbox[1], bbox[2], bbox[1], bbox[2], bbox[3], bbox[0], bbox[3], bbox[0], bbox[1])
}

// ParsePolygonWKT parses POLYGON and MULTIPOLYGON WKT. Only the coordinate
// lists are interpreted; Z/M values are rejected.
func ParsePolygonWKT(wkt string) (geom.Polygon, error) {
	s := strings.TrimSpace(wkt)
	upper := strings.ToUpper(s)
	switch {
	case strings.HasPrefix(upper, "POLYGON"):
		s = strings.TrimSpace(s[len("POLYGON"):])
	case strings.HasPrefix(upper, "MULTIPOLYGON"):
		s = strings.TrimSpace(s[len("MULTIPOLYGON"):])
	default:
		return nil, fmt.Errorf("unsupported WKT geometry: %q", wkt)
	}

	var poly geom.Polygon
	var ring []geom.Point
	var num strings.Builder
	var coords []float64

	flushNum := func() error {
		if num.Len() == 0 {
			return nil
		}
		v, err := strconv.ParseFloat(num.String(), 64)
		if err != nil {
			return fmt.Errorf("bad WKT coordinate %q", num.String())
		}
		num.Reset()
		coords = append(coords, v)
		return nil
	}
	flushPoint := func() error {
		if err := flushNum(); err != nil {
			return err
		}
		if len(coords) == 0 {
			return nil
		}
		if len(coords) != 2 {
			return fmt.Errorf("WKT point has %d ordinates, want 2", len(coords))
		}
		ring = append(ring, geom.Point{X: coords[0], Y: coords[1]})
		coords = coords[:0]
		return nil
	}

	depth := 0
	for _, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			if err := flushPoint(); err != nil {
				return nil, err
			}
			if len(ring) > 0 {
				poly = append(poly, ring)
				ring = nil
			}
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced parentheses in WKT %q", wkt)
			}
		case ',':
			if err := flushPoint(); err != nil {
				return nil, err
			}
		case ' ', '\t', '\n':
			if err := flushNum(); err != nil {
				return nil, err
			}
		default:
			num.WriteRune(r)
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced parentheses in WKT %q", wkt)
	}
	if len(poly) == 0 {
		return nil, fmt.Errorf("empty polygon WKT %q", wkt)
	}
	return poly, nil
}

func boundsPolygon(b *geom.Bounds) geom.Polygon {
	return geom.Polygon{{
		{X: b.Min.X, Y: b.Min.Y},
		{X: b.Max.X, Y: b.Min.Y},
		{X: b.Max.X, Y: b.Max.Y},
		{X: b.Min.X, Y: b.Max.Y},
	}}
}

// intersects is the precise footprint test applied after any bounding box
// pre-filter.
func intersects(p geom.Polygon, b *geom.Bounds) bool {
	isect := p.Intersection(boundsPolygon(b))
	return isect != nil && isect.Area() > 0
}

func expandRefs(img *Image, bands []string, out []Ref) []Ref {
	if len(bands) == 0 {
		for _, b := range img.Bands {
			out = append(out, Ref{Image: img, Band: b})
		}
		return out
	}
	for _, name := range bands {
		if b, ok := img.HasBand(name); ok {
			out = append(out, Ref{Image: img, Band: b})
		}
	}
	return out
}
