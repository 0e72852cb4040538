package cube

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"

	"github.com/nci/geocube/catalog"
	"github.com/nci/geocube/cubeview"
	"github.com/nci/geocube/driver"
)

const wgs84Proj4 = "+proj=longlat +datum=WGS84 +no_defs"

// Source reads chunks straight from cataloged imagery: it queries the
// catalog index for the chunk's footprint and time range, warps every
// intersecting image into the chunk grid and composites them in
// acquisition order.
type Source struct {
	idx   catalog.Index
	view  *cubeview.View
	bands []string
	pool  *driver.Pool
	toWGS proj.Transformer
}

// SourceOption adjusts source construction.
type SourceOption func(*Source)

// WithHandlePool shares a dataset handle pool between sources.
func WithHandlePool(p *driver.Pool) SourceOption {
	return func(s *Source) { s.pool = p }
}

// NewSource builds a source node for the named bands. Unknown band names
// are rejected here, before any chunk computes.
func NewSource(idx catalog.Index, view *cubeview.View, bands []string, opts ...SourceOption) (*Source, error) {
	known, err := idx.Bands()
	if err != nil {
		return nil, fmt.Errorf("cannot list catalog bands: %w", err)
	}
	if len(bands) == 0 {
		for _, b := range known {
			bands = append(bands, b.Name)
		}
	}
	for _, name := range bands {
		found := false
		for _, b := range known {
			if b.Name == name {
				found = true
				break
			}
		}
		if !found {
			return nil, &BandMismatchError{Band: name, Reason: "is not in the catalog"}
		}
	}

	wgsSR, err := proj.Parse(wgs84Proj4)
	if err != nil {
		return nil, err
	}
	// toWGS stays nil for WGS84 views; NewTransform elides the identity
	toWGS, err := view.SR.NewTransform(wgsSR)
	if err != nil {
		return nil, cubeview.ConfigErrorf("view projection %q cannot be transformed to WGS84: %v", view.Projection, err)
	}

	s := &Source{
		idx:   idx,
		view:  view,
		bands: bands,
		toWGS: toWGS,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pool == nil {
		s.pool = driver.NewPool(0)
	}
	return s, nil
}

func (s *Source) Kind() string                { return "source" }
func (s *Source) Bands() []string             { return s.bands }
func (s *Source) View() *cubeview.View        { return s.view }
func (s *Source) ChunkGrid() (int, int, int)  { return s.view.ChunkGrid() }
func (s *Source) Timestamps() []time.Time     { return s.view.Timestamps() }

// queryBounds is the chunk bbox in WGS84, taken over the reprojected border
// of the chunk (corners plus edge midpoints).
func (s *Source) queryBounds(coord cubeview.Coord) (*geom.Bounds, error) {
	bbox := s.view.ChunkBBox(coord)
	xs := []float64{bbox[0], (bbox[0] + bbox[2]) / 2, bbox[2]}
	ys := []float64{bbox[1], (bbox[1] + bbox[3]) / 2, bbox[3]}
	b := &geom.Bounds{
		Min: geom.Point{X: math.Inf(1), Y: math.Inf(1)},
		Max: geom.Point{X: math.Inf(-1), Y: math.Inf(-1)},
	}
	for _, x := range xs {
		for _, y := range ys {
			lon, lat := x, y
			if s.toWGS != nil {
				var err error
				lon, lat, err = s.toWGS(x, y)
				if err != nil {
					return nil, fmt.Errorf("cannot reproject chunk corner (%v,%v): %v", x, y, err)
				}
			}
			b.Min.X = math.Min(b.Min.X, lon)
			b.Min.Y = math.Min(b.Min.Y, lat)
			b.Max.X = math.Max(b.Max.X, lon)
			b.Max.Y = math.Max(b.Max.Y, lat)
		}
	}
	return b, nil
}

func (s *Source) Read(ctx context.Context, coord cubeview.Coord) (*ChunkBuffer, error) {
	shape := s.view.ChunkSize(coord)
	buf := NewChunkBuffer(s.bands, shape.T, shape.Y, shape.X, NoDataNaN)

	bounds, err := s.queryBounds(coord)
	if err != nil {
		return nil, fmt.Errorf("source chunk %v: %w", coord, err)
	}
	start, end := s.view.ChunkTimeRange(coord)
	refs, err := s.idx.Query(bounds, start, end, s.bands)
	if err != nil {
		return nil, fmt.Errorf("source chunk %v: catalog query: %w", coord, err)
	}
	if len(refs) == 0 {
		return buf, nil
	}

	nImages := 0
	nFailed := 0
	var firstErr error
	firstPath := ""

	// refs arrive sorted by acquisition time, so warping in order leaves
	// the newest valid sample on top while older images fill its gaps
	for i := 0; i < len(refs); {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img := refs[i].Image
		j := i
		for j < len(refs) && refs[j].Image == img {
			j++
		}
		nImages++

		slice := int(img.TimeStamp.Sub(start) / s.view.Step)
		if slice < 0 {
			slice = 0
		}
		if slice >= shape.T {
			slice = shape.T - 1
		}

		if err := s.warpImage(refs[i:j], coord, shape, slice, buf); err != nil {
			nFailed++
			if firstErr == nil {
				firstErr = err
				firstPath = img.Path
			}
			log.Printf("source chunk %v: degrading image %s to no-data: %v", coord, img.Path, err)
		}
		i = j
	}

	if nFailed == nImages {
		return nil, &SourceReadError{Coord: coord, Path: firstPath, Err: firstErr}
	}
	return buf, nil
}

func (s *Source) warpImage(refs []catalog.Ref, coord cubeview.Coord, shape cubeview.ChunkShape, slice int, buf *ChunkBuffer) error {
	h, err := s.pool.Checkout(refs[0].Image.Path)
	if err != nil {
		return err
	}
	defer s.pool.Return(h)

	// Warp into scratch planes first and commit only once every band of
	// the image succeeded, so a half read image contributes nothing.
	plane := shape.Y * shape.X
	type staged struct {
		bi   int
		data []float64
	}
	var stages []staged
	for _, ref := range refs {
		bi := buf.BandIndex(ref.Band.Name)
		if bi < 0 {
			continue
		}
		scratch := make([]float64, plane)
		copy(scratch, buf.BandData(bi)[slice*plane:(slice+1)*plane])
		if err := driver.Warp(h, ref.Band.Name, s.view, coord, scratch); err != nil {
			return err
		}
		stages = append(stages, staged{bi: bi, data: scratch})
	}
	for _, st := range stages {
		copy(buf.BandData(st.bi)[slice*plane:(slice+1)*plane], st.data)
	}
	return nil
}
