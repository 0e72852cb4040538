package driver

import (
	"fmt"
	"math"

	"github.com/ctessum/geom/proj"

	"github.com/nci/geocube/cubeview"
)

// Warp resamples one band of ds into the (y, x) pixel grid of one chunk of
// the view, nearest neighbour. dst is one row major (y, x) block of
// view.ChunkSize(coord) shape. Target pixels falling outside the source
// raster, or on source no-data, are left untouched, so successive Warp
// calls composite in call order.
func Warp(ds Dataset, band string, view *cubeview.View, coord cubeview.Coord, dst []float64) error {
	shape := view.ChunkSize(coord)
	sy, sx := shape.Y, shape.X
	if len(dst) != sy*sx {
		return fmt.Errorf("warp target has %d samples, want %d", len(dst), sy*sx)
	}

	var trans proj.Transformer
	if ds.Projection() != view.Projection {
		srcSR, err := proj.Parse(ds.Projection())
		if err != nil {
			return fmt.Errorf("cannot parse source projection %q: %v", ds.Projection(), err)
		}
		trans, err = view.SR.NewTransform(srcSR)
		if err != nil {
			return fmt.Errorf("cannot build transform to %q: %v", ds.Projection(), err)
		}
	}

	gt := ds.GeoTransform()
	if gt[1] == 0 || gt[5] == 0 {
		return fmt.Errorf("degenerate geotransform %v", gt)
	}
	w, h := ds.Size()

	// project the chunk's pixel centers into source pixel space
	rows := make([]int, sy*sx)
	cols := make([]int, sy*sx)
	minCol, minRow := w, h
	maxCol, maxRow := -1, -1
	for y := 0; y < sy; y++ {
		for x := 0; x < sx; x++ {
			px, py := view.PixelCenter(coord, y, x)
			if trans != nil {
				var err error
				px, py, err = trans(px, py)
				if err != nil {
					rows[y*sx+x] = -1
					cols[y*sx+x] = -1
					continue
				}
			}
			col := int(math.Floor((px - gt[0]) / gt[1]))
			row := int(math.Floor((py - gt[3]) / gt[5]))
			if col < 0 || col >= w || row < 0 || row >= h {
				rows[y*sx+x] = -1
				cols[y*sx+x] = -1
				continue
			}
			rows[y*sx+x] = row
			cols[y*sx+x] = col
			if col < minCol {
				minCol = col
			}
			if col > maxCol {
				maxCol = col
			}
			if row < minRow {
				minRow = row
			}
			if row > maxRow {
				maxRow = row
			}
		}
	}
	if maxCol < 0 {
		return nil // chunk entirely outside the source raster
	}

	ww := maxCol - minCol + 1
	wh := maxRow - minRow + 1
	data, err := ds.Read(band, minCol, minRow, ww, wh)
	if err != nil {
		return err
	}

	noData := ds.NoData()
	for i := range rows {
		if rows[i] < 0 {
			continue
		}
		v := data[(rows[i]-minRow)*ww+(cols[i]-minCol)]
		if v == noData || (math.IsNaN(noData) && math.IsNaN(v)) {
			continue
		}
		dst[i] = v
	}
	return nil
}
