package sink

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nci/geocube/cube"
	"github.com/nci/geocube/cubeview"
	"github.com/nci/geocube/driver"
)

type stubNode struct {
	view  *cubeview.View
	bands []string
}

func (n *stubNode) Kind() string               { return "stub" }
func (n *stubNode) Bands() []string            { return n.bands }
func (n *stubNode) View() *cubeview.View       { return n.view }
func (n *stubNode) ChunkGrid() (int, int, int) { return n.view.ChunkGrid() }
func (n *stubNode) Timestamps() []time.Time    { return n.view.Timestamps() }

func (n *stubNode) Read(ctx context.Context, coord cubeview.Coord) (*cube.ChunkBuffer, error) {
	panic("not used")
}

func testView(t *testing.T, chunkX int) *cubeview.View {
	t.Helper()
	v, err := cubeview.NewView(cubeview.Config{
		Left: 140, Right: 142, Bottom: -34, Top: -32,
		Width: 4, Height: 4,
		Projection: "+proj=longlat +datum=WGS84 +no_defs",
		Start:      "2020-01-01T00:00:00.000Z",
		End:        "2020-01-02T00:00:00.000Z",
		StepDays:   1,
		ChunkSize:  cubeview.ChunkShape{T: 1, Y: 4, X: chunkX},
	})
	require.NoError(t, err)
	return v
}

func TestNetCDFRoundTrip(t *testing.T) {
	view := testView(t, 2)
	node := &stubNode{view: view, bands: []string{"ndvi"}}
	path := filepath.Join(t.TempDir(), "out.nc")

	s, err := NewNetCDF(path, node, cube.NoDataNaN)
	require.NoError(t, err)

	// chunks arrive out of order
	for _, cx := range []int{1, 0} {
		coord := cubeview.Coord{X: cx}
		shape := view.ChunkSize(coord)
		buf := cube.NewChunkBuffer(node.bands, shape.T, shape.Y, shape.X, cube.NoDataNaN)
		_, offX := view.PixelOrigin(coord)
		for y := 0; y < shape.Y; y++ {
			for x := 0; x < shape.X; x++ {
				buf.Set(float64(y*4+offX+x), 0, 0, y, x)
			}
		}
		require.NoError(t, s.Write(coord, buf))
	}
	require.NoError(t, s.Close())

	// the output is a readable source again
	ds, err := driver.Open(path)
	require.NoError(t, err)
	defer ds.Close()

	w, h := ds.Size()
	assert.Equal(t, 4, w)
	assert.Equal(t, 4, h)
	gt := ds.GeoTransform()
	assert.Equal(t, 140.0, gt[0])
	assert.Equal(t, 0.5, gt[1])
	assert.Equal(t, -32.0, gt[3])
	assert.Equal(t, -0.5, gt[5])
	assert.Equal(t, "+proj=longlat +datum=WGS84 +no_defs", ds.Projection())
	assert.True(t, math.IsNaN(ds.NoData()))

	vals, err := ds.Read("ndvi", 0, 0, 4, 4)
	require.NoError(t, err)
	for i := 0; i < 16; i++ {
		assert.Equal(t, float64(i), vals[i], "pixel %d", i)
	}

	// a window narrower than the raster reads the right cells
	vals, err = ds.Read("ndvi", 1, 1, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 6, 9, 10}, vals)
}

func TestNetCDFRejectsStrayChunks(t *testing.T) {
	view := testView(t, 4)
	node := &stubNode{view: view, bands: []string{"ndvi"}}
	path := filepath.Join(t.TempDir(), "out.nc")

	s, err := NewNetCDF(path, node, cube.NoDataNaN)
	require.NoError(t, err)
	defer s.Close()

	buf := cube.NewChunkBuffer([]string{"other"}, 1, 4, 4, cube.NoDataNaN)
	err = s.Write(cubeview.Coord{}, buf)
	require.Error(t, err)
}

func TestMemorySink(t *testing.T) {
	mem := NewMemory()
	buf := cube.NewChunkBuffer([]string{"v"}, 1, 2, 2, cube.NoDataNaN)

	require.NoError(t, mem.Write(cubeview.Coord{}, buf))
	require.Error(t, mem.Write(cubeview.Coord{}, buf), "duplicate chunk")
	assert.Equal(t, 1, mem.NumChunks())

	require.NoError(t, mem.Close())
	require.Error(t, mem.Write(cubeview.Coord{X: 1}, buf), "write after close")
}
