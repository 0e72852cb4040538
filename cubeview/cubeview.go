package cubeview

import (
	"fmt"
	"time"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
)

const ISOFormat = "2006-01-02T15:04:05.000Z"

// ConfigError reports an invalid view or graph configuration. It is always
// raised at construction time, before any chunk is computed.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "configuration error: " + e.Reason
}

func ConfigErrorf(format string, args ...interface{}) *ConfigError {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// ChunkShape is the tile size of one chunk in (time steps, y pixels, x pixels).
type ChunkShape struct {
	T, Y, X int
}

// Coord addresses one chunk in the view's chunk coordinate space.
type Coord struct {
	T, Y, X int
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d,%d)", c.T, c.Y, c.X)
}

// Config is the user-facing description of a target grid, typically decoded
// from a recipe file.
type Config struct {
	Left       float64    `json:"left" yaml:"left"`
	Right      float64    `json:"right" yaml:"right"`
	Top        float64    `json:"top" yaml:"top"`
	Bottom     float64    `json:"bottom" yaml:"bottom"`
	Width      int        `json:"width" yaml:"width"`
	Height     int        `json:"height" yaml:"height"`
	Projection string     `json:"projection" yaml:"projection"`
	Start      string     `json:"start" yaml:"start"`
	End        string     `json:"end" yaml:"end"`
	StepDays   int        `json:"step_days" yaml:"step_days"`
	StepHours  int        `json:"step_hours" yaml:"step_hours"`
	ChunkSize  ChunkShape `json:"-" yaml:"-"`
	ChunkT     int        `json:"chunk_t" yaml:"chunk_t"`
	ChunkY     int        `json:"chunk_y" yaml:"chunk_y"`
	ChunkX     int        `json:"chunk_x" yaml:"chunk_x"`
}

// View is the shared target grid of a cube graph: spatial extent and pixel
// resolution in one projection, a regular time axis and the chunk tiling.
// Every node in one graph references exactly one View.
type View struct {
	BBox   []float64 // xMin, yMin, xMax, yMax
	Width  int
	Height int
	XRes   float64
	YRes   float64

	Projection string
	SR         *proj.SR

	Start time.Time
	End   time.Time
	Step  time.Duration

	Chunk ChunkShape

	numT int
}

// NewView validates cfg and derives the exact pixel and chunk coordinate
// space. Any inconsistency is a ConfigError.
func NewView(cfg Config) (*View, error) {
	if cfg.Right <= cfg.Left || cfg.Top <= cfg.Bottom {
		return nil, ConfigErrorf("empty spatial extent (%v, %v, %v, %v)", cfg.Left, cfg.Bottom, cfg.Right, cfg.Top)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, ConfigErrorf("pixel counts must be positive, got %dx%d", cfg.Width, cfg.Height)
	}

	sr, err := proj.Parse(cfg.Projection)
	if err != nil {
		return nil, ConfigErrorf("cannot parse projection %q: %v", cfg.Projection, err)
	}
	// Parse accepts unknown projection names; only building the transform
	// functions reveals them.
	if _, _, err := sr.Transformers(); err != nil {
		return nil, ConfigErrorf("unsupported projection %q: %v", cfg.Projection, err)
	}

	start, err := time.Parse(ISOFormat, cfg.Start)
	if err != nil {
		return nil, ConfigErrorf("cannot parse start time %q: %v", cfg.Start, err)
	}
	end, err := time.Parse(ISOFormat, cfg.End)
	if err != nil {
		return nil, ConfigErrorf("cannot parse end time %q: %v", cfg.End, err)
	}

	step := time.Duration(cfg.StepDays)*24*time.Hour + time.Duration(cfg.StepHours)*time.Hour
	if step <= 0 {
		return nil, ConfigErrorf("temporal step must be positive, got %v", step)
	}
	if !end.After(start) {
		return nil, ConfigErrorf("empty time range [%v, %v)", start, end)
	}
	d := end.Sub(start)
	if d%step != 0 {
		return nil, ConfigErrorf("time range %v is not a whole number of %v steps", d, step)
	}

	chunk := cfg.ChunkSize
	if chunk == (ChunkShape{}) {
		chunk = ChunkShape{T: cfg.ChunkT, Y: cfg.ChunkY, X: cfg.ChunkX}
	}
	if chunk.T <= 0 || chunk.Y <= 0 || chunk.X <= 0 {
		return nil, ConfigErrorf("chunk shape must be positive, got (%d,%d,%d)", chunk.T, chunk.Y, chunk.X)
	}

	v := &View{
		BBox:       []float64{cfg.Left, cfg.Bottom, cfg.Right, cfg.Top},
		Width:      cfg.Width,
		Height:     cfg.Height,
		XRes:       (cfg.Right - cfg.Left) / float64(cfg.Width),
		YRes:       (cfg.Top - cfg.Bottom) / float64(cfg.Height),
		Projection: cfg.Projection,
		SR:         sr,
		Start:      start,
		End:        end,
		Step:       step,
		Chunk:      chunk,
		numT:       int(d / step),
	}
	return v, nil
}

// NumT is the number of steps on the time axis.
func (v *View) NumT() int {
	return v.numT
}

// Timestamps lists the start time of every step on the time axis.
func (v *View) Timestamps() []time.Time {
	ts := make([]time.Time, v.numT)
	for i := range ts {
		ts[i] = v.Start.Add(time.Duration(i) * v.Step)
	}
	return ts
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// ChunkGrid is the extent of the chunk coordinate space. Edge chunks may be
// smaller than the nominal chunk shape.
func (v *View) ChunkGrid() (ct, cy, cx int) {
	return ceilDiv(v.numT, v.Chunk.T), ceilDiv(v.Height, v.Chunk.Y), ceilDiv(v.Width, v.Chunk.X)
}

// ChunkSize is the actual shape of the chunk at c.
func (v *View) ChunkSize(c Coord) ChunkShape {
	s := ChunkShape{T: v.Chunk.T, Y: v.Chunk.Y, X: v.Chunk.X}
	if (c.T+1)*v.Chunk.T > v.numT {
		s.T = v.numT - c.T*v.Chunk.T
	}
	if (c.Y+1)*v.Chunk.Y > v.Height {
		s.Y = v.Height - c.Y*v.Chunk.Y
	}
	if (c.X+1)*v.Chunk.X > v.Width {
		s.X = v.Width - c.X*v.Chunk.X
	}
	return s
}

// PixelOrigin is the global pixel offset of the chunk at c. Row 0 is the top
// of the extent.
func (v *View) PixelOrigin(c Coord) (offY, offX int) {
	return c.Y * v.Chunk.Y, c.X * v.Chunk.X
}

// ChunkBBox is the exact spatial bounding box covered by the chunk at c, in
// the view projection as xMin, yMin, xMax, yMax.
func (v *View) ChunkBBox(c Coord) []float64 {
	s := v.ChunkSize(c)
	offY, offX := v.PixelOrigin(c)
	xMin := v.BBox[0] + float64(offX)*v.XRes
	yMax := v.BBox[3] - float64(offY)*v.YRes
	return []float64{xMin, yMax - float64(s.Y)*v.YRes, xMin + float64(s.X)*v.XRes, yMax}
}

// ChunkBounds is ChunkBBox as a geometry bounding box.
func (v *View) ChunkBounds(c Coord) *geom.Bounds {
	bbox := v.ChunkBBox(c)
	return &geom.Bounds{
		Min: geom.Point{X: bbox[0], Y: bbox[1]},
		Max: geom.Point{X: bbox[2], Y: bbox[3]},
	}
}

// ChunkTimeRange is the half open time interval [start, end) covered by the
// chunk at c.
func (v *View) ChunkTimeRange(c Coord) (time.Time, time.Time) {
	s := v.ChunkSize(c)
	start := v.Start.Add(time.Duration(c.T*v.Chunk.T) * v.Step)
	return start, start.Add(time.Duration(s.T) * v.Step)
}

// SliceTime is the start time of slice i within the chunk at c.
func (v *View) SliceTime(c Coord, i int) time.Time {
	start, _ := v.ChunkTimeRange(c)
	return start.Add(time.Duration(i) * v.Step)
}

// PixelCenter is the projected coordinate of the center of pixel (y, x)
// within the chunk at c.
func (v *View) PixelCenter(c Coord, y, x int) (float64, float64) {
	offY, offX := v.PixelOrigin(c)
	px := v.BBox[0] + (float64(offX+x)+0.5)*v.XRes
	py := v.BBox[3] - (float64(offY+y)+0.5)*v.YRes
	return px, py
}

// Coords enumerates the full chunk coordinate space in deterministic order:
// time first, then row, then column.
func (v *View) Coords() []Coord {
	ct, cy, cx := v.ChunkGrid()
	out := make([]Coord, 0, ct*cy*cx)
	for t := 0; t < ct; t++ {
		for y := 0; y < cy; y++ {
			for x := 0; x < cx; x++ {
				out = append(out, Coord{T: t, Y: y, X: x})
			}
		}
	}
	return out
}
