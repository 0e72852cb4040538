package cubeview

import (
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		Left:       140,
		Right:      142,
		Bottom:     -34,
		Top:        -32,
		Width:      8,
		Height:     8,
		Projection: "+proj=longlat +datum=WGS84 +no_defs",
		Start:      "2020-01-01T00:00:00.000Z",
		End:        "2020-01-05T00:00:00.000Z",
		StepDays:   1,
		ChunkT:     2,
		ChunkY:     4,
		ChunkX:     4,
	}
}

func TestNewViewValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty extent", func(c *Config) { c.Right = c.Left }},
		{"inverted extent", func(c *Config) { c.Top, c.Bottom = c.Bottom, c.Top }},
		{"zero width", func(c *Config) { c.Width = 0 }},
		{"negative height", func(c *Config) { c.Height = -4 }},
		{"bad projection", func(c *Config) { c.Projection = "+proj=nosuchproj" }},
		{"bad start time", func(c *Config) { c.Start = "2020-01-01" }},
		{"zero step", func(c *Config) { c.StepDays = 0 }},
		{"end before start", func(c *Config) { c.End = "2019-01-01T00:00:00.000Z" }},
		{"step does not divide range", func(c *Config) { c.StepDays = 3 }},
		{"zero chunk", func(c *Config) { c.ChunkT = 0 }},
	}

	for _, tc := range cases {
		cfg := testConfig()
		tc.mutate(&cfg)
		_, err := NewView(cfg)
		if err == nil {
			t.Errorf("%s: expected error, got none", tc.name)
			continue
		}
		if _, ok := err.(*ConfigError); !ok {
			t.Errorf("%s: expected *ConfigError, got %T: %v", tc.name, err, err)
		}
	}

	if _, err := NewView(testConfig()); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestViewGrid(t *testing.T) {
	v, err := NewView(testConfig())
	if err != nil {
		t.Fatal(err)
	}

	if v.NumT() != 4 {
		t.Errorf("NumT() = %d, want 4", v.NumT())
	}
	if v.XRes != 0.25 || v.YRes != 0.25 {
		t.Errorf("resolution = (%v, %v), want (0.25, 0.25)", v.XRes, v.YRes)
	}

	ct, cy, cx := v.ChunkGrid()
	if ct != 2 || cy != 2 || cx != 2 {
		t.Errorf("ChunkGrid() = (%d,%d,%d), want (2,2,2)", ct, cy, cx)
	}

	ts := v.Timestamps()
	if len(ts) != 4 {
		t.Fatalf("len(Timestamps()) = %d, want 4", len(ts))
	}
	want := time.Date(2020, 1, 3, 0, 0, 0, 0, time.UTC)
	if !ts[2].Equal(want) {
		t.Errorf("Timestamps()[2] = %v, want %v", ts[2], want)
	}
}

func TestRaggedChunks(t *testing.T) {
	cfg := testConfig()
	cfg.Width = 10
	cfg.End = "2020-01-04T00:00:00.000Z" // 3 steps against ChunkT=2
	v, err := NewView(cfg)
	if err != nil {
		t.Fatal(err)
	}

	ct, cy, cx := v.ChunkGrid()
	if ct != 2 || cy != 2 || cx != 3 {
		t.Fatalf("ChunkGrid() = (%d,%d,%d), want (2,2,3)", ct, cy, cx)
	}

	full := v.ChunkSize(Coord{T: 0, Y: 0, X: 0})
	if full != (ChunkShape{T: 2, Y: 4, X: 4}) {
		t.Errorf("interior chunk = %+v, want (2,4,4)", full)
	}
	edge := v.ChunkSize(Coord{T: 1, Y: 1, X: 2})
	if edge != (ChunkShape{T: 1, Y: 4, X: 2}) {
		t.Errorf("edge chunk = %+v, want (1,4,2)", edge)
	}
}

func TestChunkTimeRange(t *testing.T) {
	v, err := NewView(testConfig())
	if err != nil {
		t.Fatal(err)
	}

	start, end := v.ChunkTimeRange(Coord{T: 1})
	wantStart := time.Date(2020, 1, 3, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2020, 1, 5, 0, 0, 0, 0, time.UTC)
	if !start.Equal(wantStart) || !end.Equal(wantEnd) {
		t.Errorf("ChunkTimeRange = [%v, %v), want [%v, %v)", start, end, wantStart, wantEnd)
	}
	if !v.SliceTime(Coord{T: 1}, 1).Equal(time.Date(2020, 1, 4, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("SliceTime = %v", v.SliceTime(Coord{T: 1}, 1))
	}
}

func TestChunkGeometry(t *testing.T) {
	v, err := NewView(testConfig())
	if err != nil {
		t.Fatal(err)
	}

	bbox := v.ChunkBBox(Coord{T: 0, Y: 1, X: 1})
	want := []float64{141, -34, 142, -33}
	for i := range want {
		if bbox[i] != want[i] {
			t.Fatalf("ChunkBBox = %v, want %v", bbox, want)
		}
	}

	offY, offX := v.PixelOrigin(Coord{Y: 1, X: 1})
	if offY != 4 || offX != 4 {
		t.Errorf("PixelOrigin = (%d,%d), want (4,4)", offY, offX)
	}

	// top left pixel of the top left chunk
	px, py := v.PixelCenter(Coord{}, 0, 0)
	if px != 140.125 || py != -32.125 {
		t.Errorf("PixelCenter = (%v,%v), want (140.125,-32.125)", px, py)
	}
}

func TestCoordsOrder(t *testing.T) {
	v, err := NewView(testConfig())
	if err != nil {
		t.Fatal(err)
	}

	coords := v.Coords()
	if len(coords) != 8 {
		t.Fatalf("len(Coords()) = %d, want 8", len(coords))
	}
	if coords[0] != (Coord{0, 0, 0}) || coords[1] != (Coord{0, 0, 1}) || coords[4] != (Coord{1, 0, 0}) {
		t.Errorf("Coords() not in (t, y, x) order: %v", coords)
	}
}
