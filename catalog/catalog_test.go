package catalog

import (
	"testing"
	"time"

	"github.com/ctessum/geom"
)

func tsDay(day int) time.Time {
	return time.Date(2020, 1, day, 0, 0, 0, 0, time.UTC)
}

func testImage(path string, day int, bbox []float64, bands ...string) Image {
	var bs []Band
	for _, name := range bands {
		bs = append(bs, Band{Name: name, DataType: "Float64"})
	}
	return Image{
		Path:       path,
		TimeStamp:  tsDay(day),
		Footprint:  BBox2WKT(bbox),
		Projection: "+proj=longlat +datum=WGS84 +no_defs",
		Bands:      bs,
	}
}

func buildIndex(t *testing.T, imgs ...Image) *MemIndex {
	t.Helper()
	idx := NewMemIndex()
	for _, img := range imgs {
		if err := idx.Add(img); err != nil {
			t.Fatalf("Add(%s): %v", img.Path, err)
		}
	}
	idx.Seal()
	return idx
}

func TestParsePolygonWKT(t *testing.T) {
	p, err := ParsePolygonWKT("POLYGON ((0 0, 2 0, 2 2, 0 2, 0 0))")
	if err != nil {
		t.Fatal(err)
	}
	if len(p) != 1 || len(p[0]) != 5 {
		t.Fatalf("unexpected polygon structure %v", p)
	}
	if p[0][1] != (geom.Point{X: 2, Y: 0}) {
		t.Errorf("vertex 1 = %v, want (2 0)", p[0][1])
	}

	multi, err := ParsePolygonWKT("MULTIPOLYGON (((0 0, 1 0, 1 1, 0 0)), ((5 5, 6 5, 6 6, 5 5)))")
	if err != nil {
		t.Fatal(err)
	}
	if len(multi) != 2 {
		t.Fatalf("multipolygon has %d rings, want 2", len(multi))
	}

	for _, bad := range []string{
		"",
		"POINT (1 2)",
		"POLYGON ((0 0, 1 b, 1 1, 0 0))",
		"POLYGON ((0 0, 1 0",
	} {
		if _, err := ParsePolygonWKT(bad); err == nil {
			t.Errorf("ParsePolygonWKT(%q): expected error", bad)
		}
	}
}

func TestQueryOrderAndFilters(t *testing.T) {
	// two images on the same day preserve insertion order, a third sorts
	// first by timestamp despite being added last
	idx := buildIndex(t,
		testImage("b.nc", 2, []float64{0, 0, 2, 2}, "red", "nir"),
		testImage("c.nc", 2, []float64{0, 0, 2, 2}, "red"),
		testImage("a.nc", 1, []float64{0, 0, 2, 2}, "red", "nir"),
	)

	bounds := &geom.Bounds{Min: geom.Point{X: 0.5, Y: 0.5}, Max: geom.Point{X: 1.5, Y: 1.5}}
	refs, err := idx.Query(bounds, tsDay(1), tsDay(5), []string{"red", "nir"})
	if err != nil {
		t.Fatal(err)
	}

	var got []string
	for _, r := range refs {
		got = append(got, r.Image.Path+":"+r.Band.Name)
	}
	want := []string{"a.nc:red", "a.nc:nir", "b.nc:red", "b.nc:nir", "c.nc:red"}
	if len(got) != len(want) {
		t.Fatalf("refs = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("refs = %v, want %v", got, want)
		}
	}
}

func TestQueryTimeRangeHalfOpen(t *testing.T) {
	idx := buildIndex(t,
		testImage("a.nc", 1, []float64{0, 0, 2, 2}, "red"),
		testImage("b.nc", 3, []float64{0, 0, 2, 2}, "red"),
	)

	bounds := &geom.Bounds{Min: geom.Point{X: 0, Y: 0}, Max: geom.Point{X: 2, Y: 2}}
	refs, err := idx.Query(bounds, tsDay(1), tsDay(3), []string{"red"})
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 1 || refs[0].Image.Path != "a.nc" {
		t.Errorf("[day1, day3) returned %d refs, want only a.nc", len(refs))
	}
}

func TestQuerySpatialFilter(t *testing.T) {
	idx := buildIndex(t,
		testImage("in.nc", 1, []float64{0, 0, 2, 2}, "red"),
		testImage("out.nc", 1, []float64{10, 10, 12, 12}, "red"),
	)

	bounds := &geom.Bounds{Min: geom.Point{X: 1, Y: 1}, Max: geom.Point{X: 3, Y: 3}}
	refs, err := idx.Query(bounds, tsDay(1), tsDay(2), []string{"red"})
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 1 || refs[0].Image.Path != "in.nc" {
		t.Errorf("query returned %v, want only in.nc", refs)
	}

	// touching bounds with zero overlap area is not an intersection
	edge := &geom.Bounds{Min: geom.Point{X: 2, Y: 0}, Max: geom.Point{X: 4, Y: 2}}
	refs, err = idx.Query(edge, tsDay(1), tsDay(2), []string{"red"})
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 0 {
		t.Errorf("edge-touching query returned %v, want none", refs)
	}
}

func TestQueryBandSubset(t *testing.T) {
	idx := buildIndex(t,
		testImage("a.nc", 1, []float64{0, 0, 2, 2}, "red", "nir", "swir"),
	)

	bounds := &geom.Bounds{Min: geom.Point{X: 0, Y: 0}, Max: geom.Point{X: 2, Y: 2}}
	refs, err := idx.Query(bounds, tsDay(1), tsDay(2), []string{"swir", "red"})
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 2 {
		t.Fatalf("got %d refs, want 2", len(refs))
	}

	bands, err := idx.Bands()
	if err != nil {
		t.Fatal(err)
	}
	if len(bands) != 3 || bands[0].Name != "red" || bands[2].Name != "swir" {
		t.Errorf("Bands() = %v, want red, nir, swir in insertion order", bands)
	}
}

func TestRefCacheCodec(t *testing.T) {
	img := testImage("a.nc", 1, []float64{0, 0, 2, 2}, "red", "nir")
	if err := img.init(0); err != nil {
		t.Fatal(err)
	}
	refs := []Ref{
		{Image: &img, Band: img.Bands[0]},
		{Image: &img, Band: img.Bands[1]},
	}

	payload, err := encodeRefs(refs)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := decodeRefs(payload)
	if err != nil {
		t.Fatal(err)
	}
	if len(decoded) != 2 {
		t.Fatalf("decoded %d refs, want 2", len(decoded))
	}
	if decoded[0].Image != decoded[1].Image {
		t.Error("decoded refs of one image do not share the Image pointer")
	}
	if decoded[0].Image.Path != "a.nc" || decoded[1].Band.Name != "nir" {
		t.Errorf("decoded refs corrupted: %v", decoded)
	}
	if decoded[0].Image.Polygon() == nil {
		t.Error("decoded image footprint not parsed")
	}
}
