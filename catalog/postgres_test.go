package catalog

import (
	"database/sql"
	"os"
	"testing"

	"github.com/ctessum/geom"
	"github.com/pressly/goose"

	_ "github.com/nci/geocube/catalog/migrations"
)

// TestPGIndex needs a scratch database, e.g.
//
//	CATALOG_TEST_DSN="postgres://localhost/geocube_test?sslmode=disable" go test ./catalog
func TestPGIndex(t *testing.T) {
	dsn := os.Getenv("CATALOG_TEST_DSN")
	if dsn == "" {
		t.Skip("CATALOG_TEST_DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("catalog database unreachable: %v", err)
	}
	if err := goose.Up(db, "."); err != nil {
		t.Fatalf("migration failed: %v", err)
	}
	defer func() {
		goose.DownTo(db, ".", 0)
		db.Close()
	}()

	idx, err := NewPGIndex(PGConfig{DSN: dsn, Collection: "test_collection"})
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()

	for day, path := range map[int]string{1: "a.nc", 2: "b.nc"} {
		err := idx.AddImage(testImage(path, day, []float64{0, 0, 2, 2}, "red", "nir"))
		if err != nil {
			t.Fatalf("AddImage(%s): %v", path, err)
		}
	}
	// re-adding the same path replaces the record instead of duplicating it
	if err := idx.AddImage(testImage("a.nc", 1, []float64{0, 0, 2, 2}, "red", "nir")); err != nil {
		t.Fatal(err)
	}

	bands, err := idx.Bands()
	if err != nil {
		t.Fatal(err)
	}
	if len(bands) != 2 {
		t.Errorf("Bands() = %v, want nir and red", bands)
	}

	bounds := &geom.Bounds{Min: geom.Point{X: 0.5, Y: 0.5}, Max: geom.Point{X: 1.5, Y: 1.5}}
	refs, err := idx.Query(bounds, tsDay(1), tsDay(3), []string{"red"})
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 2 {
		t.Fatalf("got %d refs, want one per image", len(refs))
	}
	if refs[0].Image.Path != "a.nc" || refs[1].Image.Path != "b.nc" {
		t.Errorf("refs not in acquisition order: %v, %v", refs[0].Image.Path, refs[1].Image.Path)
	}

	none, err := idx.Query(bounds, tsDay(1), tsDay(3), []string{"blue"})
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("unknown band returned %d refs", len(none))
	}
}
