// crawl walks raster files and emits one catalog image record per file as
// a JSON line, ready for ingestion. With -dsn it ingests straight into the
// Postgres catalog instead.
//
//	crawl -collection modis_lst /data/modis/*.nc
//	crawl -collection modis_lst -dsn postgres://... /data/modis
package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ctessum/geom/proj"
	"github.com/pressly/goose"

	"github.com/nci/geocube/catalog"
	_ "github.com/nci/geocube/catalog/migrations"
	"github.com/nci/geocube/cubeview"
	"github.com/nci/geocube/driver"
)

var (
	dsn        = flag.String("dsn", "", "ingest into this Postgres catalog instead of printing JSON")
	collection = flag.String("collection", "", "collection name")
	timestamp  = flag.String("timestamp", "", "acquisition time for all files (ISO), default file mtime")
	migrate    = flag.Bool("migrate", false, "apply catalog schema migrations before ingesting")
)

const wgs84Proj4 = "+proj=longlat +datum=WGS84 +no_defs"

func ensure(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func main() {
	flag.Parse()
	if flag.NArg() == 0 {
		log.Fatal("Please provide paths to raster files or directories")
	}
	if *collection == "" {
		log.Fatal("Please provide a -collection name")
	}

	var fixedTime time.Time
	if *timestamp != "" {
		var err error
		fixedTime, err = time.Parse(cubeview.ISOFormat, *timestamp)
		ensure(err)
	}

	var ingest *catalog.PGIndex
	if *dsn != "" {
		if *migrate {
			db, err := sql.Open("postgres", *dsn)
			ensure(err)
			ensure(goose.Up(db, "."))
			ensure(db.Close())
		}
		var err error
		ingest, err = catalog.NewPGIndex(catalog.PGConfig{DSN: *dsn, Collection: *collection})
		ensure(err)
		defer ingest.Close()
	}

	enc := json.NewEncoder(os.Stdout)
	for _, root := range flag.Args() {
		ensure(filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() || !strings.HasSuffix(path, ".nc") {
				return nil
			}

			img, err := extractImage(path, info, fixedTime)
			if err != nil {
				log.Printf("skipping %s: %v", path, err)
				return nil
			}
			if ingest != nil {
				return ingest.AddImage(*img)
			}
			return enc.Encode(img)
		}))
	}
}

// extractImage derives the catalog record of one raster file.
func extractImage(path string, info os.FileInfo, fixedTime time.Time) (*catalog.Image, error) {
	ds, err := driver.Open(path)
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	footprint, err := footprintWKT(ds)
	if err != nil {
		return nil, err
	}

	ts := fixedTime
	if ts.IsZero() {
		ts = info.ModTime().UTC()
	}

	var bands []catalog.Band
	for _, name := range ds.Bands() {
		bands = append(bands, catalog.Band{
			Name:     name,
			DataType: "Float64",
			NoData:   ds.NoData(),
		})
	}

	return &catalog.Image{
		Path:       path,
		TimeStamp:  ts,
		Footprint:  footprint,
		Projection: ds.Projection(),
		Bands:      bands,
	}, nil
}

// footprintWKT is the raster's corner polygon reprojected to WGS84.
func footprintWKT(ds driver.Dataset) (string, error) {
	w, h := ds.Size()
	gt := ds.GeoTransform()

	corners := [][2]float64{}
	for _, c := range [][2]float64{{0, 0}, {float64(w), 0}, {float64(w), float64(h)}, {0, float64(h)}} {
		x := gt[0] + c[0]*gt[1] + c[1]*gt[2]
		y := gt[3] + c[0]*gt[4] + c[1]*gt[5]
		corners = append(corners, [2]float64{x, y})
	}

	if ds.Projection() != wgs84Proj4 {
		srcSR, err := proj.Parse(ds.Projection())
		if err != nil {
			return "", fmt.Errorf("cannot parse projection %q: %v", ds.Projection(), err)
		}
		wgsSR, err := proj.Parse(wgs84Proj4)
		if err != nil {
			return "", err
		}
		// trans is nil when the source is already WGS84 under another spelling
		trans, err := srcSR.NewTransform(wgsSR)
		if err != nil {
			return "", err
		}
		if trans != nil {
			for i, c := range corners {
				lon, lat, err := trans(c[0], c[1])
				if err != nil {
					return "", fmt.Errorf("cannot reproject corner %v: %v", c, err)
				}
				corners[i] = [2]float64{lon, lat}
			}
		}
	}

	var sb strings.Builder
	sb.WriteString("POLYGON ((")
	for _, c := range corners {
		fmt.Fprintf(&sb, "%f %f, ", c[0], c[1])
	}
	fmt.Fprintf(&sb, "%f %f))", corners[0][0], corners[0][1])
	return sb.String(), nil
}
