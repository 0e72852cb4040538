// Package migrations versions the catalog schema. The index builder that
// populates these tables runs elsewhere; the schema contract lives with its
// consumer so the query layer and the store never drift apart.
package migrations

import (
	"database/sql"

	"github.com/pressly/goose"
)

func init() {
	goose.AddMigration(Up00001, Down00001)
}

// Up00001 creates the catalog tables: one row per source image, one row per
// band an image provides, and collection-level metadata.
func Up00001(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE collections (
			id     serial PRIMARY KEY,
			name   text NOT NULL UNIQUE,
			format text NOT NULL DEFAULT ''
		);

		CREATE TABLE images (
			id            serial PRIMARY KEY,
			collection_id integer NOT NULL REFERENCES collections (id),
			path          text NOT NULL,
			timestamp     timestamptz NOT NULL,
			footprint     text NOT NULL,
			projection    text NOT NULL,
			xmin          double precision NOT NULL,
			ymin          double precision NOT NULL,
			xmax          double precision NOT NULL,
			ymax          double precision NOT NULL
		);

		CREATE TABLE bands (
			id        serial PRIMARY KEY,
			image_id  integer NOT NULL REFERENCES images (id) ON DELETE CASCADE,
			name      text NOT NULL,
			data_type text NOT NULL,
			no_data   double precision NOT NULL DEFAULT 'NaN'
		);`)
	if err != nil {
		return err
	}
	return addIndexes(tx)
}

func addIndexes(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE INDEX idx_images_timestamp ON images (collection_id, timestamp);
		CREATE INDEX idx_images_bbox ON images (xmin, xmax, ymin, ymax);
		CREATE INDEX idx_bands_image ON bands (image_id, name);`)
	return err
}

// Down00001 undoes the schema.
func Down00001(tx *sql.Tx) error {
	_, err := tx.Exec(`
		DROP TABLE IF EXISTS bands;
		DROP TABLE IF EXISTS images;
		DROP TABLE IF EXISTS collections;`)
	return err
}
