package catalog

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ctessum/geom"
	"github.com/lib/pq"
)

// PGIndex is the Postgres catalog backend. The schema lives in
// catalog/migrations; the crawler populates it through AddImage and
// evaluation only ever reads.
type PGIndex struct {
	db         *sql.DB
	collection string
}

// PGConfig mirrors the connection tunables of the metadata API.
type PGConfig struct {
	DSN        string `json:"dsn" yaml:"dsn"`
	Collection string `json:"collection" yaml:"collection"`
	Pool       int    `json:"pool" yaml:"pool"`
	Limit      int    `json:"limit" yaml:"limit"`
}

func NewPGIndex(cfg PGConfig) (*PGIndex, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("cannot open catalog database: %v", err)
	}
	if cfg.Pool <= 0 {
		cfg.Pool = 8
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 64
	}
	db.SetMaxIdleConns(cfg.Pool)
	db.SetMaxOpenConns(cfg.Limit)
	return &PGIndex{db: db, collection: cfg.Collection}, nil
}

const queryRefsSQL = `
select i.id, i.path, i.timestamp, i.footprint, i.projection,
       b.name, b.data_type, b.no_data
from images i
join bands b on b.image_id = i.id
join collections c on c.id = i.collection_id
where c.name = $1
  and i.timestamp >= $2 and i.timestamp < $3
  and i.xmax >= $4 and i.xmin <= $5
  and i.ymax >= $6 and i.ymin <= $7
  and (cardinality($8::text[]) = 0 or b.name = any($8))
order by i.timestamp, i.id, b.id`

func (p *PGIndex) Query(bounds *geom.Bounds, start, end time.Time, bands []string) ([]Ref, error) {
	if bands == nil {
		bands = []string{}
	}
	rows, err := p.db.Query(queryRefsSQL, p.collection, start, end,
		bounds.Min.X, bounds.Max.X, bounds.Min.Y, bounds.Max.Y, pq.Array(bands))
	if err != nil {
		return nil, fmt.Errorf("catalog query failed: %v", err)
	}
	defer rows.Close()

	var refs []Ref
	images := map[int64]*Image{}
	skip := map[int64]bool{}
	seq := 0
	for rows.Next() {
		var id int64
		var img Image
		var band Band
		err := rows.Scan(&id, &img.Path, &img.TimeStamp, &img.Footprint, &img.Projection,
			&band.Name, &band.DataType, &band.NoData)
		if err != nil {
			return nil, fmt.Errorf("catalog scan failed: %v", err)
		}
		cur, ok := images[id]
		if !ok {
			if err := img.init(seq); err != nil {
				return nil, err
			}
			seq++
			// the SQL filter is only a bbox pre-filter; the exact
			// footprint test happens here
			if !intersects(img.polygon, bounds) {
				skip[id] = true
			}
			cur = &img
			images[id] = cur
		}
		if skip[id] {
			continue
		}
		cur.Bands = append(cur.Bands, band)
		refs = append(refs, Ref{Image: cur, Band: band})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog query failed: %v", err)
	}
	return refs, nil
}

const queryBandsSQL = `
select distinct on (b.name) b.name, b.data_type, b.no_data
from bands b
join images i on i.id = b.image_id
join collections c on c.id = i.collection_id
where c.name = $1
order by b.name, b.id`

func (p *PGIndex) Bands() ([]Band, error) {
	rows, err := p.db.Query(queryBandsSQL, p.collection)
	if err != nil {
		return nil, fmt.Errorf("catalog band query failed: %v", err)
	}
	defer rows.Close()

	var out []Band
	for rows.Next() {
		var b Band
		if err := rows.Scan(&b.Name, &b.DataType, &b.NoData); err != nil {
			return nil, fmt.Errorf("catalog band scan failed: %v", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// AddImage catalogs one image, creating the collection on first use. The
// image is deleted and re-inserted when the path is already cataloged, so
// re-crawling a directory converges.
func (p *PGIndex) AddImage(img Image) error {
	if err := img.init(0); err != nil {
		return err
	}
	if len(img.Bands) == 0 {
		return fmt.Errorf("image %s has no bands", img.Path)
	}
	bounds := img.polygon.Bounds()

	tx, err := p.db.Begin()
	if err != nil {
		return fmt.Errorf("catalog insert failed: %v", err)
	}
	defer tx.Rollback()

	var collectionID int64
	err = tx.QueryRow(`
		insert into collections (name) values ($1)
		on conflict (name) do update set name = excluded.name
		returning id`, p.collection).Scan(&collectionID)
	if err != nil {
		return fmt.Errorf("catalog insert failed: %v", err)
	}

	if _, err := tx.Exec(`delete from images where collection_id = $1 and path = $2`,
		collectionID, img.Path); err != nil {
		return fmt.Errorf("catalog insert failed: %v", err)
	}

	var imageID int64
	err = tx.QueryRow(`
		insert into images (collection_id, path, timestamp, footprint, projection,
		                    xmin, ymin, xmax, ymax)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		returning id`,
		collectionID, img.Path, img.TimeStamp, img.Footprint, img.Projection,
		bounds.Min.X, bounds.Min.Y, bounds.Max.X, bounds.Max.Y).Scan(&imageID)
	if err != nil {
		return fmt.Errorf("catalog insert failed: %v", err)
	}

	for _, b := range img.Bands {
		if _, err := tx.Exec(`
			insert into bands (image_id, name, data_type, no_data)
			values ($1, $2, $3, $4)`,
			imageID, b.Name, b.DataType, b.NoData); err != nil {
			return fmt.Errorf("catalog insert failed: %v", err)
		}
	}
	return tx.Commit()
}

func (p *PGIndex) Close() error {
	return p.db.Close()
}
