package catalog

import (
	"fmt"
	"sort"
	"time"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
)

// memEntry embeds the footprint so the rtree sees a full geometry, not
// just its bounding box.
type memEntry struct {
	geom.Polygon
	img *Image
}

var _ geom.Geom = &memEntry{}

// MemIndex is an in-memory catalog index backed by an rtree. It serves file
// lists and tests; once built it is safe for concurrent queries.
type MemIndex struct {
	tree   *rtree.Rtree
	images []*Image
	bands  map[string]Band
	order  []string
	sealed bool
}

func NewMemIndex() *MemIndex {
	return &MemIndex{
		tree:  rtree.NewTree(25, 50),
		bands: make(map[string]Band),
	}
}

// Add catalogs one image. Not safe to call concurrently with Query.
func (m *MemIndex) Add(img Image) error {
	if m.sealed {
		return fmt.Errorf("index is sealed")
	}
	if err := img.init(len(m.images)); err != nil {
		return err
	}
	cp := img
	m.images = append(m.images, &cp)
	m.tree.Insert(&memEntry{Polygon: cp.polygon, img: &cp})
	for _, b := range cp.Bands {
		if _, ok := m.bands[b.Name]; !ok {
			m.bands[b.Name] = b
			m.order = append(m.order, b.Name)
		}
	}
	return nil
}

// Seal marks the index read-only. Query succeeds either way; sealing only
// guards against accidental writes during evaluation.
func (m *MemIndex) Seal() {
	m.sealed = true
}

func (m *MemIndex) Query(bounds *geom.Bounds, start, end time.Time, bands []string) ([]Ref, error) {
	var hits []*Image
	for _, item := range m.tree.SearchIntersect(bounds) {
		img := item.(*memEntry).img
		ts := img.TimeStamp
		if ts.Before(start) || !ts.Before(end) {
			continue
		}
		if !intersects(img.polygon, bounds) {
			continue
		}
		hits = append(hits, img)
	}
	sort.Slice(hits, func(i, j int) bool {
		if !hits[i].TimeStamp.Equal(hits[j].TimeStamp) {
			return hits[i].TimeStamp.Before(hits[j].TimeStamp)
		}
		return hits[i].seq < hits[j].seq
	})

	var refs []Ref
	for _, img := range hits {
		refs = expandRefs(img, bands, refs)
	}
	return refs, nil
}

func (m *MemIndex) Bands() ([]Band, error) {
	out := make([]Band, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.bands[name])
	}
	return out, nil
}

func (m *MemIndex) Close() error {
	return nil
}
