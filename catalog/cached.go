package catalog

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ctessum/geom"
	"github.com/nci/gomemcache/memcache"
)

type cachedRef struct {
	Image Image `json:"image"`
	Band  Band  `json:"band"`
}

// CachedIndex puts a memcached layer in front of another index, keyed by a
// hash of the query. Cache misses and cache errors fall through to the
// wrapped index; memcache may drop entries at any time.
type CachedIndex struct {
	idx Index
	mc  *memcache.Client
}

func NewCachedIndex(idx Index, server string) *CachedIndex {
	// lazy connection; errors surface in Get
	return &CachedIndex{idx: idx, mc: memcache.New(server)}
}

func queryHash(bounds *geom.Bounds, start, end time.Time, bands []string) string {
	key := fmt.Sprintf("%.9f,%.9f,%.9f,%.9f|%d|%d|%v",
		bounds.Min.X, bounds.Min.Y, bounds.Max.X, bounds.Max.Y,
		start.UnixNano(), end.UnixNano(), bands)
	buff := md5.Sum([]byte(key))
	return "geocube_" + hex.EncodeToString(buff[:])
}

func (c *CachedIndex) Query(bounds *geom.Bounds, start, end time.Time, bands []string) ([]Ref, error) {
	hash := queryHash(bounds, start, end, bands)
	if cached, err := c.mc.Get(hash); err == nil {
		if refs, err := decodeRefs(cached.Value); err == nil {
			return refs, nil
		}
	}

	refs, err := c.idx.Query(bounds, start, end, bands)
	if err != nil {
		return nil, err
	}
	if payload, err := encodeRefs(refs); err == nil {
		// don't care about errors; memcache may not retain this anyway
		c.mc.Set(&memcache.Item{Key: hash, Value: payload})
	}
	return refs, nil
}

func encodeRefs(refs []Ref) ([]byte, error) {
	out := make([]cachedRef, len(refs))
	for i, r := range refs {
		out[i] = cachedRef{Image: *r.Image, Band: r.Band}
	}
	return json.Marshal(out)
}

func decodeRefs(payload []byte) ([]Ref, error) {
	var recs []cachedRef
	if err := json.Unmarshal(payload, &recs); err != nil {
		return nil, err
	}
	refs := make([]Ref, 0, len(recs))
	images := map[string]*Image{}
	for i := range recs {
		img, ok := images[recs[i].Image.Path]
		if !ok {
			cp := recs[i].Image
			if err := cp.init(len(images)); err != nil {
				return nil, err
			}
			img = &cp
			images[cp.Path] = img
		}
		refs = append(refs, Ref{Image: img, Band: recs[i].Band})
	}
	return refs, nil
}

func (c *CachedIndex) Bands() ([]Band, error) {
	return c.idx.Bands()
}

func (c *CachedIndex) Close() error {
	return c.idx.Close()
}
