package query

import (
	"fmt"
	"hash/fnv"

	"github.com/relab/bbhash"
)

// idIndex maps article ids to positions in a product slice through a
// minimal perfect hash. Lookups verify the stored id, so unknown ids never
// alias a real product.
type idIndex struct {
	mph  *bbhash.BBHash2
	slot []int
	ids  []string
}

func newIDIndex(ids []string) (*idIndex, error) {
	idx := &idIndex{ids: ids}
	if len(ids) == 0 {
		return idx, nil
	}

	keys := make([]uint64, len(ids))
	for i, id := range ids {
		keys[i] = hashID(id)
	}
	mph, err := bbhash.New(keys, bbhash.Gamma(2.0))
	if err != nil {
		return nil, fmt.Errorf("build id index: %w", err)
	}

	// Find is 1-indexed; slot is 0-indexed.
	idx.slot = make([]int, len(ids))
	for i, k := range keys {
		v := mph.Find(k)
		if v == 0 || v > uint64(len(ids)) {
			return nil, fmt.Errorf("build id index: lookup failed for %q", ids[i])
		}
		idx.slot[v-1] = i
	}
	idx.mph = mph
	return idx, nil
}

func (x *idIndex) lookup(id string) (int, bool) {
	if x.mph == nil {
		return 0, false
	}
	v := x.mph.Find(hashID(id))
	if v == 0 || v > uint64(len(x.slot)) {
		return 0, false
	}
	i := x.slot[v-1]
	if x.ids[i] != id {
		return 0, false
	}
	return i, true
}

func hashID(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}
