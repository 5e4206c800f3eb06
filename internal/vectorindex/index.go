// Package vectorindex keeps one in-memory inner-product index per document
// kind and persists it as an index/map file pair.
package vectorindex

import (
	"container/heap"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ppiankov/lexsearch/internal/logging"
)

var (
	// ErrDimensionMismatch is returned for vectors or stored files whose
	// length disagrees with the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrCorrupt is returned when the index and map files cannot be paired.
	ErrCorrupt = errors.New("vector index corrupt")
)

// tombstone marks a removed slot.
const tombstone int64 = -1

// Type selects the search strategy.
type Type string

const (
	TypeFlat Type = "flat"
	TypeIVF  Type = "ivf"
)

// Options tunes an index.
type Options struct {
	Type Type

	// NList is the number of IVF clusters.
	NList int

	// NProbe is the number of clusters visited per IVF search.
	NProbe int

	Logger *zap.SugaredLogger
}

func (o Options) withDefaults() Options {
	if o.Type == "" {
		o.Type = TypeFlat
	}
	if o.NList <= 0 {
		o.NList = 100
	}
	if o.NProbe <= 0 {
		o.NProbe = 8
	}
	if o.NProbe > o.NList {
		o.NProbe = o.NList
	}
	o.Logger = logging.OrNop(o.Logger)
	return o
}

// Hit is one search result.
type Hit struct {
	ID    int64   `json:"id"`
	Score float32 `json:"score"`
}

// Index maps document ids to unit vectors. Slots are assigned in insertion
// order and never reused; Remove turns a slot into a tombstone.
type Index struct {
	mu   sync.RWMutex
	dim  int
	opts Options

	ids     []int64       // slot -> id
	vectors []float32     // slot-major, len(ids)*dim
	slots   map[int64]int // live id -> slot
	live    int

	ivf        *ivf
	generation uint64
}

// New creates an empty index.
func New(dim int, opts Options) (*Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("index dimension must be positive, got %d", dim)
	}
	opts = opts.withDefaults()
	switch opts.Type {
	case TypeFlat, TypeIVF:
	default:
		return nil, fmt.Errorf("unknown index type %q (supported: flat, ivf)", opts.Type)
	}

	return &Index{
		dim:   dim,
		opts:  opts,
		slots: make(map[int64]int),
	}, nil
}

// Add appends vectors for ids that have no live slot yet and returns how many
// were added. Either every vector has the right length or nothing is added.
func (idx *Index) Add(ids []int64, vectors [][]float32) (int, error) {
	if len(ids) != len(vectors) {
		return 0, fmt.Errorf("got %d ids and %d vectors", len(ids), len(vectors))
	}
	for i, v := range vectors {
		if len(v) != idx.dim {
			return 0, fmt.Errorf("%w: vector for id %d has %d, index has %d", ErrDimensionMismatch, ids[i], len(v), idx.dim)
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	added := 0
	for i, id := range ids {
		if id < 0 {
			continue
		}
		if _, ok := idx.slots[id]; ok {
			continue
		}

		slot := len(idx.ids)
		idx.ids = append(idx.ids, id)
		idx.vectors = append(idx.vectors, vectors[i]...)
		idx.slots[id] = slot
		idx.live++
		added++

		if idx.ivf != nil {
			idx.ivf.assign(slot, idx.vector(slot))
		}
	}

	idx.maybeTrain()
	return added, nil
}

// Remove tombstones the live slots of ids and returns how many were removed.
func (idx *Index) Remove(ids []int64) int {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	removed := 0
	for _, id := range ids {
		slot, ok := idx.slots[id]
		if !ok {
			continue
		}
		idx.ids[slot] = tombstone
		delete(idx.slots, id)
		idx.live--
		removed++
	}
	return removed
}

// Search returns up to k live ids by descending inner product with query,
// ties broken by ascending id. Excluded ids never appear. No threshold is
// applied here.
func (idx *Index) Search(query []float32, k int, exclude []int64) ([]Hit, error) {
	if len(query) != idx.dim {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(query), idx.dim)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if k <= 0 || idx.live == 0 {
		return []Hit{}, nil
	}

	skip := make(map[int64]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}

	top := make(hitHeap, 0, k)
	consider := func(slot int) {
		id := idx.ids[slot]
		if id == tombstone {
			return
		}
		if _, ok := skip[id]; ok {
			return
		}
		h := Hit{ID: id, Score: dot(query, idx.vector(slot))}
		if len(top) < k {
			heap.Push(&top, h)
			return
		}
		if worse(top[0], h) {
			top[0] = h
			heap.Fix(&top, 0)
		}
	}

	if idx.ivf != nil {
		for _, list := range idx.ivf.probe(query, idx.opts.NProbe) {
			for _, slot := range list {
				consider(slot)
			}
		}
	} else {
		for slot := range idx.ids {
			consider(slot)
		}
	}

	hits := []Hit(top)
	sort.Slice(hits, func(i, j int) bool { return worse(hits[j], hits[i]) })
	return hits, nil
}

// Vector returns a copy of the stored vector for id.
func (idx *Index) Vector(id int64) ([]float32, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	slot, ok := idx.slots[id]
	if !ok {
		return nil, false
	}
	out := make([]float32, idx.dim)
	copy(out, idx.vector(slot))
	return out, true
}

// Contains reports whether id has a live slot.
func (idx *Index) Contains(id int64) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.slots[id]
	return ok
}

// Missing returns the ids from ids that have no live slot, in input order.
func (idx *Index) Missing(ids []int64) []int64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var out []int64
	for _, id := range ids {
		if _, ok := idx.slots[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// Size returns the number of live slots.
func (idx *Index) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.live
}

// Slots returns the number of slots ever assigned, tombstones included.
func (idx *Index) Slots() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.ids)
}

// Dimension returns the vector length.
func (idx *Index) Dimension() int {
	return idx.dim
}

// Type returns the configured index type.
func (idx *Index) Type() Type {
	return idx.opts.Type
}

// Trained reports whether IVF clusters are in use.
func (idx *Index) Trained() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.ivf != nil
}

// Generation returns the generation of the last save or load.
func (idx *Index) Generation() uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.generation
}

func (idx *Index) vector(slot int) []float32 {
	return idx.vectors[slot*idx.dim : (slot+1)*idx.dim]
}

// liveSlots returns every non-tombstoned slot in ascending order.
func (idx *Index) liveSlots() []int {
	out := make([]int, 0, idx.live)
	for slot, id := range idx.ids {
		if id != tombstone {
			out = append(out, slot)
		}
	}
	return out
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// worse reports whether a ranks below b.
func worse(a, b Hit) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.ID > b.ID
}

// hitHeap is a min-heap with the worst hit on top.
type hitHeap []Hit

func (h hitHeap) Len() int           { return len(h) }
func (h hitHeap) Less(i, j int) bool { return worse(h[i], h[j]) }
func (h hitHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *hitHeap) Push(x any)        { *h = append(*h, x.(Hit)) }
func (h *hitHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
