package ann

import (
	"fmt"
	"sort"
	"sync"

	"github.com/deepfabric/vectodb/bitmap"
	"github.com/deepfabric/vectodb/flatstore"
	"github.com/deepfabric/vectodb/internal/knn"
	"github.com/deepfabric/vectodb/metric"
)

// Refined wraps a coarse Index with an exact-recompute pass: Search asks
// the coarse index for k*KFactor candidates, reconstructs each from a
// flatstore-backed raw-vector table, rescales to the true metric score and
// re-heaps to the requested k. This turns an approximate coarse ranking
// (e.g. IVFPQ's ADC distance) into the index's configured exact metric.
type Refined struct {
	mu      sync.RWMutex
	base    Index
	store   *flatstore.Store
	kind    metric.Kind
	arg     float32
	kFactor float64
	ordinal map[int64]uint64
}

// NewRefined constructs a Refined wrapper. kFactor <= 0 defaults to 1
// (no over-fetch; the coarse ranking is trusted as-is but still
// rescored under the exact metric).
func NewRefined(base Index, store *flatstore.Store, kFactor float64) *Refined {
	if kFactor <= 0 {
		kFactor = 1
	}
	kind, arg := store.Metric()
	return &Refined{
		base: base, store: store, kind: kind, arg: arg,
		kFactor: kFactor, ordinal: make(map[int64]uint64),
	}
}

func (r *Refined) Train(vectors []float32) error { return r.base.Train(vectors) }
func (r *Refined) IsTrained() bool                { return r.base.IsTrained() }
func (r *Refined) Recipe() string                 { return r.base.Recipe() }
func (r *Refined) NTotal() int                    { return r.base.NTotal() }

// SetParameters consumes k_factor for the refine layer itself and forwards
// the full string to the base index (nprobe, ht, max_codes apply there).
func (r *Refined) SetParameters(s string) error {
	p, err := parseParams(defaultQueryParams(), s)
	if err != nil {
		return err
	}
	if p.KFactor > 0 {
		r.mu.Lock()
		r.kFactor = p.KFactor
		r.mu.Unlock()
	}
	return r.base.SetParameters(s)
}

// Add appends to both the coarse index and the refine table, keeping
// their ordinals in lockstep.
func (r *Refined) Add(ids []int64, vectors []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.base.Add(ids, vectors); err != nil {
		return err
	}
	first, err := r.store.AddWithIDs(ids, vectors)
	if err != nil {
		return fmt.Errorf("ann: refine: %w", err)
	}
	for i, id := range ids {
		r.ordinal[id] = first + uint64(i)
	}
	return nil
}

// Search fetches k*KFactor coarse candidates, recomputes their exact
// score against the refine table, and returns the best k best-first.
func (r *Refined) Search(query []float32, k int, filter *bitmap.Bitmap) ([]knn.Candidate, error) {
	if k <= 0 {
		return nil, nil
	}
	r.mu.RLock()
	kFactor := r.kFactor
	r.mu.RUnlock()
	candK := int(float64(k) * kFactor)
	if candK < k {
		candK = k
	}

	coarse, err := r.base.Search(query, candK, filter)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	rescored := make([]knn.Candidate, 0, len(coarse))
	for _, c := range coarse {
		ord, ok := r.ordinal[c.Key]
		if !ok {
			continue
		}
		vec, err := r.store.Reconstruct(ord)
		if err != nil {
			continue
		}
		rescored = append(rescored, knn.Candidate{Key: c.Key, Score: metric.Score(r.kind, query, vec)})
	}
	r.mu.RUnlock()

	higherBetter := r.kind.HigherIsBetter()
	sort.Slice(rescored, func(i, j int) bool {
		if higherBetter {
			return rescored[i].Score > rescored[j].Score
		}
		return rescored[i].Score < rescored[j].Score
	})
	if k > len(rescored) {
		k = len(rescored)
	}
	return rescored[:k], nil
}

func (r *Refined) Serialize() ([]byte, error) { return r.base.Serialize() }
func (r *Refined) Deserialize(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.base.Deserialize(data)
}
