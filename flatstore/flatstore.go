// Package flatstore implements the append-only, memory-mapped table of
// (external id, vector) pairs that backs both the coordinator's live tail
// and the refine layer's exact-recompute table.
package flatstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	"github.com/deepfabric/vectodb/internal/mmap"
	"github.com/deepfabric/vectodb/metric"
	"github.com/deepfabric/vectodb/xid"
)

// DefaultCapacity is the number of records a freshly created store
// pre-allocates room for.
const DefaultCapacity = 1024

// ErrFormat is wrapped by errors describing a corrupt or unrecognized
// on-disk header.
var ErrFormat = errors.New("flatstore: format error")

// ErrDimMismatch is returned when a vector's length disagrees with the
// store's configured dimension.
var ErrDimMismatch = errors.New("flatstore: dimension mismatch")

// Store is a memory-mapped, append-only table of records. It is safe for
// concurrent readers; writers must hold Store's own lock, which callers
// reach via Add/Remove/Reserve — there is no separate locking API because
// the coordinator (package vectodb) is expected to serialize writers at a
// higher level and only needs Store to be internally consistent under
// concurrent *readers*.
type Store struct {
	mu sync.RWMutex

	dir  string
	dim  int
	kind metric.Kind
	arg  float32

	vecs *mmap.Mapping // base.fvecs: header + capacity*dim*4 bytes
	ids  *mmap.Mapping // base.xids: capacity*8 bytes
	mut  *mmap.Mapping // base.mutation: 8 bytes

	ntotal   uint64
	capacity uint64

	idView  []int64
	vecFlat []float32 // len == capacity*dim, view into vecs past the header
}

func vecsPath(dir string) string { return filepath.Join(dir, "base.fvecs") }
func idsPath(dir string) string  { return filepath.Join(dir, "base.xids") }
func mutPath(dir string) string  { return filepath.Join(dir, "base.mutation") }

// Open opens an existing store in dir, or creates one if dir has no
// base.fvecs yet. dim, kind and arg are required for a fresh store and are
// validated against the persisted header for an existing one: a dim
// mismatch returns ErrDimMismatch, a metric mismatch ErrFormat.
func Open(dir string, dim int, kind metric.Kind, arg float32, initialCapacity uint64) (*Store, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("flatstore: invalid dimension %d", dim)
	}
	if initialCapacity == 0 {
		initialCapacity = DefaultCapacity
	}

	if _, err := os.Stat(vecsPath(dir)); errors.Is(err, os.ErrNotExist) {
		if err := create(dir, dim, kind, arg, initialCapacity); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("flatstore: stat %s: %w", vecsPath(dir), err)
	}

	s, err := openExisting(dir)
	if err != nil {
		return nil, err
	}
	if s.dim != dim {
		s.Close()
		return nil, fmt.Errorf("%w: store has dim %d, requested %d", ErrDimMismatch, s.dim, dim)
	}
	if s.kind != kind || s.arg != arg {
		s.Close()
		return nil, fmt.Errorf("%w: store has metric %v (arg %v), requested %v (arg %v)", ErrFormat, s.kind, s.arg, kind, arg)
	}
	return s, nil
}

func create(dir string, dim int, kind metric.Kind, arg float32, capacity uint64) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("flatstore: mkdir %s: %w", dir, err)
	}

	vecsSize := headerSize + int(capacity)*dim*4
	if err := createSized(vecsPath(dir), vecsSize); err != nil {
		return err
	}
	if err := createSized(idsPath(dir), int(capacity)*8); err != nil {
		return err
	}
	if err := createSized(mutPath(dir), 8); err != nil {
		return err
	}

	f, err := os.OpenFile(vecsPath(dir), os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	buf := encodeHeader(header{
		Dim:        int32(dim),
		MetricKind: metricKindOf(kind),
		MetricArg:  arg,
		NTotal:     0,
		Capacity:   capacity,
	})
	if _, err := f.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("flatstore: write header: %w", err)
	}
	return nil
}

func createSized(path string, size int) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("flatstore: create %s: %w", path, err)
	}
	defer f.Close()
	if err := f.Truncate(int64(size)); err != nil {
		return fmt.Errorf("flatstore: truncate %s: %w", path, err)
	}
	return nil
}

func openExisting(dir string) (*Store, error) {
	vecs, err := mmap.OpenWritable(vecsPath(dir))
	if err != nil {
		return nil, fmt.Errorf("flatstore: open %s: %w", vecsPath(dir), err)
	}
	ids, err := mmap.OpenWritable(idsPath(dir))
	if err != nil {
		vecs.Close()
		return nil, fmt.Errorf("flatstore: open %s: %w", idsPath(dir), err)
	}
	mut, err := mmap.OpenWritable(mutPath(dir))
	if err != nil {
		vecs.Close()
		ids.Close()
		return nil, fmt.Errorf("flatstore: open %s: %w", mutPath(dir), err)
	}

	if vecs.Size() < headerSize {
		vecs.Close()
		ids.Close()
		mut.Close()
		return nil, fmt.Errorf("%w: %s smaller than header", ErrFormat, vecsPath(dir))
	}
	h, err := decodeHeader(vecs.Bytes()[:headerSize])
	if err != nil {
		vecs.Close()
		ids.Close()
		mut.Close()
		return nil, err
	}
	if vecs.Size() < headerSize+int(h.Capacity)*int(h.Dim)*4 || ids.Size() < int(h.Capacity)*8 || h.NTotal > h.Capacity {
		vecs.Close()
		ids.Close()
		mut.Close()
		return nil, fmt.Errorf("%w: %s or %s too small for header capacity %d", ErrFormat, vecsPath(dir), idsPath(dir), h.Capacity)
	}

	s := &Store{
		dir:      dir,
		dim:      int(h.Dim),
		kind:     metric.Kind(h.MetricKind),
		arg:      h.MetricArg,
		vecs:     vecs,
		ids:      ids,
		mut:      mut,
		ntotal:   h.NTotal,
		capacity: h.Capacity,
	}
	s.remapViews()
	return s, nil
}

// remapViews recomputes the zero-copy slices over the current mmap
// contents. Must be called with mu held for writing whenever vecs/ids are
// remapped, and once at Open time.
func (s *Store) remapViews() {
	if s.capacity == 0 {
		s.idView = nil
		s.vecFlat = nil
		return
	}
	idBytes := s.ids.Bytes()
	s.idView = unsafe.Slice((*int64)(unsafe.Pointer(&idBytes[0])), s.capacity)

	vecBytes := s.vecs.Bytes()[headerSize:]
	s.vecFlat = unsafe.Slice((*float32)(unsafe.Pointer(&vecBytes[0])), int(s.capacity)*s.dim)
}

// Close unmaps all three backing files.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	for _, m := range []*mmap.Mapping{s.vecs, s.ids, s.mut} {
		if m == nil {
			continue
		}
		if cerr := m.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Dim returns the vector dimension.
func (s *Store) Dim() int { return s.dim }

// Metric returns the fixed metric kind and arg this store was created with.
func (s *Store) Metric() (metric.Kind, float32) { return s.kind, s.arg }

// NTotal returns the number of logical records, including tombstoned ones.
func (s *Store) NTotal() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ntotal
}

// Capacity returns the number of records currently allocated on disk.
func (s *Store) Capacity() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.capacity
}

// Reserve grows the backing files, if needed, so that at least n more
// records can be appended without a further resize. It is a no-op if
// capacity already covers ntotal+n.
func (s *Store) Reserve(n uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reserveLocked(n)
}

func (s *Store) reserveLocked(n uint64) error {
	need := s.ntotal + n
	if need <= s.capacity {
		return nil
	}
	newCap := nextCapacity(s.capacity, need)

	if err := s.vecs.Remap(headerSize + int(newCap)*s.dim*4); err != nil {
		return fmt.Errorf("flatstore: grow %s: %w", vecsPath(s.dir), err)
	}
	if err := s.ids.Remap(int(newCap) * 8); err != nil {
		return fmt.Errorf("flatstore: grow %s: %w", idsPath(s.dir), err)
	}
	s.capacity = newCap
	putHeader(s.vecs.Bytes(), header{
		Dim: int32(s.dim), MetricKind: metricKindOf(s.kind), MetricArg: s.arg,
		NTotal: s.ntotal, Capacity: s.capacity,
	})
	s.remapViews()
	return nil
}

// AddWithIDs appends len(ids) records, growing the store first if needed.
// vectors must have len(ids)*Dim() elements, row-major. Returns the
// ordinal assigned to the first appended record.
func (s *Store) AddWithIDs(ids []int64, vectors []float32) (firstOrdinal uint64, err error) {
	if len(ids) == 0 {
		return 0, nil
	}
	if len(vectors) != len(ids)*s.dim {
		return 0, fmt.Errorf("%w: got %d floats for %d records of dim %d", ErrDimMismatch, len(vectors), len(ids), s.dim)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reserveLocked(uint64(len(ids))); err != nil {
		return 0, err
	}

	start := s.ntotal
	copy(s.idView[start:start+uint64(len(ids))], ids)
	copy(s.vecFlat[int(start)*s.dim:], vectors)
	s.ntotal += uint64(len(ids))

	putHeader(s.vecs.Bytes(), header{
		Dim: int32(s.dim), MetricKind: metricKindOf(s.kind), MetricArg: s.arg,
		NTotal: s.ntotal, Capacity: s.capacity,
	})

	if err := s.vecs.Sync(false); err != nil {
		return 0, fmt.Errorf("flatstore: sync %s: %w", vecsPath(s.dir), err)
	}
	if err := s.ids.Sync(false); err != nil {
		return 0, fmt.Errorf("flatstore: sync %s: %w", idsPath(s.dir), err)
	}

	return start, nil
}

// RemoveIDs tombstones every record whose external id is in xids, by
// stamping xid.Deleted over its slot. Removal does not reclaim space or
// slide later records; compaction happens only during Sync in the
// coordinator. Returns the number of ids actually found and removed.
func (s *Store) RemoveIDs(xids map[int64]struct{}) (removed int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := uint64(0); i < s.ntotal; i++ {
		if _, ok := xids[s.idView[i]]; ok {
			s.idView[i] = xid.Deleted
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	if err := s.ids.Sync(true); err != nil {
		return removed, fmt.Errorf("flatstore: sync %s: %w", idsPath(s.dir), err)
	}
	return removed, nil
}

// Reconstruct returns a copy of the vector at ordinal i.
func (s *Store) Reconstruct(i uint64) ([]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i >= s.ntotal {
		return nil, fmt.Errorf("flatstore: ordinal %d out of range [0,%d)", i, s.ntotal)
	}
	out := make([]float32, s.dim)
	copy(out, s.vecFlat[int(i)*s.dim:int(i+1)*s.dim])
	return out, nil
}

// IDAt returns the external id stored at ordinal i.
func (s *Store) IDAt(i uint64) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idView[i]
}

// Len implements knn.Source: the number of ordinals currently populated.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int(s.ntotal)
}

// At implements knn.Source. The returned slice aliases the mmap and is
// only valid until the next structural mutation (Add/Reserve).
func (s *Store) At(i int) (int64, []float32) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idView[i], s.vecFlat[i*s.dim : (i+1)*s.dim]
}

// ComputeDistanceSubset scores query against exactly the ordinals in idxs,
// in order, using the store's fixed metric.
func (s *Store) ComputeDistanceSubset(query []float32, idxs []uint64) ([]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]float32, len(idxs))
	for i, ord := range idxs {
		if ord >= s.ntotal {
			return nil, fmt.Errorf("flatstore: ordinal %d out of range [0,%d)", ord, s.ntotal)
		}
		out[i] = metric.Score(s.kind, query, s.vecFlat[int(ord)*s.dim:int(ord+1)*s.dim])
	}
	return out, nil
}

// MutationCounter returns the current value of base.mutation.
func (s *Store) MutationCounter() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return mutationValue(s.mut.Bytes())
}

// BumpMutation increments and persists base.mutation, msync'd async since
// it is advisory (used to decide whether a resident index needs a rebuild,
// not for correctness of the data itself).
func (s *Store) BumpMutation() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := mutationValue(s.mut.Bytes()) + 1
	putMutationValue(s.mut.Bytes(), v)
	if err := s.mut.Sync(true); err != nil {
		return v, fmt.Errorf("flatstore: sync %s: %w", mutPath(s.dir), err)
	}
	return v, nil
}
