package vectodb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/deepfabric/vectodb/ann"
	"github.com/deepfabric/vectodb/bitmap"
	"github.com/deepfabric/vectodb/flatstore"
	"github.com/deepfabric/vectodb/internal/knn"
	"github.com/deepfabric/vectodb/internal/resource"
	"github.com/deepfabric/vectodb/metric"
	"github.com/deepfabric/vectodb/xid"
)

// maxTrainingVectors bounds how many live vectors Sync samples to train a
// fresh resident index, matching the source's min(ntotal, 200_000).
const maxTrainingVectors = 200000

// refineSubdir holds the refine layer's raw-vector table, rebuilt fresh by
// every Sync. It is not part of the directory protocol's external file
// contract (only base.* and the *.index artifact are); it is an
// implementation-internal accelerator the refine layer owns, discarded and
// rebuilt wholesale at every Sync.
const refineSubdir = "refine"

// compactTmpSubdir holds the side copy Sync builds a compacted store in
// before promoting it over the primary base.* files. Left behind only if
// a previous Sync was interrupted mid-promotion; Open and Reset clear it.
const compactTmpSubdir = ".sync-tmp"

// DB is the user-visible coordinator: it owns the flat store, the optional
// resident ANN index, the xid-to-ordinal map, and the working directory.
//
// Its lock hierarchy, coarsest to finest:
//   - syncGate serializes concurrent Sync calls.
//   - baseMu serializes mutating base-file operations (Add, Remove, and
//     the compact-and-swap phase of Sync).
//   - indexRW guards the resident index pointer, the indexed/tail boundary,
//     and the xid-to-ordinal map; held shared by Search, exclusive by
//     Add/Remove/Sync's swap step.
//
// flat_rw from the source's four-lock model is realized one layer down, as
// flatstore.Store's own internal mutex — the store is already safe for
// concurrent readers against a single writer without a further DB-level lock.
type DB struct {
	cfg Config
	dir string
	dim int

	syncGate *resource.SyncGate
	baseMu   sync.Mutex
	indexRW  sync.RWMutex

	store *flatstore.Store

	resident      ann.Index
	refineStore   *flatstore.Store // non-nil only while resident is *ann.Refined
	indexedNTotal uint64           // ordinals [0, indexedNTotal) are covered by resident
	residentMut   uint64           // store.MutationCounter() value as of the last successful Sync
	residentName  string           // current *.index artifact filename, "" if none
	syncGen       uint64           // monotonic per-Sync counter, used only for artifact naming

	xid2num map[int64]uint64

	closed bool
}

// Open opens an existing working directory or creates one, ready to serve.
func Open(ctx context.Context, dir string, dim int, opts ...Option) (*DB, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("vectodb: invalid dimension %d", dim)
	}
	cfg := applyOptions(opts)
	if cfg.Metric < metric.InnerProduct || cfg.Metric > metric.Extra || (cfg.Metric == metric.Extra && cfg.Extra == nil) {
		return nil, &UnsupportedMetricError{Kind: cfg.Metric}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &IOError{Op: "mkdir", Path: dir, cause: err}
	}
	// A prior Sync that crashed between building its side copies and
	// promoting them leaves these behind; they are never partially
	// applied to the primary base.* files, so it is always safe to drop them.
	os.RemoveAll(filepath.Join(dir, compactTmpSubdir))
	os.RemoveAll(filepath.Join(dir, refineSubdir+".new"))

	store, err := flatstore.Open(dir, dim, cfg.Metric, cfg.MetricArg, cfg.InitialCapacity)
	if err != nil {
		return nil, translateError("open", dir, err)
	}

	db := &DB{
		cfg:      cfg,
		dir:      dir,
		dim:      dim,
		syncGate: resource.NewSyncGate(),
		store:    store,
		xid2num:  make(map[int64]uint64),
	}

	n := store.Len()
	for i := 0; i < n; i++ {
		id, _ := store.At(i)
		if xid.IsDeleted(id) {
			continue
		}
		db.xid2num[id] = uint64(i)
	}

	name, recipe, syncGen, _, ok, err := latestIndexArtifact(dir)
	if err != nil {
		store.Close()
		return nil, translateError("readdir", dir, err)
	}
	if ok {
		if err := db.loadResident(name, recipe, syncGen); err != nil {
			store.Close()
			return nil, err
		}
	}

	cfg.Logger.DebugContext(ctx, "opened database", "dir", dir, "dim", dim, "ntotal", store.Len(), "resident", ok)
	return db, nil
}

// loadResident deserializes the newest on-disk index artifact and wires it
// up as the resident index. residentMut is seeded from the store's current
// mutation counter rather than anything recorded in the artifact name (the
// name's generation number is an artifact-naming counter, syncGen, not a
// mutation count) — conservative in that a crash between a Remove and the
// next Sync may understate staleness by one AllowAddGap cycle, never more.
func (db *DB) loadResident(name, recipe string, syncGen uint64) error {
	data, err := os.ReadFile(filepath.Join(db.dir, name))
	if err != nil {
		return translateError("read", filepath.Join(db.dir, name), err)
	}
	idx, err := ann.New(recipe, db.dim, db.cfg.Metric, db.cfg.MetricArg, db.cfg.ArtifactCompression)
	if err != nil {
		return err
	}
	if err := idx.Deserialize(data); err != nil {
		return translateError("deserialize", name, err)
	}

	r, err := ann.ParseRecipe(recipe)
	if err != nil {
		return err
	}
	if r.Kind == ann.KindFlat {
		db.resident = idx
		db.refineStore = nil
	} else {
		refineStore, err := flatstore.Open(filepath.Join(db.dir, refineSubdir), db.dim, db.cfg.Metric, db.cfg.MetricArg, db.cfg.InitialCapacity)
		if err != nil {
			return translateError("open", refineSubdir, err)
		}
		refined := ann.NewRefined(idx, refineStore, 1)
		if db.cfg.QueryParams != "" {
			if err := refined.SetParameters(db.cfg.QueryParams); err != nil {
				refineStore.Close()
				return err
			}
		}
		db.resident = refined
		db.refineStore = refineStore
	}
	db.indexedNTotal = uint64(idx.NTotal())
	db.residentMut = db.store.MutationCounter()
	db.residentName = name
	db.syncGen = syncGen
	return nil
}

// Close releases the store and any resident refine-layer resources.
func (db *DB) Close() error {
	db.baseMu.Lock()
	defer db.baseMu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true

	var err error
	if cerr := db.store.Close(); cerr != nil {
		err = translateError("close", db.dir, cerr)
	}
	if db.refineStore != nil {
		if cerr := db.refineStore.Close(); err == nil && cerr != nil {
			err = translateError("close", refineSubdir, cerr)
		}
	}
	return err
}

// Total returns the current logical record count, including tombstoned
// slots not yet reclaimed by Sync.
func (db *DB) Total() int {
	return db.store.Len()
}

// Add appends len(ids) vectors, keyed by their external ids. Duplicate ids
// against existing records are not checked; the caller is responsible for
// avoiding collisions.
func (db *DB) Add(ctx context.Context, ids []int64, vectors []float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(vectors) != len(ids)*db.dim {
		return fmt.Errorf("vectodb: add: got %d floats for %d records of dim %d", len(vectors), len(ids), db.dim)
	}

	db.baseMu.Lock()
	defer db.baseMu.Unlock()
	if db.closed {
		return ErrClosed
	}

	first, err := db.store.AddWithIDs(ids, vectors)
	if err != nil {
		err = translateError("add", db.dir, err)
		db.cfg.Logger.LogAdd(ctx, len(ids), err)
		return err
	}

	db.indexRW.Lock()
	for i, id := range ids {
		db.xid2num[id] = first + uint64(i)
	}
	db.indexRW.Unlock()

	db.cfg.Logger.LogAdd(ctx, len(ids), nil)
	return nil
}

// Remove logically deletes every id present in the store, stamping its
// slot with xid.Deleted and bumping the mutation counter. It does not
// reclaim space; that happens at the next Sync.
func (db *DB) Remove(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	db.baseMu.Lock()
	defer db.baseMu.Unlock()
	if db.closed {
		return 0, ErrClosed
	}

	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	removed, err := db.store.RemoveIDs(set)
	if err != nil {
		err = translateError("remove", db.dir, err)
		db.cfg.Logger.LogRemove(ctx, len(ids), removed, err)
		return removed, err
	}
	if removed > 0 {
		if _, err := db.store.BumpMutation(); err != nil {
			err = translateError("remove", db.dir, err)
			db.cfg.Logger.LogRemove(ctx, len(ids), removed, err)
			return removed, err
		}
	}

	db.indexRW.Lock()
	for id := range set {
		delete(db.xid2num, id)
	}
	db.indexRW.Unlock()

	db.cfg.Logger.LogRemove(ctx, len(ids), removed, nil)
	return removed, nil
}

// Reset clears the store back to an empty working directory: every base
// file, refine table and index artifact is removed and a fresh, empty
// store is created at the configured initial capacity (the source
// disagreed on whether reset should preserve file size; this
// implementation re-truncates to InitialCapacity, documented in DESIGN.md).
func (db *DB) Reset(ctx context.Context) error {
	db.baseMu.Lock()
	defer db.baseMu.Unlock()
	if db.closed {
		return ErrClosed
	}

	if err := db.store.Close(); err != nil {
		return translateError("close", db.dir, err)
	}
	if db.refineStore != nil {
		db.refineStore.Close()
		db.refineStore = nil
	}
	if err := ClearWorkDir(db.dir); err != nil {
		return err
	}
	os.RemoveAll(filepath.Join(db.dir, refineSubdir))
	os.RemoveAll(filepath.Join(db.dir, refineSubdir+".new"))
	os.RemoveAll(filepath.Join(db.dir, compactTmpSubdir))

	store, err := flatstore.Open(db.dir, db.dim, db.cfg.Metric, db.cfg.MetricArg, db.cfg.InitialCapacity)
	if err != nil {
		return translateError("open", db.dir, err)
	}

	db.indexRW.Lock()
	db.store = store
	db.resident = nil
	db.indexedNTotal = 0
	db.residentMut = 0
	db.residentName = ""
	db.syncGen = 0
	db.xid2num = make(map[int64]uint64)
	db.indexRW.Unlock()

	db.cfg.Logger.InfoContext(ctx, "reset database", "dir", db.dir)
	return nil
}

// Search returns the k best candidates for query, merging the resident
// index's results (if any) with an exhaustive scan of the tail of records
// added since the last Sync. filter, if non-nil, restricts results to
// records whose uid is a filter member.
func (db *DB) Search(ctx context.Context, query []float32, k int, filter *bitmap.Bitmap) ([]knn.Candidate, error) {
	if len(query) != db.dim {
		return nil, fmt.Errorf("vectodb: search: query has dim %d, want %d", len(query), db.dim)
	}
	if k <= 0 {
		return nil, nil
	}

	// Held for the whole search, not just the snapshot read: this is what
	// makes Sync's final store/resident swap (done under the write side of
	// indexRW) safe to pair with closing the superseded store — no Search
	// can be mid-read against a store that is concurrently unmapped.
	db.indexRW.RLock()
	defer db.indexRW.RUnlock()

	store := db.store
	resident := db.resident
	indexedUpTo := int(db.indexedNTotal)

	var out []knn.Candidate
	if resident == nil {
		out = knn.Search(store, query, knn.Params{
			K: k, MetricKind: db.cfg.Metric, MetricArg: db.cfg.MetricArg,
			Extra: db.cfg.Extra, Filter: filter, TopVectors: true,
		})
	} else {
		residentResults, err := resident.Search(query, k, filter)
		if err != nil {
			err = translateError("search", db.dir, err)
			db.cfg.Logger.LogSearch(ctx, 1, k, err)
			return nil, err
		}
		// The resident index still holds records removed since it was
		// built; Remove drops them from xid2num, so keep only ids still there.
		live := residentResults[:0]
		for _, c := range residentResults {
			if _, ok := db.xid2num[c.Key]; ok {
				live = append(live, c)
			}
		}
		tail := knn.Search(tailSource{store, indexedUpTo}, query, knn.Params{
			K: k, MetricKind: db.cfg.Metric, MetricArg: db.cfg.MetricArg,
			Extra: db.cfg.Extra, Filter: filter, TopVectors: true,
		})
		out = mergeCandidates(live, tail, k, db.cfg.Metric.HigherIsBetter())
	}

	db.cfg.Logger.LogSearch(ctx, 1, k, nil)
	return out, nil
}

// RangeSearch returns every live record whose score against query passes
// threshold (>= for metrics where higher is better, <= otherwise), scanning
// the base store exhaustively. Diagnostics and the refine layer are the
// only intended callers; it does not consult the resident index.
func (db *DB) RangeSearch(ctx context.Context, query []float32, threshold float32, filter *bitmap.Bitmap) ([]knn.Candidate, error) {
	if len(query) != db.dim {
		return nil, fmt.Errorf("vectodb: range search: query has dim %d, want %d", len(query), db.dim)
	}
	out := knn.SearchRange(db.store, query, db.cfg.Metric, filter, threshold)
	db.cfg.Logger.LogSearch(ctx, 1, len(out), nil)
	return out, nil
}

// Reconstruct returns a copy of the vector stored at ordinal i.
func (db *DB) Reconstruct(i uint64) ([]float32, error) {
	v, err := db.store.Reconstruct(i)
	if err != nil {
		return nil, translateError("reconstruct", db.dir, err)
	}
	return v, nil
}

// ComputeDistanceSubset scores query against exactly the ordinals in idxs,
// in the order given.
func (db *DB) ComputeDistanceSubset(query []float32, idxs []uint64) ([]float32, error) {
	out, err := db.store.ComputeDistanceSubset(query, idxs)
	if err != nil {
		return nil, translateError("compute_distance_subset", db.dir, err)
	}
	return out, nil
}

// tailSource adapts the suffix of a flatstore.Store, starting at ordinal
// from, to knn.Source.
type tailSource struct {
	store *flatstore.Store
	from  int
}

func (t tailSource) Len() int {
	n := t.store.Len() - t.from
	if n < 0 {
		return 0
	}
	return n
}

func (t tailSource) At(i int) (int64, []float32) { return t.store.At(i + t.from) }

func mergeCandidates(a, b []knn.Candidate, k int, higherBetter bool) []knn.Candidate {
	all := make([]knn.Candidate, 0, len(a)+len(b))
	all = append(all, a...)
	all = append(all, b...)
	sort.Slice(all, func(i, j int) bool {
		if higherBetter {
			return all[i].Score > all[j].Score
		}
		return all[i].Score < all[j].Score
	})
	if k > len(all) {
		k = len(all)
	}
	return all[:k]
}

// Sync compacts tombstoned records out of the base store and, once ntotal
// reaches Config.DesiredNtrain, (re)trains a resident index against the
// compacted snapshot. It early-returns without doing any work if ntotal is
// still below DesiredNtrain, or if the resident index is still valid for
// the current mutation generation and the un-indexed gap is under
// Config.AllowAddGap.
func (db *DB) Sync(ctx context.Context) error {
	if err := db.syncGate.Acquire(ctx); err != nil {
		return err
	}
	defer db.syncGate.Release()

	db.baseMu.Lock()
	if db.closed {
		db.baseMu.Unlock()
		return ErrClosed
	}

	ntotal := db.store.Len()
	if ntotal < db.cfg.DesiredNtrain {
		db.baseMu.Unlock()
		db.cfg.Logger.LogSync(ctx, ntotal, 0, false, nil)
		return nil
	}

	mutGen := db.store.MutationCounter()
	db.indexRW.RLock()
	haveResident := db.resident != nil
	residentMut := db.residentMut
	indexedUpTo := db.indexedNTotal
	db.indexRW.RUnlock()

	gap := uint64(ntotal) - indexedUpTo
	if haveResident && mutGen == residentMut && gap < uint64(db.cfg.AllowAddGap) {
		db.baseMu.Unlock()
		db.cfg.Logger.LogSync(ctx, ntotal, 0, false, nil)
		return nil
	}

	// Take the snapshot, then release baseMu before the compute-bound part:
	// Train (and, for IVF recipes, coarse-quantizer construction) is the
	// operation that "may be seconds", so it must not hold off Add/Remove
	// for its whole duration. Everything from here through Serialize works
	// against this snapshot copy and a side directory; db.store/db.resident
	// are untouched. baseMu is re-acquired below only for the short
	// compact-and-swap phase, which folds in whatever was added to
	// db.store after this snapshot before promoting.
	liveIDs, liveVecs := db.collectLive()
	snapshotTotal := ntotal
	db.baseMu.Unlock()

	tmpStore, tmpDir, err := db.buildCompactedStore(liveIDs, liveVecs)
	if err != nil {
		db.cfg.Logger.LogSync(ctx, ntotal, 0, false, err)
		return err
	}

	idx, err := ann.New(db.cfg.Recipe, db.dim, db.cfg.Metric, db.cfg.MetricArg, db.cfg.ArtifactCompression)
	if err != nil {
		tmpStore.Close()
		os.RemoveAll(tmpDir)
		db.cfg.Logger.LogSync(ctx, ntotal, 0, false, err)
		return err
	}

	ntrain := len(liveIDs)
	if ntrain > maxTrainingVectors {
		ntrain = maxTrainingVectors
	}
	if err := idx.Train(liveVecs[:ntrain*db.dim]); err != nil {
		tmpStore.Close()
		os.RemoveAll(tmpDir)
		db.cfg.Logger.LogSync(ctx, ntotal, ntrain, false, err)
		return err
	}

	r, _ := ann.ParseRecipe(db.cfg.Recipe)
	var newResident ann.Index
	var newRefineStore *flatstore.Store

	if r.Kind == ann.KindFlat {
		if err := idx.Add(liveIDs, liveVecs); err != nil {
			tmpStore.Close()
			os.RemoveAll(tmpDir)
			db.cfg.Logger.LogSync(ctx, ntotal, ntrain, false, err)
			return err
		}
		newResident = idx
	} else {
		refineDir := filepath.Join(db.dir, refineSubdir+".new")
		os.RemoveAll(refineDir)
		refineStore, err := flatstore.Open(refineDir, db.dim, db.cfg.Metric, db.cfg.MetricArg, uint64(len(liveIDs)))
		if err != nil {
			tmpStore.Close()
			os.RemoveAll(tmpDir)
			db.cfg.Logger.LogSync(ctx, ntotal, ntrain, false, err)
			return translateError("open", refineDir, err)
		}
		refined := ann.NewRefined(idx, refineStore, 1)
		if db.cfg.QueryParams != "" {
			if err := refined.SetParameters(db.cfg.QueryParams); err != nil {
				refineStore.Close()
				os.RemoveAll(refineDir)
				tmpStore.Close()
				os.RemoveAll(tmpDir)
				db.cfg.Logger.LogSync(ctx, ntotal, ntrain, false, err)
				return err
			}
		}
		if err := refined.Add(liveIDs, liveVecs); err != nil {
			refineStore.Close()
			os.RemoveAll(refineDir)
			tmpStore.Close()
			os.RemoveAll(tmpDir)
			db.cfg.Logger.LogSync(ctx, ntotal, ntrain, false, err)
			return err
		}
		newResident = refined
		newRefineStore = refineStore
	}

	data, err := idx.Serialize()
	if err != nil {
		tmpStore.Close()
		os.RemoveAll(tmpDir)
		if newRefineStore != nil {
			newRefineStore.Close()
			os.RemoveAll(filepath.Join(db.dir, refineSubdir+".new"))
		}
		db.cfg.Logger.LogSync(ctx, ntotal, ntrain, false, err)
		return err
	}
	name := indexArtifactName(db.cfg.Recipe, db.syncGen+1, uint64(ntrain))
	if err := writeIndexArtifactAtomic(db.dir, name, data); err != nil {
		tmpStore.Close()
		os.RemoveAll(tmpDir)
		if newRefineStore != nil {
			newRefineStore.Close()
			os.RemoveAll(filepath.Join(db.dir, refineSubdir+".new"))
		}
		db.cfg.Logger.LogSync(ctx, ntotal, ntrain, false, err)
		return err
	}

	// Re-acquire baseMu for the compact-and-swap phase: fold in every
	// record added to db.store after the snapshot (ordinal guarantee #4 —
	// the promoted store is the snapshot plus whatever arrived strictly
	// after it, never less), then hand off to promote, which additionally
	// takes indexRW for the pointer swap itself.
	db.baseMu.Lock()
	defer db.baseMu.Unlock()
	if db.closed {
		tmpStore.Close()
		os.RemoveAll(tmpDir)
		if newRefineStore != nil {
			newRefineStore.Close()
			os.RemoveAll(filepath.Join(db.dir, refineSubdir+".new"))
		}
		removeIndexArtifact(db.dir, name)
		db.cfg.Logger.LogSync(ctx, ntotal, ntrain, false, ErrClosed)
		return ErrClosed
	}

	tailIDs, tailVecs := db.collectTail(snapshotTotal)
	if len(tailIDs) > 0 {
		if _, err := tmpStore.AddWithIDs(tailIDs, tailVecs); err != nil {
			tmpStore.Close()
			os.RemoveAll(tmpDir)
			if newRefineStore != nil {
				newRefineStore.Close()
				os.RemoveAll(filepath.Join(db.dir, refineSubdir+".new"))
			}
			removeIndexArtifact(db.dir, name)
			err = translateError("compact", tmpDir, err)
			db.cfg.Logger.LogSync(ctx, ntotal, ntrain, false, err)
			return err
		}
	}
	allIDs := append(liveIDs, tailIDs...)

	if err := db.promote(tmpStore, tmpDir, newResident, newRefineStore, allIDs, len(liveIDs), name); err != nil {
		db.cfg.Logger.LogSync(ctx, ntotal, ntrain, false, err)
		return err
	}

	db.cfg.Logger.LogSync(ctx, ntotal, ntrain, true, nil)
	return nil
}

// collectTail scans db.store ordinals [from, Len()) and returns every
// non-tombstoned (id, vector) pair: the records added after an earlier
// snapshot taken at ordinal from. Caller must hold baseMu.
func (db *DB) collectTail(from int) (ids []int64, vectors []float32) {
	n := db.store.Len()
	for i := from; i < n; i++ {
		id, vec := db.store.At(i)
		if xid.IsDeleted(id) {
			continue
		}
		ids = append(ids, id)
		vectors = append(vectors, vec...)
	}
	return ids, vectors
}

// collectLive scans the store in ordinal order and returns every
// non-tombstoned (id, vector) pair, row-major.
func (db *DB) collectLive() (ids []int64, vectors []float32) {
	n := db.store.Len()
	ids = make([]int64, 0, n)
	vectors = make([]float32, 0, n*db.dim)
	for i := 0; i < n; i++ {
		id, vec := db.store.At(i)
		if xid.IsDeleted(id) {
			continue
		}
		ids = append(ids, id)
		vectors = append(vectors, vec...)
	}
	return ids, vectors
}

// buildCompactedStore writes liveIDs/liveVecs into a fresh store under a
// side directory of dir, leaving the primary base.* files untouched. The
// caller is responsible for either promoting it (via promote) or closing
// it and removing tmpDir on failure.
func (db *DB) buildCompactedStore(liveIDs []int64, liveVecs []float32) (store *flatstore.Store, tmpDir string, err error) {
	tmpDir = filepath.Join(db.dir, compactTmpSubdir)
	if err := os.RemoveAll(tmpDir); err != nil {
		return nil, "", fmt.Errorf("vectodb: clear stale compaction dir: %w", err)
	}
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, "", fmt.Errorf("vectodb: create compaction dir: %w", err)
	}
	capacity := uint64(len(liveIDs))
	if capacity < flatstore.DefaultCapacity {
		capacity = flatstore.DefaultCapacity
	}
	store, err = flatstore.Open(tmpDir, db.dim, db.cfg.Metric, db.cfg.MetricArg, capacity)
	if err != nil {
		os.RemoveAll(tmpDir)
		return nil, "", translateError("open", tmpDir, err)
	}
	if _, err := store.AddWithIDs(liveIDs, liveVecs); err != nil {
		store.Close()
		os.RemoveAll(tmpDir)
		return nil, "", translateError("compact", tmpDir, err)
	}
	return store, tmpDir, nil
}

// promote is Sync's only mutating step against live DB state: it closes
// the superseded store, renames the compacted-plus-folded-in side files
// into place, reopens the primary store, and swaps in the new resident
// index, all under indexRW so Search never observes a half-updated
// store/resident pair or a store that is concurrently being unmapped.
//
// allIDs is every record in the promoted store, in ordinal order: the
// trained snapshot (the first indexedCount entries, exactly what
// newResident covers) followed by whatever was folded in from the tail.
// indexedCount is kept separate from len(allIDs) so db.indexedNTotal marks
// only what the resident index actually indexes — the folded-in suffix
// becomes the new store's un-indexed tail, same as any ordinary Add.
func (db *DB) promote(tmpStore *flatstore.Store, tmpDir string, newResident ann.Index, newRefineStore *flatstore.Store, allIDs []int64, indexedCount int, name string) error {
	db.indexRW.Lock()
	defer db.indexRW.Unlock()

	oldStore := db.store
	oldResident := db.resident
	oldRefineStore := db.refineStore
	oldName := db.residentName
	_ = oldResident

	if err := oldStore.Close(); err != nil {
		return translateError("close", db.dir, err)
	}
	if err := tmpStore.Close(); err != nil {
		return translateError("close", tmpDir, err)
	}
	for _, base := range []string{baseVecsName, baseIDsName, baseMutName} {
		if err := os.Rename(filepath.Join(tmpDir, base), filepath.Join(db.dir, base)); err != nil {
			return translateError("promote", base, err)
		}
	}
	os.RemoveAll(tmpDir)

	newStore, err := flatstore.Open(db.dir, db.dim, db.cfg.Metric, db.cfg.MetricArg, db.cfg.InitialCapacity)
	if err != nil {
		return translateError("reopen", db.dir, err)
	}

	if newRefineStore != nil {
		finalRefineDir := filepath.Join(db.dir, refineSubdir)
		os.RemoveAll(finalRefineDir)
		if err := os.Rename(filepath.Join(db.dir, refineSubdir+".new"), finalRefineDir); err != nil {
			return translateError("promote", refineSubdir, err)
		}
	}

	xid2num := make(map[int64]uint64, len(allIDs))
	for i, id := range allIDs {
		xid2num[id] = uint64(i)
	}

	db.store = newStore
	db.resident = newResident
	db.refineStore = newRefineStore
	db.xid2num = xid2num
	db.indexedNTotal = uint64(indexedCount)
	db.residentMut = newStore.MutationCounter()
	db.residentName = name
	db.syncGen++

	if oldRefineStore != nil {
		oldRefineStore.Close()
	}
	removeIndexArtifact(db.dir, oldName)
	return nil
}
