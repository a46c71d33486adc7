package vectodb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepfabric/vectodb/bitmap"
	"github.com/deepfabric/vectodb/internal/compress"
	"github.com/deepfabric/vectodb/metric"
	"github.com/deepfabric/vectodb/xid"
)

func openTestDB(t *testing.T, opts ...Option) *DB {
	t.Helper()
	db, err := Open(context.Background(), t.TempDir(), 2, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDB_OpenCreatesEmptyWorkDir(t *testing.T) {
	db := openTestDB(t)
	assert.Equal(t, 0, db.Total())
}

func TestDB_AddAndSearchExact(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	ids := []int64{xid.Encode(1, 0), xid.Encode(1, 1), xid.Encode(1, 2)}
	vecs := []float32{0, 0, 1, 0, 5, 5}
	require.NoError(t, db.Add(ctx, ids, vecs))
	assert.Equal(t, 3, db.Total())

	out, err := db.Search(ctx, []float32{0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, ids[0], out[0].Key)
	assert.Equal(t, ids[1], out[1].Key)
}

func TestDB_SearchRejectsWrongDim(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Search(context.Background(), []float32{0, 0, 0}, 1, nil)
	assert.Error(t, err)
}

func TestDB_SearchZeroKReturnsNil(t *testing.T) {
	db := openTestDB(t)
	out, err := db.Search(context.Background(), []float32{0, 0}, 0, nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestDB_RemoveTombstonesWithoutReclaiming(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	ids := []int64{xid.Encode(1, 0), xid.Encode(1, 1)}
	vecs := []float32{0, 0, 1, 1}
	require.NoError(t, db.Add(ctx, ids, vecs))

	removed, err := db.Remove(ctx, []int64{ids[0]})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	// Removal tombstones in place; it does not shrink Total until Sync compacts.
	assert.Equal(t, 2, db.Total())

	out, err := db.Search(ctx, []float32{0, 0}, 5, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, ids[1], out[0].Key)
}

func TestDB_SearchHonorsBitmapFilter(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	ids := []int64{xid.Encode(1, 0), xid.Encode(2, 0)}
	vecs := []float32{0, 0, 0, 0}
	require.NoError(t, db.Add(ctx, ids, vecs))

	bm := bitmap.New()
	bm.Add(2)
	out, err := db.Search(ctx, []float32{0, 0}, 5, bm)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, ids[1], out[0].Key)
}

func TestDB_SearchWithEmptyFilterReturnsNothing(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	ids := []int64{xid.Encode(1, 0)}
	vecs := []float32{0, 0}
	require.NoError(t, db.Add(ctx, ids, vecs))

	out, err := db.Search(ctx, []float32{0, 0}, 5, bitmap.New())
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDB_RangeSearchReturnsThresholdMembers(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	ids := []int64{xid.Encode(1, 0), xid.Encode(1, 1), xid.Encode(1, 2)}
	vecs := []float32{0, 0, 1, 0, 100, 100}
	require.NoError(t, db.Add(ctx, ids, vecs))

	out, err := db.RangeSearch(ctx, []float32{0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, out, 2)
	for _, c := range out {
		assert.NotEqual(t, ids[2], c.Key)
	}
}

func TestDB_ReconstructAndComputeDistanceSubset(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	ids := []int64{xid.Encode(1, 0), xid.Encode(1, 1)}
	vecs := []float32{3, 4, 0, 0}
	require.NoError(t, db.Add(ctx, ids, vecs))

	v, err := db.Reconstruct(0)
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 4}, v)

	scores, err := db.ComputeDistanceSubset([]float32{0, 0}, []uint64{0, 1})
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Greater(t, scores[0], scores[1])
}

func TestDB_SyncBelowDesiredNtrainIsNoop(t *testing.T) {
	db := openTestDB(t, WithRecipe("Flat"), WithDesiredNtrain(1000))
	ctx := context.Background()

	ids := []int64{xid.Encode(1, 0)}
	vecs := []float32{0, 0}
	require.NoError(t, db.Add(ctx, ids, vecs))

	require.NoError(t, db.Sync(ctx))
	assert.Nil(t, db.resident)
}

func TestDB_SyncCompactsTombstonedRecords(t *testing.T) {
	db := openTestDB(t, WithRecipe("Flat"), WithDesiredNtrain(1))
	ctx := context.Background()

	ids := []int64{xid.Encode(1, 0), xid.Encode(1, 1), xid.Encode(1, 2)}
	vecs := []float32{0, 0, 1, 1, 2, 2}
	require.NoError(t, db.Add(ctx, ids, vecs))

	removed, err := db.Remove(ctx, []int64{ids[1]})
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	require.NoError(t, db.Sync(ctx))

	// After Sync, the base store holds exactly the live records: no
	// tombstoned slot survives compaction.
	assert.Equal(t, 2, db.Total())
	require.NotNil(t, db.resident)
	assert.Equal(t, 2, db.resident.NTotal())

	out, err := db.Search(ctx, []float32{0, 0}, 5, nil)
	require.NoError(t, err)
	require.Len(t, out, 2)
	keys := []int64{out[0].Key, out[1].Key}
	assert.ElementsMatch(t, []int64{ids[0], ids[2]}, keys)
}

func TestDB_SearchMergesResidentAndTailAfterAddFollowingSync(t *testing.T) {
	db := openTestDB(t, WithRecipe("Flat"), WithDesiredNtrain(1))
	ctx := context.Background()

	ids := []int64{xid.Encode(1, 0), xid.Encode(1, 1)}
	vecs := []float32{0, 0, 1, 1}
	require.NoError(t, db.Add(ctx, ids, vecs))
	require.NoError(t, db.Sync(ctx))
	require.NotNil(t, db.resident)
	assert.Equal(t, uint64(2), db.indexedNTotal)

	tailID := xid.Encode(1, 2)
	require.NoError(t, db.Add(ctx, []int64{tailID}, []float32{2, 2}))
	// The tail record was appended after Sync built the resident index, so
	// it is only discoverable by the exhaustive tail scan Search merges in.
	assert.Equal(t, 3, db.Total())

	out, err := db.Search(ctx, []float32{2, 2}, 1, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, tailID, out[0].Key)
}

func TestDB_SyncReExportsUnchangedBelowAllowAddGap(t *testing.T) {
	db := openTestDB(t, WithRecipe("Flat"), WithDesiredNtrain(1), WithAllowAddGap(100))
	ctx := context.Background()

	ids := []int64{xid.Encode(1, 0), xid.Encode(1, 1)}
	vecs := []float32{0, 0, 1, 1}
	require.NoError(t, db.Add(ctx, ids, vecs))
	require.NoError(t, db.Sync(ctx))
	name := db.residentName

	require.NoError(t, db.Add(ctx, []int64{xid.Encode(1, 2)}, []float32{2, 2}))
	require.NoError(t, db.Sync(ctx))

	// Still under AllowAddGap, so Sync should not have retrained a new
	// artifact or advanced indexedNTotal.
	assert.Equal(t, name, db.residentName)
	assert.Equal(t, uint64(2), db.indexedNTotal)
}

func TestDB_ResetClearsEverything(t *testing.T) {
	db := openTestDB(t, WithRecipe("Flat"), WithDesiredNtrain(1))
	ctx := context.Background()

	ids := []int64{xid.Encode(1, 0), xid.Encode(1, 1)}
	vecs := []float32{0, 0, 1, 1}
	require.NoError(t, db.Add(ctx, ids, vecs))
	require.NoError(t, db.Sync(ctx))
	require.NotNil(t, db.resident)

	require.NoError(t, db.Reset(ctx))
	assert.Equal(t, 0, db.Total())
	assert.Nil(t, db.resident)
	assert.Equal(t, uint64(0), db.syncGen)
	assert.Empty(t, db.residentName)

	out, err := db.Search(ctx, []float32{0, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDB_CloseRejectsFurtherMutation(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Close())

	err := db.Add(context.Background(), []int64{xid.Encode(1, 0)}, []float32{0, 0})
	assert.ErrorIs(t, err, ErrClosed)

	_, err = db.Remove(context.Background(), []int64{xid.Encode(1, 0)})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDB_ReopenRestoresResidentIndex(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := Open(ctx, dir, 2, WithRecipe("Flat"), WithDesiredNtrain(1))
	require.NoError(t, err)

	ids := []int64{xid.Encode(1, 0), xid.Encode(1, 1)}
	vecs := []float32{0, 0, 1, 1}
	require.NoError(t, db.Add(ctx, ids, vecs))
	require.NoError(t, db.Sync(ctx))
	require.NoError(t, db.Close())

	db2, err := Open(ctx, dir, 2, WithRecipe("Flat"), WithDesiredNtrain(1))
	require.NoError(t, err)
	defer db2.Close()

	require.NotNil(t, db2.resident)
	assert.Equal(t, 2, db2.Total())

	out, err := db2.Search(ctx, []float32{0, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, ids[0], out[0].Key)
}

func TestDB_AddRejectsLengthMismatch(t *testing.T) {
	db := openTestDB(t)
	err := db.Add(context.Background(), []int64{xid.Encode(1, 0)}, []float32{0, 0, 0})
	assert.Error(t, err)
}

func TestDB_InnerProductMetricRanksByDotProduct(t *testing.T) {
	db := openTestDB(t, WithMetric(metric.InnerProduct, 0, nil))
	ctx := context.Background()

	ids := []int64{xid.Encode(1, 0), xid.Encode(1, 1)}
	vecs := []float32{1, 0, 0, 1}
	require.NoError(t, db.Add(ctx, ids, vecs))

	out, err := db.Search(ctx, []float32{1, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, ids[0], out[0].Key)
}

func TestDB_WithArtifactCompressionRoundTripsThroughReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := Open(ctx, dir, 2, WithRecipe("Flat"), WithDesiredNtrain(1), WithArtifactCompression(compress.LZ4))
	require.NoError(t, err)

	ids := []int64{xid.Encode(1, 0), xid.Encode(1, 1)}
	vecs := []float32{0, 0, 1, 1}
	require.NoError(t, db.Add(ctx, ids, vecs))
	require.NoError(t, db.Sync(ctx))
	require.NoError(t, db.Close())

	db2, err := Open(ctx, dir, 2, WithRecipe("Flat"), WithDesiredNtrain(1), WithArtifactCompression(compress.LZ4))
	require.NoError(t, err)
	defer db2.Close()
	require.NotNil(t, db2.resident)
	assert.Equal(t, 2, db2.resident.NTotal())
}
