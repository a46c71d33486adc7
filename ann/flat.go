package ann

import (
	"fmt"

	"github.com/deepfabric/vectodb/bitmap"
	"github.com/deepfabric/vectodb/internal/compress"
	"github.com/deepfabric/vectodb/internal/knn"
	"github.com/deepfabric/vectodb/metric"
)

// flatIndex is the exhaustive, exact "Flat" recipe: it simply holds every
// vector added and scans all of them on Search.
type flatIndex struct {
	dim         int
	kind        metric.Kind
	arg         float32
	compression compress.Type

	ids  []int64
	vecs []float32
}

func newFlat(dim int, kind metric.Kind, arg float32, compression compress.Type) *flatIndex {
	return &flatIndex{dim: dim, kind: kind, arg: arg, compression: compression}
}

func (f *flatIndex) Train([]float32) error { return nil }
func (f *flatIndex) IsTrained() bool       { return true }
func (f *flatIndex) Recipe() string        { return "Flat" }
func (f *flatIndex) NTotal() int           { return len(f.ids) }

func (f *flatIndex) Add(ids []int64, vectors []float32) error {
	if len(vectors) != len(ids)*f.dim {
		return fmt.Errorf("ann: flat add: dimension mismatch")
	}
	f.ids = append(f.ids, ids...)
	f.vecs = append(f.vecs, vectors...)
	return nil
}

func (f *flatIndex) Len() int { return len(f.ids) }

func (f *flatIndex) At(i int) (int64, []float32) {
	return f.ids[i], f.vecs[i*f.dim : (i+1)*f.dim]
}

func (f *flatIndex) Search(query []float32, k int, filter *bitmap.Bitmap) ([]knn.Candidate, error) {
	return knn.Search(f, query, knn.Params{
		K: k, MetricKind: f.kind, MetricArg: f.arg, Filter: filter, TopVectors: true,
	}), nil
}

func (f *flatIndex) SetParameters(string) error { return nil }

func (f *flatIndex) Serialize() ([]byte, error) {
	return encodeFlatArtifact(f), nil
}

func (f *flatIndex) Deserialize(data []byte) error {
	dim, kind, arg, ids, vecs, err := decodeFlatArtifact(data)
	if err != nil {
		return err
	}
	f.dim, f.kind, f.arg, f.ids, f.vecs = dim, kind, arg, ids, vecs
	return nil
}
