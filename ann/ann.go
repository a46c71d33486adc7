// Package ann implements the pluggable ANN index wrapper: a recipe-string
// factory over a flat exhaustive index, an IVF+PQ index and an
// IVF+HNSW-coarse-quantizer index, plus the coarse-then-exact refine layer
// that wraps any of them.
package ann

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/deepfabric/vectodb/bitmap"
	"github.com/deepfabric/vectodb/internal/compress"
	"github.com/deepfabric/vectodb/internal/knn"
	"github.com/deepfabric/vectodb/metric"
)

// Index is the common interface every recipe produces.
type Index interface {
	// Train fits whatever the recipe needs (coarse centroids, PQ
	// codebooks) from a sample of vectors. Flat's Train is a no-op.
	Train(vectors []float32) error
	// Add appends records. Train must have already succeeded unless the
	// index does not require training (Flat).
	Add(ids []int64, vectors []float32) error
	// Search returns the k best candidates for query.
	Search(query []float32, k int, filter *bitmap.Bitmap) ([]knn.Candidate, error)
	// NTotal returns the number of records added.
	NTotal() int
	// IsTrained reports whether Train has succeeded (always true for Flat).
	IsTrained() bool
	// SetParameters applies a query-time parameter string, e.g.
	// "nprobe=8,ht=0,k_factor=1,max_codes=0".
	SetParameters(params string) error
	// Serialize encodes the index to a self-contained byte slice.
	Serialize() ([]byte, error)
	// Deserialize replaces the index's state with a previously serialized one.
	Deserialize(data []byte) error
	// Recipe returns the recipe string the index was constructed from.
	Recipe() string
}

// Kind enumerates the families of index a recipe string can select.
type Kind int

const (
	// KindFlat is exhaustive, untrained, exact search.
	KindFlat Kind = iota
	// KindIVFPQ is a k-means coarse quantizer over product-quantized residuals.
	KindIVFPQ
	// KindIVFHNSW is a graph coarse quantizer over inverted lists of uncompressed vectors.
	KindIVFHNSW
)

// Recipe is a parsed recipe string.
type Recipe struct {
	Kind    Kind
	NLists  int // coarse centroid count (IVF recipes only)
	PQM     int // PQ subvector count (IVFPQ only)
	PQK     int // PQ centroids per subspace (IVFPQ only); defaults to 256
	raw     string
}

var (
	ivfPQPattern    = regexp.MustCompile(`^IVF(\d+),PQ(\d+)$`)
	ivfHNSWPattern  = regexp.MustCompile(`^IVF(\d+)_HNSW\d+,Flat$`)
)

// ParseRecipe parses a recipe string of the form "Flat", "IVFk,PQm" or
// "IVFk_HNSW32,Flat".
func ParseRecipe(s string) (Recipe, error) {
	if s == "Flat" {
		return Recipe{Kind: KindFlat, raw: s}, nil
	}
	if m := ivfPQPattern.FindStringSubmatch(s); m != nil {
		nlists, _ := strconv.Atoi(m[1])
		pqm, _ := strconv.Atoi(m[2])
		return Recipe{Kind: KindIVFPQ, NLists: nlists, PQM: pqm, PQK: 256, raw: s}, nil
	}
	if m := ivfHNSWPattern.FindStringSubmatch(s); m != nil {
		nlists, _ := strconv.Atoi(m[1])
		return Recipe{Kind: KindIVFHNSW, NLists: nlists, raw: s}, nil
	}
	return Recipe{}, fmt.Errorf("ann: unrecognized recipe %q", s)
}

// New constructs an untrained Index of the kind named by recipe, for
// vectors of dimension dim scored under kind/arg. compression selects the
// algorithm Serialize uses to frame the index's on-disk artifact.
func New(recipe string, dim int, kind metric.Kind, arg float32, compression compress.Type) (Index, error) {
	r, err := ParseRecipe(recipe)
	if err != nil {
		return nil, err
	}
	switch r.Kind {
	case KindFlat:
		return newFlat(dim, kind, arg, compression), nil
	case KindIVFPQ:
		return newIVFPQ(r, dim, kind, arg, compression)
	case KindIVFHNSW:
		return newIVFHNSW(r, dim, kind, arg, compression)
	default:
		return nil, fmt.Errorf("ann: unsupported recipe kind %v", r.Kind)
	}
}
