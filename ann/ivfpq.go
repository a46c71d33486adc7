package ann

import (
	"fmt"
	"sort"

	"github.com/deepfabric/vectodb/ann/pq"
	"github.com/deepfabric/vectodb/bitmap"
	"github.com/deepfabric/vectodb/internal/compress"
	"github.com/deepfabric/vectodb/internal/kmeans"
	"github.com/deepfabric/vectodb/internal/knn"
	"github.com/deepfabric/vectodb/metric"
	"github.com/deepfabric/vectodb/xid"
)

// ivfList is one inverted list's posting: the external ids assigned to
// this coarse centroid and their PQ-encoded residuals.
type ivfList struct {
	ids   []int64
	codes []byte // len(ids)*pqM bytes, row-major
}

// ivfpqIndex implements the "IVFk,PQm" recipe: a k-means coarse quantizer
// whose residuals are product-quantized. Ranking at Search time is always
// by squared-L2 asymmetric distance on the residual, regardless of the
// index's configured metric — the refine layer recomputes the exact score
// under the true metric afterward, so the coarse ranking only needs to
// produce a good candidate set, not the final order.
type ivfpqIndex struct {
	dim    int
	kind   metric.Kind
	arg    float32
	nlists int
	pqM    int
	pqK    int

	compression compress.Type
	centroids   []float32 // nlists*dim
	quant       *pq.Quantizer
	lists       []ivfList
	trained     bool
	params      queryParams
}

func newIVFPQ(r Recipe, dim int, kind metric.Kind, arg float32, compression compress.Type) (*ivfpqIndex, error) {
	if r.PQM <= 0 || dim%r.PQM != 0 {
		return nil, fmt.Errorf("ann: IVFPQ: dim %d not divisible by PQm %d", dim, r.PQM)
	}
	return &ivfpqIndex{
		dim: dim, kind: kind, arg: arg,
		nlists: r.NLists, pqM: r.PQM, pqK: r.PQK,
		compression: compression,
		params:      defaultQueryParams(),
	}, nil
}

func (x *ivfpqIndex) Recipe() string {
	return fmt.Sprintf("IVF%d,PQ%d", x.nlists, x.pqM)
}

func (x *ivfpqIndex) IsTrained() bool { return x.trained }

func (x *ivfpqIndex) NTotal() int {
	n := 0
	for _, l := range x.lists {
		n += len(l.ids)
	}
	return n
}

func (x *ivfpqIndex) Train(vectors []float32) error {
	centroids, err := kmeans.Train(vectors, x.dim, x.nlists, x.kind, 25)
	if err != nil {
		return fmt.Errorf("ann: IVFPQ train coarse quantizer: %w", err)
	}

	quant, err := pq.New(x.dim, x.pqM, x.pqK)
	if err != nil {
		return err
	}

	n := len(vectors) / x.dim
	residuals := make([]float32, len(vectors))
	for i := 0; i < n; i++ {
		vec := vectors[i*x.dim : (i+1)*x.dim]
		list := kmeans.Assign(vec, centroids, x.dim)
		for d := 0; d < x.dim; d++ {
			residuals[i*x.dim+d] = vec[d] - centroids[list*x.dim+d]
		}
	}
	if err := quant.Train(residuals, 20); err != nil {
		return fmt.Errorf("ann: IVFPQ train product quantizer: %w", err)
	}

	x.centroids = centroids
	x.quant = quant
	x.lists = make([]ivfList, x.nlists)
	x.trained = true
	return nil
}

func (x *ivfpqIndex) Add(ids []int64, vectors []float32) error {
	if !x.trained {
		return ErrNotTrained
	}
	if len(vectors) != len(ids)*x.dim {
		return fmt.Errorf("ann: IVFPQ add: dimension mismatch")
	}
	residual := make([]float32, x.dim)
	for i, id := range ids {
		vec := vectors[i*x.dim : (i+1)*x.dim]
		list := kmeans.Assign(vec, x.centroids, x.dim)
		for d := 0; d < x.dim; d++ {
			residual[d] = vec[d] - x.centroids[list*x.dim+d]
		}
		code := x.quant.Encode(residual)
		x.lists[list].ids = append(x.lists[list].ids, id)
		x.lists[list].codes = append(x.lists[list].codes, code...)
	}
	return nil
}

func (x *ivfpqIndex) SetParameters(s string) error {
	p, err := parseParams(x.params, s)
	if err != nil {
		return err
	}
	x.params = p
	return nil
}

func (x *ivfpqIndex) Search(query []float32, k int, filter *bitmap.Bitmap) ([]knn.Candidate, error) {
	if !x.trained {
		return nil, ErrNotTrained
	}
	nprobe := x.params.NProbe
	if nprobe <= 0 {
		nprobe = 1
	}
	probed := kmeans.ClosestN(query, x.centroids, x.dim, nprobe)

	type scored struct {
		id    int64
		score float32
	}
	var cands []scored
	residual := make([]float32, x.dim)
	scanned := 0

	for _, li := range probed {
		list := x.lists[li]
		if len(list.ids) == 0 {
			continue
		}
		for d := 0; d < x.dim; d++ {
			residual[d] = query[d] - x.centroids[li*x.dim+d]
		}
		table := x.quant.DistanceTable(residual)

		for j, id := range list.ids {
			if xid.IsDeleted(id) {
				continue
			}
			if filter != nil && !filter.Contains(xid.UID(id)) {
				continue
			}
			code := list.codes[j*x.pqM : (j+1)*x.pqM]
			score := x.quant.ADC(table, code)
			cands = append(cands, scored{id: id, score: score})
			scanned++
			if x.params.MaxCodes > 0 && scanned >= x.params.MaxCodes {
				break
			}
		}
		if x.params.MaxCodes > 0 && scanned >= x.params.MaxCodes {
			break
		}
	}

	sort.Slice(cands, func(i, j int) bool { return cands[i].score < cands[j].score })
	if k > len(cands) {
		k = len(cands)
	}
	out := make([]knn.Candidate, k)
	for i := 0; i < k; i++ {
		out[i] = knn.Candidate{Key: cands[i].id, Score: cands[i].score}
	}
	return out, nil
}

func (x *ivfpqIndex) Serialize() ([]byte, error) {
	return encodeIVFPQArtifact(x)
}

func (x *ivfpqIndex) Deserialize(data []byte) error {
	return decodeIVFPQArtifact(x, data)
}
