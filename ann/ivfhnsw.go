package ann

import (
	"fmt"
	"sort"

	"github.com/deepfabric/vectodb/bitmap"
	"github.com/deepfabric/vectodb/internal/compress"
	"github.com/deepfabric/vectodb/internal/kmeans"
	"github.com/deepfabric/vectodb/internal/knn"
	"github.com/deepfabric/vectodb/metric"
	"github.com/deepfabric/vectodb/xid"
)

// coarseGraphM is the number of neighbor edges each centroid keeps in the
// single-layer coarse-quantizer graph.
const coarseGraphM = 16

// coarseGraph is a single-layer nearest-neighbor graph over a small set of
// points (the IVF coarse centroids), built once at Train time.
type coarseGraph struct {
	dim       int
	centroids []float32
	edges     [][]int32 // edges[i] = neighbor indices of centroid i
	entry     int
}

func buildCoarseGraph(centroids []float32, dim int) *coarseGraph {
	n := len(centroids) / dim
	g := &coarseGraph{dim: dim, centroids: centroids, edges: make([][]int32, n)}
	if n == 0 {
		return g
	}

	type nd struct {
		id   int
		dist float32
	}
	for i := 0; i < n; i++ {
		vi := centroids[i*dim : (i+1)*dim]
		dists := make([]nd, 0, n-1)
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			dists = append(dists, nd{j, metric.SquaredL2(vi, centroids[j*dim:(j+1)*dim])})
		}
		sort.Slice(dists, func(a, b int) bool { return dists[a].dist < dists[b].dist })
		m := coarseGraphM
		if m > len(dists) {
			m = len(dists)
		}
		edges := make([]int32, m)
		for k := 0; k < m; k++ {
			edges[k] = int32(dists[k].id)
		}
		g.edges[i] = edges
	}
	return g
}

// search returns the n centroid indices nearest query, ascending. It walks
// the graph breadth-first from the entry point, scores every centroid it
// reaches, and sorts them; centroids not reachable from the entry point
// are never returned.
func (g *coarseGraph) search(query []float32, n int) []int {
	size := len(g.centroids) / g.dim
	if size == 0 {
		return nil
	}
	if n > size {
		n = size
	}

	visited := make(map[int32]bool, size)
	type cand struct {
		id   int32
		dist float32
	}
	best := make([]cand, 0, size)

	frontier := []int32{int32(g.entry)}
	visited[int32(g.entry)] = true
	best = append(best, cand{int32(g.entry), metric.SquaredL2(query, g.centroids[g.entry*g.dim:(g.entry+1)*g.dim])})

	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]
		for _, nb := range g.edges[cur] {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			d := metric.SquaredL2(query, g.centroids[int(nb)*g.dim:(int(nb)+1)*g.dim])
			best = append(best, cand{nb, d})
			frontier = append(frontier, nb)
		}
	}

	sort.Slice(best, func(i, j int) bool { return best[i].dist < best[j].dist })
	if n > len(best) {
		n = len(best)
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = int(best[i].id)
	}
	return out
}

// ivfhnswIndex implements the "IVFk_HNSW32,Flat" recipe: the same
// inverted-list partitioning as ivfpqIndex, but the coarse quantizer is a
// nearest-neighbor graph over the centroids (coarseGraph), and each list stores
// uncompressed vectors instead of PQ codes (the "Flat" in the recipe name).
type ivfhnswIndex struct {
	dim    int
	kind   metric.Kind
	arg    float32
	nlists int

	compression compress.Type
	centroids   []float32
	graph       *coarseGraph
	lists       []flatList
	trained     bool
	params      queryParams
}

type flatList struct {
	ids  []int64
	vecs []float32
}

func newIVFHNSW(r Recipe, dim int, kind metric.Kind, arg float32, compression compress.Type) (*ivfhnswIndex, error) {
	return &ivfhnswIndex{dim: dim, kind: kind, arg: arg, nlists: r.NLists, compression: compression, params: defaultQueryParams()}, nil
}

func (x *ivfhnswIndex) Recipe() string { return fmt.Sprintf("IVF%d_HNSW32,Flat", x.nlists) }
func (x *ivfhnswIndex) IsTrained() bool { return x.trained }

func (x *ivfhnswIndex) NTotal() int {
	n := 0
	for _, l := range x.lists {
		n += len(l.ids)
	}
	return n
}

func (x *ivfhnswIndex) Train(vectors []float32) error {
	centroids, err := kmeans.Train(vectors, x.dim, x.nlists, x.kind, 25)
	if err != nil {
		return fmt.Errorf("ann: IVFHNSW train coarse quantizer: %w", err)
	}
	x.centroids = centroids
	x.graph = buildCoarseGraph(centroids, x.dim)
	x.lists = make([]flatList, x.nlists)
	x.trained = true
	return nil
}

func (x *ivfhnswIndex) Add(ids []int64, vectors []float32) error {
	if !x.trained {
		return ErrNotTrained
	}
	if len(vectors) != len(ids)*x.dim {
		return fmt.Errorf("ann: IVFHNSW add: dimension mismatch")
	}
	for i, id := range ids {
		vec := vectors[i*x.dim : (i+1)*x.dim]
		list := kmeans.Assign(vec, x.centroids, x.dim)
		x.lists[list].ids = append(x.lists[list].ids, id)
		x.lists[list].vecs = append(x.lists[list].vecs, vec...)
	}
	return nil
}

func (x *ivfhnswIndex) SetParameters(s string) error {
	p, err := parseParams(x.params, s)
	if err != nil {
		return err
	}
	x.params = p
	return nil
}

func (x *ivfhnswIndex) Search(query []float32, k int, filter *bitmap.Bitmap) ([]knn.Candidate, error) {
	if !x.trained {
		return nil, ErrNotTrained
	}
	nprobe := x.params.NProbe
	if nprobe <= 0 {
		nprobe = 1
	}
	probed := x.graph.search(query, nprobe)

	higherBetter := x.kind.HigherIsBetter()
	type scored struct {
		id    int64
		score float32
	}
	var cands []scored
	scanned := 0

	for _, li := range probed {
		list := x.lists[li]
		for j, id := range list.ids {
			if xid.IsDeleted(id) {
				continue
			}
			if filter != nil && !filter.Contains(xid.UID(id)) {
				continue
			}
			vec := list.vecs[j*x.dim : (j+1)*x.dim]
			cands = append(cands, scored{id: id, score: metric.Score(x.kind, query, vec)})
			scanned++
			if x.params.MaxCodes > 0 && scanned >= x.params.MaxCodes {
				break
			}
		}
		if x.params.MaxCodes > 0 && scanned >= x.params.MaxCodes {
			break
		}
	}

	sort.Slice(cands, func(i, j int) bool {
		if higherBetter {
			return cands[i].score > cands[j].score
		}
		return cands[i].score < cands[j].score
	})
	if k > len(cands) {
		k = len(cands)
	}
	out := make([]knn.Candidate, k)
	for i := 0; i < k; i++ {
		out[i] = knn.Candidate{Key: cands[i].id, Score: cands[i].score}
	}
	return out, nil
}

func (x *ivfhnswIndex) Serialize() ([]byte, error) {
	return encodeIVFHNSWArtifact(x)
}

func (x *ivfhnswIndex) Deserialize(data []byte) error {
	return decodeIVFHNSWArtifact(x, data)
}
