// Package kmeans trains coarse quantizer centroids for the IVF indexes.
package kmeans

import (
	"math"
	"math/rand"
	"sort"

	"github.com/deepfabric/vectodb/metric"
)

// Train runs Lloyd's algorithm over vectors (n*dim floats, row-major) and
// returns k*dim flattened centroids. It returns an error if there are
// fewer than k training vectors, since the coarse index cannot be built
// with fewer live lists than centroids.
func Train(vectors []float32, dim, k int, kind metric.Kind, maxIter int) ([]float32, error) {
	n := len(vectors) / dim
	if n < k {
		return nil, &NotEnoughDataError{Have: n, Want: k}
	}

	centroids := make([]float32, k*dim)
	perm := rand.Perm(n)
	for i := 0; i < k; i++ {
		copy(centroids[i*dim:(i+1)*dim], vectors[perm[i]*dim:(perm[i]+1)*dim])
	}

	assignments := make([]int, n)
	counts := make([]int, k)
	sums := make([]float32, k*dim)

	for iter := 0; iter < maxIter; iter++ {
		changed := false

		for i := 0; i < n; i++ {
			vec := vectors[i*dim : (i+1)*dim]
			best, bestDist := 0, float32(math.MaxFloat32)
			for j := 0; j < k; j++ {
				d := metric.SquaredL2(vec, centroids[j*dim:(j+1)*dim])
				if d < bestDist {
					bestDist, best = d, j
				}
			}
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		for i := range sums {
			sums[i] = 0
		}
		for i := range counts {
			counts[i] = 0
		}
		for i := 0; i < n; i++ {
			c := assignments[i]
			vec := vectors[i*dim : (i+1)*dim]
			for d := 0; d < dim; d++ {
				sums[c*dim+d] += vec[d]
			}
			counts[c]++
		}

		for j := 0; j < k; j++ {
			if counts[j] > 0 {
				scale := 1 / float32(counts[j])
				for d := 0; d < dim; d++ {
					centroids[j*dim+d] = sums[j*dim+d] * scale
				}
			} else {
				idx := rand.Intn(n)
				copy(centroids[j*dim:(j+1)*dim], vectors[idx*dim:(idx+1)*dim])
			}
		}
	}

	return centroids, nil
}

// NotEnoughDataError reports too few training vectors for the requested
// number of clusters.
type NotEnoughDataError struct {
	Have, Want int
}

func (e *NotEnoughDataError) Error() string {
	return "kmeans: not enough training vectors"
}

// Assign returns the index of the centroid nearest vec, always under L2
// (the coarse quantizer partitions by L2 distance regardless of the
// index's configured metric — matching a standard IVF split).
func Assign(vec, centroids []float32, dim int) int {
	k := len(centroids) / dim
	best, bestDist := 0, float32(math.MaxFloat32)
	for j := 0; j < k; j++ {
		d := metric.SquaredL2(vec, centroids[j*dim:(j+1)*dim])
		if d < bestDist {
			bestDist, best = d, j
		}
	}
	return best
}

type centroidDist struct {
	id   int
	dist float32
}

// ClosestN returns the indices of the n centroids nearest query, ascending
// by distance. Used to pick which inverted lists nprobe should scan.
func ClosestN(query, centroids []float32, dim, n int) []int {
	k := len(centroids) / dim
	if n > k {
		n = k
	}
	dists := make([]centroidDist, k)
	for i := 0; i < k; i++ {
		dists[i] = centroidDist{id: i, dist: metric.SquaredL2(query, centroids[i*dim:(i+1)*dim])}
	}
	sort.Slice(dists, func(i, j int) bool { return dists[i].dist < dists[j].dist })
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = dists[i].id
	}
	return out
}
