// Package pq implements product quantization for the IVFk,PQm index
// recipe: each residual vector is split into m subvectors, each quantized
// independently against its own codebook of up to 256 centroids.
package pq

import (
	"errors"
	"math"
	"math/rand"

	"github.com/deepfabric/vectodb/metric"
)

// Quantizer holds m codebooks of up to 256 centroids each, one codebook
// per subvector position.
type Quantizer struct {
	m         int // number of subvectors
	k         int // centroids per subspace, <= 256
	dim       int // full vector dimension
	subDim    int // dim / m
	codebooks [][][]float32
	trained   bool
}

// New creates an untrained Quantizer. dim must be divisible by m, and k
// must fit in a byte since codes are stored as uint8.
func New(dim, m, k int) (*Quantizer, error) {
	if m <= 0 || dim%m != 0 {
		return nil, errors.New("pq: dimension must be divisible by m")
	}
	if k <= 0 || k > 256 {
		return nil, errors.New("pq: k must be in (0,256]")
	}
	return &Quantizer{m: m, k: k, dim: dim, subDim: dim / m, codebooks: make([][][]float32, m)}, nil
}

// Train fits each subspace's codebook via k-means++ initialized Lloyd
// iterations over vectors (row-major, len(vectors) must be a multiple of
// q.dim).
func (q *Quantizer) Train(vectors []float32, maxIter int) error {
	n := len(vectors) / q.dim
	if n == 0 {
		return errors.New("pq: no training vectors")
	}

	for m := 0; m < q.m; m++ {
		sub := make([][]float32, n)
		for i := 0; i < n; i++ {
			start := i*q.dim + m*q.subDim
			sub[i] = vectors[start : start+q.subDim]
		}
		q.codebooks[m] = kmeansPP(sub, q.k, maxIter)
	}
	q.trained = true
	return nil
}

// Encode quantizes vec into q.m codes, one per subvector.
func (q *Quantizer) Encode(vec []float32) []byte {
	codes := make([]byte, q.m)
	for m := 0; m < q.m; m++ {
		start := m * q.subDim
		codes[m] = byte(nearest(vec[start:start+q.subDim], q.codebooks[m]))
	}
	return codes
}

// Decode reconstructs an approximate vector from codes.
func (q *Quantizer) Decode(codes []byte) []float32 {
	out := make([]float32, q.dim)
	for m := 0; m < q.m; m++ {
		centroid := q.codebooks[m][codes[m]]
		copy(out[m*q.subDim:(m+1)*q.subDim], centroid)
	}
	return out
}

// DistanceTable precomputes, for each subvector position, the squared L2
// distance from query's subvector to every centroid in that subspace.
// Table layout is table[m*q.k+c].
func (q *Quantizer) DistanceTable(query []float32) []float32 {
	table := make([]float32, q.m*q.k)
	for m := 0; m < q.m; m++ {
		start := m * q.subDim
		sub := query[start : start+q.subDim]
		for c := 0; c < q.k; c++ {
			table[m*q.k+c] = metric.SquaredL2(sub, q.codebooks[m][c])
		}
	}
	return table
}

// ADC computes the asymmetric distance between a precomputed DistanceTable
// and a code vector: the sum of each subvector's table lookup.
func (q *Quantizer) ADC(table []float32, codes []byte) float32 {
	var sum float32
	for m, c := range codes {
		sum += table[m*q.k+int(c)]
	}
	return sum
}

// IsTrained reports whether Train has been called.
func (q *Quantizer) IsTrained() bool { return q.trained }

// M returns the number of subvectors.
func (q *Quantizer) M() int { return q.m }

// K returns the number of centroids per subspace.
func (q *Quantizer) K() int { return q.k }

// Codebooks returns the trained codebooks, shape [m][k][subDim].
func (q *Quantizer) Codebooks() [][][]float32 { return q.codebooks }

// SetCodebooks installs codebooks loaded from a serialized artifact.
func (q *Quantizer) SetCodebooks(cb [][][]float32) {
	q.codebooks = cb
	q.trained = true
}

func nearest(vec []float32, centroids [][]float32) int {
	best, bestDist := 0, float32(math.MaxFloat32)
	for i, c := range centroids {
		if d := metric.SquaredL2(vec, c); d < bestDist {
			bestDist, best = d, i
		}
	}
	return best
}

// kmeansPP runs k-means++ seeded Lloyd iterations over a small subspace.
func kmeansPP(vectors [][]float32, k, maxIter int) [][]float32 {
	if len(vectors) < k {
		dim := len(vectors[0])
		centroids := make([][]float32, k)
		for i := range centroids {
			centroids[i] = make([]float32, dim)
			copy(centroids[i], vectors[i%len(vectors)])
		}
		return centroids
	}

	dim := len(vectors[0])
	centroids := make([][]float32, k)
	for i := range centroids {
		centroids[i] = make([]float32, dim)
	}
	copy(centroids[0], vectors[rand.Intn(len(vectors))])

	minDistSq := make([]float32, len(vectors))
	var sum float32
	for i, v := range vectors {
		d := metric.SquaredL2(v, centroids[0])
		minDistSq[i] = d
		sum += d
	}

	for c := 1; c < k; c++ {
		if sum == 0 {
			copy(centroids[c], vectors[rand.Intn(len(vectors))])
			continue
		}
		target := rand.Float32() * sum
		var cumsum float32
		chosen := 0
		for i, d := range minDistSq {
			cumsum += d
			if cumsum >= target {
				chosen = i
				break
			}
		}
		copy(centroids[c], vectors[chosen])

		sum = 0
		for i, v := range vectors {
			if d := metric.SquaredL2(v, centroids[c]); d < minDistSq[i] {
				minDistSq[i] = d
			}
			sum += minDistSq[i]
		}
	}

	assignments := make([]int, len(vectors))
	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for i, v := range vectors {
			n := nearest(v, centroids)
			if assignments[i] != n {
				assignments[i] = n
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		counts := make([]int, k)
		sums := make([][]float32, k)
		for i := range sums {
			sums[i] = make([]float32, dim)
		}
		for i, v := range vectors {
			c := assignments[i]
			counts[c]++
			for j, val := range v {
				sums[c][j] += val
			}
		}
		for i := range centroids {
			if counts[i] > 0 {
				for j := range centroids[i] {
					centroids[i][j] = sums[i][j] / float32(counts[i])
				}
			}
		}
	}

	return centroids
}
