// Package knn implements the exhaustive nearest-neighbor scan kernel
// shared by the flat store, the refine layer and the IVF coarse-list scan.
package knn

import (
	"github.com/deepfabric/vectodb/bitmap"
	"github.com/deepfabric/vectodb/metric"
	"github.com/deepfabric/vectodb/xid"
)

// Source is the minimal read view the kernel needs over a set of stored
// vectors: dense ordinals 0..Len()-1, each carrying an external id and a
// vector. A Source is free to skip over gaps internally, but At must be
// callable for every i in [0, Len()).
type Source interface {
	Len() int
	At(i int) (id int64, vector []float32)
}

// Params configures one exhaustive scan.
type Params struct {
	K          int
	MetricKind metric.Kind
	MetricArg  float32
	Extra      metric.ExtraFunc // used only when MetricKind == metric.Extra
	Filter     *bitmap.Bitmap   // nil means unfiltered
	TopVectors bool             // true: output key is xid; false: output key is uid, deduped
}

// Search scans every record in src, scoring it against query under p, and
// returns the best p.K candidates best-first. Records whose id is
// xid.Deleted are skipped. When p.Filter is non-nil, records whose uid is
// not a filter member are skipped.
func Search(src Source, query []float32, p Params) []Candidate {
	if p.K <= 0 {
		return nil
	}

	h := newHeap(p.K, p.MetricKind.HigherIsBetter(), !p.TopVectors)

	n := src.Len()
	for i := 0; i < n; i++ {
		id, vec := src.At(i)
		if xid.IsDeleted(id) {
			continue
		}
		uid := xid.UID(id)
		if p.Filter != nil && !p.Filter.Contains(uid) {
			continue
		}

		var score float32
		if p.MetricKind == metric.Extra {
			if p.Extra == nil {
				continue
			}
			score = p.Extra(query, vec, p.MetricArg)
		} else {
			score = metric.Score(p.MetricKind, query, vec)
		}

		key := id
		if !p.TopVectors {
			key = int64(uid)
		}
		h.Offer(Candidate{Key: key, Score: score})
	}

	return h.Sorted()
}

// SearchRange scans every record in src and returns all candidates whose
// score is within threshold of the best possible score: for
// higher-is-better metrics, score >= threshold; for L2, score <= threshold.
// Results are not capped and are returned best-first.
func SearchRange(src Source, query []float32, metricKind metric.Kind, filter *bitmap.Bitmap, threshold float32) []Candidate {
	higherBetter := metricKind.HigherIsBetter()
	var out []Candidate

	n := src.Len()
	for i := 0; i < n; i++ {
		id, vec := src.At(i)
		if xid.IsDeleted(id) {
			continue
		}
		uid := xid.UID(id)
		if filter != nil && !filter.Contains(uid) {
			continue
		}
		score := metric.Score(metricKind, query, vec)
		if higherBetter && score < threshold {
			continue
		}
		if !higherBetter && score > threshold {
			continue
		}
		out = append(out, Candidate{Key: id, Score: score})
	}

	return (&heap{items: out, higherBetter: higherBetter}).Sorted()
}
