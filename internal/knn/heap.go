package knn

import "sort"

// Candidate is one scored result from the exhaustive scan kernel. Key is
// either an external id (top_vectors mode) or a bare uid (top_users mode).
type Candidate struct {
	Key   int64
	Score float32
}

// heap is a fixed-capacity, worst-at-root heap of Candidates. Depending on
// higherBetter, "worst" means lowest score (metrics where larger is
// better, e.g. inner product) or highest score (metrics where smaller is
// better, e.g. squared L2). When dedup is set, at most one Candidate per
// Key is kept, always the better-scoring one — this backs top_users mode.
type heap struct {
	items        []Candidate
	index        map[int64]int // Key -> position in items, only populated when dedup
	capacity     int
	higherBetter bool
	dedup        bool
}

func newHeap(capacity int, higherBetter, dedup bool) *heap {
	h := &heap{
		items:        make([]Candidate, 0, capacity),
		capacity:     capacity,
		higherBetter: higherBetter,
		dedup:        dedup,
	}
	if dedup {
		h.index = make(map[int64]int, capacity)
	}
	return h
}

// better reports whether score a should rank ahead of score b.
func (h *heap) better(a, b float32) bool {
	if h.higherBetter {
		return a > b
	}
	return a < b
}

// worse is the heap ordering predicate: worse(i, j) means item i should sit
// closer to the root than item j (root = candidate evicted first).
func (h *heap) worse(a, b Candidate) bool {
	if a.Score != b.Score {
		return !h.better(a.Score, b.Score)
	}
	// Deterministic tie-break: keep the larger key nearer the root so it
	// is evicted first, keeping ties reproducible.
	return a.Key > b.Key
}

// Offer proposes a candidate. It is inserted if the heap has room, if it
// beats the current root, or (dedup mode) if it beats an existing entry
// with the same Key.
func (h *heap) Offer(c Candidate) {
	if h.dedup {
		if i, ok := h.index[c.Key]; ok {
			if h.better(c.Score, h.items[i].Score) {
				h.items[i] = c
				h.fix(i)
			}
			return
		}
	}

	if len(h.items) < h.capacity {
		h.items = append(h.items, c)
		if h.dedup {
			h.index[c.Key] = len(h.items) - 1
		}
		h.siftUp(len(h.items) - 1)
		return
	}

	if h.capacity == 0 {
		return
	}

	if h.worse(h.items[0], c) {
		if h.dedup {
			delete(h.index, h.items[0].Key)
			h.index[c.Key] = 0
		}
		h.items[0] = c
		h.siftDown(0)
	}
}

func (h *heap) swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	if h.dedup {
		h.index[h.items[i].Key] = i
		h.index[h.items[j].Key] = j
	}
}

func (h *heap) fix(i int) {
	h.siftDown(i)
	h.siftUp(i)
}

func (h *heap) siftUp(j int) {
	for j > 0 {
		parent := (j - 1) / 2
		if !h.worse(h.items[j], h.items[parent]) {
			break
		}
		h.swap(j, parent)
		j = parent
	}
}

func (h *heap) siftDown(i int) {
	n := len(h.items)
	for {
		left := 2*i + 1
		if left >= n {
			break
		}
		worstChild := left
		if right := left + 1; right < n && h.worse(h.items[right], h.items[left]) {
			worstChild = right
		}
		if !h.worse(h.items[worstChild], h.items[i]) {
			break
		}
		h.swap(i, worstChild)
		i = worstChild
	}
}

// Sorted drains the heap into a best-first slice.
func (h *heap) Sorted() []Candidate {
	out := make([]Candidate, len(h.items))
	copy(out, h.items)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return h.better(out[i].Score, out[j].Score)
		}
		return out[i].Key < out[j].Key
	})
	return out
}
