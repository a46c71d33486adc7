package vectodb

import "github.com/deepfabric/vectodb/metric"

// NormVec L2-normalizes v in place. Callers who want cosine similarity can
// normalize every vector on ingest and query with InnerProduct instead of
// registering metric.CosineFunc as an Extra metric. It is a no-op on a zero
// vector.
func NormVec(v []float32) {
	metric.NormalizeInPlace(v)
}
