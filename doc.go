// Package vectodb provides an embeddable approximate-nearest-neighbor
// vector database.
//
// A DB owns a durable, memory-mapped flat table of (external id, vector)
// pairs plus an optional trained ANN index built over it. Vectors are
// appended with Add, logically deleted with Remove, and the two kept in
// sync with the resident index by Sync, which compacts tombstoned records
// and retrains when the un-indexed tail grows past a threshold.
//
// # Quick start
//
//	db, err := vectodb.Open(ctx, "./data", 128,
//	    vectodb.WithMetric(metric.InnerProduct, 0, nil),
//	    vectodb.WithRecipe("IVF4096,PQ32"),
//	)
//	db.Add(ctx, []int64{1000, 1001}, vectors)
//	results, _ := db.Search(ctx, query, 10, nil)
//	db.Sync(ctx)
//
// External ids encode two logical fields: the high 30 bits are a caller
// "user id" and the low 34 bits a "product id" (see package xid). Search
// accepts an optional per-query bitmap.Bitmap to restrict results to a set
// of user ids.
package vectodb
