// Package resource bounds concurrent background work. The database allows
// only one Sync (train-and-promote) job to run at a time; a second caller
// either blocks or is told to wait, depending on which method it calls.
package resource

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// SyncGate serializes the single concurrent Sync/training job (spec's
// sync_mutex). It is a thin wrapper over a weighted semaphore of size 1
// rather than a sync.Mutex so that callers can use TryAcquire to implement
// "Sync is already running" without blocking, and Acquire with a context
// to make a blocking wait cancelable.
type SyncGate struct {
	sem *semaphore.Weighted
}

// NewSyncGate returns a gate that admits one holder at a time.
func NewSyncGate() *SyncGate {
	return &SyncGate{sem: semaphore.NewWeighted(1)}
}

// Acquire blocks until the gate is free or ctx is canceled.
func (g *SyncGate) Acquire(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

// TryAcquire claims the gate without blocking, returning false if a Sync
// is already in flight.
func (g *SyncGate) TryAcquire() bool {
	return g.sem.TryAcquire(1)
}

// Release frees the gate.
func (g *SyncGate) Release() {
	g.sem.Release(1)
}
