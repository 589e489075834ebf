// File: pool/objpool.go
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package pool

import (
	"sync"
	"sync/atomic"
)

// ObjectPool hands out reusable values of one type.
type ObjectPool[T any] interface {
	Get() T
	Put(T)
}

// SyncPool is a typed sync.Pool. The reset hook, when set, runs on Put so
// a pooled value keeps no reference to its previous user.
type SyncPool[T any] struct {
	pool      sync.Pool
	reset     func(T)
	allocated atomic.Int64
}

// NewSyncPool creates a pool that builds values with creator. reset may
// be nil.
func NewSyncPool[T any](creator func() T, reset func(T)) *SyncPool[T] {
	sp := &SyncPool[T]{reset: reset}
	sp.pool.New = func() any {
		sp.allocated.Add(1)
		return creator()
	}
	return sp
}

func (sp *SyncPool[T]) Get() T {
	return sp.pool.Get().(T)
}

func (sp *SyncPool[T]) Put(v T) {
	if sp.reset != nil {
		sp.reset(v)
	}
	sp.pool.Put(v)
}

// Allocated returns how many values creator has built so far.
func (sp *SyncPool[T]) Allocated() int64 { return sp.allocated.Load() }
