// File: internal/registry/registry.go
// Package registry
// Author: momentics <momentics@gmail.com>
//
// Mutex-guarded, insertion-ordered registry of live connections owned by
// one server. Lookup is by id; iteration follows insertion order.

package registry

import (
	"container/list"
	"sync"
)

type node[V any] struct {
	id  uint64
	val V
}

// Handle identifies one registration. It stays bound to that entry: once
// the entry is removed, releasing the handle is a no-op even if the same
// id is registered again.
type Handle struct {
	ID uint64
	el *list.Element
}

// Registry holds the active entries of one server. The zero value is not
// usable; call New.
type Registry[V any] struct {
	mu    sync.Mutex
	order *list.List
	index map[uint64]*list.Element
}

// New returns an empty registry.
func New[V any]() *Registry[V] {
	return &Registry[V]{
		order: list.New(),
		index: make(map[uint64]*list.Element),
	}
}

// Add appends v at the tail under id. Adding an id twice replaces the
// value and keeps its position.
func (r *Registry[V]) Add(id uint64, v V) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	if el, ok := r.index[id]; ok {
		el.Value.(*node[V]).val = v
		return Handle{ID: id, el: el}
	}
	el := r.order.PushBack(&node[V]{id: id, val: v})
	r.index[id] = el
	return Handle{ID: id, el: el}
}

// Remove unlinks id. It reports whether the entry was present, so
// concurrent removers can tell who won.
func (r *Registry[V]) Remove(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	el, ok := r.index[id]
	if !ok {
		return false
	}
	r.order.Remove(el)
	delete(r.index, id)
	return true
}

// Release unlinks the entry h was issued for and reports whether it was
// still registered.
func (r *Registry[V]) Release(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	el, ok := r.index[h.ID]
	if !ok || el != h.el {
		return false
	}
	r.order.Remove(el)
	delete(r.index, h.ID)
	return true
}

// Get returns the value registered under id.
func (r *Registry[V]) Get(id uint64) (V, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if el, ok := r.index[id]; ok {
		return el.Value.(*node[V]).val, true
	}
	var zero V
	return zero, false
}

// Len returns the number of registered entries.
func (r *Registry[V]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.order.Len()
}

// Snapshot returns the values in insertion order.
func (r *Registry[V]) Snapshot() []V {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]V, 0, r.order.Len())
	for el := r.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*node[V]).val)
	}
	return out
}

// IDs returns the registered ids in insertion order.
func (r *Registry[V]) IDs() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint64, 0, r.order.Len())
	for el := r.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*node[V]).id)
	}
	return out
}
