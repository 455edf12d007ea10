// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package wireheap provides a generic keyed binary heap used by the
// scheduler to find the least (or most) loaded worker in O(log n).
package wireheap

import "errors"

// ErrEmptyHeap is returned by Pop when the heap has no items.
var ErrEmptyHeap = errors.New("wireheap: pop on empty heap")

// Ordered is any type a key projection may compare with <.
type Ordered interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64 | ~string
}

// Heap is an array-backed binary heap over items of type T, ordered by
// a caller-supplied projection to a key of type K. Reverse turns it
// into a max-heap.
type Heap[T any, K Ordered] struct {
	items   []T
	key     func(T) K
	reverse bool
}

// New builds a heap from the given items in O(n) via bottom-up
// sift-down. key must not be nil.
func New[T any, K Ordered](items []T, key func(T) K, reverse bool) *Heap[T, K] {
	if key == nil {
		panic("wireheap: a key projection must be provided")
	}

	h := &Heap[T, K]{
		items:   append([]T(nil), items...),
		key:     key,
		reverse: reverse,
	}

	for i := len(h.items)/2 - 1; i >= 0; i-- {
		h.bubbleDown(i)
	}

	return h
}

// Len reports the number of items currently in the heap.
func (h *Heap[T, K]) Len() int {
	return len(h.items)
}

// Push inserts item into the heap.
func (h *Heap[T, K]) Push(item T) {
	h.items = append(h.items, item)
	h.bubbleUp(len(h.items) - 1)
}

// Pop removes and returns the extremum (minimum, or maximum if
// reverse) item. It fails with ErrEmptyHeap when the heap is empty.
func (h *Heap[T, K]) Pop() (T, error) {
	var zero T
	if len(h.items) == 0 {
		return zero, ErrEmptyHeap
	}

	root := h.items[0]
	last := len(h.items) - 1
	h.items[0] = h.items[last]
	h.items = h.items[:last]
	if len(h.items) > 0 {
		h.bubbleDown(0)
	}

	return root, nil
}

// Peek returns the extremum item without removing it.
func (h *Heap[T, K]) Peek() (T, error) {
	var zero T
	if len(h.items) == 0 {
		return zero, ErrEmptyHeap
	}
	return h.items[0], nil
}

func parent(index int) int {
	return (index - 1) / 2
}

func (h *Heap[T, K]) less(i, j int) bool {
	ki, kj := h.key(h.items[i]), h.key(h.items[j])
	if h.reverse {
		return ki > kj
	}
	return ki < kj
}

func (h *Heap[T, K]) bubbleUp(index int) {
	for index > 0 {
		p := parent(index)
		if !h.less(index, p) {
			return
		}
		h.items[index], h.items[p] = h.items[p], h.items[index]
		index = p
	}
}

func (h *Heap[T, K]) bubbleDown(index int) {
	n := len(h.items)
	for {
		left, right := 2*index+1, 2*index+2
		smallest := index

		if left < n && h.less(left, smallest) {
			smallest = left
		}
		if right < n && h.less(right, smallest) {
			smallest = right
		}
		if smallest == index {
			return
		}

		h.items[index], h.items[smallest] = h.items[smallest], h.items[index]
		index = smallest
	}
}
