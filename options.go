// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package st

// option provides an interface to do work on a Table while it is being
// created.
type option[K, V any] interface {
	apply(t *Table[K, V])
}

type hasherOption[K, V any] struct {
	hasher Hasher[K]
}

func (op hasherOption[K, V]) apply(t *Table[K, V]) {
	t.hasher = op.hasher
}

// WithHasher is an option to specify the hashing policy of a Table[K,V]. It
// overrides the policy chosen by the constructor.
func WithHasher[K, V any](hasher Hasher[K]) option[K, V] {
	return hasherOption[K, V]{hasher}
}

// Allocator specifies an interface for allocating and releasing the entry
// store and hash index of a Table. The default allocator utilizes Go's
// builtin make() and allows the GC to reclaim memory.
//
// An allocator may fail by returning an error (or a short slice), in which
// case the operation that needed the memory reports ErrAllocationFailed and
// the table is left unchanged. Failures are never retried.
//
// If the allocator is manually managing memory and requires that entries and
// bins be freed then Table.Close must be called in order to ensure
// FreeEntries and FreeBins are called.
type Allocator[K, V any] interface {
	// AllocEntries should return a slice equivalent to make([]Entry[K,V], n).
	AllocEntries(n int) ([]Entry[K, V], error)

	// AllocBins should return a slice equivalent to make([]uint32, n). The
	// contents need not be zeroed.
	AllocBins(n int) ([]uint32, error)

	// FreeEntries can optionally release the memory associated with the
	// supplied slice that is guaranteed to have been allocated by
	// AllocEntries.
	FreeEntries(v []Entry[K, V])

	// FreeBins can optionally release the memory associated with the
	// supplied slice that is guaranteed to have been allocated by AllocBins.
	FreeBins(v []uint32)
}

type defaultAllocator[K, V any] struct{}

func (defaultAllocator[K, V]) AllocEntries(n int) ([]Entry[K, V], error) {
	return make([]Entry[K, V], n), nil
}

func (defaultAllocator[K, V]) AllocBins(n int) ([]uint32, error) {
	return make([]uint32, n), nil
}

func (defaultAllocator[K, V]) FreeEntries(v []Entry[K, V]) {
}

func (defaultAllocator[K, V]) FreeBins(v []uint32) {
}

type allocatorOption[K, V any] struct {
	allocator Allocator[K, V]
}

func (op allocatorOption[K, V]) apply(t *Table[K, V]) {
	t.allocator = op.allocator
}

// WithAllocator is an option for specify the Allocator to use for a
// Table[K,V].
func WithAllocator[K, V any](allocator Allocator[K, V]) option[K, V] {
	return allocatorOption[K, V]{allocator}
}
