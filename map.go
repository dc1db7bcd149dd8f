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

import (
	"iter"

	"github.com/cockroachdb/errors"
)

// Map is a typed, insertion-ordered map built on Table. Lookup misses on
// Remove are reported as ErrKeyNotFound and traversal goes through a lazy
// Iterator.
//
// A Map is NOT goroutine-safe.
type Map[K, V any] struct {
	t *Table[K, V]
}

// NewMap returns an empty Map for comparable keys.
func NewMap[K comparable, V any](options ...option[K, V]) *Map[K, V] {
	return &Map[K, V]{t: New[K, V](0, options...)}
}

// NewMapWithHasher returns an empty Map using the supplied hashing policy.
func NewMapWithHasher[K, V any](hasher Hasher[K], options ...option[K, V]) *Map[K, V] {
	return &Map[K, V]{t: NewWithHasher[K, V](hasher, 0, options...)}
}

// Insert stores value under key, reporting whether an existing value was
// overwritten.
func (m *Map[K, V]) Insert(key K, value V) (updated bool, err error) {
	return m.t.Insert(key, value)
}

// Get returns the value stored under key.
func (m *Map[K, V]) Get(key K) (V, bool) {
	return m.t.Get(key)
}

// Contains reports whether key is present.
func (m *Map[K, V]) Contains(key K) bool {
	return m.t.findEntry(hashOf(m.t.hasher, key), key) >= 0
}

// Remove deletes key and returns its value, or ErrKeyNotFound.
func (m *Map[K, V]) Remove(key K) (V, error) {
	v, ok := m.t.Delete(key)
	if !ok {
		return v, ErrKeyNotFound
	}
	return v, nil
}

// Len returns the number of entries.
func (m *Map[K, V]) Len() int {
	return m.t.Len()
}

// Clear removes all entries. Outstanding iterators are invalidated.
func (m *Map[K, V]) Clear() {
	m.t.Clear()
}

// Clone returns an independent copy of the map.
func (m *Map[K, V]) Clone() (*Map[K, V], error) {
	t, err := m.t.Copy()
	if err != nil {
		return nil, err
	}
	return &Map[K, V]{t: t}, nil
}

// GetKeyValue returns the stored key equal to key and its value.
func (m *Map[K, V]) GetKeyValue(key K) (K, V, bool) {
	if i := m.t.findEntry(hashOf(m.t.hasher, key), key); i >= 0 {
		e := &m.t.entries[i]
		return e.key, e.value, true
	}
	var k K
	var v V
	return k, v, false
}

// GetKey returns the stored key equal to key.
func (m *Map[K, V]) GetKey(key K) (K, bool) {
	return m.t.GetKey(key)
}

// RemoveEntry removes key and returns the stored key and its value.
func (m *Map[K, V]) RemoveEntry(key K) (K, V, error) {
	k, v, ok := m.t.DeleteEntry(key)
	if !ok {
		return k, v, ErrKeyNotFound
	}
	return k, v, nil
}

// First returns the entry inserted earliest.
func (m *Map[K, V]) First() (K, V, bool) {
	return m.t.First()
}

// Last returns the entry inserted most recently.
func (m *Map[K, V]) Last() (K, V, bool) {
	return m.t.Last()
}

// Nth returns the entry at the given insert rank.
func (m *Map[K, V]) Nth(rank int) (K, V, bool) {
	return m.t.Nth(rank)
}

// MinInsertRank returns the insert rank of First.
func (m *Map[K, V]) MinInsertRank() int {
	return m.t.MinInsertRank()
}

// MaxInsertRank returns the insert rank of Last.
func (m *Map[K, V]) MaxInsertRank() int {
	return m.t.MaxInsertRank()
}

// InsertRanksFrom returns the insert ranks from rank onwards. Together with
// Nth it allows an iteration to be suspended and resumed.
func (m *Map[K, V]) InsertRanksFrom(rank int) iter.Seq[int] {
	return m.t.InsertRanksFrom(rank)
}

// Reserve makes room for n more entries.
func (m *Map[K, V]) Reserve(n int) error {
	return m.t.Reserve(n)
}

// ShrinkToFit releases unused capacity.
func (m *Map[K, V]) ShrinkToFit() error {
	return m.t.ShrinkToFit()
}

// Capacity returns the number of entries the map holds before its next
// rebuild.
func (m *Map[K, V]) Capacity() int {
	return m.t.Capacity()
}

// MemSize estimates the memory used by the map in bytes.
func (m *Map[K, V]) MemSize() uintptr {
	return m.t.MemSize()
}

// All returns a sequence of the entries in insertion order. The sequence
// ends early if the map is structurally modified while it is consumed.
func (m *Map[K, V]) All() iter.Seq2[K, V] {
	return m.t.All
}

// Keys returns a sequence of the keys in insertion order.
func (m *Map[K, V]) Keys() iter.Seq[K] {
	return func(yield func(K) bool) {
		m.t.All(func(k K, _ V) bool { return yield(k) })
	}
}

// Values returns a sequence of the values in insertion order.
func (m *Map[K, V]) Values() iter.Seq[V] {
	return func(yield func(V) bool) {
		m.t.All(func(_ K, v V) bool { return yield(v) })
	}
}

// Table returns the Table underlying the map.
func (m *Map[K, V]) Table() *Table[K, V] {
	return m.t
}

// Iter returns an iterator positioned before the oldest entry.
func (m *Map[K, V]) Iter() *Iterator[K, V] {
	it := &Iterator[K, V]{t: m.t}
	it.Reset()
	return it
}

// Iterator walks the entries of a Map in insertion order:
//
//	it := m.Iter()
//	for it.Next() {
//		fmt.Println(it.Key(), it.Value())
//	}
//	if err := it.Err(); err != nil {
//		...
//	}
//
// Entries may be removed through Iterator.Delete. Any other structural change
// to the map stops the iterator, and Err returns ErrConcurrentModification.
type Iterator[K, V any] struct {
	t *Table[K, V]
	// pos is the next slot to examine.
	pos int
	// cur is the slot of the current entry, or -1.
	cur   int
	gen   uint64
	key   K
	value V
	err   error
}

// Next advances to the next entry and reports whether there is one.
func (it *Iterator[K, V]) Next() bool {
	if it.err != nil {
		return false
	}
	if it.t.gen != it.gen {
		it.err = errors.Wrap(ErrConcurrentModification, "map iterator")
		it.cur = -1
		return false
	}
	for it.pos < it.t.bound {
		i := it.pos
		it.pos++
		if e := &it.t.entries[i]; !e.deleted() {
			it.cur = i
			it.key, it.value = e.key, e.value
			return true
		}
	}
	it.cur = -1
	return false
}

// Key returns the key of the current entry.
func (it *Iterator[K, V]) Key() K {
	return it.key
}

// Value returns the value of the current entry.
func (it *Iterator[K, V]) Value() V {
	return it.value
}

// Delete removes the current entry from the map. The iterator stays valid.
func (it *Iterator[K, V]) Delete() error {
	if it.err != nil {
		return it.err
	}
	if it.t.gen != it.gen {
		it.err = errors.Wrap(ErrConcurrentModification, "map iterator")
		return it.err
	}
	if it.cur < 0 {
		return errors.AssertionFailedf("iterator is not positioned at an entry")
	}
	it.t.tombstone(it.cur)
	it.cur = -1
	it.gen = it.t.gen
	return nil
}

// Err returns the error that stopped the iteration, if any.
func (it *Iterator[K, V]) Err() error {
	return it.err
}

// Reset rewinds the iterator to the oldest entry of the map as it is now and
// clears any error.
func (it *Iterator[K, V]) Reset() {
	it.pos = it.t.start
	it.cur = -1
	it.gen = it.t.gen
	it.err = nil
	var k K
	var v V
	it.key, it.value = k, v
}
