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

import "iter"

// Set is an insertion-ordered set built on Map with the values elided.
type Set[K any] struct {
	m Map[K, struct{}]
}

// NewSet returns an empty Set for comparable elements.
func NewSet[K comparable]() *Set[K] {
	return &Set[K]{m: *NewMap[K, struct{}]()}
}

// NewSetWithHasher returns an empty Set using the supplied hashing policy.
func NewSetWithHasher[K any](hasher Hasher[K]) *Set[K] {
	return &Set[K]{m: *NewMapWithHasher[K, struct{}](hasher)}
}

// Add inserts key, reporting whether it was already present.
func (s *Set[K]) Add(key K) (existed bool, err error) {
	return s.m.Insert(key, struct{}{})
}

// Contains reports whether key is in the set.
func (s *Set[K]) Contains(key K) bool {
	return s.m.Contains(key)
}

// Remove deletes key, returning ErrKeyNotFound if it was absent.
func (s *Set[K]) Remove(key K) error {
	_, err := s.m.Remove(key)
	return err
}

// Len returns the number of elements.
func (s *Set[K]) Len() int {
	return s.m.Len()
}

// Clear removes all elements.
func (s *Set[K]) Clear() {
	s.m.Clear()
}

// Elements appends the elements to dst in insertion order.
func (s *Set[K]) Elements(dst []K) []K {
	return s.m.t.Keys(dst)
}

// Iter returns an iterator over the elements. Use Iterator.Key to read the
// current element.
func (s *Set[K]) Iter() *Iterator[K, struct{}] {
	return s.m.Iter()
}

// Get returns the stored element equal to key.
func (s *Set[K]) Get(key K) (K, bool) {
	return s.m.GetKey(key)
}

// First returns the element added earliest.
func (s *Set[K]) First() (K, bool) {
	k, _, ok := s.m.First()
	return k, ok
}

// Last returns the element added most recently.
func (s *Set[K]) Last() (K, bool) {
	k, _, ok := s.m.Last()
	return k, ok
}

// Nth returns the element at the given insert rank.
func (s *Set[K]) Nth(rank int) (K, bool) {
	k, _, ok := s.m.Nth(rank)
	return k, ok
}

// MinInsertRank returns the insert rank of First.
func (s *Set[K]) MinInsertRank() int {
	return s.m.MinInsertRank()
}

// MaxInsertRank returns the insert rank of Last.
func (s *Set[K]) MaxInsertRank() int {
	return s.m.MaxInsertRank()
}

// InsertRanksFrom returns the insert ranks from rank onwards.
func (s *Set[K]) InsertRanksFrom(rank int) iter.Seq[int] {
	return s.m.InsertRanksFrom(rank)
}

// Reserve makes room for n more elements.
func (s *Set[K]) Reserve(n int) error {
	return s.m.Reserve(n)
}

// ShrinkToFit releases unused capacity.
func (s *Set[K]) ShrinkToFit() error {
	return s.m.ShrinkToFit()
}

// Capacity returns the number of elements the set holds before its next
// rebuild.
func (s *Set[K]) Capacity() int {
	return s.m.Capacity()
}

// All returns a sequence of the elements in insertion order.
func (s *Set[K]) All() iter.Seq[K] {
	return s.m.Keys()
}
