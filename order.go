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

// A rank is the slot of an entry in the entries array. Ranks increase with
// insertion order and are not reused by later inserts, so a caller can
// remember one and resume from it. Rebuilds renumber the live entries; a
// rank is valid until Rebuilds changes.

// All calls yield for each live entry in insertion order, stopping when
// yield returns false. It may be used with range:
//
//	for k, v := range t.All {
//	  fmt.Printf("%v: %v\n", k, v)
//	}
//
// Iteration ends early if the table is structurally modified by yield.
func (t *Table[K, V]) All(yield func(key K, value V) bool) {
	gen := t.gen
	for i := t.start; i < t.bound; i++ {
		e := &t.entries[i]
		if e.deleted() {
			continue
		}
		if !yield(e.key, e.value) || t.gen != gen {
			return
		}
	}
}

// Last returns the newest live entry.
func (t *Table[K, V]) Last() (key K, value V, ok bool) {
	if i := t.lastIndex(); i >= 0 {
		e := &t.entries[i]
		return e.key, e.value, true
	}
	return key, value, false
}

// Nth returns the live entry at the given rank.
func (t *Table[K, V]) Nth(rank int) (key K, value V, ok bool) {
	if rank < t.start || rank >= t.bound {
		return key, value, false
	}
	e := &t.entries[rank]
	if e.deleted() {
		return key, value, false
	}
	return e.key, e.value, true
}

// MinInsertRank returns the rank of the oldest live entry, or 0 for an empty
// table.
func (t *Table[K, V]) MinInsertRank() int {
	if t.used == 0 {
		return 0
	}
	return t.start
}

// MaxInsertRank returns the rank of the newest live entry, or 0 for an empty
// table.
func (t *Table[K, V]) MaxInsertRank() int {
	return max(t.lastIndex(), 0)
}

// InsertRanksFrom returns the ranks from rank up to the newest entry at the
// time of the call. Ranks of deleted entries are included; Nth reports them
// as absent.
func (t *Table[K, V]) InsertRanksFrom(rank int) iter.Seq[int] {
	end := t.bound
	return func(yield func(int) bool) {
		for r := max(rank, 0); r < end; r++ {
			if !yield(r) {
				return
			}
		}
	}
}

func (t *Table[K, V]) lastIndex() int {
	if t.used == 0 {
		return -1
	}
	i := t.bound - 1
	for t.entries[i].deleted() {
		i--
	}
	return i
}

// Reserve makes room for at least n more entries to be appended without a
// rebuild. It rebuilds the table if the free space at the bound is smaller.
func (t *Table[K, V]) Reserve(n int) error {
	if n <= 0 || t.bound+n <= len(t.entries) {
		return nil
	}
	if n > 1<<maxEntryPower {
		return errors.Wrapf(ErrAllocationFailed, "reserve %d entries", n)
	}
	return t.resize(entryPowerFor(t.used + n))
}

// ShrinkToFit rebuilds the table into the smallest arrays holding its live
// entries, dropping dead ones. An empty table releases its storage.
func (t *Table[K, V]) ShrinkToFit() error {
	if t.used > 0 {
		return t.resize(entryPowerFor(t.used))
	}
	if t.entries != nil {
		t.release()
		t.entries, t.bins = nil, nil
		t.start, t.bound = 0, 0
		t.entryPower = 0
		t.rebuilds++
		t.gen++
	}
	return nil
}
