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
	"fmt"

	"github.com/cockroachdb/errors"
)

// Signal is returned by traversal and update callbacks to direct what happens
// next. The numeric values are part of the C API.
type Signal int

const (
	// Continue proceeds to the next entry.
	Continue Signal = iota
	// Stop ends the traversal without error.
	Stop
	// Delete removes the entry that was just visited and proceeds.
	Delete
	// Check verifies that the table was not structurally modified by the
	// callback and proceeds.
	Check
)

func (s Signal) String() string {
	switch s {
	case Continue:
		return "continue"
	case Stop:
		return "stop"
	case Delete:
		return "delete"
	case Check:
		return "check"
	}
	return fmt.Sprintf("signal(%d)", int(s))
}

// Foreach calls fn for each live entry of the table in insertion order. The
// Signal returned by fn directs the traversal. Entries the callback appends
// are visited as well, but only a callback returning Check learns about such
// changes. A rebuild of the table during the callback is always reported as
// ErrConcurrentModification, since it invalidates the traversal position.
func (t *Table[K, V]) Foreach(fn func(key K, value V) Signal) error {
	return t.foreach(fn, false)
}

// ForeachCheck is like Foreach, except that every structural change made to
// the table by the callback is reported as ErrConcurrentModification.
// Deletes requested through the Delete signal are permitted.
func (t *Table[K, V]) ForeachCheck(fn func(key K, value V) Signal) error {
	return t.foreach(fn, true)
}

func (t *Table[K, V]) foreach(fn func(key K, value V) Signal, check bool) error {
	gen := t.gen
	rebuilds := t.rebuilds
	for i := t.start; i < t.bound; i++ {
		e := &t.entries[i]
		if e.deleted() {
			continue
		}
		sig := fn(e.key, e.value)

		if t.rebuilds != rebuilds {
			return errors.Wrapf(ErrConcurrentModification, "table rebuilt while visiting entry %d", i)
		}
		if (check || sig == Check) && t.gen != gen {
			return errors.Wrapf(ErrConcurrentModification, "table modified while visiting entry %d", i)
		}

		switch sig {
		case Stop:
			return nil
		case Delete:
			// The callback may have deleted the entry itself, or cleared the
			// table.
			if i < t.bound && !t.entries[i].deleted() {
				t.tombstone(i)
				gen++
			}
			if t.used == 0 {
				return nil
			}
		}
	}
	return nil
}
