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

// Package st is an insertion-ordered hash table. It is a Go implementation of
// the table design used by the st.c library of CRuby, and is the engine behind
// the st.h compatible C API in the capi package.
//
// # Layout
//
// A Table keeps two arrays: entries and bins.
//
//	bins:                entries:
//	+---------+          +------+------+------+------+------+------+
//	| empty   |          | hash | hash | dead | hash |      |      |
//	+---------+          | key  | key  |      | key  |      |      |
//	| index+2 | -------> | val  | val  |      | val  |      |      |
//	+---------+          +------+------+------+------+------+------+
//	| deleted |           ^ start              bound ^
//	+---------+
//
// The entries array holds (hash, key, value) triples in the order they were
// inserted. New entries are always appended at the bound. Deleting an entry
// does not move anything: the entry is marked dead by storing a reserved
// value in its hash field, and its bin is marked deleted so that probe
// sequences passing through it keep going. When the first live entry is
// deleted the start index moves past it, which keeps repeated removal of the
// oldest entry (Shift) cheap.
//
// The bins array maps a hash to the index of an entry using open
// addressing. The bins array is a power of two and twice as long as the
// entries array, so the index is never more than half full and every probe
// terminates at an empty bin. Tables with at most 8 entries have no bins and
// are searched linearly.
//
// A table is rebuilt when an append finds the entries array full. Rebuilding
// allocates arrays sized for twice the live entries (growing, keeping, or
// shrinking the table), copies the live entries over in order and drops the
// dead ones. Every slot index is invalidated by a rebuild, which is what the
// traversal functions guard against.
//
// # Traversal
//
// Foreach and ForeachCheck call a function for each live entry in insertion
// order. The function directs the traversal with a Signal, and may delete
// the entry it was given by returning Delete. Any other structural change
// made from inside the callback is detected through a generation counter
// and reported as ErrConcurrentModification.
//
// A Table is NOT goroutine-safe.
package st

import (
	"fmt"
	"math/bits"
	"strings"
	"unsafe"

	"github.com/cockroachdb/errors"
)

const (
	debug = false

	// minEntryPower is the log2 of the smallest entries array.
	minEntryPower = 2
	// maxPowerWithoutBins is the log2 of the largest entries array that is
	// searched linearly instead of through bins.
	maxPowerWithoutBins = 3
	// maxEntryPower keeps entry indexes representable in a bin.
	maxEntryPower = 30

	emptyBin   uint32 = 0
	deletedBin uint32 = 1
	binBase    uint32 = 2
)

// Entry holds a key, its value and the cached hash of the key.
type Entry[K, V any] struct {
	hash  uint64
	key   K
	value V
}

func (e *Entry[K, V]) deleted() bool {
	return e.hash == reservedHash
}

// Table is an insertion-ordered map from keys to values with Insert, Get,
// Delete, Foreach, Copy and Clear operations. Keys are hashed and compared
// by the table's Hasher, which is fixed at construction.
//
// A Table is NOT goroutine-safe.
type Table[K, V any] struct {
	hasher Hasher[K]
	// The allocator to use for the entries and bins slices.
	allocator Allocator[K, V]
	// entries has 1<<entryPower slots. Slots in [start, bound) are either
	// live or dead. Slots at and beyond bound have never been used since the
	// last rebuild.
	entries []Entry[K, V]
	// bins is nil when entryPower <= maxPowerWithoutBins, otherwise it has
	// 2<<entryPower elements.
	bins  []uint32
	start int
	bound int
	// The number of live entries.
	used       int
	entryPower uint8
	// rebuilds counts how many times entries was reallocated.
	rebuilds uint32
	// gen is bumped on every structural change: insertion of a new key,
	// deletion, rebuild and clear.
	gen uint64
}

// New constructs a new Table with the specified initial capacity, using
// ComparableHasher unless WithHasher is given. If initialCapacity is 0 the
// table starts out with zero capacity and will grow on the first insert.
func New[K comparable, V any](initialCapacity int, options ...option[K, V]) *Table[K, V] {
	return NewWithHasher[K, V](NewComparableHasher[K](), initialCapacity, options...)
}

// NewWithHasher constructs a new Table using the supplied hashing policy.
// Keys need not be comparable.
func NewWithHasher[K, V any](
	hasher Hasher[K], initialCapacity int, options ...option[K, V],
) *Table[K, V] {
	t := &Table[K, V]{
		hasher:    hasher,
		allocator: defaultAllocator[K, V]{},
	}
	for _, op := range options {
		op.apply(t)
	}

	if initialCapacity > 0 {
		// An allocation failure here leaves the table empty; the first
		// insert will retry the allocation and report the error.
		if err := t.resize(entryPowerFor(initialCapacity)); err != nil && debug {
			fmt.Printf("new(%d): %v\n", initialCapacity, err)
		}
	}
	t.checkInvariants()
	return t
}

// Close releases the table's storage back to its configured allocator. It is
// unnecessary to close a table using the default allocator. A closed table is
// empty and may be reused; Close itself is idempotent.
func (t *Table[K, V]) Close() {
	t.release()
	t.entries, t.bins = nil, nil
	t.start, t.bound, t.used = 0, 0, 0
	t.entryPower = 0
	t.gen++
}

func (t *Table[K, V]) release() {
	if t.entries != nil {
		t.allocator.FreeEntries(t.entries)
	}
	if t.bins != nil {
		t.allocator.FreeBins(t.bins)
	}
}

// Hasher returns the hashing policy of the table.
func (t *Table[K, V]) Hasher() Hasher[K] {
	return t.hasher
}

// Insert inserts an entry into the table, overwriting the value of an
// existing entry with an equal key. An overwrite leaves the stored key, its
// position in the insertion order and its cached hash untouched, and is
// reported as updated=true.
func (t *Table[K, V]) Insert(key K, value V) (updated bool, err error) {
	h := hashOf(t.hasher, key)
	if i := t.findEntry(h, key); i >= 0 {
		if debug {
			fmt.Printf("insert(updating): index=%d\n", i)
		}
		t.entries[i].value = value
		return true, nil
	}
	return false, t.appendEntry(h, key, value)
}

// InsertFunc is like Insert, except that when the key is absent fn is called
// to produce the key that is stored. The produced key must be hash-equal to
// key, otherwise ErrPolicyViolation is returned and nothing is stored. fn must
// not modify the table.
func (t *Table[K, V]) InsertFunc(key K, value V, fn func(key K) K) (updated bool, err error) {
	h := hashOf(t.hasher, key)
	if i := t.findEntry(h, key); i >= 0 {
		t.entries[i].value = value
		return true, nil
	}
	gen := t.gen
	stored := fn(key)
	if t.gen != gen {
		return false, errors.Wrap(ErrConcurrentModification, "insert key function")
	}
	if err := t.checkReplacement(h, key, stored); err != nil {
		return false, err
	}
	return false, t.appendEntry(h, stored, value)
}

// Add appends an entry without looking for an existing one. The caller must
// guarantee that no entry with an equal key is present; violating this leaves
// two entries for the key and only the older one is reachable.
func (t *Table[K, V]) Add(key K, value V) error {
	return t.appendEntry(hashOf(t.hasher, key), key, value)
}

// UpdateKey replaces the stored representation of oldKey with newKey. The new
// key must hash to the cached hash of the entry and be equal to oldKey,
// otherwise ErrPolicyViolation is returned. The entry keeps its position and
// value. ErrKeyNotFound is returned if oldKey is absent.
func (t *Table[K, V]) UpdateKey(oldKey, newKey K) error {
	h := hashOf(t.hasher, oldKey)
	i := t.findEntry(h, oldKey)
	if i < 0 {
		return ErrKeyNotFound
	}
	if err := t.checkReplacement(t.entries[i].hash, oldKey, newKey); err != nil {
		return err
	}
	t.entries[i].key = newKey
	return nil
}

// Update looks up key and calls fn with the stored key and value (or with
// key and the zero value if absent). The callback's Signal decides the
// outcome: Continue stores the possibly modified key and value, Delete
// removes an existing entry, and Stop or Check leave the table untouched. A
// modified key must be hash-equal to the original one. fn must not modify the
// table; doing so is reported as ErrConcurrentModification.
func (t *Table[K, V]) Update(
	key K, fn func(key *K, value *V, existing bool) Signal,
) (existing bool, err error) {
	h := hashOf(t.hasher, key)
	i := t.findEntry(h, key)
	var value V
	if existing = i >= 0; existing {
		key, value = t.entries[i].key, t.entries[i].value
	}
	orig := key

	gen := t.gen
	sig := fn(&key, &value, existing)
	if t.gen != gen {
		return existing, errors.Wrap(ErrConcurrentModification, "update callback")
	}

	switch sig {
	case Continue:
		if err := t.checkReplacement(h, orig, key); err != nil {
			return existing, err
		}
		if existing {
			e := &t.entries[i]
			e.key = key
			e.value = value
			return true, nil
		}
		return false, t.appendEntry(h, key, value)
	case Delete:
		if existing {
			t.tombstone(i)
		}
	}
	return existing, nil
}

// Get retrieves the value from the table for the specified key, returning
// ok=false if the key is not present.
func (t *Table[K, V]) Get(key K) (value V, ok bool) {
	if i := t.findEntry(hashOf(t.hasher, key), key); i >= 0 {
		return t.entries[i].value, true
	}
	return value, false
}

// GetKey retrieves the stored key equal to key.
func (t *Table[K, V]) GetKey(key K) (stored K, ok bool) {
	if i := t.findEntry(hashOf(t.hasher, key), key); i >= 0 {
		return t.entries[i].key, true
	}
	return stored, false
}

// Delete deletes the entry corresponding to the specified key from the table
// and returns its value. It is a noop to delete a non-existent key. The
// relative order of the remaining entries is unchanged.
func (t *Table[K, V]) Delete(key K) (value V, ok bool) {
	_, value, ok = t.DeleteEntry(key)
	return value, ok
}

// DeleteEntry is like Delete but also returns the stored key.
func (t *Table[K, V]) DeleteEntry(key K) (stored K, value V, ok bool) {
	i := t.findEntry(hashOf(t.hasher, key), key)
	if i < 0 {
		return stored, value, false
	}
	e := &t.entries[i]
	stored, value = e.key, e.value
	t.tombstone(i)
	return stored, value, true
}

// First returns the oldest live entry.
func (t *Table[K, V]) First() (key K, value V, ok bool) {
	if t.used == 0 {
		return key, value, false
	}
	// start always refers to a live entry in a non-empty table.
	e := &t.entries[t.start]
	return e.key, e.value, true
}

// Shift removes and returns the oldest live entry.
func (t *Table[K, V]) Shift() (key K, value V, ok bool) {
	if key, value, ok = t.First(); ok {
		t.tombstone(t.start)
	}
	return key, value, ok
}

// Copy returns an independent table holding the live entries of t in the
// same order, sharing t's Hasher and Allocator.
func (t *Table[K, V]) Copy() (*Table[K, V], error) {
	c := &Table[K, V]{
		hasher:    t.hasher,
		allocator: t.allocator,
	}
	if t.used == 0 {
		return c, nil
	}
	if err := c.resize(entryPowerFor(2 * t.used)); err != nil {
		return nil, err
	}
	for i := t.start; i < t.bound; i++ {
		e := &t.entries[i]
		if e.deleted() {
			continue
		}
		c.entries[c.bound] = *e
		if c.bins != nil {
			c.linkBin(e.hash, c.bound)
		}
		c.bound++
	}
	c.used = c.bound
	c.checkInvariants()
	return c, nil
}

// Clear deletes all entries from the table. The storage is kept for reuse.
func (t *Table[K, V]) Clear() {
	if t.bound > 0 {
		clear(t.entries[t.start:t.bound])
	}
	clear(t.bins)
	t.start, t.bound, t.used = 0, 0, 0
	t.gen++
	t.checkInvariants()
}

// Len returns the number of live entries in the table.
func (t *Table[K, V]) Len() int {
	return t.used
}

// Capacity returns the number of entries the table can hold before the next
// rebuild, counting dead entries.
func (t *Table[K, V]) Capacity() int {
	return len(t.entries)
}

// Generation returns a counter that changes whenever the table is
// structurally modified.
func (t *Table[K, V]) Generation() uint64 {
	return t.gen
}

// Rebuilds returns the number of times the table's storage was rebuilt.
func (t *Table[K, V]) Rebuilds() uint32 {
	return t.rebuilds
}

// Keys appends the keys of the table to dst in insertion order.
func (t *Table[K, V]) Keys(dst []K) []K {
	for i := t.start; i < t.bound; i++ {
		if e := &t.entries[i]; !e.deleted() {
			dst = append(dst, e.key)
		}
	}
	return dst
}

// Values appends the values of the table to dst in insertion order.
func (t *Table[K, V]) Values(dst []V) []V {
	for i := t.start; i < t.bound; i++ {
		if e := &t.entries[i]; !e.deleted() {
			dst = append(dst, e.value)
		}
	}
	return dst
}

// MemSize estimates the memory used by the table in bytes. Memory
// referenced by keys and values is not included.
func (t *Table[K, V]) MemSize() uintptr {
	var e Entry[K, V]
	return unsafe.Sizeof(*t) +
		uintptr(len(t.entries))*unsafe.Sizeof(e) +
		uintptr(len(t.bins))*unsafe.Sizeof(uint32(0))
}

// findEntry returns the index of the live entry with the given hash and a key
// equal to key, or -1.
func (t *Table[K, V]) findEntry(h uint64, key K) int {
	if t.bins == nil {
		for i := t.start; i < t.bound; i++ {
			e := &t.entries[i]
			if e.hash == h && t.hasher.Equal(key, e.key) {
				return i
			}
		}
		return -1
	}

	seq := makeProbeSeq(h, uint64(len(t.bins)-1))
	if debug {
		fmt.Printf("find(%x): %s\n", h, seq)
	}
	for ; ; seq = seq.next() {
		switch b := t.bins[seq.offset]; b {
		case emptyBin:
			return -1
		case deletedBin:
			continue
		default:
			i := int(b - binBase)
			// Dead entries carry reservedHash, which no lookup hash equals.
			if e := &t.entries[i]; e.hash == h && t.hasher.Equal(key, e.key) {
				return i
			}
		}
	}
}

// appendEntry stores a new entry at the bound, rebuilding first if the
// entries array is full. The key must not be present.
func (t *Table[K, V]) appendEntry(h uint64, key K, value V) error {
	if t.bound == len(t.entries) {
		if err := t.rebuild(); err != nil {
			return err
		}
	}
	i := t.bound
	t.entries[i] = Entry[K, V]{hash: h, key: key, value: value}
	if t.bins != nil {
		t.linkBin(h, i)
	}
	t.bound++
	t.used++
	t.gen++
	if debug {
		fmt.Printf("append: index=%d used=%d bound=%d\n", i, t.used, t.bound)
	}
	t.checkInvariants()
	return nil
}

// linkBin points the first empty or deleted bin on the probe path of h at
// entry i.
func (t *Table[K, V]) linkBin(h uint64, i int) {
	for seq := makeProbeSeq(h, uint64(len(t.bins)-1)); ; seq = seq.next() {
		if b := t.bins[seq.offset]; b == emptyBin || b == deletedBin {
			t.bins[seq.offset] = uint32(i) + binBase
			return
		}
	}
}

// tombstone marks entry i dead and unlinks it from the bins. The probe path
// is walked by the cached hash, comparing bin values only.
func (t *Table[K, V]) tombstone(i int) {
	e := &t.entries[i]
	if t.bins != nil {
		want := uint32(i) + binBase
		for seq := makeProbeSeq(e.hash, uint64(len(t.bins)-1)); ; seq = seq.next() {
			b := t.bins[seq.offset]
			if b == want {
				t.bins[seq.offset] = deletedBin
				break
			}
			if b == emptyBin {
				panic(errors.AssertionFailedf("entry %d is not linked from its bins", i))
			}
		}
	}
	*e = Entry[K, V]{hash: reservedHash}
	t.used--
	t.gen++

	switch {
	case t.used == 0:
		// Reset the window so the next append starts from the front again.
		clear(t.entries[t.start:t.bound])
		clear(t.bins)
		t.start, t.bound = 0, 0
	case i == t.start:
		for t.start++; t.entries[t.start].deleted(); t.start++ {
		}
	}
	if debug {
		fmt.Printf("delete: index=%d used=%d start=%d bound=%d\n", i, t.used, t.start, t.bound)
	}
	t.checkInvariants()
}

// checkReplacement verifies that key may replace orig in an entry whose
// cached hash is h.
func (t *Table[K, V]) checkReplacement(h uint64, orig, key K) error {
	if nh := hashOf(t.hasher, key); nh != h {
		return errors.Wrapf(ErrPolicyViolation, "hash %#x differs from stored hash %#x", nh, h)
	}
	if !t.hasher.Equal(orig, key) {
		return errors.Wrap(ErrPolicyViolation, "keys are not equal")
	}
	return nil
}

// rebuild reallocates the table for the current number of live entries. The
// new entries array holds at least twice the live entries, which grows a
// full table, keeps the size of one that is half dead, and shrinks one that
// is mostly dead.
func (t *Table[K, V]) rebuild() error {
	return t.resize(entryPowerFor(2 * t.used))
}

// resize moves the live entries into newly allocated arrays of 1<<power
// entries. Nothing is modified until both arrays have been allocated.
func (t *Table[K, V]) resize(power uint8) error {
	if power > maxEntryPower {
		return errors.Wrapf(ErrAllocationFailed, "%d entries exceed the maximum table size", t.used)
	}
	n := 1 << power
	entries, err := t.allocator.AllocEntries(n)
	if err != nil || len(entries) < n {
		return allocationFailed(err, "entries", n)
	}
	var newBins []uint32
	if power > maxPowerWithoutBins {
		newBins, err = t.allocator.AllocBins(2 * n)
		if err != nil || len(newBins) < 2*n {
			t.allocator.FreeEntries(entries)
			return allocationFailed(err, "bins", 2*n)
		}
		newBins = newBins[:2*n]
		clear(newBins)
	}

	if debug {
		fmt.Printf("rebuild: capacity=%d->%d used=%d dead=%d\n",
			len(t.entries), n, t.used, t.bound-t.start-t.used)
	}

	j := 0
	for i := t.start; i < t.bound; i++ {
		if e := &t.entries[i]; !e.deleted() {
			entries[j] = *e
			j++
		}
	}
	t.release()

	t.entries = entries
	t.bins = newBins
	t.start, t.bound = 0, j
	t.entryPower = power
	t.rebuilds++
	t.gen++
	if t.bins != nil {
		for i := 0; i < j; i++ {
			t.linkBin(t.entries[i].hash, i)
		}
	}
	t.checkInvariants()
	return nil
}

// entryPowerFor returns the log2 of the smallest entries array holding n
// entries.
func entryPowerFor(n int) uint8 {
	if n <= 1<<minEntryPower {
		return minEntryPower
	}
	return uint8(bits.Len(uint(n - 1)))
}

func (t *Table[K, V]) checkInvariants() {
	if invariants {
		if t.used > t.bound-t.start || t.bound > len(t.entries) || t.start > t.bound {
			panic(errors.AssertionFailedf("invariant failed: used=%d start=%d bound=%d capacity=%d\n%s",
				t.used, t.start, t.bound, len(t.entries), t.debugString()))
		}
		if t.used > 0 && t.entries[t.start].deleted() {
			panic(errors.AssertionFailedf("invariant failed: start=%d is dead\n%s", t.start, t.debugString()))
		}
		if (t.bins == nil) != (t.entryPower <= maxPowerWithoutBins) && len(t.entries) > 0 {
			panic(errors.AssertionFailedf("invariant failed: bins=%d for capacity=%d", len(t.bins), len(t.entries)))
		}

		// For every live entry, verify we can retrieve the key. Count the
		// number of live entries.
		var used int
		for i := t.start; i < t.bound; i++ {
			e := &t.entries[i]
			if e.deleted() {
				continue
			}
			if j := t.findEntry(e.hash, e.key); j != i {
				panic(errors.AssertionFailedf("invariant failed: entry(%d): found at %d [hash=%x]\n%s",
					i, j, e.hash, t.debugString()))
			}
			used++
		}
		if used != t.used {
			panic(errors.AssertionFailedf("invariant failed: found %d live entries, but used count is %d\n%s",
				used, t.used, t.debugString()))
		}

		var linked int
		for _, b := range t.bins {
			if b >= binBase {
				linked++
			}
		}
		if t.bins != nil && linked != t.used {
			panic(errors.AssertionFailedf("invariant failed: %d linked bins for %d live entries\n%s",
				linked, t.used, t.debugString()))
		}
	}
}

func (t *Table[K, V]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d  used=%d  start=%d  bound=%d  rebuilds=%d\n",
		len(t.entries), t.used, t.start, t.bound, t.rebuilds)
	for i := t.start; i < t.bound; i++ {
		e := &t.entries[i]
		if e.deleted() {
			fmt.Fprintf(&buf, "  %4d: dead\n", i)
		} else {
			fmt.Fprintf(&buf, "  %4d: %v [hash=%016x]\n", i, e.key, e.hash)
		}
	}
	for i, b := range t.bins {
		switch b {
		case emptyBin:
		case deletedBin:
			fmt.Fprintf(&buf, "  bin %4d: deleted\n", i)
		default:
			fmt.Fprintf(&buf, "  bin %4d: -> %d\n", i, b-binBase)
		}
	}
	return buf.String()
}

// probeSeq maintains the state for a probe sequence over the bins. The
// sequence is a triangular progression of the form
//
//	p(i) := (i^2 + i)/2 + hash (mod mask+1)
//
// It turns out that this probe sequence visits every bin exactly once if the
// number of bins is a power of two, since (i^2+i)/2 is a bijection in
// Z/(2^m). See https://en.wikipedia.org/wiki/Quadratic_probing
//
// The high half of the hash is folded into the starting offset so that
// policies which leave the low bits constant still spread.
type probeSeq struct {
	mask   uint64
	offset uint64
	index  uint64
}

func makeProbeSeq(hash, mask uint64) probeSeq {
	return probeSeq{
		mask:   mask,
		offset: (hash ^ hash>>32) & mask,
		index:  0,
	}
}

func (s probeSeq) next() probeSeq {
	s.index++
	s.offset = (s.offset + s.index) & s.mask
	return s
}

func (s probeSeq) String() string {
	return fmt.Sprintf("mask=%d offset=%d index=%d", s.mask, s.offset, s.index)
}
