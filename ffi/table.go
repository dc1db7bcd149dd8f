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

package ffi

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/st"
)

// ForeachFunc is the callback of Foreach and ForeachCheck. errorOccurred is 1
// for the final call made after a concurrent modification was detected, in
// which case key and value are 0 and the result is ignored.
type ForeachFunc func(key, value, arg Data, errorOccurred int) int

// UpdateFunc is the callback of Update. The key may be replaced by an equal
// key; the value may be replaced freely.
type UpdateFunc func(key, value *Data, arg Data, existing int) int

// InitTable creates a table using ht.
func InitTable(ht *HashType) *Table {
	return InitTableWithSize(ht, 0)
}

// InitTableWithSize creates a table using ht that holds size entries
// without rebuilding. It returns nil if memory for the header could not be
// obtained.
func InitTableWithSize(ht *HashType, size Index) *Table {
	if ht == nil || ht.Compare == nil || ht.Hash == nil {
		fail(errors.Wrap(st.ErrPolicyViolation, "incomplete hash type"))
		return nil
	}
	t := st.NewWithHasher[Data, Data](policy{ht}, int(size),
		st.WithAllocator[Data, Data](mmapAllocator{}))
	hdr, err := register(ht, t)
	if err != nil {
		t.Close()
		fail(err)
		return nil
	}
	return hdr
}

// InitNumTable is st_init_numtable.
func InitNumTable() *Table {
	return InitTable(NumHashType)
}

// InitNumTableWithSize is st_init_numtable_with_size.
func InitNumTableWithSize(size Index) *Table {
	return InitTableWithSize(NumHashType, size)
}

// InitStrTable is st_init_strtable.
func InitStrTable() *Table {
	return InitTable(StrHashType)
}

// InitStrTableWithSize is st_init_strtable_with_size.
func InitStrTableWithSize(size Index) *Table {
	return InitTableWithSize(StrHashType, size)
}

// InitStrCaseTable is st_init_strcasetable.
func InitStrCaseTable() *Table {
	return InitTable(StrCaseHashType)
}

// InitStrCaseTableWithSize is st_init_strcasetable_with_size.
func InitStrCaseTableWithSize(size Index) *Table {
	return InitTableWithSize(StrCaseHashType, size)
}

// FreeTable releases the table. Freeing a table twice is detected and
// reported as ErrnoInvalidHandle.
func FreeTable(tab *Table) {
	s, err := lookup(tab)
	if err != nil {
		fail(err)
		return
	}
	unregister(s)
	s.t.Close()
}

// Insert stores value under key. It returns 0 if the key was added, 1 if an
// existing value was replaced, and -1 on failure.
func Insert(tab *Table, key, value Data) int {
	s, err := lookup(tab)
	if err != nil {
		fail(err)
		return -1
	}
	updated, err := s.t.Insert(key, value)
	s.sync()
	if err != nil {
		fail(err)
		return -1
	}
	return boolToInt(updated)
}

// Insert2 is like Insert, but stores fn(key) instead of key when the key is
// added.
func Insert2(tab *Table, key, value Data, fn func(Data) Data) int {
	s, err := lookup(tab)
	if err != nil {
		fail(err)
		return -1
	}
	updated, err := s.t.InsertFunc(key, value, fn)
	s.sync()
	if err != nil {
		fail(err)
		return -1
	}
	return boolToInt(updated)
}

// AddDirect appends an entry for a key the caller knows to be absent.
func AddDirect(tab *Table, key, value Data) {
	s, err := lookup(tab)
	if err != nil {
		fail(err)
		return
	}
	err = s.t.Add(key, value)
	s.sync()
	if err != nil {
		fail(err)
	}
}

// AddDirectWithHash is AddDirect. The precomputed hash is not trusted; the
// key is rehashed with the table's hash type.
func AddDirectWithHash(tab *Table, key, value Data, _ HashValue) {
	AddDirect(tab, key, value)
}

// Lookup stores the value of key in *value (if value is not nil) and returns
// 1, or returns 0 if the key is absent.
func Lookup(tab *Table, key Data, value *Data) int {
	s, err := lookup(tab)
	if err != nil {
		fail(err)
		return 0
	}
	v, ok := s.t.Get(key)
	if !ok {
		return 0
	}
	if value != nil {
		*value = v
	}
	return 1
}

// GetKey stores the key equal to key that is held by the table in *result
// (if result is not nil) and returns 1, or returns 0 if there is none.
func GetKey(tab *Table, key Data, result *Data) int {
	s, err := lookup(tab)
	if err != nil {
		fail(err)
		return 0
	}
	k, ok := s.t.GetKey(key)
	if !ok {
		return 0
	}
	if result != nil {
		*result = k
	}
	return 1
}

// Delete removes *key. On success the stored key and value are written to
// *key and *value (if value is not nil) and 1 is returned. Otherwise *value
// is set to 0 and 0 is returned.
func Delete(tab *Table, key, value *Data) int {
	s, err := lookup(tab)
	if err != nil {
		fail(err)
		return 0
	}
	var k, v Data
	ok := false
	if key != nil {
		k, v, ok = s.t.DeleteEntry(*key)
		s.sync()
	}
	if !ok {
		if value != nil {
			*value = 0
		}
		return 0
	}
	*key = k
	if value != nil {
		*value = v
	}
	return 1
}

// DeleteSafe is Delete. Deleted entries never need to be replaced by a
// placeholder, so never is unused.
func DeleteSafe(tab *Table, key, value *Data, _ Data) int {
	return Delete(tab, key, value)
}

// CleanupSafe would remove the placeholders left by DeleteSafe. There are
// none; it only validates the handle.
func CleanupSafe(tab *Table, _ Data) {
	if _, err := lookup(tab); err != nil {
		fail(err)
	}
}

// Shift removes the oldest entry, writing it to *key and *value. It returns 0
// if the table is empty.
func Shift(tab *Table, key, value *Data) int {
	s, err := lookup(tab)
	if err != nil {
		fail(err)
		return 0
	}
	k, v, ok := s.t.Shift()
	s.sync()
	if !ok {
		if value != nil {
			*value = 0
		}
		return 0
	}
	if key != nil {
		*key = k
	}
	if value != nil {
		*value = v
	}
	return 1
}

// Update calls fn with the entry for key, or with key and a zero value if
// there is none. If fn returns the continue code the entry is stored, if it
// returns the delete code an existing entry is removed. Update returns 1 if
// the key existed before the call.
func Update(tab *Table, key Data, fn UpdateFunc, arg Data) int {
	s, err := lookup(tab)
	if err != nil {
		fail(err)
		return 0
	}
	existing, err := s.t.Update(key, func(k, v *Data, existing bool) st.Signal {
		return st.Signal(fn(k, v, arg, boolToInt(existing)))
	})
	s.sync()
	if err != nil {
		fail(err)
	}
	return boolToInt(existing)
}

// UpdateKey replaces the stored representation of oldKey with newKey. It
// returns 1 on success, 0 if oldKey is absent, and -1 if newKey is not equal
// to oldKey under the table's hash type.
func UpdateKey(tab *Table, oldKey, newKey Data) int {
	s, err := lookup(tab)
	if err != nil {
		fail(err)
		return -1
	}
	switch err := s.t.UpdateKey(oldKey, newKey); {
	case err == nil:
		return 1
	case errors.Is(err, st.ErrKeyNotFound):
		return 0
	default:
		fail(err)
		return -1
	}
}

// Foreach calls fn for every entry in insertion order. It returns 0 when the
// traversal completed or was stopped, and 1 if a concurrent modification was
// detected. In that case fn is called one final time with errorOccurred set.
func Foreach(tab *Table, fn ForeachFunc, arg Data) int {
	return foreach(tab, fn, arg, false)
}

// ForeachCheck is Foreach, verifying after every call of fn that the table
// was not modified other than by returning the delete code.
func ForeachCheck(tab *Table, fn ForeachFunc, arg Data, _ Data) int {
	return foreach(tab, fn, arg, true)
}

func foreach(tab *Table, fn ForeachFunc, arg Data, check bool) int {
	s, err := lookup(tab)
	if err != nil {
		fail(err)
		return 1
	}
	visit := func(k, v Data) st.Signal {
		s.sync()
		return toSignal(fn(k, v, arg, 0))
	}
	if check {
		err = s.t.ForeachCheck(visit)
	} else {
		err = s.t.Foreach(visit)
	}
	s.sync()
	if err != nil {
		fail(err)
		fn(0, 0, arg, 1)
		return 1
	}
	return 0
}

// toSignal maps a callback result to a Signal. Unknown codes continue.
func toSignal(code int) st.Signal {
	switch sig := st.Signal(code); sig {
	case st.Continue, st.Stop, st.Delete, st.Check:
		return sig
	}
	return st.Continue
}

// Keys copies up to len(dst) keys into dst in insertion order and returns
// how many were copied.
func Keys(tab *Table, dst []Data) Index {
	return collect(tab, dst, func(k, _ Data) Data { return k }, nil)
}

// KeysCheck is Keys skipping keys equal to never.
func KeysCheck(tab *Table, dst []Data, never Data) Index {
	return collect(tab, dst, func(k, _ Data) Data { return k }, &never)
}

// Values copies up to len(dst) values into dst in insertion order and
// returns how many were copied.
func Values(tab *Table, dst []Data) Index {
	return collect(tab, dst, func(_, v Data) Data { return v }, nil)
}

// ValuesCheck is Values skipping entries whose key equals never.
func ValuesCheck(tab *Table, dst []Data, never Data) Index {
	return collect(tab, dst, func(_, v Data) Data { return v }, &never)
}

func collect(tab *Table, dst []Data, pick func(k, v Data) Data, never *Data) Index {
	s, err := lookup(tab)
	if err != nil {
		fail(err)
		return 0
	}
	if len(dst) == 0 {
		return 0
	}
	var n int
	_ = s.t.Foreach(func(k, v Data) st.Signal {
		if never != nil && k == *never {
			return st.Continue
		}
		dst[n] = pick(k, v)
		if n++; n == len(dst) {
			return st.Stop
		}
		return st.Continue
	})
	return Index(n)
}

// Clear removes all entries.
func Clear(tab *Table) {
	s, err := lookup(tab)
	if err != nil {
		fail(err)
		return
	}
	s.t.Clear()
	s.sync()
}

// Copy returns a new table with the entries of tab, or nil on failure.
func Copy(tab *Table) *Table {
	s, err := lookup(tab)
	if err != nil {
		fail(err)
		return nil
	}
	t, err := s.t.Copy()
	if err != nil {
		fail(err)
		return nil
	}
	hdr, err := register(s.ht, t)
	if err != nil {
		t.Close()
		fail(err)
		return nil
	}
	return hdr
}

// MemSize returns the memory used by the table, including its header.
func MemSize(tab *Table) uintptr {
	s, err := lookup(tab)
	if err != nil {
		fail(err)
		return 0
	}
	return s.t.MemSize() + unsafe.Sizeof(Table{})
}

// Len returns the number of entries of the table.
func Len(tab *Table) Index {
	s, err := lookup(tab)
	if err != nil {
		fail(err)
		return 0
	}
	return Index(s.t.Len())
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
