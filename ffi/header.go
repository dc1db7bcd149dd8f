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

// Table is the header of a table as seen by C code. Its layout matches the
// public part of the legacy st_table struct: the hash type pointer and the
// entry count live at the same offsets, and the struct has the same size, so
// macros such as RHASH_SIZE keep working. The fields that st.c uses for its
// private bookkeeping hold the handle id and a liveness marker instead.
//
// Headers are allocated outside of the Go heap, so foreign code may keep
// pointers to them. A header is never unmapped; a freed header is poisoned
// and eventually reused.
type Table struct {
	id    uint32
	magic uint32
	// typ is the address of the foreign st_hash_type.
	typ        uintptr
	numEntries Index
	_          [4]uintptr
}

const (
	liveMagic   uint32 = 0x7374626c
	poisonMagic uint32 = 0xdeadbeef
)

// Type returns the address of the table's st_hash_type, as published in the
// type field of the header.
func (h *Table) Type() uintptr {
	return h.typ
}

// NumEntries returns the entry count published in the header.
func (h *Table) NumEntries() Index {
	return h.numEntries
}

func (h *Table) live() bool {
	return h != nil && h.magic == liveMagic
}

func (h *Table) poison() {
	h.magic = poisonMagic
	h.typ = 0
	h.numEntries = 0
}
