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
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/st"
	"github.com/puzpuzpuz/xsync/v3"
)

// state is the Go side of a live handle.
type state struct {
	hdr *Table
	ht  *HashType
	t   *st.Table[Data, Data]
}

// sync publishes the entry count in the header.
func (s *state) sync() {
	s.hdr.numEntries = Index(s.t.Len())
}

var (
	handles = xsync.NewMapOf[uint32, *state]()
	headers = newArena()
	lastID  atomic.Uint32
)

// register publishes t under a new header.
func register(ht *HashType, t *st.Table[Data, Data]) (*Table, error) {
	hdr, err := headers.alloc()
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "allocating table header"), st.ErrAllocationFailed)
	}
	id := lastID.Add(1)
	for id == 0 {
		id = lastID.Add(1)
	}
	s := &state{hdr: hdr, ht: ht, t: t}
	hdr.id = id
	hdr.magic = liveMagic
	hdr.typ = ht.Addr
	s.sync()
	handles.Store(id, s)
	if debug {
		fmt.Printf("register: id=%d hdr=%p\n", id, hdr)
	}
	return hdr, nil
}

// lookup resolves a header to its state. Headers that were freed, or that
// were never handed out by register, are rejected.
func lookup(hdr *Table) (*state, error) {
	if !hdr.live() {
		return nil, ErrInvalidHandle
	}
	s, ok := handles.Load(hdr.id)
	if !ok || s.hdr != hdr {
		return nil, ErrInvalidHandle
	}
	return s, nil
}

// unregister drops the handle and poisons its header.
func unregister(s *state) {
	handles.Delete(s.hdr.id)
	if debug {
		fmt.Printf("unregister: id=%d hdr=%p\n", s.hdr.id, s.hdr)
	}
	headers.release(s.hdr)
}

// Live returns the number of tables that have not been freed.
func Live() int {
	return handles.Size()
}
