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

// mmapThreshold is the size from which entry and bin arrays are mapped
// directly instead of allocated on the Go heap.
const mmapThreshold = 256 << 10

var (
	entrySize = int(unsafe.Sizeof(st.Entry[Data, Data]{}))
	binSize   = int(unsafe.Sizeof(uint32(0)))
)

// mmapAllocator backs large tables with anonymous mappings. Entries of an ABI
// table hold no Go pointers, so they may live outside of the Go heap, and the
// failure of a large mapping surfaces as st.ErrAllocationFailed rather than
// as a fatal runtime error.
type mmapAllocator struct{}

var _ st.Allocator[Data, Data] = mmapAllocator{}

func (mmapAllocator) AllocEntries(n int) ([]st.Entry[Data, Data], error) {
	size := n * entrySize
	if size < mmapThreshold {
		return make([]st.Entry[Data, Data], n), nil
	}
	b, err := mapAnon(size)
	if err != nil {
		return nil, errors.Wrapf(err, "mapping %d bytes", size)
	}
	return unsafe.Slice((*st.Entry[Data, Data])(unsafe.Pointer(&b[0])), n), nil
}

func (mmapAllocator) AllocBins(n int) ([]uint32, error) {
	size := n * binSize
	if size < mmapThreshold {
		return make([]uint32, n), nil
	}
	b, err := mapAnon(size)
	if err != nil {
		return nil, errors.Wrapf(err, "mapping %d bytes", size)
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&b[0])), n), nil
}

func (mmapAllocator) FreeEntries(v []st.Entry[Data, Data]) {
	if size := cap(v) * entrySize; size >= mmapThreshold {
		unmap(unsafe.Pointer(unsafe.SliceData(v)), size)
	}
}

func (mmapAllocator) FreeBins(v []uint32) {
	if size := cap(v) * binSize; size >= mmapThreshold {
		unmap(unsafe.Pointer(unsafe.SliceData(v)), size)
	}
}

func unmap(p unsafe.Pointer, size int) {
	if err := unmapAnon(unsafe.Slice((*byte)(p), size)); err != nil {
		panic(errors.AssertionFailedf("unmapping %d bytes: %v", size, err))
	}
}
