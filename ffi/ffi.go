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

// Package ffi implements the st.h table API in pure Go on top of the st
// engine. It owns everything the C entry points in package capi need besides
// cgo itself: the fixed-layout table header handed to foreign code, the
// lifecycle of those headers, the built-in hash types and the translation of
// engine errors to the integer return codes of the legacy contract.
//
// Keys and values are opaque machine words (Data). The engine never
// dereferences them, except through the Compare and Hash functions of the
// table's HashType.
//
// No panic is raised for misuse of a handle. Functions return their "miss"
// value instead and record an Errno that LastError reports.
package ffi

import (
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/st"
)

const debug = false

// Data is a key or value: st_data_t.
type Data uintptr

// Index is a size or hash result: st_index_t.
type Index uintptr

// HashValue is a precomputed key hash: st_hash_t.
type HashValue uintptr

// Errno describes why the last failing call failed.
type Errno int32

const (
	// ErrnoOK is ST_OK: no error since the last LastError call.
	ErrnoOK Errno = iota
	// ErrnoInvalidHandle is ST_EINVALID_HANDLE: a nil, freed or foreign table.
	ErrnoInvalidHandle
	// ErrnoConcurrentModification is ST_ECONCURRENT_MODIFICATION.
	ErrnoConcurrentModification
	// ErrnoAllocationFailed is ST_EALLOCATION_FAILED.
	ErrnoAllocationFailed
	// ErrnoPolicyViolation is ST_EPOLICY_VIOLATION: a replacement key that
	// is not equal to the stored one, or an incomplete hash type.
	ErrnoPolicyViolation
)

func (e Errno) String() string {
	switch e {
	case ErrnoOK:
		return "ok"
	case ErrnoInvalidHandle:
		return "invalid handle"
	case ErrnoConcurrentModification:
		return "concurrent modification"
	case ErrnoAllocationFailed:
		return "allocation failed"
	case ErrnoPolicyViolation:
		return "policy violation"
	}
	return fmt.Sprintf("errno(%d)", int32(e))
}

// ErrInvalidHandle is reported for a nil, freed or foreign table pointer.
var ErrInvalidHandle = errors.New("ffi: invalid table handle")

var lastErrno atomic.Int32

// LastError returns the code of the most recent failure and resets it to
// ErrnoOK. The code is process-wide, not per thread.
func LastError() Errno {
	return Errno(lastErrno.Swap(int32(ErrnoOK)))
}

func errnoOf(err error) Errno {
	switch {
	case err == nil:
		return ErrnoOK
	case errors.Is(err, ErrInvalidHandle):
		return ErrnoInvalidHandle
	case errors.Is(err, st.ErrConcurrentModification):
		return ErrnoConcurrentModification
	case errors.Is(err, st.ErrAllocationFailed):
		return ErrnoAllocationFailed
	case errors.Is(err, st.ErrPolicyViolation):
		return ErrnoPolicyViolation
	}
	panic(errors.AssertionFailedf("unexpected error: %+v", err))
}

// fail records err as the last error.
func fail(err error) {
	if debug {
		fmt.Printf("ffi: %+v\n", err)
	}
	lastErrno.Store(int32(errnoOf(err)))
}
