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
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestCompareFunctions(t *testing.T) {
	require.Equal(t, 0, NumCmp(5, 5))
	require.Equal(t, 1, NumCmp(5, 6))
	require.EqualValues(t, 5, NumHash(5))

	require.Equal(t, 0, strCmp(cstr("abc"), cstr("abc")))
	require.Equal(t, -1, strCmp(cstr("abc"), cstr("abd")))
	require.Equal(t, 1, strCmp(cstr("b"), cstr("abc")))

	testCases := []struct {
		s1, s2 string
		n      uintptr
		cmp    int
		ncmp   int
	}{
		{"hello", "HELLO", 5, 0, 0},
		{"hello", "help", 3, 1, 0},
		{"abc", "abd", 10, -1, -1},
		{"ab", "abc", 10, -1, -1},
		{"abc", "ab", 10, 1, 1},
		{"Zeta", "alpha", 10, -1, 1},
		{"", "", 1, 0, 0},
	}
	for _, c := range testCases {
		t.Run(c.s1+"/"+c.s2, func(t *testing.T) {
			require.Equal(t, c.cmp, StrCaseCmp(cstr(c.s1), cstr(c.s2)))
			require.Equal(t, c.ncmp, StrNCaseCmp(cstr(c.s1), cstr(c.s2), c.n))
		})
	}
}

func TestCString(t *testing.T) {
	require.Equal(t, "", cString(0))
	require.Equal(t, "abc", cString(cstr("abc")))

	b := pinned[len(pinned)-1]
	require.Equal(t, unsafe.Pointer(&b[0]), cPtr(Data(uintptr(unsafe.Pointer(&b[0])))))
	require.Equal(t, 0, StrNCaseCmp(cstr("abcX"), cstr("ABCy"), 3))
}

func TestHashFunctions(t *testing.T) {
	require.Equal(t, strHash(cstr("key")), strHash(cstr("key")))
	require.NotEqual(t, strHash(cstr("key")), strHash(cstr("KEY")))
	require.Equal(t, strCaseHash(cstr("key")), strCaseHash(cstr("KEY")))

	data := []byte("the quick brown fox")
	require.Equal(t, Hash(data, 1), Hash(data, 1))
	require.NotEqual(t, Hash(data, 1), Hash(data, 2))
	require.NotEqual(t, HashUint32(0, 1), HashUint32(0, 2))
	require.NotEqual(t, HashUint(0, 1), HashUint(1, 1))
	require.Equal(t, HashStart(7), HashStart(7))
	require.NotEqual(t, HashEnd(1), HashEnd(2))
}

func TestPolicy(t *testing.T) {
	p := policy{StrCaseHashType}
	a, b := cstr("Ruby"), cstr("rUBY")
	require.True(t, p.Equal(a, b))
	require.True(t, p.Equal(a, a))
	require.Equal(t, p.Hash(a), p.Hash(b))
	require.False(t, p.Equal(a, cstr("Go")))
}

func TestErrno(t *testing.T) {
	require.Equal(t, "ok", ErrnoOK.String())
	require.Equal(t, "invalid handle", ErrnoInvalidHandle.String())
	require.Equal(t, "errno(9)", Errno(9).String())
	require.Equal(t, ErrnoInvalidHandle, errnoOf(ErrInvalidHandle))

	// The codes are part of the C interface.
	for i, e := range []Errno{
		ErrnoOK, ErrnoInvalidHandle, ErrnoConcurrentModification,
		ErrnoAllocationFailed, ErrnoPolicyViolation,
	} {
		require.EqualValues(t, i, e)
	}
}
