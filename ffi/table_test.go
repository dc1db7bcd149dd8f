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
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

// pinned keeps the backing arrays of C strings created by tests reachable.
var pinned [][]byte

// cstr returns a pointer to a NUL-terminated copy of s.
func cstr(s string) Data {
	b := append([]byte(s), 0)
	pinned = append(pinned, b)
	return Data(uintptr(unsafe.Pointer(&b[0])))
}

func TestHeaderLayout(t *testing.T) {
	var h Table
	switch unsafe.Sizeof(uintptr(0)) {
	case 8:
		require.EqualValues(t, 8, unsafe.Offsetof(h.typ))
		require.EqualValues(t, 16, unsafe.Offsetof(h.numEntries))
		require.EqualValues(t, 56, unsafe.Sizeof(h))
	case 4:
		require.EqualValues(t, 8, unsafe.Offsetof(h.typ))
		require.EqualValues(t, 12, unsafe.Offsetof(h.numEntries))
		require.EqualValues(t, 32, unsafe.Sizeof(h))
	}
}

func TestNumTable(t *testing.T) {
	LastError()
	tab := InitNumTable()
	require.NotNil(t, tab)
	defer FreeTable(tab)
	require.Equal(t, NumHashType.Addr, tab.Type())

	for i := Data(1); i <= 100; i++ {
		require.Equal(t, 0, Insert(tab, i*8, i))
	}
	require.EqualValues(t, 100, tab.NumEntries())
	require.Equal(t, 1, Insert(tab, 8, 1000))
	require.EqualValues(t, 100, tab.NumEntries())

	var v Data
	require.Equal(t, 1, Lookup(tab, 8, &v))
	require.EqualValues(t, 1000, v)
	require.Equal(t, 0, Lookup(tab, 7, &v))
	require.Equal(t, 1, Lookup(tab, 16, nil))

	k := Data(16)
	require.Equal(t, 1, Delete(tab, &k, &v))
	require.EqualValues(t, 16, k)
	require.EqualValues(t, 2, v)
	require.Equal(t, 0, Delete(tab, &k, &v))
	require.EqualValues(t, 0, v)
	require.EqualValues(t, 99, tab.NumEntries())
	require.EqualValues(t, 99, Len(tab))

	k = 24
	require.Equal(t, 1, DeleteSafe(tab, &k, nil, 0))
	CleanupSafe(tab, 0)
	require.EqualValues(t, 98, tab.NumEntries())
	require.Greater(t, uint64(MemSize(tab)), uint64(unsafe.Sizeof(Table{})))
	require.Equal(t, ErrnoOK, LastError())
}

func TestInvalidHandle(t *testing.T) {
	LastError()
	live := Live()
	tab := InitNumTable()
	require.Equal(t, live+1, Live())
	require.Equal(t, 0, Insert(tab, 1, 1))
	FreeTable(tab)
	require.Equal(t, live, Live())
	require.Equal(t, ErrnoOK, LastError())

	// The header stays readable but is poisoned.
	require.Equal(t, poisonMagic, tab.magic)
	require.EqualValues(t, 0, tab.NumEntries())

	FreeTable(tab)
	require.Equal(t, ErrnoInvalidHandle, LastError())
	require.Equal(t, -1, Insert(tab, 2, 2))
	require.Equal(t, ErrnoInvalidHandle, LastError())
	require.Equal(t, 0, Lookup(tab, 1, nil))
	require.Nil(t, Copy(tab))
	require.Equal(t, 1, Foreach(tab, func(_, _, _ Data, _ int) int {
		t.Fatal("unexpected call")
		return 0
	}, 0))
	require.Equal(t, ErrnoInvalidHandle, LastError())

	// Headers that were never handed out are rejected as well.
	require.Equal(t, -1, Insert(nil, 1, 1))
	require.Equal(t, -1, Insert(&Table{}, 1, 1))
	require.Equal(t, -1, Insert(&Table{id: tab.id, magic: liveMagic}, 1, 1))
	require.Equal(t, ErrnoInvalidHandle, LastError())
	require.Equal(t, ErrnoOK, LastError())

	require.Nil(t, InitTable(&HashType{Hash: NumHash}))
	require.Equal(t, ErrnoPolicyViolation, LastError())
}

func TestForeach(t *testing.T) {
	LastError()
	tab := InitNumTable()
	defer FreeTable(tab)
	for i := Data(0); i < 16; i++ {
		require.Equal(t, 0, Insert(tab, i, i*10))
	}

	var seen []Data
	require.Equal(t, 0, Foreach(tab, func(k, v, arg Data, errorOccurred int) int {
		require.EqualValues(t, 42, arg)
		require.Equal(t, 0, errorOccurred)
		require.Equal(t, k*10, v)
		seen = append(seen, k)
		if k%2 == 0 {
			return 2
		}
		return 0
	}, 42))
	require.Len(t, seen, 16)
	require.EqualValues(t, 8, tab.NumEntries())

	keys := make([]Data, 16)
	require.EqualValues(t, 8, Keys(tab, keys))
	require.Equal(t, []Data{1, 3, 5, 7, 9, 11, 13, 15}, keys[:8])

	// Stop.
	seen = seen[:0]
	require.Equal(t, 0, Foreach(tab, func(k, _, _ Data, _ int) int {
		seen = append(seen, k)
		return 1
	}, 0))
	require.Equal(t, []Data{1}, seen)

	// An unknown code continues.
	var n int
	require.Equal(t, 0, Foreach(tab, func(_, _, _ Data, _ int) int {
		n++
		return 17
	}, 0))
	require.Equal(t, 8, n)
}

func TestForeachConcurrentModification(t *testing.T) {
	testCases := []struct {
		name  string
		check bool
		code  int
	}{
		{"foreach-check-code", false, 3},
		{"foreach-check", true, 0},
	}
	for _, c := range testCases {
		t.Run(c.name, func(t *testing.T) {
			LastError()
			tab := InitNumTableWithSize(32)
			defer FreeTable(tab)
			for i := Data(0); i < 10; i++ {
				Insert(tab, i, i)
			}

			type call struct {
				key, value    Data
				errorOccurred int
			}
			var calls []call
			fn := func(k, v, _ Data, errorOccurred int) int {
				calls = append(calls, call{k, v, errorOccurred})
				if k == 3 && errorOccurred == 0 {
					Insert(tab, 100, 100)
				}
				return c.code
			}
			var res int
			if c.check {
				res = ForeachCheck(tab, fn, 0, 0)
			} else {
				res = Foreach(tab, fn, 0)
			}
			require.Equal(t, 1, res)
			require.Equal(t, ErrnoConcurrentModification, LastError())
			require.Len(t, calls, 5)
			require.Equal(t, call{0, 0, 1}, calls[4])
			require.EqualValues(t, 11, tab.NumEntries())
		})
	}
}

func TestKeysValuesCheck(t *testing.T) {
	tab := InitNumTable()
	defer FreeTable(tab)
	for i := Data(1); i <= 5; i++ {
		Insert(tab, i, i+100)
	}

	dst := make([]Data, 3)
	require.EqualValues(t, 3, Keys(tab, dst))
	require.Equal(t, []Data{1, 2, 3}, dst)
	require.EqualValues(t, 3, Values(tab, dst))
	require.Equal(t, []Data{101, 102, 103}, dst)

	dst = make([]Data, 10)
	require.EqualValues(t, 4, KeysCheck(tab, dst, 2))
	require.Equal(t, []Data{1, 3, 4, 5}, dst[:4])
	require.EqualValues(t, 4, ValuesCheck(tab, dst, 2))
	require.Equal(t, []Data{101, 103, 104, 105}, dst[:4])
	require.EqualValues(t, 0, Keys(tab, nil))
}

func TestStrTable(t *testing.T) {
	LastError()
	tab := InitStrTable()
	defer FreeTable(tab)
	for i := 0; i < 50; i++ {
		require.Equal(t, 0, Insert(tab, cstr(fmt.Sprintf("key-%d", i)), Data(i)))
	}

	// Lookups go through the content, not the pointer.
	var v Data
	require.Equal(t, 1, Lookup(tab, cstr("key-7"), &v))
	require.EqualValues(t, 7, v)
	require.Equal(t, 0, Lookup(tab, cstr("KEY-7"), &v))
	require.Equal(t, 1, Insert(tab, cstr("key-7"), 70))

	// Insert2 stores the key produced by the function.
	stored := cstr("fresh")
	require.Equal(t, 0, Insert2(tab, cstr("fresh"), 1, func(Data) Data { return stored }))
	var k Data
	require.Equal(t, 1, GetKey(tab, cstr("fresh"), &k))
	require.Equal(t, stored, k)

	require.Equal(t, -1, Insert2(tab, cstr("other"), 1, func(Data) Data { return cstr("different") }))
	require.Equal(t, ErrnoPolicyViolation, LastError())
	require.EqualValues(t, 51, tab.NumEntries())
}

func TestStrCaseTable(t *testing.T) {
	LastError()
	tab := InitStrCaseTable()
	defer FreeTable(tab)
	orig := cstr("Content-Type")
	require.Equal(t, 0, Insert(tab, orig, 1))
	require.Equal(t, 1, Insert(tab, cstr("content-type"), 2))
	require.EqualValues(t, 1, tab.NumEntries())

	var k Data
	require.Equal(t, 1, GetKey(tab, cstr("CONTENT-TYPE"), &k))
	require.Equal(t, orig, k)

	replacement := cstr("content-type")
	require.Equal(t, 1, UpdateKey(tab, cstr("CONTENT-type"), replacement))
	require.Equal(t, 1, GetKey(tab, orig, &k))
	require.Equal(t, replacement, k)

	require.Equal(t, 0, UpdateKey(tab, cstr("accept"), cstr("accept")))
	require.Equal(t, -1, UpdateKey(tab, orig, cstr("accept")))
	require.Equal(t, ErrnoPolicyViolation, LastError())
}

func TestUpdate(t *testing.T) {
	LastError()
	tab := InitNumTable()
	defer FreeTable(tab)

	add := func(key, value *Data, arg Data, existing int) int {
		if existing == 0 {
			*value = arg
		} else {
			*value += arg
		}
		return 0
	}
	require.Equal(t, 0, Update(tab, 1, add, 5))
	require.Equal(t, 1, Update(tab, 1, add, 5))
	var v Data
	require.Equal(t, 1, Lookup(tab, 1, &v))
	require.EqualValues(t, 10, v)

	require.Equal(t, 1, Update(tab, 1, func(_, _ *Data, _ Data, _ int) int { return 2 }, 0))
	require.Equal(t, 0, Lookup(tab, 1, nil))
	require.EqualValues(t, 0, tab.NumEntries())

	require.Equal(t, 0, Update(tab, 2, func(key, _ *Data, _ Data, _ int) int {
		*key = 3
		return 0
	}, 0))
	require.Equal(t, ErrnoPolicyViolation, LastError())
	require.EqualValues(t, 0, tab.NumEntries())
}

func TestShiftCopyClear(t *testing.T) {
	tab := InitNumTable()
	defer FreeTable(tab)
	for i := Data(1); i <= 20; i++ {
		Insert(tab, i, i)
	}

	var k, v Data
	require.Equal(t, 1, Shift(tab, &k, &v))
	require.EqualValues(t, 1, k)
	require.EqualValues(t, 19, tab.NumEntries())

	c := Copy(tab)
	require.NotNil(t, c)
	defer FreeTable(c)
	require.NotEqual(t, tab, c)
	require.Equal(t, tab.Type(), c.Type())
	require.EqualValues(t, 19, c.NumEntries())

	Clear(tab)
	require.EqualValues(t, 0, tab.NumEntries())
	require.Equal(t, 0, Shift(tab, &k, &v))
	require.EqualValues(t, 0, v)

	keys := make([]Data, 19)
	require.EqualValues(t, 19, Keys(c, keys))
	require.EqualValues(t, 2, keys[0])
	require.EqualValues(t, 20, keys[18])
}

func TestAddDirect(t *testing.T) {
	tab := InitNumTable()
	defer FreeTable(tab)
	for i := Data(0); i < 10; i++ {
		AddDirect(tab, i, i)
	}
	AddDirectWithHash(tab, 10, 10, HashValue(NumHash(10)))
	require.EqualValues(t, 11, tab.NumEntries())
	require.Equal(t, 1, Lookup(tab, 10, nil))
}

func TestLargeTable(t *testing.T) {
	LastError()
	const count = 1 << 14
	tab := InitNumTableWithSize(count)
	require.NotNil(t, tab)
	for i := Data(0); i < 2*count; i++ {
		require.Equal(t, 0, Insert(tab, i, i))
	}
	for i := Data(0); i < 2*count; i += 2 {
		k := i
		require.Equal(t, 1, Delete(tab, &k, nil))
	}
	require.EqualValues(t, count, tab.NumEntries())
	FreeTable(tab)
	require.Equal(t, ErrnoOK, LastError())
}

func TestArenaRecycle(t *testing.T) {
	a := newArena()
	var hdrs []*Table
	for i := 0; i < recycleDelay+10; i++ {
		h, err := a.alloc()
		require.NoError(t, err)
		h.magic = liveMagic
		hdrs = append(hdrs, h)
	}
	for _, h := range hdrs {
		a.release(h)
		require.False(t, h.live())
	}

	// The header freed first is reused first.
	h, err := a.alloc()
	require.NoError(t, err)
	require.Equal(t, hdrs[0], h)
	require.Equal(t, Table{}, *h)
}
