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
	"encoding/binary"
	"strings"
	"unsafe"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/st"
)

// HashType is the hashing policy of an ABI table: st_hash_type. Compare
// returns 0 for equal keys. Addr is the address of the foreign st_hash_type
// the policy came from; it is published in the header of tables using it and
// may be 0 for policies defined in Go.
type HashType struct {
	Compare func(x, y Data) int
	Hash    func(x Data) Index
	Addr    uintptr
}

// The built-in hash types. Their Addr is set by the C layer to the addresses
// of the matching C structs.
var (
	// NumHashType compares keys as integers and hashes them by value.
	NumHashType = &HashType{Compare: NumCmp, Hash: NumHash}
	// StrHashType treats keys as pointers to NUL-terminated strings.
	StrHashType = &HashType{Compare: strCmp, Hash: strHash}
	// StrCaseHashType is StrHashType ignoring ASCII case.
	StrCaseHashType = &HashType{Compare: StrCaseCmp, Hash: strCaseHash}
)

// policy adapts a HashType to st.Hasher. Identical words are equal without
// consulting Compare. The foreign hash is mixed, as policies such as
// NumHashType leave the low bits of aligned pointers constant.
type policy struct {
	ht *HashType
}

func (p policy) Hash(key Data) uint64 {
	return st.Mix64(uint64(p.ht.Hash(key)))
}

func (p policy) Equal(a, b Data) bool {
	return a == b || p.ht.Compare(a, b) == 0
}

// NumCmp is st_numcmp.
func NumCmp(x, y Data) int {
	if x == y {
		return 0
	}
	return 1
}

// NumHash is st_numhash.
func NumHash(n Data) Index {
	return Index(n)
}

// cPtr converts a key holding the address of foreign memory to a pointer.
// The memory is owned by C and never moved by the Go runtime.
func cPtr(p Data) unsafe.Pointer {
	return *(*unsafe.Pointer)(unsafe.Pointer(&p))
}

// cString returns the NUL-terminated string at p without copying it.
func cString(p Data) string {
	if p == 0 {
		return ""
	}
	b := (*byte)(cPtr(p))
	n := 0
	for *(*byte)(unsafe.Add(unsafe.Pointer(b), n)) != 0 {
		n++
	}
	return unsafe.String(b, n)
}

func strCmp(x, y Data) int {
	return strings.Compare(cString(x), cString(y))
}

func strHash(x Data) Index {
	return Index(xxhash.Sum64String(cString(x)))
}

func strCaseHash(x Data) Index {
	return Index(st.FoldHasher[string]{}.Hash(cString(x)))
}

// StrCaseCmp is st_locale_insensitive_strcasecmp. Shorter strings order
// first; strings of equal length compare by their ASCII-lowered bytes.
func StrCaseCmp(s1, s2 Data) int {
	return st.CompareFold(cString(s1), cString(s2))
}

// StrNCaseCmp is st_locale_insensitive_strncasecmp: it compares at most n
// bytes ignoring ASCII case, stopping at the first NUL.
func StrNCaseCmp(s1, s2 Data, n uintptr) int {
	p1, p2 := cPtr(s1), cPtr(s2)
	for i := uintptr(0); i < n; i++ {
		c1 := *(*byte)(unsafe.Add(p1, i))
		c2 := *(*byte)(unsafe.Add(p2, i))
		switch {
		case c1 == 0 && c2 == 0:
			return 0
		case c2 == 0:
			return 1
		case c1 == 0:
			return -1
		}
		c1, c2 = lowerASCII(c1), lowerASCII(c2)
		switch {
		case c1 > c2:
			return 1
		case c1 < c2:
			return -1
		}
	}
	return 0
}

func lowerASCII(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

// Hash is st_hash: xxHash of data seeded with h.
func Hash(data []byte, h Index) Index {
	var d xxhash.Digest
	d.ResetWithSeed(uint64(h))
	_, _ = d.Write(data)
	return Index(d.Sum64())
}

// HashUint32 is st_hash_uint32.
func HashUint32(h Index, i uint32) Index {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], i)
	return Hash(buf[:], h)
}

// HashUint is st_hash_uint.
func HashUint(h, i Index) Index {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(i))
	return Hash(buf[:], h)
}

// HashStart is st_hash_start.
func HashStart(h Index) Index {
	return Hash(nil, h)
}

// HashEnd is st_hash_end.
func HashEnd(h Index) Index {
	return Index(st.Mix64(uint64(h)))
}
