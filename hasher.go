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
	"bytes"
	"hash/maphash"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/exp/constraints"
)

const (
	// reservedHash is never cached for a live entry. Entries whose hash field
	// holds it are tombstones.
	reservedHash uint64 = ^uint64(0)
	// reservedHashSubstitute replaces a real hash equal to reservedHash.
	reservedHashSubstitute uint64 = 0
)

// Hasher is the hashing policy of a Table: a hash function and an equality
// predicate over keys of type K. Implementations must guarantee that
// Equal(a, b) implies Hash(a) == Hash(b), and must return the same results
// for the same keys for as long as a table uses them. They are not required
// to agree across policies or process runs.
//
// A Hasher is shared by a Table and its copies and is never mutated by them.
type Hasher[K any] interface {
	Hash(key K) uint64
	Equal(a, b K) bool
}

// hashOf computes the hash of key under h, substituting the reserved value.
func hashOf[K any](h Hasher[K], key K) uint64 {
	v := h.Hash(key)
	if v == reservedHash {
		return reservedHashSubstitute
	}
	return v
}

// IntHasher hashes integer keys by mixing their bits, so that keys which
// differ only in their high bits still spread across the hash index.
type IntHasher[K constraints.Integer] struct{}

// Hash implements Hasher.
func (IntHasher[K]) Hash(key K) uint64 {
	return Mix64(uint64(key))
}

// Equal implements Hasher.
func (IntHasher[K]) Equal(a, b K) bool {
	return a == b
}

// Mix64 is the 64-bit finalizer of MurmurHash3. It is a bijection, so
// distinct inputs never collide.
func Mix64(x uint64) uint64 {
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return x
}

// StringHasher hashes string keys with xxHash.
type StringHasher[K ~string] struct{}

// Hash implements Hasher.
func (StringHasher[K]) Hash(key K) uint64 {
	return xxhash.Sum64String(string(key))
}

// Equal implements Hasher.
func (StringHasher[K]) Equal(a, b K) bool {
	return a == b
}

// BytesHasher hashes byte slice keys with xxHash. Byte slices are not
// comparable, so they can only be used as keys through an explicit policy.
// Callers must not mutate a slice after using it as a key.
type BytesHasher struct{}

// Hash implements Hasher.
func (BytesHasher) Hash(key []byte) uint64 {
	return xxhash.Sum64(key)
}

// Equal implements Hasher.
func (BytesHasher) Equal(a, b []byte) bool {
	return bytes.Equal(a, b)
}

// FoldHasher hashes string keys ignoring ASCII case. Bytes outside of
// A-Z are compared exactly, independent of the locale.
type FoldHasher[K ~string] struct{}

// Hash implements Hasher.
func (FoldHasher[K]) Hash(key K) uint64 {
	var buf [64]byte
	d := xxhash.New()
	s := string(key)
	for len(s) > 0 {
		n := copy(buf[:], s)
		for i := 0; i < n; i++ {
			buf[i] = toLowerASCII(buf[i])
		}
		_, _ = d.Write(buf[:n])
		s = s[n:]
	}
	return d.Sum64()
}

// Equal implements Hasher.
func (FoldHasher[K]) Equal(a, b K) bool {
	return CompareFold(string(a), string(b)) == 0
}

// CompareFold compares a and b ignoring ASCII case. Shorter strings order
// before longer ones; strings of equal length order by their first differing
// lowered byte.
func CompareFold(a, b string) int {
	switch {
	case len(a) > len(b):
		return 1
	case len(a) < len(b):
		return -1
	}
	for i := 0; i < len(a); i++ {
		c1, c2 := toLowerASCII(a[i]), toLowerASCII(b[i])
		switch {
		case c1 > c2:
			return 1
		case c1 < c2:
			return -1
		}
	}
	return 0
}

func toLowerASCII(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

// ComparableHasher hashes any comparable key with hash/maphash using a seed
// chosen when the hasher is created. It is the default policy of New.
type ComparableHasher[K comparable] struct {
	seed maphash.Seed
}

// NewComparableHasher returns a ComparableHasher with a random seed.
func NewComparableHasher[K comparable]() ComparableHasher[K] {
	return ComparableHasher[K]{seed: maphash.MakeSeed()}
}

// Hash implements Hasher.
func (h ComparableHasher[K]) Hash(key K) uint64 {
	return maphash.Comparable(h.seed, key)
}

// Equal implements Hasher.
func (ComparableHasher[K]) Equal(a, b K) bool {
	return a == b
}

// FuncHasher adapts a pair of functions to the Hasher interface. It is the
// escape hatch for keys that are only reachable through an opaque
// representation, such as foreign pointers.
type FuncHasher[K any] struct {
	HashFunc  func(key K) uint64
	EqualFunc func(a, b K) bool
}

// Hash implements Hasher.
func (h FuncHasher[K]) Hash(key K) uint64 {
	return h.HashFunc(key)
}

// Equal implements Hasher.
func (h FuncHasher[K]) Equal(a, b K) bool {
	return h.EqualFunc(a, b)
}
