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
	"fmt"
	"io"
	"strconv"
	"testing"
)

type benchTypes interface {
	int32 | int64 | string
}

func BenchmarkIter(b *testing.B) {
	b.Run("impl=runtimeMap", benchSizes(benchmarkRuntimeMapIter[int64], genKeys[int64]))
	b.Run("impl=stTable", benchSizes(benchmarkTableIter[int64], genKeys[int64]))
}

func BenchmarkGetHit(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapGetHit[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkRuntimeMapGetHit[string], genKeys[string]))
	})
	b.Run("impl=stTable", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkTableGetHit[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkTableGetHit[string], genKeys[string]))
	})
}

func BenchmarkGetMiss(b *testing.B) {
	b.Run("impl=stTable", func(b *testing.B) {
		b.Run("t=Int32", benchSizes(benchmarkTableGetMiss[int32], genKeys[int32]))
		b.Run("t=Int64", benchSizes(benchmarkTableGetMiss[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkTableGetMiss[string], genKeys[string]))
	})
}

func BenchmarkInsertGrow(b *testing.B) {
	b.Run("impl=runtimeMap", benchSizes(benchmarkRuntimeMapInsertGrow[int64], genKeys[int64]))
	b.Run("impl=stTable", benchSizes(benchmarkTableInsertGrow[int64], genKeys[int64]))
}

// BenchmarkDeleteInsert measures the steady state of a table whose entries
// keep moving to the end, which exercises tombstone compaction.
func BenchmarkDeleteInsert(b *testing.B) {
	b.Run("impl=runtimeMap", benchSizes(benchmarkRuntimeMapDeleteInsert[int64], genKeys[int64]))
	b.Run("impl=stTable", benchSizes(benchmarkTableDeleteInsert[int64], genKeys[int64]))
}

func BenchmarkShift(b *testing.B) {
	b.Run("impl=stTable", benchSizes(benchmarkTableShift[int64], genKeys[int64]))
}

func benchSizes[T benchTypes](
	f func(b *testing.B, n int, genKeys func(start, end int) []T), genKeys func(start, end int) []T,
) func(*testing.B) {
	var cases = []int{
		4, 8, 16,
		64,
		512,
		4096,
		1 << 16,
	}

	return func(b *testing.B) {
		for _, n := range cases {
			b.Run("len="+strconv.Itoa(n), func(b *testing.B) { f(b, n, genKeys) })
		}
	}
}

func genKeys[T benchTypes](start, end int) []T {
	keys := make([]T, end-start)
	for i := range keys {
		switch k := any(&keys[i]).(type) {
		case *int32:
			*k = int32(start + i)
		case *int64:
			*k = int64(start + i)
		case *string:
			*k = strconv.Itoa(start + i)
		}
	}
	return keys
}

func newBenchTable[T benchTypes](n int, keys []T) *Table[T, T] {
	m := New[T, T](n)
	for _, k := range keys {
		if _, err := m.Insert(k, k); err != nil {
			panic(err)
		}
	}
	return m
}

func benchmarkRuntimeMapIter[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	m := make(map[T]T, n)
	for _, k := range genKeys(0, n) {
		m[k] = k
	}
	b.ResetTimer()
	var tmp T
	for i := 0; i < b.N; i++ {
		for k, v := range m {
			tmp += k + v
		}
	}
}

func benchmarkTableIter[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	m := newBenchTable(n, genKeys(0, n))
	b.ResetTimer()
	var tmp T
	for i := 0; i < b.N; i++ {
		_ = m.Foreach(func(k, v T) Signal {
			tmp += k + v
			return Continue
		})
	}
}

func benchmarkRuntimeMapGetHit[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	m := make(map[T]T, n)
	for _, k := range genKeys(0, n) {
		m[k] = k
	}
	// Look up with freshly generated keys so that string comparisons cannot
	// short-circuit on pointer equality.
	keys := genKeys(0, n)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m[keys[i&(n-1)]]
	}
}

func benchmarkTableGetHit[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	m := newBenchTable(n, genKeys(0, n))
	keys := genKeys(0, n)
	b.ResetTimer()
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = m.Get(keys[i&(n-1)])
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkTableGetMiss[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	m := newBenchTable(0, genKeys(0, n))
	miss := genKeys(-n, 0)
	b.ResetTimer()
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = m.Get(miss[i&(n-1)])
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkRuntimeMapInsertGrow[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	keys := genKeys(0, n)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m := make(map[T]T)
		for _, k := range keys {
			m[k] = k
		}
	}
}

func benchmarkTableInsertGrow[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	keys := genKeys(0, n)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = newBenchTable(0, keys)
	}
}

func benchmarkRuntimeMapDeleteInsert[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	m := make(map[T]T, n)
	keys := genKeys(0, n)
	for _, k := range keys {
		m[k] = k
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		j := i % n
		delete(m, keys[j])
		m[keys[j]] = keys[j]
	}
}

func benchmarkTableDeleteInsert[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	keys := genKeys(0, n)
	m := newBenchTable(n, keys)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		j := i % n
		m.Delete(keys[j])
		_, _ = m.Insert(keys[j], keys[j])
	}
}

func benchmarkTableShift[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	keys := genKeys(0, n)
	m := newBenchTable(n, keys)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		k, v, _ := m.Shift()
		_, _ = m.Insert(k, v)
	}
}
