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

// Package capi exports the table API under the names and signatures of
// st.h, so that the library can replace st.c in a program written in C.
// Build it into a library through cmd/libst.
//
// The functions here only convert between C and Go types. The semantics,
// including the handling of freed handles and the return codes, live in
// package ffi.
package capi

/*
#include "st_types.h"
#include "trampoline.h"
*/
import "C"

import (
	"unsafe"

	"github.com/cockroachdb/st/ffi"
	"github.com/puzpuzpuz/xsync/v3"
)

// foreignTypes caches the HashType of each st_hash_type seen by
// st_init_table, keyed by its address.
var foreignTypes = xsync.NewMapOf[uintptr, *ffi.HashType]()

func init() {
	ffi.NumHashType.Addr = uintptr(unsafe.Pointer(&C.st_hashtype_num))
	ffi.StrHashType.Addr = uintptr(unsafe.Pointer(&C.st_hashtype_str))
	ffi.StrCaseHashType.Addr = uintptr(unsafe.Pointer(&C.st_hashtype_strcase))
	for _, ht := range []*ffi.HashType{ffi.NumHashType, ffi.StrHashType, ffi.StrCaseHashType} {
		foreignTypes.Store(ht.Addr, ht)
	}
}

// hashType returns the HashType calling through t. The built-in types are
// served by their Go implementations.
func hashType(t *C.struct_st_hash_type) *ffi.HashType {
	if t == nil {
		return nil
	}
	addr := uintptr(unsafe.Pointer(t))
	if ht, ok := foreignTypes.Load(addr); ok {
		return ht
	}
	ht, _ := foreignTypes.LoadOrStore(addr, &ffi.HashType{
		Compare: func(x, y ffi.Data) int {
			return int(C.st_call_compare(t, C.st_data_t(x), C.st_data_t(y)))
		},
		Hash: func(x ffi.Data) ffi.Index {
			return ffi.Index(C.st_call_hash(t, C.st_data_t(x)))
		},
		Addr: addr,
	})
	return ht
}

func table(tab *C.st_table) *ffi.Table {
	return (*ffi.Table)(unsafe.Pointer(tab))
}

func cTable(tab *ffi.Table) *C.st_table {
	return (*C.st_table)(unsafe.Pointer(tab))
}

func data(p *C.st_data_t) *ffi.Data {
	return (*ffi.Data)(unsafe.Pointer(p))
}

func dataSlice(p *C.st_data_t, size C.st_index_t) []ffi.Data {
	if p == nil || size == 0 {
		return nil
	}
	return unsafe.Slice((*ffi.Data)(unsafe.Pointer(p)), int(size))
}

//export st_init_table
func st_init_table(t *C.struct_st_hash_type) *C.st_table {
	return cTable(ffi.InitTable(hashType(t)))
}

//export st_init_table_with_size
func st_init_table_with_size(t *C.struct_st_hash_type, size C.st_index_t) *C.st_table {
	return cTable(ffi.InitTableWithSize(hashType(t), ffi.Index(size)))
}

//export st_init_numtable
func st_init_numtable() *C.st_table {
	return cTable(ffi.InitNumTable())
}

//export st_init_numtable_with_size
func st_init_numtable_with_size(size C.st_index_t) *C.st_table {
	return cTable(ffi.InitNumTableWithSize(ffi.Index(size)))
}

//export st_init_strtable
func st_init_strtable() *C.st_table {
	return cTable(ffi.InitStrTable())
}

//export st_init_strtable_with_size
func st_init_strtable_with_size(size C.st_index_t) *C.st_table {
	return cTable(ffi.InitStrTableWithSize(ffi.Index(size)))
}

//export st_init_strcasetable
func st_init_strcasetable() *C.st_table {
	return cTable(ffi.InitStrCaseTable())
}

//export st_init_strcasetable_with_size
func st_init_strcasetable_with_size(size C.st_index_t) *C.st_table {
	return cTable(ffi.InitStrCaseTableWithSize(ffi.Index(size)))
}

//export st_free_table
func st_free_table(tab *C.st_table) {
	ffi.FreeTable(table(tab))
}

//export st_delete
func st_delete(tab *C.st_table, key, value *C.st_data_t) C.int {
	return C.int(ffi.Delete(table(tab), data(key), data(value)))
}

//export st_delete_safe
func st_delete_safe(tab *C.st_table, key, value *C.st_data_t, never C.st_data_t) C.int {
	return C.int(ffi.DeleteSafe(table(tab), data(key), data(value), ffi.Data(never)))
}

//export st_shift
func st_shift(tab *C.st_table, key, value *C.st_data_t) C.int {
	return C.int(ffi.Shift(table(tab), data(key), data(value)))
}

//export st_insert
func st_insert(tab *C.st_table, key, value C.st_data_t) C.int {
	return C.int(ffi.Insert(table(tab), ffi.Data(key), ffi.Data(value)))
}

//export st_insert2
func st_insert2(tab *C.st_table, key, value C.st_data_t, fn *C.st_insert_func) C.int {
	return C.int(ffi.Insert2(table(tab), ffi.Data(key), ffi.Data(value), func(k ffi.Data) ffi.Data {
		return ffi.Data(C.st_call_insert_func(fn, C.st_data_t(k)))
	}))
}

//export st_lookup
func st_lookup(tab *C.st_table, key C.st_data_t, value *C.st_data_t) C.int {
	return C.int(ffi.Lookup(table(tab), ffi.Data(key), data(value)))
}

//export st_get_key
func st_get_key(tab *C.st_table, key C.st_data_t, result *C.st_data_t) C.int {
	return C.int(ffi.GetKey(table(tab), ffi.Data(key), data(result)))
}

//export st_update
func st_update(tab *C.st_table, key C.st_data_t, fn *C.st_update_callback_func, arg C.st_data_t) C.int {
	return C.int(ffi.Update(table(tab), ffi.Data(key), func(k, v *ffi.Data, arg ffi.Data, existing int) int {
		return int(C.st_call_update_func(fn, (*C.st_data_t)(unsafe.Pointer(k)),
			(*C.st_data_t)(unsafe.Pointer(v)), C.st_data_t(arg), C.int(existing)))
	}, ffi.Data(arg)))
}

//export st_update_key
func st_update_key(tab *C.st_table, oldKey, newKey C.st_data_t) C.int {
	return C.int(ffi.UpdateKey(table(tab), ffi.Data(oldKey), ffi.Data(newKey)))
}

func foreachFunc(fn *C.st_foreach_callback_func) ffi.ForeachFunc {
	return func(k, v, arg ffi.Data, errorOccurred int) int {
		return int(C.st_call_foreach_func(fn, C.st_data_t(k), C.st_data_t(v), C.st_data_t(arg), C.int(errorOccurred)))
	}
}

//export st_foreach
func st_foreach(tab *C.st_table, fn *C.st_foreach_callback_func, arg C.st_data_t) C.int {
	return C.int(ffi.Foreach(table(tab), foreachFunc(fn), ffi.Data(arg)))
}

//export st_foreach_check
func st_foreach_check(tab *C.st_table, fn *C.st_foreach_callback_func, arg, never C.st_data_t) C.int {
	return C.int(ffi.ForeachCheck(table(tab), foreachFunc(fn), ffi.Data(arg), ffi.Data(never)))
}

//export st_keys
func st_keys(tab *C.st_table, keys *C.st_data_t, size C.st_index_t) C.st_index_t {
	return C.st_index_t(ffi.Keys(table(tab), dataSlice(keys, size)))
}

//export st_keys_check
func st_keys_check(tab *C.st_table, keys *C.st_data_t, size C.st_index_t, never C.st_data_t) C.st_index_t {
	return C.st_index_t(ffi.KeysCheck(table(tab), dataSlice(keys, size), ffi.Data(never)))
}

//export st_values
func st_values(tab *C.st_table, values *C.st_data_t, size C.st_index_t) C.st_index_t {
	return C.st_index_t(ffi.Values(table(tab), dataSlice(values, size)))
}

//export st_values_check
func st_values_check(tab *C.st_table, values *C.st_data_t, size C.st_index_t, never C.st_data_t) C.st_index_t {
	return C.st_index_t(ffi.ValuesCheck(table(tab), dataSlice(values, size), ffi.Data(never)))
}

//export st_add_direct
func st_add_direct(tab *C.st_table, key, value C.st_data_t) {
	ffi.AddDirect(table(tab), ffi.Data(key), ffi.Data(value))
}

//export st_add_direct_with_hash
func st_add_direct_with_hash(tab *C.st_table, key, value C.st_data_t, hash C.st_hash_t) {
	ffi.AddDirectWithHash(table(tab), ffi.Data(key), ffi.Data(value), ffi.HashValue(hash))
}

//export st_cleanup_safe
func st_cleanup_safe(tab *C.st_table, never C.st_data_t) {
	ffi.CleanupSafe(table(tab), ffi.Data(never))
}

//export st_clear
func st_clear(tab *C.st_table) {
	ffi.Clear(table(tab))
}

//export st_copy
func st_copy(tab *C.st_table) *C.st_table {
	return cTable(ffi.Copy(table(tab)))
}

//export st_memsize
func st_memsize(tab *C.st_table) C.size_t {
	return C.size_t(ffi.MemSize(table(tab)))
}

//export st_last_error
func st_last_error() C.int {
	return C.int(ffi.LastError())
}

//export st_numcmp
func st_numcmp(x, y C.st_data_t) C.int {
	return C.int(ffi.NumCmp(ffi.Data(x), ffi.Data(y)))
}

//export st_numhash
func st_numhash(n C.st_data_t) C.st_index_t {
	return C.st_index_t(ffi.NumHash(ffi.Data(n)))
}

//export stgo_strcmp
func stgo_strcmp(x, y C.st_data_t) C.int {
	return C.int(ffi.StrHashType.Compare(ffi.Data(x), ffi.Data(y)))
}

//export stgo_strhash
func stgo_strhash(x C.st_data_t) C.st_index_t {
	return C.st_index_t(ffi.StrHashType.Hash(ffi.Data(x)))
}

//export stgo_strcasecmp
func stgo_strcasecmp(x, y C.st_data_t) C.int {
	return C.int(ffi.StrCaseCmp(ffi.Data(x), ffi.Data(y)))
}

//export stgo_strcasehash
func stgo_strcasehash(x C.st_data_t) C.st_index_t {
	return C.st_index_t(ffi.StrCaseHashType.Hash(ffi.Data(x)))
}

//export st_locale_insensitive_strcasecmp
func st_locale_insensitive_strcasecmp(s1, s2 *C.char) C.int {
	return C.int(ffi.StrCaseCmp(ffi.Data(uintptr(unsafe.Pointer(s1))), ffi.Data(uintptr(unsafe.Pointer(s2)))))
}

//export st_locale_insensitive_strncasecmp
func st_locale_insensitive_strncasecmp(s1, s2 *C.char, n C.size_t) C.int {
	return C.int(ffi.StrNCaseCmp(ffi.Data(uintptr(unsafe.Pointer(s1))), ffi.Data(uintptr(unsafe.Pointer(s2))), uintptr(n)))
}

//export st_hash
func st_hash(ptr unsafe.Pointer, n C.size_t, h C.st_index_t) C.st_index_t {
	var b []byte
	if ptr != nil && n > 0 {
		b = unsafe.Slice((*byte)(ptr), int(n))
	}
	return C.st_index_t(ffi.Hash(b, ffi.Index(h)))
}

//export st_hash_uint32
func st_hash_uint32(h C.st_index_t, i C.uint32_t) C.st_index_t {
	return C.st_index_t(ffi.HashUint32(ffi.Index(h), uint32(i)))
}

//export st_hash_uint
func st_hash_uint(h, i C.st_index_t) C.st_index_t {
	return C.st_index_t(ffi.HashUint(ffi.Index(h), ffi.Index(i)))
}

//export st_hash_start
func st_hash_start(h C.st_index_t) C.st_index_t {
	return C.st_index_t(ffi.HashStart(ffi.Index(h)))
}

//export st_hash_end
func st_hash_end(h C.st_index_t) C.st_index_t {
	return C.st_index_t(ffi.HashEnd(ffi.Index(h)))
}
