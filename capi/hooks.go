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

package capi

/*
#include "hooks.h"
*/
import "C"

import (
	"unsafe"

	"github.com/cockroachdb/st/ffi"
)

// The functions below call the exported API the way a C program does, with
// C function pointers and a hash type defined in hooks.c.

type hookCounts struct {
	compares, hashes, errors int
}

func hookReset() {
	C.hook_reset()
}

func hookCounters() hookCounts {
	return hookCounts{
		compares: int(C.hook_compare_calls),
		hashes:   int(C.hook_hash_calls),
		errors:   int(C.hook_error_calls),
	}
}

func hookSeen() []ffi.Data {
	seen := make([]ffi.Data, int(C.hook_seen_len()))
	for i := range seen {
		seen[i] = ffi.Data(C.hook_seen(C.int(i)))
	}
	return seen
}

func hookModTable() *ffi.Table {
	return table(st_init_table(C.hook_mod_type()))
}

func hookModTypeAddr() uintptr {
	return uintptr(unsafe.Pointer(C.hook_mod_type()))
}

func hookForeachDeleteEven(tab *ffi.Table, check bool) int {
	if check {
		return int(st_foreach_check(cTable(tab), C.hook_delete_even_fn(), 0, 0))
	}
	return int(st_foreach(cTable(tab), C.hook_delete_even_fn(), 0))
}

func hookForeachInsertAndCheck(tab *ffi.Table) int {
	arg := C.st_data_t(uintptr(unsafe.Pointer(tab)))
	return int(st_foreach(cTable(tab), C.hook_insert_and_check_fn(), arg))
}

func hookUpdate(tab *ffi.Table, key, arg ffi.Data) int {
	return int(st_update(cTable(tab), C.st_data_t(key), C.hook_accumulate_fn(), C.st_data_t(arg)))
}
