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

import "github.com/cockroachdb/errors"

var (
	// ErrKeyNotFound is returned by operations that require the key to be
	// present in the table. Plain lookups report a miss through their ok result
	// instead.
	ErrKeyNotFound = errors.New("st: key not found")

	// ErrPolicyViolation is returned when a replacement key is not hash-equal
	// to the key it replaces under the table's Hasher.
	ErrPolicyViolation = errors.New("st: key is not hash-equal to the stored key")

	// ErrConcurrentModification is returned when a traversal observes a
	// structural change that did not go through the traversal itself.
	ErrConcurrentModification = errors.New("st: table modified during traversal")

	// ErrAllocationFailed is returned when the Allocator could not provide
	// storage for a rebuild. The table is left as it was before the operation.
	ErrAllocationFailed = errors.New("st: allocation failed")
)

func allocationFailed(cause error, what string, n int) error {
	if cause == nil {
		cause = errors.Newf("allocator returned no %s", what)
	}
	return errors.Mark(errors.Wrapf(cause, "allocating %d %s", n, what), ErrAllocationFailed)
}
