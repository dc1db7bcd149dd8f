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
	"sync"
	"unsafe"

	"github.com/puzpuzpuz/xsync/v3"
)

const (
	arenaChunkSize = 64 << 10
	headerSize     = int(unsafe.Sizeof(Table{}))
	// recycleCapacity bounds the number of poisoned headers kept for reuse.
	// Headers freed while the queue is full stay poisoned forever.
	recycleCapacity = 1024
	// recycleDelay is the number of freed headers that must be waiting
	// before the oldest one is handed out again.
	recycleDelay = 256
)

// arena hands out table headers carved from anonymous mappings. Mappings are
// never returned to the system, so a stale header pointer always refers to
// readable memory and use after free can be detected from its magic.
type arena struct {
	mu     sync.Mutex
	chunks [][]byte
	off    int
	queued int
	// recycled holds poisoned headers in the order they were freed.
	recycled *xsync.MPMCQueueOf[*Table]
}

func newArena() *arena {
	return &arena{recycled: xsync.NewMPMCQueueOf[*Table](recycleCapacity)}
}

// alloc returns a zeroed header.
func (a *arena) alloc() (*Table, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.queued > recycleDelay {
		if h, ok := a.recycled.TryDequeue(); ok {
			a.queued--
			*h = Table{}
			return h, nil
		}
	}
	if len(a.chunks) == 0 || a.off+headerSize > arenaChunkSize {
		chunk, err := mapAnon(arenaChunkSize)
		if err != nil {
			return nil, err
		}
		a.chunks = append(a.chunks, chunk)
		a.off = 0
	}
	chunk := a.chunks[len(a.chunks)-1]
	h := (*Table)(unsafe.Pointer(&chunk[a.off]))
	a.off += headerSize
	return h, nil
}

// release poisons h and queues it for reuse.
func (a *arena) release(h *Table) {
	h.poison()
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.recycled.TryEnqueue(h) {
		a.queued++
	}
}
