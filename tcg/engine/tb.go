/*
 * rv64jit - Translation block model, the append-only TB store, the
 * (pc, flags) hash table and the per-CPU jump cache.
 *
 * Copyright 2025, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package engine

import (
	"sync"
	"sync/atomic"
)

const (
	// Capacity of the TB store. Exhaustion triggers a full flush.
	maxTBs = 1 << 16
	// Buckets of the (pc, flags) hash table.
	hashBuckets = 32768
	// Entries of the per-CPU direct mapped jump cache.
	jumpCacheSize = 4096
)

// jumpRef names one direct-chain edge endpoint.
type jumpRef struct {
	tb   int32
	slot uint8
}

// TB is one translation block. The translation fields are immutable
// after publication; only the chaining state mutates, guarded by mu
// and the atomic flags.
type TB struct {
	PC       uint64
	Flags    uint32
	CFlags   uint32
	HostOff  int32
	HostSize int32
	Index    int32

	// Offsets of the two patchable chain jumps and of the code
	// immediately behind them, -1 when the slot is absent.
	JmpInsnOff  [2]int32
	JmpResetOff [2]int32

	invalid atomic.Bool

	// Most recently observed successor of an indirect exit.
	exitTarget atomic.Int32

	mu       sync.Mutex
	jmpDest  [2]int32
	incoming []jumpRef
}

// Invalid reports whether the block was invalidated.
func (tb *TB) Invalid() bool {
	return tb.invalid.Load()
}

// hashNode is one immutable entry of a bucket chain. Readers walk the
// chain lock-free; all mutation happens under the engine's hash lock.
type hashNode struct {
	tb   int32
	next atomic.Pointer[hashNode]
}

// tbHash mixes (pc, flags) into a bucket index.
func tbHash(pc uint64, flags uint32) uint32 {
	h := (pc >> 2) * 0x9E3779B97F4A7C15
	h ^= uint64(flags) * 0xFF51AFD7ED558CCD
	h ^= h >> 33
	return uint32(h) & (hashBuckets - 1)
}

// tb returns the published TB with the given index. The caller must
// have observed a store length covering it.
func (e *Engine) tb(idx int32) *TB {
	return &e.tbs[idx]
}

// hashLookup finds a live TB for (pc, flags) without locking.
func (e *Engine) hashLookup(pc uint64, flags uint32) *TB {
	for n := e.buckets[tbHash(pc, flags)].Load(); n != nil; n = n.next.Load() {
		tb := e.tb(n.tb)
		if tb.PC == pc && tb.Flags == flags && !tb.invalid.Load() {
			return tb
		}
	}
	return nil
}

// hashInsert publishes a TB into its bucket.
func (e *Engine) hashInsert(tb *TB) {
	e.hashMu.Lock()
	b := &e.buckets[tbHash(tb.PC, tb.Flags)]
	n := &hashNode{tb: tb.Index}
	n.next.Store(b.Load())
	b.Store(n)
	e.hashMu.Unlock()
}

// hashRemove unlinks a TB from its bucket. Concurrent readers may
// still traverse the removed node; they reject it by its invalid flag.
func (e *Engine) hashRemove(tb *TB) {
	e.hashMu.Lock()
	b := &e.buckets[tbHash(tb.PC, tb.Flags)]
	var prev *hashNode
	for n := b.Load(); n != nil; n = n.next.Load() {
		if n.tb == tb.Index {
			if prev == nil {
				b.Store(n.next.Load())
			} else {
				prev.next.Store(n.next.Load())
			}
			break
		}
		prev = n
	}
	e.hashMu.Unlock()
}

// hashClear empties every bucket during a full flush.
func (e *Engine) hashClear() {
	e.hashMu.Lock()
	for i := range e.buckets {
		e.buckets[i].Store(nil)
	}
	e.hashMu.Unlock()
}
