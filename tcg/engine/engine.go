/*
 * rv64jit - Execution engine. Owns the code buffer, backend and TB
 * store; translates on miss and binds the pipeline into a running
 * system.
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
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/rcornwell/rv64jit/tcg/codebuf"
	"github.com/rcornwell/rv64jit/tcg/ir"
	"github.com/rcornwell/rv64jit/tcg/liveness"
	"github.com/rcornwell/rv64jit/tcg/optimize"
	"github.com/rcornwell/rv64jit/tcg/x86"
)

// Exit protocol. The raw word returned by a translation block carries
// the exit code in the low two bits and a biased source TB index (or
// the exit reason) above them. A raw word of zero carries no chain
// information at all.
const (
	ExitSlot0   = 0
	ExitSlot1   = 1
	ExitNoChain = 2
	// First non-protocol code; the word's upper bits hold the reason.
	ExitMax = 3
)

// ExitReason is a guest-visible exit surfaced to the embedder.
type ExitReason uint32

const (
	ReasonECall ExitReason = iota
	ReasonEBreak
	ReasonIllegal
)

var reasonNames = map[ExitReason]string{
	ReasonECall:   "ecall",
	ReasonEBreak:  "ebreak",
	ReasonIllegal: "illegal instruction",
}

func (r ExitReason) String() string {
	return reasonNames[r]
}

// UserExit encodes a guest-visible exit reason into an ExitTb word.
func UserExit(r ExitReason) uint64 {
	return uint64(r)<<2 | ExitMax
}

// MaxInsnsPerTB bounds the guest instruction count of one block.
const MaxInsnsPerTB = 512

// ErrNoCode reports that translation failed even after a full flush.
var ErrNoCode = errors.New("engine: translation failed after buffer flush")

// GuestCPU is the frontend contract of the execution engine.
type GuestCPU interface {
	// Current guest program counter.
	PC() uint64
	// Compilation flags, part of the TB key.
	Flags() uint32
	// Translate up to maxInsns guest instructions at pc into the
	// context, ending with a BB_EXIT op. Returns bytes consumed.
	GenCode(ctx *ir.Context, pc uint64, maxInsns int) uint32
	// Address of the CPU state structure. Must stay valid for the
	// life of the executing thread.
	EnvPtr() unsafe.Pointer
}

// Engine is the state shared by every vCPU: TB store, code buffer,
// backend and translation context. Lock order is strict: translate
// lock, then hash lock, then per-TB locks, never re-entered.
type Engine struct {
	translateMu sync.Mutex
	hashMu      sync.Mutex

	buf *codebuf.Buffer
	ctx *ir.Context
	be  *x86.Backend

	tbs     []TB
	tbCount atomic.Int32
	buckets [hashBuckets]atomic.Pointer[hashNode]

	flushGen atomic.Uint32
	flushes  atomic.Uint64
}

// New creates an engine with a code buffer of the given size and
// emits the prologue. The returned context is ready for the frontend
// to register its globals.
func New(bufSize int) (*Engine, error) {
	buf, err := codebuf.New(bufSize)
	if err != nil {
		return nil, err
	}
	ctx := ir.NewContext()
	e := &Engine{
		buf: buf,
		ctx: ctx,
		be:  x86.NewBackend(buf, ctx),
		tbs: make([]TB, maxTBs),
	}
	e.be.EmitPrologue()
	return e, nil
}

// Context returns the engine's translation context, for registering
// frontend globals before the first translation.
func (e *Engine) Context() *ir.Context {
	return e.ctx
}

// Close releases the code buffer.
func (e *Engine) Close() error {
	return e.buf.Close()
}

// Flushes returns the number of full code buffer flushes.
func (e *Engine) Flushes() uint64 {
	return e.flushes.Load()
}

// tbGenCode translates one block under the translate lock. A second
// lookup under the lock catches a concurrent translation of the same
// block.
func (e *Engine) tbGenCode(cpu GuestCPU, pc uint64, flags uint32) (*TB, error) {
	e.translateMu.Lock()
	defer e.translateMu.Unlock()

	if tb := e.hashLookup(pc, flags); tb != nil {
		return tb, nil
	}

	for attempt := 0; attempt < 2; attempt++ {
		idx := e.tbCount.Load()
		if int(idx) == maxTBs {
			e.flushLocked()
			continue
		}

		e.ctx.Reset()
		cpu.GenCode(e.ctx, pc, MaxInsnsPerTB)
		optimize.Run(e.ctx)
		liveness.Run(e.ctx)
		compiled := e.be.Compile(int(idx) + 1)

		if e.buf.Overflow() {
			e.flushLocked()
			continue
		}

		tb := &e.tbs[idx]
		tb.PC = pc
		tb.Flags = flags
		tb.Index = idx
		tb.HostOff = int32(compiled.HostOff)
		tb.HostSize = int32(compiled.HostSize)
		for s := 0; s < 2; s++ {
			tb.JmpInsnOff[s] = int32(compiled.JmpInsnOff[s])
			tb.JmpResetOff[s] = int32(compiled.JmpResetOff[s])
			tb.jmpDest[s] = -1
		}
		tb.incoming = tb.incoming[:0]
		tb.invalid.Store(false)
		tb.exitTarget.Store(-1)

		// Release-publish: a reader observing the new count sees the
		// fully constructed block.
		e.tbCount.Store(idx + 1)
		e.hashInsert(tb)
		return tb, nil
	}
	return nil, ErrNoCode
}

// flushLocked recovers from code buffer or TB store exhaustion: every
// block is invalidated, the buffer restarts empty and the prologue is
// re-emitted. Callers hold the translate lock. vCPUs drop their jump
// caches when they observe the new flush generation.
func (e *Engine) flushLocked() {
	n := e.tbCount.Load()
	for i := int32(0); i < n; i++ {
		e.tbs[i].invalid.Store(true)
	}
	e.hashClear()
	e.tbCount.Store(0)
	e.buf.Reset()
	e.be.EmitPrologue()
	e.flushGen.Add(1)
	e.flushes.Add(1)
	slog.Info("jit: code buffer flushed", "blocks", n)
}

// TbAddJump chains slot 0 or 1 of src directly to dst by atomically
// patching the aligned rel32 field of the goto_tb jump.
func (e *Engine) TbAddJump(src *TB, slot int, dst *TB) bool {
	if src.JmpInsnOff[slot] < 0 || dst.invalid.Load() || src.invalid.Load() {
		return false
	}
	patched := false
	src.mu.Lock()
	if src.jmpDest[slot] < 0 {
		insn := int(src.JmpInsnOff[slot])
		disp := int(dst.HostOff) - (insn + 5)
		e.buf.Patch32(insn+1, uint32(int32(disp)))
		src.jmpDest[slot] = dst.Index
		patched = true
	}
	src.mu.Unlock()
	if patched {
		dst.mu.Lock()
		dst.incoming = append(dst.incoming, jumpRef{tb: src.Index, slot: uint8(slot)})
		dst.mu.Unlock()
	}
	return patched
}

// TbInvalidate removes a block from circulation: the invalid flag is
// raised first, every incoming chain jump is restored to its reset
// path and the block leaves the hash table. The host code itself is
// never reclaimed except by a full flush.
func (e *Engine) TbInvalidate(tb *TB) {
	tb.invalid.Store(true)

	tb.mu.Lock()
	in := append([]jumpRef(nil), tb.incoming...)
	tb.incoming = tb.incoming[:0]
	tb.mu.Unlock()

	for _, ref := range in {
		src := e.tb(ref.tb)
		src.mu.Lock()
		if src.jmpDest[ref.slot] == tb.Index {
			// Back to the original jump to the reset offset.
			e.buf.Patch32(int(src.JmpInsnOff[ref.slot])+1, 0)
			src.jmpDest[ref.slot] = -1
		}
		src.mu.Unlock()
	}

	tb.mu.Lock()
	dests := tb.jmpDest
	tb.jmpDest = [2]int32{-1, -1}
	tb.mu.Unlock()
	for slot, d := range dests {
		if d < 0 {
			continue
		}
		dst := e.tb(d)
		dst.mu.Lock()
		for k, ref := range dst.incoming {
			if ref.tb == tb.Index && int(ref.slot) == slot {
				dst.incoming = append(dst.incoming[:k], dst.incoming[k+1:]...)
				break
			}
		}
		dst.mu.Unlock()
	}

	e.hashRemove(tb)
}
