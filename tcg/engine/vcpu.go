/*
 * rv64jit - Per-vCPU execution state and the execute loop. One host
 * thread owns each Vcpu; the jump cache needs no synchronization.
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

import "unsafe"

// ExecStats counts per-vCPU execution events.
type ExecStats struct {
	Execs        uint64
	HashLookups  uint64
	Translations uint64
	ChainPatches uint64
	ExitHits     uint64
}

// Vcpu binds one guest CPU to the shared engine.
type Vcpu struct {
	eng *Engine
	cpu GuestCPU

	// Direct mapped (pc -> TB index + 1), 0 empty.
	jumpCache [jumpCacheSize]int32
	flushGen  uint32

	Stats ExecStats
}

// NewVcpu creates the per-CPU state for a guest CPU.
func NewVcpu(e *Engine, cpu GuestCPU) *Vcpu {
	return &Vcpu{eng: e, cpu: cpu}
}

// Engine returns the shared engine.
func (v *Vcpu) Engine() *Engine {
	return v.eng
}

// lookup finds or creates the TB for (pc, flags): jump cache, then
// hash table, then translation.
func (v *Vcpu) lookup(pc uint64, flags uint32) (*TB, error) {
	if g := v.eng.flushGen.Load(); g != v.flushGen {
		v.jumpCache = [jumpCacheSize]int32{}
		v.flushGen = g
	}
	slot := (pc >> 2) & (jumpCacheSize - 1)
	if ti := v.jumpCache[slot]; ti != 0 {
		tb := v.eng.tb(ti - 1)
		if tb.PC == pc && tb.Flags == flags && !tb.invalid.Load() {
			return tb, nil
		}
	}
	v.Stats.HashLookups++
	tb := v.eng.hashLookup(pc, flags)
	if tb == nil {
		v.Stats.Translations++
		var err error
		tb, err = v.eng.tbGenCode(v.cpu, pc, flags)
		if err != nil {
			return nil, err
		}
	}
	v.jumpCache[slot] = tb.Index + 1
	return tb, nil
}

// exec runs one translation block and returns the raw exit word.
func (v *Vcpu) exec(tb *TB) uintptr {
	v.Stats.Execs++
	entry := unsafe.Pointer(v.eng.buf.Addr(v.eng.be.Entry()))
	code := unsafe.Pointer(v.eng.buf.Addr(int(tb.HostOff)))
	return tbExec(entry, v.cpu.EnvPtr(), code)
}

// Run executes guest code until a guest-visible exit surfaces. Direct
// chain exits patch the source block and keep the successor as a
// lookup-free hint; indirect exits consult the source's single-slot
// exit cache before falling back to the hash table.
func (v *Vcpu) Run() (ExitReason, error) {
	var next *TB
	for {
		pc := v.cpu.PC()
		flags := v.cpu.Flags()

		tb := next
		next = nil
		if tb == nil || tb.invalid.Load() {
			var err error
			tb, err = v.lookup(pc, flags)
			if err != nil {
				return 0, err
			}
		}

		raw := uint64(v.exec(tb))
		code := raw & 3
		srcIdx := int32(raw>>2) - 1

		switch {
		case raw == 0:
			// Exit without chain information.
		case code == ExitSlot0 || code == ExitSlot1:
			src := v.eng.tb(srcIdx)
			ntb, err := v.lookup(v.cpu.PC(), v.cpu.Flags())
			if err != nil {
				return 0, err
			}
			if v.eng.TbAddJump(src, int(code), ntb) {
				v.Stats.ChainPatches++
			}
			next = ntb
		case code == ExitNoChain:
			src := v.eng.tb(srcIdx)
			npc := v.cpu.PC()
			nflags := v.cpu.Flags()
			if ti := src.exitTarget.Load(); ti >= 0 {
				cand := v.eng.tb(ti)
				if cand.PC == npc && cand.Flags == nflags && !cand.invalid.Load() {
					v.Stats.ExitHits++
					next = cand
				}
			}
			if next == nil {
				ntb, err := v.lookup(npc, nflags)
				if err != nil {
					return 0, err
				}
				src.exitTarget.Store(ntb.Index)
				next = ntb
			}
		default:
			return ExitReason(raw >> 2), nil
		}
	}
}
