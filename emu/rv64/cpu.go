/*
 * rv64jit - RV64 guest CPU state and its binding to the translator.
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

package rv64

import (
	"fmt"
	"unsafe"

	"github.com/rcornwell/rv64jit/emu/guestmem"
	"github.com/rcornwell/rv64jit/tcg/ir"
	"github.com/rcornwell/rv64jit/tcg/x86"
)

// Env is the materialized CPU state mutated by generated code. The
// layout is fixed; the IR globals carry its field offsets.
type Env struct {
	X  [32]uint64
	PC uint64
}

var envProto Env

// Globals holds the IR temp indices of the CPU state, registered once
// per translation context and shared by every vCPU.
type Globals struct {
	x  [32]int // x0 has no backing global
	pc int
}

// RegisterGlobals binds the CPU state layout and the guest base into a
// fresh translation context. Must run before the first local temp is
// created.
func RegisterGlobals(ctx *ir.Context) *Globals {
	g := &Globals{}
	ctx.NewFixed(ir.TypeI64, x86.AREG0, "env")
	ctx.NewFixed(ir.TypeI64, x86.GuestBaseReg, "guest_base")
	xOff := int64(unsafe.Offsetof(envProto.X))
	for i := 1; i < 32; i++ {
		g.x[i] = ctx.NewGlobal(ir.TypeI64, x86.AREG0, xOff+int64(i)*8,
			fmt.Sprintf("x%d", i))
	}
	g.pc = ctx.NewGlobal(ir.TypeI64, x86.AREG0,
		int64(unsafe.Offsetof(envProto.PC)), "pc")
	return g
}

// CPU is one RV64 hart: its state, its view of guest memory and the
// shared global bindings.
type CPU struct {
	env Env
	mem *guestmem.Memory
	g   *Globals
}

// NewCPU creates a hart over the shared globals and guest memory.
func NewCPU(g *Globals, mem *guestmem.Memory) *CPU {
	return &CPU{g: g, mem: mem}
}

// PC returns the current guest program counter.
func (c *CPU) PC() uint64 {
	return c.env.PC
}

// SetPC positions the hart.
func (c *CPU) SetPC(pc uint64) {
	c.env.PC = pc
}

// Flags returns the compilation flags of the current state. RV64IM has
// no mode bits that change translation.
func (c *CPU) Flags() uint32 {
	return 0
}

// EnvPtr returns the address of the CPU state structure.
func (c *CPU) EnvPtr() unsafe.Pointer {
	return unsafe.Pointer(&c.env)
}

// Reg reads one guest register.
func (c *CPU) Reg(n int) uint64 {
	return c.env.X[n]
}

// SetReg writes one guest register. Writes to x0 are dropped.
func (c *CPU) SetReg(n int, v uint64) {
	if n != 0 {
		c.env.X[n] = v
	}
}

// Mem returns the hart's guest memory.
func (c *CPU) Mem() *guestmem.Memory {
	return c.mem
}
