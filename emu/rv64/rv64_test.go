/*
 * rv64jit - End to end translation tests. Each scenario assembles a
 * small guest program, runs it through the full pipeline and checks
 * the materialized CPU state.
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
	"encoding/binary"
	"testing"

	"github.com/rcornwell/rv64jit/emu/guestmem"
	"github.com/rcornwell/rv64jit/tcg/engine"
)

// Instruction encoders for test programs.
func rType(f7, rs2, rs1, f3, rd, op uint32) uint32 {
	return f7<<25 | rs2<<20 | rs1<<15 | f3<<12 | rd<<7 | op
}

func iType(imm int32, rs1, f3, rd, op uint32) uint32 {
	return uint32(imm)<<20 | rs1<<15 | f3<<12 | rd<<7 | op
}

func sType(imm int32, rs2, rs1, f3 uint32) uint32 {
	u := uint32(imm)
	return ((u>>5)&0x7F)<<25 | rs2<<20 | rs1<<15 | f3<<12 | (u&0x1F)<<7 | opStore
}

func bType(imm int32, rs2, rs1, f3 uint32) uint32 {
	u := uint32(imm)
	return ((u>>12)&1)<<31 | ((u>>5)&0x3F)<<25 | rs2<<20 | rs1<<15 |
		f3<<12 | ((u>>1)&0xF)<<8 | ((u>>11)&1)<<7 | opBranch
}

func jType(imm int32, rd uint32) uint32 {
	u := uint32(imm)
	return ((u>>20)&1)<<31 | ((u>>1)&0x3FF)<<21 | ((u>>11)&1)<<20 |
		((u>>12)&0xFF)<<12 | rd<<7 | opJal
}

func addi(rd, rs1 uint32, imm int32) uint32 { return iType(imm, rs1, 0, rd, opOpImm) }
func add(rd, rs1, rs2 uint32) uint32        { return rType(0, rs2, rs1, 0, rd, opOp) }
func sub(rd, rs1, rs2 uint32) uint32        { return rType(0x20, rs2, rs1, 0, rd, opOp) }
func mul(rd, rs1, rs2 uint32) uint32        { return rType(1, rs2, rs1, 0, rd, opOp) }
func mulh(rd, rs1, rs2 uint32) uint32       { return rType(1, rs2, rs1, 1, rd, opOp) }
func div(rd, rs1, rs2 uint32) uint32        { return rType(1, rs2, rs1, 4, rd, opOp) }
func rem(rd, rs1, rs2 uint32) uint32        { return rType(1, rs2, rs1, 6, rd, opOp) }
func addw(rd, rs1, rs2 uint32) uint32       { return rType(0, rs2, rs1, 0, rd, opOp32) }
func sllw(rd, rs1, rs2 uint32) uint32       { return rType(0, rs2, rs1, 1, rd, opOp32) }
func ld(rd, rs1 uint32, imm int32) uint32   { return iType(imm, rs1, 3, rd, opLoad) }
func lb(rd, rs1 uint32, imm int32) uint32   { return iType(imm, rs1, 0, rd, opLoad) }
func sd(rs2, rs1 uint32, imm int32) uint32  { return sType(imm, rs2, rs1, 3) }
func beq(rs1, rs2 uint32, imm int32) uint32 { return bType(imm, rs2, rs1, 0) }
func bge(rs1, rs2 uint32, imm int32) uint32 { return bType(imm, rs2, rs1, 5) }

const insEcall = 0x00000073

// newMachine builds a single hart over a fresh engine.
func newMachine(t *testing.T, bufSize int) (*CPU, *engine.Vcpu) {
	t.Helper()
	eng, err := engine.New(bufSize)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	mem, err := guestmem.New(1 << 20)
	if err != nil {
		eng.Close()
		t.Fatalf("guest memory: %v", err)
	}
	t.Cleanup(func() {
		eng.Close()
		mem.Close()
	})
	g := RegisterGlobals(eng.Context())
	cpu := NewCPU(g, mem)
	return cpu, engine.NewVcpu(eng, cpu)
}

// loadProg places a program at guest address zero.
func loadProg(t *testing.T, cpu *CPU, prog []uint32) {
	t.Helper()
	image := make([]byte, len(prog)*4)
	for i, w := range prog {
		binary.LittleEndian.PutUint32(image[i*4:], w)
	}
	if err := cpu.Mem().LoadImage(0, image); err != nil {
		t.Fatalf("load: %v", err)
	}
}

// runECall executes until the expected clean ecall exit.
func runECall(t *testing.T, v *engine.Vcpu) {
	t.Helper()
	reason, err := v.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if reason != engine.ReasonECall {
		t.Fatalf("exit reason got: %v expected: ecall", reason)
	}
}

// addi x1, x0, 42.
func TestAddImmediate(t *testing.T) {
	cpu, v := newMachine(t, 1<<20)
	loadProg(t, cpu, []uint32{
		addi(1, 0, 42),
		insEcall,
	})
	runECall(t, v)
	if cpu.Reg(1) != 42 {
		t.Errorf("x1 got: %d expected: %d", cpu.Reg(1), 42)
	}
	for i := 2; i < 32; i++ {
		if cpu.Reg(i) != 0 {
			t.Errorf("x%d got: %x expected: 0", i, cpu.Reg(i))
		}
	}
	if cpu.PC() != 8 {
		t.Errorf("pc got: %d expected: %d", cpu.PC(), 8)
	}
}

// add x3, x1, x2 wrapping into the sign bit.
func TestAddOverflow(t *testing.T) {
	cpu, v := newMachine(t, 1<<20)
	cpu.SetReg(1, 0x7FFFFFFFFFFFFFFF)
	cpu.SetReg(2, 1)
	loadProg(t, cpu, []uint32{
		add(3, 1, 2),
		insEcall,
	})
	runECall(t, v)
	if cpu.Reg(3) != 0x8000000000000000 {
		t.Errorf("x3 got: %x expected: %x", cpu.Reg(3), uint64(0x8000000000000000))
	}
}

// A taken beq skips the next instruction.
func TestBranchTaken(t *testing.T) {
	cpu, v := newMachine(t, 1<<20)
	loadProg(t, cpu, []uint32{
		addi(1, 0, 5),
		addi(2, 0, 5),
		beq(1, 2, 8),
		addi(3, 0, 1),
		addi(4, 0, 2),
		insEcall,
	})
	runECall(t, v)
	if cpu.Reg(1) != 5 || cpu.Reg(2) != 5 {
		t.Errorf("x1/x2 got: %d/%d expected: 5/5", cpu.Reg(1), cpu.Reg(2))
	}
	if cpu.Reg(3) != 0 {
		t.Errorf("x3 got: %d expected: 0 (skipped)", cpu.Reg(3))
	}
	if cpu.Reg(4) != 2 {
		t.Errorf("x4 got: %d expected: 2", cpu.Reg(4))
	}
	if cpu.PC() != 24 {
		t.Errorf("pc got: %d expected: %d", cpu.PC(), 24)
	}
}

// Back branch loop summing 1..5.
func TestSumLoop(t *testing.T) {
	cpu, v := newMachine(t, 1<<20)
	loadProg(t, cpu, []uint32{
		addi(1, 0, 0), // sum
		addi(2, 0, 1), // i
		addi(4, 0, 5), // limit
		add(1, 1, 2),  // loop:
		addi(2, 2, 1),
		bge(4, 2, -8), // while limit >= i
		insEcall,
	})
	runECall(t, v)
	if cpu.Reg(1) != 15 {
		t.Errorf("sum got: %d expected: %d", cpu.Reg(1), 15)
	}
	if cpu.Reg(2) != 6 {
		t.Errorf("i got: %d expected: %d", cpu.Reg(2), 6)
	}
}

// Guest loads and stores through the base register.
func TestLoadStore(t *testing.T) {
	cpu, v := newMachine(t, 1<<20)
	if err := cpu.Mem().Write64(0x700, 0x80); err != nil {
		t.Fatalf("seed: %v", err)
	}
	loadProg(t, cpu, []uint32{
		addi(1, 0, 0x700),
		ld(2, 1, 0),
		lb(3, 1, 0),
		addi(2, 2, 1),
		sd(2, 1, 8),
		insEcall,
	})
	runECall(t, v)
	if cpu.Reg(2) != 0x81 {
		t.Errorf("x2 got: %x expected: %x", cpu.Reg(2), 0x81)
	}
	if cpu.Reg(3) != 0xFFFFFFFFFFFFFF80 {
		t.Errorf("lb sign extension got: %x", cpu.Reg(3))
	}
	got, err := cpu.Mem().Read64(0x708)
	if err != nil || got != 0x81 {
		t.Errorf("stored value got: %x expected: %x", got, 0x81)
	}
}

// M extension semantics including the architected division edges.
func TestMulDiv(t *testing.T) {
	cpu, v := newMachine(t, 1<<20)
	cpu.SetReg(1, 7)
	cpu.SetReg(2, ^uint64(0)-2) // -3
	cpu.SetReg(8, 0x8000000000000000)
	cpu.SetReg(9, ^uint64(0)) // -1
	loadProg(t, cpu, []uint32{
		mul(3, 1, 2),
		div(4, 1, 2),
		rem(5, 1, 2),
		mulh(6, 1, 2),
		div(7, 1, 0),  // divide by zero
		div(10, 8, 9), // overflow
		rem(11, 8, 9), // overflow remainder
		insEcall,
	})
	runECall(t, v)
	if got := int64(cpu.Reg(3)); got != -21 {
		t.Errorf("mul got: %d expected: %d", got, -21)
	}
	if got := int64(cpu.Reg(4)); got != -2 {
		t.Errorf("div got: %d expected: %d", got, -2)
	}
	if got := int64(cpu.Reg(5)); got != 1 {
		t.Errorf("rem got: %d expected: %d", got, 1)
	}
	if got := int64(cpu.Reg(6)); got != -1 {
		t.Errorf("mulh got: %d expected: %d", got, -1)
	}
	if got := int64(cpu.Reg(7)); got != -1 {
		t.Errorf("div by zero got: %d expected: %d", got, -1)
	}
	if cpu.Reg(10) != 0x8000000000000000 {
		t.Errorf("div overflow got: %x expected: %x",
			cpu.Reg(10), uint64(0x8000000000000000))
	}
	if cpu.Reg(11) != 0 {
		t.Errorf("rem overflow got: %d expected: 0", cpu.Reg(11))
	}
}

// Word forms wrap and sign extend at 32 bits.
func TestWordOps(t *testing.T) {
	cpu, v := newMachine(t, 1<<20)
	cpu.SetReg(1, 0x7FFFFFFF)
	cpu.SetReg(2, 1)
	loadProg(t, cpu, []uint32{
		addw(3, 1, 2),
		sllw(4, 2, 1), // shift count masked to 31: 1 << 31
		insEcall,
	})
	runECall(t, v)
	if cpu.Reg(3) != 0xFFFFFFFF80000000 {
		t.Errorf("addw got: %x expected: %x",
			cpu.Reg(3), uint64(0xFFFFFFFF80000000))
	}
	if cpu.Reg(4) != 0xFFFFFFFF80000000 {
		t.Errorf("sllw got: %x expected: %x",
			cpu.Reg(4), uint64(0xFFFFFFFF80000000))
	}
}

// Direct chaining: the second pass from A reaches B without a lookup.
func TestChaining(t *testing.T) {
	cpu, v := newMachine(t, 1<<20)
	loadProg(t, cpu, []uint32{
		jType(8, 0), // jal x0, +8
		insEcall,    // never reached
		insEcall,    // target block
	})
	runECall(t, v)
	if cpu.PC() != 12 {
		t.Errorf("pc got: %d expected: %d", cpu.PC(), 12)
	}
	if v.Stats.Translations != 2 {
		t.Errorf("translations got: %d expected: 2", v.Stats.Translations)
	}
	if v.Stats.ChainPatches != 1 {
		t.Errorf("chain patches got: %d expected: 1", v.Stats.ChainPatches)
	}
	lookups := v.Stats.HashLookups

	// Second pass: jump cache hit for A, chained jump into B.
	cpu.SetPC(0)
	runECall(t, v)
	if v.Stats.HashLookups != lookups {
		t.Errorf("hash lookups grew on chained rerun: %d -> %d",
			lookups, v.Stats.HashLookups)
	}
	if v.Stats.ChainPatches != 1 {
		t.Errorf("chain patched twice: %d", v.Stats.ChainPatches)
	}
	if v.Stats.Translations != 2 {
		t.Errorf("retranslation on chained rerun: %d", v.Stats.Translations)
	}
}

// Code buffer exhaustion flushes and retranslates transparently.
func TestFlushRecovery(t *testing.T) {
	cpu, v := newMachine(t, 2048)
	var prog []uint32
	for i := 0; i < 60; i++ {
		prog = append(prog, addi(1, 1, 1))
		prog = append(prog, jType(4, 0)) // end the block
	}
	prog = append(prog, insEcall)
	loadProg(t, cpu, prog)
	runECall(t, v)
	if cpu.Reg(1) != 60 {
		t.Errorf("x1 got: %d expected: %d", cpu.Reg(1), 60)
	}
	if v.Engine().Flushes() == 0 {
		t.Errorf("no flush despite tiny buffer")
	}
}

// The branch immediates decode to what the encoders produced.
func TestImmediates(t *testing.T) {
	if got := immB(beq(1, 2, -8)); got != -8 {
		t.Errorf("immB got: %d expected: %d", got, -8)
	}
	if got := immB(beq(1, 2, 2046)); got != 2046 {
		t.Errorf("immB got: %d expected: %d", got, 2046)
	}
	if got := immJ(jType(-2048, 0)); got != -2048 {
		t.Errorf("immJ got: %d expected: %d", got, -2048)
	}
	if got := immJ(jType(8, 0)); got != 8 {
		t.Errorf("immJ got: %d expected: %d", got, 8)
	}
	if got := immS(sd(2, 1, -16)); got != -16 {
		t.Errorf("immS got: %d expected: %d", got, -16)
	}
	if got := immI(addi(1, 0, -1)); got != -1 {
		t.Errorf("immI got: %d expected: %d", got, -1)
	}
}
