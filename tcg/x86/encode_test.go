/*
 * rv64jit - x86-64 encoder tests.
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

package x86

import (
	"bytes"
	"testing"

	"github.com/rcornwell/rv64jit/tcg/codebuf"
	"github.com/rcornwell/rv64jit/tcg/ir"
)

func testBackend(t *testing.T) *Backend {
	t.Helper()
	buf, err := codebuf.New(1 << 16)
	if err != nil {
		t.Fatalf("mmap failed: %v", err)
	}
	t.Cleanup(func() { buf.Close() })
	return NewBackend(buf, ir.NewContext())
}

func emitted(be *Backend, from int) []byte {
	return be.buf.Bytes(from, be.buf.Cursor())
}

// The four mov-immediate strategies.
func TestMovImmediate(t *testing.T) {
	cases := []struct {
		r    ir.Reg
		v    uint64
		want []byte
	}{
		// xor r32, r32
		{RAX, 0, []byte{0x33, 0xC0}},
		// mov r32, imm32 zero extends
		{RAX, 42, []byte{0xB8, 0x2A, 0x00, 0x00, 0x00}},
		{R9, 42, []byte{0x41, 0xB9, 0x2A, 0x00, 0x00, 0x00}},
		// sign extended imm32
		{RAX, 0xFFFFFFFFFFFFFFFF, []byte{0x48, 0xC7, 0xC0, 0xFF, 0xFF, 0xFF, 0xFF}},
		// full 64-bit load
		{RAX, 0x123456789A, []byte{0x48, 0xB8, 0x9A, 0x78, 0x56, 0x34, 0x12, 0x00, 0x00, 0x00}},
	}
	for n, c := range cases {
		be := testBackend(t)
		start := be.buf.Cursor()
		be.outMovI(c.r, c.v)
		if got := emitted(be, start); !bytes.Equal(got, c.want) {
			t.Errorf("case %d got: % x expected: % x", n, got, c.want)
		}
	}
}

// Zero is not emitted as xor while a carry is live.
func TestMovImmediateCarry(t *testing.T) {
	be := testBackend(t)
	be.carryLive = true
	start := be.buf.Cursor()
	be.outMovI(RAX, 0)
	want := []byte{0xB8, 0x00, 0x00, 0x00, 0x00}
	if got := emitted(be, start); !bytes.Equal(got, want) {
		t.Errorf("carry-safe zero got: % x expected: % x", got, want)
	}
}

// The two ModR/M corner cases: base 100 needs a SIB byte, base 101
// with zero displacement needs disp8.
func TestModRMCorners(t *testing.T) {
	cases := []struct {
		base ir.Reg
		off  int64
		want []byte
	}{
		// mov rax, [rbp] -> disp8 form
		{RBP, 0, []byte{0x48, 0x8B, 0x45, 0x00}},
		// mov rax, [r13] -> disp8 form
		{R13, 0, []byte{0x49, 0x8B, 0x45, 0x00}},
		// mov rax, [rsp] -> SIB form
		{RSP, 0, []byte{0x48, 0x8B, 0x04, 0x24}},
		// mov rax, [r12] -> SIB form
		{R12, 0, []byte{0x49, 0x8B, 0x04, 0x24}},
		// mov rax, [rbx+0x40] -> disp8
		{RBX, 0x40, []byte{0x48, 0x8B, 0x43, 0x40}},
		// mov rax, [rbx+0x1234] -> disp32
		{RBX, 0x1234, []byte{0x48, 0x8B, 0x83, 0x34, 0x12, 0x00, 0x00}},
	}
	for n, c := range cases {
		be := testBackend(t)
		start := be.buf.Cursor()
		be.outLd(ir.TypeI64, RAX, c.base, c.off)
		if got := emitted(be, start); !bytes.Equal(got, c.want) {
			t.Errorf("case %d got: % x expected: % x", n, got, c.want)
		}
	}
}

// setcc on a high byte register needs the empty REX prefix.
func TestSetccRex(t *testing.T) {
	be := testBackend(t)
	start := be.buf.Cursor()
	be.outModRM(opcSetcc+ccFor(ir.CondEq), 0, RCX)
	want := []byte{0x0F, 0x94, 0xC1}
	if got := emitted(be, start); !bytes.Equal(got, want) {
		t.Errorf("setcc cl got: % x expected: % x", got, want)
	}

	start = be.buf.Cursor()
	be.outModRM(opcSetcc+ccFor(ir.CondNe), 0, RSI)
	want = []byte{0x40, 0x0F, 0x95, 0xC6}
	if got := emitted(be, start); !bytes.Equal(got, want) {
		t.Errorf("setcc sil got: % x expected: % x", got, want)
	}
}

// Condition nibbles follow the documented mapping.
func TestCondMapping(t *testing.T) {
	want := map[ir.Cond]int{
		ir.CondEq: 0x4, ir.CondNe: 0x5, ir.CondLtu: 0x2, ir.CondGeu: 0x3,
		ir.CondLt: 0xC, ir.CondGe: 0xD, ir.CondLeu: 0x6, ir.CondGtu: 0x7,
		ir.CondLe: 0xE, ir.CondGt: 0xF, ir.CondTstEq: 0x4, ir.CondTstNe: 0x5,
	}
	for c, cc := range want {
		if got := ccFor(c); got != cc {
			t.Errorf("cc for %v got: %x expected: %x", c, got, cc)
		}
	}
	// Inversion flips the low bit of the nibble.
	if ccFor(ir.CondEq.Invert()) != ccFor(ir.CondEq)^1 {
		t.Errorf("inverted condition nibble mismatch")
	}
}

// Guest access indexes off the guest base register.
func TestGuestAccess(t *testing.T) {
	be := testBackend(t)
	start := be.buf.Cursor()
	be.emitGuestLd(ir.MoUQ, RAX, RBX)
	// mov rax, [r14 + rbx]
	want := []byte{0x49, 0x8B, 0x04, 0x1E}
	if got := emitted(be, start); !bytes.Equal(got, want) {
		t.Errorf("guest load got: % x expected: % x", got, want)
	}

	start = be.buf.Cursor()
	be.emitGuestSt(ir.Mo8, RCX, RBX)
	// mov [r14 + rbx], cl
	want = []byte{0x41, 0x88, 0x0C, 0x1E}
	if got := emitted(be, start); !bytes.Equal(got, want) {
		t.Errorf("guest store got: % x expected: % x", got, want)
	}
}
