/*
 * rv64jit - x86-64 host register definitions.
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

import "github.com/rcornwell/rv64jit/tcg/ir"

// Host general purpose registers, hardware encoding.
const (
	RAX ir.Reg = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15

	nbRegs = 16
)

// AREG0 holds the pointer to the guest CPU state for the life of a
// translation block. Set from the first argument by the prologue.
const AREG0 = RBP

// GuestBaseReg holds the guest address space base in linux-user mode.
// Bound as a fixed temp before the first translation.
const GuestBaseReg = R14

var regNames = [nbRegs]string{
	"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

// RegName returns the host name of a register.
func RegName(r ir.Reg) string {
	return regNames[r]
}

// allRegs covers every GPR.
var allRegs = ir.RegSet(0xFFFF)

// allocatable excludes the stack pointer and AREG0. Fixed temps such
// as the guest base live inside the allocatable set but permanently
// occupy their register.
var allocatable = allRegs.Remove(RSP).Remove(AREG0)

// Allocation preference order: call-saved registers first so that TB
// locals survive potential helper calls, argument registers last.
var allocOrder = []ir.Reg{
	RBX, R12, R13, R14, R15, R10, R11, R9, R8, RCX, RDX, RSI, RDI, RAX,
}

// Registers clobbered by a host call, System V AMD64.
var callClobbered = ir.MakeRegSet(RAX, RCX, RDX, RSI, RDI, R8, R9, R10, R11)

// Integer argument registers, System V AMD64.
var callArgRegs = []ir.Reg{RDI, RSI, RDX, RCX, R8, R9}
