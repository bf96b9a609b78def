/*
 * rv64jit - Prologue and epilogue. One prologue at buffer start enters
 * generated code: fn(env_ptr, tb_code_ptr) -> exit word.
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

// Callee saved registers pushed by the prologue, System V AMD64.
var calleeSaved = []ir.Reg{RBX, RBP, R12, R13, R14, R15}

// frameAddend reserves the helper call argument area and the spill
// scratch area, padded so that rsp stays 16 byte aligned after the
// return address and six pushes.
const frameAddend = 128 + 1024 + 8

// EmitPrologue emits the single prologue and the two epilogue entries
// at the current buffer position. Must run before any translation and
// again after a full buffer flush.
func (be *Backend) EmitPrologue() {
	be.entryOff = be.buf.Cursor()
	for _, r := range calleeSaved {
		be.outOpcReg(opcPush, r)
	}
	// AREG0 <- env pointer (first argument).
	be.outModRM(opcMovlGvEv|pRexW, AREG0, RDI)
	// sub rsp, frameAddend
	be.outModRM(opcArithEvIz|pRexW, arithSub, RSP)
	be.buf.W32(frameAddend)
	// Enter the translation block (second argument).
	be.outModRM(opcGrp5, 4, RSI)

	// Exit returning zero: no chain information for the caller.
	be.epilogueZeroOff = be.buf.Cursor()
	be.outModRM(opcArithGvEv|arithXor<<3, RAX, RAX)

	// Common return path.
	be.tbRetOff = be.buf.Cursor()
	be.outModRM(opcArithEvIz|pRexW, arithAdd, RSP)
	be.buf.W32(frameAddend)
	for k := len(calleeSaved) - 1; k >= 0; k-- {
		be.outOpcReg(opcPop, calleeSaved[k])
	}
	be.buf.Byte(opcRet)
}

// Entry returns the buffer offset of the prologue.
func (be *Backend) Entry() int {
	return be.entryOff
}
