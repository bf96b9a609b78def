/*
 * rv64jit - Per-opcode host code emission. Relies on the allocator
 * guarantees: aliased outputs share their input register, newreg
 * outputs overlap no input, fixed args sit in their pinned register.
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

// emitCmp emits the comparison setting flags for cond: TEST for the
// bit-test conditions, CMP otherwise.
func (be *Backend) emitCmp(t ir.Type, cond ir.Cond, a, b ir.Reg) {
	w := rexw(t)
	if cond.IsTest() {
		be.outModRM(opcTestEvGv|w, b, a)
	} else {
		be.outModRM(opcArithGvEv|arithCmp<<3|w, a, b)
	}
}

func (be *Backend) emitArith(code int, t ir.Type, dst, src ir.Reg) {
	be.outModRM(opcArithGvEv|code<<3|rexw(t), dst, src)
}

func (be *Backend) emitShiftImm(code int, t ir.Type, dst ir.Reg, n int) {
	be.outModRM(opcShiftIb|rexw(t), ir.Reg(code), dst)
	be.buf.Byte(byte(n))
}

// emitOp emits one generic op with its allocated registers.
func (be *Backend) emitOp(op *ir.Op, o, i []ir.Reg) {
	t := op.Type
	w := rexw(t)
	def := op.Opc.Def()
	carryIn := def.Flags&ir.FlagCarryIn != 0
	carryOut := def.Flags&ir.FlagCarryOut != 0

	switch op.Opc {
	case ir.OpAdd:
		switch {
		case o[0] == i[0]:
			be.emitArith(arithAdd, t, o[0], i[1])
		case o[0] == i[1]:
			be.emitArith(arithAdd, t, o[0], i[0])
		default:
			be.outModRMSib(opcLea|w, o[0], i[0], i[1], 0, 0)
		}
	case ir.OpSub:
		be.emitArith(arithSub, t, o[0], i[1])
	case ir.OpAnd:
		be.emitArith(arithAnd, t, o[0], i[1])
	case ir.OpOr:
		be.emitArith(arithOr, t, o[0], i[1])
	case ir.OpXor:
		be.emitArith(arithXor, t, o[0], i[1])
	case ir.OpMul:
		be.outModRM(opcImulGvEv|w, o[0], i[1])
	case ir.OpNeg:
		be.outModRM(opcGrp3|w, grp3Neg, o[0])
	case ir.OpNot:
		be.outModRM(opcGrp3|w, grp3Not, o[0])
	case ir.OpAndC:
		// andn dst = ~in1 & in0
		be.outVexModRM(opcAndnGyEy|w, o[0], i[1], i[0])

	case ir.OpShl:
		be.outModRM(opcShiftCl|w, shiftShl, o[0])
	case ir.OpShr:
		be.outModRM(opcShiftCl|w, shiftShr, o[0])
	case ir.OpSar:
		be.outModRM(opcShiftCl|w, shiftSar, o[0])
	case ir.OpRotL:
		be.outModRM(opcShiftCl|w, shiftRol, o[0])
	case ir.OpRotR:
		be.outModRM(opcShiftCl|w, shiftRor, o[0])

	case ir.OpSetCond, ir.OpNegSetCond:
		cond := ir.Cond(op.ConstArg(0))
		be.emitCmp(t, cond, i[0], i[1])
		be.outModRM(opcSetcc+ccFor(cond), 0, o[0])
		be.outModRM(opcMovzbl, o[0], o[0])
		if op.Opc == ir.OpNegSetCond {
			be.outModRM(opcGrp3|w, grp3Neg, o[0])
		}

	case ir.OpMovCond:
		// o[0] holds v1; replace with v2 when the condition fails.
		cond := ir.Cond(op.ConstArg(0))
		be.emitCmp(t, cond, i[0], i[1])
		be.outModRM(opcCmovcc+ccFor(cond.Invert())|w, o[0], i[3])

	case ir.OpAddCO:
		be.emitArith(arithAdd, t, o[0], i[1])
	case ir.OpAddCI, ir.OpAddCIO:
		be.emitArith(arithAdc, t, o[0], i[1])
	case ir.OpAddC1O:
		be.buf.Byte(opcStc)
		be.emitArith(arithAdc, t, o[0], i[1])
	case ir.OpSubBO:
		be.emitArith(arithSub, t, o[0], i[1])
	case ir.OpSubBI, ir.OpSubBIO:
		be.emitArith(arithSbb, t, o[0], i[1])
	case ir.OpSubB1O:
		be.buf.Byte(opcStc)
		be.emitArith(arithSbb, t, o[0], i[1])

	case ir.OpMulS2:
		be.outModRM(opcGrp3|w, grp3IMul, i[1])
	case ir.OpMulU2:
		be.outModRM(opcGrp3|w, grp3Mul, i[1])
	case ir.OpDivS2:
		// RAX:RDX hold the dividend halves already.
		be.outModRM(opcGrp3|w, grp3IDiv, i[2])
	case ir.OpDivU2:
		be.outModRM(opcGrp3|w, grp3Div, i[2])

	case ir.OpExtract:
		be.emitExtract(t, o[0], int(op.ConstArg(0)), int(op.ConstArg(1)), false)
	case ir.OpSExtract:
		be.emitExtract(t, o[0], int(op.ConstArg(0)), int(op.ConstArg(1)), true)
	case ir.OpExtract2:
		// o[0] == lo; shift in bits from hi.
		be.outModRM(opcShrdIb|w, i[1], o[0])
		be.buf.Byte(byte(op.ConstArg(0)))

	case ir.OpBswap16:
		be.outModRM(opcShiftIb|pData16, ir.Reg(shiftRol), o[0])
		be.buf.Byte(8)
	case ir.OpBswap32:
		be.outOpcReg(opcBswap, o[0])
	case ir.OpBswap64:
		be.outOpcReg(opcBswap|pRexW, o[0])

	case ir.OpClz:
		be.outModRM(opcLzcnt|w, o[0], i[0])
		be.outModRM(opcTestEvGv|w, i[0], i[0])
		be.outModRM(opcCmovcc+ccFor(ir.CondEq)|w, o[0], i[1])
	case ir.OpCtz:
		be.outModRM(opcTzcnt|w, o[0], i[0])
		be.outModRM(opcTestEvGv|w, i[0], i[0])
		be.outModRM(opcCmovcc+ccFor(ir.CondEq)|w, o[0], i[1])
	case ir.OpCtPop:
		be.outModRM(opcPopcnt|w, o[0], i[0])

	case ir.OpExtI32I64:
		be.outModRM(opcMovslq, o[0], i[0])
	case ir.OpExtUI32I64, ir.OpExtrlI64I32:
		be.outModRM(opcMovlGvEv, o[0], i[0])
	case ir.OpExtrhI64I32:
		be.emitShiftImm(shiftShr, ir.TypeI64, o[0], 32)

	case ir.OpLd8U:
		be.outModRMOff(opcMovzbl, o[0], i[0], int64(op.ConstArg(0)))
	case ir.OpLd8S:
		be.outModRMOff(0xBE|pExt|w, o[0], i[0], int64(op.ConstArg(0)))
	case ir.OpLd16U:
		be.outModRMOff(opcMovzwl, o[0], i[0], int64(op.ConstArg(0)))
	case ir.OpLd16S:
		be.outModRMOff(0xBF|pExt|w, o[0], i[0], int64(op.ConstArg(0)))
	case ir.OpLd32U:
		be.outModRMOff(opcMovlGvEv, o[0], i[0], int64(op.ConstArg(0)))
	case ir.OpLd32S:
		be.outModRMOff(opcMovslq, o[0], i[0], int64(op.ConstArg(0)))
	case ir.OpLd:
		be.outModRMOff(opcMovlGvEv|w, o[0], i[0], int64(op.ConstArg(0)))
	case ir.OpSt8:
		be.outModRMOff(opcMovbEvGv, i[0], i[1], int64(op.ConstArg(0)))
	case ir.OpSt16:
		be.outModRMOff(opcMovwEvGv, i[0], i[1], int64(op.ConstArg(0)))
	case ir.OpSt32:
		be.outModRMOff(opcMovlEvGv, i[0], i[1], int64(op.ConstArg(0)))
	case ir.OpSt:
		be.outModRMOff(opcMovlEvGv|w, i[0], i[1], int64(op.ConstArg(0)))

	case ir.OpGuestLd:
		be.emitGuestLd(ir.MemOp(op.ConstArg(0)), o[0], i[0])
	case ir.OpGuestSt:
		be.emitGuestSt(ir.MemOp(op.ConstArg(0)), i[0], i[1])

	default:
		panic("x86: no emission for " + op.Opc.String())
	}

	switch {
	case carryOut:
		be.carryLive = true
	case carryIn:
		be.carryLive = false
	}
}

// emitExtract emits the shift+mask bitfield patterns. The output
// aliases the input.
func (be *Backend) emitExtract(t ir.Type, r ir.Reg, ofs, length int, signed bool) {
	bits := t.Bits()
	tailShift := shiftShr
	if signed {
		tailShift = shiftSar
	}
	if ofs == 0 {
		switch {
		case length == bits:
			return
		case length == 8 && !signed:
			be.outModRM(opcMovzbl, r, r)
			return
		case length == 8 && signed:
			be.outModRM(0xBE|pExt|rexw(t)|pRexBRM, r, r)
			return
		case length == 16 && !signed:
			be.outModRM(opcMovzwl, r, r)
			return
		case length == 16 && signed:
			be.outModRM(0xBF|pExt|rexw(t), r, r)
			return
		case length == 32 && !signed:
			be.outModRM(opcMovlGvEv, r, r)
			return
		case length == 32 && signed && t == ir.TypeI64:
			be.outModRM(opcMovslq, r, r)
			return
		}
	}
	if ofs+length == bits {
		be.emitShiftImm(tailShift, t, r, ofs)
		return
	}
	be.emitShiftImm(shiftShl, t, r, bits-ofs-length)
	be.emitShiftImm(tailShift, t, r, bits-length)
}

// emitGuestLd loads from [guest_base + addr] with the access width and
// sign of the memory op.
func (be *Backend) emitGuestLd(mo ir.MemOp, dst, addr ir.Reg) {
	if mo.Bswap() {
		panic("x86: byte swapped guest access not supported")
	}
	switch {
	case mo.Size() == 1 && !mo.Signed():
		be.outModRMSib(opcMovzbl, dst, GuestBaseReg, addr, 0, 0)
	case mo.Size() == 1:
		be.outModRMSib(0xBE|pExt|pRexW, dst, GuestBaseReg, addr, 0, 0)
	case mo.Size() == 2 && !mo.Signed():
		be.outModRMSib(opcMovzwl, dst, GuestBaseReg, addr, 0, 0)
	case mo.Size() == 2:
		be.outModRMSib(0xBF|pExt|pRexW, dst, GuestBaseReg, addr, 0, 0)
	case mo.Size() == 4 && !mo.Signed():
		be.outModRMSib(opcMovlGvEv, dst, GuestBaseReg, addr, 0, 0)
	case mo.Size() == 4:
		be.outModRMSib(opcMovslq, dst, GuestBaseReg, addr, 0, 0)
	default:
		be.outModRMSib(opcMovlGvEv|pRexW, dst, GuestBaseReg, addr, 0, 0)
	}
}

// emitGuestSt stores to [guest_base + addr] with the access width.
func (be *Backend) emitGuestSt(mo ir.MemOp, val, addr ir.Reg) {
	if mo.Bswap() {
		panic("x86: byte swapped guest access not supported")
	}
	switch mo.Size() {
	case 1:
		be.outModRMSib(opcMovbEvGv, val, GuestBaseReg, addr, 0, 0)
	case 2:
		be.outModRMSib(opcMovwEvGv, val, GuestBaseReg, addr, 0, 0)
	case 4:
		be.outModRMSib(opcMovlEvGv, val, GuestBaseReg, addr, 0, 0)
	default:
		be.outModRMSib(opcMovlEvGv|pRexW, val, GuestBaseReg, addr, 0, 0)
	}
}
