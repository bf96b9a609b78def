/*
 * rv64jit - IR builder. One small function per opcode family, each
 * appending a single well formed op to the translation context.
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

package ir

import "fmt"

// emit appends one op. The argument slice must already be laid out as
// [outputs | inputs | constants] per the opcode descriptor.
func (c *Context) emit(opc Opcode, t Type, args ...Arg) *Op {
	if opc != OpCall {
		def := &OpDefs[opc]
		want := int(def.NbOArgs) + int(def.NbIArgs) + int(def.NbCArgs)
		if len(args) != want {
			panic(fmt.Sprintf("ir: %s emitted with %d args, wants %d",
				def.Name, len(args), want))
		}
	}
	if len(args) > MaxOpArgs {
		panic(fmt.Sprintf("ir: %s exceeds op arg capacity", opc))
	}
	var op Op
	op.Opc = opc
	op.Type = t
	copy(op.Args[:], args)
	op.NArgs = uint8(len(args))
	c.Ops = append(c.Ops, op)
	return &c.Ops[len(c.Ops)-1]
}

// GenNop emits a no-op.
func (c *Context) GenNop() {
	c.emit(OpNop, TypeI64)
}

// GenDiscard marks a temp value as unused from here on.
func (c *Context) GenDiscard(t Type, temp int) {
	c.emit(OpDiscard, t, Arg(temp))
}

// GenInsnStart marks a guest instruction boundary.
func (c *Context) GenInsnStart(pc uint64) {
	c.emit(OpInsnStart, TypeI64, Arg(pc))
}

// GenMov copies one temp to another.
func (c *Context) GenMov(t Type, ret, arg int) {
	if ret == arg {
		return
	}
	c.emit(OpMov, t, Arg(ret), Arg(arg))
}

// GenMovI loads a constant.
func (c *Context) GenMovI(t Type, ret int, val uint64) {
	c.GenMov(t, ret, c.ConstTemp(t, val))
}

func (c *Context) gen3(opc Opcode, t Type, ret, a1, a2 int) {
	c.emit(opc, t, Arg(ret), Arg(a1), Arg(a2))
}

func (c *Context) gen2(opc Opcode, t Type, ret, a1 int) {
	c.emit(opc, t, Arg(ret), Arg(a1))
}

// Integer arithmetic.
func (c *Context) GenAdd(t Type, ret, a1, a2 int)  { c.gen3(OpAdd, t, ret, a1, a2) }
func (c *Context) GenSub(t Type, ret, a1, a2 int)  { c.gen3(OpSub, t, ret, a1, a2) }
func (c *Context) GenMul(t Type, ret, a1, a2 int)  { c.gen3(OpMul, t, ret, a1, a2) }
func (c *Context) GenNeg(t Type, ret, a1 int)      { c.gen2(OpNeg, t, ret, a1) }
func (c *Context) GenAnd(t Type, ret, a1, a2 int)  { c.gen3(OpAnd, t, ret, a1, a2) }
func (c *Context) GenOr(t Type, ret, a1, a2 int)   { c.gen3(OpOr, t, ret, a1, a2) }
func (c *Context) GenXor(t Type, ret, a1, a2 int)  { c.gen3(OpXor, t, ret, a1, a2) }
func (c *Context) GenNot(t Type, ret, a1 int)      { c.gen2(OpNot, t, ret, a1) }
func (c *Context) GenAndC(t Type, ret, a1, a2 int) { c.gen3(OpAndC, t, ret, a1, a2) }
func (c *Context) GenShl(t Type, ret, a1, a2 int)  { c.gen3(OpShl, t, ret, a1, a2) }
func (c *Context) GenShr(t Type, ret, a1, a2 int)  { c.gen3(OpShr, t, ret, a1, a2) }
func (c *Context) GenSar(t Type, ret, a1, a2 int)  { c.gen3(OpSar, t, ret, a1, a2) }
func (c *Context) GenRotL(t Type, ret, a1, a2 int) { c.gen3(OpRotL, t, ret, a1, a2) }
func (c *Context) GenRotR(t Type, ret, a1, a2 int) { c.gen3(OpRotR, t, ret, a1, a2) }

// GenMulU2 computes the full unsigned product: lo,hi = a1*a2.
func (c *Context) GenMulU2(t Type, lo, hi, a1, a2 int) {
	c.emit(OpMulU2, t, Arg(lo), Arg(hi), Arg(a1), Arg(a2))
}

// GenMulS2 computes the full signed product: lo,hi = a1*a2.
func (c *Context) GenMulS2(t Type, lo, hi, a1, a2 int) {
	c.emit(OpMulS2, t, Arg(lo), Arg(hi), Arg(a1), Arg(a2))
}

// GenDivS2 divides the double-width value hi:lo by div, producing
// quotient and remainder. The divisor must be known nonzero.
func (c *Context) GenDivS2(t Type, q, r, lo, hi, div int) {
	c.emit(OpDivS2, t, Arg(q), Arg(r), Arg(lo), Arg(hi), Arg(div))
}

// GenDivU2 is the unsigned counterpart of GenDivS2.
func (c *Context) GenDivU2(t Type, q, r, lo, hi, div int) {
	c.emit(OpDivU2, t, Arg(q), Arg(r), Arg(lo), Arg(hi), Arg(div))
}

// GenSetCond sets ret to 1 if cond holds between a1 and a2, else 0.
func (c *Context) GenSetCond(t Type, cond Cond, ret, a1, a2 int) {
	switch cond {
	case CondNever:
		c.GenMovI(t, ret, 0)
	case CondAlways:
		c.GenMovI(t, ret, 1)
	default:
		c.emit(OpSetCond, t, Arg(ret), Arg(a1), Arg(a2), Arg(cond))
	}
}

// GenNegSetCond sets ret to -1 if cond holds, else 0.
func (c *Context) GenNegSetCond(t Type, cond Cond, ret, a1, a2 int) {
	c.emit(OpNegSetCond, t, Arg(ret), Arg(a1), Arg(a2), Arg(cond))
}

// GenMovCond sets ret to v1 if cond holds between c1 and c2, else v2.
func (c *Context) GenMovCond(t Type, cond Cond, ret, c1, c2, v1, v2 int) {
	switch cond {
	case CondAlways:
		c.GenMov(t, ret, v1)
	case CondNever:
		c.GenMov(t, ret, v2)
	default:
		c.emit(OpMovCond, t, Arg(ret), Arg(c1), Arg(c2), Arg(v1), Arg(v2), Arg(cond))
	}
}

// GenBr branches unconditionally to a label.
func (c *Context) GenBr(l *Label) {
	c.emit(OpBr, TypeI64, Arg(l.ID))
}

// GenBrCond branches to a label if cond holds between a1 and a2. The
// label reference becomes a relocation when the host branch is emitted.
func (c *Context) GenBrCond(t Type, cond Cond, a1, a2 int, l *Label) {
	switch cond {
	case CondNever:
	case CondAlways:
		c.GenBr(l)
	default:
		c.emit(OpBrCond, t, Arg(a1), Arg(a2), Arg(cond), Arg(l.ID))
	}
}

// GenSetLabel binds a label to the current position in the op stream.
func (c *Context) GenSetLabel(l *Label) {
	if l.Present {
		panic(fmt.Sprintf("ir: label %d set twice", l.ID))
	}
	l.Present = true
	c.emit(OpSetLabel, TypeI64, Arg(l.ID))
}

// GenExtract places an unsigned bitfield of a1 into ret.
func (c *Context) GenExtract(t Type, ret, a1 int, ofs, length int) {
	c.emit(OpExtract, t, Arg(ret), Arg(a1), Arg(ofs), Arg(length))
}

// GenSExtract places a sign extended bitfield of a1 into ret.
func (c *Context) GenSExtract(t Type, ret, a1 int, ofs, length int) {
	c.emit(OpSExtract, t, Arg(ret), Arg(a1), Arg(ofs), Arg(length))
}

// GenExtract2 extracts a register-width field from the concatenation
// hi:lo starting at bit ofs.
func (c *Context) GenExtract2(t Type, ret, lo, hi int, ofs int) {
	c.emit(OpExtract2, t, Arg(ret), Arg(lo), Arg(hi), Arg(ofs))
}

// GenDeposit replaces the bitfield [ofs,ofs+length) of a1 with the low
// bits of a2. Expanded to shift and mask ops; the backend has no
// general purpose deposit.
func (c *Context) GenDeposit(t Type, ret, a1, a2 int, ofs, length int) {
	width := t.Bits()
	if ofs == 0 && length == width {
		c.GenMov(t, ret, a2)
		return
	}
	mask := uint64(1)<<length - 1
	tf := c.NewEbbTemp(t)
	c.GenAnd(t, tf, a2, c.ConstTemp(t, mask))
	if ofs != 0 {
		c.GenShl(t, tf, tf, c.ConstTemp(t, uint64(ofs)))
	}
	tk := c.NewEbbTemp(t)
	c.GenAnd(t, tk, a1, c.ConstTemp(t, ^(mask<<ofs)))
	c.GenOr(t, ret, tk, tf)
}

// GenExt32S sign extends the low 32 bits of a1.
func (c *Context) GenExt32S(ret, a1 int) {
	c.GenSExtract(TypeI64, ret, a1, 0, 32)
}

// GenExt32U zero extends the low 32 bits of a1.
func (c *Context) GenExt32U(ret, a1 int) {
	c.GenExtract(TypeI64, ret, a1, 0, 32)
}

// Width conversions between I32 and I64 temps. Fixed result type.
func (c *Context) GenExtI32I64(ret, a1 int)   { c.emit(OpExtI32I64, TypeI64, Arg(ret), Arg(a1)) }
func (c *Context) GenExtUI32I64(ret, a1 int)  { c.emit(OpExtUI32I64, TypeI64, Arg(ret), Arg(a1)) }
func (c *Context) GenExtrlI64I32(ret, a1 int) { c.emit(OpExtrlI64I32, TypeI32, Arg(ret), Arg(a1)) }
func (c *Context) GenExtrhI64I32(ret, a1 int) { c.emit(OpExtrhI64I32, TypeI32, Arg(ret), Arg(a1)) }

// Byte swaps. flags is backend specific and currently unused.
func (c *Context) GenBswap16(t Type, ret, a1 int) { c.emit(OpBswap16, t, Arg(ret), Arg(a1), 0) }
func (c *Context) GenBswap32(t Type, ret, a1 int) { c.emit(OpBswap32, t, Arg(ret), Arg(a1), 0) }
func (c *Context) GenBswap64(ret, a1 int)         { c.emit(OpBswap64, TypeI64, Arg(ret), Arg(a1), 0) }

// Bit counting. a2 supplies the result when a1 is zero.
func (c *Context) GenClz(t Type, ret, a1, a2 int) { c.gen3(OpClz, t, ret, a1, a2) }
func (c *Context) GenCtz(t Type, ret, a1, a2 int) { c.gen3(OpCtz, t, ret, a1, a2) }
func (c *Context) GenCtPop(t Type, ret, a1 int)   { c.gen2(OpCtPop, t, ret, a1) }

// Host memory loads from base register plus constant offset.
func (c *Context) GenLd(opc Opcode, t Type, ret, base int, off int64) {
	switch opc {
	case OpLd8U, OpLd8S, OpLd16U, OpLd16S, OpLd32U, OpLd32S, OpLd:
	default:
		panic("ir: GenLd with non-load opcode " + opc.String())
	}
	c.emit(opc, t, Arg(ret), Arg(base), Arg(off))
}

// Host memory stores to base register plus constant offset.
func (c *Context) GenSt(opc Opcode, t Type, val, base int, off int64) {
	switch opc {
	case OpSt8, OpSt16, OpSt32, OpSt:
	default:
		panic("ir: GenSt with non-store opcode " + opc.String())
	}
	c.emit(opc, t, Arg(val), Arg(base), Arg(off))
}

// GenGuestLd loads from guest memory at the address in addr.
func (c *Context) GenGuestLd(t Type, ret, addr int, mo MemOp) {
	c.emit(OpGuestLd, t, Arg(ret), Arg(addr), Arg(mo))
}

// GenGuestSt stores val to guest memory at the address in addr.
func (c *Context) GenGuestSt(t Type, val, addr int, mo MemOp) {
	c.emit(OpGuestSt, t, Arg(val), Arg(addr), Arg(mo))
}

// GenMb emits a memory barrier.
func (c *Context) GenMb(kind uint32) {
	c.emit(OpMb, TypeI64, Arg(kind))
}

// GenExitTb leaves the translation block with the given exit word.
func (c *Context) GenExitTb(val uint64) {
	c.emit(OpExitTb, TypeI64, Arg(val))
}

// GenGotoTb leaves the translation block through patchable chain slot
// 0 or 1.
func (c *Context) GenGotoTb(slot int) {
	if slot != 0 && slot != 1 {
		panic("ir: goto_tb slot out of range")
	}
	c.emit(OpGotoTb, TypeI64, Arg(slot))
}

// GenGotoPtr jumps to a host code address held in a temp.
func (c *Context) GenGotoPtr(a1 int) {
	c.emit(OpGotoPtr, TypeI64, Arg(a1))
}

// GenCall calls a host helper. fn is the raw entry address, rets and
// args follow the host calling convention.
func (c *Context) GenCall(fn uintptr, rets, args []int) {
	n := len(rets) + len(args) + 1
	if n > MaxOpArgs {
		panic("ir: call exceeds op arg capacity")
	}
	opArgs := make([]Arg, 0, n)
	for _, r := range rets {
		opArgs = append(opArgs, Arg(r))
	}
	for _, a := range args {
		opArgs = append(opArgs, Arg(a))
	}
	opArgs = append(opArgs, Arg(fn))
	op := c.emit(OpCall, TypeI64, opArgs...)
	op.Param1 = uint8(len(rets))
	op.Param2 = uint8(len(args))
}
