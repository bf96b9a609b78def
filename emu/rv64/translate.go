/*
 * rv64jit - RV64IM instruction translator. Decodes one guest
 * instruction at a time and lowers it through the IR builder; any
 * control transfer or exception ends the translation block.
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
	"github.com/rcornwell/rv64jit/tcg/engine"
	"github.com/rcornwell/rv64jit/tcg/ir"
)

// Major opcodes of the base encoding.
const (
	opLoad    = 0x03
	opMiscMem = 0x0F
	opOpImm   = 0x13
	opAuipc   = 0x17
	opOpImm32 = 0x1B
	opStore   = 0x23
	opOp      = 0x33
	opLui     = 0x37
	opOp32    = 0x3B
	opBranch  = 0x63
	opJalr    = 0x67
	opJal     = 0x6F
	opSystem  = 0x73
)

// disas carries the per-block translation state.
type disas struct {
	ctx *ir.Context
	pc  uint64
	end bool
}

// GenCode translates up to maxInsns instructions starting at pc and
// terminates the block. Returns the number of guest bytes consumed.
func (c *CPU) GenCode(ctx *ir.Context, pc uint64, maxInsns int) uint32 {
	dc := &disas{ctx: ctx, pc: pc}
	end := pc
	for n := 0; n < maxInsns && !dc.end; n++ {
		ctx.GenInsnStart(dc.pc)
		insn, err := c.mem.Fetch32(dc.pc)
		if err != nil {
			c.genException(dc, engine.ReasonIllegal, dc.pc)
			break
		}
		end = dc.pc + 4
		c.translateInsn(dc, insn)
	}
	if !dc.end {
		// Instruction budget hit: chain to the straight-line successor.
		c.genGotoTb(dc, 0, dc.pc)
	}
	return uint32(end - pc)
}

// src returns the temp holding a source register; x0 reads as the
// constant zero.
func (c *CPU) src(dc *disas, r uint32) int {
	if r == 0 {
		return dc.ctx.ConstTemp(ir.TypeI64, 0)
	}
	return c.g.x[r]
}

// dst returns the temp receiving a destination register; writes to x0
// land in a scratch temp that liveness discards.
func (c *CPU) dst(dc *disas, r uint32) int {
	if r == 0 {
		return dc.ctx.NewEbbTemp(ir.TypeI64)
	}
	return c.g.x[r]
}

// cv returns a deduplicated I64 constant.
func (c *CPU) cv(dc *disas, v uint64) int {
	return dc.ctx.ConstTemp(ir.TypeI64, v)
}

// genGotoTb stores the successor pc and leaves through a patchable
// chain slot.
func (c *CPU) genGotoTb(dc *disas, slot int, target uint64) {
	dc.ctx.GenMovI(ir.TypeI64, c.g.pc, target)
	dc.ctx.GenGotoTb(slot)
	dc.end = true
}

// genExitNoChain stores pc from a temp and leaves through the
// indirect-exit path.
func (c *CPU) genExitNoChain(dc *disas, target int) {
	dc.ctx.GenMov(ir.TypeI64, c.g.pc, target)
	dc.ctx.GenExitTb(engine.ExitNoChain)
	dc.end = true
}

// genException surfaces a guest-visible exit with pc positioned at
// nextPC.
func (c *CPU) genException(dc *disas, r engine.ExitReason, nextPC uint64) {
	dc.ctx.GenMovI(ir.TypeI64, c.g.pc, nextPC)
	dc.ctx.GenExitTb(engine.UserExit(r))
	dc.end = true
}

// Immediate extraction per encoding format.
func immI(insn uint32) int64 {
	return int64(int32(insn)) >> 20
}

func immS(insn uint32) int64 {
	return int64(int32(insn&0xFE000000))>>20 | int64((insn>>7)&0x1F)
}

func immB(insn uint32) int64 {
	return int64(int32(insn&0x80000000))>>19 |
		int64((insn>>7)&0x1)<<11 |
		int64((insn>>25)&0x3F)<<5 |
		int64((insn>>8)&0xF)<<1
}

func immU(insn uint32) int64 {
	return int64(int32(insn & 0xFFFFF000))
}

func immJ(insn uint32) int64 {
	return int64(int32(insn&0x80000000))>>11 |
		int64((insn>>12)&0xFF)<<12 |
		int64((insn>>20)&0x1)<<11 |
		int64((insn>>21)&0x3FF)<<1
}

// translateInsn lowers a single instruction.
func (c *CPU) translateInsn(dc *disas, insn uint32) {
	ctx := dc.ctx
	op := insn & 0x7F
	rd := (insn >> 7) & 0x1F
	f3 := (insn >> 12) & 0x7
	rs1 := (insn >> 15) & 0x1F
	rs2 := (insn >> 20) & 0x1F
	f7 := insn >> 25
	next := dc.pc + 4

	switch op {
	case opLui:
		ctx.GenMovI(ir.TypeI64, c.dst(dc, rd), uint64(immU(insn)))
	case opAuipc:
		ctx.GenMovI(ir.TypeI64, c.dst(dc, rd), dc.pc+uint64(immU(insn)))

	case opJal:
		if rd != 0 {
			ctx.GenMovI(ir.TypeI64, c.g.x[rd], next)
		}
		c.genGotoTb(dc, 0, dc.pc+uint64(immJ(insn)))
		return
	case opJalr:
		if f3 != 0 {
			c.genException(dc, engine.ReasonIllegal, dc.pc)
			return
		}
		t := ctx.NewEbbTemp(ir.TypeI64)
		ctx.GenAdd(ir.TypeI64, t, c.src(dc, rs1), c.cv(dc, uint64(immI(insn))))
		ctx.GenAnd(ir.TypeI64, t, t, c.cv(dc, ^uint64(1)))
		if rd != 0 {
			ctx.GenMovI(ir.TypeI64, c.g.x[rd], next)
		}
		c.genExitNoChain(dc, t)
		return

	case opBranch:
		cond, ok := branchCond(f3)
		if !ok {
			c.genException(dc, engine.ReasonIllegal, dc.pc)
			return
		}
		taken := ctx.NewLabel()
		ctx.GenBrCond(ir.TypeI64, cond, c.src(dc, rs1), c.src(dc, rs2), taken)
		c.genGotoTb(dc, 0, next)
		ctx.GenSetLabel(taken)
		c.genGotoTb(dc, 1, dc.pc+uint64(immB(insn)))
		return

	case opLoad:
		mo, ok := loadMemOp(f3)
		if !ok {
			c.genException(dc, engine.ReasonIllegal, dc.pc)
			return
		}
		addr := ctx.NewEbbTemp(ir.TypeI64)
		ctx.GenAdd(ir.TypeI64, addr, c.src(dc, rs1), c.cv(dc, uint64(immI(insn))))
		ctx.GenGuestLd(ir.TypeI64, c.dst(dc, rd), addr, mo)
	case opStore:
		mo, ok := storeMemOp(f3)
		if !ok {
			c.genException(dc, engine.ReasonIllegal, dc.pc)
			return
		}
		addr := ctx.NewEbbTemp(ir.TypeI64)
		ctx.GenAdd(ir.TypeI64, addr, c.src(dc, rs1), c.cv(dc, uint64(immS(insn))))
		ctx.GenGuestSt(ir.TypeI64, c.src(dc, rs2), addr, mo)

	case opOpImm:
		c.genOpImm(dc, insn, rd, f3, rs1)
	case opOpImm32:
		c.genOpImm32(dc, insn, rd, f3, rs1)
	case opOp:
		c.genOp(dc, insn, rd, f3, rs1, rs2, f7)
	case opOp32:
		c.genOp32(dc, insn, rd, f3, rs1, rs2, f7)

	case opMiscMem:
		// FENCE and FENCE.I; a full barrier covers both in this model.
		ctx.GenMb(0)

	case opSystem:
		switch insn {
		case 0x00000073: // ecall
			c.genException(dc, engine.ReasonECall, next)
		case 0x00100073: // ebreak
			c.genException(dc, engine.ReasonEBreak, dc.pc)
		default:
			c.genException(dc, engine.ReasonIllegal, dc.pc)
		}
		return

	default:
		c.genException(dc, engine.ReasonIllegal, dc.pc)
		return
	}
	dc.pc = next
}

func branchCond(f3 uint32) (ir.Cond, bool) {
	switch f3 {
	case 0:
		return ir.CondEq, true
	case 1:
		return ir.CondNe, true
	case 4:
		return ir.CondLt, true
	case 5:
		return ir.CondGe, true
	case 6:
		return ir.CondLtu, true
	case 7:
		return ir.CondGeu, true
	}
	return 0, false
}

func loadMemOp(f3 uint32) (ir.MemOp, bool) {
	switch f3 {
	case 0:
		return ir.MoSB, true
	case 1:
		return ir.MoSW, true
	case 2:
		return ir.MoSL, true
	case 3:
		return ir.MoUQ, true
	case 4:
		return ir.MoUB, true
	case 5:
		return ir.MoUW, true
	case 6:
		return ir.MoUL, true
	}
	return 0, false
}

func storeMemOp(f3 uint32) (ir.MemOp, bool) {
	switch f3 {
	case 0:
		return ir.Mo8, true
	case 1:
		return ir.Mo16, true
	case 2:
		return ir.Mo32, true
	case 3:
		return ir.Mo64, true
	}
	return 0, false
}

// genOpImm lowers the OP-IMM group.
func (c *CPU) genOpImm(dc *disas, insn uint32, rd, f3, rs1 uint32) {
	ctx := dc.ctx
	a := c.src(dc, rs1)
	d := c.dst(dc, rd)
	imm := uint64(immI(insn))
	switch f3 {
	case 0: // addi
		ctx.GenAdd(ir.TypeI64, d, a, c.cv(dc, imm))
	case 1: // slli
		if insn>>26 != 0 {
			c.genException(dc, engine.ReasonIllegal, dc.pc)
			return
		}
		ctx.GenShl(ir.TypeI64, d, a, c.cv(dc, uint64((insn>>20)&0x3F)))
	case 2: // slti
		ctx.GenSetCond(ir.TypeI64, ir.CondLt, d, a, c.cv(dc, imm))
	case 3: // sltiu
		ctx.GenSetCond(ir.TypeI64, ir.CondLtu, d, a, c.cv(dc, imm))
	case 4: // xori
		ctx.GenXor(ir.TypeI64, d, a, c.cv(dc, imm))
	case 5: // srli/srai
		shamt := uint64((insn >> 20) & 0x3F)
		switch insn >> 26 {
		case 0x00:
			ctx.GenShr(ir.TypeI64, d, a, c.cv(dc, shamt))
		case 0x10:
			ctx.GenSar(ir.TypeI64, d, a, c.cv(dc, shamt))
		default:
			c.genException(dc, engine.ReasonIllegal, dc.pc)
			return
		}
	case 6: // ori
		ctx.GenOr(ir.TypeI64, d, a, c.cv(dc, imm))
	case 7: // andi
		ctx.GenAnd(ir.TypeI64, d, a, c.cv(dc, imm))
	}
}

// genOpImm32 lowers the OP-IMM-32 group, results sign extended from
// 32 bits.
func (c *CPU) genOpImm32(dc *disas, insn uint32, rd, f3, rs1 uint32) {
	ctx := dc.ctx
	a := c.src(dc, rs1)
	d := c.dst(dc, rd)
	shamt := uint64((insn >> 20) & 0x1F)
	switch f3 {
	case 0: // addiw
		t := ctx.NewEbbTemp(ir.TypeI64)
		ctx.GenAdd(ir.TypeI64, t, a, c.cv(dc, uint64(immI(insn))))
		ctx.GenExt32S(d, t)
	case 1: // slliw
		if insn>>25 != 0 {
			c.genException(dc, engine.ReasonIllegal, dc.pc)
			return
		}
		t := ctx.NewEbbTemp(ir.TypeI64)
		ctx.GenShl(ir.TypeI64, t, a, c.cv(dc, shamt))
		ctx.GenExt32S(d, t)
	case 5: // srliw/sraiw
		t := ctx.NewEbbTemp(ir.TypeI64)
		switch insn >> 25 {
		case 0x00:
			ctx.GenExt32U(t, a)
			ctx.GenShr(ir.TypeI64, t, t, c.cv(dc, shamt))
		case 0x20:
			ctx.GenExt32S(t, a)
			ctx.GenSar(ir.TypeI64, t, t, c.cv(dc, shamt))
		default:
			c.genException(dc, engine.ReasonIllegal, dc.pc)
			return
		}
		ctx.GenExt32S(d, t)
	default:
		c.genException(dc, engine.ReasonIllegal, dc.pc)
	}
}

// genOp lowers the OP group including the M extension.
func (c *CPU) genOp(dc *disas, insn uint32, rd, f3, rs1, rs2, f7 uint32) {
	ctx := dc.ctx
	a := c.src(dc, rs1)
	b := c.src(dc, rs2)
	d := c.dst(dc, rd)
	switch {
	case f7 == 0x00:
		switch f3 {
		case 0:
			ctx.GenAdd(ir.TypeI64, d, a, b)
		case 1:
			c.genShift(dc, d, a, b, 63, ctx.GenShl)
		case 2:
			ctx.GenSetCond(ir.TypeI64, ir.CondLt, d, a, b)
		case 3:
			ctx.GenSetCond(ir.TypeI64, ir.CondLtu, d, a, b)
		case 4:
			ctx.GenXor(ir.TypeI64, d, a, b)
		case 5:
			c.genShift(dc, d, a, b, 63, ctx.GenShr)
		case 6:
			ctx.GenOr(ir.TypeI64, d, a, b)
		case 7:
			ctx.GenAnd(ir.TypeI64, d, a, b)
		}
	case f7 == 0x20:
		switch f3 {
		case 0:
			ctx.GenSub(ir.TypeI64, d, a, b)
		case 5:
			c.genShift(dc, d, a, b, 63, ctx.GenSar)
		default:
			c.genException(dc, engine.ReasonIllegal, dc.pc)
		}
	case f7 == 0x01:
		c.genMulDiv(dc, insn, rd, f3, rs1, rs2, false)
	default:
		c.genException(dc, engine.ReasonIllegal, dc.pc)
	}
}

// genOp32 lowers the OP-32 group including the M extension W forms.
func (c *CPU) genOp32(dc *disas, insn uint32, rd, f3, rs1, rs2, f7 uint32) {
	ctx := dc.ctx
	a := c.src(dc, rs1)
	b := c.src(dc, rs2)
	d := c.dst(dc, rd)
	t := ctx.NewEbbTemp(ir.TypeI64)
	switch {
	case f7 == 0x00:
		switch f3 {
		case 0:
			ctx.GenAdd(ir.TypeI64, t, a, b)
		case 1:
			c.genShift(dc, t, a, b, 31, ctx.GenShl)
		case 5:
			u := ctx.NewEbbTemp(ir.TypeI64)
			ctx.GenExt32U(u, a)
			c.genShift(dc, t, u, b, 31, ctx.GenShr)
		default:
			c.genException(dc, engine.ReasonIllegal, dc.pc)
			return
		}
	case f7 == 0x20:
		switch f3 {
		case 0:
			ctx.GenSub(ir.TypeI64, t, a, b)
		case 5:
			u := ctx.NewEbbTemp(ir.TypeI64)
			ctx.GenExt32S(u, a)
			c.genShift(dc, t, u, b, 31, ctx.GenSar)
		default:
			c.genException(dc, engine.ReasonIllegal, dc.pc)
			return
		}
	case f7 == 0x01:
		c.genMulDiv(dc, insn, rd, f3, rs1, rs2, true)
		return
	default:
		c.genException(dc, engine.ReasonIllegal, dc.pc)
		return
	}
	ctx.GenExt32S(d, t)
}

// genShift masks the count register and applies the shift generator.
func (c *CPU) genShift(dc *disas, d, a, b int, mask uint64,
	gen func(ir.Type, int, int, int)) {
	ctx := dc.ctx
	cnt := ctx.NewEbbTemp(ir.TypeI64)
	ctx.GenAnd(ir.TypeI64, cnt, b, c.cv(dc, mask))
	gen(ir.TypeI64, d, a, cnt)
}
