/*
 * rv64jit - M extension lowering. Division follows the architected
 * edge cases without branching: the divisor is replaced by one ahead
 * of the host divide and the result patched with movcond.
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

// genMulDiv lowers the M extension. The word forms first narrow both
// operands, divide in 64 bits and sign extend the result; truncation
// makes the 32-bit overflow case come out right without a guard.
func (c *CPU) genMulDiv(dc *disas, insn uint32, rd, f3, rs1, rs2 uint32, word bool) {
	ctx := dc.ctx
	a := c.src(dc, rs1)
	b := c.src(dc, rs2)
	d := c.dst(dc, rd)

	if word {
		switch f3 {
		case 0: // mulw
			t := ctx.NewEbbTemp(ir.TypeI64)
			ctx.GenMul(ir.TypeI64, t, a, b)
			ctx.GenExt32S(d, t)
		case 4, 6: // divw, remw
			na := ctx.NewEbbTemp(ir.TypeI64)
			nb := ctx.NewEbbTemp(ir.TypeI64)
			ctx.GenExt32S(na, a)
			ctx.GenExt32S(nb, b)
			t := ctx.NewEbbTemp(ir.TypeI64)
			c.genDiv(dc, t, na, nb, f3 == 6, false)
			ctx.GenExt32S(d, t)
		case 5, 7: // divuw, remuw
			na := ctx.NewEbbTemp(ir.TypeI64)
			nb := ctx.NewEbbTemp(ir.TypeI64)
			ctx.GenExt32U(na, a)
			ctx.GenExt32U(nb, b)
			t := ctx.NewEbbTemp(ir.TypeI64)
			c.genDivU(dc, t, na, nb, f3 == 7)
			ctx.GenExt32S(d, t)
		default:
			c.genException(dc, engine.ReasonIllegal, dc.pc)
		}
		return
	}

	switch f3 {
	case 0: // mul
		ctx.GenMul(ir.TypeI64, d, a, b)
	case 1: // mulh
		lo := ctx.NewEbbTemp(ir.TypeI64)
		hi := ctx.NewEbbTemp(ir.TypeI64)
		ctx.GenMulS2(ir.TypeI64, lo, hi, a, b)
		ctx.GenMov(ir.TypeI64, d, hi)
	case 2: // mulhsu
		lo := ctx.NewEbbTemp(ir.TypeI64)
		hi := ctx.NewEbbTemp(ir.TypeI64)
		ctx.GenMulU2(ir.TypeI64, lo, hi, a, b)
		// Correct the unsigned product: subtract b when a is negative.
		sign := ctx.NewEbbTemp(ir.TypeI64)
		ctx.GenSar(ir.TypeI64, sign, a, c.cv(dc, 63))
		ctx.GenAnd(ir.TypeI64, sign, sign, b)
		ctx.GenSub(ir.TypeI64, d, hi, sign)
	case 3: // mulhu
		lo := ctx.NewEbbTemp(ir.TypeI64)
		hi := ctx.NewEbbTemp(ir.TypeI64)
		ctx.GenMulU2(ir.TypeI64, lo, hi, a, b)
		ctx.GenMov(ir.TypeI64, d, hi)
	case 4: // div
		c.genDiv(dc, d, a, b, false, true)
	case 5: // divu
		c.genDivU(dc, d, a, b, false)
	case 6: // rem
		c.genDiv(dc, d, a, b, true, true)
	case 7: // remu
		c.genDivU(dc, d, a, b, true)
	}
}

// genDiv lowers signed division. guardOverflow covers the 64-bit
// MIN/-1 case which would fault the host divide.
func (c *CPU) genDiv(dc *disas, d, a, b int, rem, guardOverflow bool) {
	ctx := dc.ctx
	zero := c.cv(dc, 0)
	one := c.cv(dc, 1)
	minusOne := c.cv(dc, ^uint64(0))

	bz := ctx.NewEbbTemp(ir.TypeI64)
	ctx.GenSetCond(ir.TypeI64, ir.CondEq, bz, b, zero)

	bad := bz
	ov := -1
	if guardOverflow {
		minI64 := c.cv(dc, 1<<63)
		t1 := ctx.NewEbbTemp(ir.TypeI64)
		t2 := ctx.NewEbbTemp(ir.TypeI64)
		ctx.GenSetCond(ir.TypeI64, ir.CondEq, t1, a, minI64)
		ctx.GenSetCond(ir.TypeI64, ir.CondEq, t2, b, minusOne)
		ov = ctx.NewEbbTemp(ir.TypeI64)
		ctx.GenAnd(ir.TypeI64, ov, t1, t2)
		bad = ctx.NewEbbTemp(ir.TypeI64)
		ctx.GenOr(ir.TypeI64, bad, bz, ov)
	}

	// Divide by a safe divisor, then patch the architected results in.
	bSafe := ctx.NewEbbTemp(ir.TypeI64)
	ctx.GenMovCond(ir.TypeI64, ir.CondNe, bSafe, bad, zero, one, b)
	lo := ctx.NewEbbTemp(ir.TypeI64)
	hi := ctx.NewEbbTemp(ir.TypeI64)
	ctx.GenMov(ir.TypeI64, lo, a)
	ctx.GenSar(ir.TypeI64, hi, a, c.cv(dc, 63))
	q := ctx.NewEbbTemp(ir.TypeI64)
	r := ctx.NewEbbTemp(ir.TypeI64)
	ctx.GenDivS2(ir.TypeI64, q, r, lo, hi, bSafe)

	res := ctx.NewEbbTemp(ir.TypeI64)
	if rem {
		if ov >= 0 {
			ctx.GenMovCond(ir.TypeI64, ir.CondNe, res, ov, zero, zero, r)
		} else {
			ctx.GenMov(ir.TypeI64, res, r)
		}
		res2 := ctx.NewEbbTemp(ir.TypeI64)
		ctx.GenMovCond(ir.TypeI64, ir.CondNe, res2, bz, zero, a, res)
		ctx.GenMov(ir.TypeI64, d, res2)
	} else {
		if ov >= 0 {
			minI64 := c.cv(dc, 1<<63)
			ctx.GenMovCond(ir.TypeI64, ir.CondNe, res, ov, zero, minI64, q)
		} else {
			ctx.GenMov(ir.TypeI64, res, q)
		}
		res2 := ctx.NewEbbTemp(ir.TypeI64)
		ctx.GenMovCond(ir.TypeI64, ir.CondNe, res2, bz, zero, minusOne, res)
		ctx.GenMov(ir.TypeI64, d, res2)
	}
}

// genDivU lowers unsigned division; only the zero divisor needs care.
func (c *CPU) genDivU(dc *disas, d, a, b int, rem bool) {
	ctx := dc.ctx
	zero := c.cv(dc, 0)
	one := c.cv(dc, 1)

	bz := ctx.NewEbbTemp(ir.TypeI64)
	ctx.GenSetCond(ir.TypeI64, ir.CondEq, bz, b, zero)
	bSafe := ctx.NewEbbTemp(ir.TypeI64)
	ctx.GenMovCond(ir.TypeI64, ir.CondNe, bSafe, bz, zero, one, b)

	lo := ctx.NewEbbTemp(ir.TypeI64)
	hi := ctx.NewEbbTemp(ir.TypeI64)
	ctx.GenMov(ir.TypeI64, lo, a)
	ctx.GenMovI(ir.TypeI64, hi, 0)
	q := ctx.NewEbbTemp(ir.TypeI64)
	r := ctx.NewEbbTemp(ir.TypeI64)
	ctx.GenDivU2(ir.TypeI64, q, r, lo, hi, bSafe)

	res := ctx.NewEbbTemp(ir.TypeI64)
	if rem {
		ctx.GenMovCond(ir.TypeI64, ir.CondNe, res, bz, zero, a, r)
	} else {
		ctx.GenMovCond(ir.TypeI64, ir.CondNe, res, bz, zero, c.cv(dc, ^uint64(0)), q)
	}
	ctx.GenMov(ir.TypeI64, d, res)
}
