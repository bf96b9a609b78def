/*
 * rv64jit - Optimizer tests.
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

package optimize

import (
	"testing"

	"github.com/rcornwell/rv64jit/tcg/ir"
)

// constOf returns the constant a mov feeds its destination, if any.
func constOf(ctx *ir.Context, op *ir.Op) (uint64, bool) {
	if op.Opc != ir.OpMov {
		return 0, false
	}
	src := ctx.Temp(op.In(0))
	if src.Kind != ir.KindConst {
		return 0, false
	}
	return src.Value, true
}

// Adding two constants folds to a constant move.
func TestFoldAdd(t *testing.T) {
	ctx := ir.NewContext()
	t1 := ctx.ConstTemp(ir.TypeI64, 3)
	t2 := ctx.ConstTemp(ir.TypeI64, 4)
	t3 := ctx.NewTemp(ir.TypeI64)
	ctx.GenAdd(ir.TypeI64, t3, t1, t2)

	Run(ctx)
	v, ok := constOf(ctx, &ctx.Ops[0])
	if !ok || v != 7 {
		t.Errorf("fold got: %v %v expected: mov const 7", ctx.Ops[0].Opc, v)
	}
}

// Binary folds truncate to the op width.
func TestFoldWidth(t *testing.T) {
	ctx := ir.NewContext()
	t1 := ctx.ConstTemp(ir.TypeI32, 0xFFFFFFFF)
	t2 := ctx.ConstTemp(ir.TypeI32, 1)
	t3 := ctx.NewTemp(ir.TypeI32)
	ctx.GenAdd(ir.TypeI32, t3, t1, t2)

	Run(ctx)
	v, ok := constOf(ctx, &ctx.Ops[0])
	if !ok || uint32(v) != 0 {
		t.Errorf("i32 wrap got: %x expected: 0", v)
	}
}

// Width conversions fold on constant input.
func TestFoldExt(t *testing.T) {
	cases := []struct {
		gen  func(ctx *ir.Context, d, s int)
		in   uint64
		want uint64
	}{
		{(*ir.Context).GenExtI32I64, 0x80000000, 0xFFFFFFFF80000000},
		{(*ir.Context).GenExtUI32I64, 0x80000000, 0x80000000},
		{(*ir.Context).GenExtrlI64I32, 0x1122334455667788, 0x55667788},
		{(*ir.Context).GenExtrhI64I32, 0x1122334455667788, 0x11223344},
	}
	for n, c := range cases {
		ctx := ir.NewContext()
		s := ctx.ConstTemp(ir.TypeI64, c.in)
		d := ctx.NewTemp(ir.TypeI64)
		c.gen(ctx, d, s)
		Run(ctx)
		v, ok := constOf(ctx, &ctx.Ops[0])
		if !ok || v != c.want {
			t.Errorf("case %d got: %x expected: %x", n, v, c.want)
		}
	}
}

// Algebraic identities rewrite to moves, zeros and negation.
func TestIdentities(t *testing.T) {
	// x + 0 becomes a copy.
	ctx := ir.NewContext()
	x := ctx.NewTemp(ir.TypeI64)
	z := ctx.ConstTemp(ir.TypeI64, 0)
	d := ctx.NewTemp(ir.TypeI64)
	ctx.GenAdd(ir.TypeI64, d, x, z)
	Run(ctx)
	if op := &ctx.Ops[0]; op.Opc != ir.OpMov || op.In(0) != x {
		t.Errorf("x+0 got: %v expected: mov x", op.Opc)
	}

	// x ^ x becomes zero.
	ctx = ir.NewContext()
	x = ctx.NewTemp(ir.TypeI64)
	d = ctx.NewTemp(ir.TypeI64)
	ctx.GenXor(ir.TypeI64, d, x, x)
	Run(ctx)
	if v, ok := constOf(ctx, &ctx.Ops[0]); !ok || v != 0 {
		t.Errorf("x^x got: %v expected: mov const 0", ctx.Ops[0].Opc)
	}

	// x * 0 becomes zero.
	ctx = ir.NewContext()
	x = ctx.NewTemp(ir.TypeI64)
	d = ctx.NewTemp(ir.TypeI64)
	ctx.GenMul(ir.TypeI64, d, x, ctx.ConstTemp(ir.TypeI64, 0))
	Run(ctx)
	if v, ok := constOf(ctx, &ctx.Ops[0]); !ok || v != 0 {
		t.Errorf("x*0 got: %v expected: mov const 0", ctx.Ops[0].Opc)
	}

	// 0 - x strength reduces to negation.
	ctx = ir.NewContext()
	x = ctx.NewTemp(ir.TypeI64)
	d = ctx.NewTemp(ir.TypeI64)
	ctx.GenSub(ir.TypeI64, d, ctx.ConstTemp(ir.TypeI64, 0), x)
	Run(ctx)
	if op := &ctx.Ops[0]; op.Opc != ir.OpNeg || op.In(0) != x {
		t.Errorf("0-x got: %v expected: neg", op.Opc)
	}

	// x & -1 becomes a copy.
	ctx = ir.NewContext()
	x = ctx.NewTemp(ir.TypeI64)
	d = ctx.NewTemp(ir.TypeI64)
	ctx.GenAnd(ir.TypeI64, d, x, ctx.ConstTemp(ir.TypeI64, ^uint64(0)))
	Run(ctx)
	if op := &ctx.Ops[0]; op.Opc != ir.OpMov || op.In(0) != x {
		t.Errorf("x&-1 got: %v expected: mov x", op.Opc)
	}
}

// Copy propagation substitutes the canonical source.
func TestCopyPropagation(t *testing.T) {
	ctx := ir.NewContext()
	a := ctx.NewTemp(ir.TypeI64)
	b := ctx.NewTemp(ir.TypeI64)
	c := ctx.NewTemp(ir.TypeI64)
	d := ctx.NewTemp(ir.TypeI64)
	ctx.GenMov(ir.TypeI64, b, a)
	ctx.GenMov(ir.TypeI64, c, b)
	ctx.GenAdd(ir.TypeI64, d, c, c)

	Run(ctx)
	add := &ctx.Ops[2]
	if add.In(0) != a || add.In(1) != a {
		t.Errorf("copy propagation got: %d,%d expected: %d,%d",
			add.In(0), add.In(1), a, a)
	}
}

// A redefined destination loses its records without disturbing others.
func TestRedefineInvalidation(t *testing.T) {
	ctx := ir.NewContext()
	a := ctx.NewTemp(ir.TypeI64)
	b := ctx.NewTemp(ir.TypeI64)
	d := ctx.NewTemp(ir.TypeI64)
	ctx.GenMov(ir.TypeI64, b, ctx.ConstTemp(ir.TypeI64, 9))
	ctx.GenCtPop(ir.TypeI64, b, a) // b redefined, no longer const
	ctx.GenAdd(ir.TypeI64, d, b, ctx.ConstTemp(ir.TypeI64, 1))

	Run(ctx)
	if op := &ctx.Ops[2]; op.Opc != ir.OpAdd {
		t.Errorf("stale const folded got: %v expected: add", op.Opc)
	}
}

// Statically decided branches rewrite to br or nop.
func TestBranchFolding(t *testing.T) {
	ctx := ir.NewContext()
	l := ctx.NewLabel()
	ctx.GenBrCond(ir.TypeI64, ir.CondEq,
		ctx.ConstTemp(ir.TypeI64, 5), ctx.ConstTemp(ir.TypeI64, 5), l)
	ctx.GenSetLabel(l)
	Run(ctx)
	if op := &ctx.Ops[0]; op.Opc != ir.OpBr {
		t.Errorf("taken brcond got: %v expected: br", op.Opc)
	}

	ctx = ir.NewContext()
	l = ctx.NewLabel()
	ctx.GenBrCond(ir.TypeI64, ir.CondLtu,
		ctx.ConstTemp(ir.TypeI64, 9), ctx.ConstTemp(ir.TypeI64, 5), l)
	ctx.GenSetLabel(l)
	Run(ctx)
	if op := &ctx.Ops[0]; op.Opc != ir.OpNop {
		t.Errorf("untaken brcond got: %v expected: nop", op.Opc)
	}
}

// Records do not leak across basic block boundaries.
func TestBlockBoundary(t *testing.T) {
	ctx := ir.NewContext()
	a := ctx.NewTemp(ir.TypeI64)
	b := ctx.NewTemp(ir.TypeI64)
	d := ctx.NewTemp(ir.TypeI64)
	l := ctx.NewLabel()
	ctx.GenMov(ir.TypeI64, b, a)
	ctx.GenSetLabel(l)
	ctx.GenAdd(ir.TypeI64, d, b, b)

	Run(ctx)
	add := &ctx.Ops[2]
	if add.In(0) != b || add.In(1) != b {
		t.Errorf("copy propagated across label got: %d expected: %d", add.In(0), b)
	}
}

// The pass is idempotent on its own output.
func TestIdempotent(t *testing.T) {
	ctx := ir.NewContext()
	t1 := ctx.ConstTemp(ir.TypeI64, 3)
	t2 := ctx.ConstTemp(ir.TypeI64, 4)
	t3 := ctx.NewTemp(ir.TypeI64)
	t4 := ctx.NewTemp(ir.TypeI64)
	t5 := ctx.NewTemp(ir.TypeI64)
	ctx.GenAdd(ir.TypeI64, t3, t1, t2)
	ctx.GenMov(ir.TypeI64, t4, t3)
	ctx.GenShl(ir.TypeI64, t5, t4, ctx.ConstTemp(ir.TypeI64, 0))
	ctx.GenExitTb(0)

	Run(ctx)
	first := append([]ir.Op(nil), ctx.Ops...)
	Run(ctx)
	if len(first) != len(ctx.Ops) {
		t.Errorf("op count changed got: %d expected: %d", len(ctx.Ops), len(first))
	}
	for i := range first {
		a, b := &first[i], &ctx.Ops[i]
		if a.Opc != b.Opc || a.NArgs != b.NArgs || a.Args != b.Args {
			t.Errorf("op %d changed on second run: %v vs %v", i, a.Opc, b.Opc)
		}
	}
}
