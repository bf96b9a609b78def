/*
 * rv64jit - Register allocator tests.
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
	"testing"

	"github.com/rcornwell/rv64jit/tcg/codebuf"
	"github.com/rcornwell/rv64jit/tcg/ir"
	"github.com/rcornwell/rv64jit/tcg/liveness"
	"github.com/rcornwell/rv64jit/tcg/optimize"
)

func compileOps(t *testing.T, build func(ctx *ir.Context, g1, g2 int)) (*Backend, CompiledTB) {
	t.Helper()
	buf, err := codebuf.New(1 << 16)
	if err != nil {
		t.Fatalf("mmap failed: %v", err)
	}
	t.Cleanup(func() { buf.Close() })

	ctx := ir.NewContext()
	be := NewBackend(buf, ctx)
	be.EmitPrologue()
	ctx.NewFixed(ir.TypeI64, AREG0, "env")
	g1 := ctx.NewGlobal(ir.TypeI64, AREG0, 0, "g1")
	g2 := ctx.NewGlobal(ir.TypeI64, AREG0, 8, "g2")
	build(ctx, g1, g2)
	optimize.Run(ctx)
	liveness.Run(ctx)
	compiled := be.Compile(1)
	if buf.Overflow() {
		t.Fatalf("buffer overflow during compile")
	}
	return be, compiled
}

// A plain arithmetic block compiles and produces code.
func TestCompileArith(t *testing.T) {
	_, compiled := compileOps(t, func(ctx *ir.Context, g1, g2 int) {
		a := ctx.NewEbbTemp(ir.TypeI64)
		ctx.GenAdd(ir.TypeI64, a, g1, g2)
		ctx.GenSub(ir.TypeI64, g1, a, g2)
		ctx.GenExitTb(0)
	})
	if compiled.HostSize <= 0 {
		t.Errorf("no code emitted got: %d", compiled.HostSize)
	}
	if compiled.JmpInsnOff[0] != -1 || compiled.JmpInsnOff[1] != -1 {
		t.Errorf("chain slots recorded without goto_tb")
	}
}

// The shift count lands in RCX and division pins RAX:RDX without a
// constraint failure.
func TestCompileFixedConstraints(t *testing.T) {
	compileOps(t, func(ctx *ir.Context, g1, g2 int) {
		ctx.GenShl(ir.TypeI64, g1, g1, g2)
		lo := ctx.NewEbbTemp(ir.TypeI64)
		hi := ctx.NewEbbTemp(ir.TypeI64)
		ctx.GenMov(ir.TypeI64, lo, g1)
		ctx.GenMovI(ir.TypeI64, hi, 0)
		q := ctx.NewEbbTemp(ir.TypeI64)
		r := ctx.NewEbbTemp(ir.TypeI64)
		one := ctx.ConstTemp(ir.TypeI64, 1)
		sum := ctx.NewEbbTemp(ir.TypeI64)
		ctx.GenOr(ir.TypeI64, sum, g2, one)
		ctx.GenDivU2(ir.TypeI64, q, r, lo, hi, sum)
		ctx.GenMov(ir.TypeI64, g2, q)
		ctx.GenExitTb(0)
	})
}

// setcond and movcond honor newreg and alias constraints.
func TestCompileCondOps(t *testing.T) {
	compileOps(t, func(ctx *ir.Context, g1, g2 int) {
		c := ctx.NewEbbTemp(ir.TypeI64)
		ctx.GenSetCond(ir.TypeI64, ir.CondLtu, c, g1, g2)
		ctx.GenMovCond(ir.TypeI64, ir.CondNe, g1, c,
			ctx.ConstTemp(ir.TypeI64, 0), g2, g1)
		ctx.GenExitTb(0)
	})
}

// goto_tb pads so the displacement field is 4-byte aligned and the
// reset offset points right behind the jump.
func TestGotoTbAlignment(t *testing.T) {
	for pad := 0; pad < 4; pad++ {
		padding := pad
		_, compiled := compileOps(t, func(ctx *ir.Context, g1, g2 int) {
			for i := 0; i < padding; i++ {
				ctx.GenMb(0) // three bytes each, shifts the cursor
			}
			ctx.GenMovI(ir.TypeI64, g1, 0x1000)
			ctx.GenGotoTb(0)
		})
		insn := compiled.JmpInsnOff[0]
		if insn < 0 {
			t.Fatalf("goto_tb slot not recorded")
		}
		if (insn+1)&3 != 0 {
			t.Errorf("displacement field unaligned at %d", insn+1)
		}
		if compiled.JmpResetOff[0] != insn+5 {
			t.Errorf("reset offset got: %d expected: %d",
				compiled.JmpResetOff[0], insn+5)
		}
	}
}

// Labels referenced forward are resolved and leave no unpatched uses.
func TestLabelBackpatch(t *testing.T) {
	be, _ := compileOps(t, func(ctx *ir.Context, g1, g2 int) {
		l := ctx.NewLabel()
		ctx.GenBrCond(ir.TypeI64, ir.CondEq, g1, g2, l)
		ctx.GenAdd(ir.TypeI64, g1, g1, g2)
		ctx.GenSetLabel(l)
		ctx.GenExitTb(0)
	})
	var l *ir.Label
	for _, cand := range be.ctx.Labels {
		l = cand
	}
	if l == nil || !l.HasValue {
		t.Fatalf("label not resolved")
	}
	if len(l.Uses) != 0 {
		t.Errorf("unpatched label uses remain: %d", len(l.Uses))
	}
}

// Many simultaneously live locals churn the allocator without
// exhausting the register file.
func TestCompilePressure(t *testing.T) {
	compileOps(t, func(ctx *ir.Context, g1, g2 int) {
		temps := make([]int, 8)
		for i := range temps {
			temps[i] = ctx.NewTemp(ir.TypeI64)
			ctx.GenAdd(ir.TypeI64, temps[i], g1,
				ctx.ConstTemp(ir.TypeI64, uint64(i)*3+1))
		}
		acc := ctx.NewTemp(ir.TypeI64)
		ctx.GenMovI(ir.TypeI64, acc, 0)
		for i := range temps {
			ctx.GenAdd(ir.TypeI64, acc, acc, temps[i])
		}
		ctx.GenMov(ir.TypeI64, g1, acc)
		ctx.GenExitTb(0)
	})
}
