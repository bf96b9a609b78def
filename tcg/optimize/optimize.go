/*
 * rv64jit - IR optimizer. One forward pass rewriting ops in place using
 * per-temp constness and copy tracking.
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
	"math/bits"

	"github.com/rcornwell/rv64jit/tcg/ir"
)

// Per-temp tracking state for one pass.
type tempInfo struct {
	isConst bool
	val     uint64
	copyOf  int // canonical copy source, self if none
}

type pass struct {
	ctx  *ir.Context
	info []tempInfo
}

// Run performs the single forward optimization pass over the context's
// op list. The pass is deterministic and idempotent.
func Run(ctx *ir.Context) {
	p := pass{ctx: ctx, info: make([]tempInfo, len(ctx.Temps))}
	p.resetAll()

	for i := range ctx.Ops {
		op := &ctx.Ops[i]
		switch op.Opc {
		case ir.OpSetLabel, ir.OpBr, ir.OpExitTb, ir.OpGotoTb,
			ir.OpGotoPtr, ir.OpCall:
			// Cross basic block propagation is unsound.
			p.resetAll()
			continue
		case ir.OpNop, ir.OpInsnStart, ir.OpMb:
			continue
		}

		p.propagateCopies(op)

		switch op.Opc {
		case ir.OpMov:
			p.foldMov(op)
		case ir.OpNeg, ir.OpNot:
			p.foldUnary(op)
		case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpAnd, ir.OpOr, ir.OpXor,
			ir.OpAndC, ir.OpShl, ir.OpShr, ir.OpSar, ir.OpRotL, ir.OpRotR:
			p.foldBinary(op)
		case ir.OpExtI32I64, ir.OpExtUI32I64, ir.OpExtrlI64I32, ir.OpExtrhI64I32:
			p.foldExt(op)
		case ir.OpBrCond:
			p.foldBrCond(op)
		default:
			p.resetOutputs(op)
		}
	}
}

func (p *pass) resetAll() {
	for i := range p.info {
		p.info[i].copyOf = i
		t := p.ctx.Temp(i)
		p.info[i].isConst = t.Kind == ir.KindConst
		p.info[i].val = t.Value
	}
}

// resetTemp invalidates tracking for a redefined temp: its own const
// and copy records, and the copy record of every temp recorded as a
// copy of it. It never establishes a new copy relation.
func (p *pass) resetTemp(i int) {
	p.info[i].isConst = false
	p.info[i].copyOf = i
	// Any temp recorded as copying i is now stale.
	for j := range p.info {
		if j != i && p.info[j].copyOf == i {
			p.info[j].copyOf = j
		}
	}
}

func (p *pass) resetOutputs(op *ir.Op) {
	for k := 0; k < op.NbOArgs(); k++ {
		p.resetTemp(op.Out(k))
	}
}

// propagateCopies substitutes each input with its canonical copy source.
func (p *pass) propagateCopies(op *ir.Op) {
	for k := 0; k < op.NbIArgs(); k++ {
		in := op.In(k)
		if c := p.info[in].copyOf; c != in {
			op.SetIn(k, c)
		}
	}
}

// width truncates v to the realized op width.
func width(t ir.Type, v uint64) uint64 {
	if t == ir.TypeI32 {
		return uint64(uint32(v))
	}
	return v
}

func (p *pass) constOf(temp int) (uint64, bool) {
	if p.info[temp].isConst {
		return p.info[temp].val, true
	}
	return 0, false
}

// rewriteMovI replaces the op with Mov dst, const(v) and records the
// new constness of dst.
func (p *pass) rewriteMovI(op *ir.Op, dst int, v uint64) {
	t := op.Type
	v = width(t, v)
	ct := p.ctx.ConstTemp(t, v)
	if len(p.info) < len(p.ctx.Temps) {
		grown := make([]tempInfo, len(p.ctx.Temps))
		copy(grown, p.info)
		for i := len(p.info); i < len(grown); i++ {
			grown[i] = tempInfo{isConst: true, val: p.ctx.Temp(i).Value, copyOf: i}
		}
		p.info = grown
	}
	*op = ir.Op{Opc: ir.OpMov, Type: t, NArgs: 2}
	op.Args[0] = ir.Arg(dst)
	op.Args[1] = ir.Arg(ct)
	p.resetTemp(dst)
	p.info[dst].isConst = true
	p.info[dst].val = p.ctx.Temp(ct).Value
	p.info[dst].copyOf = ct
}

// foldMov records copy and constness for an explicit move.
func (p *pass) foldMov(op *ir.Op) {
	dst, src := op.Out(0), op.In(0)
	p.resetTemp(dst)
	if v, ok := p.constOf(src); ok {
		p.info[dst].isConst = true
		p.info[dst].val = width(op.Type, v)
	}
	// Canonical source of dst is the canonical source of src.
	c := p.info[src].copyOf
	p.info[dst].copyOf = c
}

func (p *pass) foldUnary(op *ir.Op) {
	dst, src := op.Out(0), op.In(0)
	v, ok := p.constOf(src)
	if !ok {
		p.resetTemp(dst)
		return
	}
	switch op.Opc {
	case ir.OpNeg:
		v = -v
	case ir.OpNot:
		v = ^v
	}
	p.rewriteMovI(op, dst, v)
}

func rotl(t ir.Type, v uint64, n int) uint64 {
	if t == ir.TypeI32 {
		return uint64(bits.RotateLeft32(uint32(v), n))
	}
	return bits.RotateLeft64(v, n)
}

// foldConstBinary evaluates the binary op on two constants.
func foldConstBinary(opc ir.Opcode, t ir.Type, a, b uint64) uint64 {
	shiftMask := uint64(63)
	if t == ir.TypeI32 {
		shiftMask = 31
	}
	switch opc {
	case ir.OpAdd:
		return a + b
	case ir.OpSub:
		return a - b
	case ir.OpMul:
		return a * b
	case ir.OpAnd:
		return a & b
	case ir.OpOr:
		return a | b
	case ir.OpXor:
		return a ^ b
	case ir.OpAndC:
		return a &^ b
	case ir.OpShl:
		return width(t, a) << (b & shiftMask)
	case ir.OpShr:
		return width(t, a) >> (b & shiftMask)
	case ir.OpSar:
		if t == ir.TypeI32 {
			return uint64(uint32(int32(uint32(a)) >> (b & shiftMask)))
		}
		return uint64(int64(a) >> (b & shiftMask))
	case ir.OpRotL:
		return rotl(t, a, int(b&shiftMask))
	case ir.OpRotR:
		return rotl(t, a, -int(b&shiftMask))
	}
	panic("optimize: fold of non-foldable op " + opc.String())
}

func (p *pass) foldBinary(op *ir.Op) {
	dst := op.Out(0)
	a1, a2 := op.In(0), op.In(1)
	v1, ok1 := p.constOf(a1)
	v2, ok2 := p.constOf(a2)

	// Canonicalize a constant onto the right of commutative ops.
	if ok1 && !ok2 {
		switch op.Opc {
		case ir.OpAdd, ir.OpMul, ir.OpAnd, ir.OpOr, ir.OpXor:
			op.SetIn(0, a2)
			op.SetIn(1, a1)
			a1, a2 = a2, a1
			v1, ok1, v2, ok2 = v2, ok2, v1, ok1
		}
	}

	if ok1 && ok2 {
		p.rewriteMovI(op, dst, foldConstBinary(op.Opc, op.Type, v1, v2))
		return
	}

	t := op.Type
	allOnes := width(t, ^uint64(0))

	// Identities on a constant right operand.
	if ok2 {
		v2 = width(t, v2)
		switch op.Opc {
		case ir.OpAdd, ir.OpSub, ir.OpOr, ir.OpXor:
			if v2 == 0 {
				p.rewriteMovTemp(op, dst, a1)
				return
			}
		case ir.OpShl, ir.OpShr, ir.OpSar, ir.OpRotL, ir.OpRotR:
			if v2 == 0 {
				p.rewriteMovTemp(op, dst, a1)
				return
			}
		case ir.OpAnd:
			if v2 == allOnes {
				p.rewriteMovTemp(op, dst, a1)
				return
			}
			if v2 == 0 {
				p.rewriteMovI(op, dst, 0)
				return
			}
		case ir.OpMul:
			if v2 == 1 {
				p.rewriteMovTemp(op, dst, a1)
				return
			}
			if v2 == 0 {
				p.rewriteMovI(op, dst, 0)
				return
			}
		}
	}

	// 0 - x strength reduces to negation.
	if ok1 && width(t, v1) == 0 && op.Opc == ir.OpSub {
		a := op.In(1)
		*op = ir.Op{Opc: ir.OpNeg, Type: t, NArgs: 2}
		op.Args[0] = ir.Arg(dst)
		op.Args[1] = ir.Arg(a)
		p.resetTemp(dst)
		return
	}

	// Same-operand identities.
	if a1 == a2 {
		switch op.Opc {
		case ir.OpSub, ir.OpXor:
			p.rewriteMovI(op, dst, 0)
			return
		case ir.OpAnd, ir.OpOr:
			p.rewriteMovTemp(op, dst, a1)
			return
		}
	}

	p.resetTemp(dst)
}

// rewriteMovTemp replaces the op with Mov dst, src and updates records
// exactly as foldMov would.
func (p *pass) rewriteMovTemp(op *ir.Op, dst, src int) {
	if dst == src {
		*op = ir.Op{Opc: ir.OpNop, Type: op.Type}
		return
	}
	*op = ir.Op{Opc: ir.OpMov, Type: op.Type, NArgs: 2}
	op.Args[0] = ir.Arg(dst)
	op.Args[1] = ir.Arg(src)
	p.foldMov(op)
}

func (p *pass) foldExt(op *ir.Op) {
	dst, src := op.Out(0), op.In(0)
	v, ok := p.constOf(src)
	if !ok {
		p.resetTemp(dst)
		return
	}
	switch op.Opc {
	case ir.OpExtI32I64:
		v = uint64(int64(int32(uint32(v))))
	case ir.OpExtUI32I64:
		v = uint64(uint32(v))
	case ir.OpExtrlI64I32:
		v = uint64(uint32(v))
	case ir.OpExtrhI64I32:
		v = v >> 32
	}
	p.rewriteMovI(op, dst, v)
}

// foldBrCond statically evaluates a conditional branch on two constants.
func (p *pass) foldBrCond(op *ir.Op) {
	a1, a2 := op.In(0), op.In(1)
	v1, ok1 := p.constOf(a1)
	v2, ok2 := p.constOf(a2)
	if !ok1 || !ok2 {
		return
	}
	cond := ir.Cond(op.ConstArg(0))
	label := op.ConstArg(1)
	if cond.Eval(op.Type, v1, v2) {
		*op = ir.Op{Opc: ir.OpBr, Type: ir.TypeI64, NArgs: 1}
		op.Args[0] = ir.Arg(label)
		p.resetAll()
	} else {
		*op = ir.Op{Opc: ir.OpNop, Type: ir.TypeI64}
	}
}
