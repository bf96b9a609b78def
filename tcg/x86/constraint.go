/*
 * rv64jit - Per-opcode register constraints consumed by the allocator.
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

// ArgConstraint restricts where the allocator may place one argument.
type ArgConstraint struct {
	// Allowed host registers.
	Regs ir.RegSet
	// Input may be consumed by the output at AliasIndex.
	IAlias bool
	// Output must share the register of the input at AliasIndex.
	OAlias bool
	// Alias partner, an absolute arg slot.
	AliasIndex int
	// Output must not overlap any input register.
	NewReg bool
}

// Fixed reports a singleton register set.
func (a *ArgConstraint) Fixed() bool {
	return a.Regs.Count() == 1
}

// OpConstraint is the full constraint record for one opcode.
type OpConstraint struct {
	Args [ir.MaxOpArgs]ArgConstraint
}

var anyReg = allocatable

// noRaxRdx excludes the registers implicitly consumed by mul and div.
var noRaxRdx = allocatable.Remove(RAX).Remove(RDX)

func reg(s ir.RegSet) ArgConstraint {
	return ArgConstraint{Regs: s}
}

// o1i2 is a plain three-address op: out, in, in.
func o1i2(o, i1, i2 ir.RegSet) *OpConstraint {
	c := &OpConstraint{}
	c.Args[0] = reg(o)
	c.Args[1] = reg(i1)
	c.Args[2] = reg(i2)
	return c
}

// o1i2Alias is a destructive binop: the output overwrites input 0.
func o1i2Alias(o, i1, i2 ir.RegSet) *OpConstraint {
	c := o1i2(o, i1, i2)
	c.Args[0].OAlias = true
	c.Args[0].AliasIndex = 1
	c.Args[1].IAlias = true
	c.Args[1].AliasIndex = 0
	return c
}

// o1i2AliasFixed pins input 1 to a single register (shift counts).
func o1i2AliasFixed(o, i1 ir.RegSet, r ir.Reg) *OpConstraint {
	return o1i2Alias(o, i1, ir.RegMask(r))
}

// o1i1Alias is a destructive unary op.
func o1i1Alias(o, i ir.RegSet) *OpConstraint {
	c := &OpConstraint{}
	c.Args[0] = reg(o)
	c.Args[0].OAlias = true
	c.Args[0].AliasIndex = 1
	c.Args[1] = reg(i)
	c.Args[1].IAlias = true
	c.Args[1].AliasIndex = 0
	return c
}

// o1i1 is a non-destructive unary op.
func o1i1(o, i ir.RegSet) *OpConstraint {
	c := &OpConstraint{}
	c.Args[0] = reg(o)
	c.Args[1] = reg(i)
	return c
}

// n1i2 gives the output a register disjoint from both inputs.
func n1i2(o, i1, i2 ir.RegSet) *OpConstraint {
	c := o1i2(o, i1, i2)
	c.Args[0].NewReg = true
	return c
}

// o0i2 is a pure consumer: branches and stores.
func o0i2(i1, i2 ir.RegSet) *OpConstraint {
	c := &OpConstraint{}
	c.Args[0] = reg(i1)
	c.Args[1] = reg(i2)
	return c
}

// o0i1 is a single-input consumer.
func o0i1(i ir.RegSet) *OpConstraint {
	c := &OpConstraint{}
	c.Args[0] = reg(i)
	return c
}

// o2i2Mul is widening multiply: outputs in RAX:RDX, input 0 aliased
// into RAX, input 1 kept clear of both.
func o2i2Mul() *OpConstraint {
	c := &OpConstraint{}
	c.Args[0] = ArgConstraint{Regs: ir.RegMask(RAX), OAlias: true, AliasIndex: 2}
	c.Args[1] = reg(ir.RegMask(RDX))
	c.Args[2] = ArgConstraint{Regs: ir.RegMask(RAX), IAlias: true, AliasIndex: 0}
	c.Args[3] = reg(noRaxRdx)
	return c
}

// o2i3Div is widening divide: dividend pinned to RAX:RDX, divisor kept
// clear of both, quotient and remainder produced in RAX and RDX.
func o2i3Div() *OpConstraint {
	c := &OpConstraint{}
	c.Args[0] = ArgConstraint{Regs: ir.RegMask(RAX), OAlias: true, AliasIndex: 2}
	c.Args[1] = ArgConstraint{Regs: ir.RegMask(RDX), OAlias: true, AliasIndex: 3}
	c.Args[2] = ArgConstraint{Regs: ir.RegMask(RAX), IAlias: true, AliasIndex: 0}
	c.Args[3] = ArgConstraint{Regs: ir.RegMask(RDX), IAlias: true, AliasIndex: 1}
	c.Args[4] = reg(noRaxRdx)
	return c
}

// o1i4Alias2 is movcond: the output overwrites input v1 (arg slot 3).
func o1i4Alias2() *OpConstraint {
	c := &OpConstraint{}
	c.Args[0] = ArgConstraint{Regs: anyReg, OAlias: true, AliasIndex: 3}
	c.Args[1] = reg(anyReg)
	c.Args[2] = reg(anyReg)
	c.Args[3] = ArgConstraint{Regs: anyReg, IAlias: true, AliasIndex: 0}
	c.Args[4] = reg(anyReg)
	return c
}

// conSet maps opcodes handled by the generic allocation path to their
// constraints. Opcodes with dedicated dispatch (mov, br, exits, calls)
// and NOT_PRESENT opcodes have no entry; the brcond entry is read by
// its dedicated path.
var conSet = map[ir.Opcode]*OpConstraint{
	ir.OpSetCond:    n1i2(anyReg, anyReg, anyReg),
	ir.OpNegSetCond: n1i2(anyReg, anyReg, anyReg),
	ir.OpMovCond:    o1i4Alias2(),

	ir.OpAdd: o1i2(anyReg, anyReg, anyReg),
	ir.OpSub: o1i2Alias(anyReg, anyReg, anyReg),
	ir.OpMul: o1i2Alias(anyReg, anyReg, anyReg),
	ir.OpNeg: o1i1Alias(anyReg, anyReg),

	ir.OpMulS2: o2i2Mul(),
	ir.OpMulU2: o2i2Mul(),
	ir.OpDivS2: o2i3Div(),
	ir.OpDivU2: o2i3Div(),

	ir.OpAddCO:  o1i2Alias(anyReg, anyReg, anyReg),
	ir.OpAddCI:  o1i2Alias(anyReg, anyReg, anyReg),
	ir.OpAddCIO: o1i2Alias(anyReg, anyReg, anyReg),
	ir.OpAddC1O: o1i2Alias(anyReg, anyReg, anyReg),
	ir.OpSubBO:  o1i2Alias(anyReg, anyReg, anyReg),
	ir.OpSubBI:  o1i2Alias(anyReg, anyReg, anyReg),
	ir.OpSubBIO: o1i2Alias(anyReg, anyReg, anyReg),
	ir.OpSubB1O: o1i2Alias(anyReg, anyReg, anyReg),

	ir.OpAnd:  o1i2Alias(anyReg, anyReg, anyReg),
	ir.OpOr:   o1i2Alias(anyReg, anyReg, anyReg),
	ir.OpXor:  o1i2Alias(anyReg, anyReg, anyReg),
	ir.OpNot:  o1i1Alias(anyReg, anyReg),
	ir.OpAndC: o1i2(anyReg, anyReg, anyReg),

	ir.OpShl:  o1i2AliasFixed(anyReg, anyReg, RCX),
	ir.OpShr:  o1i2AliasFixed(anyReg, anyReg, RCX),
	ir.OpSar:  o1i2AliasFixed(anyReg, anyReg, RCX),
	ir.OpRotL: o1i2AliasFixed(anyReg, anyReg, RCX),
	ir.OpRotR: o1i2AliasFixed(anyReg, anyReg, RCX),

	ir.OpExtract:  o1i1Alias(anyReg, anyReg),
	ir.OpSExtract: o1i1Alias(anyReg, anyReg),
	ir.OpExtract2: o1i2Alias(anyReg, anyReg, anyReg),

	ir.OpBswap16: o1i1Alias(anyReg, anyReg),
	ir.OpBswap32: o1i1Alias(anyReg, anyReg),
	ir.OpBswap64: o1i1Alias(anyReg, anyReg),

	ir.OpClz:   n1i2(anyReg, anyReg, anyReg),
	ir.OpCtz:   n1i2(anyReg, anyReg, anyReg),
	ir.OpCtPop: o1i1(anyReg, anyReg),

	ir.OpExtI32I64:   o1i1(anyReg, anyReg),
	ir.OpExtUI32I64:  o1i1(anyReg, anyReg),
	ir.OpExtrlI64I32: o1i1(anyReg, anyReg),
	ir.OpExtrhI64I32: o1i1Alias(anyReg, anyReg),

	ir.OpLd8U:  o1i1(anyReg, anyReg),
	ir.OpLd8S:  o1i1(anyReg, anyReg),
	ir.OpLd16U: o1i1(anyReg, anyReg),
	ir.OpLd16S: o1i1(anyReg, anyReg),
	ir.OpLd32U: o1i1(anyReg, anyReg),
	ir.OpLd32S: o1i1(anyReg, anyReg),
	ir.OpLd:    o1i1(anyReg, anyReg),
	ir.OpSt8:   o0i2(anyReg, anyReg),
	ir.OpSt16:  o0i2(anyReg, anyReg),
	ir.OpSt32:  o0i2(anyReg, anyReg),
	ir.OpSt:    o0i2(anyReg, anyReg),

	ir.OpGuestLd: o1i1(anyReg, anyReg),
	ir.OpGuestSt: o0i2(anyReg, anyReg),

	ir.OpBrCond: o0i2(anyReg, anyReg),
}

// constraintFor returns the constraint record for one op.
func constraintFor(opc ir.Opcode) *OpConstraint {
	c, ok := conSet[opc]
	if !ok {
		panic("x86: no constraint set for " + opc.String())
	}
	return c
}
