/*
 * rv64jit - IR value types, conditions, memory operation descriptors.
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

// Type of an IR value. Integer opcodes are polymorphic over I32/I64,
// the realized type is carried on each op.
type Type uint8

const (
	TypeI32 Type = iota
	TypeI64
	TypeI128
	TypeV64
	TypeV128
	TypeV256

	nbTypes
)

var typeNames = [nbTypes]string{"i32", "i64", "i128", "v64", "v128", "v256"}

func (t Type) String() string {
	return typeNames[t]
}

// Size of a value of this type in bytes.
func (t Type) Size() int {
	switch t {
	case TypeI32:
		return 4
	case TypeI64, TypeV64:
		return 8
	case TypeI128, TypeV128:
		return 16
	case TypeV256:
		return 32
	}
	return 0
}

// Bits of a value of this type.
func (t Type) Bits() int {
	return t.Size() * 8
}

// Condition code for comparisons and conditional branches. The numeric
// encoding matches the frontend's and is stable. A condition and its
// negation differ only in bit 0 (Invert flips it); Swap exchanges the
// ordered pairs (lt/gt, ge/le and their unsigned forms) by flipping
// bits 0 and 3.
type Cond uint8

const (
	CondNever  Cond = 0
	CondAlways Cond = 1
	CondLt     Cond = 2
	CondGe     Cond = 3
	CondLtu    Cond = 4
	CondGeu    Cond = 5
	CondEq     Cond = 8
	CondNe     Cond = 9
	CondLe     Cond = 10
	CondGt     Cond = 11
	CondLeu    Cond = 12
	CondGtu    Cond = 13
	CondTstEq  Cond = 14
	CondTstNe  Cond = 15
)

var condNames = map[Cond]string{
	CondNever: "never", CondAlways: "always",
	CondLt: "lt", CondGe: "ge", CondLtu: "ltu", CondGeu: "geu",
	CondEq: "eq", CondNe: "ne", CondLe: "le", CondGt: "gt",
	CondLeu: "leu", CondGtu: "gtu", CondTstEq: "tsteq", CondTstNe: "tstne",
}

func (c Cond) String() string {
	return condNames[c]
}

// Invert returns the logical negation. Involution: Invert(Invert(c)) == c.
func (c Cond) Invert() Cond {
	return c ^ 1
}

// Swap returns the condition with operands exchanged. Equality and test
// conditions are symmetric. Involution: Swap(Swap(c)) == c.
func (c Cond) Swap() Cond {
	if c == CondTstEq || c == CondTstNe || c&6 == 0 {
		return c
	}
	return c ^ 9
}

// IsTest reports a bit-test condition (compare via AND rather than SUB).
func (c Cond) IsTest() bool {
	return c == CondTstEq || c == CondTstNe
}

// Eval evaluates the condition on two constants of the given width.
func (c Cond) Eval(t Type, a, b uint64) bool {
	if t == TypeI32 {
		a = uint64(uint32(a))
		b = uint64(uint32(b))
	}
	sa, sb := int64(a), int64(b)
	if t == TypeI32 {
		sa = int64(int32(uint32(a)))
		sb = int64(int32(uint32(b)))
	}
	switch c {
	case CondNever:
		return false
	case CondAlways:
		return true
	case CondEq:
		return a == b
	case CondNe:
		return a != b
	case CondLt:
		return sa < sb
	case CondGe:
		return sa >= sb
	case CondLe:
		return sa <= sb
	case CondGt:
		return sa > sb
	case CondLtu:
		return a < b
	case CondGeu:
		return a >= b
	case CondLeu:
		return a <= b
	case CondGtu:
		return a > b
	case CondTstEq:
		return a&b == 0
	case CondTstNe:
		return a&b != 0
	}
	return false
}

// MemOp describes one guest memory access, packed into 16 bits:
// bits[1:0] log2 of the size, bit[2] sign extension, bit[3] byte swap,
// bits[6:4] log2 of the required alignment.
type MemOp uint16

const (
	Mo8  MemOp = 0
	Mo16 MemOp = 1
	Mo32 MemOp = 2
	Mo64 MemOp = 3

	MoSizeMask MemOp = 3
	MoSign     MemOp = 1 << 2
	MoBswap    MemOp = 1 << 3

	moAlignShift       = 4
	MoAlignMask  MemOp = 7 << moAlignShift

	// Semantic constructors for the common cases.
	MoUB = Mo8
	MoSB = Mo8 | MoSign
	MoUW = Mo16
	MoSW = Mo16 | MoSign
	MoUL = Mo32
	MoSL = Mo32 | MoSign
	MoUQ = Mo64
)

// Size of the access in bytes.
func (m MemOp) Size() int {
	return 1 << (m & MoSizeMask)
}

// Signed reports whether the loaded value is sign extended.
func (m MemOp) Signed() bool {
	return m&MoSign != 0
}

// Bswap reports whether the value is byte swapped.
func (m MemOp) Bswap() bool {
	return m&MoBswap != 0
}

// Align returns the required alignment in bytes (1 = none).
func (m MemOp) Align() int {
	return 1 << ((m & MoAlignMask) >> moAlignShift)
}

// WithAlign returns the MemOp with the alignment field set to n bytes.
func (m MemOp) WithAlign(n int) MemOp {
	a := MemOp(0)
	for 1<<a < n {
		a++
	}
	return (m &^ MoAlignMask) | (a << moAlignShift)
}
