/*
 * rv64jit - x86-64 instruction encoder. Assembles prefixes, REX,
 * escape bytes, ModR/M, SIB, displacement and immediate from compact
 * opcode constants carrying prefix flags in their high bits.
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

// Prefix flags carried in the high bits of opcode constants.
const (
	pExt    = 0x100   // 0x0F escape
	pExt38  = 0x200   // 0x0F 0x38 escape
	pExt3A  = 0x400   // 0x0F 0x3A escape
	pData16 = 0x800   // 0x66 operand size prefix
	pRexW   = 0x1000  // REX.W, 64-bit operand
	pRexBR  = 0x2000  // force REX for byte access to the reg field
	pRexBRM = 0x4000  // force REX for byte access to the r/m field
	pSimdF3 = 0x8000  // 0xF3 prefix
	pSimdF2 = 0x10000 // 0xF2 prefix
)

// Opcode constants. The low byte is the final opcode byte; escapes and
// mandatory prefixes are in the flag bits.
const (
	opcArithGvEv = 0x03          // | (arith code << 3), reg <- r/m
	opcArithEvIz = 0x81          // /arith code, imm32
	opcArithEvIb = 0x83          // /arith code, imm8 sign extended
	opcAndnGyEy  = 0xF2 | pExt38 // VEX encoded
	opcBswap     = 0xC8 | pExt   // + low reg bits
	opcCallRel   = 0xE8
	opcCmovcc    = 0x40 | pExt // + condition nibble
	opcCqo       = 0x99 | pRexW
	opcGrp3      = 0xF7 // /2 not, /3 neg, /4 mul, /5 imul, /6 div, /7 idiv
	opcGrp5      = 0xFF // /2 call, /4 jmp
	opcImulGvEv  = 0xAF | pExt
	opcJccLong   = 0x80 | pExt // + condition nibble, rel32
	opcJmpLong   = 0xE9
	opcJmpShort  = 0xEB
	opcLea       = 0x8D
	opcLzcnt     = 0xBD | pExt | pSimdF3
	opcMovbEvGv  = 0x88 | pRexBR
	opcMovlEvGv  = 0x89
	opcMovwEvGv  = 0x89 | pData16
	opcMovbGvEv  = 0x8A
	opcMovlGvEv  = 0x8B
	opcMovlEvIz  = 0xC7 // /0 imm32
	opcMovlIv    = 0xB8 // + low reg bits, imm
	opcMovsbq    = 0xBE | pExt | pRexW | pRexBRM
	opcMovswq    = 0xBF | pExt | pRexW
	opcMovslq    = 0x63 | pRexW
	opcMovzbl    = 0xB6 | pExt | pRexBRM
	opcMovzwl    = 0xB7 | pExt
	opcNop       = 0x90
	opcPopcnt    = 0xB8 | pExt | pSimdF3
	opcPop       = 0x58 // + low reg bits
	opcPush      = 0x50 // + low reg bits
	opcRet       = 0xC3
	opcSetcc     = 0x90 | pExt | pRexBRM // + condition nibble
	opcShiftIb   = 0xC1                  // /shift code, imm8
	opcShiftCl   = 0xD3                  // /shift code
	opcShrdIb    = 0xAC | pExt
	opcStc       = 0xF9
	opcTestEvGv  = 0x85
	opcTzcnt     = 0xBC | pExt | pSimdF3
)

// Arith group codes, shifted into bits 5:3.
const (
	arithAdd = 0
	arithOr  = 1
	arithAdc = 2
	arithSbb = 3
	arithAnd = 4
	arithSub = 5
	arithXor = 6
	arithCmp = 7
)

// Grp3 codes.
const (
	grp3Not  = 2
	grp3Neg  = 3
	grp3Mul  = 4
	grp3IMul = 5
	grp3Div  = 6
	grp3IDiv = 7
)

// Shift group codes.
const (
	shiftRol = 0
	shiftRor = 1
	shiftShl = 4
	shiftShr = 5
	shiftSar = 7
)

// Condition nibbles for Jcc/SETcc/CMOVcc.
var condCC = map[ir.Cond]int{
	ir.CondEq:    0x4,
	ir.CondNe:    0x5,
	ir.CondLtu:   0x2,
	ir.CondGeu:   0x3,
	ir.CondLt:    0xC,
	ir.CondGe:    0xD,
	ir.CondLeu:   0x6,
	ir.CondGtu:   0x7,
	ir.CondLe:    0xE,
	ir.CondGt:    0xF,
	ir.CondTstEq: 0x4, // compare with TEST instead of CMP
	ir.CondTstNe: 0x5,
}

func ccFor(c ir.Cond) int {
	cc, ok := condCC[c]
	if !ok {
		panic("x86: no condition encoding for " + c.String())
	}
	return cc
}

// outOpc emits prefixes, REX, escapes and the opcode byte. r, x and rm
// contribute their high bits to REX.R, REX.X and REX.B.
func (be *Backend) outOpc(opc int, r, x, rm ir.Reg) {
	if opc&pData16 != 0 {
		be.buf.Byte(0x66)
	}
	if opc&pSimdF3 != 0 {
		be.buf.Byte(0xF3)
	}
	if opc&pSimdF2 != 0 {
		be.buf.Byte(0xF2)
	}
	rex := 0
	if opc&pRexW != 0 {
		rex |= 0x8
	}
	rex |= int(r) >> 3 << 2
	rex |= int(x) >> 3 << 1
	rex |= int(rm) >> 3
	// Byte operations on SPL/BPL/SIL/DIL need an empty REX prefix to
	// avoid selecting AH..BH.
	force := (opc&pRexBR != 0 && r >= 4 && r < 8) ||
		(opc&pRexBRM != 0 && rm >= 4 && rm < 8)
	if rex != 0 || force {
		be.buf.Byte(byte(0x40 | rex))
	}
	if opc&pExt != 0 {
		be.buf.Byte(0x0F)
	} else if opc&pExt38 != 0 {
		be.buf.Byte(0x0F)
		be.buf.Byte(0x38)
	} else if opc&pExt3A != 0 {
		be.buf.Byte(0x0F)
		be.buf.Byte(0x3A)
	}
	be.buf.Byte(byte(opc))
}

// outOpcReg emits an opcode with the register encoded in its low bits
// (push, pop, bswap, mov immediate).
func (be *Backend) outOpcReg(opc int, r ir.Reg) {
	be.outOpc(opc+int(r&7), 0, 0, r)
}

// outModRM emits a register-to-register form.
func (be *Backend) outModRM(opc int, r, rm ir.Reg) {
	be.outOpc(opc, r, 0, rm)
	be.buf.Byte(0xC0 | byte(r&7)<<3 | byte(rm&7))
}

// outModRMOff emits a memory form with base register and displacement.
// Two ModR/M corner cases: a base with low bits 100 always takes a SIB
// byte, and a base with low bits 101 cannot use mod=00 (that encoding
// is RIP-relative) so a zero displacement becomes an explicit disp8.
func (be *Backend) outModRMOff(opc int, r, base ir.Reg, off int64) {
	if off != int64(int32(off)) {
		panic("x86: displacement out of range")
	}
	lowBase := byte(base & 7)
	needSib := lowBase == 4
	var mod byte
	switch {
	case off == 0 && lowBase != 5:
		mod = 0x00
	case off == int64(int8(off)):
		mod = 0x40
	default:
		mod = 0x80
	}
	be.outOpc(opc, r, 0, base)
	if needSib {
		be.buf.Byte(mod | byte(r&7)<<3 | 4)
		be.buf.Byte(0x20 | lowBase) // index = none
	} else {
		be.buf.Byte(mod | byte(r&7)<<3 | lowBase)
	}
	switch mod {
	case 0x40:
		be.buf.Byte(byte(off))
	case 0x80:
		be.buf.W32(uint32(off))
	}
}

// outModRMSib emits a base+index*scale+disp memory form. The index
// must not be RSP.
func (be *Backend) outModRMSib(opc int, r, base, index ir.Reg, shift int, off int64) {
	if index == RSP {
		panic("x86: rsp cannot be an index register")
	}
	if off != int64(int32(off)) {
		panic("x86: displacement out of range")
	}
	lowBase := byte(base & 7)
	var mod byte
	switch {
	case off == 0 && lowBase != 5:
		mod = 0x00
	case off == int64(int8(off)):
		mod = 0x40
	default:
		mod = 0x80
	}
	be.outOpc(opc, r, index, base)
	be.buf.Byte(mod | byte(r&7)<<3 | 4)
	be.buf.Byte(byte(shift)<<6 | byte(index&7)<<3 | lowBase)
	switch mod {
	case 0x40:
		be.buf.Byte(byte(off))
	case 0x80:
		be.buf.W32(uint32(off))
	}
}

// outVexModRM emits a three-byte VEX encoded op (BMI ANDN). v is the
// first source operand in the VEX.vvvv field.
func (be *Backend) outVexModRM(opc int, r, v, rm ir.Reg) {
	be.buf.Byte(0xC4)
	mmmmm := 0
	switch {
	case opc&pExt38 != 0:
		mmmmm = 2
	case opc&pExt3A != 0:
		mmmmm = 3
	default:
		mmmmm = 1
	}
	b1 := byte(mmmmm)
	if int(r)>>3 == 0 {
		b1 |= 0x80
	}
	b1 |= 0x40 // X inverted, no index
	if int(rm)>>3 == 0 {
		b1 |= 0x20
	}
	be.buf.Byte(b1)
	b2 := byte(^int(v)&0xF) << 3
	if opc&pRexW != 0 {
		b2 |= 0x80
	}
	be.buf.Byte(b2)
	be.buf.Byte(byte(opc))
	be.buf.Byte(0xC0 | byte(r&7)<<3 | byte(rm&7))
}

// rexw returns the REX.W flag for a value type.
func rexw(t ir.Type) int {
	if t == ir.TypeI64 {
		return pRexW
	}
	return 0
}

// outMovReg emits a register move of the given width.
func (be *Backend) outMovReg(t ir.Type, dst, src ir.Reg) {
	if dst == src {
		return
	}
	be.outModRM(opcMovlGvEv|rexw(t), dst, src)
}

// outMovI materializes a constant: xor for zero, 32-bit move when the
// value zero extends, sign extended 32-bit immediate when it sign
// extends, else the full 10-byte load. The xor form is skipped while a
// carry is live between carry ops, it would clobber the flag.
func (be *Backend) outMovI(r ir.Reg, v uint64) {
	switch {
	case v == 0 && !be.carryLive:
		be.outModRM(opcArithGvEv|arithXor<<3, r, r)
	case v <= 0xFFFFFFFF:
		be.outOpcReg(opcMovlIv, r)
		be.buf.W32(uint32(v))
	case v == uint64(int64(int32(uint32(v)))):
		be.outModRM(opcMovlEvIz|pRexW, 0, r)
		be.buf.W32(uint32(v))
	default:
		be.outOpcReg(opcMovlIv|pRexW, r)
		be.buf.W64(v)
	}
}

// outLd loads a full width value from base+off.
func (be *Backend) outLd(t ir.Type, dst, base ir.Reg, off int64) {
	be.outModRMOff(opcMovlGvEv|rexw(t), dst, base, off)
}

// outSt stores a full width value to base+off.
func (be *Backend) outSt(t ir.Type, src, base ir.Reg, off int64) {
	be.outModRMOff(opcMovlEvGv|rexw(t), src, base, off)
}

// outJmpLong emits jmp rel32 and returns the offset of the
// displacement field.
func (be *Backend) outJmpLong() int {
	be.buf.Byte(opcJmpLong)
	off := be.buf.Cursor()
	be.buf.W32(0)
	return off
}

// outJcc emits jcc rel32 and returns the offset of the displacement.
func (be *Backend) outJcc(cc int) int {
	be.outOpc(opcJccLong+cc, 0, 0, 0)
	off := be.buf.Cursor()
	be.buf.W32(0)
	return off
}
