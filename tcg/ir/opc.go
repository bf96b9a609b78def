/*
 * rv64jit - IR opcode catalog and static metadata.
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

// Opcode numbers one IR operation.
type Opcode uint8

// Operation flags.
type OpFlag uint16

const (
	// Op exits the translation block.
	FlagBBExit OpFlag = 1 << iota
	// Op terminates a basic block.
	FlagBBEnd
	// Op clobbers call-saved registers.
	FlagCallClobber
	// Op has side effects and must not be removed or reordered.
	FlagSideEffects
	// Op is type polymorphic over I32/I64.
	FlagInt
	// Op is not emitted by this backend.
	FlagNotPresent
	// Op operates on vector types.
	FlagVector
	// Op is a conditional branch.
	FlagCondBranch
	// Op produces a carry/borrow flag.
	FlagCarryOut
	// Op consumes a carry/borrow flag.
	FlagCarryIn
)

const (
	// Miscellany.
	OpNop Opcode = iota
	OpDiscard
	OpSetLabel
	OpCall
	OpBr
	OpBrCond
	OpMb
	OpInsnStart

	// Data movement.
	OpMov
	OpSetCond
	OpNegSetCond
	OpMovCond

	// Integer arithmetic.
	OpAdd
	OpSub
	OpNeg
	OpMul
	OpMulSH
	OpMulUH
	OpMulS2
	OpMulU2
	OpDivS
	OpDivU
	OpRemS
	OpRemU
	OpDivS2
	OpDivU2

	// Carry and borrow arithmetic.
	OpAddCO
	OpAddCI
	OpAddCIO
	OpAddC1O
	OpSubBO
	OpSubBI
	OpSubBIO
	OpSubB1O

	// Logic.
	OpAnd
	OpOr
	OpXor
	OpNot
	OpAndC
	OpOrC
	OpEqv
	OpNand
	OpNor

	// Shifts and rotates.
	OpShl
	OpShr
	OpSar
	OpRotL
	OpRotR

	// Bitfield.
	OpExtract
	OpSExtract
	OpDeposit
	OpExtract2

	// Byte swap.
	OpBswap16
	OpBswap32
	OpBswap64

	// Bit counting.
	OpClz
	OpCtz
	OpCtPop

	// Width conversion, fixed result type.
	OpExtI32I64
	OpExtUI32I64
	OpExtrlI64I32
	OpExtrhI64I32

	// Host memory access, base register plus constant offset.
	OpLd8U
	OpLd8S
	OpLd16U
	OpLd16S
	OpLd32U
	OpLd32S
	OpLd
	OpSt8
	OpSt16
	OpSt32
	OpSt

	// Guest memory access through the guest base register.
	OpGuestLd
	OpGuestSt

	// Control flow out of the translation block.
	OpExitTb
	OpGotoTb
	OpGotoPtr

	// Vector subset. Cataloged for frontends that need it; the x86
	// integer backend does not emit these.
	OpMovVec
	OpDupVec
	OpDup2Vec
	OpLdVec
	OpStVec
	OpDupMemVec
	OpAddVec
	OpSubVec
	OpMulVec
	OpNegVec
	OpAbsVec
	OpSSAddVec
	OpUSAddVec
	OpSSSubVec
	OpUSSubVec
	OpSMinVec
	OpUMinVec
	OpSMaxVec
	OpUMaxVec
	OpAndVec
	OpOrVec
	OpXorVec
	OpAndCVec
	OpOrCVec
	OpNandVec
	OpNorVec
	OpEqvVec
	OpNotVec
	OpShlIVec
	OpShrIVec
	OpSarIVec
	OpRotLIVec
	OpShlSVec
	OpShrSVec
	OpSarSVec
	OpRotLSVec
	OpShlVVec
	OpShrVVec
	OpSarVVec
	OpRotLVVec
	OpRotRVVec
	OpCmpVec
	OpBitSelVec
	OpCmpSelVec

	nbOpcodes
)

// OpDef is the static descriptor of one opcode.
type OpDef struct {
	Name    string
	NbOArgs uint8
	NbIArgs uint8
	NbCArgs uint8
	Flags   OpFlag
}

func def(name string, o, i, c uint8, flags OpFlag) OpDef {
	return OpDef{Name: name, NbOArgs: o, NbIArgs: i, NbCArgs: c, Flags: flags}
}

// OpDefs is the static metadata table, indexed by opcode value. The
// keyed literal has its size inferred from the highest opcode; assigning
// it to a [nbOpcodes] array makes a size mismatch with the opcode
// enumeration a compile-time error.
var OpDefs [nbOpcodes]OpDef = opDefTable

var opDefTable = [...]OpDef{
	OpNop:       def("nop", 0, 0, 0, 0),
	OpDiscard:   def("discard", 1, 0, 0, 0),
	OpSetLabel:  def("set_label", 0, 0, 1, FlagBBEnd),
	OpCall:      def("call", 0, 0, 1, FlagCallClobber|FlagSideEffects),
	OpBr:        def("br", 0, 0, 1, FlagBBEnd),
	OpBrCond:    def("brcond", 0, 2, 2, FlagBBEnd|FlagCondBranch|FlagInt),
	OpMb:        def("mb", 0, 0, 1, FlagSideEffects),
	OpInsnStart: def("insn_start", 0, 0, 1, FlagNotPresent),

	OpMov:        def("mov", 1, 1, 0, FlagInt),
	OpSetCond:    def("setcond", 1, 2, 1, FlagInt),
	OpNegSetCond: def("negsetcond", 1, 2, 1, FlagInt),
	OpMovCond:    def("movcond", 1, 4, 1, FlagInt),

	OpAdd:   def("add", 1, 2, 0, FlagInt),
	OpSub:   def("sub", 1, 2, 0, FlagInt),
	OpNeg:   def("neg", 1, 1, 0, FlagInt),
	OpMul:   def("mul", 1, 2, 0, FlagInt),
	OpMulSH: def("mulsh", 1, 2, 0, FlagInt|FlagNotPresent),
	OpMulUH: def("muluh", 1, 2, 0, FlagInt|FlagNotPresent),
	OpMulS2: def("muls2", 2, 2, 0, FlagInt),
	OpMulU2: def("mulu2", 2, 2, 0, FlagInt),
	OpDivS:  def("divs", 1, 2, 0, FlagInt|FlagNotPresent),
	OpDivU:  def("divu", 1, 2, 0, FlagInt|FlagNotPresent),
	OpRemS:  def("rems", 1, 2, 0, FlagInt|FlagNotPresent),
	OpRemU:  def("remu", 1, 2, 0, FlagInt|FlagNotPresent),
	OpDivS2: def("divs2", 2, 3, 0, FlagInt),
	OpDivU2: def("divu2", 2, 3, 0, FlagInt),

	OpAddCO:  def("addco", 1, 2, 0, FlagInt|FlagCarryOut),
	OpAddCI:  def("addci", 1, 2, 0, FlagInt|FlagCarryIn),
	OpAddCIO: def("addcio", 1, 2, 0, FlagInt|FlagCarryIn|FlagCarryOut),
	OpAddC1O: def("addc1o", 1, 2, 0, FlagInt|FlagCarryOut),
	OpSubBO:  def("subbo", 1, 2, 0, FlagInt|FlagCarryOut),
	OpSubBI:  def("subbi", 1, 2, 0, FlagInt|FlagCarryIn),
	OpSubBIO: def("subbio", 1, 2, 0, FlagInt|FlagCarryIn|FlagCarryOut),
	OpSubB1O: def("subb1o", 1, 2, 0, FlagInt|FlagCarryOut),

	OpAnd:  def("and", 1, 2, 0, FlagInt),
	OpOr:   def("or", 1, 2, 0, FlagInt),
	OpXor:  def("xor", 1, 2, 0, FlagInt),
	OpNot:  def("not", 1, 1, 0, FlagInt),
	OpAndC: def("andc", 1, 2, 0, FlagInt),
	OpOrC:  def("orc", 1, 2, 0, FlagInt|FlagNotPresent),
	OpEqv:  def("eqv", 1, 2, 0, FlagInt|FlagNotPresent),
	OpNand: def("nand", 1, 2, 0, FlagInt|FlagNotPresent),
	OpNor:  def("nor", 1, 2, 0, FlagInt|FlagNotPresent),

	OpShl:  def("shl", 1, 2, 0, FlagInt),
	OpShr:  def("shr", 1, 2, 0, FlagInt),
	OpSar:  def("sar", 1, 2, 0, FlagInt),
	OpRotL: def("rotl", 1, 2, 0, FlagInt),
	OpRotR: def("rotr", 1, 2, 0, FlagInt),

	OpExtract:  def("extract", 1, 1, 2, FlagInt),
	OpSExtract: def("sextract", 1, 1, 2, FlagInt),
	OpDeposit:  def("deposit", 1, 2, 2, FlagInt|FlagNotPresent),
	OpExtract2: def("extract2", 1, 2, 1, FlagInt),

	OpBswap16: def("bswap16", 1, 1, 1, FlagInt),
	OpBswap32: def("bswap32", 1, 1, 1, FlagInt),
	OpBswap64: def("bswap64", 1, 1, 1, FlagInt),

	OpClz:   def("clz", 1, 2, 0, FlagInt),
	OpCtz:   def("ctz", 1, 2, 0, FlagInt),
	OpCtPop: def("ctpop", 1, 1, 0, FlagInt),

	OpExtI32I64:   def("ext_i32_i64", 1, 1, 0, 0),
	OpExtUI32I64:  def("extu_i32_i64", 1, 1, 0, 0),
	OpExtrlI64I32: def("extrl_i64_i32", 1, 1, 0, 0),
	OpExtrhI64I32: def("extrh_i64_i32", 1, 1, 0, 0),

	OpLd8U:  def("ld8u", 1, 1, 1, FlagInt),
	OpLd8S:  def("ld8s", 1, 1, 1, FlagInt),
	OpLd16U: def("ld16u", 1, 1, 1, FlagInt),
	OpLd16S: def("ld16s", 1, 1, 1, FlagInt),
	OpLd32U: def("ld32u", 1, 1, 1, FlagInt),
	OpLd32S: def("ld32s", 1, 1, 1, FlagInt),
	OpLd:    def("ld", 1, 1, 1, FlagInt),
	OpSt8:   def("st8", 0, 2, 1, FlagInt|FlagSideEffects),
	OpSt16:  def("st16", 0, 2, 1, FlagInt|FlagSideEffects),
	OpSt32:  def("st32", 0, 2, 1, FlagInt|FlagSideEffects),
	OpSt:    def("st", 0, 2, 1, FlagInt|FlagSideEffects),

	OpGuestLd: def("guest_ld", 1, 1, 1, FlagInt|FlagSideEffects),
	OpGuestSt: def("guest_st", 0, 2, 1, FlagInt|FlagSideEffects),

	OpExitTb:  def("exit_tb", 0, 0, 1, FlagBBExit|FlagBBEnd),
	OpGotoTb:  def("goto_tb", 0, 0, 1, FlagBBExit|FlagBBEnd|FlagSideEffects),
	OpGotoPtr: def("goto_ptr", 0, 1, 0, FlagBBExit|FlagBBEnd),

	OpMovVec:    def("mov_vec", 1, 1, 0, FlagVector|FlagNotPresent),
	OpDupVec:    def("dup_vec", 1, 1, 0, FlagVector|FlagNotPresent),
	OpDup2Vec:   def("dup2_vec", 1, 2, 0, FlagVector|FlagNotPresent),
	OpLdVec:     def("ld_vec", 1, 1, 1, FlagVector|FlagNotPresent),
	OpStVec:     def("st_vec", 0, 2, 1, FlagVector|FlagSideEffects|FlagNotPresent),
	OpDupMemVec: def("dupm_vec", 1, 1, 1, FlagVector|FlagNotPresent),
	OpAddVec:    def("add_vec", 1, 2, 0, FlagVector|FlagNotPresent),
	OpSubVec:    def("sub_vec", 1, 2, 0, FlagVector|FlagNotPresent),
	OpMulVec:    def("mul_vec", 1, 2, 0, FlagVector|FlagNotPresent),
	OpNegVec:    def("neg_vec", 1, 1, 0, FlagVector|FlagNotPresent),
	OpAbsVec:    def("abs_vec", 1, 1, 0, FlagVector|FlagNotPresent),
	OpSSAddVec:  def("ssadd_vec", 1, 2, 0, FlagVector|FlagNotPresent),
	OpUSAddVec:  def("usadd_vec", 1, 2, 0, FlagVector|FlagNotPresent),
	OpSSSubVec:  def("sssub_vec", 1, 2, 0, FlagVector|FlagNotPresent),
	OpUSSubVec:  def("ussub_vec", 1, 2, 0, FlagVector|FlagNotPresent),
	OpSMinVec:   def("smin_vec", 1, 2, 0, FlagVector|FlagNotPresent),
	OpUMinVec:   def("umin_vec", 1, 2, 0, FlagVector|FlagNotPresent),
	OpSMaxVec:   def("smax_vec", 1, 2, 0, FlagVector|FlagNotPresent),
	OpUMaxVec:   def("umax_vec", 1, 2, 0, FlagVector|FlagNotPresent),
	OpAndVec:    def("and_vec", 1, 2, 0, FlagVector|FlagNotPresent),
	OpOrVec:     def("or_vec", 1, 2, 0, FlagVector|FlagNotPresent),
	OpXorVec:    def("xor_vec", 1, 2, 0, FlagVector|FlagNotPresent),
	OpAndCVec:   def("andc_vec", 1, 2, 0, FlagVector|FlagNotPresent),
	OpOrCVec:    def("orc_vec", 1, 2, 0, FlagVector|FlagNotPresent),
	OpNandVec:   def("nand_vec", 1, 2, 0, FlagVector|FlagNotPresent),
	OpNorVec:    def("nor_vec", 1, 2, 0, FlagVector|FlagNotPresent),
	OpEqvVec:    def("eqv_vec", 1, 2, 0, FlagVector|FlagNotPresent),
	OpNotVec:    def("not_vec", 1, 1, 0, FlagVector|FlagNotPresent),
	OpShlIVec:   def("shli_vec", 1, 1, 1, FlagVector|FlagNotPresent),
	OpShrIVec:   def("shri_vec", 1, 1, 1, FlagVector|FlagNotPresent),
	OpSarIVec:   def("sari_vec", 1, 1, 1, FlagVector|FlagNotPresent),
	OpRotLIVec:  def("rotli_vec", 1, 1, 1, FlagVector|FlagNotPresent),
	OpShlSVec:   def("shls_vec", 1, 2, 0, FlagVector|FlagNotPresent),
	OpShrSVec:   def("shrs_vec", 1, 2, 0, FlagVector|FlagNotPresent),
	OpSarSVec:   def("sars_vec", 1, 2, 0, FlagVector|FlagNotPresent),
	OpRotLSVec:  def("rotls_vec", 1, 2, 0, FlagVector|FlagNotPresent),
	OpShlVVec:   def("shlv_vec", 1, 2, 0, FlagVector|FlagNotPresent),
	OpShrVVec:   def("shrv_vec", 1, 2, 0, FlagVector|FlagNotPresent),
	OpSarVVec:   def("sarv_vec", 1, 2, 0, FlagVector|FlagNotPresent),
	OpRotLVVec:  def("rotlv_vec", 1, 2, 0, FlagVector|FlagNotPresent),
	OpRotRVVec:  def("rotrv_vec", 1, 2, 0, FlagVector|FlagNotPresent),
	OpCmpVec:    def("cmp_vec", 1, 2, 1, FlagVector|FlagNotPresent),
	OpBitSelVec: def("bitsel_vec", 1, 3, 0, FlagVector|FlagNotPresent),
	OpCmpSelVec: def("cmpsel_vec", 1, 4, 1, FlagVector|FlagNotPresent),
}

func (o Opcode) String() string {
	return OpDefs[o].Name
}

// Def returns the static descriptor for the opcode.
func (o Opcode) Def() *OpDef {
	return &OpDefs[o]
}
