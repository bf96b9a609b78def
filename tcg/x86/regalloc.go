/*
 * rv64jit - Greedy constraint-driven register allocator, integrated
 * with host code emission. One forward pass over the op list.
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
	"fmt"

	"github.com/rcornwell/rv64jit/tcg/codebuf"
	"github.com/rcornwell/rv64jit/tcg/ir"
)

// Exit protocol sentinels understood by the backend. Must match the
// execution engine's exit word encoding.
const (
	exitNoChain = 2
	exitMax     = 3
)

// Backend owns the emission state for one code buffer. Not safe for
// concurrent use; the engine serializes translation.
type Backend struct {
	buf *codebuf.Buffer
	ctx *ir.Context

	regToTemp [nbRegs]int
	freeRegs  ir.RegSet
	carryLive bool

	entryOff        int
	epilogueZeroOff int
	tbRetOff        int

	tbIdx       int
	jmpInsnOff  [2]int
	jmpResetOff [2]int
}

// CompiledTB describes the host code produced for one translation block.
type CompiledTB struct {
	HostOff     int
	HostSize    int
	JmpInsnOff  [2]int
	JmpResetOff [2]int
}

// NewBackend creates the backend for a buffer and translation context,
// and publishes the frame model into the context.
func NewBackend(buf *codebuf.Buffer, ctx *ir.Context) *Backend {
	ctx.Frame = ir.Frame{
		Reserved:  ir.MakeRegSet(RSP, AREG0),
		CallArea:  128,
		SpillArea: 1024,
	}
	return &Backend{buf: buf, ctx: ctx}
}

// Compile runs allocation and emission for the current op list. The
// translation block index is baked into the exit words.
func (be *Backend) Compile(tbIdx int) CompiledTB {
	be.tbIdx = tbIdx
	be.jmpInsnOff = [2]int{-1, -1}
	be.jmpResetOff = [2]int{-1, -1}
	be.carryLive = false
	be.initAlloc()

	hostOff := be.buf.Cursor()
	for i := range be.ctx.Ops {
		op := &be.ctx.Ops[i]
		switch op.Opc {
		case ir.OpNop, ir.OpInsnStart:
			// No emission.
		case ir.OpDiscard:
			be.tempDead(op.Out(0))
		case ir.OpMov:
			be.allocMov(op)
		case ir.OpSetLabel:
			be.allocBBEnd()
			be.setLabelHere(be.ctx.Labels[op.ConstArg(0)])
		case ir.OpBr:
			be.allocBBEnd()
			be.buf.Byte(opcJmpLong)
			be.emitLabelRef(be.ctx.Labels[op.ConstArg(0)])
		case ir.OpBrCond:
			be.allocBrCond(op)
		case ir.OpExitTb:
			be.allocBBEnd()
			be.emitExitTb(op.ConstArg(0))
		case ir.OpGotoTb:
			be.allocBBEnd()
			be.emitGotoTb(int(op.ConstArg(0)))
		case ir.OpGotoPtr:
			be.allocGotoPtr(op)
		case ir.OpMb:
			// mfence
			be.buf.Byte(0x0F)
			be.buf.Byte(0xAE)
			be.buf.Byte(0xF0)
		case ir.OpCall:
			be.allocCall(op)
		default:
			be.allocOp(op)
		}
	}
	be.ctx.CheckLabels()

	return CompiledTB{
		HostOff:     hostOff,
		HostSize:    be.buf.Cursor() - hostOff,
		JmpInsnOff:  be.jmpInsnOff,
		JmpResetOff: be.jmpResetOff,
	}
}

// initAlloc resets allocation state for a fresh translation.
func (be *Backend) initAlloc() {
	for i := range be.regToTemp {
		be.regToTemp[i] = -1
	}
	be.freeRegs = allocatable
	for i := range be.ctx.Temps {
		t := be.ctx.Temp(i)
		switch t.Kind {
		case ir.KindGlobal:
			t.Val = ir.ValMem
			t.MemCoherent = true
		case ir.KindFixed:
			t.Val = ir.ValReg
			be.regToTemp[t.Reg] = i
			be.freeRegs = be.freeRegs.Remove(t.Reg)
		case ir.KindConst:
			t.Val = ir.ValConst
		default:
			t.Val = ir.ValDead
		}
	}
}

// claimReg binds a free register to a temp.
func (be *Backend) claimReg(r ir.Reg, temp int) {
	be.regToTemp[r] = temp
	be.freeRegs = be.freeRegs.Remove(r)
	t := be.ctx.Temp(temp)
	t.Val = ir.ValReg
	t.Reg = r
}

// releaseReg returns a register to the free pool.
func (be *Backend) releaseReg(r ir.Reg) {
	be.regToTemp[r] = -1
	be.freeRegs = be.freeRegs.Add(r)
}

// tempDead marks a temp value as no longer register resident. Globals
// fall back to their memory slot, constants to their value.
func (be *Backend) tempDead(temp int) {
	t := be.ctx.Temp(temp)
	if t.Kind == ir.KindFixed {
		return
	}
	if t.Val == ir.ValReg && be.regToTemp[t.Reg] == temp {
		be.releaseReg(t.Reg)
	}
	switch t.Kind {
	case ir.KindGlobal:
		t.Val = ir.ValMem
	case ir.KindConst:
		t.Val = ir.ValConst
	default:
		t.Val = ir.ValDead
	}
}

// tempSync writes a dirty global back to its CPU state slot.
func (be *Backend) tempSync(temp int) {
	t := be.ctx.Temp(temp)
	if t.Kind != ir.KindGlobal {
		return
	}
	switch t.Val {
	case ir.ValReg:
		if !t.MemCoherent {
			be.outSt(t.Type, t.Reg, t.MemBase, t.MemOffset)
			t.MemCoherent = true
		}
	case ir.ValConst:
		v := t.Value
		if v == uint64(int64(int32(uint32(v)))) || t.Type == ir.TypeI32 {
			// mov [base+off], imm32
			be.outModRMOff(opcMovlEvIz|rexw(t.Type), 0, t.MemBase, t.MemOffset)
			be.buf.W32(uint32(v))
		} else {
			r := be.regAlloc(allocatable, 0, 0)
			be.outMovI(r, v)
			be.outSt(t.Type, r, t.MemBase, t.MemOffset)
		}
		t.Val = ir.ValMem
		t.MemCoherent = true
	case ir.ValMem:
		// Already current.
	default:
		panic("x86: sync of dead global " + t.Name)
	}
}

// allocBBEnd brings every temp to its canonical location at a basic
// block boundary: globals synced to memory, locals dead.
func (be *Backend) allocBBEnd() {
	for i := range be.ctx.Temps {
		t := be.ctx.Temp(i)
		switch t.Kind {
		case ir.KindGlobal:
			be.tempSync(i)
			be.tempDead(i)
		case ir.KindEbb, ir.KindTb:
			be.tempDead(i)
		case ir.KindConst:
			be.tempDead(i)
		}
	}
}

// syncGlobals writes every dirty global back without disturbing
// register assignments. Used before conditional branches.
func (be *Backend) syncGlobals() {
	for i := 0; i < be.ctx.NbGlobals; i++ {
		if be.ctx.Temp(i).Kind == ir.KindGlobal {
			be.tempSync(i)
		}
	}
}

// regAlloc finds a register inside required, avoiding forbidden,
// trying preferred first. Occupied registers are evicted; if required
// and forbidden leave nothing, forbidden is ignored (forced eviction).
func (be *Backend) regAlloc(required, forbidden, preferred ir.RegSet) ir.Reg {
	if s := preferred & required & be.freeRegs &^ forbidden; !s.Empty() {
		return be.pickOrder(s)
	}
	if s := required & be.freeRegs &^ forbidden; !s.Empty() {
		return be.pickOrder(s)
	}
	// Evict an occupant.
	if r, ok := be.evictFrom(required &^ forbidden); ok {
		return r
	}
	// Forced eviction, ignore forbidden.
	if r, ok := be.evictFrom(required); ok {
		return r
	}
	panic(fmt.Sprintf("x86: no allocatable register in %016x", uint64(required)))
}

func (be *Backend) pickOrder(s ir.RegSet) ir.Reg {
	for _, r := range allocOrder {
		if s.Has(r) {
			return r
		}
	}
	return s.First()
}

func (be *Backend) evictFrom(s ir.RegSet) (ir.Reg, bool) {
	for _, r := range allocOrder {
		if !s.Has(r) || !allocatable.Has(r) {
			continue
		}
		i := be.regToTemp[r]
		if i < 0 {
			continue
		}
		if be.ctx.Temp(i).Kind == ir.KindFixed {
			continue
		}
		be.evictReg(r)
		return r, true
	}
	return 0, false
}

// evictReg frees one occupied register. Globals are written back to
// memory, constants forget their register, locals move to a free one.
func (be *Backend) evictReg(r ir.Reg) {
	i := be.regToTemp[r]
	t := be.ctx.Temp(i)
	switch t.Kind {
	case ir.KindGlobal:
		be.tempSync(i)
		be.tempDead(i)
	case ir.KindConst:
		be.tempDead(i)
	case ir.KindFixed:
		panic("x86: eviction of fixed temp " + t.Name)
	default:
		nr := be.freeRegs &^ ir.RegMask(r)
		if nr.Empty() {
			panic("x86: register pressure exceeds allocatable set")
		}
		dst := be.pickOrder(nr)
		be.outMovReg(t.Type, dst, r)
		be.releaseReg(r)
		be.claimReg(dst, i)
	}
}

// tempLoad materializes a temp in a register satisfying required,
// avoiding forbidden for fresh allocations.
func (be *Backend) tempLoad(temp int, required, forbidden, preferred ir.RegSet) {
	t := be.ctx.Temp(temp)
	switch t.Val {
	case ir.ValReg:
		if required.Has(t.Reg) {
			return
		}
		r := be.regAlloc(required, forbidden, preferred)
		be.outMovReg(t.Type, r, t.Reg)
		if be.regToTemp[t.Reg] == temp {
			be.releaseReg(t.Reg)
		}
		be.claimReg(r, temp)
	case ir.ValConst:
		r := be.regAlloc(required, forbidden, preferred)
		be.outMovI(r, t.Value)
		be.claimReg(r, temp)
		t.MemCoherent = false
	case ir.ValMem:
		r := be.regAlloc(required, forbidden, preferred)
		be.outLd(t.Type, r, t.MemBase, t.MemOffset)
		be.claimReg(r, temp)
		t.MemCoherent = true
	default:
		panic("x86: load of dead temp " + be.ctx.TempName(temp))
	}
}

// allocMov is the dedicated fast path for register renaming.
func (be *Backend) allocMov(op *ir.Op) {
	o, i := op.Out(0), op.In(0)
	ot := be.ctx.Temp(o)
	it := be.ctx.Temp(i)
	idead := op.ArgDead(1)

	// Drop the output's stale location.
	if ot.Val == ir.ValReg && be.regToTemp[ot.Reg] == o {
		be.releaseReg(ot.Reg)
	}

	switch it.Val {
	case ir.ValConst:
		// Propagate the constant lazily; it is materialized on the
		// next use or at the next sync.
		ot.Val = ir.ValConst
		ot.Value = it.Value
		ot.MemCoherent = false
	case ir.ValReg:
		if idead && !it.ReadOnly() && it.Kind != ir.KindGlobal {
			// Rename: the output takes over the input's register.
			r := it.Reg
			be.regToTemp[r] = o
			ot.Val = ir.ValReg
			ot.Reg = r
			ot.MemCoherent = false
			it.Val = ir.ValDead
		} else {
			r := be.regAlloc(allocatable, ir.RegMask(it.Reg), op.OutputPref[0])
			be.outMovReg(op.Type, r, it.Reg)
			be.claimReg(r, o)
			ot.MemCoherent = false
		}
	case ir.ValMem:
		r := be.regAlloc(allocatable, 0, op.OutputPref[0])
		be.outLd(it.Type, r, it.MemBase, it.MemOffset)
		be.claimReg(r, o)
		ot.MemCoherent = false
	default:
		panic("x86: mov from dead temp " + be.ctx.TempName(i))
	}

	if op.ArgSync(1) {
		be.tempSync(i)
	}
	if idead && it.Val != ir.ValDead {
		be.tempDead(i)
	}
	if op.ArgDead(0) {
		be.tempDead(o)
	}
}

// allocBrCond loads the comparison inputs, syncs globals ahead of the
// branch, and emits cmp/test plus jcc with a label relocation.
func (be *Backend) allocBrCond(op *ir.Op) {
	con := constraintFor(ir.OpBrCond)
	iRegs := be.loadInputs(op, con)
	be.syncGlobals()
	// Syncing a lazy constant may have needed a scratch register.
	for k := 0; k < 2; k++ {
		t := be.ctx.Temp(op.In(k))
		if t.Val != ir.ValReg {
			be.tempLoad(op.In(k), con.Args[k].Regs, 0, 0)
		}
		iRegs[k] = t.Reg
	}

	cond := ir.Cond(op.ConstArg(0))
	label := be.ctx.Labels[op.ConstArg(1)]
	be.emitCmp(op.Type, cond, iRegs[0], iRegs[1])
	be.outOpc(opcJccLong+ccFor(cond), 0, 0, 0)
	be.emitLabelRef(label)

	be.freeDeadInputs(op)
}

// allocGotoPtr loads the target pointer, syncs state and jumps.
func (be *Backend) allocGotoPtr(op *ir.Op) {
	be.tempLoad(op.In(0), anyReg, 0, 0)
	be.syncGlobals()
	t := be.ctx.Temp(op.In(0))
	if t.Val != ir.ValReg {
		be.tempLoad(op.In(0), anyReg, 0, 0)
	}
	be.outModRM(opcGrp5, 4, t.Reg)
}

// loadInputs performs constrained input loading with the two-phase
// fixup: later fixed-constraint inputs may displace earlier ones, so
// every input is revalidated before emission.
func (be *Backend) loadInputs(op *ir.Op, con *OpConstraint) []ir.Reg {
	nbO := op.NbOArgs()
	nbI := op.NbIArgs()
	allocated := ir.RegSet(0)
	var fixedIn ir.RegSet
	for k := 0; k < nbI; k++ {
		if con.Args[nbO+k].Fixed() {
			fixedIn |= con.Args[nbO+k].Regs
		}
	}

	for k := 0; k < nbI; k++ {
		ac := &con.Args[nbO+k]
		i := op.In(k)
		t := be.ctx.Temp(i)
		var pref ir.RegSet
		if be.inputReusable(op, con, k) {
			pref = op.OutputPref[ac.AliasIndex]
		}
		be.tempLoad(i, ac.Regs, allocated, pref)
		allocated = allocated.Add(t.Reg)
	}

	// Fixup: reload anything displaced by a later fixed load.
	iRegs := make([]ir.Reg, nbI)
	for k := 0; k < nbI; k++ {
		ac := &con.Args[nbO+k]
		i := op.In(k)
		t := be.ctx.Temp(i)
		if t.Val != ir.ValReg || !ac.Regs.Has(t.Reg) {
			be.tempLoad(i, ac.Regs, fixedIn, 0)
		}
		iRegs[k] = t.Reg
	}
	return iRegs
}

// inputReusable reports whether input k may donate its register to the
// aliased output: it must be dead at this op and privately owned.
func (be *Backend) inputReusable(op *ir.Op, con *OpConstraint, k int) bool {
	nbO := op.NbOArgs()
	ac := &con.Args[nbO+k]
	if !ac.IAlias || !op.ArgDead(nbO+k) {
		return false
	}
	t := be.ctx.Temp(op.In(k))
	return !t.ReadOnly() && t.Kind != ir.KindGlobal
}

// freeDeadInputs releases registers of inputs that die at this op,
// syncing last-use globals first. A register is only released if it
// still names the dying temp; temps redefined by an output of the
// same op are left alone.
func (be *Backend) freeDeadInputs(op *ir.Op) {
	nbO := op.NbOArgs()
input:
	for k := 0; k < op.NbIArgs(); k++ {
		i := op.In(k)
		for j := 0; j < nbO; j++ {
			if op.Out(j) == i {
				continue input
			}
		}
		if op.ArgSync(nbO + k) {
			be.tempSync(i)
		}
		if !op.ArgDead(nbO + k) {
			continue
		}
		t := be.ctx.Temp(i)
		if t.Val == ir.ValDead {
			continue // consumed by an aliased output
		}
		be.tempDead(i)
	}
}

// allocOp is the generic allocation path.
func (be *Backend) allocOp(op *ir.Op) {
	def := op.Opc.Def()
	if def.Flags&ir.FlagNotPresent != 0 {
		panic("x86: opcode not implemented by backend: " + op.Opc.String())
	}
	con := constraintFor(op.Opc)
	nbO := op.NbOArgs()
	nbI := op.NbIArgs()

	// 1-2. Load inputs with fixup.
	iRegs := be.loadInputs(op, con)
	inputSet := ir.RegSet(0)
	for _, r := range iRegs {
		inputSet = inputSet.Add(r)
	}

	// 4. Allocate outputs.
	oRegs := make([]ir.Reg, nbO)
	outUsed := ir.RegSet(0)
	overrideIn := map[int]ir.Reg{}
	for k := 0; k < nbO; k++ {
		ac := &con.Args[k]
		o := op.Out(k)
		ot := be.ctx.Temp(o)
		if ot.ReadOnly() {
			panic("x86: output into read-only temp " + ot.Name)
		}
		// Drop the output's stale location.
		if ot.Val == ir.ValReg && be.regToTemp[ot.Reg] == o {
			be.releaseReg(ot.Reg)
		}

		var r ir.Reg
		switch {
		case ac.OAlias:
			inIdx := ac.AliasIndex - nbO
			i := op.In(inIdx)
			it := be.ctx.Temp(i)
			if i == o {
				// Destructive update of the same temp: the old value
				// dies into the new one, no copy needed.
				r = it.Reg
				be.regToTemp[r] = -1
				be.freeRegs = be.freeRegs.Add(r)
			} else if be.inputReusable(op, con, inIdx) {
				// The input dies here; take its register.
				r = it.Reg
				it.Val = ir.ValDead
				be.regToTemp[r] = -1
				be.freeRegs = be.freeRegs.Add(r)
			} else {
				// Preserve the input elsewhere; the op still reads
				// and overwrites the original register.
				nr := be.regAlloc(allocatable, inputSet|outUsed, 0)
				be.outMovReg(it.Type, nr, it.Reg)
				r = it.Reg
				if be.regToTemp[r] == i {
					be.releaseReg(r)
				}
				be.claimReg(nr, i)
				overrideIn[inIdx] = r
			}
		case ac.NewReg:
			r = be.regAlloc(ac.Regs, inputSet|outUsed, op.OutputPref[k])
		default:
			r = be.regAlloc(ac.Regs, outUsed, op.OutputPref[k])
		}
		be.claimReg(r, o)
		ot.MemCoherent = false
		oRegs[k] = r
		outUsed = outUsed.Add(r)
	}

	// 5. Output allocation may have displaced an input; revalidate.
	// Inputs naming an output temp keep their pre-output register.
	for k := 0; k < nbI; k++ {
		if r, ok := overrideIn[k]; ok {
			iRegs[k] = r
			continue
		}
		i := op.In(k)
		shared := false
		for j := 0; j < nbO; j++ {
			if op.Out(j) == i {
				shared = true
				break
			}
		}
		if shared {
			continue
		}
		t := be.ctx.Temp(i)
		if t.Val != ir.ValReg || !con.Args[nbO+k].Regs.Has(t.Reg) {
			be.tempLoad(i, con.Args[nbO+k].Regs, outUsed, 0)
		}
		iRegs[k] = t.Reg
	}

	// Every chosen register must satisfy its constraint; a violation
	// here is a constraint table bug, fail fast with the op named.
	for k := 0; k < nbI; k++ {
		if !con.Args[nbO+k].Regs.Has(iRegs[k]) {
			panic(fmt.Sprintf("x86: %s input %d in %s violates constraint",
				op.Opc, k, RegName(iRegs[k])))
		}
	}
	for k := 0; k < nbO; k++ {
		ac := &con.Args[k]
		switch {
		case !ac.Regs.Has(oRegs[k]):
			panic(fmt.Sprintf("x86: %s output %d in %s violates constraint",
				op.Opc, k, RegName(oRegs[k])))
		case ac.OAlias && oRegs[k] != iRegs[ac.AliasIndex-nbO]:
			panic(fmt.Sprintf("x86: %s output %d lost its alias", op.Opc, k))
		case ac.NewReg:
			for _, r := range iRegs {
				if r == oRegs[k] {
					panic(fmt.Sprintf("x86: %s newreg output overlaps input",
						op.Opc))
				}
			}
		}
	}

	// 6. Emit.
	be.emitOp(op, oRegs, iRegs)

	// 7-9. Free dead args, write back sync-flagged globals.
	be.freeDeadInputs(op)
	for k := 0; k < nbO; k++ {
		if op.ArgDead(k) {
			be.tempDead(op.Out(k))
		}
	}
}

// allocCall saves live state across a helper call, marshals arguments
// into the System V registers and claims the returns.
func (be *Backend) allocCall(op *ir.Op) {
	nbO := op.NbOArgs()
	nbI := op.NbIArgs()
	if nbI > len(callArgRegs) {
		panic("x86: too many helper call arguments")
	}
	fn := uintptr(op.ConstArg(0))

	// Load arguments into their fixed registers.
	allocated := ir.RegSet(0)
	for k := 0; k < nbI; k++ {
		be.tempLoad(op.In(k), ir.RegMask(callArgRegs[k]), allocated, 0)
		allocated = allocated.Add(callArgRegs[k])
	}

	// Sync globals and clear every call-clobbered register that does
	// not carry an argument.
	be.syncGlobals()
	for r := ir.Reg(0); r < nbRegs; r++ {
		if !callClobbered.Has(r) || allocated.Has(r) {
			continue
		}
		i := be.regToTemp[r]
		if i < 0 || be.ctx.Temp(i).Kind == ir.KindFixed {
			continue
		}
		be.evictReg(r)
	}

	be.outMovI(R10, uint64(fn))
	be.outModRM(opcGrp5, 2, R10)

	be.freeDeadInputs(op)

	retRegs := []ir.Reg{RAX, RDX}
	for k := 0; k < nbO; k++ {
		o := op.Out(k)
		ot := be.ctx.Temp(o)
		if ot.Val == ir.ValReg && be.regToTemp[ot.Reg] == o {
			be.releaseReg(ot.Reg)
		}
		be.claimReg(retRegs[k], o)
		ot.MemCoherent = false
		if op.ArgDead(k) {
			be.tempDead(o)
		}
	}
}

// setLabelHere resolves a label at the current offset and patches all
// recorded uses.
func (be *Backend) setLabelHere(l *ir.Label) {
	if l.HasValue {
		panic(fmt.Sprintf("x86: label %d resolved twice", l.ID))
	}
	l.HasValue = true
	l.Value = be.buf.Cursor()
	for _, use := range l.Uses {
		switch use.Kind {
		case ir.RelocRel32:
			be.buf.Write32(use.Offset, uint32(int32(l.Value-(use.Offset+4))))
		default:
			panic("x86: unknown relocation kind")
		}
	}
	l.Uses = l.Uses[:0]
}

// emitLabelRef emits the rel32 displacement field of a branch to l,
// recording a use when the label is still unresolved.
func (be *Backend) emitLabelRef(l *ir.Label) {
	if l.HasValue {
		be.buf.W32(uint32(int32(l.Value - (be.buf.Cursor() + 4))))
		return
	}
	l.AddUse(be.buf.Cursor(), ir.RelocRel32)
	be.buf.W32(0)
}

// emitExitTb leaves the translation through the epilogue. A zero word
// uses the shared zero-return entry; the NOCHAIN sentinel is completed
// with the current block's index.
func (be *Backend) emitExitTb(word uint64) {
	if word == 0 {
		be.outJmpTo(be.epilogueZeroOff)
		return
	}
	if word == exitNoChain {
		word = uint64(be.tbIdx)<<2 | exitNoChain
	}
	be.outMovI(RAX, word)
	be.outJmpTo(be.tbRetOff)
}

// emitGotoTb emits the patchable direct-chain jump. NOP padding aligns
// the 4-byte displacement field so a chain patch is a single aligned
// store.
func (be *Backend) emitGotoTb(slot int) {
	if be.jmpInsnOff[slot] >= 0 {
		panic("x86: duplicate goto_tb slot in translation")
	}
	for (be.buf.Cursor()+1)&3 != 0 {
		be.buf.Byte(opcNop)
	}
	be.jmpInsnOff[slot] = be.buf.Cursor()
	be.buf.Byte(opcJmpLong)
	be.buf.W32(0) // initially falls through to the exit below
	be.jmpResetOff[slot] = be.buf.Cursor()

	be.outMovI(RAX, uint64(be.tbIdx)<<2|uint64(slot))
	be.outJmpTo(be.tbRetOff)
}

// outJmpTo emits jmp rel32 to a known buffer offset.
func (be *Backend) outJmpTo(target int) {
	be.buf.Byte(opcJmpLong)
	be.buf.W32(uint32(int32(target - (be.buf.Cursor() + 4))))
}
