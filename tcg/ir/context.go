/*
 * rv64jit - Temporaries, labels, operations and the translation context.
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

import "fmt"

// TempKind classifies the lifetime of a temporary.
type TempKind uint8

const (
	// Live to the end of the extended basic block.
	KindEbb TempKind = iota
	// Live to the end of the translation block.
	KindTb
	// Backed by CPU state memory, live across translation blocks.
	KindGlobal
	// Permanently bound to one host register.
	KindFixed
	// A deduplicated constant.
	KindConst
)

// ValKind tags where the current value of a temporary lives.
type ValKind uint8

const (
	ValDead ValKind = iota
	ValReg
	ValMem
	ValConst
)

// Temp is one IR variable.
type Temp struct {
	Type Type
	Kind TempKind
	Name string

	// Value location, mutated by the register allocator.
	Val         ValKind
	Reg         Reg
	MemBase     Reg   // base register of the memory slot (globals)
	MemOffset   int64 // offset of the memory slot
	Value       uint64
	MemCoherent bool // register content matches the memory slot
}

// ReadOnly reports whether the temp may never be written.
func (t *Temp) ReadOnly() bool {
	return t.Kind == KindFixed || t.Kind == KindConst
}

// RelocKind selects how a label use is patched.
type RelocKind uint8

const (
	// 32-bit PC-relative displacement.
	RelocRel32 RelocKind = iota
)

// LabelUse records one unresolved reference to a label in emitted code.
// Offset addresses the displacement field in the code buffer.
type LabelUse struct {
	Offset int
	Kind   RelocKind
}

// Label marks a position in the op stream, forward references allowed.
type Label struct {
	ID       int
	Present  bool // a SetLabel op referencing this label was emitted
	HasValue bool
	Value    int // resolved host code offset
	Uses     []LabelUse
}

// AddUse records an unresolved reference at the given code offset.
func (l *Label) AddUse(offset int, kind RelocKind) {
	l.Uses = append(l.Uses, LabelUse{Offset: offset, Kind: kind})
}

// MaxOpArgs is the fixed argument capacity of an op. The opcode catalog
// is closed, no cataloged op exceeds it.
const MaxOpArgs = 10

// Arg is one op argument slot: a temp index for inputs and outputs, a
// raw integer payload for constant arguments.
type Arg uint64

// Op is a single IR operation. Arguments are laid out as
// [outputs | inputs | constants] per the opcode descriptor.
type Op struct {
	Opc    Opcode
	Type   Type
	Param1 uint8
	Param2 uint8

	// Life data, two bits per argument: bit 2k dead, bit 2k+1 sync.
	Life uint32

	// Preferred register sets for the outputs.
	OutputPref [2]RegSet

	Args  [MaxOpArgs]Arg
	NArgs uint8
}

// NbOArgs returns the output count (variable for calls).
func (op *Op) NbOArgs() int {
	if op.Opc == OpCall {
		return int(op.Param1)
	}
	return int(OpDefs[op.Opc].NbOArgs)
}

// NbIArgs returns the input count (variable for calls).
func (op *Op) NbIArgs() int {
	if op.Opc == OpCall {
		return int(op.Param2)
	}
	return int(OpDefs[op.Opc].NbIArgs)
}

// NbCArgs returns the constant argument count.
func (op *Op) NbCArgs() int {
	return int(op.NArgs) - op.NbOArgs() - op.NbIArgs()
}

// Out returns the temp index of output i.
func (op *Op) Out(i int) int {
	return int(op.Args[i])
}

// In returns the temp index of input i.
func (op *Op) In(i int) int {
	return int(op.Args[op.NbOArgs()+i])
}

// SetIn replaces input i with another temp.
func (op *Op) SetIn(i, temp int) {
	op.Args[op.NbOArgs()+i] = Arg(temp)
}

// ConstArg returns constant argument i.
func (op *Op) ConstArg(i int) uint64 {
	return uint64(op.Args[op.NbOArgs()+op.NbIArgs()+i])
}

// ArgDead reports the dead bit of argument slot k.
func (op *Op) ArgDead(k int) bool {
	return op.Life&(1<<(2*k)) != 0
}

// ArgSync reports the sync bit of argument slot k.
func (op *Op) ArgSync(k int) bool {
	return op.Life&(1<<(2*k+1)) != 0
}

// SetArgDead sets the dead bit of argument slot k.
func (op *Op) SetArgDead(k int) {
	op.Life |= 1 << (2 * k)
}

// SetArgSync sets the sync bit of argument slot k.
func (op *Op) SetArgSync(k int) {
	op.Life |= 1 << (2*k + 1)
}

// Frame describes the backend stack frame available to the allocator.
type Frame struct {
	Reserved  RegSet // registers the allocator must never touch
	CallArea  int    // static helper call argument area, bytes
	SpillArea int    // scratch spill area, bytes
}

// Context owns everything belonging to one translation: temporaries,
// operations and labels. Globals and fixed temps occupy the front of
// the temp vector and survive Reset.
type Context struct {
	Temps     []Temp
	Ops       []Op
	Labels    []*Label
	NbGlobals int
	Frame     Frame

	consts [nbTypes]map[uint64]int
}

// NewContext returns an empty translation context.
func NewContext() *Context {
	return &Context{}
}

// Reset drops everything belonging to the finished translation.
// The global prefix of the temp vector survives.
func (c *Context) Reset() {
	c.Temps = c.Temps[:c.NbGlobals]
	c.Ops = c.Ops[:0]
	c.Labels = c.Labels[:0]
	for i := range c.consts {
		c.consts[i] = nil
	}
}

// Temp returns the temp record for an index.
func (c *Context) Temp(i int) *Temp {
	return &c.Temps[i]
}

// NewGlobal creates a global temp backed by CPU state memory. Globals
// must be created before any local temp.
func (c *Context) NewGlobal(t Type, base Reg, offset int64, name string) int {
	if len(c.Temps) != c.NbGlobals {
		panic("ir: global " + name + " created after local temps")
	}
	c.Temps = append(c.Temps, Temp{
		Type: t, Kind: KindGlobal, Name: name,
		Val: ValMem, MemBase: base, MemOffset: offset, MemCoherent: true,
	})
	c.NbGlobals++
	return len(c.Temps) - 1
}

// NewFixed creates a temp permanently bound to a host register.
func (c *Context) NewFixed(t Type, reg Reg, name string) int {
	if len(c.Temps) != c.NbGlobals {
		panic("ir: fixed temp " + name + " created after local temps")
	}
	c.Temps = append(c.Temps, Temp{
		Type: t, Kind: KindFixed, Name: name,
		Val: ValReg, Reg: reg,
	})
	c.NbGlobals++
	return len(c.Temps) - 1
}

// NewTemp creates a local temp live to the end of the translation block.
func (c *Context) NewTemp(t Type) int {
	c.Temps = append(c.Temps, Temp{Type: t, Kind: KindTb, Val: ValDead})
	return len(c.Temps) - 1
}

// NewEbbTemp creates a local temp live to the end of the basic block.
func (c *Context) NewEbbTemp(t Type) int {
	c.Temps = append(c.Temps, Temp{Type: t, Kind: KindEbb, Val: ValDead})
	return len(c.Temps) - 1
}

// ConstTemp returns the temp holding the given constant, deduplicated
// per (type, value).
func (c *Context) ConstTemp(t Type, val uint64) int {
	if t == TypeI32 {
		val = uint64(int64(int32(uint32(val))))
	}
	m := c.consts[t]
	if m == nil {
		m = make(map[uint64]int)
		c.consts[t] = m
	}
	if idx, ok := m[val]; ok {
		return idx
	}
	c.Temps = append(c.Temps, Temp{
		Type: t, Kind: KindConst,
		Val: ValConst, Value: val,
	})
	idx := len(c.Temps) - 1
	m[val] = idx
	return idx
}

// NewLabel creates a fresh unresolved label.
func (c *Context) NewLabel() *Label {
	l := &Label{ID: len(c.Labels)}
	c.Labels = append(c.Labels, l)
	return l
}

// CheckLabels verifies every present label was resolved and every use
// patched. Called after code generation; failure is a translator bug.
func (c *Context) CheckLabels() {
	for _, l := range c.Labels {
		if l.Present && !l.HasValue {
			panic(fmt.Sprintf("ir: label %d never resolved", l.ID))
		}
		if len(l.Uses) != 0 {
			panic(fmt.Sprintf("ir: label %d has %d unpatched uses", l.ID, len(l.Uses)))
		}
	}
}

// TempName returns a printable name for a temp index.
func (c *Context) TempName(i int) string {
	t := &c.Temps[i]
	switch {
	case t.Name != "":
		return t.Name
	case t.Kind == KindConst:
		return fmt.Sprintf("$0x%x", t.Value)
	default:
		return fmt.Sprintf("tmp%d", i-c.NbGlobals)
	}
}
