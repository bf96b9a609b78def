/*
 * rv64jit - Liveness tests.
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

package liveness

import (
	"testing"

	"github.com/rcornwell/rv64jit/tcg/ir"
)

// A local temp's last use carries the dead bit, earlier uses do not.
func TestLocalDeath(t *testing.T) {
	ctx := ir.NewContext()
	a := ctx.NewTemp(ir.TypeI64)
	b := ctx.NewTemp(ir.TypeI64)
	c := ctx.NewTemp(ir.TypeI64)
	ctx.GenAdd(ir.TypeI64, b, a, a) // eariler use of a
	ctx.GenAdd(ir.TypeI64, c, a, b) // last use of a and b
	ctx.GenExitTb(0)

	Run(ctx)
	first := &ctx.Ops[0]
	if first.ArgDead(1) || first.ArgDead(2) {
		t.Errorf("a marked dead before its last use")
	}
	second := &ctx.Ops[1]
	if !second.ArgDead(1) || !second.ArgDead(2) {
		t.Errorf("last use of a/b not marked dead")
	}
	if second.ArgSync(1) || second.ArgSync(2) {
		t.Errorf("sync set on local temps")
	}
	// c is never read again: its definition is dead.
	if !second.ArgDead(0) {
		t.Errorf("unused output not marked dead")
	}
}

// Globals stay live to the block end; a last use ahead of a
// redefinition carries dead and sync.
func TestGlobalSync(t *testing.T) {
	ctx := ir.NewContext()
	g1 := ctx.NewGlobal(ir.TypeI64, 5, 0, "g1")
	g2 := ctx.NewGlobal(ir.TypeI64, 5, 8, "g2")
	ctx.GenAdd(ir.TypeI64, g2, g1, g1)
	ctx.GenExitTb(0)

	Run(ctx)
	add := &ctx.Ops[0]
	// g1 is still needed in memory at the block end: no death here.
	if add.ArgDead(1) || add.ArgSync(1) {
		t.Errorf("global input wrongly dead/sync while live to block end")
	}
	// g2 is forced live at the block end, so its definition is not dead.
	if add.ArgDead(0) {
		t.Errorf("global output wrongly dead at block end")
	}

	// Reading a global ahead of its redefinition is a last use of the
	// old value: dead and sync.
	ctx = ir.NewContext()
	g := ctx.NewGlobal(ir.TypeI64, 5, 0, "g")
	a := ctx.NewTemp(ir.TypeI64)
	ctx.GenMov(ir.TypeI64, a, g)
	ctx.GenAdd(ir.TypeI64, g, a, a)
	ctx.GenExitTb(0)
	Run(ctx)
	mov := &ctx.Ops[0]
	if !mov.ArgDead(1) || !mov.ArgSync(1) {
		t.Errorf("last use before redefinition got: dead=%v sync=%v",
			mov.ArgDead(1), mov.ArgSync(1))
	}
}

// A use after the op keeps the earlier input alive.
func TestBackwardOrder(t *testing.T) {
	ctx := ir.NewContext()
	g := ctx.NewGlobal(ir.TypeI64, 5, 0, "g")
	a := ctx.NewTemp(ir.TypeI64)
	ctx.GenMov(ir.TypeI64, a, g)
	ctx.GenAdd(ir.TypeI64, g, g, a)
	ctx.GenExitTb(0)

	Run(ctx)
	mov := &ctx.Ops[0]
	if mov.ArgDead(1) {
		t.Errorf("global dead at mov despite later use")
	}
	add := &ctx.Ops[1]
	if !add.ArgDead(2) {
		t.Errorf("local last use not dead")
	}
}

// Fixed temps never carry a dead bit.
func TestFixedNeverDead(t *testing.T) {
	ctx := ir.NewContext()
	f := ctx.NewFixed(ir.TypeI64, 14, "base")
	b := ctx.NewTemp(ir.TypeI64)
	ctx.GenAdd(ir.TypeI64, b, f, f)
	ctx.GenExitTb(0)

	Run(ctx)
	add := &ctx.Ops[0]
	if add.ArgDead(1) || add.ArgDead(2) {
		t.Errorf("fixed temp marked dead")
	}
}
