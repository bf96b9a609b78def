/*
 * rv64jit - Backward liveness analysis. Stamps each op argument with
 * dead and sync bits consumed by the register allocator.
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

import "github.com/rcornwell/rv64jit/tcg/ir"

// Run performs the single backward pass over the context's op list.
// Globals are considered live at the end of the translation block and
// at every basic block end; the last use of a live global input is
// additionally marked for write-back with the sync bit.
func Run(ctx *ir.Context) {
	alive := make([]bool, len(ctx.Temps))
	forceGlobals := func() {
		for i := 0; i < ctx.NbGlobals; i++ {
			if ctx.Temp(i).Kind == ir.KindGlobal {
				alive[i] = true
			}
		}
	}
	forceGlobals()

	for i := len(ctx.Ops) - 1; i >= 0; i-- {
		op := &ctx.Ops[i]
		op.Life = 0

		if ir.OpDefs[op.Opc].Flags&ir.FlagBBEnd != 0 {
			forceGlobals()
		}

		nbOArgs := op.NbOArgs()
		for k := 0; k < nbOArgs; k++ {
			out := op.Out(k)
			if !alive[out] {
				op.SetArgDead(k)
			}
			alive[out] = false
		}

		for k := 0; k < op.NbIArgs(); k++ {
			in := op.In(k)
			t := ctx.Temp(in)
			if t.Kind == ir.KindFixed {
				continue
			}
			if !alive[in] {
				// Last use walking forward.
				op.SetArgDead(nbOArgs + k)
				if t.Kind == ir.KindGlobal {
					op.SetArgSync(nbOArgs + k)
				}
			}
			alive[in] = true
		}
	}
}
