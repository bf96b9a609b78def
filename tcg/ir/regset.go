/*
 * rv64jit - Host register sets.
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

import "math/bits"

// Reg numbers a host register. The backend assigns the meaning.
type Reg uint8

// RegSet is a bitmap over up to 64 host registers.
type RegSet uint64

// MakeRegSet builds a set from individual registers.
func MakeRegSet(regs ...Reg) RegSet {
	var s RegSet
	for _, r := range regs {
		s |= 1 << r
	}
	return s
}

// RegMask returns the singleton set for r.
func RegMask(r Reg) RegSet {
	return 1 << r
}

// Has reports whether r is in the set.
func (s RegSet) Has(r Reg) bool {
	return s&(1<<r) != 0
}

// Add returns the set with r included.
func (s RegSet) Add(r Reg) RegSet {
	return s | 1<<r
}

// Remove returns the set with r excluded.
func (s RegSet) Remove(r Reg) RegSet {
	return s &^ (1 << r)
}

// First returns the lowest numbered register in the set.
// The set must not be empty.
func (s RegSet) First() Reg {
	return Reg(bits.TrailingZeros64(uint64(s)))
}

// Count returns the number of registers in the set.
func (s RegSet) Count() int {
	return bits.OnesCount64(uint64(s))
}

// Empty reports whether no register is in the set.
func (s RegSet) Empty() bool {
	return s == 0
}
