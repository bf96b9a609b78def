/*
 * rv64jit - Code buffer tests.
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

package codebuf

import "testing"

// Emission advances the cursor and round trips little endian.
func TestEmission(t *testing.T) {
	b, err := New(4096)
	if err != nil {
		t.Fatalf("mmap failed: %v", err)
	}
	defer b.Close()

	b.Byte(0x90)
	b.W16(0x1234)
	b.W32(0xDEADBEEF)
	b.W64(0x1122334455667788)
	if b.Cursor() != 15 {
		t.Errorf("cursor got: %d expected: %d", b.Cursor(), 15)
	}
	if b.Read32(3) != 0xDEADBEEF {
		t.Errorf("readback got: %x expected: %x", b.Read32(3), 0xDEADBEEF)
	}
	if b.Overflow() {
		t.Errorf("overflow flagged without cause")
	}
}

// Running past the end raises the overflow flag instead of writing.
func TestOverflow(t *testing.T) {
	b, err := New(4096)
	if err != nil {
		t.Fatalf("mmap failed: %v", err)
	}
	defer b.Close()

	for i := 0; i < 4096; i++ {
		b.Byte(0x90)
	}
	if b.Overflow() {
		t.Errorf("overflow at exact fill")
	}
	b.W32(1)
	if !b.Overflow() {
		t.Errorf("overflow not detected")
	}
	b.Reset()
	if b.Overflow() || b.Cursor() != 0 {
		t.Errorf("reset did not clear state")
	}
}

// Aligned patching rewrites published code.
func TestPatch(t *testing.T) {
	b, err := New(4096)
	if err != nil {
		t.Fatalf("mmap failed: %v", err)
	}
	defer b.Close()

	for i := 0; i < 16; i++ {
		b.Byte(0)
	}
	b.Patch32(8, 0xCAFEBABE)
	if b.Read32(8) != 0xCAFEBABE {
		t.Errorf("patch got: %x expected: %x", b.Read32(8), 0xCAFEBABE)
	}
}

// Unaligned atomic patches are rejected.
func TestPatchAlignment(t *testing.T) {
	b, err := New(4096)
	if err != nil {
		t.Fatalf("mmap failed: %v", err)
	}
	defer b.Close()
	for i := 0; i < 16; i++ {
		b.Byte(0)
	}
	defer func() {
		if recover() == nil {
			t.Errorf("unaligned patch not rejected")
		}
	}()
	b.Patch32(6, 1)
}

// Align pads with the filler byte.
func TestAlign(t *testing.T) {
	b, err := New(4096)
	if err != nil {
		t.Fatalf("mmap failed: %v", err)
	}
	defer b.Close()
	b.Byte(1)
	b.Align(4, 0x90)
	if b.Cursor() != 4 {
		t.Errorf("align got: %d expected: %d", b.Cursor(), 4)
	}
	if got := b.Bytes(1, 4); got[0] != 0x90 || got[1] != 0x90 || got[2] != 0x90 {
		t.Errorf("filler got: % x expected nops", got)
	}
}
