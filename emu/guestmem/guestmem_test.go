/*
 * rv64jit - Guest memory tests.
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

package guestmem

import "testing"

// Image loading and typed access round trip.
func TestAccess(t *testing.T) {
	m, err := New(1 << 16)
	if err != nil {
		t.Fatalf("mmap failed: %v", err)
	}
	defer m.Close()

	if err := m.LoadImage(0x100, []byte{0x93, 0x00, 0xA0, 0x02}); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	v, err := m.Fetch32(0x100)
	if err != nil || v != 0x02A00093 {
		t.Errorf("fetch got: %x expected: %x", v, 0x02A00093)
	}

	if err := m.Write64(0x200, 0x1122334455667788); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	r, err := m.Read64(0x200)
	if err != nil || r != 0x1122334455667788 {
		t.Errorf("read got: %x expected: %x", r, uint64(0x1122334455667788))
	}
	if m.Base() == 0 {
		t.Errorf("guest base is nil")
	}
}

// Accesses outside the mapping are rejected.
func TestBounds(t *testing.T) {
	m, err := New(4096)
	if err != nil {
		t.Fatalf("mmap failed: %v", err)
	}
	defer m.Close()

	if _, err := m.Fetch32(4094); err == nil {
		t.Errorf("fetch past end not rejected")
	}
	if err := m.Write64(4092, 1); err == nil {
		t.Errorf("write past end not rejected")
	}
	if err := m.LoadImage(4096, []byte{1}); err == nil {
		t.Errorf("image past end not rejected")
	}
}
