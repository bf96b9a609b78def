/*
 * rv64jit - Guest address space, linux-user flat model. One anonymous
 * mapping holds the whole guest view; generated code reaches it
 * through the guest base register.
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

import (
	"encoding/binary"
	"errors"
	"unsafe"

	"golang.org/x/sys/unix"
)

var errRange = errors.New("guestmem: access outside guest memory")

// Memory is the guest address space.
type Memory struct {
	mem []byte
}

// New maps a guest address space of the given size in bytes.
func New(size int) (*Memory, error) {
	mem, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, err
	}
	return &Memory{mem: mem}, nil
}

// Close unmaps the guest address space.
func (m *Memory) Close() error {
	mem := m.mem
	m.mem = nil
	return unix.Munmap(mem)
}

// Base returns the host address of guest address zero, loaded into the
// guest base register before the first translation.
func (m *Memory) Base() uintptr {
	return uintptr(unsafe.Pointer(&m.mem[0]))
}

// Size returns the guest address space size.
func (m *Memory) Size() uint64 {
	return uint64(len(m.mem))
}

// LoadImage copies a raw binary image to a guest address.
func (m *Memory) LoadImage(addr uint64, image []byte) error {
	if addr+uint64(len(image)) > uint64(len(m.mem)) {
		return errRange
	}
	copy(m.mem[addr:], image)
	return nil
}

// Fetch32 reads one instruction word.
func (m *Memory) Fetch32(addr uint64) (uint32, error) {
	if addr+4 > uint64(len(m.mem)) {
		return 0, errRange
	}
	return binary.LittleEndian.Uint32(m.mem[addr:]), nil
}

// Read copies guest memory out, for the monitor and tests.
func (m *Memory) Read(addr uint64, buf []byte) error {
	if addr+uint64(len(buf)) > uint64(len(m.mem)) {
		return errRange
	}
	copy(buf, m.mem[addr:])
	return nil
}

// Write copies into guest memory.
func (m *Memory) Write(addr uint64, buf []byte) error {
	if addr+uint64(len(buf)) > uint64(len(m.mem)) {
		return errRange
	}
	copy(m.mem[addr:], buf)
	return nil
}

// Read64 reads a 64-bit little endian value.
func (m *Memory) Read64(addr uint64) (uint64, error) {
	if addr+8 > uint64(len(m.mem)) {
		return 0, errRange
	}
	return binary.LittleEndian.Uint64(m.mem[addr:]), nil
}

// Write64 writes a 64-bit little endian value.
func (m *Memory) Write64(addr uint64, v uint64) error {
	if addr+8 > uint64(len(m.mem)) {
		return errRange
	}
	binary.LittleEndian.PutUint64(m.mem[addr:], v)
	return nil
}
