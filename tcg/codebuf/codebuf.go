/*
 * rv64jit - JIT code buffer. One RWX mapping shared by all translation
 * blocks, with atomic patching of previously written code.
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

import (
	"encoding/binary"
	"errors"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ErrFull reports that a translation ran out of buffer space. The
// execution engine recovers by flushing every translation block and
// starting over with an empty buffer.
var ErrFull = errors.New("codebuf: buffer exhausted")

// Buffer is the executable code area. The mapping is RWX for the life
// of the process: patch sites are written while other threads execute
// from the same pages, so a W^X flip would have to be taken around
// every chain patch. Mutation is serialized by the engine's translate
// lock; patches are 4-byte aligned dword stores.
type Buffer struct {
	mem      []byte
	off      int
	overflow bool
}

// New maps an executable buffer of the given size.
func New(size int) (*Buffer, error) {
	mem, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC,
		unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, err
	}
	return &Buffer{mem: mem}, nil
}

// Close unmaps the buffer. No generated code may run afterwards.
func (b *Buffer) Close() error {
	mem := b.mem
	b.mem = nil
	return unix.Munmap(mem)
}

// Cursor returns the current emission offset.
func (b *Buffer) Cursor() int {
	return b.off
}

// Overflow reports whether any emission since the last Reset ran past
// the end of the buffer.
func (b *Buffer) Overflow() bool {
	return b.overflow
}

// Size returns the total buffer size.
func (b *Buffer) Size() int {
	return len(b.mem)
}

// Reset discards all emitted code.
func (b *Buffer) Reset() {
	b.off = 0
	b.overflow = false
}

// Byte emits a single byte.
func (b *Buffer) Byte(v byte) {
	if b.off+1 > len(b.mem) {
		b.overflow = true
		return
	}
	b.mem[b.off] = v
	b.off++
}

// W16 emits a little endian 16-bit word.
func (b *Buffer) W16(v uint16) {
	if b.off+2 > len(b.mem) {
		b.overflow = true
		return
	}
	binary.LittleEndian.PutUint16(b.mem[b.off:], v)
	b.off += 2
}

// W32 emits a little endian 32-bit word.
func (b *Buffer) W32(v uint32) {
	if b.off+4 > len(b.mem) {
		b.overflow = true
		return
	}
	binary.LittleEndian.PutUint32(b.mem[b.off:], v)
	b.off += 4
}

// W64 emits a little endian 64-bit word.
func (b *Buffer) W64(v uint64) {
	if b.off+8 > len(b.mem) {
		b.overflow = true
		return
	}
	binary.LittleEndian.PutUint64(b.mem[b.off:], v)
	b.off += 8
}

// Write32 rewrites a 32-bit field of already emitted code. Used for
// label back-patching before a translation is published.
func (b *Buffer) Write32(off int, v uint32) {
	binary.LittleEndian.PutUint32(b.mem[off:], v)
}

// Read32 reads back a 32-bit field of emitted code.
func (b *Buffer) Read32(off int) uint32 {
	return binary.LittleEndian.Uint32(b.mem[off:])
}

// Patch32 atomically rewrites a 32-bit field of published code. The
// offset must be 4-byte aligned; racing executors observe either the
// old or the new value, never a torn one.
func (b *Buffer) Patch32(off int, v uint32) {
	if off&3 != 0 {
		panic("codebuf: unaligned atomic patch")
	}
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&b.mem[off])), v)
}

// Align pads with the given filler byte to an n-byte boundary.
func (b *Buffer) Align(n int, fill byte) {
	for b.off&(n-1) != 0 {
		b.Byte(fill)
	}
}

// Addr returns the host address of an offset in the buffer.
func (b *Buffer) Addr(off int) uintptr {
	return uintptr(unsafe.Pointer(&b.mem[0])) + uintptr(off)
}

// Bytes returns the emitted code between two offsets, for disassembly
// and tests.
func (b *Buffer) Bytes(start, end int) []byte {
	return b.mem[start:end]
}
