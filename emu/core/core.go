/*
 * rv64jit - Simulation core. Binds harts to the shared JIT engine and
 * runs each on its own host thread.
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

package core

import (
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/rcornwell/rv64jit/emu/guestmem"
	"github.com/rcornwell/rv64jit/emu/rv64"
	"github.com/rcornwell/rv64jit/tcg/engine"
)

// Hart couples one guest CPU with its per-CPU JIT state.
type Hart struct {
	CPU  *rv64.CPU
	Vcpu *engine.Vcpu
}

// Core owns the engine, guest memory and every hart.
type Core struct {
	eng   *engine.Engine
	mem   *guestmem.Memory
	harts []*Hart

	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// Config sizes the simulated machine.
type Config struct {
	MemSize int // guest memory bytes
	BufSize int // JIT code buffer bytes
	Harts   int
}

// New builds a core: engine, guest memory, globals and harts.
func New(cfg Config) (*Core, error) {
	eng, err := engine.New(cfg.BufSize)
	if err != nil {
		return nil, err
	}
	mem, err := guestmem.New(cfg.MemSize)
	if err != nil {
		eng.Close()
		return nil, err
	}
	g := rv64.RegisterGlobals(eng.Context())

	c := &Core{eng: eng, mem: mem, done: make(chan struct{})}
	for i := 0; i < cfg.Harts; i++ {
		cpu := rv64.NewCPU(g, mem)
		c.harts = append(c.harts, &Hart{
			CPU:  cpu,
			Vcpu: engine.NewVcpu(eng, cpu),
		})
	}
	return c, nil
}

// Memory returns the guest address space.
func (c *Core) Memory() *guestmem.Memory {
	return c.mem
}

// Engine returns the shared JIT engine.
func (c *Core) Engine() *engine.Engine {
	return c.eng
}

// Harts returns every hart.
func (c *Core) Harts() []*Hart {
	return c.harts
}

// Running reports whether the harts are executing.
func (c *Core) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Start launches one host thread per hart. Each runs until a
// guest-visible exit or until Stop.
func (c *Core) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	done := c.done
	for n, h := range c.harts {
		c.wg.Add(1)
		go c.run(n, h, done)
	}
}

// run executes one hart to its first surfaced exit.
func (c *Core) run(n int, h *Hart, done chan struct{}) {
	defer c.wg.Done()
	// The JIT frame lives on this goroutine's stack; pin the thread.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		select {
		case <-done:
			return
		default:
		}
		reason, err := h.Vcpu.Run()
		if err != nil {
			slog.Error("hart translation failed", "hart", n, "error", err.Error())
			return
		}
		switch reason {
		case engine.ReasonECall:
			// Syscall emulation is the embedder's business; the stock
			// runner treats every ecall as a clean halt.
			slog.Info("hart ecall", "hart", n, "pc", h.CPU.PC(), "a7", h.CPU.Reg(17))
			return
		case engine.ReasonEBreak:
			slog.Info("hart breakpoint", "hart", n, "pc", h.CPU.PC())
			return
		default:
			slog.Error("hart stopped", "hart", n, "pc", h.CPU.PC(),
				"reason", reason.String())
			return
		}
	}
}

// Stop asks every hart to stop and waits briefly for them.
func (c *Core) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.done)
	c.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		slog.Warn("Timed out waiting for harts to finish.")
	}
	c.mu.Lock()
	c.done = make(chan struct{})
	c.mu.Unlock()
}

// Wait blocks until every hart has surfaced an exit.
func (c *Core) Wait() {
	c.wg.Wait()
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

// Shutdown releases the engine and guest memory.
func (c *Core) Shutdown() {
	c.Stop()
	c.eng.Close()
	c.mem.Close()
}
