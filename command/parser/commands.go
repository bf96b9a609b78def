/*
 * rv64jit - Monitor command parser.
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

package parser

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	core "github.com/rcornwell/rv64jit/emu/core"
)

type cmd struct {
	Name    string
	Min     int // minimum abbreviation length
	Process func(args []string, core *core.Core) (bool, error)
}

var cmdList = []cmd{
	{Name: "start", Min: 3, Process: start},
	{Name: "stop", Min: 3, Process: stop},
	{Name: "continue", Min: 1, Process: start},
	{Name: "examine", Min: 2, Process: examine},
	{Name: "deposit", Min: 2, Process: deposit},
	{Name: "regs", Min: 1, Process: regs},
	{Name: "stats", Min: 4, Process: stats},
	{Name: "quit", Min: 4, Process: quit},
}

// Process one command line. Returns true when the monitor should exit.
func ProcessCommand(line string, c *core.Core) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	name := strings.ToLower(fields[0])
	for i := range cmdList {
		if len(name) >= cmdList[i].Min && strings.HasPrefix(cmdList[i].Name, name) {
			return cmdList[i].Process(fields[1:], c)
		}
	}
	return false, errors.New("unknown command: " + fields[0])
}

// CompleteCmd offers command name completion.
func CompleteCmd(line string) []string {
	var out []string
	for i := range cmdList {
		if strings.HasPrefix(cmdList[i].Name, strings.ToLower(line)) {
			out = append(out, cmdList[i].Name)
		}
	}
	return out
}

func start(_ []string, c *core.Core) (bool, error) {
	slog.Debug("Command Start")
	c.Start()
	return false, nil
}

func stop(_ []string, c *core.Core) (bool, error) {
	slog.Debug("Command Stop")
	c.Stop()
	return false, nil
}

func quit(_ []string, c *core.Core) (bool, error) {
	c.Stop()
	return true, nil
}

// Handle examine command: examine <addr> [count].
func examine(args []string, c *core.Core) (bool, error) {
	slog.Debug("Command Examine")
	if len(args) < 1 {
		return false, errors.New("examine needs an address")
	}
	addr, err := strconv.ParseUint(strings.TrimPrefix(args[0], "0x"), 16, 64)
	if err != nil {
		return false, err
	}
	count := 1
	if len(args) > 1 {
		count, err = strconv.Atoi(args[1])
		if err != nil {
			return false, err
		}
	}
	for i := 0; i < count; i++ {
		v, err := c.Memory().Read64(addr + uint64(i)*8)
		if err != nil {
			return false, err
		}
		fmt.Printf("%016x: %016x\n", addr+uint64(i)*8, v)
	}
	return false, nil
}

// Handle deposit command: deposit <addr> <value>.
func deposit(args []string, c *core.Core) (bool, error) {
	slog.Debug("Command Deposit")
	if len(args) < 2 {
		return false, errors.New("deposit needs an address and a value")
	}
	addr, err := strconv.ParseUint(strings.TrimPrefix(args[0], "0x"), 16, 64)
	if err != nil {
		return false, err
	}
	val, err := strconv.ParseUint(strings.TrimPrefix(args[1], "0x"), 16, 64)
	if err != nil {
		return false, err
	}
	return false, c.Memory().Write64(addr, val)
}

// Show guest registers of every hart.
func regs(_ []string, c *core.Core) (bool, error) {
	for n, h := range c.Harts() {
		fmt.Printf("hart %d pc=%016x\n", n, h.CPU.PC())
		for i := 0; i < 32; i += 4 {
			fmt.Printf("  x%-2d %016x  x%-2d %016x  x%-2d %016x  x%-2d %016x\n",
				i, h.CPU.Reg(i), i+1, h.CPU.Reg(i+1),
				i+2, h.CPU.Reg(i+2), i+3, h.CPU.Reg(i+3))
		}
	}
	return false, nil
}

// Show JIT statistics.
func stats(_ []string, c *core.Core) (bool, error) {
	fmt.Printf("flushes: %d\n", c.Engine().Flushes())
	for n, h := range c.Harts() {
		s := h.Vcpu.Stats
		fmt.Printf("hart %d: execs=%d lookups=%d translations=%d chains=%d exit-hits=%d\n",
			n, s.Execs, s.HashLookups, s.Translations, s.ChainPatches, s.ExitHits)
	}
	return false, nil
}
