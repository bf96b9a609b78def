/*
 * rv64jit - RISC-V 64 user mode dynamic binary translator.
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

package main

import (
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	getopt "github.com/pborman/getopt/v2"
	reader "github.com/rcornwell/rv64jit/command/reader"
	core "github.com/rcornwell/rv64jit/emu/core"
	logger "github.com/rcornwell/rv64jit/util/logger"
)

var Logger *slog.Logger

func main() {
	optImage := getopt.StringLong("image", 'i', "", "Raw guest image to load")
	optAddr := getopt.StringLong("addr", 'a', "0", "Load address (hex)")
	optEntry := getopt.StringLong("entry", 'e', "", "Entry point (hex, defaults to load address)")
	optHarts := getopt.IntLong("harts", 'c', 1, "Number of harts")
	optMem := getopt.IntLong("mem", 'm', 64, "Guest memory in MB")
	optJit := getopt.IntLong("jit", 'j', 32, "JIT buffer in MB")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optDebug := getopt.BoolLong("debug", 'd', "Echo debug records")
	optMonitor := getopt.BoolLong("monitor", 'M', "Interactive monitor")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var file *os.File
	if *optLogFile != "" {
		file, _ = os.Create(*optLogFile)
	}
	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelDebug)
	Logger = slog.New(logger.NewHandler(file,
		&slog.HandlerOptions{Level: programLevel, AddSource: false}, *optDebug))
	slog.SetDefault(Logger)

	Logger.Info("rv64jit started")
	if *optImage == "" {
		Logger.Error("Please specify a guest image with -i")
		os.Exit(0)
	}

	image, err := os.ReadFile(*optImage)
	if err != nil {
		Logger.Error(err.Error())
		os.Exit(1)
	}

	loadAddr, err := strconv.ParseUint(*optAddr, 16, 64)
	if err != nil {
		Logger.Error("bad load address: " + *optAddr)
		os.Exit(1)
	}
	entry := loadAddr
	if *optEntry != "" {
		entry, err = strconv.ParseUint(*optEntry, 16, 64)
		if err != nil {
			Logger.Error("bad entry point: " + *optEntry)
			os.Exit(1)
		}
	}

	machine, err := core.New(core.Config{
		MemSize: *optMem * 1024 * 1024,
		BufSize: *optJit * 1024 * 1024,
		Harts:   *optHarts,
	})
	if err != nil {
		Logger.Error(err.Error())
		os.Exit(1)
	}
	defer machine.Shutdown()

	if err := machine.Memory().LoadImage(loadAddr, image); err != nil {
		Logger.Error(err.Error())
		os.Exit(1)
	}
	for _, h := range machine.Harts() {
		h.CPU.SetPC(entry)
	}

	// Shut down cleanly on SIGINT or SIGTERM.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		machine.Stop()
		os.Exit(0)
	}()

	if *optMonitor {
		reader.ConsoleReader(machine)
		return
	}

	machine.Start()
	machine.Wait()
}
