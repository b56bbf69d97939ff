// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/ezrec/rv32i/cpu"
	"github.com/ezrec/rv32i/emulator"
	"github.com/ezrec/rv32i/io"
	"github.com/ezrec/rv32i/translate"
)

var f = translate.From

func parseDump(text string) (start uint32, length uint32, err error) {
	lhs, rhs, ok := strings.Cut(text, ":")
	if !ok {
		err = errors.New(f("expected start:length"))
		return
	}

	value, err := strconv.ParseUint(lhs, 0, 32)
	if err != nil {
		return
	}
	start = uint32(value)

	value, err = strconv.ParseUint(rhs, 0, 32)
	if err != nil {
		return
	}
	length = uint32(value)

	return
}

func run() (code int) {
	var elfFile string
	var asmFile string
	var verbose bool
	var lifo bool
	var raw bool
	var loop int
	var dump string
	var showMap bool

	flag.StringVar(&elfFile, "e", "", "ELF executable to run")
	flag.StringVar(&asmFile, "a", "", ".s assembly file to run")
	flag.BoolVar(&verbose, "v", false, "Verbose mode")
	flag.BoolVar(&lifo, "lifo", false, "UART receive buffer pops newest byte first")
	flag.BoolVar(&raw, "raw", false, "Raw terminal input")
	flag.IntVar(&loop, "loop", cpu.LOOP_THRESHOLD, "Loop guard threshold, 0 to disable")
	flag.StringVar(&dump, "dump", "", "Dump memory start:length after the run")
	flag.BoolVar(&showMap, "map", false, "Print the memory map after the run")

	flag.Parse()

	if flag.NArg() != 0 {
		log.Fatalf("%v: Unknown arguments: %v", os.Args[0], flag.Args())
	}

	if (len(elfFile) == 0) == (len(asmFile) == 0) {
		log.Fatalf("%v: %v", os.Args[0], f("exactly one of -e or -a is required"))
	}

	var dumpStart, dumpLength uint32
	if len(dump) != 0 {
		var err error
		dumpStart, dumpLength, err = parseDump(dump)
		if err != nil {
			log.Fatalf("-dump %v: %v", dump, err)
		}
	}

	tx := io.NewTransmitter(os.Stdout)
	defer tx.Close()

	emu := emulator.NewEmulator(tx)
	emu.Verbose = verbose
	emu.Cpu.LoopThreshold = loop
	if lifo {
		emu.Uart.SetOrder(io.RX_ORDER_LIFO)
	}

	var entry uint32
	if len(asmFile) != 0 {
		inf, err := os.Open(asmFile)
		if err != nil {
			log.Fatalf("%v: %v", asmFile, err)
		}
		prog, err := emu.Assemble(inf)
		inf.Close()
		if err != nil {
			log.Fatalf("%v: %v", asmFile, err)
		}
		entry = prog.Entry
	} else {
		inf, err := os.Open(elfFile)
		if err != nil {
			log.Fatalf("%v: %v", elfFile, err)
		}
		entry, err = emu.LoadElf(inf)
		inf.Close()
		if err != nil {
			log.Fatalf("%v: %v", elfFile, err)
		}
	}

	emu.Input = os.Stdin
	if raw {
		fd := int(os.Stdin.Fd())
		if term.IsTerminal(fd) {
			state, err := term.MakeRaw(fd)
			if err != nil {
				log.Fatalf("%v: %v", os.Args[0], err)
			}
			defer term.Restore(fd, state)
		}
		emu.RawInput = true
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)
	go func() {
		if _, ok := <-interrupt; ok {
			err := emu.PowerOff()
			if err != nil && !errors.Is(err, emulator.ErrNotRunning) {
				log.Printf("%v: %v", os.Args[0], err)
			}
		}
	}()

	err := emu.Run(entry)

	var exit *cpu.ErrExit
	switch {
	case errors.As(err, &exit):
		code = int(exit.Code)
	case err != nil:
		log.Printf("%v", err)
		fmt.Fprint(os.Stderr, emu.State())
		code = 1
	}

	if showMap {
		fmt.Fprint(os.Stderr, emu.MemoryMap())
	}

	if dumpLength != 0 {
		text, derr := emu.Dump(dumpStart, dumpLength)
		if derr != nil {
			log.Printf("-dump %v: %v", dump, derr)
		} else {
			fmt.Fprint(os.Stderr, text)
		}
	}

	if verbose {
		log.Printf("%v: %v", f("exit status"), code)
	}

	return
}

func main() {
	os.Exit(run())
}
