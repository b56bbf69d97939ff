// Copyright 2024, Jason S. McMullan <jason.mcmullan@gmail.com>

package emulator

import (
	"errors"
	"fmt"
	stdio "io"
	"iter"
	"log"
	"sync"
	"time"

	"github.com/ezrec/rv32i/cpu"
	"github.com/ezrec/rv32i/internal"
	"github.com/ezrec/rv32i/io"
	"github.com/ezrec/rv32i/loader"
	"github.com/ezrec/rv32i/memory"
	"github.com/ezrec/rv32i/task"
)

// STOP_TIMEOUT is the default time PowerOff waits for the input feeder.
const STOP_TIMEOUT = 2 * time.Second

// Emulator state. CPU + memory + UART + tasks, and the goroutines that
// run them.
type Emulator struct {
	Verbose bool         // If set, enables verbose logging.
	Program *cpu.Program // Listing of the loaded program, if assembled.

	Cpu    *cpu.Cpu        // CPU engine.
	Memory *memory.Manager // Memory manager, with the UART behind it.
	Uart   *io.Uart        // UART device.
	Tasks  *task.Manager   // Cooperative task manager.

	Input       stdio.Reader  // Host input fed to the UART while running. May be nil.
	RawInput    bool          // Feed input bytes as they arrive, CR translated to LF.
	StopTimeout time.Duration // Feeder stop timeout used by PowerOff.

	mu        sync.Mutex // Held for each instruction, and for introspection.
	running   bool
	stop      chan struct{}
	done      chan struct{}
	halt      error
	feeder    *io.Feeder
	feederErr error
}

// NewEmulator creates a new emulator, with UART output sent to sink.
func NewEmulator(sink io.Sink) (emu *Emulator) {
	uart := io.NewUart(memory.UART_BASE, sink)
	mm := memory.NewManager(memory.NewMemory(memory.MEMORY_SIZE), uart)
	proc := cpu.NewCpu(mm)

	emu = &Emulator{
		Cpu:         proc,
		Memory:      mm,
		Uart:        uart,
		Tasks:       task.NewManager(proc, mm),
		StopTimeout: STOP_TIMEOUT,
	}

	return
}

var _ task.Processor = (*cpu.Cpu)(nil)

// Defines returns an iterator over all of the defines
func (emu *Emulator) Defines() iter.Seq2[string, string] {
	return internal.IterSeq2Concat(
		memory.Defines(),
		emu.Uart.Defines(),
		emu.Cpu.Defines(),
	)
}

func (emu *Emulator) setVerbose() {
	emu.Cpu.Verbose = emu.Verbose
	emu.Memory.Verbose = emu.Verbose
	emu.Tasks.Verbose = emu.Verbose
}

// Assemble parses assembly source with the emulator defines, and loads
// the resulting program.
func (emu *Emulator) Assemble(input stdio.Reader) (prog *cpu.Program, err error) {
	asm := &cpu.Assembler{Verbose: emu.Verbose}
	for key, value := range emu.Defines() {
		asm.Predefine(key, value)
	}

	prog, err = asm.Parse(input)
	if err != nil {
		return
	}

	err = emu.LoadProgram(prog)
	return
}

// LoadProgram places an assembled program image in memory.
func (emu *Emulator) LoadProgram(prog *cpu.Program) (err error) {
	emu.mu.Lock()
	defer emu.mu.Unlock()

	err = emu.Memory.LoadSegment(prog.Origin, prog.Binary())
	if err != nil {
		return
	}

	emu.Program = prog
	emu.Cpu.InvalidateCache()
	return
}

// LoadElf loads an ELF executable, returning its mapped entry point.
func (emu *Emulator) LoadElf(r stdio.ReaderAt) (entry uint32, err error) {
	emu.mu.Lock()
	defer emu.mu.Unlock()

	ld := &loader.Loader{Verbose: emu.Verbose}
	entry, err = ld.Load(r, emu.Memory)
	if err != nil {
		return
	}

	emu.Program = nil
	emu.Cpu.InvalidateCache()
	return
}

// Reset the CPU, UART and tasks, and return the heap and stack pointers
// to their initial values. Memory contents are kept.
func (emu *Emulator) Reset() (err error) {
	emu.mu.Lock()
	defer emu.mu.Unlock()

	if emu.running {
		err = ErrAlreadyRunning
		return
	}

	emu.Cpu.Reset()
	emu.Memory.Reset()
	emu.Uart.Reset()
	emu.Tasks.Reset()
	emu.halt = nil

	return
}

// step executes a single instruction, servicing yields. Must hold emu.mu.
func (emu *Emulator) step() (err error) {
	pc := emu.Cpu.Pc

	err = emu.Cpu.Tick()
	if errors.Is(err, cpu.ErrYield) {
		emu.Tasks.Yield()
		err = nil
	}

	if err != nil {
		rt := &ErrRuntime{Pc: pc, Err: err}
		if emu.Program != nil {
			if dbg := emu.Program.Debug(pc); dbg.Opcode != nil {
				rt.LineNo = dbg.LineNo
			}
		}
		err = rt
	}

	return
}

// Step executes one instruction while powered off.
func (emu *Emulator) Step() (err error) {
	emu.mu.Lock()
	defer emu.mu.Unlock()

	if emu.running {
		err = ErrAlreadyRunning
		return
	}

	emu.setVerbose()
	return emu.step()
}

// PowerOn starts the CPU loop at entry and, if Input is set, the input
// feeder. When no task exists yet, one is created for entry.
func (emu *Emulator) PowerOn(entry uint32) (err error) {
	emu.mu.Lock()
	defer emu.mu.Unlock()

	if emu.running {
		err = ErrAlreadyRunning
		return
	}

	emu.setVerbose()

	if emu.Tasks.Count() == 0 {
		_, err = emu.Tasks.CreateTask(entry)
		if err != nil {
			return
		}
	} else {
		emu.Cpu.SetProgramCounter(entry)
	}

	emu.feeder = nil
	emu.feederErr = nil
	if emu.Input != nil {
		emu.feeder = io.NewFeeder(emu.Input, emu.Uart)
		emu.feeder.Translate = emu.RawInput
		emu.feeder.Verbose = emu.Verbose
		emu.feeder.Start()
	}

	emu.running = true
	emu.halt = nil
	emu.stop = make(chan struct{})
	emu.done = make(chan struct{})

	if emu.Verbose {
		log.Printf("emulator: power on at 0x%08x", entry)
	}

	go emu.run(emu.stop, emu.done, emu.feeder)

	return
}

func (emu *Emulator) run(stop, done chan struct{}, feeder *io.Feeder) {
	var halt error

	defer func() {
		var ferr error
		if feeder != nil {
			ferr = feeder.Stop(emu.StopTimeout)
			if ferr != nil {
				log.Printf("emulator: input: %v", ferr)
			}
		}

		emu.mu.Lock()
		emu.running = false
		emu.halt = halt
		emu.feederErr = ferr
		emu.mu.Unlock()

		if emu.Verbose {
			log.Printf("emulator: halted: %v", halt)
		}

		close(done)
	}()

	for {
		select {
		case <-stop:
			return
		default:
		}

		emu.mu.Lock()
		halt = emu.step()
		emu.mu.Unlock()

		if halt != nil {
			return
		}
	}
}

// PowerOff stops the CPU loop at the next instruction boundary, stops
// the input feeder, and waits for both. It reports ErrStopTimeout from
// the io package if the feeder could not be stopped.
func (emu *Emulator) PowerOff() (err error) {
	emu.mu.Lock()
	if !emu.running {
		emu.mu.Unlock()
		err = ErrNotRunning
		return
	}
	close(emu.stop)
	done := emu.done
	emu.mu.Unlock()

	<-done

	emu.mu.Lock()
	err = emu.feederErr
	emu.mu.Unlock()

	if emu.Verbose {
		log.Printf("emulator: power off")
	}

	return
}

// Running returns true while the CPU loop is active.
func (emu *Emulator) Running() bool {
	emu.mu.Lock()
	defer emu.mu.Unlock()

	return emu.running
}

// Wait blocks until the CPU loop halts, and returns the reason: a
// *ErrRuntime wrapping *cpu.ErrExit, cpu.ErrLoopGuard or a fatal trap, or
// nil when powered off.
func (emu *Emulator) Wait() (err error) {
	emu.mu.Lock()
	done := emu.done
	emu.mu.Unlock()

	if done == nil {
		err = ErrNotRunning
		return
	}

	<-done

	emu.mu.Lock()
	err = emu.halt
	emu.mu.Unlock()

	return
}

// Run powers on at entry, and waits for the CPU to halt.
func (emu *Emulator) Run(entry uint32) (err error) {
	err = emu.PowerOn(entry)
	if err != nil {
		return
	}

	return emu.Wait()
}

// Register returns the value of a general purpose register.
func (emu *Emulator) Register(index int) (value int32, err error) {
	if index < 0 || index >= len(emu.Cpu.Register) {
		err = fmt.Errorf("%w: %d", ErrRegisterIndex, index)
		return
	}

	emu.mu.Lock()
	defer emu.mu.Unlock()

	value = emu.Cpu.Registers()[index]
	return
}

// Pc returns the address of the next instruction.
func (emu *Emulator) Pc() uint32 {
	emu.mu.Lock()
	defer emu.mu.Unlock()

	return emu.Cpu.ProgramCounter()
}

// Ticks returns the retired instructions since a reset.
func (emu *Emulator) Ticks() int {
	emu.mu.Lock()
	defer emu.mu.Unlock()

	return emu.Cpu.Ticks
}

// State returns the CPU register table.
func (emu *Emulator) State() string {
	emu.mu.Lock()
	defer emu.mu.Unlock()

	return emu.Cpu.String()
}

// MemoryMap returns the memory layout summary.
func (emu *Emulator) MemoryMap() string {
	emu.mu.Lock()
	defer emu.mu.Unlock()

	return emu.Memory.MemoryMap()
}

// Dump returns a hex and ASCII table of [start, start+length).
func (emu *Emulator) Dump(start, length uint32) (text string, err error) {
	emu.mu.Lock()
	defer emu.mu.Unlock()

	return emu.Memory.Dump(start, length)
}
