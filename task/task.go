// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package task

import (
	"errors"
	"fmt"
	"log"

	"github.com/ezrec/rv32i/memory"
)

// TASK_STACK_SIZE is the stack region given to every task.
const TASK_STACK_SIZE = 4096

// REG_SP is the stack pointer register.
const REG_SP = 2

// Processor is the CPU state a task snapshot is taken from.
type Processor interface {
	Registers() [32]int32
	SetRegisters(regs [32]int32)
	ProgramCounter() uint32
	SetProgramCounter(pc uint32)
}

// Task is the saved context of a cooperative task.
type Task struct {
	Id        int
	Pc        uint32
	Registers [32]int32
	StackBase uint32 // Lowest address of the stack region.
	StackSize uint32
	Active    bool
}

// StackTop returns the initial stack pointer of the task.
func (task *Task) StackTop() uint32 {
	return task.StackBase + task.StackSize
}

func (task *Task) String() string {
	state := "idle"
	if task.Active {
		state = "active"
	}
	return fmt.Sprintf("task %d: pc 0x%08x stack 0x%08x-0x%08x %s",
		task.Id, task.Pc, task.StackBase, task.StackTop(), state)
}

// Manager schedules tasks round robin on a single processor. Only Yield
// switches tasks.
type Manager struct {
	Verbose bool

	processor Processor
	memory    *memory.Manager
	tasks     []*Task
	current   int
}

// NewManager creates a task manager for a processor, allocating stacks
// from mm.
func NewManager(processor Processor, mm *memory.Manager) (tm *Manager) {
	tm = &Manager{
		processor: processor,
		memory:    mm,
	}

	return
}

// Reset forgets every task. Stack regions are not returned; reset the
// memory manager for that.
func (tm *Manager) Reset() {
	tm.tasks = nil
	tm.current = 0
}

// CreateTask creates a task starting at entry, with its own stack. The
// first task created is loaded into the processor immediately.
func (tm *Manager) CreateTask(entry uint32) (id int, err error) {
	base, err := tm.memory.ReserveStack(TASK_STACK_SIZE)
	if err != nil {
		if errors.Is(err, memory.ErrOutOfMemory) {
			err = fmt.Errorf("%w: %w", ErrInsufficientMemory, err)
		}
		return
	}

	id = len(tm.tasks)
	task := &Task{
		Id:        id,
		Pc:        entry,
		StackBase: base,
		StackSize: TASK_STACK_SIZE,
	}
	task.Registers[REG_SP] = int32(task.StackTop())
	tm.tasks = append(tm.tasks, task)

	if tm.Verbose {
		log.Printf("task: create %v", task)
	}

	if id == 0 {
		tm.current = 0
		tm.restore(task)
	}

	return
}

func (tm *Manager) save(task *Task) {
	task.Registers = tm.processor.Registers()
	task.Pc = tm.processor.ProgramCounter()
	task.Active = false
}

func (tm *Manager) restore(task *Task) {
	tm.processor.SetRegisters(task.Registers)
	tm.processor.SetProgramCounter(task.Pc)
	task.Active = true
}

// Yield saves the running task and resumes the next one. With fewer than
// two tasks it does nothing.
func (tm *Manager) Yield() {
	if len(tm.tasks) < 2 {
		return
	}

	tm.save(tm.tasks[tm.current])
	tm.current = (tm.current + 1) % len(tm.tasks)
	next := tm.tasks[tm.current]
	tm.restore(next)

	if tm.Verbose {
		log.Printf("task: yield to %d at 0x%08x", next.Id, next.Pc)
	}
}

// Count returns the number of tasks.
func (tm *Manager) Count() int {
	return len(tm.tasks)
}

// Current returns the running task, or nil if there are none.
func (tm *Manager) Current() *Task {
	if len(tm.tasks) == 0 {
		return nil
	}
	return tm.tasks[tm.current]
}

// Task returns the task with the given id.
func (tm *Manager) Task(id int) (task *Task, err error) {
	if id < 0 || id >= len(tm.tasks) {
		err = fmt.Errorf("%w: %d", ErrTaskMissing, id)
		return
	}

	task = tm.tasks[id]
	return
}
