package cpu

import (
	"errors"
	"fmt"
	"iter"
	"log"

	"github.com/ezrec/rv32i/internal"
	"github.com/ezrec/rv32i/memory"
)

// Instruction cache geometry.
const ICACHE_SIZE = 1024

// LOOP_THRESHOLD is the default number of times the PC may repeat
// before the loop guard halts the CPU.
const LOOP_THRESHOLD = 1000

// Syscall numbers, passed in a7.
const (
	SYS_EXIT  = 93
	SYS_YIELD = 124
)

// ABI register numbers used by the syscall convention.
const (
	REG_A0 = 10
	REG_A7 = 17
)

// RegisterName holds the ABI name of each register.
var RegisterName = [32]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

var _cpu_defines = map[string]string{
	"SYS_EXIT":                  fmt.Sprintf("%d", SYS_EXIT),
	"SYS_YIELD":                 fmt.Sprintf("%d", SYS_YIELD),
	"MSTATUS_MIE":               fmt.Sprintf("%#x", MSTATUS_MIE),
	"MSTATUS_MPIE":              fmt.Sprintf("%#x", MSTATUS_MPIE),
	"MSTATUS_MPP":               fmt.Sprintf("%#x", MSTATUS_MPP),
	"MSTATUS_MPP_SHIFT":         fmt.Sprintf("%d", MSTATUS_MPP_SHIFT),
	"CAUSE_FETCH_MISALIGNED":    fmt.Sprintf("%d", CAUSE_FETCH_MISALIGNED),
	"CAUSE_FETCH_FAULT":         fmt.Sprintf("%d", CAUSE_FETCH_FAULT),
	"CAUSE_ILLEGAL_INSTRUCTION": fmt.Sprintf("%d", CAUSE_ILLEGAL_INSTRUCTION),
	"CAUSE_LOAD_MISALIGNED":     fmt.Sprintf("%d", CAUSE_LOAD_MISALIGNED),
	"CAUSE_LOAD_FAULT":          fmt.Sprintf("%d", CAUSE_LOAD_FAULT),
	"CAUSE_STORE_MISALIGNED":    fmt.Sprintf("%d", CAUSE_STORE_MISALIGNED),
	"CAUSE_STORE_FAULT":         fmt.Sprintf("%d", CAUSE_STORE_FAULT),
}

type icacheLine struct {
	valid bool
	tag   uint32
	priv  memory.Privilege // Lowest privilege that has fetched this word.
	word  uint32
}

// Cpu is the simulation context for an RV32I hart.
type Cpu struct {
	Verbose bool // Set to enable verbose logging.

	Memory *memory.Manager // Memory, with the UART behind it.

	Register  [32]int32        // General purpose registers. x0 reads as zero.
	Pc        uint32           // Program counter.
	Privilege memory.Privilege // Current privilege mode.
	Csr       Csr              // Control and status registers.

	LoopThreshold int // Repeats of one PC before ErrLoopGuard. Zero disables.

	Ticks     int // Retired instructions.
	Traps     int // Exceptions taken.
	Anomalies int // Undefined encodings executed as no-ops.
	Hits      int // Instruction cache hits.
	Misses    int // Instruction cache misses.

	lastPc    uint32
	loopCount int
	inst      Instruction
	icache    [ICACHE_SIZE]icacheLine
}

// NewCpu creates a CPU attached to a memory manager.
func NewCpu(mm *memory.Manager) (cpu *Cpu) {
	cpu = &Cpu{
		Memory:        mm,
		LoopThreshold: LOOP_THRESHOLD,
	}
	cpu.Reset()

	return
}

// Defines for the cpu
func (cpu *Cpu) Defines() iter.Seq2[string, string] {
	return internal.SortedDefines(_cpu_defines)
}

// Reset the CPU state.
// - Clears the registers and CSRs.
// - Zeros statistics counters.
// - Drops the instruction cache.
// - Enters machine mode at PC 0.
func (cpu *Cpu) Reset() {
	if cpu.Verbose {
		log.Printf("cpu: reset")
	}

	clear(cpu.Register[:])
	cpu.Pc = 0
	cpu.Privilege = memory.PRIVILEGE_MACHINE
	cpu.Csr = Csr{}
	cpu.Ticks = 0
	cpu.Traps = 0
	cpu.Anomalies = 0
	cpu.Hits = 0
	cpu.Misses = 0
	cpu.InvalidateCache()
	cpu.resetLoopGuard()
}

func (cpu *Cpu) resetLoopGuard() {
	cpu.lastPc = cpu.Pc
	cpu.loopCount = -1
}

// InvalidateCache drops every instruction cache line. Call after loading
// a program.
func (cpu *Cpu) InvalidateCache() {
	for n := range cpu.icache {
		cpu.icache[n].valid = false
	}
}

// SetProgramCounter sets the entry point for the next fetch.
func (cpu *Cpu) SetProgramCounter(pc uint32) {
	cpu.Pc = pc
	cpu.resetLoopGuard()
}

// ProgramCounter returns the address of the next fetch.
func (cpu *Cpu) ProgramCounter() uint32 {
	return cpu.Pc
}

// Registers returns a snapshot of the register file.
func (cpu *Cpu) Registers() (regs [32]int32) {
	regs = cpu.Register
	regs[0] = 0
	return
}

// SetRegisters restores the register file from a snapshot.
func (cpu *Cpu) SetRegisters(regs [32]int32) {
	cpu.Register = regs
	cpu.Register[0] = 0
}

// String returns the current CPU state as a string.
func (cpu *Cpu) String() (text string) {
	text += fmt.Sprintf("% 8s: %08x\n", "pc", cpu.Pc)
	text += fmt.Sprintf("% 8s: %v\n", "priv", cpu.Privilege)
	for n := range cpu.Register {
		name := fmt.Sprintf("x%d/%s", n, RegisterName[n])
		val := uint32(cpu.reg(uint32(n)))
		text += fmt.Sprintf("% 8s: %04x_%04x", name, val>>16, val&0xffff)
		if n%4 == 3 {
			text += "\n"
		} else {
			text += "  "
		}
	}
	for _, csr := range []struct {
		name  string
		value uint32
	}{
		{"mstatus", cpu.Csr.Mstatus},
		{"mtvec", cpu.Csr.Mtvec},
		{"mepc", cpu.Csr.Mepc},
		{"mcause", cpu.Csr.Mcause},
		{"mtval", cpu.Csr.Mtval},
	} {
		text += fmt.Sprintf("% 8s: %04x_%04x\n", csr.name, csr.value>>16, csr.value&0xffff)
	}

	return
}

func (cpu *Cpu) reg(index uint32) int32 {
	if index == 0 {
		return 0
	}
	return cpu.Register[index]
}

func (cpu *Cpu) setReg(index uint32, value int32) {
	if index != 0 {
		cpu.Register[index] = value
	}
}

// fetch reads the instruction word at pc through the instruction cache.
func (cpu *Cpu) fetch(pc uint32) (word uint32, err error) {
	if pc%4 != 0 {
		err = &ErrTrap{Cause: CAUSE_FETCH_MISALIGNED, Value: pc, Err: memory.ErrMisaligned}
		return
	}

	if memory.IsUart(pc) {
		err = &ErrTrap{Cause: CAUSE_FETCH_FAULT, Value: pc, Err: ErrFetchMmio}
		return
	}

	line := &cpu.icache[(pc/4)%ICACHE_SIZE]
	if line.valid && line.tag == pc && cpu.Privilege >= line.priv {
		cpu.Hits++
		word = line.word
		return
	}

	cpu.Misses++
	word, err = cpu.Memory.ReadWord(pc, cpu.Privilege)
	if err != nil {
		err = &ErrTrap{Cause: CAUSE_FETCH_FAULT, Value: pc, Err: err}
		return
	}

	*line = icacheLine{valid: true, tag: pc, priv: cpu.Privilege, word: word}
	return
}

// Tick executes a single CPU instruction cycle.
//
// Exceptions are delivered to the trap handler and do not return an
// error. Tick returns *ErrExit on the exit syscall, ErrYield on the yield
// syscall, ErrLoopGuard when the PC stops advancing, and *ErrTrapLoop when
// the trap handler itself faults on fetch.
func (cpu *Cpu) Tick() (err error) {
	if cpu.Pc == cpu.lastPc {
		cpu.loopCount++
		if cpu.LoopThreshold > 0 && cpu.loopCount > cpu.LoopThreshold {
			if cpu.Verbose {
				log.Printf("cpu: loop guard at 0x%08x", cpu.Pc)
			}
			err = ErrLoopGuard
			return
		}
	} else {
		cpu.lastPc = cpu.Pc
		cpu.loopCount = 0
	}

	pc := cpu.Pc

	word, err := cpu.fetch(pc)
	if err == nil {
		cpu.Pc = pc + 4
		if cpu.Verbose {
			log.Printf("%08x: %08x", pc, word)
		}
		cpu.inst.decode(word)
		err = cpu.execute(pc, &cpu.inst)
	} else if pc == cpu.Csr.Mtvec&^3 {
		err = &ErrTrapLoop{Mtvec: cpu.Csr.Mtvec, Err: err}
		return
	}

	var trap *ErrTrap
	if errors.As(err, &trap) {
		cpu.Trap(trap.Cause, trap.Value, pc)
		err = nil
		return
	}

	cpu.Ticks++
	return
}

// illegal returns an illegal instruction trap for the current word.
func illegal(inst *Instruction, err error) error {
	return &ErrTrap{Cause: CAUSE_ILLEGAL_INSTRUCTION, Value: inst.Word, Err: err}
}

// anomaly executes an undefined encoding as a no-op.
func (cpu *Cpu) anomaly(pc uint32, inst *Instruction) {
	cpu.Anomalies++
	if cpu.Verbose {
		log.Printf("cpu: 0x%08x: undefined %v, ignored", pc, inst)
	}
}

// memoryTrap converts a memory layer failure into an exception.
func memoryTrap(err error, address uint32, misaligned, fault Cause) error {
	cause := fault
	if errors.Is(err, memory.ErrMisaligned) {
		cause = misaligned
	}
	return &ErrTrap{Cause: cause, Value: address, Err: err}
}

// execute executes a single decoded instruction. pc is the address of
// the instruction; cpu.Pc already points past it.
func (cpu *Cpu) execute(pc uint32, inst *Instruction) (err error) {
	switch inst.Opcode {
	case OP_LUI:
		cpu.setReg(inst.Rd, inst.ImmU)
	case OP_AUIPC:
		cpu.setReg(inst.Rd, int32(pc+uint32(inst.ImmU)))
	case OP_JAL:
		cpu.setReg(inst.Rd, int32(pc+4))
		cpu.Pc = pc + uint32(inst.ImmJ)
	case OP_JALR:
		if inst.Funct3 != 0 {
			cpu.anomaly(pc, inst)
			return
		}
		target := uint32(cpu.reg(inst.Rs1)+inst.ImmI) &^ 1
		cpu.setReg(inst.Rd, int32(pc+4))
		cpu.Pc = target
	case OP_BRANCH:
		err = cpu.branch(pc, inst)
	case OP_LOAD:
		err = cpu.load(pc, inst)
	case OP_STORE:
		err = cpu.store(pc, inst)
	case OP_IMM:
		cpu.aluImm(pc, inst)
	case OP_REG:
		cpu.aluReg(pc, inst)
	case OP_FENCE:
		if inst.Funct3 == F3_FENCE_I {
			cpu.InvalidateCache()
		}
	case OP_SYSTEM:
		err = cpu.system(pc, inst)
	default:
		cpu.anomaly(pc, inst)
	}

	return
}

func (cpu *Cpu) branch(pc uint32, inst *Instruction) (err error) {
	a := cpu.reg(inst.Rs1)
	b := cpu.reg(inst.Rs2)

	var taken bool
	switch inst.Funct3 {
	case F3_BEQ:
		taken = a == b
	case F3_BNE:
		taken = a != b
	case F3_BLT:
		taken = a < b
	case F3_BGE:
		taken = a >= b
	case F3_BLTU:
		taken = uint32(a) < uint32(b)
	case F3_BGEU:
		taken = uint32(a) >= uint32(b)
	default:
		cpu.anomaly(pc, inst)
		return
	}

	if taken {
		cpu.Pc = pc + uint32(inst.ImmB)
	}

	return
}

func (cpu *Cpu) load(pc uint32, inst *Instruction) (err error) {
	virtual := uint32(cpu.reg(inst.Rs1) + inst.ImmI)
	address := memory.MapAddress(virtual)

	var value int32
	switch inst.Funct3 {
	case F3_LB:
		var v uint8
		v, err = cpu.Memory.ReadByte(address, cpu.Privilege)
		value = int32(int8(v))
	case F3_LH:
		var v uint16
		v, err = cpu.Memory.ReadHalfWord(address, cpu.Privilege)
		value = int32(int16(v))
	case F3_LW:
		var v uint32
		v, err = cpu.Memory.ReadWord(address, cpu.Privilege)
		value = int32(v)
	case F3_LBU:
		var v uint8
		v, err = cpu.Memory.ReadByte(address, cpu.Privilege)
		value = int32(v)
	case F3_LHU:
		var v uint16
		v, err = cpu.Memory.ReadHalfWord(address, cpu.Privilege)
		value = int32(v)
	default:
		cpu.anomaly(pc, inst)
		return
	}

	if err != nil {
		err = memoryTrap(err, virtual, CAUSE_LOAD_MISALIGNED, CAUSE_LOAD_FAULT)
		return
	}

	cpu.setReg(inst.Rd, value)
	return
}

func (cpu *Cpu) store(pc uint32, inst *Instruction) (err error) {
	virtual := uint32(cpu.reg(inst.Rs1) + inst.ImmS)
	address := memory.MapAddress(virtual)
	value := uint32(cpu.reg(inst.Rs2))

	switch inst.Funct3 {
	case F3_SB:
		err = cpu.Memory.WriteByte(address, uint8(value), cpu.Privilege)
	case F3_SH:
		err = cpu.Memory.WriteHalfWord(address, uint16(value), cpu.Privilege)
	case F3_SW:
		err = cpu.Memory.WriteWord(address, value, cpu.Privilege)
	default:
		cpu.anomaly(pc, inst)
		return
	}

	if err != nil {
		err = memoryTrap(err, virtual, CAUSE_STORE_MISALIGNED, CAUSE_STORE_FAULT)
		return
	}

	// Keep the instruction cache coherent with stores.
	line := &cpu.icache[(address/4)%ICACHE_SIZE]
	if line.tag == address&^3 {
		line.valid = false
	}

	return
}

// alu performs the operation selected by funct3 on a and b. alt selects
// SUB and SRA.
func alu(funct3 uint32, alt bool, a, b int32) (value int32) {
	switch funct3 {
	case F3_ADD:
		if alt {
			value = a - b
		} else {
			value = a + b
		}
	case F3_SLL:
		value = int32(uint32(a) << (uint32(b) & 0x1f))
	case F3_SLT:
		if a < b {
			value = 1
		}
	case F3_SLTU:
		if uint32(a) < uint32(b) {
			value = 1
		}
	case F3_XOR:
		value = a ^ b
	case F3_SRL:
		if alt {
			value = a >> (uint32(b) & 0x1f)
		} else {
			value = int32(uint32(a) >> (uint32(b) & 0x1f))
		}
	case F3_OR:
		value = a | b
	case F3_AND:
		value = a & b
	}

	return
}

func (cpu *Cpu) aluImm(pc uint32, inst *Instruction) {
	alt := false
	imm := inst.ImmI

	switch inst.Funct3 {
	case F3_SLL:
		if inst.Funct7 != F7_BASE {
			cpu.anomaly(pc, inst)
			return
		}
		imm = int32(inst.Shamt())
	case F3_SRL:
		switch inst.Funct7 {
		case F7_BASE:
		case F7_ALT:
			alt = true
		default:
			cpu.anomaly(pc, inst)
			return
		}
		imm = int32(inst.Shamt())
	}

	cpu.setReg(inst.Rd, alu(inst.Funct3, alt, cpu.reg(inst.Rs1), imm))
}

func (cpu *Cpu) aluReg(pc uint32, inst *Instruction) {
	alt := false

	switch inst.Funct7 {
	case F7_BASE:
	case F7_ALT:
		if inst.Funct3 != F3_ADD && inst.Funct3 != F3_SRL {
			cpu.anomaly(pc, inst)
			return
		}
		alt = true
	default:
		cpu.anomaly(pc, inst)
		return
	}

	cpu.setReg(inst.Rd, alu(inst.Funct3, alt, cpu.reg(inst.Rs1), cpu.reg(inst.Rs2)))
}

func (cpu *Cpu) system(pc uint32, inst *Instruction) (err error) {
	switch inst.Funct3 {
	case F3_PRIV:
		switch inst.Word {
		case WORD_ECALL:
			switch cpu.reg(REG_A7) {
			case SYS_EXIT:
				err = &ErrExit{Code: cpu.reg(REG_A0)}
			case SYS_YIELD:
				err = ErrYield
			}
		case WORD_EBREAK:
			if cpu.reg(REG_A7) == SYS_EXIT {
				err = &ErrExit{Code: cpu.reg(REG_A0)}
			}
		case WORD_MRET:
			if cpu.Privilege != memory.PRIVILEGE_MACHINE {
				err = illegal(inst, ErrPrivileged)
				return
			}
			cpu.mret()
		case WORD_WFI:
		default:
			cpu.anomaly(pc, inst)
		}
	case F3_CSRRW, F3_CSRRS, F3_CSRRC, F3_CSRRWI, F3_CSRRSI, F3_CSRRCI:
		err = cpu.csrOp(inst)
	default:
		cpu.anomaly(pc, inst)
	}

	return
}

// csrOp reads a CSR into rd, then writes the modified value back.
func (cpu *Cpu) csrOp(inst *Instruction) (err error) {
	csr := inst.Csr()

	var src uint32
	if inst.Funct3 >= F3_CSRRWI {
		src = inst.Rs1
	} else {
		src = uint32(cpu.reg(inst.Rs1))
	}

	op := inst.Funct3 & 3
	write := op == F3_CSRRW || inst.Rs1 != 0

	err = cpu.csrCheck(csr, write)
	if err != nil {
		err = illegal(inst, err)
		return
	}

	old, err := cpu.CsrRead(csr)
	if err != nil {
		err = illegal(inst, err)
		return
	}

	if write {
		var value uint32
		switch op {
		case F3_CSRRW:
			value = src
		case F3_CSRRS:
			value = old | src
		case F3_CSRRC:
			value = old &^ src
		}
		err = cpu.CsrWrite(csr, value)
		if err != nil {
			err = illegal(inst, err)
			return
		}
	}

	cpu.setReg(inst.Rd, int32(old))
	return
}
