package cpu

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezrec/rv32i/io"
	"github.com/ezrec/rv32i/memory"
)

// USER_TEXT is the first text address reachable from user mode.
const USER_TEXT = memory.SUPERVISOR_END

func newTestCpu(t *testing.T, origin uint32, words ...uint32) (cpu *Cpu, sink *io.Buffer) {
	sink = &io.Buffer{}
	mm := memory.NewManager(memory.NewMemory(memory.MEMORY_SIZE), io.NewUart(memory.UART_BASE, sink))

	var bin []byte
	for _, word := range words {
		bin = binary.LittleEndian.AppendUint32(bin, word)
	}
	require.NoError(t, mm.LoadSegment(origin, bin))

	cpu = NewCpu(mm)
	cpu.SetProgramCounter(origin)
	return
}

func addi(rd, rs1 uint32, imm int32) uint32 {
	return MakeCodeI(OP_IMM, rd, F3_ADD, rs1, imm)
}

func tick(t *testing.T, cpu *Cpu, count int) {
	for range count {
		require.NoError(t, cpu.Tick())
	}
}

func TestCpu_Scenario(t *testing.T) {
	assert := assert.New(t)

	cpu, _ := newTestCpu(t, memory.TEXT_START,
		addi(1, 0, 5),
		addi(2, 1, 10),
	)

	tick(t, cpu, 2)

	assert.Equal(int32(5), cpu.Register[1])
	assert.Equal(int32(15), cpu.Register[2])
	assert.Equal(uint32(memory.TEXT_START+8), cpu.Pc)
	assert.Equal(2, cpu.Ticks)
}

func TestCpu_ZeroRegister(t *testing.T) {
	assert := assert.New(t)

	cpu, _ := newTestCpu(t, memory.TEXT_START,
		addi(0, 0, 5),
		MakeCodeU(OP_LUI, 0, 0x12345000),
		MakeCodeJ(OP_JAL, 0, 4),
		addi(1, 0, 1),
	)

	for range 4 {
		require.NoError(t, cpu.Tick())
		assert.Equal(int32(0), cpu.Registers()[0])
		assert.Equal(int32(0), cpu.reg(0))
	}
	assert.Equal(int32(1), cpu.Register[1])
}

func TestCpu_AluReg(t *testing.T) {
	assert := assert.New(t)

	table := [...]struct {
		name   string
		funct3 uint32
		funct7 uint32
		a, b   int32
		result int32
	}{
		{"add", F3_ADD, F7_BASE, 1, 2, 3},
		{"add wrap", F3_ADD, F7_BASE, 0x7fffffff, 1, -0x80000000},
		{"sub", F3_ADD, F7_ALT, 1, 2, -1},
		{"sll", F3_SLL, F7_BASE, 1, 33, 2},
		{"slt", F3_SLT, F7_BASE, -1, 1, 1},
		{"slt false", F3_SLT, F7_BASE, 1, -1, 0},
		{"sltu", F3_SLTU, F7_BASE, -1, 1, 0},
		{"sltu true", F3_SLTU, F7_BASE, 1, -1, 1},
		{"xor", F3_XOR, F7_BASE, 0x0f0f, 0x00ff, 0x0ff0},
		{"srl", F3_SRL, F7_BASE, -8, 1, 0x7ffffffc},
		{"sra", F3_SRL, F7_ALT, -8, 1, -4},
		{"or", F3_OR, F7_BASE, 0x0f00, 0x00f0, 0x0ff0},
		{"and", F3_AND, F7_BASE, 0x0ff0, 0x00ff, 0x00f0},
	}

	for _, entry := range table {
		cpu, _ := newTestCpu(t, memory.TEXT_START,
			MakeCodeR(OP_REG, 3, entry.funct3, 1, 2, entry.funct7),
		)
		cpu.Register[1] = entry.a
		cpu.Register[2] = entry.b
		require.NoError(t, cpu.Tick(), entry.name)
		assert.Equal(entry.result, cpu.Register[3], entry.name)
		assert.Equal(0, cpu.Anomalies, entry.name)
	}
}

func TestCpu_AluImm(t *testing.T) {
	assert := assert.New(t)

	table := [...]struct {
		name   string
		word   uint32
		a      int32
		result int32
	}{
		{"addi", addi(3, 1, -1), 5, 4},
		{"slti", MakeCodeI(OP_IMM, 3, F3_SLT, 1, -1), -2, 1},
		{"sltiu", MakeCodeI(OP_IMM, 3, F3_SLTU, 1, -1), 5, 1},
		{"xori", MakeCodeI(OP_IMM, 3, F3_XOR, 1, -1), 0x0f, ^int32(0x0f)},
		{"ori", MakeCodeI(OP_IMM, 3, F3_OR, 1, 0x70), 0x0f, 0x7f},
		{"andi", MakeCodeI(OP_IMM, 3, F3_AND, 1, 0x7f0), -1, 0x7f0},
		{"slli", MakeCodeI(OP_IMM, 3, F3_SLL, 1, 4), 3, 48},
		{"srli", MakeCodeI(OP_IMM, 3, F3_SRL, 1, 28), -1, 0xf},
		{"srai", MakeCodeI(OP_IMM, 3, F3_SRL, 1, 0x400|28), -0x10000000, -1},
	}

	for _, entry := range table {
		cpu, _ := newTestCpu(t, memory.TEXT_START, entry.word)
		cpu.Register[1] = entry.a
		require.NoError(t, cpu.Tick(), entry.name)
		assert.Equal(entry.result, cpu.Register[3], entry.name)
	}
}

func TestCpu_Branch(t *testing.T) {
	assert := assert.New(t)

	table := [...]struct {
		name   string
		funct3 uint32
		a, b   int32
		taken  bool
	}{
		{"beq", F3_BEQ, 3, 3, true},
		{"beq not", F3_BEQ, 3, 4, false},
		{"bne", F3_BNE, 3, 4, true},
		{"bne not", F3_BNE, 3, 3, false},
		{"blt", F3_BLT, -1, 0, true},
		{"blt not", F3_BLT, 0, -1, false},
		{"bge", F3_BGE, 0, -1, true},
		{"bge equal", F3_BGE, 2, 2, true},
		{"bge not", F3_BGE, -1, 0, false},
		{"bltu", F3_BLTU, 0, -1, true},
		{"bltu not", F3_BLTU, -1, 0, false},
		{"bgeu", F3_BGEU, -1, 0, true},
		{"bgeu not", F3_BGEU, 0, -1, false},
	}

	for _, imm := range []int32{16, -16} {
		origin := uint32(memory.TEXT_START + 0x100)
		for _, entry := range table {
			cpu, _ := newTestCpu(t, origin, MakeCodeB(OP_BRANCH, entry.funct3, 1, 2, imm))
			cpu.Register[1] = entry.a
			cpu.Register[2] = entry.b
			require.NoError(t, cpu.Tick(), entry.name)
			if entry.taken {
				assert.Equal(origin+uint32(imm), cpu.Pc, entry.name)
			} else {
				assert.Equal(origin+4, cpu.Pc, entry.name)
			}
		}
	}
}

func TestCpu_JalJalr(t *testing.T) {
	assert := assert.New(t)

	origin := uint32(memory.TEXT_START)
	cpu, _ := newTestCpu(t, origin,
		MakeCodeJ(OP_JAL, 1, 8),          // +0: jal ra, +8
		WORD_NOP,                         // +4
		MakeCodeI(OP_JALR, 5, 0, 5, 0x1), // +8: jalr t0, 1(t0)
	)

	require.NoError(t, cpu.Tick())
	assert.Equal(int32(origin+4), cpu.Register[1])
	assert.Equal(origin+8, cpu.Pc)

	// rd == rs1: the target uses the old value, and the low bit is cleared.
	cpu.Register[5] = int32(origin + 0x100)
	require.NoError(t, cpu.Tick())
	assert.Equal(int32(origin+12), cpu.Register[5])
	assert.Equal(origin+0x100, cpu.Pc)
}

func TestCpu_LuiAuipc(t *testing.T) {
	assert := assert.New(t)

	origin := uint32(memory.TEXT_START)
	cpu, _ := newTestCpu(t, origin,
		MakeCodeU(OP_LUI, 1, -0x1000),
		MakeCodeU(OP_AUIPC, 2, 0x2000),
	)

	tick(t, cpu, 2)
	assert.Equal(int32(-0x1000), cpu.Register[1])
	assert.Equal(int32(origin+4+0x2000), cpu.Register[2])
}

func TestCpu_LoadStore(t *testing.T) {
	assert := assert.New(t)

	cpu, _ := newTestCpu(t, memory.TEXT_START,
		MakeCodeS(OP_STORE, F3_SW, 0, 6, 0x10), // sw t1, 0x10(x0)
		MakeCodeS(OP_STORE, F3_SB, 0, 7, 0x20), // sb t2, 0x20(x0)
		MakeCodeS(OP_STORE, F3_SH, 0, 7, 0x22), // sh t2, 0x22(x0)
		MakeCodeI(OP_LOAD, 10, F3_LW, 0, 0x10),
		MakeCodeI(OP_LOAD, 11, F3_LB, 0, 0x20),
		MakeCodeI(OP_LOAD, 12, F3_LBU, 0, 0x20),
		MakeCodeI(OP_LOAD, 13, F3_LH, 0, 0x22),
		MakeCodeI(OP_LOAD, 14, F3_LHU, 0, 0x22),
	)
	cpu.Register[6] = 0x12345678
	cpu.Register[7] = -0x7f80 // 0xffff8080

	tick(t, cpu, 8)

	// Small addresses fold into the data segment.
	word, err := cpu.Memory.ReadWord(memory.DATA_START+0x10, memory.PRIVILEGE_MACHINE)
	assert.NoError(err)
	assert.Equal(uint32(0x12345678), word)

	assert.Equal(int32(0x12345678), cpu.Register[10])
	assert.Equal(int32(-128), cpu.Register[11])
	assert.Equal(int32(128), cpu.Register[12])
	assert.Equal(int32(-0x7f80), cpu.Register[13])
	assert.Equal(int32(0x8080), cpu.Register[14])
}

func TestCpu_Uart(t *testing.T) {
	assert := assert.New(t)

	cpu, sink := newTestCpu(t, memory.TEXT_START,
		MakeCodeU(OP_LUI, 5, memory.UART_BASE),            // lui t0, UART_BASE
		addi(6, 0, 'o'),                                   // li t1, 'o'
		MakeCodeS(OP_STORE, F3_SB, 5, 6, io.UART_TX),      // sb t1, UART_TX(t0)
		addi(6, 0, 'k'),                                   // li t1, 'k'
		MakeCodeS(OP_STORE, F3_SB, 5, 6, io.UART_TX),      // sb t1, UART_TX(t0)
		MakeCodeI(OP_LOAD, 7, F3_LBU, 5, io.UART_STATUS),  // lbu t2, UART_STATUS(t0)
		MakeCodeI(OP_LOAD, 28, F3_LBU, 5, io.UART_RX),     // lbu t3, UART_RX(t0)
		MakeCodeI(OP_LOAD, 29, F3_LBU, 5, io.UART_STATUS), // lbu t4, UART_STATUS(t0)
	)

	uart := cpu.Memory.Uart.(*io.Uart)
	uart.Receive([]byte("x"))

	tick(t, cpu, 8)

	assert.Equal("ok", sink.String())
	assert.Equal(int32(io.UART_STATUS_TX_READY|io.UART_STATUS_RX_READY), cpu.Register[7])
	assert.Equal(int32('x'), cpu.Register[28])
	assert.Equal(int32(io.UART_STATUS_TX_READY), cpu.Register[29])
}

func TestCpu_PrivilegeTrap(t *testing.T) {
	assert := assert.New(t)

	handler := uint32(memory.MACHINE_END - 0x100)
	cpu, _ := newTestCpu(t, USER_TEXT,
		MakeCodeI(OP_LOAD, 1, F3_LW, 5, 0), // lw ra, 0(t0)
	)
	require.NoError(t, cpu.Memory.LoadSegment(handler, binary.LittleEndian.AppendUint32(nil, WORD_MRET)))

	cpu.Csr.Mtvec = handler
	cpu.Csr.Mstatus = MSTATUS_MIE
	cpu.Privilege = memory.PRIVILEGE_USER
	cpu.Register[5] = memory.TEXT_START

	require.NoError(t, cpu.Tick())

	assert.Equal(memory.PRIVILEGE_MACHINE, cpu.Privilege)
	assert.Equal(handler, cpu.Pc)
	assert.Equal(uint32(CAUSE_LOAD_FAULT), cpu.Csr.Mcause)
	assert.Equal(uint32(USER_TEXT), cpu.Csr.Mepc)
	assert.Equal(uint32(memory.TEXT_START), cpu.Csr.Mtval)
	assert.Equal(memory.PRIVILEGE_USER, cpu.Csr.Mpp())
	assert.Equal(uint32(0), cpu.Csr.Mstatus&MSTATUS_MIE)
	assert.NotEqual(uint32(0), cpu.Csr.Mstatus&MSTATUS_MPIE)
	assert.Equal(1, cpu.Traps)
	assert.Equal(int32(0), cpu.Register[1])

	// mret returns to the faulting instruction in user mode.
	require.NoError(t, cpu.Tick())
	assert.Equal(memory.PRIVILEGE_USER, cpu.Privilege)
	assert.Equal(uint32(USER_TEXT), cpu.Pc)
	assert.NotEqual(uint32(0), cpu.Csr.Mstatus&MSTATUS_MIE)
	assert.Equal(memory.PRIVILEGE_USER, cpu.Csr.Mpp())

	// The same access succeeds in machine mode.
	require.NoError(t, cpu.Memory.LoadSegment(memory.TEXT_START, []byte{0x44, 0x33, 0x22, 0x11}))
	cpu.Privilege = memory.PRIVILEGE_MACHINE
	require.NoError(t, cpu.Tick())
	assert.Equal(int32(0x11223344), cpu.Register[1])
	assert.Equal(1, cpu.Traps)
}

func TestCpu_StoreFaults(t *testing.T) {
	assert := assert.New(t)

	table := [...]struct {
		name    string
		word    uint32
		address uint32
		cause   Cause
	}{
		{"text write", MakeCodeS(OP_STORE, F3_SW, 5, 0, 0), memory.VIRT_BASE, CAUSE_STORE_FAULT},
		{"misaligned store", MakeCodeS(OP_STORE, F3_SW, 5, 0, 0), 0x102, CAUSE_STORE_MISALIGNED},
		{"misaligned load", MakeCodeI(OP_LOAD, 1, F3_LH, 5, 0), 0x101, CAUSE_LOAD_MISALIGNED},
		{"invalid load", MakeCodeI(OP_LOAD, 1, F3_LW, 5, 0), memory.STACK_START + 0x10, CAUSE_LOAD_FAULT},
	}

	for _, entry := range table {
		cpu, _ := newTestCpu(t, memory.TEXT_START, entry.word)
		cpu.Csr.Mtvec = memory.TEXT_START + 0x100
		cpu.Register[5] = int32(entry.address)

		require.NoError(t, cpu.Tick(), entry.name)
		assert.Equal(uint32(entry.cause), cpu.Csr.Mcause, entry.name)
		assert.Equal(entry.address, cpu.Csr.Mtval, entry.name)
		assert.Equal(uint32(memory.TEXT_START), cpu.Csr.Mepc, entry.name)
		assert.Equal(uint32(memory.TEXT_START+0x100), cpu.Pc, entry.name)
	}
}

func TestCpu_FetchMisaligned(t *testing.T) {
	assert := assert.New(t)

	origin := uint32(memory.TEXT_START)
	cpu, _ := newTestCpu(t, origin,
		MakeCodeI(OP_JALR, 0, 0, 5, 2), // jalr x0, 2(t0)
	)
	cpu.Csr.Mtvec = origin + 0x100
	cpu.Register[5] = int32(origin + 0x40)

	require.NoError(t, cpu.Tick())
	assert.Equal(origin+0x42, cpu.Pc)

	require.NoError(t, cpu.Tick())
	assert.Equal(uint32(CAUSE_FETCH_MISALIGNED), cpu.Csr.Mcause)
	assert.Equal(origin+0x42, cpu.Csr.Mepc)
	assert.Equal(origin+0x42, cpu.Csr.Mtval)
	assert.Equal(origin+0x100, cpu.Pc)
}

func TestCpu_TrapLoop(t *testing.T) {
	assert := assert.New(t)

	cpu, _ := newTestCpu(t, memory.TEXT_START,
		MakeCodeI(OP_LOAD, 1, F3_LW, 5, 0),
	)
	cpu.Register[5] = memory.STACK_START + 0x10

	// With mtvec unset the handler at 0 cannot be fetched.
	require.NoError(t, cpu.Tick())
	assert.Equal(uint32(0), cpu.Pc)

	err := cpu.Tick()
	var loop *ErrTrapLoop
	assert.ErrorAs(err, &loop)
	assert.ErrorIs(err, memory.ErrInvalidAddress)
}

func TestCpu_Csr(t *testing.T) {
	assert := assert.New(t)

	cpu, _ := newTestCpu(t, memory.TEXT_START,
		MakeCodeCsr(1, F3_CSRRW, 5, CSR_MSCRATCH),  // csrrw ra, mscratch, t0
		MakeCodeCsr(2, F3_CSRRS, 6, CSR_MSCRATCH),  // csrrs sp, mscratch, t1
		MakeCodeCsr(3, F3_CSRRC, 7, CSR_MSCRATCH),  // csrrc gp, mscratch, t2
		MakeCodeCsr(4, F3_CSRRWI, 3, CSR_MSCRATCH), // csrrwi tp, mscratch, 3
		MakeCodeCsr(8, F3_CSRRSI, 4, CSR_MSCRATCH), // csrrsi s0, mscratch, 4
		MakeCodeCsr(9, F3_CSRRCI, 1, CSR_MSCRATCH), // csrrci s1, mscratch, 1
		MakeCodeCsr(10, F3_CSRRS, 0, CSR_MISA),     // csrr a0, misa
		MakeCodeCsr(11, F3_CSRRS, 0, CSR_MHARTID),  // csrr a1, mhartid
	)
	cpu.Register[1] = 99
	cpu.Register[5] = 0x10
	cpu.Register[6] = 0x03
	cpu.Register[7] = 0x11

	tick(t, cpu, 8)

	assert.Equal(int32(0), cpu.Register[1])
	assert.Equal(int32(0x10), cpu.Register[2])
	assert.Equal(int32(0x13), cpu.Register[3])
	assert.Equal(int32(0x02), cpu.Register[4])
	assert.Equal(int32(0x03), cpu.Register[8])
	assert.Equal(int32(0x07), cpu.Register[9])
	assert.Equal(uint32(0x06), cpu.Csr.Mscratch)
	assert.Equal(int32(MISA_RV32I), cpu.Register[10])
	assert.Equal(int32(0), cpu.Register[11])
	assert.Equal(0, cpu.Traps)
}

func TestCpu_CsrIllegal(t *testing.T) {
	assert := assert.New(t)

	table := [...]struct {
		name string
		word uint32
		priv memory.Privilege
	}{
		{"unknown", MakeCodeCsr(1, F3_CSRRS, 0, 0x7c0), memory.PRIVILEGE_MACHINE},
		{"read only write", MakeCodeCsr(0, F3_CSRRW, 5, CSR_MHARTID), memory.PRIVILEGE_MACHINE},
		{"counter write", MakeCodeCsr(0, F3_CSRRSI, 1, CSR_CYCLE), memory.PRIVILEGE_MACHINE},
		{"user mstatus", MakeCodeCsr(1, F3_CSRRS, 0, CSR_MSTATUS), memory.PRIVILEGE_USER},
		{"supervisor mepc", MakeCodeCsr(1, F3_CSRRS, 0, CSR_MEPC), memory.PRIVILEGE_SUPERVISOR},
		{"user mret", WORD_MRET, memory.PRIVILEGE_USER},
	}

	for _, entry := range table {
		cpu, _ := newTestCpu(t, USER_TEXT, entry.word)
		cpu.Csr.Mtvec = memory.TEXT_START
		cpu.Privilege = entry.priv
		cpu.Register[1] = 77

		require.NoError(t, cpu.Tick(), entry.name)
		assert.Equal(uint32(CAUSE_ILLEGAL_INSTRUCTION), cpu.Csr.Mcause, entry.name)
		assert.Equal(entry.word, cpu.Csr.Mtval, entry.name)
		assert.Equal(entry.priv, cpu.Csr.Mpp(), entry.name)
		assert.Equal(memory.PRIVILEGE_MACHINE, cpu.Privilege, entry.name)
		assert.Equal(int32(77), cpu.Register[1], entry.name)
	}

	// Counters are readable from user mode.
	cpu, _ := newTestCpu(t, USER_TEXT,
		WORD_NOP,
		MakeCodeCsr(1, F3_CSRRS, 0, CSR_INSTRET),
	)
	cpu.Privilege = memory.PRIVILEGE_USER
	tick(t, cpu, 2)
	assert.Equal(int32(1), cpu.Register[1])
	assert.Equal(0, cpu.Traps)
}

func TestCpu_Syscalls(t *testing.T) {
	assert := assert.New(t)

	cpu, _ := newTestCpu(t, memory.TEXT_START,
		addi(REG_A7, 0, 64),
		WORD_ECALL, // ignored
		WORD_EBREAK,
		addi(REG_A7, 0, SYS_YIELD),
		WORD_ECALL,
		addi(REG_A7, 0, SYS_EXIT),
		addi(REG_A0, 0, 42),
		WORD_ECALL,
	)

	tick(t, cpu, 4)
	assert.ErrorIs(cpu.Tick(), ErrYield)

	tick(t, cpu, 2)
	err := cpu.Tick()
	var exit *ErrExit
	assert.ErrorAs(err, &exit)
	assert.Equal(int32(42), exit.Code)
	assert.Equal(uint32(memory.TEXT_START+32), cpu.Pc)

	// ebreak exits under the same convention.
	cpu, _ = newTestCpu(t, memory.TEXT_START,
		addi(REG_A7, 0, SYS_EXIT),
		addi(REG_A0, 0, -1),
		WORD_EBREAK,
	)
	tick(t, cpu, 2)
	err = cpu.Tick()
	assert.ErrorAs(err, &exit)
	assert.Equal(int32(-1), exit.Code)
}

func TestCpu_LoopGuard(t *testing.T) {
	assert := assert.New(t)

	cpu, _ := newTestCpu(t, memory.TEXT_START,
		MakeCodeJ(OP_JAL, 0, 0), // j .
	)
	cpu.LoopThreshold = 10

	for n := range cpu.LoopThreshold + 1 {
		assert.NoError(cpu.Tick(), "tick %d", n)
	}
	assert.ErrorIs(cpu.Tick(), ErrLoopGuard)

	// A program making progress never trips the guard.
	cpu, _ = newTestCpu(t, memory.TEXT_START,
		addi(1, 1, 1),
		MakeCodeJ(OP_JAL, 0, -4),
	)
	cpu.LoopThreshold = 10
	tick(t, cpu, 100)
	assert.Equal(int32(50), cpu.Register[1])
}

func TestCpu_Anomaly(t *testing.T) {
	assert := assert.New(t)

	cpu, _ := newTestCpu(t, memory.TEXT_START,
		0x0000_007f,                           // unknown major opcode
		MakeCodeR(OP_REG, 3, F3_ADD, 1, 2, 1), // mul
		MakeCodeI(OP_LOAD, 3, 3, 0, 0),        // ld
		MakeCodeB(OP_BRANCH, 2, 0, 0, 8),      // undefined branch
		WORD_WFI,
		MakeCodeI(OP_FENCE, 0, F3_FENCE, 0, 0x0ff),
	)
	cpu.Register[1] = 6
	cpu.Register[2] = 7

	tick(t, cpu, 6)
	assert.Equal(4, cpu.Anomalies)
	assert.Equal(int32(0), cpu.Register[3])
	assert.Equal(uint32(memory.TEXT_START+24), cpu.Pc)
	assert.Equal(0, cpu.Traps)
}

func TestCpu_InstructionCache(t *testing.T) {
	assert := assert.New(t)

	cpu, _ := newTestCpu(t, memory.TEXT_START,
		MakeCodeU(OP_LUI, 5, memory.DATA_START), // lui t0, DATA_START
		MakeCodeS(OP_STORE, F3_SW, 5, 6, 8),     // sw t1, 8(t0)
	)
	mm := cpu.Memory
	code := uint32(memory.DATA_START + 8)
	require.NoError(t, mm.WriteWord(code, addi(1, 0, 1), memory.PRIVILEGE_MACHINE))

	cpu.SetProgramCounter(code)
	tick(t, cpu, 1)
	assert.Equal(int32(1), cpu.Register[1])
	assert.Equal(1, cpu.Misses)

	cpu.SetProgramCounter(code)
	tick(t, cpu, 1)
	assert.Equal(1, cpu.Hits)

	// A store through the CPU drops the stale cached word.
	cpu.Register[6] = int32(addi(1, 0, 2))
	cpu.SetProgramCounter(memory.TEXT_START)
	tick(t, cpu, 2)

	cpu.SetProgramCounter(code)
	tick(t, cpu, 1)
	assert.Equal(int32(2), cpu.Register[1])

	// Loads from outside need an explicit invalidate.
	require.NoError(t, mm.WriteWord(code, addi(1, 0, 3), memory.PRIVILEGE_MACHINE))
	cpu.InvalidateCache()
	cpu.SetProgramCounter(code)
	tick(t, cpu, 1)
	assert.Equal(int32(3), cpu.Register[1])
}

func TestCpu_CachedFetchPrivilege(t *testing.T) {
	assert := assert.New(t)

	cpu, _ := newTestCpu(t, memory.TEXT_START, WORD_NOP)
	cpu.Csr.Mtvec = memory.TEXT_START + 0x100

	tick(t, cpu, 1)
	assert.Equal(0, cpu.Traps)

	// A word cached by machine mode is not visible to user mode.
	cpu.Privilege = memory.PRIVILEGE_USER
	cpu.SetProgramCounter(memory.TEXT_START)
	tick(t, cpu, 1)
	assert.Equal(1, cpu.Traps)
	assert.Equal(uint32(CAUSE_FETCH_FAULT), cpu.Csr.Mcause)
}

func TestCpu_FetchUart(t *testing.T) {
	assert := assert.New(t)

	cpu, _ := newTestCpu(t, memory.TEXT_START, WORD_NOP)
	cpu.Csr.Mtvec = memory.TEXT_START
	cpu.SetProgramCounter(memory.UART_BASE)

	tick(t, cpu, 1)
	assert.Equal(uint32(CAUSE_FETCH_FAULT), cpu.Csr.Mcause)
	assert.Equal(uint32(memory.UART_BASE), cpu.Csr.Mtval)
}

func TestCpu_Registers(t *testing.T) {
	assert := assert.New(t)

	cpu, _ := newTestCpu(t, memory.TEXT_START, WORD_NOP)

	var regs [32]int32
	for n := range regs {
		regs[n] = int32(n * 3)
	}
	cpu.SetRegisters(regs)

	got := cpu.Registers()
	assert.Equal(int32(0), got[0])
	assert.Equal(int32(93), got[31])

	cpu.SetProgramCounter(memory.TEXT_START + 0x40)
	assert.Equal(uint32(memory.TEXT_START+0x40), cpu.ProgramCounter())
}

func TestCpu_String(t *testing.T) {
	assert := assert.New(t)

	cpu, _ := newTestCpu(t, memory.TEXT_START, WORD_NOP)
	cpu.Register[10] = 0x1234abcd

	text := cpu.String()
	assert.True(strings.HasPrefix(text, "      pc: 00010000\n"))
	assert.Contains(text, "x10/a0: 1234_abcd")
	assert.Contains(text, "machine")
	assert.Contains(text, "mstatus")
}

func TestCpu_Reset(t *testing.T) {
	assert := assert.New(t)

	cpu, _ := newTestCpu(t, memory.TEXT_START, addi(1, 0, 1))
	tick(t, cpu, 1)
	cpu.Privilege = memory.PRIVILEGE_USER
	cpu.Csr.Mtvec = 0x100

	cpu.Reset()
	assert.Equal(int32(0), cpu.Register[1])
	assert.Equal(uint32(0), cpu.Pc)
	assert.Equal(memory.PRIVILEGE_MACHINE, cpu.Privilege)
	assert.Equal(Csr{}, cpu.Csr)
	assert.Equal(0, cpu.Ticks)
}

func TestDecode(t *testing.T) {
	assert := assert.New(t)

	for _, imm := range []int32{-4096, -2, 0, 2, 4094} {
		inst := Decode(MakeCodeB(OP_BRANCH, F3_BNE, 1, 2, imm))
		assert.Equal(OP_BRANCH, inst.Opcode)
		assert.Equal(imm, inst.ImmB)
		assert.Equal(uint32(1), inst.Rs1)
		assert.Equal(uint32(2), inst.Rs2)
	}

	for _, imm := range []int32{-1 << 20, -2, 0, 2, 1<<20 - 2} {
		inst := Decode(MakeCodeJ(OP_JAL, 7, imm))
		assert.Equal(imm, inst.ImmJ)
		assert.Equal(uint32(7), inst.Rd)
	}

	for _, imm := range []int32{-2048, -1, 0, 2047} {
		assert.Equal(imm, Decode(MakeCodeI(OP_IMM, 1, 0, 2, imm)).ImmI)
		assert.Equal(imm, Decode(MakeCodeS(OP_STORE, 0, 1, 2, imm)).ImmS)
	}

	inst := Decode(MakeCodeU(OP_LUI, 3, -0x1000))
	assert.Equal(int32(-0x1000), inst.ImmU)
	assert.Equal("lui", inst.Opcode.String())
	assert.Equal("OpClass(127)", OpClass(0x7f).String())
	assert.Equal("load access fault", CAUSE_LOAD_FAULT.String())
}
