package cpu

import (
	"log"

	"github.com/ezrec/rv32i/memory"
)

// CSR numbers.
const (
	CSR_MSTATUS  = 0x300
	CSR_MISA     = 0x301
	CSR_MIE      = 0x304
	CSR_MTVEC    = 0x305
	CSR_MSCRATCH = 0x340
	CSR_MEPC     = 0x341
	CSR_MCAUSE   = 0x342
	CSR_MTVAL    = 0x343
	CSR_MIP      = 0x344
	CSR_CYCLE    = 0xc00
	CSR_INSTRET  = 0xc02
	CSR_MHARTID  = 0xf14
)

// CsrName maps assembler CSR names to numbers.
var CsrName = map[string]uint32{
	"mstatus":  CSR_MSTATUS,
	"misa":     CSR_MISA,
	"mie":      CSR_MIE,
	"mtvec":    CSR_MTVEC,
	"mscratch": CSR_MSCRATCH,
	"mepc":     CSR_MEPC,
	"mcause":   CSR_MCAUSE,
	"mtval":    CSR_MTVAL,
	"mip":      CSR_MIP,
	"cycle":    CSR_CYCLE,
	"instret":  CSR_INSTRET,
	"mhartid":  CSR_MHARTID,
}

// mstatus fields.
const (
	MSTATUS_MIE       = uint32(1 << 3)
	MSTATUS_MPIE      = uint32(1 << 7)
	MSTATUS_MPP_SHIFT = 11
	MSTATUS_MPP       = uint32(3 << MSTATUS_MPP_SHIFT)

	mstatusWritable = MSTATUS_MIE | MSTATUS_MPIE | MSTATUS_MPP
)

// MISA_RV32I is the misa value for a 32-bit base integer machine.
const MISA_RV32I = uint32(0x4000_0100)

// Cause is a synchronous exception cause code, as stored in mcause.
type Cause uint32

//go:generate go tool stringer -linecomment -type=Cause
const (
	CAUSE_FETCH_MISALIGNED    = Cause(0) // instruction address misaligned
	CAUSE_FETCH_FAULT         = Cause(1) // instruction access fault
	CAUSE_ILLEGAL_INSTRUCTION = Cause(2) // illegal instruction
	CAUSE_BREAKPOINT          = Cause(3) // breakpoint
	CAUSE_LOAD_MISALIGNED     = Cause(4) // load address misaligned
	CAUSE_LOAD_FAULT          = Cause(5) // load access fault
	CAUSE_STORE_MISALIGNED    = Cause(6) // store address misaligned
	CAUSE_STORE_FAULT         = Cause(7) // store access fault
)

// Csr is the machine-mode control and status register file.
type Csr struct {
	Mstatus  uint32
	Mie      uint32
	Mtvec    uint32
	Mscratch uint32
	Mepc     uint32
	Mcause   uint32
	Mtval    uint32
	Mip      uint32
}

// Mpp returns the previous privilege field of mstatus.
func (cs *Csr) Mpp() memory.Privilege {
	return memory.Privilege((cs.Mstatus & MSTATUS_MPP) >> MSTATUS_MPP_SHIFT)
}

// csrCheck validates access to a CSR from the current privilege.
func (cpu *Cpu) csrCheck(csr uint32, write bool) (err error) {
	switch csr {
	case CSR_MSTATUS, CSR_MISA, CSR_MIE, CSR_MTVEC, CSR_MSCRATCH,
		CSR_MEPC, CSR_MCAUSE, CSR_MTVAL, CSR_MIP,
		CSR_CYCLE, CSR_INSTRET, CSR_MHARTID:
	default:
		err = ErrCsrUnknown
		return
	}

	if memory.Privilege((csr>>8)&3) > cpu.Privilege {
		err = ErrCsrPrivilege
		return
	}

	if write && (csr>>10)&3 == 3 {
		err = ErrCsrReadOnly
		return
	}

	return
}

// CsrRead returns the value of a CSR, checking privilege.
func (cpu *Cpu) CsrRead(csr uint32) (value uint32, err error) {
	err = cpu.csrCheck(csr, false)
	if err != nil {
		return
	}

	cs := &cpu.Csr
	switch csr {
	case CSR_MSTATUS:
		value = cs.Mstatus
	case CSR_MISA:
		value = MISA_RV32I
	case CSR_MIE:
		value = cs.Mie
	case CSR_MTVEC:
		value = cs.Mtvec
	case CSR_MSCRATCH:
		value = cs.Mscratch
	case CSR_MEPC:
		value = cs.Mepc
	case CSR_MCAUSE:
		value = cs.Mcause
	case CSR_MTVAL:
		value = cs.Mtval
	case CSR_MIP:
		value = cs.Mip
	case CSR_CYCLE, CSR_INSTRET:
		value = uint32(cpu.Ticks)
	case CSR_MHARTID:
		value = 0
	}

	return
}

// CsrWrite sets the value of a CSR, checking privilege and read-only.
func (cpu *Cpu) CsrWrite(csr uint32, value uint32) (err error) {
	err = cpu.csrCheck(csr, true)
	if err != nil {
		return
	}

	cs := &cpu.Csr
	switch csr {
	case CSR_MSTATUS:
		value &= mstatusWritable
		// The reserved MPP encoding reads back as user.
		if (value&MSTATUS_MPP)>>MSTATUS_MPP_SHIFT == 2 {
			value &^= MSTATUS_MPP
		}
		cs.Mstatus = value
	case CSR_MISA:
		// WARL, fixed.
	case CSR_MIE:
		cs.Mie = value
	case CSR_MTVEC:
		cs.Mtvec = value
	case CSR_MSCRATCH:
		cs.Mscratch = value
	case CSR_MEPC:
		cs.Mepc = value &^ 1
	case CSR_MCAUSE:
		cs.Mcause = value
	case CSR_MTVAL:
		cs.Mtval = value
	case CSR_MIP:
		cs.Mip = value
	}

	return
}

// Trap enters machine mode to handle an exception raised by the
// instruction at pc.
func (cpu *Cpu) Trap(cause Cause, value uint32, pc uint32) {
	cs := &cpu.Csr

	if cpu.Verbose {
		log.Printf("cpu: trap %v at 0x%08x (0x%08x) from %v", cause, pc, value, cpu.Privilege)
	}

	cs.Mepc = pc
	cs.Mcause = uint32(cause)
	cs.Mtval = value

	mie := cs.Mstatus & MSTATUS_MIE
	cs.Mstatus &^= MSTATUS_MIE | MSTATUS_MPIE | MSTATUS_MPP
	if mie != 0 {
		cs.Mstatus |= MSTATUS_MPIE
	}
	cs.Mstatus |= uint32(cpu.Privilege) << MSTATUS_MPP_SHIFT

	cpu.Privilege = memory.PRIVILEGE_MACHINE
	cpu.Pc = cs.Mtvec &^ 3
	cpu.Traps++
}

// mret returns from a machine-mode trap handler.
func (cpu *Cpu) mret() {
	cs := &cpu.Csr

	mpp := cs.Mpp()
	mpie := cs.Mstatus & MSTATUS_MPIE

	cs.Mstatus &^= MSTATUS_MIE | MSTATUS_MPP
	if mpie != 0 {
		cs.Mstatus |= MSTATUS_MIE
	}
	cs.Mstatus |= MSTATUS_MPIE

	cpu.Privilege = mpp
	cpu.Pc = cs.Mepc

	if cpu.Verbose {
		log.Printf("cpu: mret to 0x%08x in %v", cpu.Pc, cpu.Privilege)
	}
}
