// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package memory

import (
	"fmt"
	"iter"

	"github.com/ezrec/rv32i/internal"
)

// Physical address space layout.
const (
	MEMORY_SIZE = 0x0100_0000 // Flat backing store size.

	TEXT_START     = 0x0001_0000 // Text segment, read/exec.
	MACHINE_END    = 0x0001_1000 // End of the machine-reserved window.
	SUPERVISOR_END = 0x0001_2000 // End of the supervisor window.
	RODATA_START   = 0x0008_0000 // Read-only data.
	DATA_START     = 0x0010_0000 // Data, read/write.
	HEAP_START     = 0x0020_0000 // Heap base, grows up.
	STACK_START    = 0x00EF_FFF0 // Stack top, grows down. Inclusive bound.

	UART_BASE = 0x1000_0000 // UART MMIO window.
	UART_SIZE = 0x1000      // UART MMIO window size.

	VIRT_BASE = 0x8000_0000 // RV32 link base.
)

// Privilege is a RISC-V privilege mode, encoded as in mstatus.MPP.
type Privilege int

const (
	PRIVILEGE_USER       = Privilege(0)
	PRIVILEGE_SUPERVISOR = Privilege(1)
	PRIVILEGE_MACHINE    = Privilege(3)
)

func (priv Privilege) String() string {
	switch priv {
	case PRIVILEGE_USER:
		return "user"
	case PRIVILEGE_SUPERVISOR:
		return "supervisor"
	case PRIVILEGE_MACHINE:
		return "machine"
	}
	return fmt.Sprintf("Privilege(%d)", int(priv))
}

var _layout_defines = map[string]string{
	"MEMORY_SIZE":    fmt.Sprintf("%#x", MEMORY_SIZE),
	"TEXT_START":     fmt.Sprintf("%#x", TEXT_START),
	"MACHINE_END":    fmt.Sprintf("%#x", MACHINE_END),
	"SUPERVISOR_END": fmt.Sprintf("%#x", SUPERVISOR_END),
	"RODATA_START":   fmt.Sprintf("%#x", RODATA_START),
	"DATA_START":     fmt.Sprintf("%#x", DATA_START),
	"HEAP_START":     fmt.Sprintf("%#x", HEAP_START),
	"STACK_START":    fmt.Sprintf("%#x", STACK_START),
	"UART_BASE":      fmt.Sprintf("%#x", UART_BASE),
	"VIRT_BASE":      fmt.Sprintf("%#x", VIRT_BASE),
}

// Defines returns the layout constants as assembler equates.
func Defines() iter.Seq2[string, string] {
	return internal.SortedDefines(_layout_defines)
}

// IsUart returns true if the address lies in the UART MMIO window.
func IsUart(address uint32) bool {
	return address >= UART_BASE && address < UART_BASE+UART_SIZE
}

// MapAddress maps an RV32 virtual address into the physical layout.
//   - UART window addresses are unchanged.
//   - Addresses at or above VIRT_BASE are offsets from TEXT_START.
//   - Addresses already in [TEXT_START, STACK_START] are unchanged.
//   - Addresses below TEXT_START fold into the data segment.
//   - Anything else is unchanged, and will be rejected on access.
func MapAddress(virtual uint32) (physical uint32) {
	switch {
	case IsUart(virtual):
		physical = virtual
	case virtual >= VIRT_BASE:
		physical = TEXT_START + (virtual - VIRT_BASE)
	case virtual >= TEXT_START && virtual <= STACK_START:
		physical = virtual
	case virtual < TEXT_START:
		physical = DATA_START + virtual
	default:
		physical = virtual
	}

	return
}
