package memory

import (
	"fmt"
	"strings"
)

// DUMP_WIDTH is the number of bytes per dump row.
const DUMP_WIDTH = 16

// MemoryMap summarizes the address space layout and the current heap
// and stack extents.
func (mm *Manager) MemoryMap() string {
	var sb strings.Builder

	sb.WriteString(f("Memory Map:\n"))
	row := func(name string, lo, hi uint32) {
		sb.WriteString(f("%-11s 0x%08X - 0x%08X\n", name, lo, hi))
	}
	row(f("Machine:"), TEXT_START, MACHINE_END-1)
	row(f("Supervisor:"), MACHINE_END, SUPERVISOR_END-1)
	row(f("Text:"), TEXT_START, RODATA_START-1)
	row(f("Rodata:"), RODATA_START, DATA_START-1)
	row(f("Data:"), DATA_START, HEAP_START-1)
	if mm.heapPtr > HEAP_START {
		row(f("Heap:"), HEAP_START, mm.heapPtr-1)
	} else {
		sb.WriteString(f("%-11s 0x%08X - (empty)\n", f("Heap:"), HEAP_START))
	}
	row(f("Stack:"), mm.stackPtr, STACK_START)
	row(f("UART:"), UART_BASE, UART_BASE+UART_SIZE-1)

	return sb.String()
}

// Dump renders [start, start+length) as a hex and ASCII table. The UART
// window is never read, so dumping has no device side effects.
func (mm *Manager) Dump(start uint32, length uint32) (text string, err error) {
	if length == 0 {
		return
	}

	err = mm.validate("dump", start, length, PRIVILEGE_MACHINE)
	if err != nil {
		return
	}

	var sb strings.Builder
	end := uint64(start) + uint64(length)
	for row := uint64(start &^ (DUMP_WIDTH - 1)); row < end; row += DUMP_WIDTH {
		fmt.Fprintf(&sb, "%08x: ", uint32(row))
		var ascii [DUMP_WIDTH]byte
		for n := range uint64(DUMP_WIDTH) {
			address := row + n
			ascii[n] = ' '
			if address < uint64(start) || address >= end {
				sb.WriteString("   ")
				continue
			}
			value, rerr := mm.Memory.ReadByte(uint32(address))
			if rerr != nil {
				sb.WriteString("-- ")
				ascii[n] = '.'
				continue
			}
			fmt.Fprintf(&sb, "%02x ", value)
			if value >= 0x20 && value < 0x7f {
				ascii[n] = value
			} else {
				ascii[n] = '.'
			}
		}
		sb.WriteString("|")
		sb.Write(ascii[:])
		sb.WriteString("|\n")
	}

	text = sb.String()
	return
}
