package cpu

import (
	"encoding/binary"
	"iter"
)

// Opcode represents a line of assembled code with its source location and generated instructions.
type Opcode struct {
	LineNo    int
	Address   uint32
	Words     []string
	Codes     []uint32
	LinkLabel string

	link func(target uint32) ([]uint32, error)
}

// Program is an assembled RV32I image.
type Program struct {
	Origin  uint32 // Load address of the first instruction.
	Entry   uint32 // Address of the 'start' label, or Origin.
	Opcodes []Opcode
	Label   map[string]uint32 // Label addresses.
}

type Debug struct {
	*Opcode
	Index int
}

// Debug maps an absolute instruction address back to its source line.
func (prog *Program) Debug(address uint32) (dbg Debug) {
	for n, op := range prog.Opcodes {
		end := op.Address + uint32(4*len(op.Codes))
		if address >= op.Address && address < end {
			dbg = Debug{
				Opcode: &prog.Opcodes[n],
				Index:  int(address-op.Address) / 4,
			}
			break
		}
	}

	return
}

// Binary returns the little-endian program image, starting at Origin.
func (prog *Program) Binary() (bin []byte) {
	for _, code := range prog.Codes() {
		bin = binary.LittleEndian.AppendUint32(bin, code)
	}

	return
}

// Codes iterates over every (address, instruction word) of the program.
func (prog *Program) Codes() iter.Seq2[uint32, uint32] {
	return func(yield func(address uint32, code uint32) bool) {
		for _, op := range prog.Opcodes {
			for n, code := range op.Codes {
				if !yield(op.Address+uint32(4*n), code) {
					return
				}
			}
		}
	}
}
