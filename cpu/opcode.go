package cpu

import (
	"fmt"
)

// OpClass is the major opcode, bits [6:0] of an instruction word.
type OpClass uint32

//go:generate go tool stringer -linecomment -type=OpClass
const (
	OP_LOAD   = OpClass(0x03) // load
	OP_FENCE  = OpClass(0x0f) // fence
	OP_IMM    = OpClass(0x13) // op-imm
	OP_AUIPC  = OpClass(0x17) // auipc
	OP_STORE  = OpClass(0x23) // store
	OP_REG    = OpClass(0x33) // op
	OP_LUI    = OpClass(0x37) // lui
	OP_BRANCH = OpClass(0x63) // branch
	OP_JALR   = OpClass(0x67) // jalr
	OP_JAL    = OpClass(0x6f) // jal
	OP_SYSTEM = OpClass(0x73) // system
)

// funct3 values, per opcode class.
const (
	F3_ADD  = 0 // add/sub, addi
	F3_SLL  = 1
	F3_SLT  = 2
	F3_SLTU = 3
	F3_XOR  = 4
	F3_SRL  = 5 // srl/sra, srli/srai
	F3_OR   = 6
	F3_AND  = 7

	F3_BEQ  = 0
	F3_BNE  = 1
	F3_BLT  = 4
	F3_BGE  = 5
	F3_BLTU = 6
	F3_BGEU = 7

	F3_LB  = 0
	F3_LH  = 1
	F3_LW  = 2
	F3_LBU = 4
	F3_LHU = 5

	F3_SB = 0
	F3_SH = 1
	F3_SW = 2

	F3_PRIV   = 0
	F3_CSRRW  = 1
	F3_CSRRS  = 2
	F3_CSRRC  = 3
	F3_CSRRWI = 5
	F3_CSRRSI = 6
	F3_CSRRCI = 7

	F3_FENCE   = 0
	F3_FENCE_I = 1
)

// funct7 values.
const (
	F7_BASE = 0x00
	F7_ALT  = 0x20 // sub, sra, srai
)

// Fixed SYSTEM instruction words.
const (
	WORD_ECALL  = uint32(0x0000_0073)
	WORD_EBREAK = uint32(0x0010_0073)
	WORD_MRET   = uint32(0x3020_0073)
	WORD_WFI    = uint32(0x1050_0073)
	WORD_NOP    = uint32(0x0000_0013) // addi x0, x0, 0
)

// Instruction is a decoded instruction word. Every field is decoded for
// every word; the opcode class selects which of them are meaningful.
type Instruction struct {
	Word   uint32
	Opcode OpClass
	Rd     uint32
	Rs1    uint32
	Rs2    uint32
	Funct3 uint32
	Funct7 uint32
	ImmI   int32
	ImmS   int32
	ImmB   int32
	ImmU   int32
	ImmJ   int32
}

// signExtend sign extends the low bits of value.
func signExtend(value uint32, bits uint) int32 {
	shift := 32 - bits
	return int32(value<<shift) >> shift
}

// Decode splits an instruction word into its fields.
func Decode(word uint32) (inst Instruction) {
	inst.decode(word)
	return
}

func (inst *Instruction) decode(word uint32) {
	inst.Word = word
	inst.Opcode = OpClass(word & 0x7f)
	inst.Rd = (word >> 7) & 0x1f
	inst.Funct3 = (word >> 12) & 0x7
	inst.Rs1 = (word >> 15) & 0x1f
	inst.Rs2 = (word >> 20) & 0x1f
	inst.Funct7 = (word >> 25) & 0x7f

	inst.ImmI = int32(word) >> 20
	inst.ImmS = signExtend(((word>>25)<<5)|((word>>7)&0x1f), 12)
	inst.ImmB = signExtend(((word>>31)&1)<<12|
		((word>>7)&1)<<11|
		((word>>25)&0x3f)<<5|
		((word>>8)&0xf)<<1, 13)
	inst.ImmU = int32(word & 0xffff_f000)
	inst.ImmJ = signExtend(((word>>31)&1)<<20|
		((word>>12)&0xff)<<12|
		((word>>20)&1)<<11|
		((word>>21)&0x3ff)<<1, 21)
}

// Csr returns the CSR number of a SYSTEM instruction.
func (inst *Instruction) Csr() uint32 {
	return inst.Word >> 20
}

// Shamt returns the shift amount of an immediate shift.
func (inst *Instruction) Shamt() uint32 {
	return uint32(inst.ImmI) & 0x1f
}

// String returns a short description of the decoded fields.
func (inst Instruction) String() string {
	return fmt.Sprintf("%08x %v rd=%v rs1=%v rs2=%v f3=%v f7=%#x",
		inst.Word, inst.Opcode, inst.Rd, inst.Rs1, inst.Rs2, inst.Funct3, inst.Funct7)
}
