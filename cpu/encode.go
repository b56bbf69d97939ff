package cpu

// MakeCodeR creates an R-type instruction word.
func MakeCodeR(op OpClass, rd, funct3, rs1, rs2, funct7 uint32) uint32 {
	return (funct7&0x7f)<<25 | (rs2&0x1f)<<20 | (rs1&0x1f)<<15 | (funct3&7)<<12 | (rd&0x1f)<<7 | uint32(op)
}

// MakeCodeI creates an I-type instruction word.
func MakeCodeI(op OpClass, rd, funct3, rs1 uint32, imm int32) uint32 {
	return uint32(imm&0xfff)<<20 | (rs1&0x1f)<<15 | (funct3&7)<<12 | (rd&0x1f)<<7 | uint32(op)
}

// MakeCodeS creates an S-type instruction word.
func MakeCodeS(op OpClass, funct3, rs1, rs2 uint32, imm int32) uint32 {
	u := uint32(imm & 0xfff)
	return (u>>5)<<25 | (rs2&0x1f)<<20 | (rs1&0x1f)<<15 | (funct3&7)<<12 | (u&0x1f)<<7 | uint32(op)
}

// MakeCodeB creates a B-type instruction word. The offset must be even.
func MakeCodeB(op OpClass, funct3, rs1, rs2 uint32, imm int32) uint32 {
	u := uint32(imm)
	return ((u>>12)&1)<<31 | ((u>>5)&0x3f)<<25 |
		(rs2&0x1f)<<20 | (rs1&0x1f)<<15 | (funct3&7)<<12 |
		((u>>1)&0xf)<<8 | ((u>>11)&1)<<7 | uint32(op)
}

// MakeCodeU creates a U-type instruction word. imm is the value of bits [31:12].
func MakeCodeU(op OpClass, rd uint32, imm int32) uint32 {
	return uint32(imm)&0xffff_f000 | (rd&0x1f)<<7 | uint32(op)
}

// MakeCodeJ creates a J-type instruction word. The offset must be even.
func MakeCodeJ(op OpClass, rd uint32, imm int32) uint32 {
	u := uint32(imm)
	return ((u>>20)&1)<<31 | ((u>>1)&0x3ff)<<21 |
		((u>>11)&1)<<20 | ((u>>12)&0xff)<<12 |
		(rd&0x1f)<<7 | uint32(op)
}

// MakeCodeCsr creates a CSR instruction word. For the immediate forms,
// rs1 holds the 5-bit zero-extended immediate.
func MakeCodeCsr(rd, funct3, rs1, csr uint32) uint32 {
	return (csr&0xfff)<<20 | (rs1&0x1f)<<15 | (funct3&7)<<12 | (rd&0x1f)<<7 | uint32(OP_SYSTEM)
}

// fitsSigned returns true if value fits in a signed field of the given width.
func fitsSigned(value int64, bits uint) bool {
	limit := int64(1) << (bits - 1)
	return value >= -limit && value < limit
}

// splitImmediate splits value into a LUI upper part and ADDI lower part,
// such that upper + lower == value.
func splitImmediate(value int32) (upper int32, lower int32) {
	lower = signExtend(uint32(value)&0xfff, 12)
	upper = int32(uint32(value) - uint32(lower))
	return
}
