// Package cpu implements the RV32I hart and assembler for the rv32i system.
//
// The CPU has 32 general-purpose registers (x0 hard-wired to zero), a
// program counter, machine/supervisor/user privilege modes, a small
// machine-mode CSR file, and a direct-mapped instruction cache. All
// memory access goes through a memory.Manager, which applies privilege
// and write protection and routes the UART window to its device.
// Exceptions are delivered through a single trap path to mtvec.
//
// The assembler accepts the RV32I base instruction set plus the common
// pseudo-instructions, supporting macros, labels, equates, and
// compile-time expression evaluation.
package cpu
