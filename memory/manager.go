// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package memory

import (
	"log"

	"github.com/ezrec/rv32i/io"
)

// Manager validates privilege and protection on top of a Memory, routes
// the UART window to its device, and owns the heap and stack pointers.
type Manager struct {
	Verbose bool // If set, logs allocation and faults.

	Memory *Memory   // Backing store.
	Uart   io.Device // Device behind the UART window.

	heapPtr  uint32
	stackPtr uint32
}

// NewManager creates a memory manager over mem, dispatching the UART
// window to uart.
func NewManager(mem *Memory, uart io.Device) (mm *Manager) {
	mm = &Manager{
		Memory:   mem,
		Uart:     uart,
		heapPtr:  HEAP_START,
		stackPtr: STACK_START,
	}

	return
}

// Reset returns the heap and stack pointers to their initial values.
func (mm *Manager) Reset() {
	mm.heapPtr = HEAP_START
	mm.stackPtr = STACK_START
}

// HeapPointer returns the next free heap address.
func (mm *Manager) HeapPointer() uint32 {
	return mm.heapPtr
}

// StackPointer returns the current stack pointer.
func (mm *Manager) StackPointer() uint32 {
	return mm.stackPtr
}

// validate checks [address, address+width) against the absolute bounds,
// then against the privilege windows.
func (mm *Manager) validate(op string, address uint32, width uint32, priv Privilege) (err error) {
	last := uint64(address) + uint64(width) - 1

	switch {
	case address < TEXT_START || last > STACK_START:
		err = ErrInvalidAddress
	case priv == PRIVILEGE_MACHINE:
		// unrestricted
	case priv == PRIVILEGE_SUPERVISOR:
		if address < MACHINE_END {
			err = ErrPrivilege
		}
	case priv == PRIVILEGE_USER:
		if address < SUPERVISOR_END {
			err = ErrPrivilege
		}
	default:
		err = ErrPrivilege
	}

	if err != nil {
		err = &ErrAccess{Op: op, Address: address, Err: err}
		if mm.Verbose {
			log.Printf("memory: %v (%v)", err, priv)
		}
	}

	return
}

// validateWrite rejects the text and read-only data segments.
func (mm *Manager) validateWrite(op string, address uint32) (err error) {
	if address >= TEXT_START && address < DATA_START {
		err = &ErrAccess{Op: op, Address: address, Err: ErrWriteProtected}
		if mm.Verbose {
			log.Printf("memory: %v", err)
		}
	}

	return
}

// ReadByte reads a byte at address with the given privilege.
func (mm *Manager) ReadByte(address uint32, priv Privilege) (value uint8, err error) {
	if IsUart(address) {
		value = mm.Uart.Read(address)
		return
	}

	err = mm.validate("read byte", address, 1, priv)
	if err != nil {
		return
	}

	return mm.Memory.ReadByte(address)
}

// ReadHalfWord reads a half word at address with the given privilege.
func (mm *Manager) ReadHalfWord(address uint32, priv Privilege) (value uint16, err error) {
	if IsUart(address) {
		value = uint16(mm.Uart.Read(address))
		return
	}

	err = mm.validate("read half word", address, 2, priv)
	if err != nil {
		return
	}

	return mm.Memory.ReadHalfWord(address)
}

// ReadWord reads a word at address with the given privilege.
func (mm *Manager) ReadWord(address uint32, priv Privilege) (value uint32, err error) {
	if IsUart(address) {
		value = uint32(mm.Uart.Read(address))
		return
	}

	err = mm.validate("read word", address, 4, priv)
	if err != nil {
		return
	}

	return mm.Memory.ReadWord(address)
}

// WriteByte writes a byte at address with the given privilege.
func (mm *Manager) WriteByte(address uint32, value uint8, priv Privilege) (err error) {
	if IsUart(address) {
		mm.Uart.Write(address, value)
		return
	}

	err = mm.validate("write byte", address, 1, priv)
	if err != nil {
		return
	}

	err = mm.validateWrite("write byte", address)
	if err != nil {
		return
	}

	return mm.Memory.WriteByte(address, value)
}

// WriteHalfWord writes a half word at address with the given privilege.
func (mm *Manager) WriteHalfWord(address uint32, value uint16, priv Privilege) (err error) {
	if IsUart(address) {
		mm.Uart.Write(address, uint8(value))
		return
	}

	err = mm.validate("write half word", address, 2, priv)
	if err != nil {
		return
	}

	err = mm.validateWrite("write half word", address)
	if err != nil {
		return
	}

	return mm.Memory.WriteHalfWord(address, value)
}

// WriteWord writes a word at address with the given privilege.
func (mm *Manager) WriteWord(address uint32, value uint32, priv Privilege) (err error) {
	if IsUart(address) {
		mm.Uart.Write(address, uint8(value))
		return
	}

	err = mm.validate("write word", address, 4, priv)
	if err != nil {
		return
	}

	err = mm.validateWrite("write word", address)
	if err != nil {
		return
	}

	return mm.Memory.WriteWord(address, value)
}

// WriteByteToText writes a byte for program loading. Write protection is
// skipped; the address range is still checked.
func (mm *Manager) WriteByteToText(address uint32, value uint8) (err error) {
	err = mm.validate("load byte", address, 1, PRIVILEGE_MACHINE)
	if err != nil {
		return
	}

	return mm.Memory.WriteByte(address, value)
}

// LoadSegment places data at address through the program loading path.
func (mm *Manager) LoadSegment(address uint32, data []byte) (err error) {
	if len(data) == 0 {
		return
	}

	err = mm.validate("load", address, uint32(len(data)), PRIVILEGE_MACHINE)
	if err != nil {
		return
	}

	return mm.Memory.InitializeMemory(address, data)
}

// AllocateHeap bump allocates size bytes, returning the block address.
func (mm *Manager) AllocateHeap(size uint32) (address uint32, err error) {
	next := uint64(mm.heapPtr) + uint64(size)
	if next >= uint64(mm.stackPtr) {
		err = &ErrAccess{Op: "allocate", Address: mm.heapPtr, Err: ErrOutOfMemory}
		return
	}

	address = mm.heapPtr
	mm.heapPtr = uint32(next)

	if mm.Verbose {
		log.Printf("memory: heap 0x%08x+%d", address, size)
	}

	return
}

// ReserveStack carves size bytes downward from the stack pointer, and
// returns the base of the region.
func (mm *Manager) ReserveStack(size uint32) (base uint32, err error) {
	if uint64(size) >= uint64(mm.stackPtr) || mm.stackPtr-size <= mm.heapPtr {
		err = &ErrAccess{Op: "reserve stack", Address: mm.stackPtr, Err: ErrOutOfMemory}
		return
	}

	base = mm.stackPtr - size
	mm.stackPtr = base

	return
}

// PushWord pushes a word on the descending stack.
func (mm *Manager) PushWord(value uint32) (err error) {
	next := mm.stackPtr - 4
	if mm.stackPtr < 4 || next <= mm.heapPtr {
		err = &ErrAccess{Op: "push", Address: mm.stackPtr, Err: ErrStackOverflow}
		return
	}

	err = mm.WriteWord(next, value, PRIVILEGE_MACHINE)
	if err != nil {
		return
	}

	mm.stackPtr = next
	return
}

// PopWord pops a word from the descending stack. Underflow is checked
// against STACK_START only, so pops may walk up into regions handed out
// by ReserveStack.
func (mm *Manager) PopWord() (value uint32, err error) {
	if uint64(mm.stackPtr)+4 > uint64(STACK_START) {
		err = &ErrAccess{Op: "pop", Address: mm.stackPtr, Err: ErrStackUnderflow}
		return
	}

	value, err = mm.ReadWord(mm.stackPtr, PRIVILEGE_MACHINE)
	if err != nil {
		return
	}

	mm.stackPtr += 4
	return
}
