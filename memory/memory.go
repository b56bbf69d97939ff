package memory

import (
	"encoding/binary"
)

// Read cache geometry.
const (
	LINE_SIZE  = 64  // Bytes per cache line. Power of two.
	LINE_COUNT = 256 // Lines in the direct-mapped read cache.
)

type cacheLine struct {
	valid bool
	tag   uint32 // Address of the first byte of the line.
	data  [LINE_SIZE]byte
}

// Memory is a flat byte store with a direct-mapped read cache.
// Accesses inside the MMIO range are never serviced, and fail with
// ErrMmioRedirect so the caller can dispatch them.
type Memory struct {
	MmioBase uint32 // Start of the reserved MMIO range.
	MmioSize uint32 // Size of the reserved MMIO range.

	Hits   int // Read cache hits.
	Misses int // Read cache misses.

	data  []byte
	lines [LINE_COUNT]cacheLine
}

// NewMemory creates a zeroed store of the given size, reserving the UART window.
func NewMemory(size uint32) (mem *Memory) {
	mem = &Memory{
		MmioBase: UART_BASE,
		MmioSize: UART_SIZE,
		data:     make([]byte, size),
	}

	return
}

// Size of the backing store.
func (mem *Memory) Size() uint32 {
	return uint32(len(mem.data))
}

func (mem *Memory) isMmio(address uint32, width uint32) bool {
	if mem.MmioSize == 0 {
		return false
	}
	lo := uint64(address)
	hi := lo + uint64(width)
	base := uint64(mem.MmioBase)
	return lo < base+uint64(mem.MmioSize) && hi > base
}

func (mem *Memory) check(op string, address uint32, width uint32) (err error) {
	switch {
	case mem.isMmio(address, width):
		err = ErrMmioRedirect
	case uint64(address)+uint64(width) > uint64(len(mem.data)):
		err = ErrOutOfBounds
	case address%width != 0:
		err = ErrMisaligned
	}

	if err != nil {
		err = &ErrAccess{Op: op, Address: address, Err: err}
	}

	return
}

// line returns the cache line holding address, filling it on a miss.
func (mem *Memory) line(address uint32) (line *cacheLine, offset uint32) {
	tag := address &^ (LINE_SIZE - 1)
	line = &mem.lines[(address/LINE_SIZE)%LINE_COUNT]
	if line.valid && line.tag == tag {
		mem.Hits++
	} else {
		mem.Misses++
		copy(line.data[:], mem.data[tag:])
		line.tag = tag
		line.valid = true
	}

	offset = address - tag
	return
}

// invalidate drops every cache line overlapping [address, address+length).
func (mem *Memory) invalidate(address uint32, length uint32) {
	end := uint64(address) + uint64(length)
	for tag := uint64(address &^ (LINE_SIZE - 1)); tag < end; tag += LINE_SIZE {
		line := &mem.lines[(tag/LINE_SIZE)%LINE_COUNT]
		if line.valid && uint64(line.tag) == tag {
			line.valid = false
		}
	}
}

// InvalidateCache drops all cached lines.
func (mem *Memory) InvalidateCache() {
	for n := range mem.lines {
		mem.lines[n].valid = false
	}
}

// ReadByte reads one byte.
func (mem *Memory) ReadByte(address uint32) (value uint8, err error) {
	err = mem.check("read byte", address, 1)
	if err != nil {
		return
	}

	line, offset := mem.line(address)
	value = line.data[offset]
	return
}

// ReadHalfWord reads a little-endian, 2-byte aligned half word.
func (mem *Memory) ReadHalfWord(address uint32) (value uint16, err error) {
	err = mem.check("read half word", address, 2)
	if err != nil {
		return
	}

	line, offset := mem.line(address)
	value = binary.LittleEndian.Uint16(line.data[offset:])
	return
}

// ReadWord reads a little-endian, 4-byte aligned word.
func (mem *Memory) ReadWord(address uint32) (value uint32, err error) {
	err = mem.check("read word", address, 4)
	if err != nil {
		return
	}

	line, offset := mem.line(address)
	value = binary.LittleEndian.Uint32(line.data[offset:])
	return
}

// WriteByte writes one byte.
func (mem *Memory) WriteByte(address uint32, value uint8) (err error) {
	err = mem.check("write byte", address, 1)
	if err != nil {
		return
	}

	mem.data[address] = value
	mem.invalidate(address, 1)
	return
}

// WriteHalfWord writes a little-endian, 2-byte aligned half word.
func (mem *Memory) WriteHalfWord(address uint32, value uint16) (err error) {
	err = mem.check("write half word", address, 2)
	if err != nil {
		return
	}

	binary.LittleEndian.PutUint16(mem.data[address:], value)
	mem.invalidate(address, 2)
	return
}

// WriteWord writes a little-endian, 4-byte aligned word.
func (mem *Memory) WriteWord(address uint32, value uint32) (err error) {
	err = mem.check("write word", address, 4)
	if err != nil {
		return
	}

	binary.LittleEndian.PutUint32(mem.data[address:], value)
	mem.invalidate(address, 4)
	return
}

// InitializeMemory bulk copies data to offset, and invalidates every
// cache line the range spans.
func (mem *Memory) InitializeMemory(offset uint32, data []byte) (err error) {
	if len(data) == 0 {
		return
	}

	length := uint32(len(data))
	switch {
	case uint64(offset)+uint64(len(data)) > uint64(len(mem.data)):
		err = ErrOutOfBounds
	case mem.isMmio(offset, length):
		err = ErrMmioRedirect
	}
	if err != nil {
		err = &ErrAccess{Op: "initialize", Address: offset, Err: err}
		return
	}

	copy(mem.data[offset:], data)
	mem.invalidate(offset, length)
	return
}

// Clear zeros the store and the cache.
func (mem *Memory) Clear() {
	clear(mem.data)
	mem.InvalidateCache()
	mem.Hits = 0
	mem.Misses = 0
}
