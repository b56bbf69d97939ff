package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemory_RoundTrip(t *testing.T) {
	assert := assert.New(t)

	mem := NewMemory(0x1000)

	assert.NoError(mem.WriteWord(0x100, 0xdeadbeef))
	word, err := mem.ReadWord(0x100)
	assert.NoError(err)
	assert.Equal(uint32(0xdeadbeef), word)

	half, err := mem.ReadHalfWord(0x102)
	assert.NoError(err)
	assert.Equal(uint16(0xdead), half)

	b, err := mem.ReadByte(0x100)
	assert.NoError(err)
	assert.Equal(uint8(0xef), b)

	assert.NoError(mem.WriteHalfWord(0x200, 0x1234))
	half, err = mem.ReadHalfWord(0x200)
	assert.NoError(err)
	assert.Equal(uint16(0x1234), half)

	assert.NoError(mem.WriteByte(0x201, 0x56))
	half, err = mem.ReadHalfWord(0x200)
	assert.NoError(err)
	assert.Equal(uint16(0x5634), half)
}

func TestMemory_Errors(t *testing.T) {
	assert := assert.New(t)

	mem := NewMemory(0x100)

	table := [...]struct {
		name string
		err  error
		call func() error
	}{
		{"word past end", ErrOutOfBounds, func() error { _, err := mem.ReadWord(0xfe); return err }},
		{"byte past end", ErrOutOfBounds, func() error { return mem.WriteByte(0x100, 0) }},
		{"half misaligned", ErrMisaligned, func() error { _, err := mem.ReadHalfWord(0x11); return err }},
		{"word misaligned", ErrMisaligned, func() error { return mem.WriteWord(0x12, 0) }},
		{"mmio read", ErrMmioRedirect, func() error { _, err := mem.ReadByte(UART_BASE); return err }},
		{"mmio write", ErrMmioRedirect, func() error { return mem.WriteWord(UART_BASE+4, 0) }},
	}

	for _, entry := range table {
		err := entry.call()
		assert.ErrorIs(err, entry.err, entry.name)
		var access *ErrAccess
		assert.ErrorAs(err, &access, entry.name)
	}
}

func TestMemory_CacheTransparent(t *testing.T) {
	assert := assert.New(t)

	mem := NewMemory(0x10000)

	// Warm the line, then write through it.
	_, err := mem.ReadWord(0x40)
	assert.NoError(err)
	_, err = mem.ReadWord(0x44)
	assert.NoError(err)
	assert.Equal(1, mem.Misses)
	assert.Equal(1, mem.Hits)

	assert.NoError(mem.WriteWord(0x44, 0x11223344))
	word, err := mem.ReadWord(0x44)
	assert.NoError(err)
	assert.Equal(uint32(0x11223344), word)

	// Aliased lines evict each other without going stale.
	alias := uint32(0x40 + LINE_SIZE*LINE_COUNT)
	assert.NoError(mem.WriteWord(alias, 0x55667788))
	word, err = mem.ReadWord(alias)
	assert.NoError(err)
	assert.Equal(uint32(0x55667788), word)
	word, err = mem.ReadWord(0x44)
	assert.NoError(err)
	assert.Equal(uint32(0x11223344), word)
}

func TestMemory_InitializeMemory(t *testing.T) {
	assert := assert.New(t)

	mem := NewMemory(0x1000)

	// Warm three lines that the copy will span.
	for _, address := range []uint32{0x00, 0x40, 0x80} {
		_, err := mem.ReadWord(address)
		assert.NoError(err)
	}

	data := make([]byte, 0xc0)
	for n := range data {
		data[n] = byte(n)
	}
	assert.NoError(mem.InitializeMemory(0, data))

	for _, address := range []uint32{0x00, 0x40, 0x80, 0xbc} {
		b, err := mem.ReadByte(address)
		assert.NoError(err)
		assert.Equal(byte(address), b)
	}

	assert.ErrorIs(mem.InitializeMemory(0xff0, make([]byte, 0x20)), ErrOutOfBounds)
	assert.NoError(mem.InitializeMemory(0x10, nil))
}

func TestMemory_Clear(t *testing.T) {
	assert := assert.New(t)

	mem := NewMemory(0x100)
	assert.NoError(mem.WriteWord(0x10, 1))
	_, _ = mem.ReadWord(0x10)

	mem.Clear()
	word, err := mem.ReadWord(0x10)
	assert.NoError(err)
	assert.Equal(uint32(0), word)
	assert.Equal(uint32(0x100), mem.Size())
}
