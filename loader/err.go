package loader

import (
	"errors"
	"fmt"

	"github.com/ezrec/rv32i/translate"
)

var f = translate.From

var (
	ErrElfClass    = errors.New(f("elf: not a 32-bit image"))
	ErrElfData     = errors.New(f("elf: not little-endian"))
	ErrElfMachine  = errors.New(f("elf: not a RISC-V image"))
	ErrElfSegment  = errors.New(f("elf: segment file size exceeds memory size"))
	ErrElfTooLarge = errors.New(f("elf: segment too large"))
)

// ErrSegment records which program header failed to load.
type ErrSegment struct {
	Index   int
	Vaddr   uint32
	Address uint32
	Err     error
}

func (err *ErrSegment) Error() string {
	return f("segment %v (0x%08x at 0x%08x): %v", err.Index, err.Vaddr, err.Address, err.Err)
}

func (err *ErrSegment) Unwrap() error {
	return err.Err
}

func wrapf(base error, format string, args ...any) error {
	return fmt.Errorf("%w: %v", base, fmt.Sprintf(format, args...))
}
