package memory

import (
	"errors"

	"github.com/ezrec/rv32i/translate"
)

var f = translate.From

var (
	// Addressable memory errors
	ErrOutOfBounds  = errors.New(f("out of bounds"))
	ErrMisaligned   = errors.New(f("misaligned"))
	ErrMmioRedirect = errors.New(f("mmio redirect"))

	// Memory manager errors
	ErrInvalidAddress = errors.New(f("invalid address"))
	ErrPrivilege      = errors.New(f("privilege violation"))
	ErrWriteProtected = errors.New(f("write protected"))

	// Allocation errors
	ErrOutOfMemory    = errors.New(f("out of memory"))
	ErrStackOverflow  = errors.New(f("stack overflow"))
	ErrStackUnderflow = errors.New(f("stack underflow"))
)

// ErrAccess records the operation and address of a failed access.
type ErrAccess struct {
	Op      string
	Address uint32
	Err     error
}

func (err *ErrAccess) Error() string {
	return f("%v 0x%08x: %v", err.Op, err.Address, err.Err)
}

func (err *ErrAccess) Unwrap() error {
	return err.Err
}

// IsAllocation returns true if the error is an allocation fault.
func IsAllocation(err error) bool {
	return errors.Is(err, ErrOutOfMemory) ||
		errors.Is(err, ErrStackOverflow) ||
		errors.Is(err, ErrStackUnderflow)
}
