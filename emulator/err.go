package emulator

import (
	"errors"

	"github.com/ezrec/rv32i/translate"
)

var f = translate.From

var (
	ErrAlreadyRunning = errors.New(f("emulator already running"))
	ErrNotRunning     = errors.New(f("emulator not running"))
	ErrRegisterIndex  = errors.New(f("register index out of range"))
)

// ErrRuntime indicates the location of a runtime error.
type ErrRuntime struct {
	Pc     uint32
	LineNo int
	Err    error
}

func (err *ErrRuntime) Error() string {
	if err.LineNo == 0 {
		return f("0x%08x %v", err.Pc, err.Err)
	}
	return f("line %d (0x%08x) %v", err.LineNo, err.Pc, err.Err)
}

func (err *ErrRuntime) Unwrap() error {
	return err.Err
}
