package cpu

import (
	"errors"

	"github.com/ezrec/rv32i/translate"
)

var f = translate.From

var (
	// Cpu errors
	ErrLoopGuard = errors.New(f("loop guard: pc did not advance"))
	ErrYield     = errors.New(f("yield"))

	// CSR access errors, delivered as illegal instruction traps
	ErrCsrUnknown   = errors.New(f("csr unknown"))
	ErrCsrPrivilege = errors.New(f("csr privilege"))
	ErrCsrReadOnly  = errors.New(f("csr read only"))
	ErrPrivileged   = errors.New(f("privileged instruction"))
	ErrFetchMmio    = errors.New(f("fetch from mmio"))

	// Assembler errors
	ErrEquateSyntax       = errors.New(f(".equ syntax"))
	ErrEquateDuplicate    = errors.New(f(".equ duplicated"))
	ErrLabelDuplicate     = errors.New(f("label duplicated"))
	ErrMacroSyntax        = errors.New(f(".macro syntax"))
	ErrMacroNesting       = errors.New(f(".macro in .macro prohibited"))
	ErrMacroDuplicate     = errors.New(f(".macro duplicated"))
	ErrMacroLonely        = errors.New(f(".macro without .endm"))
	ErrMacroLonelyEndm    = errors.New(f(".endm without .macro"))
	ErrOpcodeExtraArgs    = errors.New(f("excessive arguments"))
	ErrOpcodeValueMissing = errors.New(f("value missing"))
	ErrRegisterInvalid    = errors.New(f("register invalid"))
	ErrCsrInvalid         = errors.New(f("csr invalid"))
	ErrInstructionInvalid = errors.New(f("instruction invalid"))
	ErrOffsetRange        = errors.New(f("offset out of range"))
	ErrImmediateRange     = errors.New(f("immediate out of range"))
)

// ErrExit is returned by Tick when the program requests exit.
type ErrExit struct {
	Code int32
}

func (err *ErrExit) Error() string {
	return f("exit %v", err.Code)
}

// ErrTrap is an exception raised while executing an instruction.
type ErrTrap struct {
	Cause Cause
	Value uint32 // Faulting address or instruction word.
	Err   error
}

func (err *ErrTrap) Error() string {
	if err.Err == nil {
		return f("trap %v: 0x%08x", err.Cause.String(), err.Value)
	}
	return f("trap %v: 0x%08x: %v", err.Cause.String(), err.Value, err.Err)
}

func (err *ErrTrap) Unwrap() error {
	return err.Err
}

// ErrTrapLoop is returned by Tick when the trap handler itself cannot be
// fetched.
type ErrTrapLoop struct {
	Mtvec uint32
	Err   error
}

func (err *ErrTrapLoop) Error() string {
	return f("trap handler 0x%08x unreachable: %v", err.Mtvec, err.Err)
}

func (err *ErrTrapLoop) Unwrap() error {
	return err.Err
}

type ErrLabelMissing string

func (el ErrLabelMissing) Error() string {
	return f("label %v missing", string(el))
}

type ErrSyntax struct {
	LineNo int
	Line   string
	Err    error
}

func (err *ErrSyntax) Error() string {
	return f("line %v '%v' %v", err.LineNo, err.Line, err.Err)
}

func (err *ErrSyntax) Unwrap() error {
	return err.Err
}

type ErrParseNumber string

func (err ErrParseNumber) Error() string {
	return f("'%v' is not a number", string(err))
}

type ErrParseExpression string

func (err ErrParseExpression) Error() string {
	return f("$(%v) is not a valid expression", string(err))
}

type ErrMacro struct {
	Macro string
	Line  int
	Err   error
}

func (err *ErrMacro) Error() string {
	return f("macro %v line %v %v", err.Macro, err.Line, err.Err.Error())
}

func (err *ErrMacro) Unwrap() error {
	return err.Err
}
