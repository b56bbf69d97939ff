package task

import (
	"errors"

	"github.com/ezrec/rv32i/translate"
)

var f = translate.From

var (
	ErrInsufficientMemory = errors.New(f("insufficient memory for task stack"))
	ErrTaskMissing        = errors.New(f("task missing"))
)
