package io

import (
	"errors"

	"github.com/ezrec/rv32i/translate"
)

var f = translate.From

var (
	ErrRxFull      = errors.New(f("receive buffer full"))
	ErrStopTimeout = errors.New(f("stop timeout"))
)
