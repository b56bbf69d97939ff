// Package io provides the memory-mapped devices of the rv32i system: the
// UART, its transmit sinks, and the input feeder that fills its receive
// buffer from a host stream.
package io

// Device is a memory-mapped I/O device. Addresses are absolute; the
// device decodes its own register offsets.
type Device interface {
	// Read returns the register value at address.
	Read(address uint32) uint8
	// Write stores value to the register at address.
	Write(address uint32, value uint8)
	// Reset returns the device to its power-on state.
	Reset()
}

// Sink receives transmitted bytes. Send must not block the caller.
type Sink interface {
	Send(value byte)
}

// Receiver accepts bytes arriving from outside the machine.
type Receiver interface {
	Receive(data []byte)
}
