package io

import (
	"fmt"
	"iter"
	"sync"

	"github.com/ezrec/rv32i/internal"
)

// UART register offsets from the device base.
const (
	UART_TX      = 0x0 // Transmit data, write only.
	UART_RX      = 0x4 // Receive data, read pops the buffer.
	UART_STATUS  = 0x8 // Status bits.
	UART_CONTROL = 0xC // Control, stored verbatim.
)

// UART status bits.
const (
	UART_STATUS_RX_READY = 0x01 // Receive buffer is not empty.
	UART_STATUS_TX_READY = 0x20 // Transmitter ready. Always set.
)

// Uart is a memory-mapped serial port. TX bytes go to the Sink; RX bytes
// are fed by Receive from any goroutine and popped by RX register reads
// in the configured order. All register and buffer access is serialized
// by a single mutex held for the duration of each operation.
type Uart struct {
	Base uint32 // Base address of the register window.
	Sink Sink   // Transmit sink. May be nil, which discards output.

	mu      sync.Mutex
	dropped int
	rx      RxBuffer
	status  uint8
	control uint8
}

var _ Device = (*Uart)(nil)
var _ Receiver = (*Uart)(nil)

// NewUart creates a UART with its registers at base.
func NewUart(base uint32, sink Sink) (uart *Uart) {
	uart = &Uart{
		Base: base,
		Sink: sink,
	}
	uart.Reset()

	return
}

// Defines returns the absolute register addresses as assembler equates.
func (uart *Uart) Defines() iter.Seq2[string, string] {
	return internal.SortedDefines(map[string]string{
		"UART_TX":              fmt.Sprintf("%#x", uart.Base+UART_TX),
		"UART_RX":              fmt.Sprintf("%#x", uart.Base+UART_RX),
		"UART_STATUS":          fmt.Sprintf("%#x", uart.Base+UART_STATUS),
		"UART_CONTROL":         fmt.Sprintf("%#x", uart.Base+UART_CONTROL),
		"UART_STATUS_RX_READY": fmt.Sprintf("%#x", UART_STATUS_RX_READY),
		"UART_STATUS_TX_READY": fmt.Sprintf("%#x", UART_STATUS_TX_READY),
	})
}

// Reset empties the receive buffer and clears control. The receive order
// is kept.
func (uart *Uart) Reset() {
	uart.mu.Lock()
	defer uart.mu.Unlock()

	order := uart.rx.Order
	uart.rx = RxBuffer{Capacity: RX_DEFAULT_CAPACITY, Order: order}
	uart.rx.Rewind()
	uart.status = UART_STATUS_TX_READY
	uart.control = 0
	uart.dropped = 0
}

// SetOrder selects the receive buffer pop order.
func (uart *Uart) SetOrder(order RxOrder) {
	uart.mu.Lock()
	defer uart.mu.Unlock()

	uart.rx.Order = order
}

// Order returns the receive buffer pop order.
func (uart *Uart) Order() RxOrder {
	uart.mu.Lock()
	defer uart.mu.Unlock()

	return uart.rx.Order
}

// Read processes reads from the UART registers.
func (uart *Uart) Read(address uint32) (value uint8) {
	uart.mu.Lock()
	defer uart.mu.Unlock()

	switch address - uart.Base {
	case UART_TX:
		// Write-only register
	case UART_RX:
		var ok bool
		value, ok = uart.rx.Pop()
		if ok && uart.rx.Empty() {
			uart.status &^= UART_STATUS_RX_READY
		}
	case UART_STATUS:
		value = uart.status | UART_STATUS_TX_READY
	case UART_CONTROL:
		value = uart.control
	}

	return
}

// Write processes writes to the UART registers. A TX write hands the
// byte to the Sink after the lock is released.
func (uart *Uart) Write(address uint32, value uint8) {
	var sink Sink

	uart.mu.Lock()
	switch address - uart.Base {
	case UART_TX:
		sink = uart.Sink
	case UART_CONTROL:
		uart.control = value
	}
	uart.mu.Unlock()

	if sink != nil {
		sink.Send(value)
	}
}

// Receive feeds bytes into the receive buffer. Bytes beyond capacity are
// dropped and counted.
func (uart *Uart) Receive(data []byte) {
	uart.mu.Lock()
	defer uart.mu.Unlock()

	for _, b := range data {
		err := uart.rx.Push(b)
		if err != nil {
			uart.dropped++
			continue
		}
		uart.status |= UART_STATUS_RX_READY
	}
}

// Dropped returns the bytes lost to a full receive buffer since reset.
func (uart *Uart) Dropped() int {
	uart.mu.Lock()
	defer uart.mu.Unlock()

	return uart.dropped
}

// Pending returns the number of buffered receive bytes.
func (uart *Uart) Pending() int {
	uart.mu.Lock()
	defer uart.mu.Unlock()

	return uart.rx.Size
}
