package io

// RxOrder is the pop order of the receive buffer.
type RxOrder int

//go:generate go tool stringer -linecomment -type=RxOrder
const (
	RX_ORDER_FIFO = RxOrder(0) // fifo
	RX_ORDER_LIFO = RxOrder(1) // lifo
)

// RX_DEFAULT_CAPACITY is the default receive buffer size in bytes.
const RX_DEFAULT_CAPACITY = 2048

// RxBuffer is a bounded byte buffer. In FIFO order it is a circular queue
// with separate read/write positions; in LIFO order it pops the most
// recently pushed byte first.
type RxBuffer struct {
	Capacity int
	Order    RxOrder

	ReadIndex  int
	WriteIndex int
	Size       int
	Data       []byte
}

// Rewind empties the buffer, reallocating it at Capacity.
func (rx *RxBuffer) Rewind() {
	if rx.Capacity == 0 {
		rx.Capacity = RX_DEFAULT_CAPACITY
	}
	rx.ReadIndex = 0
	rx.WriteIndex = 0
	rx.Size = 0
	rx.Data = make([]byte, rx.Capacity)
}

// Empty returns true if no bytes are buffered.
func (rx *RxBuffer) Empty() bool {
	return rx.Size == 0
}

// Push appends a byte. Returns ErrRxFull if the buffer is at capacity.
func (rx *RxBuffer) Push(value byte) (err error) {
	if rx.Data == nil {
		rx.Rewind()
	}

	if rx.Size >= rx.Capacity {
		err = ErrRxFull
		return
	}

	rx.Data[rx.WriteIndex] = value
	rx.WriteIndex++
	if rx.WriteIndex == rx.Capacity {
		rx.WriteIndex = 0
	}
	rx.Size++

	return
}

// Pop removes the next byte in buffer order.
func (rx *RxBuffer) Pop() (value byte, ok bool) {
	if rx.Size == 0 {
		return
	}

	switch rx.Order {
	case RX_ORDER_LIFO:
		rx.WriteIndex--
		if rx.WriteIndex < 0 {
			rx.WriteIndex = rx.Capacity - 1
		}
		value = rx.Data[rx.WriteIndex]
	default:
		value = rx.Data[rx.ReadIndex]
		rx.ReadIndex++
		if rx.ReadIndex == rx.Capacity {
			rx.ReadIndex = 0
		}
	}
	rx.Size--
	ok = true

	return
}
