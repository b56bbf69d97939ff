package io

import (
	"io"
	"sync"
)

// Buffer is a Sink that collects transmitted bytes in memory.
type Buffer struct {
	mu   sync.Mutex
	data []byte
}

var _ Sink = (*Buffer)(nil)

// Send appends a byte.
func (buf *Buffer) Send(value byte) {
	buf.mu.Lock()
	defer buf.mu.Unlock()

	buf.data = append(buf.data, value)
}

// Bytes returns a copy of the collected bytes.
func (buf *Buffer) Bytes() []byte {
	buf.mu.Lock()
	defer buf.mu.Unlock()

	return append([]byte(nil), buf.data...)
}

// String returns the collected bytes as text.
func (buf *Buffer) String() string {
	return string(buf.Bytes())
}

// Drain returns and discards the collected bytes.
func (buf *Buffer) Drain() (data []byte) {
	buf.mu.Lock()
	defer buf.mu.Unlock()

	data = buf.data
	buf.data = nil
	return
}

// Transmitter is a Sink that queues bytes and writes them, in order, to
// an io.Writer from its own goroutine. Send never waits on the writer.
type Transmitter struct {
	Output io.Writer

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []byte
	closed bool
	err    error
	done   chan struct{}
}

var _ Sink = (*Transmitter)(nil)

// NewTransmitter starts a transmitter draining to output.
func NewTransmitter(output io.Writer) (tx *Transmitter) {
	tx = &Transmitter{
		Output: output,
		done:   make(chan struct{}),
	}
	tx.cond = sync.NewCond(&tx.mu)

	go tx.run()

	return
}

func (tx *Transmitter) run() {
	defer close(tx.done)

	for {
		tx.mu.Lock()
		for len(tx.queue) == 0 && !tx.closed {
			tx.cond.Wait()
		}
		batch := tx.queue
		tx.queue = nil
		closed := tx.closed
		tx.mu.Unlock()

		if len(batch) > 0 {
			_, err := tx.Output.Write(batch)
			if err != nil {
				tx.mu.Lock()
				if tx.err == nil {
					tx.err = err
				}
				tx.mu.Unlock()
			}
		}

		if closed && len(batch) == 0 {
			return
		}
	}
}

// Send queues a byte. Bytes sent after Close are discarded.
func (tx *Transmitter) Send(value byte) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.closed {
		return
	}
	tx.queue = append(tx.queue, value)
	tx.cond.Signal()
}

// Close flushes queued bytes and stops the goroutine. It returns the
// first write error, if any.
func (tx *Transmitter) Close() (err error) {
	tx.mu.Lock()
	tx.closed = true
	tx.cond.Broadcast()
	tx.mu.Unlock()

	<-tx.done

	tx.mu.Lock()
	err = tx.err
	tx.mu.Unlock()
	return
}
