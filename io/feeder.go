package io

import (
	"bufio"
	"errors"
	"io"
	"log"
	"sync"
	"time"
)

// FEEDER_CHUNK is the read size used when feeding a raw terminal.
const FEEDER_CHUNK = 256

// Feeder copies host input into a Receiver from its own goroutine.
//
// In line mode each line, terminator included, is delivered as one
// Receive call. In raw mode (Translate set) bytes are delivered as they
// arrive with CR translated to LF.
type Feeder struct {
	Verbose   bool
	Input     io.Reader
	Receiver  Receiver
	Translate bool

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewFeeder creates a feeder from input to rx; call Start to run it.
func NewFeeder(input io.Reader, rx Receiver) (feeder *Feeder) {
	feeder = &Feeder{
		Input:    input,
		Receiver: rx,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	return
}

// Start launches the feeder goroutine. Extra calls are ignored.
func (feeder *Feeder) Start() {
	feeder.mu.Lock()
	defer feeder.mu.Unlock()

	if feeder.started {
		return
	}
	feeder.started = true

	go feeder.run()
}

// Done is closed when the feeder goroutine has exited.
func (feeder *Feeder) Done() <-chan struct{} {
	return feeder.done
}

func (feeder *Feeder) stopping() bool {
	select {
	case <-feeder.stop:
		return true
	default:
		return false
	}
}

func (feeder *Feeder) deliver(data []byte) {
	if len(data) == 0 || feeder.stopping() {
		return
	}
	if feeder.Translate {
		for n, b := range data {
			if b == '\r' {
				data[n] = '\n'
			}
		}
	}
	if feeder.Verbose {
		log.Printf("feeder: %q", data)
	}
	feeder.Receiver.Receive(data)
}

func (feeder *Feeder) run() {
	defer close(feeder.done)

	reader := bufio.NewReader(feeder.Input)
	chunk := make([]byte, FEEDER_CHUNK)

	for !feeder.stopping() {
		var data []byte
		var err error
		if feeder.Translate {
			var n int
			n, err = reader.Read(chunk)
			data = chunk[:n]
		} else {
			data, err = reader.ReadBytes('\n')
		}
		feeder.deliver(data)
		if err != nil {
			if err != io.EOF && feeder.Verbose {
				log.Printf("feeder: %v", err)
			}
			return
		}
	}
}

// Stop asks the feeder to exit and waits up to timeout for it. If it is
// still blocked in a read, the input is closed when it is an io.Closer
// and Stop waits one more timeout before giving up with ErrStopTimeout,
// joined with any error from closing the input.
func (feeder *Feeder) Stop(timeout time.Duration) (err error) {
	feeder.mu.Lock()
	started := feeder.started
	feeder.mu.Unlock()

	feeder.once.Do(func() { close(feeder.stop) })

	if !started {
		return
	}

	select {
	case <-feeder.done:
		return
	case <-time.After(timeout):
	}

	var cerr error
	if closer, ok := feeder.Input.(io.Closer); ok {
		cerr = closer.Close()
		if cerr != nil {
			log.Printf("feeder: close: %v", cerr)
		}
	}

	select {
	case <-feeder.done:
	case <-time.After(timeout):
		err = errors.Join(ErrStopTimeout, cerr)
	}

	return
}
