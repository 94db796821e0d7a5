package subscribe

import (
	"bytes"
	"encoding/binary"
	"sync"

	"github.com/bleach86/ghostcore-zmq/internal/core/port"
)

type recvResult struct {
	parts [][]byte
	err   error
}

// fakeTransport replays results, then reports closure.
type fakeTransport struct {
	mu      sync.Mutex
	results []recvResult
	closed  bool
}

func (f *fakeTransport) Recv() ([][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || len(f.results) == 0 {
		return nil, port.ErrTransportClosed
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r.parts, r.err
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

type fakeAsync struct {
	ch   chan port.Delivery
	once sync.Once
}

func newFakeAsync(buf int) *fakeAsync { return &fakeAsync{ch: make(chan port.Delivery, buf)} }

func (f *fakeAsync) Deliveries() <-chan port.Delivery { return f.ch }
func (f *fakeAsync) push(parts [][]byte)             { f.ch <- port.Delivery{Parts: parts} }
func (f *fakeAsync) fail(err error)                  { f.ch <- port.Delivery{Err: err} }

func (f *fakeAsync) Close() error {
	f.once.Do(func() { close(f.ch) })
	return nil
}

func msg(topic string, payload []byte, counter uint32) [][]byte {
	c := make([]byte, 4)
	binary.LittleEndian.PutUint32(c, counter)
	return [][]byte{[]byte(topic), payload, c}
}

func hashMsg(counter uint32) [][]byte {
	return msg("hashblock", bytes.Repeat([]byte{0x5a}, 32), counter)
}
