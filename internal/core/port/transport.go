package port

import "errors"

// ErrTransportClosed is returned by a transport, or a facade over it, once the
// socket has been closed and no more messages will arrive.
var ErrTransportClosed = errors.New("transport closed")

// Transport is a blocking multipart message source. Recv returns the parts of
// exactly one message; the caller owns the returned buffers.
type Transport interface {
	Recv() ([][]byte, error)
	Close() error
}

// Delivery is one unit pushed by an AsyncTransport: either a message or the
// error that ended the stream.
type Delivery struct {
	Parts [][]byte
	Err   error
}

// AsyncTransport pushes messages on a channel. The channel is closed after the
// terminal Delivery, or when Close is called.
type AsyncTransport interface {
	Deliveries() <-chan Delivery
	Close() error
}
