package collab

import (
	"context"
	"io"
	"sync"
)

// Pipe returns two connected in-memory transports.
func Pipe() (Transport, Transport) {
	ab := make(chan []byte, 16)
	ba := make(chan []byte, 16)
	done := make(chan struct{})
	var once sync.Once
	closeFn := func() { once.Do(func() { close(done) }) }

	return &pipeEnd{in: ba, out: ab, done: done, close: closeFn},
		&pipeEnd{in: ab, out: ba, done: done, close: closeFn}
}

type pipeEnd struct {
	in    <-chan []byte
	out   chan<- []byte
	done  chan struct{}
	close func()
}

func (p *pipeEnd) Send(ctx context.Context, msg []byte) error {
	cp := append([]byte(nil), msg...)
	select {
	case p.out <- cp:
		return nil
	case <-p.done:
		return io.ErrClosedPipe
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeEnd) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-p.in:
		return msg, nil
	case <-p.done:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close shuts both ends.
func (p *pipeEnd) Close() error {
	p.close()
	return nil
}
