package bridge

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport moves opaque payloads between the host and one surface. Sends are
// fire-and-forget from the host's point of view; ordering is per direction.
type Transport interface {
	Send(ctx context.Context, data []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

type pipe struct {
	done chan struct{}
	once *sync.Once
}

type pipeEnd struct {
	pipe
	in  <-chan []byte
	out chan<- []byte
}

// NewPipe returns the two connected ends of an in-process transport. Closing
// either end closes both.
func NewPipe(buffer int) (Transport, Transport) {
	a := make(chan []byte, buffer)
	b := make(chan []byte, buffer)
	p := pipe{done: make(chan struct{}), once: new(sync.Once)}
	return &pipeEnd{pipe: p, in: a, out: b}, &pipeEnd{pipe: p, in: b, out: a}
}

func (e *pipeEnd) Send(ctx context.Context, data []byte) error {
	select {
	case <-e.done:
		return ErrClosed
	default:
	}
	select {
	case e.out <- data:
		return nil
	case <-e.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *pipeEnd) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data := <-e.in:
		return data, nil
	case <-e.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *pipeEnd) Close() error {
	e.once.Do(func() { close(e.done) })
	return nil
}

const wsWriteWait = 10 * time.Second

// WSTransport carries bridge payloads over a websocket connection as text
// frames.
type WSTransport struct {
	conn *websocket.Conn
	mu   sync.Mutex
	once sync.Once
}

func NewWSTransport(conn *websocket.Conn) *WSTransport {
	return &WSTransport{conn: conn}
}

func (t *WSTransport) Send(ctx context.Context, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	deadline := time.Now().Add(wsWriteWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return wsErr(err)
	}
	return wsErr(t.conn.WriteMessage(websocket.TextMessage, data))
}

// Receive blocks until a text frame arrives. Cancelling ctx does not interrupt
// a pending read; Close does.
func (t *WSTransport) Receive(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		kind, data, err := t.conn.ReadMessage()
		if err != nil {
			return nil, wsErr(err)
		}
		if kind == websocket.TextMessage {
			return data, nil
		}
	}
}

func (t *WSTransport) Close() error {
	var err error
	t.once.Do(func() {
		t.mu.Lock()
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		t.mu.Unlock()
		err = t.conn.Close()
	})
	return err
}

func wsErr(err error) error {
	if err == nil {
		return nil
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) || errors.Is(err, websocket.ErrCloseSent) || errors.Is(err, net.ErrClosed) {
		return ErrClosed
	}
	return err
}
