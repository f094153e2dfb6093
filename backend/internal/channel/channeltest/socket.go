// Package channeltest provides an in-memory socket for exercising channel.Channel without a server.
package channeltest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/PedroReis16/live-document-app-sub000/backend/internal/channel"
	"github.com/PedroReis16/live-document-app-sub000/backend/internal/ws"
)

var ErrClosed = errors.New("socket closed")

// Socket is a channel.Socket backed by Go channels. Frames written by the client are read with Next;
// frames for the client are queued with Push.
type Socket struct {
	in     chan ws.Frame
	out    chan ws.Frame
	closed chan struct{}
	once   sync.Once
}

func NewSocket() *Socket {
	return &Socket{in: make(chan ws.Frame, 64), out: make(chan ws.Frame, 64), closed: make(chan struct{})}
}

func (s *Socket) ReadJSON(v any) error {
	select {
	case f := <-s.in:
		b, err := json.Marshal(f)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, v)
	case <-s.closed:
		return ErrClosed
	}
}

func (s *Socket) WriteJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var f ws.Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	select {
	case s.out <- f:
		return nil
	case <-s.closed:
		return ErrClosed
	}
}

func (s *Socket) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *Socket) IsClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// Push queues a server frame for the client.
func (s *Socket) Push(event, docID string, payload any) error {
	f, err := ws.NewFrame(event, docID, payload)
	if err != nil {
		return err
	}
	select {
	case s.in <- f:
		return nil
	case <-s.closed:
		return ErrClosed
	}
}

// Next returns the next frame written by the client.
func (s *Socket) Next(timeout time.Duration) (ws.Frame, bool) {
	select {
	case f := <-s.out:
		return f, true
	case <-time.After(timeout):
		return ws.Frame{}, false
	}
}

// Dialer hands out queued sockets, one per dial.
type Dialer struct {
	mu       sync.Mutex
	queue    []*Socket
	dials    int
	endpoint string
	header   http.Header
}

func NewDialer(sockets ...*Socket) *Dialer {
	return &Dialer{queue: sockets}
}

func (d *Dialer) Add(s *Socket) {
	d.mu.Lock()
	d.queue = append(d.queue, s)
	d.mu.Unlock()
}

func (d *Dialer) Dial(ctx context.Context, endpoint string, header http.Header) (channel.Socket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	d.endpoint, d.header = endpoint, header
	if len(d.queue) == 0 {
		return nil, errors.New("dial refused")
	}
	s := d.queue[0]
	d.queue = d.queue[1:]
	return s, nil
}

func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *Dialer) LastEndpoint() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.endpoint
}

func (d *Dialer) LastHeader() http.Header {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.header
}
