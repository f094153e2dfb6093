package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/PedroReis16/live-document-app-sub000/backend/internal/ws"
)

var (
	ErrNotConnected     = errors.New("channel is not connected")
	ErrJoinRejected     = errors.New("join rejected")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrIdentityMismatch = errors.New("document id mismatch")
	ErrLeaveFailed      = errors.New("leave previous room failed")
)

// Socket is the subset of *websocket.Conn the channel uses.
type Socket interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

type DialFunc func(ctx context.Context, endpoint string, header http.Header) (Socket, error)

func dialWebsocket(ctx context.Context, endpoint string, header http.Header) (Socket, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type Option func(*Channel)

func WithDialer(d DialFunc) Option { return func(c *Channel) { c.dial = d } }

// WithBackOff sets the reconnect policy. The factory is called once per drop.
func WithBackOff(f func() backoff.BackOff) Option { return func(c *Channel) { c.newBackOff = f } }

func WithSendBuffer(n int) Option { return func(c *Channel) { c.sendBuffer = n } }

// Channel keeps one websocket to the collaboration server and multiplexes typed events over it.
type Channel struct {
	endpoint   string
	dial       DialFunc
	newBackOff func() backoff.BackOff
	sendBuffer int

	reg registry

	mu    sync.Mutex
	sock  Socket
	send  chan ws.Frame
	stop  chan struct{}
	token string
	room  string
}

func New(endpoint string, opts ...Option) *Channel {
	c := &Channel{
		endpoint:   endpoint,
		dial:       dialWebsocket,
		sendBuffer: 64,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			b.MaxElapsedTime = 5 * time.Minute
			return b
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sock != nil
}

// Room returns the document room currently joined, or "".
func (c *Channel) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// Connect opens the socket. It is a no-op when already connected.
func (c *Channel) Connect(ctx context.Context, token string) error {
	if c.Connected() {
		return nil
	}
	endpoint, header, err := c.target(token)
	if err != nil {
		return err
	}
	sock, err := c.dial(ctx, endpoint, header)
	if err != nil {
		c.raise(ConnectError.name, err)
		return fmt.Errorf("connect: %w", err)
	}

	c.mu.Lock()
	if c.sock != nil {
		c.mu.Unlock()
		_ = sock.Close()
		return nil
	}
	if c.stop != nil {
		// a reconnect loop from an earlier drop is still running
		close(c.stop)
	}
	c.stop = make(chan struct{})
	c.token = token
	c.attach(sock)
	c.mu.Unlock()

	log.Printf("channel connected: %s", c.endpoint)
	c.raise(Connected.name, struct{}{})
	return nil
}

// Disconnect closes the socket and forgets room and token. Safe to call when not connected.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	sock, send := c.sock, c.send
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	c.sock, c.send = nil, nil
	c.token, c.room = "", ""
	if send != nil {
		close(send)
	}
	c.mu.Unlock()

	if sock == nil {
		return
	}
	_ = sock.Close()
	c.raise(Disconnected.name, nil)
}

// JoinRoom asks the server to join docID and waits for the connected-users acknowledgment.
// A previously joined room is left first.
func (c *Channel) JoinRoom(ctx context.Context, docID, token string) (ws.ConnectedUsersPayload, error) {
	c.mu.Lock()
	if c.sock == nil {
		c.mu.Unlock()
		return ws.ConnectedUsersPayload{}, ErrNotConnected
	}
	prev := c.room
	if token == "" {
		token = c.token
	}
	c.mu.Unlock()

	if prev != "" && prev != docID {
		leave, _ := ws.NewFrame(ws.EventLeaveDocument, prev, nil)
		if !c.enqueue(leave) {
			return ws.ConnectedUsersPayload{}, fmt.Errorf("%w: %s", ErrLeaveFailed, prev)
		}
		c.setRoom("")
	}

	type result struct {
		ack ws.ConnectedUsersPayload
		err error
	}
	done := make(chan result, 1)
	finish := func(r result) {
		select {
		case done <- r:
		default:
		}
	}
	subs := []*Subscription{
		Once(c, ConnectedUsers, func(id string, p ws.ConnectedUsersPayload) {
			if p.DocumentID == "" {
				p.DocumentID = id
			}
			finish(result{ack: p})
		}),
		Once(c, AuthError, func(_ string, p ws.ErrorPayload) {
			finish(result{err: fmt.Errorf("%w: %w: %s", ErrJoinRejected, ErrUnauthorized, p.Message)})
		}),
		Once(c, ServerError, func(_ string, p ws.ErrorPayload) {
			finish(result{err: fmt.Errorf("%w: %s", ErrJoinRejected, p.Message)})
		}),
		Once(c, Disconnected, func(string, error) {
			finish(result{err: ErrNotConnected})
		}),
	}
	defer func() {
		for _, s := range subs {
			c.Off(s)
		}
	}()

	join := ws.Frame{Type: ws.EventJoinDocument, DocID: docID, Token: token}
	if !c.enqueue(join) {
		return ws.ConnectedUsersPayload{}, ErrNotConnected
	}

	select {
	case r := <-done:
		if r.err != nil {
			return ws.ConnectedUsersPayload{}, r.err
		}
		// the server has already placed this socket in a room; leave it so no membership is left behind
		if r.ack.DocumentID != docID {
			c.LeaveRoom(docID)
			if r.ack.DocumentID != "" {
				c.LeaveRoom(r.ack.DocumentID)
			}
			return ws.ConnectedUsersPayload{}, fmt.Errorf("%w: requested %s, got %s", ErrIdentityMismatch, docID, r.ack.DocumentID)
		}
		if r.ack.Document != nil {
			if snap := r.ack.Document.Normalize(); snap.ID != docID {
				c.LeaveRoom(docID)
				return ws.ConnectedUsersPayload{}, fmt.Errorf("%w: requested %s, snapshot %s", ErrIdentityMismatch, docID, snap.ID)
			}
		}
		c.setRoom(docID)
		return r.ack, nil
	case <-ctx.Done():
		return ws.ConnectedUsersPayload{}, ctx.Err()
	}
}

// LeaveRoom notifies the server when connected and always clears the joined room.
func (c *Channel) LeaveRoom(docID string) {
	c.setRoom("")
	if f, err := ws.NewFrame(ws.EventLeaveDocument, docID, nil); err == nil {
		c.enqueue(f)
	}
}

// Emit sends a best-effort event. Nothing happens when the channel is down.
func (c *Channel) Emit(event, docID string, payload any) {
	f, err := ws.NewFrame(event, docID, payload)
	if err != nil {
		log.Printf("encode %s error: %v", event, err)
		return
	}
	c.enqueue(f)
}

func (c *Channel) Off(sub *Subscription) bool {
	if sub == nil {
		return false
	}
	return c.reg.remove(sub)
}

func (c *Channel) setRoom(docID string) {
	c.mu.Lock()
	c.room = docID
	c.mu.Unlock()
}

func (c *Channel) target(token string) (string, http.Header, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", nil, fmt.Errorf("parse endpoint: %w", err)
	}
	header := http.Header{}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
		header.Set("Authorization", "Bearer "+token)
	}
	return u.String(), header, nil
}

// attach must be called with c.mu held.
func (c *Channel) attach(sock Socket) {
	send := make(chan ws.Frame, c.sendBuffer)
	c.sock, c.send = sock, send
	go c.writeLoop(sock, send)
	go c.readLoop(sock)
}

func (c *Channel) enqueue(f ws.Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.send == nil {
		return false
	}
	select {
	case c.send <- f:
		return true
	default:
		// queue full
		log.Printf("drop %s frame: send queue full", f.Type)
		return false
	}
}

func (c *Channel) writeLoop(sock Socket, send <-chan ws.Frame) {
	for f := range send {
		if err := sock.WriteJSON(f); err != nil {
			log.Printf("write json error: %v", err)
			_ = sock.Close()
		}
	}
}

func (c *Channel) readLoop(sock Socket) {
	for {
		var f ws.Frame
		if err := sock.ReadJSON(&f); err != nil {
			c.dropped(sock, err)
			return
		}
		c.deliver(f.Type, f.DocID, f.Payload)
	}
}

func (c *Channel) dropped(sock Socket, cause error) {
	c.mu.Lock()
	if c.sock != sock {
		// closed by Disconnect or already replaced
		c.mu.Unlock()
		return
	}
	close(c.send)
	c.sock, c.send = nil, nil
	c.room = ""
	token, stop := c.token, c.stop
	c.mu.Unlock()

	_ = sock.Close()
	log.Printf("channel dropped: %v", cause)
	c.raise(Disconnected.name, cause)
	go c.reconnect(token, stop)
}

func (c *Channel) reconnect(token string, stop chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	endpoint, header, err := c.target(token)
	if err != nil {
		log.Printf("reconnect error: %v", err)
		return
	}
	errStopped := errors.New("reconnect stopped")
	op := func() error {
		sock, err := c.dial(ctx, endpoint, header)
		if err != nil {
			c.raise(ConnectError.name, err)
			return err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.stop != stop || c.sock != nil {
			_ = sock.Close()
			return backoff.Permanent(errStopped)
		}
		c.attach(sock)
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(c.newBackOff(), ctx)); err != nil {
		if !errors.Is(err, errStopped) && ctx.Err() == nil {
			log.Printf("reconnect gave up: %v", err)
		}
		return
	}
	log.Printf("channel reconnected: %s", c.endpoint)
	c.raise(Connected.name, struct{}{})
}

func (c *Channel) deliver(event, docID string, raw json.RawMessage) {
	for _, s := range c.reg.snapshot(event) {
		s.fn(docID, raw, nil)
	}
}

func (c *Channel) raise(event string, local any) {
	for _, s := range c.reg.snapshot(event) {
		s.fn("", nil, local)
	}
}
