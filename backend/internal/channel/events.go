package channel

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/PedroReis16/live-document-app-sub000/backend/internal/ws"
)

// Event names a message kind together with the Go type of its payload.
type Event[T any] struct{ name string }

func NewEvent[T any](name string) Event[T] { return Event[T]{name: name} }

func (e Event[T]) Name() string { return e.name }

var (
	DocumentChange   = NewEvent[ws.DocumentChangePayload](ws.EventDocumentChange)
	DocumentContent  = NewEvent[ws.DocumentContentPayload](ws.EventDocumentContent)
	UserTyping       = NewEvent[ws.TypingPayload](ws.EventUserTyping)
	UserConnected    = NewEvent[ws.UserConnectedPayload](ws.EventUserConnected)
	UserDisconnected = NewEvent[ws.UserDisconnectedPayload](ws.EventUserDisconnected)
	ConnectedUsers   = NewEvent[ws.ConnectedUsersPayload](ws.EventConnectedUsers)
	AuthError        = NewEvent[ws.ErrorPayload](ws.EventAuthError)
	ServerError      = NewEvent[ws.ErrorPayload](ws.EventError)

	// lifecycle, raised locally
	Connected    = NewEvent[struct{}]("connect")
	Disconnected = NewEvent[error]("disconnect")
	ConnectError = NewEvent[error]("connect_error")
)

type handlerFunc func(docID string, raw json.RawMessage, local any)

// Subscription is the handle returned by On and Once. Off removes exactly this handle.
type Subscription struct {
	event string
	fn    handlerFunc
}

// On registers h for ev. Handlers of one event run in registration order on the channel's read goroutine.
func On[T any](c *Channel, ev Event[T], h func(docID string, payload T)) *Subscription {
	sub := &Subscription{event: ev.name, fn: decodeInto(ev.name, h)}
	c.reg.add(sub)
	return sub
}

// Once registers h for a single delivery; the subscription removes itself before h runs.
func Once[T any](c *Channel, ev Event[T], h func(docID string, payload T)) *Subscription {
	sub := &Subscription{event: ev.name}
	var once sync.Once
	inner := decodeInto(ev.name, h)
	sub.fn = func(docID string, raw json.RawMessage, local any) {
		once.Do(func() {
			c.reg.remove(sub)
			inner(docID, raw, local)
		})
	}
	c.reg.add(sub)
	return sub
}

func decodeInto[T any](name string, h func(string, T)) handlerFunc {
	return func(docID string, raw json.RawMessage, local any) {
		var payload T
		if local != nil {
			if v, ok := local.(T); ok {
				payload = v
			}
		} else if len(raw) > 0 {
			if err := json.Unmarshal(raw, &payload); err != nil {
				log.Printf("decode %s payload error: %v", name, err)
				return
			}
		}
		h(docID, payload)
	}
}

type registry struct {
	mu       sync.Mutex
	handlers map[string][]*Subscription
}

func (r *registry) add(s *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers == nil {
		r.handlers = make(map[string][]*Subscription)
	}
	r.handlers[s.event] = append(r.handlers[s.event], s)
}

func (r *registry) remove(s *Subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.handlers[s.event]
	for i, cur := range list {
		if cur == s {
			next := make([]*Subscription, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			if len(next) == 0 {
				delete(r.handlers, s.event)
			} else {
				r.handlers[s.event] = next
			}
			return true
		}
	}
	return false
}

func (r *registry) snapshot(event string) []*Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handlers[event]
}

// HandlerCount reports how many handlers are registered for event.
func (c *Channel) HandlerCount(event string) int { return c.reg.count(event) }

func (r *registry) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers[event])
}
