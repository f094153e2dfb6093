package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/PedroReis16/live-document-app-sub000/backend/internal/model"
	"github.com/PedroReis16/live-document-app-sub000/backend/internal/store"
)

// TokenVerifier returns the user a token belongs to.
type TokenVerifier func(token string) (userID string, err error)

// Conn is one client websocket. Outbound frames go through send; a full queue drops frames.
type Conn struct {
	ws       *websocket.Conn
	hub      *Hub
	verify   TokenVerifier
	userID   string
	username string
	send     chan Frame

	sendMu sync.Mutex
	closed bool

	mu    sync.Mutex
	docID string
	perm  model.Permission
}

func NewConn(ws *websocket.Conn, hub *Hub, verify TokenVerifier, userID, username string) *Conn {
	return &Conn{ws: ws, hub: hub, verify: verify, userID: userID, username: username, send: make(chan Frame, 64)}
}

func (c *Conn) Enqueue(f Frame) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- f:
	default:
		log.Printf("send queue full, drop %s (user=%s)", f.Type, c.userID)
	}
}

func (c *Conn) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Conn) reply(event, docID string, payload any) {
	f, err := NewFrame(event, docID, payload)
	if err != nil {
		log.Printf("encode %s error: %v", event, err)
		return
	}
	c.Enqueue(f)
}

func (c *Conn) fail(event, docID, code, message string) {
	c.reply(event, docID, ErrorPayload{Code: code, Message: message})
}

func (c *Conn) room() (string, model.Permission) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.docID, c.perm
}

func (c *Conn) readLoop(ctx context.Context) {
	defer c.closeSend()
	defer func() {
		if docID, _ := c.room(); docID != "" {
			c.leave(context.Background(), docID)
		}
	}()
	for {
		var f Frame
		if err := c.ws.ReadJSON(&f); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("read json error (user=%s): %v", c.userID, err)
			}
			return
		}
		if docID, _ := c.room(); docID != "" {
			c.hub.touch(ctx, docID, c)
		}

		switch f.Type {
		case EventJoinDocument:
			c.join(ctx, f)
		case EventLeaveDocument:
			if docID, _ := c.room(); docID != "" && (f.DocID == "" || f.DocID == docID) {
				c.leave(ctx, docID)
			}
		case EventDocumentChange:
			c.relayChange(f)
		case EventUserTyping:
			c.relayTyping(f)
		default:
			c.fail(EventError, f.DocID, "UNKNOWN_EVENT", "unknown event "+f.Type)
		}
	}
}

func (c *Conn) writeLoop() {
	for f := range c.send {
		if err := c.ws.WriteJSON(f); err != nil {
			log.Printf("write json error (user=%s): %v", c.userID, err)
		}
	}
}

func (c *Conn) join(ctx context.Context, f Frame) {
	if f.DocID == "" {
		c.fail(EventError, "", "BAD_REQUEST", "docId is required")
		return
	}
	if f.Token != "" && c.verify != nil {
		if uid, err := c.verify(f.Token); err != nil || uid != c.userID {
			c.fail(EventAuthError, f.DocID, "UNAUTHENTICATED", "invalid token")
			return
		}
	}
	perm, err := c.hub.repo.Permission(ctx, f.DocID, c.userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.fail(EventError, f.DocID, "NOT_FOUND", "document not found")
		} else {
			log.Printf("permission error (doc=%s, user=%s): %v", f.DocID, c.userID, err)
			c.fail(EventError, f.DocID, "INTERNAL", "join failed")
		}
		return
	}
	doc, err := c.hub.repo.GetDocument(ctx, f.DocID)
	if err != nil {
		log.Printf("load document error (doc=%s): %v", f.DocID, err)
		c.fail(EventError, f.DocID, "INTERNAL", "join failed")
		return
	}

	if prev, _ := c.room(); prev != "" && prev != f.DocID {
		c.leave(ctx, prev)
	}
	c.mu.Lock()
	c.docID, c.perm = f.DocID, perm
	c.mu.Unlock()
	c.hub.Join(f.DocID, c)
	c.hub.touch(ctx, f.DocID, c)

	c.reply(EventConnectedUsers, f.DocID, ConnectedUsersPayload{
		DocumentID: f.DocID,
		Users:      c.hub.Members(ctx, f.DocID),
		Document:   &doc,
	})
	user := model.Collaborator{ID: c.userID, Name: c.username, Permission: perm, Status: model.StatusOnline}
	if out, err := NewFrame(EventUserConnected, f.DocID, UserConnectedPayload{User: user}); err == nil {
		c.hub.Broadcast(f.DocID, c, out)
	}
}

func (c *Conn) leave(ctx context.Context, docID string) {
	c.mu.Lock()
	if c.docID == docID {
		c.docID, c.perm = "", ""
	}
	c.mu.Unlock()

	if c.hub.Leave(docID, c) {
		return
	}
	c.hub.drop(ctx, docID, c)
	if out, err := NewFrame(EventUserDisconnected, docID, UserDisconnectedPayload{UserID: c.userID}); err == nil {
		c.hub.Broadcast(docID, c, out)
	}
}

func (c *Conn) relayChange(f Frame) {
	docID, perm := c.room()
	if docID == "" || f.DocID != docID {
		c.fail(EventError, f.DocID, "NOT_JOINED", "join the document first")
		return
	}
	if !perm.Allows(model.PermissionWrite) {
		c.fail(EventError, docID, "FORBIDDEN", "read-only access")
		return
	}
	var p DocumentChangePayload
	if err := json.Unmarshal(f.Payload, &p); err != nil || p.Changes.Empty() {
		c.fail(EventError, docID, "BAD_REQUEST", "invalid change")
		return
	}
	p.UserID = c.userID
	if out, err := NewFrame(EventDocumentChange, docID, p); err == nil {
		c.hub.Broadcast(docID, c, out)
	}
}

func (c *Conn) relayTyping(f Frame) {
	docID, _ := c.room()
	if docID == "" || f.DocID != docID {
		return
	}
	p := TypingPayload{IsTyping: true}
	if len(f.Payload) > 0 {
		_ = json.Unmarshal(f.Payload, &p)
	}
	p.UserID = c.userID
	if out, err := NewFrame(EventUserTyping, docID, p); err == nil {
		c.hub.Broadcast(docID, c, out)
	}
}
