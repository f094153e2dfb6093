package collab

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/PedroReis16/live-document-app-sub000/backend/internal/channel"
	"github.com/PedroReis16/live-document-app-sub000/backend/internal/docstore"
	"github.com/PedroReis16/live-document-app-sub000/backend/internal/model"
	"github.com/PedroReis16/live-document-app-sub000/backend/internal/ws"
)

var (
	ErrDraftNotShared = errors.New("a local draft must be saved before collaborating")
	ErrSessionStopped = errors.New("session stopped while joining")
)

type SessionState int

const (
	SessionInactive SessionState = iota
	SessionJoining
	SessionActive
)

func (s SessionState) String() string {
	switch s {
	case SessionJoining:
		return "joining"
	case SessionActive:
		return "active"
	}
	return "inactive"
}

type CollaboratorLister interface {
	ListCollaborators(ctx context.Context, docID string) ([]model.Collaborator, error)
}

type SessionConfig struct {
	Token        string
	SelfID       string
	TypingWindow time.Duration
	JoinTimeout  time.Duration
	Clock        Clock
	Alerter      Alerter
	// KeepLocal reports unsaved local work; a join snapshot does not overwrite it.
	KeepLocal    func() bool
}

// Session binds the open document to its collaboration room.
type Session struct {
	ch        *channel.Channel
	store     *docstore.Store
	api       CollaboratorLister
	typing    *TypingTracker
	alert     Alerter
	token     string
	selfID    string
	timeout   time.Duration
	keepLocal func() bool

	mu    sync.Mutex
	state SessionState
	docID string
	subs  []*channel.Subscription
}

func NewSession(ch *channel.Channel, store *docstore.Store, api CollaboratorLister, cfg SessionConfig) *Session {
	if cfg.Alerter == nil {
		cfg.Alerter = LogAlerter
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = 10 * time.Second
	}
	if cfg.KeepLocal == nil {
		cfg.KeepLocal = func() bool { return false }
	}
	return &Session{
		ch:        ch,
		store:     store,
		api:       api,
		typing:    NewTypingTracker(cfg.Clock, cfg.TypingWindow, store),
		alert:     cfg.Alerter,
		token:     cfg.Token,
		selfID:    cfg.SelfID,
		timeout:   cfg.JoinTimeout,
		keepLocal: cfg.KeepLocal,
	}
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Active() bool { return s.State() == SessionActive }

func (s *Session) DocumentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docID
}

// Start joins the room of the open document. It is a no-op unless the session is inactive.
func (s *Session) Start(ctx context.Context) error {
	docID := s.store.CurrentID()
	if docID == "" {
		return ErrNoDocument
	}
	if model.IsLocalDraft(docID) {
		return ErrDraftNotShared
	}

	s.mu.Lock()
	if s.state != SessionInactive {
		s.mu.Unlock()
		return nil
	}
	s.state = SessionJoining
	s.docID = docID
	s.subs = s.register(docID)
	s.mu.Unlock()

	joinCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ack, err := s.ch.JoinRoom(joinCtx, docID, s.token)
	if err != nil {
		s.reset(docID)
		s.alert.Alert("Could not start collaboration", err)
		return fmt.Errorf("join %s: %w", docID, err)
	}

	s.mu.Lock()
	if s.state != SessionJoining || s.docID != docID {
		s.mu.Unlock()
		s.ch.LeaveRoom(docID)
		return ErrSessionStopped
	}
	s.state = SessionActive
	s.mu.Unlock()

	s.sync(ctx, docID, ack)
	log.Printf("collaboration active (doc=%s, users=%d)", docID, len(ack.Users))
	return nil
}

// Stop leaves the room and removes every handler the session registered.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state == SessionInactive {
		s.mu.Unlock()
		return
	}
	docID, subs := s.docID, s.subs
	s.state, s.docID, s.subs = SessionInactive, "", nil
	s.mu.Unlock()

	for _, sub := range subs {
		s.ch.Off(sub)
	}
	s.typing.Stop()
	s.ch.LeaveRoom(docID)
}

// Rebind moves the session to the current document id, e.g. after a draft was promoted.
func (s *Session) Rebind(ctx context.Context) error {
	s.Stop()
	return s.Start(ctx)
}

// SendTyping tells the room the local user is typing. Dropped when offline.
func (s *Session) SendTyping() {
	s.mu.Lock()
	docID, active := s.docID, s.state == SessionActive
	s.mu.Unlock()
	if active {
		s.ch.Emit(ws.EventUserTyping, docID, ws.TypingPayload{IsTyping: true})
	}
}

func (s *Session) Typing() *TypingTracker { return s.typing }

// reset returns to inactive after a failed join of docID.
func (s *Session) reset(docID string) {
	s.mu.Lock()
	if s.docID != docID {
		s.mu.Unlock()
		return
	}
	subs := s.subs
	s.state, s.docID, s.subs = SessionInactive, "", nil
	s.mu.Unlock()
	for _, sub := range subs {
		s.ch.Off(sub)
	}
	s.typing.Stop()
}

// sync applies the join acknowledgment: snapshot, then roster.
func (s *Session) sync(ctx context.Context, docID string, ack ws.ConnectedUsersPayload) {
	if ack.Document != nil && s.store.CurrentID() == docID {
		if s.keepLocal() {
			log.Printf("keep local edits over join snapshot (doc=%s)", docID)
		} else {
			s.store.SetCurrentDocument(*ack.Document)
		}
	}

	online := make(map[string]model.Collaborator, len(ack.Users))
	for _, u := range ack.Users {
		u = u.Normalize()
		online[u.ID] = u
	}

	roster, err := s.api.ListCollaborators(ctx, docID)
	if err != nil {
		log.Printf("list collaborators error (doc=%s): %v", docID, err)
		s.alert.Alert("Could not load collaborators", err)
		roster = nil
		for _, u := range online {
			roster = append(roster, u)
		}
	}
	for i := range roster {
		roster[i] = roster[i].Normalize()
		if _, ok := online[roster[i].ID]; ok {
			roster[i].Status = model.StatusOnline
		} else if roster[i].Status == "" {
			roster[i].Status = model.StatusOffline
		}
	}
	s.store.SetCollaborators(roster)
	for _, u := range online {
		if _, ok := s.store.Collaborator(u.ID); !ok {
			u.Status = model.StatusOnline
			s.store.AddCollaborator(u)
		}
	}
}

// current reports whether events for docID still belong to this session and the open document.
func (s *Session) current(docID, eventDocID string) bool {
	if eventDocID != "" && eventDocID != docID {
		return false
	}
	s.mu.Lock()
	ok := s.state != SessionInactive && s.docID == docID
	s.mu.Unlock()
	return ok && s.store.CurrentID() == docID
}

func (s *Session) register(docID string) []*channel.Subscription {
	return []*channel.Subscription{
		channel.On(s.ch, channel.DocumentChange, func(id string, p ws.DocumentChangePayload) {
			if !s.current(docID, id) {
				log.Printf("discard document-change for %s (room %s)", id, docID)
				return
			}
			if s.selfID != "" && p.UserID == s.selfID {
				return
			}
			s.store.ApplyRemoteEdit(p.Changes)
		}),
		channel.On(s.ch, channel.DocumentContent, func(id string, p ws.DocumentContentPayload) {
			doc := p.Document.Normalize()
			if doc.ID != docID || !s.current(docID, id) {
				log.Printf("discard document-content for %s (room %s)", doc.ID, docID)
				return
			}
			s.store.SetCurrentDocument(doc)
		}),
		channel.On(s.ch, channel.UserTyping, func(id string, p ws.TypingPayload) {
			if p.UserID == "" || p.UserID == s.selfID || !s.current(docID, id) {
				return
			}
			if p.IsTyping {
				s.typing.Touch(p.UserID)
			} else {
				s.typing.Forget(p.UserID)
			}
		}),
		channel.On(s.ch, channel.UserConnected, func(id string, p ws.UserConnectedPayload) {
			if !s.current(docID, id) {
				return
			}
			u := p.User.Normalize()
			u.Status = model.StatusOnline
			s.store.AddCollaborator(u)
		}),
		channel.On(s.ch, channel.UserDisconnected, func(id string, p ws.UserDisconnectedPayload) {
			if !s.current(docID, id) {
				return
			}
			s.typing.Forget(p.UserID)
			s.store.UpdateStatus(p.UserID, model.StatusOffline)
		}),
		channel.On(s.ch, channel.Connected, func(string, struct{}) {
			// the server dropped our membership with the old socket
			go s.rejoin(docID)
		}),
	}
}

func (s *Session) rejoin(docID string) {
	s.mu.Lock()
	active := s.state == SessionActive && s.docID == docID
	s.mu.Unlock()
	if !active {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	ack, err := s.ch.JoinRoom(ctx, docID, s.token)
	if err != nil {
		log.Printf("rejoin error (doc=%s): %v", docID, err)
		s.reset(docID)
		s.alert.Alert("Collaboration stopped", err)
		return
	}
	s.sync(ctx, docID, ack)
	log.Printf("collaboration resumed (doc=%s)", docID)
}
