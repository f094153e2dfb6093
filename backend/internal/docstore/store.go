package docstore

import (
	"slices"
	"sync"

	"github.com/PedroReis16/live-document-app-sub000/backend/internal/model"
)

type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseLoading
	PhaseReady
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	case PhaseError:
		return "error"
	}
	return "uninitialized"
}

// Snapshot is a copy of the store state handed to subscribers.
type Snapshot struct {
	Phase         Phase
	Err           error
	Document      *model.Document
	Collaborators []model.Collaborator
}

type Option func(*Store)

// WithTitlePurge toggles dropping local drafts that share a title with a persisted document on upsert.
func WithTitlePurge(on bool) Option { return func(s *Store) { s.titlePurge = on } }

// Store holds the open document, the document list and the collaborator roster of the session.
//
// Remote and local edits are merged field by field and the last one applied wins. There is no
// version check: arrival order decides.
type Store struct {
	mu            sync.RWMutex
	phase         Phase
	loadingID     string
	err           error
	current       *model.Document
	list          []model.Document
	collaborators []model.Collaborator
	titlePurge    bool

	subMu   sync.Mutex
	subs    map[int]func(Snapshot)
	nextSub int
}

func New(opts ...Option) *Store {
	s := &Store{titlePurge: true, subs: make(map[int]func(Snapshot))}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

func (s *Store) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Current returns a copy of the open document.
func (s *Store) Current() (model.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return model.Document{}, false
	}
	return cloneDoc(*s.current), true
}

func (s *Store) CurrentID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return ""
	}
	return s.current.ID
}

// BeginLoad marks a fetch of id as in flight.
func (s *Store) BeginLoad(id string) {
	s.update(func() bool {
		s.phase = PhaseLoading
		s.loadingID = id
		s.err = nil
		if s.current != nil && s.current.ID != id {
			s.current = nil
			s.collaborators = nil
		}
		return true
	})
}

// FailLoad moves to PhaseError when id is still the fetch in flight.
func (s *Store) FailLoad(id string, err error) {
	s.update(func() bool {
		if s.phase != PhaseLoading || s.loadingID != id {
			return false
		}
		s.phase = PhaseError
		s.err = err
		s.loadingID = ""
		return true
	})
}

// SetCurrentDocument replaces the open document unconditionally.
func (s *Store) SetCurrentDocument(doc model.Document) {
	doc = cloneDoc(doc.Normalize())
	s.update(func() bool {
		s.current = &doc
		s.phase = PhaseReady
		s.err = nil
		s.loadingID = ""
		return true
	})
}

func (s *Store) ApplyLocalEdit(c model.Changes) bool { return s.applyEdit(c) }

func (s *Store) ApplyRemoteEdit(c model.Changes) bool { return s.applyEdit(c) }

func (s *Store) applyEdit(c model.Changes) bool {
	applied := false
	s.update(func() bool {
		if s.current == nil || c.Empty() {
			return false
		}
		s.current.Apply(c)
		applied = true
		return true
	})
	return applied
}

// ReplaceFromServer installs the persisted record, including a new id after draft promotion.
func (s *Store) ReplaceFromServer(doc model.Document) {
	s.SetCurrentDocument(doc)
}

// ReplaceMetadata takes id, owner, timestamps and sharing from doc but keeps the local title and content.
func (s *Store) ReplaceMetadata(doc model.Document) {
	doc = cloneDoc(doc.Normalize())
	s.update(func() bool {
		if s.current == nil {
			s.current = &doc
			s.phase = PhaseReady
			return true
		}
		s.current.ID = doc.ID
		s.current.OwnerID = doc.OwnerID
		s.current.CreatedAt = doc.CreatedAt
		s.current.UpdatedAt = doc.UpdatedAt
		s.current.Shared = doc.Shared
		s.current.Collaborators = doc.Collaborators
		return true
	})
}

// Clear forgets the open document and its roster.
func (s *Store) Clear() {
	s.update(func() bool {
		s.current = nil
		s.collaborators = nil
		s.phase = PhaseUninitialized
		s.err = nil
		s.loadingID = ""
		return true
	})
}

// Subscribe calls fn after every state change until cancel is called.
func (s *Store) Subscribe(fn func(Snapshot)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{Phase: s.phase, Err: s.err, Collaborators: slices.Clone(s.collaborators)}
	if s.current != nil {
		d := cloneDoc(*s.current)
		snap.Document = &d
	}
	return snap
}

// update runs fn under the write lock and notifies subscribers when fn reports a change.
func (s *Store) update(fn func() bool) {
	s.mu.Lock()
	changed := fn()
	var snap Snapshot
	if changed {
		snap = s.snapshotLocked()
	}
	s.mu.Unlock()
	if !changed {
		return
	}

	s.subMu.Lock()
	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subMu.Unlock()
	for _, sub := range subs {
		sub(snap)
	}
}

func cloneDoc(d model.Document) model.Document {
	d.Collaborators = slices.Clone(d.Collaborators)
	return d
}
