package collab

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/PedroReis16/live-document-app-sub000/backend/internal/docstore"
	"github.com/PedroReis16/live-document-app-sub000/backend/internal/model"
	"github.com/PedroReis16/live-document-app-sub000/backend/internal/ws"
)

var ErrNoDocument = errors.New("no document is open")

// DocumentAPI is the part of the document service the editor needs.
type DocumentAPI interface {
	GetDocument(ctx context.Context, id string) (model.Document, error)
	CreateDocument(ctx context.Context, title, content string) (model.Document, error)
	UpdateDocument(ctx context.Context, id string, changes model.Changes) (model.Document, error)
	ListCollaborators(ctx context.Context, docID string) ([]model.Collaborator, error)
}

type Broadcaster interface {
	Emit(event, docID string, payload any)
}

type SaverConfig struct {
	Debounce       time.Duration
	RequestTimeout time.Duration
	Clock          Clock
	Alerter        Alerter
	// Collaborating reports whether edits must be broadcast right away.
	Collaborating  func() bool
}

// fieldSeq follows one persisted field: the sequence of its last local edit and of the newest
// response to a request that carried it.
type fieldSeq struct {
	edited uint64
	acked  uint64
}

// Saver broadcasts every edit immediately and persists edits after a quiet window.
type Saver struct {
	api      DocumentAPI
	store    *docstore.Store
	bc       Broadcaster
	alert    Alerter
	timeout  time.Duration
	collab   func() bool
	debounce *Debouncer
	promote  singleflight.Group

	// mu orders local edits against server responses so a response never
	// overwrites an edit it does not contain. Store subscribers run under mu.
	mu         sync.Mutex
	editSeq    uint64
	appliedSeq uint64
	title      fieldSeq
	content    fieldSeq

	syncMu        sync.Mutex
	syncedTitle   string
	syncedContent string
}

func NewSaver(api DocumentAPI, store *docstore.Store, bc Broadcaster, cfg SaverConfig) *Saver {
	if cfg.Debounce <= 0 {
		cfg.Debounce = time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if cfg.Alerter == nil {
		cfg.Alerter = LogAlerter
	}
	if cfg.Collaborating == nil {
		cfg.Collaborating = func() bool { return false }
	}
	s := &Saver{
		api:     api,
		store:   store,
		bc:      bc,
		alert:   cfg.Alerter,
		timeout: cfg.RequestTimeout,
		collab:  cfg.Collaborating,
	}
	s.debounce = NewDebouncer(cfg.Clock, cfg.Debounce, s.flush)
	return s
}

// MarkSynced records doc as the last state known to the server.
func (s *Saver) MarkSynced(doc model.Document) {
	s.markSynced(&doc.Title, &doc.Content)
}

func (s *Saver) markSynced(title, content *string) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	if title != nil {
		s.syncedTitle = *title
	}
	if content != nil {
		s.syncedContent = *content
	}
}

func (s *Saver) synced() (title, content string) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	return s.syncedTitle, s.syncedContent
}

// Edit applies changes locally, broadcasts them when collaborating and schedules persistence.
func (s *Saver) Edit(changes model.Changes) {
	if changes.Empty() {
		return
	}
	s.mu.Lock()
	docID := s.store.CurrentID()
	applied := s.store.ApplyLocalEdit(changes)
	if applied {
		s.editSeq++
		if changes.Title != nil {
			s.title.edited = s.editSeq
		}
		if changes.Content != nil {
			s.content.edited = s.editSeq
		}
	}
	s.mu.Unlock()
	if !applied {
		return
	}

	if s.collab() && !model.IsLocalDraft(docID) {
		s.bc.Emit(ws.EventDocumentChange, docID, ws.DocumentChangePayload{Changes: changes})
	}
	s.debounce.Call(changes)
}

// Dirty reports whether the open document has changes the server has not acknowledged.
func (s *Saver) Dirty() bool {
	doc, ok := s.store.Current()
	if !ok {
		return false
	}
	if model.IsLocalDraft(doc.ID) || s.debounce.Pending() {
		return true
	}
	title, content := s.synced()
	return !doc.Diff(title, content).Empty()
}

// Save persists the open document now. A local draft is created on the server instead and the
// returned document carries the new id; callers rebind to it.
func (s *Saver) Save(ctx context.Context) (model.Document, error) {
	doc, ok := s.store.Current()
	if !ok {
		return model.Document{}, ErrNoDocument
	}
	dropped := s.debounce.Drop()

	if model.IsLocalDraft(doc.ID) {
		saved, err := s.promoteDraft(ctx, doc.ID)
		if err != nil {
			s.debounce.Restore(dropped)
			s.alert.Alert("Could not create document", err)
			return model.Document{}, err
		}
		return saved, nil
	}

	changes := doc.Diff(s.synced())
	if changes.Empty() {
		changes = model.TitleChange(doc.Title).Merge(model.ContentChange(doc.Content))
	}
	seq := s.requestSeq(changes)

	saved, err := s.api.UpdateDocument(ctx, doc.ID, changes)
	if err != nil {
		s.debounce.Restore(dropped)
		s.alert.Alert("Could not save document", err)
		return model.Document{}, err
	}
	s.applyResponse(doc.ID, changes, saved, seq)
	return saved, nil
}

// Close cancels pending persistence. Nothing is sent after Close returns.
func (s *Saver) Close() {
	s.debounce.Cancel()
}

func (s *Saver) flush(changes model.Changes) {
	docID := s.store.CurrentID()
	if docID == "" {
		return
	}
	if model.IsLocalDraft(docID) {
		// kept until the draft is promoted
		s.debounce.Restore(changes)
		return
	}
	seq := s.requestSeq(changes)

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	saved, err := s.api.UpdateDocument(ctx, docID, changes)
	if err != nil {
		log.Printf("debounced save error (doc=%s): %v", docID, err)
		s.debounce.Restore(changes)
		s.alert.Alert("Could not save document", err)
		return
	}
	s.applyResponse(docID, changes, saved, seq)
}

// requestSeq is the edit sequence a request carrying changes reflects. An edit can land between
// building changes and reading the sequence; a field whose local value has already moved on caps
// the sequence below that field's last edit.
func (s *Saver) requestSeq(changes model.Changes) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.editSeq
	doc, ok := s.store.Current()
	if !ok {
		return seq
	}
	if changes.Title != nil && *changes.Title != doc.Title && s.title.edited > 0 {
		seq = min(seq, s.title.edited-1)
	}
	if changes.Content != nil && *changes.Content != doc.Content && s.content.edited > 0 {
		seq = min(seq, s.content.edited-1)
	}
	return seq
}

// applyResponse installs a persisted record. sent is what the request carried and seq the edit
// sequence it was built from.
func (s *Saver) applyResponse(requestedID string, sent model.Changes, saved model.Document, seq uint64) {
	if s.install(requestedID, sent, saved, seq) {
		s.store.UpsertInList(saved, false, "")
	}
}

// install takes a field from saved only when the request carried the latest local edit of that
// field; responses may arrive in any order. Metadata follows the newest response. It reports
// whether saved was the newest response.
func (s *Saver) install(requestedID string, sent model.Changes, saved model.Document, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	var accepted model.Changes
	if sent.Title != nil && seq >= s.title.acked {
		s.title.acked = seq
		s.markSynced(&saved.Title, nil)
		if seq >= s.title.edited {
			accepted.Title = &saved.Title
		}
	}
	if sent.Content != nil && seq >= s.content.acked {
		s.content.acked = seq
		s.markSynced(nil, &saved.Content)
		if seq >= s.content.edited {
			accepted.Content = &saved.Content
		}
	}

	fresh := seq >= s.appliedSeq
	if fresh {
		s.appliedSeq = seq
	}
	if s.store.CurrentID() != requestedID {
		return fresh
	}
	switch {
	case fresh && accepted.Title != nil && accepted.Content != nil:
		s.store.ReplaceFromServer(saved)
	case fresh:
		s.store.ReplaceMetadata(saved)
		s.store.ApplyRemoteEdit(accepted)
	default:
		s.store.ApplyRemoteEdit(accepted)
	}
	return fresh
}

func (s *Saver) promoteDraft(ctx context.Context, draftID string) (model.Document, error) {
	v, err, _ := s.promote.Do(draftID, func() (interface{}, error) {
		doc, ok := s.store.Current()
		if !ok || doc.ID != draftID {
			return nil, ErrNoDocument
		}
		sent := model.TitleChange(doc.Title).Merge(model.ContentChange(doc.Content))
		seq := s.requestSeq(sent)

		created, err := s.api.CreateDocument(ctx, doc.Title, doc.Content)
		if err != nil {
			return nil, err
		}

		s.install(draftID, sent, created, seq)
		s.store.UpsertInList(created, true, draftID)
		log.Printf("promoted draft %s to %s", draftID, created.ID)

		// edits made while the create was in flight go out as a regular update
		if cur, ok := s.store.Current(); ok && cur.ID == created.ID {
			if rest := cur.Diff(s.synced()); !rest.Empty() {
				s.debounce.Call(rest)
			}
		}
		return created, nil
	})
	if err != nil {
		return model.Document{}, err
	}
	return v.(model.Document), nil
}
