package collab

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/PedroReis16/live-document-app-sub000/backend/internal/channel"
	"github.com/PedroReis16/live-document-app-sub000/backend/internal/docstore"
	"github.com/PedroReis16/live-document-app-sub000/backend/internal/model"
)

type EditorConfig struct {
	Token          string
	SelfID         string
	SaveDebounce   time.Duration
	TypingWindow   time.Duration
	RequestTimeout time.Duration
	JoinTimeout    time.Duration
	Clock          Clock
	Alerter        Alerter
}

// Editor is what a document screen talks to: the open document, its dirty state and save.
// Each Open or NewDraft mounts a fresh Saver and Session; Close tears both down.
type Editor struct {
	api   DocumentAPI
	ch    *channel.Channel
	store *docstore.Store
	cfg   EditorConfig

	mu          sync.Mutex
	saver       *Saver
	session     *Session
	collaborate bool
}

func NewEditor(api DocumentAPI, ch *channel.Channel, store *docstore.Store, cfg EditorConfig) *Editor {
	if cfg.Clock == nil {
		cfg.Clock = SystemClock
	}
	if cfg.Alerter == nil {
		cfg.Alerter = LogAlerter
	}
	return &Editor{api: api, ch: ch, store: store, cfg: cfg}
}

func (e *Editor) Store() *docstore.Store { return e.store }

// Open loads id from the server and joins its room when collaboration is on or the document is shared.
func (e *Editor) Open(ctx context.Context, id string) error {
	e.Close()

	if model.IsLocalDraft(id) {
		for _, d := range e.store.List() {
			if d.ID == id {
				e.store.SetCurrentDocument(d)
				e.mount(model.Document{})
				return nil
			}
		}
		return ErrNoDocument
	}

	e.store.BeginLoad(id)
	doc, err := e.api.GetDocument(ctx, id)
	if err != nil {
		e.store.FailLoad(id, err)
		e.cfg.Alerter.Alert("Could not open document", err)
		return err
	}
	e.store.SetCurrentDocument(doc)
	session := e.mount(doc)

	e.mu.Lock()
	want := e.collaborate || doc.Shared
	e.mu.Unlock()
	if want {
		if err := session.Start(ctx); err != nil {
			// the document stays open without collaboration
			log.Printf("start collaboration error (doc=%s): %v", id, err)
		}
	}
	return nil
}

// NewDraft opens an empty local draft.
func (e *Editor) NewDraft() model.Document {
	e.Close()
	draft := model.NewDraft(e.cfg.SelfID, e.cfg.Clock.Now())
	e.store.SetCurrentDocument(draft)
	e.store.UpsertInList(draft, true, "")
	e.mount(model.Document{})
	return draft
}

func (e *Editor) mount(synced model.Document) *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	var session *Session
	saver := NewSaver(e.api, e.store, e.ch, SaverConfig{
		Debounce:       e.cfg.SaveDebounce,
		RequestTimeout: e.cfg.RequestTimeout,
		Clock:          e.cfg.Clock,
		Alerter:        e.cfg.Alerter,
		Collaborating:  func() bool { return session.Active() },
	})
	saver.MarkSynced(synced)
	session = NewSession(e.ch, e.store, e.api, SessionConfig{
		Token:        e.cfg.Token,
		SelfID:       e.cfg.SelfID,
		TypingWindow: e.cfg.TypingWindow,
		JoinTimeout:  e.cfg.JoinTimeout,
		Clock:        e.cfg.Clock,
		Alerter:      e.cfg.Alerter,
		KeepLocal:    saver.Dirty,
	})
	e.saver, e.session = saver, session
	return session
}

func (e *Editor) mounted() (*Saver, *Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.saver, e.session
}

func (e *Editor) Edit(changes model.Changes) {
	if saver, _ := e.mounted(); saver != nil {
		saver.Edit(changes)
	}
}

// Typing announces local typing to the room.
func (e *Editor) Typing() {
	if _, session := e.mounted(); session != nil {
		session.SendTyping()
	}
}

func (e *Editor) Dirty() bool {
	saver, _ := e.mounted()
	return saver != nil && saver.Dirty()
}

// Save persists now. After a draft promotion the session follows the new id.
func (e *Editor) Save(ctx context.Context) (model.Document, error) {
	saver, session := e.mounted()
	if saver == nil {
		return model.Document{}, ErrNoDocument
	}
	before := e.store.CurrentID()
	saved, err := saver.Save(ctx)
	if err != nil {
		return model.Document{}, err
	}
	if before != saved.ID {
		e.mu.Lock()
		want := e.collaborate
		e.mu.Unlock()
		if want {
			if err := session.Rebind(ctx); err != nil {
				log.Printf("rebind collaboration error (doc=%s): %v", saved.ID, err)
			}
		}
	}
	return saved, nil
}

// SetCollaboration turns the collaboration toggle on or off for the open document.
func (e *Editor) SetCollaboration(ctx context.Context, on bool) error {
	e.mu.Lock()
	e.collaborate = on
	session := e.session
	e.mu.Unlock()
	if session == nil {
		return nil
	}
	if !on {
		session.Stop()
		return nil
	}
	if model.IsLocalDraft(e.store.CurrentID()) {
		// joins once the draft is saved
		return nil
	}
	return session.Start(ctx)
}

func (e *Editor) SessionState() SessionState {
	if _, session := e.mounted(); session != nil {
		return session.State()
	}
	return SessionInactive
}

// Close cancels pending saves, leaves the room and clears the open document.
func (e *Editor) Close() {
	e.mu.Lock()
	saver, session := e.saver, e.session
	e.saver, e.session = nil, nil
	e.mu.Unlock()
	if saver != nil {
		saver.Close()
	}
	if session != nil {
		session.Stop()
	}
	e.store.Clear()
}
