package collab

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/PedroReis16/live-document-app-sub000/backend/internal/api"
	"github.com/PedroReis16/live-document-app-sub000/backend/internal/model"
)

// fakeClock fires due timers synchronously inside Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()
	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			// a nested Advance may already have moved past target
			if target.After(c.now) {
				c.now = target
			}
			c.mu.Unlock()
			return
		}
		next.fired = true
		if next.at.After(c.now) {
			c.now = next.at
		}
		c.mu.Unlock()
		next.f()
	}
}

type updateCall struct {
	ID      string
	Changes model.Changes
}

type fakeAPI struct {
	mu            sync.Mutex
	docs          map[string]model.Document
	updates       []updateCall
	creates       []model.Document
	deletes       []string
	collaborators []model.Collaborator
	nextID        string
	failUpdate    error
	failCreate    error
	createGate    chan struct{}
	createEntered chan struct{}
	onUpdate      func()

	shares      []string
	permissions map[string]model.Permission
	removed     []string
}

func newFakeAPI(docs ...model.Document) *fakeAPI {
	f := &fakeAPI{docs: make(map[string]model.Document), permissions: make(map[string]model.Permission)}
	for _, d := range docs {
		f.docs[d.ID] = d
	}
	return f
}

func (f *fakeAPI) GetDocument(ctx context.Context, id string) (model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return model.Document{}, api.ErrNotFound
	}
	return d, nil
}

func (f *fakeAPI) CreateDocument(ctx context.Context, title, content string) (model.Document, error) {
	if f.createEntered != nil {
		f.createEntered <- struct{}{}
	}
	if f.createGate != nil {
		<-f.createGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate != nil {
		return model.Document{}, f.failCreate
	}
	id := f.nextID
	if id == "" {
		id = fmt.Sprintf("srv_%d", len(f.creates)+1)
	}
	d := model.Document{ID: id, Title: title, Content: content}
	f.creates = append(f.creates, d)
	f.docs[id] = d
	return d, nil
}

func (f *fakeAPI) UpdateDocument(ctx context.Context, id string, changes model.Changes) (model.Document, error) {
	f.mu.Lock()
	f.updates = append(f.updates, updateCall{ID: id, Changes: changes})
	hook := f.onUpdate
	f.onUpdate = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if model.IsLocalDraft(id) {
		return model.Document{}, api.ErrLocalDraft
	}
	if f.failUpdate != nil {
		return model.Document{}, f.failUpdate
	}
	d := f.docs[id]
	d.ID = id
	d.Apply(changes)
	f.docs[id] = d
	return d, nil
}

func (f *fakeAPI) ListCollaborators(ctx context.Context, docID string) ([]model.Collaborator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Collaborator(nil), f.collaborators...), nil
}

func (f *fakeAPI) ListDocuments(ctx context.Context) ([]model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Document, 0, len(f.docs))
	for _, d := range f.docs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeAPI) DeleteDocument(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, id)
	delete(f.docs, id)
	return nil
}

func (f *fakeAPI) ShareDocument(ctx context.Context, docID, email string, p model.Permission) (model.Collaborator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shares = append(f.shares, email)
	return model.Collaborator{ID: "u_" + email, Email: email, Permission: p}, nil
}

func (f *fakeAPI) UpdatePermission(ctx context.Context, docID, userID string, p model.Permission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.permissions[userID] = p
	return nil
}

func (f *fakeAPI) RemoveCollaborator(ctx context.Context, docID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, userID)
	return nil
}

func (f *fakeAPI) GenerateShareCode(ctx context.Context, docID string) (api.ShareCode, error) {
	return api.ShareCode{Code: "ABC123"}, nil
}

func (f *fakeAPI) JoinByCode(ctx context.Context, code string) (model.Document, error) {
	return model.Document{ID: "shared_1", Title: "Shared"}, nil
}

func (f *fakeAPI) Updates() []updateCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]updateCall(nil), f.updates...)
}

func (f *fakeAPI) Creates() []model.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Document(nil), f.creates...)
}

type emitted struct {
	Event   string
	DocID   string
	Payload any
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []emitted
}

func (b *fakeBroadcaster) Emit(event, docID string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, emitted{Event: event, DocID: docID, Payload: payload})
}

func (b *fakeBroadcaster) Events() []emitted {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]emitted(nil), b.events...)
}

type recordingAlerter struct {
	mu     sync.Mutex
	titles []string
}

func (a *recordingAlerter) Alert(title string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.titles = append(a.titles, title)
}

func (a *recordingAlerter) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.titles)
}

func strp(s string) *string { return &s }
