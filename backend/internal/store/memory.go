package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PedroReis16/live-document-app-sub000/backend/internal/model"
)

// Memory is a Repository kept in process memory, for running the server without MySQL.
type Memory struct {
	mu     sync.RWMutex
	now    func() time.Time
	users  map[string]User
	docs   map[string]model.Document
	grants map[string]map[string]model.Permission // docID -> userID -> permission
	order  map[string][]string                    // docID -> userIDs in grant order
	codes  map[string]ShareCodeRecord
}

var _ Repository = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		now:    time.Now,
		users:  make(map[string]User),
		docs:   make(map[string]model.Document),
		grants: make(map[string]map[string]model.Permission),
		order:  make(map[string][]string),
		codes:  make(map[string]ShareCodeRecord),
	}
}

func (m *Memory) EnsureUser(ctx context.Context, u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *Memory) ListDocuments(ctx context.Context, userID string) ([]model.Document, []model.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var owned, shared []model.Document
	for _, d := range m.docs {
		switch {
		case d.OwnerID == userID:
			owned = append(owned, d)
		case m.grants[d.ID][userID] != "":
			d.Shared = true
			shared = append(shared, d)
		}
	}
	byRecent := func(docs []model.Document) {
		sort.Slice(docs, func(i, j int) bool { return docs[i].UpdatedAt.After(docs[j].UpdatedAt) })
	}
	byRecent(owned)
	byRecent(shared)
	return owned, shared, nil
}

func (m *Memory) GetDocument(ctx context.Context, id string) (model.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[id]
	if !ok {
		return model.Document{}, ErrNotFound
	}
	return d, nil
}

func (m *Memory) CreateDocument(ctx context.Context, ownerID, title, content string) (model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	d := model.Document{ID: uuid.NewString(), Title: title, Content: content, OwnerID: ownerID, CreatedAt: now, UpdatedAt: now}
	m.docs[d.ID] = d
	return d, nil
}

func (m *Memory) UpdateDocument(ctx context.Context, id string, changes model.Changes) (model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return model.Document{}, ErrNotFound
	}
	d.Apply(changes)
	d.UpdatedAt = m.now()
	m.docs[id] = d
	return d, nil
}

func (m *Memory) DeleteDocument(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return ErrNotFound
	}
	delete(m.docs, id)
	delete(m.grants, id)
	delete(m.order, id)
	for code, rec := range m.codes {
		if rec.DocID == id {
			delete(m.codes, code)
		}
	}
	return nil
}

func (m *Memory) Permission(ctx context.Context, docID, userID string) (model.Permission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[docID]
	if !ok {
		return "", ErrNotFound
	}
	if d.OwnerID == userID {
		return model.PermissionOwner, nil
	}
	p, ok := m.grants[docID][userID]
	if !ok {
		return "", ErrNotFound
	}
	return p, nil
}

func (m *Memory) ListCollaborators(ctx context.Context, docID string) ([]model.Collaborator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[docID]
	if !ok {
		return nil, ErrNotFound
	}
	owner := m.users[d.OwnerID]
	out := []model.Collaborator{{ID: d.OwnerID, Name: owner.Name, Email: owner.Email, Permission: model.PermissionOwner}}
	for _, uid := range m.order[docID] {
		p, ok := m.grants[docID][uid]
		if !ok {
			continue
		}
		u := m.users[uid]
		out = append(out, model.Collaborator{ID: uid, Name: u.Name, Email: u.Email, Permission: p})
	}
	return out, nil
}

func (m *Memory) AddCollaborator(ctx context.Context, docID, email string, p model.Permission) (model.Collaborator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[docID]
	if !ok {
		return model.Collaborator{}, ErrNotFound
	}
	var found *User
	for _, u := range m.users {
		if u.Email == email {
			u := u
			found = &u
			break
		}
	}
	if found == nil {
		return model.Collaborator{}, ErrUnknownUser
	}
	if found.ID == d.OwnerID {
		return model.Collaborator{}, ErrAlreadyOwner
	}
	if _, dup := m.grants[docID][found.ID]; dup {
		return model.Collaborator{}, ErrDuplicate
	}
	m.grant(docID, found.ID, p)
	return model.Collaborator{ID: found.ID, Name: found.Name, Email: found.Email, Permission: p}, nil
}

func (m *Memory) grant(docID, userID string, p model.Permission) {
	if m.grants[docID] == nil {
		m.grants[docID] = make(map[string]model.Permission)
	}
	if _, ok := m.grants[docID][userID]; !ok {
		m.order[docID] = append(m.order[docID], userID)
	}
	m.grants[docID][userID] = p
}

func (m *Memory) SetPermission(ctx context.Context, docID, userID string, p model.Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.grants[docID][userID]; !ok {
		return ErrNotFound
	}
	m.grants[docID][userID] = p
	return nil
}

func (m *Memory) RemoveCollaborator(ctx context.Context, docID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.grants[docID][userID]; !ok {
		return ErrNotFound
	}
	delete(m.grants[docID], userID)
	ids := m.order[docID][:0]
	for _, id := range m.order[docID] {
		if id != userID {
			ids = append(ids, id)
		}
	}
	m.order[docID] = ids
	return nil
}

func (m *Memory) CreateShareCode(ctx context.Context, docID string, ttl time.Duration) (string, time.Time, error) {
	code, err := newShareCode()
	if err != nil {
		return "", time.Time{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[docID]; !ok {
		return "", time.Time{}, ErrNotFound
	}
	rec := ShareCodeRecord{Code: code, DocID: docID, ExpiresAt: m.now().Add(ttl)}
	m.codes[code] = rec
	return rec.Code, rec.ExpiresAt, nil
}

func (m *Memory) RedeemShareCode(ctx context.Context, code, userID string) (model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.codes[code]
	if !ok {
		return model.Document{}, ErrNotFound
	}
	if m.now().After(rec.ExpiresAt) {
		return model.Document{}, ErrCodeExpired
	}
	d, ok := m.docs[rec.DocID]
	if !ok {
		return model.Document{}, ErrNotFound
	}
	if d.OwnerID != userID {
		if _, ok := m.grants[d.ID][userID]; !ok {
			m.grant(d.ID, userID, model.PermissionWrite)
		}
		d.Shared = true
	}
	return d, nil
}
