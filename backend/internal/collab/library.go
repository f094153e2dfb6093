package collab

import (
	"context"
	"errors"

	"github.com/PedroReis16/live-document-app-sub000/backend/internal/api"
	"github.com/PedroReis16/live-document-app-sub000/backend/internal/docstore"
	"github.com/PedroReis16/live-document-app-sub000/backend/internal/model"
)

type LibraryAPI interface {
	ListDocuments(ctx context.Context) ([]model.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	ShareDocument(ctx context.Context, docID, email string, p model.Permission) (model.Collaborator, error)
	UpdatePermission(ctx context.Context, docID, userID string, p model.Permission) error
	RemoveCollaborator(ctx context.Context, docID, userID string) error
	GenerateShareCode(ctx context.Context, docID string) (api.ShareCode, error)
	JoinByCode(ctx context.Context, code string) (model.Document, error)
}

var ErrUnknownCollaborator = errors.New("collaborator not found")

// Library covers the document list and collaborator management around the open document.
type Library struct {
	api    LibraryAPI
	store  *docstore.Store
	alert  Alerter
	selfID string
}

func NewLibrary(a LibraryAPI, store *docstore.Store, selfID string, alert Alerter) *Library {
	if alert == nil {
		alert = LogAlerter
	}
	return &Library{api: a, store: store, alert: alert, selfID: selfID}
}

// Refresh reloads the document list. Local drafts not yet promoted are kept at the top.
func (l *Library) Refresh(ctx context.Context) ([]model.Document, error) {
	docs, err := l.api.ListDocuments(ctx)
	if err != nil {
		l.alert.Alert("Could not load documents", err)
		return nil, err
	}
	var drafts []model.Document
	for _, d := range l.store.List() {
		if model.IsLocalDraft(d.ID) {
			drafts = append(drafts, d)
		}
	}
	l.store.SetList(append(drafts, docs...))
	return l.store.List(), nil
}

func (l *Library) Delete(ctx context.Context, id string) error {
	if !model.IsLocalDraft(id) {
		if err := l.api.DeleteDocument(ctx, id); err != nil {
			l.alert.Alert("Could not delete document", err)
			return err
		}
	}
	l.store.RemoveFromList(id)
	if l.store.CurrentID() == id {
		l.store.Clear()
	}
	return nil
}

// Share invites email to the open document. Only the owner or an admin may invite.
func (l *Library) Share(ctx context.Context, email, permission string) (model.Collaborator, error) {
	doc, ok := l.store.Current()
	if !ok {
		return model.Collaborator{}, ErrNoDocument
	}
	p, err := model.ParseGrant(permission)
	if err != nil {
		return model.Collaborator{}, err
	}
	if actor := l.actor(doc); actor.Permission != model.PermissionOwner && actor.Permission != model.PermissionAdmin {
		return model.Collaborator{}, model.ErrNotPermitted
	}
	c, err := l.api.ShareDocument(ctx, doc.ID, email, p)
	if err != nil {
		l.alert.Alert("Could not share document", err)
		return model.Collaborator{}, err
	}
	l.store.AddCollaborator(c)
	return c, nil
}

func (l *Library) SetPermission(ctx context.Context, userID, permission string) error {
	doc, target, err := l.manageable(userID)
	if err != nil {
		return err
	}
	p, err := model.ParseGrant(permission)
	if err != nil {
		return err
	}
	if err := l.api.UpdatePermission(ctx, doc.ID, target.ID, p); err != nil {
		l.alert.Alert("Could not change permission", err)
		return err
	}
	l.store.UpdatePermission(target.ID, p)
	return nil
}

func (l *Library) RemoveCollaborator(ctx context.Context, userID string) error {
	doc, target, err := l.manageable(userID)
	if err != nil {
		return err
	}
	if err := l.api.RemoveCollaborator(ctx, doc.ID, target.ID); err != nil {
		l.alert.Alert("Could not remove collaborator", err)
		return err
	}
	l.store.RemoveCollaborator(target.ID)
	return nil
}

func (l *Library) ShareCode(ctx context.Context) (api.ShareCode, error) {
	doc, ok := l.store.Current()
	if !ok {
		return api.ShareCode{}, ErrNoDocument
	}
	if model.IsLocalDraft(doc.ID) {
		return api.ShareCode{}, ErrDraftNotShared
	}
	code, err := l.api.GenerateShareCode(ctx, doc.ID)
	if err != nil {
		l.alert.Alert("Could not create share code", err)
	}
	return code, err
}

// JoinByCode redeems a share code and lists the document as shared.
func (l *Library) JoinByCode(ctx context.Context, code string) (model.Document, error) {
	doc, err := l.api.JoinByCode(ctx, code)
	if err != nil {
		l.alert.Alert("Could not join document", err)
		return model.Document{}, err
	}
	doc.Shared = true
	l.store.UpsertInList(doc, true, "")
	return doc, nil
}

func (l *Library) manageable(userID string) (model.Document, model.Collaborator, error) {
	doc, ok := l.store.Current()
	if !ok {
		return model.Document{}, model.Collaborator{}, ErrNoDocument
	}
	target, ok := l.store.Collaborator(userID)
	if !ok {
		return model.Document{}, model.Collaborator{}, ErrUnknownCollaborator
	}
	if err := model.CanManage(doc, l.actor(doc), target); err != nil {
		return model.Document{}, model.Collaborator{}, err
	}
	return doc, target, nil
}

func (l *Library) actor(doc model.Document) model.Collaborator {
	if doc.OwnerID != "" && doc.OwnerID == l.selfID {
		return model.Collaborator{ID: l.selfID, Permission: model.PermissionOwner}
	}
	if c, ok := l.store.Collaborator(l.selfID); ok {
		return c
	}
	return model.Collaborator{ID: l.selfID, Permission: model.PermissionRead}
}
