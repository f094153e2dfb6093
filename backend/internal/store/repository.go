// Package store persists documents, collaborators and share codes for the collaboration server.
package store

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"time"

	"github.com/PedroReis16/live-document-app-sub000/backend/internal/model"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicate    = errors.New("record already exists")
	ErrUnknownUser  = errors.New("no user with that email")
	ErrCodeExpired  = errors.New("share code expired")
	ErrAlreadyOwner = errors.New("user already owns the document")
)

type User struct {
	ID    string
	Name  string
	Email string
}

// Repository is the persistence the REST and websocket layers need.
type Repository interface {
	EnsureUser(ctx context.Context, u User) error

	ListDocuments(ctx context.Context, userID string) (owned, shared []model.Document, err error)
	GetDocument(ctx context.Context, id string) (model.Document, error)
	CreateDocument(ctx context.Context, ownerID, title, content string) (model.Document, error)
	UpdateDocument(ctx context.Context, id string, changes model.Changes) (model.Document, error)
	DeleteDocument(ctx context.Context, id string) error

	// Permission returns PermissionOwner for the owner and the granted permission for collaborators.
	Permission(ctx context.Context, docID, userID string) (model.Permission, error)
	ListCollaborators(ctx context.Context, docID string) ([]model.Collaborator, error)
	AddCollaborator(ctx context.Context, docID, email string, p model.Permission) (model.Collaborator, error)
	SetPermission(ctx context.Context, docID, userID string, p model.Permission) error
	RemoveCollaborator(ctx context.Context, docID, userID string) error

	CreateShareCode(ctx context.Context, docID string, ttl time.Duration) (code string, expiresAt time.Time, err error)
	RedeemShareCode(ctx context.Context, code, userID string) (model.Document, error)
}

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func newShareCode() (string, error) {
	b := make([]byte, 8)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", err
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b), nil
}
