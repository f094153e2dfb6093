package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PedroReis16/live-document-app-sub000/backend/internal/model"
)

func seeded(t *testing.T) (*Memory, model.Document) {
	t.Helper()
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.EnsureUser(ctx, User{ID: "u_owner", Name: "Olga", Email: "olga@example.com"}))
	require.NoError(t, m.EnsureUser(ctx, User{ID: "u_2", Name: "Ana", Email: "ana@example.com"}))
	require.NoError(t, m.EnsureUser(ctx, User{ID: "u_3", Name: "Bo", Email: "bo@example.com"}))
	doc, err := m.CreateDocument(ctx, "u_owner", "Plan", "")
	require.NoError(t, err)
	return m, doc
}

func TestMemory_DocumentLifecycle(t *testing.T) {
	m, doc := seeded(t)
	ctx := context.Background()

	updated, err := m.UpdateDocument(ctx, doc.ID, model.ContentChange("hello"))
	require.NoError(t, err)
	assert.Equal(t, "Plan", updated.Title)
	assert.Equal(t, "hello", updated.Content)

	owned, shared, err := m.ListDocuments(ctx, "u_owner")
	require.NoError(t, err)
	assert.Len(t, owned, 1)
	assert.Empty(t, shared)

	require.NoError(t, m.DeleteDocument(ctx, doc.ID))
	_, err = m.GetDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.DeleteDocument(ctx, doc.ID), ErrNotFound)
}

func TestMemory_Collaborators(t *testing.T) {
	m, doc := seeded(t)
	ctx := context.Background()

	c, err := m.AddCollaborator(ctx, doc.ID, "ana@example.com", model.PermissionWrite)
	require.NoError(t, err)
	assert.Equal(t, "u_2", c.ID)
	_, err = m.AddCollaborator(ctx, doc.ID, "ana@example.com", model.PermissionRead)
	assert.ErrorIs(t, err, ErrDuplicate)
	_, err = m.AddCollaborator(ctx, doc.ID, "nobody@example.com", model.PermissionRead)
	assert.ErrorIs(t, err, ErrUnknownUser)
	_, err = m.AddCollaborator(ctx, doc.ID, "olga@example.com", model.PermissionRead)
	assert.ErrorIs(t, err, ErrAlreadyOwner)

	list, err := m.ListCollaborators(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, model.PermissionOwner, list[0].Permission)
	assert.Equal(t, "Ana", list[1].Name)

	require.NoError(t, m.SetPermission(ctx, doc.ID, "u_2", model.PermissionAdmin))
	p, err := m.Permission(ctx, doc.ID, "u_2")
	require.NoError(t, err)
	assert.Equal(t, model.PermissionAdmin, p)

	_, shared, err := m.ListDocuments(ctx, "u_2")
	require.NoError(t, err)
	require.Len(t, shared, 1)
	assert.True(t, shared[0].Shared)

	require.NoError(t, m.RemoveCollaborator(ctx, doc.ID, "u_2"))
	_, err = m.Permission(ctx, doc.ID, "u_2")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.RemoveCollaborator(ctx, doc.ID, "u_2"), ErrNotFound)
}

func TestMemory_ShareCodes(t *testing.T) {
	m, doc := seeded(t)
	ctx := context.Background()
	now := time.Now()
	m.now = func() time.Time { return now }

	code, expires, err := m.CreateShareCode(ctx, doc.ID, time.Hour)
	require.NoError(t, err)
	assert.Len(t, code, 8)
	assert.Equal(t, now.Add(time.Hour), expires)

	joined, err := m.RedeemShareCode(ctx, code, "u_3")
	require.NoError(t, err)
	assert.True(t, joined.Shared)
	p, err := m.Permission(ctx, doc.ID, "u_3")
	require.NoError(t, err)
	assert.Equal(t, model.PermissionWrite, p)

	// the owner redeeming its own code gains nothing
	own, err := m.RedeemShareCode(ctx, code, "u_owner")
	require.NoError(t, err)
	assert.False(t, own.Shared)

	now = now.Add(2 * time.Hour)
	_, err = m.RedeemShareCode(ctx, code, "u_2")
	assert.ErrorIs(t, err, ErrCodeExpired)
	_, err = m.RedeemShareCode(ctx, "NOPE", "u_2")
	assert.ErrorIs(t, err, ErrNotFound)
}
