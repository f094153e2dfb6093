package collab

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PedroReis16/live-document-app-sub000/backend/internal/api"
	"github.com/PedroReis16/live-document-app-sub000/backend/internal/channel"
	"github.com/PedroReis16/live-document-app-sub000/backend/internal/channel/channeltest"
	"github.com/PedroReis16/live-document-app-sub000/backend/internal/docstore"
	"github.com/PedroReis16/live-document-app-sub000/backend/internal/model"
	"github.com/PedroReis16/live-document-app-sub000/backend/internal/ws"
)

type editorFixture struct {
	editor *Editor
	api    *fakeAPI
	clock  *fakeClock
	alerts *recordingAlerter
	ch     *channel.Channel
}

// newEditorFixture builds an editor on an offline channel unless sockets are given.
func newEditorFixture(t *testing.T, sockets ...*channeltest.Socket) *editorFixture {
	t.Helper()
	f := &editorFixture{
		api:    newFakeAPI(model.Document{ID: "doc_1", Title: "Draft", OwnerID: "u_1"}),
		clock:  newFakeClock(),
		alerts: &recordingAlerter{},
	}
	f.ch = channel.New("ws://collab.test/collab/ws", channel.WithDialer(channeltest.NewDialer(sockets...).Dial))
	t.Cleanup(f.ch.Disconnect)
	if len(sockets) > 0 {
		require.NoError(t, f.ch.Connect(context.Background(), "tok"))
	}
	f.editor = NewEditor(f.api, f.ch, docstore.New(), EditorConfig{
		Token:        "tok",
		SelfID:       "u_1",
		SaveDebounce: time.Second,
		TypingWindow: 2 * time.Second,
		JoinTimeout:  eventually,
		Clock:        f.clock,
		Alerter:      f.alerts,
	})
	t.Cleanup(f.editor.Close)
	return f
}

func TestEditor_OpenAndAutosave(t *testing.T) {
	f := newEditorFixture(t)
	require.NoError(t, f.editor.Open(context.Background(), "doc_1"))
	assert.Equal(t, docstore.PhaseReady, f.editor.Store().Phase())
	assert.False(t, f.editor.Dirty())

	f.editor.Edit(model.ContentChange("Hello"))
	assert.True(t, f.editor.Dirty())
	f.clock.Advance(time.Second)

	updates := f.api.Updates()
	require.Len(t, updates, 1)
	assert.Equal(t, "doc_1", updates[0].ID)
	assert.Equal(t, "Hello", *updates[0].Changes.Content)
	assert.False(t, f.editor.Dirty())
}

func TestEditor_OpenMissingDocument(t *testing.T) {
	f := newEditorFixture(t)
	err := f.editor.Open(context.Background(), "doc_404")
	require.ErrorIs(t, err, api.ErrNotFound)
	assert.Equal(t, docstore.PhaseError, f.editor.Store().Phase())
	assert.Equal(t, 1, f.alerts.Count())
}

func TestEditor_CloseCancelsPendingSave(t *testing.T) {
	f := newEditorFixture(t)
	require.NoError(t, f.editor.Open(context.Background(), "doc_1"))
	f.editor.Edit(model.ContentChange("late"))
	f.editor.Close()
	f.clock.Advance(5 * time.Second)

	assert.Empty(t, f.api.Updates())
	assert.Equal(t, docstore.PhaseUninitialized, f.editor.Store().Phase())
	_, err := f.editor.Save(context.Background())
	assert.ErrorIs(t, err, ErrNoDocument)
}

func TestEditor_DraftPromotion(t *testing.T) {
	f := newEditorFixture(t)
	f.api.nextID = "srv_9"

	draft := f.editor.NewDraft()
	require.True(t, model.IsLocalDraft(draft.ID))
	f.editor.Edit(model.TitleChange("Plan"))
	f.clock.Advance(time.Second)
	assert.True(t, f.editor.Dirty())

	saved, err := f.editor.Save(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "srv_9", saved.ID)
	assert.Equal(t, "srv_9", f.editor.Store().CurrentID())

	ids := []string{}
	for _, d := range f.editor.Store().List() {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"srv_9"}, ids)

	f.editor.Edit(model.ContentChange("body"))
	f.clock.Advance(time.Second)
	updates := f.api.Updates()
	require.Len(t, updates, 1)
	assert.Equal(t, "srv_9", updates[0].ID)
	assert.Len(t, f.api.Creates(), 1)
}

func TestEditor_ReopenDraftFromList(t *testing.T) {
	f := newEditorFixture(t)
	draft := f.editor.NewDraft()
	f.editor.Close()

	require.NoError(t, f.editor.Open(context.Background(), draft.ID))
	assert.Equal(t, draft.ID, f.editor.Store().CurrentID())
	assert.ErrorIs(t, f.editor.Open(context.Background(), "local_missing"), ErrNoDocument)
}

func TestEditor_CollaborationBroadcastsAndRebinds(t *testing.T) {
	sock := channeltest.NewSocket()
	room := serveRoom(t, sock, plainAck)
	f := newEditorFixture(t, sock)
	f.api.nextID = "srv_9"

	require.NoError(t, f.editor.SetCollaboration(context.Background(), true))
	require.NoError(t, f.editor.Open(context.Background(), "doc_1"))
	require.Equal(t, SessionActive, f.editor.SessionState())

	f.editor.Edit(model.ContentChange("Hi"))
	f.editor.Typing()
	require.Eventually(t, func() bool {
		return room.count(ws.EventDocumentChange, "doc_1") == 1 && room.count(ws.EventUserTyping, "doc_1") == 1
	}, eventually, 5*time.Millisecond)

	// drafts stay private until saved, then join their new room
	f.editor.NewDraft()
	assert.Equal(t, SessionInactive, f.editor.SessionState())
	f.editor.Edit(model.TitleChange("Plan"))
	_, err := f.editor.Save(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SessionActive, f.editor.SessionState())
	assert.Equal(t, "srv_9", f.ch.Room())
	require.Eventually(t, func() bool { return room.count(ws.EventJoinDocument, "srv_9") == 1 }, eventually, 5*time.Millisecond)
	assert.Zero(t, room.count(ws.EventDocumentChange, "srv_9"))

	require.NoError(t, f.editor.SetCollaboration(context.Background(), false))
	assert.Equal(t, SessionInactive, f.editor.SessionState())
}
