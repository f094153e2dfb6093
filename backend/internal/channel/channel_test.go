package channel_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/PedroReis16/live-document-app-sub000/backend/internal/channel"
	"github.com/PedroReis16/live-document-app-sub000/backend/internal/channel/channeltest"
	"github.com/PedroReis16/live-document-app-sub000/backend/internal/model"
	"github.com/PedroReis16/live-document-app-sub000/backend/internal/ws"
)

const wait = 2 * time.Second

func newTestChannel(t *testing.T, sockets ...*channeltest.Socket) (*channel.Channel, *channeltest.Dialer) {
	t.Helper()
	d := channeltest.NewDialer(sockets...)
	c := channel.New("ws://collab.test/collab/ws",
		channel.WithDialer(d.Dial),
		channel.WithBackOff(func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }),
	)
	t.Cleanup(c.Disconnect)
	return c, d
}

// ackJoins answers every join-document with a matching connected-users frame and forwards all frames.
func ackJoins(sock *channeltest.Socket, n int) <-chan ws.Frame {
	frames := make(chan ws.Frame, n)
	go func() {
		defer close(frames)
		for i := 0; i < n; i++ {
			f, ok := sock.Next(wait)
			if !ok {
				return
			}
			frames <- f
			if f.Type == ws.EventJoinDocument {
				_ = sock.Push(ws.EventConnectedUsers, f.DocID, ws.ConnectedUsersPayload{DocumentID: f.DocID})
			}
		}
	}()
	return frames
}

func TestJoinRoom_NotConnected(t *testing.T) {
	c, _ := newTestChannel(t)
	_, err := c.JoinRoom(context.Background(), "doc_1", "tok")
	require.ErrorIs(t, err, channel.ErrNotConnected)
	require.Equal(t, 0, c.HandlerCount(ws.EventConnectedUsers))
}

func TestConnect_IdempotentAndAuthenticated(t *testing.T) {
	c, d := newTestChannel(t, channeltest.NewSocket())

	var connects atomic.Int32
	channel.On(c, channel.Connected, func(string, struct{}) { connects.Add(1) })

	require.NoError(t, c.Connect(context.Background(), "tok"))
	require.NoError(t, c.Connect(context.Background(), "tok"))
	require.Equal(t, 1, d.Dials())
	require.Equal(t, int32(1), connects.Load())
	require.True(t, c.Connected())
	require.Contains(t, d.LastEndpoint(), "token=tok")
	require.Equal(t, "Bearer tok", d.LastHeader().Get("Authorization"))
}

func TestJoinRoom_ResolvesOnConnectedUsers(t *testing.T) {
	sock := channeltest.NewSocket()
	c, _ := newTestChannel(t, sock)
	require.NoError(t, c.Connect(context.Background(), "tok"))

	go func() {
		f, ok := sock.Next(wait)
		if !ok || f.Type != ws.EventJoinDocument || f.DocID != "doc_1" || f.Token != "tok" {
			return
		}
		_ = sock.Push(ws.EventConnectedUsers, "doc_1", ws.ConnectedUsersPayload{
			DocumentID: "doc_1",
			Users:      []model.Collaborator{{ID: "u2", Name: "Bob"}},
		})
	}()

	ack, err := c.JoinRoom(context.Background(), "doc_1", "")
	require.NoError(t, err)
	require.Len(t, ack.Users, 1)
	require.Equal(t, "doc_1", c.Room())
	for _, ev := range []string{ws.EventConnectedUsers, ws.EventAuthError, ws.EventError, channel.Disconnected.Name()} {
		require.Equal(t, 0, c.HandlerCount(ev), "listener leaked for %s", ev)
	}
}

func TestJoinRoom_RejectsOnAuthError(t *testing.T) {
	sock := channeltest.NewSocket()
	c, _ := newTestChannel(t, sock)
	require.NoError(t, c.Connect(context.Background(), "tok"))

	go func() {
		if _, ok := sock.Next(wait); ok {
			_ = sock.Push(ws.EventAuthError, "", ws.ErrorPayload{Message: "token expired"})
		}
	}()

	_, err := c.JoinRoom(context.Background(), "doc_1", "tok")
	require.ErrorIs(t, err, channel.ErrJoinRejected)
	require.ErrorIs(t, err, channel.ErrUnauthorized)
	require.Equal(t, "", c.Room())
	require.Equal(t, 0, c.HandlerCount(ws.EventConnectedUsers))
}

func TestJoinRoom_IdentityMismatch(t *testing.T) {
	sock := channeltest.NewSocket()
	c, _ := newTestChannel(t, sock)
	require.NoError(t, c.Connect(context.Background(), "tok"))

	go func() {
		if _, ok := sock.Next(wait); ok {
			_ = sock.Push(ws.EventConnectedUsers, "doc_2", ws.ConnectedUsersPayload{DocumentID: "doc_2"})
		}
	}()

	_, err := c.JoinRoom(context.Background(), "doc_1", "tok")
	require.ErrorIs(t, err, channel.ErrIdentityMismatch)
	require.Equal(t, "", c.Room())

	// both rooms the server may hold this socket in are left
	left := map[string]bool{}
	for i := 0; i < 2; i++ {
		f, ok := sock.Next(wait)
		require.True(t, ok)
		require.Equal(t, ws.EventLeaveDocument, f.Type)
		left[f.DocID] = true
	}
	require.Equal(t, map[string]bool{"doc_1": true, "doc_2": true}, left)
}

func TestJoinRoom_SnapshotIdentityMismatch(t *testing.T) {
	sock := channeltest.NewSocket()
	c, _ := newTestChannel(t, sock)
	require.NoError(t, c.Connect(context.Background(), "tok"))

	go func() {
		if _, ok := sock.Next(wait); ok {
			_ = sock.Push(ws.EventConnectedUsers, "doc_1", ws.ConnectedUsersPayload{
				DocumentID: "doc_1",
				Document:   &model.Document{LegacyID: "doc_9"},
			})
		}
	}()

	_, err := c.JoinRoom(context.Background(), "doc_1", "tok")
	require.ErrorIs(t, err, channel.ErrIdentityMismatch)
	require.Equal(t, "", c.Room())

	f, ok := sock.Next(wait)
	require.True(t, ok)
	require.Equal(t, ws.EventLeaveDocument, f.Type)
	require.Equal(t, "doc_1", f.DocID)
}

// stallingSocket blocks every write once stalled is set, so frames back up in the send queue.
type stallingSocket struct {
	*channeltest.Socket
	stalled atomic.Bool
	release chan struct{}
}

func (s *stallingSocket) WriteJSON(v any) error {
	if s.stalled.Load() {
		<-s.release
	}
	return s.Socket.WriteJSON(v)
}

func TestJoinRoom_LeaveFailsWhenSendQueueIsFull(t *testing.T) {
	sock := &stallingSocket{Socket: channeltest.NewSocket(), release: make(chan struct{})}
	c := channel.New("ws://collab.test/collab/ws",
		channel.WithDialer(func(context.Context, string, http.Header) (channel.Socket, error) { return sock, nil }),
		channel.WithSendBuffer(1),
	)
	t.Cleanup(c.Disconnect)
	t.Cleanup(func() { close(sock.release) })
	require.NoError(t, c.Connect(context.Background(), "tok"))
	ackJoins(sock.Socket, 1)

	_, err := c.JoinRoom(context.Background(), "doc_1", "tok")
	require.NoError(t, err)

	sock.stalled.Store(true)
	// the first frame blocks the writer, the second fills the queue
	c.Emit(ws.EventUserTyping, "doc_1", ws.TypingPayload{IsTyping: true})
	time.Sleep(50 * time.Millisecond)
	c.Emit(ws.EventUserTyping, "doc_1", ws.TypingPayload{IsTyping: true})

	_, err = c.JoinRoom(context.Background(), "doc_2", "tok")
	require.ErrorIs(t, err, channel.ErrLeaveFailed)
	require.Equal(t, "doc_1", c.Room())
	require.Equal(t, 0, c.HandlerCount(ws.EventConnectedUsers))
}

func TestJoinRoom_LeavesPreviousRoomFirst(t *testing.T) {
	sock := channeltest.NewSocket()
	c, _ := newTestChannel(t, sock)
	require.NoError(t, c.Connect(context.Background(), "tok"))
	frames := ackJoins(sock, 3)

	_, err := c.JoinRoom(context.Background(), "doc_1", "tok")
	require.NoError(t, err)
	_, err = c.JoinRoom(context.Background(), "doc_2", "tok")
	require.NoError(t, err)

	first, second, third := <-frames, <-frames, <-frames
	require.Equal(t, ws.EventJoinDocument, first.Type)
	require.Equal(t, ws.EventLeaveDocument, second.Type)
	require.Equal(t, "doc_1", second.DocID)
	require.Equal(t, ws.EventJoinDocument, third.Type)
	require.Equal(t, "doc_2", third.DocID)
	require.Equal(t, "doc_2", c.Room())
}

func TestOnOff_RegistrationOrderAndRemoval(t *testing.T) {
	sock := channeltest.NewSocket()
	c, _ := newTestChannel(t, sock)
	require.NoError(t, c.Connect(context.Background(), "tok"))

	var mu sync.Mutex
	var calls []string
	record := func(name string) func(string, ws.TypingPayload) {
		return func(string, ws.TypingPayload) {
			mu.Lock()
			calls = append(calls, name)
			mu.Unlock()
		}
	}
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(calls)
	}
	first := channel.On(c, channel.UserTyping, record("first"))
	channel.On(c, channel.UserTyping, record("second"))

	require.NoError(t, sock.Push(ws.EventUserTyping, "doc_1", ws.TypingPayload{UserID: "u2", IsTyping: true}))
	require.Eventually(t, func() bool { return count() == 2 }, wait, 5*time.Millisecond)

	require.True(t, c.Off(first))
	require.False(t, c.Off(first))
	require.NoError(t, sock.Push(ws.EventUserTyping, "doc_1", ws.TypingPayload{UserID: "u2", IsTyping: true}))
	require.Eventually(t, func() bool { return count() == 3 }, wait, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"first", "second", "second"}, calls)
}

func TestEmit_NotConnectedIsSilent(t *testing.T) {
	c, _ := newTestChannel(t)
	c.Emit(ws.EventUserTyping, "doc_1", ws.TypingPayload{IsTyping: true})
	c.LeaveRoom("doc_1")
	c.Disconnect()
	require.False(t, c.Connected())
	require.Equal(t, "", c.Room())
}

func TestReconnect_RaisesConnectedAgain(t *testing.T) {
	first, second := channeltest.NewSocket(), channeltest.NewSocket()
	c, d := newTestChannel(t, first, second)

	var connects, drops atomic.Int32
	channel.On(c, channel.Connected, func(string, struct{}) { connects.Add(1) })
	channel.On(c, channel.Disconnected, func(string, error) { drops.Add(1) })

	require.NoError(t, c.Connect(context.Background(), "tok"))
	_ = first.Close()

	require.Eventually(t, func() bool { return connects.Load() == 2 }, wait, 5*time.Millisecond)
	require.Equal(t, int32(1), drops.Load())
	require.Equal(t, 2, d.Dials())
	require.True(t, c.Connected())

	c.Emit(ws.EventUserTyping, "doc_1", ws.TypingPayload{IsTyping: true})
	f, ok := second.Next(wait)
	require.True(t, ok)
	require.Equal(t, ws.EventUserTyping, f.Type)
}

func TestDisconnect_StopsReconnect(t *testing.T) {
	sock := channeltest.NewSocket()
	c, d := newTestChannel(t, sock)
	require.NoError(t, c.Connect(context.Background(), "tok"))

	c.Disconnect()
	require.True(t, sock.IsClosed())
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1, d.Dials())
	require.False(t, c.Connected())
}

func TestConnect_OverWebsocket(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var f ws.Frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			if f.Type == ws.EventJoinDocument {
				ack, _ := ws.NewFrame(ws.EventConnectedUsers, f.DocID, ws.ConnectedUsersPayload{DocumentID: f.DocID})
				_ = conn.WriteJSON(ack)
			}
		}
	}))
	defer srv.Close()

	c := channel.New("ws" + strings.TrimPrefix(srv.URL, "http"))
	defer c.Disconnect()
	require.NoError(t, c.Connect(context.Background(), "tok"))

	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	ack, err := c.JoinRoom(ctx, "doc_1", "")
	require.NoError(t, err)
	require.Equal(t, "doc_1", ack.DocumentID)
}
