package ws

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/PedroReis16/live-document-app-sub000/backend/internal/cache"
	"github.com/PedroReis16/live-document-app-sub000/backend/internal/model"
	"github.com/PedroReis16/live-document-app-sub000/backend/internal/store"
)

const DefaultPresenceTTL = 2 * time.Minute

// Hub tracks the connections of every document room. Presence, when configured, is shared
// through Redis so rosters survive across server instances; otherwise the local rooms are used.
type Hub struct {
	presence cache.Presence
	repo     store.Repository
	ttl      time.Duration

	mu sync.RWMutex
	// docID -> connections; one user may hold several
	rooms map[string]map[*Conn]struct{}
}

func NewHub(p cache.Presence, repo store.Repository) *Hub {
	return &Hub{presence: p, repo: repo, ttl: DefaultPresenceTTL, rooms: make(map[string]map[*Conn]struct{})}
}

func (h *Hub) Join(docID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[docID] == nil {
		h.rooms[docID] = make(map[*Conn]struct{})
	}
	h.rooms[docID][c] = struct{}{}
}

// Leave removes c from docID and reports whether its user still has another connection there.
func (h *Hub) Leave(docID string, c *Conn) (stillPresent bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.rooms[docID]
	if !ok {
		return false
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.rooms, docID)
		return false
	}
	for other := range conns {
		if other.userID == c.userID {
			return true
		}
	}
	return false
}

// Broadcast sends f to every connection in docID except skip.
func (h *Hub) Broadcast(docID string, skip *Conn, f Frame) {
	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.rooms[docID]))
	for c := range h.rooms[docID] {
		if c != skip {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range targets {
		c.Enqueue(f)
	}
}

func (h *Hub) touch(ctx context.Context, docID string, c *Conn) {
	if h.presence == nil {
		return
	}
	if err := h.presence.AddMember(ctx, docID, cache.Member{UserID: c.userID, Name: c.username}, h.ttl); err != nil {
		log.Printf("add member error (doc=%s, user=%s): %v", docID, c.userID, err)
	}
}

func (h *Hub) drop(ctx context.Context, docID string, c *Conn) {
	if h.presence == nil {
		return
	}
	if err := h.presence.RemoveMember(ctx, docID, c.userID); err != nil {
		log.Printf("remove member error (doc=%s, user=%s): %v", docID, c.userID, err)
	}
}

// Members lists the users online in docID.
func (h *Hub) Members(ctx context.Context, docID string) []model.Collaborator {
	if h.presence != nil {
		members, err := h.presence.AliveMembers(ctx, docID)
		if err == nil {
			out := make([]model.Collaborator, 0, len(members))
			for _, m := range members {
				out = append(out, model.Collaborator{ID: m.UserID, Name: m.Name, Status: model.StatusOnline})
			}
			return out
		}
		log.Printf("get alive members error (doc=%s): %v", docID, err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []model.Collaborator
	for c := range h.rooms[docID] {
		if _, ok := seen[c.userID]; ok {
			continue
		}
		seen[c.userID] = struct{}{}
		out = append(out, model.Collaborator{ID: c.userID, Name: c.username, Status: model.StatusOnline})
	}
	return out
}

// Sweep refreshes presence for every local connection, so idle members do not expire, and drops
// expired members of every room, including those left behind by other instances. It returns the
// number of rooms visited.
func (h *Hub) Sweep(ctx context.Context) (int, error) {
	if h.presence == nil {
		return 0, nil
	}
	h.mu.RLock()
	local := make(map[string][]*Conn, len(h.rooms))
	for docID, conns := range h.rooms {
		for c := range conns {
			local[docID] = append(local[docID], c)
		}
	}
	h.mu.RUnlock()
	for docID, conns := range local {
		for _, c := range conns {
			h.touch(ctx, docID, c)
		}
	}

	rooms, err := h.presence.Rooms(ctx)
	if err != nil {
		return 0, err
	}
	for _, docID := range rooms {
		if _, err := h.presence.AliveMembers(ctx, docID); err != nil {
			log.Printf("expire members error (doc=%s): %v", docID, err)
		}
	}
	return len(rooms), nil
}

// RunSweeper calls Sweep every interval until ctx is done.
func (h *Hub) RunSweeper(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := h.Sweep(ctx); err != nil {
				log.Printf("presence sweep error: %v", err)
			}
		}
	}
}
