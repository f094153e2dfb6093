package ws

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	// native clients send no Origin
	if origin == "" || origin == "null" {
		return true
	}
	for _, p := range []string{"http://localhost", "http://127.0.0.1", "https://localhost", "https://127.0.0.1"} {
		if strings.HasPrefix(origin, p) {
			return true
		}
	}
	return false
}}

type Manager struct {
	hub    *Hub
	verify TokenVerifier
}

func NewManager(hub *Hub, verify TokenVerifier) *Manager {
	return &Manager{hub: hub, verify: verify}
}

// WebSocketConnect upgrades an authenticated request and serves it until the socket closes.
// The auth middleware has already stored userId and username in c.
func (m *Manager) WebSocketConnect(c *gin.Context) {
	userID := c.GetString("userId")
	username := c.GetString("username")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHENTICATED", "message": "missing user"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v (origin=%s)", err, c.Request.Header.Get("Origin"))
		return
	}
	defer conn.Close()

	wsConn := NewConn(conn, m.hub, m.verify, userID, username)
	go wsConn.writeLoop()
	wsConn.readLoop(c.Request.Context())
}
