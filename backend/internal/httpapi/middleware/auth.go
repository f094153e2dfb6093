package middleware

import (
	"context"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/PedroReis16/live-document-app-sub000/backend/internal/authtoken"
	"github.com/PedroReis16/live-document-app-sub000/backend/internal/store"
)

const (
	CtxUserID   = "userId"
	CtxUserName = "username"
)

type UserRecorder interface {
	EnsureUser(ctx context.Context, u store.User) error
}

// AuthMiddleware verifies the bearer token locally. Websocket clients that cannot set headers pass
// it as ?token=. Users are recorded once per process so collaborators can be invited by email.
func AuthMiddleware(secret []byte, users UserRecorder) gin.HandlerFunc {
	var seen sync.Map
	return func(c *gin.Context) {
		tokenString := extractBearer(c.Request.Header.Get("Authorization"))
		if tokenString == "" {
			tokenString = strings.TrimSpace(c.Query("token"))
		}
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "UNAUTHENTICATED",
				"message": "Authorization header is missing or invalid",
			})
			return
		}

		claims, err := authtoken.Parse(secret, tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "UNAUTHENTICATED",
				"message": "invalid token",
			})
			return
		}

		if users != nil {
			if _, ok := seen.Load(claims.UserID); !ok {
				u := store.User{ID: claims.UserID, Name: claims.Name, Email: claims.Email}
				if err := users.EnsureUser(c.Request.Context(), u); err != nil {
					log.Printf("record user error (user=%s): %v", claims.UserID, err)
				} else {
					seen.Store(claims.UserID, struct{}{})
				}
			}
		}

		c.Set(CtxUserID, claims.UserID)
		c.Set(CtxUserName, claims.Name)
		c.Next()
	}
}

// UserID returns the authenticated user of c, or "" outside AuthMiddleware.
func UserID(c *gin.Context) string {
	return c.GetString(CtxUserID)
}

func extractBearer(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
