package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PedroReis16/live-document-app-sub000/backend/internal/events"
	"github.com/PedroReis16/live-document-app-sub000/backend/internal/httpapi/middleware"
	"github.com/PedroReis16/live-document-app-sub000/backend/internal/model"
	"github.com/PedroReis16/live-document-app-sub000/backend/internal/store"
)

type Publisher interface {
	Enqueue(ctx context.Context, evt events.DocEvent) error
}

// Documents serves the document REST API.
type Documents struct {
	repo     store.Repository
	events   Publisher
	shareTTL time.Duration
}

func NewDocuments(repo store.Repository, events Publisher, shareTTL time.Duration) *Documents {
	if shareTTL <= 0 {
		shareTTL = 24 * time.Hour
	}
	return &Documents{repo: repo, events: events, shareTTL: shareTTL}
}

func (h *Documents) Register(r gin.IRouter) {
	r.GET("/documents", h.List)
	r.POST("/documents", h.Create)
	r.POST("/documents/join", h.JoinByCode)
	r.GET("/documents/:id", h.Get)
	r.PUT("/documents/:id", h.Update)
	r.DELETE("/documents/:id", h.Delete)
	r.GET("/documents/:id/collaborators", h.ListCollaborators)
	r.POST("/documents/:id/collaborators", h.Share)
	r.PUT("/documents/:id/collaborators/:userId", h.SetPermission)
	r.DELETE("/documents/:id/collaborators/:userId", h.RemoveCollaborator)
	r.POST("/documents/:id/share-code", h.ShareCode)
}

func (h *Documents) List(c *gin.Context) {
	owned, shared, err := h.repo.ListDocuments(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"owned": nonNil(owned), "shared": nonNil(shared)})
}

func (h *Documents) Get(c *gin.Context) {
	docID := c.Param("id")
	if _, ok := h.authorize(c, docID, model.PermissionRead); !ok {
		return
	}
	doc, err := h.repo.GetDocument(c.Request.Context(), docID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

type createRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (h *Documents) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "BAD_REQUEST", "message": err.Error()})
		return
	}
	userID := middleware.UserID(c)
	doc, err := h.repo.CreateDocument(c.Request.Context(), userID, req.Title, req.Content)
	if err != nil {
		fail(c, err)
		return
	}
	h.publish(c, events.DocEvent{EventType: events.DocCreated, DocID: doc.ID, ActorID: userID})
	c.JSON(http.StatusCreated, doc)
}

func (h *Documents) Update(c *gin.Context) {
	docID := c.Param("id")
	if _, ok := h.authorize(c, docID, model.PermissionWrite); !ok {
		return
	}
	var changes model.Changes
	if err := c.ShouldBindJSON(&changes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "BAD_REQUEST", "message": err.Error()})
		return
	}
	doc, err := h.repo.UpdateDocument(c.Request.Context(), docID, changes)
	if err != nil {
		fail(c, err)
		return
	}
	var fields []string
	if changes.Title != nil {
		fields = append(fields, "title")
	}
	if changes.Content != nil {
		fields = append(fields, "content")
	}
	h.publish(c, events.DocEvent{EventType: events.DocUpdated, DocID: docID, ActorID: middleware.UserID(c), Fields: fields})
	c.JSON(http.StatusOK, doc)
}

func (h *Documents) Delete(c *gin.Context) {
	docID := c.Param("id")
	if _, ok := h.authorize(c, docID, model.PermissionOwner); !ok {
		return
	}
	if err := h.repo.DeleteDocument(c.Request.Context(), docID); err != nil {
		fail(c, err)
		return
	}
	h.publish(c, events.DocEvent{EventType: events.DocDeleted, DocID: docID, ActorID: middleware.UserID(c)})
	c.Status(http.StatusNoContent)
}

// authorize aborts the request unless the caller holds at least need on docID.
func (h *Documents) authorize(c *gin.Context, docID string, need model.Permission) (model.Permission, bool) {
	p, err := h.repo.Permission(c.Request.Context(), docID, middleware.UserID(c))
	if err != nil {
		fail(c, err)
		return "", false
	}
	if !p.Allows(need) {
		c.JSON(http.StatusForbidden, gin.H{"code": "FORBIDDEN", "message": "insufficient permission"})
		return "", false
	}
	return p, true
}

func (h *Documents) publish(c *gin.Context, evt events.DocEvent) {
	if h.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 200*time.Millisecond)
	defer cancel()
	if err := h.events.Enqueue(ctx, evt); err != nil {
		log.Printf("enqueue %s error (doc=%s): %v", evt.EventType, evt.DocID, err)
	}
}

// fail writes the status matching err.
func fail(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrUnknownUser):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, store.ErrDuplicate), errors.Is(err, store.ErrAlreadyOwner):
		status, code = http.StatusConflict, "CONFLICT"
	case errors.Is(err, store.ErrCodeExpired):
		status, code = http.StatusGone, "EXPIRED"
	case errors.Is(err, model.ErrInvalidPermission):
		status, code = http.StatusBadRequest, "BAD_REQUEST"
	case errors.Is(err, model.ErrNotPermitted), errors.Is(err, model.ErrOwnerImmutable), errors.Is(err, model.ErrSelfManagement):
		status, code = http.StatusForbidden, "FORBIDDEN"
	default:
		log.Printf("request error (%s %s): %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"code": code, "message": err.Error()})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
