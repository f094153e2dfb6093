package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PedroReis16/live-document-app-sub000/backend/internal/events"
	"github.com/PedroReis16/live-document-app-sub000/backend/internal/httpapi/middleware"
	"github.com/PedroReis16/live-document-app-sub000/backend/internal/model"
)

func (h *Documents) ListCollaborators(c *gin.Context) {
	docID := c.Param("id")
	if _, ok := h.authorize(c, docID, model.PermissionRead); !ok {
		return
	}
	list, err := h.repo.ListCollaborators(c.Request.Context(), docID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"collaborators": nonNil(list)})
}

type shareRequest struct {
	Email      string `json:"email" binding:"required"`
	Permission string `json:"permission"`
}

func (h *Documents) Share(c *gin.Context) {
	docID := c.Param("id")
	if _, ok := h.authorize(c, docID, model.PermissionAdmin); !ok {
		return
	}
	var req shareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "BAD_REQUEST", "message": err.Error()})
		return
	}
	if req.Permission == "" {
		req.Permission = string(model.PermissionRead)
	}
	p, err := model.ParseGrant(req.Permission)
	if err != nil {
		fail(c, err)
		return
	}
	collaborator, err := h.repo.AddCollaborator(c.Request.Context(), docID, req.Email, p)
	if err != nil {
		fail(c, err)
		return
	}
	h.publish(c, events.DocEvent{EventType: events.DocShared, DocID: docID, ActorID: middleware.UserID(c)})
	c.JSON(http.StatusCreated, collaborator)
}

type permissionRequest struct {
	Permission string `json:"permission" binding:"required"`
}

func (h *Documents) SetPermission(c *gin.Context) {
	docID, targetID, ok := h.manage(c)
	if !ok {
		return
	}
	var req permissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "BAD_REQUEST", "message": err.Error()})
		return
	}
	p, err := model.ParseGrant(req.Permission)
	if err != nil {
		fail(c, err)
		return
	}
	if err := h.repo.SetPermission(c.Request.Context(), docID, targetID, p); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": targetID, "permission": p})
}

func (h *Documents) RemoveCollaborator(c *gin.Context) {
	docID, targetID, ok := h.manage(c)
	if !ok {
		return
	}
	if err := h.repo.RemoveCollaborator(c.Request.Context(), docID, targetID); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// manage checks the caller may change the collaborator named in the path.
func (h *Documents) manage(c *gin.Context) (string, string, bool) {
	ctx := c.Request.Context()
	docID, targetID := c.Param("id"), c.Param("userId")
	actorPerm, ok := h.authorize(c, docID, model.PermissionRead)
	if !ok {
		return "", "", false
	}
	doc, err := h.repo.GetDocument(ctx, docID)
	if err != nil {
		fail(c, err)
		return "", "", false
	}
	targetPerm, err := h.repo.Permission(ctx, docID, targetID)
	if err != nil {
		fail(c, err)
		return "", "", false
	}
	actor := model.Collaborator{ID: middleware.UserID(c), Permission: actorPerm}
	target := model.Collaborator{ID: targetID, Permission: targetPerm}
	if err := model.CanManage(doc, actor, target); err != nil {
		fail(c, err)
		return "", "", false
	}
	return docID, targetID, true
}

func (h *Documents) ShareCode(c *gin.Context) {
	docID := c.Param("id")
	if _, ok := h.authorize(c, docID, model.PermissionAdmin); !ok {
		return
	}
	code, expires, err := h.repo.CreateShareCode(c.Request.Context(), docID, h.shareTTL)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"code": code, "expiresAt": expires})
}

type joinRequest struct {
	Code string `json:"code" binding:"required"`
}

func (h *Documents) JoinByCode(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "BAD_REQUEST", "message": err.Error()})
		return
	}
	doc, err := h.repo.RedeemShareCode(c.Request.Context(), req.Code, middleware.UserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	if doc.Shared {
		h.publish(c, events.DocEvent{EventType: events.DocShared, DocID: doc.ID, ActorID: middleware.UserID(c)})
	}
	c.JSON(http.StatusOK, gin.H{"document": doc})
}
