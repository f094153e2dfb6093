package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/PedroReis16/live-document-app-sub000/backend/internal/model"
)

func (c *Client) ListCollaborators(ctx context.Context, docID string) ([]model.Collaborator, error) {
	if model.IsLocalDraft(docID) {
		return nil, ErrLocalDraft
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, docPath(docID)+"/collaborators", nil, &raw); err != nil {
		return nil, err
	}
	var list []model.Collaborator
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
	} else if len(raw) > 0 {
		var body struct {
			Collaborators []model.Collaborator `json:"collaborators"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, err
		}
		list = body.Collaborators
	}
	for i := range list {
		list[i] = list[i].Normalize()
	}
	return list, nil
}

// ShareDocument invites a user by email.
func (c *Client) ShareDocument(ctx context.Context, docID, email string, p model.Permission) (model.Collaborator, error) {
	body := map[string]string{"email": email, "permission": string(p)}
	var out model.Collaborator
	if err := c.do(ctx, http.MethodPost, docPath(docID)+"/collaborators", body, &out); err != nil {
		return model.Collaborator{}, err
	}
	return out.Normalize(), nil
}

func (c *Client) UpdatePermission(ctx context.Context, docID, userID string, p model.Permission) error {
	body := map[string]string{"permission": string(p)}
	return c.do(ctx, http.MethodPut, collaboratorPath(docID, userID), body, nil)
}

func (c *Client) RemoveCollaborator(ctx context.Context, docID, userID string) error {
	return c.do(ctx, http.MethodDelete, collaboratorPath(docID, userID), nil, nil)
}

type ShareCode struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (c *Client) GenerateShareCode(ctx context.Context, docID string) (ShareCode, error) {
	var out ShareCode
	err := c.do(ctx, http.MethodPost, docPath(docID)+"/share-code", nil, &out)
	return out, err
}

// JoinByCode redeems a share code and returns the document it grants access to.
func (c *Client) JoinByCode(ctx context.Context, code string) (model.Document, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/documents/join", map[string]string{"code": code}, &raw); err != nil {
		return model.Document{}, err
	}
	return decodeDocument(raw)
}

func collaboratorPath(docID, userID string) string {
	return docPath(docID) + "/collaborators/" + url.PathEscape(userID)
}
