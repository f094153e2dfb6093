package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/PedroReis16/live-document-app-sub000/backend/internal/model"
)

// ListDocuments accepts both {owned, shared} and a flat {documents} (or bare array) body.
// Entries coming from the shared bucket are tagged Shared.
func (c *Client) ListDocuments(ctx context.Context) ([]model.Document, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/documents", nil, &raw); err != nil {
		return nil, err
	}
	return decodeDocumentList(raw)
}

func decodeDocumentList(raw json.RawMessage) ([]model.Document, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}
	if raw[0] == '[' {
		var flat []model.Document
		if err := json.Unmarshal(raw, &flat); err != nil {
			return nil, err
		}
		return normalizeAll(flat, false), nil
	}
	var body struct {
		Owned     []model.Document `json:"owned"`
		Shared    []model.Document `json:"shared"`
		Documents []model.Document `json:"documents"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}
	out := normalizeAll(body.Owned, false)
	out = append(out, normalizeAll(body.Shared, true)...)
	out = append(out, normalizeAll(body.Documents, false)...)
	return out, nil
}

func normalizeAll(docs []model.Document, shared bool) []model.Document {
	out := make([]model.Document, 0, len(docs))
	for _, d := range docs {
		d = d.Normalize()
		if shared {
			d.Shared = true
		}
		out = append(out, d)
	}
	return out
}

// decodeDocument accepts a bare document or one wrapped as {"document": {...}}.
func decodeDocument(raw json.RawMessage) (model.Document, error) {
	var wrapped struct {
		Document *model.Document `json:"document"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Document != nil {
		return wrapped.Document.Normalize(), nil
	}
	var d model.Document
	if err := json.Unmarshal(raw, &d); err != nil {
		return model.Document{}, err
	}
	return d.Normalize(), nil
}

// GetDocument fetches one document. Concurrent fetches of the same id share a single request.
func (c *Client) GetDocument(ctx context.Context, id string) (model.Document, error) {
	if model.IsLocalDraft(id) {
		return model.Document{}, ErrLocalDraft
	}
	v, err, _ := c.group.Do("get:"+id, func() (interface{}, error) {
		var raw json.RawMessage
		if err := c.do(ctx, http.MethodGet, docPath(id), nil, &raw); err != nil {
			return model.Document{}, err
		}
		return decodeDocument(raw)
	})
	if err != nil {
		return model.Document{}, err
	}
	return v.(model.Document), nil
}

func (c *Client) CreateDocument(ctx context.Context, title, content string) (model.Document, error) {
	body := map[string]string{"title": title, "content": content}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/documents", body, &raw); err != nil {
		return model.Document{}, err
	}
	return decodeDocument(raw)
}

// UpdateDocument sends only the changed fields. Local draft ids are refused without a request.
func (c *Client) UpdateDocument(ctx context.Context, id string, changes model.Changes) (model.Document, error) {
	if model.IsLocalDraft(id) {
		return model.Document{}, ErrLocalDraft
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPut, docPath(id), changes, &raw); err != nil {
		return model.Document{}, err
	}
	return decodeDocument(raw)
}

func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	if model.IsLocalDraft(id) {
		return ErrLocalDraft
	}
	return c.do(ctx, http.MethodDelete, docPath(id), nil, nil)
}

func docPath(id string) string { return "/documents/" + url.PathEscape(id) }
