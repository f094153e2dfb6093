package ws

import (
	"encoding/json"

	"github.com/PedroReis16/live-document-app-sub000/backend/internal/model"
)

// Event names carried in Frame.Type.
const (
	EventJoinDocument     = "join-document"
	EventLeaveDocument    = "leave-document"
	EventConnectedUsers   = "connected-users"
	EventAuthError        = "auth-error"
	EventError            = "error"
	EventDocumentChange   = "document-change"
	EventDocumentContent  = "document-content"
	EventUserTyping       = "user-typing"
	EventUserConnected    = "user-connected"
	EventUserDisconnected = "user-disconnected"
)

// Frame is the envelope for every message in both directions.
type Frame struct {
	Type    string          `json:"type"`
	DocID   string          `json:"docId,omitempty"`
	Token   string          `json:"token,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func NewFrame(eventType, docID string, payload any) (Frame, error) {
	f := Frame{Type: eventType, DocID: docID}
	if payload == nil {
		return f, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	f.Payload = b
	return f, nil
}

type DocumentChangePayload struct {
	UserID  string        `json:"userId,omitempty"`
	Changes model.Changes `json:"changes"`
}

type TypingPayload struct {
	UserID   string `json:"userId,omitempty"`
	IsTyping bool   `json:"isTyping"`
}

type UserConnectedPayload struct {
	User model.Collaborator `json:"user"`
}

type UserDisconnectedPayload struct {
	UserID string `json:"userId"`
}

type DocumentContentPayload struct {
	Document model.Document `json:"document"`
}

// ConnectedUsersPayload acknowledges a join: the room roster plus the document snapshot when the server has one.
type ConnectedUsersPayload struct {
	DocumentID string               `json:"documentId"`
	Users      []model.Collaborator `json:"users"`
	Document   *model.Document      `json:"document,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
