package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const LocalDraftPrefix = "local_"

func NewLocalDraftID() string {
	return LocalDraftPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// IsLocalDraft reports whether id has never been persisted server-side.
func IsLocalDraft(id string) bool {
	return strings.HasPrefix(id, LocalDraftPrefix)
}

func NewDraft(ownerID string, now time.Time) Document {
	return Document{
		ID:        NewLocalDraftID(),
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
