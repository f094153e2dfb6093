package store

import (
	"time"

	"github.com/PedroReis16/live-document-app-sub000/backend/internal/model"
)

type UserRecord struct {
	ID        string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"size:128"`
	Email     string `gorm:"size:255;uniqueIndex"`
	CreatedAt time.Time
}

func (UserRecord) TableName() string { return "users" }

type DocumentRecord struct {
	ID        string `gorm:"primaryKey;size:64"`
	Title     string `gorm:"size:255"`
	Content   string `gorm:"type:longtext"`
	OwnerID   string `gorm:"size:64;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (DocumentRecord) TableName() string { return "documents" }

func (r DocumentRecord) toModel() model.Document {
	return model.Document{
		ID:        r.ID,
		Title:     r.Title,
		Content:   r.Content,
		OwnerID:   r.OwnerID,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type CollaboratorRecord struct {
	DocID      string `gorm:"primaryKey;size:64"`
	UserID     string `gorm:"primaryKey;size:64;index"`
	Permission string `gorm:"size:16"`
	CreatedAt  time.Time
}

func (CollaboratorRecord) TableName() string { return "document_collaborators" }

type ShareCodeRecord struct {
	Code      string `gorm:"primaryKey;size:16"`
	DocID     string `gorm:"size:64;index"`
	ExpiresAt time.Time
}

func (ShareCodeRecord) TableName() string { return "share_codes" }
