package store

import (
	"context"
	"errors"
	"time"

	mysqlerr "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/PedroReis16/live-document-app-sub000/backend/internal/model"
)

func InitMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&UserRecord{}, &DocumentRecord{}, &CollaboratorRecord{}, &ShareCodeRecord{}); err != nil {
		return nil, err
	}
	return db, nil
}

type gormRepo struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) Repository {
	return &gormRepo{db: db}
}

// translate maps driver errors onto the package sentinels.
func translate(err error) error {
	var myErr *mysqlerr.MySQLError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.As(err, &myErr) && myErr.Number == 1062:
		return ErrDuplicate
	}
	return err
}

func (r *gormRepo) EnsureUser(ctx context.Context, u User) error {
	rec := UserRecord{ID: u.ID, Name: u.Name, Email: u.Email}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "email"}),
	}).Create(&rec).Error
	return translate(err)
}

func (r *gormRepo) ListDocuments(ctx context.Context, userID string) ([]model.Document, []model.Document, error) {
	var owned []DocumentRecord
	if err := r.db.WithContext(ctx).Where("owner_id = ?", userID).Order("updated_at DESC").Find(&owned).Error; err != nil {
		return nil, nil, err
	}
	var shared []DocumentRecord
	err := r.db.WithContext(ctx).
		Joins("JOIN document_collaborators ON document_collaborators.doc_id = documents.id").
		Where("document_collaborators.user_id = ?", userID).
		Order("documents.updated_at DESC").
		Find(&shared).Error
	if err != nil {
		return nil, nil, err
	}
	out := func(recs []DocumentRecord, isShared bool) []model.Document {
		docs := make([]model.Document, 0, len(recs))
		for _, rec := range recs {
			d := rec.toModel()
			d.Shared = isShared
			docs = append(docs, d)
		}
		return docs
	}
	return out(owned, false), out(shared, true), nil
}

func (r *gormRepo) GetDocument(ctx context.Context, id string) (model.Document, error) {
	var rec DocumentRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		return model.Document{}, translate(err)
	}
	return rec.toModel(), nil
}

func (r *gormRepo) CreateDocument(ctx context.Context, ownerID, title, content string) (model.Document, error) {
	rec := DocumentRecord{ID: uuid.NewString(), Title: title, Content: content, OwnerID: ownerID}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return model.Document{}, translate(err)
	}
	return rec.toModel(), nil
}

func (r *gormRepo) UpdateDocument(ctx context.Context, id string, changes model.Changes) (model.Document, error) {
	updates := map[string]any{"updated_at": time.Now()}
	if changes.Title != nil {
		updates["title"] = *changes.Title
	}
	if changes.Content != nil {
		updates["content"] = *changes.Content
	}
	res := r.db.WithContext(ctx).Model(&DocumentRecord{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return model.Document{}, translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return model.Document{}, ErrNotFound
	}
	return r.GetDocument(ctx, id)
}

func (r *gormRepo) DeleteDocument(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("doc_id = ?", id).Delete(&CollaboratorRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("doc_id = ?", id).Delete(&ShareCodeRecord{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&DocumentRecord{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *gormRepo) Permission(ctx context.Context, docID, userID string) (model.Permission, error) {
	doc, err := r.GetDocument(ctx, docID)
	if err != nil {
		return "", err
	}
	if doc.OwnerID == userID {
		return model.PermissionOwner, nil
	}
	var rec CollaboratorRecord
	err = r.db.WithContext(ctx).Where("doc_id = ? AND user_id = ?", docID, userID).First(&rec).Error
	if err != nil {
		return "", translate(err)
	}
	return model.Permission(rec.Permission), nil
}

type collaboratorRow struct {
	UserID     string
	Name       string
	Email      string
	Permission string
}

func (r *gormRepo) ListCollaborators(ctx context.Context, docID string) ([]model.Collaborator, error) {
	doc, err := r.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	var rows []collaboratorRow
	err = r.db.WithContext(ctx).Table("document_collaborators").
		Select("document_collaborators.user_id, users.name, users.email, document_collaborators.permission").
		Joins("LEFT JOIN users ON users.id = document_collaborators.user_id").
		Where("document_collaborators.doc_id = ?", docID).
		Order("document_collaborators.created_at").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]model.Collaborator, 0, len(rows)+1)
	owner := model.Collaborator{ID: doc.OwnerID, Permission: model.PermissionOwner}
	var u UserRecord
	if err := r.db.WithContext(ctx).Where("id = ?", doc.OwnerID).First(&u).Error; err == nil {
		owner.Name, owner.Email = u.Name, u.Email
	}
	out = append(out, owner)
	for _, row := range rows {
		out = append(out, model.Collaborator{
			ID:         row.UserID,
			Name:       row.Name,
			Email:      row.Email,
			Permission: model.Permission(row.Permission),
		})
	}
	return out, nil
}

func (r *gormRepo) AddCollaborator(ctx context.Context, docID, email string, p model.Permission) (model.Collaborator, error) {
	doc, err := r.GetDocument(ctx, docID)
	if err != nil {
		return model.Collaborator{}, err
	}
	var u UserRecord
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Collaborator{}, ErrUnknownUser
		}
		return model.Collaborator{}, err
	}
	if u.ID == doc.OwnerID {
		return model.Collaborator{}, ErrAlreadyOwner
	}
	rec := CollaboratorRecord{DocID: docID, UserID: u.ID, Permission: string(p)}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return model.Collaborator{}, translate(err)
	}
	return model.Collaborator{ID: u.ID, Name: u.Name, Email: u.Email, Permission: p}, nil
}

func (r *gormRepo) SetPermission(ctx context.Context, docID, userID string, p model.Permission) error {
	res := r.db.WithContext(ctx).Model(&CollaboratorRecord{}).
		Where("doc_id = ? AND user_id = ?", docID, userID).
		Update("permission", string(p))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormRepo) RemoveCollaborator(ctx context.Context, docID, userID string) error {
	res := r.db.WithContext(ctx).Where("doc_id = ? AND user_id = ?", docID, userID).Delete(&CollaboratorRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormRepo) CreateShareCode(ctx context.Context, docID string, ttl time.Duration) (string, time.Time, error) {
	if _, err := r.GetDocument(ctx, docID); err != nil {
		return "", time.Time{}, err
	}
	code, err := newShareCode()
	if err != nil {
		return "", time.Time{}, err
	}
	rec := ShareCodeRecord{Code: code, DocID: docID, ExpiresAt: time.Now().Add(ttl)}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return "", time.Time{}, translate(err)
	}
	return rec.Code, rec.ExpiresAt, nil
}

// RedeemShareCode grants write access on the coded document. Redeeming twice keeps the first grant.
func (r *gormRepo) RedeemShareCode(ctx context.Context, code, userID string) (model.Document, error) {
	var rec ShareCodeRecord
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&rec).Error; err != nil {
		return model.Document{}, translate(err)
	}
	if time.Now().After(rec.ExpiresAt) {
		return model.Document{}, ErrCodeExpired
	}
	doc, err := r.GetDocument(ctx, rec.DocID)
	if err != nil {
		return model.Document{}, err
	}
	if doc.OwnerID != userID {
		grant := CollaboratorRecord{DocID: rec.DocID, UserID: userID, Permission: string(model.PermissionWrite)}
		err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&grant).Error
		if err != nil {
			return model.Document{}, translate(err)
		}
		doc.Shared = true
	}
	return doc, nil
}
