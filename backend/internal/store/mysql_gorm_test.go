package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	mysqlerr "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/PedroReis16/live-document-app-sub000/backend/internal/model"
)

func newMockRepo(t *testing.T) (Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gdb, err := gorm.Open(mysql.New(mysql.Config{Conn: db, SkipInitializeWithVersion: true}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	return NewGormRepository(gdb), mock
}

var documentColumns = []string{"id", "title", "content", "owner_id", "created_at", "updated_at"}

func TestGorm_GetDocument(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()
	mock.ExpectQuery("SELECT \\* FROM `documents` WHERE id = \\?").
		WillReturnRows(sqlmock.NewRows(documentColumns).AddRow("doc_1", "Plan", "body", "u_1", now, now))

	doc, err := repo.GetDocument(context.Background(), "doc_1")
	require.NoError(t, err)
	assert.Equal(t, "doc_1", doc.ID)
	assert.Equal(t, "body", doc.Content)
	assert.Equal(t, "u_1", doc.OwnerID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGorm_GetDocumentNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT \\* FROM `documents`").WillReturnRows(sqlmock.NewRows(documentColumns))

	_, err := repo.GetDocument(context.Background(), "doc_x")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGorm_CreateDocument(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("INSERT INTO `documents`").WillReturnResult(sqlmock.NewResult(0, 1))

	doc, err := repo.CreateDocument(context.Background(), "u_1", "Plan", "x")
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
	assert.False(t, model.IsLocalDraft(doc.ID))
	assert.Equal(t, "u_1", doc.OwnerID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGorm_DuplicateKey(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("INSERT INTO `documents`").WillReturnError(&mysqlerr.MySQLError{Number: 1062, Message: "Duplicate entry"})

	_, err := repo.CreateDocument(context.Background(), "u_1", "Plan", "")
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestGorm_UpdateMissingDocument(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("UPDATE `documents` SET").WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := repo.UpdateDocument(context.Background(), "doc_x", model.TitleChange("t"))
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGorm_OwnerPermission(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()
	mock.ExpectQuery("SELECT \\* FROM `documents`").
		WillReturnRows(sqlmock.NewRows(documentColumns).AddRow("doc_1", "Plan", "", "u_1", now, now))

	p, err := repo.Permission(context.Background(), "doc_1", "u_1")
	require.NoError(t, err)
	assert.Equal(t, model.PermissionOwner, p)
	require.NoError(t, mock.ExpectationsWereMet())
}
