package events

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voluntr/media-workers/internal/saga"
)

func TestFind(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT approved, version FROM events").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"approved", "version"}).AddRow(false, int64(2)))
	mock.ExpectQuery("SELECT id, status, (.+) FROM media_assets").
		WithArgs("event", int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "temp_path", "url", "content_type", "file_name"}).
			AddRow(int64(10), "PENDING_UPLOAD", "/tmp/staging/a.jpg", "", "image/jpeg", "a.jpg").
			AddRow(int64(11), "UPLOADED", "", "https://cdn.test/media/b.jpg", "image/jpeg", "b.jpg"))

	s := NewPostgresStore(db)
	e, err := s.Find(context.Background(), 3)
	require.NoError(t, err)

	assert.Equal(t, int64(3), e.ID)
	assert.Equal(t, int64(2), e.Version)
	assert.False(t, e.Approved)
	require.Len(t, e.Assets, 2)
	assert.Equal(t, saga.StatusPendingUpload, e.Assets[0].Status)
	assert.Equal(t, "/tmp/staging/a.jpg", e.Assets[0].TempPath)
	assert.Equal(t, saga.StatusUploaded, e.Assets[1].Status)
	assert.Equal(t, "https://cdn.test/media/b.jpg", e.Assets[1].URL)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFind_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT approved, version FROM events").
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows([]string{"approved", "version"}))

	s := NewPostgresStore(db)
	_, err = s.Find(context.Background(), 404)
	assert.ErrorIs(t, err, saga.ErrNotFound)
}

func TestSave(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE events SET approved").
		WithArgs(true, int64(3), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE media_assets").
		WithArgs("UPLOADED", "", "https://cdn.test/media/a.jpg", int64(10), "event", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	s := NewPostgresStore(db)
	e := &saga.Entity{
		ID:       3,
		Version:  2,
		Approved: true,
		Assets: []saga.Asset{
			{ID: 10, Status: saga.StatusUploaded, URL: "https://cdn.test/media/a.jpg"},
		},
	}
	require.NoError(t, s.Save(context.Background(), e))
	assert.Equal(t, int64(3), e.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSave_Conflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE events SET approved").
		WithArgs(false, int64(3), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	s := NewPostgresStore(db)
	e := &saga.Entity{ID: 3, Version: 2}
	err = s.Save(context.Background(), e)
	assert.ErrorIs(t, err, saga.ErrConflict)
	assert.Equal(t, int64(2), e.Version, "version must not advance on conflict")
}

func TestDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM media_assets").
		WithArgs("event", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM events").
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	s := NewPostgresStore(db)
	require.NoError(t, s.Delete(context.Background(), 3))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM media_assets").
		WithArgs("event", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM events").
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	s := NewPostgresStore(db)
	err = s.Delete(context.Background(), 3)
	assert.ErrorIs(t, err, saga.ErrNotFound)
}
