package services

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartctf/filevault/internal/common"
	"github.com/smartctf/filevault/internal/logging"
	"github.com/smartctf/filevault/internal/server/blob"
	"github.com/smartctf/filevault/internal/server/repositories/repomanager"
)

const helloSHA256 = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

const (
	selectContentBySHA    = `(?s)FROM\s+contents\s+WHERE\s+sha256`
	insertContent         = `(?s)INSERT\s+INTO\s+contents`
	selectContentByID     = `(?s)FROM\s+contents\s+WHERE\s+id`
	selectOwnershipByPair = `(?s)FROM\s+ownerships\s+WHERE\s+user_id\s*=\s*\$1\s+AND\s+content_id`
	selectOwnershipByID   = `(?s)FROM\s+ownerships\s+WHERE\s+id`
	insertOwnership       = `(?s)INSERT\s+INTO\s+ownerships`
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newUploadFixture(t *testing.T) (*UploadService, sqlmock.Sqlmock, *blob.FSStore) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := blob.NewFSStore(t.TempDir())
	require.NoError(t, err)

	svc := NewUploadService(db, repomanager.NewPostgresRepositoryManager(), store, testLogger())
	return svc, mock, store
}

func contentRow(store *blob.FSStore) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "sha256", "storage_path", "size_bytes", "mime_type", "created_at"}).
		AddRow(int64(7), helloSHA256, store.CanonicalPath(helloSHA256), int64(5), "text/plain", time.Now())
}

func ownershipRow(id, userID int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "content_id", "original_filename", "uploaded_at"}).
		AddRow(id, userID, int64(7), "hello.txt", time.Now())
}

func TestUpload_FirstUpload(t *testing.T) {
	svc, mock, store := newUploadFixture(t)
	ctx := context.Background()

	mock.ExpectQuery(selectContentBySHA).WithArgs(helloSHA256).WillReturnError(sql.ErrNoRows)
	mock.ExpectBegin()
	mock.ExpectQuery(insertContent).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), time.Now()))
	mock.ExpectCommit()
	mock.ExpectQuery(selectOwnershipByPair).WithArgs(int64(1), int64(7)).WillReturnError(sql.ErrNoRows)
	mock.ExpectBegin()
	mock.ExpectQuery(insertOwnership).
		WillReturnRows(sqlmock.NewRows([]string{"id", "uploaded_at"}).AddRow(int64(3), time.Now()))
	mock.ExpectCommit()

	res, err := svc.Upload(ctx, 1, strings.NewReader("hello"), "hello.txt", "text/plain")
	require.NoError(t, err)

	assert.Equal(t, int64(3), res.OwnershipID)
	assert.Equal(t, helloSHA256, res.SHA256)
	assert.Equal(t, int64(5), res.SizeBytes)
	assert.False(t, res.Dedup)

	// the blob landed at its canonical path
	got, err := os.ReadFile(store.CanonicalPath(helloSHA256))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpload_DedupHit(t *testing.T) {
	svc, mock, store := newUploadFixture(t)
	ctx := context.Background()

	// identical bytes are already published
	require.NoError(t, os.WriteFile(store.CanonicalPath(helloSHA256), []byte("hello"), 0o640))

	mock.ExpectQuery(selectContentBySHA).WithArgs(helloSHA256).WillReturnRows(contentRow(store))
	mock.ExpectQuery(selectOwnershipByPair).WithArgs(int64(2), int64(7)).WillReturnError(sql.ErrNoRows)
	mock.ExpectBegin()
	mock.ExpectQuery(insertOwnership).
		WillReturnRows(sqlmock.NewRows([]string{"id", "uploaded_at"}).AddRow(int64(4), time.Now()))
	mock.ExpectCommit()

	res, err := svc.Upload(ctx, 2, strings.NewReader("hello"), "copy.txt", "")
	require.NoError(t, err)

	assert.True(t, res.Dedup)
	assert.Equal(t, int64(4), res.OwnershipID)
	assert.Equal(t, helloSHA256, res.SHA256)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpload_RepeatUploadSameUser(t *testing.T) {
	svc, mock, store := newUploadFixture(t)
	ctx := context.Background()

	mock.ExpectQuery(selectContentBySHA).WithArgs(helloSHA256).WillReturnRows(contentRow(store))
	mock.ExpectQuery(selectOwnershipByPair).WithArgs(int64(1), int64(7)).WillReturnRows(ownershipRow(3, 1))

	res, err := svc.Upload(ctx, 1, strings.NewReader("hello"), "hello.txt", "text/plain")
	require.NoError(t, err)

	// same ownership id as the first upload, no new rows
	assert.Equal(t, int64(3), res.OwnershipID)
	assert.True(t, res.Dedup)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpload_LostContentInsertRace(t *testing.T) {
	svc, mock, store := newUploadFixture(t)
	ctx := context.Background()

	mock.ExpectQuery(selectContentBySHA).WithArgs(helloSHA256).WillReturnError(sql.ErrNoRows)
	mock.ExpectBegin()
	mock.ExpectQuery(insertContent).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "uq_contents_sha256"})
	mock.ExpectRollback()
	// re-read finds the winner's row
	mock.ExpectQuery(selectContentBySHA).WithArgs(helloSHA256).WillReturnRows(contentRow(store))
	mock.ExpectQuery(selectOwnershipByPair).WithArgs(int64(1), int64(7)).WillReturnError(sql.ErrNoRows)
	mock.ExpectBegin()
	mock.ExpectQuery(insertOwnership).
		WillReturnRows(sqlmock.NewRows([]string{"id", "uploaded_at"}).AddRow(int64(3), time.Now()))
	mock.ExpectCommit()

	res, err := svc.Upload(ctx, 1, strings.NewReader("hello"), "", "")
	require.NoError(t, err)

	assert.True(t, res.Dedup, "losing the insert race means someone uploaded identical content")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpload_ContentRowMissingAfterLostRace(t *testing.T) {
	svc, mock, _ := newUploadFixture(t)
	ctx := context.Background()

	mock.ExpectQuery(selectContentBySHA).WithArgs(helloSHA256).WillReturnError(sql.ErrNoRows)
	mock.ExpectBegin()
	mock.ExpectQuery(insertContent).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "uq_contents_sha256"})
	mock.ExpectRollback()
	mock.ExpectQuery(selectContentBySHA).WithArgs(helloSHA256).WillReturnError(sql.ErrNoRows)

	_, err := svc.Upload(ctx, 1, strings.NewReader("hello"), "", "")
	assert.ErrorIs(t, err, common.ErrInternal)
}

func TestUpload_LostOwnershipInsertRace(t *testing.T) {
	svc, mock, store := newUploadFixture(t)
	ctx := context.Background()

	mock.ExpectQuery(selectContentBySHA).WithArgs(helloSHA256).WillReturnRows(contentRow(store))
	mock.ExpectQuery(selectOwnershipByPair).WithArgs(int64(1), int64(7)).WillReturnError(sql.ErrNoRows)
	mock.ExpectBegin()
	mock.ExpectQuery(insertOwnership).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "uq_ownerships_user_content"})
	mock.ExpectRollback()
	mock.ExpectQuery(selectOwnershipByPair).WithArgs(int64(1), int64(7)).WillReturnRows(ownershipRow(3, 1))

	res, err := svc.Upload(ctx, 1, strings.NewReader("hello"), "", "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.OwnershipID)

	require.NoError(t, mock.ExpectationsWereMet())
}

type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) {
	return 0, errors.New("client went away")
}

func TestUpload_StreamFailureDiscardsScratch(t *testing.T) {
	svc, mock, store := newUploadFixture(t)
	ctx := context.Background()

	_, err := svc.Upload(ctx, 1, failingReader{}, "", "")
	assert.ErrorIs(t, err, common.ErrIngest)

	// no catalog calls were made and no scratch artifact remains
	require.NoError(t, mock.ExpectationsWereMet())
	removed, err := store.SweepScratch(0)
	require.NoError(t, err)
	assert.Zero(t, removed, "scratch must already be discarded")
}

type failingPublishStore struct {
	*blob.FSStore
}

func (failingPublishStore) Publish(context.Context, *blob.Scratch, string) (string, error) {
	return "", errors.New("disk full")
}

func TestUpload_PublishFailureDiscardsScratch(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := blob.NewFSStore(t.TempDir())
	require.NoError(t, err)

	svc := NewUploadService(db, repomanager.NewPostgresRepositoryManager(),
		failingPublishStore{store}, testLogger())
	ctx := context.Background()

	mock.ExpectQuery(selectContentBySHA).WithArgs(helloSHA256).WillReturnError(sql.ErrNoRows)
	mock.ExpectBegin()
	mock.ExpectQuery(insertContent).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), time.Now()))
	mock.ExpectCommit()

	_, err = svc.Upload(ctx, 1, strings.NewReader("hello"), "", "")
	assert.ErrorIs(t, err, common.ErrIngest)

	removed, err := store.SweepScratch(0)
	require.NoError(t, err)
	assert.Zero(t, removed, "scratch must already be discarded")
}

func TestUpload_EmptyPayload(t *testing.T) {
	svc, mock, store := newUploadFixture(t)
	ctx := context.Background()

	emptySHA := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

	mock.ExpectQuery(selectContentBySHA).WithArgs(emptySHA).WillReturnError(sql.ErrNoRows)
	mock.ExpectBegin()
	mock.ExpectQuery(insertContent).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(9), time.Now()))
	mock.ExpectCommit()
	mock.ExpectQuery(selectOwnershipByPair).WithArgs(int64(1), int64(9)).WillReturnError(sql.ErrNoRows)
	mock.ExpectBegin()
	mock.ExpectQuery(insertOwnership).
		WillReturnRows(sqlmock.NewRows([]string{"id", "uploaded_at"}).AddRow(int64(5), time.Now()))
	mock.ExpectCommit()

	res, err := svc.Upload(ctx, 1, strings.NewReader(""), "empty.bin", "")
	require.NoError(t, err)

	assert.Equal(t, emptySHA, res.SHA256)
	assert.Zero(t, res.SizeBytes)

	info, err := os.Stat(store.CanonicalPath(emptySHA))
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}
