package contents

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/smartctf/filevault/internal/common"
	"github.com/smartctf/filevault/internal/server/models"
)

const testSHA = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

const insertQuery = `(?s)^INSERT\s+INTO\s+contents\s*\(sha256,\s*storage_path,\s*size_bytes,\s*mime_type\)`
const selectBySHAQuery = `(?s)FROM\s+contents\s+WHERE\s+sha256\s*=\s*\$1`
const selectByIDQuery = `(?s)FROM\s+contents\s+WHERE\s+id\s*=\s*\$1`

func contentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "sha256", "storage_path", "size_bytes", "mime_type", "created_at"}).
		AddRow(int64(7), testSHA, "/data/files/"+testSHA, int64(5), "text/plain", time.Now())
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), time.Now())
	mock.ExpectQuery(insertQuery).
		WithArgs(testSHA, "/data/files/"+testSHA, int64(5), "text/plain").
		WillReturnRows(rows)

	c := &models.Content{SHA256: testSHA, StoragePath: "/data/files/" + testSHA, SizeBytes: 5, MimeType: "text/plain"}
	got, err := repo.Create(context.Background(), c)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if got.ID != 7 {
		t.Fatalf("unexpected content: %+v", got)
	}
}

func TestCreate_DuplicateSHA256(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(insertQuery).
		WithArgs(testSHA, "/data/files/"+testSHA, int64(5), "").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "uq_contents_sha256"})

	c := &models.Content{SHA256: testSHA, StoragePath: "/data/files/" + testSHA, SizeBytes: 5}
	_, err := repo.Create(context.Background(), c)
	if !errors.Is(err, common.ErrAlreadyExists) {
		t.Fatalf("want common.ErrAlreadyExists, got %v", err)
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(insertQuery).
		WithArgs(testSHA, "/data/files/"+testSHA, int64(5), "").
		WillReturnError(errors.New("db down"))

	c := &models.Content{SHA256: testSHA, StoragePath: "/data/files/" + testSHA, SizeBytes: 5}
	_, err := repo.Create(context.Background(), c)
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestGetBySHA256_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(selectBySHAQuery).
		WithArgs(testSHA).
		WillReturnRows(contentRows())

	got, err := repo.GetBySHA256(context.Background(), testSHA)
	if err != nil {
		t.Fatalf("GetBySHA256 error: %v", err)
	}
	if got.ID != 7 || got.SHA256 != testSHA || got.SizeBytes != 5 || got.MimeType != "text/plain" {
		t.Fatalf("unexpected content: %+v", got)
	}
}

func TestGetBySHA256_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(selectBySHAQuery).
		WithArgs(testSHA).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetBySHA256(context.Background(), testSHA)
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want common.ErrNotFound, got %v", err)
	}
}

func TestGetByID_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(selectByIDQuery).
		WithArgs(int64(7)).
		WillReturnRows(contentRows())

	got, err := repo.GetByID(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if got.StoragePath != "/data/files/"+testSHA {
		t.Fatalf("unexpected content: %+v", got)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(selectByIDQuery).
		WithArgs(int64(404)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), 404)
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want common.ErrNotFound, got %v", err)
	}
}
