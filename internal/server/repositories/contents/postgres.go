package contents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/smartctf/filevault/internal/common"
	"github.com/smartctf/filevault/internal/dbx"
	"github.com/smartctf/filevault/internal/server/models"
)

// PostgresRepository implements content rows over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, content *models.Content) (*models.Content, error) {

	query :=
		`INSERT INTO contents (sha256, storage_path, size_bytes, mime_type)
		 VALUES ($1, $2, $3, NULLIF($4, ''))
		 RETURNING id, created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		content.SHA256, content.StoragePath, content.SizeBytes, content.MimeType).
		Scan(&content.ID, &content.CreatedAt)

	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return content, nil
}

func (r *PostgresRepository) GetBySHA256(ctx context.Context, sha256Hex string) (*models.Content, error) {
	query :=
		`SELECT id, sha256, storage_path, size_bytes, COALESCE(mime_type, ''), created_at FROM contents
		 WHERE sha256 = $1
		 `

	return r.scanOne(r.db.QueryRowContext(ctx, query, sha256Hex))
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.Content, error) {
	query :=
		`SELECT id, sha256, storage_path, size_bytes, COALESCE(mime_type, ''), created_at FROM contents
		 WHERE id = $1
		 `

	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.Content, error) {
	content := &models.Content{}
	err := row.Scan(&content.ID, &content.SHA256, &content.StoragePath,
		&content.SizeBytes, &content.MimeType, &content.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return content, nil
}
