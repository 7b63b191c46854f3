package ownerships

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/smartctf/filevault/internal/common"
	"github.com/smartctf/filevault/internal/dbx"
	"github.com/smartctf/filevault/internal/server/models"
)

// PostgresRepository implements ownership rows over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, ownership *models.Ownership) (*models.Ownership, error) {

	query :=
		`INSERT INTO ownerships (user_id, content_id, original_filename)
		 VALUES ($1, $2, NULLIF($3, ''))
		 RETURNING id, uploaded_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		ownership.UserID, ownership.ContentID, ownership.OriginalFilename).
		Scan(&ownership.ID, &ownership.UploadedAt)

	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return ownership, nil
}

func (r *PostgresRepository) GetByUserAndContent(ctx context.Context, userID, contentID int64) (*models.Ownership, error) {
	query :=
		`SELECT id, user_id, content_id, COALESCE(original_filename, ''), uploaded_at FROM ownerships
		 WHERE user_id = $1 AND content_id = $2
		 `

	return r.scanOne(r.db.QueryRowContext(ctx, query, userID, contentID))
}

func (r *PostgresRepository) GetByIDForUser(ctx context.Context, id, userID int64) (*models.Ownership, error) {
	query :=
		`SELECT id, user_id, content_id, COALESCE(original_filename, ''), uploaded_at FROM ownerships
		 WHERE id = $1 AND user_id = $2
		 `

	return r.scanOne(r.db.QueryRowContext(ctx, query, id, userID))
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.Ownership, error) {
	ownership := &models.Ownership{}
	err := row.Scan(&ownership.ID, &ownership.UserID, &ownership.ContentID,
		&ownership.OriginalFilename, &ownership.UploadedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return ownership, nil
}
