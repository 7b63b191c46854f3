package contents

import (
	"context"

	"github.com/smartctf/filevault/internal/server/models"
)

type Repository interface {
	// Create inserts a new content row. Returns common.ErrAlreadyExists when
	// a row with the same sha256 has already been committed (the insert-race
	// signal the upload coordinator resolves by re-reading).
	Create(ctx context.Context, content *models.Content) (*models.Content, error)
	GetBySHA256(ctx context.Context, sha256Hex string) (*models.Content, error)
	GetByID(ctx context.Context, id int64) (*models.Content, error)
}
