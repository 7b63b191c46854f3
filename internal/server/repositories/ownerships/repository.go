package ownerships

import (
	"context"

	"github.com/smartctf/filevault/internal/server/models"
)

type Repository interface {
	// Create inserts a new ownership row. Returns common.ErrAlreadyExists
	// when a row for the same (user, content) pair has already been
	// committed.
	Create(ctx context.Context, ownership *models.Ownership) (*models.Ownership, error)
	GetByUserAndContent(ctx context.Context, userID, contentID int64) (*models.Ownership, error)
	// GetByIDForUser looks up an ownership by id scoped to the requesting
	// user: a row owned by anyone else is reported as common.ErrNotFound.
	GetByIDForUser(ctx context.Context, id, userID int64) (*models.Ownership, error)
}
