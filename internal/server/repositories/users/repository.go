package users

import (
	"context"

	"github.com/smartctf/filevault/internal/server/models"
)

type Repository interface {
	// Create inserts a new user. Returns common.ErrAlreadyExists when the
	// username is taken.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByLogin(ctx context.Context, userName string) (*models.User, error)
}
