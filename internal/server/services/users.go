package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/smartctf/filevault/internal/common"
	"github.com/smartctf/filevault/internal/server/auth"
	"github.com/smartctf/filevault/internal/server/config"
	"github.com/smartctf/filevault/internal/server/models"
	"github.com/smartctf/filevault/internal/server/repositories/repomanager"
)

// UserService implements registration and login, issuing signed access
// tokens. Credential verification lives here; the upload/download services
// only consume the resulting user identity.
type UserService struct {
	db                          *sql.DB
	repos                       repomanager.RepositoryManager
	jwtSecret                   []byte
	accessTokenValidityDuration time.Duration
}

func NewUserService(db *sql.DB, repos repomanager.RepositoryManager, cfg *config.Config) *UserService {
	return &UserService{
		db:                          db,
		repos:                       repos,
		jwtSecret:                   []byte(cfg.SecretKey),
		accessTokenValidityDuration: cfg.AccessTokenValidityDuration,
	}
}

// Register creates a new user and returns an access token. Returns
// common.ErrAlreadyExists when the username is taken.
func (s *UserService) Register(ctx context.Context, username, password string) (string, error) {

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		UserName:     username,
		PasswordHash: passwordHash,
	}

	user, err = s.repos.Users(s.db).Create(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			return "", common.ErrAlreadyExists
		}
		return "", fmt.Errorf("error creating user: %w", err)
	}

	return auth.GenerateToken(user.ID, s.jwtSecret, s.accessTokenValidityDuration)
}

// Login verifies credentials and returns an access token. Unknown usernames
// and wrong passwords are indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, username, password string) (string, error) {

	user, err := s.repos.Users(s.db).GetByLogin(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return "", common.ErrUnauthorized
		}
		return "", common.ErrInternal
	}

	if !auth.VerifyPassword(password, user.PasswordHash) {
		return "", common.ErrUnauthorized
	}

	token, err := auth.GenerateToken(user.ID, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return "", common.ErrInternal
	}

	return token, nil
}
