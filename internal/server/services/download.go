package services

import (
	"context"
	"database/sql"
	"errors"
	"io"

	"github.com/smartctf/filevault/internal/common"
	"github.com/smartctf/filevault/internal/logging"
	"github.com/smartctf/filevault/internal/server/blob"
	"github.com/smartctf/filevault/internal/server/repositories/repomanager"
)

// Download is a resolved blob stream plus response metadata. The caller owns
// Stream and must close it.
type Download struct {
	Stream    io.ReadCloser
	Filename  string
	MimeType  string
	SizeBytes int64
}

// DownloadService resolves an ownership id, scoped to the requesting user,
// into a readable blob stream.
type DownloadService struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	blobs  blob.Store
	logger logging.Logger
}

func NewDownloadService(db *sql.DB, repos repomanager.RepositoryManager, blobs blob.Store, logger logging.Logger) *DownloadService {
	return &DownloadService{
		db:     db,
		repos:  repos,
		blobs:  blobs,
		logger: logger.With("module", "download"),
	}
}

// Resolve returns the blob behind ownershipID if it belongs to userID.
// Ownership owned by another user and ownership that does not exist are both
// common.ErrNotFound; a catalog row whose blob is missing from storage is
// also reported as common.ErrNotFound to the caller but logged as a
// data-integrity anomaly.
func (s *DownloadService) Resolve(ctx context.Context, userID, ownershipID int64) (*Download, error) {

	ownership, err := s.repos.Ownerships(s.db).GetByIDForUser(ctx, ownershipID, userID)
	if err != nil {
		return nil, err
	}

	content, err := s.repos.Contents(s.db).GetByID(ctx, ownership.ContentID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			// the FK should make this unreachable
			s.logger.Error(ctx, "ownership references missing content row",
				"ownership_id", ownership.ID, "content_id", ownership.ContentID)
			return nil, common.ErrInternal
		}
		return nil, err
	}

	stream, err := s.blobs.Open(ctx, content.StoragePath)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			// catalog row exists but the blob is gone: storage drifted from
			// the catalog
			s.logger.Error(ctx, "blob missing from storage",
				"sha256", content.SHA256, "path", content.StoragePath)
			return nil, common.ErrNotFound
		}
		return nil, err
	}

	filename := ownership.OriginalFilename
	if filename == "" {
		filename = content.SHA256
	}

	mimeType := content.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	return &Download{
		Stream:    stream,
		Filename:  filename,
		MimeType:  mimeType,
		SizeBytes: content.SizeBytes,
	}, nil
}
