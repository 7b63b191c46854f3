// Package services implements the application services over the repositories
// and the blob store: registration/login, the upload coordinator, and the
// download resolver.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/smartctf/filevault/internal/common"
	"github.com/smartctf/filevault/internal/dbx"
	"github.com/smartctf/filevault/internal/hashx"
	"github.com/smartctf/filevault/internal/logging"
	"github.com/smartctf/filevault/internal/server/blob"
	"github.com/smartctf/filevault/internal/server/models"
	"github.com/smartctf/filevault/internal/server/repositories/repomanager"
)

// UploadResult is the outcome of a completed upload.
type UploadResult struct {
	OwnershipID int64
	SHA256      string
	SizeBytes   int64
	// Dedup is true when byte-identical content had been uploaded before by
	// anyone, independent of whether this user had uploaded it.
	Dedup bool
}

// UploadService coordinates the upload protocol: stage, stream+hash,
// reconcile the content record, publish the blob, reconcile the ownership
// record. All insert races are resolved against the database's uniqueness
// constraints; no in-memory locks are taken.
type UploadService struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	blobs  blob.Store
	logger logging.Logger
}

func NewUploadService(db *sql.DB, repos repomanager.RepositoryManager, blobs blob.Store, logger logging.Logger) *UploadService {
	return &UploadService{
		db:     db,
		repos:  repos,
		blobs:  blobs,
		logger: logger.With("module", "upload"),
	}
}

// Upload ingests a byte stream on behalf of userID. originalFilename and
// mimeType may be empty. Stream or scratch failures come back wrapped in
// common.ErrIngest with the scratch artifact already discarded.
func (s *UploadService) Upload(ctx context.Context, userID int64, r io.Reader, originalFilename, mimeType string) (*UploadResult, error) {

	scratch, err := s.blobs.StageNew()
	if err != nil {
		return nil, fmt.Errorf("%w: stage: %v", common.ErrIngest, err)
	}

	digester := hashx.NewDigester(scratch)
	if _, err := io.CopyBuffer(digester, r, make([]byte, hashx.CopyBufferSize)); err != nil {
		s.discard(ctx, scratch)
		return nil, fmt.Errorf("%w: stream: %v", common.ErrIngest, err)
	}

	sum := digester.SumHex()

	content, dedup, err := s.insertOrGetContent(ctx, sum, digester.Size(), mimeType)
	if err != nil {
		s.discard(ctx, scratch)
		return nil, err
	}

	// Always publish, even on a dedup hit: the catalog row and the physical
	// blob are reconciled independently (a prior upload may have committed
	// the row but crashed before the rename).
	if _, err := s.blobs.Publish(ctx, scratch, sum); err != nil {
		s.discard(ctx, scratch)
		return nil, fmt.Errorf("%w: publish %s: %v", common.ErrIngest, sum, err)
	}

	ownership, err := s.insertOrGetOwnership(ctx, userID, content.ID, originalFilename)
	if err != nil {
		return nil, err
	}

	return &UploadResult{
		OwnershipID: ownership.ID,
		SHA256:      content.SHA256,
		SizeBytes:   content.SizeBytes,
		Dedup:       dedup,
	}, nil
}

// insertOrGetContent resolves the content row for sum, inserting it when
// absent. A lost insert race (uniqueness violation on commit) is absorbed by
// rolling back and re-reading the winner's row; it is never surfaced.
func (s *UploadService) insertOrGetContent(ctx context.Context, sum string, size int64, mimeType string) (*models.Content, bool, error) {

	existing, err := s.repos.Contents(s.db).GetBySHA256(ctx, sum)
	if err == nil {
		return existing, true, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, false, err
	}

	fresh := &models.Content{
		SHA256:      sum,
		StoragePath: s.blobs.CanonicalPath(sum),
		SizeBytes:   size,
		MimeType:    mimeType,
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := s.repos.Contents(tx).Create(ctx, fresh)
		return err
	})
	if err == nil {
		return fresh, false, nil
	}
	if !errors.Is(err, common.ErrAlreadyExists) {
		return nil, false, err
	}

	// lost the race: a concurrent upload committed the row first
	existing, err = s.repos.Contents(s.db).GetBySHA256(ctx, sum)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			s.logger.Error(ctx, "content row missing after insert conflict", "sha256", sum)
			return nil, false, common.ErrInternal
		}
		return nil, false, err
	}
	return existing, true, nil
}

// insertOrGetOwnership resolves the ownership row for (userID, contentID)
// with the same race-absorbing pattern as insertOrGetContent.
func (s *UploadService) insertOrGetOwnership(ctx context.Context, userID, contentID int64, originalFilename string) (*models.Ownership, error) {

	existing, err := s.repos.Ownerships(s.db).GetByUserAndContent(ctx, userID, contentID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	fresh := &models.Ownership{
		UserID:           userID,
		ContentID:        contentID,
		OriginalFilename: originalFilename,
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := s.repos.Ownerships(tx).Create(ctx, fresh)
		return err
	})
	if err == nil {
		return fresh, nil
	}
	if !errors.Is(err, common.ErrAlreadyExists) {
		return nil, err
	}

	existing, err = s.repos.Ownerships(s.db).GetByUserAndContent(ctx, userID, contentID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			s.logger.Error(ctx, "ownership row missing after insert conflict",
				"user_id", userID, "content_id", contentID)
			return nil, common.ErrInternal
		}
		return nil, err
	}
	return existing, nil
}

func (s *UploadService) discard(ctx context.Context, scratch *blob.Scratch) {
	if err := scratch.Discard(); err != nil {
		s.logger.Warn(ctx, "scratch discard failed", "path", scratch.Path(), "error", err.Error())
	}
}
