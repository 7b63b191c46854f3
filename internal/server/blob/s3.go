package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/smartctf/filevault/internal/common"
)

// S3Config carries settings for an S3-compatible backend (MinIO included).
type S3Config struct {
	RootUser     string
	RootPassword string
	Bucket       string
	Region       string
	BaseEndpoint string
	// ScratchDir is a local directory for staging uploads before they are
	// pushed to the bucket.
	ScratchDir string
}

// S3Store publishes blobs to an S3-compatible bucket under hash-derived keys.
// Uploads are staged on the local filesystem first so hashing happens before
// any object is written; publishing the same key twice overwrites identical
// bytes, so the operation stays idempotent without coordination.
type S3Store struct {
	client  *s3.Client
	bucket  string
	scratch string
}

func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.RootUser,
			cfg.RootPassword,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	if err := os.MkdirAll(cfg.ScratchDir, 0o750); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", cfg.ScratchDir, err)
	}

	return &S3Store{client: client, bucket: cfg.Bucket, scratch: cfg.ScratchDir}, nil
}

func (s *S3Store) StageNew() (*Scratch, error) {
	return stageIn(s.scratch)
}

func (s *S3Store) CanonicalPath(sha256Hex string) string {
	return "blobs/" + sha256Hex
}

func (s *S3Store) Publish(ctx context.Context, scratch *Scratch, sha256Hex string) (string, error) {
	if err := scratch.close(); err != nil {
		return "", fmt.Errorf("close scratch: %w", err)
	}

	key := s.CanonicalPath(sha256Hex)

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		if err := scratch.Discard(); err != nil {
			return "", fmt.Errorf("discard scratch: %w", err)
		}
		return key, nil
	}
	var notFound *types.NotFound
	if !errors.As(err, &notFound) {
		return "", fmt.Errorf("head %s: %w", key, err)
	}

	f, err := os.Open(scratch.Path())
	if err != nil {
		return "", fmt.Errorf("open scratch: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return "", fmt.Errorf("stat scratch: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
	})
	f.Close()
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}

	if err := scratch.Discard(); err != nil {
		return "", fmt.Errorf("discard scratch: %w", err)
	}
	return key, nil
}

func (s *S3Store) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("blob %s: %w", path, common.ErrNotFound)
		}
		return nil, fmt.Errorf("get blob %s: %w", path, err)
	}
	return out.Body, nil
}

func (s *S3Store) SweepScratch(olderThan time.Duration) (int, error) {
	return sweepScratch(s.scratch, olderThan)
}
