// Package objstore mirrors an artifact tree into an S3 compatible bucket.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// Config holds the connection settings of the bucket.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	// Prefix is prepended to every object key
	Prefix   string
	Insecure bool
}

// Enabled reports whether an upload target is configured.
func (c Config) Enabled() bool {
	return c.Endpoint != ""
}

func (c Config) validate() error {
	var errs []error
	if c.Endpoint == "" {
		errs = append(errs, errors.New("upload endpoint is required"))
	}
	if c.Bucket == "" {
		errs = append(errs, errors.New("upload bucket is required"))
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		errs = append(errs, errors.New("upload access key and secret key are required"))
	}
	return errors.Join(errs...)
}

// Client uploads artifacts to one bucket.
type Client struct {
	logger zerolog.Logger
	mc     *minio.Client
	bucket string
	prefix string
}

func NewClient(logger zerolog.Logger, cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: !cfg.Insecure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	return &Client{
		logger: logger,
		mc:     mc,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// EnsureBucket creates the bucket if it does not exist.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", c.bucket, err)
	}
	if !exists {
		if err := c.mc.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", c.bucket, err)
		}
		c.logger.Info().Str("bucket", c.bucket).Msg("Created bucket")
	}
	return nil
}

// UploadTree uploads every regular file below root. Object keys are the
// client prefix, then runID, then the slash separated path relative to root.
// It returns the number of uploaded files.
func (c *Client) UploadTree(ctx context.Context, root, runID string) (int, error) {
	var uploaded int

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		key := ObjectKey(c.prefix, runID, rel)

		if _, err := c.mc.FPutObject(ctx, c.bucket, key, p, minio.PutObjectOptions{
			ContentType: contentType(p),
		}); err != nil {
			return fmt.Errorf("failed to upload %s: %w", key, err)
		}

		c.logger.Debug().Str("file", p).Str("key", key).Msg("Uploaded artifact")
		uploaded++
		return nil
	})
	if err != nil {
		return uploaded, err
	}

	c.logger.Info().Str("bucket", c.bucket).Int("files", uploaded).Msg("Uploaded artifact tree")
	return uploaded, nil
}

// ObjectKey builds the object key of a file relative to the artifact root.
func ObjectKey(prefix, runID, rel string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{strings.Trim(prefix, "/"), runID, filepath.ToSlash(rel)} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return path.Join(parts...)
}

func contentType(p string) string {
	switch filepath.Ext(p) {
	case ".txt", ".log":
		return "text/plain; charset=utf-8"
	case ".json":
		return "application/json"
	}
	return "application/octet-stream"
}
