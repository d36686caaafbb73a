package capture

import (
	"context"
	"os"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	"github.com/ancware/tunelink/pkg/errors"
)

// ExportSettings holds the object storage target for capture upload.
type ExportSettings struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Exporter uploads finished capture files to an S3-compatible bucket.
type Exporter struct {
	client *minio.Client
	bucket string
	logger zerolog.Logger
}

// NewExporter builds a client for the configured endpoint.
func NewExporter(cfg ExportSettings, logger zerolog.Logger) (*Exporter, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New(ErrExportConfig, "export requires an endpoint and bucket", nil)
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.New(ErrExportConnect, "failed to create object storage client", err).
			AddContext("endpoint", cfg.Endpoint)
	}

	return &Exporter{
		client: client,
		bucket: cfg.Bucket,
		logger: logger.With().Str("component", "capture-export").Logger(),
	}, nil
}

func (e *Exporter) ensureBucket(ctx context.Context) error {
	exists, err := e.client.BucketExists(ctx, e.bucket)
	if err != nil {
		return errors.New(ErrExportBucket, "failed to check bucket", err).AddContext("bucket", e.bucket)
	}
	if exists {
		return nil
	}
	if err := e.client.MakeBucket(ctx, e.bucket, minio.MakeBucketOptions{}); err != nil {
		return errors.New(ErrExportBucket, "failed to create bucket", err).AddContext("bucket", e.bucket)
	}
	return nil
}

// Export uploads one finished capture file and returns the object name.
func (e *Exporter) Export(ctx context.Context, info Info) (string, error) {
	if _, err := os.Stat(info.Path); err != nil {
		return "", errors.New(ErrExportSourceMiss, "capture file not found", err).AddContext("path", info.Path)
	}
	if err := e.ensureBucket(ctx); err != nil {
		return "", err
	}

	object := filepath.Base(info.Path)
	res, err := e.client.FPutObject(ctx, e.bucket, object, info.Path, minio.PutObjectOptions{
		ContentType: "application/x-ndjson",
	})
	if err != nil {
		return "", errors.New(ErrExportUpload, "failed to upload capture", err).
			AddContext("object", object).
			AddContext("bucket", e.bucket)
	}

	e.logger.Info().
		Str("object", object).
		Int64("size", res.Size).
		Str("bucket", e.bucket).
		Msg("Capture exported")
	return object, nil
}
