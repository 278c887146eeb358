// Package artifact copies finished narration outputs to S3-compatible object storage.
package artifact

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Uploader stores a job's output files and returns where they landed.
type Uploader interface {
	Upload(ctx context.Context, jobID string, files []string) ([]string, error)
}

// Config holds object storage settings.
type Config struct {
	Endpoint  string // minio:9000
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// ObjectName returns the key a file is stored under.
func ObjectName(jobID, file string) string {
	return path.Join("narrations", jobID, filepath.Base(file))
}

// ContentType picks the upload content type from the file name.
func ContentType(file string) string {
	switch {
	case strings.HasSuffix(file, ".wav"):
		return "audio/wav"
	case strings.HasSuffix(file, ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(file, ".json"):
		return "application/json"
	case strings.HasSuffix(file, ".srt"):
		return "application/x-subrip"
	default:
		return "application/octet-stream"
	}
}

type objectPutter interface {
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// MinIO uploads through the minio-go client.
type MinIO struct {
	client  objectPutter
	bucket  string
	baseURL string
	logger  *slog.Logger
}

// NewMinIO connects to the endpoint and creates the bucket when missing.
func NewMinIO(cfg Config, logger *slog.Logger) (*MinIO, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		logger.Info("artifact bucket created", slog.String("bucket", cfg.Bucket))
	}

	return newMinIO(client, cfg, logger), nil
}

func newMinIO(client objectPutter, cfg Config, logger *slog.Logger) *MinIO {
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	return &MinIO{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket),
		logger:  logger,
	}
}

// Upload puts every file under narrations/<jobID>/ and returns their URLs in input order.
func (m *MinIO) Upload(ctx context.Context, jobID string, files []string) ([]string, error) {
	urls := make([]string, 0, len(files))
	for _, file := range files {
		object := ObjectName(jobID, file)
		info, err := m.client.FPutObject(ctx, m.bucket, object, file, minio.PutObjectOptions{
			ContentType: ContentType(file),
		})
		if err != nil {
			return nil, fmt.Errorf("upload %s: %w", object, err)
		}

		m.logger.Debug("artifact uploaded",
			slog.String("job_id", jobID),
			slog.String("object", object),
			slog.Int64("size", info.Size),
		)
		urls = append(urls, m.baseURL+"/"+object)
	}
	return urls, nil
}

// Noop keeps outputs on local disk only.
type Noop struct{}

// Upload implements Uploader.
func (Noop) Upload(context.Context, string, []string) ([]string, error) { return nil, nil }

var (
	_ Uploader = (*MinIO)(nil)
	_ Uploader = Noop{}
)
