package s3

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Store archives rendered artifacts in an S3-compatible bucket.
type Store struct {
	Endpoint string
	Bucket   string
	Client   *minio.Client
}

func New(endpoint, accessKeyID, secretKey, bucket string, secure bool) (*Store, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	return &Store{Endpoint: endpoint, Bucket: bucket, Client: client}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.Client.BucketExists(ctx, s.Bucket)
	if err != nil {
		return fmt.Errorf("s3 bucket exists: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.Client.MakeBucket(ctx, s.Bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("s3 make bucket: %w", err)
	}
	return nil
}

// PutFile uploads a local file under key and returns its s3:// location.
func (s *Store) PutFile(ctx context.Context, key, path string) (string, error) {
	if s == nil || s.Client == nil {
		return "", fmt.Errorf("s3 client not initialized")
	}
	_, err := s.Client.FPutObject(ctx, s.Bucket, key, path, minio.PutObjectOptions{
		ContentType: contentType(path),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.Bucket, key), nil
}

func contentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4":
		return "video/mp4"
	case ".mp3":
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}
