package bundle

import (
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// BlobStore is the port onto the object store holding routine bundle source.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// S3BlobStore fetches bundle source from S3 paths like:
//
//	s3://<bucket>/<prefix>/bundles/<key>
type S3BlobStore struct {
	bucket     string
	prefix     string
	downloader *manager.Downloader
}

// NewS3BlobStore creates an S3BlobStore. Region/credentials come from the
// environment (AWS_REGION, AWS_PROFILE, AWS_ACCESS_KEY_ID/SECRET etc.).
func NewS3BlobStore(ctx context.Context, bucket, prefix string) (*S3BlobStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket required")
	}
	cfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3BlobStore{
		bucket:     bucket,
		prefix:     prefix,
		downloader: manager.NewDownloader(client),
	}, nil
}

func (s *S3BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	objectKey := path.Join(s.prefix, "bundles", key)
	buf := manager.NewWriteAtBuffer(nil)
	_, err := s.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 download %s: %w", objectKey, err)
	}
	return buf.Bytes(), nil
}
