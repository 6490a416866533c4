package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/smartbrief/core/internal/config"
)

// S3Archiver keeps a copy of every accepted upload in an S3 compatible bucket.
type S3Archiver struct {
	client *s3.Client
	bucket string
	prefix string
	now    func() time.Time
}

// NewS3Archiver builds an archiver from cfg. Custom endpoints (MinIO, R2)
// default to path-style addressing.
func NewS3Archiver(cfg config.UploadArchiveConfig) (*S3Archiver, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	region := strings.TrimSpace(cfg.Region)
	if bucket == "" || region == "" {
		return nil, errors.New("incomplete upload archive config: bucket and region are required")
	}

	opts := s3.Options{
		Region:                     region,
		UsePathStyle:               cfg.PathStyle,
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts.Credentials = aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		)
	}
	if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			endpoint = "https://" + endpoint
		}
		opts.BaseEndpoint = aws.String(strings.TrimSuffix(endpoint, "/"))
		opts.UsePathStyle = true
	}

	prefix := strings.Trim(strings.TrimSpace(cfg.Prefix), "/")
	if prefix == "" {
		prefix = "uploads"
	}
	return &S3Archiver{
		client: s3.New(opts),
		bucket: bucket,
		prefix: prefix,
		now:    time.Now,
	}, nil
}

// Archive uploads up under <prefix>/<userID>/<date>/<uuid><ext>.
func (a *S3Archiver) Archive(ctx context.Context, userID string, up *Upload) (string, error) {
	key := a.objectKey(userID, up.FileName)
	contentType := up.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(up.Data),
		ContentLength: aws.Int64(int64(len(up.Data))),
		ContentType:   aws.String(contentType),
		Metadata:      map[string]string{"user-id": userID},
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return key, nil
}

func (a *S3Archiver) objectKey(userID, fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	date := a.now().UTC().Format("2006-01-02")
	return path.Join(a.prefix, userID, date, uuid.NewString()+ext)
}
