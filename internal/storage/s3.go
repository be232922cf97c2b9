package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Client abstracts the S3 API operations used by [S3Store].
// The [s3.Client] type satisfies this interface.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store uploads blobs to Amazon S3 or any S3-compatible object store
// (MinIO, Cloudflare R2). The returned URLs point at publicBaseURL, which
// is expected to serve the bucket (a CDN domain in front of R2, or the
// endpoint itself for MinIO).
type S3Store struct {
	client        S3Client
	bucket        string
	prefix        string
	publicBaseURL string
	logger        *slog.Logger
}

// S3Options configures NewS3Store. Bucket and PublicBaseURL are required;
// Prefix is prepended to all object keys when set.
type S3Options struct {
	Bucket        string
	Prefix        string
	PublicBaseURL string
}

// NewS3Store creates an S3-backed Uploader. The client should be
// pre-configured (credentials, region, endpoint); any type satisfying
// [S3Client] is accepted, typically an [s3.Client].
func NewS3Store(client S3Client, opts S3Options, logger *slog.Logger) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("storage: s3 bucket not configured")
	}
	if opts.PublicBaseURL == "" {
		return nil, fmt.Errorf("storage: s3 public base URL not configured")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Store{
		client:        client,
		bucket:        opts.Bucket,
		prefix:        strings.Trim(opts.Prefix, "/"),
		publicBaseURL: strings.TrimRight(opts.PublicBaseURL, "/"),
		logger:        logger.With("component", "storage.s3"),
	}, nil
}

// NewS3Client builds an [s3.Client] for an S3-compatible endpoint with
// static credentials. Endpoint may be empty for plain AWS S3.
func NewS3Client(endpoint, region, accessKey, secretKey string) *s3.Client {
	opts := s3.Options{
		Region: region,
		Credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     accessKey,
				SecretAccessKey: secretKey,
				Source:          "voxa-static",
			}, nil
		}),
	}
	if endpoint != "" {
		opts.BaseEndpoint = aws.String(endpoint)
		// R2 and MinIO resolve buckets by path, not virtual host.
		opts.UsePathStyle = true
	}
	return s3.New(opts)
}

func (s *S3Store) key(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

func (s *S3Store) Upload(ctx context.Context, key, contentType string, data []byte) (string, error) {
	key = sanitizeKey(key)
	if key == "" {
		return "", fmt.Errorf("storage: empty key")
	}
	full := s.key(key)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(full),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("storage: put %s: %s: %w", full, apiErr.ErrorCode(), err)
		}
		return "", fmt.Errorf("storage: put %s: %w", full, err)
	}
	s.logger.Debug("uploaded blob", "key", full, "bytes", len(data))
	return s.publicBaseURL + "/" + full, nil
}
