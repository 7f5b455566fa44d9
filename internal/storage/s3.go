package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/bortube/gateway/internal/config"
)

// MaxPresignExpiry is the longest validity S3 accepts for a presigned URL.
const MaxPresignExpiry = 7 * 24 * time.Hour

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Exists bool
	Size   int64
}

type headAPI interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

type presignAPI interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Storage issues write targets for, and inspects, objects in one bucket of
// an S3-compatible service.
type S3Storage struct {
	client    headAPI
	presigner presignAPI
	bucket    string
}

// NewS3Storage configures a client targeting the provided object store.
func NewS3Storage(ctx context.Context, cfg config.ObjectStoreConfig) (*S3Storage, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 storage: bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = true
	})

	return newS3Storage(client, s3.NewPresignClient(client), cfg.Bucket), nil
}

func newS3Storage(client headAPI, presigner presignAPI, bucket string) *S3Storage {
	return &S3Storage{client: client, presigner: presigner, bucket: bucket}
}

// PresignPut returns a URL that accepts a single PUT of key until expiry elapses.
func (s *S3Storage) PresignPut(ctx context.Context, key string, expiry time.Duration) (string, error) {
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return "", fmt.Errorf("s3 storage: empty key")
	}
	if expiry <= 0 {
		return "", fmt.Errorf("s3 storage: expiry must be positive")
	}
	if expiry > MaxPresignExpiry {
		expiry = MaxPresignExpiry
	}

	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("s3 storage presign %s: %w", key, err)
	}
	return req.URL, nil
}

// Stat reports whether key exists and its size. A missing object is not an error.
func (s *S3Storage) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return ObjectInfo{}, fmt.Errorf("s3 storage: empty key")
	}

	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return ObjectInfo{}, nil
		}
		return ObjectInfo{}, fmt.Errorf("s3 storage head %s: %w", key, err)
	}

	return ObjectInfo{Exists: true, Size: aws.ToInt64(out.ContentLength)}, nil
}

func isNotFound(err error) bool {
	var notFound *s3types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchKey *s3types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
