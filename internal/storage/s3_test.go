package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

type fakeS3 struct {
	headErr  error
	size     int64
	headKey  string
	presKey  string
	expires  time.Duration
	presFail error
}

func (f *fakeS3) HeadObject(_ context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.headKey = aws.ToString(params.Key)
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(f.size)}, nil
}

func (f *fakeS3) PresignPutObject(_ context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.presKey = aws.ToString(params.Key)
	opts := s3.PresignOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	f.expires = opts.Expires
	if f.presFail != nil {
		return nil, f.presFail
	}
	return &v4.PresignedHTTPRequest{URL: "https://bucket.example/" + f.presKey + "?X-Amz-Signature=abc", Method: "PUT"}, nil
}

func TestPresignPut(t *testing.T) {
	fake := &fakeS3{}
	store := newS3Storage(fake, fake, "videos")

	url, err := store.PresignPut(context.Background(), "/v1_f.mp4", 10*time.Second)
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if url != "https://bucket.example/v1_f.mp4?X-Amz-Signature=abc" {
		t.Fatalf("unexpected url %q", url)
	}
	if fake.expires != 10*time.Second {
		t.Fatalf("expected 10s expiry got %s", fake.expires)
	}

	if _, err := store.PresignPut(context.Background(), "v1_f.mp4", 30*24*time.Hour); err != nil {
		t.Fatalf("presign: %v", err)
	}
	if fake.expires != MaxPresignExpiry {
		t.Fatalf("expected expiry capped at %s got %s", MaxPresignExpiry, fake.expires)
	}

	if _, err := store.PresignPut(context.Background(), "", time.Second); err == nil {
		t.Fatal("expected empty key to be rejected")
	}
	if _, err := store.PresignPut(context.Background(), "k", 0); err == nil {
		t.Fatal("expected non-positive expiry to be rejected")
	}
}

func TestStat(t *testing.T) {
	fake := &fakeS3{size: 2048}
	store := newS3Storage(fake, fake, "videos")

	info, err := store.Stat(context.Background(), "v1_f.mp4")
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if !info.Exists || info.Size != 2048 {
		t.Fatalf("unexpected info %+v", info)
	}
	if fake.headKey != "v1_f.mp4" {
		t.Fatalf("unexpected key %q", fake.headKey)
	}
}

func TestStatMissingObject(t *testing.T) {
	for name, headErr := range map[string]error{
		"typed":     &s3types.NotFound{},
		"noSuchKey": &s3types.NoSuchKey{},
		"generic":   &smithy.GenericAPIError{Code: "NotFound"},
	} {
		t.Run(name, func(t *testing.T) {
			store := newS3Storage(&fakeS3{headErr: headErr}, &fakeS3{}, "videos")
			info, err := store.Stat(context.Background(), "v1_f.mp4")
			if err != nil {
				t.Fatalf("missing objects are not errors, got %v", err)
			}
			if info.Exists {
				t.Fatal("expected object to be reported missing")
			}
		})
	}
}

func TestStatFailure(t *testing.T) {
	store := newS3Storage(&fakeS3{headErr: errors.New("connection refused")}, &fakeS3{}, "videos")
	if _, err := store.Stat(context.Background(), "v1_f.mp4"); err == nil {
		t.Fatal("expected error")
	}
}
