// Package s3 implements the object-store contract on top of Amazon S3 or
// any S3-compatible endpoint.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/kk-code-lab/tierstore/internal/storage"
)

// Backend stores every object in one bucket.
type Backend struct {
	client *s3.Client
	bucket string
}

// New loads the default AWS configuration and returns a Backend for the
// bucket. An empty region falls back to the environment.
func New(ctx context.Context, bucket, region string) (*Backend, error) {
	if bucket == "" {
		return nil, errors.New("s3: bucket required")
	}
	var optFns []func(*awsconfig.LoadOptions) error
	if region != "" {
		optFns = append(optFns, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("s3: load config: %w", err)
	}
	return &Backend{client: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

// NewWithClient wraps an existing client, letting callers point at
// S3-compatible endpoints.
func NewWithClient(client *s3.Client, bucket string) (*Backend, error) {
	if client == nil {
		return nil, errors.New("s3: client required")
	}
	if bucket == "" {
		return nil, errors.New("s3: bucket required")
	}
	return &Backend{client: client, bucket: bucket}, nil
}

func (b *Backend) Upload(ctx context.Context, key string, r io.Reader) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("s3: upload %q: %w", key, mapError(err))
	}
	return nil
}

func (b *Backend) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3: fetch %q: %w", key, mapError(err))
	}
	return out.Body, nil
}

func (b *Backend) FetchRange(ctx context.Context, key string, from, to int64) (io.ReadCloser, error) {
	if from < 0 || to < from {
		return nil, fmt.Errorf("s3: fetch %q: invalid range [%d, %d]", key, from, to)
	}
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", from, to)),
	})
	if err != nil {
		return nil, fmt.Errorf("s3: fetch %q: %w", key, mapError(err))
	}
	return out.Body, nil
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3: delete %q: %w", key, mapError(err))
	}
	return nil
}

// mapError translates permanent S3 failures to the storage sentinels so the
// core can classify them without importing SDK types.
func mapError(err error) error {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return storage.ErrKeyNotFound
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return storage.ErrKeyNotFound
		case "AccessDenied":
			return storage.ErrForbidden
		}
	}
	return err
}
