// Package blob wraps an S3-compatible object store behind the small surface
// the pipelines need: bucket create/delete and object put/get/delete.
//
// Buckets are used as scoped resource containers: one per pipeline run, named
// by the run's workflow or conversation identifier, created before any write
// and torn down when the run no longer needs its artifacts. Deletion is
// idempotent — removing a bucket or object that does not exist is a no-op, so
// cleanup can be retried safely.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// ErrNotFound is returned by Get when the requested object does not exist.
var ErrNotFound = errors.New("object not found")

// Config holds the connection settings for the object store.
// All fields are explicit; there is no ambient environment lookup here.
type Config struct {
	Endpoint        string // e.g. http://localhost:9000 for MinIO
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// Client is a thin S3 client scoped to the operations the pipelines use.
// Safe for concurrent use.
type Client struct {
	api    s3iface.S3API
	logger *slog.Logger
}

// New creates a Client from explicit configuration.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	awsCfg := &aws.Config{
		Region:           aws.String(cfg.Region),
		Endpoint:         aws.String(cfg.Endpoint),
		S3ForcePathStyle: aws.Bool(true),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("creating S3 session: %w", err)
	}

	return &Client{api: s3.New(sess), logger: logger}, nil
}

// NewWithAPI creates a Client over an existing S3 API implementation.
// Used by tests to substitute a fake.
func NewWithAPI(api s3iface.S3API, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{api: api, logger: logger}
}

// CreateBucket creates a bucket. Creating a bucket this client already owns
// is a no-op so the operation can be retried.
func (c *Client) CreateBucket(ctx context.Context, bucket string) error {
	_, err := c.api.CreateBucketWithContext(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) {
			switch aerr.Code() {
			case s3.ErrCodeBucketAlreadyOwnedByYou, s3.ErrCodeBucketAlreadyExists:
				return nil
			}
		}
		return fmt.Errorf("create bucket %q: %w", bucket, err)
	}

	c.logger.Debug("created bucket", "bucket", bucket)
	return nil
}

// DeleteBucket removes a bucket. Deleting a bucket that does not exist is a
// no-op.
func (c *Client) DeleteBucket(ctx context.Context, bucket string) error {
	_, err := c.api.DeleteBucketWithContext(ctx, &s3.DeleteBucketInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		if isNoSuchBucket(err) {
			return nil
		}
		return fmt.Errorf("delete bucket %q: %w", bucket, err)
	}

	c.logger.Debug("deleted bucket", "bucket", bucket)
	return nil
}

// Put stores an object.
func (c *Client) Put(ctx context.Context, bucket, key string, body []byte) error {
	_, err := c.api.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("put object %q in bucket %q: %w", key, bucket, err)
	}

	c.logger.Debug("stored object", "bucket", bucket, "key", key, "bytes", len(body))
	return nil
}

// Get retrieves an object's content. Returns ErrNotFound when the object or
// its bucket does not exist.
func (c *Client) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := c.api.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) {
			switch aerr.Code() {
			case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket:
				return nil, fmt.Errorf("object %q in bucket %q: %w", key, bucket, ErrNotFound)
			}
		}
		return nil, fmt.Errorf("get object %q from bucket %q: %w", key, bucket, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %q from bucket %q: %w", key, bucket, err)
	}
	return body, nil
}

// DeleteObject removes an object. S3 treats deletion of a missing key as
// success; a missing bucket is also a no-op here.
func (c *Client) DeleteObject(ctx context.Context, bucket, key string) error {
	_, err := c.api.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNoSuchBucket(err) {
			return nil
		}
		return fmt.Errorf("delete object %q from bucket %q: %w", key, bucket, err)
	}

	c.logger.Debug("deleted object", "bucket", bucket, "key", key)
	return nil
}

func isNoSuchBucket(err error) bool {
	var aerr awserr.Error
	return errors.As(err, &aerr) && aerr.Code() == s3.ErrCodeNoSuchBucket
}
