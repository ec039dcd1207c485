package blob

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/docpipe/internal/log"
)

// fakeS3 implements the subset of s3iface.S3API the client uses, backed by an
// in-memory map. Unimplemented methods panic via the embedded nil interface.
type fakeS3 struct {
	s3iface.S3API

	buckets map[string]map[string][]byte

	createCalls int
	deleteCalls int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{buckets: make(map[string]map[string][]byte)}
}

func (f *fakeS3) CreateBucketWithContext(_ aws.Context, in *s3.CreateBucketInput, _ ...request.Option) (*s3.CreateBucketOutput, error) {
	f.createCalls++
	name := aws.StringValue(in.Bucket)
	if _, ok := f.buckets[name]; ok {
		return nil, awserr.New(s3.ErrCodeBucketAlreadyOwnedByYou, "already owned", nil)
	}
	f.buckets[name] = make(map[string][]byte)
	return &s3.CreateBucketOutput{}, nil
}

func (f *fakeS3) DeleteBucketWithContext(_ aws.Context, in *s3.DeleteBucketInput, _ ...request.Option) (*s3.DeleteBucketOutput, error) {
	f.deleteCalls++
	name := aws.StringValue(in.Bucket)
	if _, ok := f.buckets[name]; !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchBucket, "no such bucket", nil)
	}
	delete(f.buckets, name)
	return &s3.DeleteBucketOutput{}, nil
}

func (f *fakeS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	bucket, ok := f.buckets[aws.StringValue(in.Bucket)]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchBucket, "no such bucket", nil)
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	bucket[aws.StringValue(in.Key)] = body
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	bucket, ok := f.buckets[aws.StringValue(in.Bucket)]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchBucket, "no such bucket", nil)
	}
	body, ok := bucket[aws.StringValue(in.Key)]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "no such key", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func (f *fakeS3) DeleteObjectWithContext(_ aws.Context, in *s3.DeleteObjectInput, _ ...request.Option) (*s3.DeleteObjectOutput, error) {
	bucket, ok := f.buckets[aws.StringValue(in.Bucket)]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchBucket, "no such bucket", nil)
	}
	// S3 semantics: deleting a missing key succeeds.
	delete(bucket, aws.StringValue(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestPutGetRoundTrip(t *testing.T) {
	fake := newFakeS3()
	client := NewWithAPI(fake, log.NewNop())
	ctx := context.Background()

	require.NoError(t, client.CreateBucket(ctx, "run-1"))
	require.NoError(t, client.Put(ctx, "run-1", "files.zip", []byte("archive")))

	got, err := client.Get(ctx, "run-1", "files.zip")
	require.NoError(t, err)
	assert.Equal(t, []byte("archive"), got)
}

func TestCreateBucketIdempotent(t *testing.T) {
	fake := newFakeS3()
	client := NewWithAPI(fake, log.NewNop())
	ctx := context.Background()

	require.NoError(t, client.CreateBucket(ctx, "run-1"))
	require.NoError(t, client.CreateBucket(ctx, "run-1"))
	assert.Equal(t, 2, fake.createCalls)
}

func TestDeleteBucketIdempotent(t *testing.T) {
	fake := newFakeS3()
	client := NewWithAPI(fake, log.NewNop())
	ctx := context.Background()

	require.NoError(t, client.CreateBucket(ctx, "run-1"))
	require.NoError(t, client.DeleteBucket(ctx, "run-1"))
	// Second deletion must be a no-op, never an error.
	require.NoError(t, client.DeleteBucket(ctx, "run-1"))
}

func TestDeleteObjectIdempotent(t *testing.T) {
	fake := newFakeS3()
	client := NewWithAPI(fake, log.NewNop())
	ctx := context.Background()

	require.NoError(t, client.CreateBucket(ctx, "run-1"))
	require.NoError(t, client.DeleteObject(ctx, "run-1", "never-written"))
	// Missing bucket is also a no-op.
	require.NoError(t, client.DeleteObject(ctx, "gone", "files.zip"))
}

func TestGetMissingObject(t *testing.T) {
	fake := newFakeS3()
	client := NewWithAPI(fake, log.NewNop())
	ctx := context.Background()

	require.NoError(t, client.CreateBucket(ctx, "run-1"))

	_, err := client.Get(ctx, "run-1", "missing.json")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = client.Get(ctx, "missing-bucket", "missing.json")
	assert.ErrorIs(t, err, ErrNotFound)
}
