package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcarleson/delivd/internal/common"
)

type fakeS3 struct {
	listPages   []*s3.ListObjectsV2Output
	listCalls   int
	listErr     error
	deleted     [][]string
	deleteErr   error
	deleteOut   *s3.DeleteObjectsOutput
	bucketGone  bool
	bucketErr   error
	singleGone  []string
	singleErr   error
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	page := f.listPages[f.listCalls]
	f.listCalls++
	return page, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.singleErr != nil {
		return nil, f.singleErr
	}
	f.singleGone = append(f.singleGone, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	var keys []string
	for _, obj := range in.Delete.Objects {
		keys = append(keys, aws.ToString(obj.Key))
	}
	f.deleted = append(f.deleted, keys)
	if f.deleteOut != nil {
		return f.deleteOut, nil
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func (f *fakeS3) DeleteBucket(ctx context.Context, in *s3.DeleteBucketInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketOutput, error) {
	if f.bucketErr != nil {
		return nil, f.bucketErr
	}
	f.bucketGone = true
	return &s3.DeleteBucketOutput{}, nil
}

func objects(keys ...string) []types.Object {
	result := make([]types.Object, 0, len(keys))
	for _, k := range keys {
		result = append(result, types.Object{Key: aws.String(k)})
	}
	return result
}

func TestEmptyBucketPaginates(t *testing.T) {
	fake := &fakeS3{listPages: []*s3.ListObjectsV2Output{
		{
			Contents:              objects("a", "b"),
			IsTruncated:           aws.Bool(true),
			NextContinuationToken: aws.String("tok"),
		},
		{
			Contents:    objects("c"),
			IsTruncated: aws.Bool(false),
		},
	}}
	store := &S3Store{client: fake}

	require.NoError(t, store.EmptyBucket(context.Background(), "bkt"))
	assert.Equal(t, 2, fake.listCalls)
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, fake.deleted)
}

func TestEmptyBucketAlreadyEmpty(t *testing.T) {
	fake := &fakeS3{listPages: []*s3.ListObjectsV2Output{
		{IsTruncated: aws.Bool(false)},
	}}
	store := &S3Store{client: fake}

	require.NoError(t, store.EmptyBucket(context.Background(), "bkt"))
	assert.Empty(t, fake.deleted)
}

func TestEmptyBucketMissingBucket(t *testing.T) {
	fake := &fakeS3{listErr: &types.NoSuchBucket{}}
	store := &S3Store{client: fake}

	err := store.EmptyBucket(context.Background(), "bkt")
	assert.ErrorIs(t, err, common.ErrBucketNotFound)
}

func TestRemoveBucket(t *testing.T) {
	fake := &fakeS3{}
	store := &S3Store{client: fake}

	require.NoError(t, store.RemoveBucket(context.Background(), "bkt"))
	assert.True(t, fake.bucketGone)
}

func TestDeleteObjectsEmptyBatch(t *testing.T) {
	store := &S3Store{client: &fakeS3{}}
	n, err := store.DeleteObjects(context.Background(), "bkt", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteObjectsOverLimit(t *testing.T) {
	store := &S3Store{client: &fakeS3{}}
	keys := make([]string, MaxDeleteBatch+1)
	_, err := store.DeleteObjects(context.Background(), "bkt", keys)
	assert.ErrorContains(t, err, "exceeds limit")
}

func TestDeleteObjectsPartialFailure(t *testing.T) {
	fake := &fakeS3{deleteOut: &s3.DeleteObjectsOutput{
		Errors: []types.Error{
			{Key: aws.String("b"), Message: aws.String("access denied")},
		},
	}}
	store := &S3Store{client: fake}

	n, err := store.DeleteObjects(context.Background(), "bkt", []string{"a", "b"})
	assert.Equal(t, 1, n)
	assert.ErrorIs(t, err, common.ErrStorageUnavailable)
	assert.ErrorContains(t, err, "access denied")
}

func TestDeleteObjectsTransportFailure(t *testing.T) {
	fake := &fakeS3{deleteErr: errors.New("connection refused")}
	store := &S3Store{client: fake}

	n, err := store.DeleteObjects(context.Background(), "bkt", []string{"a"})
	assert.Zero(t, n)
	assert.ErrorIs(t, err, common.ErrStorageUnavailable)
}

func TestNewS3StoreAppliesOptions(t *testing.T) {
	origLoad := loadDefaultAWSConfig
	origNew := newS3ClientFromConfig
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNew
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, nil
	}

	var captured s3.Options
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		for _, fn := range optFns {
			fn(&captured)
		}
		return nil
	}

	_, err := NewS3Store(context.Background(), S3Options{
		Region:       "us-east-1",
		AccessKey:    "ak",
		SecretKey:    "sk",
		BaseEndpoint: "http://127.0.0.1:9000/",
	})
	require.NoError(t, err)
	assert.True(t, captured.UsePathStyle)
	assert.Equal(t, "http://127.0.0.1:9000/", aws.ToString(captured.BaseEndpoint))
}
