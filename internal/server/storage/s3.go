package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/dcarleson/delivd/internal/common"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// S3Options holds the settings needed to reach the S3-compatible backend.
type S3Options struct {
	Region       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
}

// S3Store implements ObjectStore against an S3-compatible service.
type S3Store struct {
	client s3API
}

// s3API is the subset of the S3 client used here; a seam for tests.
type s3API interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	DeleteBucket(ctx context.Context, in *s3.DeleteBucketInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketOutput, error)
}

// NewS3Store builds the S3 client and wraps it as an ObjectStore.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(opts.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKey,
			opts.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("s3 config error: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if opts.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(opts.BaseEndpoint)
		}
		o.UsePathStyle = true
	})

	return &S3Store{client: client}, nil
}

// classify maps SDK failures onto the store's error taxonomy.
func classify(err error) error {
	var noBucket *types.NoSuchBucket
	if errors.As(err, &noBucket) {
		return fmt.Errorf("%w: %s", common.ErrBucketNotFound, err)
	}
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return fmt.Errorf("%w: %s", common.ErrKeyNotFound, err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket":
			return fmt.Errorf("%w: %s", common.ErrBucketNotFound, err)
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%w: %s", common.ErrKeyNotFound, err)
		}
	}
	return fmt.Errorf("%w: %s", common.ErrStorageUnavailable, err)
}

// EmptyBucket pages through the bucket and bulk-deletes everything in it.
func (s *S3Store) EmptyBucket(ctx context.Context, bucket string) error {
	var token *string
	for {
		page, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(bucket),
			ContinuationToken: token,
		})
		if err != nil {
			return classify(err)
		}

		if len(page.Contents) > 0 {
			keys := make([]string, 0, len(page.Contents))
			for _, obj := range page.Contents {
				keys = append(keys, aws.ToString(obj.Key))
			}
			if _, err := s.DeleteObjects(ctx, bucket, keys); err != nil {
				return err
			}
		}

		if !aws.ToBool(page.IsTruncated) {
			return nil
		}
		token = page.NextContinuationToken
	}
}

// RemoveBucket deletes the (empty) bucket.
func (s *S3Store) RemoveBucket(ctx context.Context, bucket string) error {
	if _, err := s.client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return classify(err)
	}
	return nil
}

// DeleteObject removes a single object from the bucket.
func (s *S3Store) DeleteObject(ctx context.Context, bucket, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

// DeleteObjects removes one batch of objects. The batch must respect
// MaxDeleteBatch; per-key failures inside an otherwise successful call are
// reported as a storage error with zero removals counted for them.
func (s *S3Store) DeleteObjects(ctx context.Context, bucket string, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	if len(keys) > MaxDeleteBatch {
		return 0, fmt.Errorf("batch of %d exceeds limit %d", len(keys), MaxDeleteBatch)
	}

	objects := make([]types.ObjectIdentifier, 0, len(keys))
	for _, k := range keys {
		objects = append(objects, types.ObjectIdentifier{Key: aws.String(k)})
	}

	out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(bucket),
		Delete: &types.Delete{
			Objects: objects,
			Quiet:   aws.Bool(true),
		},
	})
	if err != nil {
		return 0, classify(err)
	}

	if len(out.Errors) > 0 {
		first := out.Errors[0]
		return len(keys) - len(out.Errors), fmt.Errorf("%w: %d objects not deleted (first: %s %s)",
			common.ErrStorageUnavailable, len(out.Errors),
			aws.ToString(first.Key), aws.ToString(first.Message))
	}
	return len(keys), nil
}
