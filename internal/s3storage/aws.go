package s3storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/dharsanguruparan/ReelDrop/internal/cloud"
	"github.com/dharsanguruparan/ReelDrop/internal/config"
	"github.com/dharsanguruparan/ReelDrop/internal/fault"
)

// AWSStorage is the content store on AWS S3 or any endpoint speaking its API.
type AWSStorage struct {
	client     *s3.Client
	presign    *s3.PresignClient
	bucket     string
	region     string
	publicBase string
	urlTTL     time.Duration
}

// NewAWS builds an S3 client from the shared AWS configuration.
func NewAWS(ctx context.Context, cfg *config.Config) (*AWSStorage, error) {
	awsCfg, err := cloud.LoadAWS(ctx, cfg)
	if err != nil {
		return nil, err
	}
	endpoint := cloud.Endpoint(cfg)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != nil {
			o.BaseEndpoint = endpoint
			o.UsePathStyle = true
		}
	})
	return &AWSStorage{
		client:     client,
		presign:    s3.NewPresignClient(client),
		bucket:     cfg.Bucket,
		region:     cfg.S3Region,
		publicBase: cfg.PublicBaseURL,
		urlTTL:     cfg.Retention,
	}, nil
}

// EnsureBucket creates the artifact bucket when it is missing.
func (s *AWSStorage) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}
	input := &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}
	if s.region != "" && s.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		}
	}
	if _, err := s.client.CreateBucket(ctx, input); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

func (s *AWSStorage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          r,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return classifyAWS("put object", err)
	}
	return nil
}

func (s *AWSStorage) URL(ctx context.Context, key string) (string, error) {
	if s.publicBase != "" {
		return publicURL(s.publicBase, key), nil
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.urlTTL))
	if err != nil {
		return "", classifyAWS("presign object", err)
	}
	return req.URL, nil
}

func (s *AWSStorage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return classifyAWS("delete object", err)
	}
	return nil
}

func (s *AWSStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, classifyAWS("head object", err)
}

func classifyAWS(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fault.New(kindForCode(apiErr.ErrorCode()), op, err)
	}
	return fault.New(fault.StoreUnavailable, op, err)
}
