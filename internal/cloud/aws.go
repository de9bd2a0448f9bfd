// Package cloud loads the shared AWS SDK configuration used by the S3 content
// store and the DynamoDB artifact cache.
package cloud

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/dharsanguruparan/ReelDrop/internal/config"
)

// LoadAWS resolves region and credentials. Static keys from the config win
// over the default provider chain.
func LoadAWS(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

// Endpoint returns the configured endpoint override, or nil for the AWS default.
func Endpoint(cfg *config.Config) *string {
	if cfg.AWSEndpoint == "" {
		return nil
	}
	return aws.String(cfg.AWSEndpoint)
}
