package blobstore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const defaultS3MaxRetries = 10

// S3Options configures the S3 client shared by all s3:// filestores.
type S3Options struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	MaxRetries      int
}

// NewS3Client builds an S3 client. An endpoint switches to path-style
// addressing for MinIO and Localstack. Without static keys the default
// credential chain applies.
func NewS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	if opts.Region == "" {
		return nil, fmt.Errorf("s3 region is required")
	}

	var configOptions []func(*awsConfig.LoadOptions) error
	configOptions = append(configOptions, awsConfig.WithRegion(opts.Region))

	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	maxRetries := opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = defaultS3MaxRetries
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	cfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}
