package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	appConfig "github.com/mfg-ops/ordrefab/config"
	"github.com/mfg-ops/ordrefab/lifecycle"
)

// ObjectPutter is the part of the S3 client the archive needs
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3SweepArchive writes sweep reports to an S3 bucket
type S3SweepArchive struct {
	client ObjectPutter
	bucket string
}

// NewS3SweepArchive builds an archive from the application configuration
func NewS3SweepArchive(ctx context.Context, cfg *appConfig.Config) (*S3SweepArchive, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.AWSRegion),
	}
	if cfg.AWSAccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AWSAccessKeyID,
			cfg.AWSSecretAccessKey,
			"",
		)))
	}

	// Load AWS configuration with explicit options
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		// S3-compatible stores (minio, localstack) need path-style addressing
		if cfg.AWSS3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.AWSS3Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3SweepArchiveWithClient(client, cfg.AWSS3Bucket), nil
}

// NewS3SweepArchiveWithClient builds an archive on an existing client
func NewS3SweepArchiveWithClient(client ObjectPutter, bucket string) *S3SweepArchive {
	return &S3SweepArchive{client: client, bucket: bucket}
}

// SweepKey is the object key of a report: sweeps/YYYY/MM/DD/<RFC3339>.json
func SweepKey(report lifecycle.SweepReport) string {
	at := report.StartedAt.UTC()
	return fmt.Sprintf("sweeps/%s/%s.json", at.Format("2006/01/02"), at.Format(time.RFC3339))
}

// PublishSweep implements lifecycle.ReportSink
func (a *S3SweepArchive) PublishSweep(ctx context.Context, report lifecycle.SweepReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode sweep report: %w", err)
	}

	key := SweepKey(report)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload sweep report %s: %w", key, err)
	}
	return nil
}
