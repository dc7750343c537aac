package framestore

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"path"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config configures an S3Sink. Works with AWS S3 and MinIO.
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string // optional; set for MinIO or another S3-compatible store
	Prefix   string // optional key prefix inside the bucket

	// Static credentials. When empty the default AWS credential chain is used.
	AccessKeyID     string
	SecretAccessKey string

	PathStyle bool
	Format    Format
}

// S3Sink uploads frames to a bucket.
type S3Sink struct {
	client *s3.Client
	bucket string
	prefix string
	format Format
}

// NewS3Sink creates an S3 sink.
//
// Parameters:
//   - ctx: Context for loading the AWS configuration
//   - cfg: Bucket is required; Region defaults to us-east-1
//   - optFns: Extra client options (custom HTTP client, retryer, ...)
//
// Returns:
//   - *S3Sink: Ready-to-use sink
//   - error: If the bucket is missing or the AWS config cannot be loaded
func NewS3Sink(ctx context.Context, cfg S3Config, optFns ...func(*s3.Options)) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		for _, fn := range optFns {
			fn(o)
		}
	})

	format := cfg.Format
	if format == "" {
		format = FormatTIFF
	}
	return &S3Sink{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix, format: format}, nil
}

// Format returns the encoding used by Put.
func (s *S3Sink) Format() Format {
	return s.format
}

// Put encodes img and uploads it to {prefix}/{key}.
func (s *S3Sink) Put(ctx context.Context, key string, img image.Image) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if s.prefix != "" {
		k = path.Join(s.prefix, k)
	}

	var buf bytes.Buffer
	if err := Encode(&buf, img, s.format); err != nil {
		return "", fmt.Errorf("encoding frame: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(k),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentLength: aws.Int64(int64(buf.Len())),
		ContentType:   aws.String(s.format.ContentType()),
	})
	if err != nil {
		return "", fmt.Errorf("uploading frame %s: %w", k, err)
	}
	return "s3://" + s.bucket + "/" + k, nil
}
