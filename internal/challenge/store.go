package challenge

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectStore publishes challenge artifacts and returns public retrieval
// locators for them.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
}

// S3Config covers any S3-compatible store; AccountID builds the Cloudflare R2
// endpoint when no explicit endpoint is given.
type S3Config struct {
	AccountID    string
	AccessKey    string
	AccessSecret string
	Bucket       string
	Endpoint     string
	CDNBaseURL   string
}

// S3Store publishes artifacts to an S3/R2 bucket. Locators are built from the
// CDN base so clients never hit the store endpoint directly.
type S3Store struct {
	client  *s3.Client
	bucket  string
	cdnBase string
}

func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("artifact store bucket required")
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" && cfg.AccountID != "" {
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey, cfg.AccessSecret, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load store config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	cdnBase := strings.TrimRight(strings.TrimSpace(cfg.CDNBaseURL), "/")
	if cdnBase == "" {
		cdnBase = endpoint
	}
	return &S3Store{client: client, bucket: cfg.Bucket, cdnBase: cdnBase}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return s.cdnBase + "/" + key, nil
}
