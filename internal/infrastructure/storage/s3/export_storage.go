package s3

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config holds S3 export settings.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string // optional override for S3-compatible storage
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	Prefix          string // key prefix, defaults to "exports"
}

// ExportStorage archives daily collection exports in an S3 bucket under
// <prefix>/YYYY/MM/DD/snapshots.json. Implements port.ExportStorage.
type ExportStorage struct {
	client *s3.Client
	bucket string
	prefix string
}

func NewExportStorage(ctx context.Context, cfg Config) (*ExportStorage, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if strings.TrimSpace(cfg.Region) == "" {
		return nil, fmt.Errorf("s3 region is required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "exports"
	}

	optFns := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("create aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(options *s3.Options) {
		if cfg.Endpoint != "" {
			options.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		options.UsePathStyle = cfg.UsePathStyle
	})

	return &ExportStorage{
		client: client,
		bucket: strings.TrimSpace(cfg.Bucket),
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// StoreDailyExport uploads one export document and returns its object key.
func (s *ExportStorage) StoreDailyExport(ctx context.Context, date time.Time, payload []byte) (string, error) {
	key := fmt.Sprintf("%s/%s/snapshots.json", s.prefix, date.UTC().Format("2006/01/02"))

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("put export object: %w", err)
	}
	return key, nil
}
