package backup

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

type S3Config struct {
	Endpoint        string // empty => AWS default resolution
	Region          string
	Bucket          string
	Key             string // object key of the latest snapshot
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

type putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Mirror copies each saved state snapshot to an S3-compatible bucket (MinIO, R2, AWS).
// It writes the latest snapshot plus a timestamped history object.
type S3Mirror struct {
	client putter
	bucket string
	key    string
	now    func() time.Time
	lg     zerolog.Logger
}

func NewS3Mirror(ctx context.Context, cfg S3Config, lg zerolog.Logger) (*S3Mirror, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 mirror: missing bucket")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return newS3Mirror(client, cfg.Bucket, cfg.Key, lg), nil
}

func newS3Mirror(client putter, bucket, key string, lg zerolog.Logger) *S3Mirror {
	if key == "" {
		key = "seatwatch/class_requests.json"
	}
	return &S3Mirror{
		client: client,
		bucket: bucket,
		key:    key,
		now:    time.Now,
		lg:     lg.With().Str("component", "s3_mirror").Logger(),
	}
}

func (m *S3Mirror) Put(ctx context.Context, data []byte) error {
	history := fmt.Sprintf("%s.%s", m.key, m.now().UTC().Format("20060102T150405Z"))
	for _, key := range []string{m.key, history} {
		_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(m.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("application/json"),
		})
		if err != nil {
			return fmt.Errorf("failed to put %s: %w", key, err)
		}
	}
	m.lg.Debug().Str("bucket", m.bucket).Str("key", m.key).Int("bytes", len(data)).Msg("state snapshot mirrored")
	return nil
}
