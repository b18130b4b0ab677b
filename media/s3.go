package media

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// indirection points for tests
var (
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(client *s3.Client, ctx context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		return client.PutObject(ctx, in)
	}
)

// S3Config configures the S3 (or S3-compatible, e.g. MinIO) uploader.
type S3Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	// BaseEndpoint overrides the AWS endpoint for S3-compatible hosts.
	BaseEndpoint string
	// PublicBaseURL is the prefix returned URLs are built from. When
	// empty the standard virtual-hosted AWS URL is used.
	PublicBaseURL string
	// KeyPrefix namespaces object keys, e.g. "avatars".
	KeyPrefix string
}

// S3Uploader stores media on an S3 bucket and returns public URLs.
type S3Uploader struct {
	cfg    S3Config
	client *s3.Client
}

var _ Uploader = (*S3Uploader)(nil)

// NewS3Uploader builds an uploader with static credentials.
func NewS3Uploader(ctx context.Context, cfg S3Config) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("media: bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("media: loading aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Uploader{cfg: cfg, client: client}, nil
}

// Upload stores the file under a collision-free key and returns its
// public URL.
func (u *S3Uploader) Upload(ctx context.Context, file File) (string, error) {
	if file.Content == nil {
		return "", fmt.Errorf("media: file content is required")
	}

	key := u.objectKey(file.Name)

	in := &s3.PutObjectInput{
		Bucket: aws.String(u.cfg.Bucket),
		Key:    aws.String(key),
		Body:   file.Content,
	}
	if file.ContentType != "" {
		in.ContentType = aws.String(file.ContentType)
	}

	if _, err := putObject(u.client, ctx, in); err != nil {
		return "", fmt.Errorf("media: uploading %q: %w", file.Name, err)
	}

	return u.publicURL(key), nil
}

func (u *S3Uploader) objectKey(name string) string {
	ext := path.Ext(name)
	return path.Join(u.cfg.KeyPrefix, uuid.NewString()+ext)
}

func (u *S3Uploader) publicURL(key string) string {
	if u.cfg.PublicBaseURL != "" {
		return strings.TrimRight(u.cfg.PublicBaseURL, "/") + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.cfg.Bucket, u.cfg.Region, key)
}
