package publish

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/maxkimambo/xenopipe/internal/logger"
)

// Uploader is the part of manager.Uploader the publisher needs
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type S3Publisher struct {
	bucket   string
	prefix   string
	uploader Uploader
}

func NewS3Publisher(bucket, prefix string, opts S3Options) (*S3Publisher, error) {
	client, err := newS3Client(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize s3 client: %w", err)
	}
	return NewS3PublisherWithUploader(bucket, prefix, manager.NewUploader(client)), nil
}

func NewS3PublisherWithUploader(bucket, prefix string, uploader Uploader) *S3Publisher {
	return &S3Publisher{bucket: bucket, prefix: prefix, uploader: uploader}
}

func (s *S3Publisher) String() string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, s.prefix)
}

func (s *S3Publisher) Publish(ctx context.Context, localPath, key string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer file.Close()

	objectKey := path.Join(s.prefix, key)
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
		Body:   file,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s to s3://%s/%s: %w", localPath, s.bucket, objectKey, err)
	}

	logger.Op.WithFields(map[string]interface{}{
		"bucket": s.bucket,
		"key":    objectKey,
	}).Info("object uploaded")
	return fmt.Sprintf("s3://%s/%s", s.bucket, objectKey), nil
}

func newS3Client(opts S3Options) (*s3.Client, error) {
	loadOpts := []func(*aws_config.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, aws_config.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, aws_config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}

	awsCfg, err := aws_config.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			// MinIO and other S3 compatible stores
			o.UsePathStyle = true
		}
	}), nil
}
