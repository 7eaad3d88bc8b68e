package artifact

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/hyperjump/statsearch/internal/config"
)

// Open returns the Store selected by cfg.Artifacts.Backend. The local backend
// is rooted at cfg.Storage.ArtifactDir.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	a := cfg.Artifacts
	switch a.Backend {
	case config.BackendLocal, "":
		return NewLocalStore(cfg.Storage.ArtifactDir), nil
	case config.BackendMinIO:
		client, err := NewMinIOClient(MinIOOptions{
			Endpoint:  a.Endpoint,
			AccessKey: a.AccessKey,
			SecretKey: a.SecretKey,
			Region:    a.Region,
			UseSSL:    a.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		return NewMinIOStore(client, a.Bucket, a.Prefix), nil
	case config.BackendS3:
		client, err := newS3Client(ctx, a)
		if err != nil {
			return nil, err
		}
		return NewS3Store(client, a.Bucket, a.Prefix), nil
	default:
		return nil, fmt.Errorf("unknown artifact backend: %s (supported: local, minio, s3)", a.Backend)
	}
}

func newS3Client(ctx context.Context, a config.ArtifactConfig) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(a.Region)}
	if a.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(a.AccessKey, a.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if a.Endpoint != "" {
			o.BaseEndpoint = aws.String(a.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}
