package attachments

import (
	"context"
	"fmt"

	"innomatch/api/internal/config"
)

// Open selects a Signer from cfg.BlobDriver (memory, minio or s3).
func Open(ctx context.Context, cfg config.Config) (Signer, error) {
	switch Driver(cfg.BlobDriver) {
	case "", DriverMemory:
		return NewMemorySigner(cfg.BlobBucket, cfg.BlobPublicURL), nil
	case DriverMinio:
		return NewMinioSigner(MinioConfig{
			Endpoint:  cfg.BlobEndpoint,
			AccessKey: cfg.BlobAccessKey,
			SecretKey: cfg.BlobSecretKey,
			Bucket:    cfg.BlobBucket,
			Region:    cfg.BlobRegion,
			UseSSL:    cfg.BlobUseSSL,
		})
	case DriverS3:
		return NewS3Signer(ctx, S3Config{
			Region:    cfg.BlobRegion,
			Bucket:    cfg.BlobBucket,
			Endpoint:  cfg.BlobEndpoint,
			AccessKey: cfg.BlobAccessKey,
			SecretKey: cfg.BlobSecretKey,
		})
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.BlobDriver)
	}
}
