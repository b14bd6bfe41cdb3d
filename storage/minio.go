package storage

import (
	"context"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/M-Abd-ElBaset/hls-audio-service/config"
	"github.com/M-Abd-ElBaset/hls-audio-service/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var minioClient *minio.Client

// InitMinio connects to the MinIO server and makes sure the bucket exists.
func InitMinio(cfg *config.Config) error {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return fmt.Errorf("failed to create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", cfg.MinioBucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{
			Region: cfg.MinioRegion,
		}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", cfg.MinioBucket, err)
		}
		logger.Info("created minio bucket", logger.String("bucket", cfg.MinioBucket))
	}

	minioClient = client
	logger.Info("minio client initialized",
		logger.String("endpoint", cfg.MinioEndpoint),
		logger.String("bucket", cfg.MinioBucket))
	return nil
}

// GetMinioClient returns the shared client instance.
func GetMinioClient() *minio.Client {
	return minioClient
}

// ObjectPublisher mirrors local HLS output directories into the bucket so
// segments can be served from object storage as well as from local disk.
type ObjectPublisher struct {
	client *minio.Client
	bucket string
}

func NewObjectPublisher(client *minio.Client, bucket string) *ObjectPublisher {
	return &ObjectPublisher{client: client, bucket: bucket}
}

// PublishDir uploads every regular file under localDir to the bucket,
// keyed as prefix + the file's path relative to localDir.
func (p *ObjectPublisher) PublishDir(ctx context.Context, localDir, prefix string) error {
	var count int
	err := filepath.WalkDir(localDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(localDir, path)
		if err != nil {
			return err
		}
		key := prefix + "/" + filepath.ToSlash(rel)

		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}

		_, err = p.client.PutObject(ctx, p.bucket, key, f, info.Size(), minio.PutObjectOptions{
			ContentType: contentTypeFor(path),
		})
		if err != nil {
			return fmt.Errorf("failed to upload %s: %w", key, err)
		}
		count++
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info("published directory to minio",
		logger.String("prefix", prefix),
		logger.Int("objects", count))
	return nil
}

// RemovePrefix deletes every object under prefix. Used when a track is
// removed and its stream directory torn down.
func (p *ObjectPublisher) RemovePrefix(ctx context.Context, prefix string) error {
	objectsCh := p.client.ListObjects(ctx, p.bucket, minio.ListObjectsOptions{
		Prefix:    prefix + "/",
		Recursive: true,
	})

	errorsCh := p.client.RemoveObjects(ctx, p.bucket, objectsCh, minio.RemoveObjectsOptions{})
	for e := range errorsCh {
		if e.Err != nil {
			return fmt.Errorf("failed to remove %s: %w", e.ObjectName, e.Err)
		}
	}
	return nil
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/MP2T"
	case ".json":
		return "application/json"
	}
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
