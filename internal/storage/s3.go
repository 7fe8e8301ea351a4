// Package storage syncs mart snapshot files to and from S3. Sync is always
// an explicit operation; nothing here runs inside the pipeline.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/mosaicquant/mosaic/internal/config"
)

// Client pushes and pulls mart snapshot files against one S3 bucket prefix.
type Client struct {
	s3         *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	bucket     string
	prefix     string
	log        zerolog.Logger
}

// New creates a new snapshot sync client. Credentials come from the default
// AWS chain (env, shared config, instance role).
func New(ctx context.Context, cfg config.StorageConfig, log zerolog.Logger) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg)
	return &Client{
		s3:         s3Client,
		uploader:   manager.NewUploader(s3Client),
		downloader: manager.NewDownloader(s3Client),
		bucket:     cfg.Bucket,
		prefix:     strings.TrimSuffix(cfg.MartsPrefix, "/"),
		log:        log.With().Str("component", "snapshot_sync").Logger(),
	}, nil
}

// Push uploads every regular file in localDir to the bucket prefix. Files
// keep their base names; existing objects are overwritten.
func (c *Client) Push(ctx context.Context, localDir string) (int, error) {
	entries, err := os.ReadDir(localDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read snapshot directory: %w", err)
	}

	uploaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(localDir, entry.Name())
		if err := c.uploadFile(ctx, path, c.key(entry.Name())); err != nil {
			return uploaded, fmt.Errorf("failed to upload %s: %w", entry.Name(), err)
		}
		uploaded++
	}

	c.log.Info().Int("files", uploaded).Str("bucket", c.bucket).Msg("Snapshot push completed")
	return uploaded, nil
}

// Pull downloads every object under the bucket prefix into localDir.
func (c *Client) Pull(ctx context.Context, localDir string) (int, error) {
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	downloaded := 0
	paginator := s3.NewListObjectsV2Paginator(c.s3, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(c.prefix + "/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return downloaded, fmt.Errorf("failed to list snapshot objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			name := filepath.Base(key)
			if name == "" || strings.HasSuffix(key, "/") {
				continue
			}
			if err := c.downloadFile(ctx, key, filepath.Join(localDir, name)); err != nil {
				return downloaded, fmt.Errorf("failed to download %s: %w", key, err)
			}
			downloaded++
		}
	}

	c.log.Info().Int("files", downloaded).Str("bucket", c.bucket).Msg("Snapshot pull completed")
	return downloaded, nil
}

func (c *Client) key(name string) string {
	if c.prefix == "" {
		return name
	}
	return c.prefix + "/" + name
}

func (c *Client) uploadFile(ctx context.Context, path, key string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	return err
}

func (c *Client) downloadFile(ctx context.Context, key, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = c.downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	return err
}
