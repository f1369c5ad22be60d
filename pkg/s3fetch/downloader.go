package s3fetch

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DownloaderConfig configures ranged downloads of large index objects.
type DownloaderConfig struct {
	// Concurrency is the number of parts fetched at once per object.
	// Default: NumCPU clamped to [4, 16].
	Concurrency int

	// PartSize is the size of each ranged GET. Default: 16 MiB.
	PartSize int64
}

// DefaultDownloaderConfig returns defaults sized to the current machine.
func DefaultDownloaderConfig() DownloaderConfig {
	concurrency := min(max(runtime.NumCPU(), 4), 16)
	return DownloaderConfig{
		Concurrency: concurrency,
		PartSize:    16 * 1024 * 1024,
	}
}

// DownloadResult describes a completed download.
type DownloadResult struct {
	BytesDownloaded int64
	Duration        time.Duration
}

// Downloader wraps the S3 transfer manager.
type Downloader struct {
	manager *manager.Downloader
	config  DownloaderConfig
}

// NewDownloader creates a Downloader from an S3 client.
func NewDownloader(s3Client *s3.Client, cfg DownloaderConfig) *Downloader {
	def := DefaultDownloaderConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.PartSize <= 0 {
		cfg.PartSize = def.PartSize
	}

	mgr := manager.NewDownloader(s3Client, func(d *manager.Downloader) {
		d.Concurrency = cfg.Concurrency
		d.PartSize = cfg.PartSize
		d.BufferProvider = manager.NewPooledBufferedWriterReadFromProvider(int(cfg.PartSize))
	})

	return &Downloader{manager: mgr, config: cfg}
}

// DownloadToFile downloads one object to destPath. A partial file is
// removed on failure.
func (d *Downloader) DownloadToFile(ctx context.Context, bucket, key, destPath string) (*DownloadResult, error) {
	start := time.Now()

	file, err := os.Create(destPath)
	if err != nil {
		return nil, fmt.Errorf("create destination file: %w", err)
	}
	defer file.Close()

	n, err := d.manager.Download(ctx, file, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		os.Remove(destPath)
		return nil, fmt.Errorf("download %s: %w", FormatURI(bucket, key), err)
	}

	return &DownloadResult{BytesDownloaded: n, Duration: time.Since(start)}, nil
}

// Config returns the downloader configuration.
func (d *Downloader) Config() DownloaderConfig {
	return d.config
}
