// Package s3fetch reads CDX indexes and summary files stored in S3.
package s3fetch

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Options selects the endpoint. Zero values use the AWS defaults.
type Options struct {
	Region string
	// Endpoint overrides the service URL (MinIO, Ceph, localstack).
	Endpoint string
	// PathStyle addresses buckets as endpoint/bucket instead of bucket.endpoint.
	PathStyle bool
}

// Client provides S3 operations for fetching index files.
type Client struct {
	s3Client *s3.Client
}

// NewClient creates a client from the default AWS credential chain.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewClientWithConfig(cfg, opts), nil
}

// NewClientWithConfig creates a client from an existing AWS config.
func NewClientWithConfig(cfg aws.Config, opts Options) *Client {
	return &Client{
		s3Client: s3.NewFromConfig(cfg, func(o *s3.Options) {
			if opts.Endpoint != "" {
				o.BaseEndpoint = aws.String(opts.Endpoint)
			}
			o.UsePathStyle = opts.PathStyle
		}),
	}
}

// StreamObject returns a reader for an S3 object.
func (c *Client) StreamObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	resp, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", FormatURI(bucket, key), err)
	}
	return resp.Body, nil
}

// ListKeys returns every key under prefix in lexical order.
func (c *Client) ListKeys(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string
	p := s3.NewListObjectsV2Paginator(c.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", FormatURI(bucket, prefix), err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if IsPrefix(key) {
				continue
			}
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Expand turns an s3:// path into object URIs. A prefix path lists its
// objects; an object path is returned as is.
func (c *Client) Expand(ctx context.Context, uri string) ([]string, error) {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	if !IsPrefix(key) {
		return []string{uri}, nil
	}
	keys, err := c.ListKeys(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	uris := make([]string, len(keys))
	for i, k := range keys {
		uris[i] = FormatURI(bucket, k)
	}
	return uris, nil
}

// Downloader returns a ranged-GET downloader sharing this client.
func (c *Client) Downloader(cfg DownloaderConfig) *Downloader {
	return NewDownloader(c.s3Client, cfg)
}
