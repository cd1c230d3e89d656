package objstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Options configures an S3 client.
type S3Options struct {
	Bucket string
	Region string
	// Endpoint overrides the AWS endpoint (MinIO, LocalStack). Enables
	// path-style addressing.
	Endpoint string
	// Anonymous sends unsigned requests, as public datasets require.
	Anonymous bool
	// PartSize and PartConcurrency tune the range-download manager.
	PartSize        int64
	PartConcurrency int
}

// S3 implements Store over one bucket.
type S3 struct {
	bucket     string
	client     *s3.Client
	downloader *manager.Downloader
}

// NewS3 builds a client from the default AWS configuration chain.
func NewS3(ctx context.Context, opts S3Options) (*S3, error) {
	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.Anonymous {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(aws.AnonymousCredentials{}))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3(opts, client), nil
}

func newS3(opts S3Options, client *s3.Client) *S3 {
	if opts.PartSize <= 0 {
		opts.PartSize = 16 << 20
	}
	if opts.PartConcurrency <= 0 {
		opts.PartConcurrency = 4
	}
	dl := manager.NewDownloader(client, func(d *manager.Downloader) {
		d.PartSize = opts.PartSize
		d.Concurrency = opts.PartConcurrency
	})
	return &S3{bucket: opts.Bucket, client: client, downloader: dl}
}

// Bucket returns the bucket name.
func (c *S3) Bucket() string {
	return c.bucket
}

// List pages through ListObjectsV2 under prefix.
func (c *S3) List(ctx context.Context, prefix string) ([]Object, error) {
	var objects []Object
	p := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", c.bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			objects = append(objects, Object{
				Key:  aws.ToString(obj.Key),
				Size: aws.ToInt64(obj.Size),
			})
		}
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// Download fetches key with parallel range requests into a temp file next to
// dest and renames it into place.
func (c *S3) Download(ctx context.Context, key, dest string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("create download dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	n, err := c.downloader.Download(ctx, tmp, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("download s3://%s/%s: %w", c.bucket, key, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("rename %s: %w", dest, err)
	}
	return n, nil
}
