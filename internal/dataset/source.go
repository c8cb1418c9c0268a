package dataset

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/kjstillabower/climate-anomaly-service/internal/models"
)

// Source supplies the raw CSV bytes of a dataset snapshot.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	// Name identifies the source in logs and status output.
	Name() string
}

// FileSource reads a dataset from the local filesystem.
type FileSource struct {
	Path string
}

// Open implements Source.
func (s FileSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open dataset file: %w", err)
	}
	return f, nil
}

// Name implements Source.
func (s FileSource) Name() string {
	return s.Path
}

// ReaderSource wraps an in-memory body, e.g. an uploaded file.
type ReaderSource struct {
	Label string
	Body  io.Reader
}

// Open implements Source.
func (s ReaderSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return io.NopCloser(s.Body), nil
}

// Name implements Source.
func (s ReaderSource) Name() string {
	return s.Label
}

// ObjectStoreConfig holds S3-compatible endpoint settings.
type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
}

// ObjectSource reads a dataset object from S3-compatible storage.
type ObjectSource struct {
	client *minio.Client
	bucket string
	key    string
}

// NewObjectSource builds a source for bucket/key. Endpoint may carry an http(s) scheme;
// TLS is used unless the scheme is plain http.
func NewObjectSource(cfg ObjectStoreConfig, bucket, key string) (*ObjectSource, error) {
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("object source: bucket and key are required")
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	secure := !strings.HasPrefix(strings.ToLower(endpoint), "http://")
	endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")
	endpoint = strings.TrimRight(endpoint, "/")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       secure,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("init object store client: %w", err)
	}
	return &ObjectSource{client: client, bucket: bucket, key: key}, nil
}

// Open implements Source. The object is stat'ed first so a missing key fails here
// rather than on the first read.
func (s *ObjectSource) Open(ctx context.Context) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get dataset object: %w", err)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, fmt.Errorf("stat dataset object: %w", err)
	}
	return obj, nil
}

// Name implements Source.
func (s *ObjectSource) Name() string {
	return "s3://" + s.bucket + "/" + s.key
}

// NewSource resolves a dataset location: "s3://bucket/key" selects object storage,
// anything else is a local file path.
func NewSource(location string, store ObjectStoreConfig) (Source, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, fmt.Errorf("dataset location is empty")
	}
	if rest, ok := strings.CutPrefix(location, "s3://"); ok {
		bucket, key, found := strings.Cut(rest, "/")
		if !found {
			return nil, fmt.Errorf("dataset location %q: expected s3://bucket/key", location)
		}
		return NewObjectSource(store, bucket, key)
	}
	return FileSource{Path: location}, nil
}

// Load opens src and parses its CSV content.
func Load(ctx context.Context, src Source) ([]models.Reading, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return ParseCSV(rc)
}
