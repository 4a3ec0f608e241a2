package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"castsync/internal/services"
)

// S3Options configures an S3-compatible bucket.
type S3Options struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	// Transport overrides the HTTP transport; tests point it at httptest servers.
	Transport http.RoundTripper
}

// S3 stores objects in an S3-compatible bucket.
type S3 struct {
	client *minio.Client
	bucket string
}

// NewS3 builds a client for the configured bucket. No request is made until
// the first operation.
func NewS3(_ context.Context, opts S3Options) (*S3, error) {
	if strings.TrimSpace(opts.Endpoint) == "" || strings.TrimSpace(opts.Bucket) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "open", "s3 endpoint and bucket are required", nil)
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure:    opts.UseSSL,
		Region:    opts.Region,
		Transport: opts.Transport,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "open", "create s3 client", err)
	}
	return &S3{client: client, bucket: opts.Bucket}, nil
}

func isS3NotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return true
	}
	return false
}

func classifyS3(err error) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.Code == "SlowDown":
		return services.ErrRateLimited
	case resp.StatusCode == http.StatusForbidden || resp.Code == "AccessDenied" || resp.Code == "NoSuchBucket":
		return services.ErrConfiguration
	default:
		return services.ErrTransient
	}
}

func (s *S3) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isS3NotFound(err) {
		return false, nil
	}
	return false, services.Wrap(classifyS3(err), "storage", "exists", key, err)
}

func (s *S3) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, services.Wrap(classifyS3(err), "storage", "get", key, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		if isS3NotFound(err) {
			return nil, notFound(key)
		}
		return nil, services.Wrap(classifyS3(err), "storage", "get", key, err)
	}
	return data, nil
}

func (s *S3) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return services.Wrap(classifyS3(err), "storage", "put", key, err)
	}
	return nil
}

func (s *S3) PutFile(ctx context.Context, key, localPath, contentType string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if _, err := s.client.FPutObject(ctx, s.bucket, key, localPath, minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return services.Wrap(classifyS3(err), "storage", "put_file", key, err)
	}
	return nil
}

func (s *S3) ListKeysBySuffix(ctx context.Context, prefix, suffix string) ([]string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, services.Wrap(classifyS3(obj.Err), "storage", "list", fmt.Sprintf("prefix %q", prefix), obj.Err)
		}
		if matchKey(obj.Key, prefix, suffix) {
			keys = append(keys, obj.Key)
		}
	}
	return sortedKeys(keys), nil
}

func (s *S3) Close() error { return nil }
