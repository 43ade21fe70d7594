package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config configures an S3 compatible object store.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// S3Sink stores images in a bucket. Output paths become object keys under
// Prefix. It doubles as the second level render cache of the HTTP service.
type S3Sink struct {
	Client *minio.Client
	Bucket string
	Prefix string
}

// NewS3Sink connects to the object store. The bucket must already exist.
func NewS3Sink(cfg S3Config) (*S3Sink, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("s3 endpoint and bucket are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	return &S3Sink{Client: client, Bucket: cfg.Bucket, Prefix: cfg.Prefix}, nil
}

// Key maps a file system path or cache key to an object key.
func (s *S3Sink) Key(p string) string {
	p = strings.TrimLeft(filepath.ToSlash(p), "/")
	if s.Prefix == "" {
		return p
	}
	return path.Join(strings.Trim(s.Prefix, "/"), p)
}

// Put implements Sink. PutObject replaces the object atomically.
func (s *S3Sink) Put(ctx context.Context, p string, data []byte, contentType string) error {
	key := s.Key(p)
	_, err := s.Client.PutObject(ctx, s.Bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return &WriteError{Path: key, Op: "put", Err: err}
	}
	return nil
}

// Get fetches an object. It returns nil, nil when the key does not exist.
func (s *S3Sink) Get(ctx context.Context, p string) (*Object, error) {
	key := s.Key(p)
	obj, err := s.Client.GetObject(ctx, s.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	info, err := obj.Stat()
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, nil
		}
		return nil, err
	}
	body, err := io.ReadAll(obj)
	if err != nil {
		return nil, err
	}
	return &Object{Body: body, ContentType: info.ContentType}, nil
}
