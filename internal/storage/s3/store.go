// Package s3 keeps raw uploads and table snapshots in an S3-compatible
// bucket through minio-go.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/duckmesh/tabletalk/internal/storage"
)

type Config struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Endpoint) == "":
		return errors.New("object store endpoint is required")
	case strings.TrimSpace(c.Bucket) == "":
		return errors.New("object store bucket is required")
	}
	return nil
}

// bucketAPI is the subset of *minio.Client the store needs. OpenObject
// replaces GetObject so a missing key fails on open rather than on the
// first read.
type bucketAPI interface {
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucket, object string, opts minio.RemoveObjectOptions) error
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	OpenObject(ctx context.Context, bucket, object string) (io.ReadCloser, error)
}

// Store implements storage.ObjectStore. All keys live under prefix.
type Store struct {
	api    bucketAPI
	bucket string
	prefix string
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	host, secure, err := splitEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	mc, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client for %s: %w", host, err)
	}

	store, err := newStore(minioAPI{Client: mc}, cfg.Bucket, cfg.Prefix)
	if err != nil {
		return nil, err
	}
	if cfg.AutoCreateBucket {
		if err := store.ensureBucket(ctx, strings.TrimSpace(cfg.Region)); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func newStore(api bucketAPI, bucket, prefix string) (*Store, error) {
	if api == nil {
		return nil, errors.New("bucket client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("object store bucket is required")
	}
	return &Store{api: api, bucket: bucket, prefix: keyPrefix(prefix)}, nil
}

func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	object, err := s.objectKey(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	contentType := opts.ContentType
	if contentType == "" {
		contentType = storage.ContentTypeBinary
	}
	upload, err := s.api.PutObject(ctx, s.bucket, object, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return storage.ObjectInfo{}, s.fail("put", object, err)
	}
	return storage.ObjectInfo{
		Key:          key,
		Size:         upload.Size,
		ETag:         upload.ETag,
		LastModified: upload.LastModified,
	}, nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	object, err := s.objectKey(key)
	if err != nil {
		return nil, err
	}
	reader, err := s.api.OpenObject(ctx, s.bucket, object)
	if err != nil {
		return nil, s.fail("get", object, err)
	}
	return reader, nil
}

func (s *Store) Stat(ctx context.Context, key string) (storage.ObjectInfo, error) {
	object, err := s.objectKey(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	info, err := s.api.StatObject(ctx, s.bucket, object, minio.StatObjectOptions{})
	if err != nil {
		return storage.ObjectInfo{}, s.fail("stat", object, err)
	}
	return storage.ObjectInfo{
		Key:          key,
		Size:         info.Size,
		ETag:         info.ETag,
		LastModified: info.LastModified,
	}, nil
}

// Delete treats an already missing object as removed.
func (s *Store) Delete(ctx context.Context, key string) error {
	object, err := s.objectKey(key)
	if err != nil {
		return err
	}
	err = s.api.RemoveObject(ctx, s.bucket, object, minio.RemoveObjectOptions{})
	if err == nil || isNotFound(err) {
		return nil
	}
	return s.fail("delete", object, err)
}

// HealthCheck reports whether the snapshot bucket is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	ok, err := s.api.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("object store bucket %q: %w", s.bucket, err)
	}
	if !ok {
		return fmt.Errorf("object store bucket %q does not exist", s.bucket)
	}
	return nil
}

func (s *Store) ensureBucket(ctx context.Context, region string) error {
	ok, err := s.api.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("object store bucket %q: %w", s.bucket, err)
	}
	if ok {
		return nil
	}
	if err := s.api.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("create object store bucket %q: %w", s.bucket, err)
	}
	return nil
}

func (s *Store) fail(op, object string, err error) error {
	if isNotFound(err) {
		return storage.ErrObjectNotFound
	}
	return fmt.Errorf("%s s3://%s/%s: %w", op, s.bucket, object, err)
}

// objectKey maps a storage key to its bucket object name. Keys may not
// climb out of the prefix.
func (s *Store) objectKey(key string) (string, error) {
	trimmed := strings.Trim(strings.TrimSpace(key), "/")
	if trimmed == "" {
		return "", errors.New("object key is required")
	}
	for _, segment := range strings.Split(trimmed, "/") {
		if segment == ".." {
			return "", fmt.Errorf("object key %q escapes the store prefix", key)
		}
	}
	object := path.Clean(trimmed)
	if s.prefix != "" {
		object = s.prefix + "/" + object
	}
	return object, nil
}

func keyPrefix(raw string) string {
	cleaned := path.Clean("/" + strings.TrimSpace(raw))
	return strings.TrimPrefix(cleaned, "/")
}

// splitEndpoint accepts either host[:port] or a full URL; an https scheme
// forces TLS regardless of useSSL.
func splitEndpoint(raw string, useSSL bool) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		if raw == "" {
			return "", false, errors.New("object store endpoint is required")
		}
		return raw, useSSL, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("object store endpoint %q: %w", raw, err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("object store endpoint %q has no host", raw)
	}
	switch u.Scheme {
	case "https":
		return u.Host, true, nil
	case "http":
		return u.Host, useSSL, nil
	default:
		return "", false, fmt.Errorf("object store endpoint %q: unsupported scheme %q", raw, u.Scheme)
	}
}

func isNotFound(err error) bool {
	if errors.Is(err, storage.ErrObjectNotFound) {
		return true
	}
	var resp minio.ErrorResponse
	if !errors.As(err, &resp) {
		return false
	}
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return true
	}
	return false
}

type minioAPI struct {
	*minio.Client
}

func (m minioAPI) OpenObject(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	obj, err := m.GetObject(ctx, bucket, object, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, err
	}
	return obj, nil
}
