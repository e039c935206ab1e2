package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"
)

// ObjectStoreConfig captures configuration for the object storage-backed store.
type ObjectStoreConfig struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	Prefix    string
	Owner     string
	UseSSL    bool
	PathStyle bool
}

// ObjectStore persists each credential slot as one object in an S3-compatible bucket
// under <prefix>/<owner>/<slot>.
type ObjectStore struct {
	client *minio.Client
	cfg    ObjectStoreConfig
}

// NewObjectStore initializes an object storage backed store.
func NewObjectStore(cfg ObjectStoreConfig) (*ObjectStore, error) {
	cfg, err := normalizeObjectConfig(cfg)
	if err != nil {
		return nil, err
	}

	options := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	}
	if cfg.PathStyle {
		options.BucketLookup = minio.BucketLookupPath
	}

	client, err := minio.New(cfg.Endpoint, options)
	if err != nil {
		return nil, fmt.Errorf("object store: create client: %w", err)
	}
	return &ObjectStore{client: client, cfg: cfg}, nil
}

func normalizeObjectConfig(cfg ObjectStoreConfig) (ObjectStoreConfig, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.Bucket = strings.TrimSpace(cfg.Bucket)
	cfg.AccessKey = strings.TrimSpace(cfg.AccessKey)
	cfg.SecretKey = strings.TrimSpace(cfg.SecretKey)
	cfg.Prefix = strings.Trim(strings.TrimSpace(cfg.Prefix), "/")
	cfg.Owner = ownerOrDefault(cfg.Owner)

	switch {
	case cfg.Endpoint == "":
		return cfg, fmt.Errorf("object store: endpoint is required")
	case cfg.Bucket == "":
		return cfg, fmt.Errorf("object store: bucket is required")
	case cfg.AccessKey == "":
		return cfg, fmt.Errorf("object store: access key is required")
	case cfg.SecretKey == "":
		return cfg, fmt.Errorf("object store: secret key is required")
	}
	return cfg, nil
}

// EnsureBucket creates the bucket when it does not exist.
func (s *ObjectStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("object store: check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err = s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
		return fmt.Errorf("object store: create bucket: %w", err)
	}
	return nil
}

// Get returns the value stored under key.
func (s *ObjectStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}
	object, err := s.client.GetObject(ctx, s.cfg.Bucket, s.objectKey(key), minio.GetObjectOptions{})
	if err != nil {
		if isObjectNotFound(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("object store: fetch %s: %w", key, err)
	}
	defer func() { _ = object.Close() }()

	data, err := io.ReadAll(object)
	if err != nil {
		if isObjectNotFound(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("object store: read %s: %w", key, err)
	}
	return string(data), true, nil
}

// Set uploads value under key.
func (s *ObjectStore) Set(ctx context.Context, key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	data := []byte(value)
	_, err := s.client.PutObject(ctx, s.cfg.Bucket, s.objectKey(key), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "text/plain; charset=utf-8",
	})
	if err != nil {
		return fmt.Errorf("object store: put %s: %w", key, err)
	}
	log.Debugf("object store: saved %s", key)
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *ObjectStore) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	err := s.client.RemoveObject(ctx, s.cfg.Bucket, s.objectKey(key), minio.RemoveObjectOptions{})
	if err != nil && !isObjectNotFound(err) {
		return fmt.Errorf("object store: delete %s: %w", key, err)
	}
	return nil
}

func (s *ObjectStore) objectKey(key string) string {
	if s.cfg.Prefix == "" {
		return path.Join(s.cfg.Owner, key)
	}
	return path.Join(s.cfg.Prefix, s.cfg.Owner, key)
}

func isObjectNotFound(err error) bool {
	if err == nil {
		return false
	}
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode == http.StatusNotFound {
		return true
	}
	switch resp.Code {
	case "NoSuchKey", "NotFound":
		return true
	}
	return false
}
