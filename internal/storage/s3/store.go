// Package s3 provides an ObjectStore backed by any S3-compatible service.
// Blobs are stored content-addressed under blobs/{cid}; each key gets a
// small pointer object under keys/{key} whose body is the current CID and
// whose user metadata carries the object's attributes.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/mvail/threadledger/internal/storage"
)

const (
	blobPrefix = "blobs/"
	keyPrefix  = "keys/"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Logger    *slog.Logger
}

type Store struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

func New(cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	return &Store{
		client: client,
		bucket: cfg.Bucket,
		logger: cfg.Logger,
	}, nil
}

func (s *Store) Put(ctx context.Context, key string, data []byte, meta storage.Metadata) (string, error) {
	contentID, _, err := storage.ComputeContentID(data)
	if err != nil {
		return "", fmt.Errorf("compute content id: %w", err)
	}

	_, err = s.client.PutObject(ctx, s.bucket, blobPrefix+contentID,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return "", fmt.Errorf("upload blob %s: %w", contentID, err)
	}

	_, err = s.client.PutObject(ctx, s.bucket, keyPrefix+key,
		strings.NewReader(contentID), int64(len(contentID)),
		minio.PutObjectOptions{
			ContentType:  "text/plain",
			UserMetadata: meta,
		})
	if err != nil {
		return "", fmt.Errorf("write key pointer %s: %w", key, err)
	}

	s.logger.Debug("put object", "key", key, "cid", contentID, "size", len(data))
	return contentID, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	contentID, err := s.resolve(ctx, key)
	if err != nil {
		return nil, err
	}

	obj, err := s.client.GetObject(ctx, s.bucket, blobPrefix+contentID, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get blob %s: %w", contentID, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("read blob %s: %w", contentID, err)
	}
	return data, nil
}

func (s *Store) Head(ctx context.Context, key string) (storage.Metadata, error) {
	info, err := s.client.StatObject(ctx, s.bucket, keyPrefix+key, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("stat key %s: %w", key, err)
	}

	meta := make(storage.Metadata, len(info.UserMetadata))
	for k, v := range info.UserMetadata {
		meta[strings.ToLower(k)] = v
	}
	return meta, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	contentID, err := s.resolve(ctx, key)
	if err != nil {
		return err
	}

	if err := s.client.RemoveObject(ctx, s.bucket, keyPrefix+key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove key pointer %s: %w", key, err)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, blobPrefix+contentID, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove blob %s: %w", contentID, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    keyPrefix + prefix,
		Recursive: true,
	}) {
		if info.Err != nil {
			return nil, fmt.Errorf("list objects: %w", info.Err)
		}
		keys = append(keys, strings.TrimPrefix(info.Key, keyPrefix))
	}
	return keys, nil
}

// Unpin removes a blob by content identifier. The key pointer, if any,
// is left in place; a dangling pointer reads as not found.
func (s *Store) Unpin(ctx context.Context, contentID string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, blobPrefix+contentID, minio.RemoveObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return nil
		}
		return fmt.Errorf("remove blob %s: %w", contentID, err)
	}
	return nil
}

func (s *Store) resolve(ctx context.Context, key string) (string, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, keyPrefix+key, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("get key pointer %s: %w", key, err)
	}
	defer obj.Close()

	contentID, err := io.ReadAll(obj)
	if err != nil {
		if isNoSuchKey(err) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("read key pointer %s: %w", key, err)
	}
	return string(contentID), nil
}

func isNoSuchKey(err error) bool {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code == "NoSuchKey"
	}
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

var _ storage.ObjectStore = (*Store)(nil)
