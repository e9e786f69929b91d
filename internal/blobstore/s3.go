package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	s3.ListObjectsV2APIClient
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store keeps one context's blobs under <prefix><context id>_ctx_store/
// in a bucket. The bucket listing is the index, so Rebuild only checks
// that the prefix can be listed.
type S3Store struct {
	client S3API
	bucket string
	prefix string
	logger *slog.Logger
}

// NewS3Store returns the store for contextID inside bucket/prefix.
func NewS3Store(client S3API, bucket, prefix string, contextID int, logger *slog.Logger) (*S3Store, error) {
	if client == nil {
		return nil, fmt.Errorf("s3 client is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	prefix = strings.TrimPrefix(prefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: prefix + contextStoreDir(contextID) + "/",
		logger: logger.With("context_id", contextID),
	}, nil
}

// List returns every blob id below the context prefix.
func (s *S3Store) List(ctx context.Context) ([]string, error) {
	ids, _, err := s.scan(ctx)
	return ids, err
}

// Save uploads r as a new blob, tagging it with the sniffed content type.
func (s *S3Store) Save(ctx context.Context, r io.Reader) (string, error) {
	if r == nil {
		return "", fmt.Errorf("reader is required")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	id := newBlobID()
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.prefix + id),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(mimetype.Detect(data).String()),
	})
	if err != nil {
		return "", fmt.Errorf("put blob %s: %w", id, err)
	}
	return id, nil
}

// Open streams the blob content.
func (s *S3Store) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	key, err := s.key(id)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s.wrapNotFound(id, err)
	}
	return out.Body, nil
}

// Delete removes a blob. S3 treats missing keys as deleted.
func (s *S3Store) Delete(ctx context.Context, id string) error {
	key, err := s.key(id)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete blob %s: %w", id, err)
	}
	return nil
}

// Rebuild re-lists the prefix.
func (s *S3Store) Rebuild(ctx context.Context) error {
	ids, used, err := s.scan(ctx)
	if err != nil {
		return err
	}
	s.logger.Debug("blob store index rebuilt", "entries", len(ids), "used", humanize.IBytes(uint64(used)))
	return nil
}

// Size returns the object's content length.
func (s *S3Store) Size(ctx context.Context, id string) (int64, error) {
	out, err := s.head(ctx, id)
	if err != nil {
		return 0, err
	}
	return aws.ToInt64(out.ContentLength), nil
}

// MediaType returns the object's content type.
func (s *S3Store) MediaType(ctx context.Context, id string) (string, error) {
	out, err := s.head(ctx, id)
	if err != nil {
		return "", err
	}
	if ct := aws.ToString(out.ContentType); ct != "" {
		return ct, nil
	}
	return "application/octet-stream", nil
}

// RecalculateUsage sums the sizes of all objects under the prefix.
func (s *S3Store) RecalculateUsage(ctx context.Context) (int64, error) {
	_, used, err := s.scan(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Info("usage recalculated", "used", humanize.IBytes(uint64(used)))
	return used, nil
}

func (s *S3Store) scan(ctx context.Context) ([]string, int64, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	ids := []string{}
	var used int64
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, 0, fmt.Errorf("list %s/%s: %w", s.bucket, s.prefix, err)
		}
		for _, obj := range page.Contents {
			id := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			if id == "" || strings.HasSuffix(id, "/") {
				continue
			}
			ids = append(ids, id)
			used += aws.ToInt64(obj.Size)
		}
	}
	sort.Strings(ids)
	return ids, used, nil
}

func (s *S3Store) head(ctx context.Context, id string) (*s3.HeadObjectOutput, error) {
	key, err := s.key(id)
	if err != nil {
		return nil, err
	}
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s.wrapNotFound(id, err)
	}
	return out, nil
}

func (s *S3Store) key(id string) (string, error) {
	clean, err := cleanBlobID(id)
	if err != nil {
		return "", err
	}
	return s.prefix + clean, nil
}

func (s *S3Store) wrapNotFound(id string, err error) error {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return fmt.Errorf("blob %s: %w", id, ErrNotFound)
	}
	return fmt.Errorf("blob %s: %w", id, err)
}
