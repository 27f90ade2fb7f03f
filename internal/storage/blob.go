package storage

import (
	"context"
	"fmt"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"
)

// BlobStore writes to any gocloud.dev bucket (file://, s3://, gs://) and serves
// objects from publicBaseURL.
type BlobStore struct {
	bucket        *blob.Bucket
	publicBaseURL string
}

// OpenBlobStore opens the bucket at bucketURL.
func OpenBlobStore(ctx context.Context, bucketURL, publicBaseURL string) (*BlobStore, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket %s: %w", bucketURL, err)
	}
	return &BlobStore{
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}, nil
}

func (b *BlobStore) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	opts := &blob.WriterOptions{ContentType: contentType}
	if err := b.bucket.WriteAll(ctx, key, data, opts); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", key, err)
	}
	return b.publicBaseURL + "/" + key, nil
}

func (b *BlobStore) Close() error {
	return b.bucket.Close()
}
