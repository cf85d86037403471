// Package storage provides the narrow slice of shared object storage the
// pipeline uses: put, get and prefix listing over named areas. Objects are
// write-once; nothing in the pipeline deletes or mutates an existing object.
package storage

import "context"

// ObjectStore is implemented by the S3 and local-directory backends.
type ObjectStore interface {
	Put(ctx context.Context, area, key string, body []byte) error
	Get(ctx context.Context, area, key string) ([]byte, error)
	List(ctx context.Context, area, prefix string) ([]string, error)
}
