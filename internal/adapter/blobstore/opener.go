package blobstore

import (
	"context"
	"fmt"
	"strings"

	"gocloud.dev/blob"
)

// Opener resolves a bucket name to an open Bucket. Each call returns a fresh
// handle that the caller must Close.
type Opener interface {
	Open(ctx context.Context, name string) (*Bucket, error)
}

// URLOpener opens buckets through the gocloud URL mux. Names without a scheme
// become "s3://<name>?<Query>"; full URLs are used as given. The driver for the
// scheme must be registered by the binary (blank import of s3blob, gcsblob, ...).
type URLOpener struct {
	Query string
}

// URL returns the bucket URL for name.
func (o URLOpener) URL(name string) string {
	if strings.Contains(name, "://") {
		return name
	}
	u := "s3://" + name
	if o.Query != "" {
		u += "?" + o.Query
	}
	return u
}

func (o URLOpener) Open(ctx context.Context, name string) (*Bucket, error) {
	u := o.URL(name)
	b, err := blob.OpenBucket(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", u, err)
	}
	return &Bucket{name: name, bucket: b, owned: true}, nil
}

// StaticOpener serves pre-opened buckets by name. Handles it returns do not
// close the underlying bucket.
type StaticOpener map[string]*blob.Bucket

func (s StaticOpener) Open(_ context.Context, name string) (*Bucket, error) {
	b, ok := s[name]
	if !ok {
		return nil, fmt.Errorf("open bucket %s: not configured", name)
	}
	return NewBucket(name, b), nil
}
