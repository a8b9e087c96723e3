// Package storage defines the interfaces shared by storage adapters. The
// export layer talks to object stores (GCS, local file system) only through
// these interfaces.
package storage

import (
	"context"
	"io"
)

// StorageConfig holds the configuration of a single named storage backend.
type StorageConfig struct {
	Type            string `yaml:"type"`             // "gcs" or "local".
	BucketName      string `yaml:"bucket_name"`      // Default bucket for operations.
	CredentialsFile string `yaml:"credentials_file"` // Service account key path for GCS.
	BaseDir         string `yaml:"base_dir"`         // Root directory for the local backend.
}

// Executor defines the generic object store operations.
type Executor interface {
	// Upload writes data to the given bucket and object name.
	Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error
	// Download returns a reader for the given object. The caller closes it.
	Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error)
	// ListObjects invokes fn for each object under the prefix.
	ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error
	// DeleteObject removes the object. Deleting a missing object is not an error.
	DeleteObject(ctx context.Context, bucket, objectName string) error
}

// Connection is one established storage backend.
type Connection interface {
	Executor

	Close() error
	Type() string
	Name() string
}

// Provider manages the lifecycle of connections for one backend type.
type Provider interface {
	// GetConnection returns the connection with the given configured name,
	// establishing it on first use.
	GetConnection(name string) (Connection, error)
	// CloseAll closes every connection held by this provider.
	CloseAll() error
	// Type returns the backend type this provider serves.
	Type() string
}
