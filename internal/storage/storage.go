// Package storage uploads generated images to a durable asset store and
// returns their public URLs.
//
// Two backends are provided: ObjectStore for S3-compatible services (MinIO,
// AWS S3, R2) and FileStore for local development, where files are served by
// the HTTP router under /assets.
package storage

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/tbourn/go-genart-backend/internal/config"
)

// Object describes a staged file to upload.
type Object struct {
	// Folder is the logical folder, e.g. "generated".
	Folder string
	// Path is the local file holding the bytes.
	Path string
	// Ext is the file extension without dot, e.g. "png".
	Ext string
	// ContentType is the MIME type sent to the store.
	ContentType string
}

// AssetStore uploads an object and returns its public URL.
type AssetStore interface {
	Upload(ctx context.Context, obj Object) (string, error)
}

// ErrInvalidObject is returned for objects without a source path.
var ErrInvalidObject = errors.New("storage: object path is required")

// New returns the backend selected by cfg.Driver.
func New(cfg config.StorageConfig) (AssetStore, error) {
	switch cfg.Driver {
	case "minio":
		return NewObjectStore(cfg)
	case "filesystem", "":
		return NewFileStore(cfg.LocalPath, cfg.PublicBaseURL)
	default:
		return nil, errors.New("storage: unknown driver " + cfg.Driver)
	}
}

// objectKey builds "<folder>/YYYY/MM/DD/<ksuid>.<ext>".
func objectKey(folder, ext string, now time.Time) string {
	ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	if ext == "" {
		ext = "png"
	}
	name := ksuid.New().String() + "." + ext
	return path.Join(strings.Trim(folder, "/"), now.UTC().Format("2006/01/02"), name)
}
