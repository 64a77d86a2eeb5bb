// Package storage keeps expense attachments in an object-storage bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/ukydev/fleet-maintenance/internal/config"
)

// ErrObjectNotFound is returned by Delete implementations that distinguish a
// missing object. Callers treat it as success.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore writes and removes objects by key.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
}

// ErrInvalidKey is returned when a key segment would escape its prefix.
var ErrInvalidKey = errors.New("invalid object key segment")

// ObjectKey returns "<organisationId>/<resource>/<uuid><ext>".
func ObjectKey(organisationID, resource, ext string) (string, error) {
	for _, segment := range []string{organisationID, resource} {
		if segment == "" || segment == "." || segment == ".." || strings.ContainsAny(segment, `/\`) {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, segment)
		}
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return path.Join(organisationID, resource, uuid.NewString()+strings.ToLower(ext)), nil
}

// New builds the store selected by cfg.Provider.
func New(ctx context.Context, cfg config.StorageConfig) (ObjectStore, error) {
	switch cfg.Provider {
	case "gcs":
		return NewGCSStore(ctx, cfg)
	case "s3":
		return NewS3Store(ctx, cfg)
	case "memory", "":
		return NewMemoryStore(cfg.PublicBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Provider)
	}
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
