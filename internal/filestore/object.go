package filestore

import (
	"path"
	"strings"
	"time"
)

// ObjectInfo describes a single stored object.
type ObjectInfo struct {
	// Key is the full object path within the bucket (e.g. "scans/2024/abc.json").
	Key string

	// Size is the byte size of the object. -1 if unknown.
	Size int64

	ContentType string

	// ETag is the object's entity tag as returned by the backend.
	ETag string

	LastModified time.Time
}

// ObjectKey joins prefix and name into an object key, dropping empty and
// leading separators so keys never start with "/".
func ObjectKey(prefix, name string) string {
	key := path.Join(prefix, name)
	return strings.TrimLeft(key, "/")
}
