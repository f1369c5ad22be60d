package s3fetch

import (
	"errors"
	"fmt"
	"strings"
)

// Scheme is the URI prefix for S3 object paths.
const Scheme = "s3://"

// ErrInvalidURI is returned for paths that are not s3://bucket[/key].
var ErrInvalidURI = errors.New("invalid S3 URI")

// IsURI reports whether path names an S3 object or prefix.
func IsURI(path string) bool {
	return strings.HasPrefix(path, Scheme)
}

// ParseURI splits s3://bucket/key into bucket and key. The key may be
// empty or end in "/", in which case it names a prefix.
func ParseURI(uri string) (bucket, key string, err error) {
	if !IsURI(uri) {
		return "", "", fmt.Errorf("%w: %q must start with %s", ErrInvalidURI, uri, Scheme)
	}

	bucket, key, _ = strings.Cut(strings.TrimPrefix(uri, Scheme), "/")
	if bucket == "" {
		return "", "", fmt.Errorf("%w: %q has no bucket", ErrInvalidURI, uri)
	}
	return bucket, key, nil
}

// FormatURI is the inverse of ParseURI.
func FormatURI(bucket, key string) string {
	return Scheme + bucket + "/" + key
}

// IsPrefix reports whether key names a prefix rather than one object.
func IsPrefix(key string) bool {
	return key == "" || strings.HasSuffix(key, "/")
}
