package filestore

import (
	"time"

	"github.com/koustreak/piiscan/internal/errs"
)

// Provider identifies the file storage backend.
type Provider string

const (
	ProviderMinIO Provider = "minio"
)

// DefaultPresignTTL is how long a shared report link stays valid.
const DefaultPresignTTL = 24 * time.Hour

// Config holds all settings needed to connect to a report bucket.
type Config struct {
	// Provider is the storage backend (e.g. ProviderMinIO).
	Provider Provider

	// Endpoint is the host:port of the storage server.
	// Example: "localhost:9000" for local MinIO, "s3.amazonaws.com" for S3.
	Endpoint string

	AccessKey string
	SecretKey string

	// UseSSL controls whether TLS is used for the connection.
	UseSSL bool

	// Region is used by region-aware backends (e.g. AWS S3).
	// Leave empty for MinIO.
	Region string

	// Bucket receives uploaded reports. Created on first upload if missing.
	Bucket string

	// Prefix is prepended to every report key.
	Prefix string

	// PresignTTL bounds the lifetime of shared report links.
	PresignTTL time.Duration
}

// DefaultConfig returns a sensible local-dev config for MinIO.
func DefaultConfig(endpoint, accessKey, secretKey string) *Config {
	return &Config{
		Provider:   ProviderMinIO,
		Endpoint:   endpoint,
		AccessKey:  accessKey,
		SecretKey:  secretKey,
		Bucket:     "piiscan-reports",
		Prefix:     "scans",
		PresignTTL: DefaultPresignTTL,
	}
}

// Validate checks the config before a client is created.
func (c *Config) Validate() error {
	if c == nil {
		return errs.New(errs.ErrKindInvalidInput, "file store config is required")
	}
	if c.Provider != "" && c.Provider != ProviderMinIO {
		return errs.Newf(errs.ErrKindUnsupported, "unsupported file store provider %q", c.Provider)
	}
	if c.Endpoint == "" {
		return errs.New(errs.ErrKindInvalidInput, "file store endpoint is required")
	}
	if c.Bucket == "" {
		return errs.New(errs.ErrKindInvalidInput, "file store bucket is required")
	}
	if c.PresignTTL < 0 || c.PresignTTL > 7*24*time.Hour {
		// S3 presigned URLs cannot outlive seven days.
		return errs.Newf(errs.ErrKindInvalidInput, "presign ttl %s out of range", c.PresignTTL)
	}
	return nil
}

// TTL returns PresignTTL or DefaultPresignTTL when unset.
func (c *Config) TTL() time.Duration {
	if c.PresignTTL > 0 {
		return c.PresignTTL
	}
	return DefaultPresignTTL
}
