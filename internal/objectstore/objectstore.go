// ABOUTME: Fetches vendor exports stored in S3-compatible buckets via minio-go.
// ABOUTME: Mirrors an s3://bucket/prefix into a local directory for the adapters.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Scheme is the URI scheme handled by this package.
const Scheme = "s3://"

// ErrEmptyPrefix is returned when a prefix matches no objects.
var ErrEmptyPrefix = errors.New("no objects under prefix")

// Config holds connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Secure    bool
}

// Location is a parsed s3:// URI.
type Location struct {
	Bucket string
	Prefix string
}

// IsURI reports whether raw is an s3:// URI.
func IsURI(raw string) bool {
	return strings.HasPrefix(strings.ToLower(raw), Scheme)
}

// ParseURI splits s3://bucket/prefix.
func ParseURI(raw string) (Location, error) {
	if !IsURI(raw) {
		return Location{}, fmt.Errorf("not an s3 uri: %q", raw)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("parse s3 uri: %w", err)
	}
	if u.Host == "" {
		return Location{}, fmt.Errorf("s3 uri %q has no bucket", raw)
	}
	return Location{Bucket: u.Host, Prefix: strings.TrimPrefix(u.Path, "/")}, nil
}

// Fetcher downloads objects to local disk.
type Fetcher struct {
	client *minio.Client
	log    *log.Logger
}

// New builds a Fetcher. Endpoint may carry an http(s):// scheme, which then
// decides TLS.
func New(cfg Config, logger *log.Logger) (*Fetcher, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("s3 endpoint is required")
	}
	if logger == nil {
		logger = log.Default()
	}
	endpoint, secure := cfg.Endpoint, cfg.Secure
	if u, err := url.Parse(cfg.Endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		secure = u.Scheme == "https"
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       secure,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &Fetcher{client: client, log: logger.With("component", "objectstore")}, nil
}

// Download mirrors every object under the URI's prefix into dst and returns
// the local path matching the prefix: the file itself when the prefix names
// one object, otherwise the directory.
func (f *Fetcher) Download(ctx context.Context, uri, dst string) (string, error) {
	loc, err := ParseURI(uri)
	if err != nil {
		return "", err
	}
	root, err := filepath.Abs(dst)
	if err != nil {
		return "", fmt.Errorf("resolve download dir: %w", err)
	}

	n := 0
	single := ""
	for obj := range f.client.ListObjects(ctx, loc.Bucket, minio.ListObjectsOptions{
		Prefix:    loc.Prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return "", fmt.Errorf("list %s: %w", uri, obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		target, err := localPath(root, obj.Key)
		if err != nil {
			return "", err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0750); err != nil {
			return "", fmt.Errorf("create %s: %w", filepath.Dir(target), err)
		}
		if err := f.client.FGetObject(ctx, loc.Bucket, obj.Key, target, minio.GetObjectOptions{}); err != nil {
			return "", fmt.Errorf("download %s: %w", obj.Key, err)
		}
		f.log.Debug("downloaded", "bucket", loc.Bucket, "key", obj.Key, "bytes", obj.Size)
		if obj.Key == loc.Prefix {
			single = target
		}
		n++
	}
	if n == 0 {
		return "", fmt.Errorf("%w: %s", ErrEmptyPrefix, uri)
	}
	f.log.Info("fetched export", "uri", uri, "objects", n)

	if single != "" {
		return single, nil
	}
	return filepath.Join(root, filepath.FromSlash(strings.TrimSuffix(loc.Prefix, "/"))), nil
}

func localPath(root, key string) (string, error) {
	target := filepath.Join(root, filepath.FromSlash(key))
	if !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("object key %q escapes download dir", key)
	}
	return target, nil
}
