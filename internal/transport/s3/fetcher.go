// Package s3 downloads source documents from S3-compatible object storage.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

// Scheme is the URI scheme served by the Fetcher.
const Scheme = "s3"

// DefaultMaxObjectBytes bounds a single downloaded document.
const DefaultMaxObjectBytes = 512 << 20

const defaultTimeout = 2 * time.Minute

var (
	// ErrInvalidURI signals a URI that is not s3://bucket/key.
	ErrInvalidURI = errors.New("invalid s3 uri")
	// ErrObjectNotFound signals a missing bucket or key.
	ErrObjectNotFound = errors.New("s3 object not found")
	// ErrObjectTooLarge signals an object above the size limit.
	ErrObjectTooLarge = errors.New("s3 object too large")
)

// objectGetter is the consumer interface over *s3.Client (ISP).
type objectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Config holds the object store settings. Empty credentials fall back to the
// default AWS chain (env, shared config, instance role).
type Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	MaxObjectBytes  int64
	Timeout         time.Duration
	Logger          *zap.Logger
}

// Fetcher implements parser.Fetcher for s3:// URIs.
type Fetcher struct {
	client   objectGetter
	maxBytes int64
	timeout  time.Duration
	logger   *zap.Logger
}

// NewFetcher loads the AWS configuration and creates an S3 client.
func NewFetcher(ctx context.Context, cfg *Config) (*Fetcher, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" || cfg.SecretAccessKey != "" {
		if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
			return nil, errors.New("s3: access key id and secret access key must be set together")
		}
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return newFetcher(client, cfg), nil
}

func newFetcher(client objectGetter, cfg *Config) *Fetcher {
	f := &Fetcher{
		client:   client,
		maxBytes: cfg.MaxObjectBytes,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
	}
	if f.maxBytes <= 0 {
		f.maxBytes = DefaultMaxObjectBytes
	}
	if f.timeout <= 0 {
		f.timeout = defaultTimeout
	}
	if f.logger == nil {
		f.logger = zap.NewNop()
	}
	return f
}

// ParseURI splits s3://bucket/key. The key keeps any inner slashes.
func ParseURI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, Scheme+"://")
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidURI, uri)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidURI, uri)
	}
	return bucket, key, nil
}

// Fetch downloads the object addressed by uri.
func (f *Fetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		var noBucket *types.NoSuchBucket
		if errors.As(err, &noKey) || errors.As(err, &noBucket) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, uri)
		}
		return nil, fmt.Errorf("s3 get %s: %w", uri, err)
	}
	defer func() { _ = out.Body.Close() }()

	if out.ContentLength != nil && *out.ContentLength > f.maxBytes {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrObjectTooLarge, uri, *out.ContentLength)
	}

	data, err := io.ReadAll(io.LimitReader(out.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", uri, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrObjectTooLarge, uri, f.maxBytes)
	}

	f.logger.Debug("Fetched object",
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.Int("bytes", len(data)),
		zap.Duration("duration", time.Since(start)),
	)
	return data, nil
}
