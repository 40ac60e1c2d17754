// Remote table import and export over S3, HTTP and local paths.

package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	taberrors "github.com/maruel/tabdb/internal/errors"
)

// S3Options overrides ambient AWS configuration for remote table I/O.
// Zero values fall back to the default credential chain.
type S3Options struct {
	AccessKey string
	SecretKey string
	Region    string
	Endpoint  string // custom S3-compatible endpoint
}

type urlScheme string

const (
	schemeFile  urlScheme = "file"
	schemeS3    urlScheme = "s3"
	schemeHTTP  urlScheme = "http"
	schemeHTTPS urlScheme = "https"
	schemeLocal urlScheme = "local" // no scheme, local path
)

func detectScheme(location string) urlScheme {
	lower := strings.ToLower(location)
	switch {
	case strings.HasPrefix(lower, "s3://"):
		return schemeS3
	case strings.HasPrefix(lower, "https://"):
		return schemeHTTPS
	case strings.HasPrefix(lower, "http://"):
		return schemeHTTP
	case strings.HasPrefix(lower, "file://"):
		return schemeFile
	default:
		return schemeLocal
	}
}

// ImportFrom replaces a table's contents with data fetched from
// location, which may be a local path, file://, http(s):// or s3:// URL.
func (s *Store) ImportFrom(ctx context.Context, name, location string, opts *S3Options) error {
	r, err := openRemoteReader(ctx, location, opts)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()
	return s.ImportTable(ctx, name, r)
}

// ExportTo writes a table's raw contents to location, which may be a
// local path, file:// or s3:// URL. HTTP targets are not writable.
func (s *Store) ExportTo(ctx context.Context, name, location string, opts *S3Options) error {
	w, err := openRemoteWriter(ctx, location, opts)
	if err != nil {
		return err
	}
	if err := s.ExportTable(name, w); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return taberrors.IO("finish export", err)
	}
	return nil
}

func openRemoteReader(ctx context.Context, location string, opts *S3Options) (io.ReadCloser, error) {
	switch detectScheme(location) {
	case schemeLocal, schemeFile:
		f, err := os.Open(strings.TrimPrefix(location, "file://")) //nolint:gosec // G304: location is operator input
		if err != nil {
			return nil, taberrors.IO("open "+location, err)
		}
		return f, nil
	case schemeHTTP, schemeHTTPS:
		return openHTTPReader(ctx, location)
	case schemeS3:
		return openS3Reader(ctx, location, opts)
	default:
		return nil, taberrors.BadValue(fmt.Sprintf("unsupported URL scheme: %s", location))
	}
}

func openRemoteWriter(ctx context.Context, location string, opts *S3Options) (io.WriteCloser, error) {
	switch detectScheme(location) {
	case schemeLocal, schemeFile:
		f, err := os.Create(strings.TrimPrefix(location, "file://")) //nolint:gosec // G304: location is operator input
		if err != nil {
			return nil, taberrors.IO("create "+location, err)
		}
		return f, nil
	case schemeHTTP, schemeHTTPS:
		return nil, taberrors.BadValue("HTTP/HTTPS does not support writing")
	case schemeS3:
		return openS3Writer(ctx, location, opts)
	default:
		return nil, taberrors.BadValue(fmt.Sprintf("unsupported URL scheme: %s", location))
	}
}

func openHTTPReader(ctx context.Context, url string) (io.ReadCloser, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, taberrors.IO("build request", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		return nil, taberrors.IO("fetch "+url, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		cancel()
		return nil, taberrors.IO("fetch "+url, fmt.Errorf("status %d", resp.StatusCode))
	}
	return &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}, nil
}

// cancelReadCloser releases the request context when the body is closed.
type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// parseS3URL parses s3://bucket/key into bucket and key parts.
func parseS3URL(url string) (bucket, key string, err error) {
	path := strings.TrimPrefix(url, "s3://")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", taberrors.BadValue(fmt.Sprintf("invalid S3 URL: %s", url))
	}
	return parts[0], parts[1], nil
}

func s3Client(ctx context.Context, opts *S3Options) (*s3.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts != nil && opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts != nil && opts.AccessKey != "" && opts.SecretKey != "" {
		creds := credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(creds))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if opts != nil && opts.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true // for S3-compatible services
		})
	}
	return s3.NewFromConfig(awsCfg, clientOpts...), nil
}

func openS3Reader(ctx context.Context, url string, opts *S3Options) (io.ReadCloser, error) {
	bucket, key, err := parseS3URL(url)
	if err != nil {
		return nil, err
	}
	client, err := s3Client(ctx, opts)
	if err != nil {
		return nil, err
	}
	resp, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, taberrors.IO("get S3 object", err)
	}
	return resp.Body, nil
}

// s3Writer buffers writes and uploads the object on Close.
type s3Writer struct {
	ctx    context.Context
	client *s3.Client
	bucket string
	key    string
	buf    bytes.Buffer
	closed bool
}

func (w *s3Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("writer is closed")
	}
	return w.buf.Write(p)
}

func (w *s3Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	_, err := w.client.PutObject(w.ctx, &s3.PutObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(w.key),
		Body:   bytes.NewReader(w.buf.Bytes()),
	})
	if err != nil {
		return taberrors.IO("upload to S3", err)
	}
	return nil
}

func openS3Writer(ctx context.Context, url string, opts *S3Options) (io.WriteCloser, error) {
	bucket, key, err := parseS3URL(url)
	if err != nil {
		return nil, err
	}
	client, err := s3Client(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &s3Writer{ctx: ctx, client: client, bucket: bucket, key: key}, nil
}
