package assets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Fetcher downloads one asset URI to a local file and returns its content
// hash, so the caller can compare against the previously-installed hash
// before treating the asset as changed (spec.md §4.3).
type Fetcher interface {
	Fetch(ctx context.Context, uri string, destDir string) (localPath string, contentHash string, err error)
}

// HTTPFetcher downloads http(s):// asset URIs with a bounded per-file
// timeout and a small retry budget, grounded on the same retrying-client
// shape as the teacher's sentinel HTTP client.
type HTTPFetcher struct {
	Client  *http.Client
	Timeout time.Duration
	Retries int
}

// NewHTTPFetcher builds an HTTPFetcher with spec.md §5's 30s default timeout.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		Client:  &http.Client{},
		Timeout: 30 * time.Second,
		Retries: 2,
	}
}

// Fetch implements Fetcher for http(s) URIs.
func (f *HTTPFetcher) Fetch(ctx context.Context, uri string, destDir string) (string, string, error) {
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := f.Client
	if client == nil {
		client = &http.Client{}
	}

	attempts := f.Retries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			return "", "", ctx.Err()
		}
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		localPath, hash, err := f.fetchOnce(reqCtx, client, uri, destDir)
		cancel()
		if err == nil {
			return localPath, hash, nil
		}
		lastErr = err
		if i < attempts-1 {
			time.Sleep(time.Duration(i+1) * 200 * time.Millisecond)
		}
	}
	return "", "", fmt.Errorf("http fetch %s failed after %d attempts: %w", uri, attempts, lastErr)
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, client *http.Client, uri, destDir string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return "", "", fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	destPath := filepath.Join(destDir, localFileName(uri))
	out, err := os.Create(destPath)
	if err != nil {
		return "", "", fmt.Errorf("create dest file: %w", err)
	}
	defer out.Close()

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(out, h), resp.Body); err != nil {
		return "", "", fmt.Errorf("write body: %w", err)
	}
	return destPath, hex.EncodeToString(h.Sum(nil)), nil
}

// S3Fetcher downloads s3:// asset URIs, grounded on the same AWS SDK v2
// client construction idiom the teacher uses for uploading audit archives
// (kernel/internal/audit/s3_archiver.go), inverted here to a download.
type S3Fetcher struct {
	client *s3.Client
}

// NewS3Fetcher constructs an S3Fetcher using the default AWS credential
// chain, same as the teacher's S3Archiver.
func NewS3Fetcher(ctx context.Context) (*S3Fetcher, error) {
	cfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &S3Fetcher{client: s3.NewFromConfig(cfg)}, nil
}

// Fetch implements Fetcher for s3:// URIs of the form s3://bucket/key.
func (f *S3Fetcher) Fetch(ctx context.Context, uri string, destDir string) (string, string, error) {
	bucket, key, err := parseS3URI(uri)
	if err != nil {
		return "", "", err
	}
	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", "", fmt.Errorf("s3 get object %s: %w", uri, err)
	}
	defer out.Body.Close()

	destPath := filepath.Join(destDir, localFileName(uri))
	dst, err := os.Create(destPath)
	if err != nil {
		return "", "", fmt.Errorf("create dest file: %w", err)
	}
	defer dst.Close()

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(dst, h), out.Body); err != nil {
		return "", "", fmt.Errorf("write body: %w", err)
	}
	return destPath, hex.EncodeToString(h.Sum(nil)), nil
}

func parseS3URI(uri string) (bucket, key string, err error) {
	const prefix = "s3://"
	if !strings.HasPrefix(uri, prefix) {
		return "", "", fmt.Errorf("not an s3 uri: %s", uri)
	}
	rest := strings.TrimPrefix(uri, prefix)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed s3 uri: %s", uri)
	}
	return parts[0], parts[1], nil
}

// FetcherFor picks the right Fetcher implementation by URI scheme.
func FetcherFor(uri string, httpFetcher Fetcher, s3Fetcher Fetcher) (Fetcher, error) {
	switch {
	case strings.HasPrefix(uri, "s3://"):
		if s3Fetcher == nil {
			return nil, fmt.Errorf("no s3 fetcher configured for %s", uri)
		}
		return s3Fetcher, nil
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		if httpFetcher == nil {
			return nil, fmt.Errorf("no http fetcher configured for %s", uri)
		}
		return httpFetcher, nil
	default:
		return nil, fmt.Errorf("unsupported asset uri scheme: %s", uri)
	}
}

func localFileName(uri string) string {
	sum := sha256.Sum256([]byte(uri))
	return hex.EncodeToString(sum[:]) + filepath.Ext(uri)
}
