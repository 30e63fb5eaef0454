package remotecache

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-retryablehttp"

	"polykit/internal/polyerr"
)

// ErrTooManyFailures is returned once maxFailCount failures have accumulated
// on this backend (the count is never reset), ending the retry loop of any
// request that would otherwise be retried until the backend is recreated.
var ErrTooManyFailures = errors.New("remotecache: too many failures, skipping request")

const maxFailCount = uint64(3)

// HTTPBackend talks to a cache server implementing the
// PUT/GET/HEAD /v1/artifacts/{key} contract (spec.md §4.7).
type HTTPBackend struct {
	BaseURL string
	Token   string

	client           *retryablehttp.Client
	currentFailCount uint64
}

// NewHTTPBackend constructs an HTTPBackend with bounded retry, mirroring the
// client used against the hosted remote cache: short backoff, small retry
// budget, and a circuit-breaker style fail counter.
func NewHTTPBackend(baseURL, token string, timeout time.Duration, logger hclog.Logger) *HTTPBackend {
	return &HTTPBackend{
		BaseURL: baseURL,
		Token:   token,
		client: &retryablehttp.Client{
			HTTPClient: &http.Client{Timeout: timeout},
			RetryWaitMin: 100 * time.Millisecond,
			RetryWaitMax: 2 * time.Second,
			RetryMax:     3,
			Backoff:      retryablehttp.DefaultBackoff,
			Logger:       logger,
		},
	}
}

func (b *HTTPBackend) init() {
	if b.client.CheckRetry == nil {
		b.client.CheckRetry = b.checkRetry
	}
}

func (b *HTTPBackend) checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		atomic.AddUint64(&b.currentFailCount, 1)
		return false, ctx.Err()
	}
	shouldRetry, retryErr := b.retryPolicy(resp, err)
	if shouldRetry && atomic.LoadUint64(&b.currentFailCount) >= maxFailCount {
		return false, ErrTooManyFailures
	}
	return shouldRetry, retryErr
}

func (b *HTTPBackend) retryPolicy(resp *http.Response, err error) (bool, error) {
	if err != nil {
		var unknownAuth x509.UnknownAuthorityError
		if errors.As(err, &unknownAuth) {
			atomic.AddUint64(&b.currentFailCount, 1)
			return false, err
		}
		atomic.AddUint64(&b.currentFailCount, 1)
		return true, nil
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		atomic.AddUint64(&b.currentFailCount, 1)
		return true, nil
	}
	if resp.StatusCode >= 500 {
		atomic.AddUint64(&b.currentFailCount, 1)
		return true, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return false, nil
}

func (b *HTTPBackend) url(key string) string {
	return fmt.Sprintf("%s/v1/artifacts/%s", b.BaseURL, key)
}

func (b *HTTPBackend) userAgent() string {
	return fmt.Sprintf("polykit %s (%s/%s)", "0.1.0", runtime.GOOS, runtime.GOARCH)
}

func (b *HTTPBackend) newRequest(ctx context.Context, method, url string, body []byte) (*retryablehttp.Request, error) {
	req, err := retryablehttp.NewRequest(method, url, body)
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)
	req.Header.Set("User-Agent", b.userAgent())
	if b.Token != "" {
		req.Header.Set("Authorization", "Bearer "+b.Token)
	}
	return req, nil
}

// Get fetches the compressed artifact bytes stored under key.
func (b *HTTPBackend) Get(ctx context.Context, key string) ([]byte, error) {
	b.init()
	req, err := b.newRequest(ctx, http.MethodGet, b.url(key), nil)
	if err != nil {
		return nil, polyerr.Wrap(err, "building GET request")
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, polyerr.Wrap(err, "requesting artifact")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &polyerr.AdapterError{Component: "remotecache", Message: fmt.Sprintf("unexpected status %s", resp.Status)}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, polyerr.Wrap(err, "reading artifact body")
	}
	return data, nil
}

// Put uploads compressed artifact bytes under key.
func (b *HTTPBackend) Put(ctx context.Context, key string, compressed []byte) error {
	b.init()
	req, err := b.newRequest(ctx, http.MethodPut, b.url(key), compressed)
	if err != nil {
		return polyerr.Wrap(err, "building PUT request")
	}
	req.Header.Set("Content-Type", "application/zstd")
	resp, err := b.client.Do(req)
	if err != nil {
		return polyerr.Wrap(err, "uploading artifact")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusConflict {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	return &polyerr.AdapterError{Component: "remotecache", Message: fmt.Sprintf("upload rejected: %s: %s", resp.Status, string(body))}
}

// Has reports whether key exists via HEAD, without downloading the payload.
func (b *HTTPBackend) Has(ctx context.Context, key string) (bool, error) {
	b.init()
	req, err := b.newRequest(ctx, http.MethodHead, b.url(key), nil)
	if err != nil {
		return false, polyerr.Wrap(err, "building HEAD request")
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return false, polyerr.Wrap(err, "probing artifact")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, &polyerr.AdapterError{Component: "remotecache", Message: fmt.Sprintf("unexpected status %s", resp.Status)}
	}
}
