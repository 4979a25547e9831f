// Package fetch is the shared HTTP substrate for the scraping adapters:
// browser TLS fingerprints, User-Agent rotation, optional proxy rotation,
// rate limiting, and block-page detection. Fetch errors are captured in the
// Result rather than returned, so adapters stay on their best-effort path.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopii/reviewrank/internal/fingerprint"
	"github.com/shopii/reviewrank/internal/metrics"
	"github.com/shopii/reviewrank/pkg/httpclient"
	"github.com/shopii/reviewrank/pkg/proxy"
	"github.com/shopii/reviewrank/pkg/ratelimit"
	"github.com/shopii/reviewrank/pkg/useragent"
)

type contextKey string

const proxyKey contextKey = "proxy_url"

// Result captures one fetch attempt. Err is non-empty when the request
// failed before an HTTP response was read.
type Result struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	FetchedAt  time.Time
	Blocked    bool   // a bot-protection product challenged the request
	BlockedBy  string // e.g. "Cloudflare", "Akamai", "PerimeterX", "DataDome"
	Err        string
}

// OK reports whether the fetch produced a usable 2xx page.
func (r *Result) OK() bool {
	return r.Err == "" && !r.Blocked && r.StatusCode >= 200 && r.StatusCode < 300
}

// Config configures a Fetcher.
type Config struct {
	Timeout      time.Duration
	MaxRedirects int
	UseCookieJar bool
	ProxyPool    *proxy.Pool
	UAPool       *useragent.Pool
	Fingerprint  fingerprint.Profile
	Limiter      *ratelimit.Limiter
}

// Fetcher performs single URL fetches. Holding one client across requests
// keeps the cookie jar and pooled connections alive for the Fetcher's
// lifetime.
type Fetcher struct {
	config Config
	client *httpclient.Client
}

// NewFetcher initializes a Fetcher with the given configuration.
func NewFetcher(cfg Config) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil)
	}
	if string(cfg.Fingerprint) == "" {
		cfg.Fingerprint = fingerprint.ProfileChrome
	}

	// One transport per fetcher. Per-request proxy rotation works by
	// putting the proxy URL into the request context and reading it back
	// here; mutating Transport.Proxy concurrently would not be safe.
	proxyFunc := func(req *http.Request) (*url.URL, error) {
		if val := req.Context().Value(proxyKey); val != nil {
			if u, ok := val.(*url.URL); ok {
				return u, nil
			}
		}
		if req.URL.Hostname() == "127.0.0.1" || req.URL.Host == "example.com" {
			// keep local test traffic off any system proxy
			return nil, nil
		}
		return http.ProxyFromEnvironment(req)
	}

	transport, err := fingerprint.Transport(cfg.Fingerprint, proxyFunc)
	if err != nil {
		return nil, fmt.Errorf("setup transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: cfg.UseCookieJar,
		Transport:    transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	return &Fetcher{config: cfg, client: client}, nil
}

// Fetch executes a GET request against targetURL. Transport-level failures
// are reported through Result.Err, never as a returned error.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) *Result {
	start := time.Now()
	result := &Result{
		URL:       targetURL,
		FetchedAt: start.UTC(),
	}

	if f.config.Limiter != nil {
		if err := f.config.Limiter.Wait(ctx); err != nil {
			result.Err = fmt.Sprintf("rate limiter: %v", err)
			return result
		}
	}

	var activeProxy *url.URL
	if f.config.ProxyPool != nil {
		activeProxy = f.config.ProxyPool.Next()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		result.Err = fmt.Sprintf("create request: %v", err)
		result.Duration = time.Since(start)
		return result
	}

	if activeProxy != nil {
		req = req.WithContext(context.WithValue(req.Context(), proxyKey, activeProxy))
	}

	req.Header.Set("User-Agent", f.config.UAPool.GetSequential())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req.Context(), req)
	if err != nil {
		if activeProxy != nil {
			_ = f.config.ProxyPool.MarkFailure(activeProxy)
			metrics.ProxyFailures.WithLabelValues(activeProxy.String()).Inc()
		}
		result.Err = fmt.Sprintf("request failed: %v", err)
		result.Duration = time.Since(start)
		metrics.RecordFetch(hostOf(targetURL), 0, true, false, result.Duration)
		return result
	}
	defer resp.Body.Close()

	if activeProxy != nil {
		_ = f.config.ProxyPool.MarkSuccess(activeProxy)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		result.Err = fmt.Sprintf("read body: %v", err)
	}

	result.StatusCode = resp.StatusCode
	result.Headers = resp.Header
	result.Body = body
	result.Duration = time.Since(start)

	Detect(result, DefaultDetectors())
	metrics.RecordFetch(hostOf(targetURL), result.StatusCode, result.Err != "", result.Blocked, result.Duration)

	return result
}

func hostOf(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		return u.Hostname()
	}
	return ""
}
