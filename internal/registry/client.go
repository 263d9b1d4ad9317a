// Package registry fetches published package metadata from the npm registry,
// falling back to a CDN mirror when the registry cannot be reached.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wyattjoh/next-dev-utils/internal/fault"
	"github.com/wyattjoh/next-dev-utils/internal/pkgmeta"
	"github.com/wyattjoh/next-dev-utils/internal/utils/logger"
	"github.com/wyattjoh/next-dev-utils/internal/utils/network"
)

const (
	DefaultURL         = "https://registry.npmjs.org"
	DefaultFallbackURL = "https://unpkg.com"
	DefaultCanaryTag   = "canary"
)

var ErrMissingOptionalDependencies = errors.New("package document has no optionalDependencies")

// StatusError is a non-2xx response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetching %s: %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// Fetcher returns the body at url.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher fetches over HTTP, following redirects.
type HTTPFetcher struct {
	Client *http.Client
}

func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{Client: network.NewSecureHTTPClient(timeout)}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", url, err)
	}
	return body, nil
}

type Config struct {
	URL         string
	FallbackURL string
	CanaryTag   string
}

type Client struct {
	cfg     Config
	fetcher Fetcher
}

// NewClient fetches through fetcher, normally a Cache.
func NewClient(cfg Config, fetcher Fetcher) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.FallbackURL == "" {
		cfg.FallbackURL = DefaultFallbackURL
	}
	if cfg.CanaryTag == "" {
		cfg.CanaryTag = DefaultCanaryTag
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	cfg.FallbackURL = strings.TrimRight(cfg.FallbackURL, "/")
	return &Client{cfg: cfg, fetcher: fetcher}
}

func (c *Client) primaryURL(name, version string) string {
	return fmt.Sprintf("%s/%s/%s", c.cfg.URL, strings.Replace(name, "/", "%2F", 1), version)
}

func (c *Client) fallbackURL(name, version string) string {
	return fmt.Sprintf("%s/%s@%s/package.json", c.cfg.FallbackURL, name, version)
}

// Version fetches the document for name at version (or dist-tag). A failed
// registry fetch is retried once against the fallback endpoint.
func (c *Client) Version(ctx context.Context, name, version string) (*pkgmeta.Metadata, error) {
	log := logger.Logger()

	primary := c.primaryURL(name, version)
	body, err := c.fetcher.Fetch(ctx, primary)
	if err != nil {
		fallback := c.fallbackURL(name, version)
		log.Warnf("Fetching %s failed (%v), trying %s", primary, err, fallback)
		var ferr error
		body, ferr = c.fetcher.Fetch(ctx, fallback)
		if ferr != nil {
			return nil, fmt.Errorf("fetching %s@%s: %w", name, version, errors.Join(err, ferr))
		}
	}

	meta, err := pkgmeta.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("%s@%s: %w", name, version, err)
	}
	if !meta.HasOptionalDependencies() {
		return nil, fmt.Errorf("%w: %s@%s", ErrMissingOptionalDependencies, name, version)
	}
	return meta, nil
}

// Baseline returns the published document for version, or the canary
// document when version is not available. Failing both is fatal.
func (c *Client) Baseline(ctx context.Context, name, version string) (*pkgmeta.Metadata, error) {
	log := logger.Logger()

	meta, err := c.Version(ctx, name, version)
	if err == nil {
		return meta, nil
	}
	if ctx.Err() != nil {
		return nil, fault.NewFatal(ctx.Err())
	}
	log.Warnf("%s@%s is not available (%v), falling back to %s@%s", name, version, err, name, c.cfg.CanaryTag)

	meta, cerr := c.Version(ctx, name, c.cfg.CanaryTag)
	if cerr != nil {
		return nil, fault.NewFatal(fmt.Errorf("fetching registry baseline: %w", errors.Join(err, cerr)))
	}
	return meta, nil
}
