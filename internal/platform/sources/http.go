package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/phrazzld/lexis-api/internal/config"
)

// ErrUpstream is returned when a provider answers with a non-2xx status.
var ErrUpstream = errors.New("upstream source error")

// maxBodyBytes bounds how much of a response is read.
const maxBodyBytes = 4 << 20

// fetcher performs rate-limited GET requests.
type fetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
}

func newFetcher(cfg config.SourcesConfig, client *http.Client) *fetcher {
	if client == nil {
		client = &http.Client{Timeout: time.Duration(cfg.HTTPTimeoutSeconds) * time.Second}
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &fetcher{
		client:    client,
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		userAgent: cfg.UserAgent,
	}
}

// get fetches rawURL and returns the body.
func (f *fetcher) get(ctx context.Context, rawURL, accept string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", hostOf(rawURL), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrUpstream, hostOf(rawURL), resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

// expandTemplate substitutes {topic} in tmpl. pathStyle selects Wikipedia
// title encoding (underscores) over query encoding.
func expandTemplate(tmpl, topic string, pathStyle bool) string {
	var value string
	if pathStyle {
		value = url.PathEscape(strings.ReplaceAll(strings.TrimSpace(topic), " ", "_"))
	} else {
		value = url.QueryEscape(strings.TrimSpace(topic))
	}
	return strings.ReplaceAll(tmpl, "{topic}", value)
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "source"
	}
	return u.Host
}
