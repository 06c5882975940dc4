// Package fetch retrieves raw pages over http with a shared rate limit and a single retry policy.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dealcatalog/internal/catalog"
	"dealcatalog/lib/restyutil"
	"dealcatalog/lib/retry"
	"dealcatalog/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("dealcatalog/internal/fetch")

const (
	report_fetch_retry = "fetch.retry"
	report_fetch_dump  = "fetch.dump-dir"
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// Config is everything a Fetcher needs, it replaces any process-wide session state.
type Config struct {
	UserAgent string
	Headers   map[string]string
	// Timeout bounds a single attempt.
	Timeout time.Duration
	// MinDelay is the minimum time between two requests across every caller of the Fetcher.
	MinDelay time.Duration
	// Burst allows that many requests to go out back to back before MinDelay applies, defaults to 1.
	Burst int
	Retry retry.Policy
	// BypassCloudflare wraps the transport with browser-like TLS and headers.
	BypassCloudflare bool
	// DumpDir, when set, receives every http message for inspection.
	DumpDir string
}

// Fetcher is safe for concurrent use, the rate limiter is its only shared mutable state.
type Fetcher struct {
	http    *resty.Client
	limiter *rate.Limiter
	policy  retry.Policy
	tel     telemetry.API
}

func New(cfg Config, tel telemetry.API) (*Fetcher, error) {
	client := resty.New()

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	client.SetHeader("user-agent", userAgent)
	client.SetHeaders(cfg.Headers)
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	if cfg.BypassCloudflare {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}

	limit := rate.Inf
	if cfg.MinDelay > 0 {
		limit = rate.Every(cfg.MinDelay)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(limit, burst)

	// every attempt waits its turn, retries included.
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return limiter.Wait(req.Context())
	})

	var output restyutil.InstrumentOutput
	if cfg.DumpDir != "" {
		fsOutput, err := restyutil.NewFilesystemOutput(cfg.DumpDir, tel)
		if err != nil {
			return nil, fmt.Errorf("prepare dump dir: %w", err)
		}
		tel.ReportDebug(report_fetch_dump, cfg.DumpDir)
		output = fsOutput
	}
	restyutil.InstrumentClient(client, "dealcatalog/http", tel, output)

	policy := cfg.Retry
	policy.Retryable = Retryable

	return &Fetcher{
		http:    client,
		limiter: limiter,
		policy:  policy,
		tel:     tel,
	}, nil
}

// Retryable is true for network errors that may succeed when attempted again:
// transport failures, timeouts, 5xx and 429.
func Retryable(err error) bool {
	var netErr *catalog.NetworkError
	if errors.As(err, &netErr) {
		return netErr.Retryable
	}
	return false
}

func (f *Fetcher) attempt(ctx context.Context, target string) ([]byte, error) {
	res, err := f.http.R().
		SetContext(ctx).
		Get(target)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &catalog.NetworkError{Url: target, Retryable: true, Err: err}
	}

	status := res.StatusCode()
	switch {
	case status == http.StatusTooManyRequests || status >= 500:
		return nil, &catalog.NetworkError{Url: target, Status: status, Retryable: true}
	case status >= 400:
		return nil, &catalog.NetworkError{Url: target, Status: status}
	}

	body := res.Body()
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &catalog.ParseError{Field: target, Err: errors.New("empty response body")}
	}
	return body, nil
}

// Fetch retrieves a url, retrying transient failures according to the retry policy.
// The error is a *catalog.NetworkError, a *catalog.ParseError or the context's error.
func (f *Fetcher) Fetch(ctx context.Context, target string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("url", target))

	var body []byte
	attempts, err := f.policy.Do(
		ctx,
		func(ctx context.Context) error {
			var err error
			body, err = f.attempt(ctx, target)
			return err
		},
		func(err error, attempt int, wait time.Duration) {
			f.tel.ReportWarning(report_fetch_retry, target, attempt, wait, err)
		},
	)
	span.SetAttributes(attribute.Int("attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, err
	}
	return body, nil
}

// Source is a paginated listing, URLTemplate holds a %d placeholder for the 1-based
// page index. Without a placeholder the index is set as the "p" query parameter.
type Source struct {
	Name        string
	URLTemplate string
}

func (s Source) PageURL(index int) (string, error) {
	if strings.Contains(s.URLTemplate, "%d") {
		return fmt.Sprintf(s.URLTemplate, index), nil
	}
	parsed, err := url.Parse(s.URLTemplate)
	if err != nil {
		return "", fmt.Errorf("source %s: %w", s.Name, err)
	}
	query := parsed.Query()
	query.Set("p", fmt.Sprint(index))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// FetchPage retrieves one page of a paginated source.
func (f *Fetcher) FetchPage(ctx context.Context, src Source, index int) ([]byte, error) {
	target, err := src.PageURL(index)
	if err != nil {
		return nil, err
	}
	return f.Fetch(ctx, target)
}
