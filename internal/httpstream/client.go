// Package httpstream opens HTTP GET streams for playback: status validation,
// ICY header capture and a client rebuilt from the process-wide TLS options.
package httpstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/glebovdev/streamcore/internal/icy"
	"github.com/glebovdev/streamcore/internal/metrics"
	"github.com/glebovdev/streamcore/internal/station"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const (
	DefaultUserAgent = "streamcore/1.0"
	maxRedirects     = 10
)

var (
	// ErrTransport wraps every failure below the HTTP status line: DNS,
	// connect, TLS, client construction and body reads.
	ErrTransport = errors.New("transport error")
	// ErrInvalidURL is returned for URLs that cannot be requested.
	ErrInvalidURL = errors.New("invalid URL")
)

// StatusError is returned for any non-2xx response. It is never retried.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("stream returned status %d: %s", e.StatusCode, e.Status)
}

// Response is an open stream body plus the headers playback cares about.
type Response struct {
	Body          io.ReadCloser
	URL           *url.URL // final URL after redirects
	ContentType   string
	ContentLength int64 // -1 when unknown
	MetaInt       int   // 0 when the server does not interleave metadata
	Station       station.Station
}

// Client issues GET requests. No timeout is applied: a server that stops
// sending blocks the reading goroutine until the connection drops.
type Client struct {
	opts      *Options
	userAgent string
}

func NewClient(opts *Options, userAgent string) *Client {
	if opts == nil {
		opts = NewOptions()
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Client{opts: opts, userAgent: userAgent}
}

// Open issues a GET for rawURL. With wantMetadata the server is asked to
// interleave ICY metadata; the caller is responsible for stripping it using
// Response.MetaInt. The caller must close Response.Body.
func (c *Client) Open(ctx context.Context, rawURL string, wantMetadata bool) (*Response, error) {
	u, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}

	client, err := c.newRestyClient(c.opts.Snapshot())
	if err != nil {
		return nil, err
	}

	req := client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true)
	if wantMetadata {
		req.SetHeader("Icy-MetaData", "1")
	}

	log.Debug().Str("url", u.String()).Bool("metadata", wantMetadata).Msg("Opening HTTP stream")

	resp, err := req.Get(u.String())
	if err != nil {
		metrics.HTTPRequests.WithLabelValues("transport").Inc()
		return nil, fmt.Errorf("%w: GET %s: %w", ErrTransport, u.Redacted(), err)
	}

	if !resp.IsSuccess() {
		metrics.HTTPRequests.WithLabelValues("status").Inc()
		if body := resp.RawBody(); body != nil {
			body.Close()
		}
		return nil, &StatusError{StatusCode: resp.StatusCode(), Status: resp.Status()}
	}
	metrics.HTTPRequests.WithLabelValues("ok").Inc()

	header := resp.Header()
	out := &Response{
		Body:          resp.RawBody(),
		URL:           u,
		ContentType:   header.Get("Content-Type"),
		ContentLength: -1,
		MetaInt:       icy.ParseMetaInt(header.Get("icy-metaint")),
		Station:       station.FromHeader(header),
	}
	if raw := resp.RawResponse; raw != nil {
		out.ContentLength = raw.ContentLength
		if raw.Request != nil && raw.Request.URL != nil {
			out.URL = raw.Request.URL
		}
	}

	log.Debug().
		Int("status", resp.StatusCode()).
		Str("content_type", out.ContentType).
		Int("metaint", out.MetaInt).
		Str("station", out.Station.Name).
		Msg("Stream response")

	return out, nil
}

// Fetch reads a whole (small) resource such as a playlist.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, *url.URL, error) {
	resp, err := c.Open(ctx, rawURL, false)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: reading %s: %w", ErrTransport, resp.URL.Redacted(), err)
	}
	return body, resp.URL, nil
}

// ParseURL accepts absolute http and https URLs only.
func ParseURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q is not an absolute http(s) URL", ErrInvalidURL, rawURL)
	}
	return u, nil
}

// newRestyClient builds a client from s. When the configured trust settings
// cannot be turned into a TLS config it retries once with the fallback roots.
func (c *Client) newRestyClient(s Settings) (*resty.Client, error) {
	tlsConfig, err := configuredTLS(s)
	if err != nil {
		log.Warn().Err(err).Msg("TLS trust settings rejected, retrying with fallback roots")
		tlsConfig, err = fallbackTLS(s)
		if err != nil {
			return nil, fmt.Errorf("%w: building HTTP client: %w", ErrTransport, err)
		}
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig:    tlsConfig,
		DisableKeepAlives:  true,
		DisableCompression: true,
	}

	return resty.New().
		SetTransport(transport).
		SetLogger(restyLogger{}).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(maxRedirects)).
		SetHeader("User-Agent", c.userAgent).
		SetHeader("Accept", "*/*"), nil
}

// restyLogger routes resty's internal messages to zerolog.
type restyLogger struct{}

func (restyLogger) Errorf(format string, v ...interface{}) {
	log.Error().Msgf(format, v...)
}

func (restyLogger) Warnf(format string, v ...interface{}) {
	log.Warn().Msgf(format, v...)
}

func (restyLogger) Debugf(format string, v ...interface{}) {
	log.Debug().Msgf(format, v...)
}
