// Package fetch provides the rate-limited HTTP transport used to download
// posts and their assets.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 30 * time.Second

// DefaultRate is the default number of requests per second.
const DefaultRate = 2

// DefaultMaxBodyBytes caps a single response body.
const DefaultMaxBodyBytes = 256 << 20

// SubstackDomain always receives the session cookie.
const SubstackDomain = "substack.com"

// Version is stamped into the user agent. It is set by the CLI.
var Version = "dev"

// DefaultUserAgent returns the user agent string for HTTP requests.
func DefaultUserAgent() string {
	return fmt.Sprintf("RoBustack-DL/%s (Digital Repair Tool)", Version)
}

// Result holds the raw content of a URL fetch.
type Result struct {
	URL         string
	Body        []byte
	ContentType string
	StatusCode  int
}

// Error represents an error during URL fetching.
type Error struct {
	URL        string
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Options configures the fetch behavior.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	Headers   map[string]string
	// Proxy is an http, https or socks5 URL.
	Proxy string
	// CookieName and CookieValue carry a session cookie for paywalled posts.
	CookieName  string
	CookieValue string
	// CookieDomains receive the cookie in addition to SubstackDomain.
	CookieDomains []string
	// Rate is the maximum number of requests per second.
	Rate         int
	MaxBodyBytes int64
	Logger       logrus.FieldLogger
}

// DefaultOptions returns sensible defaults for fetching.
func DefaultOptions() *Options {
	return &Options{
		Timeout:      DefaultTimeout,
		UserAgent:    DefaultUserAgent(),
		Rate:         DefaultRate,
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
}

// Client fetches URLs at a bounded rate.
type Client struct {
	http    *http.Client
	opts    Options
	pacer   *Pacer
	log     logrus.FieldLogger
	domains []string
}

// NewClient builds a Client from opts. Zero fields take their defaults.
func NewClient(opts *Options) (*Client, error) {
	o := *DefaultOptions()
	if opts != nil {
		o = *opts
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent()
	}
	if o.Rate <= 0 {
		o.Rate = DefaultRate
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	if (o.CookieName == "") != (o.CookieValue == "") {
		return nil, fmt.Errorf("cookie name and value must be given together")
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if o.Proxy != "" {
		proxyURL, err := url.Parse(o.Proxy)
		if err != nil || proxyURL.Host == "" {
			return nil, fmt.Errorf("invalid proxy URL %q", o.Proxy)
		}
		switch proxyURL.Scheme {
		case "http", "https", "socks5", "socks5h":
		default:
			return nil, fmt.Errorf("unsupported proxy scheme %q", proxyURL.Scheme)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	domains := []string{SubstackDomain}
	for _, d := range o.CookieDomains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			domains = append(domains, d)
		}
	}

	return &Client{
		http: &http.Client{
			Timeout:   o.Timeout,
			Transport: transport,
		},
		opts:    o,
		pacer:   NewPacer(o.Rate),
		log:     o.Logger,
		domains: domains,
	}, nil
}

// RateLimit returns the configured requests per second.
func (c *Client) RateLimit() int {
	return c.opts.Rate
}

// FetchBytes downloads urlStr and returns the raw body.
func (c *Client) FetchBytes(ctx context.Context, urlStr string) ([]byte, error) {
	res, err := c.Get(ctx, urlStr)
	if err != nil {
		return nil, err
	}
	return res.Body, nil
}

// FetchText downloads urlStr and returns the body as a string.
func (c *Client) FetchText(ctx context.Context, urlStr string) (string, error) {
	res, err := c.Get(ctx, urlStr)
	if err != nil {
		return "", err
	}
	return string(res.Body), nil
}

// Get waits for the pacer and performs a GET request. On a non-200 status
// the result is returned together with the error.
func (c *Client) Get(ctx context.Context, urlStr string) (*Result, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, &Error{
			URL:     urlStr,
			Message: "invalid URL",
			Cause:   err,
		}
	}

	if err := c.pacer.Wait(ctx); err != nil {
		return nil, &Error{
			URL:     urlStr,
			Message: "cancelled while waiting for rate limit",
			Cause:   err,
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, &Error{
			URL:     urlStr,
			Message: "failed to create request",
			Cause:   err,
		}
	}

	req.Header.Set("User-Agent", c.opts.UserAgent)
	for key, value := range c.opts.Headers {
		req.Header.Set(key, value)
	}
	if c.opts.CookieName != "" && c.cookieAllowed(parsedURL.Hostname()) {
		req.AddCookie(&http.Cookie{Name: c.opts.CookieName, Value: c.opts.CookieValue})
	}

	c.log.WithField("url", urlStr).Debug("GET")
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{
			URL:     urlStr,
			Message: "HTTP request failed",
			Cause:   err,
		}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.opts.MaxBodyBytes+1))
	if err != nil {
		return nil, &Error{
			URL:        urlStr,
			StatusCode: resp.StatusCode,
			Message:    "failed to read response body",
			Cause:      err,
		}
	}
	if int64(len(body)) > c.opts.MaxBodyBytes {
		return nil, &Error{
			URL:        urlStr,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("response body exceeds %d bytes", c.opts.MaxBodyBytes),
		}
	}

	result := &Result{
		URL:         urlStr,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
	}

	c.log.WithFields(logrus.Fields{
		"url":      urlStr,
		"status":   resp.StatusCode,
		"bytes":    len(body),
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debug("Fetched")

	if resp.StatusCode != http.StatusOK {
		return result, &Error{
			URL:        urlStr,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("HTTP status %d", resp.StatusCode),
		}
	}

	return result, nil
}

func (c *Client) cookieAllowed(host string) bool {
	host = strings.ToLower(host)
	for _, d := range c.domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
