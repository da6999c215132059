// Package fetch - browser.go renders JavaScript-heavy posts in headless Chrome.
package fetch

import (
	"context"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
)

// DefaultRenderWait is how long the page gets to run scripts after load.
const DefaultRenderWait = 2 * time.Second

// BrowserOptions configures a headless render.
type BrowserOptions struct {
	Timeout    time.Duration
	RenderWait time.Duration
	UserAgent  string
	// Proxy is passed to Chrome as --proxy-server.
	Proxy   string
	Cookies []BrowserCookie
}

// BrowserCookie is set in the browser before navigation.
type BrowserCookie struct {
	Name   string
	Value  string
	Domain string
}

// BrowserFetcher renders text pages through a headless browser and falls
// back to the wrapped Client for binary downloads.
type BrowserFetcher struct {
	*Client
	Timeout    time.Duration
	RenderWait time.Duration
}

// NewBrowserFetcher wraps c.
func NewBrowserFetcher(c *Client) *BrowserFetcher {
	return &BrowserFetcher{
		Client:     c,
		Timeout:    c.opts.Timeout,
		RenderWait: DefaultRenderWait,
	}
}

// FetchText renders urlStr and returns the resulting HTML. The client's
// proxy, User-Agent and session cookie carry over to the browser.
func (b *BrowserFetcher) FetchText(ctx context.Context, urlStr string) (string, error) {
	if err := b.pacer.Wait(ctx); err != nil {
		return "", &Error{URL: urlStr, Message: "cancelled while waiting for rate limit", Cause: err}
	}
	return WithBrowser(ctx, urlStr, b.browserOptions(), b.log)
}

// browserOptions mirrors the client's settings. Cookies get a leading dot
// so subdomains receive them, as cookieAllowed does for plain requests.
func (b *BrowserFetcher) browserOptions() BrowserOptions {
	opts := BrowserOptions{
		Timeout:    b.Timeout,
		RenderWait: b.RenderWait,
		UserAgent:  b.opts.UserAgent,
		Proxy:      browserProxy(b.opts.Proxy),
	}
	if b.opts.CookieName == "" {
		return opts
	}
	for _, d := range b.domains {
		opts.Cookies = append(opts.Cookies, BrowserCookie{
			Name:   b.opts.CookieName,
			Value:  b.opts.CookieValue,
			Domain: "." + d,
		})
	}
	return opts
}

// browserProxy converts a proxy URL into the form Chrome accepts. Chrome
// resolves names through SOCKS proxies itself, so socks5h maps to socks5.
func browserProxy(proxy string) string {
	if strings.HasPrefix(proxy, "socks5h://") {
		return "socks5://" + strings.TrimPrefix(proxy, "socks5h://")
	}
	return proxy
}

// WithBrowser renders a page in a headless browser and returns the rendered HTML.
// Requires Chrome/Chromium to be installed on the system.
func WithBrowser(ctx context.Context, urlStr string, opts BrowserOptions, log logrus.FieldLogger) (string, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent()
	}
	log.WithFields(logrus.Fields{
		"url":     urlStr,
		"proxy":   opts.Proxy != "",
		"cookies": len(opts.Cookies),
	}).Debug("Starting headless browser")

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(opts.UserAgent),
	)
	if opts.Proxy != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(opts.Proxy))
	}

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, opts.Timeout)
	defer cancel()

	var html string
	actions := []chromedp.Action{network.Enable()}
	for _, c := range opts.Cookies {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			return network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath("/").
				WithHTTPOnly(true).
				Do(ctx)
		}))
	}
	actions = append(actions,
		chromedp.Navigate(urlStr),
		chromedp.WaitReady("body"),
		chromedp.Sleep(opts.RenderWait),
		chromedp.OuterHTML("html", &html),
	)

	if err := chromedp.Run(browserCtx, actions...); err != nil {
		return "", &Error{URL: urlStr, Message: "browser rendering failed", Cause: err}
	}

	log.WithFields(logrus.Fields{"url": urlStr, "bytes": len(html)}).Debug("Rendered page")
	return html, nil
}
