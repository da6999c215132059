package fetch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrowserOptions_CarryClientSession(t *testing.T) {
	c, err := NewClient(&Options{
		UserAgent:     "test-agent",
		Proxy:         "socks5h://127.0.0.1:9050",
		CookieName:    "substack.sid",
		CookieValue:   "secret",
		CookieDomains: []string{"news.example.com"},
		Timeout:       5 * time.Second,
	})
	require.NoError(t, err)

	opts := NewBrowserFetcher(c).browserOptions()

	assert.Equal(t, "test-agent", opts.UserAgent)
	assert.Equal(t, "socks5://127.0.0.1:9050", opts.Proxy)
	assert.Equal(t, 5*time.Second, opts.Timeout)
	assert.Equal(t, DefaultRenderWait, opts.RenderWait)
	assert.Equal(t, []BrowserCookie{
		{Name: "substack.sid", Value: "secret", Domain: ".substack.com"},
		{Name: "substack.sid", Value: "secret", Domain: ".news.example.com"},
	}, opts.Cookies)
}

func TestBrowserOptions_Anonymous(t *testing.T) {
	c, err := NewClient(nil)
	require.NoError(t, err)

	opts := NewBrowserFetcher(c).browserOptions()

	assert.Empty(t, opts.Proxy)
	assert.Empty(t, opts.Cookies)
	assert.Equal(t, DefaultUserAgent(), opts.UserAgent)
}

func TestBrowserProxy(t *testing.T) {
	assert.Equal(t, "http://proxy:8080", browserProxy("http://proxy:8080"))
	assert.Equal(t, "socks5://proxy:1080", browserProxy("socks5h://proxy:1080"))
	assert.Empty(t, browserProxy(""))
}
