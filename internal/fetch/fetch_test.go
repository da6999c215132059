package fetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, opts *Options) *Client {
	t.Helper()
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Rate == 0 {
		opts.Rate = 1000
	}
	log := logrus.New()
	log.SetOutput(io.Discard)
	opts.Logger = log

	c, err := NewClient(opts)
	require.NoError(t, err)
	return c
}

func TestGet_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html><body><h1>Test</h1></body></html>"))
	}))
	defer server.Close()

	result, err := newTestClient(t, nil).Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, server.URL, result.URL)
	assert.Contains(t, string(result.Body), "<h1>Test</h1>")
	assert.Equal(t, "text/html", result.ContentType)
	assert.Equal(t, http.StatusOK, result.StatusCode)
}

func TestGet_InvalidURL(t *testing.T) {
	_, err := newTestClient(t, nil).Get(context.Background(), "not-a-valid-url")
	require.Error(t, err)

	var fetchErr *Error
	assert.ErrorAs(t, err, &fetchErr)
	assert.Contains(t, err.Error(), "invalid URL")
}

func TestGet_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	result, err := newTestClient(t, nil).Get(context.Background(), server.URL)
	require.Error(t, err)
	assert.NotNil(t, result) // Result is returned even on error
	assert.Equal(t, http.StatusNotFound, result.StatusCode)

	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
	assert.Contains(t, err.Error(), "404")
}

func TestFetchBytesAndText(t *testing.T) {
	payload := []byte{0x89, 'P', 'N', 'G', 0x00, 0x01}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/image.png" {
			_, _ = w.Write(payload)
			return
		}
		_, _ = w.Write([]byte("<p>text</p>"))
	}))
	defer server.Close()

	c := newTestClient(t, nil)

	data, err := c.FetchBytes(context.Background(), server.URL+"/image.png")
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	text, err := c.FetchText(context.Background(), server.URL+"/post")
	require.NoError(t, err)
	assert.Equal(t, "<p>text</p>", text)
}

func TestGet_SendsUserAgentAndHeaders(t *testing.T) {
	var gotUA, gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotHeader = r.Header.Get("X-Test")
	}))
	defer server.Close()

	opts := DefaultOptions()
	opts.Headers = map[string]string{"X-Test": "yes"}
	_, err := newTestClient(t, opts).Get(context.Background(), server.URL)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(gotUA, "RoBustack-DL/"))
	assert.Equal(t, "yes", gotHeader)
}

func TestGet_CookieScopedToDomains(t *testing.T) {
	var gotCookie string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("substack.sid"); err == nil {
			gotCookie = c.Value
		}
	}))
	defer server.Close()

	t.Run("allowed host", func(t *testing.T) {
		gotCookie = ""
		opts := DefaultOptions()
		opts.CookieName = "substack.sid"
		opts.CookieValue = "secret"
		opts.CookieDomains = []string{"127.0.0.1"}

		_, err := newTestClient(t, opts).Get(context.Background(), server.URL)
		require.NoError(t, err)
		assert.Equal(t, "secret", gotCookie)
	})

	t.Run("other host", func(t *testing.T) {
		gotCookie = ""
		opts := DefaultOptions()
		opts.CookieName = "substack.sid"
		opts.CookieValue = "secret"

		_, err := newTestClient(t, opts).Get(context.Background(), server.URL)
		require.NoError(t, err)
		assert.Empty(t, gotCookie)
	})
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(&Options{CookieName: "only-name"})
	assert.Error(t, err)

	_, err = NewClient(&Options{Proxy: "ftp://proxy:21"})
	assert.Error(t, err)

	_, err = NewClient(&Options{Proxy: "::bad"})
	assert.Error(t, err)

	c, err := NewClient(&Options{Proxy: "socks5://127.0.0.1:1080"})
	require.NoError(t, err)
	assert.Equal(t, DefaultRate, c.RateLimit())
}

func TestGet_BodyLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer server.Close()

	opts := DefaultOptions()
	opts.MaxBodyBytes = 10
	_, err := newTestClient(t, opts).Get(context.Background(), server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestGet_Cancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(t, nil).Get(ctx, server.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPacer_SpacesRequests(t *testing.T) {
	p := NewPacer(20) // one token every 50ms

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Wait(context.Background()))
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestPacer_WaitRespectsContext(t *testing.T) {
	p := NewPacer(1)
	require.NoError(t, p.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := p.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
