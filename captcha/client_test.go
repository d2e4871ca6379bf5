package captcha

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngStub = base64.StdEncoding.EncodeToString([]byte("\x89PNG\r\n\x1a\nstub"))

func newProvider(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, DefaultEndpoint, r.URL.Path)
		payload, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{}`, string(payload))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestFetch_SpringEnvelope(t *testing.T) {
	srv, _ := newProvider(t, http.StatusOK, `{
		"code": 200,
		"data": {
			"questionId": "q-1",
			"imageBase64": "data:image/png;base64,`+pngStub+`",
			"chiralCount": 3,
			"moleculeName": "Cholesterol"
		}
	}`)

	c, err := New(Options{BaseURL: srv.URL + "/"})
	require.NoError(t, err)

	q, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "q-1", q.ID)
	assert.Equal(t, 3, q.CorrectCount)
	assert.Equal(t, "Cholesterol", q.Label)
	assert.NotEmpty(t, q.Image)
	assert.Contains(t, q.Encoded, "data:image/png;base64,")
}

func TestFetch_NestedRegionsDerivesCount(t *testing.T) {
	srv, _ := newProvider(t, http.StatusOK, `{"data":{"data":{"regions":["A1","B2"],"cid":"X","base64":"`+pngStub+`"}}}`)

	c, err := New(Options{BaseURL: srv.URL})
	require.NoError(t, err)

	q, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "X", q.ID)
	assert.Equal(t, 2, q.CorrectCount)
}

func TestFetch_ServerErrorIsUnavailable(t *testing.T) {
	srv, calls := newProvider(t, http.StatusBadGateway, `oops`)

	c, err := New(Options{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Fetch(context.Background())
	require.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, int32(1), calls.Load(), "fetch must not retry")
}

func TestFetch_TimeoutIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, err := New(Options{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	start := time.Now()
	_, err = c.Fetch(context.Background())
	require.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestFetch_UnreachableIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(Options{BaseURL: url})
	require.NoError(t, err)
	_, err = c.Fetch(context.Background())
	require.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestFetch_MissingImageIsMalformed(t *testing.T) {
	srv, _ := newProvider(t, http.StatusOK, `{"id":"q","count":2,"image":""}`)

	c, err := New(Options{BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = c.Fetch(context.Background())
	require.ErrorIs(t, err, ErrProviderMalformed)
}

func TestFetch_NotJSONIsMalformed(t *testing.T) {
	srv, _ := newProvider(t, http.StatusOK, `<html>`)

	c, err := New(Options{BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = c.Fetch(context.Background())
	require.ErrorIs(t, err, ErrProviderMalformed)
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestNew_BuildsURL(t *testing.T) {
	c, err := New(Options{BaseURL: "http://captcha:9999/", Endpoint: "fetch"})
	require.NoError(t, err)
	assert.Equal(t, "http://captcha:9999/fetch", c.URL())
}
