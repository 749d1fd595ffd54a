package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cyberes/cf-speedtest-custom/spec"
)

func TestServerTiming(t *testing.T) {
	mk := func(value string) *http.Response {
		h := http.Header{}
		if value != "" {
			h.Set(spec.ServerTimingHeader, value)
		}
		return &http.Response{Header: h}
	}
	assert.Equal(t, 12300*time.Microsecond, serverTiming(mk("cfst;dur=12.3")))
	assert.Equal(t, time.Duration(0), serverTiming(mk("")))
	assert.Equal(t, time.Duration(0), serverTiming(mk("cfst;desc=nope")))
	assert.Equal(t, 5*time.Millisecond, serverTiming(mk("cfRequestDuration;dur=5")))
}

func TestDownURLCacheBusting(t *testing.T) {
	tr := &Transport{BaseURL: "http://example.com/"}
	u := tr.downURL(1234)
	assert.True(t, strings.HasPrefix(u, "http://example.com/__down?bytes=1234&r="), u)
}

func TestProgressReader(t *testing.T) {
	r := &progressReader{data: make([]byte, 100)}
	buf := make([]byte, 40)

	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 40, n)
	n, err = r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 40, n)
	n, err = r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
	_, err = r.Read(buf)
	assert.Equal(t, io.EOF, err)

	// One sample per successful read, recording bytes sent so far.
	require.Len(t, r.samples, 3)
	assert.Equal(t, int64(0), r.samples[0].Bytes)
	assert.Equal(t, int64(40), r.samples[1].Bytes)
	assert.Equal(t, int64(80), r.samples[2].Bytes)
}

func TestDoClassifiesStatuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/unauthorized":
			w.WriteHeader(http.StatusUnauthorized)
		case "/broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()
	defer http.DefaultTransport.(*http.Transport).CloseIdleConnections()

	tr := &Transport{BaseURL: srv.URL}
	ctx := context.Background()

	req, err := tr.newRequest(ctx, http.MethodGet, srv.URL+"/unauthorized", nil)
	require.NoError(t, err)
	_, err = tr.do(req)
	assert.True(t, IsAuthError(err), "401 must map to AuthError, got %v", err)

	req, err = tr.newRequest(ctx, http.MethodGet, srv.URL+"/broken", nil)
	require.NoError(t, err)
	_, err = tr.do(req)
	require.Error(t, err)
	assert.False(t, IsAuthError(err), "500 is an ordinary trial error")

	req, err = tr.newRequest(ctx, http.MethodGet, srv.URL+"/ok", nil)
	require.NoError(t, err)
	resp, err := tr.do(req)
	require.NoError(t, err)
	resp.Body.Close()
}

func TestRequestCarriesPassword(t *testing.T) {
	var gotPass string
	var gotOK bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, gotPass, gotOK = r.BasicAuth()
	}))
	defer srv.Close()
	defer http.DefaultTransport.(*http.Transport).CloseIdleConnections()

	tr := &Transport{BaseURL: srv.URL, Password: "hunter2"}
	_, err := tr.LatencyProbe(context.Background())
	require.NoError(t, err)
	require.True(t, gotOK)
	assert.Equal(t, "hunter2", gotPass)
}
