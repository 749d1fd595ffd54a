package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/Cyberes/cf-speedtest-custom/data"
	"github.com/Cyberes/cf-speedtest-custom/payload"
	"github.com/Cyberes/cf-speedtest-custom/spec"
	"github.com/Cyberes/cf-speedtest-custom/stats"
)

// AuthError reports a credential rejection by the server. Unlike ordinary
// trial failures, which only skip the current trial, an AuthError ends the
// whole run.
type AuthError struct {
	URL string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("unauthorized: %s requires a password", e.URL)
}

// IsAuthError reports whether err is (or wraps) an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// Transport performs the individual measurement operations against one
// server. Operations are one-shot and context-cancellable; canceling the
// context closes the underlying exchange so no bandwidth is wasted.
type Transport struct {
	// BaseURL is the server base, e.g. "https://speed.example.com".
	BaseURL string
	// Password is the optional shared password sent via basic auth. The
	// username is irrelevant; the server only checks the password.
	Password string
	// HTTPClient overrides the default client, mainly for tests and for
	// forcing an address family. Nil means http.DefaultClient.
	HTTPClient *http.Client
}

func (t *Transport) httpClient() *http.Client {
	if t.HTTPClient != nil {
		return t.HTTPClient
	}
	return http.DefaultClient
}

func (t *Transport) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, errors.Wrap(err, "cannot build request")
	}
	if t.Password != "" {
		req.SetBasicAuth("", t.Password)
	}
	return req, nil
}

// do sends the request and screens the response status: 401 becomes a
// fatal AuthError, any other non-2xx status an ordinary trial error.
func (t *Transport) do(req *http.Request) (*http.Response, error) {
	resp, err := t.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, &AuthError{URL: req.URL.Path}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, errors.Errorf("unexpected status %d from %s", resp.StatusCode, req.URL.Path)
	}
	return resp, nil
}

func (t *Transport) downURL(bytes int64) string {
	return fmt.Sprintf("%s%s?bytes=%d&r=%d",
		strings.TrimRight(t.BaseURL, "/"), spec.DownloadURLPath, bytes, time.Now().UnixNano())
}

var serverTimingRe = regexp.MustCompile(`dur=([0-9.]+)`)

// serverTiming extracts the server-side processing duration from the
// response, or 0 when absent or unparsable.
func serverTiming(resp *http.Response) time.Duration {
	m := serverTimingRe.FindStringSubmatch(resp.Header.Get(spec.ServerTimingHeader))
	if m == nil {
		return 0
	}
	ms, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return time.Duration(ms * float64(time.Millisecond))
}

// LatencyProbe issues one zero-byte download and returns the effective
// latency in milliseconds: time to first byte minus the server-reported
// processing time, floored per the methodology.
func (t *Transport) LatencyProbe(ctx context.Context) (float64, error) {
	req, err := t.newRequest(ctx, http.MethodGet, t.downURL(0), nil)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	resp, err := t.do(req)
	if err != nil {
		return 0, err
	}
	ttfb := time.Since(start)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return stats.EffectiveLatency(ttfb, serverTiming(resp)), nil
}

// DownloadMeasurement is the outcome of one timed download trial.
type DownloadMeasurement struct {
	// TransferBytes is the number of payload bytes actually received.
	TransferBytes int64
	// PayloadDuration is the time spent receiving the body only.
	PayloadDuration time.Duration
	// PingMS is the effective latency observed on this exchange.
	PingMS float64
}

// DownloadTrial requests size bytes and times the body transfer. The
// returned measurement uses actual received bytes, so a server-side clamp
// of oversized requests does not skew the rate.
func (t *Transport) DownloadTrial(ctx context.Context, size int64) (*DownloadMeasurement, error) {
	req, err := t.newRequest(ctx, http.MethodGet, t.downURL(size), nil)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := t.do(req)
	if err != nil {
		return nil, err
	}
	ttfb := time.Since(start)
	payloadStart := time.Now()
	n, err := io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, errors.Wrap(err, "download body interrupted")
	}
	payloadDuration := time.Since(payloadStart)
	if payloadDuration < spec.MinPayloadDuration {
		payloadDuration = spec.MinPayloadDuration
	}
	return &DownloadMeasurement{
		TransferBytes:   n,
		PayloadDuration: payloadDuration,
		PingMS:          stats.EffectiveLatency(ttfb, serverTiming(resp)),
	}, nil
}

// UploadMeasurement is the outcome of one timed upload trial.
type UploadMeasurement struct {
	// BitsPerSecond is the trial rate reduced from the progress samples.
	BitsPerSecond float64
	// RoundTrip is the full exchange duration.
	RoundTrip time.Duration
}

// UploadTrial posts size pattern bytes and reduces the progress samples
// recorded while the transport consumed the body.
func (t *Transport) UploadTrial(ctx context.Context, size int64) (*UploadMeasurement, error) {
	body := make([]byte, size)
	payload.Fill(body, 0)
	reader := &progressReader{data: body}

	url := fmt.Sprintf("%s%s?r=%d",
		strings.TrimRight(t.BaseURL, "/"), spec.UploadURLPath, time.Now().UnixNano())
	req, err := t.newRequest(ctx, http.MethodPost, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.ContentLength = size

	start := time.Now()
	resp, err := t.do(req)
	if err != nil {
		return nil, err
	}
	roundTrip := time.Since(start)
	if roundTrip < spec.MinPayloadDuration {
		roundTrip = spec.MinPayloadDuration
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	return &UploadMeasurement{
		BitsPerSecond: stats.UploadBitsPerSecond(reader.samples, size, roundTrip),
		RoundTrip:     roundTrip,
	}, nil
}

// Identity fetches the best-effort identity metadata. Only authorization
// failures matter to the caller; any other failure yields empty fields.
func (t *Transport) Identity(ctx context.Context) (data.Identity, error) {
	id := data.Identity{}
	url := strings.TrimRight(t.BaseURL, "/") + spec.IdentityURLPath
	req, err := t.newRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return id, err
	}
	resp, err := t.do(req)
	if err != nil {
		return id, err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&id); err != nil {
		return data.Identity{}, errors.Wrap(err, "cannot decode identity")
	}
	return id, nil
}

// progressReader serves an in-memory body while timestamping every
// transport read. The transport asks for the next piece once the previous
// one has been handed to the socket, so the deltas between samples track
// the pace at which the network accepted data.
type progressReader struct {
	data    []byte
	off     int
	samples []stats.ProgressSample
}

func (r *progressReader) Read(p []byte) (int, error) {
	if r.off >= len(r.data) {
		return 0, io.EOF
	}
	r.samples = append(r.samples, stats.ProgressSample{
		Bytes: int64(r.off),
		Time:  time.Now(),
	})
	n := copy(p, r.data[r.off:])
	r.off += n
	return n, nil
}
