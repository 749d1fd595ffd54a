// Package handler implements the speedtest server endpoints: the chunked
// download responder, the upload sink, the ping probe, and the identity
// report. Handlers share no mutable state; the payload block is immutable
// and safe for concurrent reads.
package handler

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Cyberes/cf-speedtest-custom/data"
	"github.com/Cyberes/cf-speedtest-custom/geoip"
	"github.com/Cyberes/cf-speedtest-custom/logging"
	"github.com/Cyberes/cf-speedtest-custom/metrics"
	"github.com/Cyberes/cf-speedtest-custom/payload"
	"github.com/Cyberes/cf-speedtest-custom/spec"
)

// Handler bundles the speedtest endpoints.
type Handler struct {
	// Colo is the location code reported by the identity endpoint.
	Colo string
	// Geo resolves country and operator for the identity endpoint. May be
	// nil, in which case those fields are empty.
	Geo *geoip.Resolver
}

// Register installs the instrumented endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle(spec.DownloadURLPath, instrument("down", http.HandlerFunc(h.Download)))
	mux.Handle(spec.UploadURLPath, instrument("up", http.HandlerFunc(h.Upload)))
	mux.Handle(spec.PingURLPath, instrument("ping", http.HandlerFunc(h.Ping)))
	mux.Handle(spec.IdentityURLPath, instrument("identity", http.HandlerFunc(h.Identity)))
}

func instrument(endpoint string, next http.Handler) http.Handler {
	return promhttp.InstrumentHandlerInFlight(
		metrics.ActiveRequests.WithLabelValues(endpoint),
		promhttp.InstrumentHandlerDuration(
			metrics.RequestDuration.MustCurryWith(prometheus.Labels{"endpoint": endpoint}),
			promhttp.InstrumentHandlerCounter(
				metrics.RequestCount.MustCurryWith(prometheus.Labels{"endpoint": endpoint}),
				next)))
}

// requestedBytes normalizes the bytes parameter: anything unparsable or
// negative becomes 0 and values above the cap are truncated. The clamp is a
// cost control, not a protocol error, so no request ever fails because of
// its size.
func requestedBytes(raw string) int64 {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	if n > spec.MaxRequestBytes {
		return spec.MaxRequestBytes
	}
	return n
}

// setServerTiming attaches the server-side processing duration. Must be
// called before the first body write. The duration is O(1) in the payload
// size because the payload content is precomputed.
func setServerTiming(w http.ResponseWriter, start time.Time) {
	ms := float64(time.Since(start)) / float64(time.Millisecond)
	w.Header().Set(spec.ServerTimingHeader, fmt.Sprintf("cfst;dur=%.3f", ms))
}

// Download serves exactly the requested number of pattern bytes. Small
// requests go out in a single write; larger ones are streamed in chunks
// with periodic yields so one big download cannot starve other
// connections, and with a cancellation check so an aborted peer stops
// chunk production within one batch.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	n := requestedBytes(r.URL.Query().Get("bytes"))

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(n, 10))
	setServerTiming(w, start)
	w.WriteHeader(http.StatusOK)

	block := payload.Block()
	if n <= spec.ChunkSize {
		sent, _ := w.Write(block[:n])
		metrics.BytesTransferred.WithLabelValues("download").Add(float64(sent))
		return
	}

	flusher, _ := w.(http.Flusher)
	ctx := r.Context()
	var sent int64
	for remaining := n; remaining > 0; {
		for batch := 0; batch < spec.ChunksPerBatch && remaining > 0; batch++ {
			select {
			case <-ctx.Done():
				// Peer went away or the exchange was aborted. Not an
				// error: the transport reports the truncation on its own
				// terms.
				metrics.BytesTransferred.WithLabelValues("download").Add(float64(sent))
				return
			default:
			}
			chunk := block
			if remaining < int64(len(chunk)) {
				chunk = chunk[:remaining]
			}
			written, err := w.Write(chunk)
			sent += int64(written)
			if err != nil {
				logging.Logger.WithError(err).Debug("download: write interrupted")
				metrics.BytesTransferred.WithLabelValues("download").Add(float64(sent))
				return
			}
			remaining -= int64(written)
		}
		if flusher != nil {
			flusher.Flush()
		}
		// Give other connections a turn between batches.
		runtime.Gosched()
	}
	metrics.BytesTransferred.WithLabelValues("download").Add(float64(sent))
}

// Upload drains and discards the request body as fast as possible so that
// sink-side backpressure never shows up in the client's measured rate.
// Read errors are swallowed: upload timing correctness is the client's
// responsibility, and the response is success whenever the exchange ends.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	drained := drain(r)
	metrics.BytesTransferred.WithLabelValues("upload").Add(float64(drained))
	w.WriteHeader(http.StatusOK)
}

// Ping answers a zero-length response carrying only the server timing, for
// lightweight round-trip probes.
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	w.Header().Set("Content-Length", "0")
	setServerTiming(w, start)
	w.WriteHeader(http.StatusOK)
}

// Identity reports best-effort client metadata. Fields that cannot be
// resolved stay empty; the endpoint itself never fails.
func (h *Handler) Identity(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	id := data.Identity{
		IP:   ip.String(),
		Colo: h.Colo,
	}
	if ip == nil {
		id.IP = ""
	}
	id.Country = h.Geo.Country(ip)
	id.Org = h.Geo.Org(ip)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(&id); err != nil {
		logging.Logger.WithError(err).Debug("identity: write interrupted")
	}
}

func clientIP(r *http.Request) net.IP {
	// Behind a proxy the remote address is the proxy's; prefer the
	// forwarded client address when one is present.
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		for i := 0; i < len(fwd); i++ {
			if fwd[i] == ',' {
				fwd = fwd[:i]
				break
			}
		}
		if ip := net.ParseIP(fwd); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return net.ParseIP(r.RemoteAddr)
	}
	return net.ParseIP(host)
}
