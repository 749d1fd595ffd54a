package handler

import (
	"io"
	"net/http"

	"github.com/Cyberes/cf-speedtest-custom/logging"
	"github.com/Cyberes/cf-speedtest-custom/spec"
)

// drain consumes the request body and returns how many bytes it read. When
// the client declared a plausible length the body is read eagerly in one
// pass, relying on the transport's own backpressure; otherwise it is copied
// into a discard sink through a buffer large enough that the sink never
// becomes the measured bottleneck. All read errors are swallowed.
func drain(r *http.Request) int64 {
	if r.ContentLength >= 0 && r.ContentLength <= spec.MaxRequestBytes {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			logging.Logger.WithError(err).Debug("upload: body truncated")
		}
		return int64(len(body))
	}
	// writerOnly hides io.Discard's ReadFrom so CopyBuffer actually uses
	// the large buffer instead of Discard's small internal one.
	n, err := io.CopyBuffer(writerOnly{io.Discard}, r.Body, make([]byte, spec.UploadReadBufferSize))
	if err != nil {
		logging.Logger.WithError(err).Debug("upload: body truncated")
	}
	return n
}

type writerOnly struct {
	io.Writer
}
