// Package stats implements the statistical reductions of the measurement
// methodology: interpolated percentiles, jitter, effective latency, and the
// per-trial and pooled bandwidth formulas. All functions are pure.
package stats

import (
	"math"
	"sort"
	"time"

	"github.com/Cyberes/cf-speedtest-custom/spec"
)

// Percentile returns the p-th percentile of values using linear
// interpolation between closest ranks, matching the vendor's reduction.
// p may be a fraction in [0, 1] or a percentage in (1, 100]. An empty
// input yields 0.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p > 1 {
		p = p / 100
	}
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	idx := float64(len(sorted)-1) * p
	lo := int(math.Floor(idx))
	frac := idx - float64(lo)
	if frac == 0 {
		return sorted[lo]
	}
	hi := lo + 1
	if hi >= len(sorted) {
		hi = len(sorted) - 1
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Jitter returns the mean absolute difference between consecutive ping
// samples. Fewer than two samples yield 0.
func Jitter(pings []float64) float64 {
	if len(pings) < 2 {
		return 0
	}
	sum := 0.0
	for i := 1; i < len(pings); i++ {
		sum += math.Abs(pings[i] - pings[i-1])
	}
	return sum / float64(len(pings)-1)
}

// EffectiveLatency subtracts the server-reported processing time from the
// observed time to first byte, approximating pure network transit time.
// Server times below spec.MinServerTiming are not trusted and count as
// zero. The result never drops below spec.PingFloorMS.
func EffectiveLatency(ttfb, serverTime time.Duration) float64 {
	serverMS := 0.0
	if serverTime >= spec.MinServerTiming {
		serverMS = durationMS(serverTime)
	}
	return math.Max(spec.PingFloorMS, durationMS(ttfb)-serverMS)
}

// BitsPerSecond computes a download trial's rate. transferBytes is the
// actual wire transfer size; when the transport could not report one,
// requestedBytes is used instead, with no correction factor in either
// case. The payload duration is floored at spec.MinPayloadDuration.
func BitsPerSecond(transferBytes, requestedBytes int64, payloadDuration time.Duration) float64 {
	bytes := transferBytes
	if bytes <= 0 {
		bytes = requestedBytes
	}
	if payloadDuration < spec.MinPayloadDuration {
		payloadDuration = spec.MinPayloadDuration
	}
	return float64(8*bytes) / payloadDuration.Seconds()
}

// ProgressSample is one (bytes sent so far, timestamp) observation taken
// while an upload body was being consumed by the transport.
type ProgressSample struct {
	Bytes int64
	Time  time.Time
}

// UploadBitsPerSecond reduces an upload trial to a single rate: the 90th
// percentile of the instantaneous rates between consecutive progress
// samples. With fewer than two samples it falls back to the whole-body
// round-trip rate.
func UploadBitsPerSecond(progress []ProgressSample, totalBytes int64, roundTrip time.Duration) float64 {
	rates := instantaneousRates(progress)
	if len(rates) == 0 {
		if roundTrip < spec.MinPayloadDuration {
			roundTrip = spec.MinPayloadDuration
		}
		return float64(8*totalBytes) / roundTrip.Seconds()
	}
	return Percentile(rates, spec.BandwidthPercentile)
}

func instantaneousRates(progress []ProgressSample) []float64 {
	rates := []float64{}
	for i := 1; i < len(progress); i++ {
		deltaBytes := progress[i].Bytes - progress[i-1].Bytes
		deltaSec := progress[i].Time.Sub(progress[i-1].Time).Seconds()
		if deltaBytes <= 0 || deltaSec <= 0 {
			continue
		}
		rates = append(rates, float64(8*deltaBytes)/deltaSec)
	}
	return rates
}

func durationMS(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
