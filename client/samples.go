package client

import (
	"time"

	"github.com/Cyberes/cf-speedtest-custom/spec"
	"github.com/Cyberes/cf-speedtest-custom/stats"
)

// Sample is one measured trial. Immutable once created.
type Sample struct {
	// BitsPerSecond is the trial's rate. Zero means the rate could not be
	// computed; such samples never enter the pooled estimate.
	BitsPerSecond float64
	// Duration is how long the trial took.
	Duration time.Duration
	// PingMS is the effective latency observed on the trial, when known.
	PingMS float64
}

// bucket retains the most recent samples for one requested byte size,
// evicting the oldest once the cap is reached.
type bucket struct {
	cap     int
	samples []Sample
}

func (b *bucket) push(s Sample) {
	b.samples = append(b.samples, s)
	if len(b.samples) > b.cap {
		b.samples = b.samples[len(b.samples)-b.cap:]
	}
}

// sampleStore holds one direction's buckets, keyed by requested byte size.
// It is owned by a single running measurement and is never shared.
type sampleStore struct {
	buckets map[int64]*bucket
}

func newSampleStore() *sampleStore {
	return &sampleStore{buckets: make(map[int64]*bucket)}
}

// add records a trial sample for the given requested size, creating the
// size's bucket with capacity cap on first use.
func (st *sampleStore) add(size int64, cap int, s Sample) {
	b := st.buckets[size]
	if b == nil {
		b = &bucket{cap: cap}
		st.buckets[size] = b
	}
	b.push(s)
}

// pooled returns the bits-per-second values of every retained sample whose
// duration meets the minimum-duration filter, across all buckets.
func (st *sampleStore) pooled() []float64 {
	values := []float64{}
	for _, b := range st.buckets {
		for _, s := range b.samples {
			if s.BitsPerSecond > 0 && s.Duration >= spec.BandwidthMinRequestDuration {
				values = append(values, s.BitsPerSecond)
			}
		}
	}
	return values
}

// rate reduces the pooled samples to the direction's current estimate.
func (st *sampleStore) rate() float64 {
	return stats.Percentile(st.pooled(), spec.BandwidthPercentile)
}
