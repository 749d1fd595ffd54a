package stats

import (
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func TestPercentileEmpty(t *testing.T) {
	assert.Equal(t, Percentile(nil, 0.5), 0.0)
	assert.Equal(t, Percentile([]float64{}, 0.9), 0.0)
	assert.Equal(t, Percentile([]float64{}, 0.0), 0.0)
}

func TestPercentileMedianOddLength(t *testing.T) {
	assert.Equal(t, Percentile([]float64{3, 1, 2}, 0.5), 2.0)
	assert.Equal(t, Percentile([]float64{9, 7, 5, 3, 1}, 0.5), 5.0)
}

func TestPercentileMedianEvenLength(t *testing.T) {
	assert.Equal(t, Percentile([]float64{1, 2, 3, 4}, 0.5), 2.5)
	assert.Equal(t, Percentile([]float64{10, 20}, 0.5), 15.0)
}

func TestPercentileInterpolates(t *testing.T) {
	// idx = 3 * 0.9 = 2.7 -> 30 + 0.7*10
	assert.Equal(t, Percentile([]float64{10, 20, 30, 40}, 0.9), 37.0)
}

func TestPercentileOrderInvariant(t *testing.T) {
	a := Percentile([]float64{5, 1, 4, 2, 3}, 0.75)
	b := Percentile([]float64{1, 2, 3, 4, 5}, 0.75)
	assert.Equal(t, a, b)
}

func TestPercentileAcceptsPercentageForm(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5}
	assert.Equal(t, Percentile(xs, 50), Percentile(xs, 0.5))
	assert.Equal(t, Percentile(xs, 90), Percentile(xs, 0.9))
}

func TestPercentileExtremes(t *testing.T) {
	xs := []float64{7, 3, 9, 1}
	assert.Equal(t, Percentile(xs, 0), 1.0)
	assert.Equal(t, Percentile(xs, 1), 9.0)
}

func TestJitter(t *testing.T) {
	assert.Equal(t, Jitter(nil), 0.0)
	assert.Equal(t, Jitter([]float64{42}), 0.0)
	assert.Equal(t, Jitter([]float64{10, 15, 5}), 7.5)
	assert.Equal(t, Jitter([]float64{20, 20, 20, 20}), 0.0)
}

func TestEffectiveLatency(t *testing.T) {
	assert.Equal(t, EffectiveLatency(50*time.Millisecond, 0), 50.0)
	// Floor applies when the server took longer than the whole exchange.
	assert.Equal(t, EffectiveLatency(5*time.Millisecond, 10*time.Millisecond), 0.01)
	assert.Equal(t, EffectiveLatency(50*time.Millisecond, 10*time.Millisecond), 40.0)
	// Sub-millisecond server timings are not trusted.
	assert.Equal(t, EffectiveLatency(50*time.Millisecond, 900*time.Microsecond), 50.0)
}

func TestBitsPerSecond(t *testing.T) {
	assert.Equal(t, BitsPerSecond(1_000_000, 0, time.Second), 8_000_000.0)
	// Falls back to the requested size when the transfer size is unknown.
	assert.Equal(t, BitsPerSecond(0, 500_000, time.Second), 4_000_000.0)
	// Duration floor avoids division blow-ups.
	assert.Equal(t, BitsPerSecond(1000, 0, 0), BitsPerSecond(1000, 0, time.Millisecond))
}

func TestUploadBitsPerSecondFallback(t *testing.T) {
	// One sample is not enough for pairwise rates: whole-body rate, no halving.
	got := UploadBitsPerSecond([]ProgressSample{{Bytes: 0, Time: time.Now()}}, 1_000_000, time.Second)
	assert.Equal(t, got, 8_000_000.0)
}

func TestUploadBitsPerSecondPercentile(t *testing.T) {
	t0 := time.Unix(0, 0)
	// Three equal 100ms intervals moving 125000 bytes each: 10 Mbit/s flat.
	progress := []ProgressSample{
		{Bytes: 0, Time: t0},
		{Bytes: 125_000, Time: t0.Add(100 * time.Millisecond)},
		{Bytes: 250_000, Time: t0.Add(200 * time.Millisecond)},
		{Bytes: 375_000, Time: t0.Add(300 * time.Millisecond)},
	}
	assert.Equal(t, UploadBitsPerSecond(progress, 375_000, time.Second), 10_000_000.0)
}

func TestUploadBitsPerSecondSkipsNonPositiveDeltas(t *testing.T) {
	t0 := time.Unix(0, 0)
	progress := []ProgressSample{
		{Bytes: 0, Time: t0},
		{Bytes: 0, Time: t0.Add(50 * time.Millisecond)}, // no bytes moved
		{Bytes: 125_000, Time: t0.Add(150 * time.Millisecond)},
	}
	assert.Equal(t, UploadBitsPerSecond(progress, 125_000, time.Second), 10_000_000.0)
}
