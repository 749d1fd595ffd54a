// Package spec contains the constants of the measurement protocol. The
// thresholds and percentiles mirror the vendor's published test so that
// results computed here are numerically comparable with theirs.
package spec

import "time"

// DownloadURLPath serves deterministic byte payloads.
const DownloadURLPath = "/__down"

// UploadURLPath sinks uploaded bodies.
const UploadURLPath = "/__up"

// PingURLPath answers a zero-length round-trip probe.
const PingURLPath = "/ping"

// IdentityURLPath reports best-effort client identity metadata.
const IdentityURLPath = "/getIP"

// MaxRequestBytes is the hard cap on a single download payload. Larger
// requests are truncated, never rejected.
const MaxRequestBytes = 25 * 1024 * 1024

// ChunkSize is the size of the precomputed payload block and of each
// streamed download chunk.
const ChunkSize = 256 * 1024

// ChunksPerBatch is how many chunks the download responder writes before
// yielding to the scheduler and re-checking for cancellation.
const ChunksPerBatch = 8

// UploadReadBufferSize is the sink-side read buffer for bodies of unknown
// length. It is large so the sink is never the bottleneck of an upload
// measurement.
const UploadReadBufferSize = 32 * 1024 * 1024

// ServerTimingHeader carries the server-side processing duration in the
// standard Server-Timing format ("cfst;dur=<ms>").
const ServerTimingHeader = "Server-Timing"

// MinServerTiming is the smallest server-reported processing duration the
// client trusts. Values below it are treated as zero.
const MinServerTiming = time.Millisecond

// BandwidthFinishRequestDuration is the early-finish threshold: once every
// trial of a step takes longer than this, larger trials in the same
// direction are pointless and are skipped.
const BandwidthFinishRequestDuration = 1000 * time.Millisecond

// BandwidthMinRequestDuration is the minimum trial duration for a sample to
// enter the pooled bandwidth estimate.
const BandwidthMinRequestDuration = 10 * time.Millisecond

// MinPayloadDuration floors measured payload times to keep rate divisions
// sane on very fast links.
const MinPayloadDuration = time.Millisecond

// BandwidthPercentile is applied to pooled per-trial rates.
const BandwidthPercentile = 0.9

// LatencyPercentile is applied to the latency sample list.
const LatencyPercentile = 0.5

// PingFloorMS is the lowest reportable ping in milliseconds.
const PingFloorMS = 0.01
