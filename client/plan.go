package client

// Kind is the kind of a plan step.
type Kind string

// The three trial kinds.
const (
	KindLatency  Kind = "latency"
	KindDownload Kind = "download"
	KindUpload   Kind = "upload"
)

// Step is one entry of the measurement plan. Steps are immutable: the plan
// is fixed at compile time and never changed at runtime, because the exact
// schedule is part of what makes results comparable with the vendor's.
type Step struct {
	Kind Kind
	// Bytes is the payload size of each trial (download/upload only).
	Bytes int64
	// Count is the number of trials (or latency packets) in this step.
	Count int
	// BypassMinDuration disables the early-finish check for this step, used
	// for the initial estimation trial.
	BypassMinDuration bool
}

// DefaultPlan is the vendor's measurement sequence. Nominal sizes above the
// server's payload cap are kept as-is: the server clamps them and the
// client computes rates from the bytes actually transferred.
var DefaultPlan = []Step{
	{Kind: KindLatency, Count: 1},
	{Kind: KindDownload, Bytes: 100_000, Count: 1, BypassMinDuration: true},
	{Kind: KindLatency, Count: 20},
	{Kind: KindDownload, Bytes: 100_000, Count: 9},
	{Kind: KindDownload, Bytes: 1_000_000, Count: 8},
	{Kind: KindUpload, Bytes: 100_000, Count: 8},
	{Kind: KindUpload, Bytes: 1_000_000, Count: 6},
	{Kind: KindDownload, Bytes: 10_000_000, Count: 6},
	{Kind: KindUpload, Bytes: 10_000_000, Count: 4},
	{Kind: KindDownload, Bytes: 25_000_000, Count: 4},
	{Kind: KindUpload, Bytes: 25_000_000, Count: 4},
	{Kind: KindDownload, Bytes: 100_000_000, Count: 3},
	{Kind: KindUpload, Bytes: 50_000_000, Count: 3},
	{Kind: KindDownload, Bytes: 250_000_000, Count: 2},
}
