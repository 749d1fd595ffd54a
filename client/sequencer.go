package client

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/Cyberes/cf-speedtest-custom/data"
	"github.com/Cyberes/cf-speedtest-custom/logging"
	"github.com/Cyberes/cf-speedtest-custom/spec"
	"github.com/Cyberes/cf-speedtest-custom/stats"
)

// Client-side pacing between requests, kept from the vendor client so the
// request schedule matches theirs.
const (
	requestDelay = 100 * time.Millisecond
	stepDelay    = 500 * time.Millisecond
)

// ErrAborted is returned by Run when the measurement was canceled. An
// aborted run carries no final numbers.
var ErrAborted = errors.New("measurement aborted")

// State is the lifecycle state of a Sequencer.
type State int32

// Sequencer states.
const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateAborted
)

// Progress is one progress event, emitted synchronously after every
// completed trial on the goroutine driving the measurement.
type Progress struct {
	// Kind of the step that produced the event.
	Kind Kind
	// StepProgress is the fraction of the current step completed, in (0, 1].
	StepProgress float64
	// PingMS and JitterMS are the running latency reductions.
	PingMS   float64
	JitterMS float64
	// DownloadBPS and UploadBPS are the running pooled rates. Zero until
	// the direction has samples.
	DownloadBPS float64
	UploadBPS   float64
}

// Sequencer walks the fixed measurement plan, one request in flight at a
// time. Strict sequencing is a methodology requirement: concurrent trials
// would contend with each other and corrupt the bandwidth numbers.
type Sequencer struct {
	// Transport performs the individual trials.
	Transport *Transport
	// Plan is the ordered step sequence. Nil means DefaultPlan.
	Plan []Step
	// OnProgress, when set, receives progress events.
	OnProgress func(Progress)
	// Paced disables the vendor's inter-request delays when false. Tests
	// turn pacing off; real runs keep it on to avoid rate limiting.
	Paced bool

	state  int32
	cancel atomic.Value // context.CancelFunc
}

// NewSequencer returns a paced sequencer over the default plan.
func NewSequencer(t *Transport) *Sequencer {
	return &Sequencer{Transport: t, Paced: true}
}

// State returns the current lifecycle state.
func (s *Sequencer) State() State {
	return State(atomic.LoadInt32(&s.state))
}

func (s *Sequencer) setState(st State) {
	atomic.StoreInt32(&s.state, int32(st))
}

// Abort stops the run: no further requests are issued and any in-flight
// exchange is canceled down to the transport, so sockets actually close.
// Callable from any goroutine and any state.
func (s *Sequencer) Abort() {
	if cancel, ok := s.cancel.Load().(context.CancelFunc); ok && cancel != nil {
		cancel()
	}
}

func (s *Sequencer) emit(p Progress) {
	if s.OnProgress != nil {
		s.OnProgress(p)
	}
}

func (s *Sequencer) pause(ctx context.Context, d time.Duration) error {
	if !s.Paced {
		// Still honor cancellation between requests.
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// run holds the mutable state of one measurement. It is owned by the
// goroutine inside Run and destroyed when the run ends.
type run struct {
	latencies    []float64
	down         *sampleStore
	up           *sampleStore
	finishedDown bool
	finishedUp   bool
}

// Run executes the plan and returns the reduced result. Trial-level
// transport failures are skipped; an authorization failure or a cancel of
// ctx ends the run (the latter with ErrAborted).
func (s *Sequencer) Run(ctx context.Context) (*data.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancel.Store(cancel)
	s.setState(StateRunning)

	result, err := s.runPlan(ctx)
	if err != nil {
		s.setState(StateAborted)
		return nil, err
	}
	s.setState(StateCompleted)
	return result, nil
}

func (s *Sequencer) runPlan(ctx context.Context) (*data.Result, error) {
	result := data.NewResult()

	identity, err := s.Transport.Identity(ctx)
	switch {
	case err == nil:
		result.Identity = identity
	case IsAuthError(err):
		return nil, err
	case ctx.Err() != nil:
		return nil, errors.WithMessage(ErrAborted, ctx.Err().Error())
	default:
		// Identity is best-effort metadata; the run continues without it.
		logging.Logger.WithError(err).Debug("sequencer: identity lookup failed")
	}

	st := &run{
		down: newSampleStore(),
		up:   newSampleStore(),
	}

	plan := s.Plan
	if plan == nil {
		plan = DefaultPlan
	}
	for i, step := range plan {
		if ctx.Err() != nil {
			return nil, errors.WithMessage(ErrAborted, ctx.Err().Error())
		}
		// A direction marked early-finished is never revisited.
		if step.Kind == KindDownload && st.finishedDown {
			continue
		}
		if step.Kind == KindUpload && st.finishedUp {
			continue
		}
		if i > 0 {
			if err := s.pause(ctx, stepDelay); err != nil {
				return nil, errors.WithMessage(ErrAborted, err.Error())
			}
		}
		var err error
		switch step.Kind {
		case KindLatency:
			err = s.latencyStep(ctx, step, st)
		case KindDownload:
			err = s.downloadStep(ctx, step, st)
		case KindUpload:
			err = s.uploadStep(ctx, step, st)
		}
		if err != nil {
			return nil, err
		}
	}

	result.EndTime = time.Now().UTC()
	result.DownloadSpeed = st.down.rate()
	result.UploadSpeed = st.up.rate()
	result.PingMS = stats.Percentile(st.latencies, spec.LatencyPercentile)
	result.JitterMS = stats.Jitter(st.latencies)
	result.Latencies = st.latencies
	return result, nil
}

// trialErr classifies a trial failure: authorization failures and aborts
// end the run, anything else merely skips forward in the plan.
func trialErr(ctx context.Context, err error, what string) (fatal error, skip bool) {
	if err == nil {
		return nil, false
	}
	if IsAuthError(err) {
		return err, false
	}
	if ctx.Err() != nil {
		return errors.WithMessage(ErrAborted, ctx.Err().Error()), false
	}
	logging.Logger.WithError(err).Debug(what)
	return nil, true
}

func (s *Sequencer) latencyStep(ctx context.Context, step Step, st *run) error {
	for p := 0; p < step.Count; p++ {
		if p > 0 {
			if err := s.pause(ctx, requestDelay); err != nil {
				return errors.WithMessage(ErrAborted, err.Error())
			}
		}
		ping, err := s.Transport.LatencyProbe(ctx)
		if fatal, skip := trialErr(ctx, err, "sequencer: latency probe failed"); fatal != nil {
			return fatal
		} else if skip {
			// A failed probe abandons the rest of this step.
			return nil
		}
		st.latencies = append(st.latencies, ping)
		s.emit(Progress{
			Kind:         KindLatency,
			StepProgress: float64(p+1) / float64(step.Count),
			PingMS:       stats.Percentile(st.latencies, spec.LatencyPercentile),
			JitterMS:     stats.Jitter(st.latencies),
			DownloadBPS:  st.down.rate(),
			UploadBPS:    st.up.rate(),
		})
	}
	return nil
}

func (s *Sequencer) downloadStep(ctx context.Context, step Step, st *run) error {
	minDuration := time.Duration(math.MaxInt64)
	sampled := false
	for c := 0; c < step.Count; c++ {
		if c > 0 {
			if err := s.pause(ctx, requestDelay); err != nil {
				return errors.WithMessage(ErrAborted, err.Error())
			}
		}
		m, err := s.Transport.DownloadTrial(ctx, step.Bytes)
		if fatal, skip := trialErr(ctx, err, "sequencer: download trial failed"); fatal != nil {
			return fatal
		} else if skip {
			break
		}
		sampled = true
		if m.PayloadDuration < minDuration {
			minDuration = m.PayloadDuration
		}
		st.down.add(step.Bytes, step.Count, Sample{
			BitsPerSecond: stats.BitsPerSecond(m.TransferBytes, step.Bytes, m.PayloadDuration),
			Duration:      m.PayloadDuration,
			PingMS:        m.PingMS,
		})
		s.emit(Progress{
			Kind:         KindDownload,
			StepProgress: float64(c+1) / float64(step.Count),
			PingMS:       stats.Percentile(st.latencies, spec.LatencyPercentile),
			JitterMS:     stats.Jitter(st.latencies),
			DownloadBPS:  st.down.rate(),
			UploadBPS:    st.up.rate(),
		})
	}
	// Once every trial of a step is slower than the finish threshold, the
	// link is bandwidth-limited and larger download trials are pointless.
	if !step.BypassMinDuration && sampled && minDuration > spec.BandwidthFinishRequestDuration {
		st.finishedDown = true
	}
	return nil
}

func (s *Sequencer) uploadStep(ctx context.Context, step Step, st *run) error {
	minDuration := time.Duration(math.MaxInt64)
	sampled := false
	for c := 0; c < step.Count; c++ {
		if c > 0 {
			if err := s.pause(ctx, requestDelay); err != nil {
				return errors.WithMessage(ErrAborted, err.Error())
			}
		}
		m, err := s.Transport.UploadTrial(ctx, step.Bytes)
		if fatal, skip := trialErr(ctx, err, "sequencer: upload trial failed"); fatal != nil {
			return fatal
		} else if skip {
			break
		}
		sampled = true
		if m.RoundTrip < minDuration {
			minDuration = m.RoundTrip
		}
		st.up.add(step.Bytes, step.Count, Sample{
			BitsPerSecond: m.BitsPerSecond,
			Duration:      m.RoundTrip,
		})
		s.emit(Progress{
			Kind:         KindUpload,
			StepProgress: float64(c+1) / float64(step.Count),
			PingMS:       stats.Percentile(st.latencies, spec.LatencyPercentile),
			JitterMS:     stats.Jitter(st.latencies),
			DownloadBPS:  st.down.rate(),
			UploadBPS:    st.up.rate(),
		})
	}
	if !step.BypassMinDuration && sampled && minDuration > spec.BandwidthFinishRequestDuration {
		st.finishedUp = true
	}
	return nil
}
