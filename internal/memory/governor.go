// Package memory provides the process-wide memory governor that classifies
// resident memory against a configured limit into pressure levels, and the
// strategy responses keyed to those levels.
//
// Observers poll the current level at chunk boundaries rather than receiving
// callbacks; the level is an atomically updated value read lock-free.
package memory

import (
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/jmylchreest/m3u-proxy/internal/observability"
)

// PressureLevel classifies current resident memory against the configured limit.
type PressureLevel int32

// Pressure levels, ordered from least to most constrained.
const (
	// PressureOptimal: usage below 50% of the limit.
	PressureOptimal PressureLevel = iota
	// PressureModerate: usage below 70%.
	PressureModerate
	// PressureHigh: usage below 85%.
	PressureHigh
	// PressureCritical: usage below 95%.
	PressureCritical
	// PressureEmergency: usage at or above 95%.
	PressureEmergency
)

// String returns the level name.
func (l PressureLevel) String() string {
	switch l {
	case PressureOptimal:
		return "optimal"
	case PressureModerate:
		return "moderate"
	case PressureHigh:
		return "high"
	case PressureCritical:
		return "critical"
	case PressureEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// AtLeast returns true if the level is at or above the given level.
func (l PressureLevel) AtLeast(other PressureLevel) bool {
	return l >= other
}

// classify maps a usage percentage to a pressure level.
func classify(usagePct float64) PressureLevel {
	switch {
	case usagePct < 0.50:
		return PressureOptimal
	case usagePct < 0.70:
		return PressureModerate
	case usagePct < 0.85:
		return PressureHigh
	case usagePct < 0.95:
		return PressureCritical
	default:
		return PressureEmergency
	}
}

// Probe reports the process resident set size.
// Implementations return ok=false on unsupported platforms, in which case the
// governor reports Optimal.
type Probe interface {
	CurrentRSSBytes() (uint64, bool)
}

// ProcessProbe reads the current process RSS via gopsutil.
type ProcessProbe struct {
	proc *process.Process
}

// NewProcessProbe creates a probe for the current process.
func NewProcessProbe() *ProcessProbe {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return &ProcessProbe{}
	}
	return &ProcessProbe{proc: proc}
}

// CurrentRSSBytes returns the resident set size of the process.
func (p *ProcessProbe) CurrentRSSBytes() (uint64, bool) {
	if p.proc == nil {
		return 0, false
	}
	info, err := p.proc.MemoryInfo()
	if err != nil || info == nil {
		return 0, false
	}
	return info.RSS, true
}

// Governor tracks resident memory against a configured limit and publishes
// the current pressure level. It is safe for concurrent use; readers are
// lock-free.
type Governor struct {
	limitBytes     int64
	sampleInterval time.Duration
	probe          Probe
	logger         *slog.Logger

	level       atomic.Int32
	lastSample  atomic.Int64 // unix nanos of the last probe
	currentRSS  atomic.Uint64
	transitions atomic.Uint64

	sampleMu sync.Mutex
}

// Option configures a Governor.
type Option func(*Governor)

// WithProbe overrides the RSS probe (used in tests).
func WithProbe(p Probe) Option {
	return func(g *Governor) { g.probe = p }
}

// WithLogger sets the governor logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Governor) { g.logger = l }
}

// WithSampleInterval sets the minimum time between RSS probes.
func WithSampleInterval(d time.Duration) Option {
	return func(g *Governor) {
		if d > 0 {
			g.sampleInterval = d
		}
	}
}

// NewGovernor creates a governor with the given memory limit in bytes.
// A zero limit disables pressure tracking; the governor always reports Optimal.
func NewGovernor(limitBytes int64, opts ...Option) *Governor {
	g := &Governor{
		limitBytes:     limitBytes,
		sampleInterval: time.Second,
		probe:          NewProcessProbe(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Level returns the current pressure level, refreshing the sample if the
// sample interval has elapsed. Safe to call from hot paths: between samples
// it is a single atomic load.
func (g *Governor) Level() PressureLevel {
	g.maybeSample()
	return PressureLevel(g.level.Load())
}

// CurrentRSS returns the most recently sampled resident set size in bytes.
func (g *Governor) CurrentRSS() uint64 {
	return g.currentRSS.Load()
}

// Limit returns the configured memory limit in bytes (0 = disabled).
func (g *Governor) Limit() int64 {
	return g.limitBytes
}

// Transitions returns the number of level transitions observed.
func (g *Governor) Transitions() uint64 {
	return g.transitions.Load()
}

// Refresh forces an immediate RSS sample and returns the resulting level.
func (g *Governor) Refresh() PressureLevel {
	g.sample()
	return PressureLevel(g.level.Load())
}

// maybeSample refreshes the level if the sample interval has elapsed.
func (g *Governor) maybeSample() {
	if g.limitBytes <= 0 {
		return
	}
	now := time.Now().UnixNano()
	last := g.lastSample.Load()
	if now-last < g.sampleInterval.Nanoseconds() {
		return
	}
	// A single sampler at a time; others keep the stale value.
	if !g.lastSample.CompareAndSwap(last, now) {
		return
	}
	g.sample()
}

// sample probes RSS and updates the published level.
func (g *Governor) sample() {
	if g.limitBytes <= 0 {
		g.level.Store(int32(PressureOptimal))
		return
	}

	g.sampleMu.Lock()
	defer g.sampleMu.Unlock()

	rss, ok := g.probe.CurrentRSSBytes()
	if !ok {
		// Probe unavailable on this platform: report Optimal.
		g.level.Store(int32(PressureOptimal))
		return
	}
	g.currentRSS.Store(rss)

	usagePct := float64(rss) / float64(g.limitBytes)
	next := classify(usagePct)
	prev := PressureLevel(g.level.Swap(int32(next)))

	observability.MemoryPressureLevel.Set(float64(next))

	if next != prev {
		g.transitions.Add(1)
		if g.logger != nil {
			g.logger.Info("memory pressure level changed",
				slog.String("from", prev.String()),
				slog.String("to", next.String()),
				slog.Uint64("rss_bytes", rss),
				slog.Int64("limit_bytes", g.limitBytes),
			)
		}
	}
}
