package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeProbe returns a controllable RSS value.
type fakeProbe struct {
	rss uint64
	ok  bool
}

func (p *fakeProbe) CurrentRSSBytes() (uint64, bool) {
	return p.rss, p.ok
}

func newTestGovernor(limit int64, probe Probe) *Governor {
	return NewGovernor(limit,
		WithProbe(probe),
		WithSampleInterval(time.Nanosecond),
	)
}

func TestGovernor_Levels(t *testing.T) {
	const limit = 1000

	tests := []struct {
		rss      uint64
		expected PressureLevel
	}{
		{0, PressureOptimal},
		{499, PressureOptimal},
		{500, PressureModerate},
		{699, PressureModerate},
		{700, PressureHigh},
		{849, PressureHigh},
		{850, PressureCritical},
		{949, PressureCritical},
		{950, PressureEmergency},
		{2000, PressureEmergency},
	}

	for _, tt := range tests {
		t.Run(tt.expected.String(), func(t *testing.T) {
			g := newTestGovernor(limit, &fakeProbe{rss: tt.rss, ok: true})
			assert.Equal(t, tt.expected, g.Refresh())
		})
	}
}

func TestGovernor_ZeroLimitAlwaysOptimal(t *testing.T) {
	g := newTestGovernor(0, &fakeProbe{rss: 1 << 40, ok: true})
	assert.Equal(t, PressureOptimal, g.Level())
}

func TestGovernor_MissingProbeReportsOptimal(t *testing.T) {
	g := newTestGovernor(1000, &fakeProbe{ok: false})
	assert.Equal(t, PressureOptimal, g.Refresh())
}

func TestGovernor_Transitions(t *testing.T) {
	probe := &fakeProbe{rss: 100, ok: true}
	g := newTestGovernor(1000, probe)

	assert.Equal(t, PressureOptimal, g.Refresh())
	initial := g.Transitions()

	probe.rss = 800
	assert.Equal(t, PressureHigh, g.Refresh())
	assert.Equal(t, initial+1, g.Transitions())

	probe.rss = 960
	assert.Equal(t, PressureEmergency, g.Refresh())
	assert.Equal(t, initial+2, g.Transitions())
}

func TestPressureLevel_AtLeast(t *testing.T) {
	assert.True(t, PressureCritical.AtLeast(PressureHigh))
	assert.True(t, PressureHigh.AtLeast(PressureHigh))
	assert.False(t, PressureModerate.AtLeast(PressureHigh))
}

func TestProcessProbe_ReportsRSS(t *testing.T) {
	probe := NewProcessProbe()
	rss, ok := probe.CurrentRSSBytes()
	if !ok {
		t.Skip("RSS probe unsupported on this platform")
	}
	assert.Greater(t, rss, uint64(0))
}
