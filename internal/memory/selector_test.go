package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelector_Respond(t *testing.T) {
	s := NewSelector(1000, 2000, 20, 8)

	tests := []struct {
		level       PressureLevel
		chunkSize   int
		bufferDepth int
		strategy    AccumulatorStrategy
		refuse      bool
	}{
		{PressureOptimal, 2000, 8, StrategyInMemory, false},
		{PressureModerate, 1000, 4, StrategyHybrid, false},
		{PressureHigh, 500, 2, StrategyHybrid, false},
		{PressureCritical, 200, 1, StrategySpillOnly, false},
		{PressureEmergency, 200, 1, StrategySpillOnly, true},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			resp := s.Respond(tt.level)
			assert.Equal(t, tt.chunkSize, resp.ChunkSize)
			assert.Equal(t, tt.bufferDepth, resp.BufferDepth)
			assert.Equal(t, tt.strategy, resp.Accumulator)
			assert.Equal(t, tt.refuse, resp.RefuseInMemory)
		})
	}
}

func TestSelector_ChunkFloor(t *testing.T) {
	s := NewSelector(50, 100, 20, 4)

	// base/5 would be 10; the floor keeps it at 20.
	resp := s.Respond(PressureEmergency)
	assert.Equal(t, 20, resp.ChunkSize)
}

func TestSelector_AccumulatorFor(t *testing.T) {
	s := NewSelector(1000, 2000, 20, 8)

	const (
		small = 10 * 1024 * 1024
		huge  = 600 * 1024 * 1024
	)

	// Small datasets stay in memory at low pressure.
	assert.Equal(t, StrategyInMemory, s.AccumulatorFor(PressureOptimal, small))
	assert.Equal(t, StrategyInMemory, s.AccumulatorFor(PressureModerate, small))

	// Large datasets always spill.
	assert.Equal(t, StrategySpillOnly, s.AccumulatorFor(PressureOptimal, huge))

	// Critical and above always spill.
	assert.Equal(t, StrategySpillOnly, s.AccumulatorFor(PressureCritical, small))

	// Unknown size follows the level default.
	assert.Equal(t, StrategyInMemory, s.AccumulatorFor(PressureOptimal, 0))
	assert.Equal(t, StrategyHybrid, s.AccumulatorFor(PressureHigh, 0))
}
