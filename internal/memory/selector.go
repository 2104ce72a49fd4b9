package memory

// AccumulatorStrategy names the accumulation strategies selectable per stage.
type AccumulatorStrategy string

// Accumulator strategies.
const (
	// StrategyInMemory appends to a growing in-memory slice.
	StrategyInMemory AccumulatorStrategy = "in_memory"
	// StrategyHybrid starts in memory and spills to disk past a threshold.
	StrategyHybrid AccumulatorStrategy = "hybrid"
	// StrategySpillOnly writes every chunk to disk.
	StrategySpillOnly AccumulatorStrategy = "spill_only"
)

// Response captures the resource posture for a pressure level: how large
// chunks should be, how deep stage-bridge buffers may run, and which
// accumulator strategy new accumulators should use.
type Response struct {
	// ChunkSize is the target records per chunk.
	ChunkSize int
	// BufferDepth is the maximum completed chunks a bridge retains.
	BufferDepth int
	// Accumulator is the default strategy for new accumulators.
	Accumulator AccumulatorStrategy
	// RefuseInMemory indicates new in-memory accumulators must be refused.
	RefuseInMemory bool
}

// Selector maps pressure levels to resource responses, parameterized by the
// configured base chunk size, chunk floor, and maximum buffer depth.
type Selector struct {
	baseChunkSize int
	maxChunkSize  int
	minChunkSize  int
	maxDepth      int
}

// NewSelector creates a selector from pipeline configuration.
func NewSelector(baseChunkSize, maxChunkSize, minChunkSize, maxDepth int) *Selector {
	if baseChunkSize <= 0 {
		baseChunkSize = 1000
	}
	if maxChunkSize < baseChunkSize {
		maxChunkSize = baseChunkSize
	}
	if minChunkSize <= 0 {
		minChunkSize = 20
	}
	if maxDepth <= 0 {
		maxDepth = 1
	}
	return &Selector{
		baseChunkSize: baseChunkSize,
		maxChunkSize:  maxChunkSize,
		minChunkSize:  minChunkSize,
		maxDepth:      maxDepth,
	}
}

// Respond returns the resource posture for the given pressure level.
func (s *Selector) Respond(level PressureLevel) Response {
	switch level {
	case PressureOptimal:
		return Response{
			ChunkSize:   s.maxChunkSize,
			BufferDepth: s.maxDepth,
			Accumulator: StrategyInMemory,
		}
	case PressureModerate:
		return Response{
			ChunkSize:   s.baseChunkSize,
			BufferDepth: maxInt(1, s.maxDepth/2),
			Accumulator: StrategyHybrid,
		}
	case PressureHigh:
		return Response{
			ChunkSize:   maxInt(s.minChunkSize, s.baseChunkSize/2),
			BufferDepth: maxInt(1, s.maxDepth/4),
			Accumulator: StrategyHybrid,
		}
	case PressureCritical:
		return Response{
			ChunkSize:   maxInt(s.minChunkSize, s.baseChunkSize/5),
			BufferDepth: 1,
			Accumulator: StrategySpillOnly,
		}
	default: // PressureEmergency
		return Response{
			ChunkSize:      maxInt(s.minChunkSize, s.baseChunkSize/5),
			BufferDepth:    1,
			Accumulator:    StrategySpillOnly,
			RefuseInMemory: true,
		}
	}
}

// AccumulatorFor selects the accumulator strategy for the given level,
// additionally considering the estimated final size of the data when known.
// estimatedBytes <= 0 means unknown.
func (s *Selector) AccumulatorFor(level PressureLevel, estimatedBytes int64) AccumulatorStrategy {
	const (
		smallDataset = 50 * 1024 * 1024
		largeDataset = 500 * 1024 * 1024
	)
	if estimatedBytes > 0 && estimatedBytes > largeDataset {
		return StrategySpillOnly
	}
	if level >= PressureCritical {
		return StrategySpillOnly
	}
	if estimatedBytes > 0 && estimatedBytes < smallDataset && level <= PressureModerate {
		return StrategyInMemory
	}
	return s.Respond(level).Accumulator
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
