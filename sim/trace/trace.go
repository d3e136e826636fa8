package trace

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelSwaps captures every swap decision.
	TraceLevelSwaps TraceLevel = "swaps"
	// TraceLevelAll captures swap decisions and per-slot local move counts.
	TraceLevelAll TraceLevel = "all"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:  true,
	TraceLevelSwaps: true,
	TraceLevelAll:   true,
	"":              true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// ExchangeTrace collects decision records during a tempering run.
type ExchangeTrace struct {
	Level  TraceLevel
	Swaps  []SwapRecord
	Locals []LocalRecord
}

// NewExchangeTrace creates an ExchangeTrace ready for recording.
func NewExchangeTrace(level TraceLevel) *ExchangeTrace {
	return &ExchangeTrace{
		Level:  level,
		Swaps:  make([]SwapRecord, 0),
		Locals: make([]LocalRecord, 0),
	}
}

// RecordSwap appends a swap decision record. No-op unless swaps are traced.
func (et *ExchangeTrace) RecordSwap(record SwapRecord) {
	if et == nil || (et.Level != TraceLevelSwaps && et.Level != TraceLevelAll) {
		return
	}
	et.Swaps = append(et.Swaps, record)
}

// RecordLocal appends a local-move record. No-op unless the level is all.
func (et *ExchangeTrace) RecordLocal(record LocalRecord) {
	if et == nil || et.Level != TraceLevelAll {
		return
	}
	et.Locals = append(et.Locals, record)
}
