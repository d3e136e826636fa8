// Package trace provides decision-trace recording for replica-exchange runs.
// This package has no dependencies on sim/; it stores pure data types.
package trace

// SwapRecord captures a single swap decision between adjacent ladder slots.
type SwapRecord struct {
	Iteration   int
	Lower       int // slot index of the colder member; the pair is (Lower, Lower+1)
	EnergyLower float64
	EnergyUpper float64
	Probability float64
	Accepted    bool
}

// LocalRecord captures the local-move outcome of one slot in one iteration.
// Only produced when the engine applies acceptance itself.
type LocalRecord struct {
	Iteration int
	Slot      int
	Accepted  int
	Rejected  int
}
