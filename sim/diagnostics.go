package sim

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrNoData is returned by history queries on a slot with nothing recorded.
var ErrNoData = errors.New("sim: no recorded data")

// Pair identifies two adjacent ladder slots, I < J.
type Pair struct {
	I, J int
}

func (p Pair) String() string { return fmt.Sprintf("(%d,%d)", p.I, p.J) }

// PairStats counts swap attempts between one pair of adjacent slots.
type PairStats struct {
	Pair      Pair `json:"pair"`
	Attempted int  `json:"attempted"`
	Accepted  int  `json:"accepted"`
}

// Rate returns Accepted/Attempted, or NaN when nothing was attempted.
func (p PairStats) Rate() float64 {
	if p.Attempted == 0 {
		return math.NaN()
	}
	return float64(p.Accepted) / float64(p.Attempted)
}

// Histogram is a binned energy distribution. len(Edges) == len(Counts)+1;
// bin k covers [Edges[k], Edges[k+1]).
type Histogram struct {
	Edges  []float64
	Counts []float64
}

// SwapDiagnostics accumulates swap counters and per-slot histories for one engine.
// It is written only from the coordinating goroutine.
type SwapDiagnostics[S any] struct {
	pairs    []PairStats
	energies [][]float64
	states   map[int][]S
	limit    int
}

func newSwapDiagnostics[S any](m int, trajectorySlots []int, limit int) *SwapDiagnostics[S] {
	d := &SwapDiagnostics[S]{
		pairs:    make([]PairStats, m-1),
		energies: make([][]float64, m),
		states:   make(map[int][]S, len(trajectorySlots)),
		limit:    limit,
	}
	for i := range d.pairs {
		d.pairs[i].Pair = Pair{I: i, J: i + 1}
	}
	for _, slot := range trajectorySlots {
		d.states[slot] = nil
	}
	return d
}

// Reset clears all counters and histories.
func (d *SwapDiagnostics[S]) Reset() {
	for i := range d.pairs {
		d.pairs[i].Attempted, d.pairs[i].Accepted = 0, 0
	}
	for i := range d.energies {
		d.energies[i] = nil
	}
	for slot := range d.states {
		d.states[slot] = nil
	}
}

func (d *SwapDiagnostics[S]) recordSwap(i int, accepted bool) {
	d.pairs[i].Attempted++
	if accepted {
		d.pairs[i].Accepted++
	}
}

func (d *SwapDiagnostics[S]) recordIteration(replicas []*Replica[S]) {
	for i, r := range replicas {
		d.energies[i] = appendBounded(d.energies[i], r.energy, d.limit)
		if hist, ok := d.states[i]; ok {
			d.states[i] = appendBounded(hist, r.state, d.limit)
		}
	}
}

// Attempted returns the total number of swap attempts across all pairs.
func (d *SwapDiagnostics[S]) Attempted() int {
	total := 0
	for _, p := range d.pairs {
		total += p.Attempted
	}
	return total
}

// Accepted returns the total number of accepted swaps across all pairs.
func (d *SwapDiagnostics[S]) Accepted() int {
	total := 0
	for _, p := range d.pairs {
		total += p.Accepted
	}
	return total
}

// GlobalAcceptanceRate returns sum(accepted)/sum(attempted), NaN before the first attempt.
func (d *SwapDiagnostics[S]) GlobalAcceptanceRate() float64 {
	attempted := d.Attempted()
	if attempted == 0 {
		return math.NaN()
	}
	return float64(d.Accepted()) / float64(attempted)
}

// PairAcceptanceRates maps every adjacent pair to its acceptance rate (NaN if unattempted).
func (d *SwapDiagnostics[S]) PairAcceptanceRates() map[Pair]float64 {
	rates := make(map[Pair]float64, len(d.pairs))
	for _, p := range d.pairs {
		rates[p.Pair] = p.Rate()
	}
	return rates
}

// PairStats returns a copy of the per-pair counters ordered by pair.
func (d *SwapDiagnostics[S]) PairStats() []PairStats {
	out := make([]PairStats, len(d.pairs))
	copy(out, d.pairs)
	return out
}

// Energies returns the recorded per-iteration energies of a ladder slot, oldest first.
func (d *SwapDiagnostics[S]) Energies(replicaIndex int) ([]float64, error) {
	if replicaIndex < 0 || replicaIndex >= len(d.energies) {
		return nil, fmt.Errorf("replica index %d out of range [0,%d)", replicaIndex, len(d.energies))
	}
	window := tail(d.energies[replicaIndex], d.limit)
	out := make([]float64, len(window))
	copy(out, window)
	return out, nil
}

// Trajectory returns the recorded states of a slot, oldest first. Only slots
// listed in Config.TrajectoryReplicas are recorded.
func (d *SwapDiagnostics[S]) Trajectory(replicaIndex int) ([]S, error) {
	hist, ok := d.states[replicaIndex]
	if !ok {
		return nil, fmt.Errorf("replica %d: trajectory not recorded: %w", replicaIndex, ErrNoData)
	}
	window := tail(hist, d.limit)
	out := make([]S, len(window))
	copy(out, window)
	return out, nil
}

// EnergyHistogram bins the recorded finite energies of a slot into nBins
// equal-width bins spanning their range. NaN and infinite energies are skipped.
func (d *SwapDiagnostics[S]) EnergyHistogram(replicaIndex, nBins int) (Histogram, error) {
	if nBins < 1 {
		return Histogram{}, fmt.Errorf("n_bins must be at least 1, got %d", nBins)
	}
	energies, err := d.Energies(replicaIndex)
	if err != nil {
		return Histogram{}, err
	}
	x := energies[:0]
	for _, e := range energies {
		if finite(e) {
			x = append(x, e)
		}
	}
	if len(x) == 0 {
		return Histogram{}, fmt.Errorf("replica %d: %w", replicaIndex, ErrNoData)
	}
	sort.Float64s(x)

	lo, hi := x[0], x[len(x)-1]
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	edges := make([]float64, nBins+1)
	if math.IsInf(hi-lo, 0) {
		// the range exceeds MaxFloat64; interpolate without forming hi-lo
		for k := range edges {
			f := float64(k) / float64(nBins)
			edges[k] = lo*(1-f) + hi*f
		}
		edges[0], edges[nBins] = lo, hi
	} else {
		floats.Span(edges, lo, hi)
	}
	// stat.Histogram needs the largest sample strictly below the last divider.
	dividers := make([]float64, len(edges))
	copy(dividers, edges)
	dividers[nBins] = math.Nextafter(hi, math.Inf(1))

	counts := stat.Histogram(nil, dividers, x, nil)
	return Histogram{Edges: edges, Counts: counts}, nil
}

// Print writes a per-pair acceptance summary.
func (d *SwapDiagnostics[S]) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Swap Diagnostics ===")
	fmt.Fprintf(w, "Swap Attempts        : %d\n", d.Attempted())
	fmt.Fprintf(w, "Swaps Accepted       : %d\n", d.Accepted())
	fmt.Fprintf(w, "Global Acceptance    : %s\n", formatRate(d.GlobalAcceptanceRate()))
	for _, p := range d.pairs {
		fmt.Fprintf(w, "  pair %-8s       : %s (%d/%d)\n", p.Pair, formatRate(p.Rate()), p.Accepted, p.Attempted)
	}
}

func (d *SwapDiagnostics[S]) restorePairs(pairs []PairStats) error {
	if len(pairs) == 0 {
		return nil
	}
	if len(pairs) != len(d.pairs) {
		return configErrorf("checkpoint", "has %d pair counters, engine has %d", len(pairs), len(d.pairs))
	}
	for i, p := range pairs {
		if p.Pair != d.pairs[i].Pair {
			return configErrorf("checkpoint", "pair %d is %v, want %v", i, p.Pair, d.pairs[i].Pair)
		}
		d.pairs[i] = p
	}
	return nil
}

func formatRate(r float64) string {
	if math.IsNaN(r) {
		return "no data"
	}
	return fmt.Sprintf("%.4f", r)
}

// appendBounded appends v and, once the slice holds twice the limit, compacts it
// back to the newest limit entries. Readers use tail to see the window.
func appendBounded[T any](s []T, v T, limit int) []T {
	s = append(s, v)
	if limit > 0 && len(s) >= 2*limit {
		n := copy(s, s[len(s)-limit:])
		var zero T
		for i := n; i < len(s); i++ {
			s[i] = zero
		}
		s = s[:n]
	}
	return s
}

func tail[T any](s []T, limit int) []T {
	if limit > 0 && len(s) > limit {
		return s[len(s)-limit:]
	}
	return s
}
