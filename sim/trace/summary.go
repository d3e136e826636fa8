package trace

import "math"

// PairSummary aggregates the swap decisions of one adjacent pair.
type PairSummary struct {
	Lower           int
	Attempted       int
	Accepted        int
	MeanProbability float64
}

// TraceSummary aggregates statistics from an ExchangeTrace.
type TraceSummary struct {
	TotalSwaps      int
	AcceptedSwaps   int
	MeanProbability float64
	MinProbability  float64
	Pairs           []PairSummary // ordered by Lower
	LocalAccepted   int
	LocalRejected   int
}

// Summarize computes aggregate statistics from an ExchangeTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(et *ExchangeTrace) *TraceSummary {
	summary := &TraceSummary{}
	if et == nil {
		return summary
	}

	summary.TotalSwaps = len(et.Swaps)
	if len(et.Swaps) > 0 {
		summary.MinProbability = math.Inf(1)
		total := 0.0
		for _, s := range et.Swaps {
			for len(summary.Pairs) <= s.Lower {
				summary.Pairs = append(summary.Pairs, PairSummary{Lower: len(summary.Pairs)})
			}
			p := &summary.Pairs[s.Lower]
			p.Attempted++
			p.MeanProbability += s.Probability
			if s.Accepted {
				p.Accepted++
				summary.AcceptedSwaps++
			}
			total += s.Probability
			summary.MinProbability = math.Min(summary.MinProbability, s.Probability)
		}
		summary.MeanProbability = total / float64(len(et.Swaps))
		for i := range summary.Pairs {
			if summary.Pairs[i].Attempted > 0 {
				summary.Pairs[i].MeanProbability /= float64(summary.Pairs[i].Attempted)
			}
		}
	}

	for _, l := range et.Locals {
		summary.LocalAccepted += l.Accepted
		summary.LocalRejected += l.Rejected
	}
	return summary
}
