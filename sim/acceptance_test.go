package sim

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/paratemp/sim/internal/testutil"
)

func TestBoltzmann_SwapAcceptance_KnownValues(t *testing.T) {
	b := Boltzmann{}
	tests := []struct {
		name                 string
		betaI, betaJ, eI, eJ float64
		want                 float64
	}{
		// the colder slot holds the higher energy: always swap
		{"cold holds higher energy", 1, 0.5, 2, 1, 1},
		{"equal energies", 1, 0.5, 3, 3, 1},
		{"cold holds lower energy", 1, 0.5, 1, 2, math.Exp(-0.5)},
		{"large gap underflows to zero", 10, 0.1, 0, 1000, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := b.SwapAcceptance(tc.betaI, tc.betaJ, tc.eI, tc.eJ)
			testutil.AssertFloat64Equal(t, "p", tc.want, got, 1e-12)
		})
	}
}

func TestBoltzmann_SwapAcceptance_Symmetric(t *testing.T) {
	// GIVEN random slot pairs
	rng := rand.New(rand.NewSource(1))
	b := Boltzmann{}
	for i := 0; i < 200; i++ {
		bi, bj := rng.Float64()*3, rng.Float64()*3
		ei, ej := rng.NormFloat64()*5, rng.NormFloat64()*5

		// THEN labelling the pair the other way round gives the same probability
		assert.Equal(t, b.SwapAcceptance(bi, bj, ei, ej), b.SwapAcceptance(bj, bi, ej, ei))
	}
}

func TestBoltzmann_LocalAcceptance(t *testing.T) {
	b := Boltzmann{}
	assert.Equal(t, 1.0, b.LocalAcceptance(2, 5, 1), "downhill moves always accepted")
	testutil.AssertFloat64Equal(t, "uphill", math.Exp(-2), b.LocalAcceptance(2, 1, 2), 1e-12)
	assert.Equal(t, 0.0, b.LocalAcceptance(1, 0, 1e6), "huge uphill step underflows to 0")
}

func TestAcceptance_NonFiniteEnergiesReject(t *testing.T) {
	tsallis, err := NewTsallis(1.5)
	require.NoError(t, err)
	bad := []float64{math.NaN(), math.Inf(1), math.Inf(-1)}

	for _, rule := range []AcceptanceRule{Boltzmann{}, tsallis} {
		for _, e := range bad {
			assert.Equal(t, 0.0, rule.LocalAcceptance(1, 0, e), "%T local new=%v", rule, e)
			assert.Equal(t, 0.0, rule.LocalAcceptance(1, e, e), "%T local old=new=%v", rule, e)
			assert.Equal(t, 0.0, rule.SwapAcceptance(1, 0.5, e, 0), "%T swap eI=%v", rule, e)
			assert.Equal(t, 0.0, rule.SwapAcceptance(1, 0.5, 0, e), "%T swap eJ=%v", rule, e)
		}
	}
}

func TestAcceptance_NonFiniteCurrentEnergyAcceptsEscape(t *testing.T) {
	// GIVEN a slot whose current energy is NaN or infinite
	tsallis, err := NewTsallis(0.5)
	require.NoError(t, err)
	bad := []float64{math.NaN(), math.Inf(1), math.Inf(-1)}

	for _, e := range bad {
		// THEN any finite proposal inside the support is accepted
		assert.Equal(t, 1.0, Boltzmann{}.LocalAcceptance(1, e, 1e6), "boltzmann old=%v", e)
		assert.Equal(t, 1.0, tsallis.LocalAcceptance(1, e, 0.5), "tsallis old=%v", e)
		// THEN a proposal outside the Tsallis support (base 1-0.5*1*5 < 0) is not
		assert.Equal(t, 0.0, tsallis.LocalAcceptance(1, e, 5), "tsallis old=%v outside support", e)
	}
}

func TestAcceptance_AlwaysInUnitInterval(t *testing.T) {
	// GIVEN extreme inputs for both rules
	tsallisLow, _ := NewTsallis(0.5)
	tsallisHigh, _ := NewTsallis(2.5)
	values := []float64{-1e300, -1e6, -1, 0, 1e-300, 1, 1e6, 1e300}
	betas := []float64{1e-9, 0.1, 1, 1e6}

	for _, rule := range []AcceptanceRule{Boltzmann{}, tsallisLow, tsallisHigh} {
		for _, bi := range betas {
			for _, bj := range betas {
				for _, ei := range values {
					for _, ej := range values {
						p := rule.SwapAcceptance(bi, bj, ei, ej)
						l := rule.LocalAcceptance(bi, ei, ej)
						// THEN every probability is a number in [0, 1]
						require.False(t, math.IsNaN(p) || math.IsNaN(l), "%T NaN at %v %v %v %v", rule, bi, bj, ei, ej)
						require.True(t, p >= 0 && p <= 1, "%T swap p=%v", rule, p)
						require.True(t, l >= 0 && l <= 1, "%T local p=%v", rule, l)
					}
				}
			}
		}
	}
}

func TestAcceptance_LocalDetailedBalance(t *testing.T) {
	// pi(a) P(a->b) == pi(b) P(b->a) for a symmetric proposal
	tsallis, _ := NewTsallis(1.3)
	for _, rule := range []AcceptanceRule{Boltzmann{}, tsallis} {
		beta := 0.7
		for _, pair := range [][2]float64{{0, 1}, {2, 0.5}, {3, 3}} {
			a, b := pair[0], pair[1]
			lhs := math.Exp(rule.LogWeight(a, beta)) * rule.LocalAcceptance(beta, a, b)
			rhs := math.Exp(rule.LogWeight(b, beta)) * rule.LocalAcceptance(beta, b, a)
			testutil.AssertFloat64Equal(t, "balance", lhs, rhs, 1e-12)
		}
	}
}

func TestTsallis_QOfOneIsConfigError(t *testing.T) {
	// GIVEN q == 1
	_, err := NewTsallis(1)

	// THEN construction fails with a configuration error naming q
	require.ErrorIs(t, err, ErrConfig)
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "q", ce.Field)

	_, err = NewAcceptanceRule(DistributionTsallis, 1)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestTsallis_NonFiniteQIsConfigError(t *testing.T) {
	for _, q := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := NewTsallis(q)
		assert.ErrorIs(t, err, ErrConfig, "q=%v", q)
	}
}

func TestTsallis_LogWeightOutsideSupport(t *testing.T) {
	// q < 1 cuts the density off where 1 - (1-q) beta E <= 0
	rule, err := NewTsallis(0.5)
	require.NoError(t, err)
	assert.True(t, math.IsInf(rule.LogWeight(2, 1), -1), "base exactly 0")
	assert.True(t, math.IsInf(rule.LogWeight(10, 1), -1), "base negative")
	assert.False(t, math.IsInf(rule.LogWeight(1, 1), 0))

	// moving out of the support is never accepted, moving back in always is
	assert.Equal(t, 0.0, rule.LocalAcceptance(1, 1, 10))
	assert.Equal(t, 1.0, rule.LocalAcceptance(1, 10, 1))
}

func TestTsallis_ApproachesBoltzmann(t *testing.T) {
	rule, err := NewTsallis(1 + 1e-7)
	require.NoError(t, err)
	b := Boltzmann{}
	for _, e := range []float64{0.5, 1, 2} {
		testutil.AssertFloat64Equal(t, "swap", b.SwapAcceptance(1, 0.5, 1, 1+e), rule.SwapAcceptance(1, 0.5, 1, 1+e), 1e-5)
		testutil.AssertFloat64Equal(t, "local", b.LocalAcceptance(1, 0, e), rule.LocalAcceptance(1, 0, e), 1e-5)
	}
}

func TestNewAcceptanceRule(t *testing.T) {
	r, err := NewAcceptanceRule("", 0)
	require.NoError(t, err)
	assert.IsType(t, Boltzmann{}, r)

	r, err = NewAcceptanceRule(DistributionTsallis, 2)
	require.NoError(t, err)
	assert.Equal(t, 2.0, r.(Tsallis).Q())

	_, err = NewAcceptanceRule("gibbs", 0)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestAcceptanceFromLog(t *testing.T) {
	assert.Equal(t, 0.0, acceptanceFromLog(math.NaN()))
	assert.Equal(t, 1.0, acceptanceFromLog(math.Inf(1)))
	assert.Equal(t, 1.0, acceptanceFromLog(0))
	assert.Equal(t, 0.0, acceptanceFromLog(-746))
	assert.Equal(t, 0.0, acceptanceFromLog(math.Inf(-1)))
	testutil.AssertFloat64Equal(t, "exp(-1)", math.Exp(-1), acceptanceFromLog(-1), 1e-15)
}
