package sim

import (
	"fmt"
	"hash/fnv"
	"math/rand"
)

// === SimulationKey ===

// SimulationKey uniquely identifies a reproducible tempering run.
// Two engines with the same SimulationKey, configuration and collaborators
// MUST produce bit-for-bit identical replicas and diagnostics.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// === Subsystem Constants ===

const (
	// SubsystemSwap is the RNG subsystem for swap acceptance draws.
	// Uses the master seed directly, so a two-replica run with trusted local
	// moves consumes exactly the stream of rand.NewSource(seed).
	SubsystemSwap = "swap"

	// SubsystemCalibration is the RNG subsystem the calibrator derives trial seeds from.
	SubsystemCalibration = "calibration"
)

// SubsystemReplica returns the subsystem name for the local moves of ladder slot i.
// Each slot owns its stream, which keeps the local phase deterministic no matter
// how many workers execute it.
func SubsystemReplica(i int) string {
	return fmt.Sprintf("replica_%d", i)
}

// SubsystemTrial returns the subsystem name for calibration trial number pos
// running with m replicas.
func SubsystemTrial(m, pos int) string {
	return fmt.Sprintf("trial_%d_m%d", pos, m)
}

// === PartitionedRNG ===

// PartitionedRNG provides deterministic, isolated RNG instances per subsystem.
//
// Derivation formula:
//   - For SubsystemSwap: uses masterSeed directly
//   - For all other subsystems: masterSeed XOR fnv1a64(subsystemName)
//
// Thread-safety: NOT thread-safe. Streams must be fetched from the coordinating
// goroutine; a fetched *rand.Rand may then be handed to exactly one worker.
type PartitionedRNG struct {
	key        SimulationKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named subsystem.
// The same subsystem name always returns the same *rand.Rand instance (cached).
// Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}

	rng := rand.New(rand.NewSource(p.derivedSeed(name)))
	p.subsystems[name] = rng
	return rng
}

// SeedFor returns the seed ForSubsystem would use for name, without creating a stream.
// The calibrator uses it to hand every trial engine its own SimulationKey.
func (p *PartitionedRNG) SeedFor(name string) int64 {
	return p.derivedSeed(name)
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

func (p *PartitionedRNG) derivedSeed(name string) int64 {
	if name == SubsystemSwap {
		return int64(p.key)
	}
	return int64(p.key) ^ fnv1a64(name)
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
