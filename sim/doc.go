// Package sim provides the replica-exchange (parallel tempering) engine for paratemp.
//
// # Reading Guide
//
// Start with these files to understand the sampler:
//   - ladder.go: temperature ladder construction (geometric, linear, explicit)
//   - acceptance.go: Metropolis acceptance for Boltzmann and Tsallis densities
//   - replica.go: ladder slots and the collaborator interfaces
//   - engine.go: the local-phase / swap-sweep loop and its lifecycle
//   - diagnostics.go: swap counters, energy histograms, trajectories
//
// # Architecture
//
// A ladder slot owns a fixed beta; configurations (state + cached energy) move
// between slots when a swap is accepted. Every slot draws its local moves from
// its own PartitionedRNG stream and the swap sweep draws from a separate one, so
// a run is reproducible from its seed regardless of how many workers execute the
// local phase.
//
// Sub-packages:
//   - sim/calibration/: picks a replica count by running short trial engines
//   - sim/models/: demo energy functions and proposal kernels
//   - sim/store/: SQLite persistence for checkpoints and calibration trials
//   - sim/trace/: swap decision records and summaries
//
// # Key Interfaces
//
// The extension points are single-method interfaces:
//   - EnergyFunction: evaluates a configuration
//   - LocalStepper: one single-temperature move (raw proposal or already accepted,
//     per Config.LocalMoves)
//   - AcceptanceRule: local and swap acceptance probabilities
package sim
