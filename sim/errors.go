package sim

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig indicates invalid ladder, distribution or engine parameters.
	ErrConfig = errors.New("sim: invalid configuration")
	// ErrEnergyEvaluation indicates the energy function or local stepper failed.
	// Stepper failures carry "local step failed" in the wrapped cause.
	ErrEnergyEvaluation = errors.New("sim: energy evaluation failed")
	// ErrCallback indicates the per-iteration callback returned an error.
	ErrCallback = errors.New("sim: callback failed")
	// ErrCalibration indicates no candidate replica count produced a swap attempt.
	ErrCalibration = errors.New("sim: calibration failed")
	// ErrEngineReused indicates Run was invoked on an engine that already ran.
	ErrEngineReused = errors.New("sim: engine can only run once")
)

// Phase names the stage of an iteration that produced an error.
type Phase string

const (
	PhaseInit  Phase = "init"
	PhaseLocal Phase = "local"
)

// ConfigError reports a rejected configuration value. It is returned before
// any sampling starts, never mid-run.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %s", ErrConfig, e.Reason)
	}
	return fmt.Sprintf("%v: %s: %s", ErrConfig, e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

func configErrorf(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// EnergyEvaluationError wraps a failure of a user collaborator together with
// enough context to replay the step from the same seed.
// NaN or infinite energies are not failures; they are rejected moves.
type EnergyEvaluationError struct {
	Phase     Phase
	Iteration int // -1 during initialization
	Replica   int
	Err       error
}

func (e *EnergyEvaluationError) Error() string {
	return fmt.Sprintf("%v: phase=%s iteration=%d replica=%d: %v",
		ErrEnergyEvaluation, e.Phase, e.Iteration, e.Replica, e.Err)
}

func (e *EnergyEvaluationError) Is(target error) bool { return target == ErrEnergyEvaluation }

func (e *EnergyEvaluationError) Unwrap() error { return e.Err }

// CallbackError carries the callback's error verbatim; errors.Is/As reach it through Unwrap.
type CallbackError struct {
	Iteration int
	Err       error
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("%v: iteration=%d: %v", ErrCallback, e.Iteration, e.Err)
}

func (e *CallbackError) Is(target error) bool { return target == ErrCallback }

func (e *CallbackError) Unwrap() error { return e.Err }

// CalibrationError is returned when every candidate replica count is unusable.
type CalibrationError struct {
	Candidates []int
	Reason     string
}

func (e *CalibrationError) Error() string {
	return fmt.Sprintf("%v: candidates=%v: %s", ErrCalibration, e.Candidates, e.Reason)
}

func (e *CalibrationError) Is(target error) bool { return target == ErrCalibration }
