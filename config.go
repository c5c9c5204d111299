package qsim

import (
	"runtime"
	"time"
)

// DefaultArg stands in for an omitted real-valued parameter. Negative values
// are never valid for the parameters that accept it.
const DefaultArg = -1.0

const (
	// DefaultMaxQubits bounds construction; 2^30 amplitudes is 16 GiB of
	// double-precision complex state.
	DefaultMaxQubits = 30

	// DefaultAmplitudeFloor is the squared-magnitude level below which
	// amplitudes are clamped to zero inside norm-calculating kernels.
	DefaultAmplitudeFloor = 2.220446049250313e-16

	// DefaultNormEpsilon is the running-norm floor below which the whole
	// state collapses to the zero state.
	DefaultNormEpsilon = 1.1102230246251565e-16

	// DefaultSeparabilityThreshold bounds the reconstruction error tolerated
	// by Decompose before it warns that the separated subsystem was still
	// entangled.
	DefaultSeparabilityThreshold = 1e-6
)

// Config carries the tuning knobs of an Engine.
type Config struct {
	// DoNormalize folds pending renormalization into single-qubit gates and
	// renormalizes operands before composition.
	DoNormalize bool

	// RandomGlobalPhase gives initial and reset states a uniformly
	// distributed global phase.
	RandomGlobalPhase bool

	// AmplitudeFloor is the per-amplitude clamp threshold (squared
	// magnitude).
	AmplitudeFloor float64

	// NormEpsilon is the collapse floor for the running norm.
	NormEpsilon float64

	// SeparabilityThreshold is the Decompose reconstruction-error level
	// above which a warning is logged.
	SeparabilityThreshold float64

	// MaxQubits refuses construction (and composition) beyond this width.
	MaxQubits int

	// Workers sizes the kernel worker pool. Zero means detected hardware
	// concurrency.
	Workers int

	// Seed seeds the engine's sampling source. Zero means a time-derived
	// seed.
	Seed uint64
}

// NewConfig returns a Config with production defaults.
func NewConfig() *Config {
	return &Config{
		DoNormalize:           true,
		RandomGlobalPhase:     false,
		AmplitudeFloor:        DefaultAmplitudeFloor,
		NormEpsilon:           DefaultNormEpsilon,
		SeparabilityThreshold: DefaultSeparabilityThreshold,
		MaxQubits:             DefaultMaxQubits,
		Workers:               runtime.NumCPU(),
	}
}

func (c *Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}

func (c *Config) seed() uint64 {
	if c.Seed != 0 {
		return c.Seed
	}
	return uint64(time.Now().UnixNano())
}
