package qsim

import (
	"math"
	"math/cmplx"
	"math/rand/v2"

	"github.com/theapemachine/errnie"
)

// runningNormUnknown marks the running-norm cache as invalidated by writes;
// it is recomputed on demand.
const runningNormUnknown = -1.0

// fpNormEpsilon is the squared-magnitude level at or below which a matrix
// entry counts as zero for kernel classification.
const fpNormEpsilon = 1.1102230246251565e-16

/*
Engine is a dense state-vector simulator for an N-qubit register. It owns a
buffer of 2^N complex amplitudes and evolves it under 2x2 unitaries
(optionally controlled), measurement, and composition primitives. Gate
submissions queue behind a single-consumer dispatcher; each gate's kernel
then fans out across a worker pool.

The Engine is a single-submitter object: one goroutine drives it, and reads
fence on the dispatcher. Engine methods must not be called from inside a
dispatched closure targeting the same engine.
*/
type Engine struct {
	cfg         *Config
	qubitCount  int
	maxQPower   uint64
	stateVec    *StateVector
	runningNorm float64
	rng         *rand.Rand
	disp        *dispatcher
	metrics     *Metrics
}

// NewEngine constructs an engine of the given width in the computational
// basis state initPerm. A width of zero yields the distinguished zero state.
func NewEngine(qubits int, initPerm uint64, cfg *Config) (*Engine, error) {
	if cfg == nil {
		cfg = NewConfig()
	}

	if qubits < 0 || qubits > cfg.MaxQubits {
		return nil, invalidArgf("qubit count %d exceeds configured maximum %d", qubits, cfg.MaxQubits)
	}

	maxQPower := uint64(1) << qubits
	if qubits > 0 && initPerm >= maxQPower {
		return nil, invalidArgf("initial permutation %d out of bounds for %d qubits", initPerm, qubits)
	}

	seed := cfg.seed()
	e := &Engine{
		cfg:        cfg,
		qubitCount: qubits,
		maxQPower:  maxQPower,
		rng:        rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		disp:       newDispatcher(),
		metrics:    newMetrics(),
	}

	errnie.Info(
		"NewEngine - qubits %d, perm %d, normalize %v, workers %d",
		qubits,
		initPerm,
		cfg.DoNormalize,
		cfg.workers(),
	)

	if qubits == 0 {
		e.runningNorm = 0
		return e, nil
	}

	e.stateVec = newStateVector(maxQPower)
	e.stateVec.write(initPerm, e.nonunitaryPhase())
	e.runningNorm = 1

	return e, nil
}

// Close drains pending work and stops the dispatcher.
func (e *Engine) Close() {
	e.disp.Finish()
	e.disp.Close()
}

// QubitCount returns the register width.
func (e *Engine) QubitCount() int {
	return e.qubitCount
}

// MaxQPower returns 2^N, the size of the permutation basis.
func (e *Engine) MaxQPower() uint64 {
	return e.maxQPower
}

// Metrics exposes the engine's counters.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// Finish blocks until all dispatched operations have completed.
func (e *Engine) Finish() {
	e.disp.Finish()
}

// Dump discards all pending dispatched operations.
func (e *Engine) Dump() {
	e.disp.Dump()
}

// IsZeroAmplitude reports whether the register is in the annihilated zero
// state (all amplitudes zero, buffer deallocated).
func (e *Engine) IsZeroAmplitude() bool {
	e.Finish()
	return e.stateVec == nil
}

// RunningNorm returns the cached sum of squared magnitudes, or a negative
// sentinel when writes have invalidated it.
func (e *Engine) RunningNorm() float64 {
	e.Finish()
	return e.runningNorm
}

// ZeroAmplitudes deallocates the buffer, discarding pending work; the state
// becomes the annihilated branch and subsequent reads return zero.
func (e *Engine) ZeroAmplitudes() {
	e.Dump()
	e.zeroAmplitudes()
}

// zeroAmplitudes is the collapse transition shared by kernels; it may run on
// the dispatcher thread, where pending work behind it is already doomed.
func (e *Engine) zeroAmplitudes() {
	e.disp.discard()
	e.stateVec = nil
	e.runningNorm = 0
	e.metrics.recordCollapse()
	errnie.Info("zeroAmplitudes - %d-qubit state collapsed", e.qubitCount)
}

// dispatchThreshold is the work-item count below which queueing a closure
// costs more than running it in place.
const dispatchThreshold = 1 << 13

// dispatch submits fn behind all pending work, or runs it synchronously when
// the work item count is small.
func (e *Engine) dispatch(workItems uint64, fn func()) {
	e.metrics.recordGate(e.disp.depth())
	if workItems < dispatchThreshold {
		e.disp.Finish()
		fn()
		return
	}
	e.disp.Dispatch(fn)
}

// nonunitaryPhase is the amplitude written by permutation resets: a random
// point on the unit circle when RandomGlobalPhase is set, else one.
func (e *Engine) nonunitaryPhase() complex128 {
	if e.cfg.RandomGlobalPhase {
		return cmplx.Rect(1, 2*math.Pi*e.rng.Float64())
	}
	return 1
}

// SetPermutation resets the register to a computational basis state.
func (e *Engine) SetPermutation(perm uint64) error {
	if perm >= e.maxQPower {
		return invalidArgf("SetPermutation %d out of bounds", perm)
	}

	e.Dump()

	if e.stateVec == nil {
		e.stateVec = newStateVector(e.maxQPower)
	}
	e.stateVec.clear()
	e.stateVec.write(perm, e.nonunitaryPhase())
	e.runningNorm = 1

	return nil
}

// SetPermutationPhase resets to a basis state with an explicit global phase,
// which is scaled onto the unit circle.
func (e *Engine) SetPermutationPhase(perm uint64, phase complex128) error {
	if perm >= e.maxQPower {
		return invalidArgf("SetPermutationPhase %d out of bounds", perm)
	}
	if normC(phase) <= fpNormEpsilon {
		return invalidArgf("SetPermutationPhase phase factor is zero")
	}

	e.Dump()

	if e.stateVec == nil {
		e.stateVec = newStateVector(e.maxQPower)
	}
	e.stateVec.clear()
	e.stateVec.write(perm, phase/complex(cmplx.Abs(phase), 0))
	e.runningNorm = 1

	return nil
}

// SetQuantumState overwrites the register with an arbitrary pure state in
// the permutation basis. The input is not normalized for the caller.
func (e *Engine) SetQuantumState(inputState []complex128) error {
	if uint64(len(inputState)) != e.maxQPower {
		return invalidArgf("SetQuantumState length %d does not match 2^%d", len(inputState), e.qubitCount)
	}

	e.Dump()

	if e.stateVec == nil {
		e.stateVec = newStateVector(e.maxQPower)
	}
	e.stateVec.copyIn(inputState, 0)
	e.runningNorm = runningNormUnknown

	return nil
}

// GetQuantumState copies the register out in the permutation basis,
// normalizing first when the engine is configured to.
func (e *Engine) GetQuantumState(outputState []complex128) error {
	if uint64(len(outputState)) != e.maxQPower {
		return invalidArgf("GetQuantumState length %d does not match 2^%d", len(outputState), e.qubitCount)
	}

	if e.IsZeroAmplitude() {
		for i := range outputState {
			outputState[i] = 0
		}
		return nil
	}

	if e.cfg.DoNormalize {
		e.NormalizeState(DefaultArg, DefaultArg, 0)
	}
	e.Finish()

	if e.stateVec == nil {
		for i := range outputState {
			outputState[i] = 0
		}
		return nil
	}

	e.stateVec.copyOut(outputState, 0)
	return nil
}

// GetProbs fills out with the squared magnitude of every permutation.
func (e *Engine) GetProbs(outputProbs []float64) error {
	if uint64(len(outputProbs)) != e.maxQPower {
		return invalidArgf("GetProbs length %d does not match 2^%d", len(outputProbs), e.qubitCount)
	}

	if e.cfg.DoNormalize {
		e.NormalizeState(DefaultArg, DefaultArg, 0)
	}
	e.Finish()

	if e.stateVec == nil {
		for i := range outputProbs {
			outputProbs[i] = 0
		}
		return nil
	}

	e.stateVec.getProbs(outputProbs)
	return nil
}

// GetAmplitude reads a single amplitude. It does not normalize.
func (e *Engine) GetAmplitude(perm uint64) (complex128, error) {
	if perm >= e.maxQPower {
		return 0, invalidArgf("GetAmplitude %d out of bounds", perm)
	}

	e.Finish()

	if e.stateVec == nil {
		return 0, nil
	}
	return e.stateVec.read(perm), nil
}

// SetAmplitude writes a single amplitude, incrementally maintaining the
// running norm when it is in a known state. It does not normalize.
func (e *Engine) SetAmplitude(perm uint64, amp complex128) error {
	if perm >= e.maxQPower {
		return invalidArgf("SetAmplitude %d out of bounds", perm)
	}

	e.Finish()

	if e.stateVec == nil && normC(amp) == 0 {
		return nil
	}

	if e.stateVec == nil {
		e.stateVec = newStateVector(e.maxQPower)
		e.runningNorm = 0
	}

	if e.runningNorm != runningNormUnknown {
		e.runningNorm += normC(amp) - normC(e.stateVec.read(perm))
	}

	e.stateVec.write(perm, amp)
	return nil
}

// GetAmplitudePage copies len(page) amplitudes out, starting at offset.
func (e *Engine) GetAmplitudePage(page []complex128, offset uint64) error {
	if badPermRange(offset, uint64(len(page)), e.maxQPower) {
		return invalidArgf("GetAmplitudePage range out of bounds")
	}

	e.Finish()

	if e.stateVec == nil {
		for i := range page {
			page[i] = 0
		}
		return nil
	}

	e.stateVec.copyOut(page, offset)
	return nil
}

// SetAmplitudePage copies len(page) amplitudes in, starting at offset.
func (e *Engine) SetAmplitudePage(page []complex128, offset uint64) error {
	if badPermRange(offset, uint64(len(page)), e.maxQPower) {
		return invalidArgf("SetAmplitudePage range out of bounds")
	}

	e.Finish()

	if e.stateVec == nil {
		e.stateVec = newStateVector(e.maxQPower)
	}

	e.stateVec.copyIn(page, offset)

	if e.cfg.DoNormalize {
		e.runningNorm = runningNormUnknown
	}
	return nil
}

// SetAmplitudePageFrom copies a page from another engine of any width.
func (e *Engine) SetAmplitudePageFrom(src *Engine, srcOffset, dstOffset, length uint64) error {
	if badPermRange(dstOffset, length, e.maxQPower) {
		return invalidArgf("SetAmplitudePageFrom destination range out of bounds")
	}
	if badPermRange(srcOffset, length, src.maxQPower) {
		return invalidArgf("SetAmplitudePageFrom source range out of bounds")
	}

	e.Finish()
	src.Finish()

	if e.stateVec == nil && src.stateVec == nil {
		return nil
	}

	if src.stateVec == nil && length == e.maxQPower {
		e.ZeroAmplitudes()
		return nil
	}

	if e.stateVec == nil {
		e.stateVec = newStateVector(e.maxQPower)
	}

	if src.stateVec == nil {
		for i := uint64(0); i < length; i++ {
			e.stateVec.write(dstOffset+i, 0)
		}
	} else {
		e.stateVec.copyInFrom(src.stateVec, srcOffset, dstOffset, length)
	}

	e.runningNorm = runningNormUnknown
	return nil
}

// CopyStateVec clones another engine's state wholesale.
func (e *Engine) CopyStateVec(src *Engine) error {
	if e.qubitCount != src.qubitCount {
		return invalidArgf("CopyStateVec width %d differs from source %d", e.qubitCount, src.qubitCount)
	}

	if src.IsZeroAmplitude() {
		e.ZeroAmplitudes()
		return nil
	}

	if e.stateVec != nil {
		e.Dump()
	} else {
		e.stateVec = newStateVector(e.maxQPower)
	}

	if err := src.GetQuantumState(e.stateVec.amps); err != nil {
		return err
	}
	e.runningNorm = src.RunningNorm()

	return nil
}

// ShuffleBuffers exchanges this engine's upper half-buffer with the other's
// lower half. Both running norms become unknown.
func (e *Engine) ShuffleBuffers(other *Engine) error {
	if e.qubitCount != other.qubitCount {
		return invalidArgf("ShuffleBuffers width %d differs from argument %d", e.qubitCount, other.qubitCount)
	}

	e.Finish()
	other.Finish()

	if e.stateVec == nil && other.stateVec == nil {
		return nil
	}

	if e.stateVec == nil {
		e.stateVec = newStateVector(e.maxQPower)
	}
	if other.stateVec == nil {
		other.stateVec = newStateVector(other.maxQPower)
	}

	e.stateVec.shuffle(other.stateVec)

	e.runningNorm = runningNormUnknown
	other.runningNorm = runningNormUnknown
	return nil
}

/*
NormalizeState multiplies every amplitude by 1/sqrt(nrm), optionally applies
a global phase, and clamps amplitudes whose squared magnitude falls below
normThresh. Pass DefaultArg for nrm to use the cached running norm, and
DefaultArg for normThresh to use the configured amplitude floor. A total
norm at or below the collapse floor zeroes the state. On return the running
norm is one.
*/
func (e *Engine) NormalizeState(nrm, normThresh, phaseArg float64) {
	e.Finish()

	if e.stateVec == nil {
		return
	}

	if e.runningNorm == runningNormUnknown && nrm < 0 {
		e.UpdateRunningNorm(DefaultArg)
		if e.stateVec == nil {
			return
		}
	}

	if nrm < 0 {
		nrm = e.runningNorm
	}

	if nrm <= e.cfg.NormEpsilon {
		e.zeroAmplitudes()
		return
	}

	if math.Abs(1-nrm) <= e.cfg.NormEpsilon && phaseArg*phaseArg <= e.cfg.NormEpsilon {
		return
	}

	if normThresh < 0 {
		normThresh = e.cfg.AmplitudeFloor
	}

	cNrm := cmplx.Rect(1/math.Sqrt(nrm), phaseArg)
	workers := e.cfg.workers()
	sv := e.stateVec

	var fn ParallelFunc
	if normThresh <= 0 {
		fn = func(lcv uint64, cpu int) {
			sv.write(lcv, cNrm*sv.read(lcv))
		}
	} else {
		fn = func(lcv uint64, cpu int) {
			amp := sv.read(lcv)
			if normC(amp) < normThresh {
				amp = 0
			}
			sv.write(lcv, cNrm*amp)
		}
	}
	parFor(0, e.maxQPower, workers, fn)

	e.runningNorm = 1
	e.metrics.recordNormalization()
}

// UpdateRunningNorm recomputes the cached norm from scratch, discarding
// amplitudes below normThresh (DefaultArg means the configured floor), and
// collapses the state when the total is at or below the collapse floor.
func (e *Engine) UpdateRunningNorm(normThresh float64) {
	e.Finish()

	if e.stateVec == nil {
		e.runningNorm = 0
		return
	}

	if normThresh < 0 {
		normThresh = e.cfg.AmplitudeFloor
	}

	e.runningNorm = parNorm(e.stateVec, normThresh, e.cfg.workers())

	if e.runningNorm <= e.cfg.NormEpsilon {
		e.zeroAmplitudes()
	}
}

/*
SumSqrDiff returns 1 - |<this|other>|^2, a fidelity distance in [0, 1].
Engines of different widths return the maximum distance of one. A zero-state
operand yields the other operand's total norm.
*/
func (e *Engine) SumSqrDiff(other *Engine) float64 {
	if other == nil {
		return 1
	}
	if e == other {
		return 0
	}
	if e.qubitCount != other.qubitCount {
		return 1
	}

	if e.cfg.DoNormalize {
		e.NormalizeState(DefaultArg, DefaultArg, 0)
	}
	e.Finish()

	if other.cfg.DoNormalize {
		other.NormalizeState(DefaultArg, DefaultArg, 0)
	}
	other.Finish()

	if e.stateVec == nil && other.stateVec == nil {
		return 0
	}
	if e.stateVec == nil {
		other.UpdateRunningNorm(DefaultArg)
		return other.runningNorm
	}
	if other.stateVec == nil {
		e.UpdateRunningNorm(DefaultArg)
		return e.runningNorm
	}

	workers := e.cfg.workers()
	partials := make([]complex128, max(workers, 1))
	a, b := e.stateVec, other.stateVec

	parFor(0, e.maxQPower, workers, func(lcv uint64, cpu int) {
		partials[cpu] += cmplx.Conj(a.read(lcv)) * b.read(lcv)
	})

	var inner complex128
	for _, p := range partials {
		inner += p
	}

	return 1 - clampProb(normC(inner))
}

// clampProb confines accumulated probabilities to [0, 1].
func clampProb(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
