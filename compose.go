package qsim

import (
	"math"
	"math/cmplx"

	"github.com/theapemachine/errnie"
)

func (e *Engine) setQubitCount(n int) {
	e.qubitCount = n
	e.maxQPower = uint64(1) << n
}

/*
Compose appends another engine's register after this one's last qubit: the
new state is the tensor product, with the copied qubits occupying the high
bit positions. Returns the bit index the copied register starts at. Both
operands are normalized first when configured to normalize. A zero-state
operand makes the composed state zero.
*/
func (e *Engine) Compose(toCopy *Engine) (int, error) {
	result := e.qubitCount

	if toCopy.qubitCount == 0 {
		return result, nil
	}

	nQubitCount := e.qubitCount + toCopy.qubitCount
	if nQubitCount > e.cfg.MaxQubits {
		return 0, invalidArgf("Compose result width %d exceeds configured maximum %d", nQubitCount, e.cfg.MaxQubits)
	}

	if e.qubitCount == 0 {
		e.Finish()
		toCopy.Finish()

		e.setQubitCount(toCopy.qubitCount)
		e.runningNorm = toCopy.runningNorm
		if toCopy.stateVec != nil {
			e.stateVec = newStateVector(toCopy.maxQPower)
			e.stateVec.copyAll(toCopy.stateVec)
		} else {
			e.stateVec = nil
		}

		return 0, nil
	}

	e.Finish()
	toCopy.Finish()

	if e.stateVec == nil || toCopy.stateVec == nil {
		e.ZeroAmplitudes()
		e.setQubitCount(nQubitCount)
		return result, nil
	}

	if e.cfg.DoNormalize {
		e.NormalizeState(DefaultArg, DefaultArg, 0)
	}
	if toCopy.cfg.DoNormalize && toCopy.runningNorm != 1 {
		toCopy.NormalizeState(DefaultArg, DefaultArg, 0)
	}

	startMask := e.maxQPower - 1
	endMask := (toCopy.maxQPower - 1) << result
	nMaxQPower := uint64(1) << nQubitCount

	nStateVec := newStateVector(nMaxQPower)
	a, b := e.stateVec, toCopy.stateVec
	shift := result

	parFor(0, nMaxQPower, e.cfg.workers(), func(lcv uint64, cpu int) {
		nStateVec.write(lcv, a.read(lcv&startMask)*b.read((lcv&endMask)>>shift))
	})

	e.setQubitCount(nQubitCount)
	e.stateVec = nStateVec

	if e.runningNorm != runningNormUnknown && toCopy.runningNorm != runningNormUnknown {
		e.runningNorm *= toCopy.runningNorm
	} else {
		e.runningNorm = runningNormUnknown
	}

	return result, nil
}

// ComposeAt inserts another engine's register at the given bit position,
// interleaving the existing high qubits above it.
func (e *Engine) ComposeAt(toCopy *Engine, start int) (int, error) {
	if start < 0 || start > e.qubitCount {
		return 0, invalidArgf("ComposeAt start index out of bounds")
	}

	if e.qubitCount == 0 {
		_, err := e.Compose(toCopy)
		return 0, err
	}
	if toCopy.qubitCount == 0 {
		return start, nil
	}

	nQubitCount := e.qubitCount + toCopy.qubitCount
	if nQubitCount > e.cfg.MaxQubits {
		return 0, invalidArgf("ComposeAt result width %d exceeds configured maximum %d", nQubitCount, e.cfg.MaxQubits)
	}

	e.Finish()
	toCopy.Finish()

	if e.stateVec == nil || toCopy.stateVec == nil {
		e.ZeroAmplitudes()
		e.setQubitCount(nQubitCount)
		return start, nil
	}

	if e.cfg.DoNormalize {
		e.NormalizeState(DefaultArg, DefaultArg, 0)
	}
	if toCopy.cfg.DoNormalize {
		toCopy.NormalizeState(DefaultArg, DefaultArg, 0)
	}

	oQubitCount := toCopy.qubitCount
	nMaxQPower := uint64(1) << nQubitCount
	startMask := pow2(start) - 1
	midMask := (toCopy.maxQPower - 1) << start
	endMask := (nMaxQPower - 1) &^ (startMask | midMask)

	nStateVec := newStateVector(nMaxQPower)
	a, b := e.stateVec, toCopy.stateVec

	parFor(0, nMaxQPower, e.cfg.workers(), func(lcv uint64, cpu int) {
		nStateVec.write(lcv,
			a.read((lcv&startMask)|((lcv&endMask)>>oQubitCount))*b.read((lcv&midMask)>>start))
	})

	e.setQubitCount(nQubitCount)
	e.stateVec = nStateVec
	e.runningNorm = runningNormUnknown

	return start, nil
}

// ComposeMany left-folds a list of engines onto this one, returning the bit
// index each operand was mapped to.
func (e *Engine) ComposeMany(toCopy []*Engine) ([]int, error) {
	starts := make([]int, len(toCopy))
	for i, src := range toCopy {
		start, err := e.Compose(src)
		if err != nil {
			return nil, err
		}
		starts[i] = start
	}
	return starts, nil
}

// Decompose separates a contiguous range of qubits into dest, which must be
// constructed with exactly that width. The remainder keeps this engine. Both
// parts are rebuilt from summed norms and norm-weighted phases, so even a
// basis-state range comes back only to within floating-point rounding, not
// bit-exactly.
func (e *Engine) Decompose(start int, dest *Engine) error {
	_, err := e.decomposeDispose(start, dest.qubitCount, dest)
	return err
}

// DecomposeScored is Decompose returning the separability residual: the
// summed squared reconstruction error against the original amplitudes. The
// scoring pass runs only when the configured SeparabilityThreshold is
// positive; otherwise the returned score is zero.
func (e *Engine) DecomposeScored(start int, dest *Engine) (float64, error) {
	return e.decomposeDispose(start, dest.qubitCount, dest)
}

// Dispose discards a contiguous range of qubits, reconstructing the
// remainder by probability and angle.
func (e *Engine) Dispose(start, length int) error {
	_, err := e.decomposeDispose(start, length, nil)
	return err
}

// DisposePerm discards a contiguous range of qubits known to hold the given
// permutation, directly copying the surviving amplitudes.
func (e *Engine) DisposePerm(start, length int, disposedPerm uint64) error {
	if badBitRange(start, length, e.qubitCount) {
		return invalidArgf("DisposePerm range out of bounds")
	}
	if length < 64 && disposedPerm >= uint64(1)<<length {
		return invalidArgf("DisposePerm permutation %d out of bounds", disposedPerm)
	}
	if length == 0 {
		return nil
	}

	nLength := e.qubitCount - length

	e.Finish()

	if e.stateVec == nil {
		e.setQubitCount(nLength)
		return nil
	}

	if e.cfg.DoNormalize {
		e.NormalizeState(DefaultArg, DefaultArg, 0)
	}
	e.Finish()

	remainderPower := uint64(1) << nLength
	skipMask := pow2(start) - 1
	disposedRes := disposedPerm << start
	sv := e.stateVec

	nStateVec := newStateVector(remainderPower)
	parFor(0, remainderPower, e.cfg.workers(), func(iHigh uint64, cpu int) {
		iLow := iHigh & skipMask
		nStateVec.write(iHigh, sv.read(iLow|((iHigh^iLow)<<length)|disposedRes))
	})

	e.setQubitCount(nLength)
	e.stateVec = nStateVec

	return nil
}

/*
decomposeDispose reconstructs the two reduced states as probability and
angle pairs: per-index probabilities come from summed partner norms, and
angles from norm-weighted phase averages, which keeps precision on nearly
product states. When dest is nil the separated range is simply discarded.
The returned score is the summed squared reconstruction error (zero when no
scoring pass runs).
*/
func (e *Engine) decomposeDispose(start, length int, dest *Engine) (float64, error) {
	if badBitRange(start, length, e.qubitCount) {
		return 0, invalidArgf("Decompose range out of bounds")
	}
	if dest != nil && dest.qubitCount != length {
		return 0, invalidArgf("Decompose destination width %d does not match range length %d", dest.qubitCount, length)
	}
	if length == 0 {
		return 0, nil
	}

	nLength := e.qubitCount - length

	e.Finish()

	if e.stateVec == nil {
		e.setQubitCount(nLength)
		if dest != nil {
			dest.ZeroAmplitudes()
		}
		return 0, nil
	}

	if nLength == 0 {
		if dest != nil {
			dest.Dump()
			dest.stateVec = e.stateVec
			dest.runningNorm = e.runningNorm
		}
		e.stateVec = nil
		e.runningNorm = 0
		e.setQubitCount(0)
		return 0, nil
	}

	if dest != nil && dest.stateVec == nil {
		if err := dest.SetPermutation(0); err != nil {
			return 0, err
		}
	}

	if e.cfg.DoNormalize {
		e.NormalizeState(DefaultArg, DefaultArg, 0)
	}
	e.Finish()

	partPower := uint64(1) << length
	remainderPower := uint64(1) << nLength
	startMask := pow2(start) - 1
	floor := e.cfg.AmplitudeFloor
	workers := e.cfg.workers()
	sv := e.stateVec

	remainderStateProb := make([]float64, remainderPower)
	remainderStateAngle := make([]float64, remainderPower)

	parFor(0, remainderPower, workers, func(lcv uint64, cpu int) {
		j := lcv & startMask
		j |= (lcv ^ j) << length

		for k := uint64(0); k < partPower; k++ {
			amp := sv.read(j | (k << start))
			nrm := normC(amp)
			remainderStateProb[lcv] += nrm
			if nrm > floor {
				remainderStateAngle[lcv] += cmplx.Phase(amp) * nrm
			}
		}

		if prob := remainderStateProb[lcv]; prob > floor {
			remainderStateAngle[lcv] /= prob
		}
	})

	var partStateProb, partStateAngle []float64
	if dest != nil {
		partStateProb = make([]float64, partPower)
		partStateAngle = make([]float64, partPower)

		parFor(0, partPower, workers, func(lcv uint64, cpu int) {
			j := lcv << start

			for k := uint64(0); k < remainderPower; k++ {
				l := k & startMask
				l |= j | ((k ^ l) << length)

				amp := sv.read(l)
				nrm := normC(amp)
				partStateProb[lcv] += nrm
				if nrm > floor {
					partStateAngle[lcv] += cmplx.Phase(amp) * nrm
				}
			}

			if prob := partStateProb[lcv]; prob > floor {
				partStateAngle[lcv] /= prob
			}
		})
	}

	var score float64
	if dest != nil && e.cfg.SeparabilityThreshold > 0 {
		partials := make([]float64, max(workers, 1))
		parFor(0, remainderPower, workers, func(lcv uint64, cpu int) {
			j := lcv & startMask
			j |= (lcv ^ j) << length

			for k := uint64(0); k < partPower; k++ {
				amp := sv.read(j | (k << start))
				recon := cmplx.Rect(
					math.Sqrt(remainderStateProb[lcv]*partStateProb[k]),
					remainderStateAngle[lcv]+partStateAngle[k],
				)
				partials[cpu] += normC(amp - recon)
			}
		})
		for _, p := range partials {
			score += p
		}
		if score > e.cfg.SeparabilityThreshold {
			errnie.Info(
				"decompose - separability residual %g exceeds threshold %g; the separated range was still entangled",
				score,
				e.cfg.SeparabilityThreshold,
			)
		}
	}

	if dest != nil {
		dest.Dump()
		dsv := dest.stateVec
		parFor(0, partPower, workers, func(lcv uint64, cpu int) {
			dsv.write(lcv, cmplx.Rect(math.Sqrt(partStateProb[lcv]), partStateAngle[lcv]))
		})
		dest.runningNorm = 1
	}

	e.setQubitCount(nLength)
	e.stateVec = newStateVector(remainderPower)
	nsv := e.stateVec

	parFor(0, remainderPower, workers, func(lcv uint64, cpu int) {
		nsv.write(lcv, cmplx.Rect(math.Sqrt(remainderStateProb[lcv]), remainderStateAngle[lcv]))
	})

	if e.cfg.DoNormalize {
		e.runningNorm = 1
	} else {
		e.runningNorm = runningNormUnknown
	}

	return score, nil
}
