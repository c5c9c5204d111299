package qsim

import "math/bits"

/*
MAll measures every qubit at once: a uniform draw walks the cumulative
probability distribution over all permutations, and the register collapses
to the winning basis state. The epsilon-tolerant tail case selects the last
permutation with any weight, so accumulated rounding can never run the scan
off the end.
*/
func (e *Engine) MAll() uint64 {
	if e.cfg.DoNormalize {
		e.NormalizeState(DefaultArg, DefaultArg, 0)
	}
	e.Finish()

	if e.stateVec == nil {
		return 0
	}

	rnd := e.rng.Float64()
	var totProb float64
	lastNonzero := e.maxQPower - 1
	sv := e.stateVec

	for perm := uint64(0); perm < e.maxQPower; perm++ {
		partProb := normC(sv.read(perm))
		if partProb <= fpNormEpsilon {
			continue
		}
		totProb += partProb
		if totProb > rnd || 1-totProb <= e.cfg.NormEpsilon {
			e.SetPermutation(perm)
			return perm
		}
		lastNonzero = perm
	}

	e.SetPermutation(lastNonzero)
	return lastNonzero
}

/*
ForceMParity measures the parity of the mask qubits. When doForce is unset,
the outcome is sampled from ProbParity; either way, every amplitude whose
mask parity disagrees with the outcome is zeroed, the survivors' norms
become the running norm, and normalization is either deferred to the next
single-qubit gate or applied immediately when the engine does not
renormalize on its own.
*/
func (e *Engine) ForceMParity(mask uint64, result, doForce bool) (bool, error) {
	if mask >= e.maxQPower {
		return false, invalidArgf("ForceMParity mask out of bounds")
	}

	e.Finish()

	if e.stateVec == nil || mask == 0 {
		return false, nil
	}

	if !doForce {
		oddProb, err := e.ProbParity(mask)
		if err != nil {
			return false, err
		}
		result = e.rng.Float64() <= oddProb
	}

	var want int
	if result {
		want = 1
	}

	sv := e.stateVec
	if sv == nil {
		return false, nil
	}

	workers := e.cfg.workers()
	survivors := make([]float64, max(workers, 1))

	parFor(0, e.maxQPower, workers, func(lcv uint64, cpu int) {
		if bits.OnesCount64(lcv&mask)&1 == want {
			survivors[cpu] += normC(sv.read(lcv))
		} else {
			sv.write(lcv, 0)
		}
	})

	var total float64
	for _, p := range survivors {
		total += p
	}
	e.runningNorm = total

	if !e.cfg.DoNormalize {
		e.NormalizeState(DefaultArg, DefaultArg, 0)
	}

	return result, nil
}

// ApplyM projects the register onto the subspace where the regMask qubits
// read the given result, scaling survivors by nrm and zeroing the rest.
func (e *Engine) ApplyM(regMask, result uint64, nrm complex128) error {
	if regMask >= e.maxQPower {
		return invalidArgf("ApplyM mask out of bounds")
	}
	if result&^regMask != 0 {
		return invalidArgf("ApplyM result sets bits outside the mask")
	}

	e.dispatch(e.maxQPower, func() {
		sv := e.stateVec
		if sv == nil {
			return
		}

		parFor(0, e.maxQPower, e.cfg.workers(), func(i uint64, cpu int) {
			if i&regMask == result {
				sv.write(i, nrm*sv.read(i))
			} else {
				sv.write(i, 0)
			}
		})

		e.runningNorm = 1
	})

	return nil
}
