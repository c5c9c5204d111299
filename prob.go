package qsim

import "math/bits"

// Prob returns the probability of the qubit reading |1>.
func (e *Engine) Prob(qubit int) (float64, error) {
	if err := e.validQubit(qubit, "Prob"); err != nil {
		return 0, err
	}

	if e.cfg.DoNormalize {
		e.NormalizeState(DefaultArg, DefaultArg, 0)
	}
	e.Finish()

	if e.stateVec == nil {
		return 0, nil
	}

	if e.qubitCount == 1 {
		return clampProb(normC(e.stateVec.read(1))), nil
	}

	qPower := pow2(qubit)
	workers := e.cfg.workers()
	oneChance := make([]float64, max(workers, 1))
	sv := e.stateVec

	parForSkip(0, e.maxQPower, qPower, 1, workers, func(lcv uint64, cpu int) {
		oneChance[cpu] += normC(sv.read(lcv | qPower))
	})

	var total float64
	for _, p := range oneChance {
		total += p
	}
	return clampProb(total), nil
}

// ProbAll returns the probability of one whole-register permutation.
func (e *Engine) ProbAll(perm uint64) (float64, error) {
	if perm >= e.maxQPower {
		return 0, invalidArgf("ProbAll %d out of bounds", perm)
	}

	if e.cfg.DoNormalize {
		e.NormalizeState(DefaultArg, DefaultArg, 0)
	}
	e.Finish()

	if e.stateVec == nil {
		return 0, nil
	}
	return clampProb(normC(e.stateVec.read(perm))), nil
}

// ProbReg returns the probability that a contiguous register of qubits reads
// the given value.
func (e *Engine) ProbReg(start, length int, permutation uint64) (float64, error) {
	if badBitRange(start, length, e.qubitCount) {
		return 0, invalidArgf("ProbReg range out of bounds")
	}
	if length < 64 && permutation >= uint64(1)<<length {
		return 0, invalidArgf("ProbReg permutation %d out of bounds", permutation)
	}

	if e.cfg.DoNormalize {
		e.NormalizeState(DefaultArg, DefaultArg, 0)
	}
	e.Finish()

	if e.stateVec == nil {
		return 0, nil
	}

	perm := permutation << start
	workers := e.cfg.workers()
	probs := make([]float64, max(workers, 1))
	sv := e.stateVec

	parForSkip(0, e.maxQPower, pow2(start), length, workers, func(lcv uint64, cpu int) {
		probs[cpu] += normC(sv.read(lcv | perm))
	})

	var total float64
	for _, p := range probs {
		total += p
	}
	return clampProb(total), nil
}

// ProbMask returns the probability that the qubits selected by mask read the
// given permutation of those bits.
func (e *Engine) ProbMask(mask, permutation uint64) (float64, error) {
	if mask >= e.maxQPower {
		return 0, invalidArgf("ProbMask mask out of bounds")
	}
	if permutation&^mask != 0 {
		return 0, invalidArgf("ProbMask permutation sets bits outside the mask")
	}

	if e.cfg.DoNormalize {
		e.NormalizeState(DefaultArg, DefaultArg, 0)
	}
	e.Finish()

	if e.stateVec == nil {
		return 0, nil
	}

	skipPowers := maskBitPowers(mask)
	workers := e.cfg.workers()
	probs := make([]float64, max(workers, 1))
	sv := e.stateVec

	parForMask(0, e.maxQPower, skipPowers, workers, func(lcv uint64, cpu int) {
		probs[cpu] += normC(sv.read(lcv | permutation))
	})

	var total float64
	for _, p := range probs {
		total += p
	}
	return clampProb(total), nil
}

// ProbParity returns the probability that the mask qubits have odd parity.
func (e *Engine) ProbParity(mask uint64) (float64, error) {
	if mask >= e.maxQPower {
		return 0, invalidArgf("ProbParity mask out of bounds")
	}

	if e.cfg.DoNormalize {
		e.NormalizeState(DefaultArg, DefaultArg, 0)
	}
	e.Finish()

	if e.stateVec == nil || mask == 0 {
		return 0, nil
	}

	workers := e.cfg.workers()
	oddChance := make([]float64, max(workers, 1))
	sv := e.stateVec

	parFor(0, e.maxQPower, workers, func(lcv uint64, cpu int) {
		if bits.OnesCount64(lcv&mask)&1 == 1 {
			oddChance[cpu] += normC(sv.read(lcv))
		}
	})

	var total float64
	for _, p := range oddChance {
		total += p
	}
	return clampProb(total), nil
}

// CtrlOrAntiProb returns P(target=1 | control=controlState), the Bayes
// quotient of the masked probability by the marginal on the control.
func (e *Engine) CtrlOrAntiProb(controlState bool, control, target int) (float64, error) {
	if err := e.validQubit(control, "CtrlOrAntiProb"); err != nil {
		return 0, err
	}
	if err := e.validQubit(target, "CtrlOrAntiProb"); err != nil {
		return 0, err
	}
	if control == target {
		return 0, invalidArgf("CtrlOrAntiProb control duplicates target")
	}

	if e.IsZeroAmplitude() {
		return 0, nil
	}

	controlProb, err := e.Prob(control)
	if err != nil {
		return 0, err
	}
	if !controlState {
		controlProb = 1 - controlProb
	}

	if controlProb <= e.cfg.NormEpsilon {
		return 0, nil
	}
	if 1-controlProb <= e.cfg.NormEpsilon {
		return e.Prob(target)
	}

	qControlPower := pow2(control)
	var qControlMask uint64
	if controlState {
		qControlMask = qControlPower
	}
	qPower := pow2(target)

	workers := e.cfg.workers()
	oneChance := make([]float64, max(workers, 1))
	sv := e.stateVec

	parForSkip(0, e.maxQPower, qPower, 1, workers, func(lcv uint64, cpu int) {
		if lcv&qControlPower == qControlMask {
			oneChance[cpu] += normC(sv.read(lcv | qPower))
		}
	})

	var total float64
	for _, p := range oneChance {
		total += p
	}
	return clampProb(total / controlProb), nil
}

// maskBitPowers splits a mask into its one-bit powers, ascending.
func maskBitPowers(mask uint64) []uint64 {
	powers := make([]uint64, 0, bits.OnesCount64(mask))
	v := mask
	for v != 0 {
		oldV := v
		v &= v - 1
		powers = append(powers, oldV^v)
	}
	return powers
}
