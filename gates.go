package qsim

import (
	"math"
	"math/bits"
	"math/cmplx"
	"slices"
)

func pow2(q int) uint64 {
	return uint64(1) << q
}

func isPowerOfTwo(v uint64) bool {
	return v&(v-1) == 0
}

func (e *Engine) validQubit(q int, op string) error {
	if q < 0 || q >= e.qubitCount {
		return invalidArgf("%s qubit %d out of bounds", op, q)
	}
	return nil
}

func (e *Engine) validControls(controls []int, target int, op string) error {
	for i, c := range controls {
		if c < 0 || c >= e.qubitCount {
			return invalidArgf("%s control %d out of bounds", op, c)
		}
		if c == target {
			return invalidArgf("%s control %d duplicates target", op, c)
		}
		for _, prev := range controls[:i] {
			if prev == c {
				return invalidArgf("%s control %d duplicated", op, c)
			}
		}
	}
	return nil
}

// Mtrx applies an arbitrary 2x2 unitary to one qubit.
func (e *Engine) Mtrx(mtrx [4]complex128, target int) error {
	if err := e.validQubit(target, "Mtrx"); err != nil {
		return err
	}

	targetPower := pow2(target)
	doCalcNorm := e.cfg.DoNormalize && !(isPhaseMtrx(&mtrx) || isInvertMtrx(&mtrx))

	return e.Apply2x2(0, targetPower, mtrx, []uint64{targetPower}, doCalcNorm, DefaultArg)
}

// MCMtrx applies a 2x2 unitary to the target on the subspace where every
// control qubit is set.
func (e *Engine) MCMtrx(controls []int, mtrx [4]complex128, target int) error {
	if err := e.validQubit(target, "MCMtrx"); err != nil {
		return err
	}
	if err := e.validControls(controls, target, "MCMtrx"); err != nil {
		return err
	}
	if len(controls) == 0 {
		return e.Mtrx(mtrx, target)
	}

	targetPower := pow2(target)
	var controlMask uint64
	powers := make([]uint64, 0, len(controls)+1)
	for _, c := range controls {
		controlMask |= pow2(c)
		powers = append(powers, pow2(c))
	}
	powers = append(powers, targetPower)
	slices.Sort(powers)

	doCalcNorm := e.cfg.DoNormalize && !(isPhaseMtrx(&mtrx) || isInvertMtrx(&mtrx))

	return e.Apply2x2(controlMask, controlMask|targetPower, mtrx, powers, doCalcNorm, DefaultArg)
}

// MACMtrx applies a 2x2 unitary to the target on the subspace where every
// control qubit is clear (anti-controls).
func (e *Engine) MACMtrx(controls []int, mtrx [4]complex128, target int) error {
	if err := e.validQubit(target, "MACMtrx"); err != nil {
		return err
	}
	if err := e.validControls(controls, target, "MACMtrx"); err != nil {
		return err
	}
	if len(controls) == 0 {
		return e.Mtrx(mtrx, target)
	}

	targetPower := pow2(target)
	powers := make([]uint64, 0, len(controls)+1)
	for _, c := range controls {
		powers = append(powers, pow2(c))
	}
	powers = append(powers, targetPower)
	slices.Sort(powers)

	doCalcNorm := e.cfg.DoNormalize && !(isPhaseMtrx(&mtrx) || isInvertMtrx(&mtrx))

	return e.Apply2x2(0, targetPower, mtrx, powers, doCalcNorm, DefaultArg)
}

// Phase applies a diagonal single-qubit gate.
func (e *Engine) Phase(topLeft, bottomRight complex128, target int) error {
	return e.Mtrx([4]complex128{topLeft, 0, 0, bottomRight}, target)
}

// Invert applies an anti-diagonal single-qubit gate.
func (e *Engine) Invert(topRight, bottomLeft complex128, target int) error {
	return e.Mtrx([4]complex128{0, topRight, bottomLeft, 0}, target)
}

// X applies the Pauli X (NOT) gate.
func (e *Engine) X(target int) error {
	return e.Invert(1, 1, target)
}

// XMask applies X to every qubit in the mask with a single buffer pass: each
// amplitude swaps with its mask-complement partner.
func (e *Engine) XMask(mask uint64) error {
	if mask >= e.maxQPower {
		return invalidArgf("XMask mask out of bounds")
	}
	if mask == 0 {
		return nil
	}
	if isPowerOfTwo(mask) {
		return e.X(bits.TrailingZeros64(mask))
	}

	e.dispatch(e.maxQPower, func() {
		sv := e.stateVec
		if sv == nil {
			return
		}

		otherMask := (e.maxQPower - 1) ^ mask
		parFor(0, e.maxQPower, e.cfg.workers(), func(lcv uint64, cpu int) {
			otherRes := lcv & otherMask
			setInt := lcv & mask
			resetInt := setInt ^ mask

			if setInt < resetInt {
				return
			}

			setInt |= otherRes
			resetInt |= otherRes

			y0 := sv.read(resetInt)
			sv.write(resetInt, sv.read(setInt))
			sv.write(setInt, y0)
		})
	})

	return nil
}

// ZMask applies Z to every qubit in the mask: amplitudes with an odd count
// of set mask bits are negated.
func (e *Engine) ZMask(mask uint64) error {
	if mask >= e.maxQPower {
		return invalidArgf("ZMask mask out of bounds")
	}
	if mask == 0 {
		return nil
	}
	if isPowerOfTwo(mask) {
		return e.Phase(1, -1, bits.TrailingZeros64(mask))
	}

	e.dispatch(e.maxQPower, func() {
		sv := e.stateVec
		if sv == nil {
			return
		}

		parFor(0, e.maxQPower, e.cfg.workers(), func(lcv uint64, cpu int) {
			if bits.OnesCount64(lcv&mask)&1 == 1 {
				sv.write(lcv, -sv.read(lcv))
			}
		})
	})

	return nil
}

// PhaseParity multiplies amplitudes by e^(i*radians/2) on odd mask parity
// and by the conjugate on even parity.
func (e *Engine) PhaseParity(radians float64, mask uint64) error {
	if mask >= e.maxQPower {
		return invalidArgf("PhaseParity mask out of bounds")
	}
	if mask == 0 {
		return nil
	}
	if isPowerOfTwo(mask) {
		phaseFac := cmplx.Rect(1, radians/2)
		return e.Phase(1/phaseFac, phaseFac, bits.TrailingZeros64(mask))
	}

	e.dispatch(e.maxQPower, func() {
		sv := e.stateVec
		if sv == nil {
			return
		}

		phaseFac := cmplx.Rect(1, radians/2)
		phaseFacAdj := cmplx.Conj(phaseFac)
		parFor(0, e.maxQPower, e.cfg.workers(), func(lcv uint64, cpu int) {
			if bits.OnesCount64(lcv&mask)&1 == 1 {
				sv.write(lcv, phaseFac*sv.read(lcv))
			} else {
				sv.write(lcv, phaseFacAdj*sv.read(lcv))
			}
		})
	})

	return nil
}

// PhaseRootNMask applies the n-th root-of-Z phase to every qubit in the
// mask: each amplitude picks up e^(-i*pi/2^(n-1)) per set mask bit, modulo
// 2^n phase steps.
func (e *Engine) PhaseRootNMask(n int, mask uint64) error {
	if n < 0 {
		return invalidArgf("PhaseRootNMask root %d out of bounds", n)
	}
	if mask >= e.maxQPower {
		return invalidArgf("PhaseRootNMask mask out of bounds")
	}
	if n == 0 || mask == 0 {
		return nil
	}
	if n == 1 {
		return e.ZMask(mask)
	}

	radians := -math.Pi / float64(uint64(1)<<(n-1))

	if isPowerOfTwo(mask) {
		return e.Phase(1, cmplx.Rect(1, radians), bits.TrailingZeros64(mask))
	}

	nPhases := uint64(1) << n
	e.dispatch(e.maxQPower, func() {
		sv := e.stateVec
		if sv == nil {
			return
		}

		parFor(0, e.maxQPower, e.cfg.workers(), func(lcv uint64, cpu int) {
			steps := uint64(bits.OnesCount64(lcv&mask)) % nPhases
			if steps != 0 {
				sv.write(lcv, cmplx.Rect(1, radians*float64(steps))*sv.read(lcv))
			}
		})
	})

	return nil
}

// UniformParityRZ rotates by e^(i*angle) on odd mask parity and by the
// conjugate on even parity.
func (e *Engine) UniformParityRZ(mask uint64, angle float64) error {
	if mask >= e.maxQPower {
		return invalidArgf("UniformParityRZ mask out of bounds")
	}

	e.dispatch(e.maxQPower, func() {
		sv := e.stateVec
		if sv == nil {
			return
		}

		phaseFac := cmplx.Rect(1, angle)
		phaseFacAdj := cmplx.Conj(phaseFac)
		parFor(0, e.maxQPower, e.cfg.workers(), func(lcv uint64, cpu int) {
			if bits.OnesCount64(lcv&mask)&1 == 1 {
				sv.write(lcv, phaseFac*sv.read(lcv))
			} else {
				sv.write(lcv, phaseFacAdj*sv.read(lcv))
			}
		})
	})

	return nil
}

// CUniformParityRZ is UniformParityRZ restricted to the subspace where every
// control qubit is set.
func (e *Engine) CUniformParityRZ(controls []int, mask uint64, angle float64) error {
	if len(controls) == 0 {
		return e.UniformParityRZ(mask, angle)
	}
	if mask >= e.maxQPower {
		return invalidArgf("CUniformParityRZ mask out of bounds")
	}
	for i, c := range controls {
		if c < 0 || c >= e.qubitCount {
			return invalidArgf("CUniformParityRZ control %d out of bounds", c)
		}
		for _, prev := range controls[:i] {
			if prev == c {
				return invalidArgf("CUniformParityRZ control %d duplicated", c)
			}
		}
	}

	sorted := append([]int(nil), controls...)
	slices.Sort(sorted)

	controlPowers := make([]uint64, len(sorted))
	var controlMask uint64
	for i, c := range sorted {
		controlPowers[i] = pow2(c)
		controlMask |= controlPowers[i]
	}

	e.dispatch(e.maxQPower>>len(sorted), func() {
		sv := e.stateVec
		if sv == nil {
			return
		}

		phaseFac := cmplx.Rect(1, angle)
		phaseFacAdj := cmplx.Conj(phaseFac)
		parForMask(0, e.maxQPower, controlPowers, e.cfg.workers(), func(lcv uint64, cpu int) {
			i := controlMask | lcv
			if bits.OnesCount64(lcv&mask)&1 == 1 {
				sv.write(i, phaseFac*sv.read(i))
			} else {
				sv.write(i, phaseFacAdj*sv.read(i))
			}
		})
	})

	return nil
}

/*
UniformlyControlledSingleBit applies a different 2x2 matrix to the target
for every permutation of the control qubits. mtrxs is a flat array of
4*2^len(controls) entries indexed by control bit pattern. mtrxSkipPowers
compresses the matrix index space: bits at those powers are not decoded from
the state index but taken from mtrxSkipValueMask instead.
*/
func (e *Engine) UniformlyControlledSingleBit(controls []int, target int, mtrxs []complex128, mtrxSkipPowers []uint64, mtrxSkipValueMask uint64) error {
	if len(controls) == 0 {
		base := 4 * mtrxSkipValueMask
		if uint64(len(mtrxs)) < base+4 {
			return invalidArgf("UniformlyControlledSingleBit payload array too short")
		}
		return e.Mtrx([4]complex128(mtrxs[base:base+4]), target)
	}

	if err := e.validQubit(target, "UniformlyControlledSingleBit"); err != nil {
		return err
	}
	if err := e.validControls(controls, target, "UniformlyControlledSingleBit"); err != nil {
		return err
	}

	targetPower := pow2(target)
	qPowers := make([]uint64, len(controls))
	for i, c := range controls {
		qPowers[i] = pow2(c)
	}

	e.Finish()

	sv := e.stateVec
	if sv == nil {
		return nil
	}

	scale := complex128(1)
	if e.cfg.DoNormalize && e.runningNorm > 0 {
		scale = complex(1/math.Sqrt(e.runningNorm), 0)
	}

	parForSkip(0, e.maxQPower, targetPower, 1, e.cfg.workers(), func(lcv uint64, cpu int) {
		var offset uint64
		for j, p := range qPowers {
			if lcv&p != 0 {
				offset |= uint64(1) << j
			}
		}

		// Re-insert the skipped bits at their original positions with the
		// low/high split reconstruction.
		var i uint64
		iHigh := offset
		for _, p := range mtrxSkipPowers {
			iLow := iHigh & (p - 1)
			i |= iLow
			iHigh = (iHigh ^ iLow) << 1
		}
		i |= iHigh

		// The matrix offset is permutation * 4, for the components of the
		// 2x2 blocks.
		base := (i | mtrxSkipValueMask) << 2

		y0, y1 := sv.read2(lcv, lcv|targetPower)
		sv.write2(lcv, scale*(mtrxs[base]*y0+mtrxs[base+1]*y1),
			lcv|targetPower, scale*(mtrxs[base+2]*y0+mtrxs[base+3]*y1))
	})

	if e.cfg.DoNormalize {
		e.runningNorm = 1
	}

	return nil
}
