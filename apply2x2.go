package qsim

import "math"

/*
Apply2x2 multiplies a 2x2 matrix into every amplitude pair addressed by two
base offsets, across the complement of the held bit powers. It is the
primitive almost every gate lowers to.

offset1 and offset2 differ in the bits outside qPowsSorted (for a plain
single-qubit gate, offset1 is zero and offset2 is the target bit power).
qPowsSorted holds the target and control powers in strictly ascending order.
When doCalcNorm is set and either the single-target fold below applies or the
running norm is not known to be positive, the kernel recomputes the running
norm as it writes, clamping amplitudes whose squared magnitude falls below
normThresh (DefaultArg selects the configured amplitude floor); otherwise the
running norm is left as it was. When the engine
normalizes, a single-target call with a pending running norm folds the
1/sqrt(runningNorm) scale into the multiply.

The matrix is classified once per call: diagonal and anti-diagonal payloads
run cheaper kernels than the generic multiply.
*/
func (e *Engine) Apply2x2(offset1, offset2 uint64, mtrx [4]complex128, qPowsSorted []uint64, doCalcNorm bool, normThresh float64) error {
	if offset1 >= e.maxQPower || offset2 >= e.maxQPower {
		return invalidArgf("Apply2x2 offsets must be within allocated qubit bounds")
	}
	for i, p := range qPowsSorted {
		if p >= e.maxQPower {
			return invalidArgf("Apply2x2 held power %d out of bounds", p)
		}
		if i > 0 && qPowsSorted[i-1] >= p {
			return invalidArgf("Apply2x2 held powers must be strictly ascending (control and target qubits cannot repeat)")
		}
	}

	bitCount := len(qPowsSorted)
	powers := append([]uint64(nil), qPowsSorted...)

	e.dispatch(e.maxQPower>>bitCount, func() {
		sv := e.stateVec
		if sv == nil {
			return
		}

		thresh := normThresh
		if thresh < 0 {
			thresh = e.cfg.AmplitudeFloor
		}

		doApplyNorm := e.cfg.DoNormalize && bitCount == 1 && e.runningNorm > 0
		calcNorm := doCalcNorm && (doApplyNorm || e.runningNorm <= 0)

		scale := complex128(1)
		if doApplyNorm {
			scale = complex(1/math.Sqrt(e.runningNorm), 0)
		}

		m0 := scale * mtrx[0]
		m1 := scale * mtrx[1]
		m2 := scale * mtrx[2]
		m3 := scale * mtrx[3]

		workers := e.cfg.workers()
		rngNrm := make([]float64, max(workers, 1))

		// One transform per matrix class; the pair is (row o1, row o2).
		var pair func(lcv uint64) (complex128, complex128)
		var kind kernelKind
		switch {
		case normC(mtrx[1]) <= fpNormEpsilon && normC(mtrx[2]) <= fpNormEpsilon:
			kind = kernelDiagonal
			pair = func(lcv uint64) (complex128, complex128) {
				return m0 * sv.read(lcv+offset1), m3 * sv.read(lcv+offset2)
			}
		case normC(mtrx[0]) <= fpNormEpsilon && normC(mtrx[3]) <= fpNormEpsilon:
			kind = kernelAntiDiagonal
			pair = func(lcv uint64) (complex128, complex128) {
				return m1 * sv.read(lcv+offset2), m2 * sv.read(lcv+offset1)
			}
		default:
			kind = kernelGeneric
			pair = func(lcv uint64) (complex128, complex128) {
				y0, y1 := sv.read2(lcv+offset1, lcv+offset2)
				return m0*y0 + m1*y1, m2*y0 + m3*y1
			}
		}
		e.metrics.recordKernel(kind)

		var fn ParallelFunc
		switch {
		case !calcNorm:
			fn = func(lcv uint64, cpu int) {
				y0, y1 := pair(lcv)
				sv.write2(lcv+offset1, y0, lcv+offset2, y1)
			}
		case thresh > 0:
			fn = func(lcv uint64, cpu int) {
				y0, y1 := pair(lcv)
				if nrm := normC(y0); nrm < thresh {
					y0 = 0
				} else {
					rngNrm[cpu] += nrm
				}
				if nrm := normC(y1); nrm < thresh {
					y1 = 0
				} else {
					rngNrm[cpu] += nrm
				}
				sv.write2(lcv+offset1, y0, lcv+offset2, y1)
			}
		default:
			fn = func(lcv uint64, cpu int) {
				y0, y1 := pair(lcv)
				rngNrm[cpu] += normC(y0) + normC(y1)
				sv.write2(lcv+offset1, y0, lcv+offset2, y1)
			}
		}

		parForMask(0, e.maxQPower, powers, workers, fn)

		if doApplyNorm {
			e.runningNorm = 1
		}

		if !calcNorm {
			return
		}

		var rNrm float64
		for _, p := range rngNrm {
			rNrm += p
		}
		e.runningNorm = rNrm

		if e.runningNorm <= e.cfg.NormEpsilon {
			e.zeroAmplitudes()
		}
	})

	return nil
}

// isPhaseMtrx reports a diagonal 2x2 matrix.
func isPhaseMtrx(m *[4]complex128) bool {
	return normC(m[1]) <= fpNormEpsilon && normC(m[2]) <= fpNormEpsilon
}

// isInvertMtrx reports an anti-diagonal 2x2 matrix.
func isInvertMtrx(m *[4]complex128) bool {
	return normC(m[0]) <= fpNormEpsilon && normC(m[3]) <= fpNormEpsilon
}
