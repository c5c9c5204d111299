package qsim

// StateVector owns the contiguous buffer of 2^N complex amplitudes. It does
// no normalization and no bounds checking of its own; the Engine validates
// every index before a kernel runs.
type StateVector struct {
	amps []complex128
}

func newStateVector(size uint64) *StateVector {
	return &StateVector{amps: make([]complex128, size)}
}

func (sv *StateVector) size() uint64 {
	return uint64(len(sv.amps))
}

func (sv *StateVector) read(i uint64) complex128 {
	return sv.amps[i]
}

func (sv *StateVector) write(i uint64, a complex128) {
	sv.amps[i] = a
}

// read2 fetches an amplitude pair, the unit every 2x2 kernel works on.
func (sv *StateVector) read2(i, j uint64) (complex128, complex128) {
	return sv.amps[i], sv.amps[j]
}

func (sv *StateVector) write2(i uint64, a complex128, j uint64, b complex128) {
	sv.amps[i] = a
	sv.amps[j] = b
}

func (sv *StateVector) clear() {
	for i := range sv.amps {
		sv.amps[i] = 0
	}
}

func (sv *StateVector) copyIn(src []complex128, offset uint64) {
	copy(sv.amps[offset:offset+uint64(len(src))], src)
}

func (sv *StateVector) copyOut(dst []complex128, offset uint64) {
	copy(dst, sv.amps[offset:offset+uint64(len(dst))])
}

// copyInFrom copies a page of another vector into this one.
func (sv *StateVector) copyInFrom(src *StateVector, srcOffset, dstOffset, length uint64) {
	copy(sv.amps[dstOffset:dstOffset+length], src.amps[srcOffset:srcOffset+length])
}

func (sv *StateVector) copyAll(src *StateVector) {
	copy(sv.amps, src.amps)
}

// shuffle exchanges this vector's upper half with the other vector's lower
// half. The tensor-network layer stitches split registers back together with
// exactly this exchange.
func (sv *StateVector) shuffle(other *StateVector) {
	half := sv.size() >> 1
	upper := sv.amps[half:]
	lower := other.amps[:half]
	for i := range upper {
		upper[i], lower[i] = lower[i], upper[i]
	}
}

// getProbs fills out with squared magnitudes.
func (sv *StateVector) getProbs(out []float64) {
	for i, a := range sv.amps {
		out[i] = normC(a)
	}
}

// normC is the squared magnitude of an amplitude.
func normC(a complex128) float64 {
	re, im := real(a), imag(a)
	return re*re + im*im
}
