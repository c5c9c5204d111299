package qsim

import (
	"errors"
	"math"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestXMask(t *testing.T) {
	Convey("Given a four-qubit register", t, func() {
		e := newTestEngine(t, 4, 0b0101)

		Convey("XMask moves the sole permutation across the mask", func() {
			So(e.XMask(0b0110), ShouldBeNil)

			amp, err := e.GetAmplitude(0b0011)
			So(err, ShouldBeNil)
			So(real(amp), ShouldAlmostEqual, 1, 1e-12)
		})

		Convey("XMask is self-inverse on a superposed state", func() {
			ref := newTestEngine(t, 4, 0b0101)
			So(e.Mtrx(hGate, 0), ShouldBeNil)
			So(e.Mtrx(hGate, 2), ShouldBeNil)
			So(ref.Mtrx(hGate, 0), ShouldBeNil)
			So(ref.Mtrx(hGate, 2), ShouldBeNil)

			So(e.XMask(0b1101), ShouldBeNil)
			So(e.XMask(0b1101), ShouldBeNil)

			So(e.SumSqrDiff(ref), ShouldAlmostEqual, 0, 1e-9)
		})

		Convey("A single-bit mask behaves as the X gate", func() {
			So(e.XMask(0b1000), ShouldBeNil)

			amp, err := e.GetAmplitude(0b1101)
			So(err, ShouldBeNil)
			So(real(amp), ShouldAlmostEqual, 1, 1e-12)
		})

		Convey("An out-of-bounds mask fails", func() {
			So(errors.Is(e.XMask(1<<4), ErrInvalidArgument), ShouldBeTrue)
		})
	})
}

func TestZMaskAndPhaseParity(t *testing.T) {
	Convey("Given a two-qubit register", t, func() {
		e := newTestEngine(t, 2, 0)

		Convey("ZMask negates odd-popcount permutations", func() {
			So(e.Mtrx(hGate, 0), ShouldBeNil)
			So(e.Mtrx(hGate, 1), ShouldBeNil)
			So(e.ZMask(0b11), ShouldBeNil)

			amps := make([]complex128, 4)
			So(e.GetQuantumState(amps), ShouldBeNil)
			So(real(amps[0]), ShouldAlmostEqual, 0.5, 1e-12)
			So(real(amps[1]), ShouldAlmostEqual, -0.5, 1e-12)
			So(real(amps[2]), ShouldAlmostEqual, -0.5, 1e-12)
			So(real(amps[3]), ShouldAlmostEqual, 0.5, 1e-12)
		})

		Convey("PhaseParity rotates by half the angle on each parity class", func() {
			theta := 0.8
			So(e.Mtrx(hGate, 0), ShouldBeNil)
			So(e.Mtrx(hGate, 1), ShouldBeNil)
			So(e.PhaseParity(theta, 0b11), ShouldBeNil)

			amps := make([]complex128, 4)
			So(e.GetQuantumState(amps), ShouldBeNil)

			even := complex(0.5*math.Cos(theta/2), -0.5*math.Sin(theta/2))
			odd := complex(0.5*math.Cos(theta/2), 0.5*math.Sin(theta/2))
			So(normC(amps[0]-even), ShouldAlmostEqual, 0, 1e-12)
			So(normC(amps[1]-odd), ShouldAlmostEqual, 0, 1e-12)
			So(normC(amps[2]-odd), ShouldAlmostEqual, 0, 1e-12)
			So(normC(amps[3]-even), ShouldAlmostEqual, 0, 1e-12)
		})
	})
}

func TestPhaseRootNMask(t *testing.T) {
	Convey("Given a single qubit in |1>", t, func() {
		e := newTestEngine(t, 1, 1)

		Convey("Eight applications of the eighth root return to the start", func() {
			for i := 0; i < 8; i++ {
				So(e.PhaseRootNMask(3, 0b1), ShouldBeNil)
			}

			amp, err := e.GetAmplitude(1)
			So(err, ShouldBeNil)
			So(real(amp), ShouldAlmostEqual, 1, 1e-9)
			So(imag(amp), ShouldAlmostEqual, 0, 1e-9)
		})
	})

	Convey("Given a multi-bit mask", t, func() {
		e := newTestEngine(t, 2, 0)
		ref := newTestEngine(t, 2, 0)

		So(e.Mtrx(hGate, 0), ShouldBeNil)
		So(e.Mtrx(hGate, 1), ShouldBeNil)
		So(ref.Mtrx(hGate, 0), ShouldBeNil)
		So(ref.Mtrx(hGate, 1), ShouldBeNil)

		Convey("2^n applications are the identity", func() {
			for i := 0; i < 4; i++ {
				So(e.PhaseRootNMask(2, 0b11), ShouldBeNil)
			}
			So(e.SumSqrDiff(ref), ShouldAlmostEqual, 0, 1e-9)
		})

		Convey("n=1 reduces to ZMask", func() {
			So(e.PhaseRootNMask(1, 0b11), ShouldBeNil)
			So(ref.ZMask(0b11), ShouldBeNil)
			So(e.SumSqrDiff(ref), ShouldAlmostEqual, 0, 1e-9)
		})
	})
}

func TestUniformParityRZ(t *testing.T) {
	Convey("Given parity rotations", t, func() {
		Convey("Even parity picks up the conjugate phase", func() {
			e := newTestEngine(t, 2, 0)
			theta := 0.6
			So(e.UniformParityRZ(0b11, theta), ShouldBeNil)

			amp, err := e.GetAmplitude(0)
			So(err, ShouldBeNil)
			So(real(amp), ShouldAlmostEqual, math.Cos(theta), 1e-12)
			So(imag(amp), ShouldAlmostEqual, -math.Sin(theta), 1e-12)
		})

		Convey("The controlled form only touches the control subspace", func() {
			e := newTestEngine(t, 2, 0b10)
			theta := 0.6
			So(e.CUniformParityRZ([]int{1}, 0b01, theta), ShouldBeNil)

			amp, err := e.GetAmplitude(0b10)
			So(err, ShouldBeNil)
			So(real(amp), ShouldAlmostEqual, math.Cos(theta), 1e-12)
			So(imag(amp), ShouldAlmostEqual, -math.Sin(theta), 1e-12)

			e2 := newTestEngine(t, 2, 0b00)
			So(e2.CUniformParityRZ([]int{1}, 0b01, theta), ShouldBeNil)

			amp2, err := e2.GetAmplitude(0b00)
			So(err, ShouldBeNil)
			So(real(amp2), ShouldAlmostEqual, 1, 1e-12)
			So(imag(amp2), ShouldAlmostEqual, 0, 1e-12)
		})
	})
}

func TestUniformlyControlledSingleBit(t *testing.T) {
	Convey("Given a uniformly controlled gate", t, func() {
		Convey("The same payload in every slot equals the plain gate", func() {
			e := newTestEngine(t, 3, 0)
			ref := newTestEngine(t, 3, 0)

			So(e.Mtrx(hGate, 0), ShouldBeNil)
			So(e.Mtrx(hGate, 2), ShouldBeNil)
			So(ref.Mtrx(hGate, 0), ShouldBeNil)
			So(ref.Mtrx(hGate, 2), ShouldBeNil)

			mtrxs := make([]complex128, 4*4)
			for slot := 0; slot < 4; slot++ {
				copy(mtrxs[slot*4:], hGate[:])
			}

			So(e.UniformlyControlledSingleBit([]int{0, 2}, 1, mtrxs, nil, 0), ShouldBeNil)
			So(ref.Mtrx(hGate, 1), ShouldBeNil)

			So(e.SumSqrDiff(ref), ShouldAlmostEqual, 0, 1e-9)
		})

		Convey("Distinct payloads match the controlled-gate pair", func() {
			e := newTestEngine(t, 2, 0)
			ref := newTestEngine(t, 2, 0)

			So(e.Mtrx(hGate, 0), ShouldBeNil)
			So(ref.Mtrx(hGate, 0), ShouldBeNil)

			mtrxs := make([]complex128, 8)
			copy(mtrxs[0:], hGate[:])
			copy(mtrxs[4:], xGate[:])

			So(e.UniformlyControlledSingleBit([]int{0}, 1, mtrxs, nil, 0), ShouldBeNil)
			So(ref.MACMtrx([]int{0}, hGate, 1), ShouldBeNil)
			So(ref.MCMtrx([]int{0}, xGate, 1), ShouldBeNil)

			So(e.SumSqrDiff(ref), ShouldAlmostEqual, 0, 1e-9)
		})

		Convey("Skip powers re-index the payload array", func() {
			e := newTestEngine(t, 2, 0)
			ref := newTestEngine(t, 2, 0)

			So(e.Mtrx(hGate, 0), ShouldBeNil)
			So(ref.Mtrx(hGate, 0), ShouldBeNil)

			// The matrix index space covers two control bits, but bit 1 is
			// skipped and pinned to one: only slots 2 and 3 are reachable.
			mtrxs := make([]complex128, 16)
			copy(mtrxs[8:], hGate[:])
			copy(mtrxs[12:], xGate[:])

			So(e.UniformlyControlledSingleBit([]int{0}, 1, mtrxs, []uint64{2}, 2), ShouldBeNil)
			So(ref.MACMtrx([]int{0}, hGate, 1), ShouldBeNil)
			So(ref.MCMtrx([]int{0}, xGate, 1), ShouldBeNil)

			So(e.SumSqrDiff(ref), ShouldAlmostEqual, 0, 1e-9)
		})

		Convey("Control validation rejects duplicates", func() {
			e := newTestEngine(t, 2, 0)
			err := e.UniformlyControlledSingleBit([]int{0, 0}, 1, make([]complex128, 16), nil, 0)
			So(errors.Is(err, ErrInvalidArgument), ShouldBeTrue)
		})
	})
}

func TestApply2x2Validation(t *testing.T) {
	Convey("Given direct kernel invocations", t, func() {
		e := newTestEngine(t, 2, 0)

		Convey("Identity with doCalcNorm off is a no-op", func() {
			ref := newTestEngine(t, 2, 0)
			So(e.Mtrx(hGate, 0), ShouldBeNil)
			So(ref.Mtrx(hGate, 0), ShouldBeNil)

			ident := [4]complex128{1, 0, 0, 1}
			So(e.Apply2x2(0, 1, ident, []uint64{1}, false, DefaultArg), ShouldBeNil)

			So(e.SumSqrDiff(ref), ShouldAlmostEqual, 0, 1e-12)
		})

		Convey("A unitary preserves the norm", func() {
			So(e.Mtrx(hGate, 0), ShouldBeNil)
			So(e.Mtrx(hGate, 1), ShouldBeNil)
			e.UpdateRunningNorm(DefaultArg)
			So(e.RunningNorm(), ShouldAlmostEqual, 1, 1e-9)
		})

		Convey("Duplicate held powers are rejected", func() {
			err := e.Apply2x2(0, 1, hGate, []uint64{1, 1}, false, DefaultArg)
			So(errors.Is(err, ErrInvalidArgument), ShouldBeTrue)
		})

		Convey("Out-of-bounds offsets are rejected", func() {
			err := e.Apply2x2(0, 4, hGate, []uint64{1}, false, DefaultArg)
			So(errors.Is(err, ErrInvalidArgument), ShouldBeTrue)
		})

		Convey("Control-target overlap is rejected at the gate layer", func() {
			So(errors.Is(e.MCMtrx([]int{1}, xGate, 1), ErrInvalidArgument), ShouldBeTrue)
		})
	})
}

func TestKernelMetrics(t *testing.T) {
	Convey("Given a mix of gate classes", t, func() {
		e := newTestEngine(t, 2, 0)

		So(e.Phase(1, -1, 0), ShouldBeNil)
		So(e.X(0), ShouldBeNil)
		So(e.Mtrx(hGate, 0), ShouldBeNil)
		e.Finish()

		Convey("The kernel counters classify each dispatch", func() {
			snapshot := e.Metrics().ExportMetrics()
			So(snapshot["kernel_diagonal"], ShouldEqual, int64(1))
			So(snapshot["kernel_antidiag"], ShouldEqual, int64(1))
			So(snapshot["kernel_generic"], ShouldEqual, int64(1))
			So(snapshot["gates_dispatched"], ShouldEqual, int64(3))
		})
	})
}
