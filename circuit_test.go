package qsim

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestCircuitFusion(t *testing.T) {
	Convey("Given gate fusion rules", t, func() {
		Convey("A gate and its inverse cancel to nothing", func() {
			c := NewCircuit()
			c.AppendGate(NewGate(0, hGate))
			c.AppendGate(NewGate(0, hGate))
			So(c.GateCount(), ShouldEqual, 0)
		})

		Convey("Identity gates are dropped on append", func() {
			c := NewCircuit()
			c.AppendGate(NewGate(0, [4]complex128{1, 0, 0, 1}))
			So(c.GateCount(), ShouldEqual, 0)
		})

		Convey("Same-target gates fuse into one payload product", func() {
			c := NewCircuit()
			c.AppendGate(NewGate(0, xGate))
			c.AppendGate(NewGate(0, hGate))
			So(c.GateCount(), ShouldEqual, 1)

			// H * X, applied right to left.
			p := c.Gates()[0].Payloads[0]
			So(real(p[0]), ShouldAlmostEqual, real(hGate[1]), 1e-12)
			So(real(p[2]), ShouldAlmostEqual, real(hGate[3]), 1e-12)
		})

		Convey("Appends never grow the sequence beyond their count", func() {
			c := NewCircuit()
			appends := 0
			for i := 0; i < 4; i++ {
				c.AppendGate(NewGate(i%2, hGate))
				appends++
			}
			So(c.GateCount(), ShouldBeLessThanOrEqualTo, appends)
		})

		Convey("Phase gates commute past controls to reach a partner", func() {
			c := NewCircuit()
			z := [4]complex128{1, 0, 0, -1}

			c.AppendGate(NewGate(0, z))
			c.AppendGate(NewControlledGate(1, xGate, []int{0}, 1))
			// Z on the control commutes with CNOT, so it fuses with the
			// earlier Z into identity.
			c.AppendGate(NewGate(0, z))
			So(c.GateCount(), ShouldEqual, 1)
		})

		Convey("Non-commuting gates keep their order", func() {
			c := NewCircuit()
			c.AppendGate(NewControlledGate(1, xGate, []int{0}, 1))
			c.AppendGate(NewGate(1, hGate))
			c.AppendGate(NewGate(1, hGate))
			// H cannot pass the CNOT target, so the pair must cancel with
			// itself, not reorder around it.
			So(c.GateCount(), ShouldEqual, 1)
		})

		Convey("The implied qubit count tracks the highest reference", func() {
			c := NewCircuit()
			c.AppendGate(NewControlledGate(1, xGate, []int{4}, 1))
			So(c.QubitCount(), ShouldEqual, 5)
		})
	})
}

func TestCircuitSwap(t *testing.T) {
	Convey("Given the three-CNOT swap decomposition", t, func() {
		Convey("Two swaps of the same pair cancel completely", func() {
			c := NewCircuit()
			c.Swap(0, 1)
			So(c.GateCount(), ShouldEqual, 3)
			c.Swap(1, 0)
			So(c.GateCount(), ShouldEqual, 0)
		})

		Convey("Running a swap exchanges the qubit states", func() {
			c := NewCircuit()
			c.Swap(0, 1)

			e := newTestEngine(t, 2, 0b01)
			So(c.Run(e), ShouldBeNil)

			amp, err := e.GetAmplitude(0b10)
			So(err, ShouldBeNil)
			So(normC(amp), ShouldAlmostEqual, 1, 1e-9)
		})

		Convey("The decomposition exchanges the crossing amplitudes", func() {
			c := NewCircuit()
			c.Swap(0, 1)

			e := newTestEngine(t, 2, 0)
			So(e.Mtrx(hGate, 0), ShouldBeNil)
			So(e.Phase(1, 1i, 0), ShouldBeNil)
			// State before the swap: amp(00) = 1/sqrt2, amp(01) = i/sqrt2.

			So(c.Run(e), ShouldBeNil)

			a00, _ := e.GetAmplitude(0b00)
			a01, _ := e.GetAmplitude(0b01)
			a10, _ := e.GetAmplitude(0b10)
			So(normC(a00-sqrt2Inv), ShouldAlmostEqual, 0, 1e-9)
			So(normC(a10-1i*sqrt2Inv), ShouldAlmostEqual, 0, 1e-9)
			So(normC(a01), ShouldAlmostEqual, 0, 1e-9)
		})
	})
}

func TestCircuitRun(t *testing.T) {
	Convey("Given circuit lowering onto an engine", t, func() {
		Convey("A Bell circuit matches direct gate dispatch", func() {
			c := NewCircuit()
			c.AppendGate(NewGate(0, hGate))
			c.AppendGate(NewControlledGate(1, xGate, []int{0}, 1))

			e := newTestEngine(t, 2, 0)
			ref := newTestEngine(t, 2, 0)
			So(c.Run(e), ShouldBeNil)
			So(ref.Mtrx(hGate, 0), ShouldBeNil)
			So(ref.MCMtrx([]int{0}, xGate, 1), ShouldBeNil)

			So(e.SumSqrDiff(ref), ShouldAlmostEqual, 0, 1e-9)
		})

		Convey("An anti-controlled payload lowers to MACMtrx", func() {
			c := NewCircuit()
			c.AppendGate(NewControlledGate(1, xGate, []int{0}, 0))

			e := newTestEngine(t, 2, 0)
			ref := newTestEngine(t, 2, 0)
			So(c.Run(e), ShouldBeNil)
			So(ref.MACMtrx([]int{0}, xGate, 1), ShouldBeNil)

			So(e.SumSqrDiff(ref), ShouldAlmostEqual, 0, 1e-9)
		})

		Convey("A mixed control pattern is X-conjugated into place", func() {
			c := NewCircuit()
			// Fires when control 0 is set and control 1 is clear.
			c.AppendGate(NewControlledGate(2, xGate, []int{0, 1}, 0b01))

			e := newTestEngine(t, 3, 0b001)
			So(c.Run(e), ShouldBeNil)

			amp, err := e.GetAmplitude(0b101)
			So(err, ShouldBeNil)
			So(normC(amp), ShouldAlmostEqual, 1, 1e-9)
		})

		Convey("A full payload map lowers to one uniformly controlled call", func() {
			payloads := map[uint64]*[4]complex128{
				0: {hGate[0], hGate[1], hGate[2], hGate[3]},
				1: {0, 1, 1, 0},
			}
			c := NewCircuit()
			c.AppendGate(NewUniformGate(1, payloads, []int{0}))

			e := newTestEngine(t, 2, 0)
			ref := newTestEngine(t, 2, 0)
			So(e.Mtrx(hGate, 0), ShouldBeNil)
			So(ref.Mtrx(hGate, 0), ShouldBeNil)

			So(c.Run(e), ShouldBeNil)
			So(ref.MACMtrx([]int{0}, hGate, 1), ShouldBeNil)
			So(ref.MCMtrx([]int{0}, xGate, 1), ShouldBeNil)

			So(e.SumSqrDiff(ref), ShouldAlmostEqual, 0, 1e-9)
		})

		Convey("A circuit wider than the engine is rejected", func() {
			c := NewCircuit()
			c.AppendGate(NewGate(3, hGate))

			e := newTestEngine(t, 2, 0)
			So(c.Run(e), ShouldNotBeNil)
		})
	})
}
