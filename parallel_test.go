package qsim

import (
	"sync/atomic"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestParFor(t *testing.T) {
	Convey("Given dense parallel iteration", t, func() {
		Convey("Every index is visited exactly once", func() {
			const n = 1 << 14
			visits := make([]int32, n)
			parFor(0, n, 4, func(lcv uint64, cpu int) {
				atomic.AddInt32(&visits[lcv], 1)
			})

			for i, v := range visits {
				if v != 1 {
					t.Fatalf("index %d visited %d times", i, v)
				}
			}
			So(true, ShouldBeTrue)
		})

		Convey("Worker indices stay within the accumulator bounds", func() {
			const workers = 3
			var maxCPU atomic.Int32
			parFor(0, 1<<12, workers, func(lcv uint64, cpu int) {
				for {
					cur := maxCPU.Load()
					if int32(cpu) <= cur || maxCPU.CompareAndSwap(cur, int32(cpu)) {
						return
					}
				}
			})
			So(maxCPU.Load(), ShouldBeLessThan, int32(workers))
		})

		Convey("An empty range does nothing", func() {
			called := false
			parFor(4, 4, 4, func(lcv uint64, cpu int) { called = true })
			So(called, ShouldBeFalse)
		})
	})
}

func TestParForSkip(t *testing.T) {
	Convey("Given strided iteration with one bit field held at zero", t, func() {
		var got []uint64
		parForSkip(0, 16, 2, 1, 1, func(lcv uint64, cpu int) {
			got = append(got, lcv)
		})

		Convey("Only indices with the skipped bit clear appear", func() {
			So(len(got), ShouldEqual, 8)
			for _, v := range got {
				So(v&2, ShouldEqual, uint64(0))
			}
		})
	})
}

func TestParForMask(t *testing.T) {
	Convey("Given masked iteration over the complement of a bit set", t, func() {
		seen := map[uint64]bool{}
		parForMask(0, 16, []uint64{1, 4}, 1, func(lcv uint64, cpu int) {
			seen[lcv] = true
		})

		Convey("The enumerated set is exactly the free-bit combinations", func() {
			So(len(seen), ShouldEqual, 4)
			So(seen[0], ShouldBeTrue)
			So(seen[2], ShouldBeTrue)
			So(seen[8], ShouldBeTrue)
			So(seen[10], ShouldBeTrue)
		})
	})
}

func TestParNorm(t *testing.T) {
	Convey("Given a norm reduction", t, func() {
		sv := newStateVector(4)
		sv.write(0, complex(0.6, 0))
		sv.write(3, complex(0, 0.8))

		Convey("The full sum of squared magnitudes comes back", func() {
			So(parNorm(sv, 0, 2), ShouldAlmostEqual, 1, 1e-12)
		})

		Convey("The floor discards small amplitudes", func() {
			sv.write(1, complex(1e-9, 0))
			So(parNorm(sv, 1e-12, 2), ShouldAlmostEqual, 1, 1e-12)
		})
	})
}
