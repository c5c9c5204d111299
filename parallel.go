package qsim

import "sync"

// ParallelFunc is a kernel body. It receives the permutation index to work on
// and the worker index, so thread-local partial sums can go into a
// per-worker accumulator slot without contention.
type ParallelFunc func(lcv uint64, cpu int)

// parFor iterates [lo, hi) densely, split into one contiguous chunk per
// worker. There is no ordering guarantee between iterations; kernels must be
// commutative across indices or touch disjoint index pairs.
func parFor(lo, hi uint64, workers int, fn ParallelFunc) {
	if hi <= lo {
		return
	}

	count := hi - lo
	if workers < 1 || count < parallelGrain {
		for i := lo; i < hi; i++ {
			fn(i, 0)
		}
		return
	}

	chunk := (count + uint64(workers) - 1) / uint64(workers)
	var wg sync.WaitGroup
	for cpu := 0; cpu < workers; cpu++ {
		start := lo + uint64(cpu)*chunk
		if start >= hi {
			break
		}
		end := start + chunk
		if end > hi {
			end = hi
		}

		wg.Add(1)
		go func(cpu int, start, end uint64) {
			defer wg.Done()
			for i := start; i < end; i++ {
				fn(i, cpu)
			}
		}(cpu, start, end)
	}
	wg.Wait()
}

// parallelGrain is the iteration count below which goroutine fan-out costs
// more than it saves.
const parallelGrain = 1 << 10

// parForSkip iterates the index space with a contiguous skipLen-bit field
// held at zero at the bit position of skipPower. The reduced space has
// hi >> skipLen entries; each is re-inflated by splitting at the skip
// position and shifting the upper part left.
func parForSkip(lo, hi, skipPower uint64, skipLen int, workers int, fn ParallelFunc) {
	lowMask := skipPower - 1
	parFor(lo>>skipLen, hi>>skipLen, workers, func(i uint64, cpu int) {
		iLow := i & lowMask
		fn(iLow|((i^iLow)<<skipLen), cpu)
	})
}

// parForMask iterates the complement of an arbitrary bit set: every one-bit
// power in skipPowers (sorted ascending) is held at zero. Kernels receive
// indices that never collide on the pairs addressed through those bits.
func parForMask(lo, hi uint64, skipPowers []uint64, workers int, fn ParallelFunc) {
	parFor(lo>>len(skipPowers), hi>>len(skipPowers), workers, func(lcv uint64, cpu int) {
		iHigh := lcv
		var i uint64
		for _, p := range skipPowers {
			iLow := iHigh & (p - 1)
			i |= iLow
			iHigh = (iHigh ^ iLow) << 1
		}
		fn(i|iHigh, cpu)
	})
}

// parNorm reduces the sum of squared magnitudes, discarding amplitudes whose
// norm falls below floor. A floor of zero keeps everything.
func parNorm(sv *StateVector, floor float64, workers int) float64 {
	partials := make([]float64, max(workers, 1))
	parFor(0, sv.size(), workers, func(lcv uint64, cpu int) {
		nrm := normC(sv.read(lcv))
		if nrm >= floor {
			partials[cpu] += nrm
		}
	})

	var total float64
	for _, p := range partials {
		total += p
	}
	return total
}
