// Package difficulty implements the LWMA difficulty controller. Every block
// recomputes the required leading zero bit count from a linearly weighted
// moving average of the last up to 60 solve times. All arithmetic is
// integer fixed point so every node derives the identical value.
package difficulty

import (
	"math/bits"
)

const (
	// TargetSpacing is the target block interval in seconds.
	TargetSpacing = 90

	// Window is the number of solve times the controller averages.
	Window = 60

	// MinBits is the difficulty floor.
	MinBits = 1

	// MaxBits is the difficulty ceiling.
	MaxBits = 240

	// maxSolveTime clamps a single solve time so one stuck block can't
	// swing the average.
	maxSolveTime = 6 * TargetSpacing
)

// FixedPoint is a difficulty value in Q16.16 fixed point. The header
// carries the rounded integer bit count; the fractional part travels in
// the block index so sub-bit adjustments accumulate across blocks instead
// of being lost to rounding.
type FixedPoint uint32

const (
	fracBits = 16
	oneQ     = 1 << fracBits
	halfQ    = 1 << (fracBits - 1)
)

// FromBits lifts an integer bit count to fixed point.
func FromBits(b uint16) FixedPoint {
	return FixedPoint(uint32(b) << fracBits)
}

// Round returns the nearest integer bit count, half away from zero.
func (f FixedPoint) Round() uint16 {
	return uint16((uint32(f) + halfQ) >> fracBits)
}

// =============================================================================

// Next computes the fixed point difficulty for the child of the parent
// block. timestamps holds the window header timestamps ending at the
// parent: the whole chain when the parent height is below 60, otherwise
// the last 61 so every solve time in the 60 wide window has its
// predecessor. The first solve time of a window that starts at genesis is
// taken as the target spacing.
func Next(parentQ FixedPoint, parentHeight uint32, timestamps []uint32) FixedPoint {
	n := parentHeight + 1
	if n > Window {
		n = Window
	}

	solveTimes := make([]uint64, 0, n)
	if uint32(len(timestamps)) == n {
		solveTimes = append(solveTimes, TargetSpacing)
	}
	for i := 1; i < len(timestamps); i++ {
		solveTimes = append(solveTimes, clampSolveTime(timestamps[i], timestamps[i-1]))
	}

	var weightedSum, weightSum uint64
	for i, t := range solveTimes {
		w := uint64(i + 1)
		weightedSum += w * t
		weightSum += w
	}

	delta := log2Q(TargetSpacing*weightSum, weightedSum)
	if delta > halfQ {
		delta = halfQ
	}
	if delta < -halfQ {
		delta = -halfQ
	}

	// Warmup: scale the adjustment down while the window is short.
	if parentHeight < Window {
		delta = delta * int64(n) / Window
	}

	next := int64(parentQ) + delta
	if next < MinBits*oneQ {
		next = MinBits * oneQ
	}
	if next > MaxBits*oneQ {
		next = MaxBits * oneQ
	}
	return FixedPoint(next)
}

func clampSolveTime(cur, prev uint32) uint64 {
	if cur <= prev {
		return 1
	}
	dt := uint64(cur - prev)
	if dt < 1 {
		dt = 1
	}
	if dt > maxSolveTime {
		dt = maxSolveTime
	}
	return dt
}

// =============================================================================

// log2Q returns log2(num/den) in Q16.16. The fraction is computed by the
// classic square and compare reduction, which is exact to the truncated 16
// fractional bits and uses only integer operations.
func log2Q(num, den uint64) int64 {
	if num == den || num == 0 || den == 0 {
		return 0
	}

	neg := false
	if num < den {
		num, den = den, num
		neg = true
	}

	// x = num/den as a Q32 value in [1, 2) after normalization; the
	// discarded shift count is the integer part of the logarithm.
	x := (num << 32) / den
	k := int64(bits.Len64(x)) - 33
	x >>= uint(k)

	var frac int64
	for i := 0; i < fracBits; i++ {
		hi, lo := bits.Mul64(x, x)
		x = hi<<32 | lo>>32
		frac <<= 1
		if x >= 1<<33 {
			x >>= 1
			frac |= 1
		}
	}

	out := k<<fracBits | frac
	if neg {
		out = -out
	}
	return out
}
