package utils

import "golang.org/x/exp/constraints"

// Clamp limits v to [lo, hi].
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampAbs limits v to [-limit, limit].
func ClampAbs[T constraints.Float | constraints.Signed](v, limit T) T {
	return Clamp(v, -limit, limit)
}

// Abs returns |v|.
func Abs[T constraints.Float | constraints.Signed](v T) T {
	if v < 0 {
		return -v
	}
	return v
}

// MapRange linearly maps value from [fromMin, fromMax] onto [toMin, toMax].
func MapRange[T constraints.Float](value, fromMin, fromMax, toMin, toMax T) T {
	return (value-fromMin)/(fromMax-fromMin)*(toMax-toMin) + toMin
}

// BoolToFloat is used when packing flags into CAN signals.
func BoolToFloat(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}

// Elapsed returns the ticks from since to now on a wrapping millisecond counter. A since that
// is slightly ahead of now, as happens when a producer stamps with a fresher clock read, counts
// as zero.
func Elapsed(since, now uint32) uint32 {
	d := now - since
	if int32(d) < 0 {
		return 0
	}
	return d
}
