package utils

import "math"

func (s SignalDef) mask() uint64 {
	if s.BitLength >= 64 {
		return math.MaxUint64
	}
	return (uint64(1) << s.BitLength) - 1
}

// raw extracts the signal's integer value from a payload, sign-extending when needed.
func (s SignalDef) raw(payload uint64) int64 {
	u := (payload >> s.StartBit) & s.mask()
	if !s.Signed || s.BitLength >= 64 {
		return int64(u)
	}
	signBit := uint64(1) << (s.BitLength - 1)
	if u&signBit == 0 {
		return int64(u)
	}
	return int64(u | ^s.mask())
}

// Decode converts the signal to its physical value.
func (s SignalDef) Decode(payload uint64) float64 {
	return float64(s.raw(payload))*s.Factor + s.Offset
}

// Encode writes the physical value v into payload. v is clamped to [Min, Max] and the raw value
// to what fits into BitLength bits.
func (s SignalDef) Encode(payload uint64, v float64) uint64 {
	if s.Min < s.Max {
		v = Clamp(v, s.Min, s.Max)
	}
	factor := s.Factor
	if factor == 0 {
		factor = 1
	}
	raw := int64(math.Round((v - s.Offset) / factor))
	raw = s.clampRaw(raw)

	u := uint64(raw) & s.mask()
	payload &^= s.mask() << s.StartBit
	payload |= u << s.StartBit
	return payload
}

func (s SignalDef) clampRaw(raw int64) int64 {
	if s.BitLength <= 0 || s.BitLength > 63 {
		return raw
	}
	if !s.Signed {
		return Clamp(raw, 0, int64(1)<<s.BitLength-1)
	}
	lo := -(int64(1) << (s.BitLength - 1))
	hi := int64(1)<<(s.BitLength-1) - 1
	return Clamp(raw, lo, hi)
}
