package units

import "math"

// KwToW converts to whole watts. Sign is kept, discharge is negative.
func KwToW(kw float64) int32 {
	w := math.Round(kw * 1000)
	switch {
	case w > math.MaxInt32:
		return math.MaxInt32
	case w < math.MinInt32:
		return math.MinInt32
	}
	return int32(w)
}

func WToKw(w int32) float64 {
	return float64(w) / 1000
}

// ClampKW limits kw to [-limit, limit].
func ClampKW(kw, limit float64) float64 {
	if limit < 0 {
		limit = -limit
	}
	return math.Max(-limit, math.Min(limit, kw))
}

// RoundKW rounds to watt precision, the resolution the hardware accepts.
func RoundKW(kw float64) float64 {
	return math.Round(kw*1000) / 1000
}
