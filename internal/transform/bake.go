package transform

import (
	"math"
	"math/rand/v2"
)

// Bake returns a copy of s with every range-randomized field resolved to a
// fixed scalar. Already-fixed values are preserved, so baking twice is stable.
// A nil rng uses the global source.
func (s Spec) Bake(rng *rand.Rand) Spec {
	draw := rand.Float64
	if rng != nil {
		draw = rng.Float64
	}

	if !s.FrameRate.KeepOriginal && s.FrameRate.Randomize {
		span := s.FrameRate.Max - s.FrameRate.Min
		s.FrameRate.Target = clamp(roundTo(s.FrameRate.Min+draw()*span, 1), s.FrameRate.Min, s.FrameRate.Max)
		s.FrameRate.Randomize = false
	}

	if !s.Bitrate.KeepOriginal && s.Bitrate.Mode == BitrateMultiplier && s.Bitrate.Multiplier == 0 {
		span := s.Bitrate.Max - s.Bitrate.Min
		s.Bitrate.Multiplier = clamp(roundTo(s.Bitrate.Min+draw()*span, 2), s.Bitrate.Min, s.Bitrate.Max)
	}

	if s.DynamicZoom.Enabled && s.DynamicZoom.Direction == ZoomRandom {
		if draw() < 0.5 {
			s.DynamicZoom.Direction = ZoomIn
		} else {
			s.DynamicZoom.Direction = ZoomOut
		}
	}

	if s.Version == 0 {
		s.Version = SchemaVersion
	}
	return s
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
