package transform

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidSpec marks every spec validation failure.
var ErrInvalidSpec = errors.New("invalid transform spec")

// ValidationError describes one rejected field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Unwrap lets callers match any field failure with errors.Is(err, ErrInvalidSpec).
func (e *ValidationError) Unwrap() error { return ErrInvalidSpec }

// ErrorKind classifies the failure for status mapping.
func (e *ValidationError) ErrorKind() string { return "validation" }

// Fields extracts every ValidationError joined into err.
func Fields(err error) []*ValidationError {
	if err == nil {
		return nil
	}
	var out []*ValidationError
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			out = append(out, Fields(e)...)
		}
		return out
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		out = append(out, ve)
	}
	return out
}

type validator struct {
	errs []error
}

func (v *validator) fail(field, format string, args ...any) {
	v.errs = append(v.errs, &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)})
}

func (v *validator) intRange(field string, value, lo, hi int) {
	if value < lo || value > hi {
		v.fail(field, "must be between %d and %d, got %d", lo, hi, value)
	}
}

func (v *validator) err() error {
	return errors.Join(v.errs...)
}

// Validate reports every malformed field. The returned error matches
// ErrInvalidSpec and can be split with Fields.
func (s Spec) Validate() error {
	v := &validator{}
	if s.Version > SchemaVersion {
		v.fail("version", "unsupported schema version %d (max %d)", s.Version, SchemaVersion)
	}
	s.validateColor(v)
	s.validateSplitScreen(v)
	s.validateResolution(v)
	s.validateGeometry(v)
	s.validateFrameRate(v)
	s.validateDecimation(v)
	s.validateZoom(v)
	s.validateBitrate(v)
	s.validateFusion(v)
	return v.err()
}

func (s Spec) validateColor(v *validator) {
	v.intRange("colorAdjustment.brightness", s.Color.Brightness, -100, 100)
	v.intRange("colorAdjustment.contrast", s.Color.Contrast, -100, 100)
	v.intRange("colorAdjustment.saturation", s.Color.Saturation, -100, 100)
	v.intRange("colorAdjustment.sharpen", s.Color.Sharpen, 0, 100)
	v.intRange("colorAdjustment.denoise", s.Color.Denoise, 0, 100)
}

func (s Spec) validateSplitScreen(v *validator) {
	if !s.SplitScreen.Enabled {
		return
	}
	switch s.SplitScreen.Direction {
	case SplitVertical, SplitHorizontal, SplitAuto:
	default:
		v.fail("splitScreen.direction", "unknown direction %q", s.SplitScreen.Direction)
	}
	switch s.SplitScreen.Ratio {
	case RatioEqual, RatioCenterLarge, RatioEdgesLarge:
	default:
		v.fail("splitScreen.ratio", "unknown ratio %q", s.SplitScreen.Ratio)
	}
}

func (s Spec) validateResolution(v *validator) {
	r := s.Resolution
	if !r.Width.Original && r.Width.Pixels <= 0 {
		v.fail("resolution.width", "must be positive or \"original\", got %d", r.Width.Pixels)
	}
	if !r.Height.Original && r.Height.Pixels <= 0 {
		v.fail("resolution.height", "must be positive or \"original\", got %d", r.Height.Pixels)
	}
	if r.KeepsSource() {
		return
	}
	switch r.Mode {
	case ScaleStretch, ScaleCrop, ScaleLetterbox, ScalePad:
	default:
		v.fail("resolution.mode", "unknown mode %q", r.Mode)
	}
}

func (s Spec) validateGeometry(v *validator) {
	if s.Transform.KeepOriginal {
		return
	}
	switch NormalizeRotation(s.Transform.Rotation) {
	case 0, 90, 180, 270:
	default:
		v.fail("transform.rotation", "must be a multiple of 90, got %d", s.Transform.Rotation)
	}
}

func (s Spec) validateFrameRate(v *validator) {
	f := s.FrameRate
	if f.KeepOriginal {
		return
	}
	if f.Min <= 0 || f.Max <= 0 {
		v.fail("frameRate", "min and max must be positive")
		return
	}
	if f.Min > f.Max {
		v.fail("frameRate", "min %.2f exceeds max %.2f", f.Min, f.Max)
		return
	}
	if !f.Randomize && (f.Target < f.Min || f.Target > f.Max) {
		v.fail("frameRate.target", "%.2f outside [%.2f, %.2f]", f.Target, f.Min, f.Max)
	}
}

func (s Spec) validateDecimation(v *validator) {
	d := s.FrameDecimation
	// Range order is checked even when disabled so stored presets stay sane.
	if d.Start > d.End {
		v.fail("frameDecimation", "start %d exceeds end %d", d.Start, d.End)
	}
	if d.Enabled && d.Start < 2 {
		v.fail("frameDecimation.start", "must be at least 2, got %d", d.Start)
	}
}

func (s Spec) validateZoom(v *validator) {
	z := s.DynamicZoom
	if !z.Enabled {
		return
	}
	if z.Min <= 0 {
		v.fail("dynamicZoom.min", "must be positive, got %g", z.Min)
	}
	if z.Min > z.Max {
		v.fail("dynamicZoom", "min %g exceeds max %g", z.Min, z.Max)
	}
	switch z.Direction {
	case ZoomIn, ZoomOut, ZoomRandom:
	default:
		v.fail("dynamicZoom.direction", "unknown direction %q", z.Direction)
	}
}

func (s Spec) validateBitrate(v *validator) {
	b := s.Bitrate
	if b.Mode == BitrateMultiplier && b.Min > b.Max {
		v.fail("bitrate", "multiplier min %g exceeds max %g", b.Min, b.Max)
	}
	if b.KeepOriginal {
		return
	}
	switch b.Mode {
	case BitrateMultiplier:
		if b.Min <= 0 {
			v.fail("bitrate.min", "must be positive, got %g", b.Min)
		}
		if b.Multiplier != 0 && (b.Multiplier < b.Min || b.Multiplier > b.Max) {
			v.fail("bitrate.multiplier", "%g outside [%g, %g]", b.Multiplier, b.Min, b.Max)
		}
	case BitrateFixed:
		if b.Fixed <= 0 {
			v.fail("bitrate.fixed", "must be positive kbps, got %d", b.Fixed)
		}
	default:
		v.fail("bitrate.mode", "unknown mode %q", b.Mode)
	}
}

func (s Spec) validateFusion(v *validator) {
	f := s.Fusion
	if !f.Enabled {
		return
	}
	if strings.TrimSpace(f.SecondaryMedia) == "" {
		v.fail("antiFingerprintFusion.secondaryMediaRef", "required when fusion is enabled")
	}
	switch f.Method {
	case FusionTransparency:
		unitInterval(v, "antiFingerprintFusion.opacity", f.Opacity)
	case FusionMethodRegion:
		if f.RegionRatio <= 0 || f.RegionRatio >= 1 {
			v.fail("antiFingerprintFusion.regionRatio", "must be in (0, 1), got %g", f.RegionRatio)
		}
		switch f.Region {
		case RegionCorners, RegionEdges, RegionCenter:
		default:
			v.fail("antiFingerprintFusion.region", "unknown region %q", f.Region)
		}
	case FusionDynamic:
		unitInterval(v, "antiFingerprintFusion.opacityMin", f.OpacityMin)
		unitInterval(v, "antiFingerprintFusion.opacityMax", f.OpacityMax)
		if f.OpacityMin > f.OpacityMax {
			v.fail("antiFingerprintFusion", "opacityMin %g exceeds opacityMax %g", f.OpacityMin, f.OpacityMax)
		}
		if f.CyclePeriodSeconds <= 0 {
			v.fail("antiFingerprintFusion.cyclePeriodSeconds", "must be positive, got %g", f.CyclePeriodSeconds)
		}
	case "":
		v.fail("antiFingerprintFusion.method", "required when fusion is enabled")
	default:
		v.fail("antiFingerprintFusion.method", "unknown method %q", f.Method)
	}
}

func unitInterval(v *validator, field string, value float64) {
	if value < 0 || value > 1 {
		v.fail(field, "must be in [0, 1], got %g", value)
	}
}
