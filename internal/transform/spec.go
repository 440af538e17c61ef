package transform

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// SchemaVersion is the current Spec wire version.
const SchemaVersion = 1

// Color holds signed percentage adjustments; zero means unchanged.
type Color struct {
	Brightness int `json:"brightness"`
	Contrast   int `json:"contrast"`
	Saturation int `json:"saturation"`
	Sharpen    int `json:"sharpen"`
	Denoise    int `json:"denoise"`
}

// IsZero reports whether no color adjustment is requested.
func (c Color) IsZero() bool {
	return c == Color{}
}

// SplitDirection selects how split-screen panes are arranged.
type SplitDirection string

const (
	SplitVertical   SplitDirection = "vertical"
	SplitHorizontal SplitDirection = "horizontal"
	SplitAuto       SplitDirection = "auto"
)

// SplitRatio selects the relative pane sizes.
type SplitRatio string

const (
	RatioEqual       SplitRatio = "equal"
	RatioCenterLarge SplitRatio = "center-large"
	RatioEdgesLarge  SplitRatio = "edges-large"
)

// SplitScreen settings are ignored unless Enabled is set.
type SplitScreen struct {
	Enabled   bool           `json:"enabled"`
	Direction SplitDirection `json:"direction"`
	Ratio     SplitRatio     `json:"ratio"`
	Blur      bool           `json:"blur"`
}

// ScaleMode reconciles source aspect ratio with the target aspect ratio.
type ScaleMode string

const (
	ScaleStretch   ScaleMode = "stretch"
	ScaleCrop      ScaleMode = "crop"
	ScaleLetterbox ScaleMode = "letterbox"
	ScalePad       ScaleMode = "pad"
)

// Dimension is either an explicit pixel count or "original", meaning the
// value is derived from the source.
type Dimension struct {
	Original bool
	Pixels   int
}

// Pixels returns an explicit dimension.
func Pixels(n int) Dimension { return Dimension{Pixels: n} }

// OriginalDimension returns the "derive from source" sentinel.
func OriginalDimension() Dimension { return Dimension{Original: true} }

func (d Dimension) String() string {
	if d.Original {
		return "original"
	}
	return strconv.Itoa(d.Pixels)
}

// MarshalJSON encodes the sentinel as the string "original".
func (d Dimension) MarshalJSON() ([]byte, error) {
	if d.Original {
		return []byte(`"original"`), nil
	}
	return []byte(strconv.Itoa(d.Pixels)), nil
}

// UnmarshalJSON accepts a number, a numeric string, or "original".
func (d *Dimension) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*d = Dimension{Original: true}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.EqualFold(raw, "original") {
			*d = Dimension{Original: true}
			return nil
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("dimension %q: expected integer or \"original\"", raw)
		}
		*d = Dimension{Pixels: n}
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("dimension: %w", err)
	}
	*d = Dimension{Pixels: n}
	return nil
}

// Resolution describes the output frame size.
type Resolution struct {
	Width  Dimension `json:"width"`
	Height Dimension `json:"height"`
	Mode   ScaleMode `json:"mode"`
}

// KeepsSource reports whether both dimensions derive from the source.
func (r Resolution) KeepsSource() bool {
	return r.Width.Original && r.Height.Original
}

// Geometry holds rotation and flips. All other fields are ignored when
// KeepOriginal is set.
type Geometry struct {
	KeepOriginal    bool `json:"keepOriginal"`
	Rotation        int  `json:"rotation"`
	FlipH           bool `json:"flipH"`
	FlipV           bool `json:"flipV"`
	RemoveBlackBars bool `json:"removeBlackBars"`
}

// FrameRate selects the output frame rate. When Randomize is set, Bake draws
// Target uniformly from [Min, Max].
type FrameRate struct {
	KeepOriginal bool    `json:"keepOriginal"`
	Target       float64 `json:"target"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Randomize    bool    `json:"randomize,omitempty"`
}

// FrameDecimation drops one frame out of every N, N in [Start, End].
type FrameDecimation struct {
	Enabled bool `json:"enabled"`
	Start   int  `json:"start"`
	End     int  `json:"end"`
}

// ZoomDirection selects the zoom drift.
type ZoomDirection string

const (
	ZoomIn     ZoomDirection = "in"
	ZoomOut    ZoomDirection = "out"
	ZoomRandom ZoomDirection = "random"
)

// DynamicZoom applies a slow zoom drift expressed as fractional factors per
// second.
type DynamicZoom struct {
	Enabled   bool          `json:"enabled"`
	Min       float64       `json:"min"`
	Max       float64       `json:"max"`
	Direction ZoomDirection `json:"direction"`
}

// BitrateMode selects relative or absolute bitrate control.
type BitrateMode string

const (
	BitrateMultiplier BitrateMode = "multiplier"
	BitrateFixed      BitrateMode = "fixed"
)

// Bitrate controls output bitrate. In multiplier mode the effective bitrate is
// the source bitrate scaled by Multiplier, which Bake draws from [Min, Max].
// Fixed is in kbps.
type Bitrate struct {
	KeepOriginal bool        `json:"keepOriginal"`
	Mode         BitrateMode `json:"mode"`
	Min          float64     `json:"min"`
	Max          float64     `json:"max"`
	Fixed        int         `json:"fixed"`
	Multiplier   float64     `json:"multiplier,omitempty"`
}

// FusionMethod selects how the secondary clip is composited.
type FusionMethod string

const (
	FusionTransparency FusionMethod = "transparency"
	FusionMethodRegion FusionMethod = "region"
	FusionDynamic      FusionMethod = "dynamic"
)

// FusionRegion names where a region overlay is placed.
type FusionRegion string

const (
	RegionCorners FusionRegion = "corners"
	RegionEdges   FusionRegion = "edges"
	RegionCenter  FusionRegion = "center"
)

// Fusion is the anti-fingerprint ("AB") fusion block. The three disguise
// flags are independent of Method.
type Fusion struct {
	Enabled            bool         `json:"enabled"`
	Method             FusionMethod `json:"method"`
	SecondaryMedia     string       `json:"secondaryMediaRef"`
	Opacity            float64      `json:"opacity"`
	AdaptiveOpacity    bool         `json:"adaptiveOpacity"`
	Region             FusionRegion `json:"region"`
	RegionRatio        float64      `json:"regionRatio"`
	CyclePeriodSeconds float64      `json:"cyclePeriodSeconds"`
	OpacityMin         float64      `json:"opacityMin"`
	OpacityMax         float64      `json:"opacityMax"`
	MetadataDisguise   bool         `json:"metadataDisguise"`
	AudioPhaseAdjust   bool         `json:"audioPhaseAdjust"`
	KeyframeModify     bool         `json:"keyframeModify"`
}

// Spec is the complete transformation request for one media item.
type Spec struct {
	Version         int             `json:"version"`
	Color           Color           `json:"colorAdjustment"`
	SplitScreen     SplitScreen     `json:"splitScreen"`
	Resolution      Resolution      `json:"resolution"`
	Transform       Geometry        `json:"transform"`
	FrameRate       FrameRate       `json:"frameRate"`
	FrameDecimation FrameDecimation `json:"frameDecimation"`
	DynamicZoom     DynamicZoom     `json:"dynamicZoom"`
	Bitrate         Bitrate         `json:"bitrate"`
	Fusion          Fusion          `json:"antiFingerprintFusion"`
}

// Default returns the settings the editor starts from.
func Default() Spec {
	return Spec{
		Version: SchemaVersion,
		SplitScreen: SplitScreen{
			Direction: SplitHorizontal,
			Ratio:     RatioEqual,
		},
		Resolution: Resolution{
			Width:  Pixels(1280),
			Height: Pixels(720),
			Mode:   ScaleCrop,
		},
		FrameRate: FrameRate{
			Target: 30,
			Min:    24,
			Max:    30,
		},
		FrameDecimation: FrameDecimation{
			Start: 25,
			End:   30,
		},
		DynamicZoom: DynamicZoom{
			Min:       0.01,
			Max:       0.10,
			Direction: ZoomIn,
		},
		Bitrate: Bitrate{
			Mode:  BitrateMultiplier,
			Min:   1.05,
			Max:   1.95,
			Fixed: 3000,
		},
		Fusion: Fusion{
			Opacity:            0.1,
			Region:             RegionCorners,
			RegionRatio:        0.25,
			CyclePeriodSeconds: 4,
			OpacityMin:         0.05,
			OpacityMax:         0.2,
		},
	}
}

// Parse decodes a JSON spec, filling unset fields from Default. A missing
// version is treated as the current schema.
func Parse(data []byte) (Spec, error) {
	spec := Default()
	spec.Version = 0
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return Spec{}, fmt.Errorf("decode transform spec: %w", err)
	}
	if spec.Version == 0 {
		spec.Version = SchemaVersion
	}
	return spec, nil
}

// NormalizeRotation maps a signed rotation onto [0, 360).
func NormalizeRotation(deg int) int {
	return ((deg % 360) + 360) % 360
}

// EffectiveRotation is the normalized rotation, or 0 when the geometry keeps
// the original orientation.
func (g Geometry) EffectiveRotation() int {
	if g.KeepOriginal {
		return 0
	}
	return NormalizeRotation(g.Rotation)
}

// Clone returns an independent copy. Spec holds no references, so this is a
// plain value copy; it exists so capture sites read as intentional.
func (s Spec) Clone() Spec {
	return s
}
