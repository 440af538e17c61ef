package main

import (
	"fmt"
	"strings"

	"vidmill/internal/transform"
)

// specSummary names the operations a spec turns on, for one-line listings.
func specSummary(spec transform.Spec) string {
	var parts []string
	if !spec.Color.IsZero() {
		parts = append(parts, "color")
	}
	if !spec.Resolution.KeepsSource() {
		parts = append(parts, "resolution "+spec.Resolution.Width.String()+"x"+spec.Resolution.Height.String())
	}
	if rot := spec.Transform.EffectiveRotation(); rot != 0 {
		parts = append(parts, fmt.Sprintf("rotate %d", rot))
	}
	if spec.Transform.FlipH || spec.Transform.FlipV {
		parts = append(parts, "flip")
	}
	if spec.SplitScreen.Enabled {
		parts = append(parts, "split-screen")
	}
	if spec.DynamicZoom.Enabled {
		parts = append(parts, "zoom")
	}
	if spec.Fusion.Enabled {
		parts = append(parts, "fusion "+string(spec.Fusion.Method))
	}
	if len(parts) == 0 {
		return "defaults"
	}
	return strings.Join(parts, ", ")
}
