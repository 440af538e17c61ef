package ffmpeg

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Probe is what a probe pass learned about an input.
type Probe struct {
	Width  int
	Height int
	// Crop is the last cropdetect suggestion as "w:h:x:y", empty when none.
	Crop string
}

var (
	reVideoSize = regexp.MustCompile(`Stream #\d+:\d+.*?: Video: .*?\b(\d{2,5})x(\d{2,5})\b`)
	reCropLine  = regexp.MustCompile(`crop=(\d+:\d+:\d+:\d+)`)
)

// ProbeArgs builds a decode-only pass that prints stream geometry and, when
// detectCrop is set, cropdetect suggestions over the first 20 seconds.
func ProbeArgs(binary, input string, detectCrop bool) []string {
	args := []string{binary, "-hide_banner", "-nostdin", "-i", input}
	if detectCrop {
		args = append(args, "-t", "20", "-vf", "cropdetect=24:2:0")
	} else {
		args = append(args, "-frames:v", "1")
	}
	return append(args, "-an", "-f", "null", "-")
}

// ParseProbe extracts the first video stream size and the last cropdetect
// suggestion from ffmpeg stderr.
func ParseProbe(stderr string) Probe {
	var p Probe
	if m := reVideoSize.FindStringSubmatch(stderr); m != nil {
		p.Width, _ = strconv.Atoi(m[1])
		p.Height, _ = strconv.Atoi(m[2])
	}
	if all := reCropLine.FindAllStringSubmatch(stderr, -1); len(all) > 0 {
		p.Crop = all[len(all)-1][1]
	}
	return p
}

// ParseCrop extracts the rectangle from "crop=W:H:X:Y" or "W:H:X:Y".
func ParseCrop(filter string) (width, height, x, y int, ok bool) {
	s := strings.TrimPrefix(strings.TrimSpace(filter), "crop=")
	parts := strings.Split(s, ":")
	if len(parts) != 4 {
		return 0, 0, 0, 0, false
	}
	vals := make([]int, 4)
	for i, part := range parts {
		v, err := strconv.Atoi(part)
		if err != nil || v < 0 {
			return 0, 0, 0, 0, false
		}
		vals[i] = v
	}
	if vals[0] == 0 || vals[1] == 0 {
		return 0, 0, 0, 0, false
	}
	return vals[0], vals[1], vals[2], vals[3], true
}

// EffectiveCrop returns the crop to apply, or "" when the suggestion keeps
// the whole frame or cannot be parsed.
func (p Probe) EffectiveCrop() string {
	w, h, x, y, ok := ParseCrop(p.Crop)
	if !ok {
		return ""
	}
	if p.Width > 0 && p.Height > 0 && w == p.Width && h == p.Height {
		return ""
	}
	return fmt.Sprintf("%d:%d:%d:%d", w, h, x, y)
}
