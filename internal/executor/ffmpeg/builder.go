package ffmpeg

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"vidmill/internal/transform"
)

// Plan is everything Build needs for one input.
type Plan struct {
	Input string
	// Secondary is the resolved fusion clip, empty unless fusion is enabled.
	Secondary string
	Output    string
	Spec      transform.Spec
	Probe     Probe
	// CreationTime stamps the output when metadata disguise is on.
	CreationTime time.Time
}

const (
	defaultFPS    = 30
	maxZoomFactor = 1.5
	keyframeEvery = 2.5
)

var errNeedsSize = errors.New("output size unknown; probe the input first")

// Build returns the complete ffmpeg argument list (binary first) for p.
// The spec must already be baked.
func Build(binary string, p Plan) ([]string, error) {
	s := p.Spec
	g := &graph{cur: "0:v"}
	srcW, srcH := p.Probe.Width, p.Probe.Height

	if s.Transform.RemoveBlackBars && !s.Transform.KeepOriginal {
		if crop := p.Probe.EffectiveCrop(); crop != "" {
			g.chain("crop=" + crop)
			srcW, srcH, _, _, _ = ParseCrop(crop)
		}
	}

	rot := s.Transform.EffectiveRotation()
	if rot == 90 || rot == 270 {
		srcW, srcH = srcH, srcW
	}
	outW, outH := targetSize(s.Resolution, srcW, srcH)

	g.chain(geometryFilters(s.Transform)...)
	if s.SplitScreen.Enabled {
		landscape := true
		if outW > 0 && outH > 0 {
			landscape = outW >= outH
		}
		g.splitScreen(s.SplitScreen, landscape)
	}
	g.chain(colorFilters(s.Color)...)
	g.scale(s.Resolution, outW, outH)

	fps := outputFPS(s.FrameRate)
	if s.DynamicZoom.Enabled {
		if outW <= 0 || outH <= 0 {
			return nil, fmt.Errorf("dynamic zoom: %w", errNeedsSize)
		}
		g.chain(zoomFilter(s.DynamicZoom, outW, outH, fps))
	}
	if s.FrameDecimation.Enabled {
		n := s.FrameDecimation.Start
		g.chain(fmt.Sprintf("select='not(eq(mod(n,%d),%d))'", n, n-1), "setpts=N/FRAME_RATE/TB")
	}
	if s.Fusion.Enabled {
		if p.Secondary == "" {
			return nil, errors.New("fusion enabled without a secondary clip")
		}
		if outW <= 0 || outH <= 0 {
			return nil, fmt.Errorf("fusion: %w", errNeedsSize)
		}
		g.fuse(s.Fusion, outW, outH)
	}
	g.add(fmt.Sprintf("[%s]format=yuv420p[vout]", g.cur))

	args := []string{binary, "-hide_banner", "-nostdin", "-y", "-loglevel", "error", "-i", p.Input}
	if s.Fusion.Enabled {
		args = append(args, "-stream_loop", "-1", "-i", p.Secondary)
	}
	args = append(args, "-filter_complex", g.String(), "-map", "[vout]", "-map", "0:a?")
	if !s.FrameRate.KeepOriginal {
		args = append(args, "-r", num(fps))
	}

	webm := strings.EqualFold(filepath.Ext(p.Output), ".webm")
	args = append(args, videoCodecArgs(s.Bitrate, webm)...)
	disguise := s.Fusion.Enabled
	if disguise && s.Fusion.KeyframeModify {
		args = append(args, "-g", strconv.Itoa(int(math.Round(fps*keyframeEvery))),
			"-force_key_frames", "expr:gte(t,n_forced*"+num(keyframeEvery)+")")
	}
	args = append(args, audioArgs(disguise && s.Fusion.AudioPhaseAdjust, webm)...)
	if disguise && s.Fusion.MetadataDisguise {
		args = append(args, "-map_metadata", "-1", "-map_chapters", "-1")
		if !p.CreationTime.IsZero() {
			args = append(args, "-metadata", "creation_time="+p.CreationTime.UTC().Format("2006-01-02T15:04:05.000000Z"))
		}
	}
	switch strings.ToLower(filepath.Ext(p.Output)) {
	case ".mp4", ".mov", ".m4v":
		args = append(args, "-movflags", "+faststart")
	}
	return append(args, p.Output), nil
}

// graph accumulates filter_complex statements around a current stream label.
type graph struct {
	stmts []string
	cur   string
	next  int
}

func (g *graph) label(prefix string) string {
	g.next++
	return prefix + strconv.Itoa(g.next)
}

func (g *graph) add(stmt string) {
	g.stmts = append(g.stmts, stmt)
}

// chain applies filters linearly to the current stream.
func (g *graph) chain(filters ...string) {
	if len(filters) == 0 {
		return
	}
	out := g.label("v")
	g.add(fmt.Sprintf("[%s]%s[%s]", g.cur, strings.Join(filters, ","), out))
	g.cur = out
}

func (g *graph) String() string {
	return strings.Join(g.stmts, ";")
}

func splitFractions(r transform.SplitRatio) []float64 {
	switch r {
	case transform.RatioCenterLarge:
		return []float64{0.25, 0.5, 0.25}
	case transform.RatioEdgesLarge:
		return []float64{0.375, 0.25, 0.375}
	default:
		return []float64{0.5, 0.5}
	}
}

// splitScreen cuts centered strips of the frame and stacks them back to
// roughly the source size. Side panes are blurred when requested.
func (g *graph) splitScreen(ss transform.SplitScreen, landscape bool) {
	fractions := splitFractions(ss.Ratio)
	side := ss.Direction == transform.SplitHorizontal || (ss.Direction == transform.SplitAuto && landscape)

	srcs := make([]string, len(fractions))
	for i := range srcs {
		srcs[i] = g.label("s")
	}
	g.add(fmt.Sprintf("[%s]split=%d%s", g.cur, len(srcs), brackets(srcs)))

	panes := make([]string, len(fractions))
	for i, f := range fractions {
		crop := fmt.Sprintf("crop=iw:trunc(ih*%s/2)*2", num(f))
		if side {
			crop = fmt.Sprintf("crop=trunc(iw*%s/2)*2:ih", num(f))
		}
		filters := crop
		if ss.Blur && isSidePane(i, len(fractions)) {
			filters += ",boxblur=5:1"
		}
		panes[i] = g.label("p")
		g.add(fmt.Sprintf("[%s]%s[%s]", srcs[i], filters, panes[i]))
	}

	stack := "vstack"
	if side {
		stack = "hstack"
	}
	out := g.label("v")
	g.add(fmt.Sprintf("%s%s=inputs=%d[%s]", brackets(panes), stack, len(panes), out))
	g.cur = out
}

func isSidePane(i, n int) bool {
	if n == 2 {
		return i == 1
	}
	return i != n/2
}

func geometryFilters(t transform.Geometry) []string {
	var filters []string
	switch t.EffectiveRotation() {
	case 90:
		filters = append(filters, "transpose=1")
	case 180:
		filters = append(filters, "transpose=1", "transpose=1")
	case 270:
		filters = append(filters, "transpose=2")
	}
	if t.KeepOriginal {
		return filters
	}
	if t.FlipH {
		filters = append(filters, "hflip")
	}
	if t.FlipV {
		filters = append(filters, "vflip")
	}
	return filters
}

func colorFilters(c transform.Color) []string {
	var filters []string
	if c.Brightness != 0 || c.Contrast != 0 || c.Saturation != 0 {
		filters = append(filters, fmt.Sprintf("eq=brightness=%s:contrast=%s:saturation=%s",
			num(float64(c.Brightness)/100), num(1+float64(c.Contrast)/100), num(1+float64(c.Saturation)/100)))
	}
	if c.Sharpen > 0 {
		filters = append(filters, fmt.Sprintf("unsharp=5:5:%s:5:5:0.0", num(float64(c.Sharpen)/100)))
	}
	if c.Denoise > 0 {
		filters = append(filters, "hqdn3d="+num(float64(c.Denoise)/10))
	}
	return filters
}

// targetSize resolves "original" dimensions against the source, keeping
// aspect when only one side is explicit. Zero means unknown.
func targetSize(r transform.Resolution, srcW, srcH int) (int, int) {
	switch {
	case !r.Width.Original && !r.Height.Original:
		return r.Width.Pixels, r.Height.Pixels
	case !r.Width.Original:
		if srcW <= 0 || srcH <= 0 {
			return r.Width.Pixels, 0
		}
		return r.Width.Pixels, even(float64(r.Width.Pixels) * float64(srcH) / float64(srcW))
	case !r.Height.Original:
		if srcW <= 0 || srcH <= 0 {
			return 0, r.Height.Pixels
		}
		return even(float64(r.Height.Pixels) * float64(srcW) / float64(srcH)), r.Height.Pixels
	default:
		return srcW, srcH
	}
}

func (g *graph) scale(r transform.Resolution, w, h int) {
	switch {
	case r.KeepsSource():
		return
	case r.Height.Original:
		g.chain(fmt.Sprintf("scale=%d:-2", r.Width.Pixels), "setsar=1")
		return
	case r.Width.Original:
		g.chain(fmt.Sprintf("scale=-2:%d", r.Height.Pixels), "setsar=1")
		return
	}
	switch r.Mode {
	case transform.ScaleStretch:
		g.chain(fmt.Sprintf("scale=%d:%d", w, h), "setsar=1")
	case transform.ScaleLetterbox:
		g.chain(fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", w, h),
			fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2:black", w, h), "setsar=1")
	case transform.ScalePad:
		bg, fg := g.label("bg"), g.label("fg")
		g.add(fmt.Sprintf("[%s]split=2[%s][%s]", g.cur, bg, fg))
		blurred, fitted := g.label("bg"), g.label("fg")
		g.add(fmt.Sprintf("[%s]scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,gblur=sigma=20[%s]", bg, w, h, w, h, blurred))
		g.add(fmt.Sprintf("[%s]scale=%d:%d:force_original_aspect_ratio=decrease[%s]", fg, w, h, fitted))
		out := g.label("v")
		g.add(fmt.Sprintf("[%s][%s]overlay=(W-w)/2:(H-h)/2,setsar=1[%s]", blurred, fitted, out))
		g.cur = out
	default:
		g.chain(fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase", w, h),
			fmt.Sprintf("crop=%d:%d", w, h), "setsar=1")
	}
}

func outputFPS(f transform.FrameRate) float64 {
	if f.KeepOriginal || f.Target <= 0 {
		return defaultFPS
	}
	return f.Target
}

// zoomFilter drifts the zoom factor by the midpoint of the configured rate
// per second, bounded to [1, 1.5].
func zoomFilter(z transform.DynamicZoom, w, h int, fps float64) string {
	rate := num((z.Min + z.Max) / 2)
	expr := fmt.Sprintf("min(1+%s*in/%s,%s)", rate, num(fps), num(maxZoomFactor))
	if z.Direction == transform.ZoomOut {
		expr = fmt.Sprintf("max(%s-%s*in/%s,1)", num(maxZoomFactor), rate, num(fps))
	}
	return fmt.Sprintf("zoompan=z='%s':x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':d=1:s=%dx%d:fps=%s", expr, w, h, num(fps))
}

type rect struct {
	x, y, w, h int
}

// regionRects places pieces covering ratio of a w*h frame at the region.
func regionRects(region transform.FusionRegion, ratio float64, w, h int) []rect {
	switch region {
	case transform.RegionCenter:
		pw, ph := even(float64(w)*math.Sqrt(ratio)), even(float64(h)*math.Sqrt(ratio))
		return []rect{{(w - pw) / 2, (h - ph) / 2, pw, ph}}
	case transform.RegionEdges:
		ph := even(float64(h) * ratio / 2)
		return []rect{{0, 0, w, ph}, {0, h - ph, w, ph}}
	default:
		pw, ph := even(float64(w)*math.Sqrt(ratio/4)), even(float64(h)*math.Sqrt(ratio/4))
		return []rect{{0, 0, pw, ph}, {w - pw, 0, pw, ph}, {0, h - ph, pw, ph}, {w - pw, h - ph, pw, ph}}
	}
}

func (g *graph) fuse(f transform.Fusion, w, h int) {
	if f.Method == transform.FusionMethodRegion {
		rects := regionRects(f.Region, f.RegionRatio, w, h)
		pieces := make([]string, len(rects))
		for i := range pieces {
			pieces[i] = g.label("f")
		}
		g.add(fmt.Sprintf("[1:v]scale=%d:%d,setsar=1,split=%d%s", rects[0].w, rects[0].h, len(pieces), brackets(pieces)))
		for i, r := range rects {
			out := g.label("v")
			g.add(fmt.Sprintf("[%s][%s]overlay=%d:%d:shortest=1[%s]", g.cur, pieces[i], r.x, r.y, out))
			g.cur = out
		}
		return
	}

	secondary := g.label("f")
	g.add(fmt.Sprintf("[1:v]scale=%d:%d,setsar=1,format=yuv420p[%s]", w, h, secondary))
	g.chain("format=yuv420p")
	opacity := fusionOpacity(f)
	out := g.label("v")
	g.add(fmt.Sprintf("[%s][%s]blend=all_expr='A*(1-(%s))+B*(%s)':shortest=1[%s]", g.cur, secondary, opacity, opacity, out))
	g.cur = out
}

// fusionOpacity is the blend weight of the secondary clip as an ffmpeg
// expression. Adaptive opacity leans harder on dark pixels.
func fusionOpacity(f transform.Fusion) string {
	if f.Method == transform.FusionDynamic {
		mid := (f.OpacityMin + f.OpacityMax) / 2
		amp := (f.OpacityMax - f.OpacityMin) / 2
		return fmt.Sprintf("%s+%s*sin(2*PI*T/%s)", num(mid), num(amp), num(f.CyclePeriodSeconds))
	}
	if f.AdaptiveOpacity {
		return num(f.Opacity) + "*(1.25-A/510)"
	}
	return num(f.Opacity)
}

// qualityFromMultiplier maps a bitrate multiplier to a CRF value the way the
// editor did without probing the source bitrate.
func qualityFromMultiplier(m float64) int {
	if m <= 0 {
		return 23
	}
	return min(max(int(28/m), 14), 30)
}

func videoCodecArgs(b transform.Bitrate, webm bool) []string {
	if webm {
		args := []string{"-c:v", "libvpx-vp9", "-row-mt", "1"}
		switch {
		case b.KeepOriginal:
			return append(args, "-crf", "31", "-b:v", "0")
		case b.Mode == transform.BitrateFixed:
			return append(args, "-b:v", fmt.Sprintf("%dk", b.Fixed))
		default:
			return append(args, "-crf", strconv.Itoa(qualityFromMultiplier(b.Multiplier)+10), "-b:v", "0")
		}
	}
	args := []string{"-c:v", "libx264", "-preset", "medium"}
	switch {
	case b.KeepOriginal:
		return append(args, "-crf", "20")
	case b.Mode == transform.BitrateFixed:
		return append(args, "-b:v", fmt.Sprintf("%dk", b.Fixed),
			"-maxrate", fmt.Sprintf("%dk", b.Fixed*3/2), "-bufsize", fmt.Sprintf("%dk", b.Fixed*2))
	default:
		return append(args, "-crf", strconv.Itoa(qualityFromMultiplier(b.Multiplier)))
	}
}

func audioArgs(phase, webm bool) []string {
	var args []string
	if phase {
		args = append(args, "-af", "aphaser=in_gain=0.9:out_gain=0.9:delay=2:decay=0.3:speed=0.4")
	}
	switch {
	case webm:
		return append(args, "-c:a", "libopus", "-b:a", "128k")
	case phase:
		return append(args, "-c:a", "aac", "-b:a", "160k")
	default:
		return append(args, "-c:a", "copy")
	}
}

func brackets(labels []string) string {
	var b strings.Builder
	for _, l := range labels {
		b.WriteString("[" + l + "]")
	}
	return b.String()
}

func even(v float64) int {
	n := int(math.Round(v/2)) * 2
	if n < 2 {
		return 2
	}
	return n
}

func num(v float64) string {
	return strconv.FormatFloat(math.Round(v*10000)/10000, 'f', -1, 64)
}
