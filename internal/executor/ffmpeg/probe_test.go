package ffmpeg

import "testing"

const sampleProbe = `Input #0, mov,mp4,m4a,3gp,3g2,mj2, from 'in.mp4':
  Duration: 00:00:10.00, start: 0.000000, bitrate: 1000 kb/s
  Stream #0:0[0x1](und): Video: h264 (High) (avc1 / 0x31637661), yuv420p(progressive), 1920x1080 [SAR 1:1 DAR 16:9], 900 kb/s, 30 fps, 30 tbr, 15360 tbn (default)
  Stream #0:1[0x2](und): Audio: aac (LC) (mp4a / 0x6134706D), 48000 Hz, stereo, fltp, 128 kb/s (default)
[Parsed_cropdetect_0 @ 0x55d1] x1:0 x2:1919 y1:136 y2:943 w:1920 h:800 x:0 y:138 pts:1 t:0.03 crop=1920:800:0:138
[Parsed_cropdetect_0 @ 0x55d1] x1:0 x2:1919 y1:138 y2:941 w:1920 h:800 x:0 y:140 pts:2 t:0.06 crop=1920:800:0:140
`

func TestParseProbe(t *testing.T) {
	p := ParseProbe(sampleProbe)
	if p.Width != 1920 || p.Height != 1080 {
		t.Fatalf("size = %dx%d, want 1920x1080", p.Width, p.Height)
	}
	if p.Crop != "1920:800:0:140" {
		t.Fatalf("crop = %q, want last suggestion", p.Crop)
	}
	if got := p.EffectiveCrop(); got != "1920:800:0:140" {
		t.Fatalf("EffectiveCrop = %q", got)
	}

	empty := ParseProbe("garbage")
	if empty.Width != 0 || empty.Crop != "" {
		t.Fatalf("expected empty probe, got %+v", empty)
	}
}

func TestEffectiveCropSkipsFullFrame(t *testing.T) {
	p := Probe{Width: 1280, Height: 720, Crop: "1280:720:0:0"}
	if got := p.EffectiveCrop(); got != "" {
		t.Fatalf("full-frame crop should be skipped, got %q", got)
	}
}

func TestParseCrop(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"crop=1920:800:0:140", true},
		{"1920:800:0:140", true},
		{"crop=1920:800:0", false},
		{"crop=0:800:0:0", false},
		{"crop=a:b:c:d", false},
		{"crop=-2:800:0:0", false},
	}
	for _, tc := range cases {
		if _, _, _, _, ok := ParseCrop(tc.in); ok != tc.ok {
			t.Fatalf("ParseCrop(%q) ok = %v, want %v", tc.in, ok, tc.ok)
		}
	}
}

func TestProbeArgs(t *testing.T) {
	args := ProbeArgs("ffmpeg", "in.mp4", true)
	if !containsSeq(args, "-vf", "cropdetect=24:2:0") {
		t.Fatalf("expected cropdetect pass: %v", args)
	}
	args = ProbeArgs("ffmpeg", "in.mp4", false)
	if !containsSeq(args, "-frames:v", "1") {
		t.Fatalf("expected single-frame pass: %v", args)
	}
	if args[len(args)-1] != "-" {
		t.Fatalf("probe must write to the null muxer: %v", args)
	}
}

func TestStderrTail(t *testing.T) {
	in := "line1\n\nline2\n"
	for i := 0; i < 20; i++ {
		in += "noise\n"
	}
	in += "Conversion failed!\n"
	got := stderrTail(in)
	if got == "" || got[len(got)-len("Conversion failed!"):] != "Conversion failed!" {
		t.Fatalf("tail should end with the last line, got %q", got)
	}
	if containsString(got, "line1") {
		t.Fatalf("tail should drop early lines, got %q", got)
	}
}
