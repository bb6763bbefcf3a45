package masks

import (
	"testing"

	"github.com/forPelevin/clipforge/internal/types"
)

func TestParseRegion(t *testing.T) {
	got, err := ParseRegion("10, 20,300,40")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != (types.MaskRegion{X: 10, Y: 20, Width: 300, Height: 40}) {
		t.Fatalf("unexpected region %+v", got)
	}
	for _, bad := range []string{"", "1,2,3", "a,b,c,d", "1,2,3,4,5"} {
		if _, err := ParseRegion(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestClamp(t *testing.T) {
	got, ok := Clamp(types.MaskRegion{X: -10, Y: 1000, Width: 5000, Height: 200}, 1920, 1080)
	if !ok {
		t.Fatalf("expected region")
	}
	if got != (types.MaskRegion{X: 1, Y: 1000, Width: 1918, Height: 79}) {
		t.Fatalf("unexpected clamp %+v", got)
	}
	if _, ok := Clamp(types.MaskRegion{X: 2000, Y: 0, Width: 10, Height: 10}, 1920, 1080); ok {
		t.Fatalf("region outside the frame must be rejected")
	}
}

func TestFallback(t *testing.T) {
	got := Fallback(1920, 1080)
	if got.Y != 1080-162 || got.Height != 161 || got.X != 1 {
		t.Fatalf("unexpected fallback %+v", got)
	}
}

func captionFrames(w, h, n int, textRows [2]int) types.FrameSet {
	fs := types.FrameSet{Width: w, Height: h}
	for i := 0; i < n; i++ {
		f := make([]byte, w*h)
		for p := range f {
			f[p] = 120
		}
		for y := textRows[0]; y < textRows[1]; y++ {
			for x := w / 4; x < 3*w/4; x++ {
				if (x/2)%2 == 0 {
					f[y*w+x] = 240
				}
			}
		}
		fs.Frames = append(fs.Frames, f)
	}
	return fs
}

func TestDetectCaptionBand_FindsText(t *testing.T) {
	fs := captionFrames(160, 90, 3, [2]int{76, 82})
	got, ok := DetectCaptionBand(fs, 1920, 1080)
	if !ok {
		t.Fatalf("expected a caption band")
	}
	if got.Y > 76*12 || got.Y+got.Height < 82*12 {
		t.Fatalf("band %+v does not cover the text rows", got)
	}
	if got.X > 40*12 || got.X+got.Width < 118*12 {
		t.Fatalf("band %+v does not cover the text columns", got)
	}
}

func TestDetectCaptionBand_IgnoresTextAboveSearchArea(t *testing.T) {
	fs := captionFrames(160, 90, 3, [2]int{10, 16})
	if _, ok := DetectCaptionBand(fs, 1920, 1080); ok {
		t.Fatalf("text in the top of the frame must not be detected")
	}
}

func TestDetectCaptionBand_PlainFrame(t *testing.T) {
	fs := captionFrames(160, 90, 2, [2]int{0, 0})
	if _, ok := DetectCaptionBand(fs, 1920, 1080); ok {
		t.Fatalf("plain frame must not produce a band")
	}
}
