package reframe

import (
	"testing"

	"github.com/forPelevin/clipforge/internal/types"
)

func frameSet(w, h, n int, paint func(i, x, y int) byte) types.FrameSet {
	fs := types.FrameSet{Width: w, Height: h}
	for i := 0; i < n; i++ {
		f := make([]byte, w*h)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				f[y*w+x] = paint(i, x, y)
			}
		}
		fs.Frames = append(fs.Frames, f)
	}
	return fs
}

func TestSize(t *testing.T) {
	tests := []struct {
		name   string
		w, h   int
		cw, ch int
	}{
		{"landscape", 1920, 1080, 606, 1080},
		{"square", 1080, 1080, 606, 1080},
		{"already vertical", 1080, 1920, 1080, 1920},
		{"narrow", 720, 1920, 720, 1280},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cw, ch := Size(tt.w, tt.h)
			if cw != tt.cw || ch != tt.ch {
				t.Fatalf("Size(%d,%d) = %dx%d, want %dx%d", tt.w, tt.h, cw, ch, tt.cw, tt.ch)
			}
		})
	}
}

func TestCentered(t *testing.T) {
	got := Centered(1920, 1080)
	if got != (types.Crop{X: 656, Y: 0, Width: 606, Height: 1080}) {
		t.Fatalf("unexpected crop %+v", got)
	}
	got = Centered(720, 1920)
	if got != (types.Crop{X: 0, Y: 320, Width: 720, Height: 1280}) {
		t.Fatalf("unexpected narrow crop %+v", got)
	}
}

func TestFocus_FollowsMotion(t *testing.T) {
	fs := frameSet(160, 90, 3, func(i, x, y int) byte {
		if x >= 120 && x < 140 {
			return byte((i*80 + y) % 256)
		}
		return 40
	})
	crop, ok := Focus(fs, 1920, 1080)
	if !ok {
		t.Fatalf("expected dominant band")
	}
	if crop.X > 120*12 || crop.X+crop.Width < 140*12 {
		t.Fatalf("crop %+v does not cover the moving region", crop)
	}
	if crop.X%2 != 0 || crop.X+crop.Width > 1920 {
		t.Fatalf("crop %+v is not an even in-frame offset", crop)
	}
}

func TestFocus_StaticFallsBackToCenter(t *testing.T) {
	fs := frameSet(160, 90, 4, func(i, x, y int) byte { return 128 })
	crop, ok := Focus(fs, 1920, 1080)
	if ok || crop != Centered(1920, 1080) {
		t.Fatalf("expected centered fallback, got %+v ok=%v", crop, ok)
	}
}

func TestFocus_UniformMotionFallsBackToCenter(t *testing.T) {
	fs := frameSet(160, 90, 4, func(i, x, y int) byte { return byte(i * 30) })
	if _, ok := Focus(fs, 1920, 1080); ok {
		t.Fatalf("uniform motion must not produce a focus band")
	}
}

func TestFocus_NoFrames(t *testing.T) {
	crop, ok := Focus(types.FrameSet{}, 1920, 1080)
	if ok || crop != Centered(1920, 1080) {
		t.Fatalf("expected centered fallback, got %+v", crop)
	}
}

func TestColumnEnergy_SingleFrameUsesGradient(t *testing.T) {
	fs := frameSet(4, 2, 1, func(_, x, _ int) byte {
		if x >= 2 {
			return 100
		}
		return 0
	})
	e := ColumnEnergy(fs)
	if e[1] != 200 || e[0] != 0 || e[2] != 0 {
		t.Fatalf("unexpected gradient energy %v", e)
	}
}
