// Package masks locates the screen regions removed by the cleanup modes.
package masks

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/forPelevin/clipforge/internal/types"
)

const (
	// searchFraction is the bottom part of the frame scanned for burned-in captions.
	searchFraction = 0.25
	// fallbackFraction is the bottom band used when nothing is detected.
	fallbackFraction = 0.15

	brightLevel = 200
	darkLevel   = 50
	edgeLevel   = 40

	// A row is text-like when at least this share of its columns are
	// high-contrast edges.
	rowDensity = 0.03
	minAspect  = 2.0
)

// ParseRegion parses "x,y,w,h" in source pixels.
func ParseRegion(s string) (types.MaskRegion, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return types.MaskRegion{}, fmt.Errorf("mask %q: want x,y,w,h", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return types.MaskRegion{}, fmt.Errorf("mask %q: %w", s, err)
		}
		v[i] = n
	}
	return types.MaskRegion{X: v[0], Y: v[1], Width: v[2], Height: v[3]}, nil
}

// Clamp fits r inside a w×h frame, keeping a one pixel border that delogo
// needs for interpolation. ok is false when nothing is left.
func Clamp(r types.MaskRegion, w, h int) (types.MaskRegion, bool) {
	x0 := max(r.X, 1)
	y0 := max(r.Y, 1)
	x1 := min(r.X+r.Width, w-1)
	y1 := min(r.Y+r.Height, h-1)
	if x1-x0 < 1 || y1-y0 < 1 {
		return types.MaskRegion{}, false
	}
	return types.MaskRegion{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}, true
}

// Fallback is the full-width bottom 15% band.
func Fallback(w, h int) types.MaskRegion {
	bh := int(float64(h) * fallbackFraction)
	r, _ := Clamp(types.MaskRegion{X: 0, Y: h - bh, Width: w, Height: bh}, w, h)
	return r
}

// DetectCaptionBand scans the bottom quarter of the sampled frames for rows
// dense with high-contrast edges and returns their bounding box scaled to a
// w×h source. ok is false when no wide, short text band is found.
func DetectCaptionBand(fs types.FrameSet, w, h int) (types.MaskRegion, bool) {
	if fs.Width < 2 || fs.Height < 4 || len(fs.Frames) == 0 || w <= 0 || h <= 0 {
		return types.MaskRegion{}, false
	}
	top := int(float64(fs.Height) * (1 - searchFraction))
	size := fs.Width * fs.Height

	rowHits := make([]int, fs.Height)
	colHits := make([]int, fs.Width)
	frames := 0
	for _, f := range fs.Frames {
		if len(f) < size {
			continue
		}
		frames++
		for y := top; y < fs.Height; y++ {
			row := f[y*fs.Width : (y+1)*fs.Width]
			for x := 0; x+1 < fs.Width; x++ {
				if !textEdge(row[x], row[x+1]) {
					continue
				}
				rowHits[y]++
				colHits[x]++
			}
		}
	}
	if frames == 0 {
		return types.MaskRegion{}, false
	}

	need := rowDensity * float64(fs.Width) * float64(frames)
	y0, y1 := -1, -1
	for y := top; y < fs.Height; y++ {
		if float64(rowHits[y]) < need {
			continue
		}
		if y0 < 0 {
			y0 = y
		}
		y1 = y + 1
	}
	if y0 < 0 {
		return types.MaskRegion{}, false
	}
	x0, x1 := -1, -1
	for x, n := range colHits {
		if n < frames {
			continue
		}
		if x0 < 0 {
			x0 = x
		}
		x1 = x + 2
	}
	if x0 < 0 || float64(x1-x0) < minAspect*float64(y1-y0) {
		return types.MaskRegion{}, false
	}

	sx := float64(w) / float64(fs.Width)
	sy := float64(h) / float64(fs.Height)
	padX, padY := int(2*sx), int(2*sy)
	r := types.MaskRegion{
		X:      int(float64(x0)*sx) - padX,
		Y:      int(float64(y0)*sy) - padY,
		Width:  int(float64(x1-x0)*sx) + 2*padX,
		Height: int(float64(y1-y0)*sy) + 2*padY,
	}
	return Clamp(r, w, h)
}

func textEdge(a, b byte) bool {
	d := int(a) - int(b)
	if d < 0 {
		d = -d
	}
	if d < edgeLevel {
		return false
	}
	return a >= brightLevel || b >= brightLevel || a <= darkLevel || b <= darkLevel
}
