// Package reframe picks a 9:16 crop for a landscape source by locating the
// horizontal band with the most motion.
package reframe

import (
	"github.com/forPelevin/clipforge/internal/types"
)

const (
	SampleWidth = 160
	MaxSamples  = 48

	// dominance is how much hotter than average the best band must be before
	// it replaces the centered crop.
	dominance = 1.25
)

// Size returns the largest even 9:16 rectangle that fits a w×h frame.
// Frames narrower than 9:16 keep their width and lose height instead.
func Size(w, h int) (cw, ch int) {
	if w*16 < h*9 {
		return even(w), even(w * 16 / 9)
	}
	return even(h * 9 / 16), even(h)
}

// Centered is the 9:16 crop centered in the frame.
func Centered(w, h int) types.Crop {
	cw, ch := Size(w, h)
	return types.Crop{X: even((w - cw) / 2), Y: even((h - ch) / 2), Width: cw, Height: ch}
}

// Focus returns the crop centered on the motion band of fs and true, or the
// centered crop and false when no band dominates.
func Focus(fs types.FrameSet, w, h int) (types.Crop, bool) {
	crop := Centered(w, h)
	if crop.Width >= w || fs.Width <= 0 || fs.Height <= 0 || len(fs.Frames) == 0 {
		return crop, false
	}
	energy := ColumnEnergy(fs)
	if energy == nil {
		return crop, false
	}

	band := crop.Width * fs.Width / w
	if band < 1 {
		band = 1
	}
	if band >= fs.Width {
		return crop, false
	}

	var total, cur float64
	for _, e := range energy {
		total += e
	}
	for x := 0; x < band; x++ {
		cur += energy[x]
	}
	best, bestX := cur, 0
	for x := band; x < len(energy); x++ {
		cur += energy[x] - energy[x-band]
		if cur > best {
			best, bestX = cur, x-band+1
		}
	}

	globalMean := total / float64(len(energy))
	if globalMean <= 0 || best/float64(band) < dominance*globalMean {
		return crop, false
	}

	center := (float64(bestX) + float64(band)/2) * float64(w) / float64(fs.Width)
	x := even(int(center) - crop.Width/2)
	crop.X = clamp(x, 0, even(w-crop.Width))
	return crop, true
}

// ColumnEnergy sums absolute frame-to-frame differences per column. With a
// single frame it falls back to horizontal gradient magnitude.
func ColumnEnergy(fs types.FrameSet) []float64 {
	size := fs.Width * fs.Height
	var frames [][]byte
	for _, f := range fs.Frames {
		if len(f) >= size {
			frames = append(frames, f)
		}
	}
	if len(frames) == 0 {
		return nil
	}
	out := make([]float64, fs.Width)
	if len(frames) == 1 {
		f := frames[0]
		for y := 0; y < fs.Height; y++ {
			row := f[y*fs.Width : (y+1)*fs.Width]
			for x := 0; x+1 < fs.Width; x++ {
				out[x] += absDiff(row[x+1], row[x])
			}
		}
		return out
	}
	for i := 1; i < len(frames); i++ {
		prev, cur := frames[i-1], frames[i]
		for p := 0; p < size; p++ {
			out[p%fs.Width] += absDiff(cur[p], prev[p])
		}
	}
	return out
}

func absDiff(a, b byte) float64 {
	if a > b {
		return float64(a - b)
	}
	return float64(b - a)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func even(n int) int { return n &^ 1 }
