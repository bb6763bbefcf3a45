package highlights

import (
	"sort"
	"time"

	"github.com/forPelevin/clipforge/internal/types"
)

// Bounds constrains window duration and placement on the source timeline.
type Bounds struct {
	Min      time.Duration
	Max      time.Duration
	RangeEnd time.Duration
}

// Filter drops windows that are inverted, outside [0, RangeEnd], shorter
// than Min, longer than Max, or scored outside [0, 1].
func Filter(in []types.HighlightWindow, b Bounds) []types.HighlightWindow {
	out := make([]types.HighlightWindow, 0, len(in))
	for _, w := range in {
		if w.End <= w.Start || w.Start < 0 {
			continue
		}
		if b.RangeEnd > 0 && w.End > b.RangeEnd {
			continue
		}
		d := w.Duration()
		if d < b.Min || d > b.Max {
			continue
		}
		if w.Score < 0 || w.Score > 1 {
			continue
		}
		out = append(out, w)
	}
	return out
}

// OverlapRatio is the intersection of a and b divided by the shorter of the two.
func OverlapRatio(a, b types.HighlightWindow) float64 {
	lo := max(a.Start, b.Start)
	hi := min(a.End, b.End)
	if hi <= lo {
		return 0
	}
	shorter := min(a.Duration(), b.Duration())
	if shorter <= 0 {
		return 0
	}
	return float64(hi-lo) / float64(shorter)
}

// ResolveOverlaps keeps the better window of every pair whose overlap ratio
// exceeds threshold. Windows are ranked by score, then by tie (higher wins),
// then by earlier start. The result is in rank order.
func ResolveOverlaps(in []types.HighlightWindow, threshold float64, tie func(types.HighlightWindow) float64) []types.HighlightWindow {
	type ranked struct {
		w   types.HighlightWindow
		tie float64
	}
	rs := make([]ranked, len(in))
	for i, w := range in {
		rs[i].w = w
		if tie != nil {
			rs[i].tie = tie(w)
		}
	}
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].w.Score != rs[j].w.Score {
			return rs[i].w.Score > rs[j].w.Score
		}
		if rs[i].tie != rs[j].tie {
			return rs[i].tie > rs[j].tie
		}
		return rs[i].w.Start < rs[j].w.Start
	})

	out := make([]types.HighlightWindow, 0, len(rs))
	for _, r := range rs {
		ok := true
		for _, k := range out {
			if OverlapRatio(r.w, k) > threshold {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, r.w)
		}
	}
	return out
}
