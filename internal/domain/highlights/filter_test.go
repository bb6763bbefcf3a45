package highlights

import (
	"testing"
	"time"

	"github.com/forPelevin/clipforge/internal/types"
)

func win(start, end, score float64) types.HighlightWindow {
	return types.HighlightWindow{
		Start: time.Duration(start * float64(time.Second)),
		End:   time.Duration(end * float64(time.Second)),
		Score: score,
	}
}

func TestFilter_Table(t *testing.T) {
	b := Bounds{Min: 15 * time.Second, Max: 60 * time.Second, RangeEnd: 120 * time.Second}
	tests := []struct {
		name string
		w    types.HighlightWindow
		keep bool
	}{
		{"ok", win(10, 40, 0.5), true},
		{"min edge", win(0, 15, 0.5), true},
		{"max edge", win(60, 120, 0.5), true},
		{"inverted", win(40, 10, 0.5), false},
		{"empty", win(40, 40, 0.5), false},
		{"too short", win(10, 20, 0.5), false},
		{"too long", win(0, 61, 0.5), false},
		{"past end", win(100, 121, 0.5), false},
		{"negative start", win(-1, 20, 0.5), false},
		{"score high", win(10, 40, 1.2), false},
		{"score low", win(10, 40, -0.1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Filter([]types.HighlightWindow{tt.w}, b)
			if (len(got) == 1) != tt.keep {
				t.Fatalf("keep=%v, got %+v", tt.keep, got)
			}
		})
	}
}

func TestOverlapRatio(t *testing.T) {
	if r := OverlapRatio(win(0, 20, 0), win(10, 50, 0)); r != 0.5 {
		t.Fatalf("expected 0.5, got %v", r)
	}
	if r := OverlapRatio(win(0, 20, 0), win(20, 40, 0)); r != 0 {
		t.Fatalf("touching windows must not overlap, got %v", r)
	}
	if r := OverlapRatio(win(0, 60, 0), win(10, 30, 0)); r != 1 {
		t.Fatalf("contained window must be fully overlapped, got %v", r)
	}
}

func TestResolveOverlaps_HigherScoreWins(t *testing.T) {
	got := ResolveOverlaps([]types.HighlightWindow{
		win(10, 40, 0.6),
		win(20, 50, 0.9),
		win(70, 100, 0.4),
	}, 0.3, nil)
	if len(got) != 2 {
		t.Fatalf("expected 2 windows, got %+v", got)
	}
	if got[0].Score != 0.9 || got[1].Score != 0.4 {
		t.Fatalf("unexpected selection: %+v", got)
	}
}

func TestResolveOverlaps_BelowThresholdKeepsBoth(t *testing.T) {
	// 5s shared out of a 30s shorter window.
	got := ResolveOverlaps([]types.HighlightWindow{win(0, 30, 0.5), win(25, 60, 0.7)}, 0.3, nil)
	if len(got) != 2 {
		t.Fatalf("expected both windows, got %+v", got)
	}
}

func TestResolveOverlaps_TieBreak(t *testing.T) {
	a := win(0, 30, 0.8)
	a.Title = "a"
	b := win(10, 40, 0.8)
	b.Title = "b"

	got := ResolveOverlaps([]types.HighlightWindow{a, b}, 0.3, func(w types.HighlightWindow) float64 {
		if w.Title == "b" {
			return 1
		}
		return 0
	})
	if len(got) != 1 || got[0].Title != "b" {
		t.Fatalf("expected tie-break to pick b, got %+v", got)
	}

	got = ResolveOverlaps([]types.HighlightWindow{b, a}, 0.3, nil)
	if len(got) != 1 || got[0].Title != "a" {
		t.Fatalf("expected earlier start to win a full tie, got %+v", got)
	}
}
