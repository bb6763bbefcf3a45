package subtitles

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/forPelevin/clipforge/internal/types"
)

var vertical = Frame{Width: 1080, Height: 1920}

func TestRender_KaraokeHasKTags(t *testing.T) {
	tr := types.Transcript{Segments: []types.Segment{
		{Start: 0, End: 2, Words: []types.Word{{Start: 0.0, End: 0.3, Word: "Hello"}, {Start: 0.3, End: 0.8, Word: "world"}}},
	}}
	ass, err := Render(tr, 0, 2*time.Second, vertical)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ass, "{\\k30}Hello {\\k50}world") {
		t.Fatalf("expected karaoke tags in ASS, got:\n%s", ass)
	}
}

func TestRender_ClipRelativeOnset(t *testing.T) {
	tr := types.Transcript{Segments: []types.Segment{
		{Start: 10, End: 16, Words: []types.Word{
			{Start: 11.0, End: 11.5, Word: "before"},
			{Start: 14.3, End: 14.9, Word: "key"},
			{Start: 14.9, End: 15.4, Word: "idea"},
		}},
	}}
	ass, err := Render(tr, 12*time.Second, 27*time.Second, vertical)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(ass, "before") {
		t.Fatalf("words outside the window must be dropped:\n%s", ass)
	}
	if !strings.Contains(ass, "Dialogue: 0,0:00:02.30,0:00:03.40,Clip") {
		t.Fatalf("expected line at 2.3s, got:\n%s", ass)
	}
}

func TestRender_KaraokeCountsSilence(t *testing.T) {
	tr := types.Transcript{Segments: []types.Segment{
		{Start: 12, End: 15, Words: []types.Word{
			{Start: 12.0, End: 12.3, Word: "hello"},
			{Start: 14.3, End: 14.6, Word: "world"},
		}},
	}}
	ass, err := Render(tr, 12*time.Second, 27*time.Second, vertical)
	if err != nil {
		t.Fatal(err)
	}
	// world must light up 230cs into the line: 30 for hello, 200 of silence.
	if !strings.Contains(ass, "Dialogue: 0,0:00:00.00,0:00:02.60,Clip,,0,0,0,,{\\k30}hello {\\k200}{\\k30}world\n") {
		t.Fatalf("expected a silence spacer before world, got:\n%s", ass)
	}
}

func TestRender_KaraokeOnsetsDoNotAccumulateRounding(t *testing.T) {
	var words []types.Word
	for i := 0; i < 6; i++ {
		start := 0.005 + float64(i)*0.115
		words = append(words, types.Word{Start: start, End: start + 0.115, Word: "ab"})
	}
	tr := types.Transcript{Segments: []types.Segment{{Start: 0, End: 1, Words: words}}}
	ass, err := Render(tr, 0, 2*time.Second, vertical)
	if err != nil {
		t.Fatal(err)
	}
	body := ass[strings.LastIndex(ass, ",,")+2:]
	total := 0
	for _, part := range strings.Split(body, "{\\k")[1:] {
		var n int
		if _, err := fmt.Sscanf(part, "%d}", &n); err != nil {
			t.Fatalf("bad tag %q: %v", part, err)
		}
		total += n
	}
	// Last word ends at 0.695s, line starts at 0.00 after truncation.
	if total != 70 {
		t.Fatalf("expected karaoke to end at 70cs, got %d in %q", total, body)
	}
}

func TestRender_ClipsWordsToWindow(t *testing.T) {
	tr := types.Transcript{Segments: []types.Segment{
		{Start: 0, End: 10, Words: []types.Word{{Start: 4.5, End: 5.5, Word: "edge"}}},
	}}
	ass, err := Render(tr, 5*time.Second, 20*time.Second, vertical)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ass, "Dialogue: 0,0:00:00.00,0:00:00.50,Clip,,0,0,0,,{\\k50}edge") {
		t.Fatalf("expected clipped word, got:\n%s", ass)
	}
}

func TestRender_HeaderFollowsFrame(t *testing.T) {
	ass, err := Render(types.Transcript{}, 0, time.Second, vertical)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"PlayResX: 1080", "PlayResY: 1920", "Style: Clip,Inter,86,", ",2,130,130,384,1"} {
		if !strings.Contains(ass, want) {
			t.Fatalf("expected %q in header:\n%s", want, ass)
		}
	}
}

func TestRender_PlainFallback(t *testing.T) {
	long := strings.Repeat("word ", 40)
	tr := types.Transcript{Segments: []types.Segment{{Start: 1, End: 4, Text: long}}}
	ass, err := Render(tr, 0, 10*time.Second, vertical)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(ass, "{\\k") {
		t.Fatalf("plain fallback must not use karaoke tags")
	}
	last := ass[strings.LastIndex(ass, ",,")+2:]
	if n := len([]rune(strings.TrimSpace(last))); n > 100 || !strings.HasSuffix(strings.TrimSpace(last), "…") {
		t.Fatalf("expected truncated line, got %d runes: %q", n, last)
	}
}

func TestRender_InvalidWindow(t *testing.T) {
	if _, err := Render(types.Transcript{}, 5*time.Second, 5*time.Second, vertical); err == nil {
		t.Fatalf("expected error for empty window")
	}
}

func TestPackWords_LinePolicy(t *testing.T) {
	var words []wword
	for i := 0; i < 20; i++ {
		start := time.Duration(i) * 200 * time.Millisecond
		words = append(words, wword{Start: start, End: start + 200*time.Millisecond, Text: "ab"})
	}
	lines := packWords(words, 42)
	for _, ln := range lines {
		if len(ln.Words) > maxLineWords {
			t.Fatalf("line has %d words", len(ln.Words))
		}
		if ln.End-ln.Start > maxLineDuration {
			t.Fatalf("line lasts %s", ln.End-ln.Start)
		}
	}
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}

	slow := []wword{
		{Start: 0, End: time.Second, Text: "one"},
		{Start: 2 * time.Second, End: 3500 * time.Millisecond, Text: "two"},
	}
	if got := packWords(slow, 42); len(got) != 2 {
		t.Fatalf("expected duration split, got %+v", got)
	}
}

func TestFrame_MaxChars(t *testing.T) {
	if got := vertical.MaxChars(); got < 16 || got > 42 {
		t.Fatalf("vertical budget out of range: %d", got)
	}
	if got := (Frame{Width: 1920, Height: 1080}).MaxChars(); got != 42 {
		t.Fatalf("expected landscape budget clamped to 42, got %d", got)
	}
	if got := (Frame{Width: 200, Height: 1920}).MaxChars(); got != 16 {
		t.Fatalf("expected narrow budget clamped to 16, got %d", got)
	}
}

func TestAssTime_Format(t *testing.T) {
	got := assTime(61*time.Second + 234*time.Millisecond)
	if got != "0:01:01.23" {
		t.Fatalf("unexpected assTime: %s", got)
	}
}
