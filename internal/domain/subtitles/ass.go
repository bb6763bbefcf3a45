// Package subtitles renders clip-relative ASS karaoke captions from a word
// timeline.
package subtitles

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/forPelevin/clipforge/internal/domain/transcript"
	"github.com/forPelevin/clipforge/internal/types"
)

const (
	maxLineWords    = 9
	maxLineDuration = 3 * time.Second
	maxLineRunes    = 100
	minLineChars    = 16
	maxLineChars    = 42
)

// Frame is the output video size the captions are laid out for.
type Frame struct {
	Width  int
	Height int
}

func (f Frame) fontSize() int { return int(math.Round(0.045 * float64(f.Height))) }
func (f Frame) marginV() int  { return int(math.Round(0.20 * float64(f.Height))) }
func (f Frame) marginLR() int { return int(math.Round(0.12 * float64(f.Width))) }

// MaxChars is the per-line character budget for the frame: the usable width
// between side margins divided by an average glyph width.
func (f Frame) MaxChars() int {
	usable := float64(f.Width - 2*f.marginLR())
	glyph := 0.55 * float64(f.fontSize())
	if glyph <= 0 {
		return maxLineChars
	}
	n := int(usable / glyph)
	if n < minLineChars {
		return minLineChars
	}
	if n > maxLineChars {
		return maxLineChars
	}
	return n
}

// Render builds an ASS document for [start, end) of tr with times relative
// to start. Words are used for karaoke timing; segments without word timings
// fall back to plain lines.
func Render(tr types.Transcript, start, end time.Duration, frame Frame) (string, error) {
	if end <= start {
		return "", fmt.Errorf("invalid caption window [%s, %s)", start, end)
	}
	if frame.Width <= 0 || frame.Height <= 0 {
		return "", fmt.Errorf("invalid frame %dx%d", frame.Width, frame.Height)
	}
	words := collectWords(tr, start, end)
	if len(words) == 0 {
		return renderASSPlain(collectSegmentLines(tr, start, end), frame), nil
	}
	return renderASSKaraoke(packWords(words, frame.MaxChars()), frame), nil
}

type wword struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

type line struct {
	Start time.Duration
	End   time.Duration
	Words []wword
}

func collectWords(tr types.Transcript, start, end time.Duration) []wword {
	var out []wword
	for _, w := range transcript.Words(tr) {
		ws := transcript.Seconds(w.Start)
		we := transcript.Seconds(w.End)
		if we <= start || ws >= end {
			continue
		}
		text := strings.TrimSpace(w.Word)
		if text == "" {
			continue
		}
		ws = max(ws, start)
		we = min(we, end)
		out = append(out, wword{Start: ws - start, End: we - start, Text: sanitizeASS(text)})
	}
	return out
}

func collectSegmentLines(tr types.Transcript, start, end time.Duration) []line {
	var out []line
	for _, s := range tr.Segments {
		ss := transcript.Seconds(s.Start)
		se := transcript.Seconds(s.End)
		if se <= start || ss >= end {
			continue
		}
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		ss = max(ss, start)
		se = min(se, end)
		out = append(out, line{Start: ss - start, End: se - start, Words: []wword{{Start: ss - start, End: se - start, Text: sanitizeASS(text)}}})
	}
	return out
}

// packWords groups words into lines bounded by charBudget characters,
// maxLineWords words and maxLineDuration.
func packWords(words []wword, charBudget int) []line {
	var out []line
	cur := line{Start: words[0].Start}
	curLen := 0
	for i, w := range words {
		wl := len([]rune(w.Text))
		nextLen := curLen
		if curLen > 0 {
			nextLen++
		}
		nextLen += wl
		full := len(cur.Words) >= maxLineWords || nextLen > charBudget || w.End-cur.Start > maxLineDuration
		if len(cur.Words) > 0 && full {
			cur.End = cur.Words[len(cur.Words)-1].End
			out = append(out, cur)
			cur = line{Start: w.Start}
			curLen = 0
		}
		cur.Words = append(cur.Words, w)
		if curLen > 0 {
			curLen++
		}
		curLen += wl
		if i == len(words)-1 {
			cur.End = w.End
			out = append(out, cur)
		}
	}
	return out
}

// renderASSKaraoke times each \k syllable against the word's absolute onset.
// Silence before a word becomes an empty spacer syllable.
func renderASSKaraoke(lines []line, frame Frame) string {
	var b strings.Builder
	b.WriteString(assHeader(frame))
	b.WriteString(eventsHeader)
	for _, ln := range lines {
		b.WriteString(dialoguePrefix(ln))
		base := centis(ln.Start)
		elapsed := 0
		for i, w := range ln.Words {
			if i > 0 {
				b.WriteString(" ")
			}
			if gap := roundCentis(w.Start) - base - elapsed; gap > 0 {
				fmt.Fprintf(&b, "{\\k%d}", gap)
				elapsed += gap
			}
			dur := max(1, roundCentis(w.End)-base-elapsed)
			elapsed += dur
			// Lines hold at most charBudget runes unless a single word is longer.
			fmt.Fprintf(&b, "{\\k%d}%s", dur, truncate(w.Text, maxLineRunes))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// centis truncates like assTime so karaoke offsets share the line's origin.
func centis(d time.Duration) int { return int(d / (10 * time.Millisecond)) }

func roundCentis(d time.Duration) int {
	return int(math.Round(float64(d) / float64(10*time.Millisecond)))
}

func renderASSPlain(lines []line, frame Frame) string {
	var b strings.Builder
	b.WriteString(assHeader(frame))
	b.WriteString(eventsHeader)
	for _, ln := range lines {
		b.WriteString(dialoguePrefix(ln))
		b.WriteString(truncate(ln.Words[0].Text, maxLineRunes))
		b.WriteString("\n")
	}
	return b.String()
}

const eventsHeader = "\n[Events]\nFormat: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n"

func dialoguePrefix(ln line) string {
	return "Dialogue: 0," + assTime(ln.Start) + "," + assTime(ln.End) + ",Clip,,0,0,0,,"
}

func assHeader(f Frame) string {
	outline := max(2, f.Height/320)
	shadow := max(1, f.Height/960)
	return fmt.Sprintf(`[Script Info]
ScriptType: v4.00+
PlayResX: %d
PlayResY: %d
WrapStyle: 0
ScaledBorderAndShadow: yes

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Clip,Inter,%d,&H00FFFFFF,&H00FFD200,&H00000000,&H64000000,1,0,0,0,100,100,0,0,1,%d,%d,2,%d,%d,%d,1
`, f.Width, f.Height, f.fontSize(), outline, shadow, f.marginLR(), f.marginLR(), f.marginV())
}

func assTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hs := int(d / time.Hour)
	d -= time.Duration(hs) * time.Hour
	ms := int(d / time.Minute)
	d -= time.Duration(ms) * time.Minute
	s := int(d / time.Second)
	d -= time.Duration(s) * time.Second
	cs := int(d / (10 * time.Millisecond))
	return fmt.Sprintf("%d:%02d:%02d.%02d", hs, ms, s, cs)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return "…"
	}
	return strings.TrimSpace(string(r[:n-1])) + "…"
}

func sanitizeASS(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "{", "(")
	s = strings.ReplaceAll(s, "}", ")")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}
