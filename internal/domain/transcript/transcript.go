// Package transcript normalizes speech-to-text output and converts it to and
// from the line-oriented text format used in prompts and persisted files.
package transcript

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/forPelevin/clipforge/internal/types"
)

// Normalize orders words by start time and enforces end >= start and
// non-overlapping word boundaries. Empty words are dropped.
func Normalize(tr types.Transcript) types.Transcript {
	segs := make([]types.Segment, 0, len(tr.Segments))
	for _, s := range tr.Segments {
		words := make([]types.Word, 0, len(s.Words))
		for _, w := range s.Words {
			w.Word = strings.TrimSpace(w.Word)
			if w.Word == "" {
				continue
			}
			words = append(words, w)
		}
		s.Words = words
		s.Text = strings.TrimSpace(s.Text)
		if s.Text == "" && len(s.Words) == 0 {
			continue
		}
		segs = append(segs, s)
	}
	sort.SliceStable(segs, func(i, j int) bool { return segs[i].Start < segs[j].Start })

	prevEnd := 0.0
	for i := range segs {
		words := segs[i].Words
		sort.SliceStable(words, func(a, b int) bool { return words[a].Start < words[b].Start })
		for j := range words {
			w := &words[j]
			if w.Start < 0 {
				w.Start = 0
			}
			if w.Start < prevEnd {
				w.Start = prevEnd
			}
			if w.End < w.Start {
				w.End = w.Start
			}
			prevEnd = w.End
		}
		if segs[i].End < segs[i].Start {
			segs[i].End = segs[i].Start
		}
	}
	return types.Transcript{Segments: segs}
}

// Words flattens all word records in timeline order.
func Words(tr types.Transcript) []types.Word {
	n := 0
	for _, s := range tr.Segments {
		n += len(s.Words)
	}
	out := make([]types.Word, 0, n)
	for _, s := range tr.Segments {
		out = append(out, s.Words...)
	}
	return out
}

// End is the end of the last word or segment, whichever is later.
func End(tr types.Transcript) time.Duration {
	var end float64
	for _, s := range tr.Segments {
		if s.End > end {
			end = s.End
		}
		for _, w := range s.Words {
			if w.End > end {
				end = w.End
			}
		}
	}
	return Seconds(end)
}

// Shift moves every timestamp by off. Used to place chunk transcripts on the
// source timeline.
func Shift(tr types.Transcript, off time.Duration) types.Transcript {
	d := off.Seconds()
	out := types.Transcript{Segments: make([]types.Segment, len(tr.Segments))}
	for i, s := range tr.Segments {
		s.Start += d
		s.End += d
		words := make([]types.Word, len(s.Words))
		for j, w := range s.Words {
			w.Start += d
			w.End += d
			words[j] = w
		}
		s.Words = words
		out.Segments[i] = s
	}
	return out
}

// Lines renders one "[12.00s -> 14.30s] text" line per segment.
func Lines(tr types.Transcript) []string {
	out := make([]string, 0, len(tr.Segments))
	for _, s := range tr.Segments {
		text := s.Text
		if text == "" {
			parts := make([]string, 0, len(s.Words))
			for _, w := range s.Words {
				parts = append(parts, w.Word)
			}
			text = strings.Join(parts, " ")
		}
		out = append(out, FormatLine(s.Start, s.End, text))
	}
	return out
}

func FormatLine(start, end float64, text string) string {
	return fmt.Sprintf("[%.2fs -> %.2fs] %s", start, end, strings.TrimSpace(text))
}

func WriteText(w io.Writer, tr types.Transcript) error {
	bw := bufio.NewWriter(w)
	for _, l := range Lines(tr) {
		if _, err := bw.WriteString(l + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

var lineRE = regexp.MustCompile(`^\[(\d+(?:\.\d+)?)s\s*->\s*(\d+(?:\.\d+)?)s\]\s*(.*)$`)

// ParseText reads the line format back into segments without word timings.
// Lines that do not match are skipped.
func ParseText(r io.Reader) (types.Transcript, error) {
	var tr types.Transcript
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		m := lineRE.FindStringSubmatch(strings.TrimSpace(sc.Text()))
		if m == nil {
			continue
		}
		start, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		end, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		tr.Segments = append(tr.Segments, types.Segment{Start: start, End: end, Text: strings.TrimSpace(m[3])})
	}
	return tr, sc.Err()
}

func Seconds(sec float64) time.Duration {
	return time.Duration(math.Round(sec * float64(time.Second)))
}
