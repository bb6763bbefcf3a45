package highlights

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Cue patterns that tend to make a short clip stand alone.
var (
	cueFigure   = regexp.MustCompile(`\b\d+(?:[.,]\d+)?\s*(?:%|percent|x|times|k|million|billion)?\b`)
	cueHook     = regexp.MustCompile(`(?i)\b(secret|mistake|never|always|nobody|everyone|truth|actually|here\s+is\s+why|the\s+reason)\b`)
	cueAddress  = regexp.MustCompile(`(?i)\b(you|your|you're)\b`)
	cueSequence = regexp.MustCompile(`(?i)\b(step\s+\d+|first(?:ly)?|second(?:ly)?|finally|how\s+to)\b`)
)

// Salience rates how self-contained and attention-grabbing text is, in
// [0, 10]. It orders overlapping windows that the model scored equally.
func Salience(text string) float64 {
	t := strings.TrimSpace(text)
	if t == "" {
		return 0
	}

	s := 0.9 * float64(len(cueHook.FindAllStringIndex(t, -1)))
	s += 0.4 * float64(len(cueFigure.FindAllStringIndex(t, -1)))
	s += 0.5 * float64(len(cueSequence.FindAllStringIndex(t, -1)))
	s += 0.7 * float64(strings.Count(t, "?"))
	s += 0.3 * float64(strings.Count(t, "!"))

	// Direct address helps, but only up to a point.
	s += min(1.5, 0.25*float64(len(cueAddress.FindAllStringIndex(t, -1))))

	// Long rambling windows rank below tight ones.
	s -= 0.0006 * float64(utf8.RuneCountInString(t))

	return max(0, min(10, s))
}
