package highlights

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/forPelevin/clipforge/internal/domain/transcript"
	"github.com/forPelevin/clipforge/internal/errs"
	"github.com/forPelevin/clipforge/internal/ports"
	"github.com/forPelevin/clipforge/internal/types"
)

type Config struct {
	MaxRetries       int
	Backoff          time.Duration
	ChunkChars       int
	OverlapThreshold float64

	// Sleep waits between retries. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (c Config) withDefaults() Config {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.Backoff <= 0 {
		c.Backoff = 2 * time.Second
	}
	if c.ChunkChars <= 0 {
		c.ChunkChars = 12000
	}
	if c.OverlapThreshold <= 0 || c.OverlapThreshold > 1 {
		c.OverlapThreshold = 0.3
	}
	if c.Sleep == nil {
		c.Sleep = sleepCtx
	}
	return c
}

type Analyzer struct {
	llm    ports.LLM
	cfg    Config
	schema map[string]any
	valid  *jsonschema.Schema
}

func NewAnalyzer(llm ports.LLM, cfg Config) (*Analyzer, error) {
	schema := responseSchema()
	valid, err := compileSchema(schema)
	if err != nil {
		return nil, err
	}
	return &Analyzer{llm: llm, cfg: cfg.withDefaults(), schema: schema, valid: valid}, nil
}

// Analyze returns at most req.Count validated, non-overlapping windows
// ordered by start time. An empty transcript yields no windows.
func (a *Analyzer) Analyze(ctx context.Context, tr types.Transcript, req ports.AnalyzeRequest) ([]types.HighlightWindow, error) {
	if req.Count <= 0 {
		return nil, errs.Errorf(errs.KindValidation, "clip count must be > 0")
	}
	if req.MinDuration <= 0 || req.MaxDuration < req.MinDuration {
		return nil, errs.Errorf(errs.KindValidation, "invalid duration bounds [%s, %s]", req.MinDuration, req.MaxDuration)
	}
	if len(tr.Segments) == 0 {
		return nil, nil
	}

	var all []types.HighlightWindow
	chunks := chunkSegments(tr.Segments, a.cfg.ChunkChars, req.MaxDuration)
	for i, segs := range chunks {
		lines := transcript.Lines(types.Transcript{Segments: segs})
		raws, err := a.completeWithRetry(ctx, buildPrompt(lines, req))
		if err != nil {
			return nil, errs.E(errs.KindAnalysis, fmt.Sprintf("chunk %d/%d", i+1, len(chunks)), err)
		}
		for _, r := range raws {
			all = append(all, types.HighlightWindow{
				Start:     transcript.Seconds(r.Start),
				End:       transcript.Seconds(r.End),
				Score:     r.Score,
				Title:     strings.TrimSpace(r.Title),
				Rationale: strings.TrimSpace(r.Rationale),
			})
		}
	}

	kept := Filter(all, Bounds{Min: req.MinDuration, Max: req.MaxDuration, RangeEnd: transcript.End(tr)})
	kept = ResolveOverlaps(kept, a.cfg.OverlapThreshold, func(w types.HighlightWindow) float64 {
		return Salience(windowText(tr, w))
	})
	if len(kept) > req.Count {
		kept = kept[:req.Count]
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })
	return kept, nil
}

func (a *Analyzer) completeWithRetry(ctx context.Context, prompt string) ([]rawWindow, error) {
	var lastErr error
	attempts := a.cfg.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			wait := a.cfg.Backoff << (attempt - 1)
			if err := a.cfg.Sleep(ctx, wait); err != nil {
				return nil, err
			}
		}
		content, err := a.llm.Complete(ctx, ports.LLMRequest{
			Prompt:     prompt,
			SchemaName: schemaName,
			Schema:     a.schema,
		})
		if err == nil {
			var raws []rawWindow
			raws, err = parseResponse(a.valid, content)
			if err == nil {
				return raws, nil
			}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}
	return nil, fmt.Errorf("llm failed after %d attempts: %w", attempts, lastErr)
}

// chunkSegments packs segments into chunks of at most maxChars rendered
// characters. Each chunk after the first re-includes the trailing overlap
// seconds of its predecessor.
func chunkSegments(segs []types.Segment, maxChars int, overlap time.Duration) [][]types.Segment {
	if len(segs) == 0 {
		return nil
	}
	var out [][]types.Segment
	i := 0
	for i < len(segs) {
		size := 0
		j := i
		for j < len(segs) {
			n := len(transcript.FormatLine(segs[j].Start, segs[j].End, segs[j].Text)) + 1
			if j > i && size+n > maxChars {
				break
			}
			size += n
			j++
		}
		out = append(out, segs[i:j])
		if j >= len(segs) {
			break
		}
		next := j
		cut := segs[j-1].End - overlap.Seconds()
		for k := j - 1; k > i; k-- {
			if segs[k].Start < cut {
				break
			}
			next = k
		}
		i = next
	}
	return out
}

func windowText(tr types.Transcript, w types.HighlightWindow) string {
	var parts []string
	for _, s := range tr.Segments {
		if transcript.Seconds(s.End) <= w.Start || transcript.Seconds(s.Start) >= w.End {
			continue
		}
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, " ")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ ports.HighlightAnalyzer = (*Analyzer)(nil)
