package highlights

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/forPelevin/clipforge/internal/ports"
)

const schemaName = "clipforge_highlights"

// responseSchema is sent as the structured-output format and used to
// validate whatever the model actually returned.
func responseSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"windows": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"start":     map[string]any{"type": "number"},
						"end":       map[string]any{"type": "number"},
						"score":     map[string]any{"type": "number"},
						"title":     map[string]any{"type": "string"},
						"rationale": map[string]any{"type": "string"},
					},
					"required":             []string{"start", "end", "score", "title", "rationale"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"windows"},
		"additionalProperties": false,
	}
}

func compileSchema(m map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("highlights.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	s, err := compiler.Compile("highlights.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return s, nil
}

type rawWindow struct {
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Score     float64 `json:"score"`
	Title     string  `json:"title"`
	Rationale string  `json:"rationale"`
}

// parseResponse validates content against the schema and decodes it.
func parseResponse(schema *jsonschema.Schema, content string) ([]rawWindow, error) {
	var v any
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return nil, fmt.Errorf("response does not match schema: %w", err)
	}
	var out struct {
		Windows []rawWindow `json:"windows"`
	}
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("decode windows: %w", err)
	}
	return out.Windows, nil
}

func buildPrompt(lines []string, req ports.AnalyzeRequest) string {
	var b strings.Builder
	b.WriteString("You are a short-form video editor. From the transcript below, select up to ")
	fmt.Fprintf(&b, "%d", req.Count)
	b.WriteString(" moments with the highest viral potential. ")
	b.WriteString("Each moment must start cleanly, end on a complete thought, and last between ")
	fmt.Fprintf(&b, "%s and %s seconds. ", secs(req.MinDuration), secs(req.MaxDuration))
	b.WriteString("Use the bracketed timestamps (seconds from the start of the video) for start and end. ")
	b.WriteString("Score each moment from 0 to 1 for virality, give a short title and a one-sentence rationale describing the hook. ")
	b.WriteString("Moments must not overlap. ")
	b.WriteString("Return strictly valid JSON (no markdown, no code fences) matching the provided schema.")
	b.WriteString("\n\nTRANSCRIPT:\n")
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return b.String()
}

func secs(d time.Duration) string {
	return fmt.Sprintf("%g", d.Seconds())
}
