// Package report renders a finished job, its clip manifest and transcript as
// a workbook.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/forPelevin/clipforge/internal/domain/transcript"
	"github.com/forPelevin/clipforge/internal/types"
)

const (
	clipsSheet      = "Clips"
	jobSheet        = "Job"
	transcriptSheet = "Transcript"
)

// ReadManifest decodes a manifest.json artifact.
func ReadManifest(r io.Reader) (types.Manifest, error) {
	var m types.Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return types.Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	return m, nil
}

// ReadTranscript decodes a transcript.txt artifact.
func ReadTranscript(r io.Reader) (types.Transcript, error) {
	tr, err := transcript.ParseText(r)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("read transcript: %w", err)
	}
	return tr, nil
}

// XLSX returns a workbook with one row per clip and a sheet of job metadata.
// A non-empty transcript adds a sheet with one row per segment.
func XLSX(job types.Job, m types.Manifest, tr types.Transcript) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", clipsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(jobSheet); err != nil {
		return nil, err
	}

	headers := []string{"Clip", "Start (s)", "End (s)", "Duration (s)", "Score", "Title", "Rationale", "File"}
	if err := writeRow(f, clipsSheet, 1, toAny(headers)); err != nil {
		return nil, err
	}
	for i, c := range m.Clips {
		row := []any{c.ID, c.StartSec, c.EndSec, round2(c.EndSec - c.StartSec), c.Score, c.Title, truncate(c.Rationale, 300), c.File}
		if err := writeRow(f, clipsSheet, i+2, row); err != nil {
			return nil, err
		}
	}
	_ = f.SetColWidth(clipsSheet, "A", "A", 8)
	_ = f.SetColWidth(clipsSheet, "B", "E", 12)
	_ = f.SetColWidth(clipsSheet, "F", "F", 36)
	_ = f.SetColWidth(clipsSheet, "G", "G", 60)
	_ = f.SetColWidth(clipsSheet, "H", "H", 20)

	meta := [][]any{
		{"Job", job.ID},
		{"Source", m.Source},
		{"Mode", string(job.Mode)},
		{"Status", string(job.Status)},
		{"Progress", job.Progress},
		{"Message", job.Message},
		{"Created", job.CreatedAt.UTC().Format("2006-01-02 15:04:05")},
	}
	if job.CompletedAt != nil {
		meta = append(meta, []any{"Completed", job.CompletedAt.UTC().Format("2006-01-02 15:04:05")})
	}
	for _, n := range m.Notes {
		meta = append(meta, []any{"Note", n})
	}
	for _, a := range job.Artifacts {
		meta = append(meta, []any{"Artifact", a.Name, a.Size})
	}
	for i, r := range meta {
		if err := writeRow(f, jobSheet, i+1, r); err != nil {
			return nil, err
		}
	}
	_ = f.SetColWidth(jobSheet, "A", "A", 12)
	_ = f.SetColWidth(jobSheet, "B", "B", 48)

	if len(tr.Segments) > 0 {
		if err := writeTranscript(f, tr); err != nil {
			return nil, err
		}
	}

	idx, _ := f.GetSheetIndex(clipsSheet)
	f.SetActiveSheet(idx)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeTranscript(f *excelize.File, tr types.Transcript) error {
	if _, err := f.NewSheet(transcriptSheet); err != nil {
		return err
	}
	if err := writeRow(f, transcriptSheet, 1, []any{"Start (s)", "End (s)", "Text"}); err != nil {
		return err
	}
	for i, s := range tr.Segments {
		if err := writeRow(f, transcriptSheet, i+2, []any{round2(s.Start), round2(s.End), s.Text}); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(transcriptSheet, "A", "B", 10)
	_ = f.SetColWidth(transcriptSheet, "C", "C", 100)
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func round2(v float64) float64 {
	r, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	return r
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
