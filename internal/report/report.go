// Package report writes batch results to an Excel workbook.
package report

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/MrWong99/intake/internal/pipeline"
	"github.com/MrWong99/intake/internal/record"
)

const (
	ResultsSheet = "Results"
	SummarySheet = "Summary"
)

// StatusFailed is the status of a row whose run failed.
const StatusFailed = "error"

// Headers are the column titles of the results sheet.
var Headers = []string{
	"File",
	"Status",
	"Name",
	"Surname",
	"Gender",
	"Phone",
	"License Plate",
	"Missing Fields",
	"Ask-back",
	"STT (s)",
	"Extract (s)",
	"Ask-back (s)",
	"Error Kind",
	"Error",
}

// Row is the outcome of one file. Exactly one of Result and Err is set.
type Row struct {
	File   string
	Result *pipeline.Result
	Err    error
}

// Status returns COMPLETE, INCOMPLETE, or error.
func (r Row) Status() string {
	if r.Err != nil || r.Result == nil {
		return StatusFailed
	}
	return string(r.Result.Verdict.Status)
}

func (r Row) values() []any {
	out := make([]any, 0, len(Headers))
	out = append(out, r.File, r.Status())
	if r.Result == nil {
		out = append(out, "", "", "", "", "", "", "", "", "", "")
		kind, msg := "", ""
		if r.Err != nil {
			kind, msg = string(pipeline.KindOf(r.Err)), r.Err.Error()
		}
		return append(out, kind, msg)
	}
	res := r.Result
	for _, f := range record.Fields {
		out = append(out, res.Record.Get(f))
	}
	return append(out,
		strings.Join(record.Names(res.Verdict.Missing), ", "),
		res.AskBack,
		res.Timings.STT.Seconds(),
		res.Timings.Extract.Seconds(),
		res.Timings.AskBack.Seconds(),
		"",
		"",
	)
}

// Build returns a workbook with one results row per entry and a summary
// sheet counting rows per status. The caller closes the file.
func Build(rows []Row) (*excelize.File, error) {
	f := excelize.NewFile()
	// NewFile starts with "Sheet1".
	if err := f.SetSheetName("Sheet1", ResultsSheet); err != nil {
		return nil, fmt.Errorf("report: rename sheet: %w", err)
	}

	for i, h := range Headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(ResultsSheet, cell, h); err != nil {
			return nil, fmt.Errorf("report: header %s: %w", cell, err)
		}
	}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		vals := r.values()
		if err := f.SetSheetRow(ResultsSheet, cell, &vals); err != nil {
			return nil, fmt.Errorf("report: row %d: %w", i+2, err)
		}
	}
	_ = f.SetColWidth(ResultsSheet, "A", "A", 32)
	_ = f.SetColWidth(ResultsSheet, "C", "G", 16)
	_ = f.SetColWidth(ResultsSheet, "H", "I", 40)
	_ = f.SetColWidth(ResultsSheet, "N", "N", 60)
	if err := f.SetPanes(ResultsSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("report: freeze header: %w", err)
	}

	if err := summarize(f, rows); err != nil {
		return nil, err
	}
	return f, nil
}

func summarize(f *excelize.File, rows []Row) error {
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return fmt.Errorf("report: summary sheet: %w", err)
	}
	counts := map[string]int{}
	for _, r := range rows {
		counts[r.Status()]++
	}
	summary := [][]any{
		{"Status", "Files"},
		{string(record.StatusComplete), counts[string(record.StatusComplete)]},
		{string(record.StatusIncomplete), counts[string(record.StatusIncomplete)]},
		{StatusFailed, counts[StatusFailed]},
		{"Total", len(rows)},
	}
	for i, vals := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(SummarySheet, cell, &vals); err != nil {
			return fmt.Errorf("report: summary row %d: %w", i+1, err)
		}
	}
	return nil
}

// Write encodes the workbook for rows to w.
func Write(w io.Writer, rows []Row) error {
	f, err := Build(rows)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("report: write: %w", err)
	}
	return nil
}

// WriteFile writes the workbook for rows to path.
func WriteFile(path string, rows []Row) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create %s: %w", path, err)
	}
	if err := Write(out, rows); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("report: close %s: %w", path, err)
	}
	slog.Info("report written", "path", path, "rows", len(rows))
	return nil
}
