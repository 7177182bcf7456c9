package rpctests

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/Laisky/errors/v2"
)

type reportSummary struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

type report struct {
	TestRun string        `json:"testRun"`
	RunID   string        `json:"runId"`
	Tests   []TestRecord  `json:"tests"`
	Summary reportSummary `json:"summary"`
}

// WriteReport saves the summary as an indented JSON document at path, replacing any file that
// is already there.
func WriteReport(path string, summary RunSummary) error {
	r := report{
		TestRun: summary.Timestamp.UTC().Format(time.RFC3339Nano),
		RunID:   summary.RunID,
		Tests:   summary.Tests,
		Summary: reportSummary{
			Total:  summary.Total,
			Passed: summary.Passed,
			Failed: summary.Failed,
		},
	}
	if r.Tests == nil {
		r.Tests = []TestRecord{}
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return errors.Wrap(err, "could not serialize report")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "could not create report directory %s", dir)
		}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return errors.Wrapf(err, "could not write report to %s", path)
	}
	return nil
}
