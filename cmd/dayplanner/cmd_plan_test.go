package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/KaliNikolova/dayplanner/internal/planner"
)

const sampleDay = `
tasks:
  - {id: write, duration: 60}
  - {id: review, duration: 30}
busy:
  - {start: 2026-05-04T00:00:00Z, end: 2026-05-04T09:00:00Z}
  - {start: 2026-05-04T09:30:00Z, end: 2026-05-04T10:00:00Z}
  - {start: 2026-05-04T17:00:00Z, end: 2026-05-05T00:00:00Z}
`

func TestReadPlanFileFromStdin(t *testing.T) {
	in, err := readPlanFile(strings.NewReader(sampleDay), "-")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(in.Tasks) != 2 || len(in.Busy) != 3 {
		t.Fatalf("unexpected file contents: %+v", in)
	}
	if in.Tasks[1].ID != "review" || in.Tasks[1].Duration != 30 {
		t.Fatalf("unexpected task: %+v", in.Tasks[1])
	}
	if got := in.Busy[1].Start.UTC().Format("15:04"); got != "09:30" {
		t.Fatalf("busy start=%s, want 09:30", got)
	}
}

func TestPlanCommandPrintsPlacements(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetIn(strings.NewReader(sampleDay))
	rootCmd.SetArgs([]string{"plan", "-", "--at", "2026-05-04T07:00:00Z", "--timezone", "UTC"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	var result planner.Result
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out.String())
	}
	if len(result.Placements) != 2 {
		t.Fatalf("expected 2 placements, got %+v", result.Placements)
	}
	if got := result.Placements[0].Start.UTC().Format("15:04"); got != "10:00" {
		t.Fatalf("write starts at %s, want 10:00", got)
	}
	if got := result.Placements[1].Start.UTC().Format("15:04"); got != "11:00" {
		t.Fatalf("review starts at %s, want 11:00", got)
	}
}
