/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/KaliNikolova/dayplanner/internal/clock"
	"github.com/KaliNikolova/dayplanner/internal/logging"
	"github.com/KaliNikolova/dayplanner/internal/planner"
)

var (
	planAt       string
	planTimezone string
	planVerbose  bool
)

// planFile is the offline input of the plan command.
type planFile struct {
	Tasks     []planner.Task      `yaml:"tasks"`
	Busy      []planner.TimeRange `yaml:"busy"`
	Scheduled []planner.Placement `yaml:"scheduled"`
	Start     *time.Time          `yaml:"start"`
	StartHint *time.Time          `yaml:"start_hint"`
}

var planCmd = &cobra.Command{
	Use:   "plan FILE",
	Short: "Plan a day from a YAML file without a database",
	Long: `Run the placement engine on a YAML description of a day and print the result as JSON.

The file lists tasks, busy ranges and placements that must stay where they are:

  tasks:
    - {id: write, duration: 60}
    - {id: review, duration: 30}
  busy:
    - {start: 2026-05-04T00:00:00Z, end: 2026-05-04T09:00:00Z}
    - {start: 2026-05-04T17:00:00Z, end: 2026-05-05T00:00:00Z}
  start_hint: 2026-05-04T10:10:00Z

Use "-" to read from stdin.

Examples:
  dayplanner plan day.yaml --timezone Europe/Sofia
  dayplanner plan - --at 2026-05-04T07:00:00Z < day.yaml
`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVar(&planAt, "at", "", "Current time as RFC3339 (default: now)")
	planCmd.Flags().StringVar(&planTimezone, "timezone", "UTC", "Zone the planning day is computed in")
	planCmd.Flags().BoolVarP(&planVerbose, "verbose", "v", false, "Log engine decisions to stderr")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	loc, err := time.LoadLocation(planTimezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", planTimezone, err)
	}

	var clk clock.Clock = clock.System{}
	if planAt != "" {
		at, err := time.Parse(time.RFC3339, planAt)
		if err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
		clk = clock.Fixed(at)
	}

	in, err := readPlanFile(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}

	log := zerolog.Nop()
	if planVerbose {
		log = logging.SetupWithWriter("development", cmd.ErrOrStderr())
	}

	engine := planner.NewEngine(clk, loc, log)
	result, err := engine.Plan(planner.Request{
		Tasks:            in.Tasks,
		Busy:             in.Busy,
		AlreadyScheduled: in.Scheduled,
		Start:            in.Start,
		StartHint:        in.StartHint,
	})
	if err != nil {
		return fmt.Errorf("plan: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func readPlanFile(stdin io.Reader, path string) (planFile, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return planFile{}, fmt.Errorf("open plan file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var in planFile
	if err := yaml.NewDecoder(r).Decode(&in); err != nil && err != io.EOF {
		return planFile{}, fmt.Errorf("decode plan file: %w", err)
	}
	return in, nil
}
