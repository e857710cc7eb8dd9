package commands

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/qntx-libinjection/display"
	"github.com/teranos/qntx-libinjection/errors"
	"github.com/teranos/qntx-libinjection/internal/fixture"
	"github.com/teranos/qntx-libinjection/libinjection"
	"github.com/teranos/qntx-libinjection/logger"
)

// FixturesCmd runs libinjection fixture files through the SQL injection query
var FixturesCmd = &cobra.Command{
	Use:   "fixtures <dir>",
	Short: "Check libinjection test-case files",
	Long: `Run every fixture file in a directory through the SQL injection query.

A fixture passes when the detection result matches: an empty EXPECTED section
means no injection, anything else is the exact fingerprint expected. Exits
non-zero if any fixture fails.

Examples:
  injection fixtures ./libinjection/tests
  injection fixtures ./tests --pattern 'test-sqli-*.txt' --json`,
	Args: cobra.ExactArgs(1),
	RunE: runFixtures,
}

var fixturesPatternFlag string

func init() {
	FixturesCmd.Flags().StringVar(&fixturesPatternFlag, "pattern", "test-sqli-*.txt", "Fixture file glob")
}

type fixtureFailure struct {
	Name        string `json:"name"`
	Input       string `json:"input"`
	Expected    string `json:"expected"`
	Matched     bool   `json:"matched"`
	Fingerprint string `json:"fingerprint"`
}

type fixtureReport struct {
	Total    int              `json:"total"`
	Failed   int              `json:"failed"`
	Failures []fixtureFailure `json:"failures"`
}

func loadFixtures(dir, pattern string) ([]fixture.Case, error) {
	cases, err := fixture.Load(os.DirFS(dir), pattern)
	if err != nil {
		return nil, err
	}
	if len(cases) == 0 {
		return nil, errors.WithHint(
			errors.Newf("no fixtures match %s in %s", pattern, dir),
			"fixture files are named like test-sqli-001.txt; see --pattern")
	}
	return cases, nil
}

func runFixtures(cmd *cobra.Command, args []string) error {
	cases, err := loadFixtures(args[0], fixturesPatternFlag)
	if err != nil {
		return err
	}

	report, err := checkFixtures(cases)
	if err != nil {
		return err
	}

	if display.ShouldOutputJSON(cmd) {
		if err := display.OutputJSON(cmd.OutOrStdout(), report); err != nil {
			return err
		}
	} else if err := printFixtureReport(cmd.OutOrStdout(), report); err != nil {
		return err
	}

	if report.Failed > 0 {
		return errors.Newf("%d of %d fixtures failed", report.Failed, report.Total)
	}
	return nil
}

func checkFixtures(cases []fixture.Case) (*fixtureReport, error) {
	log := logger.ComponentLogger("fixtures")
	report := &fixtureReport{Total: len(cases), Failures: []fixtureFailure{}}

	for _, c := range cases {
		matched, fp, err := libinjection.IsSQLi(c.Input)
		if err != nil {
			return nil, errors.Wrapf(err, "fixture %s", c.Name)
		}
		if !matched {
			fp = ""
		}
		if matched == c.WantMatch() && fp == c.Expected {
			continue
		}
		log.Debugw("fixture mismatch", logger.FieldFixture, c.Name, logger.FieldFingerprint, fp)
		report.Failures = append(report.Failures, fixtureFailure{
			Name:        c.Name,
			Input:       c.Input,
			Expected:    c.Expected,
			Matched:     matched,
			Fingerprint: fp,
		})
	}
	report.Failed = len(report.Failures)
	return report, nil
}

func printFixtureReport(w io.Writer, report *fixtureReport) error {
	if report.Failed > 0 {
		rows := [][]string{{"fixture", "expected", "got", "input"}}
		for _, f := range report.Failures {
			rows = append(rows, []string{f.Name, orNone(f.Expected), gotLabel(f), display.QuoteInput(f.Input)})
		}
		if err := display.Table(w, rows); err != nil {
			return err
		}
	}
	display.Summary(w, report.Failed == 0, "%d fixtures, %d failed", report.Total, report.Failed)
	return nil
}

func gotLabel(f fixtureFailure) string {
	if !f.Matched {
		return "(no match)"
	}
	return orNone(f.Fingerprint)
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
