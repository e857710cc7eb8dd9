package commands

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/spf13/cobra"

	"github.com/teranos/qntx-libinjection/display"
	"github.com/teranos/qntx-libinjection/errors"
	"github.com/teranos/qntx-libinjection/internal/fixture"
	"github.com/teranos/qntx-libinjection/libinjection"
	"github.com/teranos/qntx-libinjection/wasm"
)

// BenchCmd times the SQL injection query per fixture
var BenchCmd = &cobra.Command{
	Use:   "bench <dir>",
	Short: "Time the SQL injection query per fixture",
	Long: `Time IsSQLi over every fixture in a directory.

Each fixture input is classified --iterations times. Process resident memory
is sampled before and after so that a leak in the scratch allocation protocol
shows up as growth.

Examples:
  injection bench ./tests --iterations 10000`,
	Args: cobra.ExactArgs(1),
	RunE: runBench,
}

var (
	benchIterationsFlag int
	benchPatternFlag    string
)

func init() {
	BenchCmd.Flags().IntVarP(&benchIterationsFlag, "iterations", "n", 1000, "Queries per fixture")
	BenchCmd.Flags().StringVar(&benchPatternFlag, "pattern", "test-sqli-*.txt", "Fixture file glob")
}

type benchResult struct {
	Name    string `json:"name"`
	Bytes   int    `json:"bytes"`
	NsPerOp int64  `json:"ns_per_op"`
	Matched bool   `json:"matched"`
}

type benchReport struct {
	Iterations     int            `json:"iterations"`
	RSSBeforeBytes uint64         `json:"rss_before_bytes"`
	RSSAfterBytes  uint64         `json:"rss_after_bytes"`
	Pool           wasm.PoolStats `json:"pool"`
	Results        []benchResult  `json:"results"`
}

func runBench(cmd *cobra.Command, args []string) error {
	if benchIterationsFlag < 1 {
		return errors.Newf("--iterations must be >= 1, got %d", benchIterationsFlag)
	}
	cases, err := loadFixtures(args[0], benchPatternFlag)
	if err != nil {
		return err
	}

	// warm up so the before sample includes the compiled module
	if _, _, err := libinjection.IsSQLi(""); err != nil {
		return err
	}

	report, err := bench(cmd, cases, benchIterationsFlag)
	if err != nil {
		return err
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(cmd.OutOrStdout(), report)
	}
	return printBenchReport(cmd.OutOrStdout(), report)
}

func bench(cmd *cobra.Command, cases []fixture.Case, iterations int) (*benchReport, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, errors.Wrap(err, "inspect own process")
	}

	report := &benchReport{Iterations: iterations}
	report.RSSBeforeBytes = rss(proc)

	for _, c := range cases {
		if err := cmd.Context().Err(); err != nil {
			return nil, err
		}
		var matched bool
		start := time.Now()
		for i := 0; i < iterations; i++ {
			matched, _, err = libinjection.IsSQLi(c.Input)
			if err != nil {
				return nil, errors.Wrapf(err, "fixture %s", c.Name)
			}
		}
		report.Results = append(report.Results, benchResult{
			Name:    c.Name,
			Bytes:   len(c.Input),
			NsPerOp: time.Since(start).Nanoseconds() / int64(iterations),
			Matched: matched,
		})
	}

	report.RSSAfterBytes = rss(proc)
	report.Pool = libinjection.Stats()
	return report, nil
}

// rss returns resident memory, or 0 where the platform does not report it.
func rss(p *process.Process) uint64 {
	mi, err := p.MemoryInfo()
	if err != nil || mi == nil {
		return 0
	}
	return mi.RSS
}

func printBenchReport(w io.Writer, report *benchReport) error {
	rows := [][]string{{"fixture", "bytes", "ns/op", "matched"}}
	for _, r := range report.Results {
		rows = append(rows, []string{r.Name, fmt.Sprint(r.Bytes), fmt.Sprint(r.NsPerOp), fmt.Sprint(r.Matched)})
	}
	if err := display.Table(w, rows); err != nil {
		return err
	}
	fmt.Fprintf(w, "RSS %s -> %s, %d contexts created\n",
		mib(report.RSSBeforeBytes), mib(report.RSSAfterBytes), report.Pool.Created)
	return nil
}

func mib(b uint64) string {
	return fmt.Sprintf("%.1f MiB", float64(b)/(1<<20))
}
