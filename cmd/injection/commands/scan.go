package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/teranos/qntx-libinjection/am"
	"github.com/teranos/qntx-libinjection/display"
	"github.com/teranos/qntx-libinjection/errors"
	"github.com/teranos/qntx-libinjection/libinjection"
	"github.com/teranos/qntx-libinjection/logger"
	"github.com/teranos/qntx-libinjection/wasm"
)

// ScanCmd classifies every line of its input
var ScanCmd = &cobra.Command{
	Use:   "scan [file|-]",
	Short: "Classify every line of a file or stdin",
	Long: `Classify every input line as SQL injection and as XSS.

Lines are spread over --workers goroutines, each holding its own execution
context. --rate caps the number of lines classified per second across all
workers. Only flagged lines are printed unless --all is set.

Defaults come from the [scan] section of am.toml.

Examples:
  injection scan access.log
  cat params.txt | injection scan --workers 4 --rate 200 --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

var (
	scanWorkersFlag int
	scanRateFlag    float64
	scanAllFlag     bool
)

// maxScanLine bounds a single input line
const maxScanLine = 16 << 20

func init() {
	ScanCmd.Flags().IntVarP(&scanWorkersFlag, "workers", "w", 0, "Concurrent workers (default: scan.workers, else GOMAXPROCS)")
	ScanCmd.Flags().Float64Var(&scanRateFlag, "rate", 0, "Lines per second across all workers (default: scan.rate_per_second, 0 = unlimited)")
	ScanCmd.Flags().BoolVar(&scanAllFlag, "all", false, "Report every line, not only flagged ones")
}

// classifier is the per-worker detector; libinjection.Worker satisfies it.
type classifier interface {
	IsSQLi(text string) (bool, string, error)
	IsXSS(text string) (bool, error)
	Close()
}

var newClassifier = func() (classifier, error) {
	return libinjection.NewWorker()
}

type scanLine struct {
	n    int
	text string
}

type scanResult struct {
	Line        int    `json:"line"`
	Input       string `json:"input"`
	SQLi        bool   `json:"sqli"`
	Fingerprint string `json:"fingerprint,omitempty"`
	XSS         bool   `json:"xss"`
	Error       string `json:"error,omitempty"`
}

func (r scanResult) flagged() bool {
	return r.SQLi || r.XSS || r.Error != ""
}

type scanReport struct {
	RunID      string         `json:"run_id"`
	Workers    int            `json:"workers"`
	Lines      int            `json:"lines"`
	Flagged    int            `json:"flagged"`
	Errors     int            `json:"errors"`
	DurationMS int64          `json:"duration_ms"`
	Pool       wasm.PoolStats `json:"pool"`
	Results    []scanResult   `json:"results"`
}

type scanOptions struct {
	workers int
	limiter *rate.Limiter
	all     bool
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	opts := scanOptions{workers: cfg.Scan.Workers, all: scanAllFlag}
	if cmd.Flags().Changed("workers") {
		opts.workers = scanWorkersFlag
	}
	if opts.workers <= 0 {
		opts.workers = runtime.GOMAXPROCS(0)
	}

	perSecond := cfg.Scan.RatePerSecond
	if cmd.Flags().Changed("rate") {
		perSecond = scanRateFlag
	}
	if perSecond < 0 {
		return errors.Newf("--rate must be >= 0, got %g", perSecond)
	}
	if perSecond > 0 {
		burst := cfg.Scan.Burst
		if burst < 1 {
			burst = 1
		}
		opts.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}

	in := cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return errors.Wrap(err, "open scan input")
		}
		defer f.Close()
		in = f
	}

	report, err := scan(cmd.Context(), in, opts)
	if err != nil {
		return err
	}
	report.Pool = libinjection.Stats()

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(cmd.OutOrStdout(), report)
	}
	printScanReport(cmd.OutOrStdout(), report)
	return nil
}

// scan classifies every line of r. Query errors are recorded on their line;
// errors that make the module unusable abort the scan.
func scan(ctx context.Context, r io.Reader, opts scanOptions) (*scanReport, error) {
	report := &scanReport{RunID: uuid.NewString(), Workers: opts.workers}
	log := logger.ComponentLogger("scan").With(logger.FieldRunID, report.RunID)
	start := time.Now()
	log.Infow("scan started", logger.FieldWorkers, opts.workers)

	g, ctx := errgroup.WithContext(ctx)
	lines := make(chan scanLine, opts.workers)

	var total int
	g.Go(func() error {
		defer close(lines)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), maxScanLine)
		for sc.Scan() {
			total++
			select {
			case lines <- scanLine{n: total, text: sc.Text()}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return errors.Wrap(sc.Err(), "read scan input")
	})

	var (
		mu      sync.Mutex
		results []scanResult
	)
	for i := 0; i < opts.workers; i++ {
		g.Go(func() error {
			w, err := newClassifier()
			if err != nil {
				return err
			}
			defer w.Close()

			for l := range lines {
				if opts.limiter != nil {
					if err := opts.limiter.Wait(ctx); err != nil {
						return err
					}
				}
				res, err := classify(w, l)
				if err != nil {
					return err
				}
				if opts.all || res.flagged() {
					mu.Lock()
					results = append(results, res)
					mu.Unlock()
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Errorw("scan failed", logger.FieldError, err)
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Line < results[j].Line })
	report.Results = results
	report.Lines = total
	for _, res := range results {
		if res.flagged() {
			report.Flagged++
		}
		if res.Error != "" {
			report.Errors++
		}
	}
	report.DurationMS = time.Since(start).Milliseconds()

	log.Infow("scan finished",
		logger.FieldCount, report.Lines,
		"flagged", report.Flagged,
		logger.FieldDurationMS, report.DurationMS)
	return report, nil
}

func classify(w classifier, l scanLine) (scanResult, error) {
	res := scanResult{Line: l.n, Input: l.text}

	sqli, fp, err := w.IsSQLi(l.text)
	if err != nil {
		if errors.IsFatal(err) {
			return res, errors.Wrapf(err, "line %d", l.n)
		}
		res.Error = err.Error()
		return res, nil
	}
	res.SQLi = sqli
	if sqli {
		res.Fingerprint = fp
	}

	xss, err := w.IsXSS(l.text)
	if err != nil {
		if errors.IsFatal(err) {
			return res, errors.Wrapf(err, "line %d", l.n)
		}
		res.Error = err.Error()
		return res, nil
	}
	res.XSS = xss
	return res, nil
}

func printScanReport(w io.Writer, report *scanReport) {
	for _, res := range report.Results {
		var labels []string
		if res.SQLi {
			labels = append(labels, pterm.Red("SQLI")+" "+pterm.Yellow(res.Fingerprint))
		}
		if res.XSS {
			labels = append(labels, pterm.Red("XSS"))
		}
		if res.Error != "" {
			labels = append(labels, pterm.LightMagenta("ERROR")+" "+res.Error)
		}
		if len(labels) == 0 {
			labels = append(labels, pterm.LightGreen("clean"))
		}
		fmt.Fprintf(w, "%6d  %s  %s\n", res.Line, strings.Join(labels, ", "), display.QuoteInput(res.Input))
	}
	display.Summary(w, report.Flagged == 0,
		"%d lines, %d flagged, %d errors in %d ms (%d workers, run %s)",
		report.Lines, report.Flagged, report.Errors, report.DurationMS, report.Workers, report.RunID)
}
