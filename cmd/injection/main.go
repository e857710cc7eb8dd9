package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teranos/qntx-libinjection/cmd/injection/commands"
	"github.com/teranos/qntx-libinjection/errors"
	"github.com/teranos/qntx-libinjection/logger"
)

var rootCmd = &cobra.Command{
	Use:   "injection",
	Short: "Detect SQL injection and XSS with libinjection in a wasm sandbox",
	Long: `injection - SQL injection and cross-site scripting detection.

Runs libinjection compiled to WebAssembly inside a wazero sandbox. The module
is compiled once per process; every query runs in an isolated execution
context with its own linear memory.

Available commands:
  sqli     - Classify text as SQL injection, with its fingerprint
  xss      - Classify text as cross-site scripting
  scan     - Classify every line of a file or stdin concurrently
  fixtures - Check libinjection test-case files
  bench    - Time the SQL injection query per fixture
  am       - Manage configuration ("I am")
  version  - Show version information

Examples:
  injection sqli "1' or '1'='1"
  echo '<script>alert(1)</script>' | injection xss
  injection scan access.log --workers 8 --rate 500
  injection fixtures ./tests`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonOutput, _ := cmd.Flags().GetBool("json")
		if err := logger.Initialize(jsonOutput, verbosity); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
		if commands.NeedsEngine(cmd) {
			return commands.ConfigureEngine()
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json", false, "Output JSON")

	rootCmd.AddCommand(commands.SqliCmd)
	rootCmd.AddCommand(commands.XssCmd)
	rootCmd.AddCommand(commands.ScanCmd)
	rootCmd.AddCommand(commands.FixturesCmd)
	rootCmd.AddCommand(commands.BenchCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		for _, hint := range errors.GetAllHints(err) {
			fmt.Fprintln(os.Stderr, "Hint:", hint)
		}
		stop()
		os.Exit(1)
	}
}
