package commands

import (
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teranos/qntx-libinjection/display"
	"github.com/teranos/qntx-libinjection/errors"
	"github.com/teranos/qntx-libinjection/libinjection"
)

// SqliCmd classifies one input as SQL injection
var SqliCmd = &cobra.Command{
	Use:   "sqli [text...]",
	Short: "Classify text as SQL injection",
	Long: `Classify text as SQL injection and print its libinjection fingerprint.

Arguments are joined with single spaces. With no arguments, or "-", the input
is read from stdin and one trailing newline is dropped.

Examples:
  injection sqli "1' or '1'='1"
  injection sqli --json "-1' and 1=1 union/* foo */select load_file('/etc/passwd')--"`,
	RunE: runSqli,
}

// XssCmd classifies one input as cross-site scripting
var XssCmd = &cobra.Command{
	Use:   "xss [text...]",
	Short: "Classify text as cross-site scripting",
	Long: `Classify text as a cross-site scripting payload.

Arguments are joined with single spaces. With no arguments, or "-", the input
is read from stdin and one trailing newline is dropped.

Examples:
  injection xss '<a href="javascript:alert(1)">'`,
	RunE: runXss,
}

// queryResult is the JSON form of a single-input query
type queryResult struct {
	Input       string `json:"input"`
	Kind        string `json:"kind"`
	Matched     bool   `json:"matched"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

func runSqli(cmd *cobra.Command, args []string) error {
	text, err := queryInput(cmd, args)
	if err != nil {
		return err
	}
	matched, fp, err := libinjection.IsSQLi(text)
	if err != nil {
		return errors.Wrap(err, "sqli query")
	}
	if !matched {
		fp = ""
	}
	return writeQuery(cmd, queryResult{Input: text, Kind: "sqli", Matched: matched, Fingerprint: fp})
}

func runXss(cmd *cobra.Command, args []string) error {
	text, err := queryInput(cmd, args)
	if err != nil {
		return err
	}
	matched, err := libinjection.IsXSS(text)
	if err != nil {
		return errors.Wrap(err, "xss query")
	}
	return writeQuery(cmd, queryResult{Input: text, Kind: "xss", Matched: matched})
}

func writeQuery(cmd *cobra.Command, r queryResult) error {
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(cmd.OutOrStdout(), r)
	}
	display.Verdict(cmd.OutOrStdout(), strings.ToUpper(r.Kind), r.Matched, r.Input, r.Fingerprint)
	return nil
}

// queryInput joins args, or reads stdin when there are none or the only one is "-".
func queryInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", errors.Wrap(err, "read stdin")
	}
	text := string(data)
	text = strings.TrimSuffix(text, "\n")
	text = strings.TrimSuffix(text, "\r")
	return text, nil
}
