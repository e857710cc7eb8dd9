package display

import (
	"fmt"
	"io"
	"strconv"
	"unicode/utf8"

	"github.com/pterm/pterm"
)

// maxInputWidth bounds how much of an input is echoed back
const maxInputWidth = 60

// Truncate shortens s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	if n <= 3 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-3]) + "..."
}

// QuoteInput renders untrusted input as a quoted, escaped, truncated string
// that is safe to print to a terminal.
func QuoteInput(s string) string {
	return strconv.Quote(Truncate(s, maxInputWidth))
}

// Verdict prints one detection result, e.g.
//
//	SQLI  "1' or '1'='1"  fingerprint s&sos
func Verdict(w io.Writer, kind string, matched bool, input, fingerprint string) {
	label := pterm.LightGreen("clean")
	if matched {
		label = pterm.Red(kind)
	}
	line := fmt.Sprintf("%s  %s", label, QuoteInput(input))
	if matched && fingerprint != "" {
		line += fmt.Sprintf("  %s %s", pterm.Gray("fingerprint"), pterm.Yellow(fingerprint))
	}
	fmt.Fprintln(w, line)
}

// Table renders rows with the first row as header.
func Table(w io.Writer, rows [][]string) error {
	out, err := pterm.DefaultTable.WithHasHeader().WithData(rows).Srender()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, out)
	return nil
}

// Summary prints a closing status line: green on success, red otherwise.
func Summary(w io.Writer, ok bool, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if ok {
		fmt.Fprintln(w, pterm.LightGreen("✓ ")+msg)
		return
	}
	fmt.Fprintln(w, pterm.Red("✗ ")+msg)
}
