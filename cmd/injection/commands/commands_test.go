package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/teranos/qntx-libinjection/am"
	"github.com/teranos/qntx-libinjection/errors"
)

// fakeClassifier flags a quote as SQL injection and '<' as XSS. Inputs
// starting with "OOM" fail with an allocation error, "BAD" with a fatal one.
type fakeClassifier struct {
	closed *atomic.Int32
}

func (f fakeClassifier) IsSQLi(text string) (bool, string, error) {
	switch {
	case strings.HasPrefix(text, "OOM"):
		return false, "", errors.Wrap(errors.ErrAllocation, "allocate")
	case strings.HasPrefix(text, "BAD"):
		return false, "", errors.Wrap(errors.ErrIncompatibleImage, "bind")
	}
	if strings.Contains(text, "'") {
		return true, "s&sos", nil
	}
	return false, "stale", nil
}

func (f fakeClassifier) IsXSS(text string) (bool, error) {
	return strings.Contains(text, "<"), nil
}

func (f fakeClassifier) Close() {
	f.closed.Add(1)
}

func useFakeClassifier(t *testing.T) *atomic.Int32 {
	t.Helper()
	var closed atomic.Int32
	orig := newClassifier
	newClassifier = func() (classifier, error) { return fakeClassifier{closed: &closed}, nil }
	t.Cleanup(func() { newClassifier = orig })
	return &closed
}

func TestScan(t *testing.T) {
	closed := useFakeClassifier(t)
	input := "hello\n1' or '1'='1\n<script>\nOOM please\nplain\n"

	report, err := scan(context.Background(), strings.NewReader(input), scanOptions{workers: 3})
	require.NoError(t, err)

	assert.Equal(t, 5, report.Lines)
	assert.Equal(t, 3, report.Flagged)
	assert.Equal(t, 1, report.Errors)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, int32(3), closed.Load(), "one classifier per worker, all closed")

	require.Len(t, report.Results, 3)
	assert.Equal(t, scanResult{Line: 2, Input: "1' or '1'='1", SQLi: true, Fingerprint: "s&sos"}, report.Results[0])
	assert.Equal(t, scanResult{Line: 3, Input: "<script>", XSS: true}, report.Results[1])
	assert.Equal(t, 4, report.Results[2].Line)
	assert.Contains(t, report.Results[2].Error, "allocate")
}

func TestScanAll(t *testing.T) {
	useFakeClassifier(t)
	report, err := scan(context.Background(), strings.NewReader("a\nb\nc"), scanOptions{workers: 2, all: true})
	require.NoError(t, err)

	require.Len(t, report.Results, 3)
	for i, res := range report.Results {
		assert.Equal(t, i+1, res.Line)
		assert.Empty(t, res.Fingerprint, "fingerprint dropped without a match")
	}
	assert.Equal(t, 0, report.Flagged)
}

func TestScanFatalErrorAborts(t *testing.T) {
	useFakeClassifier(t)
	_, err := scan(context.Background(), strings.NewReader("ok\nBAD image\nok\n"), scanOptions{workers: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrIncompatibleImage))
	assert.Contains(t, err.Error(), "line 2")
}

func TestScanRateLimited(t *testing.T) {
	useFakeClassifier(t)
	opts := scanOptions{workers: 2, limiter: rate.NewLimiter(rate.Limit(1000), 1)}
	report, err := scan(context.Background(), strings.NewReader(strings.Repeat("x'\n", 20)), opts)
	require.NoError(t, err)
	assert.Equal(t, 20, report.Flagged)
}

func TestScanCanceled(t *testing.T) {
	useFakeClassifier(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	opts := scanOptions{workers: 1, limiter: rate.NewLimiter(rate.Limit(1), 1)}
	_, err := scan(ctx, strings.NewReader(strings.Repeat("x\n", 10)), opts)
	assert.Error(t, err)
}

func TestPrintScanReport(t *testing.T) {
	pterm.DisableColor()
	defer pterm.EnableColor()

	var buf bytes.Buffer
	printScanReport(&buf, &scanReport{
		RunID:   "run-1",
		Workers: 2,
		Lines:   3,
		Flagged: 1,
		Results: []scanResult{{Line: 2, Input: "1' or 1=1", SQLi: true, Fingerprint: "s&1", XSS: true}},
	})
	out := buf.String()
	assert.Contains(t, out, "     2  SQLI s&1, XSS  \"1' or 1=1\"\n")
	assert.Contains(t, out, "3 lines, 1 flagged, 0 errors")
	assert.Contains(t, out, "run run-1")
}

func TestQueryInput(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		stdin string
		want  string
	}{
		{"args joined", []string{"1'", "or", "1=1"}, "", "1' or 1=1"},
		{"stdin", nil, "<script>\n", "<script>"},
		{"dash reads stdin", []string{"-"}, "a\r\n", "a"},
		{"only one newline dropped", nil, "a\n\n", "a\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := &cobra.Command{}
			cmd.SetIn(strings.NewReader(tt.stdin))
			got, err := queryInput(cmd, tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNeedsEngine(t *testing.T) {
	assert.True(t, NeedsEngine(SqliCmd))
	assert.True(t, NeedsEngine(ScanCmd))
	assert.False(t, NeedsEngine(VersionCmd))
	assert.False(t, NeedsEngine(AmCmd))
	assert.False(t, NeedsEngine(amShowCmd), "inherited from am")
}

var (
	testRootOnce sync.Once
	testRoot     *cobra.Command
)

// execute runs args against a root carrying the persistent flags. Flags are
// reset first since cobra commands are package-level values.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	testRootOnce.Do(func() {
		testRoot = &cobra.Command{Use: "injection", SilenceUsage: true, SilenceErrors: true}
		testRoot.PersistentFlags().Bool("json", false, "")
		testRoot.AddCommand(AmCmd, VersionCmd)
	})
	resetFlags(testRoot)

	var out bytes.Buffer
	testRoot.SetOut(&out)
	testRoot.SetArgs(args)
	err := testRoot.Execute()
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func isolateConfig(t *testing.T) string {
	t.Helper()
	am.Reset()
	t.Cleanup(am.Reset)
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())
	return home
}

func TestAmInitAndShow(t *testing.T) {
	home := isolateConfig(t)

	out, err := execute(t, "am", "init")
	require.NoError(t, err)
	path := filepath.Join(home, am.UserDirName, am.ConfigFileName)
	assert.Contains(t, out, path)
	assert.FileExists(t, path)

	_, err = execute(t, "am", "init")
	assert.Error(t, err, "refuses to overwrite")

	t.Setenv("INJECTION_ENGINE_MODE", "interpreter")
	am.Reset()
	out, err = execute(t, "--json", "am", "show")
	require.NoError(t, err)

	var cfg am.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, "interpreter", cfg.Engine.Mode)

	out, err = execute(t, "am", "show", "--format", "toml")
	require.NoError(t, err)
	assert.Contains(t, out, "[engine]")
	assert.Contains(t, out, "mode = ")
	assert.Contains(t, out, "interpreter")
}

func TestVersionJSON(t *testing.T) {
	out, err := execute(t, "--json", "version")
	require.NoError(t, err)

	var info map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Contains(t, info, "go_version")
	assert.Contains(t, info, "wazero")
	assert.Positive(t, info["image_bytes"])
}
