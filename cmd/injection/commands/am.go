package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/qntx-libinjection/am"
	"github.com/teranos/qntx-libinjection/display"
	"github.com/teranos/qntx-libinjection/errors"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Manage configuration",
	Long: `am - Manage configuration ("I am")

Configuration sources (later overrides earlier):
1. Default values
2. System config (/etc/qntx-libinjection/am.toml)
3. User config (~/.qntx-libinjection/am.toml)
4. Project config (./am.toml, searched up the directory tree)
5. Environment variables (INJECTION_* prefix, e.g. INJECTION_ENGINE_MODE)

Examples:
  injection am show               # Show current configuration
  injection am show --format json # Show configuration as JSON
  injection am where              # Show where each value comes from
  injection am init               # Write a default ~/.qntx-libinjection/am.toml`,
	Annotations: map[string]string{annotationNoEngine: "true"},
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runAmShow,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where each configuration value comes from",
	RunE:  runAmWhere,
}

var amInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE:  runAmInit,
}

var (
	configFormat string
	amInitPath   string
	amInitForce  bool
)

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json")
	amInitCmd.Flags().StringVar(&amInitPath, "path", "", "File to write (default: ~/.qntx-libinjection/am.toml)")
	amInitCmd.Flags().BoolVar(&amInitForce, "force", false, "Replace an existing file, keeping it as .back1")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amWhereCmd)
	AmCmd.AddCommand(amInitCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	format := configFormat
	if display.ShouldOutputJSON(cmd) {
		format = "json"
	}

	switch format {
	case "json":
		return display.OutputJSON(cmd.OutOrStdout(), cfg)
	case "toml":
		data, err := am.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# qntx-libinjection configuration\n%s", data)
		return nil
	default:
		return errors.Newf("unsupported format: %s (supported: toml, json)", format)
	}
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	intro, err := am.GetConfigIntrospection()
	if err != nil {
		return errors.Wrap(err, "failed to get config introspection")
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(cmd.OutOrStdout(), intro)
	}

	rows := [][]string{{"key", "value", "source", "from"}}
	for _, s := range intro.Settings {
		rows = append(rows, []string{s.Key, display.Truncate(fmt.Sprintf("%v", s.Value), 50), string(s.Source), s.SourcePath})
	}
	return display.Table(cmd.OutOrStdout(), rows)
}

func runAmInit(cmd *cobra.Command, args []string) error {
	path := amInitPath
	if path == "" {
		path = am.UserConfigPath()
	}
	if path == "" {
		return errors.WithHint(errors.New("could not determine home directory"), "pass --path")
	}

	if err := am.WriteDefault(path, amInitForce); err != nil {
		return err
	}
	display.Summary(cmd.OutOrStdout(), true, "wrote %s", path)
	return nil
}
