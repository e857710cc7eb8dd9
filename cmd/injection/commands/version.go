package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/qntx-libinjection/display"
	"github.com/teranos/qntx-libinjection/libinjection"
	"github.com/teranos/qntx-libinjection/version"
)

// VersionCmd represents the version command
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long:  `Display version, build time, commit hash, platform, wazero version and embedded module size.`,
	// reports the image size without compiling it
	Annotations: map[string]string{annotationNoEngine: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		info := versionInfo{Info: version.Get(), ImageBytes: len(libinjection.Image)}

		if display.ShouldOutputJSON(cmd) {
			return display.OutputJSON(cmd.OutOrStdout(), info)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, info.String())
		fmt.Fprintf(out, "Platform: %s\n", info.Platform)
		fmt.Fprintf(out, "Go: %s\n", info.GoVersion)
		fmt.Fprintf(out, "wazero: %s\n", info.Wazero)
		fmt.Fprintf(out, "Module: %s (%d bytes)\n", libinjection.ImageFilename, info.ImageBytes)
		return nil
	},
}

type versionInfo struct {
	version.Info
	ImageBytes int `json:"image_bytes"`
}
