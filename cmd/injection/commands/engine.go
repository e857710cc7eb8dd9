package commands

import (
	"github.com/spf13/cobra"

	"github.com/teranos/qntx-libinjection/am"
	"github.com/teranos/qntx-libinjection/errors"
	"github.com/teranos/qntx-libinjection/libinjection"
)

// annotationNoEngine marks commands that never query the detector.
const annotationNoEngine = "no-engine"

// NeedsEngine reports whether cmd queries the detector, so that the engine
// has to be configured before it runs.
func NeedsEngine(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[annotationNoEngine] == "true" {
			return false
		}
	}
	return true
}

// ConfigureEngine applies the [engine] configuration to the process-wide
// detector. The image itself is compiled lazily on the first query.
func ConfigureEngine() error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	opts, err := libinjection.ConfigFromAm(cfg)
	if err != nil {
		return err
	}
	if err := libinjection.Init(opts); err != nil && !errors.Is(err, errors.ErrAlreadyInitialized) {
		return err
	}
	return nil
}
