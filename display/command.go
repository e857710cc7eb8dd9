package display

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/teranos/qntx-libinjection/errors"
)

// ShouldOutputJSON reports whether a command should output JSON, from its own
// --json flag or the root's persistent one.
func ShouldOutputJSON(cmd *cobra.Command) bool {
	if cmd == nil {
		return false
	}

	if f := cmd.Flags().Lookup("json"); f != nil && f.Changed {
		jsonFlag, _ := cmd.Flags().GetBool("json")
		return jsonFlag
	}

	if globalFlag, err := cmd.Root().PersistentFlags().GetBool("json"); err == nil {
		return globalFlag
	}
	return false
}

// OutputJSON marshals v with MarshalJSON and writes it to w
func OutputJSON(w io.Writer, v interface{}) error {
	data, err := MarshalJSON(v)
	if err != nil {
		return errors.Wrap(err, "failed to marshal JSON")
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
