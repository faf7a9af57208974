package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/clientscope-cli/internal/report"
	"github.com/KaramelBytes/clientscope-cli/internal/utils"
)

// emit prints v as JSON or its Markdown rendering, depending on --output.
func emit(cmd *cobra.Command, v any, md string) error {
	out := cmd.OutOrStdout()
	switch strings.ToLower(outFormat) {
	case "json":
		b, err := utils.PrettyJSON(v)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(b))
	case "terminal", "term":
		s, err := report.Terminal(md, "", 0)
		if err != nil {
			return err
		}
		fmt.Fprint(out, s)
	case "md", "markdown", "":
		fmt.Fprint(out, md)
	default:
		return fmt.Errorf("unsupported --output: %s (use md|json|terminal)", outFormat)
	}
	return nil
}
