package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/clientscope-cli/internal/report"
)

var (
	selExternal string
	selClear    bool
	extremesK   int
)

var columnsCmd = &cobra.Command{
	Use:   "columns",
	Short: "Describe the client table and its selectable key range",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDashboard()
		if err != nil {
			return err
		}
		ov, err := d.Overview()
		if err != nil {
			return err
		}
		var b strings.Builder
		b.WriteString(report.Overview(ov))
		b.WriteString("\n### Numeric\n\n")
		for _, c := range ov.Numeric {
			b.WriteString("- " + c + "\n")
		}
		b.WriteString("\n### Categorical\n\n")
		for _, c := range ov.Categorical {
			b.WriteString("- " + c + "\n")
		}
		return emit(cmd, ov, b.String())
	},
}

var selectCmd = &cobra.Command{
	Use:   "select [key]",
	Short: "Select the client every other view works on",
	Long: `Select a client by positional key, or by business identifier with --external.
Without arguments the current selection is shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, s, err := openSession()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		switch {
		case selClear:
			s.Clear()
		case selExternal != "":
			if _, err := d.SelectExternal(s, selExternal); err != nil {
				return err
			}
		case len(args) == 1:
			key, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid key %q: must be an integer", args[0])
			}
			if err := d.Select(s, key); err != nil {
				return err
			}
		default:
			key, ext, ok := s.Selection()
			if !ok {
				fmt.Fprintln(out, "No client selected")
				return nil
			}
			fmt.Fprintf(out, "Selected client %s (key %d)\n", ext, key)
			return nil
		}
		if err := s.Save(); err != nil {
			return err
		}
		if key, ext, ok := s.Selection(); ok {
			fmt.Fprintf(out, "✓ Selected client %s (key %d)\n", ext, key)
		} else {
			fmt.Fprintln(out, "✓ Selection cleared")
		}
		return nil
	},
}

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Show the selected client's attributes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, s, err := openSession()
		if err != nil {
			return err
		}
		rec, err := d.Client(s)
		if err != nil {
			return err
		}
		return emit(cmd, rec, report.Record(rec))
	},
}

var compareCmd = &cobra.Command{
	Use:   "compare <column>",
	Short: "Place the selected client within one attribute's distribution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, s, err := openSession()
		if err != nil {
			return err
		}
		c, err := d.Compare(s, args[0])
		if err != nil {
			return err
		}
		return emit(cmd, c, report.Comparison(c))
	},
}

var bivariateCmd = &cobra.Command{
	Use:   "bivariate <x> <y>",
	Short: "Plot two numeric attributes with the selected client highlighted",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, s, err := openSession()
		if err != nil {
			return err
		}
		v, err := d.Bivariate(s, args[0], args[1])
		if err != nil {
			return err
		}
		return emit(cmd, v, report.Bivariate(v))
	},
}

var extremesCmd = &cobra.Command{
	Use:   "extremes",
	Short: "List the selected client's most atypical numeric attributes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if extremesK < 0 {
			return fmt.Errorf("-k must be >= 0")
		}
		d, s, err := openSession()
		if err != nil {
			return err
		}
		ex, err := d.Extremes(s, extremesK)
		if err != nil {
			return err
		}
		return emit(cmd, ex, report.Extremes(ex))
	},
}

func init() {
	selectCmd.Flags().StringVar(&selExternal, "external", "", "select by business identifier")
	selectCmd.Flags().BoolVar(&selClear, "clear", false, "clear the current selection")
	extremesCmd.Flags().IntVarP(&extremesK, "k", "k", 0, "attributes per side (default from config)")

	rootCmd.AddCommand(columnsCmd, selectCmd, clientCmd, compareCmd, bivariateCmd, extremesCmd)
}
