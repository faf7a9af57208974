package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/clientscope-cli/internal/report"
)

var (
	explainTop    int
	explainGlobal bool
	importanceTop int
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Score the selected client with the remote scoring service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, s, err := openSession()
		if err != nil {
			return err
		}
		p, err := d.Predict(cmd.Context(), s)
		if err != nil {
			return err
		}
		if strings.EqualFold(outFormat, "terminal") {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Client %s  %s\n", p.ExternalID, report.DecisionBadge(p.Decision))
			fmt.Fprintln(out, report.Gauge(p.ProbabilityOnTime*100))
			fmt.Fprintln(out, report.Muted(fmt.Sprintf("default risk %.2f%%", p.ProbabilityDefault*100)))
			return nil
		}
		return emit(cmd, p, report.Prediction(p))
	},
}

var explainCmd = &cobra.Command{
	Use:   "explain",
	Short: "Explain the model's output for the selected client",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, s, err := openSession()
		if err != nil {
			return err
		}
		loc, err := d.Explain(cmd.Context(), s, explainTop)
		if err != nil {
			return err
		}
		md := report.Local(loc)
		if !explainGlobal {
			return emit(cmd, loc, md)
		}
		imp, err := d.Importance(cmd.Context(), 0)
		if err != nil {
			return err
		}
		out := struct {
			Local      any `json:"local"`
			Importance any `json:"importance"`
		}{loc, imp}
		return emit(cmd, out, md+"\n"+report.Importance(imp))
	},
}

var importanceCmd = &cobra.Command{
	Use:   "importance",
	Short: "Rank features by mean absolute attribution over the table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDashboard()
		if err != nil {
			return err
		}
		imp, err := d.Importance(cmd.Context(), importanceTop)
		if err != nil {
			return err
		}
		return emit(cmd, imp, report.Importance(imp))
	},
}

func init() {
	explainCmd.Flags().IntVar(&explainTop, "top", 0, "contributions shown before folding the rest (default from config)")
	explainCmd.Flags().BoolVar(&explainGlobal, "global", false, "append global feature importance")
	importanceCmd.Flags().IntVar(&importanceTop, "top", 0, "features listed (default from config)")

	rootCmd.AddCommand(predictCmd, explainCmd, importanceCmd)
}
