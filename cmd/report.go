package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/clientscope-cli/internal/report"
	"github.com/KaramelBytes/clientscope-cli/internal/utils"
)

var (
	repFormat  string
	repOut     string
	repScore   bool
	repExplain bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Write a full report for the selected client",
	Long: `Collect the dataset overview, the client's attributes and atypical values,
optionally the scoring decision and the attribution waterfall, into one
Markdown, HTML or terminal document.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, s, err := openSession()
		if err != nil {
			return err
		}
		opts := d.Options()
		rep, err := report.Build(cmd.Context(), d, s, report.BuildOptions{
			Score:      repScore,
			Explain:    repExplain,
			ExtremesK:  opts.ExtremesK,
			WaterfallK: opts.WaterfallTopK,
			TopN:       opts.ImportanceTopN,
		})
		if err != nil {
			return err
		}
		md := rep.Markdown()

		var body []byte
		switch strings.ToLower(repFormat) {
		case "md", "markdown":
			body = []byte(md)
		case "html":
			body = report.HTML(md, "Client "+rep.Record.ExternalID)
		case "terminal":
			out, err := report.Terminal(md, "", 0)
			if err != nil {
				return err
			}
			body = []byte(out)
		default:
			return fmt.Errorf("unsupported --format: %s (use md|html|terminal)", repFormat)
		}

		if repOut == "" {
			_, err := cmd.OutOrStdout().Write(body)
			return err
		}
		path, err := utils.ExpandHome(repOut)
		if err != nil {
			return err
		}
		if err := utils.SafeWriteFile(path, body); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Report written to %s\n", path)
		if rep.PredictionErr != "" {
			fmt.Fprintf(os.Stderr, "⚠ Warning: scoring failed: %s\n", rep.PredictionErr)
		}
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVar(&repFormat, "format", "md", "report format: md|html|terminal")
	reportCmd.Flags().StringVar(&repOut, "out", "", "write the report to a file instead of stdout")
	reportCmd.Flags().BoolVar(&repScore, "score", false, "include the scoring service decision")
	reportCmd.Flags().BoolVar(&repExplain, "explain", true, "include attributions and global importance")
	rootCmd.AddCommand(reportCmd)
}
