package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/clientscope-cli/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set ClientScope configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if cfg == nil {
			fmt.Fprintln(out, "No config loaded")
			return nil
		}
		fmt.Fprintf(out, "dataset_path: %s\n", cfg.DatasetPath)
		if cfg.ExplainDatasetPath != "" {
			fmt.Fprintf(out, "explain_dataset_path: %s\n", cfg.ExplainDatasetPath)
		}
		fmt.Fprintf(out, "model_path: %s\n", cfg.ModelPath)
		fmt.Fprintf(out, "id_column: %s\n", cfg.IDColumn)
		if cfg.Delimiter != "" {
			fmt.Fprintf(out, "delimiter: %q\n", cfg.Delimiter)
		}
		if cfg.XLSXSheet != "" {
			fmt.Fprintf(out, "xlsx_sheet: %s\n", cfg.XLSXSheet)
		}
		fmt.Fprintf(out, "scoring_url: %s\n", cfg.ScoringURL)
		fmt.Fprintf(out, "http_timeout_sec: %d\n", cfg.HTTPTimeoutSec)
		fmt.Fprintf(out, "retry_max_attempts: %d\n", cfg.RetryMaxAttempts)
		if cfg.ScoringRatePerSec > 0 {
			fmt.Fprintf(out, "scoring_rate_per_sec: %.2f\n", cfg.ScoringRatePerSec)
		}
		fmt.Fprintf(out, "extremes_k: %d\n", cfg.ExtremesK)
		fmt.Fprintf(out, "importance_top_n: %d\n", cfg.ImportanceTopN)
		fmt.Fprintf(out, "waterfall_top_k: %d\n", cfg.WaterfallTopK)
		fmt.Fprintf(out, "session_file: %s\n", cfg.SessionFile)
		fmt.Fprintf(out, "server_addr: %s\n", cfg.ServerAddr)
		fmt.Fprintf(out, "cors_origins: %s\n", strings.Join(cfg.CORSOrigins, ","))
		fmt.Fprintf(out, "log_level: %s\n", cfg.LogLevel)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		if cfg == nil {
			c, err := cfgpkg.Load(cfgFile)
			if err != nil {
				return err
			}
			cfg = c
		}
		switch key {
		case "dataset_path":
			cfg.DatasetPath = val
		case "explain_dataset_path":
			cfg.ExplainDatasetPath = val
		case "model_path":
			cfg.ModelPath = val
		case "id_column":
			cfg.IDColumn = val
		case "delimiter":
			cfg.Delimiter = val
			if _, err := cfg.DelimiterRune(); err != nil {
				return err
			}
		case "xlsx_sheet":
			cfg.XLSXSheet = val
		case "scoring_url":
			cfg.ScoringURL = strings.TrimRight(val, "/")
		case "http_timeout_sec", "retry_max_attempts", "extremes_k", "importance_top_n", "waterfall_top_k":
			i, err := strconv.Atoi(val)
			if err != nil || i < 0 {
				return fmt.Errorf("invalid int for %s: %v", key, val)
			}
			setInt(key, i)
		case "scoring_rate_per_sec":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil || f < 0 {
				return fmt.Errorf("invalid float for scoring_rate_per_sec: %v", val)
			}
			cfg.ScoringRatePerSec = f
		case "session_file":
			cfg.SessionFile = val
		case "server_addr":
			cfg.ServerAddr = val
		case "cors_origins":
			cfg.CORSOrigins = strings.Split(val, ",")
		case "log_level":
			cfg.LogLevel = val
		case "log_format":
			cfg.LogFormat = val
		default:
			return fmt.Errorf("unknown key: %s", key)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := cfgpkg.Save(cfg, cfgFile); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Saved config")
		return nil
	},
}

func setInt(key string, v int) {
	switch key {
	case "http_timeout_sec":
		cfg.HTTPTimeoutSec = v
	case "retry_max_attempts":
		cfg.RetryMaxAttempts = v
	case "extremes_k":
		cfg.ExtremesK = v
	case "importance_top_n":
		cfg.ImportanceTopN = v
	case "waterfall_top_k":
		cfg.WaterfallTopK = v
	}
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
