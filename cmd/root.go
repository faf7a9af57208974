package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	cfgpkg "github.com/KaramelBytes/clientscope-cli/internal/config"
	"github.com/KaramelBytes/clientscope-cli/internal/dashboard"
	"github.com/KaramelBytes/clientscope-cli/internal/session"
)

var (
	// Global flags
	cfgFile   string
	envFile   string
	debug     bool
	logLevel  string
	outFormat string
	// Data and scoring overrides (override config if set)
	flagDataset          string
	flagExplainDataset   string
	flagModel            string
	flagIDColumn         string
	flagScoringURL       string
	flagSessionFile      string
	flagHTTPTimeoutSec   int
	flagRetryMaxAttempts int
	flagRetryBaseDelayMs int
	flagRetryMaxDelayMs  int

	// Loaded configuration
	cfg *cfgpkg.Global
)

var rootCmd = &cobra.Command{
	Use:   "clientscope",
	Short: "ClientScope CLI: compare a credit applicant against the client population",
	Long: `ClientScope loads a client table, lets you select one applicant, compares it
against the population, queries the remote scoring service and explains the
model's decision with per-feature attributions.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// Execute is the entry point called by main.main()
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadConfig)

	f := rootCmd.PersistentFlags()
	f.StringVar(&cfgFile, "config", "", "config file (default is ~/.clientscope/config.yaml)")
	f.StringVar(&envFile, "env-file", ".env", "dotenv file with CLIENTSCOPE_* variables")
	f.BoolVar(&debug, "debug", false, "enable debug logging")
	f.StringVar(&logLevel, "log-level", "", "log level: debug|info|warn|error (overrides config)")
	f.StringVarP(&outFormat, "output", "o", "md", "output format: md|json|terminal")
	f.StringVar(&flagDataset, "dataset", "", "client table (CSV/TSV/XLSX)")
	f.StringVar(&flagExplainDataset, "explain-dataset", "", "table attributions are computed on (default: --dataset)")
	f.StringVar(&flagModel, "model", "", "tree-ensemble model file (JSON/YAML)")
	f.StringVar(&flagIDColumn, "id-column", "", "business identifier column")
	f.StringVar(&flagScoringURL, "scoring-url", "", "scoring service base URL")
	f.StringVar(&flagSessionFile, "session-file", "", "file the current selection is kept in")
	f.IntVar(&flagHTTPTimeoutSec, "http-timeout", 0, "HTTP client timeout in seconds (overrides config)")
	f.IntVar(&flagRetryMaxAttempts, "retry-max", 0, "max attempts on 429/502/503/504 (overrides config)")
	f.IntVar(&flagRetryBaseDelayMs, "retry-base-ms", 0, "base retry backoff in ms (overrides config)")
	f.IntVar(&flagRetryMaxDelayMs, "retry-max-ms", 0, "max retry backoff cap in ms (overrides config)")
}

func loadConfig() {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "⚠ Warning: failed to read %s: %v\n", envFile, err)
		}
	}
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: config-only commands still work
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		return
	}
	cfg = c
	applyOverrides(cfg)

	if err := cfgpkg.InitLogger(cfg.LogLevel, cfg.LogFormat, debug); err != nil {
		fmt.Fprintf(os.Stderr, "⚠ Warning: %v\n", err)
	}
}

// applyOverrides copies changed persistent flags onto c.
func applyOverrides(c *cfgpkg.Global) {
	f := rootCmd.PersistentFlags()
	if f.Changed("dataset") {
		c.DatasetPath = flagDataset
	}
	if f.Changed("explain-dataset") {
		c.ExplainDatasetPath = flagExplainDataset
	}
	if f.Changed("model") {
		c.ModelPath = flagModel
	}
	if f.Changed("id-column") && flagIDColumn != "" {
		c.IDColumn = flagIDColumn
	}
	if f.Changed("scoring-url") && flagScoringURL != "" {
		c.ScoringURL = flagScoringURL
	}
	if f.Changed("session-file") && flagSessionFile != "" {
		c.SessionFile = flagSessionFile
	}
	if f.Changed("log-level") && logLevel != "" {
		c.LogLevel = logLevel
	}
	if f.Changed("http-timeout") && flagHTTPTimeoutSec > 0 {
		c.HTTPTimeoutSec = flagHTTPTimeoutSec
	}
	if f.Changed("retry-max") && flagRetryMaxAttempts > 0 {
		c.RetryMaxAttempts = flagRetryMaxAttempts
	}
	if f.Changed("retry-base-ms") && flagRetryBaseDelayMs > 0 {
		c.RetryBaseDelayMs = flagRetryBaseDelayMs
	}
	if f.Changed("retry-max-ms") && flagRetryMaxDelayMs > 0 {
		c.RetryMaxDelayMs = flagRetryMaxDelayMs
	}
}

func requireConfig() error {
	if cfg == nil {
		return fmt.Errorf("no configuration loaded")
	}
	return nil
}

// newDashboard wires a Dashboard from the loaded configuration.
func newDashboard() (*dashboard.Dashboard, error) {
	if err := requireConfig(); err != nil {
		return nil, err
	}
	return dashboard.FromConfig(cfg)
}

// openSession loads the persisted selection together with a Dashboard.
func openSession() (*dashboard.Dashboard, *session.Session, error) {
	d, err := newDashboard()
	if err != nil {
		return nil, nil, err
	}
	s, err := session.Load(cfgpkg.ResolvePath(cfg.SessionFile))
	if err != nil {
		return nil, nil, err
	}
	return d, s, nil
}
