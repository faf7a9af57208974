package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/clientscope-cli/internal/utils"
)

// DefaultScoringURL is the hosted scoring service the dashboard was built against.
const DefaultScoringURL = "https://mdn-antoine-projet7-implementez-un.onrender.com"

// Global configuration structure.
type Global struct {
	// Data sources
	DatasetPath        string `mapstructure:"dataset_path" yaml:"dataset_path"`
	ExplainDatasetPath string `mapstructure:"explain_dataset_path" yaml:"explain_dataset_path"`
	IDColumn           string `mapstructure:"id_column" yaml:"id_column"`
	Delimiter          string `mapstructure:"delimiter" yaml:"delimiter"`
	XLSXSheet          string `mapstructure:"xlsx_sheet" yaml:"xlsx_sheet"`
	ModelPath          string `mapstructure:"model_path" yaml:"model_path"`

	// Scoring service
	ScoringURL        string  `mapstructure:"scoring_url" yaml:"scoring_url"`
	HTTPTimeoutSec    int     `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts  int     `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs  int     `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs   int     `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`
	ScoringRatePerSec float64 `mapstructure:"scoring_rate_per_sec" yaml:"scoring_rate_per_sec"`

	// Presentation defaults
	ExtremesK      int `mapstructure:"extremes_k" yaml:"extremes_k"`
	ImportanceTopN int `mapstructure:"importance_top_n" yaml:"importance_top_n"`
	WaterfallTopK  int `mapstructure:"waterfall_top_k" yaml:"waterfall_top_k"`

	// Session and server
	SessionFile string   `mapstructure:"session_file" yaml:"session_file"`
	ServerAddr  string   `mapstructure:"server_addr" yaml:"server_addr"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`

	// Logging
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.clientscope/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := utils.StateDir()
		if err != nil {
			return err
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := utils.SafeWriteFile(path, b); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (cfgFile) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("CLIENTSCOPE")
	v.AutomaticEnv()

	v.SetDefault("dataset_path", "ProcessedData/app_train_domain.csv")
	v.SetDefault("explain_dataset_path", "")
	v.SetDefault("id_column", "SK_ID_CURR")
	v.SetDefault("delimiter", "")
	v.SetDefault("xlsx_sheet", "")
	v.SetDefault("model_path", "dashboard/model/model.json")
	// Scoring defaults
	v.SetDefault("scoring_url", DefaultScoringURL)
	v.SetDefault("http_timeout_sec", 30)
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)
	v.SetDefault("scoring_rate_per_sec", 0.0)
	v.SetDefault("extremes_k", 3)
	v.SetDefault("importance_top_n", 20)
	v.SetDefault("waterfall_top_k", 10)
	v.SetDefault("session_file", "")
	v.SetDefault("server_addr", ":8080")
	v.SetDefault("cors_origins", []string{"*"})
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if dir, err := utils.StateDir(); err == nil {
			v.AddConfigPath(dir)
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// optional read
	_ = v.ReadInConfig()

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.SessionFile == "" {
		dir, err := utils.StateDir()
		if err != nil {
			return nil, err
		}
		c.SessionFile = filepath.Join(dir, "session.json")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects values the engines cannot work with.
func (c *Global) Validate() error {
	if strings.TrimSpace(c.IDColumn) == "" {
		return eris.New("config: id_column cannot be empty")
	}
	if c.ExtremesK < 0 {
		return eris.Errorf("config: extremes_k must be >= 0, got %d", c.ExtremesK)
	}
	if c.ScoringRatePerSec < 0 {
		return eris.Errorf("config: scoring_rate_per_sec must be >= 0, got %v", c.ScoringRatePerSec)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "console", "json":
	default:
		return eris.Errorf("config: log_format must be console or json, got %q", c.LogFormat)
	}
	return nil
}

// DelimiterRune maps the configured delimiter name to a rune; 0 means auto.
func (c *Global) DelimiterRune() (rune, error) {
	switch c.Delimiter {
	case "":
		return 0, nil
	case ",":
		return ',', nil
	case ";":
		return ';', nil
	case "\t", "tab":
		return '\t', nil
	default:
		return 0, fmt.Errorf("unsupported delimiter: %s", c.Delimiter)
	}
}

// InitLogger builds the global zap logger from the log settings.
func InitLogger(level, format string, debug bool) error {
	var zapCfg zap.Config
	if format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if debug {
		level = "debug"
	}
	if level == "" {
		level = "info"
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(lvl)
	zapCfg.OutputPaths = []string{"stderr"}
	zapCfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)
	return nil
}

// ResolvePath expands "~" and makes configured paths absolute; empty stays empty.
func ResolvePath(p string) string {
	if p == "" {
		return ""
	}
	out, err := utils.ExpandHome(p)
	if err != nil {
		return p
	}
	if abs, err := filepath.Abs(out); err == nil {
		return abs
	}
	return out
}
