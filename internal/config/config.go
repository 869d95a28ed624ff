// Package config loads mrio-cli settings from config.yaml, MRIO_* environment
// variables and defaults.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/mrio-cli/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Mrio  MrioConfig  `yaml:"mrio" mapstructure:"mrio"`
	Store StoreConfig `yaml:"store" mapstructure:"store"`
	Log   LogConfig   `yaml:"log" mapstructure:"log"`
}

// MrioConfig configures the attribution pipeline.
type MrioConfig struct {
	InputDir         string `yaml:"input_dir" mapstructure:"input_dir"`
	ResultsDir       string `yaml:"results_dir" mapstructure:"results_dir"`
	Years            []int  `yaml:"years" mapstructure:"years"`
	ConversionOption string `yaml:"conversion_option" mapstructure:"conversion_option"`
	PreferImport     string `yaml:"prefer_import" mapstructure:"prefer_import"`
	// HistoricBefore: years before this read the historic balance sheets.
	HistoricBefore int   `yaml:"historic_before" mapstructure:"historic_before"`
	Workers        int   `yaml:"workers" mapstructure:"workers"`
	Countries      []int `yaml:"countries" mapstructure:"countries"`
}

// Options returns the output options for year.
func (m MrioConfig) Options(year int) model.Options {
	return model.Options{
		ConversionOption: m.ConversionOption,
		Direction:        model.Direction(m.PreferImport),
		Historic:         year < m.HistoricBefore,
	}
}

// StoreConfig configures the run log backend.
type StoreConfig struct {
	Driver          string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL     string `yaml:"database_url" mapstructure:"database_url"`
	PersistMatrices bool   `yaml:"persist_matrices" mapstructure:"persist_matrices"`
	MaxConns        int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns        int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MRIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("mrio.input_dir", "input_data")
	v.SetDefault("mrio.results_dir", "results")
	v.SetDefault("mrio.years", []int{2013})
	v.SetDefault("mrio.conversion_option", "dry_matter")
	v.SetDefault("mrio.prefer_import", string(model.PreferImport))
	v.SetDefault("mrio.historic_before", 2010)
	v.SetDefault("mrio.workers", 4)
	v.SetDefault("mrio.countries", []int{})
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "mrio.db")
	v.SetDefault("store.persist_matrices", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var problems []string
	if c.Mrio.InputDir == "" {
		problems = append(problems, "mrio.input_dir is required")
	}
	if c.Mrio.ResultsDir == "" {
		problems = append(problems, "mrio.results_dir is required")
	}
	if len(c.Mrio.Years) == 0 {
		problems = append(problems, "mrio.years must list at least one year")
	}
	if c.Mrio.ConversionOption == "" {
		problems = append(problems, "mrio.conversion_option is required")
	}
	switch model.Direction(c.Mrio.PreferImport) {
	case model.PreferImport, model.PreferExport:
	default:
		problems = append(problems, "mrio.prefer_import must be import or export")
	}
	if c.Mrio.Workers < 1 {
		problems = append(problems, "mrio.workers must be at least 1")
	}
	switch c.Store.Driver {
	case "none":
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	default:
		problems = append(problems, "store.driver must be sqlite, postgres or none")
	}
	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
