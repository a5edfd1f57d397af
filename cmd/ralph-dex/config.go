package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/mitchellh/go-homedir"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// envPrefix prefixes environment overrides, e.g. RALPH_DEX_WORKERS
const envPrefix = "RALPH_DEX"

// configName is looked up in the home and working directories when --config is not given
const configName = ".ralph-dex"

// Config is the resolved configuration: flags override the environment, which
// overrides the config file.
type Config struct {
	DumpBefore bool     `mapstructure:"dump-before"`
	Workers    int      `mapstructure:"workers"`
	LogLevel   string   `mapstructure:"log-level"`
	NoColor    bool     `mapstructure:"no-color"`
	Output     string   `mapstructure:"output"`
	Reserved   []string `mapstructure:"reserved"`
	Stats      bool     `mapstructure:"stats"`
}

// loadConfig binds flags into v and resolves the configuration
func loadConfig(v *viper.Viper, flags *pflag.FlagSet) (*Config, error) {
	if err := v.BindPFlags(flags); err != nil {
		return nil, err
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return nil, err
		}
		v.SetConfigFile(expanded)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", expanded, err)
		}
	} else {
		v.SetConfigName(configName)
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.LogLevel, err)
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("workers must be positive, got %d", cfg.Workers)
	}
	return &cfg, nil
}

// newLogger writes human-readable diagnostics to w
func newLogger(w io.Writer, cfg *Config) zerolog.Logger {
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	cw := zerolog.ConsoleWriter{Out: w, NoColor: !useColor(w, cfg)}
	return zerolog.New(cw).Level(level).With().Timestamp().Logger()
}

// useColor reports whether output to w should be highlighted
func useColor(w io.Writer, cfg *Config) bool {
	if cfg.NoColor {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
