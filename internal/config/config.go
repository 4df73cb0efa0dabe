// Package config loads goalrunner settings from defaults, an optional YAML
// file, a .env file and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/example/goalrunner/internal/backend"
	"github.com/example/goalrunner/internal/models"
	"github.com/example/goalrunner/internal/providers/llm"
)

const (
	EnvPrefix       = "GOALRUNNER"
	projectFileName = "goalrunner.yaml"
)

type Config struct {
	Backend    BackendConfig    `mapstructure:"backend"`
	Timeouts   TimeoutsConfig   `mapstructure:"timeouts"`
	Stream     StreamConfig     `mapstructure:"stream"`
	Models     ModelsConfig     `mapstructure:"models"`
	Pacing     PacingConfig     `mapstructure:"pacing"`
	Server     ServerConfig     `mapstructure:"server"`
	DevBackend DevBackendConfig `mapstructure:"devbackend"`
	Keys       KeysConfig       `mapstructure:"keys"`
	Log        LogConfig        `mapstructure:"log"`
}

type BackendConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Token   string `mapstructure:"token"`
}

type TimeoutsConfig struct {
	Request time.Duration `mapstructure:"request"`
	Stream  time.Duration `mapstructure:"stream"`
	Upload  time.Duration `mapstructure:"upload"`
}

type StreamConfig struct {
	FlushThreshold int `mapstructure:"flush_threshold"`
}

type ModelsConfig struct {
	Reasoning string `mapstructure:"reasoning"`
	Vision    string `mapstructure:"vision"`
}

// PacingConfig spaces out task-added messages. Zero disables it.
type PacingConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type DevBackendConfig struct {
	Addr      string        `mapstructure:"addr"`
	Token     string        `mapstructure:"token"`
	PublicURL string        `mapstructure:"public_url"`
	Provider  string        `mapstructure:"provider"`
	Model     string        `mapstructure:"model"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// KeysConfig holds provider credentials. Each also reads the provider's
// conventional variable, e.g. OPENAI_API_KEY.
type KeysConfig struct {
	OpenAI           string `mapstructure:"openai"`
	OpenAIBaseURL    string `mapstructure:"openai_base_url"`
	Anthropic        string `mapstructure:"anthropic"`
	AnthropicBaseURL string `mapstructure:"anthropic_base_url"`
	Google           string `mapstructure:"google"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration. path names a YAML file; when empty,
// ./goalrunner.yaml and then $XDG_CONFIG_HOME/goalrunner/config.yaml are
// tried. A .env file in the working directory is loaded first without
// overriding variables already set.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config from %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range conventionalEnv {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

// conventionalEnv lists the variables read for each key, prefixed form first.
var conventionalEnv = map[string][]string{
	"backend.token":           {"GOALRUNNER_BACKEND_TOKEN", "GOALRUNNER_TOKEN"},
	"keys.openai":             {"GOALRUNNER_KEYS_OPENAI", "OPENAI_API_KEY"},
	"keys.openai_base_url":    {"GOALRUNNER_KEYS_OPENAI_BASE_URL", "OPENAI_API_BASE"},
	"keys.anthropic":          {"GOALRUNNER_KEYS_ANTHROPIC", "ANTHROPIC_API_KEY"},
	"keys.anthropic_base_url": {"GOALRUNNER_KEYS_ANTHROPIC_BASE_URL", "ANTHROPIC_BASE_URL"},
	"keys.google":             {"GOALRUNNER_KEYS_GOOGLE", "GOOGLE_API_KEY"},
	"devbackend.provider":     {"GOALRUNNER_DEVBACKEND_PROVIDER", "LLM_PROVIDER"},
	"devbackend.model":        {"GOALRUNNER_DEVBACKEND_MODEL", "LLM_MODEL"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.base_url", backend.DefaultBaseURL)
	v.SetDefault("backend.token", "")

	v.SetDefault("timeouts.request", backend.DefaultRequestTimeout.String())
	v.SetDefault("timeouts.stream", backend.DefaultStreamTimeout.String())
	v.SetDefault("timeouts.upload", backend.DefaultUploadTimeout.String())

	v.SetDefault("stream.flush_threshold", backend.DefaultFlushThreshold)

	v.SetDefault("models.reasoning", models.DefaultReasoningModel)
	v.SetDefault("models.vision", models.DefaultVisionModel)

	v.SetDefault("pacing.interval", "0s")

	v.SetDefault("server.addr", ":8080")

	v.SetDefault("devbackend.addr", "127.0.0.1:8888")
	v.SetDefault("devbackend.token", "")
	v.SetDefault("devbackend.public_url", "")
	v.SetDefault("devbackend.provider", "")
	v.SetDefault("devbackend.model", "")
	v.SetDefault("devbackend.timeout", llm.DefaultTimeout.String())

	v.SetDefault("keys.openai", "")
	v.SetDefault("keys.openai_base_url", "")
	v.SetDefault("keys.anthropic", "")
	v.SetDefault("keys.anthropic_base_url", "")
	v.SetDefault("keys.google", "")

	v.SetDefault("log.level", "info")
}

func findConfigFile() string {
	candidates := []string{projectFileName}
	if dir := userConfigDir(); dir != "" {
		candidates = append(candidates, filepath.Join(dir, "config.yaml"))
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	return ""
}

func userConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "goalrunner")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "goalrunner")
}

// BackendClient returns the client settings for the reasoning service.
func (c *Config) BackendClient(lg *zap.Logger) backend.Config {
	return backend.Config{
		BaseURL:        c.Backend.BaseURL,
		Token:          c.Backend.Token,
		RequestTimeout: c.Timeouts.Request,
		StreamTimeout:  c.Timeouts.Stream,
		UploadTimeout:  c.Timeouts.Upload,
		FlushThreshold: c.Stream.FlushThreshold,
		Logger:         lg,
	}
}

func (c *Config) RunModels() models.RunModels {
	m := models.DefaultRunModels()
	if c.Models.Reasoning != "" {
		m.Reasoning = c.Models.Reasoning
	}
	if c.Models.Vision != "" {
		m.Vision = c.Models.Vision
	}
	return m
}

// LLM returns the provider settings for the dev backend.
func (c *Config) LLM(lg *zap.Logger) llm.Config {
	return llm.Config{
		Provider:         c.DevBackend.Provider,
		Model:            c.DevBackend.Model,
		OpenAIKey:        c.Keys.OpenAI,
		OpenAIBaseURL:    c.Keys.OpenAIBaseURL,
		AnthropicKey:     c.Keys.Anthropic,
		AnthropicBaseURL: c.Keys.AnthropicBaseURL,
		GoogleKey:        c.Keys.Google,
		Timeout:          c.DevBackend.Timeout,
		Logger:           lg,
	}
}
