package cfg

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"predictive-maintenance/internal/common"
	"predictive-maintenance/internal/ml"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	ModelPath        string
	ModelFormat      string
	ModelURL         string
	PythonPath       string
	InferenceScript  string
	InferenceTimeout time.Duration
	ListenPort       int
	DataPath         string
	HistorySize      int
	LogLevel         string
	LogFormat        string
	RateLimit        float64 // assessments per second, 0 disables
	RateBurst        int
}

type ConfigFile struct {
	Model struct {
		Path    string `yaml:"path"`
		Format  string `yaml:"format"`
		URL     string `yaml:"url"`
		Python  string `yaml:"python"`
		Script  string `yaml:"script"`
		Timeout string `yaml:"timeout"`
	} `yaml:"model"`

	Server struct {
		ListenPort int     `yaml:"listenPort"`
		RateLimit  float64 `yaml:"rateLimit"`
		RateBurst  int     `yaml:"rateBurst"`
	} `yaml:"server"`

	History struct {
		DataPath string `yaml:"dataPath"`
		Size     int    `yaml:"size"`
	} `yaml:"history"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load reads an optional .env file, then the YAML file named by CONFIG_FILE
// with environment overrides, or the environment alone.
func Load() (Settings, error) {
	if err := loadDotEnv(); err != nil {
		return Settings{}, err
	}

	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}
	return loadFromEnv()
}

// loadDotEnv never overrides variables already set in the process.
func loadDotEnv() error {
	path := getEnvOrDefault(common.EnvDotEnvFile, common.DefaultDotEnvFile)
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	timeout, err := time.ParseDuration(orDefault(config.Model.Timeout, common.DefaultInferenceTimeout))
	if err != nil {
		return Settings{}, fmt.Errorf("invalid model timeout %q: %w", config.Model.Timeout, err)
	}

	settings := Settings{
		ModelPath:        getEnvOrDefault(common.EnvModelPath, orDefault(config.Model.Path, common.DefaultModelPath)),
		ModelFormat:      getEnvOrDefault(common.EnvModelFormat, orDefault(config.Model.Format, common.DefaultModelFormat)),
		ModelURL:         getEnvOrDefault(common.EnvModelURL, config.Model.URL),
		PythonPath:       getEnvOrDefault(common.EnvPythonPath, config.Model.Python),
		InferenceScript:  getEnvOrDefault(common.EnvInferenceScript, config.Model.Script),
		InferenceTimeout: getDurationOrDefault(common.EnvInferenceTimeout, timeout),
		ListenPort:       getIntFromEnvOrConfig(common.EnvListenPort, config.Server.ListenPort, common.DefaultListenPort),
		DataPath:         getEnvOrDefault(common.EnvDataPath, config.History.DataPath),
		HistorySize:      getIntFromEnvOrConfig(common.EnvHistorySize, config.History.Size, common.DefaultHistorySize),
		LogLevel:         getEnvOrDefault(common.EnvLogLevel, orDefault(config.Log.Level, common.DefaultLogLevel)),
		LogFormat:        getEnvOrDefault(common.EnvLogFormat, orDefault(config.Log.Format, common.DefaultLogFormat)),
		RateLimit:        getFloatOrDefault(common.EnvRateLimit, config.Server.RateLimit),
		RateBurst:        getIntFromEnvOrConfig(common.EnvRateBurst, config.Server.RateBurst, common.DefaultRateBurst),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func loadFromEnv() (Settings, error) {
	defaultTimeout, _ := time.ParseDuration(common.DefaultInferenceTimeout)

	settings := Settings{
		ModelPath:        getEnvOrDefault(common.EnvModelPath, common.DefaultModelPath),
		ModelFormat:      getEnvOrDefault(common.EnvModelFormat, common.DefaultModelFormat),
		ModelURL:         os.Getenv(common.EnvModelURL),
		PythonPath:       os.Getenv(common.EnvPythonPath),
		InferenceScript:  os.Getenv(common.EnvInferenceScript),
		InferenceTimeout: getDurationOrDefault(common.EnvInferenceTimeout, defaultTimeout),
		ListenPort:       getIntOrDefault(common.EnvListenPort, common.DefaultListenPort),
		DataPath:         os.Getenv(common.EnvDataPath), // optional
		HistorySize:      getIntOrDefault(common.EnvHistorySize, common.DefaultHistorySize),
		LogLevel:         getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
		LogFormat:        getEnvOrDefault(common.EnvLogFormat, common.DefaultLogFormat),
		RateLimit:        getFloatOrDefault(common.EnvRateLimit, 0),
		RateBurst:        getIntOrDefault(common.EnvRateBurst, common.DefaultRateBurst),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

// ModelConfig converts the settings into the loader's configuration.
func (s Settings) ModelConfig(metrics ml.MetricsInterface) ml.ModelConfig {
	return ml.ModelConfig{
		Path:       s.ModelPath,
		Format:     s.ModelFormat,
		URL:        s.ModelURL,
		PythonPath: s.PythonPath,
		ScriptPath: s.InferenceScript,
		Timeout:    s.InferenceTimeout,
		Metrics:    metrics,
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// warnMalformed reports an environment value that could not be parsed and is
// being replaced by the configured or default value.
func warnMalformed(key, value string, err error) {
	log.Warn().
		Err(err).
		Str("key", key).
		Str("value", value).
		Msg("ignoring malformed environment value, using default")
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
		warnMalformed(key, v, err)
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
		warnMalformed(key, v, err)
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
		warnMalformed(key, v, err)
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		val, err := strconv.Atoi(env)
		if err == nil {
			return val
		}
		warnMalformed(key, env, err)
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

// validateSettings performs validation of configuration values
func validateSettings(settings *Settings) error {
	settings.ModelFormat = strings.ToLower(strings.TrimSpace(settings.ModelFormat))
	if !slices.Contains(ml.Formats, settings.ModelFormat) {
		return fmt.Errorf("model format must be one of %v, got %q", ml.Formats, settings.ModelFormat)
	}
	if settings.ModelFormat == ml.FormatRemote {
		if settings.ModelURL == "" {
			return fmt.Errorf("model URL is required for format %q", ml.FormatRemote)
		}
	} else if settings.ModelPath == "" {
		return fmt.Errorf("model path cannot be empty")
	}

	if settings.InferenceTimeout < 100*time.Millisecond || settings.InferenceTimeout > 5*time.Minute {
		return fmt.Errorf("inference timeout must be between 100ms and 5m, got %v", settings.InferenceTimeout)
	}
	if settings.ListenPort < common.MinListenPort || settings.ListenPort > common.MaxListenPort {
		return fmt.Errorf("listen port must be between %d and %d, got %d", common.MinListenPort, common.MaxListenPort, settings.ListenPort)
	}
	if settings.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative, got %g", settings.RateLimit)
	}
	if settings.RateLimit > 0 && settings.RateBurst < 1 {
		return fmt.Errorf("rate burst must be at least 1 when rate limiting is enabled, got %d", settings.RateBurst)
	}
	if settings.HistorySize < 1 || settings.HistorySize > common.MaxHistorySize {
		return fmt.Errorf("history size must be between 1 and %d, got %d", common.MaxHistorySize, settings.HistorySize)
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(settings.LogLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", settings.LogLevel, err)
	}
	settings.LogFormat = strings.ToLower(settings.LogFormat)
	if settings.LogFormat != "json" && settings.LogFormat != "console" {
		return fmt.Errorf("log format must be json or console, got %q", settings.LogFormat)
	}
	return nil
}
