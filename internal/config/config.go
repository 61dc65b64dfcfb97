package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName  string             `yaml:"runtime_name"`
	Environment  string             `yaml:"environment"`
	HTTP         HTTPConfig         `yaml:"http"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
	Bus          BusConfig          `yaml:"bus"`
	Pipeline     PipelineConfig     `yaml:"pipeline"`
	Emotion      EmotionConfig      `yaml:"emotion"`
	Transcribe   TranscribeConfig   `yaml:"transcribe"`
	Advice       AdviceConfig       `yaml:"advice"`
	SessionStore SessionStoreConfig `yaml:"session_store"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

// PipelineConfig tunes the per-session aggregation core. Durations measured
// on the session clock are plain seconds, host-side timers are milliseconds.
type PipelineConfig struct {
	IntervalSeconds  float64 `yaml:"interval_seconds"`
	EMAAlpha         float64 `yaml:"ema_alpha"`
	TopKEmotions     int     `yaml:"top_k_emotions"`
	WindowCapacity   int     `yaml:"window_capacity"`
	UpdateSeconds    float64 `yaml:"update_seconds"`
	TrendThreshold   float64 `yaml:"trend_threshold"`
	LookbackSeconds  float64 `yaml:"lookback_seconds"`
	SilenceZeroWords bool    `yaml:"silence_zero_words"`
	TickMS           int     `yaml:"tick_ms"`
	IdleTimeoutMS    int     `yaml:"idle_timeout_ms"`
}

type EmotionConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Mode      string `yaml:"mode"` // mock, http
	Endpoint  string `yaml:"endpoint"`
	APIKey    string `yaml:"api_key"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type TranscribeConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Mode           string `yaml:"mode"` // mock, exec
	Command        string `yaml:"command"`
	ModelPath      string `yaml:"model_path"`
	Language       string `yaml:"language"`
	SampleRate     int    `yaml:"sample_rate"`
	Channels       int    `yaml:"channels"`
	UtteranceGapMS int    `yaml:"utterance_gap_ms"`
	PublishInterim bool   `yaml:"publish_interim"`
}

type AdviceConfig struct {
	Enabled         bool    `yaml:"enabled"`
	Mode            string  `yaml:"mode"` // mock, openai, exec
	Endpoint        string  `yaml:"endpoint"`
	APIKey          string  `yaml:"api_key"`
	Command         string  `yaml:"command"`
	Model           string  `yaml:"model"`
	MaxTokens       int     `yaml:"max_tokens"`
	Temperature     float64 `yaml:"temperature"`
	TimeoutSeconds  int     `yaml:"timeout_seconds"`
	CacheEnabled    bool    `yaml:"cache_enabled"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
	CacheMaxSize    int     `yaml:"cache_max_size"`
}

type SessionStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"` // ephemeral, session, persistent
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

func Default() Config {
	return Config{
		RuntimeName: "attune-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Pipeline: PipelineConfig{
			IntervalSeconds:  1.0,
			EMAAlpha:         0.3,
			TopKEmotions:     3,
			WindowCapacity:   5,
			UpdateSeconds:    4.5,
			TrendThreshold:   0.05,
			LookbackSeconds:  0,
			SilenceZeroWords: true,
			TickMS:           250,
			IdleTimeoutMS:    30000,
		},
		Emotion: EmotionConfig{
			Enabled:   false,
			Mode:      "mock",
			TimeoutMS: 2000,
		},
		Transcribe: TranscribeConfig{
			Enabled:        false,
			Mode:           "mock",
			Language:       "en",
			SampleRate:     16000,
			Channels:       1,
			UtteranceGapMS: 800,
		},
		Advice: AdviceConfig{
			Enabled:         true,
			Mode:            "mock",
			Endpoint:        "https://api.openai.com",
			Model:           "gpt-4-turbo",
			MaxTokens:       100,
			Temperature:     0.7,
			TimeoutSeconds:  30,
			CacheEnabled:    true,
			CacheTTLSeconds: 300,
			CacheMaxSize:    1000,
		},
		SessionStore: SessionStoreConfig{
			Path:          "./data/attune-sessions.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "ATTUNE_RUNTIME_NAME")
	overrideString(&cfg.Environment, "ATTUNE_RUNTIME_ENVIRONMENT")

	overrideString(&cfg.HTTP.Bind, "ATTUNE_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "ATTUNE_HTTP_PORT")

	overrideString(&cfg.Telemetry.LogLevel, "ATTUNE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "ATTUNE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "ATTUNE_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "ATTUNE_TELEMETRY_PROMETHEUS_BIND")

	overrideBool(&cfg.Bus.Embedded, "ATTUNE_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "ATTUNE_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "ATTUNE_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "ATTUNE_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "ATTUNE_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "ATTUNE_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "ATTUNE_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "ATTUNE_BUS_CONNECT_TIMEOUT_MS")

	overrideFloat(&cfg.Pipeline.IntervalSeconds, "ATTUNE_PIPELINE_INTERVAL_SECONDS")
	overrideFloat(&cfg.Pipeline.EMAAlpha, "ATTUNE_PIPELINE_EMA_ALPHA")
	overrideInt(&cfg.Pipeline.TopKEmotions, "ATTUNE_PIPELINE_TOP_K_EMOTIONS")
	overrideInt(&cfg.Pipeline.WindowCapacity, "ATTUNE_PIPELINE_WINDOW_CAPACITY")
	overrideFloat(&cfg.Pipeline.UpdateSeconds, "ATTUNE_PIPELINE_UPDATE_SECONDS")
	overrideFloat(&cfg.Pipeline.TrendThreshold, "ATTUNE_PIPELINE_TREND_THRESHOLD")
	overrideFloat(&cfg.Pipeline.LookbackSeconds, "ATTUNE_PIPELINE_LOOKBACK_SECONDS")
	overrideBool(&cfg.Pipeline.SilenceZeroWords, "ATTUNE_PIPELINE_SILENCE_ZERO_WORDS")
	overrideInt(&cfg.Pipeline.TickMS, "ATTUNE_PIPELINE_TICK_MS")
	overrideInt(&cfg.Pipeline.IdleTimeoutMS, "ATTUNE_PIPELINE_IDLE_TIMEOUT_MS")

	overrideBool(&cfg.Emotion.Enabled, "ATTUNE_EMOTION_ENABLED")
	overrideString(&cfg.Emotion.Mode, "ATTUNE_EMOTION_MODE")
	overrideString(&cfg.Emotion.Endpoint, "ATTUNE_EMOTION_ENDPOINT")
	overrideString(&cfg.Emotion.APIKey, "ATTUNE_EMOTION_API_KEY")
	overrideInt(&cfg.Emotion.TimeoutMS, "ATTUNE_EMOTION_TIMEOUT_MS")

	overrideBool(&cfg.Transcribe.Enabled, "ATTUNE_TRANSCRIBE_ENABLED")
	overrideString(&cfg.Transcribe.Mode, "ATTUNE_TRANSCRIBE_MODE")
	overrideString(&cfg.Transcribe.Command, "ATTUNE_TRANSCRIBE_COMMAND")
	overrideString(&cfg.Transcribe.ModelPath, "ATTUNE_TRANSCRIBE_MODEL_PATH")
	overrideString(&cfg.Transcribe.Language, "ATTUNE_TRANSCRIBE_LANGUAGE")
	overrideInt(&cfg.Transcribe.SampleRate, "ATTUNE_TRANSCRIBE_SAMPLE_RATE")
	overrideInt(&cfg.Transcribe.Channels, "ATTUNE_TRANSCRIBE_CHANNELS")
	overrideInt(&cfg.Transcribe.UtteranceGapMS, "ATTUNE_TRANSCRIBE_UTTERANCE_GAP_MS")
	overrideBool(&cfg.Transcribe.PublishInterim, "ATTUNE_TRANSCRIBE_PUBLISH_INTERIM")

	overrideBool(&cfg.Advice.Enabled, "ATTUNE_ADVICE_ENABLED")
	overrideString(&cfg.Advice.Mode, "ATTUNE_ADVICE_MODE")
	overrideString(&cfg.Advice.Endpoint, "ATTUNE_ADVICE_ENDPOINT")
	overrideString(&cfg.Advice.APIKey, "ATTUNE_ADVICE_API_KEY")
	overrideString(&cfg.Advice.Command, "ATTUNE_ADVICE_COMMAND")
	overrideString(&cfg.Advice.Model, "ATTUNE_ADVICE_MODEL")
	overrideInt(&cfg.Advice.MaxTokens, "ATTUNE_ADVICE_MAX_TOKENS")
	overrideFloat(&cfg.Advice.Temperature, "ATTUNE_ADVICE_TEMPERATURE")
	overrideInt(&cfg.Advice.TimeoutSeconds, "ATTUNE_ADVICE_TIMEOUT_SECONDS")
	overrideBool(&cfg.Advice.CacheEnabled, "ATTUNE_ADVICE_CACHE_ENABLED")
	overrideInt(&cfg.Advice.CacheTTLSeconds, "ATTUNE_ADVICE_CACHE_TTL_SECONDS")
	overrideInt(&cfg.Advice.CacheMaxSize, "ATTUNE_ADVICE_CACHE_MAX_SIZE")

	overrideString(&cfg.SessionStore.Path, "ATTUNE_SESSION_STORE_PATH")
	overrideString(&cfg.SessionStore.RetentionMode, "ATTUNE_SESSION_STORE_RETENTION_MODE")
	overrideInt(&cfg.SessionStore.RetentionDays, "ATTUNE_SESSION_STORE_RETENTION_DAYS")
	overrideInt(&cfg.SessionStore.MaxSessions, "ATTUNE_SESSION_STORE_MAX_SESSIONS")
	overrideBool(&cfg.SessionStore.VacuumOnStart, "ATTUNE_SESSION_STORE_VACUUM_ON_START")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var servers []string
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				servers = append(servers, trimmed)
			}
		}
		if len(servers) > 0 {
			*target = servers
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else if len(cfg.Bus.Servers) == 0 {
		return errors.New("bus.servers must not be empty when embedded mode is disabled")
	}
	if cfg.Pipeline.IntervalSeconds <= 0 {
		return errors.New("pipeline.interval_seconds must be positive")
	}
	if cfg.Pipeline.EMAAlpha <= 0 || cfg.Pipeline.EMAAlpha > 1 {
		return errors.New("pipeline.ema_alpha must be in (0, 1]")
	}
	if cfg.Pipeline.TopKEmotions < 1 {
		return errors.New("pipeline.top_k_emotions must be at least 1")
	}
	if cfg.Pipeline.WindowCapacity < 1 {
		return errors.New("pipeline.window_capacity must be at least 1")
	}
	if cfg.Pipeline.UpdateSeconds <= 0 {
		return errors.New("pipeline.update_seconds must be positive")
	}
	if cfg.Pipeline.TrendThreshold < 0 {
		return errors.New("pipeline.trend_threshold must not be negative")
	}
	if cfg.Pipeline.LookbackSeconds < 0 {
		return errors.New("pipeline.lookback_seconds must not be negative")
	}
	if cfg.Pipeline.TickMS <= 0 {
		return errors.New("pipeline.tick_ms must be positive")
	}
	if cfg.Emotion.Enabled {
		switch cfg.Emotion.Mode {
		case "mock":
		case "http":
			if cfg.Emotion.Endpoint == "" {
				return errors.New("emotion.endpoint must be set when emotion.mode is http")
			}
		default:
			return fmt.Errorf("emotion.mode must be one of mock|http, got %q", cfg.Emotion.Mode)
		}
	}
	if cfg.Transcribe.Enabled {
		switch cfg.Transcribe.Mode {
		case "mock":
		case "exec":
			if cfg.Transcribe.Command == "" {
				return errors.New("transcribe.command must be set when transcribe.mode is exec")
			}
		default:
			return fmt.Errorf("transcribe.mode must be one of mock|exec, got %q", cfg.Transcribe.Mode)
		}
		if cfg.Transcribe.SampleRate <= 0 {
			return errors.New("transcribe.sample_rate must be positive")
		}
		if cfg.Transcribe.Channels <= 0 {
			return errors.New("transcribe.channels must be positive")
		}
	}
	if cfg.Advice.Enabled {
		switch cfg.Advice.Mode {
		case "mock":
		case "openai":
			if cfg.Advice.Endpoint == "" {
				return errors.New("advice.endpoint must be set when advice.mode is openai")
			}
		case "exec":
			if cfg.Advice.Command == "" {
				return errors.New("advice.command must be set when advice.mode is exec")
			}
		default:
			return fmt.Errorf("advice.mode must be one of mock|openai|exec, got %q", cfg.Advice.Mode)
		}
		if cfg.Advice.MaxTokens < 0 {
			return errors.New("advice.max_tokens must not be negative")
		}
		if cfg.Advice.TimeoutSeconds <= 0 {
			return errors.New("advice.timeout_seconds must be positive")
		}
	}
	if cfg.SessionStore.Path == "" {
		return errors.New("session_store.path must not be empty")
	}
	switch cfg.SessionStore.RetentionMode {
	case "ephemeral", "session", "persistent":
	default:
		return fmt.Errorf("session_store.retention_mode must be one of ephemeral|session|persistent, got %q", cfg.SessionStore.RetentionMode)
	}
	if cfg.SessionStore.RetentionDays < 0 {
		return errors.New("session_store.retention_days must not be negative")
	}
	return nil
}
