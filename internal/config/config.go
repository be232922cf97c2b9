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
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Store       StoreConfig     `yaml:"store"`
	Storage     StorageConfig   `yaml:"storage"`
	LLM         LLMConfig       `yaml:"llm"`
	TTS         TTSConfig       `yaml:"tts"`
	Pipeline    PipelineConfig  `yaml:"pipeline"`
	Avatar      AvatarConfig    `yaml:"avatar"`
	Avatars     []AvatarConfig  `yaml:"avatars"`
}

// AvatarConfig describes a persona the runtime can speak as. The top-level
// avatar entry is the fallback used for unknown IDs; the avatars list adds
// named personas.
type AvatarConfig struct {
	ID             string `yaml:"id"`
	Name           string `yaml:"name"`
	RoleTitle      string `yaml:"role_title"`
	Description    string `yaml:"description"`
	VoiceRef       string `yaml:"voice_ref"`
	Language       string `yaml:"language"`
	PromptTemplate string `yaml:"prompt_template"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type StoreConfig struct {
	Path             string `yaml:"path"`
	RetentionDays    int    `yaml:"retention_days"`
	MaxConversations int    `yaml:"max_conversations"`
	VacuumOnStart    bool   `yaml:"vacuum_on_start"`
}

type StorageConfig struct {
	Mode          string `yaml:"mode"` // local, s3
	Dir           string `yaml:"dir"`
	Endpoint      string `yaml:"endpoint"`
	Region        string `yaml:"region"`
	Bucket        string `yaml:"bucket"`
	Prefix        string `yaml:"prefix"`
	AccessKey     string `yaml:"access_key"`
	SecretKey     string `yaml:"secret_key"`
	PublicBaseURL string `yaml:"public_base_url"`
}

type LLMConfig struct {
	Mode         string  `yaml:"mode"` // mock, ollama, openai
	Endpoint     string  `yaml:"endpoint"`
	APIKey       string  `yaml:"api_key"`
	Model        string  `yaml:"model"`
	MaxTokens    int     `yaml:"max_tokens"`
	Temperature  float64 `yaml:"temperature"`
	HistoryLimit int     `yaml:"history_limit"`
}

type TTSConfig struct {
	Mode        string `yaml:"mode"` // mock, exec
	Command     string `yaml:"command"`
	Voice       string `yaml:"voice"`
	Language    string `yaml:"language"`
	UploadAudio bool   `yaml:"upload_audio"`
	TimeoutMS   int    `yaml:"timeout_ms"`
}

type PipelineConfig struct {
	DeliveryMode      string  `yaml:"delivery_mode"` // strict, best_effort
	MinUtteranceChars int     `yaml:"min_utterance_chars"`
	MaxUtteranceChars int     `yaml:"max_utterance_chars"`
	MinWords          int     `yaml:"min_words"`
	AlphaRatio        float64 `yaml:"alpha_ratio"`
	ChunkWaitMS       int     `yaml:"chunk_wait_ms"`
	DrainTimeoutMS    int     `yaml:"drain_timeout_ms"`
}

func Default() Config {
	return Config{
		RuntimeName: "voxa-runtime",
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
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Store: StoreConfig{
			Path:             "./data/voxa-conversations.db",
			RetentionDays:    30,
			MaxConversations: 10000,
		},
		Storage: StorageConfig{
			Mode:   "local",
			Dir:    "./data/audio",
			Region: "auto",
			Prefix: "tts",
		},
		LLM: LLMConfig{
			Mode:         "mock",
			Endpoint:     "http://localhost:11434",
			Model:        "llama3.2:latest",
			MaxTokens:    256,
			Temperature:  0.7,
			HistoryLimit: 10,
		},
		TTS: TTSConfig{
			Mode:      "mock",
			Voice:     "default",
			Language:  "en",
			TimeoutMS: 45000,
		},
		Avatar: AvatarConfig{
			Name:        "Ava",
			RoleTitle:   "virtual assistant",
			Description: "A friendly conversational companion",
			Language:    "en",
		},
		Pipeline: PipelineConfig{
			DeliveryMode:      "strict",
			MinUtteranceChars: 3,
			MaxUtteranceChars: 220,
			MinWords:          3,
			AlphaRatio:        0.3,
			ChunkWaitMS:       1000,
			DrainTimeoutMS:    30000,
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
	overrideString(&cfg.RuntimeName, "VOXA_RUNTIME_NAME")
	overrideString(&cfg.Environment, "VOXA_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "VOXA_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "VOXA_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "VOXA_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "VOXA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "VOXA_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "VOXA_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Enabled, "VOXA_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "VOXA_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "VOXA_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "VOXA_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "VOXA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "VOXA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "VOXA_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "VOXA_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "VOXA_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Store.Path, "VOXA_STORE_PATH")
	overrideInt(&cfg.Store.RetentionDays, "VOXA_STORE_RETENTION_DAYS")
	overrideInt(&cfg.Store.MaxConversations, "VOXA_STORE_MAX_CONVERSATIONS")
	overrideBool(&cfg.Store.VacuumOnStart, "VOXA_STORE_VACUUM_ON_START")
	overrideString(&cfg.Storage.Mode, "VOXA_STORAGE_MODE")
	overrideString(&cfg.Storage.Dir, "VOXA_STORAGE_DIR")
	overrideString(&cfg.Storage.Endpoint, "VOXA_STORAGE_ENDPOINT")
	overrideString(&cfg.Storage.Region, "VOXA_STORAGE_REGION")
	overrideString(&cfg.Storage.Bucket, "VOXA_STORAGE_BUCKET")
	overrideString(&cfg.Storage.Prefix, "VOXA_STORAGE_PREFIX")
	overrideString(&cfg.Storage.AccessKey, "VOXA_STORAGE_ACCESS_KEY")
	overrideString(&cfg.Storage.SecretKey, "VOXA_STORAGE_SECRET_KEY")
	overrideString(&cfg.Storage.PublicBaseURL, "VOXA_STORAGE_PUBLIC_BASE_URL")
	overrideString(&cfg.LLM.Mode, "VOXA_LLM_MODE")
	overrideString(&cfg.LLM.Endpoint, "VOXA_LLM_ENDPOINT")
	overrideString(&cfg.LLM.APIKey, "VOXA_LLM_API_KEY")
	overrideString(&cfg.LLM.Model, "VOXA_LLM_MODEL")
	overrideInt(&cfg.LLM.MaxTokens, "VOXA_LLM_MAX_TOKENS")
	overrideFloat(&cfg.LLM.Temperature, "VOXA_LLM_TEMPERATURE")
	overrideInt(&cfg.LLM.HistoryLimit, "VOXA_LLM_HISTORY_LIMIT")
	overrideString(&cfg.TTS.Mode, "VOXA_TTS_MODE")
	overrideString(&cfg.TTS.Command, "VOXA_TTS_COMMAND")
	overrideString(&cfg.TTS.Voice, "VOXA_TTS_VOICE")
	overrideString(&cfg.TTS.Language, "VOXA_TTS_LANGUAGE")
	overrideBool(&cfg.TTS.UploadAudio, "VOXA_TTS_UPLOAD_AUDIO")
	overrideInt(&cfg.TTS.TimeoutMS, "VOXA_TTS_TIMEOUT_MS")
	overrideString(&cfg.Avatar.Name, "VOXA_AVATAR_NAME")
	overrideString(&cfg.Avatar.RoleTitle, "VOXA_AVATAR_ROLE_TITLE")
	overrideString(&cfg.Avatar.Description, "VOXA_AVATAR_DESCRIPTION")
	overrideString(&cfg.Avatar.VoiceRef, "VOXA_AVATAR_VOICE_REF")
	overrideString(&cfg.Avatar.Language, "VOXA_AVATAR_LANGUAGE")
	overrideString(&cfg.Pipeline.DeliveryMode, "VOXA_PIPELINE_DELIVERY_MODE")
	overrideInt(&cfg.Pipeline.MinUtteranceChars, "VOXA_PIPELINE_MIN_UTTERANCE_CHARS")
	overrideInt(&cfg.Pipeline.MaxUtteranceChars, "VOXA_PIPELINE_MAX_UTTERANCE_CHARS")
	overrideInt(&cfg.Pipeline.MinWords, "VOXA_PIPELINE_MIN_WORDS")
	overrideFloat(&cfg.Pipeline.AlphaRatio, "VOXA_PIPELINE_ALPHA_RATIO")
	overrideInt(&cfg.Pipeline.ChunkWaitMS, "VOXA_PIPELINE_CHUNK_WAIT_MS")
	overrideInt(&cfg.Pipeline.DrainTimeoutMS, "VOXA_PIPELINE_DRAIN_TIMEOUT_MS")
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

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
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
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Store.Path == "" {
		return errors.New("store.path must not be empty")
	}
	if cfg.Store.RetentionDays < 0 {
		return errors.New("store.retention_days must be >= 0")
	}
	switch cfg.Storage.Mode {
	case "local":
		if cfg.Storage.Dir == "" {
			return errors.New("storage.dir must be set when mode=local")
		}
	case "s3":
		if cfg.Storage.Bucket == "" {
			return errors.New("storage.bucket must be set when mode=s3")
		}
		if cfg.Storage.AccessKey == "" || cfg.Storage.SecretKey == "" {
			return errors.New("storage.access_key and storage.secret_key must be set when mode=s3")
		}
	default:
		return errors.New("storage.mode must be one of local|s3")
	}
	switch cfg.LLM.Mode {
	case "mock", "ollama", "openai":
	default:
		return errors.New("llm.mode must be one of mock|ollama|openai")
	}
	if cfg.LLM.Mode == "ollama" && cfg.LLM.Endpoint == "" {
		return errors.New("llm.endpoint must be set when mode=ollama")
	}
	if cfg.LLM.Mode == "openai" && cfg.LLM.APIKey == "" {
		return errors.New("llm.api_key must be set when mode=openai")
	}
	if cfg.LLM.MaxTokens < 0 {
		return errors.New("llm.max_tokens must be >= 0")
	}
	if cfg.LLM.HistoryLimit < 0 {
		return errors.New("llm.history_limit must be >= 0")
	}
	switch cfg.TTS.Mode {
	case "mock", "exec":
	default:
		return errors.New("tts.mode must be one of mock|exec")
	}
	if cfg.TTS.Mode == "exec" && cfg.TTS.Command == "" {
		return errors.New("tts.command must be set when mode=exec")
	}
	if cfg.TTS.TimeoutMS <= 0 {
		return errors.New("tts.timeout_ms must be positive")
	}
	if cfg.Avatar.Name == "" {
		return errors.New("avatar.name must not be empty")
	}
	for i, a := range cfg.Avatars {
		if a.ID == "" || a.Name == "" {
			return fmt.Errorf("avatars[%d]: id and name must not be empty", i)
		}
	}
	switch cfg.Pipeline.DeliveryMode {
	case "strict", "best_effort":
	default:
		return errors.New("pipeline.delivery_mode must be one of strict|best_effort")
	}
	if cfg.Pipeline.MinUtteranceChars <= 0 {
		return errors.New("pipeline.min_utterance_chars must be positive")
	}
	if cfg.Pipeline.MaxUtteranceChars <= cfg.Pipeline.MinUtteranceChars {
		return errors.New("pipeline.max_utterance_chars must be greater than min_utterance_chars")
	}
	if cfg.Pipeline.MinWords <= 0 {
		return errors.New("pipeline.min_words must be positive")
	}
	if cfg.Pipeline.AlphaRatio < 0 || cfg.Pipeline.AlphaRatio > 1 {
		return errors.New("pipeline.alpha_ratio must be between 0 and 1")
	}
	if cfg.Pipeline.ChunkWaitMS <= 0 {
		return errors.New("pipeline.chunk_wait_ms must be positive")
	}
	if cfg.Pipeline.DrainTimeoutMS <= 0 {
		return errors.New("pipeline.drain_timeout_ms must be positive")
	}
	return nil
}
