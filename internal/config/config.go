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
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

// TranscriberConfig selects and tunes the external speech-to-text
// collaborator. Mode exec runs a helper command, server talks to an
// OpenAI-compatible transcription endpoint, mock is for development.
type TranscriberConfig struct {
	Mode        string  `yaml:"mode"`
	Command     string  `yaml:"command"`
	Endpoint    string  `yaml:"endpoint"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Language    string  `yaml:"language"`
	BeamSize    int     `yaml:"beam_size"`
	ChunkLength int     `yaml:"chunk_length_s"`
	VADFilter   bool    `yaml:"vad_filter"`
	TimeoutS    int     `yaml:"timeout_s"`
	Temperature float64 `yaml:"temperature"`
}

type SessionConfig struct {
	TempDir        string  `yaml:"temp_dir"`
	MaxUploadBytes int64   `yaml:"max_upload_bytes"`
	ProgressCap    float64 `yaml:"progress_cap"`
	SampleRate     int     `yaml:"capture_sample_rate"`
	Channels       int     `yaml:"capture_channels"`
}

type OutputsConfig struct {
	TextFilename string `yaml:"text_filename"`
	JSONFilename string `yaml:"json_filename"`
}

type Config struct {
	ServiceName string            `yaml:"service_name"`
	Environment string            `yaml:"environment"`
	HTTP        HTTPConfig        `yaml:"http"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Bus         BusConfig         `yaml:"bus"`
	Store       StoreConfig       `yaml:"store"`
	Transcriber TranscriberConfig `yaml:"transcriber"`
	Session     SessionConfig     `yaml:"session"`
	Outputs     OutputsConfig     `yaml:"outputs"`
}

func Default() Config {
	return Config{
		ServiceName: "escriba",
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
			Path:          "./data/escriba-sessions.db",
			RetentionMode: "ephemeral",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		Transcriber: TranscriberConfig{
			Mode:        "exec",
			Command:     "escriba-whisper",
			Model:       "base",
			Language:    "",
			BeamSize:    5,
			ChunkLength: 30,
			VADFilter:   true,
		},
		Session: SessionConfig{
			TempDir:        "",
			MaxUploadBytes: 512 << 20,
			ProgressCap:    0.9,
			SampleRate:     16000,
			Channels:       1,
		},
		Outputs: OutputsConfig{
			TextFilename: "transcricao.txt",
			JSONFilename: "transcricao.json",
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
	overrideString(&cfg.ServiceName, "ESCRIBA_SERVICE_NAME")
	overrideString(&cfg.Environment, "ESCRIBA_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "ESCRIBA_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "ESCRIBA_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "ESCRIBA_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "ESCRIBA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "ESCRIBA_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "ESCRIBA_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Enabled, "ESCRIBA_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "ESCRIBA_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "ESCRIBA_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "ESCRIBA_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "ESCRIBA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "ESCRIBA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "ESCRIBA_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "ESCRIBA_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "ESCRIBA_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Store.Path, "ESCRIBA_STORE_PATH")
	overrideString(&cfg.Store.RetentionMode, "ESCRIBA_STORE_RETENTION_MODE")
	overrideInt(&cfg.Store.RetentionDays, "ESCRIBA_STORE_RETENTION_DAYS")
	overrideInt(&cfg.Store.MaxSessions, "ESCRIBA_STORE_MAX_SESSIONS")
	overrideBool(&cfg.Store.VacuumOnStart, "ESCRIBA_STORE_VACUUM_ON_START")
	overrideString(&cfg.Transcriber.Mode, "ESCRIBA_TRANSCRIBER_MODE")
	overrideString(&cfg.Transcriber.Command, "ESCRIBA_TRANSCRIBER_COMMAND")
	overrideString(&cfg.Transcriber.Endpoint, "ESCRIBA_TRANSCRIBER_ENDPOINT")
	overrideString(&cfg.Transcriber.APIKey, "ESCRIBA_TRANSCRIBER_API_KEY")
	overrideString(&cfg.Transcriber.Model, "ESCRIBA_TRANSCRIBER_MODEL")
	overrideString(&cfg.Transcriber.Language, "ESCRIBA_TRANSCRIBER_LANGUAGE")
	overrideInt(&cfg.Transcriber.BeamSize, "ESCRIBA_TRANSCRIBER_BEAM_SIZE")
	overrideInt(&cfg.Transcriber.ChunkLength, "ESCRIBA_TRANSCRIBER_CHUNK_LENGTH_S")
	overrideBool(&cfg.Transcriber.VADFilter, "ESCRIBA_TRANSCRIBER_VAD_FILTER")
	overrideInt(&cfg.Transcriber.TimeoutS, "ESCRIBA_TRANSCRIBER_TIMEOUT_S")
	overrideFloat(&cfg.Transcriber.Temperature, "ESCRIBA_TRANSCRIBER_TEMPERATURE")
	overrideString(&cfg.Session.TempDir, "ESCRIBA_SESSION_TEMP_DIR")
	overrideInt64(&cfg.Session.MaxUploadBytes, "ESCRIBA_SESSION_MAX_UPLOAD_BYTES")
	overrideFloat(&cfg.Session.ProgressCap, "ESCRIBA_SESSION_PROGRESS_CAP")
	overrideInt(&cfg.Session.SampleRate, "ESCRIBA_SESSION_CAPTURE_SAMPLE_RATE")
	overrideInt(&cfg.Session.Channels, "ESCRIBA_SESSION_CAPTURE_CHANNELS")
	overrideString(&cfg.Outputs.TextFilename, "ESCRIBA_OUTPUTS_TEXT_FILENAME")
	overrideString(&cfg.Outputs.JSONFilename, "ESCRIBA_OUTPUTS_JSON_FILENAME")
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

func overrideInt64(target *int64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
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

func validate(cfg Config) error {
	if cfg.ServiceName == "" {
		return errors.New("service_name must not be empty")
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
	switch cfg.Store.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.Store.RetentionDays < 0 {
		return errors.New("store.retention_days must be >= 0")
	}
	switch cfg.Transcriber.Mode {
	case "exec", "server", "mock":
	default:
		return errors.New("transcriber.mode must be one of exec|server|mock")
	}
	if cfg.Transcriber.Mode == "exec" && cfg.Transcriber.Command == "" {
		return errors.New("transcriber.command must be set when mode=exec")
	}
	if cfg.Transcriber.Mode == "server" && cfg.Transcriber.Endpoint == "" {
		return errors.New("transcriber.endpoint must be set when mode=server")
	}
	if cfg.Transcriber.BeamSize < 0 {
		return errors.New("transcriber.beam_size must be >= 0")
	}
	if cfg.Transcriber.ChunkLength < 0 {
		return errors.New("transcriber.chunk_length_s must be >= 0")
	}
	if cfg.Session.MaxUploadBytes <= 0 {
		return errors.New("session.max_upload_bytes must be positive")
	}
	if cfg.Session.ProgressCap <= 0 || cfg.Session.ProgressCap > 1 {
		return errors.New("session.progress_cap must be in (0, 1]")
	}
	if cfg.Session.SampleRate <= 0 {
		return errors.New("session.capture_sample_rate must be positive")
	}
	if cfg.Session.Channels <= 0 {
		return errors.New("session.capture_channels must be positive")
	}
	if cfg.Outputs.TextFilename == "" || cfg.Outputs.JSONFilename == "" {
		return errors.New("outputs filenames must not be empty")
	}
	return nil
}
