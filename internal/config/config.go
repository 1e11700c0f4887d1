package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Step names served by the built-in plugin set. Step names in pipeline
// definitions are matched exactly against the registry, so these constants
// are the single place the spelling lives.
const (
	StepAudioClamp     = "audio_clamp"
	StepResample       = "resample"
	StepTokenAlignment = "token_alignment"
	StepWhisper        = "whisper_transcription"
	StepWav2Vec2       = "wav2vec2_alignment"
)

const (
	LocalityLocal  = "local"
	LocalityRemote = "remote"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
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

type NodeConfig struct {
	ID                string `yaml:"id"`
	Role              string `yaml:"role"`
	HeartbeatInterval int    `yaml:"heartbeat_interval_ms"`
	HeartbeatTimeout  int    `yaml:"heartbeat_timeout_ms"`
}

// ServeConfig lists the pipeline steps this node executes on behalf of
// remote callers. An empty list means the node is API-only.
type ServeConfig struct {
	Steps []string `yaml:"steps"`
}

type RemoteConfig struct {
	SubjectPrefix  string `yaml:"subject_prefix"`
	RequestTimeout int    `yaml:"request_timeout_ms"`
}

type PipelineConfig struct {
	Selected    string                      `yaml:"selected"`
	Definitions map[string]DefinitionConfig `yaml:"definitions"`
	Plugins     PluginsConfig               `yaml:"plugins"`
}

type DefinitionConfig struct {
	Pre           []string `yaml:"pre"`
	Transcription string   `yaml:"transcription"`
	Post          []string `yaml:"post"`
}

type PluginsConfig struct {
	AudioClamp     StepToggle           `yaml:"audio_clamp"`
	Resample       ResampleConfig       `yaml:"resample"`
	TokenAlignment TokenAlignmentConfig `yaml:"token_alignment"`
	Whisper        WhisperConfig        `yaml:"whisper_transcription"`
	Wav2Vec2       Wav2Vec2Config       `yaml:"wav2vec2_alignment"`
}

type StepToggle struct {
	Enabled  bool   `yaml:"enabled"`
	Locality string `yaml:"locality"`
}

type ResampleConfig struct {
	Enabled            bool   `yaml:"enabled"`
	Locality           string `yaml:"locality"`
	TargetSampleRateHz int    `yaml:"target_sample_rate_hz"`
}

type TokenAlignmentConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Locality          string `yaml:"locality"`
	MinWordDurationMS int    `yaml:"min_word_duration_ms"`
}

type WhisperConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Locality  string `yaml:"locality"`
	Mode      string `yaml:"mode"` // auto, native, exec, placeholder
	ModelPath string `yaml:"model_path"`
	Language  string `yaml:"language"`
	Threads   int    `yaml:"threads"`
	Command   string `yaml:"command"`
}

type Wav2Vec2Config struct {
	Enabled  bool   `yaml:"enabled"`
	Locality string `yaml:"locality"`
	Mode     string `yaml:"mode"` // auto, exec, placeholder
	Command  string `yaml:"command"`
	Device   string `yaml:"device"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Node        NodeConfig      `yaml:"node"`
	Serve       ServeConfig     `yaml:"serve"`
	Remote      RemoteConfig    `yaml:"remote"`
	Pipeline    PipelineConfig  `yaml:"pipeline"`
}

func Default() Config {
	return Config{
		RuntimeName: "voxpipe",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Node: NodeConfig{
			ID:                "voxpipe-node-1",
			Role:              "api",
			HeartbeatInterval: 2000,
			HeartbeatTimeout:  6000,
		},
		Serve: ServeConfig{},
		Remote: RemoteConfig{
			SubjectPrefix:  "pipeline.step",
			RequestTimeout: 15000,
		},
		Pipeline: PipelineConfig{
			Selected: "default",
			Definitions: map[string]DefinitionConfig{
				"default": {
					Pre:           []string{StepAudioClamp},
					Transcription: StepWhisper,
					Post:          []string{StepWav2Vec2},
				},
			},
			Plugins: PluginsConfig{
				AudioClamp: StepToggle{Enabled: true, Locality: LocalityLocal},
				Resample: ResampleConfig{
					Enabled:            true,
					Locality:           LocalityLocal,
					TargetSampleRateHz: 16000,
				},
				TokenAlignment: TokenAlignmentConfig{
					Enabled:           true,
					Locality:          LocalityLocal,
					MinWordDurationMS: 40,
				},
				Whisper: WhisperConfig{
					Enabled:   true,
					Locality:  LocalityLocal,
					Mode:      "auto",
					ModelPath: "models/ggml-base.bin",
					Language:  "auto",
					Threads:   4,
				},
				Wav2Vec2: Wav2Vec2Config{
					Enabled:  true,
					Locality: LocalityLocal,
					Mode:     "auto",
					Device:   "cpu",
				},
			},
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

// StepEnabled reports whether the plugin behind a step name is enabled.
// Names without a plugin config section are always enabled.
func (p PipelineConfig) StepEnabled(name string) bool {
	switch name {
	case StepAudioClamp:
		return p.Plugins.AudioClamp.Enabled
	case StepResample:
		return p.Plugins.Resample.Enabled
	case StepTokenAlignment:
		return p.Plugins.TokenAlignment.Enabled
	case StepWhisper:
		return p.Plugins.Whisper.Enabled
	case StepWav2Vec2:
		return p.Plugins.Wav2Vec2.Enabled
	default:
		return true
	}
}

// StepRemote reports whether a step is satisfied by a remote worker instead
// of the in-process plugin.
func (p PipelineConfig) StepRemote(name string) bool {
	switch name {
	case StepAudioClamp:
		return p.Plugins.AudioClamp.Locality == LocalityRemote
	case StepResample:
		return p.Plugins.Resample.Locality == LocalityRemote
	case StepTokenAlignment:
		return p.Plugins.TokenAlignment.Locality == LocalityRemote
	case StepWhisper:
		return p.Plugins.Whisper.Locality == LocalityRemote
	case StepWav2Vec2:
		return p.Plugins.Wav2Vec2.Locality == LocalityRemote
	default:
		return false
	}
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "VOXPIPE_RUNTIME_NAME")
	overrideString(&cfg.Environment, "VOXPIPE_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "VOXPIPE_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "VOXPIPE_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "VOXPIPE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "VOXPIPE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "VOXPIPE_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Embedded, "VOXPIPE_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "VOXPIPE_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "VOXPIPE_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "VOXPIPE_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "VOXPIPE_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "VOXPIPE_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "VOXPIPE_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "VOXPIPE_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Node.ID, "VOXPIPE_NODE_ID")
	overrideString(&cfg.Node.Role, "VOXPIPE_NODE_ROLE")
	overrideInt(&cfg.Node.HeartbeatInterval, "VOXPIPE_NODE_HEARTBEAT_INTERVAL_MS")
	overrideInt(&cfg.Node.HeartbeatTimeout, "VOXPIPE_NODE_HEARTBEAT_TIMEOUT_MS")
	overrideStringSlice(&cfg.Serve.Steps, "VOXPIPE_SERVE_STEPS")
	overrideString(&cfg.Remote.SubjectPrefix, "VOXPIPE_REMOTE_SUBJECT_PREFIX")
	overrideInt(&cfg.Remote.RequestTimeout, "VOXPIPE_REMOTE_REQUEST_TIMEOUT_MS")
	overrideString(&cfg.Pipeline.Selected, "VOXPIPE_PIPELINE_SELECTED")
	overrideBool(&cfg.Pipeline.Plugins.AudioClamp.Enabled, "VOXPIPE_PLUGIN_AUDIO_CLAMP_ENABLED")
	overrideString(&cfg.Pipeline.Plugins.AudioClamp.Locality, "VOXPIPE_PLUGIN_AUDIO_CLAMP_LOCALITY")
	overrideBool(&cfg.Pipeline.Plugins.Resample.Enabled, "VOXPIPE_PLUGIN_RESAMPLE_ENABLED")
	overrideString(&cfg.Pipeline.Plugins.Resample.Locality, "VOXPIPE_PLUGIN_RESAMPLE_LOCALITY")
	overrideInt(&cfg.Pipeline.Plugins.Resample.TargetSampleRateHz, "VOXPIPE_PLUGIN_RESAMPLE_TARGET_SAMPLE_RATE_HZ")
	overrideBool(&cfg.Pipeline.Plugins.TokenAlignment.Enabled, "VOXPIPE_PLUGIN_TOKEN_ALIGNMENT_ENABLED")
	overrideString(&cfg.Pipeline.Plugins.TokenAlignment.Locality, "VOXPIPE_PLUGIN_TOKEN_ALIGNMENT_LOCALITY")
	overrideInt(&cfg.Pipeline.Plugins.TokenAlignment.MinWordDurationMS, "VOXPIPE_PLUGIN_TOKEN_ALIGNMENT_MIN_WORD_DURATION_MS")
	overrideBool(&cfg.Pipeline.Plugins.Whisper.Enabled, "VOXPIPE_PLUGIN_WHISPER_ENABLED")
	overrideString(&cfg.Pipeline.Plugins.Whisper.Mode, "VOXPIPE_PLUGIN_WHISPER_MODE")
	overrideString(&cfg.Pipeline.Plugins.Whisper.ModelPath, "VOXPIPE_PLUGIN_WHISPER_MODEL_PATH")
	overrideString(&cfg.Pipeline.Plugins.Whisper.Language, "VOXPIPE_PLUGIN_WHISPER_LANGUAGE")
	overrideInt(&cfg.Pipeline.Plugins.Whisper.Threads, "VOXPIPE_PLUGIN_WHISPER_THREADS")
	overrideString(&cfg.Pipeline.Plugins.Whisper.Command, "VOXPIPE_PLUGIN_WHISPER_COMMAND")
	overrideString(&cfg.Pipeline.Plugins.Whisper.Locality, "VOXPIPE_PLUGIN_WHISPER_LOCALITY")
	overrideBool(&cfg.Pipeline.Plugins.Wav2Vec2.Enabled, "VOXPIPE_PLUGIN_WAV2VEC2_ENABLED")
	overrideString(&cfg.Pipeline.Plugins.Wav2Vec2.Mode, "VOXPIPE_PLUGIN_WAV2VEC2_MODE")
	overrideString(&cfg.Pipeline.Plugins.Wav2Vec2.Command, "VOXPIPE_PLUGIN_WAV2VEC2_COMMAND")
	overrideString(&cfg.Pipeline.Plugins.Wav2Vec2.Device, "VOXPIPE_PLUGIN_WAV2VEC2_DEVICE")
	overrideString(&cfg.Pipeline.Plugins.Wav2Vec2.Locality, "VOXPIPE_PLUGIN_WAV2VEC2_LOCALITY")
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

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Node.ID == "" {
		return errors.New("node.id must not be empty")
	}
	if cfg.Node.HeartbeatInterval <= 0 {
		return errors.New("node.heartbeat_interval_ms must be positive")
	}
	if cfg.Node.HeartbeatTimeout <= cfg.Node.HeartbeatInterval {
		return errors.New("node.heartbeat_timeout_ms must be greater than heartbeat interval")
	}
	if cfg.Remote.SubjectPrefix == "" {
		return errors.New("remote.subject_prefix must not be empty")
	}
	if cfg.Remote.RequestTimeout <= 0 {
		return errors.New("remote.request_timeout_ms must be positive")
	}
	for _, step := range cfg.Serve.Steps {
		if strings.TrimSpace(step) == "" {
			return errors.New("serve.steps must not contain empty names")
		}
	}
	if strings.TrimSpace(cfg.Pipeline.Selected) == "" {
		return errors.New("pipeline.selected must not be empty")
	}
	if len(cfg.Pipeline.Definitions) == 0 {
		return errors.New("pipeline.definitions must not be empty")
	}
	for name, def := range cfg.Pipeline.Definitions {
		if strings.TrimSpace(name) == "" {
			return errors.New("pipeline definition names must not be empty")
		}
		for _, step := range def.Pre {
			if strings.TrimSpace(step) == "" {
				return fmt.Errorf("pipeline definition %q has an empty pre step name", name)
			}
		}
		for _, step := range def.Post {
			if strings.TrimSpace(step) == "" {
				return fmt.Errorf("pipeline definition %q has an empty post step name", name)
			}
		}
	}
	if cfg.Pipeline.Plugins.Resample.TargetSampleRateHz <= 0 {
		return errors.New("plugins.resample.target_sample_rate_hz must be positive")
	}
	if cfg.Pipeline.Plugins.TokenAlignment.MinWordDurationMS < 0 {
		return errors.New("plugins.token_alignment.min_word_duration_ms must be >= 0")
	}
	switch cfg.Pipeline.Plugins.Whisper.Mode {
	case "auto", "native", "exec", "placeholder":
	default:
		return errors.New("plugins.whisper_transcription.mode must be one of auto|native|exec|placeholder")
	}
	if cfg.Pipeline.Plugins.Whisper.Mode == "exec" && cfg.Pipeline.Plugins.Whisper.Command == "" {
		return errors.New("plugins.whisper_transcription.command must be set when mode=exec")
	}
	switch cfg.Pipeline.Plugins.Wav2Vec2.Mode {
	case "auto", "exec", "placeholder":
	default:
		return errors.New("plugins.wav2vec2_alignment.mode must be one of auto|exec|placeholder")
	}
	if cfg.Pipeline.Plugins.Wav2Vec2.Mode == "exec" && cfg.Pipeline.Plugins.Wav2Vec2.Command == "" {
		return errors.New("plugins.wav2vec2_alignment.command must be set when mode=exec")
	}
	for _, locality := range []string{
		cfg.Pipeline.Plugins.AudioClamp.Locality,
		cfg.Pipeline.Plugins.Resample.Locality,
		cfg.Pipeline.Plugins.TokenAlignment.Locality,
		cfg.Pipeline.Plugins.Whisper.Locality,
		cfg.Pipeline.Plugins.Wav2Vec2.Locality,
	} {
		switch locality {
		case LocalityLocal, LocalityRemote:
		default:
			return fmt.Errorf("plugin locality %q must be one of local|remote", locality)
		}
	}
	return nil
}
