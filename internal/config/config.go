package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables read by Load.
const (
	EnvConfigPath = "ULAP_CONFIG_PATH"
	EnvAPIKeys    = "ULAP_API_KEYS"
	EnvONNXLib    = "ONNXRUNTIME_SHARED_LIBRARY_PATH"
)

// DefaultPath is used when neither a flag nor ULAP_CONFIG_PATH names a file.
const DefaultPath = "ulap.yaml"

// Config holds Ulap configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Registry RegistryConfig `yaml:"registry"`
	Model    ModelConfig    `yaml:"model"`
	Decision DecisionConfig `yaml:"decision"`
	Camera   CameraConfig   `yaml:"camera"`
	Cache    CacheConfig    `yaml:"cache"`
	Events   EventsConfig   `yaml:"events"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Addr              string   `yaml:"addr"` // HTTP listen address, e.g. ":8080"
	ReadHeaderTimeout Duration `yaml:"read_header_timeout"`
	ReadTimeout       Duration `yaml:"read_timeout"`
	WriteTimeout      Duration `yaml:"write_timeout"`
	IdleTimeout       Duration `yaml:"idle_timeout"`
	ShutdownTimeout   Duration `yaml:"shutdown_timeout"`
	MaxUploadBytes    int64    `yaml:"max_upload_bytes"`
	APIKeys           []string `yaml:"api_keys"` // empty disables auth
}

type RegistryConfig struct {
	LabelsPath       string `yaml:"labels_path"`
	DescriptionsPath string `yaml:"descriptions_path"`
	IndicationsPath  string `yaml:"indications_path"`
}

type ModelConfig struct {
	Path              string   `yaml:"path"`
	SharedLibraryPath string   `yaml:"shared_library_path"`
	InputName         string   `yaml:"input_name"`
	OutputName        string   `yaml:"output_name"`
	InputSize         int      `yaml:"input_size"`
	ApplySoftmax      bool     `yaml:"apply_softmax"`
	SHA256            string   `yaml:"sha256"` // optional hex digest of the model file
	InferenceTimeout  Duration `yaml:"inference_timeout"`
}

type DecisionConfig struct {
	ConfidentThreshold float64 `yaml:"confident_threshold"`
	TentativeThreshold float64 `yaml:"tentative_threshold"`
}

type CameraConfig struct {
	Type           string            `yaml:"type"` // http | file | none
	URL            string            `yaml:"url"`
	Headers        map[string]string `yaml:"headers"`
	Path           string            `yaml:"path"`
	CaptureTimeout Duration          `yaml:"capture_timeout"`
	SavePath       string            `yaml:"save_path"`
}

type CacheConfig struct {
	Enabled     bool `yaml:"enabled"`
	MaxEntries  int  `yaml:"max_entries"`
	MaxDistance int  `yaml:"max_distance"`
}

type EventsConfig struct {
	QueueSize       int          `yaml:"queue_size"`
	Workers         int          `yaml:"workers"`
	ShutdownTimeout Duration     `yaml:"shutdown_timeout"`
	Sinks           []SinkConfig `yaml:"sinks"`
}

type SinkConfig struct {
	Type                 string            `yaml:"type"` // file_jsonl | webhook
	Path                 string            `yaml:"path"`
	URL                  string            `yaml:"url"`
	Headers              map[string]string `yaml:"headers"`
	Timeout              Duration          `yaml:"timeout"`
	AllowPrivateNetworks bool              `yaml:"allow_private_networks"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | text
}

// Duration is a time.Duration written as a string ("5s") in YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ResolvePath picks the config file: the explicit path, then
// ULAP_CONFIG_PATH, then DefaultPath.
func ResolvePath(explicit string) string {
	if strings.TrimSpace(explicit) != "" {
		return explicit
	}
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads configuration from a YAML file.
// If the file doesn't exist, it returns a default config and no error.
// Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := defaultConfig()
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	return &cfg, nil
}

func defaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ReadHeaderTimeout == 0 {
		cfg.Server.ReadHeaderTimeout = Duration(5 * time.Second)
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = Duration(30 * time.Second)
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = Duration(60 * time.Second)
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = Duration(120 * time.Second)
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(15 * time.Second)
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 32 << 20
	}

	if cfg.Registry.LabelsPath == "" {
		cfg.Registry.LabelsPath = "model/labels.txt"
	}
	if cfg.Registry.DescriptionsPath == "" {
		cfg.Registry.DescriptionsPath = "model/descriptions.txt"
	}
	if cfg.Registry.IndicationsPath == "" {
		cfg.Registry.IndicationsPath = "model/indications.txt"
	}

	if cfg.Model.Path == "" {
		cfg.Model.Path = "model/ulap.onnx"
	}
	if cfg.Model.InputSize == 0 {
		cfg.Model.InputSize = 224
	}
	if cfg.Model.InferenceTimeout == 0 {
		cfg.Model.InferenceTimeout = Duration(10 * time.Second)
	}

	if cfg.Decision.ConfidentThreshold == 0 {
		cfg.Decision.ConfidentThreshold = 0.80
	}
	if cfg.Decision.TentativeThreshold == 0 {
		cfg.Decision.TentativeThreshold = 0.50
	}

	if cfg.Camera.Type == "" {
		cfg.Camera.Type = "none"
	}
	if cfg.Camera.CaptureTimeout == 0 {
		cfg.Camera.CaptureTimeout = Duration(5 * time.Second)
	}

	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = 256
	}

	if cfg.Events.QueueSize == 0 {
		cfg.Events.QueueSize = 1000
	}
	if cfg.Events.Workers == 0 {
		cfg.Events.Workers = 2
	}
	if cfg.Events.ShutdownTimeout == 0 {
		cfg.Events.ShutdownTimeout = Duration(5 * time.Second)
	}
	for i := range cfg.Events.Sinks {
		if cfg.Events.Sinks[i].Timeout == 0 {
			cfg.Events.Sinks[i].Timeout = Duration(5 * time.Second)
		}
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvAPIKeys)); v != "" {
		var keys []string
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
		cfg.Server.APIKeys = keys
	}
	if v := strings.TrimSpace(os.Getenv(EnvONNXLib)); v != "" {
		cfg.Model.SharedLibraryPath = v
	}
}
