package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return defaultConfig()
}

func TestValidateFailures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing server addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
		{"negative upload limit", func(c *Config) { c.Server.MaxUploadBytes = -1 }, "max_upload_bytes"},
		{"blank api key", func(c *Config) { c.Server.APIKeys = []string{"k", " "} }, "api_keys[1]"},
		{"missing labels", func(c *Config) { c.Registry.LabelsPath = "" }, "labels_path"},
		{"missing model", func(c *Config) { c.Model.Path = "" }, "model.path"},
		{"tentative above confident", func(c *Config) { c.Decision.TentativeThreshold = 0.9 }, "thresholds"},
		{"confident above one", func(c *Config) { c.Decision.ConfidentThreshold = 1.2 }, "thresholds"},
		{"zero tentative", func(c *Config) { c.Decision.TentativeThreshold = -0.1 }, "thresholds"},
		{"tentative below floor", func(c *Config) { c.Decision.TentativeThreshold = 0.1 }, "thresholds"},
		{"nan threshold", func(c *Config) { c.Decision.ConfidentThreshold = math.NaN() }, "numbers"},
		{"unknown camera", func(c *Config) { c.Camera.Type = "usb" }, "camera.type"},
		{"http camera without url", func(c *Config) { c.Camera.Type = "http" }, "camera.url"},
		{"file camera without path", func(c *Config) { c.Camera.Type = "file" }, "camera.path"},
		{"cache without entries", func(c *Config) { c.Cache.Enabled = true; c.Cache.MaxEntries = 0 }, "max_entries"},
		{"cache distance too wide", func(c *Config) { c.Cache.MaxDistance = 65 }, "max_distance"},
		{"sink unknown type", func(c *Config) { c.Events.Sinks = []SinkConfig{{Type: "kafka"}} }, "unknown type"},
		{"jsonl sink without path", func(c *Config) { c.Events.Sinks = []SinkConfig{{Type: "file_jsonl"}} }, "missing path"},
		{"webhook bad url", func(c *Config) { c.Events.Sinks = []SinkConfig{{Type: "webhook", URL: "::://bad"}} }, "invalid url"},
		{"webhook private", func(c *Config) {
			c.Events.Sinks = []SinkConfig{{Type: "webhook", URL: "http://127.0.0.1:9000/hook"}}
		}, "SSRF"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}

	assert.Error(t, Validate(nil))
}

func TestValidateOK(t *testing.T) {
	require.NoError(t, Validate(validConfig()))

	cfg := validConfig()
	cfg.Camera = CameraConfig{Type: "http", URL: "http://192.168.1.20/snapshot.jpg"}
	cfg.Decision = DecisionConfig{ConfidentThreshold: 0.7, TentativeThreshold: 0.7}
	cfg.Events.Sinks = []SinkConfig{
		{Type: "file_jsonl", Path: "logs/decisions.jsonl"},
		{Type: "webhook", URL: "http://127.0.0.1:18080/hook", AllowPrivateNetworks: true},
	}
	assert.NoError(t, Validate(cfg), "cameras live on private networks; only webhooks are SSRF checked")
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	t.Setenv(EnvAPIKeys, "")
	t.Setenv(EnvONNXLib, "")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 0.80, cfg.Decision.ConfidentThreshold)
	assert.Equal(t, 0.50, cfg.Decision.TentativeThreshold)
	assert.Equal(t, "none", cfg.Camera.Type)
	assert.Equal(t, 224, cfg.Model.InputSize)
	assert.Equal(t, 10*time.Second, cfg.Model.InferenceTimeout.Std())
	assert.Empty(t, cfg.Server.APIKeys)
}

func TestLoadYAML(t *testing.T) {
	t.Setenv(EnvAPIKeys, "")
	t.Setenv(EnvONNXLib, "")

	path := filepath.Join(t.TempDir(), "ulap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: "127.0.0.1:9090"
  shutdown_timeout: 3s
  api_keys: ["alpha"]
model:
  path: /models/clouds.onnx
  inference_timeout: 250ms
decision:
  confident_threshold: 0.9
camera:
  type: file
  path: /run/frame.jpg
events:
  sinks:
    - type: file_jsonl
      path: /var/log/ulap.jsonl
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))

	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout.Std())
	assert.Equal(t, []string{"alpha"}, cfg.Server.APIKeys)
	assert.Equal(t, 250*time.Millisecond, cfg.Model.InferenceTimeout.Std())
	assert.Equal(t, 0.9, cfg.Decision.ConfidentThreshold)
	assert.Equal(t, 0.5, cfg.Decision.TentativeThreshold)
	assert.Equal(t, "file", cfg.Camera.Type)
	require.Len(t, cfg.Events.Sinks, 1)
	assert.Equal(t, 5*time.Second, cfg.Events.Sinks[0].Timeout.Std())
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ulap.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model:\n  inference_timeout: soon\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvAPIKeys, " k1, ,k2 ")
	t.Setenv(EnvONNXLib, "/opt/onnx/libonnxruntime.so")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Server.APIKeys)
	assert.Equal(t, "/opt/onnx/libonnxruntime.so", cfg.Model.SharedLibraryPath)
}

func TestResolvePath(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	assert.Equal(t, DefaultPath, ResolvePath(""))
	assert.Equal(t, "x.yaml", ResolvePath("x.yaml"))

	t.Setenv(EnvConfigPath, "/etc/ulap.yaml")
	assert.Equal(t, "/etc/ulap.yaml", ResolvePath(""))
	assert.Equal(t, "x.yaml", ResolvePath("x.yaml"))
}

func TestDurationMarshal(t *testing.T) {
	v, err := Duration(1500 * time.Millisecond).MarshalYAML()
	require.NoError(t, err)
	assert.Equal(t, "1.5s", v)
}
