package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/straja-ai/ulap/internal/camera"
	"github.com/straja-ai/ulap/internal/classifier"
	"github.com/straja-ai/ulap/internal/config"
	"github.com/straja-ai/ulap/internal/decision"
	"github.com/straja-ai/ulap/internal/events"
	"github.com/straja-ai/ulap/internal/registry"
	"github.com/straja-ai/ulap/internal/service"
)

// app is the wired object graph shared by the subcommands.
type app struct {
	cfg     *config.Config
	reg     *registry.Registry
	model   *classifier.Model
	emitter *events.Emitter
	svc     *service.Service
}

func loadConfig() (*config.Config, error) {
	path := config.ResolvePath(configPath)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func loadRegistry(cfg *config.Config) (*registry.Registry, error) {
	reg, err := registry.Load(registry.Paths{
		Labels:       cfg.Registry.LabelsPath,
		Descriptions: cfg.Registry.DescriptionsPath,
		Indications:  cfg.Registry.IndicationsPath,
	})
	if err != nil {
		kind := decision.KindOf(err)
		slog.Error("category files rejected", "kind", kind, "error", err)
		return nil, fmt.Errorf("load categories (%s): %w", kind, err)
	}
	return reg, nil
}

// newApp loads the registry and model and wires the service. withEvents
// controls whether configured event sinks are opened.
func newApp(cfg *config.Config, withEvents bool) (*app, error) {
	reg, err := loadRegistry(cfg)
	if err != nil {
		return nil, err
	}

	engine, err := newEngine(cfg.Decision)
	if err != nil {
		return nil, err
	}

	model, err := classifier.LoadModel(classifier.Options{
		ModelPath:         cfg.Model.Path,
		SharedLibraryPath: cfg.Model.SharedLibraryPath,
		InputName:         cfg.Model.InputName,
		OutputName:        cfg.Model.OutputName,
		InputSize:         cfg.Model.InputSize,
		ApplySoftmax:      cfg.Model.ApplySoftmax,
		SHA256:            cfg.Model.SHA256,
		Labels:            reg.Names(),
	})
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}

	a := &app{cfg: cfg, reg: reg, model: model}

	if withEvents {
		sinks, err := buildSinks(cfg.Events.Sinks)
		if err != nil {
			_ = model.Close()
			return nil, err
		}
		if len(sinks) > 0 {
			a.emitter = events.NewEmitter(events.EmitterConfig{
				QueueSize:       cfg.Events.QueueSize,
				Workers:         cfg.Events.Workers,
				ShutdownTimeout: cfg.Events.ShutdownTimeout.Std(),
			}, sinks)
		}
	}

	cam, err := buildCamera(cfg.Camera)
	if err != nil {
		a.close(context.Background())
		return nil, err
	}

	opts := service.Options{
		InferenceTimeout: cfg.Model.InferenceTimeout.Std(),
		MaxImageBytes:    cfg.Server.MaxUploadBytes,
		SaveFramePath:    cfg.Camera.SavePath,
		Camera:           cam,
		Emitter:          a.emitter,
	}
	if cfg.Cache.Enabled {
		opts.CacheEntries = cfg.Cache.MaxEntries
		opts.CacheMaxDistance = cfg.Cache.MaxDistance
	}

	a.svc, err = service.New(reg, engine, model, opts)
	if err != nil {
		a.close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *app) close(ctx context.Context) {
	if cam := a.svcCamera(); cam != nil {
		if err := cam.Stop(); err != nil {
			slog.Warn("camera release failed", "error", err)
		}
	}
	a.emitter.Close(ctx)
	if a.model != nil {
		if err := a.model.Close(); err != nil {
			slog.Warn("model close failed", "error", err)
		}
	}
}

func (a *app) svcCamera() *camera.Session {
	if a.svc == nil {
		return nil
	}
	return a.svc.Camera()
}

func newEngine(d config.DecisionConfig) (*decision.Engine, error) {
	return decision.NewEngine(decision.Thresholds{
		Confident: d.ConfidentThreshold,
		Tentative: d.TentativeThreshold,
	})
}

func buildSinks(cfgs []config.SinkConfig) ([]events.Sink, error) {
	var sinks []events.Sink
	for i, sc := range cfgs {
		switch strings.ToLower(strings.TrimSpace(sc.Type)) {
		case "file_jsonl":
			s, err := events.NewFileSink(sc.Path)
			if err != nil {
				closeSinks(sinks)
				return nil, fmt.Errorf("events sink %d: %w", i, err)
			}
			sinks = append(sinks, s)
		case "webhook":
			s, err := events.NewWebhookSink(sc.URL, sc.Headers, sc.Timeout.Std())
			if err != nil {
				closeSinks(sinks)
				return nil, fmt.Errorf("events sink %d: %w", i, err)
			}
			sinks = append(sinks, s)
		default:
			closeSinks(sinks)
			return nil, fmt.Errorf("events sink %d has unknown type %q", i, sc.Type)
		}
	}
	return sinks, nil
}

func closeSinks(sinks []events.Sink) {
	for _, s := range sinks {
		_ = s.Close(context.Background())
	}
}

// buildCamera returns nil when no camera is configured.
func buildCamera(c config.CameraConfig) (*camera.Session, error) {
	var (
		src camera.Source
		err error
	)
	switch strings.ToLower(strings.TrimSpace(c.Type)) {
	case "", "none":
		return nil, nil
	case "http":
		src, err = camera.NewHTTPSource(c.URL, c.Headers)
	case "file":
		src, err = camera.NewFileSource(c.Path)
	default:
		return nil, fmt.Errorf("unknown camera type %q", c.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("camera: %w", err)
	}
	return camera.NewSession(src, c.CaptureTimeout.Std()), nil
}

// setupLogger installs the process-wide slog handler.
func setupLogger(w io.Writer, lc config.LoggingConfig) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: parseLogLevel(lc.Level)}

	var h slog.Handler
	if strings.EqualFold(lc.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var errNoImages = errors.New("at least one image path is required")
