// Package service runs the classify pipeline: load the image, run the
// classifier, apply the decision engine and record the outcome.
package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/straja-ai/ulap/internal/camera"
	"github.com/straja-ai/ulap/internal/classifier"
	"github.com/straja-ai/ulap/internal/decision"
	"github.com/straja-ai/ulap/internal/events"
	"github.com/straja-ai/ulap/internal/imageio"
	"github.com/straja-ai/ulap/internal/registry"
)

// Classifier produces per-category scores for an image.
type Classifier interface {
	Classify(ctx context.Context, img image.Image) (*classifier.Result, error)
}

// ErrInferenceTimeout is returned when the classifier does not answer in time.
var ErrInferenceTimeout = errors.New("classifier timed out")

// Options tunes a Service. Zero values disable the optional parts.
type Options struct {
	InferenceTimeout time.Duration
	MaxImageBytes    int64

	CacheEntries     int
	CacheMaxDistance int

	// SaveFramePath, when set, receives every captured camera frame.
	SaveFramePath string

	Camera  *camera.Session
	Emitter *events.Emitter
}

// Result is one classification with the context a caller may show.
type Result struct {
	Outcome    decision.Outcome
	Prediction *classifier.Result
	Metadata   *imageio.Metadata
	ImageHash  string
	Cached     bool
	Latency    time.Duration
}

// Service is safe for concurrent use.
type Service struct {
	reg    *registry.Registry
	engine *decision.Engine
	clf    Classifier
	cache  *predictionCache
	opts   Options
}

// New wires a service. reg, engine and clf are required.
func New(reg *registry.Registry, engine *decision.Engine, clf Classifier, opts Options) (*Service, error) {
	if reg == nil || reg.Size() == 0 {
		return nil, errors.New("service: registry is empty")
	}
	if engine == nil {
		return nil, errors.New("service: decision engine is nil")
	}
	if clf == nil {
		return nil, errors.New("service: classifier is nil")
	}
	return &Service{
		reg:    reg,
		engine: engine,
		clf:    clf,
		cache:  newPredictionCache(opts.CacheEntries, opts.CacheMaxDistance),
		opts:   opts,
	}, nil
}

// Registry returns the category registry.
func (s *Service) Registry() *registry.Registry { return s.reg }

// Camera returns the capture session, or nil when no camera is configured.
func (s *Service) Camera() *camera.Session { return s.opts.Camera }

// ClassifyFile classifies the image at path. A file that cannot be read or
// decoded yields a Failed(ImageUnreadable) outcome, not an error.
func (s *Service) ClassifyFile(ctx context.Context, path string) (*Result, error) {
	start := time.Now()
	img, err := imageio.Open(path, s.opts.MaxImageBytes)
	return s.classify(ctx, events.SourceFile, path, img, err, start)
}

// ClassifyBytes classifies encoded image bytes from src.
func (s *Service) ClassifyBytes(ctx context.Context, src events.Source, name string, data []byte) (*Result, error) {
	start := time.Now()
	img, err := imageio.Decode(data)
	return s.classify(ctx, src, name, img, err, start)
}

// CaptureAndClassify grabs one frame from the camera and classifies it. The
// capture and the inference share ctx, so cancelling it abandons both. The
// camera is released before classification starts. With autoStart the
// session is opened on demand; otherwise it must already be live.
func (s *Service) CaptureAndClassify(ctx context.Context, autoStart bool) (*Result, error) {
	cam := s.opts.Camera
	if cam == nil {
		return nil, camera.ErrDisabled
	}

	start := time.Now()
	var (
		frame []byte
		err   error
	)
	if autoStart {
		frame, err = cam.CaptureOnce(ctx)
	} else {
		frame, err = s.captureLive(ctx, cam)
	}
	if err != nil {
		return nil, err
	}

	if s.opts.SaveFramePath != "" {
		if err := imageio.SaveFile(s.opts.SaveFramePath, frame); err != nil {
			slog.Warn("service: saving captured frame failed", "path", s.opts.SaveFramePath, "error", err)
		}
	}

	img, decodeErr := imageio.Decode(frame)
	return s.classify(ctx, events.SourceCamera, s.opts.SaveFramePath, img, decodeErr, start)
}

func (s *Service) captureLive(ctx context.Context, cam *camera.Session) ([]byte, error) {
	frame, err := cam.Capture(ctx)
	if errors.Is(err, camera.ErrNotStarted) {
		return nil, err
	}
	if stopErr := cam.Stop(); stopErr != nil {
		slog.Warn("service: camera release failed", "error", stopErr)
	}
	return frame, err
}

func (s *Service) classify(ctx context.Context, src events.Source, name string, img *imageio.Image, loadErr error, start time.Time) (*Result, error) {
	if loadErr != nil {
		if !errors.Is(loadErr, imageio.ErrUnreadable) {
			return nil, loadErr
		}
		slog.Info("service: image unreadable", "source", src, "name", name, "error", loadErr)
		res := &Result{Outcome: s.engine.Decide(false, nil, s.reg)}
		return s.finish(src, name, res, start), nil
	}

	pred, cached := s.cache.get(img.Hash)
	if !cached {
		var err error
		pred, err = s.infer(ctx, img.Image)
		if err != nil {
			return nil, err
		}
		s.cache.put(img.Hash, pred)
	}

	classIndex := pred.ClassIndex
	out := s.engine.DecidePrediction(true, decision.Prediction{
		Scores:     pred.Predictions,
		ClassIndex: &classIndex,
		ClassName:  pred.ClassName,
	}, s.reg)

	res := &Result{
		Outcome:    out,
		Prediction: pred,
		Metadata:   img.Metadata,
		ImageHash:  img.HashString(),
		Cached:     cached,
	}
	return s.finish(src, name, res, start), nil
}

func (s *Service) finish(src events.Source, name string, res *Result, start time.Time) *Result {
	res.Latency = time.Since(start)

	ev := events.NewEvent(src, name, res.Outcome, res.Latency)
	ev.Cached = res.Cached
	ev.ImageHash = res.ImageHash
	s.opts.Emitter.Emit(ev)

	slog.Debug("service: classified",
		"source", src,
		"tier", res.Outcome.Tier,
		"reason", res.Outcome.Reason,
		"cached", res.Cached,
		"latency_ms", ev.LatencyMs)
	return res
}

// infer runs the classifier bounded by ctx and the inference timeout. The
// classifier call itself cannot be interrupted; on timeout its result is
// discarded.
func (s *Service) infer(ctx context.Context, img image.Image) (*classifier.Result, error) {
	if s.opts.InferenceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.InferenceTimeout)
		defer cancel()
	}

	type reply struct {
		res *classifier.Result
		err error
	}
	ch := make(chan reply, 1)
	go func() {
		res, err := s.clf.Classify(ctx, img)
		ch <- reply{res, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("classify: %w", r.err)
		}
		if r.res == nil {
			return nil, errors.New("classify: empty result")
		}
		return r.res, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrInferenceTimeout
		}
		return nil, ctx.Err()
	}
}
