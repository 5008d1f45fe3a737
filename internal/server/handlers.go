package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"mime"
	"net/http"
	"strconv"

	"github.com/straja-ai/ulap/internal/auth"
	"github.com/straja-ai/ulap/internal/camera"
	"github.com/straja-ai/ulap/internal/decision"
	"github.com/straja-ai/ulap/internal/events"
	"github.com/straja-ai/ulap/internal/imageio"
	"github.com/straja-ai/ulap/internal/redact"
	"github.com/straja-ai/ulap/internal/registry"
	"github.com/straja-ai/ulap/internal/render"
	"github.com/straja-ai/ulap/internal/service"
)

// uploadField is the multipart field holding the image.
const uploadField = "image"

type categoriesResponse struct {
	Count      int               `json:"count"`
	Categories []registry.Record `json:"categories"`
}

type classifyResponse struct {
	render.View
	Text             string            `json:"text"`
	AdvisoryMismatch bool              `json:"advisory_mismatch,omitempty"`
	Cached           bool              `json:"cached"`
	ImageHash        string            `json:"image_hash,omitempty"`
	LatencyMs        float64           `json:"latency_ms"`
	Metadata         *imageio.Metadata `json:"metadata,omitempty"`
	Predictions      []float64         `json:"predictions,omitempty"`
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	recs := s.svc.Registry().Records()
	writeJSON(w, http.StatusOK, categoriesResponse{Count: len(recs), Categories: recs})
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	data, name, status, err := s.readUpload(r)
	if err != nil {
		writeProblem(w, r, status, err.Error())
		return
	}

	res, err := s.svc.ClassifyBytes(r.Context(), events.SourceUpload, name, data)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeResult(w, r, res)
}

// readUpload accepts either a multipart form with an "image" field or a raw
// image body. An empty raw body is passed through and ends up unreadable.
func (s *Server) readUpload(r *http.Request) ([]byte, string, int, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
			return nil, "", uploadErrorStatus(err), errors.New("invalid multipart upload")
		}
		defer r.MultipartForm.RemoveAll()

		f, hdr, err := r.FormFile(uploadField)
		if err != nil {
			return nil, "", http.StatusBadRequest, errors.New(`multipart field "image" is required`)
		}
		defer f.Close()

		data, err := io.ReadAll(f)
		if err != nil {
			return nil, "", http.StatusBadRequest, errors.New("failed to read uploaded file")
		}
		return data, hdr.Filename, 0, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", uploadErrorStatus(err), errors.New("failed to read request body")
	}
	return data, r.URL.Query().Get("name"), 0, nil
}

func uploadErrorStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func (s *Server) handleCameraStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Camera().Status())
}

func (s *Server) handleCameraStart(w http.ResponseWriter, r *http.Request) {
	cam := s.svc.Camera()
	if err := cam.Start(r.Context()); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	slog.Info("camera started", "client", auth.ClientFromContext(r.Context()).ID)
	writeJSON(w, http.StatusOK, cam.Status())
}

func (s *Server) handleCameraStop(w http.ResponseWriter, r *http.Request) {
	cam := s.svc.Camera()
	if cam == nil {
		s.writeServiceError(w, r, camera.ErrDisabled)
		return
	}
	if err := cam.Stop(); err != nil {
		slog.Warn("camera stop failed", "error", err)
	}
	writeJSON(w, http.StatusOK, cam.Status())
}

// handleCameraCapture grabs a frame from a live camera and classifies it.
// With ?auto_start=true the camera is opened for this one capture.
func (s *Server) handleCameraCapture(w http.ResponseWriter, r *http.Request) {
	autoStart, _ := strconv.ParseBool(r.URL.Query().Get("auto_start"))

	res, err := s.svc.CaptureAndClassify(r.Context(), autoStart)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeResult(w, r, res)
}

func (s *Server) writeResult(w http.ResponseWriter, r *http.Request, res *service.Result) {
	view := render.Outcome(res.Outcome)
	body := classifyResponse{
		View:             view,
		Text:             render.Text(view),
		AdvisoryMismatch: res.Outcome.AdvisoryMismatch,
		Cached:           res.Cached,
		ImageHash:        res.ImageHash,
		LatencyMs:        float64(res.Latency.Microseconds()) / 1000,
		Metadata:         res.Metadata,
	}
	if wantScores(r) && res.Prediction != nil && allFinite(res.Prediction.Predictions) {
		body.Predictions = res.Prediction.Predictions
	}
	writeJSON(w, outcomeStatus(res.Outcome), body)
}

// outcomeStatus maps a decision to an HTTP status. Reportable and
// inconclusive outcomes are successful requests.
func outcomeStatus(out decision.Outcome) int {
	if out.Tier != decision.TierFailed {
		return http.StatusOK
	}
	if out.Reason == decision.ImageUnreadable {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, camera.ErrDisabled):
		writeProblem(w, r, http.StatusNotFound, "No camera is configured")
	case errors.Is(err, camera.ErrNotStarted):
		writeProblem(w, r, http.StatusConflict, "Camera is not open. Start the camera first.")
	case errors.Is(err, camera.ErrOpenFailed):
		slog.Error("camera open failed", "error", redact.String(err.Error()))
		writeProblem(w, r, http.StatusBadGateway, "Camera could not be opened")
	case errors.Is(err, camera.ErrCaptureFailed):
		writeProblem(w, r, http.StatusBadGateway, "Error capturing image")
	case errors.Is(err, service.ErrInferenceTimeout):
		writeProblem(w, r, http.StatusGatewayTimeout, "Classifier did not answer in time")
	case errors.Is(err, context.Canceled):
		writeProblem(w, r, http.StatusServiceUnavailable, "Request cancelled")
	default:
		slog.Error("classification failed", "path", r.URL.Path, "error", err)
		writeProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
	}
}

func wantScores(r *http.Request) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get("scores"))
	return v
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
