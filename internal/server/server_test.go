package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/straja-ai/ulap/internal/auth"
	"github.com/straja-ai/ulap/internal/camera"
	"github.com/straja-ai/ulap/internal/classifier"
	"github.com/straja-ai/ulap/internal/config"
	"github.com/straja-ai/ulap/internal/decision"
	"github.com/straja-ai/ulap/internal/registry"
	"github.com/straja-ai/ulap/internal/service"
)

type stubClassifier struct {
	scores []float64
}

func (s *stubClassifier) Classify(context.Context, image.Image) (*classifier.Result, error) {
	idx, conf := decision.Argmax(s.scores)
	return &classifier.Result{
		Predictions: append([]float64(nil), s.scores...),
		ClassIndex:  idx,
		Confidence:  conf,
	}, nil
}

type frameSource struct {
	frame   []byte
	openErr error
}

func (f *frameSource) Name() string { return "test" }

func (f *frameSource) Open(context.Context) (camera.Device, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return frameDevice{f.frame}, nil
}

type frameDevice struct{ frame []byte }

func (d frameDevice) ReadFrame(context.Context) ([]byte, error) { return d.frame, nil }
func (d frameDevice) Close() error                              { return nil }

type fixture struct {
	keys   []string
	scores []float64
	cam    *camera.Session
	limit  int64
}

func newTestServer(t *testing.T, f fixture) *Server {
	t.Helper()
	reg, err := registry.Build(
		[]string{"Cirrus", "Cumulus", "Stratus"},
		[]string{"wispy", "puffy", "flat"},
		[]string{"fair", "fair", "overcast"},
	)
	require.NoError(t, err)

	if f.scores == nil {
		f.scores = []float64{0.85, 0.1, 0.05}
	}
	eng, err := decision.NewEngine(decision.DefaultThresholds())
	require.NoError(t, err)
	svc, err := service.New(reg, eng, &stubClassifier{scores: f.scores}, service.Options{
		Camera: f.cam,
	})
	require.NoError(t, err)

	authz, err := auth.New(f.keys)
	require.NoError(t, err)

	return New(config.ServerConfig{Addr: ":0", MaxUploadBytes: f.limit}, authz, svc, Options{Version: "test"})
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for x := 0; x < 16; x++ {
		for y := 0; y < 16; y++ {
			img.Set(x, y, color.RGBA{uint8(x * 16), 100, 200, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func do(t *testing.T, s *Server, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	var body map[string]any
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	}
	return rr, body
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, fixture{keys: []string{"k"}})
	rr, body := do(t, s, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.EqualValues(t, 3, body["categories"])
}

func TestCategories(t *testing.T) {
	s := newTestServer(t, fixture{})
	rr, body := do(t, s, httptest.NewRequest(http.MethodGet, "/v1/categories", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 3, body["count"])
	cats := body["categories"].([]any)
	first := cats[0].(map[string]any)
	assert.Equal(t, "Cirrus", first["name"])
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t, fixture{keys: []string{"secret"}})

	rr, body := do(t, s, httptest.NewRequest(http.MethodGet, "/v1/categories", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	assert.EqualValues(t, 401, body["status"])

	req := httptest.NewRequest(http.MethodGet, "/v1/categories", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rr, _ = do(t, s, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/categories", nil)
	req.Header.Set("X-API-Key", "secret")
	rr, _ = do(t, s, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/categories", nil)
	req.Header.Set("X-API-Key", "wrong")
	rr, _ = do(t, s, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestClassifyRawBody(t *testing.T) {
	s := newTestServer(t, fixture{})
	req := httptest.NewRequest(http.MethodPost, "/v1/classify?scores=true", bytes.NewReader(testPNG(t)))
	req.Header.Set("Content-Type", "image/png")

	rr, body := do(t, s, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "confident", body["status"])
	assert.Equal(t, "Cirrus", body["category"])
	assert.Equal(t, "85.00%", body["confidence_pct"])
	assert.Equal(t, "wispy", body["description"])
	assert.Equal(t, "fair", body["indication"])
	assert.Len(t, body["predictions"], 3)
	assert.Contains(t, body["text"], "AI Prediction: Cirrus")
}

func TestClassifyMultipart(t *testing.T) {
	s := newTestServer(t, fixture{scores: []float64{0.3, 0.6, 0.1}})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", "sky.png")
	require.NoError(t, err)
	_, err = fw.Write(testPNG(t))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/classify", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rr, body := do(t, s, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "tentative", body["status"])
	assert.Equal(t, "Cumulus", body["category"])
	assert.Nil(t, body["predictions"])
}

func TestClassifyMultipartMissingField(t *testing.T) {
	s := newTestServer(t, fixture{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("other", "x"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/classify", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rr, _ := do(t, s, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestClassifyInconclusiveIsOK(t *testing.T) {
	s := newTestServer(t, fixture{scores: []float64{0.4, 0.35, 0.25}})
	rr, body := do(t, s, httptest.NewRequest(http.MethodPost, "/v1/classify", bytes.NewReader(testPNG(t))))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "inconclusive", body["status"])
	assert.Nil(t, body["category"])
	assert.Nil(t, body["description"])
}

func TestClassifyUnreadableIs422(t *testing.T) {
	s := newTestServer(t, fixture{})
	rr, body := do(t, s, httptest.NewRequest(http.MethodPost, "/v1/classify", bytes.NewReader([]byte("GIF? no"))))

	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "failed", body["status"])
	assert.Equal(t, "image_unreadable", body["reason"])
}

func TestClassifySchemaMismatchIs500(t *testing.T) {
	s := newTestServer(t, fixture{scores: []float64{0.9, 0.1}})
	rr, body := do(t, s, httptest.NewRequest(http.MethodPost, "/v1/classify", bytes.NewReader(testPNG(t))))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "prediction_schema_mismatch", body["reason"])
}

func TestClassifyTooLarge(t *testing.T) {
	s := newTestServer(t, fixture{limit: 16})
	rr, body := do(t, s, httptest.NewRequest(http.MethodPost, "/v1/classify", bytes.NewReader(testPNG(t))))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.EqualValues(t, 413, body["status"])
}

func TestCameraLifecycle(t *testing.T) {
	cam := camera.NewSession(&frameSource{frame: testPNG(t)}, time.Second)
	s := newTestServer(t, fixture{cam: cam})

	rr, body := do(t, s, httptest.NewRequest(http.MethodPost, "/v1/camera/capture", nil))
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, body["detail"], "not open")

	rr, body = do(t, s, httptest.NewRequest(http.MethodPost, "/v1/camera/start", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "live", body["state"])

	rr, body = do(t, s, httptest.NewRequest(http.MethodPost, "/v1/camera/capture", nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "Cirrus", body["category"])

	rr, body = do(t, s, httptest.NewRequest(http.MethodGet, "/v1/camera", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "idle", body["state"], "capture releases the camera")

	rr, _ = do(t, s, httptest.NewRequest(http.MethodPost, "/v1/camera/capture?auto_start=true", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr, body = do(t, s, httptest.NewRequest(http.MethodPost, "/v1/camera/stop", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "idle", body["state"])
}

func TestCameraOpenFailure(t *testing.T) {
	cam := camera.NewSession(&frameSource{openErr: errors.New("dial tcp: connection refused")}, time.Second)
	s := newTestServer(t, fixture{cam: cam})

	for _, path := range []string{"/v1/camera/start", "/v1/camera/capture?auto_start=true"} {
		rr, body := do(t, s, httptest.NewRequest(http.MethodPost, path, nil))
		assert.Equal(t, http.StatusBadGateway, rr.Code, path)
		assert.Equal(t, "Camera could not be opened", body["detail"])
	}
}

func TestCameraDisabled(t *testing.T) {
	s := newTestServer(t, fixture{})

	for _, path := range []string{"/v1/camera/start", "/v1/camera/stop", "/v1/camera/capture"} {
		rr, _ := do(t, s, httptest.NewRequest(http.MethodPost, path, nil))
		assert.Equal(t, http.StatusNotFound, rr.Code, path)
	}

	rr, body := do(t, s, httptest.NewRequest(http.MethodGet, "/v1/camera", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "none", body["source"])
}

func TestUnknownRouteIsProblem(t *testing.T) {
	s := newTestServer(t, fixture{})
	rr, body := do(t, s, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "/nope", body["instance"])
}

func TestOutcomeStatus(t *testing.T) {
	assert.Equal(t, http.StatusOK, outcomeStatus(decision.Outcome{Tier: decision.TierTentative}))
	assert.Equal(t, http.StatusOK, outcomeStatus(decision.Outcome{Tier: decision.TierInconclusive}))
	assert.Equal(t, http.StatusUnprocessableEntity, outcomeStatus(decision.Failed(decision.ImageUnreadable)))
	assert.Equal(t, http.StatusInternalServerError, outcomeStatus(decision.Failed(decision.MissingCategoryData)))
}

func TestRunShutsDownOnCancel(t *testing.T) {
	s := newTestServer(t, fixture{})
	s.cfg.Addr = "127.0.0.1:0"
	s.cfg.ShutdownTimeout = config.Duration(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}
