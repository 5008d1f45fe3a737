package classifier

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Options configures LoadModel.
type Options struct {
	ModelPath         string
	SharedLibraryPath string
	InputName         string
	OutputName        string
	InputSize         int
	ApplySoftmax      bool

	// SHA256, when set, must match the model file's hex digest.
	SHA256 string

	// Labels are the category names in output order. The label count must
	// match the model's output width.
	Labels []string
}

// Result is the classifier's view of one image. ClassIndex, ClassName and
// Confidence describe the classifier's own top class and are advisory.
type Result struct {
	Predictions []float64 `json:"predictions"`
	ClassIndex  int       `json:"class_index"`
	ClassName   string    `json:"class_name"`
	Confidence  float64   `json:"class_confidence"`
}

// Model wraps the ONNX session and its pre-allocated tensors.
type Model struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	labels  []string
	size    int
	softmax bool

	mu sync.Mutex
}

// LoadModel initializes the ONNX runtime and a session for an NHWC image
// model with a single float output row.
func LoadModel(opts Options) (*Model, error) {
	if strings.TrimSpace(opts.ModelPath) == "" {
		return nil, errors.New("model path is empty")
	}
	if len(opts.Labels) == 0 {
		return nil, errors.New("no labels for model outputs")
	}
	if opts.InputSize <= 0 {
		opts.InputSize = DefaultInputSize
	}

	libPath := resolveSharedLibraryPath(opts.SharedLibraryPath, filepath.Dir(opts.ModelPath))
	if libPath == "" {
		return nil, fmt.Errorf("onnxruntime shared library not found; set ONNXRUNTIME_SHARED_LIBRARY_PATH or install the runtime")
	}
	ort.SetSharedLibraryPath(libPath)
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}

	if _, err := os.Stat(opts.ModelPath); err != nil {
		return nil, fmt.Errorf("model file missing at %s: %w", opts.ModelPath, err)
	}
	if err := VerifyChecksum(opts.ModelPath, opts.SHA256); err != nil {
		return nil, err
	}

	inputName, outputName, outputWidth, err := resolveIO(opts)
	if err != nil {
		return nil, err
	}
	if outputWidth > 0 && outputWidth != len(opts.Labels) {
		return nil, fmt.Errorf("model has %d outputs but %d labels were given", outputWidth, len(opts.Labels))
	}

	inputShape := ort.NewShape(1, int64(opts.InputSize), int64(opts.InputSize), 3)
	input, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("allocate input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(opts.Labels))))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		opts.ModelPath,
		[]string{inputName},
		[]string{outputName},
		[]ort.Value{input},
		[]ort.Value{output},
		nil,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	labels := make([]string, len(opts.Labels))
	copy(labels, opts.Labels)

	return &Model{
		session: session,
		input:   input,
		output:  output,
		labels:  labels,
		size:    opts.InputSize,
		softmax: opts.ApplySoftmax,
	}, nil
}

// resolveIO fills in tensor names the options left empty from the model's
// declared inputs and outputs.
func resolveIO(opts Options) (inputName, outputName string, outputWidth int, err error) {
	inputName, outputName = opts.InputName, opts.OutputName

	inputs, outputs, err := ort.GetInputOutputInfo(opts.ModelPath)
	if err != nil {
		if inputName != "" && outputName != "" {
			return inputName, outputName, 0, nil
		}
		return "", "", 0, fmt.Errorf("inspect model io: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return "", "", 0, errors.New("model declares no inputs or outputs")
	}
	if inputName == "" {
		inputName = inputs[0].Name
	}
	if outputName == "" {
		outputName = outputs[0].Name
	}
	for _, o := range outputs {
		if o.Name != outputName {
			continue
		}
		if n := len(o.Dimensions); n > 0 && o.Dimensions[n-1] > 0 {
			outputWidth = int(o.Dimensions[n-1])
		}
	}
	return inputName, outputName, outputWidth, nil
}

// Classify runs the model on img. The context is checked before the run;
// an inference in progress cannot be interrupted.
func (m *Model) Classify(ctx context.Context, img image.Image) (*Result, error) {
	if m == nil || m.session == nil {
		return nil, errors.New("classifier model not initialized")
	}
	if img == nil {
		return nil, errors.New("nil image")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fillInput(m.input.GetData(), img, m.size)
	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}

	return buildResult(m.output.GetData(), m.labels, m.softmax), nil
}

// Labels returns the label names in output order.
func (m *Model) Labels() []string {
	out := make([]string, len(m.labels))
	copy(out, m.labels)
	return out
}

// Close releases the session and tensors.
func (m *Model) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	if m.session != nil {
		errs = append(errs, m.session.Destroy())
		m.session = nil
	}
	if m.input != nil {
		errs = append(errs, m.input.Destroy())
		m.input = nil
	}
	if m.output != nil {
		errs = append(errs, m.output.Destroy())
		m.output = nil
	}
	return errors.Join(errs...)
}

func buildResult(raw []float32, labels []string, applySoftmax bool) *Result {
	n := len(raw)
	if n > len(labels) {
		n = len(labels)
	}
	preds := make([]float64, n)
	for i := 0; i < n; i++ {
		preds[i] = float64(raw[i])
	}
	if applySoftmax {
		softmax(preds)
	}

	res := &Result{Predictions: preds, ClassIndex: -1}
	for i, v := range preds {
		if res.ClassIndex < 0 || v > res.Confidence {
			res.ClassIndex = i
			res.Confidence = v
		}
	}
	if res.ClassIndex >= 0 {
		res.ClassName = labels[res.ClassIndex]
	}
	return res
}

func softmax(v []float64) {
	if len(v) == 0 {
		return
	}
	maxVal := math.Inf(-1)
	for _, x := range v {
		if x > maxVal {
			maxVal = x
		}
	}
	var sum float64
	for i, x := range v {
		v[i] = math.Exp(x - maxVal)
		sum += v[i]
	}
	if sum == 0 || math.IsNaN(sum) {
		return
	}
	for i := range v {
		v[i] /= sum
	}
}

// resolveSharedLibraryPath locates a platform-specific onnxruntime shared
// library. ONNXRUNTIME_SHARED_LIBRARY_PATH wins, then the configured path,
// then common names under the model directory and system library dirs.
func resolveSharedLibraryPath(configured, modelDir string) string {
	if env := strings.TrimSpace(os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")); env != "" {
		return env
	}
	if configured = strings.TrimSpace(configured); configured != "" {
		return configured
	}

	names := []string{
		"libonnxruntime.dylib",
		"onnxruntime.dylib",
		"libonnxruntime.so",
		"onnxruntime.so",
		"onnxruntime.dll",
	}
	dirs := []string{
		modelDir,
		filepath.Join(modelDir, "lib"),
		".",
		"/opt/homebrew/lib",
		"/usr/local/lib",
		"/usr/lib",
	}

	for _, dir := range dirs {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}
