package mlscorer

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"gopkg.in/yaml.v3"

	"github.com/contexttype/contexttype/internal/detect"
)

// ErrNotLoaded is returned when inference is requested without a model.
var ErrNotLoaded = errors.New("context model not loaded")

const (
	modelFile      = "context_model.onnx"
	labelsFile     = "label_map.json"
	thresholdsFile = "thresholds.yaml"

	defaultMinConfidence = 0.6
)

// Prediction is the classifier output mapped onto the three contexts.
type Prediction struct {
	Scores     detect.ScoreSet
	Context    detect.Context
	Confidence float64
}

// Predictor classifies text.
type Predictor interface {
	Predict(text string) (Prediction, error)
}

// Model wraps the ONNX session and its fixed input/output tensors.
type Model struct {
	session       *ort.AdvancedSession
	labels        []detect.Context
	minConfidence float64

	input  *ort.Tensor[float32]
	output *ort.Tensor[float32]

	mu sync.Mutex
}

// LoadModel initializes the ONNX session from bundleDir. libPath may be empty,
// in which case the shared library is discovered.
func LoadModel(bundleDir, libPath string) (*Model, error) {
	if bundleDir == "" {
		return nil, errors.New("bundleDir is empty")
	}

	modelPath := filepath.Join(bundleDir, modelFile)
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file missing at %s: %w", modelPath, err)
	}

	labels, err := loadLabels(filepath.Join(bundleDir, labelsFile))
	if err != nil {
		return nil, fmt.Errorf("load labels: %w", err)
	}
	minConf, err := loadMinConfidence(filepath.Join(bundleDir, thresholdsFile))
	if err != nil {
		return nil, fmt.Errorf("load thresholds: %w", err)
	}

	if libPath == "" {
		libPath = resolveSharedLibraryPath(bundleDir)
	}
	if libPath == "" {
		return nil, fmt.Errorf("onnxruntime shared library not found; set ONNXRUNTIME_SHARED_LIBRARY_PATH or install the runtime")
	}
	ort.SetSharedLibraryPath(libPath)
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(NumFeatures)))
	if err != nil {
		return nil, fmt.Errorf("allocate features tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(labels))))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"features"},
		[]string{"probabilities"},
		[]ort.Value{input},
		[]ort.Value{output},
		nil,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	return &Model{
		session:       session,
		labels:        labels,
		minConfidence: minConf,
		input:         input,
		output:        output,
	}, nil
}

// MinConfidence is the cutoff below which callers should not trust a prediction.
func (m *Model) MinConfidence() float64 {
	if m == nil {
		return defaultMinConfidence
	}
	return m.minConfidence
}

// Predict runs inference on text.
func (m *Model) Predict(text string) (Prediction, error) {
	if m == nil || m.session == nil {
		return Prediction{}, ErrNotLoaded
	}
	features := Features(text)

	m.mu.Lock()
	defer m.mu.Unlock()

	copy(m.input.GetData(), features)
	if err := m.session.Run(); err != nil {
		return Prediction{}, fmt.Errorf("onnx run: %w", err)
	}
	return toPrediction(m.labels, m.output.GetData()), nil
}

// Close releases the session and tensors.
func (m *Model) Close() error {
	if m == nil || m.session == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.session.Destroy()
	m.input.Destroy()
	m.output.Destroy()
	m.session = nil
	return err
}

// toPrediction maps raw outputs onto contexts. Outputs that are not already a
// probability distribution are treated as logits.
func toPrediction(labels []detect.Context, raw []float32) Prediction {
	probs := make([]float64, 0, len(raw))
	sum := 0.0
	logits := false
	for i, v := range raw {
		if i >= len(labels) {
			break
		}
		f := float64(v)
		if f < 0 || f > 1 {
			logits = true
		}
		sum += f
		probs = append(probs, f)
	}
	if logits || math.Abs(sum-1) > 1e-3 {
		probs = softmax(probs)
	}

	var scores detect.ScoreSet
	for i, p := range probs {
		scores = addScore(scores, labels[i], p)
	}
	res := detect.Classify(scores)
	return Prediction{Scores: res.Scores, Context: res.Context, Confidence: res.Confidence}
}

func addScore(s detect.ScoreSet, c detect.Context, v float64) detect.ScoreSet {
	switch c {
	case detect.Code:
		s.Code += v
	case detect.Email:
		s.Email += v
	case detect.Chat:
		s.Chat += v
	}
	return s
}

func softmax(xs []float64) []float64 {
	if len(xs) == 0 {
		return xs
	}
	maxV := xs[0]
	for _, x := range xs[1:] {
		maxV = math.Max(maxV, x)
	}
	out := make([]float64, len(xs))
	total := 0.0
	for i, x := range xs {
		out[i] = math.Exp(x - maxV)
		total += out[i]
	}
	for i := range out {
		out[i] /= total
	}
	return out
}

// loadLabels accepts either a JSON array or an index-keyed object.
func loadLabels(path string) ([]detect.Context, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var names []string
	if err := json.Unmarshal(data, &names); err != nil || len(names) == 0 {
		var m map[string]string
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		names = make([]string, len(m))
		for k, v := range m {
			idx, convErr := strconv.Atoi(k)
			if convErr != nil {
				return nil, fmt.Errorf("invalid label index %q: %w", k, convErr)
			}
			if idx < 0 || idx >= len(m) {
				return nil, fmt.Errorf("label index %d out of range", idx)
			}
			names[idx] = v
		}
	}

	out := make([]detect.Context, 0, len(names))
	for _, n := range names {
		c, err := detect.ParseContext(n)
		if err != nil || c == "" {
			return nil, fmt.Errorf("label %q is not a context", n)
		}
		out = append(out, c)
	}
	return out, nil
}

func loadMinConfidence(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultMinConfidence, nil
		}
		return 0, err
	}
	var th struct {
		MinConfidence *float64 `yaml:"min_confidence"`
	}
	if err := yaml.Unmarshal(data, &th); err != nil {
		return 0, err
	}
	if th.MinConfidence == nil {
		return defaultMinConfidence, nil
	}
	if *th.MinConfidence < 0 || *th.MinConfidence > 1 {
		return 0, fmt.Errorf("min_confidence must be within [0,1], got %v", *th.MinConfidence)
	}
	return *th.MinConfidence, nil
}

// resolveSharedLibraryPath locates a platform-specific onnxruntime shared library.
// ONNXRUNTIME_SHARED_LIBRARY_PATH wins; otherwise common names/locations are probed.
func resolveSharedLibraryPath(bundleDir string) string {
	if env := strings.TrimSpace(os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")); env != "" {
		return env
	}

	names := []string{
		"libonnxruntime.dylib",
		"libonnxruntime.so",
		"onnxruntime.dll",
	}
	dirs := []string{
		bundleDir,
		filepath.Join(bundleDir, "lib"),
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
