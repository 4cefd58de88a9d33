// Package config - Configuration for the detection inspection tool.
package config

import (
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned (wrapped) when a configuration fails validation.
var ErrInvalid = errors.New("invalid configuration")

// Backend identifies the runtime used to execute the model artifact.
type Backend string

const (
	// BackendTensorFlow executes a frozen TensorFlow graph (.pb).
	BackendTensorFlow Backend = "tensorflow"
	// BackendONNX executes an ONNX export of the detection graph with onnxruntime.
	BackendONNX Backend = "onnx"
	// BackendOpenCV executes the graph with the OpenCV DNN module.
	BackendOpenCV Backend = "opencv"
)

// Backends lists every supported backend.
var Backends = []Backend{BackendTensorFlow, BackendONNX, BackendOpenCV}

// DisplayMode selects how annotated images are presented.
type DisplayMode string

const (
	// DisplayInteractive shows each image in a window and blocks on a keypress.
	DisplayInteractive DisplayMode = "interactive"
	// DisplayHeadless writes each annotated image to the output directory.
	DisplayHeadless DisplayMode = "headless"
)

// Tensors holds the graph node names used to feed and fetch the model.
type Tensors struct {
	Input         string `json:"input" yaml:"input"`
	Boxes         string `json:"boxes" yaml:"boxes"`
	Scores        string `json:"scores" yaml:"scores"`
	Classes       string `json:"classes" yaml:"classes"`
	NumDetections string `json:"num_detections" yaml:"num_detections"`
}

// Outputs returns the output names in the fixed fetch order: boxes, scores, classes, count.
func (t Tensors) Outputs() []string {
	return []string{t.Boxes, t.Scores, t.Classes, t.NumDetections}
}

// ONNXConfig holds onnxruntime specific settings.
type ONNXConfig struct {
	// LibraryPath overrides the onnxruntime shared library location.
	LibraryPath string `json:"library_path" yaml:"library_path"`
	// Provider is the execution provider: cpu, cuda, coreml or openvino.
	Provider string `json:"provider" yaml:"provider"`
	// DeviceID is passed to the cuda and openvino providers.
	DeviceID string `json:"device_id" yaml:"device_id"`
	// Threads sets the intra-op thread count (0 lets onnxruntime decide).
	Threads int `json:"threads" yaml:"threads"`
}

// ModelConfig describes the model artifact and how to execute it.
type ModelConfig struct {
	// Path is the model artifact (frozen graph, ONNX file or OpenCV weights).
	Path string `json:"path" yaml:"path"`
	// ConfigPath is the optional OpenCV text graph (.pbtxt) for the opencv backend.
	ConfigPath string `json:"config_path" yaml:"config_path"`
	// Backend selects the runtime.
	Backend Backend `json:"backend" yaml:"backend"`
	// InputSize resizes every image before inference when non-zero.
	InputSize image.Point `json:"input_size" yaml:"input_size"`
	// Tensors names the graph inputs and outputs.
	Tensors Tensors `json:"tensors" yaml:"tensors"`
	// ONNX holds onnxruntime settings, used only by the onnx backend.
	ONNX ONNXConfig `json:"onnx" yaml:"onnx"`
}

// LabelsConfig describes the label map.
type LabelsConfig struct {
	Path           string `json:"path" yaml:"path"`
	NumClasses     int    `json:"num_classes" yaml:"num_classes"`
	UseDisplayName bool   `json:"use_display_name" yaml:"use_display_name"`
}

// ImagesConfig describes where the images come from.
type ImagesConfig struct {
	Dir       string `json:"dir" yaml:"dir"`
	Extension string `json:"extension" yaml:"extension"`
}

// AnnotateConfig controls how detections are drawn.
type AnnotateConfig struct {
	// MinScore is the exclusive lower bound a score must exceed to be drawn.
	MinScore float32 `json:"min_score" yaml:"min_score"`
	// LineThickness is the box outline thickness in pixels.
	LineThickness int `json:"line_thickness" yaml:"line_thickness"`
	// MaxBoxes caps how many detections are considered per image.
	MaxBoxes int `json:"max_boxes" yaml:"max_boxes"`
}

// DisplayConfig controls how annotated images are presented.
type DisplayConfig struct {
	Mode        DisplayMode `json:"mode" yaml:"mode"`
	WindowTitle string      `json:"window_title" yaml:"window_title"`
	OutputDir   string      `json:"output_dir" yaml:"output_dir"`
	// Report writes a JSON summary of the run into OutputDir.
	Report bool `json:"report" yaml:"report"`
}

// RunConfig controls the batch driver.
type RunConfig struct {
	// ContinueOnError records a failed image and moves on instead of stopping the run.
	ContinueOnError bool `json:"continue_on_error" yaml:"continue_on_error"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Config is the complete configuration, passed explicitly at construction.
type Config struct {
	Model    ModelConfig    `json:"model" yaml:"model"`
	Labels   LabelsConfig   `json:"labels" yaml:"labels"`
	Images   ImagesConfig   `json:"images" yaml:"images"`
	Annotate AnnotateConfig `json:"annotate" yaml:"annotate"`
	Display  DisplayConfig  `json:"display" yaml:"display"`
	Run      RunConfig      `json:"run" yaml:"run"`
	Log      LogConfig      `json:"log" yaml:"log"`
}

// DefaultTensors returns the node names exported by the TensorFlow object detection API.
func DefaultTensors() Tensors {
	return Tensors{
		Input:         "image_tensor",
		Boxes:         "detection_boxes",
		Scores:        "detection_scores",
		Classes:       "detection_classes",
		NumDetections: "num_detections",
	}
}

// Default returns the configuration matching the conventional project layout: the frozen graph
// under inference_graph/, the label map under training/ and test images under tests/.
//
// Returns:
//   - Config: A configuration that passes Validate.
func Default() Config {
	return Config{
		Model: ModelConfig{
			Path:    filepath.Join("inference_graph", "frozen_inference_graph.pb"),
			Backend: BackendTensorFlow,
			Tensors: DefaultTensors(),
			ONNX:    ONNXConfig{Provider: "cpu"},
		},
		Labels: LabelsConfig{
			Path:           filepath.Join("training", "labelmap.pbtxt"),
			NumClasses:     4,
			UseDisplayName: true,
		},
		Images: ImagesConfig{
			Dir:       "tests",
			Extension: ".jpg",
		},
		Annotate: AnnotateConfig{
			MinScore:      0.60,
			LineThickness: 8,
			MaxBoxes:      20,
		},
		Display: DisplayConfig{
			Mode:        DisplayInteractive,
			WindowTitle: "Object detector",
			OutputDir:   "output",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML file on top of the defaults. Keys missing from the file keep their default.
//
// Arguments:
//   - path: The YAML file to read.
//
// Returns:
//   - Config: The merged configuration (not yet validated).
//   - error: An error if the file cannot be read or parsed.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}

	return cfg, nil
}

// Validate checks the configuration once, before anything is acquired.
//
// Returns:
//   - error: nil, or an error wrapping ErrInvalid describing the first problem found.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Model.Path) == "" {
		return errors.Wrap(ErrInvalid, "model.path is required")
	}
	if !c.Model.Backend.Valid() {
		return errors.Wrapf(ErrInvalid, "model.backend %q is not one of %v", c.Model.Backend, Backends)
	}
	if c.Model.InputSize.X < 0 || c.Model.InputSize.Y < 0 {
		return errors.Wrapf(ErrInvalid, "model.input_size must not be negative, got %v", c.Model.InputSize)
	}
	if (c.Model.InputSize.X == 0) != (c.Model.InputSize.Y == 0) {
		return errors.Wrapf(ErrInvalid, "model.input_size needs both dimensions, got %v", c.Model.InputSize)
	}
	t := c.Model.Tensors
	for _, name := range append([]string{t.Input}, t.Outputs()...) {
		if name == "" {
			return errors.Wrap(ErrInvalid, "model.tensors names must not be empty")
		}
	}
	if strings.TrimSpace(c.Labels.Path) == "" {
		return errors.Wrap(ErrInvalid, "labels.path is required")
	}
	if c.Labels.NumClasses < 1 {
		return errors.Wrapf(ErrInvalid, "labels.num_classes must be at least 1, got %d", c.Labels.NumClasses)
	}
	if !strings.HasPrefix(c.Images.Extension, ".") {
		return errors.Wrapf(ErrInvalid, "images.extension must start with a dot, got %q", c.Images.Extension)
	}
	if c.Annotate.MinScore < 0 || c.Annotate.MinScore > 1 {
		return errors.Wrapf(ErrInvalid, "annotate.min_score must be within [0,1], got %v", c.Annotate.MinScore)
	}
	if c.Annotate.LineThickness < 1 {
		return errors.Wrapf(ErrInvalid, "annotate.line_thickness must be positive, got %d", c.Annotate.LineThickness)
	}
	if c.Annotate.MaxBoxes < 1 {
		return errors.Wrapf(ErrInvalid, "annotate.max_boxes must be positive, got %d", c.Annotate.MaxBoxes)
	}
	switch c.Display.Mode {
	case DisplayInteractive:
	case DisplayHeadless:
		if c.Display.OutputDir == "" {
			return errors.Wrap(ErrInvalid, "display.output_dir is required in headless mode")
		}
	default:
		return errors.Wrapf(ErrInvalid, "display.mode %q is not interactive or headless", c.Display.Mode)
	}
	if c.Display.Report && c.Display.Mode != DisplayHeadless {
		return errors.Wrap(ErrInvalid, "display.report requires headless mode")
	}

	return nil
}

// Valid reports whether b names a supported backend.
func (b Backend) Valid() bool {
	for _, known := range Backends {
		if b == known {
			return true
		}
	}
	return false
}
