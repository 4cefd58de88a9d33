package config

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, BackendTensorFlow, cfg.Model.Backend)
	assert.Equal(t, filepath.Join("inference_graph", "frozen_inference_graph.pb"), cfg.Model.Path)
	assert.Equal(t, 4, cfg.Labels.NumClasses)
	assert.Equal(t, ".jpg", cfg.Images.Extension)
	assert.InDelta(t, 0.60, cfg.Annotate.MinScore, 1e-6)
	assert.Equal(t, 8, cfg.Annotate.LineThickness)
	assert.Equal(t, DisplayInteractive, cfg.Display.Mode)
	assert.Equal(t, []string{"detection_boxes", "detection_scores", "detection_classes", "num_detections"},
		cfg.Model.Tensors.Outputs())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty model path", func(c *Config) { c.Model.Path = " " }},
		{"unknown backend", func(c *Config) { c.Model.Backend = "caffe" }},
		{"negative input size", func(c *Config) { c.Model.InputSize = image.Pt(-1, 300) }},
		{"half input size", func(c *Config) { c.Model.InputSize = image.Pt(300, 0) }},
		{"empty tensor name", func(c *Config) { c.Model.Tensors.Scores = "" }},
		{"empty labels path", func(c *Config) { c.Labels.Path = "" }},
		{"zero classes", func(c *Config) { c.Labels.NumClasses = 0 }},
		{"extension without dot", func(c *Config) { c.Images.Extension = "jpg" }},
		{"score above one", func(c *Config) { c.Annotate.MinScore = 1.5 }},
		{"zero thickness", func(c *Config) { c.Annotate.LineThickness = 0 }},
		{"zero max boxes", func(c *Config) { c.Annotate.MaxBoxes = 0 }},
		{"unknown mode", func(c *Config) { c.Display.Mode = "tui" }},
		{"headless without output", func(c *Config) {
			c.Display.Mode = DisplayHeadless
			c.Display.OutputDir = ""
		}},
		{"report in interactive mode", func(c *Config) { c.Display.Report = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid), "error should wrap ErrInvalid: %v", err)
		})
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detect.yaml")
	data := []byte(`
model:
  path: models/logos.onnx
  backend: onnx
  input_size:
    x: 640
    y: 640
labels:
  num_classes: 2
display:
  mode: headless
  report: true
run:
  continue_on_error: true
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "models/logos.onnx", cfg.Model.Path)
	assert.Equal(t, BackendONNX, cfg.Model.Backend)
	assert.Equal(t, image.Pt(640, 640), cfg.Model.InputSize)
	assert.Equal(t, 2, cfg.Labels.NumClasses)
	assert.True(t, cfg.Run.ContinueOnError)
	assert.True(t, cfg.Display.Report)

	// Untouched keys keep their defaults.
	assert.Equal(t, filepath.Join("training", "labelmap.pbtxt"), cfg.Labels.Path)
	assert.Equal(t, "image_tensor", cfg.Model.Tensors.Input)
	assert.Equal(t, "output", cfg.Display.OutputDir)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model: [unterminated"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}
