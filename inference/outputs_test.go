package inference

import (
	"testing"

	"github.com/nvr-ai/go-detect/images"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputsDetectionsAreIndexAligned(t *testing.T) {
	boxes := []float32{
		0.1, 0.1, 0.5, 0.5,
		0.2, 0.3, 0.6, 0.9,
		0.0, 0.0, 0.0, 0.0,
	}
	scores := []float32{0.95, 0.61, 0.0}
	classes := []float32{2, 1, 0}
	num := []float32{2}

	out, err := NewOutputs(1, 3, boxes, scores, classes, num)
	require.NoError(t, err)

	assert.Equal(t, 1, out.BatchSize())
	assert.Equal(t, []int{1, 3, 4}, []int(out.Boxes.Shape()))
	assert.Equal(t, 1, out.Scores.Shape()[0])
	assert.Equal(t, 1, out.Classes.Shape()[0])
	assert.Equal(t, 1, out.NumDetections.Shape()[0])

	dets, err := out.Detections(0)
	require.NoError(t, err)
	require.Len(t, dets, 2, "truncated to num_detections")

	for i, d := range dets {
		assert.Equal(t, images.NewNormalizedBox(boxes[i*4:i*4+4]), d.Box)
		assert.Equal(t, scores[i], d.Score)
		assert.Equal(t, int(classes[i]), d.Class)
	}
}

func TestOutputsCountBoundedBySlots(t *testing.T) {
	out, err := NewOutputs(1, 1, []float32{0, 0, 1, 1}, []float32{0.9}, []float32{3}, []float32{7})
	require.NoError(t, err)

	dets, err := out.Detections(0)
	require.NoError(t, err)
	assert.Len(t, dets, 1)

	_, err = out.Detections(1)
	assert.Error(t, err)
}

func TestOutputsBatchOfTwo(t *testing.T) {
	boxes := []float32{
		0, 0, 1, 1,
		0, 0, 0.5, 0.5,
	}
	out, err := NewOutputs(2, 1, boxes, []float32{0.7, 0.8}, []float32{1, 2}, []float32{1, 1})
	require.NoError(t, err)

	dets, err := out.Detections(1)
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, 2, dets[0].Class)
	assert.Equal(t, float32(0.5), dets[0].Box.XMax)
}

func TestOutputsEmpty(t *testing.T) {
	out, err := NewOutputs(1, 0, nil, nil, nil, []float32{0})
	require.NoError(t, err)

	dets, err := out.Detections(0)
	require.NoError(t, err)
	assert.Empty(t, dets)
}

func TestNewOutputsRejectsMisalignedBuffers(t *testing.T) {
	tests := []struct {
		name    string
		boxes   []float32
		scores  []float32
		classes []float32
		num     []float32
	}{
		{"short boxes", make([]float32, 7), make([]float32, 2), make([]float32, 2), make([]float32, 1)},
		{"short scores", make([]float32, 8), make([]float32, 1), make([]float32, 2), make([]float32, 1)},
		{"long classes", make([]float32, 8), make([]float32, 2), make([]float32, 3), make([]float32, 1)},
		{"missing count", make([]float32, 8), make([]float32, 2), make([]float32, 2), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOutputs(1, 2, tt.boxes, tt.scores, tt.classes, tt.num)
			assert.True(t, errors.Is(err, ErrShapeMismatch), "got %v", err)
		})
	}
}
