package inference

import (
	"math"

	"github.com/nvr-ai/go-detect/images"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Detection is one (box, score, class) triple taken from the model outputs.
type Detection struct {
	Box   images.NormalizedBox `json:"box"`
	Score float32              `json:"score"`
	Class int                  `json:"class"`
}

// Outputs holds the four tensors produced together by one inference call.
//
// Boxes is [batch, N, 4] with rows in [ymin, xmin, ymax, xmax] order, Scores and Classes are
// [batch, N], and NumDetections is [batch].
type Outputs struct {
	Boxes         *tensor.Dense
	Scores        *tensor.Dense
	Classes       *tensor.Dense
	NumDetections *tensor.Dense
}

// NewOutputs wraps flat output buffers into tensors after checking that they line up.
//
// Arguments:
//   - batch: The batch dimension.
//   - n: Number of detection slots per image.
//   - boxes: batch*n*4 values.
//   - scores: batch*n values.
//   - classes: batch*n values.
//   - num: batch values.
//
// Returns:
//   - *Outputs: The wrapped tensors (the buffers are not copied).
//   - error: An error wrapping ErrShapeMismatch if any length is off.
func NewOutputs(batch, n int, boxes, scores, classes, num []float32) (*Outputs, error) {
	if batch < 1 || n < 0 {
		return nil, errors.Wrapf(ErrShapeMismatch, "invalid output dimensions batch=%d n=%d", batch, n)
	}
	if len(boxes) != batch*n*4 {
		return nil, errors.Wrapf(ErrShapeMismatch, "boxes hold %d values, expected %d", len(boxes), batch*n*4)
	}
	if len(scores) != batch*n {
		return nil, errors.Wrapf(ErrShapeMismatch, "scores hold %d values, expected %d", len(scores), batch*n)
	}
	if len(classes) != batch*n {
		return nil, errors.Wrapf(ErrShapeMismatch, "classes hold %d values, expected %d", len(classes), batch*n)
	}
	if len(num) != batch {
		return nil, errors.Wrapf(ErrShapeMismatch, "num_detections holds %d values, expected %d", len(num), batch)
	}

	// Zero-sized dimensions are not representable, so an empty result keeps one blank slot.
	if n == 0 {
		n = 1
		boxes = make([]float32, batch*4)
		scores = make([]float32, batch)
		classes = make([]float32, batch)
		for i := range num {
			num[i] = 0
		}
	}

	return &Outputs{
		Boxes:         tensor.New(tensor.WithShape(batch, n, 4), tensor.WithBacking(boxes)),
		Scores:        tensor.New(tensor.WithShape(batch, n), tensor.WithBacking(scores)),
		Classes:       tensor.New(tensor.WithShape(batch, n), tensor.WithBacking(classes)),
		NumDetections: tensor.New(tensor.WithShape(batch), tensor.WithBacking(num)),
	}, nil
}

// BatchSize returns the leading dimension shared by all four tensors.
func (o *Outputs) BatchSize() int {
	return o.Scores.Shape()[0]
}

// Slots returns the number of detection slots per image (N).
func (o *Outputs) Slots() int {
	return o.Scores.Shape()[1]
}

// Count returns the reported number of detections for image b.
func (o *Outputs) Count(b int) int {
	num := o.NumDetections.Data().([]float32)
	return int(num[b])
}

// Detections returns the index-aligned detections of image b.
//
// The i-th detection pairs the i-th box with the i-th score and class. The result is truncated
// to the reported count, bounded by the number of slots.
//
// Arguments:
//   - b: Index into the batch dimension.
//
// Returns:
//   - []Detection: The detections, in model output order.
//   - error: An error if b is out of range.
func (o *Outputs) Detections(b int) ([]Detection, error) {
	if b < 0 || b >= o.BatchSize() {
		return nil, errors.Errorf("batch index %d out of range [0,%d)", b, o.BatchSize())
	}

	n := o.Slots()
	count := o.Count(b)
	if count > n {
		count = n
	}
	if count < 0 {
		count = 0
	}

	boxes := o.Boxes.Data().([]float32)[b*n*4 : (b+1)*n*4]
	scores := o.Scores.Data().([]float32)[b*n : (b+1)*n]
	classes := o.Classes.Data().([]float32)[b*n : (b+1)*n]

	detections := make([]Detection, count)
	for i := 0; i < count; i++ {
		detections[i] = Detection{
			Box:   images.NewNormalizedBox(boxes[i*4 : i*4+4]),
			Score: scores[i],
			Class: int(math.Round(float64(classes[i]))),
		}
	}

	return detections, nil
}
