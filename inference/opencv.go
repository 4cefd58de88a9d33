package inference

import (
	"context"
	"image"
	"os"

	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/images"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// OpenCVSession executes the detection graph with the OpenCV DNN module.
//
// OpenCV collapses the detection head into a single DetectionOutput blob of shape [1, 1, N, 7],
// each row being [image_id, class_id, score, left, top, right, bottom] in normalized coordinates.
// Run converts that blob back into the four output tensors.
type OpenCVSession struct {
	net       gocv.Net
	inputSize image.Point
	closed    bool
}

// NewOpenCVSession reads the network and selects the CPU target.
//
// Arguments:
//   - cfg: The model configuration; ConfigPath is the optional text graph description.
//
// Returns:
//   - *OpenCVSession: The opened session.
//   - error: An error if the network cannot be read.
func NewOpenCVSession(cfg config.ModelConfig) (s *OpenCVSession, err error) {
	if cfg.ConfigPath != "" {
		if _, statErr := os.Stat(cfg.ConfigPath); statErr != nil {
			return nil, errors.Wrapf(statErr, "opencv graph config %s", cfg.ConfigPath)
		}
	}

	var net gocv.Net
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = errors.Errorf("panic while reading network %s: %v", cfg.Path, r)
			}
		}()
		net = gocv.ReadNet(cfg.Path, cfg.ConfigPath)
	}()
	if err != nil {
		return nil, err
	}
	if net.Empty() {
		return nil, errors.Errorf("opencv could not read network %s", cfg.Path)
	}

	net.SetPreferableBackend(gocv.NetBackendOpenCV)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &OpenCVSession{net: net, inputSize: cfg.InputSize}, nil
}

// Run executes the network on each frame of the batch in turn.
func (s *OpenCVSession) Run(ctx context.Context, batch Batch) (*Outputs, error) {
	var perImage [][]Detection
	maxSlots := 0
	for i := 0; i < batch.Size(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dets, err := s.forward(batch.Frame(i))
		if err != nil {
			return nil, err
		}
		perImage = append(perImage, dets)
		if len(dets) > maxSlots {
			maxSlots = len(dets)
		}
	}

	n := batch.Size()
	boxes := make([]float32, n*maxSlots*4)
	scores := make([]float32, n*maxSlots)
	classes := make([]float32, n*maxSlots)
	num := make([]float32, n)
	for b, dets := range perImage {
		num[b] = float32(len(dets))
		for i, d := range dets {
			slot := b*maxSlots + i
			copy(boxes[slot*4:], []float32{d.Box.YMin, d.Box.XMin, d.Box.YMax, d.Box.XMax})
			scores[slot] = d.Score
			classes[slot] = float32(d.Class)
		}
	}

	return NewOutputs(n, maxSlots, boxes, scores, classes, num)
}

func (s *OpenCVSession) forward(frame Frame) ([]Detection, error) {
	mat, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Pix)
	if err != nil {
		return nil, errors.Wrap(err, "wrap frame")
	}
	defer mat.Close()

	size := s.inputSize
	if size.X == 0 || size.Y == 0 {
		size = image.Pt(frame.Width, frame.Height)
	}

	// The frame is already RGB, so no channel swap.
	blob := gocv.BlobFromImage(mat, 1.0, size, gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	s.net.SetInput(blob, "")
	prob := s.net.Forward("")
	defer prob.Close()
	if prob.Empty() {
		return nil, errors.New("opencv network returned an empty output")
	}

	total := prob.Total()
	if total%7 != 0 {
		return nil, errors.Wrapf(ErrShapeMismatch, "detection blob holds %d values, not a multiple of 7", total)
	}

	var dets []Detection
	for i := 0; i < total; i += 7 {
		// A negative image id marks the end of valid rows.
		if prob.GetFloatAt(0, i) < 0 {
			break
		}
		dets = append(dets, Detection{
			Class: int(prob.GetFloatAt(0, i+1)),
			Score: prob.GetFloatAt(0, i+2),
			Box: boxFromLTRB(
				prob.GetFloatAt(0, i+3),
				prob.GetFloatAt(0, i+4),
				prob.GetFloatAt(0, i+5),
				prob.GetFloatAt(0, i+6),
			),
		})
	}

	return dets, nil
}

// Close releases the network.
func (s *OpenCVSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.net.Close()
}

// boxFromLTRB reorders an OpenCV [left, top, right, bottom] box into graph order.
func boxFromLTRB(left, top, right, bottom float32) images.NormalizedBox {
	return images.NormalizedBox{YMin: top, XMin: left, YMax: bottom, XMax: right}
}
