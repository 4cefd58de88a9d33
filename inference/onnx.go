package inference

import (
	"context"
	"os"

	"github.com/nvr-ai/go-detect/config"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// ONNXSession executes an ONNX export of the detection graph with onnxruntime.
//
// The export keeps the graph's node names, so the same tensor names are used for feeding and
// fetching. Output tensors are allocated by onnxruntime on each run because their detection
// dimension is dynamic.
type ONNXSession struct {
	session     *ort.DynamicAdvancedSession
	ownsRuntime bool
	outputNames []string
}

// NewONNXSession initializes the onnxruntime environment (once per process) and loads the model.
//
// Arguments:
//   - cfg: The model configuration; ONNX selects the library and execution provider.
//
// Returns:
//   - *ONNXSession: The opened session.
//   - error: An error if the runtime library is missing or the model cannot be loaded.
func NewONNXSession(cfg config.ModelConfig) (*ONNXSession, error) {
	owns := false
	if !ort.IsInitialized() {
		libPath := cfg.ONNX.LibraryPath
		if libPath == "" {
			var err error
			if libPath, err = SharedLibPath(); err != nil {
				return nil, err
			}
		}
		if _, err := os.Stat(libPath); err != nil {
			return nil, errors.Wrapf(err, "onnxruntime library %s", libPath)
		}

		ort.SetSharedLibraryPath(libPath)
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, errors.Wrap(err, "initialize onnxruntime environment")
		}
		owns = true
	}

	release := func() {
		if owns {
			ort.DestroyEnvironment()
		}
	}

	options, err := newSessionOptions(cfg.ONNX)
	if err != nil {
		release()
		return nil, err
	}
	defer options.Destroy()

	outputs := cfg.Tensors.Outputs()
	session, err := ort.NewDynamicAdvancedSession(cfg.Path, []string{cfg.Tensors.Input}, outputs, options)
	if err != nil {
		release()
		return nil, errors.Wrapf(err, "load onnx model %s", cfg.Path)
	}

	return &ONNXSession{
		session:     session,
		ownsRuntime: owns,
		outputNames: outputs,
	}, nil
}

// Run feeds the uint8 batch and collects the four float outputs.
func (s *ONNXSession) Run(ctx context.Context, batch Batch) (*Outputs, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	input, err := ort.NewTensor(ort.NewShape(batch.ShapeSlice()...), batch.Data)
	if err != nil {
		return nil, errors.Wrap(err, "build input tensor")
	}
	defer input.Destroy()

	outputs := make([]ort.Value, len(s.outputNames))
	if err := s.session.Run([]ort.Value{input}, outputs); err != nil {
		return nil, errors.Wrap(err, "run onnx session")
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	data := make([][]float32, len(outputs))
	for i, o := range outputs {
		t, ok := o.(*ort.Tensor[float32])
		if !ok {
			return nil, errors.Wrapf(ErrShapeMismatch, "output %s has type %T", s.outputNames[i], o)
		}
		// GetData aliases onnxruntime memory that is released below.
		data[i] = append([]float32(nil), t.GetData()...)
	}

	scoresShape := outputs[1].(*ort.Tensor[float32]).GetShape()
	if len(scoresShape) != 2 {
		return nil, errors.Wrapf(ErrShapeMismatch, "scores have shape %v, expected [batch, N]", scoresShape)
	}

	return NewOutputs(int(scoresShape[0]), int(scoresShape[1]), data[0], data[1], data[2], data[3])
}

// Close destroys the session and, if this session initialized it, the onnxruntime environment.
func (s *ONNXSession) Close() error {
	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	if s.ownsRuntime {
		if envErr := ort.DestroyEnvironment(); err == nil {
			err = envErr
		}
	}
	return errors.Wrap(err, "close onnx session")
}
