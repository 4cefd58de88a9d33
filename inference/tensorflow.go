package inference

import (
	"bytes"
	"context"
	"os"

	"github.com/nvr-ai/go-detect/config"
	"github.com/pkg/errors"
	tf "github.com/wamuir/graft/tensorflow"
)

// TensorFlowSession executes a frozen TensorFlow graph.
type TensorFlowSession struct {
	graph   *tf.Graph
	session *tf.Session
	input   tf.Output
	outputs []tf.Output
}

// NewTensorFlowSession imports a serialized GraphDef and opens a session over it.
//
// Arguments:
//   - cfg: The model configuration; Path is the frozen graph and Tensors names its nodes.
//
// Returns:
//   - *TensorFlowSession: The opened session.
//   - error: An error if the graph cannot be deserialized or a named node is missing.
func NewTensorFlowSession(cfg config.ModelConfig) (*TensorFlowSession, error) {
	model, err := os.ReadFile(cfg.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "read frozen graph %s", cfg.Path)
	}

	graph := tf.NewGraph()
	if err := graph.Import(model, ""); err != nil {
		return nil, errors.Wrapf(err, "import frozen graph %s", cfg.Path)
	}

	input, err := graphOutput(graph, cfg.Tensors.Input)
	if err != nil {
		return nil, err
	}
	var outputs []tf.Output
	for _, name := range cfg.Tensors.Outputs() {
		out, err := graphOutput(graph, name)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, out)
	}

	session, err := tf.NewSession(graph, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create tensorflow session")
	}

	return &TensorFlowSession{
		graph:   graph,
		session: session,
		input:   input,
		outputs: outputs,
	}, nil
}

func graphOutput(graph *tf.Graph, name string) (tf.Output, error) {
	op := graph.Operation(name)
	if op == nil {
		return tf.Output{}, errors.Errorf("graph has no operation named %q", name)
	}
	return op.Output(0), nil
}

// Run feeds the batch to the image tensor and fetches boxes, scores, classes and count.
func (s *TensorFlowSession) Run(ctx context.Context, batch Batch) (*Outputs, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	input, err := tf.ReadTensor(tf.Uint8, batch.ShapeSlice(), bytes.NewReader(batch.Data))
	if err != nil {
		return nil, errors.Wrap(err, "build input tensor")
	}

	fetched, err := s.session.Run(map[tf.Output]*tf.Tensor{s.input: input}, s.outputs, nil)
	if err != nil {
		return nil, errors.Wrap(err, "run tensorflow session")
	}
	if len(fetched) != 4 {
		return nil, errors.Wrapf(ErrShapeMismatch, "fetched %d tensors, expected 4", len(fetched))
	}

	boxes, ok := fetched[0].Value().([][][]float32)
	if !ok {
		return nil, errors.Wrapf(ErrShapeMismatch, "boxes have type %T", fetched[0].Value())
	}
	scores, ok := fetched[1].Value().([][]float32)
	if !ok {
		return nil, errors.Wrapf(ErrShapeMismatch, "scores have type %T", fetched[1].Value())
	}
	classes, ok := fetched[2].Value().([][]float32)
	if !ok {
		return nil, errors.Wrapf(ErrShapeMismatch, "classes have type %T", fetched[2].Value())
	}
	num, ok := fetched[3].Value().([]float32)
	if !ok {
		return nil, errors.Wrapf(ErrShapeMismatch, "num_detections has type %T", fetched[3].Value())
	}

	n := 0
	if len(scores) > 0 {
		n = len(scores[0])
	}

	return NewOutputs(len(scores), n, flatten3(boxes), flatten2(scores), flatten2(classes), num)
}

// Close releases the session. The graph is freed by the runtime once unreferenced.
func (s *TensorFlowSession) Close() error {
	if s.session == nil {
		return nil
	}
	err := s.session.Close()
	s.session = nil
	return errors.Wrap(err, "close tensorflow session")
}

func flatten2(v [][]float32) []float32 {
	var out []float32
	for _, row := range v {
		out = append(out, row...)
	}
	return out
}

func flatten3(v [][][]float32) []float32 {
	var out []float32
	for _, plane := range v {
		out = append(out, flatten2(plane)...)
	}
	return out
}
