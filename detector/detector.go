// Package detector - Runs a frozen object detection graph on images and visualizes the result.
package detector

import (
	"context"
	"image"
	"sync"

	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/display"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/labelmap"
	"github.com/nvr-ai/go-detect/profiler"
	"github.com/nvr-ai/go-detect/render"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

var (
	// ErrUnreadableImage is returned when an image file is missing or cannot be decoded.
	ErrUnreadableImage = errors.New("unreadable image")
	// ErrClosed is returned by calls made after Close.
	ErrClosed = errors.New("detector is closed")
)

// Detector holds a loaded model and its category index. It is built once and reused for every
// image.
type Detector struct {
	cfg     config.Config
	index   labelmap.CategoryIndex
	session inference.Session
	viewer  display.Viewer
	opts    render.Options
	log     logrus.FieldLogger
	prof    *profiler.Profiler

	// mu is held for reading while the session or viewer is in use and for writing by Close.
	mu     sync.RWMutex
	closed bool
}

// Option customizes a Detector at construction.
type Option func(*Detector)

// WithLogger sets the logger. The default is the logrus standard logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(d *Detector) {
		d.log = log
	}
}

// WithSession uses an already opened session instead of loading cfg.Model. The detector takes
// ownership and closes it.
func WithSession(s inference.Session) Option {
	return func(d *Detector) {
		d.session = s
	}
}

// WithViewer replaces the viewer derived from cfg.Display. The detector takes ownership and
// closes it.
func WithViewer(v display.Viewer) Option {
	return func(d *Detector) {
		d.viewer = v
	}
}

// WithProfiler records inference and visualization timings plus per-image detection counts.
func WithProfiler(p *profiler.Profiler) Option {
	return func(d *Detector) {
		d.prof = p
	}
}

// New builds a detector from the configuration.
//
// The label map is loaded and turned into a category index first, then the model is loaded. On
// any failure everything acquired so far is released and no detector is returned.
//
// Arguments:
//   - cfg: The configuration.
//   - opts: Optional overrides.
//
// Returns:
//   - *Detector: The ready detector; the caller must Close it.
//   - error: An error if the configuration is invalid or the label map or model cannot be loaded.
func New(cfg config.Config, opts ...Option) (*Detector, error) {
	d := &Detector{cfg: cfg}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = logrus.StandardLogger()
	}
	if d.prof == nil {
		d.prof = profiler.New()
	}

	fail := func(err error) (*Detector, error) {
		d.release()
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return fail(err)
	}

	index, err := labelmap.Build(cfg.Labels.Path, cfg.Labels.NumClasses, cfg.Labels.UseDisplayName, d.log)
	if err != nil {
		return fail(errors.Wrap(err, "load label map"))
	}
	d.index = index
	d.log.WithFields(logrus.Fields{
		"labels":     cfg.Labels.Path,
		"categories": index.Len(),
	}).Debug("category index built")

	if d.viewer == nil {
		viewer, err := display.New(cfg.Display)
		if err != nil {
			return fail(err)
		}
		d.viewer = viewer
	}

	if d.session == nil {
		session, err := inference.Open(cfg.Model, d.log)
		if err != nil {
			return fail(errors.Wrap(err, "load model"))
		}
		d.session = session
	}

	d.opts = render.Options{
		MinScore:      cfg.Annotate.MinScore,
		LineThickness: cfg.Annotate.LineThickness,
		MaxBoxes:      cfg.Annotate.MaxBoxes,
		Font:          render.DefaultFont(),
	}

	return d, nil
}

// Index returns the category index built from the label map.
func (d *Detector) Index() labelmap.CategoryIndex {
	return d.index
}

// Detect runs the model once on a single image.
//
// The image is packed as RGB, resized to the configured input size when one is set, and given
// a leading batch dimension of 1.
//
// Arguments:
//   - ctx: Context for the inference call.
//   - img: The decoded image.
//
// Returns:
//   - *inference.Outputs: Boxes, scores, classes and count, each with batch dimension 1.
//   - error: An error if the image is empty or inference fails.
func (d *Detector) Detect(ctx context.Context, img image.Image) (*inference.Outputs, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrClosed
	}
	return d.detect(ctx, img)
}

func (d *Detector) detect(ctx context.Context, img image.Image) (*inference.Outputs, error) {
	frame, err := inference.NewFrame(img, d.cfg.Model.InputSize)
	if err != nil {
		return nil, err
	}
	batch, err := inference.ExpandDims(frame)
	if err != nil {
		return nil, err
	}

	stop := d.prof.StartOperation("inference")
	outputs, err := d.session.Run(ctx, batch)
	stop()
	if err != nil {
		return nil, errors.Wrap(err, "inference")
	}
	if outputs.BatchSize() != 1 {
		return nil, errors.Wrapf(inference.ErrShapeMismatch, "model returned batch of %d for a single image",
			outputs.BatchSize())
	}

	return outputs, nil
}

// Annotate draws the detections of outputs onto mat in place.
//
// Arguments:
//   - mat: The image the detections were computed on, at its original size.
//   - outputs: The result of Detect.
//
// Returns:
//   - []render.Annotation: What was drawn.
//   - error: An error if outputs hold no image.
func (d *Detector) Annotate(mat *gocv.Mat, outputs *inference.Outputs) ([]render.Annotation, error) {
	detections, err := outputs.Detections(0)
	if err != nil {
		return nil, err
	}
	r := render.NewMatRenderer(mat)
	return render.Annotate(r, r.Size(), detections, d.index, d.opts), nil
}

// Result is what Visualize produced for one image.
type Result struct {
	Path        string              `json:"path"`
	Count       int                 `json:"count"`
	Annotations []render.Annotation `json:"annotations"`
	Outputs     *inference.Outputs  `json:"-"`
}

// Visualize reads the image at path, detects objects, draws the confident ones and hands the
// annotated image to the viewer. In interactive mode it returns only after a key is pressed.
//
// Arguments:
//   - ctx: Context for the inference call.
//   - path: The image file.
//
// Returns:
//   - *Result: The detections and drawn annotations.
//   - error: ErrUnreadableImage (wrapped) if the file cannot be read, or the inference or viewer
//     error.
func (d *Detector) Visualize(ctx context.Context, path string) (*Result, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrClosed
	}
	defer d.prof.StartOperation("visualize")()

	mat := gocv.IMRead(path, gocv.IMReadColor)
	defer mat.Close()
	if mat.Empty() {
		return nil, errors.Wrap(ErrUnreadableImage, path)
	}

	img, err := mat.ToImage()
	if err != nil {
		return nil, errors.Wrapf(ErrUnreadableImage, "%s: %v", path, err)
	}

	outputs, err := d.detect(ctx, img)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}

	annotations, err := d.Annotate(&mat, outputs)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}

	d.prof.RecordMetric("detections", float64(outputs.Count(0)))
	d.prof.RecordMetric("drawn", float64(len(annotations)))
	d.log.WithFields(logrus.Fields{
		"image":      path,
		"detections": outputs.Count(0),
		"drawn":      len(annotations),
	}).Debug("image annotated")

	if err := d.viewer.Show(path, mat); err != nil {
		return nil, errors.Wrap(err, path)
	}

	return &Result{
		Path:        path,
		Count:       outputs.Count(0),
		Annotations: annotations,
		Outputs:     outputs,
	}, nil
}

// Close releases the model session and the viewer once in-flight Detect and Visualize calls have
// returned. Calling it again is a no-op.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	return d.release()
}

func (d *Detector) release() error {
	var first error
	if d.session != nil {
		if err := d.session.Close(); err != nil {
			first = errors.Wrap(err, "close session")
		}
		d.session = nil
	}
	if d.viewer != nil {
		if err := d.viewer.Close(); err != nil && first == nil {
			first = errors.Wrap(err, "close viewer")
		}
		d.viewer = nil
	}
	return first
}
