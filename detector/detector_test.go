package detector

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/profiler"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

const testLabelMap = `
item {
  id: 1
  name: 'nike'
}
item {
  id: 2
  name: 'adidas'
}
`

// fakeSession returns canned outputs and records what it was fed.
type fakeSession struct {
	outputs *inference.Outputs
	err     error
	batches []inference.Batch
	closed  int
}

func (f *fakeSession) Run(_ context.Context, batch inference.Batch) (*inference.Outputs, error) {
	f.batches = append(f.batches, batch)
	return f.outputs, f.err
}

func (f *fakeSession) Close() error {
	f.closed++
	return nil
}

// blockingSession holds Run until release is closed.
type blockingSession struct {
	fakeSession
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSession) Run(ctx context.Context, batch inference.Batch) (*inference.Outputs, error) {
	close(b.entered)
	<-b.release
	return b.fakeSession.Run(ctx, batch)
}

type fakeViewer struct {
	shown  []string
	sizes  []image.Point
	err    error
	closed int
}

func (f *fakeViewer) Show(path string, img gocv.Mat) error {
	f.shown = append(f.shown, path)
	f.sizes = append(f.sizes, image.Pt(img.Cols(), img.Rows()))
	return f.err
}

func (f *fakeViewer) Close() error {
	f.closed++
	return nil
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()

	labels := filepath.Join(dir, "labelmap.pbtxt")
	require.NoError(t, os.WriteFile(labels, []byte(testLabelMap), 0o644))

	cfg := config.Default()
	cfg.Labels.Path = labels
	cfg.Labels.NumClasses = 2
	cfg.Model.Path = filepath.Join(dir, "frozen_inference_graph.pb")
	return cfg
}

func threeDetections(t *testing.T) *inference.Outputs {
	t.Helper()
	out, err := inference.NewOutputs(1, 3,
		[]float32{
			0.1, 0.1, 0.5, 0.5,
			0.2, 0.2, 0.6, 0.6,
			0.3, 0.3, 0.7, 0.7,
		},
		[]float32{0.92, 0.60, 0.31},
		[]float32{1, 2, 1},
		[]float32{3},
	)
	require.NoError(t, err)
	return out
}

func writeJPEG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 80, 120, 0), h, w, gocv.MatTypeCV8UC3)
	defer img.Close()

	path := filepath.Join(dir, name)
	require.True(t, gocv.IMWrite(path, img))
	return path
}

func newTestDetector(t *testing.T, session *fakeSession, viewer *fakeViewer) *Detector {
	t.Helper()
	logger, _ := test.NewNullLogger()
	d, err := New(testConfig(t), WithSession(session), WithViewer(viewer), WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestNewBuildsIndex(t *testing.T) {
	d := newTestDetector(t, &fakeSession{}, &fakeViewer{})

	assert.Equal(t, 2, d.Index().Len())
	cat, ok := d.Index().Lookup(2)
	require.True(t, ok)
	assert.Equal(t, "adidas", cat.Name)
}

func TestNewReleasesOnLabelMapFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.Labels.Path = filepath.Join(t.TempDir(), "missing.pbtxt")

	session := &fakeSession{}
	viewer := &fakeViewer{}
	d, err := New(cfg, WithSession(session), WithViewer(viewer))

	require.Error(t, err)
	assert.Nil(t, d)
	assert.Equal(t, 1, session.closed)
	assert.Equal(t, 1, viewer.closed)
}

func TestNewReleasesOnModelFailure(t *testing.T) {
	viewer := &fakeViewer{}
	logger, _ := test.NewNullLogger()

	d, err := New(testConfig(t), WithViewer(viewer), WithLogger(logger))

	require.Error(t, err)
	assert.Nil(t, d)
	assert.Contains(t, err.Error(), "load model")
	assert.Equal(t, 1, viewer.closed)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Labels.NumClasses = 0

	_, err := New(cfg, WithSession(&fakeSession{}), WithViewer(&fakeViewer{}))
	assert.True(t, errors.Is(err, config.ErrInvalid))
}

func TestDetectAddsBatchDimension(t *testing.T) {
	session := &fakeSession{outputs: threeDetections(t)}
	d := newTestDetector(t, session, &fakeViewer{})

	img := image.NewRGBA(image.Rect(0, 0, 6, 4))
	img.Set(0, 0, color.RGBA{R: 10, G: 20, B: 30, A: 255})

	out, err := d.Detect(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, 1, out.BatchSize())
	assert.Equal(t, 3, out.Count(0))

	require.Len(t, session.batches, 1)
	batch := session.batches[0]
	assert.Equal(t, [4]int64{1, 4, 6, 3}, batch.Shape)
	assert.Equal(t, []uint8{10, 20, 30}, batch.Data[:3])
}

func TestDetectResizesToInputSize(t *testing.T) {
	session := &fakeSession{outputs: threeDetections(t)}
	d := newTestDetector(t, session, &fakeViewer{})
	d.cfg.Model.InputSize = image.Pt(8, 5)

	_, err := d.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 40, 30)))
	require.NoError(t, err)
	assert.Equal(t, [4]int64{1, 5, 8, 3}, session.batches[0].Shape)
}

func TestDetectRejectsWrongBatch(t *testing.T) {
	out, err := inference.NewOutputs(2, 1,
		make([]float32, 8), make([]float32, 2), make([]float32, 2), make([]float32, 2))
	require.NoError(t, err)

	d := newTestDetector(t, &fakeSession{outputs: out}, &fakeViewer{})
	_, err = d.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 2, 2)))
	assert.True(t, errors.Is(err, inference.ErrShapeMismatch))
}

func TestDetectPropagatesSessionError(t *testing.T) {
	boom := errors.New("boom")
	d := newTestDetector(t, &fakeSession{err: boom}, &fakeViewer{})

	_, err := d.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 2, 2)))
	assert.True(t, errors.Is(err, boom))
}

func TestVisualizeDrawsConfidentDetections(t *testing.T) {
	session := &fakeSession{outputs: threeDetections(t)}
	viewer := &fakeViewer{}
	d := newTestDetector(t, session, viewer)

	path := writeJPEG(t, t.TempDir(), "shoe.jpg", 200, 100)

	res, err := d.Visualize(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, path, res.Path)
	assert.Equal(t, 3, res.Count)
	require.Len(t, res.Annotations, 1)
	assert.Equal(t, "nike", res.Annotations[0].Label)
	assert.Equal(t, "nike: 92%", res.Annotations[0].Text())
	assert.Equal(t, image.Rect(20, 10, 100, 50), res.Annotations[0].Rect)

	assert.Equal(t, []string{path}, viewer.shown)
	assert.Equal(t, []image.Point{image.Pt(200, 100)}, viewer.sizes)
}

func TestVisualizeUnreadableImage(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.jpg")
	require.NoError(t, os.WriteFile(garbage, []byte("not a jpeg"), 0o644))

	session := &fakeSession{outputs: threeDetections(t)}
	viewer := &fakeViewer{}
	d := newTestDetector(t, session, viewer)

	for _, path := range []string{filepath.Join(dir, "missing.jpg"), garbage} {
		_, err := d.Visualize(context.Background(), path)
		assert.True(t, errors.Is(err, ErrUnreadableImage), path)
	}
	assert.Empty(t, session.batches)
	assert.Empty(t, viewer.shown)
}

func TestVisualizeViewerError(t *testing.T) {
	viewer := &fakeViewer{err: errors.New("no display")}
	d := newTestDetector(t, &fakeSession{outputs: threeDetections(t)}, viewer)

	_, err := d.Visualize(context.Background(), writeJPEG(t, t.TempDir(), "a.jpg", 10, 10))
	assert.EqualError(t, errors.Cause(err), "no display")
}

func TestCloseIsIdempotent(t *testing.T) {
	session := &fakeSession{}
	viewer := &fakeViewer{}
	d, err := New(testConfig(t), WithSession(session), WithViewer(viewer))
	require.NoError(t, err)

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	assert.Equal(t, 1, session.closed)
	assert.Equal(t, 1, viewer.closed)

	_, err = d.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 2, 2)))
	assert.Equal(t, ErrClosed, err)
	_, err = d.Visualize(context.Background(), "a.jpg")
	assert.Equal(t, ErrClosed, err)
}

func TestVisualizeRecordsProfile(t *testing.T) {
	prof := profiler.New()
	d, err := New(testConfig(t),
		WithSession(&fakeSession{outputs: threeDetections(t)}),
		WithViewer(&fakeViewer{}),
		WithProfiler(prof))
	require.NoError(t, err)
	defer d.Close()

	_, err = d.Visualize(context.Background(), writeJPEG(t, t.TempDir(), "a.jpg", 20, 20))
	require.NoError(t, err)

	for _, op := range []string{"inference", "visualize"} {
		s, ok := prof.Timing(op)
		require.True(t, ok, op)
		assert.Equal(t, int64(1), s.Count)
	}
	drawn, ok := prof.Metric("drawn")
	require.True(t, ok)
	assert.Equal(t, 1.0, drawn.Max)
	detections, _ := prof.Metric("detections")
	assert.Equal(t, 3.0, detections.Max)
}

func TestCloseWaitsForInflightDetect(t *testing.T) {
	session := &blockingSession{
		fakeSession: fakeSession{outputs: threeDetections(t)},
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	d, err := New(testConfig(t), WithSession(session), WithViewer(&fakeViewer{}))
	require.NoError(t, err)

	detectErr := make(chan error, 1)
	go func() {
		_, err := d.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 2, 2)))
		detectErr <- err
	}()
	<-session.entered

	closed := make(chan error, 1)
	go func() {
		closed <- d.Close()
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while Run was still executing")
	case <-time.After(50 * time.Millisecond):
	}

	close(session.release)
	require.NoError(t, <-detectErr)
	require.NoError(t, <-closed)
	assert.Equal(t, 1, session.closed)
}
