// Package runner - Drives the detector over a list of images, one at a time.
package runner

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/nvr-ai/go-detect/detector"
	"github.com/nvr-ai/go-detect/render"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Visualizer processes one image end to end. *detector.Detector implements it.
type Visualizer interface {
	Visualize(ctx context.Context, path string) (*detector.Result, error)
}

// Outcome is the result of one image.
type Outcome struct {
	Path        string              `json:"path"`
	Count       int                 `json:"count"`
	Annotations []render.Annotation `json:"annotations,omitempty"`
	Duration    time.Duration       `json:"duration"`
	Err         error               `json:"-"`
	// Error mirrors Err for the JSON report.
	Error string `json:"error,omitempty"`
}

// Report collects the outcomes of a run in processing order.
type Report struct {
	Outcomes  []Outcome `json:"outcomes"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
}

// Err returns the first failure of the run, or nil.
func (r *Report) Err() error {
	for _, o := range r.Outcomes {
		if o.Err != nil {
			return o.Err
		}
	}
	return nil
}

// WriteJSON writes the report as indented JSON, creating the parent directory.
func (r *Report) WriteJSON(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create report dir for %s", path)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode report")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write report %s", path)
	}
	return nil
}

// Runner visits images strictly in sequence; an interactive viewer needs each image dismissed
// before the next one is shown.
type Runner struct {
	v               Visualizer
	continueOnError bool
	log             logrus.FieldLogger
	now             func() time.Time
}

// New creates a runner.
//
// Arguments:
//   - v: The per-image processor.
//   - continueOnError: Record a failed image and carry on instead of stopping.
//   - log: Logger for per-image progress; nil uses the standard logger.
//
// Returns:
//   - *Runner: The runner.
func New(v Visualizer, continueOnError bool, log logrus.FieldLogger) *Runner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Runner{v: v, continueOnError: continueOnError, log: log, now: time.Now}
}

// Run processes paths in order.
//
// By default the first failing image ends the run. With continueOnError every image is tried.
// A cancelled context stops the run before the next image.
//
// Arguments:
//   - ctx: Context checked between images and passed to each inference call.
//   - paths: The images, already in the order they should be shown.
//
// Returns:
//   - *Report: The outcomes of every image that was attempted.
//   - error: The context error if the run was cancelled, nil otherwise. Image failures are
//     reported through the Report.
func (r *Runner) Run(ctx context.Context, paths []string) (*Report, error) {
	report := &Report{Outcomes: make([]Outcome, 0, len(paths))}

	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			r.log.WithField("remaining", len(paths)-i).Warn("run cancelled")
			return report, err
		}

		start := r.now()
		res, err := r.v.Visualize(ctx, path)
		outcome := Outcome{Path: path, Duration: r.now().Sub(start)}

		fields := logrus.Fields{"image": path, "duration": outcome.Duration}
		if err != nil {
			outcome.Err = err
			outcome.Error = err.Error()
			report.Outcomes = append(report.Outcomes, outcome)
			report.Failed++

			r.log.WithFields(fields).WithError(err).Error("image failed")
			if !r.continueOnError {
				return report, nil
			}
			continue
		}

		outcome.Count = res.Count
		outcome.Annotations = res.Annotations
		report.Outcomes = append(report.Outcomes, outcome)
		report.Succeeded++

		fields["detections"] = res.Count
		fields["drawn"] = len(res.Annotations)
		r.log.WithFields(fields).Info("image processed")
	}

	return report, nil
}
