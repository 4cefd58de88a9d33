// Package display - Presentation of annotated images, on screen or on disk.
package display

import (
	"github.com/nvr-ai/go-detect/config"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Viewer presents one annotated image. Show blocks until the image has been dealt with: for a
// window that means a keypress, for disk output that means the file is written.
type Viewer interface {
	// Show presents img, which was read from path.
	Show(path string, img gocv.Mat) error
	// Close releases any window or handle still open.
	Close() error
}

// New returns the viewer for the configured display mode.
//
// Arguments:
//   - cfg: The display configuration.
//
// Returns:
//   - Viewer: A Window for interactive mode, a Headless writer otherwise.
//   - error: An error if the mode is unknown.
func New(cfg config.DisplayConfig) (Viewer, error) {
	switch cfg.Mode {
	case config.DisplayInteractive, "":
		return NewWindow(cfg.WindowTitle), nil
	case config.DisplayHeadless:
		return NewHeadless(cfg.OutputDir), nil
	default:
		return nil, errors.Wrapf(config.ErrInvalid, "display mode %q", cfg.Mode)
	}
}
