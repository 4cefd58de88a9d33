package display

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Headless writes each annotated image into a directory instead of showing it.
type Headless struct {
	dir string
}

// NewHeadless returns a viewer writing into dir. The directory is created on the first Show.
func NewHeadless(dir string) *Headless {
	return &Headless{dir: dir}
}

// Dir returns the output directory.
func (h *Headless) Dir() string {
	return h.dir
}

// OutputPath returns where the annotated copy of path is written.
func (h *Headless) OutputPath(path string) string {
	return filepath.Join(h.dir, filepath.Base(path))
}

// Show writes img under the output directory using the base name of path.
//
// Arguments:
//   - path: The source image path.
//   - img: The annotated image.
//
// Returns:
//   - error: An error if the directory cannot be created or the image cannot be encoded.
func (h *Headless) Show(path string, img gocv.Mat) error {
	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		return errors.Wrapf(err, "create output dir %s", h.dir)
	}

	out := h.OutputPath(path)
	if ok := gocv.IMWrite(out, img); !ok {
		return errors.Errorf("failed to write annotated image %s", out)
	}
	return nil
}

// Close is a no-op.
func (h *Headless) Close() error {
	return nil
}
