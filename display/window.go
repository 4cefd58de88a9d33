package display

import (
	"gocv.io/x/gocv"
)

// Window shows each image in a desktop window and waits for a key.
type Window struct {
	title string
	win   *gocv.Window
}

// NewWindow returns a viewer that opens a window with the given title on the first Show.
func NewWindow(title string) *Window {
	if title == "" {
		title = "Object detector"
	}
	return &Window{title: title}
}

// Show displays img and blocks until any key is pressed, then closes the window.
//
// Arguments:
//   - path: The image path, unused apart from matching the Viewer contract.
//   - img: The annotated image.
//
// Returns:
//   - error: Always nil; the window API reports no errors.
func (w *Window) Show(_ string, img gocv.Mat) error {
	if w.win == nil {
		w.win = gocv.NewWindow(w.title)
	}
	w.win.IMShow(img)
	w.win.WaitKey(0)
	return w.Close()
}

// Close destroys the window if one is open. It is safe to call more than once.
func (w *Window) Close() error {
	if w.win == nil {
		return nil
	}
	err := w.win.Close()
	w.win = nil
	return err
}
