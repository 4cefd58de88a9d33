package images

import (
	"fmt"
	"image"

	"github.com/chewxy/math32"
)

// NormalizedBox is an axis-aligned box in normalized image coordinates, in the
// [ymin, xmin, ymax, xmax] order produced by the detection graph.
type NormalizedBox struct {
	YMin, XMin, YMax, XMax float32
}

// NewNormalizedBox builds a box from a four element [ymin, xmin, ymax, xmax] slice.
func NewNormalizedBox(v []float32) NormalizedBox {
	return NormalizedBox{YMin: v[0], XMin: v[1], YMax: v[2], XMax: v[3]}
}

func (b NormalizedBox) String() string {
	return fmt.Sprintf("[ymin=%.3f xmin=%.3f ymax=%.3f xmax=%.3f]", b.YMin, b.XMin, b.YMax, b.XMax)
}

// Rect scales the box to a width x height image.
//
// Coordinates are clamped to [0, 1] first so a box that spills over the edge of the image is
// cut at the border, and the result is canonical.
//
// Arguments:
//   - width: Image width in pixels.
//   - height: Image height in pixels.
//
// Returns:
//   - image.Rectangle: The box in pixel coordinates.
func (b NormalizedBox) Rect(width, height int) image.Rectangle {
	w, h := float32(width), float32(height)
	x1 := math32.Round(clamp01(b.XMin) * w)
	y1 := math32.Round(clamp01(b.YMin) * h)
	x2 := math32.Round(clamp01(b.XMax) * w)
	y2 := math32.Round(clamp01(b.YMax) * h)
	return image.Rect(int(x1), int(y1), int(x2), int(y2)).Canon()
}

// Area returns the normalized area of the box.
func (b NormalizedBox) Area() float32 {
	return math32.Abs(b.YMax-b.YMin) * math32.Abs(b.XMax-b.XMin)
}

func clamp01(v float32) float32 {
	return math32.Max(0, math32.Min(1, v))
}
