// Package render - Drawing of detection boxes and labels onto images.
package render

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Renderer draws annotation primitives. MatRenderer draws onto pixels; tests substitute a
// recorder.
type Renderer interface {
	// Rectangle outlines r with the given color and line thickness.
	Rectangle(r image.Rectangle, c color.RGBA, thickness int)
	// Label writes text in a filled box attached to the top edge of box.
	Label(text string, box image.Rectangle, c color.RGBA, font Font, lineThickness int)
}

// MatRenderer draws onto a GoCV Mat in place.
type MatRenderer struct {
	img *gocv.Mat
}

// NewMatRenderer returns a renderer that modifies img.
func NewMatRenderer(img *gocv.Mat) *MatRenderer {
	return &MatRenderer{img: img}
}

// Size returns the image size as a point (width, height).
func (m *MatRenderer) Size() image.Point {
	return image.Pt(m.img.Cols(), m.img.Rows())
}

// Rectangle draws the box outline.
func (m *MatRenderer) Rectangle(r image.Rectangle, c color.RGBA, thickness int) {
	gocv.Rectangle(m.img, r, c, thickness)
}

// Label draws text on a filled background in the box color.
//
// The label sits above the box when there is room, otherwise it is placed just inside the top
// edge so it stays on the image.
func (m *MatRenderer) Label(text string, box image.Rectangle, c color.RGBA, font Font, lineThickness int) {
	textSize := gocv.GetTextSize(text, font.Face, font.Scale, font.Thickness)
	height := textSize.Y + font.TopPad + font.BottomPad
	left := box.Min.X - lineThickness/2

	top := box.Min.Y - lineThickness/2 - height
	if top < 0 {
		top = box.Min.Y + lineThickness/2
	}

	bg := image.Rect(left, top, left+textSize.X+font.LeftPad+font.RightPad, top+height)
	gocv.Rectangle(m.img, bg, c, -1)

	origin := image.Pt(left+font.LeftPad, top+height-font.BottomPad)
	gocv.PutTextWithParams(m.img, text, origin, font.Face, font.Scale, font.Color, font.Thickness,
		font.LineType, false)
}
