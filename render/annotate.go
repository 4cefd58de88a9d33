package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/labelmap"
)

// Options controls which detections are drawn and how.
type Options struct {
	// MinScore is exclusive: only scores strictly above it are drawn.
	MinScore float32
	// LineThickness of the box outline.
	LineThickness int
	// MaxBoxes caps how many detections are considered, in model output order.
	MaxBoxes int
	// Font for labels.
	Font Font
}

// Annotation records one drawn detection.
type Annotation struct {
	Detection inference.Detection `json:"detection"`
	// Label is the resolved category name; empty when the class is not in the index.
	Label string          `json:"label,omitempty"`
	Rect  image.Rectangle `json:"rect"`
	Color color.RGBA      `json:"-"`
}

// Text returns the string drawn on the label, e.g. "logo: 87%".
func (a Annotation) Text() string {
	return labelText(a.Label, a.Detection.Score)
}

// Annotate draws every detection whose score exceeds the threshold.
//
// Detections are visited in model output order, at most MaxBoxes of them. A class id that does
// not resolve in the index still gets its box but no label.
//
// Arguments:
//   - r: The renderer to draw with.
//   - size: The image size (width, height) used to scale normalized boxes.
//   - detections: The detections of one image.
//   - index: The category index used to resolve labels.
//   - opts: Drawing options.
//
// Returns:
//   - []Annotation: The detections that were drawn, in drawing order.
func Annotate(r Renderer, size image.Point, detections []inference.Detection, index labelmap.CategoryIndex, opts Options) []Annotation {
	limit := len(detections)
	if opts.MaxBoxes > 0 && opts.MaxBoxes < limit {
		limit = opts.MaxBoxes
	}

	var drawn []Annotation
	for _, d := range detections[:limit] {
		if d.Score <= opts.MinScore {
			continue
		}

		a := Annotation{
			Detection: d,
			Rect:      d.Box.Rect(size.X, size.Y),
			Color:     ClassColor(d.Class),
		}
		if cat, ok := index.Lookup(d.Class); ok {
			a.Label = cat.Name
		}

		r.Rectangle(a.Rect, a.Color, opts.LineThickness)
		if a.Label != "" {
			r.Label(a.Text(), a.Rect, a.Color, opts.Font, opts.LineThickness)
		}
		drawn = append(drawn, a)
	}

	return drawn
}

func labelText(name string, score float32) string {
	// Truncated, so 0.926 reads 92%.
	pct := int(score * 100)
	if name == "" {
		return fmt.Sprintf("%d%%", pct)
	}
	return fmt.Sprintf("%s: %d%%", name, pct)
}
