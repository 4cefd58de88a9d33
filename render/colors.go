package render

import "image/color"

var (
	// Black is used for label text on the light palette colors.
	Black = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	// White is used for label text on dark backgrounds.
	White = color.RGBA{R: 255, G: 255, B: 255, A: 255}

	// classColors is the box palette, indexed by class id.
	classColors = []color.RGBA{
		{R: 240, G: 248, B: 255, A: 255}, // AliceBlue
		{R: 127, G: 255, B: 0, A: 255},   // Chartreuse
		{R: 0, G: 255, B: 255, A: 255},   // Aqua
		{R: 127, G: 255, B: 212, A: 255}, // Aquamarine
		{R: 255, G: 215, B: 0, A: 255},   // Gold
		{R: 255, G: 127, B: 80, A: 255},  // Coral
		{R: 100, G: 149, B: 237, A: 255}, // CornflowerBlue
		{R: 255, G: 105, B: 180, A: 255}, // HotPink
		{R: 173, G: 255, B: 47, A: 255},  // GreenYellow
		{R: 255, G: 165, B: 0, A: 255},   // Orange
		{R: 218, G: 112, B: 214, A: 255}, // Orchid
		{R: 64, G: 224, B: 208, A: 255},  // Turquoise
		{R: 250, G: 128, B: 114, A: 255}, // Salmon
		{R: 154, G: 205, B: 50, A: 255},  // YellowGreen
		{R: 255, G: 99, B: 71, A: 255},   // Tomato
		{R: 135, G: 206, B: 235, A: 255}, // SkyBlue
		{R: 238, G: 130, B: 238, A: 255}, // Violet
		{R: 245, G: 222, B: 179, A: 255}, // Wheat
		{R: 0, G: 255, B: 127, A: 255},   // SpringGreen
		{R: 255, G: 255, B: 0, A: 255},   // Yellow
	}
)

// ClassColor returns the palette color for a class id.
func ClassColor(class int) color.RGBA {
	if class < 0 {
		class = -class
	}
	return classColors[class%len(classColors)]
}
