package inference

import (
	"image"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// ErrShapeMismatch is returned (wrapped) when tensors do not have the shape a step expects.
var ErrShapeMismatch = errors.New("tensor shape mismatch")

// Frame is one decoded three-channel image, RGB interleaved in row-major (HWC) order.
type Frame struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewFrame converts an image into an RGB frame.
//
// When size is non-zero the image is first resized to exactly size.X x size.Y with Lanczos3
// resampling. Boxes come back normalized, so they still map onto the original image.
//
// Arguments:
//   - img: The decoded image.
//   - size: The model input size, or the zero point to keep the image size.
//
// Returns:
//   - Frame: The packed RGB frame.
//   - error: An error if the image is empty.
func NewFrame(img image.Image, size image.Point) (Frame, error) {
	if img == nil || img.Bounds().Empty() {
		return Frame{}, errors.New("image is empty")
	}

	if size.X > 0 && size.Y > 0 {
		img = resize.Resize(uint(size.X), uint(size.Y), img, resize.Lanczos3)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	pix := make([]uint8, w*h*3)

	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			pix[i] = uint8(r >> 8)
			pix[i+1] = uint8(g >> 8)
			pix[i+2] = uint8(bl >> 8)
			i += 3
		}
	}

	return Frame{Width: w, Height: h, Pix: pix}, nil
}

// Batch is the uint8 input tensor fed to the graph, shaped [batch, height, width, 3].
type Batch struct {
	Shape [4]int64
	Data  []uint8
}

// Size returns the batch dimension.
func (b Batch) Size() int {
	return int(b.Shape[0])
}

// Height returns the image height of every frame in the batch.
func (b Batch) Height() int {
	return int(b.Shape[1])
}

// Width returns the image width of every frame in the batch.
func (b Batch) Width() int {
	return int(b.Shape[2])
}

// ShapeSlice returns the shape as a slice, which is what the runtimes take.
func (b Batch) ShapeSlice() []int64 {
	return b.Shape[:]
}

// Frame returns the i-th frame of the batch without copying.
func (b Batch) Frame(i int) Frame {
	n := b.Width() * b.Height() * 3
	return Frame{Width: b.Width(), Height: b.Height(), Pix: b.Data[i*n : (i+1)*n]}
}

// ExpandDims stacks frames along a new leading batch dimension.
//
// The model expects a batch of images, so a single frame becomes a [1, H, W, 3] tensor.
//
// Arguments:
//   - frames: One or more frames of identical size.
//
// Returns:
//   - Batch: The stacked input tensor.
//   - error: An error wrapping ErrShapeMismatch if the frames differ in size or are malformed.
func ExpandDims(frames ...Frame) (Batch, error) {
	if len(frames) == 0 {
		return Batch{}, errors.Wrap(ErrShapeMismatch, "no frames to batch")
	}

	w, h := frames[0].Width, frames[0].Height
	n := w * h * 3
	data := make([]uint8, 0, n*len(frames))
	for i, f := range frames {
		if f.Width != w || f.Height != h {
			return Batch{}, errors.Wrapf(ErrShapeMismatch, "frame %d is %dx%d, expected %dx%d",
				i, f.Width, f.Height, w, h)
		}
		if len(f.Pix) != n {
			return Batch{}, errors.Wrapf(ErrShapeMismatch, "frame %d holds %d bytes, expected %d",
				i, len(f.Pix), n)
		}
		data = append(data, f.Pix...)
	}

	return Batch{
		Shape: [4]int64{int64(len(frames)), int64(h), int64(w), 3},
		Data:  data,
	}, nil
}
