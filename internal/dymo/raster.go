package dymo

import (
	"image"
	"image/color"
)

// Threshold is the blue channel value below which a pixel is printed.
const Threshold = 128

// Raster is one page packed for the print head: 1 bit per dot, MSB first,
// row-major, each row padded with zero bits to AdjustedWidth.
type Raster struct {
	Index         int
	Width         int
	Height        int
	AdjustedWidth int
	Bits          []byte
}

// AlignedWidth rounds width up to a whole number of bytes, in dots.
func AlignedWidth(width int) int {
	return (width + 7) / 8 * 8
}

// PackedSize is the number of bytes PackMonochrome produces.
func PackedSize(width, height int) int {
	return (width + 7) / 8 * height
}

// PackMonochrome thresholds img on its blue channel and packs the result.
// Padding columns are always zero.
func PackMonochrome(img image.Image) *Raster {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	stride := (w + 7) / 8
	r := &Raster{
		Width:         w,
		Height:        h,
		AdjustedWidth: stride * 8,
		Bits:          make([]byte, stride*h),
	}

	// Fast path: NRGBA is what the rotator produces.
	if src, ok := img.(*image.NRGBA); ok {
		for y := range h {
			row := src.Pix[y*src.Stride : y*src.Stride+w*4]
			out := r.Bits[y*stride : (y+1)*stride]
			for x := range w {
				if row[x*4+2] < Threshold {
					out[x>>3] |= 0x80 >> uint(x&7)
				}
			}
		}
		return r
	}

	for y := range h {
		out := r.Bits[y*stride : (y+1)*stride]
		for x := range w {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			if c.B < Threshold {
				out[x>>3] |= 0x80 >> uint(x&7)
			}
		}
	}
	return r
}

// Dot reports whether the dot at (x, y) is marked.
func (r *Raster) Dot(x, y int) bool {
	stride := r.AdjustedWidth / 8
	return r.Bits[y*stride+x>>3]&(0x80>>uint(x&7)) != 0
}
