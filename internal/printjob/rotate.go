package printjob

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"github.com/mzyy94/airlabel/internal/dymo"
)

// flatten copies img onto an opaque white canvas with its origin at (0, 0).
// Transparent areas come out white, which never prints.
func flatten(img image.Image) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Copy(dst, image.Point{}, img, b, draw.Over, nil)
	return dst
}

// RotateClockwise returns img turned 90° clockwise. The result is as wide as
// img is tall: dst(x, y) = src(y, h-1-x).
func RotateClockwise(img image.Image) *image.NRGBA {
	src := flatten(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, h, w))
	for y := range w {
		drow := dst.Pix[y*dst.Stride : y*dst.Stride+h*4]
		for x := range h {
			so := (h-1-x)*src.Stride + y*4
			copy(drow[x*4:x*4+4], src.Pix[so:so+4])
		}
	}
	return dst
}

// FitLabel scales img, keeping its aspect ratio, so that it covers no more
// than the printable area of l before rotation: half the page height across
// and the print head width down.
func FitLabel(img image.Image, l dymo.Label) image.Image {
	b := img.Bounds()
	maxW, maxH := l.PageHeight/2, l.PageWidth
	if b.Dx() == 0 || b.Dy() == 0 || maxW <= 0 || maxH <= 0 {
		return img
	}
	w, h := maxW, b.Dy()*maxW/b.Dx()
	if h > maxH {
		w, h = b.Dx()*maxH/b.Dy(), maxH
	}
	if w == b.Dx() && h == b.Dy() {
		return img
	}
	dst := image.NewNRGBA(image.Rect(0, 0, max(w, 1), max(h, 1)))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
