package printjob

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"github.com/go-pdf/fpdf"

	"github.com/mzyy94/airlabel/internal/dymo"
)

// WriteProof writes a PDF with one page per raster to dir and returns its path.
func WriteProof(dir, jobID string, rasters []*dymo.Raster) (string, error) {
	data, err := GenerateProof(rasters)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create proof directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("job_%s.pdf", jobID))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write proof: %w", err)
	}
	return path, nil
}

// GenerateProof renders the exact dots sent to the printer as a PDF, one page
// per label, sized at the device resolution.
func GenerateProof(rasters []*dymo.Raster) ([]byte, error) {
	if len(rasters) == 0 {
		return nil, fmt.Errorf("no pages to write")
	}

	pdf := fpdf.New("P", "mm", "", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle("airlabel proof", true)

	for i, r := range rasters {
		if r.AdjustedWidth == 0 || r.Height == 0 {
			return nil, fmt.Errorf("page %d is empty", i+1)
		}
		widthMM := float64(r.AdjustedWidth) / dymo.DeviceDPI * 25.4
		heightMM := float64(r.Height) / dymo.DeviceDPI * 25.4
		pdf.AddPageFormat("P", fpdf.SizeType{Wd: widthMM, Ht: heightMM})

		var buf bytes.Buffer
		if err := png.Encode(&buf, rasterImage(r)); err != nil {
			return nil, fmt.Errorf("encode page %d PNG: %w", i+1, err)
		}
		name := fmt.Sprintf("label%d", i)
		pdf.RegisterImageOptionsReader(name, fpdf.ImageOptions{ImageType: "PNG"}, &buf)
		pdf.ImageOptions(name, 0, 0, widthMM, heightMM, false, fpdf.ImageOptions{}, 0, "")
	}

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, fmt.Errorf("generate PDF: %w", err)
	}
	return out.Bytes(), nil
}

// rasterImage expands packed dots into a 1-bit paletted image.
func rasterImage(r *dymo.Raster) *image.Paletted {
	dst := image.NewPaletted(image.Rect(0, 0, r.AdjustedWidth, r.Height), color.Palette{color.White, color.Black})
	for y := range r.Height {
		row := dst.Pix[y*dst.Stride : y*dst.Stride+r.AdjustedWidth]
		for x := range r.AdjustedWidth {
			if r.Dot(x, y) {
				row[x] = 1
			}
		}
	}
	return dst
}
