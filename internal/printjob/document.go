package printjob

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/mzyy94/airlabel/internal/dymo"
)

// Document is a paginated source of page bitmaps, read sequentially.
type Document interface {
	PageCount() int
	RenderPage(ctx context.Context, index int) (image.Image, error)
}

// ImageDocument is a document made of already rendered page images.
type ImageDocument struct {
	pages []image.Image
	fit   *dymo.Label
}

// NewImageDocument wraps rendered pages.
func NewImageDocument(pages ...image.Image) *ImageDocument {
	return &ImageDocument{pages: pages}
}

// DecodeImageDocument decodes one page per encoded image (PNG, JPEG, GIF,
// BMP or TIFF).
func DecodeImageDocument(pages [][]byte) (*ImageDocument, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("document has no pages")
	}
	doc := &ImageDocument{pages: make([]image.Image, len(pages))}
	for i, data := range pages {
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode page %d: %w", i+1, err)
		}
		doc.pages[i] = img
	}
	return doc, nil
}

// FitTo makes RenderPage scale every page to the printable area of l.
func (d *ImageDocument) FitTo(l dymo.Label) *ImageDocument {
	d.fit = &l
	return d
}

func (d *ImageDocument) PageCount() int { return len(d.pages) }

func (d *ImageDocument) RenderPage(ctx context.Context, index int) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if index < 0 || index >= len(d.pages) {
		return nil, fmt.Errorf("page %d out of range (%d pages)", index+1, len(d.pages))
	}
	img := d.pages[index]
	if d.fit != nil {
		img = FitLabel(img, *d.fit)
	}
	return img, nil
}
