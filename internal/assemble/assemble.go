// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package assemble merges an issue's page images, in order, into one PDF.
package assemble

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/go-pdf/fpdf"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/pdiddy/epaper/internal/fault"
)

// jpegQuality is used when re-encoding normalized pages.
const jpegQuality = 90

// Meta is the document information written into the PDF.
type Meta struct {
	Title   string
	Creator string
	// Date is used as the creation date so the same pages always produce
	// the same document structure.
	Date time.Time
}

// pageImage is one normalized page, ready to embed.
type pageImage struct {
	jpeg          []byte
	width, height int
}

// Merge writes the images at pages into a single PDF at out, one page per
// image, in the given order. Each page is as large as its image at 72 dpi.
// On failure no file is left at out.
func Merge(ctx context.Context, pages []string, out string, meta Meta) error {
	return merge(ctx, pages, out, meta, true)
}

// merge is Merge with content stream compression selectable.
func merge(ctx context.Context, pages []string, out string, meta Meta, compress bool) (err error) {
	if len(pages) == 0 {
		return fmt.Errorf("%w: no pages to merge", fault.ErrMerge)
	}

	defer func() {
		if err != nil {
			os.Remove(out)
		}
	}()

	var doc *fpdf.Fpdf
	for i, path := range pages {
		if err := ctx.Err(); err != nil {
			return err
		}

		pg, err := preparePage(path)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", fault.ErrMerge, filepath.Base(path), err)
		}

		size := fpdf.SizeType{Wd: float64(pg.width), Ht: float64(pg.height)}
		if doc == nil {
			doc = newDocument(size, meta, compress)
		}

		name := fmt.Sprintf("page-%03d", i+1)
		opts := fpdf.ImageOptions{ImageType: "JPG"}
		doc.AddPageFormat("P", size)
		doc.RegisterImageOptionsReader(name, opts, bytes.NewReader(pg.jpeg))
		doc.ImageOptions(name, 0, 0, size.Wd, size.Ht, false, opts, 0, "")
		if doc.Err() {
			return fmt.Errorf("%w: %s: %w", fault.ErrMerge, filepath.Base(path), doc.Error())
		}
	}

	if err := doc.OutputFileAndClose(out); err != nil {
		return fmt.Errorf("%w: writing %s: %w", fault.ErrMerge, filepath.Base(out), err)
	}
	return nil
}

func newDocument(first fpdf.SizeType, meta Meta, compress bool) *fpdf.Fpdf {
	doc := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           first,
	})
	doc.SetMargins(0, 0, 0)
	doc.SetAutoPageBreak(false, 0)
	doc.SetCompression(compress)
	doc.SetCatalogSort(true)
	if meta.Title != "" {
		doc.SetTitle(meta.Title, true)
	}
	if meta.Creator != "" {
		doc.SetCreator(meta.Creator, true)
	}
	if !meta.Date.IsZero() {
		doc.SetCreationDate(meta.Date)
	}
	return doc
}

// preparePage decodes the image at path, flattens it onto white in RGB and
// re-encodes it as a baseline JPEG.
func preparePage(path string) (pageImage, error) {
	fd, err := os.Open(path)
	if err != nil {
		return pageImage{}, err
	}
	defer fd.Close()

	src, _, err := image.Decode(fd)
	if err != nil {
		return pageImage{}, fmt.Errorf("decoding image: %w", err)
	}

	img := toRGB(src)
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return pageImage{}, fmt.Errorf("image has no pixels")
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return pageImage{}, fmt.Errorf("encoding page: %w", err)
	}
	return pageImage{jpeg: buf.Bytes(), width: b.Dx(), height: b.Dy()}, nil
}

// toRGB returns src as an opaque RGBA image anchored at the origin.
// Gray, CMYK, paletted and YCbCr sources all end up in the same colour model.
func toRGB(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	return dst
}
