package stages

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strconv"

	"github.com/chai2010/webp"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/tmattsson/photocurator/internal/pipeline"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// MediaWriter stores a derived artifact (thumbnail, face crop, motion video)
// under its sharded relative path.
type MediaWriter interface {
	ThumbnailPath(key string, size string) string
	Store(relativePath string, data []byte) error
	Exists(relativePath string) (bool, error)
}

// ThumbnailWriter persists the thumbnail-generated completion flag.
type ThumbnailWriter interface {
	SetThumbnailsGenerated(ctx context.Context, key string) error
}

// NewThumbnailEnricher builds the Thumbnails stage enricher. It decodes the
// source image once, then resizes and re-encodes it to WEBP at each
// configured size (applied to the longer edge), skipping sizes whose file
// already exists.
func NewThumbnailEnricher(resolver ItemFileResolver, media MediaWriter, writer ThumbnailWriter, sizes []int) pipeline.Enricher {
	return func(ctx context.Context, key string) (pipeline.EnrichOutcome, error) {
		path, ok, err := resolver.ResolvePath(ctx, key)
		if err != nil {
			return pipeline.EnrichNoop, fmt.Errorf("resolving path for %s: %w", key, err)
		}
		if !ok {
			return pipeline.EnrichNoop, fmt.Errorf("no path for item %s", key)
		}

		src, err := decodeOriented(path)
		if err != nil {
			return pipeline.EnrichNoop, fmt.Errorf("decoding %s: %w", path, err)
		}

		generated := 0
		for _, size := range sizes {
			relPath := media.ThumbnailPath(key, strconv.Itoa(size))
			exists, err := media.Exists(relPath)
			if err != nil {
				return pipeline.EnrichNoop, fmt.Errorf("checking thumbnail existence: %w", err)
			}
			if exists {
				generated++
				continue
			}

			thumb := resizeToFit(src, size)
			data, err := encodeWebP(thumb)
			if err != nil {
				return pipeline.EnrichNoop, fmt.Errorf("encoding thumbnail for %s: %w", key, err)
			}
			if err := media.Store(relPath, data); err != nil {
				return pipeline.EnrichNoop, fmt.Errorf("storing thumbnail for %s: %w", key, err)
			}
			generated++
		}

		if generated == 0 {
			return pipeline.EnrichNoop, nil
		}
		if err := writer.SetThumbnailsGenerated(ctx, key); err != nil {
			return pipeline.EnrichNoop, fmt.Errorf("marking thumbnails generated for %s: %w", key, err)
		}
		return pipeline.EnrichSuccess, nil
	}
}

// decodeOriented decodes an image and applies the EXIF orientation
// rotations that applyOrientation handles.
func decodeOriented(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}

	orientation := 1
	if _, seekErr := f.Seek(0, 0); seekErr == nil {
		if x, exifErr := exif.Decode(f); exifErr == nil {
			if tag, tagErr := x.Get(exif.Orientation); tagErr == nil {
				if v, vErr := tag.Int(0); vErr == nil {
					orientation = v
				}
			}
		}
	}

	return applyOrientation(img, orientation), nil
}

// applyOrientation rotates img per the EXIF orientation tag: 3 (180°),
// 6 (90° clockwise) and 8 (90° counter-clockwise). Mirrored orientations
// (2, 4, 5, 7) are not flipped; they, orientation 1 and unrecognized values
// are returned unchanged.
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 3:
		return rotate180(img)
	case 6:
		return rotate90CW(img)
	case 8:
		return rotate90CCW(img)
	default:
		return img
	}
}

func rotate180(src image.Image) image.Image {
	b := src.Bounds()
	dst := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(b.Max.X-1-(x-b.Min.X), b.Max.Y-1-(y-b.Min.Y), src.At(x, y))
		}
	}
	return dst
}

func rotate90CW(src image.Image) image.Image {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(b.Max.Y-1-(y-b.Min.Y), x-b.Min.X, src.At(x, y))
		}
	}
	return dst
}

func rotate90CCW(src image.Image) image.Image {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(y-b.Min.Y, b.Max.X-1-(x-b.Min.X), src.At(x, y))
		}
	}
	return dst
}

// resizeToFit scales src so its longer edge equals maxDim, preserving aspect
// ratio, mirroring Pillow's Image.thumbnail() semantics. Images already
// within bounds are returned unchanged.
func resizeToFit(src image.Image, maxDim int) image.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxDim && h <= maxDim {
		return src
	}

	var newW, newH int
	if w >= h {
		newW = maxDim
		newH = h * maxDim / w
	} else {
		newH = maxDim
		newW = w * maxDim / h
	}
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	return dst
}

func encodeWebP(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: 80}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
