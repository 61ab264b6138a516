package loader

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

const tracerName = "github.com/Swind/go-async-loader/loader"

// Decode errors.
var (
	// ErrUnsupportedFormat is returned when no decoder recognizes the file.
	ErrUnsupportedFormat = errors.New("loader: unsupported image format")

	// ErrEmptyImage is returned for images with a zero dimension.
	ErrEmptyImage = errors.New("loader: empty image")
)

// Image is a decoded picture in RGBA8 layout, ready for texture upload.
type Image struct {
	Path   string
	Format string
	Pixels *image.RGBA

	// SourceWidth and SourceHeight are the dimensions before downscaling.
	SourceWidth  int
	SourceHeight int
}

// Width returns the pixel width.
func (img *Image) Width() int { return img.Pixels.Rect.Dx() }

// Height returns the pixel height.
func (img *Image) Height() int { return img.Pixels.Rect.Dy() }

// Aspect returns width / height of the source.
func (img *Image) Aspect() float64 {
	return float64(img.SourceWidth) / float64(img.SourceHeight)
}

type decodeFunc func(io.Reader) (image.Image, error)

var decoders = map[string]struct {
	format string
	decode decodeFunc
}{
	".png":  {"png", png.Decode},
	".jpg":  {"jpeg", jpeg.Decode},
	".jpeg": {"jpeg", jpeg.Decode},
	".gif":  {"gif", gif.Decode},
	".bmp":  {"bmp", bmp.Decode},
	".tif":  {"tiff", tiff.Decode},
	".tiff": {"tiff", tiff.Decode},
	".webp": {"webp", webp.Decode},
}

// DecodeFile reads and decodes the image at path. Known extensions select
// their decoder directly; anything else is sniffed from the content. When
// maxSize > 0 the result is downscaled so neither side exceeds it.
//
// DecodeFile touches no shared state and may run on any goroutine.
func DecodeFile(ctx context.Context, path string, maxSize int) (_ *Image, err error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "loader.DecodeFile",
		trace.WithAttributes(attribute.String("image.path", path)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("loader: open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	src, format, err := decode(f, strings.ToLower(filepath.Ext(path)))
	if err != nil {
		return nil, fmt.Errorf("loader: decode %s: %w", path, err)
	}

	b := src.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("loader: decode %s: %w", path, ErrEmptyImage)
	}

	img := &Image{
		Path:         path,
		Format:       format,
		Pixels:       toRGBA(src, maxSize),
		SourceWidth:  b.Dx(),
		SourceHeight: b.Dy(),
	}
	span.SetAttributes(
		attribute.String("image.format", format),
		attribute.Int("image.width", img.Width()),
		attribute.Int("image.height", img.Height()),
	)
	return img, nil
}

func decode(r io.Reader, ext string) (image.Image, string, error) {
	if d, ok := decoders[ext]; ok {
		img, err := d.decode(r)
		return img, d.format, err
	}

	// Sniff the content; the x/image packages register bmp, tiff and webp.
	img, format, err := image.Decode(r)
	if errors.Is(err, image.ErrFormat) {
		return nil, "", ErrUnsupportedFormat
	}
	return img, format, err
}

// toRGBA converts src to RGBA8, scaling it down to fit maxSize if needed.
func toRGBA(src image.Image, maxSize int) *image.RGBA {
	b := src.Bounds()
	w, h := fitWithin(b.Dx(), b.Dy(), maxSize)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))

	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Rect, src, b.Min, draw.Src)
		return dst
	}
	xdraw.ApproxBiLinear.Scale(dst, dst.Rect, src, b, xdraw.Src, nil)
	return dst
}

// fitWithin keeps the aspect ratio and never returns a zero side.
func fitWithin(w, h, maxSize int) (int, int) {
	if maxSize <= 0 || (w <= maxSize && h <= maxSize) {
		return w, h
	}
	if w >= h {
		return maxSize, max(1, h*maxSize/w)
	}
	return max(1, w*maxSize/h), maxSize
}
