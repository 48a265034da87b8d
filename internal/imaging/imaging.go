// Package imaging covers the crop and preprocessing steps that feed both OCR
// engines. Everything works on decoded stdlib images; scaling goes through
// golang.org/x/image/draw.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"

	xdraw "golang.org/x/image/draw"
)

// HeaderOptions controls the header-band crop fed to the text engine.
type HeaderOptions struct {
	CropPct   float64
	Greyscale bool
	Sharpen   bool
	Normalize bool
}

// PlateOptions controls the plate-region crop fed to the vision model. The
// margins are fractions of the full frame; TargetWidth bounds the payload
// size without ever enlarging.
type PlateOptions struct {
	TopOffset    float64
	BottomMargin float64
	LeftMargin   float64
	RightMargin  float64
	TargetWidth  int
	JPEGQuality  int
}

// Load decodes a JPEG or PNG photo from disk.
func Load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}
	return img, nil
}

// HeaderBand crops the top band of the image and applies the configured
// preprocessing passes.
func HeaderBand(img image.Image, opts HeaderOptions) image.Image {
	bounds := img.Bounds()
	cropHeight := int(float64(bounds.Dy()) * opts.CropPct)
	if cropHeight < 1 {
		cropHeight = 1
	}
	band := Crop(img, image.Rect(bounds.Min.X, bounds.Min.Y, bounds.Max.X, bounds.Min.Y+cropHeight))

	if !opts.Greyscale && !opts.Sharpen && !opts.Normalize {
		return band
	}

	// Sharpen and normalize both operate on the luminance channel, so any
	// enabled pass starts from a greyscale conversion.
	gray := Greyscale(band)
	if opts.Sharpen {
		gray = sharpen(gray)
	}
	if opts.Normalize {
		gray = normalize(gray)
	}
	return gray
}

// PlateRegion crops the configured plate window and scales it down to the
// target width.
func PlateRegion(img image.Image, opts PlateOptions) image.Image {
	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	top := bounds.Min.Y + clampInt(int(float64(h)*opts.TopOffset), 0, h-1)
	bottom := bounds.Min.Y + clampInt(int(float64(h)*(1-opts.BottomMargin)), top+1, h)
	left := bounds.Min.X + clampInt(int(float64(w)*opts.LeftMargin), 0, w-1)
	right := bounds.Min.X + clampInt(int(float64(w)*(1-opts.RightMargin)), left+1, w)

	region := Crop(img, image.Rect(left, top, right, bottom))
	if opts.TargetWidth > 0 && region.Bounds().Dx() > opts.TargetWidth {
		region = scaleToWidth(region, opts.TargetWidth)
	}
	return Greyscale(region)
}

// Crop copies the given rectangle into a fresh image anchored at the origin.
func Crop(img image.Image, rect image.Rectangle) image.Image {
	rect = rect.Intersect(img.Bounds())
	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(out, out.Bounds(), img, rect.Min, draw.Src)
	return out
}

// Greyscale converts any image to 8-bit luminance.
func Greyscale(img image.Image) *image.Gray {
	bounds := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	xdraw.Draw(out, out.Bounds(), img, bounds.Min, xdraw.Src)
	return out
}

// EncodePNG renders the image as PNG bytes for the text-recognition engine.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeJPEG renders the image as JPEG bytes at the given quality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func scaleToWidth(img image.Image, width int) image.Image {
	bounds := img.Bounds()
	height := int(float64(bounds.Dy()) * float64(width) / float64(bounds.Dx()))
	if height < 1 {
		height = 1
	}
	out := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(out, out.Bounds(), img, bounds, xdraw.Over, nil)
	return out
}

// sharpen applies a 3x3 unsharp kernel, clamping to [0, 255].
func sharpen(img *image.Gray) *image.Gray {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := image.NewGray(bounds)
	copy(out.Pix, img.Pix)

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			center := int(img.GrayAt(x, y).Y)
			sum := 5*center -
				int(img.GrayAt(x, y-1).Y) -
				int(img.GrayAt(x, y+1).Y) -
				int(img.GrayAt(x-1, y).Y) -
				int(img.GrayAt(x+1, y).Y)
			out.Pix[out.PixOffset(x, y)] = uint8(clampInt(sum, 0, 255))
		}
	}
	return out
}

// normalize stretches the luminance range to the full [0, 255] interval.
func normalize(img *image.Gray) *image.Gray {
	min, max := uint8(255), uint8(0)
	for _, p := range img.Pix {
		if p < min {
			min = p
		}
		if p > max {
			max = p
		}
	}
	if min >= max {
		return img
	}

	out := image.NewGray(img.Bounds())
	scale := 255.0 / float64(max-min)
	for i, p := range img.Pix {
		out.Pix[i] = uint8(float64(p-min) * scale)
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
