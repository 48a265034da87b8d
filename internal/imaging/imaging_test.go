package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	return img
}

func TestHeaderBandCropHeight(t *testing.T) {
	img := testImage(200, 100)
	band := HeaderBand(img, HeaderOptions{CropPct: 0.15})

	if got := band.Bounds().Dy(); got != 15 {
		t.Errorf("band height = %d, want 15", got)
	}
	if got := band.Bounds().Dx(); got != 200 {
		t.Errorf("band width = %d, want 200", got)
	}
}

func TestHeaderBandPreprocessingProducesGray(t *testing.T) {
	img := testImage(80, 40)
	band := HeaderBand(img, HeaderOptions{CropPct: 0.25, Greyscale: true, Sharpen: true, Normalize: true})

	if _, ok := band.(*image.Gray); !ok {
		t.Fatalf("expected *image.Gray, got %T", band)
	}
	if got := band.Bounds().Dy(); got != 10 {
		t.Errorf("band height = %d, want 10", got)
	}
}

func TestPlateRegionRespectsMarginsAndWidth(t *testing.T) {
	img := testImage(1000, 800)
	opts := PlateOptions{
		TopOffset:    0.35,
		BottomMargin: 0.05,
		LeftMargin:   0.15,
		RightMargin:  0.15,
		TargetWidth:  640,
	}
	region := PlateRegion(img, opts)

	if got := region.Bounds().Dx(); got != 640 {
		t.Errorf("region width = %d, want 640", got)
	}
	// Crop is 700x480 before scaling; 640/700 of 480 is 329.
	if got := region.Bounds().Dy(); got != 329 {
		t.Errorf("region height = %d, want 329", got)
	}
}

func TestPlateRegionNeverEnlarges(t *testing.T) {
	img := testImage(300, 200)
	region := PlateRegion(img, PlateOptions{TargetWidth: 640})

	if got := region.Bounds().Dx(); got > 300 {
		t.Errorf("region width = %d, must not exceed source width 300", got)
	}
}

func TestNormalizeStretchesRange(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 4, 1))
	img.Pix = []uint8{100, 120, 140, 160}

	out := normalize(img)
	if out.Pix[0] != 0 {
		t.Errorf("min pixel = %d, want 0", out.Pix[0])
	}
	if out.Pix[3] != 255 {
		t.Errorf("max pixel = %d, want 255", out.Pix[3])
	}
}

func TestEncodeJPEGDecodable(t *testing.T) {
	img := testImage(32, 32)
	data, err := EncodeJPEG(img, 80)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("re-decode failed: %v", err)
	}
	if decoded.Bounds().Dx() != 32 {
		t.Errorf("decoded width = %d, want 32", decoded.Bounds().Dx())
	}
}
