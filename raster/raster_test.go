package raster

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math/rand"
	"strings"
	"testing"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func noise(w, h int) *image.RGBA {
	rng := rand.New(rand.NewSource(1))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	rng.Read(img.Pix)
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	return img
}

func TestEncode_PNGUnderLimit(t *testing.T) {
	r := New(Config{})
	enc, err := r.Encode(solid(1200, 800, color.RGBA{0, 128, 255, 255}))
	if err != nil {
		t.Fatal(err)
	}
	if enc.Format != FormatPNG || enc.Fallback {
		t.Fatalf("format = %s fallback = %v", enc.Format, enc.Fallback)
	}
	if enc.Width != 600 || enc.Height != 400 {
		t.Fatalf("size = %dx%d, want 600x400", enc.Width, enc.Height)
	}
	if !strings.HasPrefix(enc.DataURI, "data:image/png;base64,") || len(enc.DataURI) > 1_000_000 {
		t.Fatalf("unexpected data URI (%d bytes)", len(enc.DataURI))
	}

	img, mime, err := Decode(enc.DataURI)
	if err != nil || mime != "image/png" {
		t.Fatalf("decode: %v %s", err, mime)
	}
	if img.Bounds().Dx() != 600 {
		t.Fatalf("decoded width = %d", img.Bounds().Dx())
	}
}

func TestEncode_JPEGFallbackAboveLimit(t *testing.T) {
	// WHAT: noisy pixels make the PNG exceed a small limit.
	r := New(Config{MaxBytes: 20_000})
	enc, err := r.Encode(noise(400, 300))
	if err != nil {
		t.Fatal(err)
	}
	if enc.Format != FormatJPEG || !enc.Fallback {
		t.Fatalf("format = %s fallback = %v", enc.Format, enc.Fallback)
	}
	if _, mime, err := Decode(enc.DataURI); err != nil || mime != "image/jpeg" {
		t.Fatalf("decode: %v %s", err, mime)
	}
}

func TestEncode_JPEGUsedEvenIfStillLarge(t *testing.T) {
	// WHY: there is no third attempt; the JPEG is returned whatever its size.
	r := New(Config{MaxBytes: 10})
	enc, err := r.Encode(noise(200, 200))
	if err != nil {
		t.Fatal(err)
	}
	if enc.Format != FormatJPEG || len(enc.DataURI) <= 10 {
		t.Fatalf("format = %s len = %d", enc.Format, len(enc.DataURI))
	}
}

func TestEncode_TransparentBecomesWhite(t *testing.T) {
	r := New(Config{})
	enc, err := r.Encode(image.NewRGBA(image.Rect(0, 0, 40, 40)))
	if err != nil {
		t.Fatal(err)
	}
	img, _, err := Decode(enc.DataURI)
	if err != nil {
		t.Fatal(err)
	}
	rr, g, b, a := img.At(10, 10).RGBA()
	if rr>>8 != 255 || g>>8 != 255 || b>>8 != 255 || a>>8 != 255 {
		t.Fatalf("pixel = %d,%d,%d,%d; want opaque white", rr>>8, g>>8, b>>8, a>>8)
	}
}

type fakeSurface struct {
	img image.Image
	err error
}

func (f fakeSurface) Snapshot(context.Context) (image.Image, error) { return f.img, f.err }

func TestCapture(t *testing.T) {
	r := New(Config{})
	enc, err := r.Capture(context.Background(), fakeSurface{img: solid(100, 50, color.Black)})
	if err != nil {
		t.Fatal(err)
	}
	if enc.Width != 50 || enc.Height != 25 {
		t.Fatalf("size = %dx%d", enc.Width, enc.Height)
	}

	boom := errors.New("target crashed")
	if _, err := r.Capture(context.Background(), fakeSurface{err: boom}); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestDecode_Rejects(t *testing.T) {
	for _, uri := range []string{
		"",
		"data:image/gif;base64,R0lGOD",
		"data:image/png;base64,!!!",
		"data:image/jpeg;base64,aGVsbG8=",
	} {
		if _, _, err := Decode(uri); err == nil {
			t.Errorf("Decode(%q) succeeded", uri)
		}
	}
}
