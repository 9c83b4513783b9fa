// CLAUDE:SUMMARY Downscales a rendered viewport to an opaque thumbnail and encodes it as a PNG data URI, falling back once to JPEG q60 above the size limit.
// Package raster turns a rendered surface into a compact thumbnail data
// URI. The viewport is scaled by Scale over opaque white and encoded as
// PNG; when that data URI is longer than MaxBytes it is re-encoded as JPEG
// and the JPEG is used whatever its size.
package raster

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
)

// Formats of an encoded thumbnail.
const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
)

// Config tunes a Rasterizer. Zero values take defaults.
type Config struct {
	// Scale is applied to the captured viewport. Default 0.5.
	Scale float64 `yaml:"scale"`
	// MaxBytes is the data URI length above which PNG gives way to JPEG.
	// Default 1,000,000.
	MaxBytes int `yaml:"max_bytes"`
	// JPEGQuality is used for the fallback. Default 60.
	JPEGQuality int `yaml:"jpeg_quality"`
}

func (c *Config) defaults() {
	if c.Scale <= 0 || c.Scale > 1 {
		c.Scale = 0.5
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 1_000_000
	}
	if c.JPEGQuality <= 0 || c.JPEGQuality > 100 {
		c.JPEGQuality = 60
	}
}

// Snapshotter is anything that can capture itself, such as a render
// surface.
type Snapshotter interface {
	Snapshot(ctx context.Context) (image.Image, error)
}

// Encoded is a thumbnail ready for storage.
type Encoded struct {
	DataURI string `json:"data_uri"`
	Format  string `json:"format"`
	// Fallback is true when the PNG was too large and JPEG was used.
	Fallback bool `json:"fallback"`
	Width    int  `json:"width"`
	Height   int  `json:"height"`
}

// Rasterizer captures and encodes thumbnails. It is stateless and safe for
// concurrent use.
type Rasterizer struct {
	cfg Config
}

// New creates a Rasterizer.
func New(cfg Config) *Rasterizer {
	cfg.defaults()
	return &Rasterizer{cfg: cfg}
}

// Capture snapshots s and encodes it.
func (r *Rasterizer) Capture(ctx context.Context, s Snapshotter) (*Encoded, error) {
	img, err := s.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("raster: snapshot: %w", err)
	}
	return r.Encode(img)
}

// Encode scales img and encodes it under the size policy.
func (r *Rasterizer) Encode(img image.Image) (*Encoded, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("raster: empty image")
	}
	thumb := r.scale(img)
	tb := thumb.Bounds()

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, thumb); err != nil {
		return nil, fmt.Errorf("raster: png: %w", err)
	}
	uri := dataURI("image/png", buf.Bytes())
	if len(uri) <= r.cfg.MaxBytes {
		return &Encoded{DataURI: uri, Format: FormatPNG, Width: tb.Dx(), Height: tb.Dy()}, nil
	}

	buf.Reset()
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: r.cfg.JPEGQuality}); err != nil {
		return nil, fmt.Errorf("raster: jpeg: %w", err)
	}
	return &Encoded{
		DataURI:  dataURI("image/jpeg", buf.Bytes()),
		Format:   FormatJPEG,
		Fallback: true,
		Width:    tb.Dx(),
		Height:   tb.Dy(),
	}, nil
}

// scale draws img over white at the configured scale with Catmull-Rom.
func (r *Rasterizer) scale(img image.Image) *image.RGBA {
	b := img.Bounds()
	w := max(1, int(float64(b.Dx())*r.cfg.Scale+0.5))
	h := max(1, int(float64(b.Dy())*r.cfg.Scale+0.5))

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

func dataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// Decode parses a thumbnail data URI back into an image, checking that the
// payload matches the declared type.
func Decode(uri string) (image.Image, string, error) {
	var mime, payload string
	for _, m := range []string{"image/png", "image/jpeg"} {
		prefix := "data:" + m + ";base64,"
		if len(uri) > len(prefix) && uri[:len(prefix)] == prefix {
			mime, payload = m, uri[len(prefix):]
			break
		}
	}
	if mime == "" {
		return nil, "", fmt.Errorf("raster: not a png or jpeg data URI")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("raster: base64: %w", err)
	}
	var img image.Image
	if mime == "image/png" {
		img, err = png.Decode(bytes.NewReader(data))
	} else {
		img, err = jpeg.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return nil, "", fmt.Errorf("raster: decode %s: %w", mime, err)
	}
	return img, mime, nil
}
