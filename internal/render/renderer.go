// Package render turns normalized 8-bit images into persisted PNG
// artifacts: a full-resolution raster plus a bounded thumbnail sharing
// one unique filename stem.
package render

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"image"
	"image/png"

	"github.com/google/uuid"
	"golang.org/x/image/draw"
)

// ThumbnailMaxDim bounds both thumbnail dimensions.
const ThumbnailMaxDim = 256

// BlobWriter is the storage collaborator the renderer writes through.
type BlobWriter interface {
	Store(rel string, data []byte) error
	Remove(rel string) error
}

// Artifacts references the two persisted rasters by their externally
// addressable paths.
type Artifacts struct {
	ImagePath     string `json:"image_path"`
	ThumbnailPath string `json:"thumbnail_path"`
}

// Renderer encodes and persists rasters for one upload at a time.
type Renderer struct {
	blobs     BlobWriter
	urlPrefix string
}

// New returns a Renderer writing through blobs. urlPrefix is the mount
// point artifact paths are served under (e.g. "/media").
func New(blobs BlobWriter, urlPrefix string) *Renderer {
	return &Renderer{blobs: blobs, urlPrefix: urlPrefix}
}

// Render persists the full image and its thumbnail under a fresh random
// 128-bit stem and returns their serving paths. Failures surface the
// blob store's StorageError; a half-written pair is rolled back.
func (r *Renderer) Render(img *image.Gray) (Artifacts, error) {
	full, err := encodePNG(img)
	if err != nil {
		return Artifacts{}, err
	}
	thumb, err := encodePNG(Thumbnail(img, ThumbnailMaxDim))
	if err != nil {
		return Artifacts{}, err
	}

	id := uuid.New()
	stem := hex.EncodeToString(id[:])
	imageRel := "images/" + stem + ".png"
	thumbRel := "thumbnails/" + stem + ".png"

	if err := r.blobs.Store(imageRel, full); err != nil {
		return Artifacts{}, err
	}
	if err := r.blobs.Store(thumbRel, thumb); err != nil {
		_ = r.blobs.Remove(imageRel)
		return Artifacts{}, err
	}

	return Artifacts{
		ImagePath:     r.urlPrefix + "/" + imageRel,
		ThumbnailPath: r.urlPrefix + "/" + thumbRel,
	}, nil
}

// Discard removes a previously rendered artifact pair. Used when the
// study record cannot be persisted, so no partial upload survives.
func (r *Renderer) Discard(art Artifacts) {
	for _, p := range []string{art.ImagePath, art.ThumbnailPath} {
		if rel, ok := trimPrefixSlash(p, r.urlPrefix); ok {
			_ = r.blobs.Remove(rel)
		}
	}
}

// Thumbnail downscales img so both dimensions fit within maxDim while
// preserving aspect ratio. Images already inside the box are returned
// unchanged, never upscaled.
func Thumbnail(img *image.Gray, maxDim int) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}

	tw, th := w, h
	if w >= h {
		tw = maxDim
		th = h * maxDim / w
	} else {
		th = maxDim
		tw = w * maxDim / h
	}
	if tw < 1 {
		tw = 1
	}
	if th < 1 {
		th = 1
	}

	dst := image.NewGray(image.Rect(0, 0, tw, th))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func encodePNG(img *image.Gray) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func trimPrefixSlash(p, prefix string) (string, bool) {
	full := prefix + "/"
	if len(p) > len(full) && p[:len(full)] == full {
		return p[len(full):], true
	}
	return "", false
}
