// Package pixel converts raw DICOM pixel samples into display-ready
// 8-bit grayscale images: modality rescaling, clinical windowing and
// photometric polarity inversion.
package pixel

import (
	"image"
	"math"
)

// Photometric interpretation values that affect display polarity.
// MONOCHROME1 displays low values as bright and must be inverted after
// normalization. Anything else (including absent) is displayed as-is.
const (
	Monochrome1 = "MONOCHROME1"
	Monochrome2 = "MONOCHROME2"
)

// RawImage is a single-frame grid of stored pixel values, row-major.
// Samples are widened to int64 at decode time so that 8, 16 and 32-bit
// sources share one representation.
type RawImage struct {
	Rows          int
	Cols          int
	BitsAllocated int
	Samples       []int64
}

// RealImage is a grid of real-world intensities (e.g. Hounsfield units)
// produced by applying the modality rescale transform.
type RealImage struct {
	Rows    int
	Cols    int
	Samples []float64
}

// RescaleParams is the modality LUT linear transform. DICOM defines the
// stored-to-real mapping as real = stored*slope + intercept.
type RescaleParams struct {
	Slope     float64
	Intercept float64
}

// DefaultRescale is the identity transform used when the source carries
// no RescaleSlope/RescaleIntercept.
func DefaultRescale() RescaleParams {
	return RescaleParams{Slope: 1, Intercept: 0}
}

// WindowParams is an explicit clinical display window. A window is only
// usable when Width > 0; callers pass nil (or a non-positive width) to
// request the min/max fallback.
type WindowParams struct {
	Center float64
	Width  float64
}

// Rescale applies the modality transform to every sample. Samples are
// promoted to float64 before the multiply so 16-bit sources cannot
// overflow or truncate.
func Rescale(raw RawImage, params RescaleParams) RealImage {
	out := RealImage{
		Rows:    raw.Rows,
		Cols:    raw.Cols,
		Samples: make([]float64, len(raw.Samples)),
	}
	for i, s := range raw.Samples {
		out.Samples[i] = float64(s)*params.Slope + params.Intercept
	}
	return out
}

// Normalize maps real-world intensities to 8-bit display values.
//
// With a usable window the range [center-width/2, center+width/2] maps
// linearly onto [0,255]; samples outside the window are clipped first so
// they saturate at 0 or 255. Without a window the observed [min,max]
// maps onto [0,255], and a fully flat image maps to all zeros rather
// than dividing by zero.
func Normalize(real RealImage, window *WindowParams) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, real.Cols, real.Rows))

	var lo, hi float64
	if window != nil && window.Width > 0 {
		lo = window.Center - window.Width/2
		hi = window.Center + window.Width/2
	} else {
		lo, hi = minMax(real.Samples)
		if hi == lo {
			// Degenerate dynamic range: every sample maps to 0.
			return img
		}
	}

	scale := hi - lo
	for i, v := range real.Samples {
		if v < lo {
			v = lo
		} else if v > hi {
			v = hi
		}
		img.Pix[i] = toUint8((v - lo) / scale * 255)
	}
	return img
}

// Invert flips display polarity in place (v -> 255-v). It operates on
// the normalized 8-bit image, never on real-valued intensities, and is
// its own inverse.
func Invert(img *image.Gray) {
	for i, v := range img.Pix {
		img.Pix[i] = 255 - v
	}
}

// minMax returns the smallest and largest sample in a single pass.
func minMax(samples []float64) (mn, mx float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	mn, mx = samples[0], samples[0]
	for _, v := range samples[1:] {
		if v < mn {
			mn = v
		}
		if v > mx {
			mx = v
		}
	}
	return mn, mx
}

// toUint8 rounds to the nearest display value and clamps to [0,255].
func toUint8(v float64) uint8 {
	r := math.Round(v)
	if r < 0 {
		return 0
	}
	if r > 255 {
		return 255
	}
	return uint8(r)
}
