// Package dicom decodes single-frame DICOM byte streams into pixel data
// and the study metadata the catalog persists.
package dicom

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/mrsinham/radview/internal/pixel"
)

// DecodeError reports an input that cannot be processed at all: not a
// parseable DICOM container, or one without usable pixel data. Anything
// less severe degrades to absent metadata fields instead.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode dicom: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decode dicom: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Tags holds the decoded study metadata. Every field is individually
// optional: a missing or malformed tag leaves its field nil and never
// fails the decode.
type Tags struct {
	PatientID                 *string
	PatientName               *string
	Modality                  *string
	StudyDate                 *string
	SeriesDescription         *string
	InstanceNumber            *int
	Rows                      *int
	Cols                      *int
	BitsAllocated             *int
	PhotometricInterpretation *string
	WindowCenter              *float64
	WindowWidth               *float64
	RescaleSlope              *float64
	RescaleIntercept          *float64
}

// Decoded is the full result of parsing one DICOM file.
type Decoded struct {
	Pixels  pixel.RawImage
	Rescale pixel.RescaleParams
	Window  *pixel.WindowParams
	Tags    Tags
}

// Monochrome1 reports whether the image declares inverted display
// polarity. Absent or unrecognized photometric interpretations count as
// normal polarity.
func (d *Decoded) Monochrome1() bool {
	return d.Tags.PhotometricInterpretation != nil &&
		*d.Tags.PhotometricInterpretation == pixel.Monochrome1
}

// Decode parses a complete DICOM byte buffer. It returns a *DecodeError
// when the container is unparseable, carries no native pixel data, or
// uses a compressed transfer syntax; individual metadata tags degrade to
// nil on their own.
func Decode(content []byte) (*Decoded, error) {
	ds, err := dicom.Parse(bytes.NewReader(content), int64(len(content)), nil)
	if err != nil {
		return nil, &DecodeError{Reason: "not a parseable DICOM stream", Err: err}
	}

	raw, err := extractPixels(&ds)
	if err != nil {
		return nil, err
	}

	d := &Decoded{
		Pixels:  raw,
		Rescale: pixel.DefaultRescale(),
		Tags: Tags{
			PatientID:                 stringValue(&ds, tag.PatientID),
			PatientName:               stringValue(&ds, tag.PatientName),
			Modality:                  stringValue(&ds, tag.Modality),
			StudyDate:                 stringValue(&ds, tag.StudyDate),
			SeriesDescription:         stringValue(&ds, tag.SeriesDescription),
			InstanceNumber:            intValue(&ds, tag.InstanceNumber),
			Rows:                      intValue(&ds, tag.Rows),
			Cols:                      intValue(&ds, tag.Columns),
			BitsAllocated:             intValue(&ds, tag.BitsAllocated),
			PhotometricInterpretation: stringValue(&ds, tag.PhotometricInterpretation),
			WindowCenter:              floatValue(&ds, tag.WindowCenter),
			WindowWidth:               floatValue(&ds, tag.WindowWidth),
			RescaleSlope:              floatValue(&ds, tag.RescaleSlope),
			RescaleIntercept:          floatValue(&ds, tag.RescaleIntercept),
		},
	}

	// Dimension tags fall back to what the frame actually contains.
	if d.Tags.Rows == nil {
		d.Tags.Rows = &raw.Rows
	}
	if d.Tags.Cols == nil {
		d.Tags.Cols = &raw.Cols
	}
	if d.Tags.BitsAllocated == nil {
		d.Tags.BitsAllocated = &raw.BitsAllocated
	}

	if d.Tags.RescaleSlope != nil {
		d.Rescale.Slope = *d.Tags.RescaleSlope
	}
	if d.Tags.RescaleIntercept != nil {
		d.Rescale.Intercept = *d.Tags.RescaleIntercept
	}

	if d.Tags.WindowCenter != nil && d.Tags.WindowWidth != nil {
		d.Window = &pixel.WindowParams{
			Center: *d.Tags.WindowCenter,
			Width:  *d.Tags.WindowWidth,
		}
	}

	return d, nil
}

// extractPixels pulls the first frame out of the PixelData element and
// widens its samples to int64.
func extractPixels(ds *dicom.Dataset) (pixel.RawImage, error) {
	el, err := ds.FindElementByTag(tag.PixelData)
	if err != nil || el == nil {
		return pixel.RawImage{}, &DecodeError{Reason: "no pixel data element"}
	}

	info := dicom.MustGetPixelDataInfo(el.Value)
	if info.IsEncapsulated {
		return pixel.RawImage{}, &DecodeError{Reason: "compressed transfer syntaxes are not supported"}
	}
	if len(info.Frames) == 0 {
		return pixel.RawImage{}, &DecodeError{Reason: "pixel data contains no frames"}
	}

	// Volumetric inputs are out of scope; only the first frame is rendered.
	fr := info.Frames[0]
	if fr.Encapsulated || fr.NativeData == nil {
		return pixel.RawImage{}, &DecodeError{Reason: "frame has no native pixel data"}
	}

	raw := pixel.RawImage{
		Rows:          fr.NativeData.Rows(),
		Cols:          fr.NativeData.Cols(),
		BitsAllocated: fr.NativeData.BitsPerSample(),
	}
	if raw.Rows <= 0 || raw.Cols <= 0 {
		return pixel.RawImage{}, &DecodeError{Reason: "frame has degenerate dimensions"}
	}

	switch nf := fr.NativeData.(type) {
	case *frame.NativeFrame[uint8]:
		raw.Samples = widen(nf.RawData)
	case *frame.NativeFrame[int8]:
		raw.Samples = widen(nf.RawData)
	case *frame.NativeFrame[uint16]:
		raw.Samples = widen(nf.RawData)
	case *frame.NativeFrame[int16]:
		raw.Samples = widen(nf.RawData)
	case *frame.NativeFrame[uint32]:
		raw.Samples = widen(nf.RawData)
	case *frame.NativeFrame[int32]:
		raw.Samples = widen(nf.RawData)
	default:
		return pixel.RawImage{}, &DecodeError{Reason: "unsupported pixel sample type"}
	}

	if len(raw.Samples) != raw.Rows*raw.Cols {
		return pixel.RawImage{}, &DecodeError{
			Reason: fmt.Sprintf("expected %d grayscale samples, frame has %d", raw.Rows*raw.Cols, len(raw.Samples)),
		}
	}

	return raw, nil
}

// widen converts any integer sample slice to the pipeline's int64 grid.
func widen[I int8 | uint8 | int16 | uint16 | int32 | uint32](samples []I) []int64 {
	out := make([]int64, len(samples))
	for i, s := range samples {
		out[i] = int64(s)
	}
	return out
}

// stringValue returns the first string value of a tag, trimmed, or nil.
func stringValue(ds *dicom.Dataset, t tag.Tag) *string {
	el, err := ds.FindElementByTag(t)
	if err != nil || el == nil || el.Value == nil {
		return nil
	}
	switch v := el.Value.GetValue().(type) {
	case []string:
		if len(v) > 0 {
			s := strings.TrimSpace(v[0])
			return &s
		}
	case string:
		s := strings.TrimSpace(v)
		return &s
	}
	return nil
}

// intValue returns the first value of an integer-valued tag, or nil.
// Integer Strings (e.g. InstanceNumber) that fail numeric coercion
// degrade to nil rather than erroring.
func intValue(ds *dicom.Dataset, t tag.Tag) *int {
	el, err := ds.FindElementByTag(t)
	if err != nil || el == nil || el.Value == nil {
		return nil
	}
	switch v := el.Value.GetValue().(type) {
	case []int:
		if len(v) > 0 {
			n := v[0]
			return &n
		}
	case []string:
		if len(v) > 0 {
			n, err := strconv.Atoi(strings.TrimSpace(v[0]))
			if err != nil {
				return nil
			}
			return &n
		}
	}
	return nil
}

// floatValue returns the first value of a decimal-valued tag, or nil.
// Multi-valued Decimal Strings (window presets) resolve to the first
// entry.
func floatValue(ds *dicom.Dataset, t tag.Tag) *float64 {
	el, err := ds.FindElementByTag(t)
	if err != nil || el == nil || el.Value == nil {
		return nil
	}
	switch v := el.Value.GetValue().(type) {
	case []float64:
		if len(v) > 0 {
			f := v[0]
			return &f
		}
	case []string:
		if len(v) > 0 {
			f, err := strconv.ParseFloat(strings.TrimSpace(v[0]), 64)
			if err != nil {
				return nil
			}
			return &f
		}
	case []int:
		if len(v) > 0 {
			f := float64(v[0])
			return &f
		}
	}
	return nil
}
