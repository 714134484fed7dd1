package dicom

import (
	"bytes"
	"fmt"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// SynthOptions describes a synthetic single-frame dataset used to
// exercise the decode pipeline. String fields left empty are omitted
// from the dataset entirely, which is how the fault-tolerance paths get
// covered. Window values are raw Decimal Strings so multi-valued
// presets and malformed numbers can be represented.
type SynthOptions struct {
	Rows          int
	Cols          int
	BitsAllocated int     // 8 or 16
	Samples       []int64 // row-major stored values; nil generates a gradient

	PatientID                 string
	PatientName               string
	Modality                  string
	StudyDate                 string
	SeriesDescription         string
	InstanceNumber            string // raw IS value, may be non-numeric
	PhotometricInterpretation string
	WindowCenter              []string
	WindowWidth               []string
	RescaleSlope              string
	RescaleIntercept          string

	OmitPixelData bool
}

// EncodeSynthetic writes a dataset built from opts into a DICOM byte
// stream.
func EncodeSynthetic(opts SynthOptions) ([]byte, error) {
	if opts.Rows <= 0 || opts.Cols <= 0 {
		return nil, fmt.Errorf("invalid dimensions %dx%d", opts.Rows, opts.Cols)
	}
	if opts.BitsAllocated == 0 {
		opts.BitsAllocated = 16
	}

	photometric := opts.PhotometricInterpretation
	if photometric == "" {
		photometric = "MONOCHROME2"
	}

	elements := []*dicom.Element{
		mustNewElement(tag.TransferSyntaxUID, []string{"1.2.840.10008.1.2.1"}),
		mustNewElement(tag.SOPClassUID, []string{"1.2.840.10008.5.1.4.1.1.4"}),
		mustNewElement(tag.SOPInstanceUID, []string{"1.2.840.99999.1.2.3.4"}),
		mustNewElement(tag.Rows, []int{opts.Rows}),
		mustNewElement(tag.Columns, []int{opts.Cols}),
		mustNewElement(tag.BitsAllocated, []int{opts.BitsAllocated}),
		mustNewElement(tag.BitsStored, []int{opts.BitsAllocated}),
		mustNewElement(tag.HighBit, []int{opts.BitsAllocated - 1}),
		mustNewElement(tag.PixelRepresentation, []int{0}),
		mustNewElement(tag.SamplesPerPixel, []int{1}),
		mustNewElement(tag.PhotometricInterpretation, []string{photometric}),
	}

	optional := []struct {
		tag    tag.Tag
		values []string
	}{
		{tag.PatientID, single(opts.PatientID)},
		{tag.PatientName, single(opts.PatientName)},
		{tag.Modality, single(opts.Modality)},
		{tag.StudyDate, single(opts.StudyDate)},
		{tag.SeriesDescription, single(opts.SeriesDescription)},
		{tag.InstanceNumber, single(opts.InstanceNumber)},
		{tag.WindowCenter, opts.WindowCenter},
		{tag.WindowWidth, opts.WindowWidth},
		{tag.RescaleSlope, single(opts.RescaleSlope)},
		{tag.RescaleIntercept, single(opts.RescaleIntercept)},
	}
	for _, o := range optional {
		if len(o.values) > 0 {
			elements = append(elements, mustNewElement(o.tag, o.values))
		}
	}

	if !opts.OmitPixelData {
		elements = append(elements, mustNewElement(tag.PixelData, buildFrame(opts)))
	}

	var buf bytes.Buffer
	if err := dicom.Write(&buf, dicom.Dataset{Elements: elements}); err != nil {
		return nil, fmt.Errorf("write synthetic dataset: %w", err)
	}
	return buf.Bytes(), nil
}

// buildFrame packs the sample grid into a native frame of the requested
// bit depth.
func buildFrame(opts SynthOptions) dicom.PixelDataInfo {
	pixelsPerFrame := opts.Rows * opts.Cols
	samples := opts.Samples
	if samples == nil {
		samples = make([]int64, pixelsPerFrame)
		for i := range samples {
			samples[i] = int64(i % (1 << opts.BitsAllocated))
		}
	}

	var native *frame.Frame
	if opts.BitsAllocated == 8 {
		nf := frame.NewNativeFrame[uint8](8, opts.Rows, opts.Cols, pixelsPerFrame, 1)
		for i, s := range samples {
			nf.RawData[i] = uint8(s)
		}
		native = &frame.Frame{Encapsulated: false, NativeData: nf}
	} else {
		nf := frame.NewNativeFrame[uint16](16, opts.Rows, opts.Cols, pixelsPerFrame, 1)
		for i, s := range samples {
			nf.RawData[i] = uint16(s)
		}
		native = &frame.Frame{Encapsulated: false, NativeData: nf}
	}

	return dicom.PixelDataInfo{Frames: []*frame.Frame{native}}
}

func single(v string) []string {
	if v == "" {
		return nil
	}
	return []string{v}
}

// mustNewElement creates a new DICOM element, panicking on error.
func mustNewElement(t tag.Tag, value interface{}) *dicom.Element {
	elem, err := dicom.NewElement(t, value)
	if err != nil {
		panic(fmt.Sprintf("failed to create element %v: %v", t, err))
	}
	return elem
}
