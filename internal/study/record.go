// Package study defines the persisted study record and the upload
// pipeline that produces it.
package study

import (
	"github.com/mrsinham/radview/internal/dicom"
	"github.com/mrsinham/radview/internal/render"
)

// Collection is the document-store collection study records live in.
const Collection = "study"

// Record is the persisted output of one upload: the decoded tags (all
// individually optional) plus the rendered artifact paths and free-form
// annotation fields. Records are immutable once created except for the
// annotation fields, which are maintained outside this pipeline.
type Record struct {
	ID string `json:"id,omitempty"`

	PatientID                 *string  `json:"patient_id"`
	PatientName               *string  `json:"patient_name"`
	Modality                  *string  `json:"modality"`
	StudyDate                 *string  `json:"study_date"`
	SeriesDescription         *string  `json:"series_description"`
	InstanceNumber            *int     `json:"instance_number"`
	Rows                      *int     `json:"rows"`
	Cols                      *int     `json:"cols"`
	BitsAllocated             *int     `json:"bits_allocated"`
	PhotometricInterpretation *string  `json:"photometric_interpretation"`
	WindowCenter              *float64 `json:"window_center"`
	WindowWidth               *float64 `json:"window_width"`

	ImagePath     string `json:"image_path"`
	ThumbnailPath string `json:"thumbnail_path"`

	Findings *string  `json:"findings"`
	Tags     []string `json:"tags"`
}

// Assemble merges decoded tags with the rendered artifact paths. No
// field is required; whatever the decoder could not extract stays nil.
func Assemble(tags dicom.Tags, art render.Artifacts) *Record {
	return &Record{
		PatientID:                 tags.PatientID,
		PatientName:               tags.PatientName,
		Modality:                  tags.Modality,
		StudyDate:                 tags.StudyDate,
		SeriesDescription:         tags.SeriesDescription,
		InstanceNumber:            tags.InstanceNumber,
		Rows:                      tags.Rows,
		Cols:                      tags.Cols,
		BitsAllocated:             tags.BitsAllocated,
		PhotometricInterpretation: tags.PhotometricInterpretation,
		WindowCenter:              tags.WindowCenter,
		WindowWidth:               tags.WindowWidth,
		ImagePath:                 art.ImagePath,
		ThumbnailPath:             art.ThumbnailPath,
		Tags:                      []string{},
	}
}
