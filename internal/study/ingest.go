package study

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mrsinham/radview/internal/dicom"
	"github.com/mrsinham/radview/internal/pixel"
	"github.com/mrsinham/radview/internal/render"
)

// DocumentCreator is the structured-persistence collaborator. The
// pipeline only ever appends; it never queries or mutates existing
// records.
type DocumentCreator interface {
	Create(ctx context.Context, collection string, doc any) (string, error)
}

// Ingestor runs the upload pipeline: decode, rescale, normalize,
// render, assemble, persist. Each call is independent and stateless, so
// one Ingestor serves concurrent uploads.
type Ingestor struct {
	renderer *render.Renderer
	docs     DocumentCreator
	log      zerolog.Logger
}

// NewIngestor wires the pipeline to its collaborators.
func NewIngestor(renderer *render.Renderer, docs DocumentCreator, log zerolog.Logger) *Ingestor {
	return &Ingestor{renderer: renderer, docs: docs, log: log}
}

// Ingest processes one DICOM byte buffer to a persisted study record.
// On any failure nothing survives: rendered artifacts are rolled back
// when the record cannot be created.
func (in *Ingestor) Ingest(ctx context.Context, content []byte) (*Record, error) {
	d, err := dicom.Decode(content)
	if err != nil {
		return nil, err
	}

	real := pixel.Rescale(d.Pixels, d.Rescale)
	img := pixel.Normalize(real, d.Window)
	if d.Monochrome1() {
		pixel.Invert(img)
	}

	art, err := in.renderer.Render(img)
	if err != nil {
		return nil, err
	}

	rec := Assemble(d.Tags, art)
	id, err := in.docs.Create(ctx, Collection, rec)
	if err != nil {
		in.renderer.Discard(art)
		return nil, fmt.Errorf("persist study record: %w", err)
	}
	rec.ID = id

	in.log.Info().
		Str("id", id).
		Int("rows", d.Pixels.Rows).
		Int("cols", d.Pixels.Cols).
		Int("bits", d.Pixels.BitsAllocated).
		Bool("windowed", d.Window != nil).
		Bool("inverted", d.Monochrome1()).
		Msg("study ingested")

	return rec, nil
}
