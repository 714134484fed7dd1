package server

import (
	"bytes"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/mrsinham/radview/internal/dicom"
	"github.com/mrsinham/radview/internal/render"
	"github.com/mrsinham/radview/internal/store"
	"github.com/mrsinham/radview/internal/study"
)

type testBackend struct {
	server    *httptest.Server
	mediaRoot string
}

func newTestBackend(t *testing.T) *testBackend {
	t.Helper()

	mediaRoot := filepath.Join(t.TempDir(), "media")
	blobs, err := store.NewBlobStore(mediaRoot)
	if err != nil {
		t.Fatalf("NewBlobStore failed: %v", err)
	}
	docs, err := store.OpenDocumentStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenDocumentStore failed: %v", err)
	}
	t.Cleanup(func() { _ = docs.Close() })

	log := zerolog.Nop()
	renderer := render.New(blobs, "/media")
	ingestor := study.NewIngestor(renderer, docs, log)
	srv := httptest.NewServer(New(ingestor, docs, mediaRoot, "/media", log).Router())
	t.Cleanup(srv.Close)

	return &testBackend{server: srv, mediaRoot: mediaRoot}
}

func (b *testBackend) upload(t *testing.T, content []byte) *http.Response {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "scan.dcm")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	resp, err := http.Post(b.server.URL+"/api/studies/upload", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("upload request failed: %v", err)
	}
	return resp
}

func decodeRecord(t *testing.T, resp *http.Response) study.Record {
	t.Helper()
	defer resp.Body.Close()

	var rec study.Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		t.Fatalf("decode response record: %v", err)
	}
	return rec
}

// TestUpload_WindowedPipeline tests the full pipeline from raw bytes to
// persisted record using an explicitly windowed dataset
func TestUpload_WindowedPipeline(t *testing.T) {
	b := newTestBackend(t)

	content, err := dicom.EncodeSynthetic(dicom.SynthOptions{
		Rows: 2, Cols: 2, BitsAllocated: 16,
		Samples:                   []int64{0, 128, 256, 512},
		PatientID:                 "P001",
		PatientName:               "DOE^JANE",
		Modality:                  "CT",
		PhotometricInterpretation: "MONOCHROME2",
		WindowCenter:              []string{"128"},
		WindowWidth:               []string{"256"},
	})
	if err != nil {
		t.Fatalf("EncodeSynthetic failed: %v", err)
	}

	resp := b.upload(t, content)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload: got status %d", resp.StatusCode)
	}
	rec := decodeRecord(t, resp)

	if rec.ID == "" {
		t.Error("record id should be assigned")
	}
	if rec.PatientID == nil || *rec.PatientID != "P001" {
		t.Errorf("patient_id: got %v", rec.PatientID)
	}
	if rec.Rows == nil || *rec.Rows != 2 || rec.Cols == nil || *rec.Cols != 2 {
		t.Errorf("dimensions: got rows=%v cols=%v", rec.Rows, rec.Cols)
	}
	if rec.WindowCenter == nil || *rec.WindowCenter != 128 {
		t.Errorf("window_center: got %v", rec.WindowCenter)
	}
	if rec.WindowWidth == nil || *rec.WindowWidth != 256 {
		t.Errorf("window_width: got %v", rec.WindowWidth)
	}
	if rec.ImagePath == rec.ThumbnailPath {
		t.Error("image and thumbnail paths must differ")
	}

	// The stored full-resolution PNG holds the windowed output exactly.
	pix := readStoredGray(t, b.mediaRoot, rec.ImagePath)
	want := []uint8{0, 128, 255, 255}
	for i, w := range want {
		if pix[i] != w {
			t.Errorf("pixel %d: got %d, want %d", i, pix[i], w)
		}
	}
	t.Logf("✓ windowed upload produced expected 8-bit output %v", pix)
}

// TestUpload_Monochrome1Inverted tests polarity inversion on the output
func TestUpload_Monochrome1Inverted(t *testing.T) {
	b := newTestBackend(t)

	content, err := dicom.EncodeSynthetic(dicom.SynthOptions{
		Rows: 2, Cols: 2, BitsAllocated: 16,
		Samples:                   []int64{0, 128, 256, 512},
		PhotometricInterpretation: "MONOCHROME1",
		WindowCenter:              []string{"128"},
		WindowWidth:               []string{"256"},
	})
	if err != nil {
		t.Fatalf("EncodeSynthetic failed: %v", err)
	}

	resp := b.upload(t, content)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload: got status %d", resp.StatusCode)
	}
	rec := decodeRecord(t, resp)

	pix := readStoredGray(t, b.mediaRoot, rec.ImagePath)
	want := []uint8{255, 127, 0, 0}
	for i, w := range want {
		if pix[i] != w {
			t.Errorf("pixel %d: got %d, want %d", i, pix[i], w)
		}
	}
}

// TestUpload_ArtifactStemsUnique tests that repeated uploads never share paths
func TestUpload_ArtifactStemsUnique(t *testing.T) {
	b := newTestBackend(t)

	content, err := dicom.EncodeSynthetic(dicom.SynthOptions{Rows: 4, Cols: 4})
	if err != nil {
		t.Fatalf("EncodeSynthetic failed: %v", err)
	}

	first := decodeRecord(t, b.upload(t, content))
	second := decodeRecord(t, b.upload(t, content))

	if first.ImagePath == second.ImagePath {
		t.Errorf("uploads share an image path: %s", first.ImagePath)
	}
	if first.ID == second.ID {
		t.Errorf("uploads share a record id: %s", first.ID)
	}
}

// TestUpload_RejectsGarbage tests the 400 path for undecodable input
func TestUpload_RejectsGarbage(t *testing.T) {
	b := newTestBackend(t)

	resp := b.upload(t, []byte("this is not a dicom file"))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if !strings.HasPrefix(body["detail"], "Failed to process DICOM") {
		t.Errorf("detail: got %q", body["detail"])
	}
}

// TestUpload_RejectsMissingFile tests the missing multipart field path
func TestUpload_RejectsMissingFile(t *testing.T) {
	b := newTestBackend(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("note", "no file here")
	_ = mw.Close()

	resp, err := http.Post(b.server.URL+"/api/studies/upload", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("got status %d, want 400", resp.StatusCode)
	}
}

// TestList_ReturnsUploadsInOrder tests the catalog endpoint
func TestList_ReturnsUploadsInOrder(t *testing.T) {
	b := newTestBackend(t)

	var ids []string
	for _, pid := range []string{"A", "B", "C"} {
		content, err := dicom.EncodeSynthetic(dicom.SynthOptions{
			Rows: 2, Cols: 2, PatientID: pid,
		})
		if err != nil {
			t.Fatalf("EncodeSynthetic failed: %v", err)
		}
		rec := decodeRecord(t, b.upload(t, content))
		ids = append(ids, rec.ID)
	}

	resp, err := http.Get(b.server.URL + "/api/studies")
	if err != nil {
		t.Fatalf("list request failed: %v", err)
	}
	defer resp.Body.Close()

	var records []study.Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	for i, rec := range records {
		if rec.ID != ids[i] {
			t.Errorf("position %d: got id %s, want %s", i, rec.ID, ids[i])
		}
	}
}

// TestList_RespectsLimit tests the limit query parameter
func TestList_RespectsLimit(t *testing.T) {
	b := newTestBackend(t)

	content, err := dicom.EncodeSynthetic(dicom.SynthOptions{Rows: 2, Cols: 2})
	if err != nil {
		t.Fatalf("EncodeSynthetic failed: %v", err)
	}
	for i := 0; i < 4; i++ {
		resp := b.upload(t, content)
		resp.Body.Close()
	}

	resp, err := http.Get(b.server.URL + "/api/studies?limit=2")
	if err != nil {
		t.Fatalf("list request failed: %v", err)
	}
	defer resp.Body.Close()

	var records []study.Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("got %d records, want 2", len(records))
	}

	bad, err := http.Get(b.server.URL + "/api/studies?limit=junk")
	if err != nil {
		t.Fatalf("list request failed: %v", err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid limit: got status %d, want 400", bad.StatusCode)
	}
}

// TestHealth_ReportsCollections tests the /test health report
func TestHealth_ReportsCollections(t *testing.T) {
	b := newTestBackend(t)

	content, err := dicom.EncodeSynthetic(dicom.SynthOptions{Rows: 2, Cols: 2})
	if err != nil {
		t.Fatalf("EncodeSynthetic failed: %v", err)
	}
	resp := b.upload(t, content)
	resp.Body.Close()

	health, err := http.Get(b.server.URL + "/test")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer health.Body.Close()

	var report struct {
		Backend     string   `json:"backend"`
		Database    string   `json:"database"`
		Collections []string `json:"collections"`
	}
	if err := json.NewDecoder(health.Body).Decode(&report); err != nil {
		t.Fatalf("decode health report: %v", err)
	}
	if report.Backend != "running" || report.Database != "connected" {
		t.Errorf("health: backend=%s database=%s", report.Backend, report.Database)
	}
	found := false
	for _, c := range report.Collections {
		if c == study.Collection {
			found = true
		}
	}
	if !found {
		t.Errorf("collections %v missing %q", report.Collections, study.Collection)
	}
}

// TestMedia_ServesStoredArtifact tests static serving of rendered PNGs
func TestMedia_ServesStoredArtifact(t *testing.T) {
	b := newTestBackend(t)

	content, err := dicom.EncodeSynthetic(dicom.SynthOptions{Rows: 8, Cols: 8})
	if err != nil {
		t.Fatalf("EncodeSynthetic failed: %v", err)
	}
	rec := decodeRecord(t, b.upload(t, content))

	resp, err := http.Get(b.server.URL + rec.ThumbnailPath)
	if err != nil {
		t.Fatalf("media request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d fetching %s", resp.StatusCode, rec.ThumbnailPath)
	}
	if _, err := png.Decode(resp.Body); err != nil {
		t.Errorf("served artifact is not a valid PNG: %v", err)
	}
}

func readStoredGray(t *testing.T, mediaRoot, servedPath string) []uint8 {
	t.Helper()

	rel := strings.TrimPrefix(servedPath, "/media/")
	f, err := os.Open(filepath.Join(mediaRoot, rel))
	if err != nil {
		t.Fatalf("open stored artifact %s: %v", servedPath, err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode stored artifact: %v", err)
	}

	b := img.Bounds()
	pix := make([]uint8, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, _, _, _ := img.At(x, y).RGBA()
			pix = append(pix, uint8(r>>8))
		}
	}
	return pix
}
