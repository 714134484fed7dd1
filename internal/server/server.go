// Package server exposes the upload pipeline and study catalog over
// HTTP.
package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mrsinham/radview/internal/dicom"
	"github.com/mrsinham/radview/internal/store"
	"github.com/mrsinham/radview/internal/study"
)

// maxUploadBytes caps one multipart upload held in memory.
const maxUploadBytes = 64 << 20

// defaultListLimit matches the catalog's default page size.
const defaultListLimit = 50

// Server wires the handlers to their collaborators.
type Server struct {
	ingestor    *study.Ingestor
	docs        *store.DocumentStore
	mediaRoot   string
	mediaPrefix string
	log         zerolog.Logger
}

// New returns a Server ready to build its router.
func New(ingestor *study.Ingestor, docs *store.DocumentStore, mediaRoot, mediaPrefix string, log zerolog.Logger) *Server {
	return &Server{
		ingestor:    ingestor,
		docs:        docs,
		mediaRoot:   mediaRoot,
		mediaPrefix: mediaPrefix,
		log:         log,
	}
}

// Router assembles the HTTP routes and middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	}))

	r.Get("/", s.handleRoot)
	r.Get("/test", s.handleHealth)
	r.Post("/api/studies/upload", s.handleUpload)
	r.Get("/api/studies", s.handleList)
	r.Handle("/metrics", promhttp.Handler())

	// Rendered artifacts are served straight off the media root.
	r.Mount(s.mediaPrefix, http.StripPrefix(s.mediaPrefix, http.FileServer(http.Dir(s.mediaRoot))))

	return r
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "radiology backend running",
		"media":   s.mediaPrefix,
	})
}

// handleHealth reports backend and document-store availability.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := map[string]any{
		"backend":     "running",
		"database":    "unavailable",
		"collections": []string{},
	}

	if s.docs != nil {
		if collections, err := s.docs.Collections(10); err == nil {
			report["database"] = "connected"
			if collections != nil {
				report["collections"] = collections
			}
		} else {
			report["database"] = "error: " + err.Error()
		}
	}

	writeJSON(w, http.StatusOK, report)
}

// handleUpload runs one multipart DICOM file through the pipeline.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	file, header, err := uploadedFile(r)
	if err != nil {
		uploadsTotal.WithLabelValues("rejected").Inc()
		writeError(w, http.StatusBadRequest, "missing upload file: "+err.Error())
		return
	}
	defer func() { _ = file.Close() }()

	content, err := io.ReadAll(file)
	if err != nil {
		uploadsTotal.WithLabelValues("rejected").Inc()
		writeError(w, http.StatusBadRequest, "read upload: "+err.Error())
		return
	}

	rec, err := s.ingestor.Ingest(r.Context(), content)
	uploadSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		status := http.StatusInternalServerError
		label := "error"

		var decodeErr *dicom.DecodeError
		if errors.As(err, &decodeErr) {
			status = http.StatusBadRequest
			label = "rejected"
		}
		var storageErr *store.StorageError
		if errors.As(err, &storageErr) {
			label = "storage_error"
		}

		uploadsTotal.WithLabelValues(label).Inc()
		s.log.Error().Err(err).Str("filename", header.Filename).Msg("upload failed")
		writeError(w, status, "Failed to process DICOM: "+err.Error())
		return
	}

	uploadsTotal.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, rec)
}

// handleList returns persisted studies in insertion order.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit: "+raw)
			return
		}
		limit = n
	}

	docs, err := s.docs.List(r.Context(), study.Collection, limit)
	if err != nil {
		s.log.Error().Err(err).Msg("list studies failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	records := make([]*study.Record, 0, len(docs))
	for _, doc := range docs {
		var rec study.Record
		if err := json.Unmarshal(doc.Data, &rec); err != nil {
			s.log.Warn().Err(err).Str("id", doc.ID).Msg("skipping undecodable study record")
			continue
		}
		rec.ID = doc.ID
		records = append(records, &rec)
	}

	writeJSON(w, http.StatusOK, records)
}

// uploadedFile fetches the multipart field the client uploads under.
func uploadedFile(r *http.Request) (io.ReadCloser, *uploadHeader, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, nil, err
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, nil, err
	}
	return file, &uploadHeader{Filename: header.Filename}, nil
}

type uploadHeader struct {
	Filename string
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
