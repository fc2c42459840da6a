// Package router mounts the parcel analysis HTTP API.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb"

	"github.com/ilemi-bj/foncier-geo/internal/boundary"
	"github.com/ilemi-bj/foncier-geo/internal/core/model"
	"github.com/ilemi-bj/foncier-geo/internal/core/observability"
	"github.com/ilemi-bj/foncier-geo/internal/extract"
	"github.com/ilemi-bj/foncier-geo/internal/parcel"
	"github.com/ilemi-bj/foncier-geo/internal/report"
)

const (
	msgBadCoordinates = "Invalid or missing coordinates array (could not normalize payload)"
	msgNoFile         = "No file provided"
	msgBadFileType    = "Only PDF or image files are allowed"

	defaultMaxBody = 20 << 20
)

// Analyzer runs overlap detection and report generation.
type Analyzer interface {
	Layers() []model.LayerDefinition
	FindOverlaps(ctx context.Context, points []model.IncomingPoint) (*model.OverlapResult, error)
	Report(ctx context.Context, terrain []orb.Point, data *model.OverlapResult) (*model.ParcelReport, error)
	Analyze(ctx context.Context, points []model.IncomingPoint) (*model.Analysis, error)
}

// Extractor turns an uploaded survey document into boundary points.
type Extractor interface {
	Extract(ctx context.Context, filename, contentType string, r io.Reader) ([]model.IncomingPoint, error)
}

type Options struct {
	MaxBodyBytes int64
	Logger       *slog.Logger
}

type api struct {
	an      Analyzer
	ex      Extractor
	maxBody int64
	log     *slog.Logger
}

// Mount registers the analysis routes on r.
func Mount(r chi.Router, an Analyzer, ex Extractor, opts Options) {
	a := &api{an: an, ex: ex, maxBody: opts.MaxBodyBytes, log: opts.Logger}
	if a.maxBody <= 0 {
		a.maxBody = defaultMaxBody
	}
	if a.log == nil {
		a.log = slog.Default()
	}

	r.Get("/layers", instrument("/layers", a.layers))
	r.Post("/findOverlap", instrument("/findOverlap", a.findOverlap))
	r.Post("/report", instrument("/report", a.report))
	r.Post("/analyze", instrument("/analyze", a.analyze))
	r.Post("/parcel-analysis", instrument("/parcel-analysis", a.parcelAnalysis))
}

func instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		h(sw, r)
		observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (a *api) layers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"layers": a.an.Layers()})
}

func (a *api) findOverlap(w http.ResponseWriter, r *http.Request) {
	points, ok := a.readPoints(w, r)
	if !ok {
		return
	}
	res, err := a.an.FindOverlaps(r.Context(), points)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) analyze(w http.ResponseWriter, r *http.Request) {
	points, ok := a.readPoints(w, r)
	if !ok {
		return
	}
	res, err := a.an.Analyze(r.Context(), points)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) report(w http.ResponseWriter, r *http.Request) {
	body, ok := a.readBody(w, r)
	if !ok {
		return
	}
	req, err := boundary.DecodeReportRequest(body)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	rep, err := a.an.Report(r.Context(), req.Terrain, req.Analysis)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"report": rep})
}

func (a *api) parcelAnalysis(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.maxBody)
	if err := r.ParseMultipartForm(a.maxBody); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, msgNoFile)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	var (
		file     io.ReadCloser
		filename string
		ctype    string
	)
	for _, field := range []string{"file", "document"} {
		f, hdr, err := r.FormFile(field)
		if err != nil {
			continue
		}
		file, filename, ctype = f, hdr.Filename, hdr.Header.Get("Content-Type")
		break
	}
	if file == nil {
		writeError(w, http.StatusBadRequest, msgNoFile)
		return
	}
	defer func() { _ = file.Close() }()

	ctype = documentType(filename, ctype)
	if ctype == "" {
		writeError(w, http.StatusBadRequest, msgBadFileType)
		return
	}

	points, err := a.ex.Extract(r.Context(), filename, ctype, file)
	if err != nil {
		a.failExtraction(w, r, err)
		return
	}
	res, err := a.an.Analyze(r.Context(), points)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// documentType returns the accepted media type of an upload, or "" when it
// is neither a PDF nor an image. The declared type wins over the extension.
func documentType(filename, declared string) string {
	mt, _, err := mime.ParseMediaType(declared)
	if err != nil || mt == "application/octet-stream" {
		mt, _, _ = mime.ParseMediaType(mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))))
	}
	if mt == "application/pdf" || strings.HasPrefix(mt, "image/") {
		return mt
	}
	return ""
}

func (a *api) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, a.maxBody))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, "could not read request body")
		}
		return nil, false
	}
	return body, true
}

func (a *api) readPoints(w http.ResponseWriter, r *http.Request) ([]model.IncomingPoint, bool) {
	body, ok := a.readBody(w, r)
	if !ok {
		return nil, false
	}
	points, err := boundary.DecodePoints(body)
	if err != nil {
		a.log.DebugContext(r.Context(), "boundary payload rejected", "err", err)
		writeError(w, http.StatusBadRequest, msgBadCoordinates)
		return nil, false
	}
	return points, true
}

func (a *api) failExtraction(w http.ResponseWriter, r *http.Request, err error) {
	var st *extract.StatusError
	switch {
	case errors.Is(err, extract.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &st):
		a.log.WarnContext(r.Context(), "extraction service error", "status", st.Status, "err", err)
		writeError(w, http.StatusBadGateway, "coordinate extraction failed")
	case errors.Is(err, boundary.ErrNoCoordinates):
		writeError(w, http.StatusUnprocessableEntity, "no boundary coordinates found in document")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "coordinate extraction timed out")
	default:
		a.log.WarnContext(r.Context(), "extraction failed", "err", err)
		writeError(w, http.StatusBadGateway, "coordinate extraction failed")
	}
}

func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := classify(err)
	if code >= http.StatusInternalServerError {
		a.log.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "err", err)
	} else {
		a.log.DebugContext(r.Context(), "request rejected", "path", r.URL.Path, "status", code, "err", err)
	}
	writeError(w, code, msg)
}

func classify(err error) (int, string) {
	var few *parcel.InsufficientCoordinatesError
	switch {
	case errors.Is(err, boundary.ErrMalformed), errors.Is(err, boundary.ErrNoCoordinates):
		return http.StatusBadRequest, msgBadCoordinates
	case errors.As(err, &few):
		return http.StatusUnprocessableEntity, few.Error()
	case errors.Is(err, parcel.ErrInvalidGeometry):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, report.ErrMissingAnalysisData):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "analysis timed out"
	case errors.Is(err, context.Canceled):
		return 499, "request canceled"
	}
	return http.StatusInternalServerError, "internal error"
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
