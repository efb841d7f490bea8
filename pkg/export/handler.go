package export

import (
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/nicktill/ntk-tracker/pkg/httpx"
	"github.com/nicktill/ntk-tracker/pkg/logging"
)

// Handler serves the export and import endpoints.
type Handler struct {
	exporter       *Exporter
	importer       *Importer
	allowImport    bool
	maxImportBytes int64
	log            zerolog.Logger
}

// NewHandler creates an export handler. importer may be nil when imports
// are disabled.
func NewHandler(exporter *Exporter, importer *Importer, maxImportBytes int64) *Handler {
	return &Handler{
		exporter:       exporter,
		importer:       importer,
		allowImport:    importer != nil,
		maxImportBytes: maxImportBytes,
		log:            logging.Component("export"),
	}
}

// HandleExport handles GET /api/export?format=json|csv.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "csv" {
		httpx.RespondErrorString(w, http.StatusBadRequest, "format must be 'json' or 'csv'")
		return
	}

	doc, err := h.exporter.Snapshot(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("export failed")
		httpx.RespondErrorString(w, http.StatusInternalServerError, "export failed")
		return
	}

	filename := fmt.Sprintf("ntk-tracker-export-%s.%s", doc.Metadata.ExportDate.Format("2006-01-02"), format)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if format == "json" {
		w.Header().Set("Content-Type", "application/json")
		err = WriteJSON(w, doc)
	} else {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		err = WriteCSV(w, doc)
	}
	if err != nil {
		// Headers are gone; all that is left is to log.
		h.log.Error().Err(err).Str("format", format).Msg("export write failed")
		return
	}

	h.log.Info().Str("format", format).Int("records", doc.Metadata.TotalRecords).
		Int64("duration_ms", doc.Metadata.ExportDurationMs).Msg("export completed")
}

// HandleImport handles POST /api/import.
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	if !h.allowImport {
		httpx.RespondErrorString(w, http.StatusForbidden, "import is disabled")
		return
	}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		httpx.RespondErrorString(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}

	body := http.MaxBytesReader(w, r.Body, h.maxImportBytes)
	result, err := h.importer.ImportJSON(r.Context(), body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			httpx.RespondErrorString(w, http.StatusRequestEntityTooLarge, "import file too large")
		case result == nil:
			httpx.RespondError(w, http.StatusBadRequest, err)
		default:
			h.log.Error().Err(err).Int("imported", result.Imported).Msg("import failed")
			httpx.RespondError(w, http.StatusInternalServerError, err)
		}
		return
	}

	if len(result.Errors) > 0 {
		ev := h.log.Warn().Int("skipped", result.Skipped)
		if len(result.Errors) > 10 {
			ev = ev.Strs("first_errors", result.Errors[:10])
		} else {
			ev = ev.Strs("errors", result.Errors)
		}
		ev.Msg("import skipped invalid rows")
	}
	h.log.Info().Int("imported", result.Imported).Str("time_range", result.TimeRange).Msg("import completed")
	httpx.RespondJSON(w, http.StatusOK, result)
}
