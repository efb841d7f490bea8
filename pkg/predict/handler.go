package predict

import (
	"errors"
	"net/http"

	"github.com/nicktill/ntk-tracker/pkg/httpx"
)

// Handler serves day curves over HTTP.
type Handler struct {
	engine *Engine
}

// NewHandler creates a predict handler.
func NewHandler(e *Engine) *Handler {
	return &Handler{engine: e}
}

// HandleDayCurve handles GET /api/predict?date=YYYY-MM-DD.
func (h *Handler) HandleDayCurve(w http.ResponseWriter, r *http.Request) {
	points, err := h.engine.DayCurve(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		if errors.Is(err, ErrInvalidDate) {
			httpx.RespondError(w, http.StatusBadRequest, err)
			return
		}
		httpx.RespondError(w, http.StatusInternalServerError, err)
		return
	}
	httpx.RespondCached(w, r, points)
}
