package graphql

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/graphql-go/graphql"
	"github.com/rs/zerolog"

	"github.com/nicktill/ntk-tracker/pkg/httpx"
	"github.com/nicktill/ntk-tracker/pkg/logging"
	"github.com/nicktill/ntk-tracker/pkg/timezone"
)

const maxRequestBytes = 64 << 10

// Request is a GraphQL request as sent over HTTP.
type Request struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables"`
	OperationName string         `json:"operationName"`
}

// Handler executes queries against the occupancy schema.
type Handler struct {
	schema  graphql.Schema
	timeout time.Duration
	log     zerolog.Logger
}

// NewHandler builds the schema over reader and forecaster.
func NewHandler(reader Reader, forecaster Forecaster, norm *timezone.Normalizer, timeout time.Duration) (*Handler, error) {
	schema, err := newSchema(&resolver{reader: reader, forecast: forecaster, norm: norm})
	if err != nil {
		return nil, err
	}
	return &Handler{schema: schema, timeout: timeout, log: logging.Component("graphql")}, nil
}

// Execute runs one request.
func (h *Handler) Execute(ctx context.Context, req Request) *graphql.Result {
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	return graphql.Do(graphql.Params{
		Schema:         h.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        ctx,
	})
}

// ServeHTTP handles GET and POST /api/graphql.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req Request
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		req.Query = q.Get("query")
		req.OperationName = q.Get("operationName")
		if vars := q.Get("variables"); vars != "" {
			if err := json.Unmarshal([]byte(vars), &req.Variables); err != nil {
				httpx.RespondErrorString(w, http.StatusBadRequest, "variables must be a JSON object")
				return
			}
		}
	case http.MethodPost:
		if err := httpx.DecodeJSON(w, r, maxRequestBytes, &req); err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, httpx.ErrBodyTooLarge) {
				status = http.StatusRequestEntityTooLarge
			}
			httpx.RespondError(w, status, err)
			return
		}
	default:
		w.Header().Set("Allow", "GET, POST")
		httpx.RespondErrorString(w, http.StatusMethodNotAllowed, "use GET or POST")
		return
	}

	if req.Query == "" {
		httpx.RespondErrorString(w, http.StatusBadRequest, "query is required")
		return
	}

	result := h.Execute(r.Context(), req)
	if result.HasErrors() {
		h.log.Debug().Interface("errors", result.Errors).Str("operation", req.OperationName).Msg("query returned errors")
	}
	httpx.RespondJSON(w, http.StatusOK, result)
}
