package server

import (
	"net/http"

	"github.com/go-chi/httprate"
	"github.com/gorilla/mux"

	"github.com/nicktill/ntk-tracker/pkg/config"
	"github.com/nicktill/ntk-tracker/pkg/httpx"
	"github.com/nicktill/ntk-tracker/pkg/logging"
	"github.com/nicktill/ntk-tracker/pkg/metrics"
)

// Limiter groups.
const (
	GroupGeneral = "general"
	GroupGraphQL = "graphql"
	GroupPredict = "predict"
	GroupExport  = "export"
)

// RateLimitResponse is the 429 body.
type RateLimitResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"`
}

var limitMessages = map[string]RateLimitResponse{
	GroupGeneral: {
		Error:   "Too many requests",
		Message: "You have exceeded the rate limit. Please try again later.",
	},
	GroupGraphQL: {
		Error:   "GraphQL rate limit exceeded",
		Message: "You have exceeded the rate limit for GraphQL queries. Please try again later.",
	},
	GroupPredict: {
		Error:   "Prediction rate limit exceeded",
		Message: "You have exceeded the rate limit for prediction requests. Please try again in a few minutes.",
	},
	GroupExport: {
		Error:   "Export rate limit exceeded",
		Message: "You have exceeded the rate limit for database exports. Please try again in 1 hour.",
	},
}

// RateLimit limits requests per client IP for one group. A disabled config
// returns a pass-through middleware.
func RateLimit(group string, cfg config.RateLimitConfig) mux.MiddlewareFunc {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }
	}

	limit := limitFor(group, cfg)
	body := limitMessages[group]
	body.RetryAfter = int(limit.Window.Seconds())

	return httprate.Limit(
		limit.Requests,
		limit.Window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			metrics.RateLimited.WithLabelValues(group).Inc()
			logging.Ctx(r.Context()).Warn().
				Str("group", group).
				Str("remote", r.RemoteAddr).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Msg("rate limit exceeded")
			httpx.RespondJSON(w, http.StatusTooManyRequests, body)
		}),
	)
}

func limitFor(group string, cfg config.RateLimitConfig) config.Limit {
	switch group {
	case GroupGraphQL:
		return cfg.GraphQL
	case GroupPredict:
		return cfg.Predict
	case GroupExport:
		return cfg.Export
	default:
		return cfg.General
	}
}
