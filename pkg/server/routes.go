package server

import (
	"net/http"
	"os"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/nicktill/ntk-tracker/pkg/config"
	"github.com/nicktill/ntk-tracker/pkg/logging"
	"github.com/nicktill/ntk-tracker/pkg/metrics"
	"github.com/nicktill/ntk-tracker/pkg/predict"
)

// Router returns the full HTTP handler: routes, per-group rate limits,
// CORS, panic recovery and the access log.
func (a *App) Router() http.Handler {
	router := mux.NewRouter()
	a.SetupRoutes(router)

	httpLog := logging.Component("http")
	h := handlers.CORS(
		handlers.AllowedOrigins(a.Config.Server.CORSOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", logging.RequestIDHeader}),
		handlers.ExposedHeaders([]string{logging.RequestIDHeader, "ETag"}),
	)(router)
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{httpLog}),
		handlers.PrintRecoveryStack(true),
	)(h)
	return handlers.CombinedLoggingHandler(httpLog, h)
}

// SetupRoutes registers every route on router.
func (a *App) SetupRoutes(router *mux.Router) {
	rl := a.Config.RateLimit
	router.Use(logging.RequestID, metrics.Middleware)

	router.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(RateLimit(GroupGeneral, rl))

	predictHandler := predict.NewHandler(a.Engine)
	api.Handle("/predict", RateLimit(GroupPredict, rl)(
		withTimeout(config.PredictTimeout, http.HandlerFunc(predictHandler.HandleDayCurve)),
	)).Methods(http.MethodGet)

	api.Handle("/graphql", RateLimit(GroupGraphQL, rl)(a.GraphQL)).Methods(http.MethodGet, http.MethodPost)

	// Export and import share one budget.
	exportLimit := RateLimit(GroupExport, rl)
	api.Handle("/export", exportLimit(
		withTimeout(config.ExportTimeout, http.HandlerFunc(a.Export.HandleExport)),
	)).Methods(http.MethodGet)
	api.Handle("/import", exportLimit(
		withTimeout(config.ExportTimeout, http.HandlerFunc(a.Export.HandleImport)),
	)).Methods(http.MethodPost)

	api.HandleFunc("/storage", a.handleStorage).Methods(http.MethodGet)
	api.HandleFunc("/ws", a.Hub.ServeWS).Methods(http.MethodGet)

	if dir := a.Config.Server.StaticDir; dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			router.PathPrefix("/").Handler(http.FileServer(http.Dir(dir))).Methods(http.MethodGet, http.MethodHead)
		} else {
			a.log.Warn().Str("static_dir", dir).Msg("static directory not found, frontend disabled")
		}
	}
}

// recoveryLogger adapts zerolog to handlers.RecoveryHandlerLogger.
type recoveryLogger struct {
	log zerolog.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.log.Error().Interface("panic", v).Msg("recovered from panic")
}
