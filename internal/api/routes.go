package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/RMahshie/decaymeter/internal/api/handlers"
	"github.com/RMahshie/decaymeter/pkg/models"
)

// Version is reported by the health endpoint and the OpenAPI document
const Version = "1.0.0"

// NewRouter builds the chi router with the standard middleware stack and
// mounts a huma API on it
func NewRouter(allowedOrigins []string) (*chi.Mux, huma.API) {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(RequestLogger())
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	router.Use(middleware.Compress(5))

	config := huma.DefaultConfig("Decaymeter API", Version)
	config.DocsPath = "/api/docs"
	api := humachi.New(router, config)

	return router, api
}

// RegisterHealth registers the health check endpoint
func RegisterHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns the health status of the service",
	}, func(ctx context.Context, input *struct{}) (*models.HealthResponse, error) {
		resp := &models.HealthResponse{}
		resp.Body.Status = "healthy"
		resp.Body.Version = Version
		resp.Body.Time = time.Now()
		return resp, nil
	})
}

// RegisterRoutes sets up all API routes
func RegisterRoutes(api huma.API, analysisHandler *handlers.AnalysisHandler) {
	huma.Register(api, huma.Operation{
		OperationID:  "analyzeAudio",
		Method:       http.MethodPost,
		Path:         "/api/analyze",
		Summary:      "Analyze a recording",
		Description:  "Decodes the request body and returns per-band RT60, the dominant resonance and the frequency response without storing anything",
		Tags:         []string{"Analysis"},
		MaxBodyBytes: models.MaxUploadSize,
	}, analysisHandler.Analyze)

	huma.Register(api, huma.Operation{
		OperationID: "createAnalysis",
		Method:      http.MethodPost,
		Path:        "/api/analyses",
		Summary:     "Create a new analysis",
		Description: "Creates a new analysis record and returns an upload URL",
		Tags:        []string{"Analysis"},
	}, analysisHandler.CreateAnalysis)

	huma.Register(api, huma.Operation{
		OperationID:  "uploadAudio",
		Method:       http.MethodPut,
		Path:         "/api/analyses/{id}/audio",
		Summary:      "Upload audio",
		Description:  "Stores the recording of a pending analysis when the store cannot pre-sign uploads",
		Tags:         []string{"Analysis"},
		MaxBodyBytes: models.MaxUploadSize,
	}, analysisHandler.UploadAudio)

	huma.Register(api, huma.Operation{
		OperationID: "getAnalysisStatus",
		Method:      http.MethodGet,
		Path:        "/api/analyses/{id}/status",
		Summary:     "Get analysis status",
		Description: "Returns the current status and progress of an analysis",
		Tags:        []string{"Analysis"},
	}, analysisHandler.GetAnalysisStatus)

	huma.Register(api, huma.Operation{
		OperationID: "getAnalysisResults",
		Method:      http.MethodGet,
		Path:        "/api/analyses/{id}/results",
		Summary:     "Get analysis results",
		Description: "Returns the complete analysis results including band RT60 and frequency data",
		Tags:        []string{"Analysis"},
	}, analysisHandler.GetAnalysisResults)

	huma.Register(api, huma.Operation{
		OperationID: "startProcessing",
		Method:      http.MethodPost,
		Path:        "/api/analyses/{id}/process",
		Summary:     "Start processing analysis",
		Description: "Starts processing an uploaded audio file",
		Tags:        []string{"Analysis"},
	}, analysisHandler.StartProcessing)

	huma.Register(api, huma.Operation{
		OperationID: "addRoomInfo",
		Method:      http.MethodPost,
		Path:        "/api/analyses/{id}/room-info",
		Summary:     "Add room information",
		Description: "Adds room dimensions to an analysis and predicts its axial room modes",
		Tags:        []string{"Analysis"},
	}, analysisHandler.AddRoomInfo)

	huma.Register(api, huma.Operation{
		OperationID: "listSessionAnalyses",
		Method:      http.MethodGet,
		Path:        "/api/sessions/{sessionID}/analyses",
		Summary:     "List session analyses",
		Description: "Returns the analyses created by a client session, newest first",
		Tags:        []string{"Sessions"},
	}, analysisHandler.ListSessionAnalyses)
}

// RequestLogger returns a Chi middleware that logs HTTP requests using zerolog
func RequestLogger() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				log.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("remote_ip", r.RemoteAddr).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("latency", time.Since(start)).
					Str("user_agent", r.UserAgent()).
					Msg("HTTP request")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
