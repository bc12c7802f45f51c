package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"leafdoc-backend/internal/diagnoses"
	"leafdoc-backend/internal/llm"
	openaiclient "leafdoc-backend/internal/llm/openai"
	"leafdoc-backend/internal/services/health"
	"leafdoc-backend/internal/shared/config"
	"leafdoc-backend/internal/shared/metrics"
	"leafdoc-backend/internal/shared/server/middleware"
	"leafdoc-backend/internal/shared/server/respond"
	"leafdoc-backend/internal/shared/storage/db"
	"leafdoc-backend/internal/shared/storage/object"
	localstore "leafdoc-backend/internal/shared/storage/object/local"
	s3store "leafdoc-backend/internal/shared/storage/object/s3"
	"leafdoc-backend/internal/shared/telemetry"
)

// NewRouter constructs the gin engine with middleware, dependencies, and
// routes registered. The controller is hydrated from the history store before
// the engine is returned, so the first request already sees past diagnoses.
func NewRouter(cfg config.Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
	)

	ctrl := diagnoses.NewController(
		buildHistoryStore(cfg),
		buildLLMClient(cfg),
		buildArchive(cfg),
		cfg.DefaultLanguage,
	)
	ctrl.Hydrate(context.Background())

	healthSvc := health.NewService(cfg.HistoryStoreType, cfg.LLMProvider)

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, healthSvc.Status())
	})
	diagnoses.NewHandler(ctrl).RegisterRoutes(api)

	r.GET("/metrics", metrics.Handler())

	return r
}

// Addr returns a normalized listen address for the given port.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

func buildHistoryStore(cfg config.Config) diagnoses.HistoryStore {
	switch cfg.HistoryStoreType {
	case "postgres":
		database, err := db.Connect(context.Background(), cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
		if err != nil {
			telemetry.Warn("history.db_unavailable", map[string]any{"error": err.Error()})
			break
		}
		if err := db.RunMigrations(context.Background(), database); err != nil {
			telemetry.Warn("history.migrations_failed", map[string]any{"error": err.Error()})
			database.Close()
			break
		}
		return &diagnoses.PGStore{DB: database}
	case "memory":
		return diagnoses.NewMemoryStore()
	}
	return diagnoses.NewFileStore(cfg.HistoryFile)
}

func buildLLMClient(cfg config.Config) llm.Client {
	if cfg.LLMProvider == "openai" && cfg.OpenAIAPIKey != "" {
		client, err := openaiclient.NewClient(cfg.OpenAIAPIKey, cfg.LLMModel, cfg.OpenAIBaseURL)
		if err == nil {
			return client
		}
		telemetry.Warn("llm.client_init_failed", map[string]any{"error": err.Error()})
	}
	telemetry.Warn("llm.placeholder_in_use", map[string]any{"provider": cfg.LLMProvider})
	return llm.PlaceholderClient{}
}

func buildArchive(cfg config.Config) object.ObjectStore {
	switch cfg.ObjectStoreType {
	case "s3":
		store, err := s3store.New(context.Background(), cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
		if err != nil {
			telemetry.Warn("archive.s3_unavailable", map[string]any{"error": err.Error()})
			return localstore.New(cfg.LocalStoreDir)
		}
		return store
	case "none":
		return nil
	}
	return localstore.New(cfg.LocalStoreDir)
}
