package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/reviewlens/reviewlens/internal/config"
	apierrors "github.com/reviewlens/reviewlens/internal/errors"
	"github.com/reviewlens/reviewlens/internal/logging"
	"github.com/reviewlens/reviewlens/internal/middleware"
	"github.com/reviewlens/reviewlens/internal/models"
	"github.com/reviewlens/reviewlens/internal/monitoring"
	"github.com/reviewlens/reviewlens/internal/pipeline"
	"github.com/reviewlens/reviewlens/internal/scoring"
	"github.com/reviewlens/reviewlens/internal/validation"
	"github.com/reviewlens/reviewlens/internal/warehouse"
	"github.com/rs/zerolog"
)

// ReviewStore is the read side of the warehouse
type ReviewStore interface {
	RelevantReviews(ctx context.Context, productID string, limit int) ([]models.StoredReview, error)
	ProductReviews(ctx context.Context, productID string) ([]models.StoredReview, error)
	AllReviews(ctx context.Context) ([]models.StoredReview, error)
	BuyerReviews(ctx context.Context, buyerID, productID string) ([]models.StoredReview, error)
	GetReview(ctx context.Context, reviewID int64) (*models.StoredReview, error)
	Products(ctx context.Context, limit int) ([]warehouse.ProductSummary, error)
	BuyerProducts(ctx context.Context, buyerID string) ([]string, error)
	Health(ctx context.Context) error
}

// RunStore is the read side of the document store
type RunStore interface {
	LatestRun(ctx context.Context) (*models.RunStats, error)
	GetRun(ctx context.Context, runID string) (*models.RunStats, error)
	ListRejections(ctx context.Context, reason models.RejectionReason, limit int) ([]models.RejectedRecord, error)
	Health(ctx context.Context) error
}

// ResponseCache stores rendered JSON responses
type ResponseCache interface {
	Key(parts ...string) string
	GetJSON(ctx context.Context, cacheType, key string, dst any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// PipelineRunner starts on-demand runs in the background
type PipelineRunner interface {
	StartProduct(ctx context.Context, productID string, done func(*models.RunStats, error)) (string, error)
	IsRunning() bool
}

// SchedulerStatusProvider reports the periodic scheduler's state
type SchedulerStatusProvider interface {
	GetStatus() *pipeline.SchedulerStatus
}

// Deps are the server's collaborators. Only Reviews is required.
type Deps struct {
	Reviews   ReviewStore
	Runs      RunStore
	Cache     ResponseCache
	Limiter   middleware.Limiter
	Pipeline  PipelineRunner
	Scheduler SchedulerStatusProvider
	Scorer    *scoring.Scorer
}

// APIServer represents the main API server
type APIServer struct {
	config           *config.Config
	router           *gin.Engine
	deps             Deps
	validator        *validation.Validator
	jwtAuthenticator *middleware.JWTAuthenticator
	logger           zerolog.Logger
}

// NewAPIServer creates a new API server instance
func NewAPIServer(cfg *config.Config, deps Deps) *APIServer {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Add middleware in order
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	router.Use(monitoring.MetricsMiddleware())
	router.Use(logging.RequestLogger())

	srv := &APIServer{
		config:           cfg,
		router:           router,
		deps:             deps,
		validator:        validation.NewValidator(),
		jwtAuthenticator: middleware.NewJWTAuthenticator(&cfg.JWT),
		logger:           logging.NewLogger("api"),
	}

	srv.setupRoutes()
	return srv
}

// Router returns the gin router
func (s *APIServer) Router() http.Handler {
	return s.router
}

// setupRoutes configures all API routes
func (s *APIServer) setupRoutes() {
	// Health check
	s.router.GET("/health", s.healthCheck)

	// API v1 routes
	v1 := s.router.Group("/api/v1")
	v1.Use(s.jwtAuthenticator.OptionalJWT())
	if s.deps.Limiter != nil && s.config.RateLimit.Enabled {
		v1.Use(middleware.RateLimit(s.deps.Limiter))
	}
	{
		products := v1.Group("/products")
		{
			products.GET("", s.handleListProducts)
			products.GET("/:p_id/reviews/relevant", s.handleRelevantReviews)
			products.GET("/:p_id/summary", s.handleProductSummary)
		}

		v1.GET("/reviews/:id", s.handleGetReview)

		buyers := v1.Group("/buyers")
		{
			buyers.GET("/:buyer_id/products", s.handleBuyerProducts)
			buyers.GET("/:buyer_id/products/:p_id/reviews", s.handleBuyerReviews)
		}

		v1.GET("/dashboard/summary", s.handleDashboardSummary)
		v1.POST("/scoring/preview", s.handleScoringPreview)

		runs := v1.Group("/runs")
		{
			runs.GET("/latest", s.handleLatestRun)
			runs.GET("/:run_id", s.handleGetRun)
		}
		v1.GET("/rejections", s.handleListRejections)

		// Admin routes (protected - requires admin role)
		admin := v1.Group("/admin")
		admin.Use(s.jwtAuthenticator.JWTAuth())
		admin.Use(middleware.RequireAdmin())
		{
			admin.POST("/pipeline/runs", s.handleTriggerRun)
			admin.GET("/pipeline/status", s.handlePipelineStatus)
		}
	}
}

// Health check handler
func (s *APIServer) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	components := gin.H{}
	healthy := true

	if err := s.deps.Reviews.Health(ctx); err != nil {
		components["warehouse"] = err.Error()
		healthy = false
	} else {
		components["warehouse"] = "ok"
	}
	if s.deps.Runs != nil {
		if err := s.deps.Runs.Health(ctx); err != nil {
			components["docstore"] = err.Error()
			healthy = false
		} else {
			components["docstore"] = "ok"
		}
	}
	// The response cache is optional, so a tripped breaker does not degrade health
	if breaker, ok := s.deps.Cache.(interface{ State() string }); ok {
		components["cache"] = breaker.State()
	}

	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":     "degraded",
			"service":    "api",
			"components": components,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"service":    "api",
		"components": components,
	})
}

// respondError sends a standardized error response
func respondError(c *gin.Context, err *apierrors.APIError) {
	reqID := middleware.GetRequestIDFromContext(c)
	corrID := middleware.GetCorrelationIDFromContext(c)
	if corrID == "" {
		corrID = reqID
	}
	c.JSON(err.HTTPStatus, apierrors.NewErrorResponse(err, reqID, corrID, c.Request.URL.Path, c.Request.Method))
}
