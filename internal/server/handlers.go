package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/reviewlens/reviewlens/internal/analytics"
	"github.com/reviewlens/reviewlens/internal/cache"
	"github.com/reviewlens/reviewlens/internal/docstore"
	apierrors "github.com/reviewlens/reviewlens/internal/errors"
	"github.com/reviewlens/reviewlens/internal/logging"
	"github.com/reviewlens/reviewlens/internal/middleware"
	"github.com/reviewlens/reviewlens/internal/models"
	"github.com/reviewlens/reviewlens/internal/pipeline"
	"github.com/reviewlens/reviewlens/internal/warehouse"
)

const defaultRunTimeout = 30 * time.Minute

// MaxPreviewBatch caps the number of records accepted by the scoring preview
const MaxPreviewBatch = 1000

// ReviewsResponse lists reviews of one product
type ReviewsResponse struct {
	ProductID string                `json:"p_id"`
	BuyerID   string                `json:"buyer_id,omitempty"`
	Count     int                   `json:"count"`
	Reviews   []models.StoredReview `json:"reviews"`
}

// PreviewRequest is the body of the scoring preview endpoint
type PreviewRequest struct {
	Reviews []models.ReviewRecord `json:"reviews" binding:"required"`
}

// PreviewResponse is an in-memory validate and score pass
type PreviewResponse struct {
	Accepted []models.ScoredReview   `json:"accepted"`
	Rejected []models.RejectedRecord `json:"rejected"`
	Summary  *models.Summary         `json:"summary"`
}

// TriggerRunRequest optionally narrows an on-demand run to one product
type TriggerRunRequest struct {
	ProductID string `json:"product_id"`
}

func (s *APIServer) handleListProducts(c *gin.Context) {
	limit, apiErr := s.parseLimit(c)
	if apiErr != nil {
		respondError(c, apiErr)
		return
	}

	products, err := s.deps.Reviews.Products(c.Request.Context(), limit)
	if err != nil {
		s.respondStoreError(c, err, "list_products")
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(products), "products": products})
}

// handleRelevantReviews returns the top RELEVANT reviews of a product by score
func (s *APIServer) handleRelevantReviews(c *gin.Context) {
	productID := c.Param("p_id")
	limit, apiErr := s.parseLimit(c)
	if apiErr != nil {
		respondError(c, apiErr)
		return
	}

	s.cached(c, "relevant_reviews", []string{"relevant", productID, strconv.Itoa(limit)}, func(ctx context.Context) (any, error) {
		reviews, err := s.deps.Reviews.RelevantReviews(ctx, productID, limit)
		if err != nil {
			return nil, err
		}
		return &ReviewsResponse{ProductID: productID, Count: len(reviews), Reviews: reviews}, nil
	})
}

func (s *APIServer) handleProductSummary(c *gin.Context) {
	productID := c.Param("p_id")

	s.cached(c, "product_summary", []string{"summary", productID}, func(ctx context.Context) (any, error) {
		reviews, err := s.deps.Reviews.ProductReviews(ctx, productID)
		if err != nil {
			return nil, err
		}
		if len(reviews) == 0 {
			return nil, errProductNotFound
		}
		return gin.H{"p_id": productID, "summary": analytics.Summarize(scored(reviews))}, nil
	})
}

func (s *APIServer) handleGetReview(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, apierrors.NewInvalidParameterError("id", c.Param("id")))
		return
	}

	review, err := s.deps.Reviews.GetReview(c.Request.Context(), id)
	if err != nil {
		s.respondStoreError(c, err, "get_review")
		return
	}
	c.JSON(http.StatusOK, review)
}

func (s *APIServer) handleBuyerProducts(c *gin.Context) {
	buyerID := c.Param("buyer_id")

	products, err := s.deps.Reviews.BuyerProducts(c.Request.Context(), buyerID)
	if err != nil {
		s.respondStoreError(c, err, "buyer_products")
		return
	}
	c.JSON(http.StatusOK, gin.H{"buyer_id": buyerID, "products": products})
}

func (s *APIServer) handleBuyerReviews(c *gin.Context) {
	buyerID := c.Param("buyer_id")
	productID := c.Param("p_id")

	reviews, err := s.deps.Reviews.BuyerReviews(c.Request.Context(), buyerID, productID)
	if err != nil {
		s.respondStoreError(c, err, "buyer_reviews")
		return
	}
	c.JSON(http.StatusOK, &ReviewsResponse{ProductID: productID, BuyerID: buyerID, Count: len(reviews), Reviews: reviews})
}

// handleDashboardSummary breaks the whole warehouse down by category and rating
func (s *APIServer) handleDashboardSummary(c *gin.Context) {
	s.cached(c, "dashboard_summary", []string{"dashboard"}, func(ctx context.Context) (any, error) {
		reviews, err := s.deps.Reviews.AllReviews(ctx)
		if err != nil {
			return nil, err
		}
		return analytics.Summarize(scored(reviews)), nil
	})
}

// handleScoringPreview validates and scores a posted batch without persisting anything
func (s *APIServer) handleScoringPreview(c *gin.Context) {
	if s.deps.Scorer == nil {
		respondError(c, apierrors.ErrServiceUnavailableError.WithMessage("Scoring is not configured"))
		return
	}

	var req PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}
	if len(req.Reviews) > MaxPreviewBatch {
		respondError(c, apierrors.NewValidationError(gin.H{"max_reviews": MaxPreviewBatch, "got": len(req.Reviews)}))
		return
	}

	result := s.validator.Validate(req.Reviews)
	accepted := s.deps.Scorer.ScoreBatch(result.Accepted)
	c.JSON(http.StatusOK, &PreviewResponse{
		Accepted: accepted,
		Rejected: result.Rejected,
		Summary:  analytics.Summarize(accepted),
	})
}

func (s *APIServer) handleLatestRun(c *gin.Context) {
	if s.deps.Runs == nil {
		respondError(c, apierrors.ErrServiceUnavailableError.WithMessage("Run metadata store is not configured"))
		return
	}

	run, err := s.deps.Runs.LatestRun(c.Request.Context())
	if err != nil {
		s.respondStoreError(c, err, "latest_run")
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *APIServer) handleGetRun(c *gin.Context) {
	if s.deps.Runs == nil {
		respondError(c, apierrors.ErrServiceUnavailableError.WithMessage("Run metadata store is not configured"))
		return
	}

	run, err := s.deps.Runs.GetRun(c.Request.Context(), c.Param("run_id"))
	if err != nil {
		s.respondStoreError(c, err, "get_run")
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *APIServer) handleListRejections(c *gin.Context) {
	if s.deps.Runs == nil {
		respondError(c, apierrors.ErrServiceUnavailableError.WithMessage("Rejection log is not configured"))
		return
	}

	reason := models.RejectionReason(c.Query("reason"))
	if reason != "" && !reason.Valid() {
		respondError(c, apierrors.NewInvalidParameterError("reason", string(reason)))
		return
	}
	limit, apiErr := s.parseLimit(c)
	if apiErr != nil {
		respondError(c, apiErr)
		return
	}

	rejected, err := s.deps.Runs.ListRejections(c.Request.Context(), reason, limit)
	if err != nil {
		s.respondStoreError(c, err, "list_rejections")
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(rejected), "rejections": rejected})
}

// TriggerRunResponse acknowledges a started run
type TriggerRunResponse struct {
	RunID     string `json:"pipeline_run_id"`
	Status    string `json:"status"`
	StatusURL string `json:"status_url"`
}

// handleTriggerRun starts a pipeline run and answers 202 with its id. The run is
// detached from the request and bounded by the configured run timeout; its outcome
// is recorded under /runs/:run_id.
func (s *APIServer) handleTriggerRun(c *gin.Context) {
	if s.deps.Pipeline == nil {
		respondError(c, apierrors.ErrServiceUnavailableError.WithMessage("Pipeline is not configured"))
		return
	}

	var req TriggerRunRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, apierrors.NewValidationError(err.Error()))
			return
		}
	}

	timeout := s.config.Pipeline.RunTimeout
	if timeout <= 0 {
		timeout = defaultRunTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	requestID := middleware.GetRequestIDFromContext(c)
	userID := middleware.GetUserIDFromContext(c)
	runID, err := s.deps.Pipeline.StartProduct(ctx, req.ProductID, func(stats *models.RunStats, err error) {
		defer cancel()
		if err != nil {
			logging.LogError(err, requestID, "api", "trigger_run")
		}
	})
	if err != nil {
		cancel()
		if errors.Is(err, pipeline.ErrPipelineBusy) {
			respondError(c, apierrors.ErrPipelineBusyError)
			return
		}
		logging.LogError(err, requestID, "api", "trigger_run")
		respondError(c, apierrors.NewPipelineFailedError("", err.Error()))
		return
	}

	s.logger.Info().
		Str("user_id", userID).
		Str("product_id", req.ProductID).
		Str("run_id", runID).
		Msg("Pipeline run triggered")

	c.JSON(http.StatusAccepted, &TriggerRunResponse{
		RunID:     runID,
		Status:    "started",
		StatusURL: "/api/v1/runs/" + runID,
	})
}

func (s *APIServer) handlePipelineStatus(c *gin.Context) {
	resp := gin.H{"running": false}
	if s.deps.Pipeline != nil {
		resp["running"] = s.deps.Pipeline.IsRunning()
	}
	if s.deps.Scheduler != nil {
		resp["scheduler"] = s.deps.Scheduler.GetStatus()
	}
	c.JSON(http.StatusOK, resp)
}

var errProductNotFound = errors.New("no reviews for product")

// cached serves a JSON response from the response cache, computing and storing it on a miss.
// Cache failures degrade to an uncached response.
func (s *APIServer) cached(c *gin.Context, cacheType string, keyParts []string, load func(ctx context.Context) (any, error)) {
	ctx := c.Request.Context()

	var key string
	if s.deps.Cache != nil {
		key = s.deps.Cache.Key(keyParts...)
		var raw json.RawMessage
		err := s.deps.Cache.GetJSON(ctx, cacheType, key, &raw)
		if err == nil {
			c.Header("X-Cache", "HIT")
			c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
			return
		}
		if !errors.Is(err, cache.ErrMiss) && !errors.Is(err, cache.ErrCircuitOpen) {
			s.logger.Warn().Err(err).Str("key", key).Msg("Cache read failed")
		}
	}

	value, err := load(ctx)
	if err != nil {
		s.respondStoreError(c, err, cacheType)
		return
	}

	if s.deps.Cache != nil {
		if err := s.deps.Cache.SetJSON(ctx, key, value, s.config.Redis.CacheTTL); err != nil && !errors.Is(err, cache.ErrCircuitOpen) {
			s.logger.Warn().Err(err).Str("key", key).Msg("Cache write failed")
		}
		c.Header("X-Cache", "MISS")
	}
	c.JSON(http.StatusOK, value)
}

// respondStoreError maps store errors to API errors
func (s *APIServer) respondStoreError(c *gin.Context, err error, operation string) {
	switch {
	case errors.Is(err, warehouse.ErrReviewNotFound):
		respondError(c, apierrors.ErrReviewNotFoundError)
	case errors.Is(err, docstore.ErrRunNotFound):
		respondError(c, apierrors.ErrRunNotFoundError)
	case errors.Is(err, errProductNotFound):
		respondError(c, apierrors.ErrProductNotFoundError)
	case errors.Is(err, context.DeadlineExceeded):
		respondError(c, apierrors.ErrStoreTimeoutError)
	default:
		logging.LogError(err, middleware.GetRequestIDFromContext(c), "api", operation)
		respondError(c, apierrors.ErrDatabaseErrorError)
	}
}

// parseLimit reads ?limit=, applying the configured default and maximum
func (s *APIServer) parseLimit(c *gin.Context) (int, *apierrors.APIError) {
	raw := c.Query("limit")
	if raw == "" {
		return s.config.Warehouse.DefaultLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > s.config.Warehouse.MaxQueryLimit {
		return 0, apierrors.NewInvalidParameterError("limit", raw)
	}
	return limit, nil
}

func scored(reviews []models.StoredReview) []models.ScoredReview {
	out := make([]models.ScoredReview, len(reviews))
	for i := range reviews {
		out[i] = reviews[i].ScoredReview
	}
	return out
}
