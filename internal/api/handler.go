package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/synapse-market/synapse-core/internal/domain"
	"github.com/synapse-market/synapse-core/internal/gate"
	"github.com/synapse-market/synapse-core/internal/indexer"
	"github.com/synapse-market/synapse-core/internal/storage"
	"github.com/synapse-market/synapse-core/internal/store"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

// StatusReporter exposes the indexer's sync status to the API
type StatusReporter interface {
	Status(ctx context.Context) (*indexer.Status, error)
}

// Handler defines the interface for REST API handlers
//
//go:generate mockgen -source=handler.go -destination=../mocks/api_handler.go -package=mocks -mock_names=Handler=MockAPIHandler
type Handler interface {
	// SubmitPlan validates a submission through the gate and stores it
	// POST /api/v1/plans
	SubmitPlan(c *gin.Context)

	// SearchPlans runs a ranked full-text search with optional tag filters
	// GET /api/v1/plans?q=<query>&tags=<tag1>,<tag2>&limit=<limit>
	SearchPlans(c *gin.Context)

	// GetPlan retrieves a plan with its full content
	// GET /api/v1/plans/:id
	GetPlan(c *gin.Context)

	// GetPlanMeta retrieves plan metadata without content
	// GET /api/v1/plans/:id/meta
	GetPlanMeta(c *gin.Context)

	// PurchasePlan executes a purchase of the plan
	// POST /api/v1/plans/:id/purchases
	PurchasePlan(c *gin.Context)

	// GetPlanPurchases lists the recorded purchases of a plan
	// GET /api/v1/plans/:id/purchases
	GetPlanPurchases(c *gin.Context)

	// PublishPlan pushes an already stored plan onto the ledger
	// POST /api/v1/plans/:id/publish
	PublishPlan(c *gin.Context)

	// VerifyPlan checks stored content against its recorded hash
	// GET /api/v1/plans/:id/integrity
	VerifyPlan(c *gin.Context)

	// GetOnChainMeta reads a plan's metadata directly from the contract
	// GET /api/v1/plans/:id/onchain
	GetOnChainMeta(c *gin.Context)

	// GetContributor aggregates one contributor's activity
	// GET /api/v1/contributors/:address
	GetContributor(c *gin.Context)

	// GetStats aggregates platform-wide statistics
	// GET /api/v1/stats
	GetStats(c *gin.Context)

	// GetTiers reports mirrored plans per storage tier
	// GET /api/v1/storage/tiers
	GetTiers(c *gin.Context)

	// GetIndexerStatus reports the indexer's sync position
	// GET /api/v1/indexer/status
	GetIndexerStatus(c *gin.Context)

	// TriggerSync forces a rebuild of mirrored state from the ledger
	// POST /api/v1/sync
	TriggerSync(c *gin.Context)

	// HealthCheck returns the health status of the API
	// GET /health
	HealthCheck(c *gin.Context)
}

// handler implements the Handler interface. The mirror and status reporter
// are nil in local mode; their routes answer not-supported.
type handler struct {
	provider storage.Provider
	gate     *gate.Gate
	mirror   store.MirrorStore
	status   StatusReporter
}

// NewHandler creates a new REST API handler
func NewHandler(provider storage.Provider, g *gate.Gate, mirror store.MirrorStore, status StatusReporter) Handler {
	return &handler{
		provider: provider,
		gate:     g,
		mirror:   mirror,
		status:   status,
	}
}

// submitPlanRequest is the body for POST /api/v1/plans
type submitPlanRequest struct {
	Title              string   `json:"title" binding:"required"`
	Description        string   `json:"description"`
	Content            string   `json:"content" binding:"required"`
	Tags               []string `json:"tags"`
	Domain             string   `json:"domain"`
	Language           string   `json:"language"`
	Framework          string   `json:"framework"`
	ContributorAddress string   `json:"contributor_address" binding:"required"`
}

// submitPlanResponse pairs the stored plan with the gate's verdict
type submitPlanResponse struct {
	Plan       *domain.Plan           `json:"plan"`
	Validation *gate.ValidationResult `json:"validation"`
}

func (h *handler) SubmitPlan(c *gin.Context) {
	var req submitPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	input := domain.StorePlanInput{
		Title:              req.Title,
		Description:        req.Description,
		Content:            req.Content,
		Tags:               req.Tags,
		Domain:             req.Domain,
		Language:           req.Language,
		Framework:          req.Framework,
		ContributorAddress: req.ContributorAddress,
		QualityScore:       domain.QUALITY_SCORE_UNSCORED,
	}

	validation, err := h.gate.ValidateSubmission(c.Request.Context(), input)
	if err != nil {
		respondInternalError(c, err, "Failed to validate submission")
		return
	}
	if !validation.Accepted {
		c.JSON(http.StatusUnprocessableEntity, submitPlanResponse{Validation: validation})
		return
	}
	input.QualityScore = validation.Quality.Score

	plan, err := h.provider.Store(c.Request.Context(), input)
	if err != nil {
		respondDomainError(c, err, "Failed to store plan")
		return
	}

	c.JSON(http.StatusCreated, submitPlanResponse{Plan: plan, Validation: validation})
}

func (h *handler) SearchPlans(c *gin.Context) {
	query := c.Query("q")

	var tags []string
	if raw := c.Query("tags"); raw != "" {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags = append(tags, tag)
			}
		}
	}

	limit := defaultSearchLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxSearchLimit {
			respondValidationError(c, "limit must be an integer between 1 and 100")
			return
		}
		limit = parsed
	}

	results, err := h.provider.Search(c.Request.Context(), query, tags, limit)
	if err != nil {
		respondInternalError(c, err, "Failed to search plans",
			zap.String("query", query))
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
}

func (h *handler) GetPlan(c *gin.Context) {
	plan, err := h.provider.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondDomainError(c, err, "Failed to get plan")
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (h *handler) GetPlanMeta(c *gin.Context) {
	meta, err := h.provider.GetMeta(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondDomainError(c, err, "Failed to get plan metadata")
		return
	}
	c.JSON(http.StatusOK, meta)
}

// purchaseRequest is the body for POST /api/v1/plans/:id/purchases
type purchaseRequest struct {
	BuyerAddress  string `json:"buyer_address" binding:"required"`
	AmountStroops int64  `json:"amount_stroops" binding:"required,gt=0"`
}

func (h *handler) PurchasePlan(c *gin.Context) {
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	purchase, err := h.provider.RecordPurchase(c.Request.Context(), c.Param("id"), req.BuyerAddress, req.AmountStroops)
	if err != nil {
		respondDomainError(c, err, "Failed to record purchase")
		return
	}

	c.JSON(http.StatusCreated, purchase)
}

func (h *handler) GetPlanPurchases(c *gin.Context) {
	purchases, err := h.provider.ListPurchases(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondDomainError(c, err, "Failed to list purchases")
		return
	}
	c.JSON(http.StatusOK, gin.H{"purchases": purchases, "count": len(purchases)})
}

func (h *handler) PublishPlan(c *gin.Context) {
	receipt, err := h.provider.PublishToChain(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondDomainError(c, err, "Failed to publish plan")
		return
	}
	c.JSON(http.StatusOK, receipt)
}

func (h *handler) VerifyPlan(c *gin.Context) {
	report, err := h.provider.VerifyIntegrity(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondDomainError(c, err, "Failed to verify plan integrity")
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *handler) GetOnChainMeta(c *gin.Context) {
	record, err := h.provider.GetOnChainMeta(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondDomainError(c, err, "Failed to get on-chain metadata")
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *handler) GetContributor(c *gin.Context) {
	address := c.Param("address")
	if address == "" {
		respondBadRequest(c, "Contributor address is required")
		return
	}

	stats, err := h.provider.GetContributorStats(c.Request.Context(), address)
	if err != nil {
		respondDomainError(c, err, "Failed to get contributor stats")
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *handler) GetStats(c *gin.Context) {
	stats, err := h.provider.GetKBStats(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "Failed to get knowledge base stats")
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *handler) GetTiers(c *gin.Context) {
	if h.mirror == nil {
		respondWithError(c, http.StatusNotImplemented, errCodeNotSupported, "Operation not supported in this storage mode")
		return
	}

	tiers, err := h.mirror.TierDistribution(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "Failed to get tier distribution")
		return
	}
	c.JSON(http.StatusOK, gin.H{"tiers": tiers})
}

func (h *handler) GetIndexerStatus(c *gin.Context) {
	if h.status == nil {
		respondWithError(c, http.StatusNotImplemented, errCodeNotSupported, "Operation not supported in this storage mode")
		return
	}

	status, err := h.status.Status(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "Failed to get indexer status")
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *handler) TriggerSync(c *gin.Context) {
	if err := h.provider.SyncFromChain(c.Request.Context()); err != nil {
		respondDomainError(c, err, "Failed to trigger chain sync")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "resync scheduled"})
}

func (h *handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
