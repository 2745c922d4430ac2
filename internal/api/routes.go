package api

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all REST API routes
func SetupRoutes(router *gin.Engine, handler Handler) {
	// Health check endpoint (no version prefix)
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Plan endpoints
		v1.POST("/plans", handler.SubmitPlan)
		v1.GET("/plans", handler.SearchPlans)
		v1.GET("/plans/:id", handler.GetPlan)
		v1.GET("/plans/:id/meta", handler.GetPlanMeta)
		v1.POST("/plans/:id/purchases", handler.PurchasePlan)
		v1.GET("/plans/:id/purchases", handler.GetPlanPurchases)

		// Chain endpoints (answer not-supported in local mode)
		v1.POST("/plans/:id/publish", handler.PublishPlan)
		v1.GET("/plans/:id/integrity", handler.VerifyPlan)
		v1.GET("/plans/:id/onchain", handler.GetOnChainMeta)
		v1.POST("/sync", handler.TriggerSync)

		// Aggregate endpoints
		v1.GET("/contributors/:address", handler.GetContributor)
		v1.GET("/stats", handler.GetStats)
		v1.GET("/storage/tiers", handler.GetTiers)
		v1.GET("/indexer/status", handler.GetIndexerStatus)
	}
}
