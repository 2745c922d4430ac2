// Package storage exposes one interface over the two places a plan can
// live: the embedded local database or the distributed ledger with IPFS
// content. Callers pick a provider by storage mode and never care which
// backend answers.
package storage

import (
	"context"

	"github.com/synapse-market/synapse-core/internal/domain"
	"github.com/synapse-market/synapse-core/internal/stellar"
)

// Provider is the storage abstraction the API and tooling run against.
// Chain-only operations return domain.ErrNotSupported on backends without
// a ledger.
//
//go:generate mockgen -source=provider.go -destination=../mocks/provider.go -package=mocks -mock_names=Provider=MockProvider
type Provider interface {
	// Store persists a validated plan submission
	Store(ctx context.Context, input domain.StorePlanInput) (*domain.Plan, error)
	// GetByID retrieves a plan with its full content
	GetByID(ctx context.Context, id string) (*domain.Plan, error)
	// GetMeta retrieves plan metadata without content
	GetMeta(ctx context.Context, id string) (*domain.PlanMeta, error)
	// Search runs a ranked full-text search with optional tag filters
	Search(ctx context.Context, query string, tags []string, limit int) ([]domain.PlanSearchResult, error)
	// ContentExists reports whether identical content was stored before
	ContentExists(ctx context.Context, contentHash string) (bool, error)
	// RecordPurchase executes a purchase of the plan
	RecordPurchase(ctx context.Context, planID string, buyer string, amountStroops int64) (*domain.Purchase, error)
	// ListPurchases lists the recorded purchases of a plan, newest first
	ListPurchases(ctx context.Context, planID string) ([]domain.Purchase, error)
	// GetContributorStats aggregates one contributor's activity
	GetContributorStats(ctx context.Context, address string) (*domain.ContributorStats, error)
	// GetKBStats aggregates platform-wide statistics
	GetKBStats(ctx context.Context) (*domain.KBStats, error)
	// GetContentHash computes the deterministic digest used for dedup
	GetContentHash(content string) string

	// PublishToChain pushes an already stored plan onto the ledger
	PublishToChain(ctx context.Context, id string) (*domain.ChainReceipt, error)
	// VerifyIntegrity checks stored content against its recorded hash
	VerifyIntegrity(ctx context.Context, id string) (*domain.IntegrityReport, error)
	// SyncFromChain forces a rebuild of local state from the ledger
	SyncFromChain(ctx context.Context) error
	// GetOnChainMeta reads a plan's metadata directly from the contract
	GetOnChainMeta(ctx context.Context, id string) (*stellar.PlanRecord, error)

	// Close releases the provider's resources
	Close() error
}
