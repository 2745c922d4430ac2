package storage

import (
	"context"

	"gorm.io/gorm"

	"github.com/synapse-market/synapse-core/internal/domain"
	"github.com/synapse-market/synapse-core/internal/stellar"
	"github.com/synapse-market/synapse-core/internal/store"
)

// LocalProvider keeps everything in the embedded sqlite database. It is the
// default mode; no chain, no pinning service, no network at all.
type LocalProvider struct {
	db    *gorm.DB
	store store.LocalStore
}

// NewLocalProvider creates a provider over an open local database
func NewLocalProvider(db *gorm.DB) *LocalProvider {
	return &LocalProvider{db: db, store: store.NewLocalStore(db)}
}

func (p *LocalProvider) Store(ctx context.Context, input domain.StorePlanInput) (*domain.Plan, error) {
	return p.store.InsertPlan(ctx, input)
}

func (p *LocalProvider) GetByID(ctx context.Context, id string) (*domain.Plan, error) {
	return p.store.GetPlanByID(ctx, id)
}

func (p *LocalProvider) GetMeta(ctx context.Context, id string) (*domain.PlanMeta, error) {
	return p.store.GetPlanMeta(ctx, id)
}

func (p *LocalProvider) Search(ctx context.Context, query string, tags []string, limit int) ([]domain.PlanSearchResult, error) {
	return p.store.SearchPlans(ctx, query, tags, limit)
}

func (p *LocalProvider) ContentExists(ctx context.Context, contentHash string) (bool, error) {
	return p.store.ContentHashExists(ctx, contentHash)
}

func (p *LocalProvider) RecordPurchase(ctx context.Context, planID string, buyer string, amountStroops int64) (*domain.Purchase, error) {
	return p.store.RecordPurchase(ctx, planID, buyer, amountStroops, nil)
}

func (p *LocalProvider) ListPurchases(ctx context.Context, planID string) ([]domain.Purchase, error) {
	return p.store.ListPurchases(ctx, planID)
}

func (p *LocalProvider) GetContributorStats(ctx context.Context, address string) (*domain.ContributorStats, error) {
	return p.store.GetContributorStats(ctx, address)
}

func (p *LocalProvider) GetKBStats(ctx context.Context) (*domain.KBStats, error) {
	return p.store.GetKBStats(ctx)
}

func (p *LocalProvider) GetContentHash(content string) string {
	return domain.HashContent(content)
}

func (p *LocalProvider) PublishToChain(ctx context.Context, id string) (*domain.ChainReceipt, error) {
	return nil, domain.ErrNotSupported
}

// VerifyIntegrity recomputes the content hash and compares it against the
// hash recorded at store time
func (p *LocalProvider) VerifyIntegrity(ctx context.Context, id string) (*domain.IntegrityReport, error) {
	plan, err := p.store.GetPlanByID(ctx, id)
	if err != nil {
		return nil, err
	}
	localHash := domain.HashContent(plan.Content)
	return &domain.IntegrityReport{
		Verified:    localHash == plan.ContentHash,
		OnChainHash: plan.ContentHash,
		LocalHash:   localHash,
	}, nil
}

func (p *LocalProvider) SyncFromChain(ctx context.Context) error {
	return domain.ErrNotSupported
}

func (p *LocalProvider) GetOnChainMeta(ctx context.Context, id string) (*stellar.PlanRecord, error) {
	return nil, domain.ErrNotSupported
}

func (p *LocalProvider) Close() error {
	return store.CloseDB(p.db)
}

var _ Provider = (*LocalProvider)(nil)
