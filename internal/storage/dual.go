package storage

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/synapse-market/synapse-core/internal/adapter"
	"github.com/synapse-market/synapse-core/internal/domain"
	"github.com/synapse-market/synapse-core/internal/ipfs"
	"github.com/synapse-market/synapse-core/internal/logger"
	"github.com/synapse-market/synapse-core/internal/stellar"
	"github.com/synapse-market/synapse-core/internal/store"

	"go.uber.org/zap"
)

// DualProvider writes to the local database and mirrors every plan onto the
// ledger. Local is the read path; the chain carries a redundant, publicly
// verifiable copy.
type DualProvider struct {
	db         *gorm.DB
	store      store.LocalStore
	cursor     store.CursorStore
	contract   stellar.ContractClient
	ipfs       ipfs.Client
	contractID string
	clock      adapter.Clock
}

// NewDualProvider creates a provider over an open local database and a
// contract client
func NewDualProvider(db *gorm.DB, contract stellar.ContractClient, ipfsClient ipfs.Client, contractID string, clock adapter.Clock) *DualProvider {
	return &DualProvider{
		db:         db,
		store:      store.NewLocalStore(db),
		cursor:     store.NewCursorStore(db),
		contract:   contract,
		ipfs:       ipfsClient,
		contractID: contractID,
		clock:      clock,
	}
}

// ledgerPlanID renders a local plan id as the fixed-width hex identifier the
// contract expects
func ledgerPlanID(id string) string {
	return strings.ReplaceAll(id, "-", "")
}

// Store writes the plan locally and then mirrors it on chain. A chain
// failure does not roll back the local write; the plan stays publishable
// through PublishToChain.
func (p *DualProvider) Store(ctx context.Context, input domain.StorePlanInput) (*domain.Plan, error) {
	plan, err := p.store.InsertPlan(ctx, input)
	if err != nil {
		return nil, err
	}

	if _, err := p.publish(ctx, plan); err != nil {
		logger.WarnCtx(ctx, "plan stored locally but chain publish failed",
			zap.String("planID", plan.ID),
			zap.Error(err))
	}

	return plan, nil
}

func (p *DualProvider) GetByID(ctx context.Context, id string) (*domain.Plan, error) {
	return p.store.GetPlanByID(ctx, id)
}

func (p *DualProvider) GetMeta(ctx context.Context, id string) (*domain.PlanMeta, error) {
	return p.store.GetPlanMeta(ctx, id)
}

func (p *DualProvider) Search(ctx context.Context, query string, tags []string, limit int) ([]domain.PlanSearchResult, error) {
	return p.store.SearchPlans(ctx, query, tags, limit)
}

func (p *DualProvider) ContentExists(ctx context.Context, contentHash string) (bool, error) {
	exists, err := p.store.ContentHashExists(ctx, contentHash)
	if err != nil {
		return false, err
	}
	if exists {
		return true, nil
	}
	return p.contract.ContentExists(ctx, contentHash)
}

// RecordPurchase settles the purchase on chain first, then records it
// locally with the resulting transaction hash
func (p *DualProvider) RecordPurchase(ctx context.Context, planID string, buyer string, amountStroops int64) (*domain.Purchase, error) {
	receipt, err := p.contract.PurchasePlan(ctx, ledgerPlanID(planID), buyer, amountStroops)
	if err != nil {
		return nil, err
	}
	return p.store.RecordPurchase(ctx, planID, buyer, amountStroops, &receipt.TxHash)
}

func (p *DualProvider) ListPurchases(ctx context.Context, planID string) ([]domain.Purchase, error) {
	return p.store.ListPurchases(ctx, planID)
}

func (p *DualProvider) GetContributorStats(ctx context.Context, address string) (*domain.ContributorStats, error) {
	return p.store.GetContributorStats(ctx, address)
}

func (p *DualProvider) GetKBStats(ctx context.Context) (*domain.KBStats, error) {
	return p.store.GetKBStats(ctx)
}

func (p *DualProvider) GetContentHash(content string) string {
	return domain.HashContent(content)
}

// PublishToChain pushes an already stored plan onto the ledger. Safe to
// retry; the contract rejects duplicate content so a replay of an already
// published plan fails loudly instead of double-registering.
func (p *DualProvider) PublishToChain(ctx context.Context, id string) (*domain.ChainReceipt, error) {
	plan, err := p.store.GetPlanByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.publish(ctx, plan)
}

func (p *DualProvider) publish(ctx context.Context, plan *domain.Plan) (*domain.ChainReceipt, error) {
	cid, err := p.ipfs.Pin(ctx, plan.Content)
	if err != nil {
		return nil, err
	}

	receipt, err := p.contract.StorePlan(ctx, stellar.StorePlanArgs{
		PlanID:       ledgerPlanID(plan.ID),
		ContentHash:  plan.ContentHash,
		Contributor:  plan.ContributorAddress,
		Title:        plan.Title,
		Description:  plan.Description,
		Tags:         plan.Tags,
		Domain:       plan.Domain,
		Language:     plan.Language,
		Framework:    plan.Framework,
		QualityScore: plan.QualityScore,
		IPFSCID:      cid,
	})
	if err != nil {
		_ = p.ipfs.Unpin(ctx, cid)
		return nil, err
	}
	return receipt, nil
}

// VerifyIntegrity compares the local content hash against the hash the
// contract recorded for the same plan
func (p *DualProvider) VerifyIntegrity(ctx context.Context, id string) (*domain.IntegrityReport, error) {
	plan, err := p.store.GetPlanByID(ctx, id)
	if err != nil {
		return nil, err
	}
	localHash := domain.HashContent(plan.Content)

	record, err := p.contract.GetPlan(ctx, ledgerPlanID(id))
	if err != nil {
		return nil, err
	}

	return &domain.IntegrityReport{
		Verified:    localHash == record.ContentHash,
		OnChainHash: record.ContentHash,
		LocalHash:   localHash,
	}, nil
}

// SyncFromChain rewinds the ledger cursor so the indexer replays the full
// backfill window on its next poll
func (p *DualProvider) SyncFromChain(ctx context.Context) error {
	return p.cursor.SetLedgerCursor(ctx, p.contractID, 0)
}

func (p *DualProvider) GetOnChainMeta(ctx context.Context, id string) (*stellar.PlanRecord, error) {
	return p.contract.GetPlan(ctx, ledgerPlanID(id))
}

func (p *DualProvider) Close() error {
	return store.CloseDB(p.db)
}

var _ Provider = (*DualProvider)(nil)
