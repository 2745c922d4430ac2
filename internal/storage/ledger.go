package storage

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/synapse-market/synapse-core/internal/adapter"
	"github.com/synapse-market/synapse-core/internal/domain"
	"github.com/synapse-market/synapse-core/internal/ipfs"
	"github.com/synapse-market/synapse-core/internal/stellar"
	"github.com/synapse-market/synapse-core/internal/store"
	"github.com/synapse-market/synapse-core/internal/store/schema"
)

// LedgerProvider stores plan metadata on the distributed ledger and content
// on IPFS. Reads prefer the event-sourced mirror and fall back to the chain,
// then to IPFS for content.
type LedgerProvider struct {
	db         *gorm.DB
	mirror     store.MirrorStore
	cursor     store.CursorStore
	contract   stellar.ContractClient
	ipfs       ipfs.Client
	contractID string
	clock      adapter.Clock
}

// NewLedgerProvider creates a provider over an open mirror database and a
// contract client
func NewLedgerProvider(db *gorm.DB, contract stellar.ContractClient, ipfsClient ipfs.Client, contractID string, clock adapter.Clock) *LedgerProvider {
	return &LedgerProvider{
		db:         db,
		mirror:     store.NewMirrorStore(db),
		cursor:     store.NewCursorStore(db),
		contract:   contract,
		ipfs:       ipfsClient,
		contractID: contractID,
		clock:      clock,
	}
}

// Store pins the content, writes metadata on chain and seeds the mirror so
// the plan is immediately readable. The indexer replays the storage event
// later; the seed makes that replay a no-op.
func (p *LedgerProvider) Store(ctx context.Context, input domain.StorePlanInput) (*domain.Plan, error) {
	planID := domain.NewLedgerPlanID()
	contentHash := domain.HashContent(input.Content)

	cid, err := p.ipfs.Pin(ctx, input.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to pin content: %w", err)
	}

	description := domain.DeriveDescription(input.Description, input.Content)
	_, err = p.contract.StorePlan(ctx, stellar.StorePlanArgs{
		PlanID:       planID,
		ContentHash:  contentHash,
		Contributor:  input.ContributorAddress,
		Title:        input.Title,
		Description:  description,
		Tags:         input.Tags,
		Domain:       input.Domain,
		Language:     input.Language,
		Framework:    input.Framework,
		QualityScore: input.QualityScore,
		IPFSCID:      cid,
	})
	if err != nil {
		// Content without an on-chain record is an orphan; best effort clean up
		_ = p.ipfs.Unpin(ctx, cid)
		return nil, err
	}

	now := p.clock.Now()
	if err := p.mirror.UpsertIndexedPlan(ctx, &schema.IndexedPlan{
		ID:          planID,
		ContentHash: contentHash,
		Contributor: input.ContributorAddress,
		Title:       input.Title,
		Description: description,
		Content:     input.Content,
		Tags:        input.Tags,
		IPFSCID:     cid,
		Tier:        string(domain.TierHot),
	}); err != nil {
		return nil, err
	}

	return &domain.Plan{
		ID:                 planID,
		Title:              input.Title,
		Description:        description,
		Content:            input.Content,
		ContentHash:        contentHash,
		Tags:               input.Tags,
		Domain:             input.Domain,
		IPFSCID:            cid,
		ContributorAddress: input.ContributorAddress,
		QualityScore:       input.QualityScore,
		Tier:               domain.TierHot,
		CreatedAt:          now,
	}, nil
}

// GetByID resolves the plan from the mirror, falling back to the contract.
// Content comes from the hydrated mirror row; IPFS is only consulted when
// hydration failed or the mirror has not caught up yet.
func (p *LedgerProvider) GetByID(ctx context.Context, id string) (*domain.Plan, error) {
	meta, content, err := p.getRecord(ctx, id)
	if err != nil {
		return nil, err
	}

	if content == "" && meta.IPFSCID != "" {
		content, err = p.ipfs.Get(ctx, meta.IPFSCID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch plan content: %w", err)
		}
	}

	return &domain.Plan{
		ID:                 meta.ID,
		Title:              meta.Title,
		Description:        meta.Description,
		Content:            content,
		ContentHash:        meta.ContentHash,
		Tags:               meta.Tags,
		IPFSCID:            meta.IPFSCID,
		ContributorAddress: meta.Contributor,
		QualityScore:       domain.QUALITY_SCORE_UNSCORED,
		PurchaseCount:      meta.PurchaseCount,
		Tier:               meta.Tier,
	}, nil
}

func (p *LedgerProvider) GetMeta(ctx context.Context, id string) (*domain.PlanMeta, error) {
	meta, _, err := p.getRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	return &domain.PlanMeta{
		ID:            meta.ID,
		Title:         meta.Title,
		Description:   meta.Description,
		Tags:          meta.Tags,
		QualityScore:  domain.QUALITY_SCORE_UNSCORED,
		PurchaseCount: meta.PurchaseCount,
	}, nil
}

// getRecord reads a plan record from the mirror, then from the contract.
// The second return value is the mirror's hydrated content, empty when the
// record came from the contract.
func (p *LedgerProvider) getRecord(ctx context.Context, id string) (*stellar.PlanRecord, string, error) {
	row, err := p.mirror.GetIndexedPlan(ctx, id)
	if err == nil {
		return &stellar.PlanRecord{
			ID:            row.ID,
			ContentHash:   row.ContentHash,
			Contributor:   row.Contributor,
			Title:         row.Title,
			Description:   row.Description,
			Tags:          row.Tags,
			IPFSCID:       row.IPFSCID,
			Tier:          domain.ParseTier(row.Tier),
			PurchaseCount: row.PurchaseCount,
		}, row.Content, nil
	}
	if !errors.Is(err, domain.ErrPlanNotFound) {
		return nil, "", err
	}
	// The mirror may simply not have caught up yet
	record, err := p.contract.GetPlan(ctx, id)
	if err != nil {
		return nil, "", err
	}
	return record, "", nil
}

func (p *LedgerProvider) Search(ctx context.Context, query string, tags []string, limit int) ([]domain.PlanSearchResult, error) {
	return p.mirror.SearchIndexed(ctx, query, tags, limit)
}

// ContentExists asks the mirror first and confirms misses against the
// contract, which is authoritative
func (p *LedgerProvider) ContentExists(ctx context.Context, contentHash string) (bool, error) {
	exists, err := p.mirror.ContentHashExists(ctx, contentHash)
	if err != nil {
		return false, err
	}
	if exists {
		return true, nil
	}
	return p.contract.ContentExists(ctx, contentHash)
}

// RecordPurchase submits the purchase on chain. The contract transfers the
// asset and splits payment atomically; the mirror catches the purchase
// event on the next poll.
func (p *LedgerProvider) RecordPurchase(ctx context.Context, planID string, buyer string, amountStroops int64) (*domain.Purchase, error) {
	receipt, err := p.contract.PurchasePlan(ctx, planID, buyer, amountStroops)
	if err != nil {
		return nil, err
	}

	contributorShare, operatorShare := domain.ComputeSplit(amountStroops)
	return &domain.Purchase{
		PlanID:                  planID,
		BuyerAddress:            buyer,
		AmountStroops:           amountStroops,
		ContributorShareStroops: contributorShare,
		OperatorShareStroops:    operatorShare,
		TransactionHash:         &receipt.TxHash,
		CreatedAt:               p.clock.Now(),
	}, nil
}

// ListPurchases reads the purchase history the contract recorded for a plan
func (p *LedgerProvider) ListPurchases(ctx context.Context, planID string) ([]domain.Purchase, error) {
	records, err := p.contract.GetPurchases(ctx, planID)
	if err != nil {
		return nil, err
	}

	purchases := make([]domain.Purchase, 0, len(records))
	for _, record := range records {
		purchases = append(purchases, domain.Purchase{
			PlanID:                  planID,
			BuyerAddress:            record.Buyer,
			AmountStroops:           record.AmountStroops,
			ContributorShareStroops: record.ContributorShareStroops,
			OperatorShareStroops:    record.OperatorShareStroops,
		})
	}
	return purchases, nil
}

func (p *LedgerProvider) GetContributorStats(ctx context.Context, address string) (*domain.ContributorStats, error) {
	return p.mirror.GetContributorStats(ctx, address)
}

func (p *LedgerProvider) GetKBStats(ctx context.Context) (*domain.KBStats, error) {
	return p.mirror.GetKBStats(ctx)
}

func (p *LedgerProvider) GetContentHash(content string) string {
	return domain.HashContent(content)
}

// PublishToChain is meaningless here; Store already writes on chain
func (p *LedgerProvider) PublishToChain(ctx context.Context, id string) (*domain.ChainReceipt, error) {
	return nil, domain.ErrNotSupported
}

// VerifyIntegrity fetches the pinned content and compares its hash against
// the hash the contract recorded
func (p *LedgerProvider) VerifyIntegrity(ctx context.Context, id string) (*domain.IntegrityReport, error) {
	record, err := p.contract.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}

	content, err := p.ipfs.Get(ctx, record.IPFSCID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch plan content: %w", err)
	}

	localHash := domain.HashContent(content)
	return &domain.IntegrityReport{
		Verified:    localHash == record.ContentHash,
		OnChainHash: record.ContentHash,
		LocalHash:   localHash,
	}, nil
}

// SyncFromChain rewinds the ledger cursor so the indexer replays the full
// backfill window on its next poll
func (p *LedgerProvider) SyncFromChain(ctx context.Context) error {
	return p.cursor.SetLedgerCursor(ctx, p.contractID, 0)
}

func (p *LedgerProvider) GetOnChainMeta(ctx context.Context, id string) (*stellar.PlanRecord, error) {
	return p.contract.GetPlan(ctx, id)
}

func (p *LedgerProvider) Close() error {
	return store.CloseDB(p.db)
}

var _ Provider = (*LedgerProvider)(nil)
