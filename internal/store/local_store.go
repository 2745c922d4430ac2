package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/synapse-market/synapse-core/internal/domain"
	"github.com/synapse-market/synapse-core/internal/store/schema"
)

// LocalStore defines database operations for the local knowledge base
type LocalStore interface {
	// InsertPlan stores a new plan, returning domain.ErrDuplicateContent when
	// identical content was stored before
	InsertPlan(ctx context.Context, input domain.StorePlanInput) (*domain.Plan, error)
	// GetPlanByID retrieves a plan with its full content
	GetPlanByID(ctx context.Context, id string) (*domain.Plan, error)
	// GetPlanMeta retrieves plan metadata without content
	GetPlanMeta(ctx context.Context, id string) (*domain.PlanMeta, error)
	// SearchPlans runs a ranked full-text search with optional tag filters
	SearchPlans(ctx context.Context, query string, tags []string, limit int) ([]domain.PlanSearchResult, error)
	// RecordPurchase appends a purchase record and bumps the plan purchase count
	RecordPurchase(ctx context.Context, planID string, buyer string, amountStroops int64, txHash *string) (*domain.Purchase, error)
	// ListPurchases lists a plan's purchase records, newest first
	ListPurchases(ctx context.Context, planID string) ([]domain.Purchase, error)
	// ContentHashExists reports whether any plan carries the given content hash
	ContentHashExists(ctx context.Context, contentHash string) (bool, error)
	// GetContributorStats aggregates a contributor's plans, purchases and earnings
	GetContributorStats(ctx context.Context, address string) (*domain.ContributorStats, error)
	// GetKBStats aggregates platform-wide statistics
	GetKBStats(ctx context.Context) (*domain.KBStats, error)
	// ListPlansByContributor lists plan metadata for one contributor, newest first
	ListPlansByContributor(ctx context.Context, address string) ([]domain.PlanMeta, error)
	// ListPlans pages through all plans with content, oldest first
	ListPlans(ctx context.Context, limit, offset int) ([]domain.Plan, error)
}

type localStore struct {
	db *gorm.DB
}

// NewLocalStore creates a local knowledge base store backed by sqlite
func NewLocalStore(db *gorm.DB) LocalStore {
	return &localStore{db: db}
}

// searchRow is the scan target for ranked search queries
type searchRow struct {
	ID            string
	Title         string
	Description   string
	Tags          string
	Domain        string
	QualityScore  int
	PurchaseCount int64
	Rank          float64
}

// FTSQuery turns free text into an FTS5 match expression. Each token is
// quoted so user input can never be parsed as FTS syntax; tokens are
// implicitly AND-ed.
func FTSQuery(query string) string {
	tokens := strings.Fields(query)
	quoted := make([]string, 0, len(tokens))
	for _, token := range tokens {
		quoted = append(quoted, `"`+strings.ReplaceAll(token, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}

func (s *localStore) InsertPlan(ctx context.Context, input domain.StorePlanInput) (*domain.Plan, error) {
	row := schema.Plan{
		ID:                 uuid.NewString(),
		Title:              input.Title,
		Description:        domain.DeriveDescription(input.Description, input.Content),
		Content:            input.Content,
		ContentHash:        domain.HashContent(input.Content),
		Tags:               input.Tags,
		Domain:             input.Domain,
		Language:           input.Language,
		Framework:          input.Framework,
		ContributorAddress: input.ContributorAddress,
		QualityScore:       input.QualityScore,
	}

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, domain.ErrDuplicateContent
		}
		return nil, fmt.Errorf("failed to insert plan: %w", err)
	}

	return planToDomain(&row), nil
}

func (s *localStore) GetPlanByID(ctx context.Context, id string) (*domain.Plan, error) {
	var row schema.Plan
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPlanNotFound
		}
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return planToDomain(&row), nil
}

func (s *localStore) GetPlanMeta(ctx context.Context, id string) (*domain.PlanMeta, error) {
	var row schema.Plan
	err := s.db.WithContext(ctx).
		Omit("content").
		Where("id = ?", id).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPlanNotFound
		}
		return nil, fmt.Errorf("failed to get plan metadata: %w", err)
	}
	return planToMeta(&row), nil
}

func (s *localStore) SearchPlans(ctx context.Context, query string, tags []string, limit int) ([]domain.PlanSearchResult, error) {
	if limit <= 0 {
		limit = 20
	}

	var (
		sql  strings.Builder
		args []interface{}
	)

	if strings.TrimSpace(query) == "" {
		// No query text: unranked listing, most purchased first
		sql.WriteString(`SELECT id, title, description, tags, domain, quality_score, purchase_count, 0 AS rank FROM plans WHERE 1=1`)
		appendTagFilters(&sql, &args, "tags", tags)
		sql.WriteString(` ORDER BY purchase_count DESC, created_at DESC LIMIT ?`)
		args = append(args, limit)
	} else {
		sql.WriteString(`SELECT p.id, p.title, p.description, p.tags, p.domain, p.quality_score, p.purchase_count, bm25(plans_fts) AS rank
			FROM plans_fts f
			JOIN plans p ON p.rowid = f.rowid
			WHERE plans_fts MATCH ?`)
		args = append(args, FTSQuery(query))
		appendTagFilters(&sql, &args, "p.tags", tags)
		sql.WriteString(` ORDER BY rank LIMIT ?`)
		args = append(args, limit)
	}

	var rows []searchRow
	if err := s.db.WithContext(ctx).Raw(sql.String(), args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to search plans: %w", err)
	}

	return searchRowsToDomain(rows), nil
}

func (s *localStore) RecordPurchase(ctx context.Context, planID string, buyer string, amountStroops int64, txHash *string) (*domain.Purchase, error) {
	contributorShare, operatorShare := domain.ComputeSplit(amountStroops)

	row := schema.Purchase{
		PlanID:                  planID,
		BuyerAddress:            buyer,
		AmountStroops:           amountStroops,
		ContributorShareStroops: contributorShare,
		OperatorShareStroops:    operatorShare,
		TransactionHash:         txHash,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var plan schema.Plan
		if err := tx.Select("id").Where("id = ?", planID).First(&plan).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrPlanNotFound
			}
			return fmt.Errorf("failed to load plan: %w", err)
		}

		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to insert purchase: %w", err)
		}

		if err := tx.Model(&schema.Plan{}).
			Where("id = ?", planID).
			UpdateColumn("purchase_count", gorm.Expr("purchase_count + 1")).Error; err != nil {
			return fmt.Errorf("failed to bump purchase count: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &domain.Purchase{
		PlanID:                  row.PlanID,
		BuyerAddress:            row.BuyerAddress,
		AmountStroops:           row.AmountStroops,
		ContributorShareStroops: row.ContributorShareStroops,
		OperatorShareStroops:    row.OperatorShareStroops,
		TransactionHash:         row.TransactionHash,
		CreatedAt:               row.CreatedAt,
	}, nil
}

func (s *localStore) ListPurchases(ctx context.Context, planID string) ([]domain.Purchase, error) {
	var rows []schema.Purchase
	err := s.db.WithContext(ctx).
		Where("plan_id = ?", planID).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}

	purchases := make([]domain.Purchase, 0, len(rows))
	for _, row := range rows {
		purchases = append(purchases, domain.Purchase{
			PlanID:                  row.PlanID,
			BuyerAddress:            row.BuyerAddress,
			AmountStroops:           row.AmountStroops,
			ContributorShareStroops: row.ContributorShareStroops,
			OperatorShareStroops:    row.OperatorShareStroops,
			TransactionHash:         row.TransactionHash,
			CreatedAt:               row.CreatedAt,
		})
	}
	return purchases, nil
}

func (s *localStore) ContentHashExists(ctx context.Context, contentHash string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&schema.Plan{}).
		Where("content_hash = ?", contentHash).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check content hash: %w", err)
	}
	return count > 0, nil
}

func (s *localStore) GetContributorStats(ctx context.Context, address string) (*domain.ContributorStats, error) {
	var plansCount int64
	err := s.db.WithContext(ctx).
		Model(&schema.Plan{}).
		Where("contributor_address = ?", address).
		Count(&plansCount).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count contributor plans: %w", err)
	}

	var agg struct {
		TotalPurchases int64
		TotalEarned    int64
	}
	err = s.db.WithContext(ctx).Raw(`
		SELECT COUNT(*) AS total_purchases, COALESCE(SUM(pu.contributor_share_stroops), 0) AS total_earned
		FROM purchases pu
		JOIN plans p ON p.id = pu.plan_id
		WHERE p.contributor_address = ?`, address).Scan(&agg).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate contributor earnings: %w", err)
	}

	return &domain.ContributorStats{
		ContributorAddress: address,
		PlansCount:         plansCount,
		TotalEarnedStroops: agg.TotalEarned,
		TotalPurchases:     agg.TotalPurchases,
	}, nil
}

func (s *localStore) GetKBStats(ctx context.Context) (*domain.KBStats, error) {
	var stats domain.KBStats

	if err := s.db.WithContext(ctx).Model(&schema.Plan{}).Count(&stats.TotalPlans).Error; err != nil {
		return nil, fmt.Errorf("failed to count plans: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&schema.Purchase{}).Count(&stats.TotalPurchases).Error; err != nil {
		return nil, fmt.Errorf("failed to count purchases: %w", err)
	}
	err := s.db.WithContext(ctx).
		Model(&schema.Plan{}).
		Distinct("contributor_address").
		Count(&stats.TotalContributors).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count contributors: %w", err)
	}

	var tags []domain.TagCount
	err = s.db.WithContext(ctx).Raw(`
		SELECT je.value AS tag, COUNT(*) AS count
		FROM plans p, json_each(p.tags) je
		GROUP BY je.value
		ORDER BY count DESC, tag ASC
		LIMIT 10`).Scan(&tags).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate top tags: %w", err)
	}
	stats.TopTags = tags

	return &stats, nil
}

func (s *localStore) ListPlansByContributor(ctx context.Context, address string) ([]domain.PlanMeta, error) {
	var rows []schema.Plan
	err := s.db.WithContext(ctx).
		Omit("content").
		Where("contributor_address = ?", address).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list contributor plans: %w", err)
	}

	metas := make([]domain.PlanMeta, 0, len(rows))
	for i := range rows {
		metas = append(metas, *planToMeta(&rows[i]))
	}
	return metas, nil
}

func (s *localStore) ListPlans(ctx context.Context, limit, offset int) ([]domain.Plan, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []schema.Plan
	err := s.db.WithContext(ctx).
		Order("created_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}

	plans := make([]domain.Plan, 0, len(rows))
	for i := range rows {
		plans = append(plans, *planToDomain(&rows[i]))
	}
	return plans, nil
}

// appendTagFilters adds one conjunctive LIKE clause per tag against the
// JSON-encoded tags column
func appendTagFilters(sql *strings.Builder, args *[]interface{}, column string, tags []string) {
	for _, tag := range tags {
		sql.WriteString(fmt.Sprintf(" AND %s LIKE ?", column))
		*args = append(*args, "%"+tag+"%")
	}
}

func searchRowsToDomain(rows []searchRow) []domain.PlanSearchResult {
	results := make([]domain.PlanSearchResult, 0, len(rows))
	for _, row := range rows {
		var tags []string
		if row.Tags != "" {
			_ = json.Unmarshal([]byte(row.Tags), &tags)
		}
		results = append(results, domain.PlanSearchResult{
			ID:            row.ID,
			Title:         row.Title,
			Description:   row.Description,
			Tags:          tags,
			Domain:        row.Domain,
			QualityScore:  row.QualityScore,
			PurchaseCount: row.PurchaseCount,
			Rank:          row.Rank,
		})
	}
	return results
}

func planToDomain(row *schema.Plan) *domain.Plan {
	return &domain.Plan{
		ID:                 row.ID,
		Title:              row.Title,
		Description:        row.Description,
		Content:            row.Content,
		ContentHash:        row.ContentHash,
		Tags:               row.Tags,
		Domain:             row.Domain,
		Language:           row.Language,
		Framework:          row.Framework,
		ContributorAddress: row.ContributorAddress,
		QualityScore:       row.QualityScore,
		PurchaseCount:      row.PurchaseCount,
		CreatedAt:          row.CreatedAt,
	}
}

func planToMeta(row *schema.Plan) *domain.PlanMeta {
	return &domain.PlanMeta{
		ID:            row.ID,
		Title:         row.Title,
		Description:   row.Description,
		Tags:          row.Tags,
		Domain:        row.Domain,
		Language:      row.Language,
		Framework:     row.Framework,
		QualityScore:  row.QualityScore,
		PurchaseCount: row.PurchaseCount,
		CreatedAt:     row.CreatedAt,
	}
}
