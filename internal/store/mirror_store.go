package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/synapse-market/synapse-core/internal/domain"
	"github.com/synapse-market/synapse-core/internal/store/schema"
)

// MirrorStore defines database operations for the ledger mirror, the local
// read model rebuilt from contract events
type MirrorStore interface {
	// UpsertIndexedPlan inserts a plan from a storage event; replays of the
	// same event are ignored
	UpsertIndexedPlan(ctx context.Context, plan *schema.IndexedPlan) error
	// ApplyPurchase bumps the purchase count, pulls the plan back to the hot
	// tier and accumulates the contributor's share
	ApplyPurchase(ctx context.Context, planID string, contributor string, amountStroops int64) error
	// SetTier records a tier change for a plan
	SetTier(ctx context.Context, planID string, tier domain.StorageTier) error
	// GetIndexedPlan retrieves one mirrored plan
	GetIndexedPlan(ctx context.Context, id string) (*schema.IndexedPlan, error)
	// ContentHashExists reports whether any mirrored plan carries the hash
	ContentHashExists(ctx context.Context, contentHash string) (bool, error)
	// SearchIndexed runs a ranked full-text search over mirrored metadata
	SearchIndexed(ctx context.Context, query string, tags []string, limit int) ([]domain.PlanSearchResult, error)
	// GetContributorStats answers contributor stats from mirrored aggregates
	GetContributorStats(ctx context.Context, address string) (*domain.ContributorStats, error)
	// GetKBStats aggregates statistics over the mirror
	GetKBStats(ctx context.Context) (*domain.KBStats, error)
	// TierDistribution counts mirrored plans per storage tier
	TierDistribution(ctx context.Context) (map[domain.StorageTier]int64, error)
	// ListByContributor lists mirrored plans for one contributor, newest first
	ListByContributor(ctx context.Context, address string) ([]schema.IndexedPlan, error)
}

type mirrorStore struct {
	db *gorm.DB
}

// NewMirrorStore creates a ledger mirror store backed by sqlite
func NewMirrorStore(db *gorm.DB) MirrorStore {
	return &mirrorStore{db: db}
}

func (s *mirrorStore) UpsertIndexedPlan(ctx context.Context, plan *schema.IndexedPlan) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(plan).Error
	if err != nil {
		return fmt.Errorf("failed to upsert indexed plan: %w", err)
	}
	return nil
}

func (s *mirrorStore) ApplyPurchase(ctx context.Context, planID string, contributor string, amountStroops int64) error {
	contributorShare, _ := domain.ComputeSplit(amountStroops)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// A purchase is proof of demand, so the plan is forced hot even if a
		// tier change event demoted it in between
		err := tx.Model(&schema.IndexedPlan{}).
			Where("id = ?", planID).
			UpdateColumns(map[string]interface{}{
				"purchase_count": gorm.Expr("purchase_count + 1"),
				"tier":           string(domain.TierHot),
			}).Error
		if err != nil {
			return fmt.Errorf("failed to apply purchase to plan: %w", err)
		}

		err = tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "address"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"total_earned_stroops": gorm.Expr("contributor_aggregates.total_earned_stroops + ?", contributorShare),
				"total_purchases":      gorm.Expr("contributor_aggregates.total_purchases + 1"),
			}),
		}).Create(&schema.ContributorAggregate{
			Address:            contributor,
			TotalEarnedStroops: contributorShare,
			TotalPurchases:     1,
		}).Error
		if err != nil {
			return fmt.Errorf("failed to accumulate contributor share: %w", err)
		}

		return nil
	})
}

func (s *mirrorStore) SetTier(ctx context.Context, planID string, tier domain.StorageTier) error {
	err := s.db.WithContext(ctx).
		Model(&schema.IndexedPlan{}).
		Where("id = ?", planID).
		UpdateColumn("tier", string(tier)).Error
	if err != nil {
		return fmt.Errorf("failed to set tier: %w", err)
	}
	return nil
}

func (s *mirrorStore) GetIndexedPlan(ctx context.Context, id string) (*schema.IndexedPlan, error) {
	var row schema.IndexedPlan
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPlanNotFound
		}
		return nil, fmt.Errorf("failed to get indexed plan: %w", err)
	}
	return &row, nil
}

func (s *mirrorStore) ContentHashExists(ctx context.Context, contentHash string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&schema.IndexedPlan{}).
		Where("content_hash = ?", contentHash).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check content hash: %w", err)
	}
	return count > 0, nil
}

func (s *mirrorStore) SearchIndexed(ctx context.Context, query string, tags []string, limit int) ([]domain.PlanSearchResult, error) {
	if limit <= 0 {
		limit = 20
	}

	var (
		sql  strings.Builder
		args []interface{}
	)

	// Mirrored plans carry no quality score; content was validated before it
	// reached the chain
	if strings.TrimSpace(query) == "" {
		sql.WriteString(`SELECT id, title, description, tags, '' AS domain, -1 AS quality_score, purchase_count, 0 AS rank FROM indexed_plans WHERE 1=1`)
		appendTagFilters(&sql, &args, "tags", tags)
		sql.WriteString(` ORDER BY purchase_count DESC, created_at DESC LIMIT ?`)
		args = append(args, limit)
	} else {
		sql.WriteString(`SELECT p.id, p.title, p.description, p.tags, '' AS domain, -1 AS quality_score, p.purchase_count, bm25(indexed_plans_fts) AS rank
			FROM indexed_plans_fts f
			JOIN indexed_plans p ON p.rowid = f.rowid
			WHERE indexed_plans_fts MATCH ?`)
		args = append(args, FTSQuery(query))
		appendTagFilters(&sql, &args, "p.tags", tags)
		sql.WriteString(` ORDER BY rank LIMIT ?`)
		args = append(args, limit)
	}

	var rows []searchRow
	if err := s.db.WithContext(ctx).Raw(sql.String(), args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to search indexed plans: %w", err)
	}

	return searchRowsToDomain(rows), nil
}

func (s *mirrorStore) GetContributorStats(ctx context.Context, address string) (*domain.ContributorStats, error) {
	var plansCount int64
	err := s.db.WithContext(ctx).
		Model(&schema.IndexedPlan{}).
		Where("contributor = ?", address).
		Count(&plansCount).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count contributor plans: %w", err)
	}

	var agg schema.ContributorAggregate
	err = s.db.WithContext(ctx).Where("address = ?", address).First(&agg).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to get contributor aggregate: %w", err)
	}

	return &domain.ContributorStats{
		ContributorAddress: address,
		PlansCount:         plansCount,
		TotalEarnedStroops: agg.TotalEarnedStroops,
		TotalPurchases:     agg.TotalPurchases,
	}, nil
}

func (s *mirrorStore) GetKBStats(ctx context.Context) (*domain.KBStats, error) {
	var stats domain.KBStats

	if err := s.db.WithContext(ctx).Model(&schema.IndexedPlan{}).Count(&stats.TotalPlans).Error; err != nil {
		return nil, fmt.Errorf("failed to count indexed plans: %w", err)
	}

	var totalPurchases struct{ Total int64 }
	err := s.db.WithContext(ctx).
		Model(&schema.IndexedPlan{}).
		Select("COALESCE(SUM(purchase_count), 0) AS total").
		Scan(&totalPurchases).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sum purchases: %w", err)
	}
	stats.TotalPurchases = totalPurchases.Total

	err = s.db.WithContext(ctx).
		Model(&schema.IndexedPlan{}).
		Distinct("contributor").
		Count(&stats.TotalContributors).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count contributors: %w", err)
	}

	var tags []domain.TagCount
	err = s.db.WithContext(ctx).Raw(`
		SELECT je.value AS tag, COUNT(*) AS count
		FROM indexed_plans p, json_each(p.tags) je
		GROUP BY je.value
		ORDER BY count DESC, tag ASC
		LIMIT 10`).Scan(&tags).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate top tags: %w", err)
	}
	stats.TopTags = tags

	return &stats, nil
}

func (s *mirrorStore) TierDistribution(ctx context.Context) (map[domain.StorageTier]int64, error) {
	var rows []struct {
		Tier  string
		Count int64
	}
	err := s.db.WithContext(ctx).
		Model(&schema.IndexedPlan{}).
		Select("tier, COUNT(*) AS count").
		Group("tier").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate tiers: %w", err)
	}

	distribution := map[domain.StorageTier]int64{
		domain.TierHot:     0,
		domain.TierCold:    0,
		domain.TierArchive: 0,
	}
	for _, row := range rows {
		distribution[domain.ParseTier(row.Tier)] += row.Count
	}
	return distribution, nil
}

func (s *mirrorStore) ListByContributor(ctx context.Context, address string) ([]schema.IndexedPlan, error) {
	var rows []schema.IndexedPlan
	err := s.db.WithContext(ctx).
		Where("contributor = ?", address).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list contributor plans: %w", err)
	}
	return rows, nil
}
