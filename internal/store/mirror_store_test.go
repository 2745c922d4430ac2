package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/synapse-market/synapse-core/internal/domain"
	"github.com/synapse-market/synapse-core/internal/store/schema"
)

func newTestMirrorDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenMirrorDB(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = CloseDB(db) })
	return db
}

func indexedPlan(id, title string, ledger uint64, tags ...string) *schema.IndexedPlan {
	return &schema.IndexedPlan{
		ID:          id,
		ContentHash: domain.HashContent(title),
		Contributor: "GCONTRIBUTOR",
		Title:       title,
		Tags:        tags,
		IPFSCID:     "Qm" + id,
		Tier:        string(domain.TierHot),
		Ledger:      ledger,
	}
}

func TestUpsertIndexedPlan(t *testing.T) {
	s := NewMirrorStore(newTestMirrorDB(t))
	ctx := context.Background()

	require.NoError(t, s.UpsertIndexedPlan(ctx, indexedPlan("p1", "Caching guide", 100, "caching")))

	// Replaying the same storage event must not clobber accumulated state
	require.NoError(t, s.ApplyPurchase(ctx, "p1", "GCONTRIBUTOR", 10_000_000))
	require.NoError(t, s.UpsertIndexedPlan(ctx, indexedPlan("p1", "Caching guide", 100, "caching")))

	got, err := s.GetIndexedPlan(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.PurchaseCount)

	_, err = s.GetIndexedPlan(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrPlanNotFound)
}

func TestApplyPurchaseForcesHot(t *testing.T) {
	s := NewMirrorStore(newTestMirrorDB(t))
	ctx := context.Background()

	require.NoError(t, s.UpsertIndexedPlan(ctx, indexedPlan("p1", "Demoted plan", 100)))
	require.NoError(t, s.SetTier(ctx, "p1", domain.TierArchive))

	got, err := s.GetIndexedPlan(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, string(domain.TierArchive), got.Tier)

	require.NoError(t, s.ApplyPurchase(ctx, "p1", "GCONTRIBUTOR", 10_000_000))

	got, err = s.GetIndexedPlan(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, string(domain.TierHot), got.Tier)
	assert.Equal(t, int64(1), got.PurchaseCount)

	// Purchases for plans the mirror has not seen yet must not fail the batch
	assert.NoError(t, s.ApplyPurchase(ctx, "unseen", "GSOMEONE", 100))
}

func TestMirrorContributorStats(t *testing.T) {
	s := NewMirrorStore(newTestMirrorDB(t))
	ctx := context.Background()

	require.NoError(t, s.UpsertIndexedPlan(ctx, indexedPlan("p1", "One", 100)))
	require.NoError(t, s.UpsertIndexedPlan(ctx, indexedPlan("p2", "Two", 101)))

	require.NoError(t, s.ApplyPurchase(ctx, "p1", "GCONTRIBUTOR", 10_000_000))
	require.NoError(t, s.ApplyPurchase(ctx, "p1", "GCONTRIBUTOR", 10_000_000))

	stats, err := s.GetContributorStats(ctx, "GCONTRIBUTOR")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.PlansCount)
	assert.Equal(t, int64(2), stats.TotalPurchases)
	assert.Equal(t, int64(14_000_000), stats.TotalEarnedStroops)

	// Unknown contributor answers zeroes, not an error
	stats, err = s.GetContributorStats(ctx, "GUNKNOWN")
	require.NoError(t, err)
	assert.Zero(t, stats.PlansCount)
	assert.Zero(t, stats.TotalEarnedStroops)
}

func TestSearchIndexed(t *testing.T) {
	s := NewMirrorStore(newTestMirrorDB(t))
	ctx := context.Background()

	require.NoError(t, s.UpsertIndexedPlan(ctx, indexedPlan("p1", "Postgres tuning", 100, "postgres")))
	require.NoError(t, s.UpsertIndexedPlan(ctx, indexedPlan("p2", "Redis caching", 101, "redis", "caching")))

	results, err := s.SearchIndexed(ctx, "redis", nil, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "p2", results[0].ID)
	assert.Negative(t, results[0].Rank)

	results, err = s.SearchIndexed(ctx, "", []string{"caching"}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "p2", results[0].ID)

	results, err = s.SearchIndexed(ctx, "", nil, 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearchIndexedMatchesHydratedContent(t *testing.T) {
	s := NewMirrorStore(newTestMirrorDB(t))
	ctx := context.Background()

	plan := indexedPlan("p1", "Connection pooling", 100, "postgres")
	plan.Description = "Sizing pools for bursty workloads"
	plan.Content = "Keep max_connections well below the kernel fd limit."
	require.NoError(t, s.UpsertIndexedPlan(ctx, plan))

	// Body keywords hit the index, not just title and tags
	results, err := s.SearchIndexed(ctx, "kernel", nil, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "p1", results[0].ID)
	assert.Equal(t, "Sizing pools for bursty workloads", results[0].Description)

	results, err = s.SearchIndexed(ctx, "bursty", nil, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "p1", results[0].ID)
}

func TestMirrorStatsAndTiers(t *testing.T) {
	s := NewMirrorStore(newTestMirrorDB(t))
	ctx := context.Background()

	require.NoError(t, s.UpsertIndexedPlan(ctx, indexedPlan("p1", "One", 100, "go")))
	require.NoError(t, s.UpsertIndexedPlan(ctx, indexedPlan("p2", "Two", 101, "go")))
	require.NoError(t, s.UpsertIndexedPlan(ctx, indexedPlan("p3", "Three", 102, "redis")))
	require.NoError(t, s.SetTier(ctx, "p3", domain.TierCold))
	require.NoError(t, s.ApplyPurchase(ctx, "p1", "GCONTRIBUTOR", 100))

	stats, err := s.GetKBStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalPlans)
	assert.Equal(t, int64(1), stats.TotalPurchases)
	assert.Equal(t, int64(1), stats.TotalContributors)
	require.NotEmpty(t, stats.TopTags)
	assert.Equal(t, "go", stats.TopTags[0].Tag)

	tiers, err := s.TierDistribution(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), tiers[domain.TierHot])
	assert.Equal(t, int64(1), tiers[domain.TierCold])
	assert.Equal(t, int64(0), tiers[domain.TierArchive])

	plans, err := s.ListByContributor(ctx, "GCONTRIBUTOR")
	require.NoError(t, err)
	assert.Len(t, plans, 3)
}

func TestCursorStore(t *testing.T) {
	s := NewCursorStore(newTestMirrorDB(t))
	ctx := context.Background()

	// No cursor yet
	cursor, err := s.GetLedgerCursor(ctx, "CCONTRACT")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), cursor)

	require.NoError(t, s.SetLedgerCursor(ctx, "CCONTRACT", 4242))
	cursor, err = s.GetLedgerCursor(ctx, "CCONTRACT")
	require.NoError(t, err)
	assert.Equal(t, uint64(4242), cursor)

	// Cursors are scoped per contract
	cursor, err = s.GetLedgerCursor(ctx, "COTHER")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), cursor)
}
