package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synapse-market/synapse-core/internal/domain"
)

func newTestLocalStore(t *testing.T) LocalStore {
	t.Helper()
	db, err := OpenLocalDB(filepath.Join(t.TempDir(), "synapse.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = CloseDB(db) })
	return NewLocalStore(db)
}

func storeInput(title, content string, tags ...string) domain.StorePlanInput {
	return domain.StorePlanInput{
		Title:              title,
		Content:            content,
		Tags:               tags,
		ContributorAddress: "GCONTRIBUTOR",
		QualityScore:       domain.QUALITY_SCORE_UNSCORED,
	}
}

func TestInsertPlan(t *testing.T) {
	s := newTestLocalStore(t)
	ctx := context.Background()

	plan, err := s.InsertPlan(ctx, storeInput("Rate limiting with Redis", "Use a sliding window over sorted sets.", "redis", "backend"))
	require.NoError(t, err)
	assert.NotEmpty(t, plan.ID)
	assert.Equal(t, domain.HashContent("Use a sliding window over sorted sets."), plan.ContentHash)
	assert.Equal(t, "Use a sliding window over sorted sets.", plan.Description)
	assert.Equal(t, []string{"redis", "backend"}, []string(plan.Tags))

	t.Run("duplicate content rejected", func(t *testing.T) {
		_, err := s.InsertPlan(ctx, storeInput("Different title", "Use a sliding window over sorted sets."))
		assert.ErrorIs(t, err, domain.ErrDuplicateContent)
	})

	t.Run("round trip by id", func(t *testing.T) {
		got, err := s.GetPlanByID(ctx, plan.ID)
		require.NoError(t, err)
		assert.Equal(t, plan.ID, got.ID)
		assert.Equal(t, plan.Content, got.Content)
	})

	t.Run("metadata omits content", func(t *testing.T) {
		meta, err := s.GetPlanMeta(ctx, plan.ID)
		require.NoError(t, err)
		assert.Equal(t, plan.Title, meta.Title)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := s.GetPlanByID(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrPlanNotFound)
	})
}

func TestSearchPlans(t *testing.T) {
	s := newTestLocalStore(t)
	ctx := context.Background()

	seed := []domain.StorePlanInput{
		storeInput("Postgres connection pooling", "Tune pgbouncer pool sizes for bursty workloads.", "postgres", "infra"),
		storeInput("Redis caching patterns", "Cache aside with TTL jitter avoids stampedes.", "redis", "caching"),
		storeInput("Go worker pools", "Bounded worker pools with buffered channels.", "go", "concurrency"),
	}
	for _, input := range seed {
		_, err := s.InsertPlan(ctx, input)
		require.NoError(t, err)
	}

	t.Run("full text match ranked", func(t *testing.T) {
		results, err := s.SearchPlans(ctx, "redis", nil, 10)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "Redis caching patterns", results[0].Title)
		assert.Negative(t, results[0].Rank, "bm25 rank of a match is negative")
	})

	t.Run("tag filter is conjunctive", func(t *testing.T) {
		results, err := s.SearchPlans(ctx, "", []string{"redis", "caching"}, 10)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "Redis caching patterns", results[0].Title)

		results, err = s.SearchPlans(ctx, "", []string{"redis", "infra"}, 10)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("empty query lists by popularity", func(t *testing.T) {
		popular, err := s.SearchPlans(ctx, "", nil, 10)
		require.NoError(t, err)
		require.Len(t, popular, 3)

		// Purchase one plan twice and expect it to lead the listing
		_, err = s.RecordPurchase(ctx, popular[2].ID, "GBUYER", 10_000_000, nil)
		require.NoError(t, err)
		_, err = s.RecordPurchase(ctx, popular[2].ID, "GBUYER", 10_000_000, nil)
		require.NoError(t, err)

		reordered, err := s.SearchPlans(ctx, "", nil, 10)
		require.NoError(t, err)
		assert.Equal(t, popular[2].ID, reordered[0].ID)
		assert.Equal(t, int64(2), reordered[0].PurchaseCount)
	})

	t.Run("quotes in query are neutralized", func(t *testing.T) {
		_, err := s.SearchPlans(ctx, `"pool AND OR`, nil, 10)
		assert.NoError(t, err)
	})

	t.Run("limit respected", func(t *testing.T) {
		results, err := s.SearchPlans(ctx, "", nil, 2)
		require.NoError(t, err)
		assert.Len(t, results, 2)
	})
}

func TestRecordPurchase(t *testing.T) {
	s := newTestLocalStore(t)
	ctx := context.Background()

	plan, err := s.InsertPlan(ctx, storeInput("Plan", "Purchasable content."))
	require.NoError(t, err)

	purchase, err := s.RecordPurchase(ctx, plan.ID, "GBUYER", 10_000_000, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(7_000_000), purchase.ContributorShareStroops)
	assert.Equal(t, int64(3_000_000), purchase.OperatorShareStroops)

	got, err := s.GetPlanByID(ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.PurchaseCount)

	purchases, err := s.ListPurchases(ctx, plan.ID)
	require.NoError(t, err)
	require.Len(t, purchases, 1)
	assert.Equal(t, plan.ID, purchases[0].PlanID)
	assert.Equal(t, "GBUYER", purchases[0].BuyerAddress)
	assert.Equal(t, int64(10_000_000), purchases[0].AmountStroops)

	// Plans with no history answer an empty list, not an error
	purchases, err = s.ListPurchases(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, purchases)

	t.Run("unknown plan", func(t *testing.T) {
		_, err := s.RecordPurchase(ctx, "missing", "GBUYER", 100, nil)
		assert.ErrorIs(t, err, domain.ErrPlanNotFound)
	})
}

func TestContentHashExists(t *testing.T) {
	s := newTestLocalStore(t)
	ctx := context.Background()

	_, err := s.InsertPlan(ctx, storeInput("Plan", "Known content."))
	require.NoError(t, err)

	exists, err := s.ContentHashExists(ctx, domain.HashContent("Known content."))
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.ContentHashExists(ctx, domain.HashContent("Unknown content."))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestContributorAndKBStats(t *testing.T) {
	s := newTestLocalStore(t)
	ctx := context.Background()

	first, err := s.InsertPlan(ctx, storeInput("First", "Content one.", "go"))
	require.NoError(t, err)
	_, err = s.InsertPlan(ctx, storeInput("Second", "Content two.", "go", "redis"))
	require.NoError(t, err)

	other := storeInput("Third", "Content three.", "redis")
	other.ContributorAddress = "GOTHER"
	_, err = s.InsertPlan(ctx, other)
	require.NoError(t, err)

	_, err = s.RecordPurchase(ctx, first.ID, "GBUYER", 10_000_000, nil)
	require.NoError(t, err)

	stats, err := s.GetContributorStats(ctx, "GCONTRIBUTOR")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.PlansCount)
	assert.Equal(t, int64(1), stats.TotalPurchases)
	assert.Equal(t, int64(7_000_000), stats.TotalEarnedStroops)

	kb, err := s.GetKBStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), kb.TotalPlans)
	assert.Equal(t, int64(1), kb.TotalPurchases)
	assert.Equal(t, int64(2), kb.TotalContributors)
	require.NotEmpty(t, kb.TopTags)
	assert.Equal(t, int64(2), kb.TopTags[0].Count)

	plans, err := s.ListPlansByContributor(ctx, "GCONTRIBUTOR")
	require.NoError(t, err)
	assert.Len(t, plans, 2)
}

func TestFTSQuery(t *testing.T) {
	assert.Equal(t, `"redis"`, FTSQuery("redis"))
	assert.Equal(t, `"worker" "pools"`, FTSQuery("worker pools"))
	assert.Equal(t, `"""drop"""`, FTSQuery(`"drop"`))
	assert.Equal(t, ``, FTSQuery("   "))
}
