package storage

import (
	"context"
	"sync/atomic"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/synapse-market/synapse-core/internal/domain"
	"github.com/synapse-market/synapse-core/internal/ipfs"
	"github.com/synapse-market/synapse-core/internal/logger"
	"github.com/synapse-market/synapse-core/internal/stellar"
	"github.com/synapse-market/synapse-core/internal/store"
)

const (
	migrationBatchSize   = 100
	migrationConcurrency = 4
)

// MigrationReport summarizes one migration run
type MigrationReport struct {
	Migrated int64 `json:"migrated"`
	Skipped  int64 `json:"skipped"`
	Failed   int64 `json:"failed"`
}

// Migrator promotes local plans onto the ledger. Runs are idempotent: plans
// whose content hash is already registered on chain are skipped, so a
// partially failed run can simply be re-run.
type Migrator struct {
	source   store.LocalStore
	contract stellar.ContractClient
	ipfs     ipfs.Client
}

// NewMigrator creates a migrator reading from the given local store
func NewMigrator(source store.LocalStore, contract stellar.ContractClient, ipfsClient ipfs.Client) *Migrator {
	return &Migrator{source: source, contract: contract, ipfs: ipfsClient}
}

// Run walks every local plan and stores the ones the ledger has not seen
func (m *Migrator) Run(ctx context.Context) (*MigrationReport, error) {
	var migrated, skipped, failed atomic.Int64

	offset := 0
	for {
		plans, err := m.source.ListPlans(ctx, migrationBatchSize, offset)
		if err != nil {
			return nil, err
		}
		if len(plans) == 0 {
			break
		}

		pool := pond.NewPool(
			migrationConcurrency,
			pond.WithQueueSize(migrationBatchSize),
			pond.WithContext(ctx),
		)
		for _, plan := range plans {
			pool.Submit(func() {
				switch m.migratePlan(ctx, &plan) {
				case migrateOutcomeMigrated:
					migrated.Add(1)
				case migrateOutcomeSkipped:
					skipped.Add(1)
				default:
					failed.Add(1)
				}
			})
		}
		pool.StopAndWait()

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if len(plans) < migrationBatchSize {
			break
		}
		offset += migrationBatchSize
	}

	report := &MigrationReport{
		Migrated: migrated.Load(),
		Skipped:  skipped.Load(),
		Failed:   failed.Load(),
	}
	logger.InfoCtx(ctx, "migration run completed",
		zap.Int64("migrated", report.Migrated),
		zap.Int64("skipped", report.Skipped),
		zap.Int64("failed", report.Failed))
	return report, nil
}

type migrateOutcome int

const (
	migrateOutcomeFailed migrateOutcome = iota
	migrateOutcomeMigrated
	migrateOutcomeSkipped
)

func (m *Migrator) migratePlan(ctx context.Context, plan *domain.Plan) migrateOutcome {
	exists, err := m.contract.ContentExists(ctx, plan.ContentHash)
	if err != nil {
		logger.WarnCtx(ctx, "failed to check plan on chain",
			zap.String("planID", plan.ID),
			zap.Error(err))
		return migrateOutcomeFailed
	}
	if exists {
		return migrateOutcomeSkipped
	}

	cid, err := m.ipfs.Pin(ctx, plan.Content)
	if err != nil {
		logger.WarnCtx(ctx, "failed to pin plan content",
			zap.String("planID", plan.ID),
			zap.Error(err))
		return migrateOutcomeFailed
	}

	_, err = m.contract.StorePlan(ctx, stellar.StorePlanArgs{
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
		_ = m.ipfs.Unpin(ctx, cid)
		logger.WarnCtx(ctx, "failed to store plan on chain",
			zap.String("planID", plan.ID),
			zap.Error(err))
		return migrateOutcomeFailed
	}

	return migrateOutcomeMigrated
}
