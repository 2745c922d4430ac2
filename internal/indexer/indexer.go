// Package indexer tails the knowledge base contract's event stream and
// maintains the local mirror the search and stats queries run against.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/synapse-market/synapse-core/internal/adapter"
	"github.com/synapse-market/synapse-core/internal/domain"
	"github.com/synapse-market/synapse-core/internal/ipfs"
	"github.com/synapse-market/synapse-core/internal/logger"
	"github.com/synapse-market/synapse-core/internal/stellar"
	"github.com/synapse-market/synapse-core/internal/store"
	"github.com/synapse-market/synapse-core/internal/store/schema"
)

// Config holds indexer tuning parameters
type Config struct {
	ContractID     string
	PollInterval   time.Duration
	BackfillWindow uint64 // how far behind the chain tip a fresh index starts
	PageLimit      int
}

// Status is a snapshot of indexer progress
type Status struct {
	ContractID   string `json:"contract_id"`
	Cursor       uint64 `json:"cursor"`
	LatestLedger uint64 `json:"latest_ledger"`
	Lag          uint64 `json:"lag"`
	Running      bool   `json:"running"`
}

// Indexer polls contract events and applies them to the mirror
type Indexer struct {
	config Config
	rpc    stellar.RPCClient
	mirror store.MirrorStore
	cursor store.CursorStore
	ipfs   ipfs.Client // optional; enables content hash verification
	clock  adapter.Clock

	running   atomic.Bool
	stopChan  chan struct{}
	stoppedCh chan struct{}
}

// New creates an indexer. The ipfs client may be nil; hydration is then
// skipped.
func New(config Config, rpc stellar.RPCClient, mirror store.MirrorStore, cursor store.CursorStore, ipfsClient ipfs.Client, clock adapter.Clock) *Indexer {
	return &Indexer{
		config:    config,
		rpc:       rpc,
		mirror:    mirror,
		cursor:    cursor,
		ipfs:      ipfsClient,
		clock:     clock,
		stopChan:  make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Start begins the poll loop. It polls once immediately so a fresh process
// serves data without waiting a full interval, then ticks until stopped.
func (i *Indexer) Start(ctx context.Context) error {
	if !i.running.CompareAndSwap(false, true) {
		return fmt.Errorf("indexer already running")
	}
	defer func() {
		i.running.Store(false)
		close(i.stoppedCh)
	}()

	logger.InfoCtx(ctx, "Starting event indexer",
		zap.String("contract_id", i.config.ContractID),
		zap.Duration("poll_interval", i.config.PollInterval),
		zap.Uint64("backfill_window", i.config.BackfillWindow),
	)

	if err := i.poll(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.ErrorCtx(ctx, err)
	}

	ticker := time.NewTicker(i.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.InfoCtx(ctx, "Event indexer stopping due to context cancellation", zap.Error(ctx.Err()))
			return nil
		case <-i.stopChan:
			logger.InfoCtx(ctx, "Event indexer stop requested")
			return nil
		case <-ticker.C:
			if err := i.poll(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.ErrorCtx(ctx, err)
			}
		}
	}
}

// Stop gracefully stops the indexer, waiting for an in-flight poll to finish
func (i *Indexer) Stop(ctx context.Context) error {
	if !i.running.Load() {
		return nil
	}
	close(i.stopChan)

	select {
	case <-i.stoppedCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for indexer to stop: %w", ctx.Err())
	}
}

// Status reports current indexing progress
func (i *Indexer) Status(ctx context.Context) (*Status, error) {
	cursor, err := i.cursor.GetLedgerCursor(ctx, i.config.ContractID)
	if err != nil {
		return nil, err
	}
	latest, err := i.rpc.GetLatestLedger(ctx)
	if err != nil {
		return nil, err
	}

	status := &Status{
		ContractID:   i.config.ContractID,
		Cursor:       cursor,
		LatestLedger: latest,
		Running:      i.running.Load(),
	}
	if latest > cursor {
		status.Lag = latest - cursor
	}
	return status, nil
}

// poll fetches and applies all events past the cursor, then advances it.
// The cursor only moves after the whole batch is applied, so a crash
// mid-batch replays events; every apply is idempotent for that reason.
func (i *Indexer) poll(ctx context.Context) error {
	latest, err := i.rpc.GetLatestLedger(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch latest ledger: %w", err)
	}

	cursor, err := i.cursor.GetLedgerCursor(ctx, i.config.ContractID)
	if err != nil {
		return err
	}

	start := cursor + 1
	if cursor == 0 {
		// Fresh index: bound the backfill instead of replaying all history
		start = 1
		if latest > i.config.BackfillWindow {
			start = latest - i.config.BackfillWindow
		}
	}
	if start > latest {
		return nil
	}

	var (
		applied    int
		maxLedger  uint64
		pageCursor string
	)

	for {
		req := stellar.GetEventsRequest{
			Filters: []stellar.EventFilter{{
				Type:        "contract",
				ContractIDs: []string{i.config.ContractID},
			}},
			Pagination: &stellar.Pagination{Limit: i.config.PageLimit},
		}
		if pageCursor == "" {
			req.StartLedger = start
		} else {
			req.Pagination.Cursor = pageCursor
		}

		resp, err := i.rpc.GetEvents(ctx, req)
		if err != nil {
			return fmt.Errorf("failed to fetch events: %w", err)
		}

		for _, raw := range resp.Events {
			if err := i.apply(ctx, raw); err != nil {
				return err
			}
			applied++
			if raw.Ledger > maxLedger {
				maxLedger = raw.Ledger
			}
		}

		if len(resp.Events) < i.config.PageLimit || resp.Cursor == "" {
			break
		}
		pageCursor = resp.Cursor
	}

	// An empty poll still advances the cursor to the chain tip so the next
	// poll never rescans ledgers known to be silent
	next := latest
	if maxLedger > next {
		next = maxLedger
	}
	if err := i.cursor.SetLedgerCursor(ctx, i.config.ContractID, next); err != nil {
		return err
	}

	if applied > 0 {
		logger.InfoCtx(ctx, "Applied contract events",
			zap.Int("count", applied),
			zap.Uint64("cursor", next))
	}

	return nil
}

// apply routes one raw event to its mirror mutation. Malformed events are
// logged and skipped; they must never wedge the stream.
func (i *Indexer) apply(ctx context.Context, raw stellar.ContractEvent) error {
	decoded, err := stellar.DecodeEvent(raw)
	if err != nil {
		logger.WarnCtx(ctx, "Skipping malformed contract event",
			zap.String("event_id", raw.ID), zap.Error(err))
		return nil
	}

	switch decoded.Type {
	case stellar.EventTypePlanStored:
		return i.applyPlanStored(ctx, decoded)
	case stellar.EventTypePlanPurchased:
		e := decoded.PlanPurchased
		return i.mirror.ApplyPurchase(ctx, e.PlanID, e.Contributor, e.AmountStroops)
	case stellar.EventTypeTierChanged:
		return i.mirror.SetTier(ctx, decoded.TierChanged.PlanID, decoded.TierChanged.NewTier)
	default:
		logger.DebugCtx(ctx, "Ignoring unknown contract event", zap.String("event_id", raw.ID))
		return nil
	}
}

func (i *Indexer) applyPlanStored(ctx context.Context, decoded *stellar.DecodedEvent) error {
	e := decoded.PlanStored

	// Hydrate the pinned content before the row lands so full-text search
	// and reads run against the mirror. A failed fetch stores the row with
	// empty content rather than stalling the stream.
	var content string
	if i.ipfs != nil && e.IPFSCID != "" {
		fetched, err := i.ipfs.Get(ctx, e.IPFSCID)
		switch {
		case err != nil:
			logger.WarnCtx(ctx, "Could not hydrate plan content from IPFS",
				zap.String("plan_id", e.PlanID), zap.String("cid", e.IPFSCID), zap.Error(err))
		case domain.HashContent(fetched) != e.ContentHash:
			logger.WarnCtx(ctx, "Pinned content does not match on-chain hash",
				zap.String("plan_id", e.PlanID), zap.String("cid", e.IPFSCID))
			content = fetched
		default:
			content = fetched
		}
	}

	return i.mirror.UpsertIndexedPlan(ctx, &schema.IndexedPlan{
		ID:          e.PlanID,
		ContentHash: e.ContentHash,
		Contributor: e.Contributor,
		Title:       e.Title,
		Description: e.Title, // the event carries no description
		Content:     content,
		Tags:        e.Tags,
		IPFSCID:     e.IPFSCID,
		Tier:        string(e.Tier),
		Ledger:      decoded.Ledger,
	})
}
