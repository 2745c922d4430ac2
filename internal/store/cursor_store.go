package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"gorm.io/gorm"

	"github.com/synapse-market/synapse-core/internal/store/schema"
)

// CursorStore defines the interface for storing and retrieving ledger cursors
type CursorStore interface {
	// GetLedgerCursor retrieves the last processed ledger sequence for a contract
	GetLedgerCursor(ctx context.Context, contractID string) (uint64, error)
	// SetLedgerCursor stores the last processed ledger sequence for a contract
	SetLedgerCursor(ctx context.Context, contractID string, ledger uint64) error
}

type cursorStore struct {
	db *gorm.DB
}

// NewCursorStore creates a new cursor store
func NewCursorStore(db *gorm.DB) CursorStore {
	return &cursorStore{db: db}
}

// GetLedgerCursor retrieves the last processed ledger sequence for a contract
func (s *cursorStore) GetLedgerCursor(ctx context.Context, contractID string) (uint64, error) {
	key := fmt.Sprintf("ledger_cursor:%s", contractID)

	var kv schema.KeyValueStore
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&kv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil // Return 0 if no cursor exists
		}
		return 0, fmt.Errorf("failed to get ledger cursor: %w", err)
	}

	ledger, err := strconv.ParseUint(kv.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse ledger cursor: %w", err)
	}

	return ledger, nil
}

// SetLedgerCursor stores the last processed ledger sequence for a contract
func (s *cursorStore) SetLedgerCursor(ctx context.Context, contractID string, ledger uint64) error {
	key := fmt.Sprintf("ledger_cursor:%s", contractID)
	value := strconv.FormatUint(ledger, 10)

	kv := schema.KeyValueStore{
		Key:   key,
		Value: value,
	}

	err := s.db.WithContext(ctx).Save(&kv).Error
	if err != nil {
		return fmt.Errorf("failed to set ledger cursor: %w", err)
	}

	return nil
}
