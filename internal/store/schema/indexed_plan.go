package schema

import (
	"time"

	"gorm.io/datatypes"
)

// IndexedPlan is the local read model of an on-chain plan, rebuilt from
// contract events. The indexer hydrates content from IPFS at apply time so
// reads and full-text search run against the mirror, not the gateway.
type IndexedPlan struct {
	ID            string                      `gorm:"primaryKey;type:text"`
	ContentHash   string                      `gorm:"type:text;not null;index"`
	Contributor   string                      `gorm:"type:text;not null;index"`
	Title         string                      `gorm:"type:text"`
	Description   string                      `gorm:"type:text"`
	Content       string                      `gorm:"type:text"` // empty when the IPFS fetch failed
	Tags          datatypes.JSONSlice[string] `gorm:"type:text"`
	IPFSCID       string                      `gorm:"type:text"`
	Tier          string                      `gorm:"type:text;not null;default:hot"`
	PurchaseCount int64                       `gorm:"not null;default:0"`
	Ledger        uint64                      `gorm:"not null;default:0"` // ledger sequence of the storage event
	CreatedAt     time.Time                   `gorm:"autoCreateTime"`
	UpdatedAt     time.Time                   `gorm:"autoUpdateTime"`
}

func (IndexedPlan) TableName() string {
	return "indexed_plans"
}

// ContributorAggregate accumulates per-contributor purchase totals from
// purchase events so contributor stats are answerable without chain reads
type ContributorAggregate struct {
	Address            string    `gorm:"primaryKey;type:text"`
	TotalEarnedStroops int64     `gorm:"not null;default:0"`
	TotalPurchases     int64     `gorm:"not null;default:0"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime"`
}

func (ContributorAggregate) TableName() string {
	return "contributor_aggregates"
}
