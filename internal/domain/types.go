package domain

import (
	"strings"
	"time"
)

// StorageMode selects which storage provider backs the knowledge base
type StorageMode string

const (
	// StorageModeLocal stores plans in the embedded relational store only
	StorageModeLocal StorageMode = "local"
	// StorageModeLedger stores plans on the distributed ledger with IPFS content
	StorageModeLedger StorageMode = "ledger"
	// StorageModeDual writes locally and mirrors to the ledger
	StorageModeDual StorageMode = "dual"
)

// IsValidStorageMode checks if a storage mode is valid
func IsValidStorageMode(mode StorageMode) bool {
	return mode == StorageModeLocal || mode == StorageModeLedger || mode == StorageModeDual
}

// StorageTier represents the on-chain retention classification of a plan.
// Purchases pull a plan back to hot; the contract demotes idle plans over time.
type StorageTier string

const (
	TierHot     StorageTier = "hot"
	TierCold    StorageTier = "cold"
	TierArchive StorageTier = "archive"
)

// ParseTier maps a tier name from an event payload to a StorageTier.
// Unrecognized names default to hot so a malformed event can never
// demote a plan or crash the indexer.
func ParseTier(name string) StorageTier {
	switch StorageTier(strings.ToLower(name)) {
	case TierCold:
		return TierCold
	case TierArchive:
		return TierArchive
	default:
		return TierHot
	}
}

// Plan represents a unit of knowledge content with its metadata
type Plan struct {
	ID                 string      `json:"id"`
	Title              string      `json:"title"`
	Description        string      `json:"description"`
	Content            string      `json:"content"`
	ContentHash        string      `json:"content_hash"`
	Tags               []string    `json:"tags"`
	Domain             string      `json:"domain,omitempty"`
	Language           string      `json:"language,omitempty"`
	Framework          string      `json:"framework,omitempty"`
	IPFSCID            string      `json:"ipfs_cid,omitempty"`
	ContributorAddress string      `json:"contributor_address"`
	QualityScore       int         `json:"quality_score"`
	PurchaseCount      int64       `json:"purchase_count"`
	Tier               StorageTier `json:"tier,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
}

// PlanMeta is a Plan without its content, returned by metadata queries
type PlanMeta struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Tags          []string  `json:"tags"`
	Domain        string    `json:"domain,omitempty"`
	Language      string    `json:"language,omitempty"`
	Framework     string    `json:"framework,omitempty"`
	QualityScore  int       `json:"quality_score"`
	PurchaseCount int64     `json:"purchase_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// PlanSearchResult is a ranked search hit. Rank follows the BM25 convention:
// lower (more negative) means more relevant. Zero for unranked listings.
type PlanSearchResult struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Tags          []string `json:"tags"`
	Domain        string   `json:"domain,omitempty"`
	QualityScore  int      `json:"quality_score"`
	PurchaseCount int64    `json:"purchase_count"`
	Rank          float64  `json:"rank"`
}

// Purchase is an immutable record of one paid retrieval
type Purchase struct {
	PlanID                  string    `json:"plan_id"`
	BuyerAddress            string    `json:"buyer_address"`
	AmountStroops           int64     `json:"amount_stroops"`
	ContributorShareStroops int64     `json:"contributor_share_stroops"`
	OperatorShareStroops    int64     `json:"operator_share_stroops"`
	TransactionHash         *string   `json:"transaction_hash"`
	CreatedAt               time.Time `json:"created_at"`
}

// ContributorStats aggregates a contributor's activity
type ContributorStats struct {
	ContributorAddress string `json:"contributor_address"`
	PlansCount         int64  `json:"plans_count"`
	TotalEarnedStroops int64  `json:"total_earned_stroops"`
	TotalPurchases     int64  `json:"total_purchases"`
}

// TagCount is a tag with its usage count
type TagCount struct {
	Tag   string `json:"tag"`
	Count int64  `json:"count"`
}

// KBStats aggregates platform-wide knowledge base statistics
type KBStats struct {
	TotalPlans        int64      `json:"total_plans"`
	TotalPurchases    int64      `json:"total_purchases"`
	TotalContributors int64      `json:"total_contributors"`
	TopTags           []TagCount `json:"top_tags"`
}

// StorePlanInput is a validated submission ready to be stored
type StorePlanInput struct {
	Title              string
	Description        string
	Content            string
	Tags               []string
	Domain             string
	Language           string
	Framework          string
	ContributorAddress string
	QualityScore       int
}

// IntegrityReport is the structured result of an on-chain integrity check.
// A mismatch is reported, not returned as an error; callers decide remediation.
type IntegrityReport struct {
	Verified    bool   `json:"verified"`
	OnChainHash string `json:"on_chain_hash"`
	LocalHash   string `json:"local_hash"`
}

// ChainReceipt identifies a completed on-chain publication
type ChainReceipt struct {
	TxHash     string `json:"tx_hash"`
	ContractID string `json:"contract_id"`
}

// ComputeSplit splits a purchase amount into contributor and operator shares.
// The contributor share is floored so the operator share absorbs rounding loss;
// the two always sum to the full amount.
func ComputeSplit(amountStroops int64) (contributor int64, operator int64) {
	contributor = amountStroops * CONTRIBUTOR_SHARE_PERCENT / 100
	operator = amountStroops - contributor
	return contributor, operator
}

// DeriveDescription derives a plan description from the first ~200 characters
// of its content when the submitter did not supply one, collapsing whitespace.
func DeriveDescription(description, content string) string {
	if description != "" {
		return description
	}
	excerpt := content
	if len(excerpt) > 200 {
		excerpt = excerpt[:200]
	}
	return strings.TrimSpace(strings.Join(strings.Fields(excerpt), " "))
}
