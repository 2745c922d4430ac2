package stellar

import (
	"fmt"

	"github.com/synapse-market/synapse-core/internal/domain"
)

// Event topic symbols emitted by the knowledge base contract
const (
	TopicPlanStored    = "plan_st"
	TopicPlanPurchased = "plan_pu"
	TopicTierChanged   = "tier_ch"
)

// EventType identifies a decoded contract event
type EventType string

const (
	EventTypePlanStored    EventType = "plan_stored"
	EventTypePlanPurchased EventType = "plan_purchased"
	EventTypeTierChanged   EventType = "tier_changed"
	EventTypeUnknown       EventType = "unknown"
)

// PlanStoredEvent announces a newly stored plan
type PlanStoredEvent struct {
	PlanID      string
	ContentHash string
	Contributor string
	Title       string
	Tags        []string
	IPFSCID     string
	Tier        domain.StorageTier
}

// PlanPurchasedEvent announces a completed purchase
type PlanPurchasedEvent struct {
	PlanID        string
	Buyer         string
	Contributor   string
	AmountStroops int64
}

// TierChangedEvent announces a storage tier transition
type TierChangedEvent struct {
	PlanID  string
	OldTier domain.StorageTier
	NewTier domain.StorageTier
}

// DecodedEvent is the tagged union of contract events the indexer consumes.
// Exactly one of the payload pointers matching Type is set.
type DecodedEvent struct {
	Type   EventType
	Ledger uint64
	TxHash string

	PlanStored    *PlanStoredEvent
	PlanPurchased *PlanPurchasedEvent
	TierChanged   *TierChangedEvent
}

// DecodeEvent maps a raw contract event to its typed form. Events with an
// unrecognized topic decode to EventTypeUnknown rather than failing, so new
// contract versions never wedge the indexer.
func DecodeEvent(event ContractEvent) (*DecodedEvent, error) {
	decoded := &DecodedEvent{
		Type:   EventTypeUnknown,
		Ledger: event.Ledger,
		TxHash: event.TxHash,
	}

	if len(event.Topics) == 0 {
		return decoded, nil
	}
	topic, err := event.Topics[0].Text()
	if err != nil {
		return decoded, nil
	}

	switch topic {
	case TopicPlanStored:
		stored, err := decodePlanStored(&event.Value)
		if err != nil {
			return nil, fmt.Errorf("malformed %s event %s: %w", topic, event.ID, err)
		}
		decoded.Type = EventTypePlanStored
		decoded.PlanStored = stored

	case TopicPlanPurchased:
		purchased, err := decodePlanPurchased(&event.Value)
		if err != nil {
			return nil, fmt.Errorf("malformed %s event %s: %w", topic, event.ID, err)
		}
		decoded.Type = EventTypePlanPurchased
		decoded.PlanPurchased = purchased

	case TopicTierChanged:
		changed, err := decodeTierChanged(&event.Value)
		if err != nil {
			return nil, fmt.Errorf("malformed %s event %s: %w", topic, event.ID, err)
		}
		decoded.Type = EventTypeTierChanged
		decoded.TierChanged = changed
	}

	return decoded, nil
}

// tupleFields unwraps an event payload. The contract publishes Rust tuples,
// which render as positional vecs; the decode is order-sensitive.
func tupleFields(value *ScVal, want int) ([]ScVal, error) {
	if value == nil || value.Vec == nil {
		return nil, fmt.Errorf("payload is not a tuple")
	}
	if len(*value.Vec) < want {
		return nil, fmt.Errorf("payload has %d fields, want %d", len(*value.Vec), want)
	}
	return *value.Vec, nil
}

// tierName extracts a tier name. Unit enum variants render as a one-element
// vec holding the variant symbol; a bare symbol is tolerated as well.
func tierName(v *ScVal) string {
	if v == nil {
		return ""
	}
	if v.Vec != nil && len(*v.Vec) > 0 {
		name, _ := (*v.Vec)[0].Text()
		return name
	}
	name, _ := v.Text()
	return name
}

// decodePlanStored decodes the plan_st tuple:
// (plan_id, content_hash, contributor, title, tags, ipfs_cid, tier)
func decodePlanStored(value *ScVal) (*PlanStoredEvent, error) {
	fields, err := tupleFields(value, 7)
	if err != nil {
		return nil, err
	}

	id, err := fields[0].BytesHex()
	if err != nil {
		return nil, fmt.Errorf("field plan_id: %w", err)
	}
	contentHash, err := fields[1].BytesHex()
	if err != nil {
		return nil, fmt.Errorf("field content_hash: %w", err)
	}
	contributor, err := fields[2].AddressString()
	if err != nil {
		return nil, fmt.Errorf("field contributor: %w", err)
	}
	title, err := fields[3].Text()
	if err != nil {
		return nil, fmt.Errorf("field title: %w", err)
	}
	tags, err := fields[4].StringSlice()
	if err != nil {
		return nil, fmt.Errorf("field tags: %w", err)
	}
	ipfsCID, err := fields[5].Text()
	if err != nil {
		return nil, fmt.Errorf("field ipfs_cid: %w", err)
	}

	// Tier is advisory; a malformed variant falls open to hot
	return &PlanStoredEvent{
		PlanID:      id,
		ContentHash: contentHash,
		Contributor: contributor,
		Title:       title,
		Tags:        tags,
		IPFSCID:     ipfsCID,
		Tier:        domain.ParseTier(tierName(&fields[6])),
	}, nil
}

// decodePlanPurchased decodes the plan_pu tuple:
// (plan_id, buyer, amount, contributor)
func decodePlanPurchased(value *ScVal) (*PlanPurchasedEvent, error) {
	fields, err := tupleFields(value, 4)
	if err != nil {
		return nil, err
	}

	id, err := fields[0].BytesHex()
	if err != nil {
		return nil, fmt.Errorf("field plan_id: %w", err)
	}
	buyer, err := fields[1].AddressString()
	if err != nil {
		return nil, fmt.Errorf("field buyer: %w", err)
	}
	amount, err := fields[2].Int64()
	if err != nil {
		return nil, fmt.Errorf("field amount: %w", err)
	}
	contributor, err := fields[3].AddressString()
	if err != nil {
		return nil, fmt.Errorf("field contributor: %w", err)
	}

	return &PlanPurchasedEvent{
		PlanID:        id,
		Buyer:         buyer,
		Contributor:   contributor,
		AmountStroops: amount,
	}, nil
}

// decodeTierChanged decodes the tier_ch tuple: (plan_id, old_tier, new_tier)
func decodeTierChanged(value *ScVal) (*TierChangedEvent, error) {
	fields, err := tupleFields(value, 3)
	if err != nil {
		return nil, err
	}

	id, err := fields[0].BytesHex()
	if err != nil {
		return nil, fmt.Errorf("field plan_id: %w", err)
	}

	// Tier names fall open to hot when malformed so a bad event cannot
	// strand a plan in a cold tier
	return &TierChangedEvent{
		PlanID:  id,
		OldTier: domain.ParseTier(tierName(&fields[1])),
		NewTier: domain.ParseTier(tierName(&fields[2])),
	}, nil
}
