package stellar

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synapse-market/synapse-core/internal/domain"
)

func mapVal(entries ...ScMapEntry) ScVal {
	return ScVal{Map: &entries}
}

func entry(key string, val ScVal) ScMapEntry {
	return ScMapEntry{Key: SymbolVal(key), Val: val}
}

// tuple builds an event payload the way the contract publishes Rust tuples:
// a positional vec
func tuple(fields ...ScVal) ScVal {
	return ScVal{Vec: &fields}
}

// tierVal renders a tier enum variant as its wire form, a one-element vec
// holding the variant symbol
func tierVal(name string) ScVal {
	return tuple(SymbolVal(name))
}

func event(topic string, value ScVal) ContractEvent {
	return ContractEvent{
		Ledger: 1234,
		TxHash: "abcd",
		Topics: []ScVal{SymbolVal(topic)},
		Value:  value,
	}
}

func TestDecodePlanStoredEvent(t *testing.T) {
	value := tuple(
		BytesVal("00112233445566778899aabbccddeeff"),
		BytesVal("ff00ff00"),
		AddressVal("GCONTRIBUTOR"),
		StringVal("Caching guide"),
		VecVal([]string{"caching", "redis"}),
		StringVal("QmTest"),
		tierVal("Hot"),
	)

	decoded, err := DecodeEvent(event(TopicPlanStored, value))
	require.NoError(t, err)
	assert.Equal(t, EventTypePlanStored, decoded.Type)
	assert.Equal(t, uint64(1234), decoded.Ledger)
	require.NotNil(t, decoded.PlanStored)
	assert.Equal(t, "00112233445566778899aabbccddeeff", decoded.PlanStored.PlanID)
	assert.Equal(t, "ff00ff00", decoded.PlanStored.ContentHash)
	assert.Equal(t, "GCONTRIBUTOR", decoded.PlanStored.Contributor)
	assert.Equal(t, "Caching guide", decoded.PlanStored.Title)
	assert.Equal(t, []string{"caching", "redis"}, decoded.PlanStored.Tags)
	assert.Equal(t, "QmTest", decoded.PlanStored.IPFSCID)
	assert.Equal(t, domain.TierHot, decoded.PlanStored.Tier)

	t.Run("unknown tier variant falls open to hot", func(t *testing.T) {
		value := tuple(
			BytesVal("00112233445566778899aabbccddeeff"),
			BytesVal("ff00ff00"),
			AddressVal("GCONTRIBUTOR"),
			StringVal("Caching guide"),
			VecVal(nil),
			StringVal("QmTest"),
			tierVal("Glacier"),
		)
		decoded, err := DecodeEvent(event(TopicPlanStored, value))
		require.NoError(t, err)
		assert.Equal(t, domain.TierHot, decoded.PlanStored.Tier)
		assert.Empty(t, decoded.PlanStored.Tags)
	})

	t.Run("truncated tuple is malformed", func(t *testing.T) {
		value := tuple(BytesVal("00112233445566778899aabbccddeeff"), StringVal("No hash"))
		_, err := DecodeEvent(event(TopicPlanStored, value))
		assert.Error(t, err)
	})

	t.Run("map payload is malformed", func(t *testing.T) {
		value := mapVal(entry("id", BytesVal("00112233445566778899aabbccddeeff")))
		_, err := DecodeEvent(event(TopicPlanStored, value))
		assert.Error(t, err)
	})
}

func TestDecodePlanPurchasedEvent(t *testing.T) {
	value := tuple(
		BytesVal("00112233445566778899aabbccddeeff"),
		AddressVal("GBUYER"),
		I128Val(10_000_000),
		AddressVal("GCONTRIBUTOR"),
	)

	decoded, err := DecodeEvent(event(TopicPlanPurchased, value))
	require.NoError(t, err)
	assert.Equal(t, EventTypePlanPurchased, decoded.Type)
	require.NotNil(t, decoded.PlanPurchased)
	assert.Equal(t, "00112233445566778899aabbccddeeff", decoded.PlanPurchased.PlanID)
	assert.Equal(t, "GBUYER", decoded.PlanPurchased.Buyer)
	assert.Equal(t, "GCONTRIBUTOR", decoded.PlanPurchased.Contributor)
	assert.Equal(t, int64(10_000_000), decoded.PlanPurchased.AmountStroops)

	t.Run("missing contributor is malformed", func(t *testing.T) {
		value := tuple(
			BytesVal("00112233445566778899aabbccddeeff"),
			AddressVal("GBUYER"),
			I128Val(10_000_000),
		)
		_, err := DecodeEvent(event(TopicPlanPurchased, value))
		assert.Error(t, err)
	})
}

func TestDecodeTierChangedEvent(t *testing.T) {
	value := tuple(
		BytesVal("00112233445566778899aabbccddeeff"),
		tierVal("Hot"),
		tierVal("Cold"),
	)

	decoded, err := DecodeEvent(event(TopicTierChanged, value))
	require.NoError(t, err)
	assert.Equal(t, EventTypeTierChanged, decoded.Type)
	require.NotNil(t, decoded.TierChanged)
	assert.Equal(t, domain.TierHot, decoded.TierChanged.OldTier)
	assert.Equal(t, domain.TierCold, decoded.TierChanged.NewTier)

	t.Run("malformed tier name falls open to hot", func(t *testing.T) {
		value := tuple(
			BytesVal("00112233445566778899aabbccddeeff"),
			tierVal("Cold"),
			tierVal("Glacier"),
		)
		decoded, err := DecodeEvent(event(TopicTierChanged, value))
		require.NoError(t, err)
		assert.Equal(t, domain.TierHot, decoded.TierChanged.NewTier)
	})
}

// TestDecodeEventFromRPCJSON runs the decoder against a payload written the
// way a Soroban node renders a plan_st event with xdrFormat json, so the
// fixture is independent of this package's own constructors.
func TestDecodeEventFromRPCJSON(t *testing.T) {
	raw := `{
		"type": "contract",
		"ledger": 55123,
		"ledgerClosedAt": "2026-08-01T12:00:00Z",
		"contractId": "CCONTRACT",
		"id": "0000236723440374784-0000000001",
		"txHash": "deadbeef",
		"topicJson": [{"symbol": "plan_st"}],
		"valueJson": {"vec": [
			{"bytes": "00112233445566778899aabbccddeeff"},
			{"bytes": "aa11bb22cc33dd44aa11bb22cc33dd44aa11bb22cc33dd44aa11bb22cc33dd44"},
			{"address": "GCONTRIBUTOR"},
			{"string": "Rate limiter design"},
			{"vec": [{"string": "go"}, {"string": "rate-limiting"}]},
			{"string": "QmRateLimiter"},
			{"vec": [{"symbol": "Cold"}]}
		]}
	}`

	var raw0 ContractEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &raw0))

	decoded, err := DecodeEvent(raw0)
	require.NoError(t, err)
	assert.Equal(t, EventTypePlanStored, decoded.Type)
	assert.Equal(t, uint64(55123), decoded.Ledger)
	assert.Equal(t, "deadbeef", decoded.TxHash)
	require.NotNil(t, decoded.PlanStored)
	assert.Equal(t, "00112233445566778899aabbccddeeff", decoded.PlanStored.PlanID)
	assert.Equal(t, "aa11bb22cc33dd44aa11bb22cc33dd44aa11bb22cc33dd44aa11bb22cc33dd44", decoded.PlanStored.ContentHash)
	assert.Equal(t, "GCONTRIBUTOR", decoded.PlanStored.Contributor)
	assert.Equal(t, "Rate limiter design", decoded.PlanStored.Title)
	assert.Equal(t, []string{"go", "rate-limiting"}, decoded.PlanStored.Tags)
	assert.Equal(t, "QmRateLimiter", decoded.PlanStored.IPFSCID)
	assert.Equal(t, domain.TierCold, decoded.PlanStored.Tier)
}

func TestDecodeUnknownEvent(t *testing.T) {
	decoded, err := DecodeEvent(event("plan_xx", tuple()))
	require.NoError(t, err)
	assert.Equal(t, EventTypeUnknown, decoded.Type)

	decoded, err = DecodeEvent(ContractEvent{Ledger: 1})
	require.NoError(t, err)
	assert.Equal(t, EventTypeUnknown, decoded.Type)
}

func TestScValAccessors(t *testing.T) {
	t.Run("int64 conversions", func(t *testing.T) {
		u32 := uint32(7)
		got, err := (&ScVal{U32: &u32}).Int64()
		require.NoError(t, err)
		assert.Equal(t, int64(7), got)

		got, err = (&ScVal{I128: &I128Parts{Lo: 42}}).Int64()
		require.NoError(t, err)
		assert.Equal(t, int64(42), got)

		_, err = (&ScVal{I128: &I128Parts{Hi: 1}}).Int64()
		assert.Error(t, err)
	})

	t.Run("void detection", func(t *testing.T) {
		assert.True(t, (&ScVal{}).IsVoid())
		v := SymbolVal("x")
		assert.False(t, v.IsVoid())
	})

	t.Run("map lookup", func(t *testing.T) {
		m := mapVal(entry("k", StringVal("v")))
		got, ok := m.MapGet("k")
		require.True(t, ok)
		text, err := got.Text()
		require.NoError(t, err)
		assert.Equal(t, "v", text)

		_, ok = m.MapGet("missing")
		assert.False(t, ok)
	})

	t.Run("invalid bytes", func(t *testing.T) {
		_, err := (&ScVal{Bytes: strptr("zz")}).BytesHex()
		assert.Error(t, err)
	})
}

func strptr(s string) *string { return &s }
