// Package stellar talks to a Soroban RPC node: it submits contract
// invocations, simulates read calls and streams contract events.
package stellar

import (
	"encoding/hex"
	"fmt"
	"math"
)

// ScVal is the JSON rendering of a Soroban contract value as returned by RPC
// nodes with xdrFormat "json". Exactly one field is set; a value with no
// field set is void.
type ScVal struct {
	Bool    *bool         `json:"bool,omitempty"`
	U32     *uint32       `json:"u32,omitempty"`
	U64     *uint64       `json:"u64,string,omitempty"`
	I128    *I128Parts    `json:"i128,omitempty"`
	Symbol  *string       `json:"symbol,omitempty"`
	String  *string       `json:"string,omitempty"`
	Bytes   *string       `json:"bytes,omitempty"` // hex encoded
	Address *string       `json:"address,omitempty"`
	Vec     *[]ScVal      `json:"vec,omitempty"`
	Map     *[]ScMapEntry `json:"map,omitempty"`
}

// ScMapEntry is one key-value pair of an ScVal map
type ScMapEntry struct {
	Key ScVal `json:"key"`
	Val ScVal `json:"val"`
}

// I128Parts is the hi/lo rendering of a 128-bit integer
type I128Parts struct {
	Hi int64  `json:"hi,string"`
	Lo uint64 `json:"lo,string"`
}

// IsVoid reports whether no field of the value is set
func (v *ScVal) IsVoid() bool {
	return v == nil || (v.Bool == nil && v.U32 == nil && v.U64 == nil && v.I128 == nil &&
		v.Symbol == nil && v.String == nil && v.Bytes == nil && v.Address == nil &&
		v.Vec == nil && v.Map == nil)
}

// Text returns the string content of a symbol or string value
func (v *ScVal) Text() (string, error) {
	switch {
	case v == nil:
		return "", fmt.Errorf("nil value is not text")
	case v.Symbol != nil:
		return *v.Symbol, nil
	case v.String != nil:
		return *v.String, nil
	default:
		return "", fmt.Errorf("value is not a symbol or string")
	}
}

// BytesHex returns the hex encoding of a bytes value
func (v *ScVal) BytesHex() (string, error) {
	if v == nil || v.Bytes == nil {
		return "", fmt.Errorf("value is not bytes")
	}
	if _, err := hex.DecodeString(*v.Bytes); err != nil {
		return "", fmt.Errorf("invalid bytes encoding: %w", err)
	}
	return *v.Bytes, nil
}

// AddressString returns the strkey of an address value
func (v *ScVal) AddressString() (string, error) {
	if v == nil || v.Address == nil {
		return "", fmt.Errorf("value is not an address")
	}
	return *v.Address, nil
}

// Int64 converts a numeric value (u32, u64 or i128) to int64
func (v *ScVal) Int64() (int64, error) {
	switch {
	case v == nil:
		return 0, fmt.Errorf("nil value is not numeric")
	case v.U32 != nil:
		return int64(*v.U32), nil
	case v.U64 != nil:
		if *v.U64 > math.MaxInt64 {
			return 0, fmt.Errorf("u64 value overflows int64")
		}
		return int64(*v.U64), nil
	case v.I128 != nil:
		// Amounts in this contract fit comfortably into 64 bits
		if v.I128.Hi != 0 || v.I128.Lo > math.MaxInt64 {
			return 0, fmt.Errorf("i128 value overflows int64")
		}
		return int64(v.I128.Lo), nil
	default:
		return 0, fmt.Errorf("value is not numeric")
	}
}

// StringSlice converts a vec of symbols or strings to a string slice
func (v *ScVal) StringSlice() ([]string, error) {
	if v == nil || v.Vec == nil {
		return nil, fmt.Errorf("value is not a vec")
	}
	out := make([]string, 0, len(*v.Vec))
	for i := range *v.Vec {
		s, err := (*v.Vec)[i].Text()
		if err != nil {
			return nil, fmt.Errorf("vec element %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// MapGet looks up a map entry by its symbol or string key
func (v *ScVal) MapGet(key string) (*ScVal, bool) {
	if v == nil || v.Map == nil {
		return nil, false
	}
	for i := range *v.Map {
		k, err := (*v.Map)[i].Key.Text()
		if err == nil && k == key {
			return &(*v.Map)[i].Val, true
		}
	}
	return nil, false
}

// Convenience constructors used when building invocation arguments.

// SymbolVal builds a symbol ScVal
func SymbolVal(s string) ScVal { return ScVal{Symbol: &s} }

// StringVal builds a string ScVal
func StringVal(s string) ScVal { return ScVal{String: &s} }

// BytesVal builds a bytes ScVal from a hex string
func BytesVal(hexStr string) ScVal { return ScVal{Bytes: &hexStr} }

// U32Val builds a u32 ScVal
func U32Val(n uint32) ScVal { return ScVal{U32: &n} }

// AddressVal builds an address ScVal
func AddressVal(addr string) ScVal { return ScVal{Address: &addr} }

// I128Val builds an i128 ScVal from an int64 amount
func I128Val(amount int64) ScVal {
	parts := I128Parts{Lo: uint64(amount)}
	if amount < 0 {
		parts.Hi = -1
	}
	return ScVal{I128: &parts}
}

// VecVal builds a vec ScVal of strings
func VecVal(items []string) ScVal {
	vec := make([]ScVal, 0, len(items))
	for _, item := range items {
		vec = append(vec, StringVal(item))
	}
	return ScVal{Vec: &vec}
}
