package model

import (
	"bytes"
	"encoding/json"
	"strings"
)

// RawNumber keeps a numeric field exactly as the pool API sent it. The API
// mixes JSON numbers, numeric strings and nulls, so decoding never fails;
// anything that is not a number or a string decodes to the empty value.
type RawNumber string

// UnmarshalJSON implements json.Unmarshaler.
func (n *RawNumber) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		*n = ""
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			*n = ""
			return nil
		}
		*n = RawNumber(strings.TrimSpace(s))
	case trimmed[0] == '-' || (trimmed[0] >= '0' && trimmed[0] <= '9'):
		*n = RawNumber(trimmed)
	default:
		*n = ""
	}
	return nil
}

// WindowValues groups a metric reported over several rolling windows.
type WindowValues struct {
	Min5   RawNumber `json:"min_5"`
	Min30  RawNumber `json:"min_30"`
	Hour1  RawNumber `json:"hour_1"`
	Hour24 RawNumber `json:"hour_24"`
}

// UnmarshalJSON tolerates non-object payloads by leaving every window empty.
func (w *WindowValues) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		*w = WindowValues{}
		return nil
	}
	type plain WindowValues
	var p plain
	if err := json.Unmarshal(trimmed, &p); err != nil {
		*w = WindowValues{}
		return nil
	}
	*w = WindowValues(p)
	return nil
}

// PoolRecord is one liquidity pool as listed by the Meteora DLMM API.
// Records arrive fresh every cycle and are never persisted.
type PoolRecord struct {
	Address           string       `json:"address"`
	Name              string       `json:"name"`
	Liquidity         RawNumber    `json:"liquidity"`
	TVL               RawNumber    `json:"tvl"`
	Fees              WindowValues `json:"fees"`
	Volume            WindowValues `json:"volume"`
	FeeTVLRatio       WindowValues `json:"fee_tvl_ratio"`
	APR               RawNumber    `json:"apr"`
	BaseFeePercentage RawNumber    `json:"base_fee_percentage"`
	CurrentPrice      RawNumber    `json:"current_price"`
	MintX             string       `json:"mint_x"`
	MintY             string       `json:"mint_y"`
}
