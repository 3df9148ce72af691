package adapter

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// envelopeShape tags which response layout carried the transfer list
type envelopeShape int

const (
	// shapeEmpty means no recognised list was present
	shapeEmpty envelopeShape = iota
	// shapeResult is {"status":..,"message":..,"result":[...]}
	shapeResult
	// shapeBareList is a top-level [...]
	shapeBareList
	// shapeDataItems is {"data":{"items":[...]}}
	shapeDataItems
)

func (s envelopeShape) String() string {
	switch s {
	case shapeResult:
		return "result"
	case shapeBareList:
		return "bare_list"
	case shapeDataItems:
		return "data.items"
	default:
		return "empty"
	}
}

// flexString decodes a JSON string, number or bool into its textual form.
// null decodes to "".
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if b[0] == '{' || b[0] == '[' {
		return fmt.Errorf("expected scalar, got %s", string(b[:1]))
	}
	*f = flexString(b)
	return nil
}

// evmTokenTransfer is one token transfer as reported by an Etherscan-style explorer
type evmTokenTransfer struct {
	Hash            flexString `json:"hash"`
	BlockNumber     flexString `json:"blockNumber"`
	TimeStamp       flexString `json:"timeStamp"`
	From            flexString `json:"from"`
	To              flexString `json:"to"`
	Value           flexString `json:"value"`
	ContractAddress flexString `json:"contractAddress"`
	TokenSymbol     flexString `json:"tokenSymbol"`
	TokenDecimal    flexString `json:"tokenDecimal"`
}

// transferPage is the resolved variant of an explorer response
type transferPage struct {
	Shape   envelopeShape
	Items   []evmTokenTransfer
	Status  string
	Message string
	// Result holds a non-list result (Etherscan puts error text there)
	Result string
}

// decodeTransferPage resolves the response envelope once. The first present
// shape wins in the order result, bare list, data.items; otherwise the page
// is empty. Malformed JSON is an error.
func decodeTransferPage(body []byte) (*transferPage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty response body")
	}
	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("malformed JSON response: %s", truncate(string(trimmed), 120))
	}

	page := &transferPage{Shape: shapeEmpty}

	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &page.Items); err != nil {
			return nil, fmt.Errorf("decode transfer list: %w", err)
		}
		page.Shape = shapeBareList
		return page, nil
	case '{':
	default:
		return page, nil
	}

	var env struct {
		Status  flexString      `json:"status"`
		Message flexString      `json:"message"`
		Result  json.RawMessage `json:"result"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	page.Status = string(env.Status)
	page.Message = string(env.Message)

	if isJSONArray(env.Result) {
		if err := json.Unmarshal(env.Result, &page.Items); err != nil {
			return nil, fmt.Errorf("decode result list: %w", err)
		}
		page.Shape = shapeResult
		return page, nil
	}

	if isJSONObject(env.Data) {
		var data struct {
			Items json.RawMessage `json:"items"`
		}
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("decode data envelope: %w", err)
		}
		if isJSONArray(data.Items) {
			if err := json.Unmarshal(data.Items, &page.Items); err != nil {
				return nil, fmt.Errorf("decode data.items list: %w", err)
			}
			page.Shape = shapeDataItems
			return page, nil
		}
	}

	var text string
	if json.Unmarshal(env.Result, &text) == nil {
		page.Result = text
	}
	return page, nil
}

func isJSONArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

func isJSONObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}
