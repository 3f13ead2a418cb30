package operations

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

// ErrUnknownOpType is returned by Decode for op types with no payload variant.
var ErrUnknownOpType = errors.New("unknown op type")

var validate = validator.New(validator.WithRequiredStructEnabled())

var payloadFactories = map[OpType]func() Payload{
	OpProductUpdated:     func() Payload { return &ProductUpdated{} },
	OpSaleCreated:        func() Payload { return &SaleCreated{} },
	OpSaleLineAdded:      func() Payload { return &SaleLineAdded{} },
	OpReceptionLineAdded: func() Payload { return &ReceptionLineAdded{} },
	OpInventoryAdjust:    func() Payload { return &InventoryAdjust{} },
	OpStockSet:           func() Payload { return &StockSet{} },
}

// Known reports whether opType has a payload variant.
func Known(opType OpType) bool {
	_, ok := payloadFactories[opType]
	return ok
}

// Decode parses and validates raw into the payload variant of opType.
// Malformed or invalid payloads are errors; they never decode to an empty value.
func Decode(opType OpType, raw []byte) (Payload, error) {
	newPayload, ok := payloadFactories[opType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOpType, opType)
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, fmt.Errorf("payload is required")
	}

	p := newPayload()
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if err := validate.Struct(p); err != nil {
		return nil, fmt.Errorf("validate payload: %w", err)
	}
	if v, ok := p.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("validate payload: %w", err)
		}
	}
	return p, nil
}
