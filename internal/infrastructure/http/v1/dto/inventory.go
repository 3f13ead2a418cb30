package dto

import (
	"coopsync/internal/core/types"
	"coopsync/internal/domain/inventory"
)

type StartSessionRequest struct {
	Name     string `json:"name" binding:"required"`
	Operator string `json:"operator"`
	Notes    string `json:"notes"`
}

type StartSessionResponse struct {
	Session *inventory.Session `json:"session"`
	Reused  bool               `json:"reused"`
}

// CountRequest adds qty to the device's running total. device_id falls back
// to the X-Device-ID header.
type CountRequest struct {
	ProductID int64          `json:"product_id"`
	Qty       types.Quantity `json:"qty"`
	DeviceID  string         `json:"device_id"`
	Operator  string         `json:"operator"`
}

type FinalizeRequest struct {
	Operator      string `json:"operator"`
	NotifyAddress string `json:"notify_address"`
}

type FinalizeResponse struct {
	Recap *inventory.Recap `json:"recap"`
}
