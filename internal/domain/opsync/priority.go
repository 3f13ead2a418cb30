package opsync

import (
	"sort"

	"coopsync/internal/domain/operations"
)

const unknownPriority = 100

// priorities orders a batch so that entities exist before what references them.
var priorities = map[operations.OpType]int{
	operations.OpProductUpdated:     10,
	operations.OpSaleCreated:        20,
	operations.OpSaleLineAdded:      30,
	operations.OpReceptionLineAdded: 30,
	operations.OpInventoryAdjust:    40,
	operations.OpStockSet:           40,
}

// Priority returns the processing priority of an op type; lower runs first.
func Priority(opType string) int {
	if p, ok := priorities[operations.OpType(opType)]; ok {
		return p
	}
	return unknownPriority
}

// planned is a submitted operation with its position and parent reference.
type planned struct {
	Submitted
	index     int
	parentRef string
}

// plan binds every operation to the nearest preceding sale.created in
// submission order, then stable-sorts by priority.
func plan(ops []Submitted) []planned {
	out := make([]planned, len(ops))
	parent := ""
	for i, op := range ops {
		if operations.OpType(op.OpType) == operations.OpSaleCreated {
			parent = op.ID
		}
		out[i] = planned{Submitted: op, index: i, parentRef: parent}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return Priority(out[i].OpType) < Priority(out[j].OpType)
	})
	return out
}
