package db

import (
	"context"

	"github.com/jakechorley/radflow/pkg/core/model"
)

// ShiftChange is one unit of work committed by the registry: the full shift row plus the
// bids and auto-bids added since the previous commit
type ShiftChange struct {
	Shift       model.Shift
	NewBids     []model.Bid
	NewAutoBids []model.AutoBid
}

// ShiftStore defines the persistence operations the shift registry needs.
// Both MemoryStore and postgres.DB implement this interface.
type ShiftStore interface {
	// SaveShift upserts the shift and appends its new bids atomically. Auto-bids are upserted
	// on (shift, radiologist).
	SaveShift(ctx context.Context, change ShiftChange) error
	// ListShifts returns every shift with its bids and auto-bids in chronological order
	ListShifts(ctx context.Context) ([]model.Shift, error)
}
