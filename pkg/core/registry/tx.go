package registry

import (
	"fmt"
	"time"

	"github.com/jakechorley/radflow/pkg/core/model"
)

// Tx is a unit of work on one shift, valid only inside Registry.Do
type Tx struct {
	registry   *Registry
	shift      model.Shift
	bidsBefore int
	autoBids   []model.AutoBid
	now        time.Time
	dirty      bool
	reserved   int
}

// Shift returns a copy of the working state
func (tx *Tx) Shift() model.Shift {
	return tx.shift.Clone()
}

// Now is the timestamp of this unit of work
func (tx *Tx) Now() time.Time {
	return tx.now
}

func (tx *Tx) Policy() model.DepartmentPolicy {
	return tx.registry.policy
}

// Transition is a compare-and-swap on the status
func (tx *Tx) Transition(from, to model.ShiftStatus) error {
	if tx.shift.Status != from || !model.CanTransition(from, to) {
		return &model.TransitionError{ShiftID: tx.shift.ID, From: from, To: to, Actual: tx.shift.Status}
	}
	tx.shift.Status = to
	tx.dirty = true
	return nil
}

// RecordBid appends a bid. The shift must be in Active Bidding and the amount must reach the
// current high bid plus the increment. Timestamps are forced strictly increasing.
func (tx *Tx) RecordBid(bidderID, amount int, auto bool) (model.Bid, error) {
	if tx.shift.Status != model.StatusActiveBidding {
		return model.Bid{}, fmt.Errorf("%w: shift %s is %s", model.ErrShiftNotBidding, tx.shift.ID, tx.shift.Status)
	}
	if tx.shift.CurrentHighBid != nil {
		minimum := *tx.shift.CurrentHighBid + tx.registry.policy.BidIncrement
		if amount < minimum {
			return model.Bid{}, &model.BidError{ShiftID: tx.shift.ID, Amount: amount, Minimum: minimum}
		}
	}

	placedAt := tx.now
	if last, ok := tx.shift.LastBid(); ok && !placedAt.After(last.PlacedAt) {
		placedAt = last.PlacedAt.Add(time.Microsecond)
	}

	bid := model.Bid{
		ID:       tx.registry.newID(),
		ShiftID:  tx.shift.ID,
		BidderID: bidderID,
		Amount:   amount,
		PlacedAt: placedAt,
		Auto:     auto,
	}
	tx.shift.Bids = append(tx.shift.Bids, bid)
	tx.shift.CurrentHighBid = model.IntPtr(amount)
	tx.shift.CurrentHighBidder = model.IntPtr(bidderID)
	tx.dirty = true
	return bid, nil
}

// AddAutoBid registers a standing ceiling. A radiologist re-registering replaces their ceiling
// and keeps their original place in the order.
func (tx *Tx) AddAutoBid(radiologistID, ceiling int) model.AutoBid {
	for i, ab := range tx.shift.AutoBids {
		if ab.RadiologistID == radiologistID {
			tx.shift.AutoBids[i].Ceiling = ceiling
			tx.autoBids = append(tx.autoBids, tx.shift.AutoBids[i])
			tx.dirty = true
			return tx.shift.AutoBids[i]
		}
	}

	seq := 1
	for _, ab := range tx.shift.AutoBids {
		if ab.Seq >= seq {
			seq = ab.Seq + 1
		}
	}
	ab := model.AutoBid{
		ShiftID:       tx.shift.ID,
		RadiologistID: radiologistID,
		Ceiling:       ceiling,
		RegisteredAt:  tx.now,
		Seq:           seq,
	}
	tx.shift.AutoBids = append(tx.shift.AutoBids, ab)
	tx.autoBids = append(tx.autoBids, ab)
	tx.dirty = true
	return ab
}

// Assign records the assigned radiologist and, for smart distribution, the winning burden score
func (tx *Tx) Assign(radiologistID int, burden *float64) {
	tx.shift.AssignedRadiologist = model.IntPtr(radiologistID)
	if burden != nil {
		v := *burden
		tx.shift.BurdenScore = &v
	}
	tx.dirty = true
}

// MarkSmartDistributionTried records that smart distribution ran for the shift
func (tx *Tx) MarkSmartDistributionTried() {
	tx.shift.SmartDistributionTried = true
	tx.dirty = true
}

// SetBiddingWindow starts a fresh auction window of length d, clearing any previous high bid
func (tx *Tx) SetBiddingWindow(d time.Duration) {
	opened := tx.now
	ends := tx.now.Add(d)
	tx.shift.BiddingOpenedAt = &opened
	tx.shift.BiddingEndsAt = &ends
	tx.shift.CurrentHighBid = nil
	tx.shift.CurrentHighBidder = nil
	tx.dirty = true
}

// Extend pushes the bidding deadline to d from now and uses up the grace extension
func (tx *Tx) Extend(d time.Duration) {
	ends := tx.now.Add(d)
	tx.shift.BiddingEndsAt = &ends
	tx.shift.GraceUsed = true
	tx.dirty = true
}

// ReserveSpend claims amount against the bidding budget of the shift's month, failing when the
// claim would exceed budget. The claim is dropped unless the unit of work commits.
func (tx *Tx) ReserveSpend(amount, budget int) bool {
	if !tx.registry.reserveSpend(tx.shift.Date, amount, budget) {
		return false
	}
	tx.reserved += amount
	return true
}
