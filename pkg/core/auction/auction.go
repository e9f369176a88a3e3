package auction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/radflow/pkg/core/eligibility"
	"github.com/jakechorley/radflow/pkg/core/model"
	"github.com/jakechorley/radflow/pkg/core/registry"
	"github.com/jakechorley/radflow/pkg/notify"
)

// ErrWindowOpen is returned when closing an auction before its deadline without forcing
var ErrWindowOpen = errors.New("bidding window still open")

// Directory is the read-only radiologist view the auction needs
type Directory interface {
	GetRadiologist(ctx context.Context, id int) (model.Radiologist, error)
	ListRadiologists(ctx context.Context) ([]model.Radiologist, error)
}

// Auction runs per-shift bidding on top of the registry. Every bid together with the auto-bid
// resolution it triggers is one registry unit of work.
type Auction struct {
	registry *registry.Registry
	dir      Directory
	filter   *eligibility.Filter
	notifier notify.Notifier
	approver notify.ApprovalRequester
	logger   *zap.Logger
}

func New(
	reg *registry.Registry,
	dir Directory,
	filter *eligibility.Filter,
	notifier notify.Notifier,
	approver notify.ApprovalRequester,
	logger *zap.Logger,
) *Auction {
	return &Auction{
		registry: reg,
		dir:      dir,
		filter:   filter,
		notifier: notifier,
		approver: approver,
		logger:   logger,
	}
}

// Open starts bidding on a shift in Open or Cascaded To Bidding. A zero window uses the
// department's default bidding time.
func (a *Auction) Open(ctx context.Context, shiftID string, window time.Duration) (model.Shift, error) {
	if window <= 0 {
		window = a.registry.Policy().BiddingWindow()
	}

	var opened model.Shift
	err := a.registry.Do(ctx, shiftID, func(tx *registry.Tx) error {
		from := tx.Shift().Status
		if from != model.StatusOpen && from != model.StatusCascadedToBidding {
			return &model.TransitionError{ShiftID: shiftID, From: model.StatusOpen, To: model.StatusActiveBidding, Actual: from}
		}
		if err := tx.Transition(from, model.StatusActiveBidding); err != nil {
			return err
		}
		tx.SetBiddingWindow(window)
		opened = tx.Shift()
		return nil
	})
	if err != nil {
		return model.Shift{}, err
	}

	a.logger.Info("Opened bidding",
		zap.String("shift_id", shiftID),
		zap.Time("ends_at", *opened.BiddingEndsAt),
		zap.Int("floor", a.registry.Policy().Floor(opened)))

	a.notifyEligibleBidders(ctx, opened)
	return opened, nil
}

// PlaceBid accepts a manual bid and runs auto-bid resolution in the same unit of work
func (a *Auction) PlaceBid(ctx context.Context, shiftID string, bidderID, amount int) (model.Shift, error) {
	rad, err := a.bidder(ctx, bidderID)
	if err != nil {
		return model.Shift{}, err
	}
	policy := a.registry.Policy()

	var before, after model.Shift
	err = a.registry.Do(ctx, shiftID, func(tx *registry.Tx) error {
		before = tx.Shift()
		if err := a.checkBidder(tx, before, rad); err != nil {
			return err
		}
		if floor := policy.Floor(before); amount < floor {
			return &model.BidError{ShiftID: shiftID, Amount: amount, Minimum: floor}
		}
		if amount > policy.MaxBidLimit {
			return &model.PolicyError{
				Rule:   "max_bid_limit",
				Detail: fmt.Sprintf("bid %d exceeds the limit of %d", amount, policy.MaxBidLimit),
			}
		}
		if _, err := tx.RecordBid(bidderID, amount, false); err != nil {
			return err
		}
		if err := resolveAutoBids(tx, policy.BidIncrement); err != nil {
			return err
		}
		after = tx.Shift()
		return nil
	})
	if err != nil {
		return model.Shift{}, err
	}

	a.logger.Info("Accepted bid",
		zap.String("shift_id", shiftID),
		zap.Int("bidder_id", bidderID),
		zap.Int("amount", amount),
		zap.Int("high_bid", *after.CurrentHighBid),
		zap.Int("high_bidder", *after.CurrentHighBidder))

	a.notifyOutbid(before, after)
	return after, nil
}

// RegisterAutoBid records a standing ceiling for the radiologist. A zero ceiling uses their
// preferred maximum. With no high bid yet the auction opens at the floor on their behalf.
func (a *Auction) RegisterAutoBid(ctx context.Context, shiftID string, radiologistID, ceiling int) (model.Shift, error) {
	rad, err := a.bidder(ctx, radiologistID)
	if err != nil {
		return model.Shift{}, err
	}
	policy := a.registry.Policy()
	if ceiling == 0 {
		ceiling = rad.Preferences.MaxAutoBid
	}

	var before, after model.Shift
	err = a.registry.Do(ctx, shiftID, func(tx *registry.Tx) error {
		before = tx.Shift()
		if err := a.checkBidder(tx, before, rad); err != nil {
			return err
		}
		if err := checkCeiling(policy, before, rad, ceiling); err != nil {
			return err
		}

		tx.AddAutoBid(radiologistID, ceiling)
		if before.CurrentHighBid == nil {
			if _, err := tx.RecordBid(radiologistID, policy.Floor(before), true); err != nil {
				return err
			}
		}
		if err := resolveAutoBids(tx, policy.BidIncrement); err != nil {
			return err
		}
		after = tx.Shift()
		return nil
	})
	if err != nil {
		return model.Shift{}, err
	}

	a.logger.Info("Registered auto-bid",
		zap.String("shift_id", shiftID),
		zap.Int("radiologist_id", radiologistID),
		zap.Int("ceiling", ceiling),
		zap.Int("high_bid", *after.CurrentHighBid))

	a.notifyOutbid(before, after)
	return after, nil
}

func checkCeiling(policy model.DepartmentPolicy, shift model.Shift, rad model.Radiologist, ceiling int) error {
	switch {
	case ceiling <= 0:
		return &model.PolicyError{Rule: "auto_bid_ceiling", Detail: fmt.Sprintf("radiologist %d has no auto-bid maximum", rad.ID)}
	case ceiling > rad.Preferences.MaxAutoBid:
		return &model.PolicyError{
			Rule:   "max_auto_bid",
			Detail: fmt.Sprintf("ceiling %d exceeds radiologist %d's maximum of %d", ceiling, rad.ID, rad.Preferences.MaxAutoBid),
		}
	case ceiling > policy.MaxBidLimit:
		return &model.PolicyError{
			Rule:   "max_bid_limit",
			Detail: fmt.Sprintf("ceiling %d exceeds the limit of %d", ceiling, policy.MaxBidLimit),
		}
	case ceiling < policy.Floor(shift):
		return &model.PolicyError{
			Rule:   "auto_bid_floor",
			Detail: fmt.Sprintf("ceiling %d is below the floor of %d", ceiling, policy.Floor(shift)),
		}
	}
	return nil
}

// resolveAutoBids raises the high bid on behalf of standing auto-bids until none can beat it.
// Each round the highest viable ceiling (earliest registration on ties) bids one increment over
// the current high bid, so the loop ends once the second-highest ceiling is exhausted.
func resolveAutoBids(tx *registry.Tx, increment int) error {
	for {
		shift := tx.Shift()
		if shift.CurrentHighBid == nil {
			return nil
		}
		next := *shift.CurrentHighBid + increment

		best, ok := strongestAutoBid(shift.AutoBids, *shift.CurrentHighBidder, next)
		if !ok {
			return nil
		}
		if _, err := tx.RecordBid(best.RadiologistID, min(best.Ceiling, next), true); err != nil {
			return err
		}
	}
}

func strongestAutoBid(autoBids []model.AutoBid, highBidder, minimum int) (model.AutoBid, bool) {
	var best model.AutoBid
	found := false
	for _, ab := range autoBids {
		if ab.RadiologistID == highBidder || ab.Ceiling < minimum {
			continue
		}
		if !found || ab.Ceiling > best.Ceiling || (ab.Ceiling == best.Ceiling && ab.Seq < best.Seq) {
			best = ab
			found = true
		}
	}
	return best, found
}

func (a *Auction) bidder(ctx context.Context, id int) (model.Radiologist, error) {
	rad, err := a.dir.GetRadiologist(ctx, id)
	if err != nil {
		return model.Radiologist{}, fmt.Errorf("%w: %w", model.ErrIneligibleBidder, err)
	}
	return rad, nil
}

func (a *Auction) checkBidder(tx *registry.Tx, shift model.Shift, rad model.Radiologist) error {
	if !shift.BiddingWindowOpen(tx.Now()) {
		return fmt.Errorf("%w: shift %s is %s", model.ErrShiftNotBidding, shift.ID, describeWindow(shift, tx.Now()))
	}
	if failed := a.filter.Explain(shift, rad, eligibility.Bidding); len(failed) > 0 {
		return fmt.Errorf("%w: radiologist %d fails %s", model.ErrIneligibleBidder, rad.ID, strings.Join(failed, ", "))
	}
	return nil
}

func describeWindow(shift model.Shift, now time.Time) string {
	if shift.Status == model.StatusActiveBidding && shift.BiddingEndsAt != nil && !now.Before(*shift.BiddingEndsAt) {
		return "past its bidding deadline"
	}
	return string(shift.Status)
}

func (a *Auction) notifyEligibleBidders(ctx context.Context, shift model.Shift) {
	rads, err := a.dir.ListRadiologists(ctx)
	if err != nil {
		a.logger.Warn("Failed to list radiologists for bidding notification",
			zap.String("shift_id", shift.ID), zap.Error(err))
		return
	}
	for _, rad := range a.filter.Filter(shift, rads, eligibility.Bidding) {
		a.notifier.Notify(rad.ID, notify.NewEvent(notify.EventBiddingOpened, shift, a.registry.Policy().Floor(shift)))
	}
}

// notifyOutbid tells everyone who held or placed a bid during the unit but no longer leads
func (a *Auction) notifyOutbid(before, after model.Shift) {
	if after.CurrentHighBidder == nil {
		return
	}
	leader := *after.CurrentHighBidder
	seen := map[int]bool{leader: true}

	var losers []int
	if before.CurrentHighBidder != nil && !seen[*before.CurrentHighBidder] {
		seen[*before.CurrentHighBidder] = true
		losers = append(losers, *before.CurrentHighBidder)
	}
	for _, bid := range after.Bids[len(before.Bids):] {
		if !seen[bid.BidderID] {
			seen[bid.BidderID] = true
			losers = append(losers, bid.BidderID)
		}
	}
	for _, id := range losers {
		a.notifier.Notify(id, notify.NewEvent(notify.EventOutbid, after, *after.CurrentHighBid))
	}
}
