package auction

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jakechorley/radflow/pkg/core/model"
	"github.com/jakechorley/radflow/pkg/core/registry"
	"github.com/jakechorley/radflow/pkg/notify"
)

// CloseResult is what happened when an auction was closed
type CloseResult string

const (
	ClosedFilled          CloseResult = "filled"
	ClosedPendingApproval CloseResult = "pending_approval"
	ClosedExpired         CloseResult = "expired"
	ClosedExtended        CloseResult = "extended"
)

// Close ends the auction once its deadline has passed, or immediately when forced.
// A winning bid that trips the cost guard waits for approval; with no bids the shift expires
// or, when auto-close is off, gets one grace extension.
func (a *Auction) Close(ctx context.Context, shiftID string, force bool) (CloseResult, model.Shift, error) {
	policy := a.registry.Policy()

	var result CloseResult
	var closed model.Shift
	err := a.registry.Do(ctx, shiftID, func(tx *registry.Tx) error {
		shift := tx.Shift()
		if shift.Status != model.StatusActiveBidding {
			return &model.TransitionError{ShiftID: shiftID, From: model.StatusActiveBidding, To: model.StatusFilled, Actual: shift.Status}
		}
		if !force && shift.BiddingWindowOpen(tx.Now()) {
			return fmt.Errorf("%w: shift %s closes at %s", ErrWindowOpen, shiftID, shift.BiddingEndsAt.Format("2006-01-02 15:04"))
		}

		switch {
		case shift.CurrentHighBid != nil:
			amount := *shift.CurrentHighBid
			if overApprovalThreshold(policy, amount) || !tx.ReserveSpend(amount, policy.MonthlyBiddingBudget) {
				result = ClosedPendingApproval
				if err := tx.Transition(model.StatusActiveBidding, model.StatusPendingApproval); err != nil {
					return err
				}
			} else {
				result = ClosedFilled
				tx.Assign(*shift.CurrentHighBidder, nil)
				if err := tx.Transition(model.StatusActiveBidding, model.StatusFilled); err != nil {
					return err
				}
			}
		case policy.AutoCloseIfNoBids || shift.GraceUsed || policy.GraceHours == 0:
			result = ClosedExpired
			if err := tx.Transition(model.StatusActiveBidding, model.StatusExpired); err != nil {
				return err
			}
		default:
			result = ClosedExtended
			tx.Extend(policy.GraceWindow())
		}
		closed = tx.Shift()
		return nil
	})
	if err != nil {
		return "", model.Shift{}, err
	}

	a.afterClose(ctx, result, closed)
	return result, closed, nil
}

// overApprovalThreshold is the single-bid half of the cost guard; the monthly budget is claimed
// through the registry so concurrent closes cannot both spend the same headroom
func overApprovalThreshold(policy model.DepartmentPolicy, amount int) bool {
	return policy.ApprovalRequiredOver > 0 && amount > policy.ApprovalRequiredOver
}

func (a *Auction) afterClose(ctx context.Context, result CloseResult, shift model.Shift) {
	policy := a.registry.Policy()
	fields := []zap.Field{zap.String("shift_id", shift.ID), zap.String("result", string(result))}

	if shift.CurrentHighBid != nil {
		amount := *shift.CurrentHighBid
		fields = append(fields, zap.Int("winning_bid", amount), zap.Int("bidder_id", *shift.CurrentHighBidder))
		if policy.CostAlertThreshold > 0 && amount > policy.CostAlertThreshold {
			a.logger.Warn("Cost alert: winning bid above threshold",
				zap.String("shift_id", shift.ID),
				zap.Int("amount", amount),
				zap.Int("threshold", policy.CostAlertThreshold))
		}
	}

	switch result {
	case ClosedFilled:
		a.notifier.Notify(*shift.AssignedRadiologist, notify.NewEvent(notify.EventShiftAwarded, shift, *shift.CurrentHighBid))
	case ClosedPendingApproval:
		amount := *shift.CurrentHighBid
		if err := a.approver.RequestApproval(ctx, shift.ID, amount); err != nil {
			a.logger.Error("Failed to request approval",
				zap.String("shift_id", shift.ID), zap.Int("amount", amount), zap.Error(err))
		}
		a.notifier.Notify(*shift.CurrentHighBidder, notify.NewEvent(notify.EventApprovalPending, shift, amount))
	case ClosedExtended:
		fields = append(fields, zap.Time("ends_at", *shift.BiddingEndsAt))
	}

	a.logger.Info("Closed bidding", fields...)
}

// Resolve records the approver's decision on a shift awaiting approval
func (a *Auction) Resolve(ctx context.Context, shiftID string, approved bool) (model.Shift, error) {
	var resolved model.Shift
	err := a.registry.Do(ctx, shiftID, func(tx *registry.Tx) error {
		shift := tx.Shift()
		if shift.Status != model.StatusPendingApproval {
			to := model.StatusExpired
			if approved {
				to = model.StatusFilled
			}
			return &model.TransitionError{ShiftID: shiftID, From: model.StatusPendingApproval, To: to, Actual: shift.Status}
		}

		if approved {
			tx.Assign(*shift.CurrentHighBidder, nil)
			if err := tx.Transition(model.StatusPendingApproval, model.StatusFilled); err != nil {
				return err
			}
		} else if err := tx.Transition(model.StatusPendingApproval, model.StatusExpired); err != nil {
			return err
		}
		resolved = tx.Shift()
		return nil
	})
	if err != nil {
		return model.Shift{}, err
	}

	a.logger.Info("Resolved approval",
		zap.String("shift_id", shiftID),
		zap.Bool("approved", approved),
		zap.Int("amount", resolved.WinningAmount()))

	if approved {
		a.notifier.Notify(*resolved.AssignedRadiologist, notify.NewEvent(notify.EventShiftAwarded, resolved, resolved.WinningAmount()))
	} else {
		a.notifier.Notify(*resolved.CurrentHighBidder, notify.NewEvent(notify.EventShiftExpired, resolved, resolved.WinningAmount()))
	}
	return resolved, nil
}
