package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition means the shift was not in the expected state. Callers may retry on fresh state.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrBidTooLow means the amount is under the floor or under the current high bid plus increment
	ErrBidTooLow = errors.New("bid too low")
	// ErrShiftNotBidding means the shift is not accepting bids
	ErrShiftNotBidding = errors.New("shift not bidding")
	// ErrNoEligibleRadiologist is an expected business outcome that drives cascade logic
	ErrNoEligibleRadiologist = errors.New("no eligible radiologist")
	// ErrPolicyViolation means a department policy limit was exceeded
	ErrPolicyViolation = errors.New("policy violation")
	// ErrIneligibleBidder means the radiologist may not bid on the shift
	ErrIneligibleBidder = errors.New("ineligible bidder")

	ErrShiftNotFound       = errors.New("shift not found")
	ErrRadiologistNotFound = errors.New("radiologist not found")
	ErrLocationNotFound    = errors.New("location not found")
	ErrInvalidShift        = errors.New("invalid shift")
)

// TransitionError describes a rejected compare-and-swap on a shift status
type TransitionError struct {
	ShiftID string
	From    ShiftStatus
	To      ShiftStatus
	Actual  ShiftStatus
}

func (e *TransitionError) Error() string {
	if e.Actual != e.From {
		return fmt.Sprintf("invalid transition for shift %s: expected status %q but found %q", e.ShiftID, e.From, e.Actual)
	}
	return fmt.Sprintf("invalid transition for shift %s: %q -> %q is not allowed", e.ShiftID, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// BidError describes a bid rejected for its amount
type BidError struct {
	ShiftID string
	Amount  int
	Minimum int
}

func (e *BidError) Error() string {
	return fmt.Sprintf("bid too low for shift %s: %d is below the minimum of %d", e.ShiftID, e.Amount, e.Minimum)
}

func (e *BidError) Is(target error) bool {
	return target == ErrBidTooLow
}

// PolicyError describes a request rejected by a department policy rule
type PolicyError struct {
	Rule   string
	Detail string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("policy violation (%s): %s", e.Rule, e.Detail)
}

func (e *PolicyError) Is(target error) bool {
	return target == ErrPolicyViolation
}
