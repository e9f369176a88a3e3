package model

import (
	"fmt"
	"strings"
)

type ShiftStatus string

const (
	StatusOpen               ShiftStatus = "Open"
	StatusSmartAssignPending ShiftStatus = "Smart Assign Pending"
	StatusCascadedToBidding  ShiftStatus = "Cascaded To Bidding"
	StatusActiveBidding      ShiftStatus = "Active Bidding"
	StatusPendingApproval    ShiftStatus = "Pending Approval"
	StatusFilled             ShiftStatus = "Filled"
	StatusExpired            ShiftStatus = "Expired"
)

// transitions is the shift lifecycle. Filled and Expired are terminal.
var transitions = map[ShiftStatus][]ShiftStatus{
	StatusOpen:               {StatusSmartAssignPending, StatusActiveBidding, StatusExpired},
	StatusSmartAssignPending: {StatusFilled, StatusCascadedToBidding, StatusExpired},
	StatusCascadedToBidding:  {StatusActiveBidding, StatusExpired},
	StatusActiveBidding:      {StatusFilled, StatusPendingApproval, StatusExpired},
	StatusPendingApproval:    {StatusFilled, StatusExpired},
}

// AllStatuses lists every lifecycle state
var AllStatuses = []ShiftStatus{
	StatusOpen,
	StatusSmartAssignPending,
	StatusCascadedToBidding,
	StatusActiveBidding,
	StatusPendingApproval,
	StatusFilled,
	StatusExpired,
}

func (s ShiftStatus) IsValid() bool {
	for _, status := range AllStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible
func (s ShiftStatus) IsTerminal() bool {
	return s == StatusFilled || s == StatusExpired
}

// CanTransition reports whether from -> to is an edge of the lifecycle
func CanTransition(from, to ShiftStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ParseShiftStatus accepts display names ("Active Bidding") and snake case keys ("active_bidding")
func ParseShiftStatus(s string) (ShiftStatus, error) {
	normalized := strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, "_", " ")))
	for _, status := range AllStatuses {
		if strings.ToLower(string(status)) == normalized {
			return status, nil
		}
	}
	return "", fmt.Errorf("unknown shift status %q", s)
}
