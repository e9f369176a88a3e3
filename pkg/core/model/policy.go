package model

import (
	"fmt"
	"time"
)

// DefaultTargetCalls is the per-period call target used for burden scores when none is configured
const DefaultTargetCalls = 6

// MinBids is the bid floor per shift type
type MinBids struct {
	WeekdayDay   int `yaml:"weekdayDay" validate:"gte=0"`
	WeekdayNight int `yaml:"weekdayNight" validate:"gte=0"`
	WeekendDay   int `yaml:"weekendDay" validate:"gte=0"`
	WeekendNight int `yaml:"weekendNight" validate:"gte=0"`
}

func (m MinBids) For(t ShiftType) int {
	switch t {
	case ShiftWeekdayDay:
		return m.WeekdayDay
	case ShiftWeekdayNight:
		return m.WeekdayNight
	case ShiftWeekendDay:
		return m.WeekendDay
	case ShiftWeekendNight:
		return m.WeekendNight
	}
	return 0
}

// DepartmentPolicy is the department-wide assignment and bidding configuration. It is loaded once
// at startup and treated as read-only.
type DepartmentPolicy struct {
	DefaultAssignmentMode AssignmentMode `yaml:"defaultAssignmentMode"`
	AllowModeOverride     bool           `yaml:"allowModeOverride"`

	MinBid       MinBids `yaml:"minBid"`
	MaxBidLimit  int     `yaml:"maxBidLimit" validate:"gt=0"`
	BidIncrement int     `yaml:"bidIncrement" validate:"gt=0"`

	DefaultBiddingHours int  `yaml:"defaultBiddingHours" validate:"gt=0"`
	AutoCloseIfNoBids   bool `yaml:"autoCloseIfNoBids"`
	GraceHours          int  `yaml:"graceHours" validate:"gte=0"`

	CascadeToBidding    bool `yaml:"cascadeToBidding"`
	CascadeTimeoutHours int  `yaml:"cascadeTimeoutHours" validate:"gte=0"`

	MonthlyBiddingBudget int `yaml:"monthlyBiddingBudget" validate:"gte=0"`
	ApprovalRequiredOver int `yaml:"approvalRequiredOver" validate:"gte=0"`
	CostAlertThreshold   int `yaml:"costAlertThreshold" validate:"gte=0"`

	TargetCallsPerPeriod int `yaml:"targetCallsPerPeriod" validate:"gte=0"`
}

// DefaultPolicy returns the department settings the dashboard shipped with
func DefaultPolicy() DepartmentPolicy {
	return DepartmentPolicy{
		DefaultAssignmentMode: ModeSmartDistribution,
		AllowModeOverride:     true,
		MinBid: MinBids{
			WeekendDay:   2200,
			WeekendNight: 2400,
		},
		MaxBidLimit:          4000,
		BidIncrement:         50,
		DefaultBiddingHours:  24,
		AutoCloseIfNoBids:    true,
		GraceHours:           12,
		CascadeToBidding:     true,
		CascadeTimeoutHours:  12,
		MonthlyBiddingBudget: 50000,
		ApprovalRequiredOver: 3500,
		CostAlertThreshold:   3000,
		TargetCallsPerPeriod: DefaultTargetCalls,
	}
}

func (p DepartmentPolicy) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("policy validation failed: %w", err)
	}
	if p.DefaultAssignmentMode != "" && !p.DefaultAssignmentMode.IsValid() {
		return fmt.Errorf("policy: unknown default assignment mode %q", p.DefaultAssignmentMode)
	}
	for _, t := range ShiftTypes {
		if floor := p.MinBid.For(t); floor > p.MaxBidLimit {
			return fmt.Errorf("policy: minimum bid %d for %s exceeds max bid limit %d", floor, t, p.MaxBidLimit)
		}
	}
	return nil
}

// Floor is the lowest acceptable bid for the shift: the configured minimum for its type or,
// when none is configured, its base compensation
func (p DepartmentPolicy) Floor(s Shift) int {
	if floor := p.MinBid.For(s.Type); floor > 0 {
		return floor
	}
	return s.BaseCompensation
}

// ResolveMode picks the mode a shift runs under
func (p DepartmentPolicy) ResolveMode(s Shift) AssignmentMode {
	if p.AllowModeOverride && s.Mode != "" {
		return s.Mode
	}
	if p.DefaultAssignmentMode == "" {
		return ModeSmartDistribution
	}
	return p.DefaultAssignmentMode
}

func (p DepartmentPolicy) Target() int {
	if p.TargetCallsPerPeriod <= 0 {
		return DefaultTargetCalls
	}
	return p.TargetCallsPerPeriod
}

func (p DepartmentPolicy) BiddingWindow() time.Duration {
	return time.Duration(p.DefaultBiddingHours) * time.Hour
}

// CascadeWindow is the bidding window for shifts cascaded from smart distribution
func (p DepartmentPolicy) CascadeWindow() time.Duration {
	if p.CascadeTimeoutHours <= 0 {
		return p.BiddingWindow()
	}
	return time.Duration(p.CascadeTimeoutHours) * time.Hour
}

func (p DepartmentPolicy) GraceWindow() time.Duration {
	return time.Duration(p.GraceHours) * time.Hour
}
