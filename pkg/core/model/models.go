package model

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-day format used for shift dates and blackout dates
const DateLayout = "2006-01-02"

// SubspecialtyAny marks a shift that any subspecialty may cover
const SubspecialtyAny = "Any"

type ShiftType string

const (
	ShiftWeekdayDay   ShiftType = "Weekday Day"
	ShiftWeekdayNight ShiftType = "Weekday Night"
	ShiftWeekendDay   ShiftType = "Weekend Day"
	ShiftWeekendNight ShiftType = "Weekend Night"
)

// ShiftTypes lists every shift type in display order
var ShiftTypes = []ShiftType{ShiftWeekdayDay, ShiftWeekdayNight, ShiftWeekendDay, ShiftWeekendNight}

func (t ShiftType) IsValid() bool {
	switch t {
	case ShiftWeekdayDay, ShiftWeekdayNight, ShiftWeekendDay, ShiftWeekendNight:
		return true
	}
	return false
}

func (t ShiftType) IsWeekend() bool {
	return t == ShiftWeekendDay || t == ShiftWeekendNight
}

func (t ShiftType) IsNight() bool {
	return t == ShiftWeekdayNight || t == ShiftWeekendNight
}

// ShiftTypeFor derives the shift type from the calendar day and whether it is a night shift
func ShiftTypeFor(date time.Time, night bool) ShiftType {
	weekend := date.Weekday() == time.Saturday || date.Weekday() == time.Sunday
	switch {
	case weekend && night:
		return ShiftWeekendNight
	case weekend:
		return ShiftWeekendDay
	case night:
		return ShiftWeekdayNight
	default:
		return ShiftWeekdayDay
	}
}

// ParseShiftType accepts display names ("Weekend Day") and snake case keys ("weekend_day")
func ParseShiftType(s string) (ShiftType, error) {
	normalized := strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, "_", " ")))
	for _, t := range ShiftTypes {
		if strings.ToLower(string(t)) == normalized {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown shift type %q", s)
}

type AssignmentMode string

const (
	ModeSmartDistribution AssignmentMode = "Smart Distribution"
	ModeBidding           AssignmentMode = "Bidding"
	ModeHybrid            AssignmentMode = "Hybrid"
)

func (m AssignmentMode) IsValid() bool {
	return m == ModeSmartDistribution || m == ModeBidding || m == ModeHybrid
}

// ParseAssignmentMode accepts the display names used by the department settings as well as
// the short forms "smart", "bidding" and "hybrid". An empty string parses to the empty mode.
func ParseAssignmentMode(s string) (AssignmentMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "smart", "smart distribution", "smart_distribution":
		return ModeSmartDistribution, nil
	case "bidding", "bidding mode":
		return ModeBidding, nil
	case "hybrid":
		return ModeHybrid, nil
	}
	return "", fmt.Errorf("unknown assignment mode %q", s)
}

type Priority string

const (
	PriorityNormal Priority = "Normal"
	PriorityHigh   Priority = "High"
	PriorityUrgent Priority = "Urgent"
)

func (p Priority) IsValid() bool {
	return p == PriorityNormal || p == PriorityHigh || p == PriorityUrgent
}

// ParsePriority is case-insensitive. An empty string parses to the empty priority.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "normal":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	case "urgent":
		return PriorityUrgent, nil
	}
	return "", fmt.Errorf("unknown priority %q", s)
}

// ParseDate parses a calendar day into UTC midnight
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// DateOf truncates a timestamp to its calendar day in UTC
func DateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Bid is a single accepted bid on a shift
type Bid struct {
	ID       string
	ShiftID  string
	BidderID int
	Amount   int
	PlacedAt time.Time
	// Auto is true when the bid was raised by the engine on behalf of a standing auto-bid
	Auto bool
}

// AutoBid is a standing ceiling a radiologist pre-authorizes for one shift
type AutoBid struct {
	ShiftID       string
	RadiologistID int
	Ceiling       int
	RegisteredAt  time.Time
	// Seq orders registrations on the same shift; lower registered earlier
	Seq int
}

// Shift is an open call shift and its assignment state
type Shift struct {
	ID               string
	Date             time.Time
	Type             ShiftType
	Location         string
	Subspecialty     string
	Duration         time.Duration
	BaseCompensation int
	Mode             AssignmentMode
	Status           ShiftStatus
	Priority         Priority

	CurrentHighBid    *int
	CurrentHighBidder *int
	Bids              []Bid
	AutoBids          []AutoBid

	AssignedRadiologist *int
	// BurdenScore records the winning burden score when filled by smart distribution
	BurdenScore            *float64
	SmartDistributionTried bool

	CreatedAt       time.Time
	UpdatedAt       time.Time
	BiddingOpenedAt *time.Time
	BiddingEndsAt   *time.Time
	GraceUsed       bool
}

// Clone returns a deep copy of the shift
func (s Shift) Clone() Shift {
	c := s
	c.CurrentHighBid = cloneInt(s.CurrentHighBid)
	c.CurrentHighBidder = cloneInt(s.CurrentHighBidder)
	c.AssignedRadiologist = cloneInt(s.AssignedRadiologist)
	if s.BurdenScore != nil {
		v := *s.BurdenScore
		c.BurdenScore = &v
	}
	c.BiddingOpenedAt = cloneTime(s.BiddingOpenedAt)
	c.BiddingEndsAt = cloneTime(s.BiddingEndsAt)
	if s.Bids != nil {
		c.Bids = append([]Bid(nil), s.Bids...)
	}
	if s.AutoBids != nil {
		c.AutoBids = append([]AutoBid(nil), s.AutoBids...)
	}
	return c
}

// LastBid returns the most recent accepted bid, if any
func (s Shift) LastBid() (Bid, bool) {
	if len(s.Bids) == 0 {
		return Bid{}, false
	}
	return s.Bids[len(s.Bids)-1], true
}

// BiddingWindowOpen reports whether the shift accepts bids at the given time
func (s Shift) BiddingWindowOpen(now time.Time) bool {
	if s.Status != StatusActiveBidding {
		return false
	}
	return s.BiddingEndsAt == nil || now.Before(*s.BiddingEndsAt)
}

// WinningAmount is the amount the shift was filled at by bidding, or zero
func (s Shift) WinningAmount() int {
	if s.CurrentHighBid == nil {
		return 0
	}
	return *s.CurrentHighBid
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// IntPtr is a convenience for optional integer fields
func IntPtr(v int) *int {
	return &v
}
