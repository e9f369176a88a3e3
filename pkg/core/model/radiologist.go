package model

import (
	"fmt"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/teambition/rrule-go"
)

var validate = validator.New()

// credentialWarningWindow is how far ahead a certification expiry needs attention
const credentialWarningWindow = 90 * 24 * time.Hour

type PreferredMode string

const (
	PreferSmartDistribution PreferredMode = "Smart Distribution"
	PreferBidding           PreferredMode = "Bidding Preferred"
	PreferEither            PreferredMode = "Either"
)

type CredentialStatus string

const (
	CredentialCompliant      CredentialStatus = "Compliant"
	CredentialCMENeeded      CredentialStatus = "CME Needed"
	CredentialActionRequired CredentialStatus = "Action Required"
)

// Credentials holds board certification and continuing-education state
type Credentials struct {
	BoardCertified bool
	CertExpiry     time.Time
	CMECredits     int `validate:"gte=0"`
	CMERequired    int `validate:"gte=0"`
	LicenseNumber  string
}

// CertifiedOn reports whether the certification is held and unexpired on the given day
func (c Credentials) CertifiedOn(date time.Time) bool {
	if !c.BoardCertified || c.CertExpiry.IsZero() {
		return false
	}
	return !DateOf(c.CertExpiry).Before(DateOf(date))
}

// Compliant reports whether CME credits meet the requirement and the certification is valid on the given day
func (c Credentials) Compliant(date time.Time) bool {
	return c.CMECredits >= c.CMERequired && c.CertifiedOn(date)
}

// Status summarises credentials as of the given time
func (c Credentials) Status(asOf time.Time) CredentialStatus {
	if !c.CertifiedOn(asOf) || c.CertExpiry.Sub(DateOf(asOf)) < credentialWarningWindow {
		return CredentialActionRequired
	}
	if c.CMECredits < c.CMERequired {
		return CredentialCMENeeded
	}
	return CredentialCompliant
}

// CallHistory holds workload counters used for burden balancing
type CallHistory struct {
	Last30Days      int `validate:"gte=0"`
	YearTotal       int `validate:"gte=0"`
	WeekendCallsYTD int `validate:"gte=0"`
	NightCallsYTD   int `validate:"gte=0"`
}

// Preferences holds a radiologist's bidding and availability preferences
type Preferences struct {
	BiddingOptIn    bool
	MaxAutoBid      int `validate:"gte=0"`
	PreferredMode   PreferredMode
	BlackoutDates   []string
	BlackoutRules   []string
	MaxWeekendCalls int `validate:"gte=0"`
}

// Radiologist is read-only reference data owned by the directory
type Radiologist struct {
	ID           int      `validate:"gt=0"`
	Name         string   `validate:"required"`
	Email        string   `validate:"omitempty,email"`
	Subspecialty string   `validate:"required"`
	Locations    []string `validate:"min=1,dive,required"`
	Credentials  Credentials
	CallHistory  CallHistory
	Preferences  Preferences
}

// WorksAt reports whether the radiologist holds privileges at the location
func (r Radiologist) WorksAt(location string) bool {
	return slices.Contains(r.Locations, location)
}

// Validate checks field constraints, blackout date syntax and blackout rule syntax
func (r Radiologist) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("radiologist %d validation failed: %w", r.ID, err)
	}
	for _, d := range r.Preferences.BlackoutDates {
		if _, err := ParseDate(d); err != nil {
			return fmt.Errorf("radiologist %d blackout date: %w", r.ID, err)
		}
	}
	for i, rule := range r.Preferences.BlackoutRules {
		opt, err := rrule.StrToROption(rule)
		if err != nil {
			return fmt.Errorf("radiologist %d invalid blackout rule [%d]: %w", r.ID, i, err)
		}
		// undated rules are anchored to each shift's year, which would restart a COUNT or UNTIL yearly
		if opt.Dtstart.IsZero() && (opt.Count > 0 || !opt.Until.IsZero()) {
			return fmt.Errorf("radiologist %d invalid blackout rule [%d]: COUNT and UNTIL need a DTSTART", r.ID, i)
		}
	}
	if r.Preferences.PreferredMode != "" {
		switch r.Preferences.PreferredMode {
		case PreferSmartDistribution, PreferBidding, PreferEither:
		default:
			return fmt.Errorf("radiologist %d unknown preferred mode %q", r.ID, r.Preferences.PreferredMode)
		}
	}
	return nil
}

// Staffing is the required head count per shift type at a location
type Staffing struct {
	WeekdayDay   int `yaml:"weekdayDay" validate:"gte=0"`
	WeekdayNight int `yaml:"weekdayNight" validate:"gte=0"`
	WeekendDay   int `yaml:"weekendDay" validate:"gte=0"`
	WeekendNight int `yaml:"weekendNight" validate:"gte=0"`
}

// For returns the required head count for the shift type
func (s Staffing) For(t ShiftType) int {
	switch t {
	case ShiftWeekdayDay:
		return s.WeekdayDay
	case ShiftWeekdayNight:
		return s.WeekdayNight
	case ShiftWeekendDay:
		return s.WeekendDay
	case ShiftWeekendNight:
		return s.WeekendNight
	}
	return 0
}

// Location is a reading site with its staffing requirements
type Location struct {
	Name       string `validate:"required"`
	Address    string
	Modalities []string
	Staffing   Staffing
}

func (l Location) Validate() error {
	if err := validate.Struct(l); err != nil {
		return fmt.Errorf("location %q validation failed: %w", l.Name, err)
	}
	return nil
}
