package eligibility

import (
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/jakechorley/radflow/pkg/core/model"
)

// Purpose selects which rules apply
type Purpose int

const (
	// Assignment is a direct smart-distribution assignment
	Assignment Purpose = iota
	// Bidding additionally requires the radiologist to have opted in to bidding
	Bidding
)

func (p Purpose) String() string {
	if p == Bidding {
		return "bidding"
	}
	return "assignment"
}

// Rule is one eligibility condition
type Rule interface {
	Name() string
	Applies(purpose Purpose) bool
	Allows(shift model.Shift, rad model.Radiologist) bool
}

// Filter evaluates a fixed rule set. It holds no mutable state and is safe for concurrent use.
type Filter struct {
	rules []Rule
}

// DefaultRules are the department's eligibility rules in evaluation order
func DefaultRules() []Rule {
	return []Rule{
		SubspecialtyRule{},
		LocationRule{},
		BlackoutRule{},
		ComplianceRule{},
		WeekendCapRule{},
		BiddingOptInRule{},
	}
}

func New(rules ...Rule) *Filter {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Filter{rules: rules}
}

// Eligible reports whether the radiologist satisfies every rule for the purpose
func (f *Filter) Eligible(shift model.Shift, rad model.Radiologist, purpose Purpose) bool {
	for _, rule := range f.rules {
		if rule.Applies(purpose) && !rule.Allows(shift, rad) {
			return false
		}
	}
	return true
}

// Explain returns the names of the rules the radiologist fails, empty when eligible
func (f *Filter) Explain(shift model.Shift, rad model.Radiologist, purpose Purpose) []string {
	var failed []string
	for _, rule := range f.rules {
		if rule.Applies(purpose) && !rule.Allows(shift, rad) {
			failed = append(failed, rule.Name())
		}
	}
	return failed
}

// Filter returns the eligible radiologists ordered by ascending id
func (f *Filter) Filter(shift model.Shift, rads []model.Radiologist, purpose Purpose) []model.Radiologist {
	var eligible []model.Radiologist
	for _, rad := range rads {
		if f.Eligible(shift, rad, purpose) {
			eligible = append(eligible, rad)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].ID < eligible[j].ID
	})
	return eligible
}

// SubspecialtyRule requires a matching subspecialty unless the shift accepts any
type SubspecialtyRule struct{}

func (SubspecialtyRule) Name() string          { return "subspecialty" }
func (SubspecialtyRule) Applies(Purpose) bool { return true }

func (SubspecialtyRule) Allows(shift model.Shift, rad model.Radiologist) bool {
	return shift.Subspecialty == "" || shift.Subspecialty == model.SubspecialtyAny || shift.Subspecialty == rad.Subspecialty
}

// LocationRule requires privileges at the shift's location
type LocationRule struct{}

func (LocationRule) Name() string          { return "location" }
func (LocationRule) Applies(Purpose) bool { return true }

func (LocationRule) Allows(shift model.Shift, rad model.Radiologist) bool {
	return rad.WorksAt(shift.Location)
}

// BlackoutRule excludes shift dates listed as blackout dates or produced by a blackout recurrence
type BlackoutRule struct{}

func (BlackoutRule) Name() string          { return "blackout" }
func (BlackoutRule) Applies(Purpose) bool { return true }

func (BlackoutRule) Allows(shift model.Shift, rad model.Radiologist) bool {
	day := model.DateOf(shift.Date)
	for _, d := range rad.Preferences.BlackoutDates {
		blackout, err := model.ParseDate(d)
		if err == nil && blackout.Equal(day) {
			return false
		}
	}
	for _, rule := range rad.Preferences.BlackoutRules {
		if recursOn(rule, day) {
			return false
		}
	}
	return true
}

// recursOn reports whether the recurrence produces an occurrence on the given day. Rules without
// DTSTART are anchored at the start of the shift's year so BYDAY and BYMONTHDAY rules apply.
func recursOn(rule string, day time.Time) bool {
	opt, err := rrule.StrToROption(rule)
	if err != nil {
		return false
	}
	if opt.Dtstart.IsZero() {
		opt.Dtstart = time.Date(day.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	}
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return false
	}
	occurrences := r.Between(day, day.Add(24*time.Hour), true)
	for _, o := range occurrences {
		if model.DateOf(o).Equal(day) {
			return true
		}
	}
	return false
}

// ComplianceRule requires CME credits to be met and the certification to be valid on the shift date
type ComplianceRule struct{}

func (ComplianceRule) Name() string          { return "compliance" }
func (ComplianceRule) Applies(Purpose) bool { return true }

func (ComplianceRule) Allows(shift model.Shift, rad model.Radiologist) bool {
	return rad.Credentials.Compliant(shift.Date)
}

// WeekendCapRule stops assigning weekend shifts to a radiologist who has reached their own cap on
// weekend calls this year. Bidding is voluntary, so it does not apply there.
type WeekendCapRule struct{}

func (WeekendCapRule) Name() string { return "weekend_cap" }

func (WeekendCapRule) Applies(purpose Purpose) bool { return purpose == Assignment }

func (WeekendCapRule) Allows(shift model.Shift, rad model.Radiologist) bool {
	limit := rad.Preferences.MaxWeekendCalls
	return !shift.Type.IsWeekend() || limit == 0 || rad.CallHistory.WeekendCallsYTD < limit
}

// BiddingOptInRule requires bidders to have opted in
type BiddingOptInRule struct{}

func (BiddingOptInRule) Name() string { return "bidding_opt_in" }

func (BiddingOptInRule) Applies(purpose Purpose) bool { return purpose == Bidding }

func (BiddingOptInRule) Allows(_ model.Shift, rad model.Radiologist) bool {
	return rad.Preferences.BiddingOptIn
}
