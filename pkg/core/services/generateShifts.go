package services

import (
	"context"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
	"go.uber.org/zap"

	"github.com/jakechorley/radflow/internal/config"
	"github.com/jakechorley/radflow/pkg/core/model"
)

// GenerateResult lists the shifts created by GenerateShifts
type GenerateResult struct {
	Created []model.Shift
	// Existing counts shifts that were already registered and so not created again
	Existing int
}

type slotKey struct {
	date         string
	shiftType    model.ShiftType
	location     string
	subspecialty string
}

// GenerateShifts expands each template's recurrence over [from, to] and creates one shift per
// required head count at every matching location. Slots that already have enough shifts are
// skipped, so re-running over the same range creates nothing new.
func GenerateShifts(ctx context.Context, engine *Engine, templates []config.ShiftTemplate, from, to time.Time, logger *zap.Logger) (*GenerateResult, error) {
	from, to = model.DateOf(from), model.DateOf(to)
	if to.Before(from) {
		return nil, fmt.Errorf("end date %s is before start date %s", to.Format(model.DateLayout), from.Format(model.DateLayout))
	}
	if len(templates) == 0 {
		return nil, fmt.Errorf("no shift templates configured")
	}

	logger.Debug("Generating shifts",
		zap.String("from", from.Format(model.DateLayout)),
		zap.String("to", to.Format(model.DateLayout)),
		zap.Int("templates", len(templates)))

	locations, err := engine.Directory().ListLocations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}

	existing := make(map[slotKey]int)
	for _, shift := range engine.ListShifts(ctx) {
		existing[keyFor(shift.Date, shift.Type, shift.Location, shift.Subspecialty)]++
	}

	result := &GenerateResult{}
	for i, tmpl := range templates {
		dates, err := occurrences(tmpl.RRule, from, to)
		if err != nil {
			return nil, fmt.Errorf("shift template %q: %w", tmpl.Name, err)
		}
		mode, err := model.ParseAssignmentMode(tmpl.Mode)
		if err != nil {
			return nil, fmt.Errorf("shift template %q: %w", tmpl.Name, err)
		}

		targets, err := templateLocations(tmpl, locations)
		if err != nil {
			return nil, fmt.Errorf("shift template %q: %w", tmpl.Name, err)
		}

		logger.Debug("Expanded shift template",
			zap.Int("index", i),
			zap.String("name", tmpl.Name),
			zap.Int("occurrences", len(dates)),
			zap.Int("locations", len(targets)))

		for _, date := range dates {
			shiftType := model.ShiftTypeFor(date, tmpl.Night)
			for _, loc := range targets {
				spec := model.ShiftSpec{
					Date:             date,
					Type:             shiftType,
					Location:         loc.Name,
					Subspecialty:     tmpl.Subspecialty,
					Duration:         time.Duration(tmpl.DurationHours) * time.Hour,
					BaseCompensation: tmpl.BaseCompensation,
					Mode:             mode,
					Priority:         model.Priority(tmpl.Priority),
				}
				if err := spec.Validate(); err != nil {
					return nil, fmt.Errorf("shift template %q: %w", tmpl.Name, err)
				}

				key := keyFor(spec.Date, spec.Type, spec.Location, spec.Subspecialty)
				for need := loc.Staffing.For(shiftType); need > 0; need-- {
					if existing[key] > 0 {
						existing[key]--
						result.Existing++
						continue
					}
					shift, err := engine.CreateShift(ctx, spec)
					if err != nil {
						return result, fmt.Errorf("failed to create shift for %s at %s: %w", date.Format(model.DateLayout), loc.Name, err)
					}
					result.Created = append(result.Created, shift)
				}
			}
		}
	}

	logger.Info("Generated shifts",
		zap.Int("created", len(result.Created)),
		zap.Int("existing", result.Existing))
	return result, nil
}

// occurrences returns the rule's days in [from, to]. Rules without DTSTART start at from.
func occurrences(rule string, from, to time.Time) ([]time.Time, error) {
	opt, err := rrule.StrToROption(rule)
	if err != nil {
		return nil, fmt.Errorf("invalid rrule: %w", err)
	}
	if opt.Dtstart.IsZero() {
		opt.Dtstart = from
	}
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("invalid rrule: %w", err)
	}

	var days []time.Time
	for _, t := range r.Between(from, to.Add(24*time.Hour-time.Nanosecond), true) {
		days = append(days, model.DateOf(t))
	}
	return days, nil
}

// templateLocations resolves the template's location names; an empty list means every location
func templateLocations(tmpl config.ShiftTemplate, all []model.Location) ([]model.Location, error) {
	if len(tmpl.Locations) == 0 {
		return all, nil
	}
	byName := make(map[string]model.Location, len(all))
	for _, loc := range all {
		byName[loc.Name] = loc
	}
	out := make([]model.Location, 0, len(tmpl.Locations))
	for _, name := range tmpl.Locations {
		loc, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", model.ErrLocationNotFound, name)
		}
		out = append(out, loc)
	}
	return out, nil
}

func keyFor(date time.Time, shiftType model.ShiftType, location, subspecialty string) slotKey {
	return slotKey{
		date:         date.Format(model.DateLayout),
		shiftType:    shiftType,
		location:     location,
		subspecialty: subspecialty,
	}
}
