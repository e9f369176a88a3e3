package model

import (
	"fmt"
	"time"
)

// ShiftSpec is the validated input for creating a shift
type ShiftSpec struct {
	Date             time.Time     `validate:"required"`
	Type             ShiftType     `validate:"required"`
	Location         string        `validate:"required"`
	Subspecialty     string
	Duration         time.Duration `validate:"gt=0"`
	BaseCompensation int           `validate:"gte=0"`
	Mode             AssignmentMode
	Priority         Priority
}

// Validate checks the spec and fills defaults (subspecialty "Any", priority Normal)
func (s *ShiftSpec) Validate() error {
	if s.Subspecialty == "" {
		s.Subspecialty = SubspecialtyAny
	}
	if s.Priority == "" {
		s.Priority = PriorityNormal
	}
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidShift, err)
	}
	if !s.Type.IsValid() {
		return fmt.Errorf("%w: unknown shift type %q", ErrInvalidShift, s.Type)
	}
	if s.Mode != "" && !s.Mode.IsValid() {
		return fmt.Errorf("%w: unknown assignment mode %q", ErrInvalidShift, s.Mode)
	}
	if !s.Priority.IsValid() {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidShift, s.Priority)
	}
	s.Date = DateOf(s.Date)
	return nil
}

// NewShift builds an Open shift from a validated spec
func NewShift(id string, spec ShiftSpec, now time.Time) Shift {
	return Shift{
		ID:               id,
		Date:             spec.Date,
		Type:             spec.Type,
		Location:         spec.Location,
		Subspecialty:     spec.Subspecialty,
		Duration:         spec.Duration,
		BaseCompensation: spec.BaseCompensation,
		Mode:             spec.Mode,
		Status:           StatusOpen,
		Priority:         spec.Priority,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}
