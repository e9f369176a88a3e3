package allocator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jakechorley/radflow/pkg/core/eligibility"
	"github.com/jakechorley/radflow/pkg/core/model"
	"github.com/jakechorley/radflow/pkg/core/registry"
)

// RadiologistLister supplies the radiologist roster
type RadiologistLister interface {
	ListRadiologists(ctx context.Context) ([]model.Radiologist, error)
}

// Assigner fills shifts with the least-burdened eligible radiologist
type Assigner struct {
	registry  *registry.Registry
	directory RadiologistLister
	filter    *eligibility.Filter
	logger    *zap.Logger
}

func New(reg *registry.Registry, directory RadiologistLister, filter *eligibility.Filter, logger *zap.Logger) *Assigner {
	return &Assigner{
		registry:  reg,
		directory: directory,
		filter:    filter,
		logger:    logger,
	}
}

// Rank returns the current candidate order for the shift without changing it
func (a *Assigner) Rank(ctx context.Context, shiftID string) ([]Candidate, error) {
	shift, err := a.registry.GetShift(ctx, shiftID)
	if err != nil {
		return nil, err
	}
	rads, err := a.directory.ListRadiologists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list radiologists: %w", err)
	}
	return Rank(shift, rads, a.filter, a.registry.Policy().Target()), nil
}

// Assign commits the top-ranked radiologist to a shift in Smart Assign Pending and moves it to
// Filled. It returns ErrNoEligibleRadiologist, leaving the shift unchanged, when nobody qualifies.
func (a *Assigner) Assign(ctx context.Context, shiftID string) (Candidate, error) {
	rads, err := a.directory.ListRadiologists(ctx)
	if err != nil {
		return Candidate{}, fmt.Errorf("failed to list radiologists: %w", err)
	}
	target := a.registry.Policy().Target()

	var chosen Candidate
	err = a.registry.Do(ctx, shiftID, func(tx *registry.Tx) error {
		shift := tx.Shift()
		if shift.Status != model.StatusSmartAssignPending {
			return &model.TransitionError{ShiftID: shiftID, From: model.StatusSmartAssignPending, To: model.StatusFilled, Actual: shift.Status}
		}

		candidates := Rank(shift, rads, a.filter, target)
		if len(candidates) == 0 {
			return fmt.Errorf("%w for shift %s", model.ErrNoEligibleRadiologist, shiftID)
		}

		chosen = candidates[0]
		tx.Assign(chosen.Radiologist.ID, &chosen.Burden)
		return tx.Transition(model.StatusSmartAssignPending, model.StatusFilled)
	})
	if err != nil {
		return Candidate{}, err
	}

	a.logger.Info("Assigned shift by smart distribution",
		zap.String("shift_id", shiftID),
		zap.Int("radiologist_id", chosen.Radiologist.ID),
		zap.String("radiologist", chosen.Radiologist.Name),
		zap.Float64("burden", chosen.Burden))
	return chosen, nil
}
