package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/radflow/pkg/core/allocator"
	"github.com/jakechorley/radflow/pkg/core/auction"
	"github.com/jakechorley/radflow/pkg/core/eligibility"
	"github.com/jakechorley/radflow/pkg/core/model"
	"github.com/jakechorley/radflow/pkg/core/registry"
	"github.com/jakechorley/radflow/pkg/core/reports"
	"github.com/jakechorley/radflow/pkg/notify"
)

// runAttempts bounds how often Run re-reads a shift after losing a status race
const runAttempts = 3

// Directory is the read-only reference data the engine consults
type Directory interface {
	GetRadiologist(ctx context.Context, id int) (model.Radiologist, error)
	GetLocation(ctx context.Context, name string) (model.Location, error)
	ListRadiologists(ctx context.Context) ([]model.Radiologist, error)
	ListLocations(ctx context.Context) ([]model.Location, error)
}

// Outcome is what a single Run did to a shift
type Outcome string

const (
	OutcomeNoop          Outcome = "no_op"
	OutcomeAssigned      Outcome = "assigned"
	OutcomeBiddingOpened Outcome = "bidding_opened"
	OutcomeCascaded      Outcome = "cascaded_to_bidding"
	OutcomeExpired       Outcome = "expired"
)

type RunResult struct {
	Outcome Outcome
	Shift   model.Shift
	// Candidate is set when smart distribution assigned the shift
	Candidate *allocator.Candidate
}

// Engine is the mode orchestrator and the single entry point the CLI and API use
type Engine struct {
	registry  *registry.Registry
	directory Directory
	filter    *eligibility.Filter
	assigner  *allocator.Assigner
	auction   *auction.Auction
	notifier  notify.Notifier
	logger    *zap.Logger
}

func NewEngine(
	reg *registry.Registry,
	directory Directory,
	filter *eligibility.Filter,
	notifier notify.Notifier,
	approver notify.ApprovalRequester,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		registry:  reg,
		directory: directory,
		filter:    filter,
		assigner:  allocator.New(reg, directory, filter, logger),
		auction:   auction.New(reg, directory, filter, notifier, approver, logger),
		notifier:  notifier,
		logger:    logger,
	}
}

func (e *Engine) Registry() *registry.Registry { return e.registry }

func (e *Engine) Directory() Directory { return e.directory }

// CreateShift checks the location against the directory before registering the shift
func (e *Engine) CreateShift(ctx context.Context, spec model.ShiftSpec) (model.Shift, error) {
	if _, err := e.directory.GetLocation(ctx, spec.Location); err != nil {
		return model.Shift{}, err
	}

	id, err := e.registry.CreateShift(ctx, spec)
	if err != nil {
		return model.Shift{}, err
	}
	return e.registry.GetShift(ctx, id)
}

func (e *Engine) GetShift(ctx context.Context, id string) (model.Shift, error) {
	return e.registry.GetShift(ctx, id)
}

func (e *Engine) ListShifts(ctx context.Context, statuses ...model.ShiftStatus) []model.Shift {
	return e.registry.ListShifts(ctx, statuses...)
}

// Run drives one shift as far as its assignment mode allows. Shifts that are finished, waiting
// on an approver or already in an auction are left alone, so repeated calls are safe.
func (e *Engine) Run(ctx context.Context, id string) (RunResult, error) {
	var lastErr error
	for attempt := 0; attempt < runAttempts; attempt++ {
		result, err := e.run(ctx, id)
		if err == nil || !errors.Is(err, model.ErrInvalidTransition) {
			return result, err
		}
		lastErr = err
		e.logger.Debug("Shift changed underneath run, retrying",
			zap.String("shift_id", id), zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return RunResult{}, lastErr
}

func (e *Engine) run(ctx context.Context, id string) (RunResult, error) {
	shift, err := e.registry.GetShift(ctx, id)
	if err != nil {
		return RunResult{}, err
	}
	policy := e.registry.Policy()
	mode := policy.ResolveMode(shift)

	switch shift.Status {
	case model.StatusOpen:
		if mode == model.ModeBidding {
			opened, err := e.auction.Open(ctx, id, policy.BiddingWindow())
			if err != nil {
				return RunResult{}, err
			}
			return RunResult{Outcome: OutcomeBiddingOpened, Shift: opened}, nil
		}
		err := e.registry.Do(ctx, id, func(tx *registry.Tx) error {
			if err := tx.Transition(model.StatusOpen, model.StatusSmartAssignPending); err != nil {
				return err
			}
			tx.MarkSmartDistributionTried()
			return nil
		})
		if err != nil {
			return RunResult{}, err
		}
		return e.distribute(ctx, id, mode)

	case model.StatusSmartAssignPending:
		return e.distribute(ctx, id, mode)

	case model.StatusCascadedToBidding:
		return e.cascade(ctx, id)
	}

	e.logger.Debug("Nothing to run", zap.String("shift_id", id), zap.String("status", string(shift.Status)))
	return RunResult{Outcome: OutcomeNoop, Shift: shift}, nil
}

// distribute runs smart distribution on a shift in Smart Assign Pending. Hybrid shifts with
// nobody eligible move to bidding when the policy allows; everything else expires.
func (e *Engine) distribute(ctx context.Context, id string, mode model.AssignmentMode) (RunResult, error) {
	candidate, err := e.assigner.Assign(ctx, id)
	if err == nil {
		shift, err := e.registry.GetShift(ctx, id)
		if err != nil {
			return RunResult{}, err
		}
		e.notifier.Notify(candidate.Radiologist.ID, notify.NewEvent(notify.EventShiftAssigned, shift, 0))
		return RunResult{Outcome: OutcomeAssigned, Shift: shift, Candidate: &candidate}, nil
	}
	if !errors.Is(err, model.ErrNoEligibleRadiologist) {
		return RunResult{}, err
	}

	if mode == model.ModeHybrid && e.registry.Policy().CascadeToBidding {
		e.logger.Info("No eligible radiologist, cascading to bidding", zap.String("shift_id", id))
		if err := e.registry.Transition(ctx, id, model.StatusSmartAssignPending, model.StatusCascadedToBidding); err != nil {
			return RunResult{}, err
		}
		return e.cascade(ctx, id)
	}

	e.logger.Warn("No eligible radiologist, shift expired",
		zap.String("shift_id", id), zap.String("mode", string(mode)))
	if err := e.registry.Transition(ctx, id, model.StatusSmartAssignPending, model.StatusExpired); err != nil {
		return RunResult{}, err
	}
	shift, err := e.registry.GetShift(ctx, id)
	if err != nil {
		return RunResult{}, err
	}
	return RunResult{Outcome: OutcomeExpired, Shift: shift}, nil
}

func (e *Engine) cascade(ctx context.Context, id string) (RunResult, error) {
	opened, err := e.auction.Open(ctx, id, e.registry.Policy().CascadeWindow())
	if err != nil {
		return RunResult{}, err
	}
	return RunResult{Outcome: OutcomeCascaded, Shift: opened}, nil
}

// OpenBidding starts an auction directly, bypassing mode resolution. A zero window uses the
// department default.
func (e *Engine) OpenBidding(ctx context.Context, id string, window time.Duration) (model.Shift, error) {
	return e.auction.Open(ctx, id, window)
}

func (e *Engine) PlaceBid(ctx context.Context, id string, bidderID, amount int) (model.Shift, error) {
	return e.auction.PlaceBid(ctx, id, bidderID, amount)
}

func (e *Engine) RegisterAutoBid(ctx context.Context, id string, radiologistID, ceiling int) (model.Shift, error) {
	return e.auction.RegisterAutoBid(ctx, id, radiologistID, ceiling)
}

func (e *Engine) Close(ctx context.Context, id string, force bool) (auction.CloseResult, model.Shift, error) {
	return e.auction.Close(ctx, id, force)
}

func (e *Engine) Resolve(ctx context.Context, id string, approved bool) (model.Shift, error) {
	return e.auction.Resolve(ctx, id, approved)
}

// Withdraw cancels a shift from any non-terminal state
func (e *Engine) Withdraw(ctx context.Context, id string) (model.Shift, error) {
	var withdrawn model.Shift
	err := e.registry.Do(ctx, id, func(tx *registry.Tx) error {
		from := tx.Shift().Status
		if from.IsTerminal() {
			return &model.TransitionError{ShiftID: id, From: from, To: model.StatusExpired, Actual: from}
		}
		if err := tx.Transition(from, model.StatusExpired); err != nil {
			return err
		}
		withdrawn = tx.Shift()
		return nil
	})
	if err != nil {
		return model.Shift{}, err
	}

	e.logger.Info("Shift withdrawn", zap.String("shift_id", id))
	if withdrawn.CurrentHighBidder != nil {
		e.notifier.Notify(*withdrawn.CurrentHighBidder, notify.NewEvent(notify.EventShiftExpired, withdrawn, withdrawn.WinningAmount()))
	}
	return withdrawn, nil
}

// EligibilityReport explains whether a radiologist may take or bid on a shift
type EligibilityReport struct {
	ShiftID          string
	RadiologistID    int
	Radiologist      string
	Assignable       bool
	CanBid           bool
	FailedAssignment []string
	FailedBidding    []string
	CredentialStatus model.CredentialStatus
}

func (e *Engine) Eligibility(ctx context.Context, shiftID string, radiologistID int) (EligibilityReport, error) {
	shift, err := e.registry.GetShift(ctx, shiftID)
	if err != nil {
		return EligibilityReport{}, err
	}
	rad, err := e.directory.GetRadiologist(ctx, radiologistID)
	if err != nil {
		return EligibilityReport{}, err
	}

	failedAssignment := e.filter.Explain(shift, rad, eligibility.Assignment)
	failedBidding := e.filter.Explain(shift, rad, eligibility.Bidding)
	return EligibilityReport{
		ShiftID:          shiftID,
		RadiologistID:    radiologistID,
		Radiologist:      rad.Name,
		Assignable:       len(failedAssignment) == 0,
		CanBid:           len(failedBidding) == 0,
		FailedAssignment: failedAssignment,
		FailedBidding:    failedBidding,
		CredentialStatus: rad.Credentials.Status(shift.Date),
	}, nil
}

// Candidates ranks the radiologists smart distribution would consider for the shift
func (e *Engine) Candidates(ctx context.Context, shiftID string) ([]allocator.Candidate, error) {
	candidates, err := e.assigner.Rank(ctx, shiftID)
	if err != nil {
		return nil, fmt.Errorf("failed to rank candidates: %w", err)
	}
	return candidates, nil
}

// Report summarises bidding activity, workload spread and fill costs over the period
func (e *Engine) Report(ctx context.Context, period reports.Period) (reports.Report, error) {
	rads, err := e.directory.ListRadiologists(ctx)
	if err != nil {
		return reports.Report{}, fmt.Errorf("failed to list radiologists: %w", err)
	}
	shifts := e.registry.ListShifts(ctx)
	return reports.Build(shifts, rads, period, e.registry.Policy().TargetCallsPerPeriod), nil
}
