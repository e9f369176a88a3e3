package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jakechorley/radflow/pkg/core/model"
	"github.com/jakechorley/radflow/pkg/db"
)

// ErrClosed is returned by operations on a closed registry
var ErrClosed = errors.New("registry closed")

// Registry is the canonical owner of shifts, bids and auto-bids. Mutations of one shift are
// serialized by that shift's mutex; different shifts proceed in parallel. Every mutation is
// written through to the store before it becomes visible.
type Registry struct {
	store  db.ShiftStore
	policy model.DepartmentPolicy
	logger *zap.Logger
	now    func() time.Time
	newID  func() string

	// mu guards the map only, never a shift
	mu     sync.RWMutex
	shifts map[string]*entry
	closed bool

	// spendMu is only ever taken last
	spendMu sync.Mutex
	spend   map[string]int
}

type entry struct {
	mu    sync.Mutex
	shift model.Shift
}

type Option func(*Registry)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithIDGenerator overrides uuid generation for shift and bid ids
func WithIDGenerator(newID func() string) Option {
	return func(r *Registry) { r.newID = newID }
}

func New(store db.ShiftStore, policy model.DepartmentPolicy, logger *zap.Logger, opts ...Option) *Registry {
	r := &Registry{
		store:  store,
		policy: policy,
		logger: logger,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
		shifts: make(map[string]*entry),
		spend:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load rehydrates the registry from the store
func (r *Registry) Load(ctx context.Context) error {
	shifts, err := r.store.ListShifts(ctx)
	if err != nil {
		return fmt.Errorf("failed to load shifts: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range shifts {
		r.shifts[s.ID] = &entry{shift: s}
		r.recordSpend(model.Shift{}, s)
	}
	r.logger.Info("Loaded shifts", zap.Int("count", len(shifts)))
	return nil
}

// Close stops the registry accepting work
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *Registry) Policy() model.DepartmentPolicy {
	return r.policy
}

func (r *Registry) Now() time.Time {
	return r.now()
}

// CreateShift validates the spec and stores a new Open shift
func (r *Registry) CreateShift(ctx context.Context, spec model.ShiftSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}

	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return "", ErrClosed
	}

	shift := model.NewShift(r.newID(), spec, r.now())
	if err := r.store.SaveShift(ctx, db.ShiftChange{Shift: shift}); err != nil {
		return "", fmt.Errorf("failed to persist shift: %w", err)
	}

	// a Close racing the save still keeps the row, so the shift is published either way
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shifts[shift.ID] = &entry{shift: shift}

	r.logger.Info("Created shift",
		zap.String("shift_id", shift.ID),
		zap.String("date", shift.Date.Format(model.DateLayout)),
		zap.String("type", string(shift.Type)),
		zap.String("location", shift.Location))
	return shift.ID, nil
}

// GetShift returns a copy of the shift
func (r *Registry) GetShift(ctx context.Context, id string) (model.Shift, error) {
	e, err := r.lookup(id)
	if err != nil {
		return model.Shift{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shift.Clone(), nil
}

// ListShifts returns copies of all shifts, optionally restricted to the given statuses,
// ordered by date then id
func (r *Registry) ListShifts(ctx context.Context, statuses ...model.ShiftStatus) []model.Shift {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.shifts))
	for _, e := range r.shifts {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	want := make(map[model.ShiftStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}

	shifts := make([]model.Shift, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		s := e.shift.Clone()
		e.mu.Unlock()
		if len(want) > 0 && !want[s.Status] {
			continue
		}
		shifts = append(shifts, s)
	}

	sort.Slice(shifts, func(i, j int) bool {
		if !shifts[i].Date.Equal(shifts[j].Date) {
			return shifts[i].Date.Before(shifts[j].Date)
		}
		return shifts[i].ID < shifts[j].ID
	})
	return shifts
}

// Transition moves the shift from one status to another if it is currently in from
func (r *Registry) Transition(ctx context.Context, id string, from, to model.ShiftStatus) error {
	return r.Do(ctx, id, func(tx *Tx) error {
		return tx.Transition(from, to)
	})
}

// RecordBid appends a manual bid after checking status and the increment rule
func (r *Registry) RecordBid(ctx context.Context, id string, bidderID, amount int) (model.Bid, error) {
	var bid model.Bid
	err := r.Do(ctx, id, func(tx *Tx) error {
		var err error
		bid, err = tx.RecordBid(bidderID, amount, false)
		return err
	})
	return bid, err
}

// BiddingSpend is the total of winning bids on shifts filled by bidding in the calendar month
// of the given date
func (r *Registry) BiddingSpend(month time.Time) int {
	r.spendMu.Lock()
	defer r.spendMu.Unlock()
	return r.spend[monthKey(month)]
}

// reserveSpend adds amount to the month's bidding spend unless that would take it over budget.
// A budget of zero means no limit.
func (r *Registry) reserveSpend(month time.Time, amount, budget int) bool {
	r.spendMu.Lock()
	defer r.spendMu.Unlock()
	key := monthKey(month)
	if budget > 0 && r.spend[key]+amount > budget {
		return false
	}
	r.spend[key] += amount
	return true
}

func (r *Registry) releaseSpend(month time.Time, amount int) {
	r.spendMu.Lock()
	defer r.spendMu.Unlock()
	r.spend[monthKey(month)] -= amount
}

func (r *Registry) recordSpend(before, after model.Shift) {
	if after.Status != model.StatusFilled || before.Status == model.StatusFilled || after.CurrentHighBid == nil {
		return
	}
	r.spendMu.Lock()
	defer r.spendMu.Unlock()
	r.spend[monthKey(after.Date)] += *after.CurrentHighBid
}

func monthKey(t time.Time) string {
	return t.Format("2006-01")
}

// Do runs fn against a working copy of the shift while holding the shift's lock. The copy is
// persisted and published only when fn returns nil and the store accepts it; otherwise the
// shift is left unchanged.
func (r *Registry) Do(ctx context.Context, id string, fn func(tx *Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e, err := r.lookup(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	tx := &Tx{
		registry:   r,
		shift:      e.shift.Clone(),
		bidsBefore: len(e.shift.Bids),
		now:        r.now(),
	}
	committed := false
	defer func() {
		if !committed && tx.reserved > 0 {
			r.releaseSpend(tx.shift.Date, tx.reserved)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if !tx.dirty {
		return nil
	}

	tx.shift.UpdatedAt = tx.now
	change := db.ShiftChange{
		Shift:       tx.shift.Clone(),
		NewBids:     append([]model.Bid(nil), tx.shift.Bids[tx.bidsBefore:]...),
		NewAutoBids: tx.autoBids,
	}
	if err := r.store.SaveShift(ctx, change); err != nil {
		r.logger.Error("Failed to persist shift, changes discarded",
			zap.String("shift_id", id), zap.Error(err))
		return fmt.Errorf("failed to persist shift %s: %w", id, err)
	}

	if e.shift.Status != tx.shift.Status {
		r.logger.Info("Shift status changed",
			zap.String("shift_id", id),
			zap.String("from", string(e.shift.Status)),
			zap.String("to", string(tx.shift.Status)))
	}
	if tx.reserved == 0 {
		r.recordSpend(e.shift, tx.shift)
	}
	committed = true
	e.shift = tx.shift
	return nil
}

func (r *Registry) lookup(id string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, ErrClosed
	}
	e, ok := r.shifts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrShiftNotFound, id)
	}
	return e, nil
}
