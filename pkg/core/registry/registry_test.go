package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/radflow/pkg/core/model"
	"github.com/jakechorley/radflow/pkg/db"
)

// flakyStore fails SaveShift while fail is set
type flakyStore struct {
	*db.MemoryStore
	fail  atomic.Bool
	saves atomic.Int32
}

func (f *flakyStore) SaveShift(ctx context.Context, change db.ShiftChange) error {
	f.saves.Add(1)
	if f.fail.Load() {
		return errors.New("connection reset")
	}
	return f.MemoryStore.SaveShift(ctx, change)
}

var testNow = time.Date(2025, 2, 20, 9, 0, 0, 0, time.UTC)

func newTestRegistry(t *testing.T) (*Registry, *flakyStore) {
	t.Helper()
	store := &flakyStore{MemoryStore: db.NewMemoryStore()}
	var n atomic.Int32
	r := New(store, model.DefaultPolicy(), zap.NewNop(),
		WithClock(func() time.Time { return testNow }),
		WithIDGenerator(func() string { return fmt.Sprintf("id-%03d", n.Add(1)) }))
	return r, store
}

func weekendSpec(day string) model.ShiftSpec {
	d, _ := model.ParseDate(day)
	return model.ShiftSpec{
		Date:             d,
		Type:             model.ShiftWeekendDay,
		Location:         "Main Hospital",
		Subspecialty:     "Neuroradiology",
		Duration:         12 * time.Hour,
		BaseCompensation: 1800,
	}
}

func createBiddingShift(t *testing.T, r *Registry) string {
	t.Helper()
	ctx := context.Background()
	id, err := r.CreateShift(ctx, weekendSpec("2025-03-01"))
	require.NoError(t, err)
	require.NoError(t, r.Do(ctx, id, func(tx *Tx) error {
		if err := tx.Transition(model.StatusOpen, model.StatusActiveBidding); err != nil {
			return err
		}
		tx.SetBiddingWindow(24 * time.Hour)
		return nil
	}))
	return id
}

func TestCreateShift(t *testing.T) {
	r, store := newTestRegistry(t)
	ctx := context.Background()

	id, err := r.CreateShift(ctx, weekendSpec("2025-03-01"))
	require.NoError(t, err)

	shift, err := r.GetShift(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusOpen, shift.Status)
	assert.Equal(t, model.PriorityNormal, shift.Priority)
	assert.Equal(t, testNow, shift.CreatedAt)

	persisted, err := store.ListShifts(ctx)
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, id, persisted[0].ID)
}

func TestCreateShift_InvalidSpec(t *testing.T) {
	r, _ := newTestRegistry(t)

	spec := weekendSpec("2025-03-01")
	spec.Location = ""
	_, err := r.CreateShift(context.Background(), spec)
	assert.ErrorIs(t, err, model.ErrInvalidShift)
}

func TestGetShift_NotFound(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.GetShift(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrShiftNotFound)
}

func TestGetShift_ReturnsCopy(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	id := createBiddingShift(t, r)
	_, err := r.RecordBid(ctx, id, 1, 2200)
	require.NoError(t, err)

	shift, err := r.GetShift(ctx, id)
	require.NoError(t, err)
	shift.Bids[0].Amount = 1
	shift.Status = model.StatusFilled

	again, err := r.GetShift(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2200, again.Bids[0].Amount)
	assert.Equal(t, model.StatusActiveBidding, again.Status)
}

func TestListShifts_SortedAndFiltered(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	later, err := r.CreateShift(ctx, weekendSpec("2025-03-08"))
	require.NoError(t, err)
	earlier, err := r.CreateShift(ctx, weekendSpec("2025-03-01"))
	require.NoError(t, err)
	require.NoError(t, r.Transition(ctx, later, model.StatusOpen, model.StatusExpired))

	all := r.ListShifts(ctx)
	require.Len(t, all, 2)
	assert.Equal(t, earlier, all[0].ID)
	assert.Equal(t, later, all[1].ID)

	open := r.ListShifts(ctx, model.StatusOpen)
	require.Len(t, open, 1)
	assert.Equal(t, earlier, open[0].ID)
}

func TestTransition_CompareAndSwap(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	id, err := r.CreateShift(ctx, weekendSpec("2025-03-01"))
	require.NoError(t, err)

	require.NoError(t, r.Transition(ctx, id, model.StatusOpen, model.StatusSmartAssignPending))

	err = r.Transition(ctx, id, model.StatusOpen, model.StatusActiveBidding)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	err = r.Transition(ctx, id, model.StatusSmartAssignPending, model.StatusActiveBidding)
	assert.ErrorIs(t, err, model.ErrInvalidTransition, "edge not in lifecycle")

	shift, err := r.GetShift(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSmartAssignPending, shift.Status)
}

func TestTransition_ConcurrentOnlyOneWins(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	id, err := r.CreateShift(ctx, weekendSpec("2025-03-01"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	var wins, conflicts atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := r.Transition(ctx, id, model.StatusOpen, model.StatusActiveBidding)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, model.ErrInvalidTransition):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(19), conflicts.Load())
}

func TestRecordBid(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	id := createBiddingShift(t, r)

	_, err := r.RecordBid(ctx, id, 1, 2200)
	require.NoError(t, err)

	_, err = r.RecordBid(ctx, id, 2, 2249)
	var bidErr *model.BidError
	require.ErrorAs(t, err, &bidErr)
	assert.Equal(t, 2250, bidErr.Minimum)

	_, err = r.RecordBid(ctx, id, 2, 2250)
	require.NoError(t, err)

	shift, err := r.GetShift(ctx, id)
	require.NoError(t, err)
	require.Len(t, shift.Bids, 2)
	assert.Equal(t, 2250, *shift.CurrentHighBid)
	assert.Equal(t, 2, *shift.CurrentHighBidder)
	assert.True(t, shift.Bids[1].PlacedAt.After(shift.Bids[0].PlacedAt), "timestamps strictly increase under a frozen clock")
}

func TestRecordBid_NotBidding(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	id, err := r.CreateShift(ctx, weekendSpec("2025-03-01"))
	require.NoError(t, err)

	_, err = r.RecordBid(ctx, id, 1, 2200)
	assert.ErrorIs(t, err, model.ErrShiftNotBidding)
}

func TestDo_StoreFailureLeavesShiftUnchanged(t *testing.T) {
	r, store := newTestRegistry(t)
	ctx := context.Background()
	id := createBiddingShift(t, r)

	store.fail.Store(true)
	_, err := r.RecordBid(ctx, id, 1, 2200)
	require.ErrorContains(t, err, "failed to persist shift")

	shift, err := r.GetShift(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, shift.Bids)
	assert.Nil(t, shift.CurrentHighBid)

	store.fail.Store(false)
	_, err = r.RecordBid(ctx, id, 1, 2200)
	require.NoError(t, err)
}

func TestDo_ErrorDiscardsWorkingCopy(t *testing.T) {
	r, store := newTestRegistry(t)
	ctx := context.Background()
	id := createBiddingShift(t, r)
	saves := store.saves.Load()

	err := r.Do(ctx, id, func(tx *Tx) error {
		if _, err := tx.RecordBid(1, 2200, false); err != nil {
			return err
		}
		return model.ErrPolicyViolation
	})
	require.ErrorIs(t, err, model.ErrPolicyViolation)
	assert.Equal(t, saves, store.saves.Load(), "nothing persisted")

	shift, err := r.GetShift(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, shift.Bids)
}

func TestAddAutoBid_ReplacesCeilingKeepsOrder(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	id := createBiddingShift(t, r)

	require.NoError(t, r.Do(ctx, id, func(tx *Tx) error {
		tx.AddAutoBid(1, 2800)
		tx.AddAutoBid(2, 3000)
		tx.AddAutoBid(1, 2900)
		return nil
	}))

	shift, err := r.GetShift(ctx, id)
	require.NoError(t, err)
	require.Len(t, shift.AutoBids, 2)
	assert.Equal(t, 1, shift.AutoBids[0].RadiologistID)
	assert.Equal(t, 2900, shift.AutoBids[0].Ceiling)
	assert.Equal(t, 1, shift.AutoBids[0].Seq)
	assert.Equal(t, 2, shift.AutoBids[1].Seq)
}

func TestLoad_Rehydrates(t *testing.T) {
	r, store := newTestRegistry(t)
	ctx := context.Background()
	id := createBiddingShift(t, r)
	_, err := r.RecordBid(ctx, id, 1, 2300)
	require.NoError(t, err)
	require.NoError(t, r.Do(ctx, id, func(tx *Tx) error {
		tx.Assign(1, nil)
		return tx.Transition(model.StatusActiveBidding, model.StatusFilled)
	}))
	require.NoError(t, r.Close())

	reloaded := New(store, model.DefaultPolicy(), zap.NewNop())
	require.NoError(t, reloaded.Load(ctx))

	shift, err := reloaded.GetShift(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFilled, shift.Status)
	require.Len(t, shift.Bids, 1)
	assert.Equal(t, 2300, reloaded.BiddingSpend(shift.Date))
}

func TestBiddingSpend_CountsFilledBids(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	id := createBiddingShift(t, r)
	_, err := r.RecordBid(ctx, id, 1, 2600)
	require.NoError(t, err)

	march := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, r.BiddingSpend(march))

	require.NoError(t, r.Transition(ctx, id, model.StatusActiveBidding, model.StatusFilled))
	assert.Equal(t, 2600, r.BiddingSpend(march))
	assert.Equal(t, 0, r.BiddingSpend(march.AddDate(0, 1, 0)))
}

func fillWithReservation(r *Registry, id string, amount, budget int) (bool, error) {
	reserved := false
	err := r.Do(context.Background(), id, func(tx *Tx) error {
		if reserved = tx.ReserveSpend(amount, budget); !reserved {
			return nil
		}
		return tx.Transition(model.StatusActiveBidding, model.StatusFilled)
	})
	return reserved, err
}

func TestReserveSpend(t *testing.T) {
	r, store := newTestRegistry(t)
	ctx := context.Background()
	march := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	first := createBiddingShift(t, r)
	_, err := r.RecordBid(ctx, first, 1, 2800)
	require.NoError(t, err)
	second := createBiddingShift(t, r)
	_, err = r.RecordBid(ctx, second, 2, 2800)
	require.NoError(t, err)

	store.fail.Store(true)
	reserved, err := fillWithReservation(r, first, 2800, 5000)
	assert.True(t, reserved)
	require.Error(t, err)
	assert.Equal(t, 0, r.BiddingSpend(march), "failed save must hand the reservation back")

	store.fail.Store(false)
	reserved, err = fillWithReservation(r, first, 2800, 5000)
	require.NoError(t, err)
	assert.True(t, reserved)
	assert.Equal(t, 2800, r.BiddingSpend(march), "reserved fill is counted once")

	reserved, err = fillWithReservation(r, second, 2800, 5000)
	require.NoError(t, err)
	assert.False(t, reserved)
	shift, err := r.GetShift(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActiveBidding, shift.Status)
	assert.Equal(t, 2800, r.BiddingSpend(march))
}

func TestReserveSpend_ReleasedWhenUnitFails(t *testing.T) {
	r, _ := newTestRegistry(t)
	id := createBiddingShift(t, r)

	err := r.Do(context.Background(), id, func(tx *Tx) error {
		require.True(t, tx.ReserveSpend(2500, 0))
		return errors.New("changed my mind")
	})
	require.Error(t, err)
	assert.Equal(t, 0, r.BiddingSpend(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)))
}

func TestClosedRegistry(t *testing.T) {
	r, store := newTestRegistry(t)
	ctx := context.Background()
	id, err := r.CreateShift(ctx, weekendSpec("2025-03-01"))
	require.NoError(t, err)
	require.NoError(t, r.Close())

	_, err = r.GetShift(ctx, id)
	assert.ErrorIs(t, err, ErrClosed)

	saves := store.saves.Load()
	_, err = r.CreateShift(ctx, weekendSpec("2025-03-08"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, saves, store.saves.Load())

	stored, err := store.ListShifts(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}
