package auction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/radflow/pkg/core/eligibility"
	"github.com/jakechorley/radflow/pkg/core/model"
	"github.com/jakechorley/radflow/pkg/core/registry"
	"github.com/jakechorley/radflow/pkg/db"
	"github.com/jakechorley/radflow/pkg/notify"
)

type mockDirectory struct {
	rads map[int]model.Radiologist
}

func (m *mockDirectory) GetRadiologist(ctx context.Context, id int) (model.Radiologist, error) {
	rad, ok := m.rads[id]
	if !ok {
		return model.Radiologist{}, fmt.Errorf("%w: %d", model.ErrRadiologistNotFound, id)
	}
	return rad, nil
}

func (m *mockDirectory) ListRadiologists(ctx context.Context) ([]model.Radiologist, error) {
	var rads []model.Radiologist
	for _, r := range m.rads {
		rads = append(rads, r)
	}
	return rads, nil
}

type sentEvent struct {
	RadiologistID int
	Event         notify.Event
}

type mockNotifier struct {
	mu   sync.Mutex
	sent []sentEvent
}

func (m *mockNotifier) Notify(radiologistID int, event notify.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentEvent{RadiologistID: radiologistID, Event: event})
}

func (m *mockNotifier) recipients(kind notify.EventKind) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int
	for _, s := range m.sent {
		if s.Event.Kind == kind {
			ids = append(ids, s.RadiologistID)
		}
	}
	return ids
}

type mockApprover struct {
	requests map[string]int
	err      error
}

func (m *mockApprover) RequestApproval(ctx context.Context, shiftID string, amount int) error {
	m.requests[shiftID] = amount
	return m.err
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	reg      *registry.Registry
	auction  *Auction
	dir      *mockDirectory
	notifier *mockNotifier
	approver *mockApprover
	clock    *clock
}

func bidder(id, maxAutoBid int) model.Radiologist {
	expiry, _ := model.ParseDate("2027-01-01")
	return model.Radiologist{
		ID:           id,
		Name:         fmt.Sprintf("Dr. %d", id),
		Subspecialty: "Neuroradiology",
		Locations:    []string{"Main Hospital"},
		Credentials:  model.Credentials{BoardCertified: true, CertExpiry: expiry, CMECredits: 50, CMERequired: 50},
		Preferences:  model.Preferences{BiddingOptIn: true, MaxAutoBid: maxAutoBid},
	}
}

func newFixture(t *testing.T, policy model.DepartmentPolicy) *fixture {
	t.Helper()
	return newFixtureWithStore(t, policy, db.NewMemoryStore())
}

func newFixtureWithStore(t *testing.T, policy model.DepartmentPolicy, store db.ShiftStore) *fixture {
	t.Helper()
	c := &clock{now: time.Date(2025, 2, 20, 9, 0, 0, 0, time.UTC)}
	reg := registry.New(store, policy, zap.NewNop(), registry.WithClock(c.Now))
	dir := &mockDirectory{rads: map[int]model.Radiologist{
		1:  bidder(1, 2800),
		2:  bidder(2, 3000),
		3:  bidder(3, 3200),
		10: bidder(10, 0),
	}}
	n := &mockNotifier{}
	ap := &mockApprover{requests: map[string]int{}}
	return &fixture{
		reg:      reg,
		auction:  New(reg, dir, eligibility.New(), n, ap, zap.NewNop()),
		dir:      dir,
		notifier: n,
		approver: ap,
		clock:    c,
	}
}

func (f *fixture) openShift(t *testing.T, shiftType model.ShiftType) string {
	t.Helper()
	ctx := context.Background()
	d, _ := model.ParseDate("2025-03-01")
	id, err := f.reg.CreateShift(ctx, model.ShiftSpec{
		Date:             d,
		Type:             shiftType,
		Location:         "Main Hospital",
		Subspecialty:     "Neuroradiology",
		Duration:         12 * time.Hour,
		BaseCompensation: 1800,
	})
	require.NoError(t, err)
	_, err = f.auction.Open(ctx, id, 0)
	require.NoError(t, err)
	return id
}

func TestOpen_StartsWindowAndNotifiesBidders(t *testing.T) {
	f := newFixture(t, model.DefaultPolicy())
	id := f.openShift(t, model.ShiftWeekendDay)

	shift, err := f.reg.GetShift(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActiveBidding, shift.Status)
	assert.Nil(t, shift.CurrentHighBid)
	require.NotNil(t, shift.BiddingEndsAt)
	assert.Equal(t, f.clock.Now().Add(24*time.Hour), *shift.BiddingEndsAt)
	assert.ElementsMatch(t, []int{1, 2, 3, 10}, f.notifier.recipients(notify.EventBiddingOpened))
}

func TestOpen_RejectsWrongStatus(t *testing.T) {
	f := newFixture(t, model.DefaultPolicy())
	id := f.openShift(t, model.ShiftWeekendDay)

	_, err := f.auction.Open(context.Background(), id, 0)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestPlaceBid_BelowFloor(t *testing.T) {
	f := newFixture(t, model.DefaultPolicy())
	id := f.openShift(t, model.ShiftWeekendDay)

	_, err := f.auction.PlaceBid(context.Background(), id, 10, 2100)
	var bidErr *model.BidError
	require.ErrorAs(t, err, &bidErr)
	assert.ErrorIs(t, err, model.ErrBidTooLow)
	assert.Equal(t, 2200, bidErr.Minimum)

	shift, err := f.reg.GetShift(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, shift.CurrentHighBid)
	assert.Empty(t, shift.Bids)
}

func TestPlaceBid_IncrementAndLimit(t *testing.T) {
	f := newFixture(t, model.DefaultPolicy())
	ctx := context.Background()
	id := f.openShift(t, model.ShiftWeekendDay)

	_, err := f.auction.PlaceBid(ctx, id, 10, 2200)
	require.NoError(t, err)

	_, err = f.auction.PlaceBid(ctx, id, 1, 2240)
	assert.ErrorIs(t, err, model.ErrBidTooLow)

	_, err = f.auction.PlaceBid(ctx, id, 1, 4050)
	assert.ErrorIs(t, err, model.ErrPolicyViolation)

	shift, err := f.auction.PlaceBid(ctx, id, 1, 2250)
	require.NoError(t, err)
	assert.Equal(t, 2250, *shift.CurrentHighBid)
	assert.Equal(t, []int{10}, f.notifier.recipients(notify.EventOutbid))
}

func TestPlaceBid_Ineligible(t *testing.T) {
	f := newFixture(t, model.DefaultPolicy())
	ctx := context.Background()
	id := f.openShift(t, model.ShiftWeekendDay)

	optedOut := bidder(20, 0)
	optedOut.Preferences.BiddingOptIn = false
	f.dir.rads[20] = optedOut

	_, err := f.auction.PlaceBid(ctx, id, 20, 2200)
	assert.ErrorIs(t, err, model.ErrIneligibleBidder)

	_, err = f.auction.PlaceBid(ctx, id, 99, 2200)
	assert.ErrorIs(t, err, model.ErrIneligibleBidder)
	assert.ErrorIs(t, err, model.ErrRadiologistNotFound)
}

func TestPlaceBid_NotBidding(t *testing.T) {
	f := newFixture(t, model.DefaultPolicy())
	ctx := context.Background()
	d, _ := model.ParseDate("2025-03-01")
	id, err := f.reg.CreateShift(ctx, model.ShiftSpec{Date: d, Type: model.ShiftWeekendDay, Location: "Main Hospital", Duration: time.Hour})
	require.NoError(t, err)

	_, err = f.auction.PlaceBid(ctx, id, 10, 2200)
	assert.ErrorIs(t, err, model.ErrShiftNotBidding)

	id = f.openShift(t, model.ShiftWeekendDay)
	f.clock.Advance(25 * time.Hour)
	_, err = f.auction.PlaceBid(ctx, id, 10, 2200)
	assert.ErrorIs(t, err, model.ErrShiftNotBidding)
}

func TestAutoBid_Convergence(t *testing.T) {
	f := newFixture(t, model.DefaultPolicy())
	ctx := context.Background()
	id := f.openShift(t, model.ShiftWeekendDay)

	require.NoError(t, f.reg.Do(ctx, id, func(tx *registry.Tx) error {
		tx.AddAutoBid(1, 2800)
		tx.AddAutoBid(2, 3000)
		tx.AddAutoBid(3, 3200)
		return nil
	}))

	shift, err := f.auction.PlaceBid(ctx, id, 10, 2700)
	require.NoError(t, err)

	assert.Equal(t, 3050, *shift.CurrentHighBid)
	assert.Equal(t, 3, *shift.CurrentHighBidder)

	for i := 1; i < len(shift.Bids); i++ {
		assert.GreaterOrEqual(t, shift.Bids[i].Amount-shift.Bids[i-1].Amount, 50)
		assert.True(t, shift.Bids[i].PlacedAt.After(shift.Bids[i-1].PlacedAt))
	}
	assert.ElementsMatch(t, []int{10, 2}, f.notifier.recipients(notify.EventOutbid))
}

func TestAutoBid_TieGoesToEarliestRegistration(t *testing.T) {
	f := newFixture(t, model.DefaultPolicy())
	ctx := context.Background()
	id := f.openShift(t, model.ShiftWeekendDay)
	f.dir.rads[4] = bidder(4, 3000)

	require.NoError(t, f.reg.Do(ctx, id, func(tx *registry.Tx) error {
		tx.AddAutoBid(4, 3000)
		tx.AddAutoBid(2, 3000)
		return nil
	}))

	shift, err := f.auction.PlaceBid(ctx, id, 10, 2900)
	require.NoError(t, err)
	assert.Equal(t, 3000, *shift.CurrentHighBid)
	assert.Equal(t, 2, *shift.CurrentHighBidder, "4 bids 2950 first, 2 answers at its ceiling")

	_, err = f.auction.PlaceBid(ctx, id, 10, 2950)
	assert.ErrorIs(t, err, model.ErrBidTooLow)
}

func TestRegisterAutoBid_OpensAtFloor(t *testing.T) {
	f := newFixture(t, model.DefaultPolicy())
	ctx := context.Background()
	id := f.openShift(t, model.ShiftWeekendDay)

	shift, err := f.auction.RegisterAutoBid(ctx, id, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 2200, *shift.CurrentHighBid)
	assert.Equal(t, 1, *shift.CurrentHighBidder)
	require.Len(t, shift.AutoBids, 1)
	assert.Equal(t, 2800, shift.AutoBids[0].Ceiling)

	shift, err = f.auction.RegisterAutoBid(ctx, id, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 2850, *shift.CurrentHighBid)
	assert.Equal(t, 2, *shift.CurrentHighBidder)
}

func TestRegisterAutoBid_PolicyChecks(t *testing.T) {
	f := newFixture(t, model.DefaultPolicy())
	ctx := context.Background()
	id := f.openShift(t, model.ShiftWeekendDay)

	_, err := f.auction.RegisterAutoBid(ctx, id, 1, 2900)
	assert.ErrorIs(t, err, model.ErrPolicyViolation, "above personal maximum")

	_, err = f.auction.RegisterAutoBid(ctx, id, 10, 0)
	assert.ErrorIs(t, err, model.ErrPolicyViolation, "no maximum configured")

	f.dir.rads[5] = bidder(5, 4500)
	_, err = f.auction.RegisterAutoBid(ctx, id, 5, 4500)
	assert.ErrorIs(t, err, model.ErrPolicyViolation, "above max bid limit")

	_, err = f.auction.RegisterAutoBid(ctx, id, 1, 2100)
	assert.ErrorIs(t, err, model.ErrPolicyViolation, "below floor")
}

func TestClose_FillsWithHighBidder(t *testing.T) {
	f := newFixture(t, model.DefaultPolicy())
	ctx := context.Background()
	id := f.openShift(t, model.ShiftWeekendDay)
	_, err := f.auction.PlaceBid(ctx, id, 1, 2500)
	require.NoError(t, err)

	_, _, err = f.auction.Close(ctx, id, false)
	assert.ErrorIs(t, err, ErrWindowOpen)

	f.clock.Advance(24 * time.Hour)
	result, shift, err := f.auction.Close(ctx, id, false)
	require.NoError(t, err)
	assert.Equal(t, ClosedFilled, result)
	assert.Equal(t, model.StatusFilled, shift.Status)
	assert.Equal(t, 1, *shift.AssignedRadiologist)
	assert.Equal(t, []int{1}, f.notifier.recipients(notify.EventShiftAwarded))
	assert.Equal(t, 2500, f.reg.BiddingSpend(shift.Date))
}

func TestClose_CostGuardRoutesToApproval(t *testing.T) {
	f := newFixture(t, model.DefaultPolicy())
	ctx := context.Background()
	id := f.openShift(t, model.ShiftWeekendNight)
	_, err := f.auction.PlaceBid(ctx, id, 10, 3600)
	require.NoError(t, err)

	result, shift, err := f.auction.Close(ctx, id, true)
	require.NoError(t, err)
	assert.Equal(t, ClosedPendingApproval, result)
	assert.Equal(t, model.StatusPendingApproval, shift.Status)
	assert.Nil(t, shift.AssignedRadiologist)
	assert.Equal(t, 3600, f.approver.requests[id])

	shift, err = f.auction.Resolve(ctx, id, true)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFilled, shift.Status)
	assert.Equal(t, 10, *shift.AssignedRadiologist)

	_, err = f.auction.Resolve(ctx, id, true)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestClose_MonthlyBudgetRoutesToApproval(t *testing.T) {
	policy := model.DefaultPolicy()
	policy.MonthlyBiddingBudget = 5000
	f := newFixture(t, policy)
	ctx := context.Background()

	first := f.openShift(t, model.ShiftWeekendDay)
	_, err := f.auction.PlaceBid(ctx, first, 1, 2600)
	require.NoError(t, err)
	result, _, err := f.auction.Close(ctx, first, true)
	require.NoError(t, err)
	require.Equal(t, ClosedFilled, result)

	second := f.openShift(t, model.ShiftWeekendDay)
	_, err = f.auction.PlaceBid(ctx, second, 2, 2500)
	require.NoError(t, err)
	result, _, err = f.auction.Close(ctx, second, true)
	require.NoError(t, err)
	assert.Equal(t, ClosedPendingApproval, result)

	shift, err := f.auction.Resolve(ctx, second, false)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, shift.Status)
	assert.Nil(t, shift.AssignedRadiologist)
}

// gatedStore holds the save that fills shiftID until release is closed, then fails it with err
type gatedStore struct {
	*db.MemoryStore
	shiftID string
	err     error
	reached chan struct{}
	release chan struct{}
}

func (g *gatedStore) SaveShift(ctx context.Context, change db.ShiftChange) error {
	if change.Shift.ID == g.shiftID && change.Shift.Status == model.StatusFilled {
		close(g.reached)
		<-g.release
		if g.err != nil {
			return g.err
		}
	}
	return g.MemoryStore.SaveShift(ctx, change)
}

func TestClose_ConcurrentClosesShareMonthlyBudget(t *testing.T) {
	policy := model.DefaultPolicy()
	policy.MonthlyBiddingBudget = 5000
	store := &gatedStore{MemoryStore: db.NewMemoryStore(), reached: make(chan struct{}), release: make(chan struct{})}
	f := newFixtureWithStore(t, policy, store)
	ctx := context.Background()

	first := f.openShift(t, model.ShiftWeekendDay)
	_, err := f.auction.PlaceBid(ctx, first, 1, 2800)
	require.NoError(t, err)
	second := f.openShift(t, model.ShiftWeekendDay)
	_, err = f.auction.PlaceBid(ctx, second, 2, 2800)
	require.NoError(t, err)
	store.shiftID = first

	type closed struct {
		result CloseResult
		err    error
	}
	done := make(chan closed, 1)
	go func() {
		result, _, err := f.auction.Close(ctx, first, true)
		done <- closed{result, err}
	}()

	<-store.reached
	result, shift, err := f.auction.Close(ctx, second, true)
	require.NoError(t, err)
	assert.Equal(t, ClosedPendingApproval, result)
	assert.Equal(t, model.StatusPendingApproval, shift.Status)

	close(store.release)
	got := <-done
	require.NoError(t, got.err)
	assert.Equal(t, ClosedFilled, got.result)
	assert.Equal(t, 2800, f.reg.BiddingSpend(shift.Date))
}

func TestClose_FailedSaveReturnsBudget(t *testing.T) {
	policy := model.DefaultPolicy()
	policy.MonthlyBiddingBudget = 5000
	store := &gatedStore{MemoryStore: db.NewMemoryStore(), reached: make(chan struct{}), release: make(chan struct{})}
	f := newFixtureWithStore(t, policy, store)
	ctx := context.Background()

	id := f.openShift(t, model.ShiftWeekendDay)
	_, err := f.auction.PlaceBid(ctx, id, 1, 2800)
	require.NoError(t, err)
	store.shiftID = id
	store.err = errors.New("connection reset")
	close(store.release)

	_, _, err = f.auction.Close(ctx, id, true)
	require.Error(t, err)

	shift, err := f.reg.GetShift(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActiveBidding, shift.Status)
	assert.Equal(t, 0, f.reg.BiddingSpend(shift.Date))
}

func TestClose_NoBidsAutoClose(t *testing.T) {
	f := newFixture(t, model.DefaultPolicy())
	id := f.openShift(t, model.ShiftWeekendDay)

	result, shift, err := f.auction.Close(context.Background(), id, true)
	require.NoError(t, err)
	assert.Equal(t, ClosedExpired, result)
	assert.Equal(t, model.StatusExpired, shift.Status)
}

func TestClose_NoBidsGraceExtensionOnce(t *testing.T) {
	policy := model.DefaultPolicy()
	policy.AutoCloseIfNoBids = false
	f := newFixture(t, policy)
	ctx := context.Background()
	id := f.openShift(t, model.ShiftWeekendDay)

	f.clock.Advance(24 * time.Hour)
	result, shift, err := f.auction.Close(ctx, id, false)
	require.NoError(t, err)
	assert.Equal(t, ClosedExtended, result)
	assert.Equal(t, model.StatusActiveBidding, shift.Status)
	assert.True(t, shift.GraceUsed)
	assert.Equal(t, f.clock.Now().Add(12*time.Hour), *shift.BiddingEndsAt)

	f.clock.Advance(12 * time.Hour)
	result, shift, err = f.auction.Close(ctx, id, false)
	require.NoError(t, err)
	assert.Equal(t, ClosedExpired, result)
	assert.Equal(t, model.StatusExpired, shift.Status)
}

func TestClose_ApprovalRequestFailureStillPending(t *testing.T) {
	f := newFixture(t, model.DefaultPolicy())
	ctx := context.Background()
	f.approver.err = errors.New("smtp down")
	id := f.openShift(t, model.ShiftWeekendNight)
	_, err := f.auction.PlaceBid(ctx, id, 10, 3800)
	require.NoError(t, err)

	result, shift, err := f.auction.Close(ctx, id, true)
	require.NoError(t, err)
	assert.Equal(t, ClosedPendingApproval, result)
	assert.Equal(t, model.StatusPendingApproval, shift.Status)
}

func TestPlaceBid_ConcurrentBidsStayMonotonic(t *testing.T) {
	f := newFixture(t, model.DefaultPolicy())
	ctx := context.Background()
	id := f.openShift(t, model.ShiftWeekendDay)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(amount int) {
			defer wg.Done()
			_, _ = f.auction.PlaceBid(ctx, id, 10, 2200+amount*50)
		}(i)
	}
	wg.Wait()

	shift, err := f.reg.GetShift(ctx, id)
	require.NoError(t, err)
	require.NotEmpty(t, shift.Bids)
	for i := 1; i < len(shift.Bids); i++ {
		assert.GreaterOrEqual(t, shift.Bids[i].Amount-shift.Bids[i-1].Amount, 50)
	}
}
