package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/radflow/pkg/core/auction"
	"github.com/jakechorley/radflow/pkg/core/eligibility"
	"github.com/jakechorley/radflow/pkg/core/model"
	"github.com/jakechorley/radflow/pkg/core/registry"
	"github.com/jakechorley/radflow/pkg/core/services"
	"github.com/jakechorley/radflow/pkg/db"
	"github.com/jakechorley/radflow/pkg/directory"
	"github.com/jakechorley/radflow/pkg/notify"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func radiologist(id int, subspecialty string, last30, yearTotal int) model.Radiologist {
	return model.Radiologist{
		ID:           id,
		Name:         fmt.Sprintf("Dr. %d", id),
		Subspecialty: subspecialty,
		Locations:    []string{"Main Hospital"},
		Credentials: model.Credentials{
			BoardCertified: true,
			CertExpiry:     time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
			CMECredits:     50,
			CMERequired:    50,
		},
		CallHistory: model.CallHistory{Last30Days: last30, YearTotal: yearTotal},
		Preferences: model.Preferences{BiddingOptIn: true, MaxAutoBid: 3500},
	}
}

func newTestRouter(t *testing.T, opts RouterOptions) *gin.Engine {
	t.Helper()
	logger := zap.NewNop()

	dir, err := directory.New(
		[]model.Radiologist{
			radiologist(1, "Neuroradiology", 3, 40),
			radiologist(2, "Neuroradiology", 3, 35),
			radiologist(3, "Body Imaging", 1, 20),
		},
		[]model.Location{
			{Name: "Main Hospital", Staffing: model.Staffing{WeekdayDay: 2, WeekendDay: 1}},
		},
	)
	require.NoError(t, err)

	now := time.Date(2025, 2, 20, 9, 0, 0, 0, time.UTC)
	reg := registry.New(db.NewMemoryStore(), model.DefaultPolicy(), logger, registry.WithClock(func() time.Time { return now }))
	engine := services.NewEngine(reg, dir, eligibility.New(), notify.NewLogNotifier(logger), notify.NewLogApprover(logger), logger)

	router, err := NewRouter(engine, logger, opts)
	require.NoError(t, err)
	return router
}

func do(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func createShift(t *testing.T, router http.Handler, mode string) ShiftResponse {
	t.Helper()
	w := do(t, router, http.MethodPost, "/shifts", CreateShiftRequest{
		Date:             "2025-03-01",
		Type:             "weekend_day",
		Location:         "Main Hospital",
		Subspecialty:     "Neuroradiology",
		DurationHours:    12,
		BaseCompensation: 1800,
		Mode:             mode,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[ShiftResponse](t, w)
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t, RouterOptions{})

	w := do(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestCreateAndGetShift(t *testing.T) {
	router := newTestRouter(t, RouterOptions{})
	created := createShift(t, router, "smart")

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Open", created.Status)
	assert.Equal(t, "Weekend Day", created.Type)
	assert.Equal(t, "2025-03-01", created.Date)
	assert.Equal(t, "Normal", created.Priority)
	assert.Equal(t, 12.0, created.DurationHours)

	w := do(t, router, http.MethodGet, "/shifts/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created.ID, decode[ShiftResponse](t, w).ID)
}

func TestCreateShift_BadRequests(t *testing.T) {
	router := newTestRouter(t, RouterOptions{})

	tests := []struct {
		name       string
		body       interface{}
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing fields",
			body:       map[string]string{"date": "2025-03-01"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
		{
			name:       "unknown shift type",
			body:       CreateShiftRequest{Date: "2025-03-01", Type: "holiday", Location: "Main Hospital", DurationHours: 12},
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
		{
			name:       "unknown location",
			body:       CreateShiftRequest{Date: "2025-03-01", Type: "Weekend Day", Location: "Nowhere", DurationHours: 12},
			wantStatus: http.StatusNotFound,
			wantCode:   "location_not_found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, "/shifts", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, decode[ErrorResponse](t, w).Code)
		})
	}
}

func TestGetShift_NotFound(t *testing.T) {
	router := newTestRouter(t, RouterOptions{})

	w := do(t, router, http.MethodGet, "/shifts/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "shift_not_found", decode[ErrorResponse](t, w).Code)
}

func TestRunShift_SmartDistribution(t *testing.T) {
	router := newTestRouter(t, RouterOptions{})
	shift := createShift(t, router, "smart")

	w := do(t, router, http.MethodPost, "/shifts/"+shift.ID+"/run", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[RunResponse](t, w)
	assert.Equal(t, string(services.OutcomeAssigned), resp.Outcome)
	assert.Equal(t, "Filled", resp.Shift.Status)
	require.NotNil(t, resp.Shift.AssignedRadiologist)
	assert.Equal(t, 2, *resp.Shift.AssignedRadiologist)
	require.NotNil(t, resp.Candidate)
	assert.Equal(t, 2, resp.Candidate.RadiologistID)
}

func TestBiddingFlow(t *testing.T) {
	router := newTestRouter(t, RouterOptions{})
	shift := createShift(t, router, "bidding")
	base := "/shifts/" + shift.ID

	w := do(t, router, http.MethodPost, base+"/run", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(services.OutcomeBiddingOpened), decode[RunResponse](t, w).Outcome)

	w = do(t, router, http.MethodPost, base+"/bids", BidRequest{BidderID: 1, Amount: 2100})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "bid_too_low", decode[ErrorResponse](t, w).Code)

	w = do(t, router, http.MethodPost, base+"/bids", BidRequest{BidderID: 3, Amount: 2300})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "ineligible_bidder", decode[ErrorResponse](t, w).Code)

	w = do(t, router, http.MethodPost, base+"/bids", BidRequest{BidderID: 1, Amount: 2200})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	bid := decode[ShiftResponse](t, w)
	require.NotNil(t, bid.CurrentHighBid)
	assert.Equal(t, 2200, *bid.CurrentHighBid)
	assert.Len(t, bid.Bids, 1)

	w = do(t, router, http.MethodPost, base+"/close", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "bidding_window_open", decode[ErrorResponse](t, w).Code)

	w = do(t, router, http.MethodPost, base+"/close", CloseRequest{Force: true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	closed := decode[CloseResponse](t, w)
	assert.Equal(t, string(auction.ClosedFilled), closed.Result)
	assert.Equal(t, "Filled", closed.Shift.Status)
	require.NotNil(t, closed.Shift.AssignedRadiologist)
	assert.Equal(t, 1, *closed.Shift.AssignedRadiologist)

	w = do(t, router, http.MethodPost, base+"/bids", BidRequest{BidderID: 2, Amount: 2400})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "shift_not_bidding", decode[ErrorResponse](t, w).Code)
}

func TestRegisterAutoBid_HidesCeiling(t *testing.T) {
	router := newTestRouter(t, RouterOptions{})
	shift := createShift(t, router, "bidding")
	base := "/shifts/" + shift.ID

	w := do(t, router, http.MethodPost, base+"/bidding?windowHours=6", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, router, http.MethodPost, base+"/auto-bids", AutoBidRequest{RadiologistID: 1, Ceiling: 3000})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "ceiling")

	resp := decode[ShiftResponse](t, w)
	require.Len(t, resp.AutoBids, 1)
	assert.Equal(t, 1, resp.AutoBids[0].RadiologistID)
	require.NotNil(t, resp.CurrentHighBid)
	assert.Equal(t, 2200, *resp.CurrentHighBid)

	w = do(t, router, http.MethodPost, base+"/auto-bids", AutoBidRequest{RadiologistID: 2, Ceiling: 5000})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "policy_violation", decode[ErrorResponse](t, w).Code)
}

func TestOpenBidding_InvalidWindow(t *testing.T) {
	router := newTestRouter(t, RouterOptions{})
	shift := createShift(t, router, "bidding")

	w := do(t, router, http.MethodPost, "/shifts/"+shift.ID+"/bidding?windowHours=soon", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListShifts_StatusFilter(t *testing.T) {
	router := newTestRouter(t, RouterOptions{})
	smart := createShift(t, router, "smart")
	createShift(t, router, "bidding")

	w := do(t, router, http.MethodPost, "/shifts/"+smart.ID+"/run", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodGet, "/shifts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]ShiftResponse](t, w), 2)

	w = do(t, router, http.MethodGet, "/shifts?status=filled", nil)
	require.Equal(t, http.StatusOK, w.Code)
	filled := decode[[]ShiftResponse](t, w)
	require.Len(t, filled, 1)
	assert.Equal(t, smart.ID, filled[0].ID)

	w = do(t, router, http.MethodGet, "/shifts?status=open,filled", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]ShiftResponse](t, w), 2)

	w = do(t, router, http.MethodGet, "/shifts?status=cancelled", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResolveApproval_Errors(t *testing.T) {
	router := newTestRouter(t, RouterOptions{})
	shift := createShift(t, router, "bidding")

	w := do(t, router, http.MethodPost, "/shifts/"+shift.ID+"/approval", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	approved := true
	w = do(t, router, http.MethodPost, "/shifts/"+shift.ID+"/approval", ApprovalRequest{Approved: &approved})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_transition", decode[ErrorResponse](t, w).Code)
}

func TestWithdrawShift(t *testing.T) {
	router := newTestRouter(t, RouterOptions{})
	shift := createShift(t, router, "smart")

	w := do(t, router, http.MethodPost, "/shifts/"+shift.ID+"/withdraw", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Expired", decode[ShiftResponse](t, w).Status)

	w = do(t, router, http.MethodPost, "/shifts/"+shift.ID+"/withdraw", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestEligibility(t *testing.T) {
	router := newTestRouter(t, RouterOptions{})
	shift := createShift(t, router, "smart")

	w := do(t, router, http.MethodGet, "/shifts/"+shift.ID+"/eligibility/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	eligible := decode[EligibilityResponse](t, w)
	assert.True(t, eligible.Assignable)
	assert.True(t, eligible.CanBid)
	assert.Empty(t, eligible.FailedAssignment)
	assert.Equal(t, string(model.CredentialCompliant), eligible.CredentialStatus)

	w = do(t, router, http.MethodGet, "/shifts/"+shift.ID+"/eligibility/3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	ineligible := decode[EligibilityResponse](t, w)
	assert.False(t, ineligible.Assignable)
	assert.Contains(t, ineligible.FailedAssignment, "subspecialty")

	w = do(t, router, http.MethodGet, "/shifts/"+shift.ID+"/eligibility/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodGet, "/shifts/"+shift.ID+"/eligibility/99", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "radiologist_not_found", decode[ErrorResponse](t, w).Code)
}

func TestCandidates(t *testing.T) {
	router := newTestRouter(t, RouterOptions{})
	shift := createShift(t, router, "smart")

	w := do(t, router, http.MethodGet, "/shifts/"+shift.ID+"/candidates", nil)
	require.Equal(t, http.StatusOK, w.Code)

	candidates := decode[[]CandidateResponse](t, w)
	require.Len(t, candidates, 2)
	assert.Equal(t, 2, candidates[0].RadiologistID)
	assert.Equal(t, 1, candidates[1].RadiologistID)
	assert.InDelta(t, 0.5, candidates[0].Burden, 0.0001)
}

func TestReport(t *testing.T) {
	router := newTestRouter(t, RouterOptions{})
	smart := createShift(t, router, "smart")
	require.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/shifts/"+smart.ID+"/run", nil).Code)

	bidding := createShift(t, router, "bidding")
	base := "/shifts/" + bidding.ID
	require.Equal(t, http.StatusOK, do(t, router, http.MethodPost, base+"/run", nil).Code)
	require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, base+"/bids", BidRequest{BidderID: 1, Amount: 2200}).Code)
	require.Equal(t, http.StatusOK, do(t, router, http.MethodPost, base+"/close", CloseRequest{Force: true}).Code)

	w := do(t, router, http.MethodGet, "/reports?from=2025-03-01&to=2025-04-01", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	report := decode[ReportResponse](t, w)

	assert.Equal(t, "2025-03-01", report.From)
	require.Len(t, report.Bidding, 3)
	assert.Equal(t, 1, report.Bidding[0].BidsWon)
	assert.Equal(t, 100.0, report.Bidding[0].WinRate)
	assert.Equal(t, 2200, report.Bidding[0].TotalEarnings)
	assert.Equal(t, 1, report.Cost.SmartShifts)
	assert.Equal(t, 1, report.Cost.BiddingShifts)
	assert.Equal(t, 400.0, report.Cost.BiddingPremium)
	require.Len(t, report.Workload, 3)
	assert.InDelta(t, 13.0/21.0, report.WorkloadBalance, 0.0001)
}

func TestReport_BadPeriod(t *testing.T) {
	router := newTestRouter(t, RouterOptions{})

	w := do(t, router, http.MethodGet, "/reports?from=March", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodGet, "/reports?from=2025-04-01&to=2025-03-01", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", decode[ErrorResponse](t, w).Code)
}

func TestRateLimit(t *testing.T) {
	router := newTestRouter(t, RouterOptions{RequestsPerMinute: 1})

	w := do(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate_limited", decode[ErrorResponse](t, w).Code)
}

func getFrom(router http.Handler, remote, forwardedFor string) int {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = remote
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimit_IgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	router := newTestRouter(t, RouterOptions{RequestsPerMinute: 1})

	assert.Equal(t, http.StatusOK, getFrom(router, "198.51.100.7:4000", "10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, getFrom(router, "198.51.100.7:4000", "10.0.0.2"))
}

func TestRateLimit_TrustedProxyForwardsClient(t *testing.T) {
	router := newTestRouter(t, RouterOptions{RequestsPerMinute: 1, TrustedProxies: []string{"192.0.2.0/24"}})

	assert.Equal(t, http.StatusOK, getFrom(router, "192.0.2.1:4000", "10.0.0.1"))
	assert.Equal(t, http.StatusOK, getFrom(router, "192.0.2.1:4000", "10.0.0.2"))
	assert.Equal(t, http.StatusTooManyRequests, getFrom(router, "192.0.2.1:4000", "10.0.0.1"))
}

func TestNewRouter_InvalidTrustedProxy(t *testing.T) {
	_, err := NewRouter(nil, zap.NewNop(), RouterOptions{TrustedProxies: []string{"not-an-ip"}})
	assert.ErrorContains(t, err, "invalid trusted proxies")
}

func TestIPLimiters_DropsIdleAddresses(t *testing.T) {
	now := time.Date(2025, 2, 20, 9, 0, 0, 0, time.UTC)
	limiters := newIPLimiters(60)
	limiters.now = func() time.Time { return now }

	assert.True(t, limiters.allow("10.0.0.1"))
	assert.True(t, limiters.allow("10.0.0.2"))
	assert.Len(t, limiters.visitors, 2)

	now = now.Add(limiterIdle + time.Second)
	assert.True(t, limiters.allow("10.0.0.3"))
	assert.Len(t, limiters.visitors, 1)
	assert.Contains(t, limiters.visitors, "10.0.0.3")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
	}{
		{fmt.Errorf("wrapped: %w", model.ErrShiftNotFound), http.StatusNotFound},
		{&model.TransitionError{ShiftID: "s1", From: model.StatusOpen, To: model.StatusFilled, Actual: model.StatusOpen}, http.StatusConflict},
		{&model.BidError{ShiftID: "s1", Amount: 10, Minimum: 20}, http.StatusUnprocessableEntity},
		{&model.PolicyError{Rule: "budget", Detail: "exceeded"}, http.StatusUnprocessableEntity},
		{registry.ErrClosed, http.StatusServiceUnavailable},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		status, _ := statusFor(tt.err)
		assert.Equal(t, tt.wantStatus, status, tt.err.Error())
	}
}
