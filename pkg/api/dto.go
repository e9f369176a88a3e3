package api

import (
	"fmt"
	"time"

	"github.com/jakechorley/radflow/pkg/core/allocator"
	"github.com/jakechorley/radflow/pkg/core/model"
	"github.com/jakechorley/radflow/pkg/core/reports"
	"github.com/jakechorley/radflow/pkg/core/services"
)

const dateLayout = "2006-01-02"

type CreateShiftRequest struct {
	Date             string `json:"date" binding:"required"`
	Type             string `json:"type" binding:"required"`
	Location         string `json:"location" binding:"required"`
	Subspecialty     string `json:"subspecialty"`
	DurationHours    int    `json:"durationHours" binding:"required,gt=0,lte=24"`
	BaseCompensation int    `json:"baseCompensation" binding:"gte=0"`
	Mode             string `json:"mode"`
	Priority         string `json:"priority"`
}

// toSpec parses the enumerations; the engine validates the rest
func (r CreateShiftRequest) toSpec() (model.ShiftSpec, error) {
	date, err := model.ParseDate(r.Date)
	if err != nil {
		return model.ShiftSpec{}, err
	}
	shiftType, err := model.ParseShiftType(r.Type)
	if err != nil {
		return model.ShiftSpec{}, err
	}
	mode, err := model.ParseAssignmentMode(r.Mode)
	if err != nil {
		return model.ShiftSpec{}, err
	}
	priority, err := model.ParsePriority(r.Priority)
	if err != nil {
		return model.ShiftSpec{}, err
	}
	return model.ShiftSpec{
		Date:             date,
		Type:             shiftType,
		Location:         r.Location,
		Subspecialty:     r.Subspecialty,
		Duration:         time.Duration(r.DurationHours) * time.Hour,
		BaseCompensation: r.BaseCompensation,
		Mode:             mode,
		Priority:         priority,
	}, nil
}

type BidRequest struct {
	BidderID int `json:"bidderId" binding:"required"`
	Amount   int `json:"amount" binding:"required,gt=0"`
}

type AutoBidRequest struct {
	RadiologistID int `json:"radiologistId" binding:"required"`
	Ceiling       int `json:"ceiling" binding:"required,gt=0"`
}

type CloseRequest struct {
	Force bool `json:"force"`
}

type ApprovalRequest struct {
	Approved *bool `json:"approved" binding:"required"`
}

type BidResponse struct {
	ID       string    `json:"id"`
	BidderID int       `json:"bidderId"`
	Amount   int       `json:"amount"`
	PlacedAt time.Time `json:"placedAt"`
	Auto     bool      `json:"auto"`
}

type AutoBidResponse struct {
	RadiologistID int       `json:"radiologistId"`
	RegisteredAt  time.Time `json:"registeredAt"`
}

type ShiftResponse struct {
	ID                  string            `json:"id"`
	Date                string            `json:"date"`
	Type                string            `json:"type"`
	Location            string            `json:"location"`
	Subspecialty        string            `json:"subspecialty"`
	DurationHours       float64           `json:"durationHours"`
	BaseCompensation    int               `json:"baseCompensation"`
	Mode                string            `json:"mode,omitempty"`
	Status              string            `json:"status"`
	Priority            string            `json:"priority"`
	CurrentHighBid      *int              `json:"currentHighBid,omitempty"`
	CurrentHighBidder   *int              `json:"currentHighBidder,omitempty"`
	AssignedRadiologist *int              `json:"assignedRadiologist,omitempty"`
	BurdenScore         *float64          `json:"burdenScore,omitempty"`
	SmartTried          bool              `json:"smartDistributionTried"`
	BiddingOpenedAt     *time.Time        `json:"biddingOpenedAt,omitempty"`
	BiddingEndsAt       *time.Time        `json:"biddingEndsAt,omitempty"`
	GraceUsed           bool              `json:"graceUsed"`
	Bids                []BidResponse     `json:"bids"`
	AutoBids            []AutoBidResponse `json:"autoBids"`
	CreatedAt           time.Time         `json:"createdAt"`
	UpdatedAt           time.Time         `json:"updatedAt"`
}

func newShiftResponse(s model.Shift) ShiftResponse {
	resp := ShiftResponse{
		ID:                  s.ID,
		Date:                s.Date.Format(dateLayout),
		Type:                string(s.Type),
		Location:            s.Location,
		Subspecialty:        s.Subspecialty,
		DurationHours:       s.Duration.Hours(),
		BaseCompensation:    s.BaseCompensation,
		Mode:                string(s.Mode),
		Status:              string(s.Status),
		Priority:            string(s.Priority),
		CurrentHighBid:      s.CurrentHighBid,
		CurrentHighBidder:   s.CurrentHighBidder,
		AssignedRadiologist: s.AssignedRadiologist,
		BurdenScore:         s.BurdenScore,
		SmartTried:          s.SmartDistributionTried,
		BiddingOpenedAt:     s.BiddingOpenedAt,
		BiddingEndsAt:       s.BiddingEndsAt,
		GraceUsed:           s.GraceUsed,
		Bids:                make([]BidResponse, 0, len(s.Bids)),
		AutoBids:            make([]AutoBidResponse, 0, len(s.AutoBids)),
		CreatedAt:           s.CreatedAt,
		UpdatedAt:           s.UpdatedAt,
	}
	for _, b := range s.Bids {
		resp.Bids = append(resp.Bids, BidResponse{ID: b.ID, BidderID: b.BidderID, Amount: b.Amount, PlacedAt: b.PlacedAt, Auto: b.Auto})
	}
	// ceilings stay private to the bidder
	for _, a := range s.AutoBids {
		resp.AutoBids = append(resp.AutoBids, AutoBidResponse{RadiologistID: a.RadiologistID, RegisteredAt: a.RegisteredAt})
	}
	return resp
}

type CandidateResponse struct {
	RadiologistID int     `json:"radiologistId"`
	Name          string  `json:"name"`
	Burden        float64 `json:"burden"`
	YearTotal     int     `json:"yearTotal"`
}

func newCandidateResponse(c allocator.Candidate) CandidateResponse {
	return CandidateResponse{
		RadiologistID: c.Radiologist.ID,
		Name:          c.Radiologist.Name,
		Burden:        c.Burden,
		YearTotal:     c.Radiologist.CallHistory.YearTotal,
	}
}

type RunResponse struct {
	Outcome   string             `json:"outcome"`
	Shift     ShiftResponse      `json:"shift"`
	Candidate *CandidateResponse `json:"candidate,omitempty"`
}

func newRunResponse(r services.RunResult) RunResponse {
	resp := RunResponse{Outcome: string(r.Outcome), Shift: newShiftResponse(r.Shift)}
	if r.Candidate != nil {
		c := newCandidateResponse(*r.Candidate)
		resp.Candidate = &c
	}
	return resp
}

type CloseResponse struct {
	Result string        `json:"result"`
	Shift  ShiftResponse `json:"shift"`
}

type EligibilityResponse struct {
	ShiftID          string   `json:"shiftId"`
	RadiologistID    int      `json:"radiologistId"`
	Radiologist      string   `json:"radiologist"`
	Assignable       bool     `json:"assignable"`
	CanBid           bool     `json:"canBid"`
	FailedAssignment []string `json:"failedAssignment"`
	FailedBidding    []string `json:"failedBidding"`
	CredentialStatus string   `json:"credentialStatus"`
}

func newEligibilityResponse(r services.EligibilityReport) EligibilityResponse {
	return EligibilityResponse{
		ShiftID:          r.ShiftID,
		RadiologistID:    r.RadiologistID,
		Radiologist:      r.Radiologist,
		Assignable:       r.Assignable,
		CanBid:           r.CanBid,
		FailedAssignment: nonNil(r.FailedAssignment),
		FailedBidding:    nonNil(r.FailedBidding),
		CredentialStatus: string(r.CredentialStatus),
	}
}

type BiddingStatsResponse struct {
	RadiologistID   int        `json:"radiologistId"`
	Name            string     `json:"name"`
	BidsPlaced      int        `json:"bidsPlaced"`
	AuctionsEntered int        `json:"auctionsEntered"`
	BidsWon         int        `json:"bidsWon"`
	WinRate         float64    `json:"winRate"`
	AvgWinningBid   int        `json:"avgWinningBid"`
	TotalEarnings   int        `json:"totalBiddingEarnings"`
	HighestBid      int        `json:"highestBid"`
	LastBidAt       *time.Time `json:"lastBidAt,omitempty"`
}

type WorkloadResponse struct {
	RadiologistID   int     `json:"radiologistId"`
	Name            string  `json:"name"`
	Last30Days      int     `json:"last30Days"`
	YearTotal       int     `json:"yearTotal"`
	WeekendCallsYTD int     `json:"weekendCallsYtd"`
	NightCallsYTD   int     `json:"nightCallsYtd"`
	Burden          float64 `json:"burden"`
}

type CostResponse struct {
	SmartShifts    int     `json:"smartShifts"`
	SmartTotal     int     `json:"smartTotal"`
	SmartAverage   float64 `json:"smartAverage"`
	BiddingShifts  int     `json:"biddingShifts"`
	BiddingTotal   int     `json:"biddingTotal"`
	BiddingAverage float64 `json:"biddingAverage"`
	BiddingPremium float64 `json:"biddingPremium"`
	PremiumPercent float64 `json:"premiumPercent"`
}

type ReportResponse struct {
	From            string                 `json:"from,omitempty"`
	To              string                 `json:"to,omitempty"`
	Bidding         []BiddingStatsResponse `json:"bidding"`
	Workload        []WorkloadResponse     `json:"workload"`
	WorkloadBalance float64                `json:"workloadBalance"`
	Cost            CostResponse           `json:"cost"`
}

func newReportResponse(r reports.Report) ReportResponse {
	resp := ReportResponse{
		Bidding:         make([]BiddingStatsResponse, 0, len(r.Bidding)),
		Workload:        make([]WorkloadResponse, 0, len(r.Workload)),
		WorkloadBalance: r.WorkloadBalance,
		Cost:            CostResponse(r.Cost),
	}
	if !r.Period.From.IsZero() {
		resp.From = r.Period.From.Format(dateLayout)
	}
	if !r.Period.To.IsZero() {
		resp.To = r.Period.To.Format(dateLayout)
	}
	for _, b := range r.Bidding {
		resp.Bidding = append(resp.Bidding, BiddingStatsResponse(b))
	}
	for _, w := range r.Workload {
		resp.Workload = append(resp.Workload, WorkloadResponse(w))
	}
	return resp
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func parseStatuses(values []string) ([]model.ShiftStatus, error) {
	var statuses []model.ShiftStatus
	for _, v := range values {
		status, err := model.ParseShiftStatus(v)
		if err != nil {
			return nil, fmt.Errorf("invalid status filter: %w", err)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}
