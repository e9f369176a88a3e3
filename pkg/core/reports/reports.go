package reports

import (
	"math"
	"sort"
	"time"

	"github.com/jakechorley/radflow/pkg/core/allocator"
	"github.com/jakechorley/radflow/pkg/core/model"
)

// Period restricts a report to shifts dated in [From, To). A zero bound is open.
type Period struct {
	From time.Time
	To   time.Time
}

func (p Period) contains(day time.Time) bool {
	if !p.From.IsZero() && day.Before(p.From) {
		return false
	}
	if !p.To.IsZero() && !day.Before(p.To) {
		return false
	}
	return true
}

// BiddingStats summarises one radiologist's auction history
type BiddingStats struct {
	RadiologistID int
	Name          string
	BidsPlaced    int
	// AuctionsEntered counts distinct shifts bid on; WinRate is wins over auctions entered, in percent
	AuctionsEntered int
	BidsWon         int
	WinRate         float64
	AvgWinningBid   int
	TotalEarnings   int
	HighestBid      int
	LastBidAt       *time.Time
}

// Workload is one radiologist's call counters next to their current burden
type Workload struct {
	RadiologistID   int
	Name            string
	Last30Days      int
	YearTotal       int
	WeekendCallsYTD int
	NightCallsYTD   int
	Burden          float64
}

// CostComparison sets what bidding paid against what the same shifts would have cost at the
// smart-distribution average
type CostComparison struct {
	SmartShifts    int
	SmartTotal     int
	SmartAverage   float64
	BiddingShifts  int
	BiddingTotal   int
	BiddingAverage float64
	// BiddingPremium is BiddingTotal less BiddingShifts at the smart average; negative means bidding was cheaper
	BiddingPremium float64
	PremiumPercent float64
}

type Report struct {
	Period          Period
	Bidding         []BiddingStats
	Workload        []Workload
	WorkloadBalance float64
	Cost            CostComparison
}

// Build derives the report from the shifts and the directory. Radiologists come out in id order.
func Build(shifts []model.Shift, rads []model.Radiologist, period Period, targetCalls int) Report {
	rads = append([]model.Radiologist(nil), rads...)
	sort.Slice(rads, func(i, j int) bool { return rads[i].ID < rads[j].ID })

	var inPeriod []model.Shift
	for _, s := range shifts {
		if period.contains(s.Date) {
			inPeriod = append(inPeriod, s)
		}
	}

	report := Report{
		Period:          period,
		Bidding:         BiddingStatsFor(inPeriod, rads),
		WorkloadBalance: WorkloadBalance(rads),
		Cost:            CompareCosts(inPeriod),
	}
	for _, rad := range rads {
		report.Workload = append(report.Workload, Workload{
			RadiologistID:   rad.ID,
			Name:            rad.Name,
			Last30Days:      rad.CallHistory.Last30Days,
			YearTotal:       rad.CallHistory.YearTotal,
			WeekendCallsYTD: rad.CallHistory.WeekendCallsYTD,
			NightCallsYTD:   rad.CallHistory.NightCallsYTD,
			Burden:          allocator.BurdenScore(rad, targetCalls),
		})
	}
	return report
}

// BiddingStatsFor computes stats for each radiologist, including those who never bid
func BiddingStatsFor(shifts []model.Shift, rads []model.Radiologist) []BiddingStats {
	byID := make(map[int]*BiddingStats, len(rads))
	stats := make([]BiddingStats, len(rads))
	for i, rad := range rads {
		stats[i] = BiddingStats{RadiologistID: rad.ID, Name: rad.Name}
		byID[rad.ID] = &stats[i]
	}

	for _, shift := range shifts {
		entered := make(map[int]bool)
		for _, bid := range shift.Bids {
			st, ok := byID[bid.BidderID]
			if !ok {
				continue
			}
			st.BidsPlaced++
			if !entered[bid.BidderID] {
				entered[bid.BidderID] = true
				st.AuctionsEntered++
			}
			if bid.Amount > st.HighestBid {
				st.HighestBid = bid.Amount
			}
			if st.LastBidAt == nil || bid.PlacedAt.After(*st.LastBidAt) {
				placed := bid.PlacedAt
				st.LastBidAt = &placed
			}
		}

		if winner, amount, ok := wonByBidding(shift); ok {
			if st, ok := byID[winner]; ok {
				st.BidsWon++
				st.TotalEarnings += amount
			}
		}
	}

	for i := range stats {
		st := &stats[i]
		if st.AuctionsEntered > 0 {
			st.WinRate = roundTo(float64(st.BidsWon)/float64(st.AuctionsEntered)*100, 1)
		}
		if st.BidsWon > 0 {
			st.AvgWinningBid = st.TotalEarnings / st.BidsWon
		}
	}
	return stats
}

// WorkloadBalance is the mean of 1 - |calls - mean| / mean over the last-30-day counters. 1 is
// perfectly even; it falls as workloads spread. An empty roster scores 0.
func WorkloadBalance(rads []model.Radiologist) float64 {
	if len(rads) == 0 {
		return 0
	}
	total := 0
	for _, rad := range rads {
		total += rad.CallHistory.Last30Days
	}
	mean := float64(total) / float64(len(rads))
	if mean == 0 {
		return 1
	}

	var sum float64
	for _, rad := range rads {
		sum += 1 - math.Abs(float64(rad.CallHistory.Last30Days)-mean)/mean
	}
	return sum / float64(len(rads))
}

// CompareCosts splits filled shifts by how they were filled. Smart fills cost their base
// compensation; bidding fills cost the winning bid.
func CompareCosts(shifts []model.Shift) CostComparison {
	var c CostComparison
	for _, shift := range shifts {
		if shift.Status != model.StatusFilled {
			continue
		}
		if _, amount, ok := wonByBidding(shift); ok {
			c.BiddingShifts++
			c.BiddingTotal += amount
			continue
		}
		c.SmartShifts++
		c.SmartTotal += shift.BaseCompensation
	}

	if c.SmartShifts > 0 {
		c.SmartAverage = float64(c.SmartTotal) / float64(c.SmartShifts)
	}
	if c.BiddingShifts > 0 {
		c.BiddingAverage = float64(c.BiddingTotal) / float64(c.BiddingShifts)
	}
	c.BiddingPremium = float64(c.BiddingTotal) - c.SmartAverage*float64(c.BiddingShifts)
	if c.BiddingTotal > 0 {
		c.PremiumPercent = roundTo(c.BiddingPremium/float64(c.BiddingTotal)*100, 1)
	}
	return c
}

func wonByBidding(shift model.Shift) (winner, amount int, ok bool) {
	if shift.Status != model.StatusFilled || shift.CurrentHighBid == nil || shift.AssignedRadiologist == nil {
		return 0, 0, false
	}
	return *shift.AssignedRadiologist, *shift.CurrentHighBid, true
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
