package commands

import (
	"fmt"
	"strings"

	"github.com/jakechorley/radflow/pkg/core/model"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorDim    = "\033[2m"
)

func statusColor(status model.ShiftStatus) string {
	switch status {
	case model.StatusFilled:
		return colorGreen
	case model.StatusExpired:
		return colorRed
	case model.StatusPendingApproval, model.StatusActiveBidding, model.StatusCascadedToBidding:
		return colorYellow
	}
	return colorReset
}

func formatMoney(amount int) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	digits := fmt.Sprintf("%d", amount)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + "$" + b.String()
}

func optionalInt(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}

// printShiftRow prints the one-line summary used by listShifts
func printShiftRow(s model.Shift) {
	fmt.Printf("%-36s  %s  %-13s  %-16s  %-16s  %s%-20s%s  %s\n",
		s.ID,
		s.Date.Format("Mon 2006-01-02"),
		s.Type,
		s.Location,
		s.Subspecialty,
		statusColor(s.Status), s.Status, colorReset,
		s.Priority,
	)
}

// printShift prints every field of a shift, including its bid history
func printShift(s model.Shift) {
	fmt.Printf("Shift ID:      %s\n", s.ID)
	fmt.Printf("Date:          %s\n", s.Date.Format("2006-01-02 (Monday)"))
	fmt.Printf("Type:          %s (%.0fh)\n", s.Type, s.Duration.Hours())
	fmt.Printf("Location:      %s\n", s.Location)
	fmt.Printf("Subspecialty:  %s\n", s.Subspecialty)
	fmt.Printf("Status:        %s%s%s\n", statusColor(s.Status), s.Status, colorReset)
	fmt.Printf("Priority:      %s\n", s.Priority)
	fmt.Printf("Base pay:      %s\n", formatMoney(s.BaseCompensation))
	if s.Mode != "" {
		fmt.Printf("Mode:          %s\n", s.Mode)
	}
	if s.AssignedRadiologist != nil {
		fmt.Printf("Assigned to:   %d\n", *s.AssignedRadiologist)
	}
	if s.BurdenScore != nil {
		fmt.Printf("Burden score:  %.2f\n", *s.BurdenScore)
	}
	if s.BiddingEndsAt != nil {
		fmt.Printf("Bidding ends:  %s\n", s.BiddingEndsAt.Format("2006-01-02 15:04 MST"))
	}
	if s.CurrentHighBid != nil {
		fmt.Printf("High bid:      %s by %s\n", formatMoney(*s.CurrentHighBid), optionalInt(s.CurrentHighBidder))
	}
	if len(s.AutoBids) > 0 {
		fmt.Printf("Auto-bids:     %d standing\n", len(s.AutoBids))
	}

	if len(s.Bids) > 0 {
		fmt.Printf("\nBids:\n")
		for i, b := range s.Bids {
			auto := ""
			if b.Auto {
				auto = colorDim + " (auto)" + colorReset
			}
			fmt.Printf("  %2d. %s  radiologist %d  %s%s\n", i+1, b.PlacedAt.Format("2006-01-02 15:04:05"), b.BidderID, formatMoney(b.Amount), auto)
		}
	}
	fmt.Println()
}
