package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jakechorley/radflow/pkg/core/model"
	"github.com/jakechorley/radflow/pkg/core/reports"
)

// ReportCmd creates the report command
func ReportCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show bidding stats, workload balance and smart vs bidding costs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			period, err := reportPeriod(cmd)
			if err != nil {
				return err
			}

			report, err := app.Engine.Report(app.Ctx, period)
			if err != nil {
				return err
			}
			printReport(report)
			return nil
		},
	}

	cmd.Flags().String("from", "", "First shift date to include (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "Shift date to stop before (YYYY-MM-DD)")

	return cmd
}

func reportPeriod(cmd *cobra.Command) (reports.Period, error) {
	var period reports.Period
	for name, dst := range map[string]*time.Time{"from": &period.From, "to": &period.To} {
		v, _ := cmd.Flags().GetString(name)
		if v == "" {
			continue
		}
		d, err := model.ParseDate(v)
		if err != nil {
			return reports.Period{}, fmt.Errorf("invalid --%s: %w", name, err)
		}
		*dst = d
	}
	if !period.From.IsZero() && !period.To.IsZero() && !period.From.Before(period.To) {
		return reports.Period{}, fmt.Errorf("--from must be before --to")
	}
	return period, nil
}

func printReport(r reports.Report) {
	fmt.Printf("\n%sBidding%s\n", colorDim, colorReset)
	for _, b := range r.Bidding {
		fmt.Printf("  %-24s %3d bids in %2d auctions, won %2d (%5.1f%%), earned %s, highest %s\n",
			fmt.Sprintf("%s (%d)", b.Name, b.RadiologistID),
			b.BidsPlaced, b.AuctionsEntered, b.BidsWon, b.WinRate,
			formatMoney(b.TotalEarnings), formatMoney(b.HighestBid))
	}

	fmt.Printf("\n%sWorkload%s (balance %.2f)\n", colorDim, colorReset, r.WorkloadBalance)
	for _, w := range r.Workload {
		fmt.Printf("  %-24s %2d in 30 days, %3d this year, %2d weekends, %2d nights, burden %.2f\n",
			fmt.Sprintf("%s (%d)", w.Name, w.RadiologistID),
			w.Last30Days, w.YearTotal, w.WeekendCallsYTD, w.NightCallsYTD, w.Burden)
	}

	c := r.Cost
	fmt.Printf("\n%sCost%s\n", colorDim, colorReset)
	fmt.Printf("  Smart distribution: %d shifts, %s (avg %s)\n", c.SmartShifts, formatMoney(c.SmartTotal), formatMoney(int(c.SmartAverage)))
	fmt.Printf("  Bidding:            %d shifts, %s (avg %s)\n", c.BiddingShifts, formatMoney(c.BiddingTotal), formatMoney(int(c.BiddingAverage)))
	fmt.Printf("  Bidding premium:    %s (%.1f%%)\n\n", formatMoney(int(c.BiddingPremium)), c.PremiumPercent)
}
