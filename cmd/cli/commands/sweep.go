package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jakechorley/radflow/pkg/core/auction"
	"github.com/jakechorley/radflow/pkg/core/services"
)

// SweepCmd creates the sweep command
func SweepCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Close every auction whose bidding window has ended",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sweeper := services.NewSweeper(app.Engine, app.Cfg.Sweep.Interval, app.Cfg.Sweep.Concurrency, app.Logger)
			report, err := sweeper.Sweep(app.Ctx)

			fmt.Printf("\nSweep complete: %d due\n\n", report.Due)
			fmt.Printf("  Filled:            %d\n", report.Results[auction.ClosedFilled])
			fmt.Printf("  Pending approval:  %d\n", report.Results[auction.ClosedPendingApproval])
			fmt.Printf("  Extended:          %d\n", report.Results[auction.ClosedExtended])
			fmt.Printf("  Expired:           %d\n", report.Results[auction.ClosedExpired])
			fmt.Printf("  Skipped:           %d\n", report.Skipped)
			if report.Failed > 0 {
				fmt.Printf("  %sFailed:            %d%s\n", colorRed, report.Failed, colorReset)
			}
			fmt.Println()

			return err
		},
	}
}
