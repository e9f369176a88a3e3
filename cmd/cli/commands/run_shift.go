package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jakechorley/radflow/pkg/core/services"
)

// RunShiftCmd creates the runShift command
func RunShiftCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "runShift <shift_id>",
		Short: "Run smart distribution or open bidding for a shift according to its assignment mode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAndPrint(app, args[0])
		},
	}
}

func runAndPrint(app *AppContext, shiftID string) error {
	result, err := app.Engine.Run(app.Ctx, shiftID)
	if err != nil {
		return err
	}

	switch result.Outcome {
	case services.OutcomeAssigned:
		fmt.Printf("\n✓ Assigned to %s (burden %.2f)\n\n", result.Candidate.Radiologist.Name, result.Candidate.Burden)
	case services.OutcomeBiddingOpened:
		fmt.Printf("\n✓ Bidding opened, closes %s\n\n", result.Shift.BiddingEndsAt.Format("2006-01-02 15:04 MST"))
	case services.OutcomeCascaded:
		fmt.Printf("\n⚠️  No eligible radiologist, cascaded to bidding until %s\n\n", result.Shift.BiddingEndsAt.Format("2006-01-02 15:04 MST"))
	case services.OutcomeExpired:
		fmt.Printf("\n✗ No eligible radiologist, shift expired\n\n")
	default:
		fmt.Printf("\nNothing to do, shift is %s\n\n", result.Shift.Status)
	}
	printShift(result.Shift)
	return nil
}
