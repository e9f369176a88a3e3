package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// EligibilityCmd creates the eligibility command
func EligibilityCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "eligibility <shift_id> [radiologist_id]",
		Short: "Explain a radiologist's eligibility, or rank every candidate for a shift",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return printCandidates(app, args[0])
			}

			radiologistID, err := parseIntArg("radiologist_id", args[1])
			if err != nil {
				return err
			}
			report, err := app.Engine.Eligibility(app.Ctx, args[0], radiologistID)
			if err != nil {
				return err
			}

			fmt.Printf("\n%s (%d) for shift %s\n\n", report.Radiologist, report.RadiologistID, report.ShiftID)
			fmt.Printf("  Assignment:  %s\n", verdict(report.Assignable, report.FailedAssignment))
			fmt.Printf("  Bidding:     %s\n", verdict(report.CanBid, report.FailedBidding))
			fmt.Printf("  Credentials: %s\n\n", report.CredentialStatus)
			return nil
		},
	}
}

func verdict(ok bool, failed []string) string {
	if ok {
		return colorGreen + "eligible" + colorReset
	}
	return colorRed + "ineligible" + colorReset + " (fails " + strings.Join(failed, ", ") + ")"
}

func printCandidates(app *AppContext, shiftID string) error {
	candidates, err := app.Engine.Candidates(app.Ctx, shiftID)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		fmt.Println("No eligible radiologists.")
		return nil
	}

	fmt.Printf("\nSmart distribution ranking for shift %s:\n\n", shiftID)
	for i, c := range candidates {
		fmt.Printf("  %2d. %-24s  burden %.2f  last 30 days %d  year %d\n",
			i+1,
			c.Radiologist.Name,
			c.Burden,
			c.Radiologist.CallHistory.Last30Days,
			c.Radiologist.CallHistory.YearTotal,
		)
	}
	fmt.Println()
	return nil
}
