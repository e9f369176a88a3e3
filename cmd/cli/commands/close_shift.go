package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jakechorley/radflow/pkg/core/auction"
)

// CloseShiftCmd creates the closeShift command
func CloseShiftCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "closeShift <shift_id>",
		Short: "Close the auction on a shift whose bidding window has ended",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")

			result, shift, err := app.Engine.Close(app.Ctx, args[0], force)
			if err != nil {
				return err
			}

			switch result {
			case auction.ClosedFilled:
				fmt.Printf("\n✓ Awarded to radiologist %s at %s\n\n", optionalInt(shift.AssignedRadiologist), formatMoney(shift.WinningAmount()))
			case auction.ClosedPendingApproval:
				fmt.Printf("\n⚠️  Winning bid of %s needs approval\n\n", formatMoney(shift.WinningAmount()))
			case auction.ClosedExtended:
				fmt.Printf("\n⚠️  No bids, bidding extended until %s\n\n", shift.BiddingEndsAt.Format("2006-01-02 15:04 MST"))
			case auction.ClosedExpired:
				fmt.Printf("\n✗ No bids, shift expired\n\n")
			}
			printShift(shift)
			return nil
		},
	}

	cmd.Flags().Bool("force", false, "Close before the bidding window ends")

	return cmd
}

// ApproveShiftCmd creates the approveShift command
func ApproveShiftCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "approveShift <shift_id> <approve|reject>",
		Short: "Resolve a winning bid awaiting approval",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var approved bool
			switch strings.ToLower(args[1]) {
			case "approve", "yes", "y":
				approved = true
			case "reject", "no", "n":
				approved = false
			default:
				return fmt.Errorf("decision must be approve or reject, got: %s", args[1])
			}

			shift, err := app.Engine.Resolve(app.Ctx, args[0], approved)
			if err != nil {
				return err
			}

			if approved {
				fmt.Printf("\n✓ Approved, awarded to radiologist %s\n\n", optionalInt(shift.AssignedRadiologist))
			} else {
				fmt.Printf("\n✗ Rejected, shift expired\n\n")
			}
			printShift(shift)
			return nil
		},
	}
}

// WithdrawShiftCmd creates the withdrawShift command
func WithdrawShiftCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "withdrawShift <shift_id>",
		Short: "Withdraw a shift that no longer needs covering",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			shift, err := app.Engine.Withdraw(app.Ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("\n✓ Shift withdrawn\n\n")
			printShift(shift)
			return nil
		},
	}
}
