package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func parseIntArg(name, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", name, err)
	}
	return n, nil
}

// PlaceBidCmd creates the placeBid command
func PlaceBidCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "placeBid <shift_id> <radiologist_id> <amount>",
		Short: "Place a bid on a shift in Active Bidding",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			radiologistID, err := parseIntArg("radiologist_id", args[1])
			if err != nil {
				return err
			}
			amount, err := parseIntArg("amount", args[2])
			if err != nil {
				return err
			}

			shift, err := app.Engine.PlaceBid(app.Ctx, args[0], radiologistID, amount)
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Bid of %s accepted\n\n", formatMoney(amount))
			printShift(shift)
			return nil
		},
	}
}

// AutoBidCmd creates the autoBid command
func AutoBidCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "autoBid <shift_id> <radiologist_id> [ceiling]",
		Short: "Register a standing auto-bid (defaults to the radiologist's preferred maximum)",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			radiologistID, err := parseIntArg("radiologist_id", args[1])
			if err != nil {
				return err
			}
			var ceiling int
			if len(args) > 2 {
				if ceiling, err = parseIntArg("ceiling", args[2]); err != nil {
					return err
				}
			}

			shift, err := app.Engine.RegisterAutoBid(app.Ctx, args[0], radiologistID, ceiling)
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Auto-bid registered\n\n")
			printShift(shift)
			return nil
		},
	}
}
