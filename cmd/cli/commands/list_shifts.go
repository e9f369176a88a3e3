package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jakechorley/radflow/pkg/core/model"
)

// ListShiftsCmd creates the listShifts command
func ListShiftsCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listShifts",
		Short: "List registered shifts, optionally filtered by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			statusFlags, _ := cmd.Flags().GetStringSlice("status")

			var statuses []model.ShiftStatus
			for _, s := range statusFlags {
				status, err := model.ParseShiftStatus(s)
				if err != nil {
					return err
				}
				statuses = append(statuses, status)
			}

			shifts := app.Engine.ListShifts(app.Ctx, statuses...)
			if len(shifts) == 0 {
				fmt.Println("No shifts found.")
				return nil
			}

			fmt.Printf("\nFound %d shifts:\n\n", len(shifts))
			fmt.Printf("%-36s  %-14s  %-13s  %-16s  %-16s  %-20s  %s\n", "ID", "Date", "Type", "Location", "Subspecialty", "Status", "Priority")
			fmt.Println(strings.Repeat("-", 140))
			for _, s := range shifts {
				printShiftRow(s)
			}
			fmt.Println()
			return nil
		},
	}

	cmd.Flags().StringSlice("status", nil, "Only list shifts in these statuses (e.g. active_bidding,pending_approval)")

	return cmd
}

// ShowShiftCmd creates the showShift command
func ShowShiftCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "showShift <shift_id>",
		Short: "Show a shift with its bid history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			shift, err := app.Engine.GetShift(app.Ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Println()
			printShift(shift)
			return nil
		},
	}
}
