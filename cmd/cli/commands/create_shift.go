package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jakechorley/radflow/pkg/core/model"
)

// CreateShiftCmd creates the createShift command
func CreateShiftCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "createShift <date> <shift_type> <location>",
		Short: "Register an open call shift (shift type: weekday_day, weekday_night, weekend_day, weekend_night)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := model.ParseDate(args[0])
			if err != nil {
				return err
			}
			shiftType, err := model.ParseShiftType(args[1])
			if err != nil {
				return err
			}

			subspecialty, _ := cmd.Flags().GetString("subspecialty")
			hours, _ := cmd.Flags().GetInt("hours")
			pay, _ := cmd.Flags().GetInt("pay")
			modeFlag, _ := cmd.Flags().GetString("mode")
			priorityFlag, _ := cmd.Flags().GetString("priority")
			run, _ := cmd.Flags().GetBool("run")

			mode, err := model.ParseAssignmentMode(modeFlag)
			if err != nil {
				return err
			}
			priority, err := model.ParsePriority(priorityFlag)
			if err != nil {
				return err
			}

			shift, err := app.Engine.CreateShift(app.Ctx, model.ShiftSpec{
				Date:             date,
				Type:             shiftType,
				Location:         args[2],
				Subspecialty:     subspecialty,
				Duration:         time.Duration(hours) * time.Hour,
				BaseCompensation: pay,
				Mode:             mode,
				Priority:         priority,
			})
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Shift created!\n\n")
			printShift(shift)

			if run {
				return runAndPrint(app, shift.ID)
			}
			return nil
		},
	}

	cmd.Flags().String("subspecialty", model.SubspecialtyAny, "Required subspecialty")
	cmd.Flags().Int("hours", 12, "Shift duration in hours")
	cmd.Flags().Int("pay", 0, "Base compensation in dollars")
	cmd.Flags().String("mode", "", "Assignment mode override (smart, bidding, hybrid)")
	cmd.Flags().String("priority", "", "Priority (normal, high, urgent)")
	cmd.Flags().Bool("run", false, "Run the assignment engine immediately")

	return cmd
}
