package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jakechorley/radflow/pkg/core/model"
	"github.com/jakechorley/radflow/pkg/core/services"
)

// GenerateShiftsCmd creates the generateShifts command
func GenerateShiftsCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generateShifts <from> <to>",
		Short: "Create shifts from the configured templates for every date in the range",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := model.ParseDate(args[0])
			if err != nil {
				return err
			}
			to, err := model.ParseDate(args[1])
			if err != nil {
				return err
			}
			run, _ := cmd.Flags().GetBool("run")

			result, err := services.GenerateShifts(app.Ctx, app.Engine, app.Cfg.ShiftTemplates, from, to, app.Logger)
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Created %d shifts (%d already registered)\n\n", len(result.Created), result.Existing)
			for _, s := range result.Created {
				printShiftRow(s)
			}
			fmt.Println()

			if run {
				for _, s := range result.Created {
					if err := runAndPrint(app, s.ID); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().Bool("run", false, "Run the assignment engine on each created shift")

	return cmd
}
