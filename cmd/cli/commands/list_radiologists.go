package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// ListRadiologistsCmd creates the listRadiologists command
func ListRadiologistsCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "listRadiologists",
		Short: "List radiologists from the directory with their credential status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rads, err := app.Directory.ListRadiologists(app.Ctx)
			if err != nil {
				return fmt.Errorf("failed to list radiologists: %w", err)
			}

			today := app.Registry.Now()
			fmt.Printf("\nFound %d radiologists:\n\n", len(rads))
			for _, r := range rads {
				optIn := ""
				if r.Preferences.BiddingOptIn {
					optIn = fmt.Sprintf(" [bids up to %s]", formatMoney(r.Preferences.MaxAutoBid))
				}
				fmt.Printf("- %s (%d) - %s - %s - %s - %d calls in 30 days%s\n",
					r.Name,
					r.ID,
					r.Subspecialty,
					strings.Join(r.Locations, ", "),
					r.Credentials.Status(today),
					r.CallHistory.Last30Days,
					optIn,
				)
			}
			fmt.Println()
			return nil
		},
	}
}
