package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jakechorley/radflow/cmd/cli/commands"
)

func main() {
	var opts commands.Options
	app := &commands.AppContext{}

	rootCmd := &cobra.Command{
		Use:           "radflow",
		Short:         "RadFlow - Radiology call shift distribution and bidding",
		Long:          `A CLI and API for assigning radiology call shifts by smart distribution or open bidding.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if app.Initialized() {
				return nil
			}
			return app.Init(context.Background(), opts)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.Env, "env", "e", "", "Environment (required: test, prod, etc.)")
	rootCmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Log debug output to the console")
	rootCmd.PersistentFlags().BoolVar(&opts.JSONLogs, "json-logs", false, "Log JSON to the console")
	rootCmd.MarkPersistentFlagRequired("env")

	rootCmd.AddCommand(commands.CreateShiftCmd(app))
	rootCmd.AddCommand(commands.GenerateShiftsCmd(app))
	rootCmd.AddCommand(commands.ListShiftsCmd(app))
	rootCmd.AddCommand(commands.ShowShiftCmd(app))
	rootCmd.AddCommand(commands.RunShiftCmd(app))
	rootCmd.AddCommand(commands.PlaceBidCmd(app))
	rootCmd.AddCommand(commands.AutoBidCmd(app))
	rootCmd.AddCommand(commands.CloseShiftCmd(app))
	rootCmd.AddCommand(commands.ApproveShiftCmd(app))
	rootCmd.AddCommand(commands.WithdrawShiftCmd(app))
	rootCmd.AddCommand(commands.EligibilityCmd(app))
	rootCmd.AddCommand(commands.ListRadiologistsCmd(app))
	rootCmd.AddCommand(commands.ReportCmd(app))
	rootCmd.AddCommand(commands.SweepCmd(app))
	rootCmd.AddCommand(commands.ServeCmd(app))
	rootCmd.AddCommand(commands.InteractiveCmd(app))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		_ = app.Close()
		os.Exit(1)
	}
}
