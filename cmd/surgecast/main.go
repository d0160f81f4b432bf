package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/abelzeko/surgecast/internal/app"
	"github.com/abelzeko/surgecast/internal/entities"
	"github.com/abelzeko/surgecast/internal/usecases"
	"github.com/abelzeko/surgecast/internal/version"
	"github.com/spf13/cobra"
)

var (
	configPath string
	surge      *app.App
)

var rootCmd = &cobra.Command{
	Use:     "surgecast",
	Short:   "Prepare, run and publish storm surge forecast cycles",
	Version: version.String(),
	Long: `surgecast builds the SCHISM/WWM inputs of a forecast cycle from GFS
forcing, runs the solver and publishes station series with a manifest.

Cycles are given as YYYYMMDDHH, for example 2024052600.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		app.SetupLogging(os.Stdout)
		cfg, err := app.LoadConfig(configPath)
		if err != nil {
			return err
		}
		surge, err = app.New(cfg, false)
		return err
	},
}

var prepareCmd = &cobra.Command{
	Use:   "prepare [cycle]",
	Short: "Write every solver input of a cycle into its run directory",
	Args:  cobra.ExactArgs(1),
	RunE: cycleCommand(func(ctx context.Context, uc *usecases.ForecastUseCase, c entities.Cycle) error {
		return uc.PrepareCycle(ctx, c)
	}),
}

var runCmd = &cobra.Command{
	Use:   "run [cycle]",
	Short: "Run the solver on a prepared cycle",
	Args:  cobra.ExactArgs(1),
	RunE: cycleCommand(func(ctx context.Context, uc *usecases.ForecastUseCase, c entities.Cycle) error {
		return uc.RunCycle(ctx, c)
	}),
}

var publishCmd = &cobra.Command{
	Use:   "publish [cycle]",
	Short: "Extract station series and write the manifest of a finished cycle",
	Args:  cobra.ExactArgs(1),
	RunE: cycleCommand(func(ctx context.Context, uc *usecases.ForecastUseCase, c entities.Cycle) error {
		return uc.PublishCycle(ctx, c)
	}),
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download GFS cycles not yet on disk",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := surge.UseCase.Fetch(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Downloaded %d GFS cycles\n", n)
		return nil
	},
}

var latestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Process the newest available GFS cycle end to end",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return surge.UseCase.ProcessLatest(cmd.Context())
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current cycle status and rewrite status.json",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := surge.UseCase.BuildStatusReport()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), usecases.FormatStatusReport(report))
		return surge.UseCase.WriteStatusFile()
	},
}

func cycleCommand(fn func(context.Context, *usecases.ForecastUseCase, entities.Cycle) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cycle, err := entities.ParseCycle(args[0])
		if err != nil {
			return err
		}
		return fn(cmd.Context(), surge.UseCase, cycle)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the HCL configuration file")
	rootCmd.AddCommand(prepareCmd, runCmd, publishCmd, fetchCmd, latestCmd, statusCmd)
}

// execute runs the command line and closes the database whether or not the command failed
func execute(ctx context.Context, args []string) error {
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)
	if surge != nil {
		if cerr := surge.Close(); cerr != nil {
			log.Printf("Failed to close repository: %v", cerr)
		}
	}
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := execute(ctx, os.Args[1:])
	stop()
	if err != nil {
		log.Printf("surgecast: %v", err)
		os.Exit(1)
	}
}
