package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"fintrack/internal/config"
	"fintrack/internal/infrastructure/database"
	"fintrack/internal/service"
	"fintrack/pkg/authtoken"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(tokenCmd)

	sweepCmd.Flags().String("owner", "", "Only sweep this owner (UUID); all owners when empty")
	tokenCmd.Flags().String("owner", "", "Owner UUID to issue the token for")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	_ = tokenCmd.MarkFlagRequired("owner")
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update database tables and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		db, err := database.Open(&cfg.Database)
		if err != nil {
			return err
		}
		if err := database.Migrate(db); err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, "migrate ok")
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Reset paid recurring bills whose due date has passed",
	Long: `Run the auto-reset once and exit. Paid definitions whose next occurrence
is before today (in business.timezone) go back to unpaid and advance one period.
Ledger entries are kept.`,
	RunE: runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, store, err := bootstrap()
	if err != nil {
		return err
	}
	locker, redisClient, err := newLocker(cfg)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	recurring := service.NewRecurringService(store, locker, cfg)
	owner, _ := cmd.Flags().GetString("owner")

	var result *service.SweepResult
	if owner != "" {
		result, err = recurring.SweepOwner(service.WithOwner(context.Background(), owner))
	} else {
		result, err = recurring.SweepAll(context.Background())
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "checked=%d reset=%d skipped=%d failed=%d\n",
		result.Checked, result.Reset, result.Skipped, result.Failed)
	if result.Failed > 0 {
		return fmt.Errorf("%d definitions failed to reset", result.Failed)
	}
	return nil
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for local development",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		owner, _ := cmd.Flags().GetString("owner")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		token, err := authtoken.Generate(cfg.Auth.JWTSecret, cfg.Auth.Issuer, owner, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, token)
		return nil
	},
}
