package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/real-estate-listings/internal/billing"
	"github.com/iliyamo/real-estate-listings/internal/config"
	"github.com/iliyamo/real-estate-listings/internal/database"
	"github.com/iliyamo/real-estate-listings/internal/logging"
	"github.com/iliyamo/real-estate-listings/internal/plan"
	"github.com/iliyamo/real-estate-listings/internal/quota"
	"github.com/iliyamo/real-estate-listings/internal/repository"
)

// opener returns the database the commands work on. Tests replace it.
type opener func() (*sql.DB, database.Dialect, error)

func openFromEnv() (*sql.DB, database.Dialect, error) {
	cfg := config.LoadDatabase()
	return database.Connect(cfg.DBDriver, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.SQLitePath)
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(openFromEnv)
}

func newRootCmdWith(open opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "listingsctl",
		Short:         "Maintenance commands for the listings service",
		SilenceUsage: true,
	}
	root.AddCommand(newMigrateCmd(open), newPlanCmd(open), newTokensCmd(open))
	return root
}

func newMigrateCmd(open opener) *cobra.Command {
	var printMySQL bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the SQLite schema, or print the MySQL schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if printMySQL {
				_, err := io.WriteString(cmd.OutOrStdout(), database.MySQLSchema)
				return err
			}
			db, dialect, err := open()
			if err != nil {
				return err
			}
			defer db.Close()
			if dialect == database.MySQL {
				return fmt.Errorf("MySQL schemas are applied by the DBA; run with --print-mysql")
			}
			if err := database.Migrate(db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
	cmd.Flags().BoolVar(&printMySQL, "print-mysql", false, "print the MySQL schema instead of migrating")
	return cmd
}

func newPlanCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Inspect and change subscription plans",
	}

	var (
		userID uint64
		name   string
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Put a user on a plan",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, dialect, err := open()
			if err != nil {
				return err
			}
			defer db.Close()
			log := logging.NewWriter(cmd.ErrOrStderr(), "warn", "text")
			svc := billing.NewService(db, repository.NewUserRepo(db, dialect), nil, log)
			p, err := svc.SetPlan(context.Background(), userID, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %d is on the %s plan\n", userID, p)
			return nil
		},
	}
	set.Flags().Uint64Var(&userID, "user", 0, "user id")
	set.Flags().StringVar(&name, "plan", "", "plan name (free, pro, agency)")
	_ = set.MarkFlagRequired("user")
	_ = set.MarkFlagRequired("plan")

	var showUser uint64
	show := &cobra.Command{
		Use:   "show",
		Short: "List the plans, or a user's usage with --user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if showUser == 0 {
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "PLAN\tACTIVE LISTINGS\tIMAGES PER LISTING")
				for _, e := range plan.All() {
					fmt.Fprintf(tw, "%s\t%d\t%d\n", e.Plan, e.Limits.MaxActiveListings, e.Limits.MaxImages)
				}
				return tw.Flush()
			}
			db, dialect, err := open()
			if err != nil {
				return err
			}
			defer db.Close()
			users := repository.NewUserRepo(db, dialect)
			listings := repository.NewListingRepo(db, dialect)
			guard := quota.NewGuard(db, users, listings, repository.NewImageRepo(db))
			dec, err := guard.Usage(context.Background(), showUser)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "user %d: %s plan, %d of %d active listings\n", showUser, dec.Plan, dec.Active, dec.Limit)
			return nil
		},
	}
	show.Flags().Uint64Var(&showUser, "user", 0, "show usage for this user id")

	cmd.AddCommand(set, show)
	return cmd
}

func newTokensCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Manage refresh tokens",
	}
	var keep time.Duration
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete refresh tokens that expired or were revoked",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, _, err := open()
			if err != nil {
				return err
			}
			defer db.Close()
			n, err := repository.NewTokenRepo(db).PurgeExpired(context.Background(), time.Now().Add(-keep))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d token(s)\n", n)
			return nil
		},
	}
	purge.Flags().DurationVar(&keep, "keep", 0, "keep tokens that ended less than this long ago")
	cmd.AddCommand(purge)
	return cmd
}
