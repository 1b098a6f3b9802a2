package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/PortNumber53/tryout-admin/backend/internal/migrations"
	"github.com/PortNumber53/tryout-admin/backend/internal/store"
)

type dbOpener func(ctx context.Context) (*sql.DB, error)

// newRootCmd builds the dbtool command tree. Running it without a
// subcommand applies pending migrations.
func newRootCmd(open dbOpener) *cobra.Command {
	up := upCmd(open)

	root := &cobra.Command{
		Use:           "dbtool",
		Short:         "Database maintenance for the tryout admin backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          up.RunE,
	}
	root.AddCommand(up, fixCmd(open), forceCmd(open), statusCmd(open), expireCmd(open))
	return root
}

func withDB(open dbOpener, fn func(cmd *cobra.Command, db *sql.DB, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		db, err := open(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()
		return fn(cmd, db, args)
	}
}

func upCmd(open dbOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: withDB(open, func(cmd *cobra.Command, db *sql.DB, args []string) error {
			log.Printf("Applying migrations...")
			if err := migrations.Up(db); err != nil {
				return fmt.Errorf("apply migrations: %w", err)
			}
			log.Printf("Migrations applied successfully")
			return nil
		}),
	}
}

func fixCmd(open dbOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "fix",
		Short: "Clear the dirty flag left by a failed migration",
		Args:  cobra.NoArgs,
		RunE: withDB(open, func(cmd *cobra.Command, db *sql.DB, args []string) error {
			log.Printf("Attempting to fix dirty database...")
			if err := migrations.FixDirtyDatabase(db); err != nil {
				return fmt.Errorf("fix dirty database: %w", err)
			}
			log.Printf("Database fixed successfully")
			return nil
		}),
	}
}

func parseVersion(raw string) (uint, error) {
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid version number: %s", raw)
	}
	return uint(v), nil
}

func forceCmd(open dbOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "force <version>",
		Short: "Force the recorded schema version",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := parseVersion(args[0])
			return err
		},
		RunE: withDB(open, func(cmd *cobra.Command, db *sql.DB, args []string) error {
			v, _ := parseVersion(args[0])
			log.Printf("Forcing database version to %d...", v)
			if err := migrations.ForceVersion(db, v); err != nil {
				return fmt.Errorf("force version: %w", err)
			}
			log.Printf("Database version forced to %d", v)
			return nil
		}),
	}
}

func statusCmd(open dbOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: withDB(open, func(cmd *cobra.Command, db *sql.DB, args []string) error {
			v, dirty, err := migrations.Version(db)
			if err != nil {
				return fmt.Errorf("read migration status: %w", err)
			}
			if v == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No migrations applied yet")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema version: %d (dirty: %t)\n", v, dirty)
			return nil
		}),
	}
}

func expireCmd(open dbOpener) *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "expire",
		Short: "Flag subscriptions whose window has ended as inactive",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if at == "" {
				return nil
			}
			if _, err := time.Parse(time.RFC3339, at); err != nil {
				return fmt.Errorf("--at must be RFC3339: %w", err)
			}
			return nil
		},
		RunE: withDB(open, func(cmd *cobra.Command, db *sql.DB, args []string) error {
			cutoff := time.Now().UTC()
			if at != "" {
				cutoff, _ = time.Parse(time.RFC3339, at)
			}

			st, err := store.New(db)
			if err != nil {
				return err
			}
			expired, err := st.ExpireSubscriptions(cmd.Context(), cutoff)
			if err != nil {
				return fmt.Errorf("expire subscriptions: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Expired %d subscriptions\n", expired)
			return nil
		}),
	}
	cmd.Flags().StringVar(&at, "at", "", "cutoff time (RFC3339); defaults to now")
	return cmd
}
