// Package manage holds the administrative commands: config files, database
// setup and manual rating changes.
package manage

import (
	"fmt"
	"strconv"
	"time"

	engine "github.com/rustyeddy/creditrisk/config"
	"github.com/rustyeddy/creditrisk/credit"
	"github.com/rustyeddy/creditrisk/internal/cli/config"
	"github.com/rustyeddy/creditrisk/store"
	"github.com/spf13/cobra"
)

var skipConfig = map[string]string{"skip-config": "true"}

func NewConfigCmd(rc *config.RootConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or check configuration files",
	}

	cmd.AddCommand(&cobra.Command{
		Use:         "init [path]",
		Short:       "Write the default configuration (yaml or json by extension)",
		Args:        cobra.MaximumNArgs(1),
		Annotations: skipConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "creditrisk.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := engine.Default().SaveToFile(path); err != nil {
				return fmt.Errorf("config init: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:         "validate <path>",
		Short:       "Load and validate a configuration file",
		Args:        cobra.ExactArgs(1),
		Annotations: skipConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := engine.LoadFromFile(args[0]); err != nil {
				return fmt.Errorf("config validate: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", args[0])
			return nil
		},
	})

	return cmd
}

func NewDBCmd(rc *config.RootConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database setup",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := rc.OpenStore()
			if err != nil {
				return err
			}
			defer st.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "initialized %s\n", rc.Cfg.Data.DBPath())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "seed <fixture.yaml>",
		Short: "Load a YAML fixture into the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := store.LoadFixture(args[0])
			if err != nil {
				return fmt.Errorf("db seed: %w", err)
			}
			st, err := rc.OpenStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Seed(cmd.Context(), snap); err != nil {
				return fmt.Errorf("db seed: %w", err)
			}
			rc.Log.Info().
				Int("customers", len(snap.Customers)).
				Int("contracts", len(snap.Contracts)).
				Int("payments", len(snap.Payments)).
				Msg("fixture loaded")
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %s from %s\n", rc.Cfg.Data.DBPath(), args[0])
			return nil
		},
	})

	return cmd
}

func NewRatingCmd(rc *config.RootConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rating",
		Short: "Manual rating changes",
	}

	var reason, handler string
	set := &cobra.Command{
		Use:   "set <customer-id> <grade>",
		Short: "Change a customer's rating and record the history entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			customerID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return credit.InvalidInput("bad customer id %q", args[0])
			}
			grade := credit.Grade(args[1])

			st, err := rc.OpenStore()
			if err != nil {
				return err
			}
			defer st.Close()

			change, err := st.ChangeRating(cmd.Context(), customerID, grade, reason, handler, time.Now())
			if err != nil {
				return fmt.Errorf("rating set: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "customer %d: %s -> %s (%s)\n",
				change.CustomerID, change.OldRating, change.NewRating, change.ID)
			return nil
		},
	}
	set.Flags().StringVar(&reason, "reason", "", "Reason for the change")
	set.Flags().StringVar(&handler, "handler", "", "Who made the change")
	cmd.AddCommand(set)

	return cmd
}
