package main

import (
	"fmt"
	"strings"

	"saas-billing/internal/pkg/rbac"
	authsvc "saas-billing/internal/service/auth"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRootCmd(open opener) *cobra.Command {
	var verbose bool
	var logger *zap.Logger

	root := &cobra.Command{
		Use:           "billingctl",
		Short:         "Operator tooling for the billing service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if verbose {
				logger, err = zap.NewDevelopment()
			} else {
				logger = zap.NewNop()
			}
			return err
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr")

	// withStores opens the stores for one command run.
	withStores := func(fn func(cmd *cobra.Command, s *Stores) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			s, err := open(cmd.Context(), logger)
			if err != nil {
				return err
			}
			if s.Close != nil {
				defer s.Close()
			}
			return fn(cmd, s)
		}
	}

	root.AddCommand(
		newMigrateCmd(withStores),
		newSeedTiersCmd(withStores),
		newCreateAdminCmd(withStores),
	)
	return root
}

type storeRunner func(fn func(cmd *cobra.Command, s *Stores) error) func(*cobra.Command, []string) error

func newMigrateCmd(run storeRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: run(func(cmd *cobra.Command, s *Stores) error {
			if err := s.Schema.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return nil
		}),
	}
}

func newSeedTiersCmd(run storeRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-tiers",
		Short: "Upsert the default subscription tiers",
		Args:  cobra.NoArgs,
		RunE: run(func(cmd *cobra.Command, s *Stores) error {
			seeded, err := s.Tiers.SeedDefaults(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, t := range seeded {
				yearly := "-"
				if t.PriceYearly != nil {
					yearly = fmt.Sprintf("%.2f", *t.PriceYearly)
				}
				fmt.Fprintf(out, "%-12s monthly=%.2f yearly=%s\n", t.Name, t.PriceMonthly, yearly)
			}
			return nil
		}),
	}
}

func newCreateAdminCmd(run storeRunner) *cobra.Command {
	var email, name, password string

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an ADMIN account",
		Long: `Create an ADMIN account. When --password is omitted a temporary
password is generated and printed once.`,
		Args: cobra.NoArgs,
		RunE: run(func(cmd *cobra.Command, s *Stores) error {
			generated := password == ""
			if generated {
				var err error
				if password, err = authsvc.GenerateTemporaryPassword(); err != nil {
					return err
				}
			}

			u, err := s.Users.CreateUser(cmd.Context(), strings.TrimSpace(name), email, password, rbac.RoleAdmin)
			if err != nil {
				return fmt.Errorf("failed to create admin: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "admin created: %s (%s)\n", u.Email, u.ID)
			if generated {
				fmt.Fprintf(out, "temporary password: %s\n", password)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&email, "email", "", "admin email")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&password, "password", "", "password (generated when empty)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
