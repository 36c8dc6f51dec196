package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/upb/academy-hub/app"
	"github.com/upb/academy-hub/models"
	"github.com/upb/academy-hub/services/account"
)

func provisionUserCmd() *cobra.Command {
	var (
		req  account.ProvisionRequest
		role string
	)

	cmd := &cobra.Command{
		Use:   "provision-user",
		Short: "Create a profile with an initial password",
		Long: `Create a profile and store its password hash.

Owners and coaches must be linked to an existing academy with --academy.`,
		Example: `  academyd provision-user --email root@example.com --role super-admin --password 'changeme-now'
  academyd provision-user --email coach@example.com --role coach --academy riverside --password 'changeme-now'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := models.ParseRole(role)
			if err != nil {
				return err
			}
			req.Role = parsed

			cfg, logger, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}

			deps, err := app.NewDependencies(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer deps.Close(cmd.Context())

			profile, err := deps.Accounts.ProvisionUser(cmd.Context(), req)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "provisioned %s (%s) uid=%s\n", profile.Email, profile.Role, profile.UID)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.UID, "uid", "", "profile uid (generated when empty)")
	cmd.Flags().StringVar(&req.Email, "email", "", "sign-in email")
	cmd.Flags().StringVar(&req.DisplayName, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", "", "one of super-admin, owner, coach")
	cmd.Flags().StringVar(&req.AcademySlug, "academy", "", "academy slug for owners and coaches")
	cmd.Flags().StringVar(&req.Password, "password", "", "initial password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("role")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}
