package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/upb/academy-hub/app"
	"go.uber.org/zap"
)

func revokeSessionsCmd() *cobra.Command {
	var uid, reason string

	cmd := &cobra.Command{
		Use:   "revoke-sessions",
		Short: "Invalidate every session issued to a user",
		Long: `Move the user's revocation marker to now. Session cookies and identity
tokens issued before it are rejected; the user has to sign in again.`,
		Example: `  academyd revoke-sessions --uid coach-1 --reason "lost device"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}

			deps, err := app.NewDependencies(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer deps.Close(cmd.Context())

			if err := deps.Identity.RevokeSessions(cmd.Context(), uid); err != nil {
				return err
			}
			if err := deps.AuditService.LogSessionsRevoked(cmd.Context(), uid, reason); err != nil {
				logger.Warn("failed to queue revocation audit event", zap.Error(err))
			}

			fmt.Fprintf(cmd.OutOrStdout(), "revoked sessions of %s\n", uid)
			return nil
		},
	}

	cmd.Flags().StringVar(&uid, "uid", "", "profile uid")
	cmd.Flags().StringVar(&reason, "reason", "", "recorded in the audit log")
	_ = cmd.MarkFlagRequired("uid")

	return cmd
}
