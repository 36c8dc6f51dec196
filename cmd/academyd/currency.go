package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/upb/academy-hub/preferences"
)

func currencyCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "default-currency [CODE]",
		Short: "Show or set the currency served to browsers without a preference",
		Long: `Read or write the server-wide default currency kept in the preferences
file (PREFERENCES_FILE, or --file). A browser's own choice always wins.`,
		Example: `  academyd default-currency
  academyd default-currency EUR --file /var/lib/academyd/preferences.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				cfg, _, err := bootstrap(cmd.Context())
				if err != nil {
					return err
				}
				file = cfg.Preferences.File
			}
			if file == "" {
				return errors.New("no preferences file: set PREFERENCES_FILE or --file")
			}

			store := preferences.NewFileStore(file)
			if len(args) == 1 {
				c, err := preferences.ParseCurrency(args[0])
				if err != nil {
					return fmt.Errorf("%w (supported: %v)", err, preferences.Currencies())
				}
				if err := store.SetCurrency(c); err != nil {
					return err
				}
			}

			c, err := store.Currency()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", c, c.Symbol())
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "preferences file (defaults to PREFERENCES_FILE)")
	return cmd
}
