// Package cli implements posctl, the operator command line over the same
// service the HTTP API uses.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"possystem/backend/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	EnvFile string

	// OpenGateway replaces configuration-driven gateway selection. Tests set
	// it to share one in-memory store across commands.
	OpenGateway GatewayOpener
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "posctl",
		Short: "Operate the point-of-sale backend",
		Long: `posctl runs point-of-sale operations directly against the configured
database: seeding, purchases, returns and reporting.

The database is chosen like the server does it: DATABASE_URL, then
SQLITE_PATH, then a seeded in-memory store that lives for one command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", "", "dotenv file to load before reading configuration (default .env)")

	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewStoresCommand(opts))
	cmd.AddCommand(NewPartsCommand(opts))
	cmd.AddCommand(NewPurchaseCommand(opts))
	cmd.AddCommand(NewReturnCommand(opts))
	cmd.AddCommand(NewReturnTransactionCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewSummaryCommand(opts))
	cmd.AddCommand(NewHashPasswordCommand(opts))

	return cmd
}

// GatewayOpener is the signature of backend.Open once configuration is bound.
type GatewayOpener func(cmd *cobra.Command) (store.Gateway, error)
