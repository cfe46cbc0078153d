package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"possystem/backend/internal/auth"
)

func NewHashPasswordCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print the bcrypt hash stored for an employee password",
		Long: `Print the bcrypt hash stored for an employee password. Without an
argument the password is read from the first line of stdin, which keeps it out
of shell history.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)

			password := ""
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && err != io.EOF {
					return out.Failure(WrapExitError(ExitCommandError, "read password", err))
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if len(password) < 6 || len(password) > 72 {
				return out.Failure(NewExitError(ExitRefused, "password must be 6 to 72 characters"))
			}

			hash, err := auth.HashPassword(password)
			if err != nil {
				return out.Failure(WrapExitError(ExitCommandError, "hash password", err))
			}
			return out.Success(map[string]string{"hash": hash}, func(w io.Writer) {
				fmt.Fprintln(w, hash)
			})
		},
	}
}
