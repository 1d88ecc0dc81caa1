package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/roach88/carta/internal/auth"
)

// HashPasswordOptions holds flags for the hash-password command.
type HashPasswordOptions struct {
	*RootOptions
	Cost int
}

// NewHashPasswordCommand creates the hash-password command.
func NewHashPasswordCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HashPasswordOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print the bcrypt hash for admin.password_hash",
		Long: `Print the bcrypt hash of a password for use as admin.password_hash or
CARTA_ADMIN_PASSWORD_HASH. Without an argument the password is read from the
first line of stdin.

Example:
  carta hash-password 's3cret'
  echo 's3cret' | carta hash-password`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHashPassword(opts, cmd, args)
		},
	}

	cmd.Flags().IntVar(&opts.Cost, "cost", bcrypt.DefaultCost, "bcrypt cost")

	return cmd
}

func runHashPassword(opts *HashPasswordOptions, cmd *cobra.Command, args []string) error {
	var password string
	if len(args) == 1 {
		password = args[0]
	} else {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return WrapExitError(ExitCommandError, "failed to read password", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return NewExitError(ExitCommandError, "password is empty")
	}
	if opts.Cost < bcrypt.MinCost || opts.Cost > bcrypt.MaxCost {
		return WrapExitError(ExitCommandError, "invalid cost",
			fmt.Errorf("cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}

	hash, err := auth.HashPassword(password, opts.Cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return WrapExitError(ExitCommandError, "password is longer than 72 bytes", err)
		}
		return WrapExitError(ExitFailure, "failed to hash password", err)
	}

	out := formatter(cmd, opts.RootOptions)
	if opts.Format == "json" {
		return out.Success(map[string]string{"hash": hash})
	}
	return out.Success(hash)
}
