package main

import (
	"context"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"spotcheck/internal/adapters/observability"
	"spotcheck/internal/shared"
)

type envKey struct{}

func envFrom(cmd *cobra.Command) *env { return cmd.Context().Value(envKey{}).(*env) }

// run executes one CLI invocation and releases whatever it opened, also when
// the command fails.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var opened *env
	defer func() {
		if opened != nil {
			opened.Close()
		}
	}()

	root := newRootCmd(func(e *env) { opened = e })
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

func newRootCmd(onEnv func(*env)) *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:           "spotcheck",
		Short:         "Browse places, write reviews and keep favorites",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := shared.Load()
			level := cfg.LogLevel
			if verbose {
				level = "debug"
			}
			log.Logger = observability.NewLogger(cfg.AppEnv, level, cmd.ErrOrStderr())

			e, err := buildEnv(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			onEnv(e)
			cmd.SetContext(context.WithValue(cmd.Context(), envKey{}, e))
			return nil
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newLoginCmd(),
		newRegisterCmd(),
		newLogoutCmd(),
		newWhoamiCmd(),
		newPlacesCmd(),
		newPlaceCmd(),
		newSearchCmd(),
		newReviewCmd(),
		newFavoritesCmd(),
	)
	return root
}

// guardErr turns the login redirect into a user-facing message.
func guardErr(nav *loginNav, err error) error {
	if nav.asked {
		return errLoginFirst
	}
	return err
}
