package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"opdflow/internal/actor"
	"opdflow/internal/config"
	"opdflow/internal/core"
)

func newAuthCmd(root *rootOptions) *cobra.Command {
	auth := &cobra.Command{
		Use:   "auth",
		Short: "Check or refresh saved admin sessions",
		Long: `Manage the saved browser sessions of the admin realms.

Available subcommands:
  check   - Report whether each realm's storage state is fresh
  refresh - Log in to a realm by hand and save its storage state`,
	}

	check := &cobra.Command{
		Use:   "check",
		Short: "Report whether each realm's storage state is fresh",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			suite, err := root.suite(false)
			if err != nil {
				return err
			}
			stale, err := checkStates(cmd.OutOrStdout(), suite, core.RealClock{})
			if err != nil {
				return usageError(err)
			}
			if len(stale) > 0 {
				return failedError(fmt.Errorf("storage state needs refresh: %s (run opdflow auth refresh <realm>)", strings.Join(stale, ", ")))
			}
			return nil
		},
	}

	refresh := &cobra.Command{
		Use:       "refresh <realm>",
		Short:     "Log in to a realm by hand and save its storage state",
		Long:      "Opens a headed browser on the realm's login page and saves the session once the login completes.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{actor.RealmOpex, actor.RealmMRKun},
		RunE: func(cmd *cobra.Command, args []string) error {
			suite, err := root.suite(false)
			if err != nil {
				return err
			}
			realm, ok := actor.Realms(suite)[args[0]]
			if !ok {
				return usageError(fmt.Errorf("unknown realm %q (known: %s)", args[0], strings.Join(actor.RealmNames(suite), ", ")))
			}
			logger, err := root.logger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			if err := actor.RefreshStorageState(cmd.Context(), suite, realm, logger); err != nil {
				return failedError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s session to %s\n", realm.Name, realm.State)
			return nil
		},
	}

	auth.AddCommand(check, refresh)
	return auth
}

// checkStates prints the freshness of every realm and returns the realms
// whose state is missing or older than auth.max_age.
func checkStates(w io.Writer, suite *config.Suite, clock core.Clock) ([]string, error) {
	realms := actor.Realms(suite)
	var stale []string
	for _, name := range actor.RealmNames(suite) {
		realm := realms[name]
		if realm.State == "" {
			fmt.Fprintf(w, "%-6s not configured\n", name)
			stale = append(stale, name)
			continue
		}
		f, err := actor.Fresh(realm.State, suite.Auth.MaxAge, clock)
		if err != nil {
			return nil, fmt.Errorf("realm %s: %w", name, err)
		}
		fmt.Fprintf(w, "%-6s %s\n", name, f)
		if !f.Fresh {
			stale = append(stale, name)
		}
	}
	return stale, nil
}
