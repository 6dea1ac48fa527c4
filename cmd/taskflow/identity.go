package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/abatilo/taskflow/internal/identity"
)

// loginCmd implements 'taskflow login'.
func loginCmd() *cobra.Command {
	var tenant string
	var stdin bool
	cmd := &cobra.Command{
		Use:   "login [user]",
		Short: "Sign in as the user recorded on every change",
		Long: "Sign in as the user recorded on every change.\n" +
			"With --stdin, reads {\"user_id\": ..., \"tenant_id\": ...} from standard input.",
		Args: cobra.MaximumNArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			cfg, dir, err := loadConfig()
			if err != nil {
				printError(err)
			}

			var user string
			switch {
			case stdin:
				id, decodeErr := identity.Decode(os.Stdin)
				if decodeErr != nil {
					printError(decodeErr)
				}
				user, tenant = id.UserID, id.TenantID
			case len(args) == 1:
				user = args[0]
			default:
				printError(errors.New("a user or --stdin is required"))
			}
			if tenant == "" {
				tenant = cfg.Tenant
			}

			if exists, lookupErr := cfg.UserDirectory().UserExists(context.Background(), user); lookupErr != nil {
				printError(lookupErr)
			} else if !exists {
				printError(fmt.Errorf("unknown user %q", user))
			}

			if _, statErr := os.Stat(dir); statErr != nil {
				printError(statErr)
			}
			previous, err := identity.Login(dir, user, tenant, time.Now())
			if err != nil {
				printError(err)
			}

			msg := "Signed in as " + user
			if previous != "" && previous != user {
				msg += " (was " + previous + ")"
			}
			printOutput(formatter.FormatMessage(msg))
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant (default from config)")
	cmd.Flags().BoolVar(&stdin, "stdin", false, "Read the identity as JSON from stdin")
	return cmd
}

// logoutCmd implements 'taskflow logout'.
func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out",
		Run: func(_ *cobra.Command, _ []string) {
			_, dir, err := loadConfig()
			if err != nil {
				printError(err)
			}
			if err = identity.Logout(dir); err != nil {
				printError(err)
			}
			printOutput(formatter.FormatMessage("Signed out"))
		},
	}
}

// whoamiCmd implements 'taskflow whoami'.
func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show who changes are recorded as",
		Run: func(_ *cobra.Command, _ []string) {
			_, dir, err := loadConfig()
			if err != nil {
				printError(err)
			}

			id, err := identity.Load(dir)
			if err != nil {
				printOutput(formatter.FormatMessage(identity.Actor(dir) + " (not signed in)"))
				return
			}
			msg := id.UserID
			if id.TenantID != "" {
				msg += " @ " + id.TenantID
			}
			printOutput(formatter.FormatMessage(msg))
		},
	}
}
