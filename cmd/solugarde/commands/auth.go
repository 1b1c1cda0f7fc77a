package commands

import (
	"errors"
	"os"
	"time"

	"github.com/jrsteele09/solugarde-client/internal/utils"
	"github.com/spf13/cobra"
)

const passwordEnvVar = "SOLUGARDE_PASSWORD"

func newLoginCommand(a *app) *cobra.Command {
	var email, password string
	var remember bool

	cmd := &cobra.Command{
		Use:   "login",
		Args:  cobra.NoArgs,
		Short: "Log in and store the session",
		Long: `Log in with email and password. With --remember the session is kept in the data folder
and survives restarts, otherwise it lasts only as long as this process.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv(passwordEnvVar)
			}
			if email == "" || password == "" {
				return errors.New("email and password are required")
			}
			user, err := a.session.Login(cmd.Context(), email, password, remember)
			if err != nil {
				return err
			}
			printf("Logged in as %s (%s)", user.Name(), user.Role.Label())
			if !remember {
				printf("Session not remembered; it ends when this command exits")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (or "+passwordEnvVar+")")
	cmd.Flags().BoolVar(&remember, "remember", false, "keep the session in the data folder")
	return cmd
}

func newWhoamiCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Args:  cobra.NoArgs,
		Short: "Show the logged in user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap, err := a.restore(cmd.Context())
			if err != nil {
				return err
			}
			u := snap.User
			printf("%s  %s", u.Initials(), u.Name())
			printf("email:      %s", u.Email)
			printf("role:       %s (%s)", u.Role.Label(), u.Role.Description())
			if u.Garderie != nil {
				printf("garderie:   %s", u.Garderie.Name)
			}
			if last := utils.Value(u.LastLoginAt); !last.IsZero() {
				printf("last login: %s", last.Local().Format(time.RFC1123))
			}
			return nil
		},
	}
}

func newLogoutCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Args:  cobra.NoArgs,
		Short: "End the session and remove the stored tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.session.Logout(cmd.Context())
			printf("Logged out")
			return nil
		},
	}
}

func newRefreshCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Args:  cobra.NoArgs,
		Short: "Exchange the refresh token for a new token pair",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.restore(cmd.Context()); err != nil {
				return err
			}
			if err := a.session.Refresh(cmd.Context()); err != nil {
				return err
			}
			printf("Session refreshed")
			return nil
		},
	}
}
