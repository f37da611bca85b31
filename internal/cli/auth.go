package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"libraryclient/internal/usertoken"
	"libraryclient/internal/views"
	"libraryclient/pkg/store"
)

// loginAttemptsPrefix namespaces the per-email login counters in the state file.
const loginAttemptsPrefix = "loginAttempts:"

var errLoginThrottled = errors.New("too many login attempts for this account, try again later")

func newLoginCmd(a *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(email) == "" {
				return errors.New("--email is required")
			}
			if password == "" {
				fmt.Fprint(a.errOut, "Password: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}

			limiter, err := a.loginLimiter()
			if err != nil {
				return fmt.Errorf("login throttle: %w", err)
			}
			if limiter != nil && !limiter.Allow(cmd.Context(), email) {
				a.logger.Warn("login throttled locally", "email", email)
				return errLoginThrottled
			}

			res, err := a.client.Login(cmd.Context(), email, password)
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}
			if err := a.session.SetCredentials(cmd.Context(), res.User, res.Token); err != nil {
				return fmt.Errorf("save session: %w", err)
			}
			if res.RefreshToken != "" {
				if err := a.persistent.Set(cmd.Context(), store.KeyRefreshToken, res.RefreshToken); err != nil {
					a.logger.Warn("persist refresh token", "err", err)
				}
			}
			fmt.Fprintf(a.out, "Logged in as %s (%s)\n", res.User.DisplayName(), res.User.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password (prompted when omitted)")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a.session.Logout(cmd.Context())
			fmt.Fprintln(a.out, "Logged out.")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess := a.session.Current()
			if !sess.IsAuthenticated {
				return views.ErrLoginRequired
			}
			if sess.User == nil {
				fmt.Fprintln(a.out, "Logged in (user details unavailable)")
				return nil
			}
			fmt.Fprintf(a.out, "%s <%s>\nRole: %s\n", sess.User.DisplayName(), sess.User.Email, sess.Role())
			if exp, ok := usertoken.ExpiresAt(sess.Token); ok {
				fmt.Fprintf(a.out, "Expires: %s\n", exp.Local().Format(time.RFC1123))
			}
			return nil
		},
	}
}
