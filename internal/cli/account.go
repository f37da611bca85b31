package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"libraryclient/internal/crosstab"
	"libraryclient/internal/session"
	"libraryclient/internal/views"
	"libraryclient/pkg/domain"
	"libraryclient/pkg/store"
)

func (a *app) details() *views.BookDetails {
	return views.NewBookDetails(a.client, a.session, a.favorites, a.status, a.notes)
}

func (a *app) profile() *views.Profile {
	return views.NewProfile(a.client, a.session, a.notes)
}

func newDashboardCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show your library overview",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := views.Dashboard(cmd.Context(), a.client, a.session, a.notes)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Books: %d\nCategories: %d\nFavorites: %d\nReading: %d\n",
				s.TotalBooks, s.TotalCategories, s.TotalFavorites, len(s.Reading))
			section := func(title string, books []domain.Book) {
				if len(books) == 0 {
					return
				}
				fmt.Fprintf(a.out, "\n%s:\n", title)
				for _, b := range books {
					fmt.Fprintf(a.out, "  %d\t%s - %s\n", b.ID, b.Title, b.Author)
				}
			}
			section("Recently added", s.RecentBooks)
			section("Top rated", s.TopRated)
			section("Most read", s.MostRead)
			return nil
		},
	}
}

func newProfileCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or update your profile",
	}

	var name, password string
	update := &cobra.Command{
		Use:   "update",
		Short: "Change your name or password",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := a.profile().Update(cmd.Context(), name, password)
			if errors.Is(err, views.ErrNothingToSave) {
				return errors.New("pass --name or --password")
			}
			return err
		},
	}
	update.Flags().StringVar(&name, "name", "", "New display name")
	update.Flags().StringVar(&password, "password", "", "New password")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Show your profile and reviews",
			RunE: func(cmd *cobra.Command, args []string) error {
				sum, err := a.profile().Summary(cmd.Context())
				if err != nil {
					return err
				}
				if sum.User != nil {
					fmt.Fprintf(a.out, "%s <%s>\nRole: %s\n", sum.User.DisplayName(), sum.User.Email, sum.User.Role)
				}
				fmt.Fprintf(a.out, "Favorites: %d\nReading: %d\nReviews: %d\n\n", sum.Favorites, sum.Reading, len(sum.Reviews))
				printReviews(a.out, sum.Reviews)
				return nil
			},
		},
		update,
	)
	return cmd
}

// newWatchCmd blocks until the session is revoked by another client sharing
// the same storage, or until interrupted.
func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Wait for the session to be revoked elsewhere",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.session.Current().IsAuthenticated {
				return views.ErrLoginRequired
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// Invalidate cancels the watch context through OnChange before it
			// clears storage, so it runs detached from that cancellation.
			mon, err := crosstab.New(a.watcher, func(ctx context.Context) {
				a.session.Invalidate(context.WithoutCancel(ctx), session.ReasonRevoked)
			}, a.logger)
			if err != nil {
				return err
			}
			a.logger.Debug("watching session", "storage", a.cfg.Storage)
			return watchSession(ctx, mon, a.persistent, a.session)
		},
	}
}

// watchSession blocks until sess ends or ctx is done. The token is re-read
// once the monitor is subscribed, since a logout that landed before the
// subscription produces no change event.
func watchSession(ctx context.Context, mon *crosstab.Monitor, kv store.KV, sess *session.Store) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	unsubscribe := sess.OnChange(func(s domain.Session) {
		if !s.IsAuthenticated {
			cancel()
		}
	})
	defer unsubscribe()

	stopMonitor, err := mon.Start(ctx)
	if err != nil {
		return err
	}
	defer stopMonitor()

	if _, ok, err := kv.Get(ctx, store.KeyToken); err == nil && !ok {
		sess.Invalidate(context.WithoutCancel(ctx), session.ReasonRevoked)
	}
	<-ctx.Done()
	return nil
}

var allowedPrefs = map[string][]string{
	store.KeyTheme:  {"light", "dark"},
	store.KeyLocale: {"en", "ar"},
}

func newThemeCmd(a *app) *cobra.Command {
	return newPrefCmd(a, store.KeyTheme, "Show or set the color theme")
}

func newLocaleCmd(a *app) *cobra.Command {
	return newPrefCmd(a, store.KeyLocale, "Show or set the display language")
}

// newPrefCmd reads and writes a UI preference kept next to the session.
// Preferences survive logout.
func newPrefCmd(a *app, key, short string) *cobra.Command {
	return &cobra.Command{
		Use:       key + " [value]",
		Short:     short,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: allowedPrefs[key],
		RunE: func(cmd *cobra.Command, args []string) error {
			allowed := allowedPrefs[key]
			if len(args) == 0 {
				v, ok, err := a.persistent.Get(cmd.Context(), key)
				if err != nil {
					return err
				}
				if !ok {
					v = allowed[0]
				}
				fmt.Fprintln(a.out, v)
				return nil
			}
			for _, v := range allowed {
				if args[0] == v {
					return a.persistent.Set(cmd.Context(), key, v)
				}
			}
			return fmt.Errorf("%s must be one of %v", key, allowed)
		},
	}
}
