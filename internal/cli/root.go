package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"libraryclient/internal/api"
	"libraryclient/internal/config"
	"libraryclient/internal/notify"
	"libraryclient/internal/optimistic"
	"libraryclient/internal/ratelimit"
	"libraryclient/internal/session"
	"libraryclient/internal/util"
	"libraryclient/pkg/domain"
	"libraryclient/pkg/store"
)

type options struct {
	configPath string
	apiURL     string
	logLevel   string
	logFormat  string
	requestID  string
	debug      bool
}

// app carries everything a command needs. It is built once per invocation
// in the root pre-run hook.
type app struct {
	cfg        config.FileConfig
	logger     *slog.Logger
	persistent store.KV
	watcher    store.Watcher
	closers    []io.Closer
	session    *session.Store
	client     *api.Client
	notes      *notify.Center
	favorites  *optimistic.FavoriteSet
	status     *optimistic.StatusTracker

	// quietLogin suppresses the login hint while the login command runs.
	quietLogin bool
	out        io.Writer
	errOut     io.Writer
}

// NewRootCmd creates the root cobra command for libraryctl.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	a := &app{}

	root := &cobra.Command{
		Use:   "libraryctl",
		Short: "Library client",
		Long:  "libraryctl browses the library catalog and manages favorites, reading lists, reviews and admin data.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd, opts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default ~/.library/config.yaml)")
	root.PersistentFlags().StringVar(&opts.apiURL, "api-url", "", "API base URL (or LIBRARY_API_URL env)")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Log format (text, json)")
	root.PersistentFlags().StringVar(&opts.requestID, "request-id", "", "X-Request-Id sent with every request (default: a new id per request)")

	root.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newBooksCmd(a),
		newFavoritesCmd(a),
		newReviewsCmd(a),
		newLibraryCmd(a),
		newTrashCmd(a),
		newCategoriesCmd(a),
		newAdminCmd(a),
		newDashboardCmd(a),
		newProfileCmd(a),
		newWatchCmd(a),
		newThemeCmd(a),
		newLocaleCmd(a),
	)
	// cobra skips post-run hooks when RunE fails, so every command closes
	// the app itself.
	a.closeAfterRun(root)
	return root
}

func (a *app) closeAfterRun(cmd *cobra.Command) {
	if run := cmd.RunE; run != nil {
		cmd.RunE = func(cmd *cobra.Command, args []string) error {
			defer a.close()
			return run(cmd, args)
		}
	}
	for _, sub := range cmd.Commands() {
		a.closeAfterRun(sub)
	}
}

func (a *app) setup(cmd *cobra.Command, opts *options) (err error) {
	defer func() {
		if err != nil {
			a.close()
		}
	}()
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.apiURL != "" {
		cfg.APIURL = opts.apiURL
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.LogFormat = opts.logFormat
	}
	if opts.debug {
		cfg.LogLevel = "debug"
	}
	a.cfg = cfg
	a.out = cmd.OutOrStdout()
	a.errOut = cmd.ErrOrStderr()
	a.logger = util.NewLogger(a.errOut, cfg.LogLevel, cfg.LogFormat)
	a.quietLogin = cmd.Name() == "login"
	if opts.requestID != "" {
		cmd.SetContext(util.ContextWithRequestID(cmd.Context(), opts.requestID))
	}

	if err := a.openStorage(); err != nil {
		return err
	}

	a.session, err = session.New(session.Config{
		Persistent: a.persistent,
		Logger:     a.logger,
		Navigator:  session.NavigatorFunc(a.toLogin),
	})
	if err != nil {
		return err
	}
	a.client, err = api.NewClient(api.Config{
		BaseURL:     cfg.APIURL,
		Timeout:     cfg.RequestTimeout,
		Credentials: a.session,
		OnUnauthorized: func(ctx context.Context) {
			a.session.Invalidate(ctx, session.ReasonUnauthorized)
		},
		Logger: a.logger,
	})
	if err != nil {
		return err
	}
	a.notes = notify.NewCenter(notify.Config{Sink: a.printNote})
	a.favorites = optimistic.NewFavoriteSet(a.client)
	a.favorites.OnChange(func(bookID int64, favorite bool, state optimistic.State) {
		a.logger.Debug("favorite state", "book_id", bookID, "favorite", favorite, "state", state.String())
	})
	a.status = optimistic.NewStatusTracker(a.client)
	a.session.OnChange(func(s domain.Session) {
		if !s.IsAuthenticated {
			a.favorites.Reset()
		}
	})
	a.session.Initialize(cmd.Context())
	return nil
}

func (a *app) openStorage() error {
	switch a.cfg.Storage {
	case config.StorageRedis:
		kv, err := store.NewRedisKV(a.cfg.RedisAddr, a.cfg.RedisPassword, a.cfg.RedisPrefix)
		if err != nil {
			return err
		}
		a.persistent, a.watcher = kv, kv
		a.closers = append(a.closers, kv)
	default:
		kv, err := store.NewFileKV(a.cfg.StateDir)
		if err != nil {
			return err
		}
		a.persistent, a.watcher = kv, kv
	}
	return nil
}

// close releases connections opened for this invocation. It is idempotent.
func (a *app) close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil && a.logger != nil {
			a.logger.Debug("close", "err", err)
		}
	}
	a.closers = nil
}

// loginLimiter throttles login attempts per email across invocations. The
// counters live next to the session: in Redis when storage is redis, in the
// state file otherwise. A nil limiter means throttling is off.
func (a *app) loginLimiter() (ratelimit.Limiter, error) {
	if !a.cfg.LoginThrottled() {
		return nil, nil
	}
	if a.cfg.Storage == config.StorageRedis {
		prefix := strings.TrimSuffix(a.cfg.RedisPrefix, ":")
		if prefix == "" {
			prefix = "library"
		}
		l, err := ratelimit.NewRedisFixedWindow(a.cfg.RedisAddr, a.cfg.RedisPassword, prefix+":ratelimit:login", a.cfg.LoginLimit, a.cfg.LoginWindowDuration)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, l)
		return l, nil
	}
	return ratelimit.NewStoreFixedWindow(a.persistent, loginAttemptsPrefix, a.cfg.LoginLimit, a.cfg.LoginWindowDuration, nil)
}

func (a *app) toLogin(reason session.Reason) {
	if a.quietLogin {
		return
	}
	fmt.Fprintf(a.errOut, "Session ended (%s). Run `libraryctl login` to sign in again.\n", reason)
}

func (a *app) printNote(n notify.Notification) {
	fmt.Fprintf(a.errOut, "[%s] %s\n", n.Level, n.Message)
}
