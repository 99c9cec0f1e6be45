package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/setlistfan/favsync/internal/app"
	"github.com/setlistfan/favsync/internal/auth"
	"github.com/setlistfan/favsync/internal/config"
	"github.com/setlistfan/favsync/internal/favorite/sqlite"
	"github.com/setlistfan/favsync/internal/logging"
	"github.com/spf13/cobra"
)

// GlobalOptions holds the persistent flags shared by every command.
type GlobalOptions struct {
	ConfigPath string
	BaseURL    string
	Token      string
	Timeout    time.Duration
	DataDir    string
	LogLevel   string
	JSON       bool
	NoCache    bool
}

// NewRootCommand creates the root command.
func NewRootCommand(version string) *cobra.Command {
	opts := &GlobalOptions{}

	cmd := &cobra.Command{
		Use:           "favsync",
		Short:         "favsync - keep your artist and concert favorites in sync",
		Long:          "favsync manages the favorite artists and concerts of a fan account from the terminal.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.ConfigPath, "config", "", "Config file (default ~/.favsync/config.yaml)")
	flags.StringVar(&opts.BaseURL, "base-url", "", "Favorites API base URL")
	flags.StringVar(&opts.Token, "token", "", "Bearer token, overrides the saved session")
	flags.DurationVar(&opts.Timeout, "timeout", 0, "Per-request timeout")
	flags.StringVar(&opts.DataDir, "data-dir", "", "Directory for the session and cache")
	flags.StringVar(&opts.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.BoolVar(&opts.JSON, "json", false, "Output as JSON")
	flags.BoolVar(&opts.NoCache, "no-cache", false, "Do not read or write the local favorites cache")

	cmd.AddCommand(
		NewLoginCommand(opts),
		NewLogoutCommand(opts),
		NewListCommand(opts),
		NewCheckCommand(opts),
		NewAddCommand(opts),
		NewRemoveCommand(opts),
		NewToggleCommand(opts),
		NewWatchCommand(opts),
		NewTUICommand(opts),
	)

	return cmd
}

// env is what a command needs once configuration is resolved.
type env struct {
	cfg     config.Config
	app     *app.App
	session *auth.FileStore
	tokens  auth.TokenSource
	logger  zerolog.Logger
}

func (e *env) Close() error {
	return e.app.Close()
}

// loadConfig resolves the configuration with flags taking precedence.
func (o *GlobalOptions) loadConfig(cmd *cobra.Command) (config.Config, error) {
	path := o.ConfigPath
	if path == "" {
		path = config.DefaultPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("base-url") {
		if cfg.StreamURL == config.DeriveStreamURL(cfg.BaseURL) {
			cfg.StreamURL = config.DeriveStreamURL(o.BaseURL)
		}
		cfg.BaseURL = o.BaseURL
	}
	if flags.Changed("timeout") {
		cfg.Timeout = o.Timeout
	}
	if flags.Changed("data-dir") {
		cfg.DataDir = config.ExpandHome(o.DataDir)
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = o.LogLevel
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// newEnv builds the app for one command run. The caller must Close it.
func (o *GlobalOptions) newEnv(cmd *cobra.Command) (*env, error) {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cmd.ErrOrStderr(),
	})

	session := auth.NewFileStore(cfg.DataDir)
	tokens := auth.First(auth.Static(o.Token), session)

	appOpts := []app.Option{
		app.WithConfig(cfg),
		app.WithTokens(tokens),
		app.WithLogger(logger),
	}

	if !o.NoCache {
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		cache, err := sqlite.New(filepath.Join(cfg.DataDir, "favorites.db"))
		if err != nil {
			logger.Warn().Err(err).Msg("favorites cache unavailable")
		} else {
			appOpts = append(appOpts, app.WithCache(cache))
		}
	}

	return &env{
		cfg:     cfg,
		app:     app.New(appOpts...),
		session: session,
		tokens:  tokens,
		logger:  logger,
	}, nil
}
