package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/marquee/internal/auth"
	"github.com/MarcoPoloResearchLab/marquee/internal/catalog"
	"github.com/MarcoPoloResearchLab/marquee/internal/config"
	"github.com/MarcoPoloResearchLab/marquee/internal/database"
	"github.com/MarcoPoloResearchLab/marquee/internal/favorites"
	"github.com/MarcoPoloResearchLab/marquee/internal/logging"
	"github.com/MarcoPoloResearchLab/marquee/internal/notify"
	"github.com/MarcoPoloResearchLab/marquee/internal/server"
	"github.com/MarcoPoloResearchLab/marquee/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "marquee-api",
		Short: "Marquee catalog and favorites backend",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newIssueTokenCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("store-backend", defaults.GetString("store.backend"), "Favorites store (sqlite, redis)")
	cmd.PersistentFlags().String("redis-address", defaults.GetString("redis.address"), "Redis address for the redis store")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().String("tmdb-api-key", "", "TMDB API key (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "store.backend", "store-backend")
	bindFlag(cmd, "redis.address", "redis-address")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "session.signing_secret", "signing-secret")
	bindFlag(cmd, "tmdb.api_key", "tmdb-api-key")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

// newIssueTokenCommand mints a session token for local development against
// the configured signing secret.
func newIssueTokenCommand() *cobra.Command {
	var (
		userID string
		email  string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Print a signed session token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
				SigningSecret: []byte(viper.GetString("session.signing_secret")),
				Issuer:        viper.GetString("session.issuer"),
				TokenTTL:      ttl,
			})
			if err != nil {
				return err
			}
			token, expiresIn, err := issuer.IssueSessionToken(auth.SessionClaims{UserID: userID, UserEmail: email})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires in %ds\n", expiresIn)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "User id to put in the token")
	cmd.Flags().StringVar(&email, "email", "", "Email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	// Identities always live in sqlite; favorites may move to redis.
	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	store, closeStore, err := openFavoritesStore(ctx, appConfig, db)
	if err != nil {
		return err
	}
	defer closeStore()

	dispatcher := notify.NewDispatcher()
	notifications := notify.NewCenter(notify.CenterConfig{
		TTL:        appConfig.NotificationTTL,
		Dispatcher: dispatcher,
	})

	favoritesService, err := favorites.NewService(favorites.ServiceConfig{
		Store:  store,
		Clock:  time.Now,
		Logger: logger,
		OnChange: func(userID string, change favorites.Change) {
			dispatcher.PublishFavoriteChange(userID, change.ItemID, change.Present)
		},
	})
	if err != nil {
		return err
	}

	identities, err := users.NewService(users.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}

	sessions, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.SessionSigningSecret),
		Issuer:        appConfig.SessionIssuer,
		CookieName:    appConfig.SessionCookieName,
	})
	if err != nil {
		return err
	}

	tmdb, err := catalog.NewTMDBClient(catalog.TMDBConfig{
		APIKey:          appConfig.TMDBAPIKey,
		BaseURL:         appConfig.TMDBBaseURL,
		ImageBaseURL:    appConfig.TMDBImageBaseURL,
		Language:        appConfig.TMDBLanguage,
		Timeout:         appConfig.CatalogTimeout,
		BreakerFailures: appConfig.BreakerFailures,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	deps := server.Dependencies{
		Sessions:       sessions,
		Identities:     identities,
		Favorites:      favoritesService,
		Trackers:       favorites.NewTrackerRegistry(favorites.TrackerRegistryConfig{IdleTTL: appConfig.TrackerIdleTTL}),
		Notifications:  notifications,
		Realtime:       dispatcher,
		Movies:         tmdb,
		Shows:          tmdb,
		AllowedOrigins: appConfig.AllowedOrigins,
		Logger:         logger,
	}
	if appConfig.MarvelEnabled() {
		marvel, err := catalog.NewMarvelClient(catalog.MarvelConfig{
			PublicKey:       appConfig.MarvelPublicKey,
			PrivateKey:      appConfig.MarvelPrivateKey,
			BaseURL:         appConfig.MarvelBaseURL,
			Timeout:         appConfig.CatalogTimeout,
			BreakerFailures: appConfig.BreakerFailures,
			Logger:          logger,
		})
		if err != nil {
			return err
		}
		deps.Characters = marvel
	} else {
		logger.Info("marvel keys not configured; character routes disabled")
	}

	handler, err := server.NewHTTPHandler(deps)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("store", appConfig.StoreBackend))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func openFavoritesStore(ctx context.Context, appConfig config.AppConfig, db *gorm.DB) (favorites.Store, func(), error) {
	if appConfig.StoreBackend != config.StoreBackendRedis {
		store, err := favorites.NewGormStore(db)
		return store, func() {}, err
	}
	client, err := database.OpenRedis(ctx, database.RedisConfig{
		Address:  appConfig.RedisAddress,
		Password: appConfig.RedisPassword,
		DB:       appConfig.RedisDB,
	})
	if err != nil {
		return nil, nil, err
	}
	store, err := favorites.NewRedisStore(client, appConfig.RedisPrefix)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return store, func() { _ = client.Close() }, nil
}
