package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/skuznetsov/authcore/internal/authcore"
	"github.com/skuznetsov/authcore/internal/gateway"
	"github.com/skuznetsov/authcore/internal/sessionlog"
	"github.com/skuznetsov/authcore/internal/storage"
	"github.com/skuznetsov/authcore/internal/userstore"
	"github.com/skuznetsov/authcore/internal/userstorepg"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

var buildGoogleTokenValidator = func(ctx context.Context) (authcore.GoogleTokenValidator, error) {
	return authcore.NewGoogleTokenValidator(ctx)
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "authcore",
		Short:   "Auth service with Google Sign-In verification, versioned JWT sessions, and logout-everywhere revocation",
		PreRunE: prepareServerSettings,
		RunE:    runServer,
	}

	rootCmd.Flags().String("listen_addr", ":8080", "HTTP listen address")
	rootCmd.Flags().String("jwt_secret", "", "HS256 signing secret for access and refresh tokens")
	rootCmd.Flags().String("client_url", "", "Application URL the browser login flow redirects back to")
	rootCmd.Flags().String("google_web_client_id", "", "Google Web OAuth Client ID")
	rootCmd.Flags().Duration("access_ttl", 15*time.Minute, "Access token TTL")
	rootCmd.Flags().Duration("refresh_ttl", 7*24*time.Hour, "Refresh token TTL")
	rootCmd.Flags().String("database_url", "", "Database URL for users and session audit (postgres:// or sqlite://; leave empty for in-memory stores)")
	rootCmd.Flags().Bool("pg_pool", false, "Serve the user store through a pgx connection pool (postgres only)")
	rootCmd.Flags().String("cookie_domain", "", "Refresh cookie domain; empty for host-only")
	rootCmd.Flags().Bool("dev_insecure_http", false, "Allow insecure HTTP for local dev")
	rootCmd.Flags().Bool("enable_cors", false, "Enable CORS for cross-origin clients (required to set SameSite=None cookies)")
	rootCmd.Flags().StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled (defaults to client_url)")

	_ = viper.BindPFlag("listen_addr", rootCmd.Flags().Lookup("listen_addr"))
	_ = viper.BindPFlag("jwt_secret", rootCmd.Flags().Lookup("jwt_secret"))
	_ = viper.BindPFlag("client_url", rootCmd.Flags().Lookup("client_url"))
	_ = viper.BindPFlag("google_web_client_id", rootCmd.Flags().Lookup("google_web_client_id"))
	_ = viper.BindPFlag("access_ttl", rootCmd.Flags().Lookup("access_ttl"))
	_ = viper.BindPFlag("refresh_ttl", rootCmd.Flags().Lookup("refresh_ttl"))
	_ = viper.BindPFlag("database_url", rootCmd.Flags().Lookup("database_url"))
	_ = viper.BindPFlag("pg_pool", rootCmd.Flags().Lookup("pg_pool"))
	_ = viper.BindPFlag("cookie_domain", rootCmd.Flags().Lookup("cookie_domain"))
	_ = viper.BindPFlag("dev_insecure_http", rootCmd.Flags().Lookup("dev_insecure_http"))
	_ = viper.BindPFlag("enable_cors", rootCmd.Flags().Lookup("enable_cors"))
	_ = viper.BindPFlag("cors_allowed_origins", rootCmd.Flags().Lookup("cors_allowed_origins"))

	viper.AutomaticEnv()

	return rootCmd
}

const (
	refreshCookieName = "app_refresh"
	accessTokenIssuer = "authcore"

	configCodeMissingJWTSecret        = "config.missing_jwt_secret"
	configCodeMissingClientURL        = "config.missing_client_url"
	configCodeMissingGoogleClientID   = "config.missing_google_web_client_id"
	configCodeInvalidAccessTTL        = "config.invalid_access_ttl"
	configCodeInvalidRefreshTTL       = "config.invalid_refresh_ttl"
	configCodeUninitializedServerConf = "config.uninitialized_server_config"
	configCodeGoogleValidatorInit     = "config.google_validator_init"
	configCodePgPoolRequiresPostgres  = "config.pg_pool_requires_postgres"
)

type contextKey string

const serverSettingsContextKey contextKey = "serverSettings"

// ServerSettings bundles the validated configuration the server runs with.
type ServerSettings struct {
	JWTSecret []byte
	Gateway   gateway.ServerConfig
}

func prepareServerSettings(command *cobra.Command, arguments []string) error {
	settings, loadErr := LoadServerSettings()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, serverSettingsContextKey, settings))
	return nil
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

// LoadServerSettings validates the viper-backed configuration.
func LoadServerSettings() (ServerSettings, error) {
	jwtSecret := viper.GetString("jwt_secret")
	if jwtSecret == "" {
		return ServerSettings{}, configError(configCodeMissingJWTSecret, "jwt_secret must be provided")
	}

	clientURL := viper.GetString("client_url")
	if clientURL == "" {
		return ServerSettings{}, configError(configCodeMissingClientURL, "client_url must be provided")
	}

	googleWebClientID := viper.GetString("google_web_client_id")
	if googleWebClientID == "" {
		return ServerSettings{}, configError(configCodeMissingGoogleClientID, "google_web_client_id must be provided")
	}

	accessTTL := viper.GetDuration("access_ttl")
	if accessTTL <= 0 {
		return ServerSettings{}, configError(configCodeInvalidAccessTTL, "access_ttl must be greater than zero")
	}

	refreshTTL := viper.GetDuration("refresh_ttl")
	if refreshTTL <= 0 {
		return ServerSettings{}, configError(configCodeInvalidRefreshTTL, "refresh_ttl must be greater than zero")
	}

	return ServerSettings{
		JWTSecret: []byte(jwtSecret),
		Gateway: gateway.ServerConfig{
			GoogleWebClientID: googleWebClientID,
			ClientURL:         clientURL,
			CookieDomain:      viper.GetString("cookie_domain"),
			RefreshCookieName: refreshCookieName,
			AccessTTL:         accessTTL,
			RefreshTTL:        refreshTTL,
		},
	}, nil
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(serverSettingsContextKey)
	}
	settings, ok := contextValue.(ServerSettings)
	if !ok {
		return configError(configCodeUninitializedServerConf, "server configuration not prepared; PreRunE must execute before RunE")
	}

	listenAddr := viper.GetString("listen_addr")
	databaseURL := viper.GetString("database_url")
	usePgPool := viper.GetBool("pg_pool")
	enableCORS := viper.GetBool("enable_cors")
	corsAllowedOrigins := viper.GetStringSlice("cors_allowed_origins")

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))

	if enableCORS {
		if len(corsAllowedOrigins) == 0 {
			corsAllowedOrigins = []string{settings.Gateway.ClientURL}
		}
		corsMiddleware, corsErr := gateway.ConfigureCORS(logger, corsAllowedOrigins)
		if corsErr != nil {
			return corsErr
		}
		router.Use(corsMiddleware)
	}

	users, sessions, storesErr := buildStores(command.Context(), logger, databaseURL, usePgPool)
	if storesErr != nil {
		return storesErr
	}

	settings.Gateway.AllowInsecureHTTP = viper.GetBool("dev_insecure_http")
	settings.Gateway.SameSiteMode = http.SameSiteStrictMode
	if enableCORS {
		settings.Gateway.SameSiteMode = http.SameSiteNoneMode
	}

	clock := authcore.NewSystemClock()
	codec, codecErr := authcore.NewTokenCodec(settings.JWTSecret, accessTokenIssuer, clock)
	if codecErr != nil {
		return codecErr
	}

	metricsRecorder := authcore.NewCounterMetrics()
	normalizer := authcore.NewIdentityNormalizer(users, logger)
	tokenService := authcore.NewTokenService(users, sessions, codec, settings.Gateway.AccessTTL, settings.Gateway.RefreshTTL, logger, metricsRecorder)

	validator, validatorErr := buildGoogleTokenValidator(command.Context())
	if validatorErr != nil {
		return fmt.Errorf("%s: %w", configCodeGoogleValidatorInit, validatorErr)
	}

	authGateway := gateway.NewGateway(settings.Gateway, validator, normalizer, tokenService, codec, users, logger, metricsRecorder)
	authGateway.MountRoutes(router)

	router.GET("/healthz", func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		<-stopSignals
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", listenAddr))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}

func buildStores(ctx context.Context, logger *zap.Logger, databaseURL string, usePgPool bool) (userstore.UserStore, sessionlog.SessionStore, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if strings.TrimSpace(databaseURL) == "" {
		logger.Info("using in-memory user and session stores")
		return userstore.NewMemoryUserStore(), sessionlog.NewMemorySessionStore(), nil
	}

	gormDB, driverLabel, openErr := storage.Open(databaseURL)
	if openErr != nil {
		return nil, nil, openErr
	}

	sessions, sessionsErr := sessionlog.NewDatabaseSessionStore(ctx, gormDB, driverLabel)
	if sessionsErr != nil {
		return nil, nil, sessionsErr
	}

	if usePgPool {
		if driverLabel != "postgres" {
			return nil, nil, configError(configCodePgPoolRequiresPostgres, "pg_pool requires a postgres database_url")
		}
		pool, poolErr := userstorepg.BuildPool(ctx, databaseURL)
		if poolErr != nil {
			return nil, nil, poolErr
		}
		if schemaErr := userstorepg.EnsureSchema(ctx, pool); schemaErr != nil {
			return nil, nil, schemaErr
		}
		logger.Info("using pgx-pooled user store", zap.String("driver", "pgx"))
		return userstorepg.NewPostgresUserStore(pool), sessions, nil
	}

	users, usersErr := userstore.NewDatabaseUserStore(ctx, gormDB, driverLabel)
	if usersErr != nil {
		return nil, nil, usersErr
	}
	logger.Info("using persistent user store", zap.String("driver", driverLabel))
	return users, sessions, nil
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		duration := time.Since(startTime)
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", duration),
		)
	}
}
