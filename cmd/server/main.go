package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/django/v3"
	"github.com/joho/godotenv"
	"github.com/phuslu/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/prepwise/auth"
	"github.com/prepwise/auth/provider/firebase"
	"github.com/prepwise/auth/provider/local"
	"github.com/prepwise/auth/social"
	"github.com/prepwise/auth/social/providers/google"
)

func main() {
	_ = godotenv.Load()

	cfg := &auth.EnvConfig{}
	if err := env.Parse(cfg); err != nil {
		log.Fatal().Err(err).Msg("failed to parse configuration")
	}

	logger := newLogger(cfg.Environment)

	db := bun.NewDB(mustOpenSQL(cfg.DatabaseDSN), sqlitedialect.New())

	users := auth.NewUsersRepository(db, auth.WithUsersLogger(logger))

	ctx := context.Background()
	if err := users.Init(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize users table")
	}

	broker, cleanup := mustBuildBroker(ctx, cfg, db, logger)
	defer cleanup()

	issuer := auth.NewSessionIssuer(broker, cfg).WithLogger(logger)
	actions := auth.NewActions(broker, users, issuer, cfg).WithLogger(logger)
	cookies := auth.NewCookieSessions(actions, cfg).WithLogger(logger)

	engine := django.New("./views", ".html")

	app := fiber.New(fiber.Config{
		AppName: "prepwise-auth",
		Views:   engine,
	})

	auth.RegisterAuthRoutes(app,
		auth.WithControllerActions(actions),
		auth.WithControllerCookies(cookies),
		auth.WithControllerLogger(logger),
	)

	if cfg.GoogleClientID != "" {
		states, err := social.NewEncryptedStateManager(
			[]byte(cfg.StateEncryptionKey),
			[]byte(cfg.StateHMACKey),
			0,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to build oauth state manager")
		}

		social.RegisterOAuthRoutes(app,
			social.WithOAuthActions(actions),
			social.WithOAuthCookies(cookies),
			social.WithOAuthStates(states),
			social.WithOAuthLogger(logger),
			social.WithOAuthProvider(google.New(google.Config{
				ClientID:     cfg.GoogleClientID,
				ClientSecret: cfg.GoogleClientSecret,
				CallbackURL:  cfg.GoogleCallbackURL,
			})),
		)
	}

	app.Get("/", cookies.RequireUser("/sign-in"), func(c *fiber.Ctx) error {
		user, _ := auth.UserFromLocals(c)
		return c.Render("home", fiber.Map{"user": user})
	})

	go func() {
		if err := app.Listen(cfg.Addr); err != nil {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	logger.Info("server listening", "addr", cfg.Addr, "broker", cfg.Broker)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}

func mustOpenSQL(dsn string) *sql.DB {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		log.Fatal().Err(err).Str("dsn", dsn).Msg("failed to open database")
	}
	return sqldb
}

func mustBuildBroker(ctx context.Context, cfg *auth.EnvConfig, db *bun.DB, logger auth.Logger) (auth.IdentityBroker, func()) {
	switch cfg.Broker {
	case "firebase":
		broker, err := firebase.New(firebase.Config{
			APIKey:    cfg.FirebaseAPIKey,
			ProjectID: cfg.FirebaseProjectID,
			Tokens:    firebase.StaticTokenSource(os.Getenv("FIREBASE_ADMIN_TOKEN")),
			Logger:    logger,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to build firebase broker")
		}
		return broker, broker.Close

	case "local":
		broker, err := local.New(db, []byte(cfg.SigningKey), local.WithLogger(logger))
		if err != nil {
			log.Fatal().Err(err).Msg("failed to build local broker")
		}
		if err := broker.Init(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to initialize accounts table")
		}
		return broker, func() {}
	}

	log.Fatal().Str("broker", cfg.Broker).Msg("unknown broker")
	return nil, nil
}

// appLogger adapts phuslu's leveled entries to the auth.Logger
// key/value surface.
type appLogger struct {
	log log.Logger
}

func newLogger(environment string) *appLogger {
	l := log.Logger{
		Level:      log.InfoLevel,
		TimeFormat: time.RFC3339,
	}

	if environment != "production" {
		l.Level = log.DebugLevel
		l.Writer = &log.ConsoleWriter{ColorOutput: true}
	}

	return &appLogger{log: l}
}

func (l *appLogger) Debug(msg string, args ...any) { l.log.Debug().KeysAndValues(args...).Msg(msg) }
func (l *appLogger) Info(msg string, args ...any)  { l.log.Info().KeysAndValues(args...).Msg(msg) }
func (l *appLogger) Warn(msg string, args ...any)  { l.log.Warn().KeysAndValues(args...).Msg(msg) }
func (l *appLogger) Error(msg string, args ...any) { l.log.Error().KeysAndValues(args...).Msg(msg) }
