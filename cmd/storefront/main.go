package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	auth "github.com/goliatone/go-storefront-auth"
	"github.com/goliatone/go-storefront-auth/config"
	"github.com/goliatone/go-storefront-auth/telemetry"
)

type App struct {
	config   *config.Config
	logger   *slogLogger
	sqlDB    *sql.DB
	bunDB    *bun.DB
	repo     auth.RepositoryManager
	auther   *auth.Auther
	httpAuth *auth.RouteAuthenticator
	srv      router.Server[*fiber.App]
	meters   *sdkmetric.MeterProvider
	sink     auth.ActivitySink
}

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		printStartupError(err)
		os.Exit(1)
	}

	app := &App{
		config: cfg,
		logger: newSlogLogger(os.Stdout, cfg.Logging.Level),
	}
	app.logger.Debug("config loaded: %s", print.MaybePrettyJSON(cfg.Masked()))

	ctx := context.Background()

	if err := WithPersistence(ctx, app); err != nil {
		app.logger.Error("persistence setup failed: %s", err)
		os.Exit(1)
	}

	if err := WithMetrics(ctx, app); err != nil {
		app.logger.Error("metrics setup failed: %s", err)
		os.Exit(1)
	}

	if err := WithHTTPAuth(ctx, app); err != nil {
		app.logger.Error("auth setup failed: %s", err)
		os.Exit(1)
	}

	WithHTTPServer(ctx, app)

	go func() {
		app.logger.Info("listening on %s", cfg.Server.HTTPAddr)
		if err := app.srv.Serve(cfg.Server.HTTPAddr); err != nil {
			app.logger.Error("http server stopped: %s", err)
		}
	}()

	sig := WaitExitSignal()
	app.logger.Info("received %s, shutting down", sig)

	app.Shutdown()
}

// WithPersistence opens the database and applies migrations.
func WithPersistence(ctx context.Context, app *App) error {
	sqlDB, err := sql.Open(sqliteshim.ShimName, app.config.Database.DSN)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "open database")
	}

	if err := auth.Migrate(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return err
	}

	app.sqlDB = sqlDB
	app.bunDB = bun.NewDB(sqlDB, sqlitedialect.New())
	app.repo = auth.NewRepositoryManager(app.bunDB)
	app.repo.MustValidate()

	return nil
}

// WithMetrics exposes activity counters through Prometheus when enabled.
func WithMetrics(_ context.Context, app *App) error {
	if !app.config.Metrics.Enabled {
		return nil
	}

	mp, err := telemetry.NewPrometheusMeterProvider(prometheus.DefaultRegisterer)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "create meter provider")
	}
	otel.SetMeterProvider(mp)

	sink, err := telemetry.NewActivityMetrics(otel.Meter("github.com/goliatone/go-storefront-auth"))
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "create activity metrics")
	}

	app.meters = mp
	app.sink = sink
	return nil
}

// WithHTTPAuth wires the verifier, the token service and the HTTP layer.
func WithHTTPAuth(_ context.Context, app *App) error {
	cfg := app.config
	authLogger := app.logger.With("component", "auth")
	hasher := auth.BcryptHasher{Cost: cfg.Auth.BcryptCost}

	provider := auth.NewUserProvider(app.repo.Users()).
		WithLogger(authLogger).
		WithPasswordAuthenticator(hasher)

	app.auther = auth.NewAuthenticator(provider, cfg).
		WithLogger(authLogger).
		WithTokenService(auth.NewTokenServiceFromConfig(cfg, authLogger)).
		WithTokenValidator(auth.NewValidatorFromConfig(cfg, authLogger)).
		WithActivitySink(app.sink)

	httpAuth, err := auth.NewHTTPAuthenticator(app.auther, cfg)
	if err != nil {
		return err
	}
	app.httpAuth = httpAuth.
		WithLogger(app.logger.With("component", "http")).
		WithActivitySink(app.sink)

	return nil
}

// WithHTTPServer mounts the routes.
func WithHTTPServer(_ context.Context, app *App) {
	app.srv = router.NewFiberAdapter(func(_ *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			AppName:               "storefront",
			DisableStartupMessage: true,
		}))
	})

	r := app.srv.Router()
	r.Get("/health", func(c router.Context) error {
		return c.SendString("ok")
	}).SetName("health")

	if app.meters != nil {
		// promhttp is a net/http handler, mount it on the fiber app
		app.srv.WrappedRouter().Get(app.config.Metrics.Path, adaptor.HTTPHandler(promhttp.Handler()))
	}

	register := auth.NewRegisterUserHandler(app.repo).
		WithPasswordAuthenticator(auth.BcryptHasher{Cost: app.config.Auth.BcryptCost}).
		WithActivitySink(app.sink)

	auth.RegisterAuthRoutes(r, app.httpAuth, app.repo,
		auth.WithControllerLogger(app.logger.With("component", "users")),
		auth.WithRegisterUserHandler(register),
	)
}

func (a *App) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.srv.WrappedRouter().ShutdownWithContext(ctx); err != nil {
		a.logger.Error("http shutdown: %s", err)
	}

	if a.meters != nil {
		if err := a.meters.Shutdown(ctx); err != nil {
			a.logger.Error("meter provider shutdown: %s", err)
		}
	}

	if err := a.bunDB.Close(); err != nil {
		a.logger.Error("database close: %s", err)
	}
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}

func printStartupError(err error) {
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		os.Stderr.WriteString("storefront: " + richErr.Message + "\n" + print.MaybePrettyJSON(richErr.Metadata) + "\n")
		return
	}
	os.Stderr.WriteString("storefront: " + err.Error() + "\n")
}
