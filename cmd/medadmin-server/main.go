package main

import (
	"context"
	crypto_rand "crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medadmin/medadmin/internal/config"
	"github.com/medadmin/medadmin/internal/domain/account"
	"github.com/medadmin/medadmin/internal/domain/billing"
	"github.com/medadmin/medadmin/internal/domain/records"
	"github.com/medadmin/medadmin/internal/platform/auth"
	"github.com/medadmin/medadmin/internal/platform/db"
	"github.com/medadmin/medadmin/internal/platform/docstore"
	"github.com/medadmin/medadmin/internal/platform/identity"
	"github.com/medadmin/medadmin/internal/platform/middleware"
	"github.com/medadmin/medadmin/internal/platform/telemetry"
	"github.com/medadmin/medadmin/internal/platform/web"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "medadmin-server",
		Short: "Hospital administration server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(userCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations (postgres driver only)",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			migrator, closeFn, err := openMigrator(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			migrator, closeFn, err := openMigrator(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(os.Stdout, statuses)
			return nil
		},
	})

	return cmd
}

func openMigrator(ctx context.Context) (*db.Migrator, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.StoreDriver != config.DriverPostgres {
		return nil, nil, fmt.Errorf("migrations only apply to the %s driver, STORE_DRIVER is %q", config.DriverPostgres, cfg.StoreDriver)
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrator(pool, db.Migrations()), pool.Close, nil
}

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a JSON array of records into a collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			collection, _ := cmd.Flags().GetString("collection")
			path, _ := cmd.Flags().GetString("file")
			if collection == "" || path == "" {
				return fmt.Errorf("--collection and --file are required")
			}

			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			ctx := context.Background()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			store, err := docstore.Open(ctx, storeOptions(cfg))
			if err != nil {
				return err
			}
			defer store.Close(ctx)

			n, err := seed(ctx, store, collection, f)
			if err != nil {
				return err
			}
			fmt.Printf("Stored %d record(s) in %s.\n", n, collection)
			return nil
		},
	}
	cmd.Flags().String("collection", "", "Target collection (staff, patients, billing, users)")
	cmd.Flags().String("file", "", "Path to a JSON array of objects")
	return cmd
}

// seed stores every object of the JSON array read from r. An object's "id"
// field, when a non-empty string, becomes the document id.
func seed(ctx context.Context, store docstore.Store, collection string, r io.Reader) (int, error) {
	if !docstore.ValidCollection(collection) {
		return 0, fmt.Errorf("invalid collection name %q", collection)
	}
	var docs []map[string]any
	if err := json.NewDecoder(r).Decode(&docs); err != nil {
		return 0, fmt.Errorf("decode seed file: %w", err)
	}
	for i, fields := range docs {
		if fields == nil {
			return i, fmt.Errorf("entry %d is not an object", i)
		}
		id, _ := fields["id"].(string)
		delete(fields, "id")
		if id == "" {
			id = docstore.NewID()
		}
		if err := store.Set(ctx, collection, id, fields); err != nil {
			return i, fmt.Errorf("store entry %d: %w", i, err)
		}
	}
	return len(docs), nil
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage sign-in profiles",
	}

	setRole := &cobra.Command{
		Use:   "set-role",
		Short: "Register an identity provider account with a role",
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, _ := cmd.Flags().GetString("uid")
			role, _ := cmd.Flags().GetString("role")
			name, _ := cmd.Flags().GetString("name")

			ctx := context.Background()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			store, err := docstore.Open(ctx, storeOptions(cfg))
			if err != nil {
				return err
			}
			defer store.Close(ctx)

			svc := account.NewService(nil, store, cfg.UsersCollection, zerolog.Nop(), nil)
			if err := svc.SetRole(ctx, uid, role, name); err != nil {
				return err
			}
			fmt.Printf("User %s now signs in as %s.\n", uid, role)
			return nil
		},
	}
	setRole.Flags().String("uid", "", "Identity provider user id")
	setRole.Flags().String("role", "", "admin or staff")
	setRole.Flags().String("name", "", "Display name")
	cmd.AddCommand(setRole)
	return cmd
}

func storeOptions(cfg *config.Config) docstore.Options {
	return docstore.Options{
		Driver:        cfg.StoreDriver,
		DatabaseURL:   cfg.DatabaseURL,
		MaxConns:      cfg.DBMaxConns,
		MinConns:      cfg.DBMinConns,
		MongoURI:      cfg.MongoURI,
		MongoDatabase: cfg.MongoDatabase,
		SQLitePath:    cfg.SQLitePath,
	}
}

// resolveSessionSecret returns the configured cookie secret. Development runs
// without one get a random 32-byte secret; the second return value reports
// that, since sessions then do not survive a restart.
func resolveSessionSecret(configured string, dev bool) ([]byte, bool, error) {
	if configured != "" {
		return []byte(configured), false, nil
	}
	if !dev {
		return nil, false, fmt.Errorf("SESSION_SECRET is required outside development")
	}
	key := make([]byte, 32)
	if _, err := crypto_rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("failed to generate random session secret: %w", err)
	}
	return key, true, nil
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// serverDeps carries what newServer wires together. Tests build it from an
// in-memory store and a fake identity provider.
type serverDeps struct {
	cfg      *config.Config
	logger   zerolog.Logger
	store    docstore.Store
	provider identity.Provider
	sessions *auth.Manager
	metrics  *telemetry.Metrics
}

func newServer(d serverDeps) (*echo.Echo, error) {
	cfg, logger := d.cfg, d.logger

	renderer, err := web.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = renderer
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	// Client addresses key the login throttle, so forwarded headers only count
	// behind a proxy on a private network.
	if cfg.TrustProxy {
		e.IPExtractor = echo.ExtractIPFromXFFHeader()
	} else {
		e.IPExtractor = echo.ExtractIPDirect()
	}

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(middleware.Sanitize(logger))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:     []string{echo.HeaderContentType, middleware.RequestIDHeader},
		AllowCredentials: true,
	}))
	e.Use(d.metrics.Middleware())
	e.Use(d.sessions.Middleware())
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(middleware.Audit(logger, middleware.StoreRecorder(d.store, cfg.AuditCollection)))

	e.StaticFS("/static", web.Static())

	// Session gate and pages
	accountSvc := account.NewService(d.provider, d.store, cfg.UsersCollection, logger, d.metrics)
	account.NewHandler(accountSvc, d.sessions).RegisterRoutes(e,
		middleware.RateLimit(middleware.LoginRateLimitConfig()))

	// Collections
	records.NewHandler(records.NewService(d.store, records.Staff), "staff", records.Access{
		Read:  []string{auth.RoleStaff},
		Write: []string{auth.RoleAdmin},
	}).RegisterRoutes(e)
	records.NewHandler(records.NewService(d.store, records.Patients), "patient", records.Access{
		Read:  []string{auth.RoleStaff},
		Write: []string{auth.RoleStaff},
	}).RegisterRoutes(e)
	records.NewHandler(records.NewService(d.store, records.Billing), "billing", records.Access{
		Read:  []string{auth.RoleStaff},
		Write: []string{auth.RoleAdmin},
	}).RegisterRoutes(e)

	billing.NewHandler(billing.NewService(d.store, logger, d.metrics)).RegisterRoutes(e)

	// Health and metrics
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/store", docstore.HealthHandler(d.store))
	if cfg.MetricsEnabled {
		e.GET("/metrics", d.metrics.Handler())
	}

	return e, nil
}

func runServer() error {
	// Logger
	logger := newLogger(os.Getenv("ENV"))

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Store
	store, err := docstore.Open(ctx, storeOptions(cfg))
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open store")
	}
	defer store.Close(context.Background())
	logger.Info().Str("driver", cfg.StoreDriver).Msg("connected to store")

	// Sessions
	secret, random, err := resolveSessionSecret(cfg.SessionSecret, cfg.IsDev())
	if err != nil {
		logger.Fatal().Err(err).Msg("session secret")
	}
	if random {
		logger.Warn().Msg("SESSION_SECRET not set, using a random secret; sessions end on restart")
	}
	sessionStore := auth.NewSessionStore(cfg.SessionTTL)
	sessionStore.StartCleanup(ctx, 10*time.Minute)
	sessions := auth.NewManager(sessionStore, auth.CookieConfig{
		Name:   cfg.SessionCookie,
		Secret: secret,
		Secure: cfg.IsProduction(),
		TTL:    cfg.SessionTTL,
	})

	e, err := newServer(serverDeps{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		provider: identity.NewPasswordClient(cfg.IdentityEndpoint, cfg.IdentityAPIKey, cfg.IdentityTimeout),
		sessions: sessions,
		metrics:  telemetry.New(),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build server")
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
