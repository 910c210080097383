package docstore

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medadmin/medadmin/internal/platform/db"
)

// Options selects and configures a driver for Open.
type Options struct {
	Driver        string
	DatabaseURL   string
	MaxConns      int32
	MinConns      int32
	MongoURI      string
	MongoDatabase string
	SQLitePath    string
}

// Open connects the configured driver. The postgres driver expects the
// documents table to exist (see the migrate command).
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "postgres":
		pool, err := db.NewPool(ctx, opts.DatabaseURL, opts.MaxConns, opts.MinConns)
		if err != nil {
			return nil, err
		}
		return NewPostgresStore(pool), nil
	case "mongo":
		return NewMongoStore(ctx, opts.MongoURI, opts.MongoDatabase)
	case "sqlite":
		return NewSQLiteStore(ctx, opts.SQLitePath)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}

// HealthHandler pings the store. Drivers exposing Stats() have it included.
func HealthHandler(s Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		body := map[string]interface{}{"status": "healthy"}
		if sp, ok := s.(interface{ Stats() any }); ok {
			body["pool"] = sp.Stats()
		}

		if err := s.Ping(ctx); err != nil {
			body["status"] = "unhealthy"
			body["error"] = err.Error()
			return c.JSON(http.StatusServiceUnavailable, body)
		}
		return c.JSON(http.StatusOK, body)
	}
}
