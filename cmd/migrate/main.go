package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/pflag"

	"github.com/stackops/stackops/internal/infra/logger"
	"github.com/stackops/stackops/internal/infra/migrate"
)

func main() {
	_ = godotenv.Load()

	mode := pflag.StringP("mode", "m", "up", "migration mode: up or down")
	dir := pflag.StringP("dir", "d", envOr("DB_MIGRATIONS_PATH", "migrations"), "directory holding the numbered .sql files")
	dsn := pflag.String("database-url", os.Getenv("DATABASE_URL"), "postgres connection string")
	pflag.Parse()

	if *dsn == "" {
		log.Fatal("DATABASE_URL environment variable or --database-url is required")
	}

	ctx := context.Background()
	structuredLogger := logger.NewStructuredLogger(logger.LoggerConfig{
		Level:       envOr("LOG_LEVEL", "info"),
		Format:      envOr("LOG_FORMAT", "text"),
		ServiceName: "stackops-migrate",
	})

	db, err := sql.Open("postgres", *dsn)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("failed to ping database: %v", err)
	}

	migrator := migrate.New(db, *dir, structuredLogger)

	switch strings.ToLower(*mode) {
	case migrate.KindUp:
		n, err := migrator.Up(ctx)
		if err != nil {
			log.Fatalf("migration up failed: %v", err)
		}
		structuredLogger.Info(ctx, "Migration up completed", map[string]interface{}{"applied": n})
	case migrate.KindDown:
		n, err := migrator.Down(ctx)
		if err != nil {
			log.Fatalf("migration down failed: %v", err)
		}
		structuredLogger.Info(ctx, "Migration down completed", map[string]interface{}{"reverted": n})
	default:
		log.Fatalf("unknown mode: %s", *mode)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
