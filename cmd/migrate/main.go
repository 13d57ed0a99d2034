package main

import (
	"flag"
	"os"

	"github.com/joho/godotenv"

	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/pkg/logging"
)

func main() {
	force := flag.Int("force", -1, "force the schema to this version and exit (clears a dirty state)")
	flag.Parse()

	_ = godotenv.Load()
	logger := logging.New(os.Getenv("LOG_LEVEL"))

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Error("POSTGRES_DSN is required")
		os.Exit(1)
	}

	if err := db.Migrate(dsn, *force); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}

	if *force >= 0 {
		logger.Info("schema version forced", "version", *force)
		return
	}
	logger.Info("migrations applied")
}
