// README: Schema migration runner over the migrations/ directory.
package main

import (
	"flag"
	"log"

	"go.uber.org/zap"

	"carpool/internal/config"
	"carpool/internal/infra"
)

func main() {
	direction := flag.String("direction", "up", "up or down")
	steps := flag.Int("steps", 0, "number of migrations to apply; 0 means all")
	version := flag.Bool("version", false, "print the current schema version and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := infra.NewLogger(cfg.Log.Level, cfg.Log.Format).Named("migrate")
	defer func() { _ = logger.Sync() }()

	m, err := infra.NewMigrator(cfg.DB.DSN, cfg.DB.MigrationsPath, logger)
	if err != nil {
		logger.Fatal("init migrator", zap.Error(err))
	}
	defer func() { _ = m.Close() }()

	if *version {
		v, dirty, err := m.Version()
		if err != nil {
			logger.Fatal("read version", zap.Error(err))
		}
		logger.Info("schema version", zap.Uint("version", v), zap.Bool("dirty", dirty))
		return
	}

	switch {
	case *direction == "up" && *steps == 0:
		err = m.Up()
	case *direction == "up":
		err = m.Steps(*steps)
	case *direction == "down" && *steps == 0:
		err = m.Down()
	case *direction == "down":
		err = m.Steps(-*steps)
	default:
		logger.Fatal("unknown direction", zap.String("direction", *direction))
	}
	if err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}
}
