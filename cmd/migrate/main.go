package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/verifyai/verifyai/internal/database"
	"github.com/verifyai/verifyai/internal/log"
)

func main() {
	var (
		host           = flag.String("host", "localhost", "Database host")
		port           = flag.Int("port", 5432, "Database port")
		user           = flag.String("user", "verifyai", "Database user")
		password       = flag.String("password", "", "Database password")
		dbName         = flag.String("name", "verifyai", "Database name")
		migrationsPath = flag.String("migrations", "./migrations", "Path to migrations directory")
		status         = flag.Bool("status", false, "Show migration status only")
	)
	flag.Parse()

	logger := log.New(os.Getenv("VERIFYAI_ENVIRONMENT"))

	config := database.Config{
		Type:     "postgres",
		Host:     *host,
		Port:     *port,
		User:     *user,
		Password: *password,
		Name:     *dbName,
	}

	if env := os.Getenv("VERIFYAI_DATABASE_HOST"); env != "" {
		config.Host = env
	}
	if env := os.Getenv("VERIFYAI_DATABASE_USER"); env != "" {
		config.User = env
	}
	if env := os.Getenv("VERIFYAI_DATABASE_PASSWORD"); env != "" {
		config.Password = env
	}
	if env := os.Getenv("VERIFYAI_DATABASE_NAME"); env != "" {
		config.Name = env
	}

	db, err := database.NewDB(config)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	migrator := database.NewMigrator(db.Conn(), config.Type, logger)

	if *status {
		if err := migrator.Initialize(); err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize migrator")
		}

		applied, err := migrator.GetAppliedMigrations()
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to get applied migrations")
		}

		migrations, err := migrator.LoadMigrations(*migrationsPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to load migrations")
		}

		fmt.Println("Migration Status:")
		fmt.Println("=================")
		for _, m := range migrations {
			state := "pending"
			if applied[m.Version] {
				state = "applied"
			}
			fmt.Printf("%s - %s [%s]\n", m.Version, m.Name, state)
		}
		return
	}

	if err := migrator.Run(*migrationsPath); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}
	fmt.Println("Migrations completed successfully!")
}
