package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Daxiongmao87/youspotter/internal/shared"
	"github.com/urfave/cli/v3"
)

func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create the config file and initialize the catalog database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
		},
		Action: r.Setup,
	}
}

// Setup creates a config file when missing, then initializes the database
// and runs migrations.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	if _, err := os.Stat(configPath); err == nil {
		config, err := shared.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		r.config = config
	} else {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			return fmt.Errorf("failed to create config file: %w", err)
		}
		config, err := shared.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load created config: %w", err)
		}
		r.config = config
		r.logger.Info("config file created", "path", configPath)
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)
	_, db, err := r.openCatalog()
	if err != nil {
		return err
	}
	defer db.Close()

	version, err := shared.CurrentSchemaVersion(db)
	if err != nil {
		return err
	}
	r.logger.Info("setup complete", "database", r.config.Database.Path, "schema_version", version)
	return r.writePlain("✓ youspotter initialized (database: %s)\n", r.config.Database.Path)
}
