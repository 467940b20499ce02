package main

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/scopenav/scopenav/internal/catalog"
	"github.com/scopenav/scopenav/internal/config"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Validate a catalog file and import it into the database.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSeed(cmd.Context(), seedFile)
	},
}

func runSeed(ctx context.Context, path string) error {
	c, err := catalog.LoadFile(path)
	if err != nil {
		return err
	}

	cfg, err := config.LoadRequireDB()
	if err != nil {
		return err
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := catalog.NewPostgresStore(pool).Import(ctx, c); err != nil {
		return err
	}

	slog.Info("seeded catalog",
		"file", path,
		"scopes", len(c.Scopes),
		"nodes", len(c.Nodes),
		"bindings", len(c.Bindings),
	)
	return nil
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "", "Catalog YAML file to import")
	_ = seedCmd.MarkFlagRequired("file")
}
