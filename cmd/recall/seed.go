package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/efebarandurmaz/recall/internal/store"
	"github.com/efebarandurmaz/recall/internal/store/sqlite"
)

func runSeed(ctx context.Context, configPath, input string) error {
	cfg, logger, err := setup(configPath)
	if err != nil {
		return err
	}

	var r io.Reader = os.Stdin
	if input != "-" {
		f, err := os.Open(input)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	rows, err := store.DecodeJSONLines(r)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", input, err)
	}

	db, err := sqlite.Open(cfg.Store.SQLite.Path)
	if err != nil {
		return err
	}
	s, err := sqlite.New(db, cfg.Store.SQLite.Table)
	if err != nil {
		db.Close()
		return err
	}
	defer s.Close()

	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := s.Insert(ctx, rows); err != nil {
		return err
	}
	logger.Info("seeded store", "rows", len(rows), "path", cfg.Store.SQLite.Path, "table", cfg.Store.SQLite.Table)
	return nil
}
