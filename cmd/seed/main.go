// seed inserts the development accounts used with FORCE_AUTH. Idempotent: existing accounts are
// left untouched.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"outreach-tracker/backend/internal/config"
	"outreach-tracker/backend/internal/db"
	"outreach-tracker/backend/internal/user/domain"
	"outreach-tracker/backend/internal/user/repository"
	"outreach-tracker/backend/internal/user/service"
)

type account struct {
	eid  string
	name string
	role string
}

var accounts = []account{
	{eid: "test-admin", name: "Test Administrator", role: domain.RoleAdmin},
	{eid: "test-student", name: "Test Student", role: domain.RoleUser},
}

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := db.Open(ctx, cfg.DatabaseURL, db.PoolConfig{MaxOpenConns: 2})
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer conn.Close()

	dir := service.NewDirectory(repository.NewPostgresRepository(conn), logger)
	if err := seed(ctx, dir, logger); err != nil {
		logger.Fatal("seed", zap.Error(err))
	}
	logger.Info("seed complete")
}

func seed(ctx context.Context, dir *service.Directory, logger *zap.Logger) error {
	roles, err := dir.ListRoles(ctx)
	if err != nil {
		return err
	}
	ids := make(map[string]int64, len(roles))
	for _, r := range roles {
		ids[r.Name] = r.ID
	}
	for _, a := range accounts {
		id, ok := ids[a.role]
		if !ok {
			return fmt.Errorf("role %q missing; run migrations first", a.role)
		}
		u, err := dir.Create(ctx, a.eid, a.name, []int64{id})
		switch {
		case errors.Is(err, service.ErrUserExists):
			logger.Info("account exists, skipping", zap.String("eid", a.eid))
		case err != nil:
			return fmt.Errorf("create %s: %w", a.eid, err)
		default:
			logger.Info("account created", zap.String("eid", u.EID), zap.Int64("id", u.ID), zap.String("role", a.role))
		}
	}
	return nil
}
