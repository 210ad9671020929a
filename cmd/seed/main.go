// seed loads reference data for local development: one region, two teams, an admin,
// two agents and the default commission rules. It is safe to run repeatedly.
// When JWT_SECRET is set it prints a day-long bearer token for each seeded user.
//
// Usage: go run ./cmd/seed
package main

import (
	"context"
	"errors"
	"time"

	webAdapter "stock-tracker/internal/adapters/web"
	"stock-tracker/internal/config"
	"stock-tracker/internal/core"
	"stock-tracker/internal/db"

	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		config.NewLogger("info", "text").Fatalf("config: %v", err)
	}
	logger := config.NewLogger(cfg.LogLevel, "text")

	ctx := context.Background()
	if _, err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatalf("migrate: %v", err)
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("Failed to connect: %v", err)
	}
	defer pool.Close()

	tx, err := pool.Begin(ctx)
	if err != nil {
		logger.Fatalf("Failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	logger.Info("Restoring regions and teams...")
	_, err = tx.Exec(ctx, `
		INSERT INTO regions (name) VALUES ('Central')
		ON CONFLICT (name) DO NOTHING;

		INSERT INTO teams (name, region_id)
		SELECT t.name, r.id
		FROM regions r
		CROSS JOIN (VALUES ('Field Team A'), ('Field Team B')) AS t(name)
		WHERE r.name = 'Central'
		ON CONFLICT (name) DO UPDATE SET region_id = EXCLUDED.region_id;
	`)
	if err != nil {
		logger.Fatalf("Failed to restore regions and teams: %v", err)
	}

	logger.Info("Restoring users...")
	teamIDs := map[string]int64{}
	rows, err := tx.Query(ctx, `SELECT id, name FROM teams`)
	if err != nil {
		logger.Fatalf("Failed to load teams: %v", err)
	}
	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			logger.Fatalf("Failed to scan team: %v", err)
		}
		teamIDs[name] = id
	}
	if err := rows.Err(); err != nil {
		logger.Fatalf("Failed to load teams: %v", err)
	}

	seedUsers := []struct {
		core.NewUser
		team string
	}{
		{core.NewUser{Username: "admin", FullName: "Store Admin", Role: core.RoleAdmin}, ""},
		{core.NewUser{Username: "agent1", FullName: "First Agent", Role: core.RoleAgent}, "Field Team A"},
		{core.NewUser{Username: "agent2", FullName: "Second Agent", Role: core.RoleAgent}, "Field Team B"},
	}
	usernames := make([]string, len(seedUsers))
	for i, su := range seedUsers {
		usernames[i] = su.Username
	}
	if _, err := tx.Exec(ctx, `UPDATE users SET is_active = TRUE WHERE username = ANY($1)`, usernames); err != nil {
		logger.Fatalf("Failed to reactivate users: %v", err)
	}

	userSvc := core.NewUserService(tx)
	for _, su := range seedUsers {
		if existing, err := userSvc.GetByUsername(ctx, su.Username); err == nil {
			logger.WithField("user", existing.Username).Info("User already present")
			continue
		} else if !errors.Is(err, core.ErrNotFound) {
			logger.Fatalf("Failed to look up user %s: %v", su.Username, err)
		}
		in := su.NewUser
		if su.team != "" {
			id := teamIDs[su.team]
			in.TeamID = &id
		}
		if _, err := userSvc.Create(ctx, in); err != nil {
			logger.Fatalf("Failed to create user %s: %v", su.Username, err)
		}
	}

	logger.Info("Restoring commission rules...")
	_, err = tx.Exec(ctx, `
		DELETE FROM commission_rules;
		INSERT INTO commission_rules (package_type, rate, priority) VALUES
		  (NULL,      0.0500, 0),
		  ('premium', 0.1000, 0),
		  ('family',  0.0750, 0);
	`)
	if err != nil {
		logger.Fatalf("Failed to restore commission rules: %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		logger.Fatalf("Failed to commit: %v", err)
	}
	logger.Info("Seed data restored successfully.")

	if cfg.JWTSecret == "" {
		return
	}
	users, err := core.NewUserService(pool).List(ctx, nil)
	if err != nil {
		logger.Fatalf("Failed to list users: %v", err)
	}
	for _, u := range users {
		token, err := webAdapter.IssueToken(cfg.JWTSecret, u.ID, u.Role, 24*time.Hour)
		if err != nil {
			logger.Fatalf("Failed to sign token for %s: %v", u.Username, err)
		}
		logger.WithFields(logrus.Fields{"user": u.Username, "role": u.Role}).Info("Bearer " + token)
	}
}
