package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/tableside/api/internal/config"
	"github.com/tableside/api/internal/enum"
	"github.com/tableside/api/internal/logger"
)

type seedModifier struct {
	group, option string
	delta         string
}

type seedMenuItem struct {
	name, price string
	modifiers   []seedModifier
}

var demoTables = []struct {
	name     string
	capacity int
}{
	{"T1", 2},
	{"T2", 4},
	{"T3", 4},
	{"T4", 6},
}

var demoMenu = []seedMenuItem{
	{name: "Burger", price: "50000"},
	{name: "Fries", price: "20000", modifiers: []seedModifier{
		{group: "Size", option: "Regular", delta: "0"},
		{group: "Size", option: "Large", delta: "5000"},
	}},
}

func main() {
	email := flag.String("email", "", "Owner email address")
	password := flag.String("password", "", "Owner password")
	name := flag.String("name", "", "Owner full name")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	log, err := logger.New(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync() //nolint:errcheck

	// Flags, then environment, then defaults
	if *email == "" {
		*email = envOr("SEED_EMAIL", "owner@tableside.local")
	}
	if *password == "" {
		*password = os.Getenv("SEED_PASSWORD")
	}
	if *password == "" {
		*password = "password123"
		log.Warn("using default owner password; change it before going live")
	}
	if *name == "" {
		*name = envOr("SEED_NAME", "Owner")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("unable to connect to database", zap.Error(err))
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatal("unable to ping database", zap.Error(err))
	}

	// One transaction: the seed lands completely or not at all.
	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Fatal("begin transaction", zap.Error(err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	ownerID, err := seedOwner(ctx, tx, log, *email, *password, *name)
	if err != nil {
		log.Fatal("seed owner", zap.Error(err))
	}
	if err := seedTables(ctx, tx, log); err != nil {
		log.Fatal("seed tables", zap.Error(err))
	}
	if err := seedMenu(ctx, tx, log); err != nil {
		log.Fatal("seed menu", zap.Error(err))
	}

	if err := tx.Commit(ctx); err != nil {
		log.Fatal("commit", zap.Error(err))
	}
	log.Info("seed completed", zap.String("owner_id", ownerID.String()))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// seedOwner creates the owner user if it doesn't exist.
func seedOwner(ctx context.Context, tx pgx.Tx, log *zap.Logger, email, password, fullName string) (uuid.UUID, error) {
	var existingID uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM users WHERE email = $1 LIMIT 1`, email).Scan(&existingID)
	if err == nil {
		log.Info("owner exists, skipping", zap.String("email", email))
		return existingID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("check user: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return uuid.Nil, fmt.Errorf("hash password: %w", err)
	}

	var newID uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO users (email, hashed_password, full_name, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, email, string(hashed), fullName, enum.UserRoleOwner).Scan(&newID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert user: %w", err)
	}
	log.Info("created owner", zap.String("email", email), zap.String("id", newID.String()))
	return newID, nil
}

func seedTables(ctx context.Context, tx pgx.Tx, log *zap.Logger) error {
	for _, t := range demoTables {
		tag, err := tx.Exec(ctx, `
			INSERT INTO dining_tables (name, capacity)
			VALUES ($1, $2)
			ON CONFLICT (name) DO NOTHING
		`, t.name, t.capacity)
		if err != nil {
			return fmt.Errorf("insert table %s: %w", t.name, err)
		}
		if tag.RowsAffected() > 0 {
			log.Info("created table", zap.String("name", t.name))
		}
	}
	return nil
}

// seedMenu inserts the demo catalog once; an existing item of the same name
// is left untouched together with its modifiers.
func seedMenu(ctx context.Context, tx pgx.Tx, log *zap.Logger) error {
	for _, item := range demoMenu {
		var itemID uuid.UUID
		err := tx.QueryRow(ctx, `SELECT id FROM menu_items WHERE name = $1 LIMIT 1`, item.name).Scan(&itemID)
		if err == nil {
			continue
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("check menu item %s: %w", item.name, err)
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO menu_items (name, price) VALUES ($1, $2::numeric) RETURNING id
		`, item.name, item.price).Scan(&itemID)
		if err != nil {
			return fmt.Errorf("insert menu item %s: %w", item.name, err)
		}

		groups := make(map[string]uuid.UUID)
		for _, m := range item.modifiers {
			groupID, ok := groups[m.group]
			if !ok {
				err := tx.QueryRow(ctx, `
					INSERT INTO modifier_groups (menu_item_id, name) VALUES ($1, $2) RETURNING id
				`, itemID, m.group).Scan(&groupID)
				if err != nil {
					return fmt.Errorf("insert modifier group %s: %w", m.group, err)
				}
				groups[m.group] = groupID
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO modifier_options (group_id, name, price_delta) VALUES ($1, $2, $3::numeric)
			`, groupID, m.option, m.delta); err != nil {
				return fmt.Errorf("insert modifier option %s: %w", m.option, err)
			}
		}
		log.Info("created menu item", zap.String("name", item.name), zap.Int("modifiers", len(item.modifiers)))
	}
	return nil
}
