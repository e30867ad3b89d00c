// README: Postgres fixture for DB-backed tests; skips when SCRAP_TEST_DSN is unset.
package testdb

import (
	"bufio"
	"context"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"scrapyard/migrations"
)

// Open connects to SCRAP_TEST_DSN, applies the schema and empties every table.
func Open(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("SCRAP_TEST_DSN")
	if dsn == "" {
		t.Skip("SCRAP_TEST_DSN not set; skipping DB-backed tests")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := applySchema(ctx, db); err != nil {
		t.Fatalf("apply migration: %v", err)
	}
	if _, err := db.Exec(ctx, "TRUNCATE TABLE chat_messages, pickup_state_events, pickup_requests, accounts"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	return db
}

// SeedAccount inserts a bare account row so foreign keys resolve.
func SeedAccount(t *testing.T, db *pgxpool.Pool, id, email string, client, seller bool) {
	t.Helper()
	_, err := db.Exec(context.Background(), `
		INSERT INTO accounts (id, email, password_hash, is_client, is_seller)
		VALUES ($1, $2, 'x', $3, $4)`, id, email, client, seller)
	if err != nil {
		t.Fatalf("seed account %s: %v", id, err)
	}
}

func applySchema(ctx context.Context, db *pgxpool.Pool) error {
	content, err := migrations.FS.ReadFile("0001_init.up.sql")
	if err != nil {
		return err
	}
	for _, stmt := range splitSQL(stripSQLComments(string(content))) {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func stripSQLComments(input string) string {
	var b strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(input))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		b.WriteString(scanner.Text())
		b.WriteString("\n")
	}
	return b.String()
}

func splitSQL(input string) []string {
	parts := strings.Split(input, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		stmt := strings.TrimSpace(p)
		if stmt == "" {
			continue
		}
		out = append(out, stmt)
	}
	return out
}
