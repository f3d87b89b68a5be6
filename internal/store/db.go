package store

import (
	"context"
	"database/sql"
	_ "embed"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed schema.sql
var schema string

// DB wraps sql.DB for Postgres using pgx.
type DB struct {
	Client *sql.DB
}

// NewDB creates a Postgres connection with sane defaults.
func NewDB(connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return &DB{Client: db}, db.PingContext(context.Background())
}

// EnsureSchema applies the idempotent schema. The unique indexes it creates
// are the correctness mechanism for duplicate and device-reuse detection;
// in-pipeline pre-checks are an optimization only.
//
// Statements run one at a time: pgx's default extended protocol refuses
// multiple commands in a single prepared statement.
func (d *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements() {
		if _, err := d.Client.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func schemaStatements() []string {
	var stmts []string
	for _, chunk := range strings.Split(schema, ";") {
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		stmts = append(stmts, strings.TrimSpace(chunk))
	}
	return stmts
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
