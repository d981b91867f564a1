package database

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	conn   *sql.DB
	dbType string
}

type Config struct {
	Type       string
	Host       string
	Port       int
	User       string
	Password   string
	Name       string
	SQLitePath string
}

func NewDB(config Config) (*DB, error) {
	var conn *sql.DB
	var err error

	switch config.Type {
	case "sqlite":
		conn, err = sql.Open("sqlite3", config.SQLitePath)
		if err == nil && config.SQLitePath == ":memory:" {
			// Each pooled connection would otherwise see its own empty
			// in-memory database.
			conn.SetMaxOpenConns(1)
		}
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			config.Host, config.Port, config.User, config.Password, config.Name)
		conn, err = sql.Open("pgx", dsn)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn, dbType: config.Type}

	// Only create tables for SQLite; postgres goes through migrations.
	if config.Type == "sqlite" {
		if _, err := conn.Exec("PRAGMA foreign_keys=ON; PRAGMA busy_timeout=5000;"); err != nil {
			return nil, fmt.Errorf("failed to set pragmas: %w", err)
		}
		if err := db.createTables(); err != nil {
			return nil, fmt.Errorf("failed to create tables: %w", err)
		}
	}

	return db, nil
}

func (db *DB) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS artifacts (
		digest TEXT PRIMARY KEY,
		media_kind TEXT NOT NULL,
		declared_mime TEXT NOT NULL DEFAULT '',
		detected_mime TEXT NOT NULL DEFAULT '',
		size_bytes INTEGER NOT NULL,
		ingested_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS metadata_findings (
		digest TEXT PRIMARY KEY REFERENCES artifacts(digest),
		device_model TEXT NOT NULL DEFAULT '',
		software TEXT NOT NULL DEFAULT '',
		created_at_tag TIMESTAMP,
		modified_at_tag TIMESTAMP,
		has_gps INTEGER NOT NULL DEFAULT 0,
		flags TEXT NOT NULL DEFAULT '[]',
		extracted_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS analysis_runs (
		id TEXT PRIMARY KEY,
		digest TEXT NOT NULL,
		state TEXT NOT NULL,
		failure_reason TEXT NOT NULL DEFAULT '',
		policy_version TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_runs_digest ON analysis_runs(digest);

	CREATE TABLE IF NOT EXISTS detector_results (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		digest TEXT NOT NULL,
		detector TEXT NOT NULL,
		status TEXT NOT NULL,
		score REAL,
		evidence TEXT NOT NULL DEFAULT '',
		elapsed_ms INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		UNIQUE(run_id, detector)
	);
	CREATE INDEX IF NOT EXISTS idx_results_digest ON detector_results(digest);

	CREATE TABLE IF NOT EXISTS verdicts (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		digest TEXT NOT NULL,
		seq INTEGER NOT NULL,
		score REAL NOT NULL,
		label TEXT NOT NULL,
		policy_version TEXT NOT NULL,
		result_ids TEXT NOT NULL DEFAULT '[]',
		degraded TEXT NOT NULL DEFAULT '[]',
		chain_tag TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		UNIQUE(digest, seq)
	);

	CREATE TABLE IF NOT EXISTS reference_hashes (
		digest TEXT PRIMARY KEY,
		phash TEXT NOT NULL,
		label TEXT NOT NULL,
		added_at TIMESTAMP NOT NULL
	);
	`

	_, err := db.conn.Exec(query)
	return err
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Conn() *sql.DB {
	return db.conn
}
