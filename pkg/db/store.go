package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "pgx"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS whale_events (
    tx_hash TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    from_address TEXT NOT NULL,
    to_address TEXT,
    asset TEXT NOT NULL,
    raw_amount TEXT NOT NULL,
    usd_value TEXT NOT NULL,
    usd_value_num REAL NOT NULL DEFAULT 0,
    block_number INTEGER NOT NULL,
    observed_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_whale_events_block ON whale_events(block_number);
CREATE INDEX IF NOT EXISTS idx_whale_events_observed ON whale_events(observed_at);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS whale_events (
    tx_hash TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    from_address TEXT NOT NULL,
    to_address TEXT,
    asset TEXT NOT NULL,
    raw_amount TEXT NOT NULL,
    usd_value TEXT NOT NULL,
    usd_value_num DOUBLE PRECISION NOT NULL DEFAULT 0,
    block_number BIGINT NOT NULL,
    observed_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_whale_events_block ON whale_events(block_number);
CREATE INDEX IF NOT EXISTS idx_whale_events_observed ON whale_events(observed_at);
`

type Store struct {
	db      *sql.DB
	dialect Dialect
}

// NewStore opens SQLite for file paths and Postgres for postgres:// DSNs.
func NewStore(dsn string) (*Store, error) {
	dialect, source, schema := DialectSQLite, sqliteSource(dsn), sqliteSchema
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialect, source, schema = DialectPostgres, dsn, postgresSchema
	}

	db, err := sql.Open(string(dialect), source)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, dialect: dialect}, nil
}

// sqliteSource enables WAL and a busy timeout, keeping any query string already on dsn.
func sqliteSource(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_journal_mode=WAL&_busy_timeout=5000"
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Dialect() Dialect { return s.dialect }

// q rewrites ? placeholders to $n for Postgres.
func (s *Store) q(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ---- Whale Events ----

// UpsertWhaleEvent inserts ev unless its tx hash is already stored.
// inserted is false when the row existed, which is not an error.
func (s *Store) UpsertWhaleEvent(ctx context.Context, ev WhaleEvent) (bool, error) {
	var to sql.NullString
	if ev.ToAddress != nil {
		to = sql.NullString{String: *ev.ToAddress, Valid: true}
	}
	observed := ev.ObservedAt
	if observed.IsZero() {
		observed = time.Now()
	}
	usdNum, _ := ev.USDValue.Float64()

	res, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO whale_events (tx_hash, type, from_address, to_address, asset, raw_amount, usd_value, usd_value_num, block_number, observed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tx_hash) DO NOTHING`),
		ev.TxHash, ev.Kind(), ev.FromAddress, to, ev.Asset,
		ev.RawAmount.String(), ev.USDValue.String(), usdNum,
		int64(ev.BlockNumber), observed.UTC())
	if err != nil {
		return false, fmt.Errorf("upsert whale event %s: %w", ev.TxHash, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

const whaleEventCols = `tx_hash, from_address, to_address, asset, raw_amount, usd_value, block_number, observed_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanWhaleEvent(row scanner) (WhaleEvent, error) {
	var ev WhaleEvent
	var to sql.NullString
	var raw, usd string
	var block int64
	if err := row.Scan(&ev.TxHash, &ev.FromAddress, &to, &ev.Asset, &raw, &usd, &block, &ev.ObservedAt); err != nil {
		return ev, err
	}
	if to.Valid {
		ev.ToAddress = &to.String
	}
	var err error
	if ev.RawAmount, err = decimal.NewFromString(raw); err != nil {
		return ev, err
	}
	if ev.USDValue, err = decimal.NewFromString(usd); err != nil {
		return ev, err
	}
	ev.BlockNumber = uint64(block)
	return ev, nil
}

func (s *Store) GetWhaleEvent(ctx context.Context, txHash string) (*WhaleEvent, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+whaleEventCols+` FROM whale_events WHERE tx_hash=?`), txHash)
	ev, err := scanWhaleEvent(row)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (s *Store) RecentWhaleEvents(ctx context.Context, limit int) ([]WhaleEvent, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+whaleEventCols+` FROM whale_events ORDER BY block_number DESC, observed_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []WhaleEvent
	for rows.Next() {
		ev, err := scanWhaleEvent(rows)
		if err != nil {
			log.Warn().Err(err).Msg("skipping unreadable whale event row")
			continue
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// ---- Stats ----

func (s *Store) Stats(ctx context.Context) (map[string]int64, error) {
	stats := map[string]int64{}

	var total, contracts, latest int64
	var volume float64
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN type = ? THEN 1 ELSE 0 END), 0),
		       COALESCE(MAX(block_number), 0),
		       COALESCE(SUM(usd_value_num), 0)
		FROM whale_events`), KindContract).Scan(&total, &contracts, &latest, &volume)
	if err != nil {
		return nil, err
	}

	stats["whale_events"] = total
	stats["contract_events"] = contracts
	stats["transfer_events"] = total - contracts
	stats["latest_block"] = latest
	stats["volume_usd"] = int64(volume)
	return stats, nil
}
