package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"TrendCascade/internal/domain/models"
	domrepo "TrendCascade/internal/domain/repository"
	pkgch "TrendCascade/pkg/clickhouse"
	"TrendCascade/pkg/logger"

	"github.com/google/uuid"
)

// CHTierStore keeps tier history in ClickHouse. Reads use FINAL so re-inserted windows collapse.
type CHTierStore struct {
	db    *sql.DB
	table string
	l     *logger.Logger
}

var _ domrepo.TierStore = (*CHTierStore)(nil)

func NewCHTierStore(ch *pkgch.Client, l *logger.Logger) *CHTierStore {
	if l == nil {
		l = logger.NewNop()
	}
	return &CHTierStore{db: ch.DB(), table: ch.Database() + ".tier_records", l: l}
}

// CHTierSchema returns the DDL for the tier table in database.
func CHTierSchema(database string) []string {
	return []string{
		"CREATE DATABASE IF NOT EXISTS " + database,
		"CREATE TABLE IF NOT EXISTS " + database + `.tier_records (
			id String,
			symbol LowCardinality(String),
			tier LowCardinality(String),
			ts DateTime64(3, 'UTC'),
			open Float64,
			high Float64,
			low Float64,
			close Float64,
			volume Float64,
			direction LowCardinality(String),
			children String,
			narrative String,
			metadata String,
			derived String,
			created_at DateTime64(3, 'UTC')
		) ENGINE = ReplacingMergeTree(created_at)
		PARTITION BY toYYYYMM(ts)
		ORDER BY (symbol, tier, ts)`,
	}
}

const chTierColumns = "id, symbol, tier, ts, open, high, low, close, volume, direction, children, narrative, metadata, derived, created_at"

// Insert checks for an existing window first. Callers hold the per-symbol cascade lock around this
// call (TierAggregator.Persist for M1, OnChildTierClosed for parents), so the check and the insert
// do not race for the same key.
func (s *CHTierStore) Insert(ctx context.Context, rec models.TierResult) (bool, error) {
	b := rec.Base()
	existing, err := s.Get(ctx, b.Symbol, b.Tier, b.Timestamp)
	switch {
	case err == nil:
		b.ID = existing.Base().ID
		return false, nil
	case !isNotFound(err):
		return false, err
	}

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	args, err := chTierArgs(rec)
	if err != nil {
		return false, err
	}

	start := time.Now()
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", s.table, chTierColumns)
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		s.l.Error("clickhouse insert tier error",
			logger.String("symbol", b.Symbol),
			logger.String("tier", string(b.Tier)),
			logger.Error(err))
		return false, dbErr("insert tier record", err)
	}
	s.l.Debug("clickhouse insert tier ok",
		logger.String("symbol", b.Symbol),
		logger.String("tier", string(b.Tier)),
		logger.Duration("duration_ms", time.Since(start)))
	return true, nil
}

func (s *CHTierStore) Get(ctx context.Context, symbol string, tier models.Tier, ts time.Time) (models.TierResult, error) {
	q := fmt.Sprintf("SELECT %s FROM %s FINAL WHERE symbol = ? AND tier = ? AND ts = ? LIMIT 1", chTierColumns, s.table)
	rows, err := s.query(ctx, q, symbol, string(tier), ts.UTC())
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("get %s %s: %w", symbol, tier, models.ErrNotFound)
	}
	return rows[0], nil
}

func (s *CHTierStore) Range(ctx context.Context, symbol string, tier models.Tier, from, to time.Time) ([]models.TierResult, error) {
	q := fmt.Sprintf("SELECT %s FROM %s FINAL WHERE symbol = ? AND tier = ? AND ts >= ? AND ts < ? ORDER BY ts ASC", chTierColumns, s.table)
	return s.query(ctx, q, symbol, string(tier), from.UTC(), to.UTC())
}

func (s *CHTierStore) Latest(ctx context.Context, symbol string, tier models.Tier, limit int) ([]models.TierResult, error) {
	if limit <= 0 {
		limit = 100
	}
	q := fmt.Sprintf("SELECT %s FROM %s FINAL WHERE symbol = ? AND tier = ? ORDER BY ts DESC LIMIT ?", chTierColumns, s.table)
	return s.query(ctx, q, symbol, string(tier), limit)
}

// DeleteOlderThan counts the doomed rows, then issues a lightweight DELETE.
func (s *CHTierStore) DeleteOlderThan(ctx context.Context, tier models.Tier, cutoff time.Time) (int64, error) {
	var n uint64
	countQ := fmt.Sprintf("SELECT count() FROM %s FINAL WHERE tier = ? AND ts < ?", s.table)
	if err := s.db.QueryRowContext(ctx, countQ, string(tier), cutoff.UTC()).Scan(&n); err != nil {
		return 0, dbErr("count expired tier records", err)
	}
	if n == 0 {
		return 0, nil
	}
	delQ := fmt.Sprintf("DELETE FROM %s WHERE tier = ? AND ts < ?", s.table)
	if _, err := s.db.ExecContext(ctx, delQ, string(tier), cutoff.UTC()); err != nil {
		return 0, dbErr("delete tier records", err)
	}
	return int64(n), nil
}

func (s *CHTierStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("clickhouse ping: %w: %w", models.ErrFatal, err)
	}
	return nil
}

func (s *CHTierStore) query(ctx context.Context, q string, args ...interface{}) ([]models.TierResult, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse tier query error", logger.Error(err))
		return nil, dbErr("query tier records", err)
	}
	defer rows.Close()

	var out []models.TierResult
	for rows.Next() {
		var m TierRecordModel
		var children, metadata, derived string
		if err := rows.Scan(&m.ID, &m.Symbol, &m.Tier, &m.Timestamp, &m.Open, &m.High, &m.Low, &m.Close,
			&m.Volume, &m.Direction, &children, &m.Narrative, &metadata, &derived, &m.CreatedAt); err != nil {
			return nil, dbErr("scan tier record", err)
		}
		rec, err := decodeCHTierRow(m, children, metadata, derived)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("tier rows", err)
	}
	return out, nil
}

func chTierArgs(rec models.TierResult) ([]interface{}, error) {
	m, err := toTierModel(rec)
	if err != nil {
		return nil, err
	}
	children, err := json.Marshal(m.Children)
	if err != nil {
		return nil, fmt.Errorf("encode children: %w", err)
	}
	metadata, err := json.Marshal(m.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return []interface{}{
		m.ID, m.Symbol, m.Tier, m.Timestamp, m.Open, m.High, m.Low, m.Close, m.Volume,
		m.Direction, string(children), m.Narrative, string(metadata), m.Derived, m.CreatedAt,
	}, nil
}

func decodeCHTierRow(m TierRecordModel, children, metadata, derived string) (models.TierResult, error) {
	if children != "" && children != "null" {
		if err := json.Unmarshal([]byte(children), &m.Children); err != nil {
			return nil, fmt.Errorf("decode children: %w", err)
		}
	}
	if metadata != "" && metadata != "null" {
		if err := json.Unmarshal([]byte(metadata), &m.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	m.Derived = derived
	return fromTierModel(m)
}
