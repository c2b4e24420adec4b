package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	sqliteCreateAlertsSQL = `CREATE TABLE IF NOT EXISTS pool_alerts (
        id                   INTEGER PRIMARY KEY AUTOINCREMENT,
        pool_address         TEXT     NOT NULL,
        pool_name            TEXT     NOT NULL DEFAULT '',
        tier                 TEXT     NOT NULL,
        tvl_usd              TEXT     NOT NULL,
        fee_tvl_ratio_pct    TEXT     NOT NULL,
        apr_pct              TEXT     NOT NULL,
        organic_score        TEXT     NOT NULL,
        price_change_5m_pct  TEXT     NOT NULL,
        delivered            BOOLEAN  NOT NULL,
        error                TEXT,
        created_at           DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS pool_alerts_created_at_idx ON pool_alerts (created_at);`

	sqliteInsertAlertSQL = `INSERT INTO pool_alerts (
        pool_address, pool_name, tier, tvl_usd, fee_tvl_ratio_pct, apr_pct,
        organic_score, price_change_5m_pct, delivered, error, created_at
    ) VALUES (?,?,?,?,?,?,?,?,?,?,?);`

	sqliteListRecentAlertsSQL = `SELECT
        id, pool_address, pool_name, tier, tvl_usd, fee_tvl_ratio_pct, apr_pct,
        organic_score, price_change_5m_pct, delivered, error, created_at
    FROM pool_alerts
    ORDER BY created_at DESC, id DESC
    LIMIT ?;`

	sqliteDeleteAlertsBeforeSQL = `DELETE FROM pool_alerts WHERE created_at < ?;`
)

// SQLiteStore keeps the alert audit in a local SQLite file.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; go-sqlite3 serialises anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}
	return s.db, nil
}

// EnsureSchema 在缺失时创建 pool_alerts 表。
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, sqliteCreateAlertsSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// InsertAlert stores one delivery attempt; a zero CreatedAt is stamped with the current time.
func (s *SQLiteStore) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return AlertRecord{}, err
	}

	createdAt := alert.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	createdAt = createdAt.UTC()

	var errMsg interface{}
	if alert.Error != nil {
		errMsg = *alert.Error
	}

	res, err := db.ExecContext(ctx, sqliteInsertAlertSQL,
		alert.PoolAddress,
		alert.PoolName,
		alert.Tier,
		alert.TVLUSD.String(),
		alert.FeeTVLRatioPct.String(),
		alert.APRPct.String(),
		alert.OrganicScore.String(),
		alert.PriceChange5mPct.String(),
		alert.Delivered,
		errMsg,
		createdAt,
	)
	if err != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return AlertRecord{}, fmt.Errorf("insert alert id: %w", err)
	}

	rec := alert
	rec.ID = id
	rec.CreatedAt = createdAt
	return rec, nil
}

// ListRecentAlerts returns the newest rows first.
func (s *SQLiteStore) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, sqliteListRecentAlertsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		rec, scanErr := scanAlert(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		rec.CreatedAt = rec.CreatedAt.UTC()
		alerts = append(alerts, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return alerts, nil
}

// DeleteAlertsBefore 删除早于 olderThan 的审计记录并返回删除条数。
func (s *SQLiteStore) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, sqliteDeleteAlertsBeforeSQL, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete alerts before: %w", err)
	}
	return res.RowsAffected()
}

var _ AlertStore = (*SQLiteStore)(nil)
