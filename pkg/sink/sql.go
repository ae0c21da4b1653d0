package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/sirupsen/logrus"

	// SQLite database driver (CGO-free)
	_ "modernc.org/sqlite"

	"github.com/Sriram-PR/amazon-crawler/pkg/utils"
)

// SQLCommitter writes batches into a single results table.
// Rows are stored as JSON documents since extractors differ in their columns.
type SQLCommitter struct {
	db    *sql.DB
	table string
	log   *logrus.Entry
}

// NewSQLCommitter opens the database and creates the results table if needed
func NewSQLCommitter(driver, dsn, table string, logger *logrus.Entry) (*SQLCommitter, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s sink: %w", utils.ErrDatabase, driver, err)
	}

	// Single connection prevents lock conflicts
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	c := &SQLCommitter{db: db, table: table, log: logger.WithField("component", "sql_sink")}
	if err := c.initSchema(driver); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *SQLCommitter) initSchema(driver string) error {
	var stmts []string
	if driver == "sqlite" {
		stmts = append(stmts,
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = NORMAL",
			"PRAGMA busy_timeout = 30000",
		)
	}
	stmts = append(stmts,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			batch_id TEXT NOT NULL,
			collection TEXT NOT NULL,
			extractor TEXT NOT NULL,
			data TEXT NOT NULL,
			dead_time TEXT,
			created_at TEXT NOT NULL
		)`, c.table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_collection ON %s(collection)", c.table, c.table),
	)
	for _, stmt := range stmts {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("%w: init sink schema: %w", utils.ErrDatabase, err)
		}
	}
	return nil
}

// Commit inserts every result of the batch in one transaction
func (c *SQLCommitter) Commit(ctx context.Context, batch Batch) error {
	if len(batch.Results) == 0 {
		return nil
	}

	insert := sq.Insert(c.table).Columns("batch_id", "collection", "extractor", "data", "dead_time", "created_at")
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, r := range batch.Results {
		data, err := json.Marshal(r.Row.ToEntity())
		if err != nil {
			return fmt.Errorf("%w: encode row for batch %s: %w", utils.ErrSinkCommit, batch.ID, err)
		}
		var deadTime any
		if !r.DeadTime.IsZero() {
			deadTime = r.DeadTime.UTC().Format(time.RFC3339Nano)
		}
		insert = insert.Values(batch.ID, r.Collection, r.Extractor, string(data), deadTime, now)
	}
	query, args, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("%w: build insert: %w", utils.ErrSinkCommit, err)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", utils.ErrSinkCommit, err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%w: insert batch %s: %w", utils.ErrSinkCommit, batch.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit batch %s: %w", utils.ErrSinkCommit, batch.ID, err)
	}
	c.log.WithField("batch_id", batch.ID).Debugf("Inserted %d rows into %s", len(batch.Results), c.table)
	return nil
}

// Count returns the number of stored rows in collection; an empty collection counts every row
func (c *SQLCommitter) Count(ctx context.Context, collection string) (int64, error) {
	q := sq.Select("COUNT(*)").From(c.table)
	if collection != "" {
		q = q.Where(sq.Eq{"collection": collection})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("%w: build count: %w", utils.ErrDatabase, err)
	}
	var n int64
	if err := c.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count %s: %w", utils.ErrDatabase, c.table, err)
	}
	return n, nil
}

// StoredRow is one committed row as read back from the table
type StoredRow struct {
	BatchID    string
	Collection string
	Extractor  string
	Data       string
}

// Rows returns stored rows of a batch in insertion order
func (c *SQLCommitter) Rows(ctx context.Context, batchID string) ([]StoredRow, error) {
	query, args, err := sq.Select("batch_id", "collection", "extractor", "data").
		From(c.table).
		Where(sq.Eq{"batch_id": batchID}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: build select: %w", utils.ErrDatabase, err)
	}
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: select batch %s: %w", utils.ErrDatabase, batchID, err)
	}
	defer rows.Close()

	var out []StoredRow
	for rows.Next() {
		var r StoredRow
		if err := rows.Scan(&r.BatchID, &r.Collection, &r.Extractor, &r.Data); err != nil {
			return nil, fmt.Errorf("%w: scan: %w", utils.ErrDatabase, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database
func (c *SQLCommitter) Close() error {
	return c.db.Close()
}
