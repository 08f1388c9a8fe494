package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/model"
)

// timeLayout is the canonical timestamp encoding in the ledger database.
// Fixed-width fractional seconds keep the TEXT columns lexicographically
// ordered by time; RFC3339Nano would drop trailing zeros and break the
// executed_at comparisons in LastChange, LastOtherLeverChange, and
// DueForMonitoring. Values are always formatted in UTC.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// schema creates the append-only ledger table and the two query indexes the
// guardrail evaluator and rollback monitor depend on. Value columns are
// write-once: no UPDATE statement in this package touches them.
const schema = `
CREATE TABLE IF NOT EXISTS ledger_entries (
	change_id               INTEGER PRIMARY KEY AUTOINCREMENT,
	customer_id             TEXT NOT NULL,
	campaign_id             TEXT NOT NULL DEFAULT '',
	entity_type             TEXT NOT NULL,
	entity_id               TEXT NOT NULL,
	lever                   TEXT NOT NULL,
	old_value               REAL NOT NULL,
	new_value               REAL NOT NULL,
	change_pct              REAL NOT NULL,
	executed_at             TEXT NOT NULL,
	day                     TEXT NOT NULL,
	approved_by             TEXT NOT NULL,
	rule_id                 TEXT NOT NULL,
	risk_tier               TEXT NOT NULL,
	confidence              REAL NOT NULL,
	evidence                TEXT,
	metadata                TEXT NOT NULL DEFAULT '',
	action_category         TEXT NOT NULL,
	rollback_status         TEXT NOT NULL DEFAULT 'none',
	rollback_of_id          INTEGER,
	rollback_reason         TEXT NOT NULL DEFAULT '',
	monitoring_started_at   TEXT,
	monitoring_completed_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_ledger_cooldown
	ON ledger_entries (entity_id, lever, executed_at);
CREATE INDEX IF NOT EXISTS idx_ledger_ratelimit
	ON ledger_entries (customer_id, action_category, day);
CREATE INDEX IF NOT EXISTS idx_ledger_monitoring
	ON ledger_entries (rollback_status, executed_at);
`

// Store is the append-only ledger over an embedded SQLite database.
// It is the single source of truth for cooldown, rate-limit, and
// rollback-linkage queries.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the ledger database and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("ledger: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("ledger: open database: %w", err)
	}
	// A single logical writer per customer is assumed; one connection keeps
	// same-batch writes visible to the next item's re-validation.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append inserts one entry and returns its monotonic change id.
// Writes are single-row inserts; no multi-item transaction spans a batch.
func (s *Store) Append(ctx context.Context, e Entry) (int64, error) {
	var started, completed any
	if e.MonitoringStartedAt != nil {
		started = e.MonitoringStartedAt.UTC().Format(timeLayout)
	}
	if e.MonitoringCompletedAt != nil {
		completed = e.MonitoringCompletedAt.UTC().Format(timeLayout)
	}
	var rollbackOf any
	if e.RollbackOfID != nil {
		rollbackOf = *e.RollbackOfID
	}
	status := e.RollbackStatus
	if status == "" {
		status = StatusNone
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_entries (
			customer_id, campaign_id, entity_type, entity_id, lever,
			old_value, new_value, change_pct, executed_at, day, approved_by,
			rule_id, risk_tier, confidence, evidence, metadata, action_category,
			rollback_status, rollback_of_id, rollback_reason,
			monitoring_started_at, monitoring_completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.CustomerID, e.CampaignID, string(e.EntityType), e.EntityID, string(e.Lever),
		e.OldValue, e.NewValue, e.ChangePct,
		e.ExecutedAt.UTC().Format(timeLayout), e.ExecutedAt.UTC().Format("2006-01-02"),
		e.ApprovedBy, e.RuleID, string(e.RiskTier), e.Confidence,
		string(e.Evidence), e.Metadata, e.ActionCategory,
		string(status), rollbackOf, e.RollbackReason, started, completed,
	)
	if err != nil {
		return 0, fmt.Errorf("ledger: append: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("ledger: append id: %w", err)
	}
	return id, nil
}

// Get returns one entry by change id.
func (s *Store) Get(ctx context.Context, changeID int64) (Entry, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE change_id = ?`, changeID)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return Entry{}, fmt.Errorf("ledger: entry %d not found", changeID)
	}
	return e, err
}

// Recent returns the newest entries for a customer, newest first.
func (s *Store) Recent(ctx context.Context, customerID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` WHERE customer_id = ? ORDER BY change_id DESC LIMIT ?`,
		customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: recent: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// LastChange returns when the same (entity, lever) last changed.
// Dry-run entries count: cooldown must behave consistently across
// consecutive dry-runs.
func (s *Store) LastChange(ctx context.Context, entityID string, lever model.Lever) (time.Time, bool, error) {
	var ts string
	err := s.db.QueryRowContext(ctx, `
		SELECT executed_at FROM ledger_entries
		WHERE entity_id = ? AND lever = ?
		ORDER BY executed_at DESC LIMIT 1`,
		entityID, string(lever)).Scan(&ts)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("ledger: last change: %w", err)
	}
	t, err := time.Parse(timeLayout, ts)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("ledger: parse timestamp: %w", err)
	}
	return t, true, nil
}

// LastOtherLeverChange returns the most recent change to any different lever
// on the same entity since the given time. Feeds the anti-oscillation gate
// and the monitor's attribution check.
func (s *Store) LastOtherLeverChange(ctx context.Context, entityID string, lever model.Lever, since time.Time) (model.Lever, time.Time, bool, error) {
	var otherLever, ts string
	err := s.db.QueryRowContext(ctx, `
		SELECT lever, executed_at FROM ledger_entries
		WHERE entity_id = ? AND lever != ? AND executed_at > ?
		ORDER BY executed_at DESC LIMIT 1`,
		entityID, string(lever), since.UTC().Format(timeLayout)).Scan(&otherLever, &ts)
	if err == sql.ErrNoRows {
		return "", time.Time{}, false, nil
	}
	if err != nil {
		return "", time.Time{}, false, fmt.Errorf("ledger: other lever change: %w", err)
	}
	t, err := time.Parse(timeLayout, ts)
	if err != nil {
		return "", time.Time{}, false, fmt.Errorf("ledger: parse timestamp: %w", err)
	}
	return model.Lever(otherLever), t, true, nil
}

// CountActions counts executed actions for a customer and category on the
// given day (UTC). Feeds the daily rate-limit gate.
func (s *Store) CountActions(ctx context.Context, customerID, category string, day time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM ledger_entries
		WHERE customer_id = ? AND action_category = ? AND day = ?`,
		customerID, category, day.UTC().Format("2006-01-02")).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ledger: count actions: %w", err)
	}
	return n, nil
}

// DueForMonitoring returns entries still in monitoring whose change is at
// least minAge old, oldest first. The monitor applies any additional
// per-entity conversion-lag floor on top.
func (s *Store) DueForMonitoring(ctx context.Context, now time.Time, minAge time.Duration) ([]Entry, error) {
	cutoff := now.UTC().Add(-minAge)
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` WHERE rollback_status = ? AND executed_at <= ? ORDER BY executed_at ASC`,
		string(StatusMonitoring), cutoff.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("ledger: due for monitoring: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// MarkRolledBack transitions an entry monitoring -> rolled_back, linking the
// inverse entry. The WHERE guard makes any other starting state a no-op
// error, so terminal states can never move.
func (s *Store) MarkRolledBack(ctx context.Context, changeID, rollbackOfID int64, reason string, completedAt time.Time) error {
	return s.transition(ctx, changeID, StatusRolledBack, &rollbackOfID, reason, completedAt)
}

// MarkConfirmedGood transitions an entry monitoring -> confirmed_good.
func (s *Store) MarkConfirmedGood(ctx context.Context, changeID int64, reason string, completedAt time.Time) error {
	return s.transition(ctx, changeID, StatusConfirmedGood, nil, reason, completedAt)
}

// transition is the only UPDATE in this package. It touches rollback columns
// exclusively and requires the entry to still be in monitoring.
func (s *Store) transition(ctx context.Context, changeID int64, next Status, rollbackOfID *int64, reason string, completedAt time.Time) error {
	var rollbackOf any
	if rollbackOfID != nil {
		rollbackOf = *rollbackOfID
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE ledger_entries
		SET rollback_status = ?, rollback_of_id = COALESCE(?, rollback_of_id),
		    rollback_reason = ?, monitoring_completed_at = ?
		WHERE change_id = ? AND rollback_status = ?`,
		string(next), rollbackOf, reason, completedAt.UTC().Format(timeLayout),
		changeID, string(StatusMonitoring))
	if err != nil {
		return fmt.Errorf("ledger: transition to %s: %w", next, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ledger: transition rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("ledger: entry %d is not in monitoring, refusing transition to %s", changeID, next)
	}
	return nil
}

const selectColumns = `
	SELECT change_id, customer_id, campaign_id, entity_type, entity_id, lever,
	       old_value, new_value, change_pct, executed_at, approved_by,
	       rule_id, risk_tier, confidence, evidence, metadata, action_category,
	       rollback_status, rollback_of_id, rollback_reason,
	       monitoring_started_at, monitoring_completed_at
	FROM ledger_entries`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var e Entry
	var executedAt string
	var evidence, started, completed sql.NullString
	var rollbackOf sql.NullInt64
	var entityType, lever, riskTier, status string

	err := row.Scan(
		&e.ChangeID, &e.CustomerID, &e.CampaignID, &entityType, &e.EntityID, &lever,
		&e.OldValue, &e.NewValue, &e.ChangePct, &executedAt, &e.ApprovedBy,
		&e.RuleID, &riskTier, &e.Confidence, &evidence, &e.Metadata, &e.ActionCategory,
		&status, &rollbackOf, &e.RollbackReason, &started, &completed,
	)
	if err != nil {
		return Entry{}, err
	}

	e.EntityType = model.EntityType(entityType)
	e.Lever = model.Lever(lever)
	e.RiskTier = model.RiskTier(riskTier)
	e.RollbackStatus = Status(status)
	if evidence.Valid && evidence.String != "" {
		e.Evidence = []byte(evidence.String)
	}
	if rollbackOf.Valid {
		id := rollbackOf.Int64
		e.RollbackOfID = &id
	}

	if e.ExecutedAt, err = time.Parse(timeLayout, executedAt); err != nil {
		return Entry{}, fmt.Errorf("ledger: parse executed_at: %w", err)
	}
	if started.Valid {
		t, err := time.Parse(timeLayout, started.String)
		if err != nil {
			return Entry{}, fmt.Errorf("ledger: parse monitoring_started_at: %w", err)
		}
		e.MonitoringStartedAt = &t
	}
	if completed.Valid {
		t, err := time.Parse(timeLayout, completed.String)
		if err != nil {
			return Entry{}, fmt.Errorf("ledger: parse monitoring_completed_at: %w", err)
		}
		e.MonitoringCompletedAt = &t
	}
	return e, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
