package escalation

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PostgresStore implements Store over the escalations table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// partitionFilter builds the WHERE clause selecting a partition. The modulo filter
// is only added when more than one worker shares the table.
func partitionFilter(p Partition) (string, []any) {
	var column, filter string
	switch p.Source {
	case SourceTrigger:
		column, filter = "triggerid", "triggerid IS NOT NULL"
	case SourceItem:
		column, filter = "itemid", "triggerid IS NULL AND itemid IS NOT NULL"
	default:
		column, filter = "escalationid", "triggerid IS NULL AND itemid IS NULL"
	}
	if p.Workers <= 1 {
		return filter, nil
	}
	return filter + " AND mod(" + column + ", $1) = $2", []any{p.Workers, p.Index}
}

// Select returns the partition's escalations in processing order.
func (s *PostgresStore) Select(ctx context.Context, p Partition) ([]*Escalation, error) {
	filter, args := partitionFilter(p)
	rows, err := s.db.QueryContext(ctx, `
		SELECT escalationid, actionid, triggerid, itemid, eventid, r_eventid, esc_step, status, nextcheck
		FROM escalations
		WHERE `+filter+`
		ORDER BY actionid, triggerid, itemid, escalationid
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s escalations: %w", p.Source, err)
	}
	defer rows.Close()

	result := make([]*Escalation, 0)
	for rows.Next() {
		var (
			e                           Escalation
			triggerID, itemID, rEventID sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.ActionID, &triggerID, &itemID, &e.EventID, &rEventID,
			&e.EscStep, &e.Status, &e.NextCheck); err != nil {
			return nil, fmt.Errorf("scan escalation: %w", err)
		}
		e.TriggerID = uint64(triggerID.Int64)
		e.ItemID = uint64(itemID.Int64)
		e.RecoveryEventID = uint64(rEventID.Int64)
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate escalations: %w", err)
	}
	return result, nil
}

const updateColumns = 5

// applyBatchSize caps the rows per statement. Postgres accepts at most 65535 bind parameters.
var applyBatchSize = 1000

// Apply persists updates and deletions in a single transaction, batching the
// changed columns into UPDATE ... FROM (VALUES ...) and the ids into DELETE ... IN.
func (s *PostgresStore) Apply(ctx context.Context, updates []Update, deletes []uint64) error {
	if len(updates) == 0 && len(deletes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for start := 0; start < len(updates); start += applyBatchSize {
		end := min(start+applyBatchSize, len(updates))
		if err := updateBatch(ctx, tx, updates[start:end]); err != nil {
			return err
		}
	}
	for start := 0; start < len(deletes); start += applyBatchSize {
		end := min(start+applyBatchSize, len(deletes))
		if err := deleteBatch(ctx, tx, deletes[start:end]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func updateBatch(ctx context.Context, tx *sql.Tx, updates []Update) error {
	values := make([]string, 0, len(updates))
	args := make([]any, 0, len(updates)*updateColumns)
	for i, u := range updates {
		n := i * updateColumns
		values = append(values, fmt.Sprintf("($%d::bigint, $%d::integer, $%d::integer, $%d::integer, $%d::integer)",
			n+1, n+2, n+3, n+4, n+5))
		args = append(args, u.ID, int(u.Changed), u.NextCheck, u.EscStep, int(u.Status))
	}

	_, err := tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE escalations AS e SET
			nextcheck = CASE WHEN v.changed & %d <> 0 THEN v.nextcheck ELSE e.nextcheck END,
			esc_step = CASE WHEN v.changed & %d <> 0 THEN v.esc_step ELSE e.esc_step END,
			status = CASE WHEN v.changed & %d <> 0 THEN v.status ELSE e.status END
		FROM (VALUES `+strings.Join(values, ", ")+`) AS v(escalationid, changed, nextcheck, esc_step, status)
		WHERE e.escalationid = v.escalationid
	`, FieldNextCheck, FieldEscStep, FieldStatus), args...)
	if err != nil {
		return fmt.Errorf("update escalations: %w", err)
	}
	return nil
}

func deleteBatch(ctx context.Context, tx *sql.Tx, ids []uint64) error {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	_, err := tx.ExecContext(ctx, `DELETE FROM escalations WHERE escalationid IN (`+strings.Join(placeholders, ", ")+`)`, args...)
	if err != nil {
		return fmt.Errorf("delete escalations: %w", err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
