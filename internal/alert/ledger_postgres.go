package alert

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PostgresLedger implements Ledger over the alerts table.
type PostgresLedger struct {
	db *sql.DB
}

// NewPostgresLedger creates a new PostgresLedger.
func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

const alertColumns = 14

// insertBatchSize caps the alerts per INSERT. Postgres accepts at most 65535 bind parameters.
var insertBatchSize = 1000

// Insert appends alerts in multi-row INSERTs inside one transaction.
func (l *PostgresLedger) Insert(ctx context.Context, alerts ...*Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for start := 0; start < len(alerts); start += insertBatchSize {
		end := min(start+insertBatchSize, len(alerts))
		if err := insertBatch(ctx, tx, alerts[start:end]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit alerts: %w", err)
	}
	return nil
}

func insertBatch(ctx context.Context, tx *sql.Tx, alerts []*Alert) error {
	values := make([]string, 0, len(alerts))
	args := make([]any, 0, len(alerts)*alertColumns)
	for i, a := range alerts {
		placeholders := make([]string, alertColumns)
		for j := range placeholders {
			placeholders[j] = fmt.Sprintf("$%d", i*alertColumns+j+1)
		}
		values = append(values, "("+strings.Join(placeholders, ", ")+")")
		args = append(args,
			a.ActionID, a.EventID, nullableID(a.RecoveryEventID), nullableID(a.UserID), a.Clock,
			nullableID(a.MediaTypeID), a.SendTo, a.Subject, a.Message, int(a.Status), a.Error,
			a.EscStep, int(a.Type), a.Retries)
	}

	rows, err := tx.QueryContext(ctx, `
		INSERT INTO alerts (actionid, eventid, r_eventid, userid, clock, mediatypeid, sendto,
			subject, message, status, error, esc_step, alerttype, retries)
		VALUES `+strings.Join(values, ", ")+`
		RETURNING alertid
	`, args...)
	if err != nil {
		return fmt.Errorf("insert alerts: %w", err)
	}
	defer rows.Close()

	i := 0
	for rows.Next() {
		if i < len(alerts) {
			if err := rows.Scan(&alerts[i].ID); err != nil {
				return fmt.Errorf("scan alert id: %w", err)
			}
		}
		i++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate alert ids: %w", err)
	}
	return nil
}

// SentRecipients returns the distinct recipients of message alerts for the action and events.
func (l *PostgresLedger) SentRecipients(ctx context.Context, actionID uint64, eventIDs ...uint64) ([]Recipient, error) {
	ids := make([]any, 0, len(eventIDs))
	placeholders := make([]string, 0, len(eventIDs))
	for _, id := range eventIDs {
		if id == 0 {
			continue
		}
		ids = append(ids, id)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(ids)+2))
	}
	if len(ids) == 0 {
		return []Recipient{}, nil
	}

	args := append([]any{actionID, int(TypeMessage)}, ids...)
	rows, err := l.db.QueryContext(ctx, `
		SELECT DISTINCT userid, mediatypeid
		FROM alerts
		WHERE actionid = $1
			AND mediatypeid IS NOT NULL
			AND alerttype = $2
			AND eventid IN (`+strings.Join(placeholders, ", ")+`)
		ORDER BY userid, mediatypeid
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("select sent recipients: %w", err)
	}
	defer rows.Close()

	result := make([]Recipient, 0)
	for rows.Next() {
		var r Recipient
		if err := rows.Scan(&r.UserID, &r.MediaTypeID); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recipients: %w", err)
	}
	return result, nil
}

func nullableID(id uint64) any {
	if id == 0 {
		return nil
	}
	return id
}

var _ Ledger = (*PostgresLedger)(nil)
