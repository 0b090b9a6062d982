package maintenance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// PostgresStore implements Store over the maintenances tables.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create inserts a window with its hosts and groups in one transaction.
func (s *PostgresStore) Create(ctx context.Context, window *Window) (*Window, error) {
	if err := window.validate(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	created := window.clone()
	err = tx.QueryRowContext(ctx, `
		INSERT INTO maintenances (name, description, maintenance_type, active_since, active_till)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING maintenanceid
	`, created.Name, created.Description, int(created.Type),
		created.ActiveSince.Unix(), created.ActiveTill.Unix()).Scan(&created.ID)
	if err != nil {
		return nil, fmt.Errorf("insert maintenance: %w", err)
	}

	if err := insertMembers(ctx, tx, "maintenances_hosts", "hostid", created.ID, created.HostIDs); err != nil {
		return nil, err
	}
	if err := insertMembers(ctx, tx, "maintenances_groups", "groupid", created.ID, created.GroupIDs); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return created, nil
}

func insertMembers(ctx context.Context, tx *sql.Tx, table, column string, maintenanceID uint64, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	values := make([]string, len(ids))
	args := make([]any, 0, len(ids)*2)
	for i, id := range ids {
		values[i] = fmt.Sprintf("($%d, $%d)", i*2+1, i*2+2)
		args = append(args, maintenanceID, id)
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO `+table+` (maintenanceid, `+column+`) VALUES `+strings.Join(values, ", "), args...)
	if err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

// Get retrieves a window by ID.
func (s *PostgresStore) Get(ctx context.Context, id uint64) (*Window, error) {
	w := &Window{}
	var description sql.NullString
	var since, till int64

	err := s.db.QueryRowContext(ctx, `
		SELECT maintenanceid, name, description, maintenance_type, active_since, active_till
		FROM maintenances WHERE maintenanceid = $1
	`, id).Scan(&w.ID, &w.Name, &description, &w.Type, &since, &till)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query maintenance: %w", err)
	}
	w.Description = description.String
	w.ActiveSince = time.Unix(since, 0).UTC()
	w.ActiveTill = time.Unix(till, 0).UTC()

	windows := map[uint64]*Window{w.ID: w}
	if err := s.loadMembers(ctx, windows); err != nil {
		return nil, err
	}
	return w, nil
}

// Delete removes a window; member rows are removed by cascade.
func (s *PostgresStore) Delete(ctx context.Context, id uint64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM maintenances WHERE maintenanceid = $1`, id)
	if err != nil {
		return fmt.Errorf("delete maintenance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete maintenance: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActive retrieves the windows active at the given time, ordered by ID.
func (s *PostgresStore) ListActive(ctx context.Context, at time.Time) ([]*Window, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT maintenanceid, name, description, maintenance_type, active_since, active_till
		FROM maintenances
		WHERE active_since <= $1 AND active_till > $1
		ORDER BY maintenanceid
	`, at.Unix())
	if err != nil {
		return nil, fmt.Errorf("query active maintenances: %w", err)
	}
	defer rows.Close()

	result := make([]*Window, 0)
	byID := make(map[uint64]*Window)
	for rows.Next() {
		w := &Window{}
		var description sql.NullString
		var since, till int64
		if err := rows.Scan(&w.ID, &w.Name, &description, &w.Type, &since, &till); err != nil {
			return nil, fmt.Errorf("scan maintenance: %w", err)
		}
		w.Description = description.String
		w.ActiveSince = time.Unix(since, 0).UTC()
		w.ActiveTill = time.Unix(till, 0).UTC()
		result = append(result, w)
		byID[w.ID] = w
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate maintenances: %w", err)
	}

	if err := s.loadMembers(ctx, byID); err != nil {
		return nil, err
	}
	return result, nil
}

// loadMembers fills the hosts and groups of the given windows.
func (s *PostgresStore) loadMembers(ctx context.Context, windows map[uint64]*Window) error {
	if len(windows) == 0 {
		return nil
	}

	ids := make([]uint64, 0, len(windows))
	for id := range windows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	in := strings.Join(placeholders, ", ")

	rows, err := s.db.QueryContext(ctx, `
		SELECT maintenanceid, hostid, 0 FROM maintenances_hosts WHERE maintenanceid IN (`+in+`)
		UNION ALL
		SELECT maintenanceid, 0, groupid FROM maintenances_groups WHERE maintenanceid IN (`+in+`)
		ORDER BY 1, 2, 3
	`, args...)
	if err != nil {
		return fmt.Errorf("query maintenance members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var maintenanceID, hostID, groupID uint64
		if err := rows.Scan(&maintenanceID, &hostID, &groupID); err != nil {
			return fmt.Errorf("scan maintenance member: %w", err)
		}
		w, ok := windows[maintenanceID]
		if !ok {
			continue
		}
		if hostID != 0 {
			w.HostIDs = append(w.HostIDs, hostID)
		}
		if groupID != 0 {
			w.GroupIDs = append(w.GroupIDs, groupID)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate maintenance members: %w", err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
