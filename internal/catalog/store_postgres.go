package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// PostgresStore implements Store over the monitoring server's configuration schema.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// GetAction retrieves an action and derives whether it has recovery operations.
func (s *PostgresStore) GetAction(ctx context.Context, actionID uint64) (*Action, error) {
	var a Action
	err := s.db.QueryRowContext(ctx, `
		SELECT a.actionid, a.name, a.eventsource, a.esc_period,
			a.def_shortdata, a.def_longdata, a.r_shortdata, a.r_longdata,
			a.maintenance_mode, a.status,
			EXISTS (SELECT 1 FROM operations o WHERE o.actionid = a.actionid AND o.recovery = 1)
		FROM actions a
		WHERE a.actionid = $1
	`, actionID).Scan(&a.ID, &a.Name, &a.EventSource, &a.EscPeriod,
		&a.ShortData, &a.LongData, &a.RecoveryShortData, &a.RecoveryLongData,
		&a.MaintenanceMode, &a.Status, &a.HasRecoveryOperations)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("action %d: %w", actionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get action: %w", err)
	}
	return &a, nil
}

// GetEvent retrieves an event with its tags, trigger and host context.
func (s *PostgresStore) GetEvent(ctx context.Context, eventID uint64) (*Event, error) {
	var e Event
	err := s.db.QueryRowContext(ctx, `
		SELECT eventid, source, object, objectid, clock, value, acknowledged = 1
		FROM events
		WHERE eventid = $1
	`, eventID).Scan(&e.ID, &e.Source, &e.Object, &e.ObjectID, &e.Clock, &e.Value, &e.Acknowledged)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %d: %w", eventID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT tag, value FROM event_tag WHERE eventid = $1 ORDER BY tag, value`, eventID)
	if err != nil {
		return nil, fmt.Errorf("get event tags: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.Tag, &t.Value); err != nil {
			return nil, fmt.Errorf("scan event tag: %w", err)
		}
		e.Tags = append(e.Tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event tags: %w", err)
	}

	switch e.Object {
	case ObjectTrigger:
		trigger, err := s.GetTrigger(ctx, e.ObjectID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if trigger != nil {
			e.Trigger = trigger
			e.HostIDs = append([]uint64(nil), trigger.HostIDs...)
		}
	case ObjectItem, ObjectLLDRule:
		item, err := s.GetItem(ctx, e.ObjectID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if item != nil {
			e.HostIDs = []uint64{item.HostID}
		}
	}

	if len(e.HostIDs) > 0 {
		e.HostGroupIDs, err = s.hostGroups(ctx, e.HostIDs)
		if err != nil {
			return nil, err
		}
	}

	return &e, nil
}

const operationColumns = `
	o.operationid, o.actionid, o.operationtype, o.esc_step_from, o.esc_step_to, o.esc_period,
	o.evaltype, o.recovery = 1,
	om.default_msg = 1, om.subject, om.message, om.mediatypeid,
	oc.type, oc.scriptid, COALESCE(s.execute_on, oc.execute_on), oc.port, oc.authtype,
	oc.username, oc.password, oc.publickey, oc.privatekey, COALESCE(s.command, oc.command)
FROM operations o
LEFT JOIN opmessage om ON om.operationid = o.operationid
LEFT JOIN opcommand oc ON oc.operationid = o.operationid
LEFT JOIN scripts s ON s.scriptid = oc.scriptid`

// GetOperations returns the operations of an action matching the filter, ordered by ID.
func (s *PostgresStore) GetOperations(ctx context.Context, actionID uint64, filter OperationFilter) ([]*Operation, error) {
	recovery := 0
	if filter.Recovery {
		recovery = 1
	}

	query := `SELECT ` + operationColumns + `
		WHERE o.actionid = $1 AND o.recovery = $2`
	args := []any{actionID, recovery}
	if filter.Step != 0 {
		query += ` AND o.esc_step_from <= $3 AND (o.esc_step_to = 0 OR o.esc_step_to >= $3)`
		args = append(args, filter.Step)
	}
	query += ` ORDER BY o.operationid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get operations: %w", err)
	}
	defer rows.Close()

	result := make([]*Operation, 0)
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operations: %w", err)
	}
	return result, nil
}

func scanOperation(rows *sql.Rows) (*Operation, error) {
	var (
		op          Operation
		defaultMsg  sql.NullBool
		subject     sql.NullString
		message     sql.NullString
		mediaTypeID sql.NullInt64
		scriptType  sql.NullInt64
		scriptID    sql.NullInt64
		executeOn   sql.NullInt64
		port        sql.NullString
		authType    sql.NullInt64
		username    sql.NullString
		password    sql.NullString
		publicKey   sql.NullString
		privateKey  sql.NullString
		command     sql.NullString
	)
	err := rows.Scan(&op.ID, &op.ActionID, &op.Type, &op.EscStepFrom, &op.EscStepTo, &op.EscPeriod,
		&op.EvalType, &op.Recovery,
		&defaultMsg, &subject, &message, &mediaTypeID,
		&scriptType, &scriptID, &executeOn, &port, &authType,
		&username, &password, &publicKey, &privateKey, &command)
	if err != nil {
		return nil, fmt.Errorf("scan operation: %w", err)
	}

	if defaultMsg.Valid {
		op.Message = &OpMessage{
			DefaultMessage: defaultMsg.Bool,
			Subject:        subject.String,
			Message:        message.String,
			MediaTypeID:    uint64(mediaTypeID.Int64),
		}
	}
	if scriptType.Valid {
		op.Command = &OpCommand{
			Type:       ScriptType(scriptType.Int64),
			ScriptID:   uint64(scriptID.Int64),
			ExecuteOn:  ExecuteOn(executeOn.Int64),
			Port:       port.String,
			AuthType:   int(authType.Int64),
			Username:   username.String,
			Password:   password.String,
			PublicKey:  publicKey.String,
			PrivateKey: privateKey.String,
			Command:    command.String,
		}
	}
	return &op, nil
}

// HasOperationsAfterStep reports whether any problem operation starts after step.
func (s *PostgresStore) HasOperationsAfterStep(ctx context.Context, actionID uint64, step int) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM operations
			WHERE actionid = $1 AND esc_step_from > $2 AND recovery = 0
		)
	`, actionID, step).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("probe operations: %w", err)
	}
	return exists, nil
}

// GetConditions returns the conditions of an operation sorted by type.
func (s *PostgresStore) GetConditions(ctx context.Context, operationID uint64) ([]Condition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT conditiontype, operator, value, value2
		FROM opconditions
		WHERE operationid = $1
		ORDER BY conditiontype, opconditionid
	`, operationID)
	if err != nil {
		return nil, fmt.Errorf("get conditions: %w", err)
	}
	defer rows.Close()

	result := make([]Condition, 0)
	for rows.Next() {
		var c Condition
		if err := rows.Scan(&c.Type, &c.Operator, &c.Value, &c.Value2); err != nil {
			return nil, fmt.Errorf("scan condition: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conditions: %w", err)
	}
	return result, nil
}

// GetTrigger retrieves a trigger with the items and hosts of its expression.
func (s *PostgresStore) GetTrigger(ctx context.Context, triggerID uint64) (*Trigger, error) {
	var t Trigger
	err := s.db.QueryRowContext(ctx, `
		SELECT triggerid, description, expression, recovery_expression, recovery_mode, priority, status, value
		FROM triggers
		WHERE triggerid = $1
	`, triggerID).Scan(&t.ID, &t.Description, &t.Expression, &t.RecoveryExpression,
		&t.RecoveryMode, &t.Priority, &t.Status, &t.Value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("trigger %d: %w", triggerID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get trigger: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT i.itemid, i.hostid
		FROM functions f
		JOIN items i ON i.itemid = f.itemid
		WHERE f.triggerid = $1
		ORDER BY i.itemid
	`, triggerID)
	if err != nil {
		return nil, fmt.Errorf("get trigger items: %w", err)
	}
	defer rows.Close()

	seenHost := make(map[uint64]bool)
	for rows.Next() {
		var itemID, hostID uint64
		if err := rows.Scan(&itemID, &hostID); err != nil {
			return nil, fmt.Errorf("scan trigger item: %w", err)
		}
		t.ItemIDs = append(t.ItemIDs, itemID)
		if !seenHost[hostID] {
			seenHost[hostID] = true
			t.HostIDs = append(t.HostIDs, hostID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trigger items: %w", err)
	}
	return &t, nil
}

// GetItem retrieves an item.
func (s *PostgresStore) GetItem(ctx context.Context, itemID uint64) (*Item, error) {
	var i Item
	err := s.db.QueryRowContext(ctx, `
		SELECT itemid, hostid, key_, name, status FROM items WHERE itemid = $1
	`, itemID).Scan(&i.ID, &i.HostID, &i.Key, &i.Name, &i.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %d: %w", itemID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return &i, nil
}

// GetHost retrieves a host with its groups.
func (s *PostgresStore) GetHost(ctx context.Context, hostID uint64) (*Host, error) {
	var h Host
	err := s.db.QueryRowContext(ctx, `
		SELECT hostid, host, status FROM hosts WHERE hostid = $1
	`, hostID).Scan(&h.ID, &h.Name, &h.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("host %d: %w", hostID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get host: %w", err)
	}

	h.GroupIDs, err = s.hostGroups(ctx, []uint64{hostID})
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (s *PostgresStore) hostGroups(ctx context.Context, hostIDs []uint64) ([]uint64, error) {
	in, args := inList(1, hostIDs)
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT groupid FROM hosts_groups WHERE hostid IN (`+in+`) ORDER BY groupid
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("get host groups: %w", err)
	}
	defer rows.Close()

	var result []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan host group: %w", err)
		}
		result = append(result, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate host groups: %w", err)
	}
	return result, nil
}

// IsTriggerDependencyActive reports whether any trigger this one depends on is in problem state.
func (s *PostgresStore) IsTriggerDependencyActive(ctx context.Context, triggerID uint64) (bool, error) {
	var active bool
	err := s.db.QueryRowContext(ctx, `
		WITH RECURSIVE deps (triggerid, depth) AS (
			SELECT triggerid_up, 1 FROM trigger_depends WHERE triggerid_down = $1
			UNION
			SELECT d.triggerid_up, deps.depth + 1
			FROM trigger_depends d
			JOIN deps ON d.triggerid_down = deps.triggerid
			WHERE deps.depth < $2
		)
		SELECT EXISTS (
			SELECT 1 FROM deps
			JOIN triggers t ON t.triggerid = deps.triggerid
			WHERE t.status = 0 AND t.value = 1
		)
	`, triggerID, maxDependencyDepth).Scan(&active)
	if err != nil {
		return false, fmt.Errorf("check trigger dependencies: %w", err)
	}
	return active, nil
}

// ResolveRecipients returns the distinct users an operation notifies directly or through user groups.
func (s *PostgresStore) ResolveRecipients(ctx context.Context, operationID uint64) ([]uint64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT userid FROM opmessage_usr WHERE operationid = $1
		UNION
		SELECT ug.userid
		FROM opmessage_grp og
		JOIN users_groups ug ON ug.usrgrpid = og.usrgrpid
		WHERE og.operationid = $1
		ORDER BY 1
	`, operationID)
	if err != nil {
		return nil, fmt.Errorf("resolve recipients: %w", err)
	}
	defer rows.Close()

	result := make([]uint64, 0)
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		result = append(result, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recipients: %w", err)
	}
	return result, nil
}

// GetUser retrieves a user.
func (s *PostgresStore) GetUser(ctx context.Context, userID uint64) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx, `
		SELECT userid, alias, name, surname, type FROM users WHERE userid = $1
	`, userID).Scan(&u.ID, &u.Alias, &u.Name, &u.Surname, &u.Type)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// HasSystemAccess reports whether a user is outside every disabled user group.
func (s *PostgresStore) HasSystemAccess(ctx context.Context, userID uint64) (bool, error) {
	var allowed bool
	err := s.db.QueryRowContext(ctx, `
		SELECT NOT EXISTS (
			SELECT 1
			FROM users_groups ug
			JOIN usrgrp g ON g.usrgrpid = ug.usrgrpid
			WHERE ug.userid = $1 AND g.users_status = 1
		)
	`, userID).Scan(&allowed)
	if err != nil {
		return false, fmt.Errorf("check system access: %w", err)
	}
	return allowed, nil
}

// GetHostPermission returns a user's permission on a host. A deny in any group wins.
func (s *PostgresStore) GetHostPermission(ctx context.Context, userID, hostID uint64) (Permission, error) {
	var perm sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MIN(r.permission)
		FROM users_groups ug
		JOIN rights r ON r.groupid = ug.usrgrpid
		JOIN hosts_groups hg ON hg.groupid = r.id
		WHERE ug.userid = $1 AND hg.hostid = $2
	`, userID, hostID).Scan(&perm)
	if err != nil {
		return PermDeny, fmt.Errorf("get host permission: %w", err)
	}
	if !perm.Valid {
		return PermDeny, nil
	}
	return Permission(perm.Int64), nil
}

// GetUserMedia returns the active media of a user, restricted to mediaTypeID when nonzero.
func (s *PostgresStore) GetUserMedia(ctx context.Context, userID, mediaTypeID uint64) ([]Media, error) {
	query := `
		SELECT m.userid, m.mediatypeid, m.sendto, m.severity, m.period, mt.status = 0
		FROM media m
		JOIN media_type mt ON mt.mediatypeid = m.mediatypeid
		WHERE m.active = 0 AND m.userid = $1`
	args := []any{userID}
	if mediaTypeID != 0 {
		query += ` AND m.mediatypeid = $2`
		args = append(args, mediaTypeID)
	}
	query += ` ORDER BY m.mediaid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get user media: %w", err)
	}
	defer rows.Close()

	result := make([]Media, 0)
	for rows.Next() {
		var m Media
		if err := rows.Scan(&m.UserID, &m.MediaTypeID, &m.SendTo, &m.Severity, &m.Period, &m.MediaTypeActive); err != nil {
			return nil, fmt.Errorf("scan media: %w", err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate media: %w", err)
	}
	return result, nil
}

// GetCommandTargets returns explicit hosts, members of target groups and nested groups,
// and a zero host ID when the operation targets the event's own host.
func (s *PostgresStore) GetCommandTargets(ctx context.Context, operationID uint64) ([]CommandTarget, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT h.hostid, h.host
		FROM opcommand_hst oh
		JOIN hosts h ON h.hostid = oh.hostid
		WHERE oh.operationid = $1 AND h.status = 0
		UNION
		SELECT h.hostid, h.host
		FROM opcommand_grp og
		JOIN hstgrp p ON p.groupid = og.groupid
		JOIN hstgrp g ON g.groupid = p.groupid OR g.name LIKE p.name || '/%'
		JOIN hosts_groups hg ON hg.groupid = g.groupid
		JOIN hosts h ON h.hostid = hg.hostid
		WHERE og.operationid = $1 AND h.status = 0
		UNION
		SELECT 0, ''
		FROM opcommand_hst
		WHERE operationid = $1 AND hostid IS NULL
		ORDER BY 1
	`, operationID)
	if err != nil {
		return nil, fmt.Errorf("get command targets: %w", err)
	}
	defer rows.Close()

	result := make([]CommandTarget, 0)
	for rows.Next() {
		var t CommandTarget
		if err := rows.Scan(&t.HostID, &t.HostName); err != nil {
			return nil, fmt.Errorf("scan command target: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate command targets: %w", err)
	}
	return result, nil
}

// ResolveEventHost returns the single host an event refers to.
func (s *PostgresStore) ResolveEventHost(ctx context.Context, event *Event) (*Host, error) {
	var (
		query     string
		ambiguous error
	)
	switch event.Source {
	case SourceTriggers:
		query = `
			SELECT DISTINCT h.hostid, h.host, h.status
			FROM functions f
			JOIN items i ON i.itemid = f.itemid
			JOIN hosts h ON h.hostid = i.hostid
			WHERE f.triggerid = $1`
		ambiguous = ErrTooManyTriggerHosts
	case SourceDiscovery:
		column := "ds.dhostid"
		if event.Object == ObjectDService {
			column = "ds.dserviceid"
		}
		query = `
			SELECT DISTINCT h.hostid, h.host, h.status
			FROM dservices ds
			JOIN interface i ON i.ip = ds.ip
			JOIN hosts h ON h.hostid = i.hostid
			WHERE ` + column + ` = $1 AND h.status = 0`
		ambiguous = ErrTooManyIPHosts
	case SourceAutoRegistration:
		query = `
			SELECT h.hostid, h.host, h.status
			FROM autoreg_host a
			JOIN hosts h ON h.host = a.host
			WHERE a.autoreg_hostid = $1`
		ambiguous = ErrHostNotFound
	default:
		return nil, fmt.Errorf("%w [%d]", ErrUnsupportedSource, int(event.Source))
	}

	rows, err := s.db.QueryContext(ctx, query+` LIMIT 2`, event.ObjectID)
	if err != nil {
		return nil, fmt.Errorf("resolve event host: %w", err)
	}
	defer rows.Close()

	hosts := make([]Host, 0, 2)
	for rows.Next() {
		var h Host
		if err := rows.Scan(&h.ID, &h.Name, &h.Status); err != nil {
			return nil, fmt.Errorf("scan event host: %w", err)
		}
		hosts = append(hosts, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event hosts: %w", err)
	}

	switch {
	case len(hosts) == 0:
		return nil, ErrHostNotFound
	case len(hosts) > 1:
		return nil, ambiguous
	}
	return &hosts[0], nil
}

// inList renders "$start, $start+1, ..." for ids.
func inList(start int, ids []uint64) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", start+i)
		args[i] = id
	}
	return strings.Join(placeholders, ", "), args
}

var _ Store = (*PostgresStore)(nil)
