package alert

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLedger_SentRecipients(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()

	require.NoError(t, ledger.Insert(ctx,
		&Alert{ActionID: 1, EventID: 100, UserID: 5, MediaTypeID: 3, Type: TypeMessage},
		&Alert{ActionID: 1, EventID: 100, UserID: 5, MediaTypeID: 3, Type: TypeMessage},
		&Alert{ActionID: 1, EventID: 100, UserID: 6, MediaTypeID: 1, Type: TypeMessage},
		&Alert{ActionID: 1, EventID: 100, UserID: 7, Type: TypeMessage, Status: StatusFailed},
		&Alert{ActionID: 1, EventID: 100, Type: TypeCommand},
		&Alert{ActionID: 2, EventID: 100, UserID: 8, MediaTypeID: 1, Type: TypeMessage},
		&Alert{ActionID: 1, EventID: 101, UserID: 9, MediaTypeID: 1, Type: TypeMessage},
	))
	assert.Equal(t, 7, ledger.Len())

	recipients, err := ledger.SentRecipients(ctx, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, []Recipient{{UserID: 5, MediaTypeID: 3}, {UserID: 6, MediaTypeID: 1}}, recipients)

	recipients, err = ledger.SentRecipients(ctx, 1, 100, 101)
	require.NoError(t, err)
	assert.Len(t, recipients, 3)

	recipients, err = ledger.SentRecipients(ctx, 1, 0)
	require.NoError(t, err)
	assert.Empty(t, recipients)
}

func TestMemoryLedger_InsertAssignsIDs(t *testing.T) {
	ledger := NewMemoryLedger()
	a, b := &Alert{ActionID: 1}, &Alert{ActionID: 1}

	require.NoError(t, ledger.Insert(context.Background(), a, b))
	assert.Equal(t, uint64(1), a.ID)
	assert.Equal(t, uint64(2), b.ID)

	all := ledger.All()
	require.Len(t, all, 2)
	all[0].Subject = "mutated"
	assert.Empty(t, ledger.All()[0].Subject)
}

func TestPostgresLedger_Insert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ledger := NewPostgresLedger(db)
	alerts := []*Alert{
		{ActionID: 1, EventID: 100, UserID: 5, Clock: 1700000000, MediaTypeID: 3, SendTo: "ops@example.com",
			Subject: "Problem", Message: "Body", Status: StatusNotSent, EscStep: 1, Type: TypeMessage},
		{ActionID: 1, EventID: 100, Clock: 1700000000, Message: "web-1:reboot", Status: StatusSent,
			EscStep: 1, Type: TypeCommand},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO alerts \((.+)\) VALUES \(\$1, (.+), \$14\), \(\$15, (.+), \$28\) RETURNING alertid`).
		WithArgs(
			1, 100, nil, 5, 1700000000, 3, "ops@example.com", "Problem", "Body", 0, "", 1, 0, 0,
			1, 100, nil, nil, 1700000000, nil, "", "", "web-1:reboot", 1, "", 1, 1, 0,
		).
		WillReturnRows(sqlmock.NewRows([]string{"alertid"}).AddRow(41).AddRow(42))
	mock.ExpectCommit()

	require.NoError(t, ledger.Insert(context.Background(), alerts...))
	assert.Equal(t, uint64(41), alerts[0].ID)
	assert.Equal(t, uint64(42), alerts[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_InsertBatches(t *testing.T) {
	defer func(size int) { insertBatchSize = size }(insertBatchSize)
	insertBatchSize = 2

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	alerts := []*Alert{
		{ActionID: 1, EventID: 100, Message: "a", Type: TypeCommand},
		{ActionID: 1, EventID: 100, Message: "b", Type: TypeCommand},
		{ActionID: 1, EventID: 100, Message: "c", Type: TypeCommand},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO alerts \((.+)\) VALUES \(\$1, (.+), \$14\), \(\$15, (.+), \$28\) RETURNING alertid`).
		WillReturnRows(sqlmock.NewRows([]string{"alertid"}).AddRow(1).AddRow(2))
	mock.ExpectQuery(`INSERT INTO alerts \((.+)\) VALUES \(\$1, [^()]+\) RETURNING alertid`).
		WillReturnRows(sqlmock.NewRows([]string{"alertid"}).AddRow(3))
	mock.ExpectCommit()

	require.NoError(t, NewPostgresLedger(db).Insert(context.Background(), alerts...))
	assert.Equal(t, []uint64{1, 2, 3}, []uint64{alerts[0].ID, alerts[1].ID, alerts[2].ID})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_InsertRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO alerts`).WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err = NewPostgresLedger(db).Insert(context.Background(), &Alert{ActionID: 1, EventID: 100})
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_InsertEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	require.NoError(t, NewPostgresLedger(db).Insert(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_SentRecipients(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`SELECT DISTINCT userid, mediatypeid FROM alerts WHERE actionid = \$1 (.+) eventid IN \(\$3, \$4\)`).
		WithArgs(1, 0, 100, 200).
		WillReturnRows(sqlmock.NewRows([]string{"userid", "mediatypeid"}).AddRow(5, 3).AddRow(6, 1))

	recipients, err := NewPostgresLedger(db).SentRecipients(context.Background(), 1, 100, 200)
	require.NoError(t, err)
	assert.Equal(t, []Recipient{{UserID: 5, MediaTypeID: 3}, {UserID: 6, MediaTypeID: 1}}, recipients)
	assert.NoError(t, mock.ExpectationsWereMet())
}
