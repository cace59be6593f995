package results

import (
	"context"
	"database/sql"
	"time"

	"github.com/sqlc-dev/pqtype"
)

const Schema = `
CREATE TABLE IF NOT EXISTS quiz_results (
    code        TEXT PRIMARY KEY,
    host_id     TEXT        NOT NULL,
    guest_id    TEXT        NOT NULL,
    host_score  INTEGER     NOT NULL,
    guest_score INTEGER     NOT NULL,
    winner      TEXT,
    breakdown   JSONB,
    maths       JSONB,
    finished_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS quiz_results_finished_at_idx ON quiz_results (finished_at DESC);`

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

// QuizResult is a row of quiz_results.
type QuizResult struct {
	Code       string
	HostID     string
	GuestID    string
	HostScore  int32
	GuestScore int32
	Winner     sql.NullString
	Breakdown  pqtype.NullRawMessage
	Maths      pqtype.NullRawMessage
	FinishedAt time.Time
}

const insertResult = `INSERT INTO quiz_results (
    code, host_id, guest_id, host_score, guest_score, winner, breakdown, maths, finished_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (code) DO NOTHING`

// InsertResult reports false when a row for the code already exists.
func (q *Queries) InsertResult(ctx context.Context, arg QuizResult) (bool, error) {
	res, err := q.db.ExecContext(ctx, insertResult,
		arg.Code,
		arg.HostID,
		arg.GuestID,
		arg.HostScore,
		arg.GuestScore,
		arg.Winner,
		arg.Breakdown,
		arg.Maths,
		arg.FinishedAt,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

const columns = `code, host_id, guest_id, host_score, guest_score, winner, breakdown, maths, finished_at`

const getResult = `SELECT ` + columns + ` FROM quiz_results WHERE code = $1`

func (q *Queries) GetResult(ctx context.Context, code string) (QuizResult, error) {
	return scanResult(q.db.QueryRowContext(ctx, getResult, code))
}

const listRecentResults = `SELECT ` + columns + ` FROM quiz_results ORDER BY finished_at DESC LIMIT $1`

func (q *Queries) ListRecentResults(ctx context.Context, limit int32) ([]QuizResult, error) {
	rows, err := q.db.QueryContext(ctx, listRecentResults, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []QuizResult
	for rows.Next() {
		i, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanResult(row scanner) (QuizResult, error) {
	var i QuizResult
	err := row.Scan(
		&i.Code,
		&i.HostID,
		&i.GuestID,
		&i.HostScore,
		&i.GuestScore,
		&i.Winner,
		&i.Breakdown,
		&i.Maths,
		&i.FinishedAt,
	)
	return i, err
}
