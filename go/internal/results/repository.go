package results

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mcdev12/quizduel/go/internal/models"
	"github.com/mcdev12/quizduel/go/internal/sqlutil"
)

var ErrResultNotFound = errors.New("result not found")

type Querier interface {
	InsertResult(ctx context.Context, arg QuizResult) (bool, error)
	GetResult(ctx context.Context, code string) (QuizResult, error)
	ListRecentResults(ctx context.Context, limit int32) ([]QuizResult, error)
}

type Repository struct {
	queries Querier
}

func NewRepository(querier Querier) *Repository {
	return &Repository{queries: querier}
}

// Insert stores r. It reports false when the session was archived before.
func (r *Repository) Insert(ctx context.Context, res *Result) (bool, error) {
	row, err := resultToRow(res)
	if err != nil {
		return false, err
	}
	ok, err := r.queries.InsertResult(ctx, row)
	if err != nil {
		return false, fmt.Errorf("failed to insert result: %w", err)
	}
	return ok, nil
}

func (r *Repository) Get(ctx context.Context, code string) (*Result, error) {
	row, err := r.queries.GetResult(ctx, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	return rowToResult(row)
}

func (r *Repository) Recent(ctx context.Context, limit int) ([]*Result, error) {
	rows, err := r.queries.ListRecentResults(ctx, int32(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	out := make([]*Result, 0, len(rows))
	for _, row := range rows {
		res, err := rowToResult(row)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

func resultToRow(res *Result) (QuizResult, error) {
	breakdown, err := sqlutil.ToNullJSON(res.Rounds)
	if err != nil {
		return QuizResult{}, fmt.Errorf("failed to marshal breakdown: %w", err)
	}
	var maths any
	if res.Maths != nil {
		maths = res.Maths
	}
	mathsJSON, err := sqlutil.ToNullJSON(maths)
	if err != nil {
		return QuizResult{}, fmt.Errorf("failed to marshal maths: %w", err)
	}
	return QuizResult{
		Code:       res.Code,
		HostID:     res.HostID,
		GuestID:    res.GuestID,
		HostScore:  int32(res.Scores.Host),
		GuestScore: int32(res.Scores.Guest),
		Winner:     sqlutil.ToNullString(string(res.Winner)),
		Breakdown:  breakdown,
		Maths:      mathsJSON,
		FinishedAt: res.FinishedAt,
	}, nil
}

func rowToResult(row QuizResult) (*Result, error) {
	res := &Result{
		Code:       row.Code,
		HostID:     row.HostID,
		GuestID:    row.GuestID,
		FinishedAt: row.FinishedAt,
	}
	res.Scores.Host = int(row.HostScore)
	res.Scores.Guest = int(row.GuestScore)
	res.Winner = models.Role(sqlutil.FromSqlString(row.Winner, ""))
	if err := sqlutil.FromNullJSON(row.Breakdown, &res.Rounds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal breakdown of %s: %w", row.Code, err)
	}
	if row.Maths.Valid {
		res.Maths = &Maths{}
		if err := sqlutil.FromNullJSON(row.Maths, res.Maths); err != nil {
			return nil, fmt.Errorf("failed to unmarshal maths of %s: %w", row.Code, err)
		}
	}
	return res, nil
}
