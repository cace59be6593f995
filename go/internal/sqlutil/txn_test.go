package sqlutil

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolledBack = true
	return nil
}

type fakeBeginner struct {
	tx  *fakeTx
	err error
}

func (b *fakeBeginner) Begin(context.Context) (pgx.Tx, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.tx, nil
}

type queries struct{ tx pgx.Tx }

func newQueries(tx pgx.Tx) *queries { return &queries{tx: tx} }

func TestRunPgxCommits(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	var bound pgx.Tx
	err := RunPgx(context.Background(), b, newQueries, func(q *queries) error {
		bound = q.tx
		return nil
	})
	require.NoError(t, err)
	assert.Same(t, b.tx, bound)
	assert.True(t, b.tx.committed)
	assert.False(t, b.tx.rolledBack)
}

func TestRunPgxRollsBackOnError(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	boom := errors.New("boom")
	err := RunPgx(context.Background(), b, newQueries, func(q *queries) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.True(t, b.tx.rolledBack)
	assert.False(t, b.tx.committed)
}

func TestRunPgxBeginError(t *testing.T) {
	boom := errors.New("no connection")
	err := RunPgx(context.Background(), &fakeBeginner{err: boom}, newQueries, func(q *queries) error {
		t.Fatal("fn must not run")
		return nil
	})
	assert.ErrorIs(t, err, boom)
}
