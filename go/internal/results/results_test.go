package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/quizduel/go/internal/models"
)

func finished() *models.Session {
	s := models.NewSession("ABC", time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC))
	s.Identities.Host, s.Identities.Guest = "u1", "u2"
	s.Phase, s.Round = models.PhaseFinal, models.MaxRounds
	item := func(q string) models.Item { return models.Item{Question: q, CorrectAnswer: "yes"} }
	s.Content.SetRound(1, &models.Round{
		HostItems:  []models.Item{item("h1"), item("h2"), item("h3")},
		GuestItems: []models.Item{item("g1"), item("g2"), item("g3")},
	})
	s.Content.Maths = &models.Puzzle{Questions: []string{"a?", "b?"}, Answers: []int{4, 2}}
	s.SetAnswers(models.RoleHost, 1, []string{"yes", "no", "yes"})
	s.SetAnswers(models.RoleGuest, 1, []string{"yes", "yes", "yes"})
	// Host judges the guest: right x3 on truth T,T,T = +3.
	s.SetVerdicts(models.RoleHost, 1, []models.Verdict{models.VerdictRight, models.VerdictRight, models.VerdictRight})
	// Guest judges the host: right, right, unknown on T,F,T = 0.
	s.SetVerdicts(models.RoleGuest, 1, []models.Verdict{models.VerdictRight, models.VerdictRight, models.VerdictUnknown})
	s.SetMaths(models.RoleHost, []int{4, 2})
	s.SetMaths(models.RoleGuest, []int{4, 3})
	return s
}

func TestSummarize(t *testing.T) {
	at := time.Date(2026, 3, 1, 20, 30, 0, 0, time.UTC)
	res := Summarize(finished(), at)

	assert.Equal(t, "ABC", res.Code)
	assert.Equal(t, 3, res.Scores.Host)
	assert.Equal(t, 0, res.Scores.Guest)
	assert.Equal(t, models.RoleHost, res.Winner)
	require.Len(t, res.Rounds, 1)
	assert.Equal(t, "g2", res.Rounds[0].Host[1].Question)
	assert.Equal(t, -1, res.Rounds[0].Guest[1].Points)
	assert.Equal(t, []int{4, 2}, res.Maths.Correct)
	assert.Equal(t, []int{4, 3}, res.Maths.Answers[models.RoleGuest])
	assert.Equal(t, at, res.FinishedAt)
}

func TestSummarizeDraw(t *testing.T) {
	s := models.NewSession("XYZ", time.Now())
	s.Phase = models.PhaseFinal
	res := Summarize(s, time.Now())
	assert.Empty(t, res.Winner)
	assert.Nil(t, res.Maths)
	assert.Empty(t, res.Rounds)
}

type memQuerier struct {
	rows map[string]QuizResult
}

func (m *memQuerier) InsertResult(_ context.Context, arg QuizResult) (bool, error) {
	if _, ok := m.rows[arg.Code]; ok {
		return false, nil
	}
	m.rows[arg.Code] = arg
	return true, nil
}

func (m *memQuerier) GetResult(_ context.Context, code string) (QuizResult, error) {
	row, ok := m.rows[code]
	if !ok {
		return QuizResult{}, sql.ErrNoRows
	}
	return row, nil
}

func (m *memQuerier) ListRecentResults(_ context.Context, limit int32) ([]QuizResult, error) {
	var out []QuizResult
	for _, r := range m.rows {
		if int32(len(out)) == limit {
			break
		}
		out = append(out, r)
	}
	return out, nil
}

func TestRepositoryRoundTrip(t *testing.T) {
	q := &memQuerier{rows: map[string]QuizResult{}}
	repo := NewRepository(q)
	ctx := context.Background()
	res := Summarize(finished(), time.Now().UTC())

	ok, err := repo.Insert(ctx, res)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.Insert(ctx, res)
	require.NoError(t, err)
	assert.False(t, ok, "second insert is ignored")

	row := q.rows["ABC"]
	assert.True(t, row.Breakdown.Valid)
	assert.True(t, row.Maths.Valid)
	assert.Equal(t, "host", row.Winner.String)

	got, err := repo.Get(ctx, "ABC")
	require.NoError(t, err)
	assert.Equal(t, res.Scores, got.Scores)
	assert.Equal(t, res.Rounds, got.Rounds)
	assert.Equal(t, res.Maths, got.Maths)

	_, err = repo.Get(ctx, "NOPE")
	assert.ErrorIs(t, err, ErrResultNotFound)

	draw := Summarize(models.NewSession("XYZ", time.Now()), time.Now())
	_, err = repo.Insert(ctx, draw)
	require.NoError(t, err)
	assert.False(t, q.rows["XYZ"].Winner.Valid)
	assert.False(t, q.rows["XYZ"].Breakdown.Valid)
	assert.False(t, q.rows["XYZ"].Maths.Valid)
}

func TestRoutes(t *testing.T) {
	repo := NewRepository(&memQuerier{rows: map[string]QuizResult{}})
	_, err := repo.Insert(context.Background(), Summarize(finished(), time.Now()))
	require.NoError(t, err)

	mux := http.NewServeMux()
	Routes(mux, repo)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/results/ABC", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, models.RoleHost, got.Winner)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/results/NOPE", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/results?limit=5", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAppPostgres(t *testing.T) {
	dsn := os.Getenv("QUIZDUEL_TEST_DSN")
	if dsn == "" {
		t.Skip("QUIZDUEL_TEST_DSN not set")
	}
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	app := NewApp(db)
	require.NoError(t, app.Migrate(ctx))

	s := finished()
	s.ID = "T" + time.Now().Format("150405.000")
	require.NoError(t, app.Record(ctx, s))
	require.NoError(t, app.Record(ctx, s))

	got, err := app.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Scores.Host)

	s.Phase = models.PhaseMaths
	assert.Error(t, app.Record(ctx, s))
}
