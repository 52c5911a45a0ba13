package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/paperpulse/pkg/engagement"
	"github.com/elonfeng/paperpulse/pkg/source"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := New(DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testPaper(id string, published *time.Time, categories ...string) source.Paper {
	return source.Paper{
		ID:          source.PaperID(id),
		Source:      source.SourceArXiv,
		ExternalID:  id,
		Title:       "Paper " + id,
		URL:         "https://arxiv.org/abs/" + id,
		Authors:     []string{"Ada Lovelace"},
		Categories:  categories,
		PublishedAt: published,
		CollectedAt: time.Now().UTC(),
	}
}

func ptr(t time.Time) *time.Time { return &t }

func TestPaperRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pub := time.Date(2026, 3, 9, 14, 30, 0, 0, time.UTC)

	p := testPaper("2603.00001", &pub, "cs.LG", "cs.AI")
	require.NoError(t, s.UpsertPaper(ctx, &p))

	got, err := s.GetPaper(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Title, got.Title)
	assert.Equal(t, []string{"cs.LG", "cs.AI"}, got.Categories)
	assert.Equal(t, []string{"Ada Lovelace"}, got.Authors)
	require.NotNil(t, got.PublishedAt)
	assert.True(t, pub.Equal(*got.PublishedAt))
}

func TestUpsertPaperKeepsKnownPublishTime(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pub := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

	p := testPaper("2603.00002", &pub)
	require.NoError(t, s.UpsertPaper(ctx, &p))

	p.PublishedAt = nil
	p.Title = "Renamed"
	require.NoError(t, s.UpsertPaper(ctx, &p))

	got, err := s.GetPaper(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	require.NotNil(t, got.PublishedAt)
	assert.True(t, pub.Equal(*got.PublishedAt))
}

func TestGetPaperNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetPaper(context.Background(), "arxiv:missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListPapersByCategory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	papers := []source.Paper{
		testPaper("1", nil, "cs.LG"),
		testPaper("2", nil, "cs.CL"),
		testPaper("3", nil, "cs.CL", "cs.LG"),
	}
	require.NoError(t, s.UpsertPapers(ctx, papers))

	got, err := s.ListPapers(ctx, PaperListOpts{Category: "cs.LG"})
	require.NoError(t, err)
	var gotIDs []string
	for _, p := range got {
		gotIDs = append(gotIDs, p.ID)
	}
	assert.ElementsMatch(t, []string{"arxiv:1", "arxiv:3"}, gotIDs)
}

func TestBatchScoreAndRanking(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	const date = "2026-03-10"

	pub := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpsertPapers(ctx, []source.Paper{
		testPaper("A", &pub, "cs.LG"),
		testPaper("B", nil, "cs.LG"),
		testPaper("C", nil, "cs.CL"),
	}))

	for _, m := range []engagement.RawMetric{
		{PaperID: "arxiv:A", CitationCount: 10, RepoMentionCount: 2},
		{PaperID: "arxiv:B", CitationCount: 0},
		{PaperID: "arxiv:C", CitationCount: 5},
	} {
		require.NoError(t, s.UpsertRawMetric(ctx, date, m))
	}

	batch, err := s.ListBatch(ctx, date)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	assert.Equal(t, "arxiv:A", batch[0].PaperID)
	assert.Equal(t, 10, batch[0].CitationCount)
	assert.Equal(t, 2, batch[0].RepoMentionCount)
	require.NotNil(t, batch[0].PublishedAt)
	assert.True(t, pub.Equal(*batch[0].PublishedAt))
	assert.Nil(t, batch[1].PublishedAt)

	report, err := engagement.NewEngine(s, nil).Recompute(ctx, date)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Written)

	ranking, err := s.ListRanking(ctx, date, RankingOpts{})
	require.NoError(t, err)
	require.Len(t, ranking, 3)
	assert.Equal(t, "arxiv:A", ranking[0].PaperID)
	assert.Equal(t, 1, ranking[0].Rank)
	assert.Equal(t, 1.0, ranking[0].EngagementScore)
	assert.Equal(t, "arxiv:C", ranking[1].PaperID)
	assert.InDelta(t, 0.5, ranking[1].EngagementScore, 1e-9)
	assert.Equal(t, "arxiv:B", ranking[2].PaperID)
	assert.Equal(t, []string{"cs.LG"}, ranking[0].Categories)

	filtered, err := s.ListRanking(ctx, date, RankingOpts{Category: "cs.LG", Limit: 1})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "arxiv:A", filtered[0].PaperID)

	history, err := s.PaperHistory(ctx, "arxiv:C")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, date, history[0].SnapshotDate)
	assert.NotNil(t, history[0].ScoredAt)
}

func TestUpsertRawMetricKeepsScore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	const date = "2026-03-10"

	p := testPaper("A", nil)
	require.NoError(t, s.UpsertPaper(ctx, &p))
	require.NoError(t, s.UpsertRawMetric(ctx, date, engagement.RawMetric{PaperID: p.ID, CitationCount: 1}))
	require.NoError(t, s.UpdateScore(ctx, date, p.ID, 0.7))
	require.NoError(t, s.UpsertRawMetric(ctx, date, engagement.RawMetric{PaperID: p.ID, CitationCount: 4}))

	history, err := s.PaperHistory(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 4, history[0].CitationCount)
	assert.Equal(t, 0.7, history[0].EngagementScore)
}

func TestUpdateScoreMissingRow(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateScore(context.Background(), "2026-03-10", "arxiv:none", 0.5)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSnapshotDates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.LatestSnapshotDate(ctx)
	assert.True(t, errors.Is(err, ErrNotFound))

	p := testPaper("A", nil)
	require.NoError(t, s.UpsertPaper(ctx, &p))
	for _, d := range []string{"2026-03-10", "2026-03-08", "2026-03-09"} {
		require.NoError(t, s.UpsertRawMetric(ctx, d, engagement.RawMetric{PaperID: p.ID}))
	}

	dates, err := s.ListSnapshotDates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-03-08", "2026-03-09", "2026-03-10"}, dates)

	latest, err := s.LatestSnapshotDate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-10", latest)
}

func TestNewUnsupportedDriver(t *testing.T) {
	_, err := New("mysql", "whatever")
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestPostgresDialectUpdateScore(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	s := NewWithDB(sqlx.NewDb(mockDB, DriverPostgres))

	mock.ExpectExec(`UPDATE paper_metrics SET engagement_score = \$1, scored_at = \$2\s+WHERE paper_id = \$3 AND snapshot_date = \$4`).
		WithArgs(0.5, sqlmock.AnyArg(), "arxiv:A", "2026-03-10").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE paper_metrics`).
		WithArgs(0.1, sqlmock.AnyArg(), "arxiv:B", "2026-03-10").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.UpdateScore(context.Background(), "2026-03-10", "arxiv:A", 0.5))
	err = s.UpdateScore(context.Background(), "2026-03-10", "arxiv:B", 0.1)
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDialectListBatch(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	s := NewWithDB(sqlx.NewDb(mockDB, DriverPostgres))
	pub := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"paper_id", "citation_count", "repo_mention_count", "published_at"}).
		AddRow("arxiv:A", 3, 1, pub).
		AddRow("arxiv:B", 0, 0, nil)
	mock.ExpectQuery(`WHERE m.snapshot_date = \$1`).WithArgs("2026-03-10").WillReturnRows(rows)

	batch, err := s.ListBatch(context.Background(), "2026-03-10")
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, 3, batch[0].CitationCount)
	require.NotNil(t, batch[0].PublishedAt)
	assert.Nil(t, batch[1].PublishedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
