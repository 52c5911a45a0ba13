package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/elonfeng/paperpulse/pkg/engagement"
	"github.com/elonfeng/paperpulse/pkg/source"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrNotFound is returned when a paper or metric row does not exist.
var ErrNotFound = errors.New("not found")

// MetricRow is one stored (paper, snapshot date) signal and its score.
type MetricRow struct {
	PaperID          string     `db:"paper_id" json:"paper_id"`
	SnapshotDate     string     `db:"snapshot_date" json:"snapshot_date"`
	CitationCount    int        `db:"citation_count" json:"citation_count"`
	RepoMentionCount int        `db:"repo_mention_count" json:"repo_mention_count"`
	EngagementScore  float64    `db:"engagement_score" json:"engagement_score"`
	ScoredAt         *time.Time `db:"scored_at" json:"scored_at,omitempty"`
}

// RankedPaper is a scored metric joined with its paper's display fields.
type RankedPaper struct {
	engagement.ScoredMetric
	Rank           int      `db:"-" json:"rank"`
	Title          string   `db:"title" json:"title"`
	URL            string   `db:"url" json:"url"`
	Categories     []string `db:"-" json:"categories"`
	CategoriesJSON string   `db:"categories" json:"-"`
}

// PaperListOpts controls paper listing.
type PaperListOpts struct {
	Category string
	Since    time.Time
	Limit    int
}

// RankingOpts controls ranking listing.
type RankingOpts struct {
	Category string
	Limit    int
}

// Store is the persistence interface.
type Store interface {
	UpsertPaper(ctx context.Context, p *source.Paper) error
	UpsertPapers(ctx context.Context, papers []source.Paper) error
	GetPaper(ctx context.Context, id string) (*source.Paper, error)
	ListPapers(ctx context.Context, opts PaperListOpts) ([]source.Paper, error)

	UpsertRawMetric(ctx context.Context, date string, m engagement.RawMetric) error
	ListBatch(ctx context.Context, date string) ([]engagement.RawMetric, error)
	UpdateScore(ctx context.Context, date, paperID string, score float64) error
	ListSnapshotDates(ctx context.Context) ([]string, error)
	LatestSnapshotDate(ctx context.Context) (string, error)
	ListRanking(ctx context.Context, date string, opts RankingOpts) ([]RankedPaper, error)
	PaperHistory(ctx context.Context, paperID string) ([]MetricRow, error)

	Close() error
}

// SQLStore implements Store on SQLite or PostgreSQL through sqlx.
type SQLStore struct {
	db *sqlx.DB
}

// New opens the database for driver and runs migrations. For SQLite dsn is
// a file path.
func New(driver, dsn string) (*SQLStore, error) {
	var (
		db  *sqlx.DB
		err error
	)
	switch driver {
	case "", DriverSQLite:
		driver = DriverSQLite
		db, err = sqlx.Open(DriverSQLite, dsn+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	case DriverPostgres:
		db, err = sqlx.Open(DriverPostgres, dsn)
		if err == nil {
			db.SetMaxOpenConns(10)
			db.SetMaxIdleConns(5)
			db.SetConnMaxLifetime(5 * time.Minute)
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s %s: %w", driver, dsn, err)
	}

	if _, err := db.Exec(schemaFor(driver)); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLStore{db: db}, nil
}

// NewWithDB wraps an already migrated connection.
func NewWithDB(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) UpsertPaper(ctx context.Context, p *source.Paper) error {
	authorsJSON, _ := json.Marshal(nonNil(p.Authors))
	categoriesJSON, _ := json.Marshal(nonNil(p.Categories))

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO papers (id, source, external_id, title, url, abstract, authors, categories, published_at, collected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			url = excluded.url,
			abstract = excluded.abstract,
			authors = excluded.authors,
			categories = excluded.categories,
			published_at = COALESCE(excluded.published_at, papers.published_at),
			collected_at = excluded.collected_at
	`), p.ID, p.Source, p.ExternalID, p.Title, p.URL, p.Abstract,
		string(authorsJSON), string(categoriesJSON), p.PublishedAt, p.CollectedAt)
	if err != nil {
		return fmt.Errorf("upsert paper %s: %w", p.ID, err)
	}
	return nil
}

func (s *SQLStore) UpsertPapers(ctx context.Context, papers []source.Paper) error {
	for i := range papers {
		if err := s.UpsertPaper(ctx, &papers[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) GetPaper(ctx context.Context, id string) (*source.Paper, error) {
	var p source.Paper
	err := s.db.GetContext(ctx, &p, s.db.Rebind("SELECT * FROM papers WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get paper %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get paper %s: %w", id, err)
	}
	decodePaper(&p)
	return &p, nil
}

func (s *SQLStore) ListPapers(ctx context.Context, opts PaperListOpts) ([]source.Paper, error) {
	query := "SELECT * FROM papers WHERE 1=1"
	var args []any

	if opts.Category != "" {
		query += " AND categories LIKE ?"
		args = append(args, categoryPattern(opts.Category))
	}
	if !opts.Since.IsZero() {
		query += " AND collected_at >= ?"
		args = append(args, opts.Since)
	}

	query += " ORDER BY collected_at DESC, id"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)

	var papers []source.Paper
	if err := s.db.SelectContext(ctx, &papers, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list papers: %w", err)
	}
	for i := range papers {
		decodePaper(&papers[i])
	}
	return papers, nil
}

// UpsertRawMetric stores the observed counts for (paper, date). An existing
// score is left in place until the snapshot is recomputed.
func (s *SQLStore) UpsertRawMetric(ctx context.Context, date string, m engagement.RawMetric) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO paper_metrics (paper_id, snapshot_date, citation_count, repo_mention_count, collected_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(paper_id, snapshot_date) DO UPDATE SET
			citation_count = excluded.citation_count,
			repo_mention_count = excluded.repo_mention_count,
			collected_at = excluded.collected_at
	`), m.PaperID, date, m.CitationCount, m.RepoMentionCount, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert metric %s@%s: %w", m.PaperID, date, err)
	}
	return nil
}

// ListBatch returns every raw metric stored for date, ordered by paper ID.
func (s *SQLStore) ListBatch(ctx context.Context, date string) ([]engagement.RawMetric, error) {
	var batch []engagement.RawMetric
	err := s.db.SelectContext(ctx, &batch, s.db.Rebind(`
		SELECT m.paper_id, m.citation_count, m.repo_mention_count, p.published_at
		FROM paper_metrics m
		LEFT JOIN papers p ON p.id = m.paper_id
		WHERE m.snapshot_date = ?
		ORDER BY m.paper_id
	`), date)
	if err != nil {
		return nil, fmt.Errorf("list batch %s: %w", date, err)
	}
	return batch, nil
}

// UpdateScore overwrites the score of one (paper, date) row.
func (s *SQLStore) UpdateScore(ctx context.Context, date, paperID string, score float64) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE paper_metrics SET engagement_score = ?, scored_at = ?
		WHERE paper_id = ? AND snapshot_date = ?
	`), score, time.Now().UTC(), paperID, date)
	if err != nil {
		return fmt.Errorf("update score %s@%s: %w", paperID, date, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update score %s@%s: %w", paperID, date, ErrNotFound)
	}
	return nil
}

func (s *SQLStore) ListSnapshotDates(ctx context.Context) ([]string, error) {
	var dates []string
	err := s.db.SelectContext(ctx, &dates,
		"SELECT DISTINCT snapshot_date FROM paper_metrics ORDER BY snapshot_date")
	if err != nil {
		return nil, fmt.Errorf("list snapshot dates: %w", err)
	}
	return dates, nil
}

func (s *SQLStore) LatestSnapshotDate(ctx context.Context) (string, error) {
	var date sql.NullString
	if err := s.db.GetContext(ctx, &date, "SELECT MAX(snapshot_date) FROM paper_metrics"); err != nil {
		return "", fmt.Errorf("latest snapshot date: %w", err)
	}
	if !date.Valid {
		return "", fmt.Errorf("latest snapshot date: %w", ErrNotFound)
	}
	return date.String, nil
}

// ListRanking returns the scored metrics of date in ranking order.
func (s *SQLStore) ListRanking(ctx context.Context, date string, opts RankingOpts) ([]RankedPaper, error) {
	query := `
		SELECT m.paper_id, m.citation_count, m.repo_mention_count, m.engagement_score,
		       p.published_at, p.title, p.url, p.categories
		FROM paper_metrics m
		JOIN papers p ON p.id = m.paper_id
		WHERE m.snapshot_date = ?`
	args := []any{date}
	if opts.Category != "" {
		query += " AND p.categories LIKE ?"
		args = append(args, categoryPattern(opts.Category))
	}

	var rows []RankedPaper
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list ranking %s: %w", date, err)
	}

	byID := make(map[string]RankedPaper, len(rows))
	scored := make([]engagement.ScoredMetric, len(rows))
	for i, r := range rows {
		byID[r.PaperID] = r
		scored[i] = r.ScoredMetric
	}

	ranked := engagement.Top(scored, opts.Limit)
	out := make([]RankedPaper, len(ranked))
	for i, m := range ranked {
		r := byID[m.PaperID]
		r.Rank = i + 1
		json.Unmarshal([]byte(r.CategoriesJSON), &r.Categories)
		out[i] = r
	}
	return out, nil
}

func (s *SQLStore) PaperHistory(ctx context.Context, paperID string) ([]MetricRow, error) {
	var rows []MetricRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT paper_id, snapshot_date, citation_count, repo_mention_count, engagement_score, scored_at
		FROM paper_metrics WHERE paper_id = ? ORDER BY snapshot_date
	`), paperID)
	if err != nil {
		return nil, fmt.Errorf("paper history %s: %w", paperID, err)
	}
	return rows, nil
}

func decodePaper(p *source.Paper) {
	json.Unmarshal([]byte(p.AuthorsJSON), &p.Authors)
	json.Unmarshal([]byte(p.CategoriesJSON), &p.Categories)
}

func categoryPattern(category string) string {
	return `%"` + category + `"%`
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
