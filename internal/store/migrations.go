package store

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS papers (
    id           TEXT PRIMARY KEY,
    source       TEXT NOT NULL,
    external_id  TEXT NOT NULL,
    title        TEXT NOT NULL,
    url          TEXT NOT NULL DEFAULT '',
    abstract     TEXT NOT NULL DEFAULT '',
    authors      TEXT NOT NULL DEFAULT '[]',
    categories   TEXT NOT NULL DEFAULT '[]',
    published_at DATETIME,
    collected_at DATETIME NOT NULL,
    UNIQUE(source, external_id)
);

CREATE INDEX IF NOT EXISTS idx_papers_published_at ON papers(published_at);
CREATE INDEX IF NOT EXISTS idx_papers_collected_at ON papers(collected_at);

CREATE TABLE IF NOT EXISTS paper_metrics (
    paper_id           TEXT NOT NULL REFERENCES papers(id),
    snapshot_date      TEXT NOT NULL,
    citation_count     INTEGER NOT NULL DEFAULT 0,
    repo_mention_count INTEGER NOT NULL DEFAULT 0,
    engagement_score   REAL NOT NULL DEFAULT 0,
    collected_at       DATETIME NOT NULL,
    scored_at          DATETIME,
    PRIMARY KEY (paper_id, snapshot_date)
);

CREATE INDEX IF NOT EXISTS idx_metrics_date ON paper_metrics(snapshot_date);
CREATE INDEX IF NOT EXISTS idx_metrics_score ON paper_metrics(snapshot_date, engagement_score);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS papers (
    id           TEXT PRIMARY KEY,
    source       TEXT NOT NULL,
    external_id  TEXT NOT NULL,
    title        TEXT NOT NULL,
    url          TEXT NOT NULL DEFAULT '',
    abstract     TEXT NOT NULL DEFAULT '',
    authors      TEXT NOT NULL DEFAULT '[]',
    categories   TEXT NOT NULL DEFAULT '[]',
    published_at TIMESTAMPTZ,
    collected_at TIMESTAMPTZ NOT NULL,
    UNIQUE(source, external_id)
);

CREATE INDEX IF NOT EXISTS idx_papers_published_at ON papers(published_at);
CREATE INDEX IF NOT EXISTS idx_papers_collected_at ON papers(collected_at);

CREATE TABLE IF NOT EXISTS paper_metrics (
    paper_id           TEXT NOT NULL REFERENCES papers(id),
    snapshot_date      TEXT NOT NULL,
    citation_count     INTEGER NOT NULL DEFAULT 0,
    repo_mention_count INTEGER NOT NULL DEFAULT 0,
    engagement_score   DOUBLE PRECISION NOT NULL DEFAULT 0,
    collected_at       TIMESTAMPTZ NOT NULL,
    scored_at          TIMESTAMPTZ,
    PRIMARY KEY (paper_id, snapshot_date)
);

CREATE INDEX IF NOT EXISTS idx_metrics_date ON paper_metrics(snapshot_date);
CREATE INDEX IF NOT EXISTS idx_metrics_score ON paper_metrics(snapshot_date, engagement_score);
`

func schemaFor(driver string) string {
	if driver == DriverPostgres {
		return postgresSchema
	}
	return sqliteSchema
}
