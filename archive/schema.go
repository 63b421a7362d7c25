package archive

// Schema contains the complete DDL for the capture archive tables.
const Schema = `
-- Capture events: one row per committed snapshot capture
CREATE TABLE IF NOT EXISTS capture_events (
    id              TEXT PRIMARY KEY,
    page_id         TEXT NOT NULL,
    context_index   INTEGER NOT NULL,
    page_index      INTEGER NOT NULL,
    page_url        TEXT NOT NULL DEFAULT '',
    version         INTEGER NOT NULL,
    kind            TEXT NOT NULL,
    node_count      INTEGER NOT NULL DEFAULT 0,
    added_count     INTEGER NOT NULL DEFAULT 0,
    removed_count   INTEGER NOT NULL DEFAULT 0,
    modified_count  INTEGER NOT NULL DEFAULT 0,
    unchanged_count INTEGER NOT NULL DEFAULT 0,
    partial         INTEGER NOT NULL DEFAULT 0,
    captured_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_page ON capture_events(page_id, captured_at DESC);
CREATE INDEX IF NOT EXISTS idx_events_time ON capture_events(captured_at);

-- Snapshot outlines: optional rendered text for full captures
CREATE TABLE IF NOT EXISTS snapshot_outlines (
    event_id TEXT PRIMARY KEY,
    outline  TEXT NOT NULL,
    FOREIGN KEY (event_id) REFERENCES capture_events(id) ON DELETE CASCADE
);
`
