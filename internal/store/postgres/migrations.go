package postgres

// migrations run in order on every Migrate call, including each Lambda cold
// start. Each must be idempotent and must not lock an existing table.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS chunk_jobs (
		id          TEXT PRIMARY KEY,
		operation   TEXT        NOT NULL,
		status      TEXT        NOT NULL,
		total       INTEGER     NOT NULL DEFAULT 0,
		done        INTEGER     NOT NULL DEFAULT 0,
		context     JSONB       NOT NULL DEFAULT '{}'::jsonb,
		data        JSONB       NOT NULL DEFAULT '{}'::jsonb,
		errors      JSONB       NOT NULL DEFAULT '{}'::jsonb,
		message     TEXT        NOT NULL DEFAULT '',
		revision    BIGINT      NOT NULL DEFAULT 1,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		expires_at  TIMESTAMPTZ NOT NULL,
		CONSTRAINT chunk_jobs_done_check CHECK (done >= 0 AND total >= 0)
	)`,
	`CREATE INDEX IF NOT EXISTS chunk_jobs_expires_at_idx ON chunk_jobs (expires_at)`,
}
