package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id           TEXT PRIMARY KEY,
	email        TEXT NOT NULL UNIQUE,
	password     TEXT NOT NULL,
	full_name TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS presentations (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	owner_id   TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS slides (
	id              TEXT PRIMARY KEY,
	presentation_id TEXT NOT NULL REFERENCES presentations(id) ON DELETE CASCADE,
	position        INT NOT NULL,
	title           TEXT NOT NULL,
	bullets         TEXT[] NOT NULL DEFAULT '{}',
	notes           TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS slides_presentation_idx ON slides(presentation_id, position);

CREATE TABLE IF NOT EXISTS collaborators (
	presentation_id TEXT NOT NULL REFERENCES presentations(id) ON DELETE CASCADE,
	user_id         TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	role            TEXT NOT NULL,
	invited_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (presentation_id, user_id)
);

CREATE TABLE IF NOT EXISTS practice_sessions (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	presentation_id  TEXT REFERENCES presentations(id) ON DELETE SET NULL,
	transcript       TEXT NOT NULL,
	duration_seconds INT NOT NULL,
	words_per_minute DOUBLE PRECISION NOT NULL,
	filler_count     INT NOT NULL,
	feedback         TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
