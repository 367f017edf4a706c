package database

import (
	"context"
	"fmt"
)

var postgresSchema = []string{
	`CREATE SEQUENCE IF NOT EXISTS business_id_seq`,
	`CREATE TABLE IF NOT EXISTS businesses (
		businessid    TEXT PRIMARY KEY,
		seq           BIGINT NOT NULL UNIQUE,
		name          TEXT NOT NULL,
		address       TEXT,
		phonenumbers  TEXT,
		website       TEXT,
		category      TEXT,
		niche         TEXT,
		rating        DOUBLE PRECISION NOT NULL DEFAULT 0,
		reviewscount  INTEGER NOT NULL DEFAULT 0,
		status        TEXT,
		opening_hours JSONB,
		reviews       JSONB,
		lat           DOUBLE PRECISION,
		lng           DOUBLE PRECISION,
		profileurl    TEXT,
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_businesses_phone ON businesses (phonenumbers)`,
	`CREATE INDEX IF NOT EXISTS idx_businesses_website ON businesses (website)`,
	`CREATE INDEX IF NOT EXISTS idx_businesses_name_location ON businesses (name, lat, lng)`,
	`CREATE TABLE IF NOT EXISTS business_info (
		business_id     TEXT PRIMARY KEY REFERENCES businesses (businessid) ON DELETE CASCADE,
		website         TEXT,
		email           JSONB,
		social_media    JSONB,
		directories     JSONB,
		logo_url        TEXT,
		service_images  JSONB,
		scraping_status TEXT NOT NULL,
		updated_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_business_info_status ON business_info (scraping_status, updated_at)`,
	`CREATE TABLE IF NOT EXISTS user_searched_businesses (
		search_id     BIGSERIAL PRIMARY KEY,
		user_id       BIGINT NOT NULL,
		query_keyword TEXT NOT NULL,
		location      TEXT NOT NULL,
		business_ids  JSONB NOT NULL,
		search_date   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_user_searches_lookup ON user_searched_businesses (user_id, query_keyword, location, search_date)`,
	`CREATE TABLE IF NOT EXISTS competitors (
		business_id  TEXT PRIMARY KEY,
		competitor_1 JSONB,
		competitor_2 JSONB,
		competitor_3 JSONB,
		updated_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS api_usage_logs (
		api_usage_id       TEXT PRIMARY KEY,
		user_id            BIGINT,
		api_name           TEXT NOT NULL,
		endpoint           TEXT NOT NULL,
		request_parameters JSONB,
		response_status    TEXT NOT NULL,
		response_code      INTEGER NOT NULL,
		response_message   TEXT NOT NULL,
		response_time_ms   BIGINT NOT NULL,
		request_timestamp  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS outreach_log (
		outreach_id BIGSERIAL PRIMARY KEY,
		user_id     BIGINT NOT NULL,
		business_id TEXT NOT NULL,
		template_id BIGINT,
		date        TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outreach_user_business ON outreach_log (user_id, business_id)`,
	`CREATE TABLE IF NOT EXISTS follow_ups (
		follow_up_id BIGSERIAL PRIMARY KEY,
		user_id      BIGINT NOT NULL,
		business_id  TEXT NOT NULL,
		outreach_id  BIGINT NOT NULL REFERENCES outreach_log (outreach_id) ON DELETE CASCADE,
		status       TEXT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL
	)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS sequences (
		name  TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS businesses (
		businessid    TEXT PRIMARY KEY,
		seq           INTEGER NOT NULL UNIQUE,
		name          TEXT NOT NULL,
		address       TEXT,
		phonenumbers  TEXT,
		website       TEXT,
		category      TEXT,
		niche         TEXT,
		rating        REAL NOT NULL DEFAULT 0,
		reviewscount  INTEGER NOT NULL DEFAULT 0,
		status        TEXT,
		opening_hours TEXT,
		reviews       TEXT,
		lat           REAL,
		lng           REAL,
		profileurl    TEXT,
		created_at    TIMESTAMP NOT NULL,
		updated_at    TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_businesses_phone ON businesses (phonenumbers)`,
	`CREATE INDEX IF NOT EXISTS idx_businesses_website ON businesses (website)`,
	`CREATE INDEX IF NOT EXISTS idx_businesses_name_location ON businesses (name, lat, lng)`,
	`CREATE TABLE IF NOT EXISTS business_info (
		business_id     TEXT PRIMARY KEY REFERENCES businesses (businessid) ON DELETE CASCADE,
		website         TEXT,
		email           TEXT,
		social_media    TEXT,
		directories     TEXT,
		logo_url        TEXT,
		service_images  TEXT,
		scraping_status TEXT NOT NULL,
		updated_at      TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_business_info_status ON business_info (scraping_status, updated_at)`,
	`CREATE TABLE IF NOT EXISTS user_searched_businesses (
		search_id     INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id       INTEGER NOT NULL,
		query_keyword TEXT NOT NULL,
		location      TEXT NOT NULL,
		business_ids  TEXT NOT NULL,
		search_date   TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_user_searches_lookup ON user_searched_businesses (user_id, query_keyword, location, search_date)`,
	`CREATE TABLE IF NOT EXISTS competitors (
		business_id  TEXT PRIMARY KEY,
		competitor_1 TEXT,
		competitor_2 TEXT,
		competitor_3 TEXT,
		updated_at   TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS api_usage_logs (
		api_usage_id       TEXT PRIMARY KEY,
		user_id            INTEGER,
		api_name           TEXT NOT NULL,
		endpoint           TEXT NOT NULL,
		request_parameters TEXT,
		response_status    TEXT NOT NULL,
		response_code      INTEGER NOT NULL,
		response_message   TEXT NOT NULL,
		response_time_ms   INTEGER NOT NULL,
		request_timestamp  TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS outreach_log (
		outreach_id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id     INTEGER NOT NULL,
		business_id TEXT NOT NULL,
		template_id INTEGER,
		date        TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outreach_user_business ON outreach_log (user_id, business_id)`,
	`CREATE TABLE IF NOT EXISTS follow_ups (
		follow_up_id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id      INTEGER NOT NULL,
		business_id  TEXT NOT NULL,
		outreach_id  INTEGER NOT NULL REFERENCES outreach_log (outreach_id) ON DELETE CASCADE,
		status       TEXT NOT NULL,
		created_at   TIMESTAMP NOT NULL
	)`,
}

// Migrate creates every table, index and sequence the application needs.
// Statements are idempotent so it runs on every start.
func (c *Client) Migrate(ctx context.Context) error {
	schema := sqliteSchema
	if c.Dialect == Postgres {
		schema = postgresSchema
	}

	for i, stmt := range schema {
		if _, err := c.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d failed: %w", i+1, err)
		}
	}
	return nil
}
