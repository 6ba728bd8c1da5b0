// Copyright (c) 2026 Nexsentia
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package store provides the Postgres-backed persistence layer: connection
// state, natural-key upserts for members, channels and messages, and the
// sync run history recorder. Every query is tenant-scoped.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides CRUD and upsert operations backed by a Postgres pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a store backed by the given Postgres pool. It ensures
// the schema exists on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	slog.Info("store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS connections (
			id                      BIGSERIAL PRIMARY KEY,
			tenant_id               TEXT NOT NULL,
			workspace_id            TEXT NOT NULL,
			access_token            TEXT NOT NULL,
			scopes                  TEXT[] DEFAULT '{}',
			is_active               BOOLEAN DEFAULT TRUE,
			last_sync_at            TIMESTAMPTZ,
			last_successful_sync_at TIMESTAMPTZ,
			failed_sync_attempts    INT DEFAULT 0,
			last_sync_error         TEXT DEFAULT '',
			sync_interval_minutes   INT DEFAULT 0,
			channel_kinds           TEXT[] DEFAULT '{}',
			created_at              TIMESTAMPTZ DEFAULT NOW(),
			updated_at              TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_connections_tenant ON connections(tenant_id);
		CREATE INDEX IF NOT EXISTS idx_connections_active ON connections(is_active);

		CREATE TABLE IF NOT EXISTS members (
			id            BIGSERIAL PRIMARY KEY,
			connection_id BIGINT NOT NULL REFERENCES connections(id) ON DELETE CASCADE,
			tenant_id     TEXT NOT NULL,
			external_id   TEXT NOT NULL,
			display_name  TEXT DEFAULT '',
			real_name     TEXT DEFAULT '',
			email         TEXT DEFAULT '',
			avatar_url    TEXT DEFAULT '',
			deactivated   BOOLEAN DEFAULT FALSE,
			created_at    TIMESTAMPTZ DEFAULT NOW(),
			updated_at    TIMESTAMPTZ DEFAULT NOW(),
			UNIQUE(connection_id, external_id)
		);
		CREATE INDEX IF NOT EXISTS idx_members_tenant ON members(tenant_id);

		CREATE TABLE IF NOT EXISTS channels (
			id             BIGSERIAL PRIMARY KEY,
			connection_id  BIGINT NOT NULL REFERENCES connections(id) ON DELETE CASCADE,
			tenant_id      TEXT NOT NULL,
			external_id    TEXT NOT NULL,
			name           TEXT DEFAULT '',
			kind           TEXT NOT NULL,
			archived       BOOLEAN DEFAULT FALSE,
			total_messages INT DEFAULT 0,
			last_synced_at TIMESTAMPTZ,
			created_at     TIMESTAMPTZ DEFAULT NOW(),
			updated_at     TIMESTAMPTZ DEFAULT NOW(),
			UNIQUE(connection_id, external_id)
		);
		CREATE INDEX IF NOT EXISTS idx_channels_tenant ON channels(tenant_id);

		CREATE TABLE IF NOT EXISTS messages (
			id                  BIGSERIAL PRIMARY KEY,
			connection_id       BIGINT NOT NULL REFERENCES connections(id) ON DELETE CASCADE,
			tenant_id           TEXT NOT NULL,
			channel_external_id TEXT NOT NULL,
			external_id         TEXT NOT NULL,
			thread_id           TEXT DEFAULT '',
			author_id           TEXT DEFAULT '',
			body                TEXT DEFAULT '',
			reactions           JSONB,
			attachments         JSONB,
			edited              BOOLEAN DEFAULT FALSE,
			pinned              BOOLEAN DEFAULT FALSE,
			posted_at           TIMESTAMPTZ NOT NULL,
			last_synced_at      TIMESTAMPTZ DEFAULT NOW(),
			created_at          TIMESTAMPTZ DEFAULT NOW(),
			updated_at          TIMESTAMPTZ DEFAULT NOW(),
			UNIQUE(connection_id, external_id)
		);
		CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(connection_id, channel_external_id);
		CREATE INDEX IF NOT EXISTS idx_messages_tenant ON messages(tenant_id);

		CREATE TABLE IF NOT EXISTS sync_runs (
			id                 TEXT PRIMARY KEY,
			connection_id      BIGINT NOT NULL REFERENCES connections(id) ON DELETE CASCADE,
			tenant_id          TEXT NOT NULL,
			kind               TEXT NOT NULL,
			status             TEXT NOT NULL,
			started_at         TIMESTAMPTZ NOT NULL,
			completed_at       TIMESTAMPTZ,
			channels_processed INT DEFAULT 0,
			members_processed  INT DEFAULT 0,
			messages_created   INT DEFAULT 0,
			messages_updated   INT DEFAULT 0,
			messages_seen      INT DEFAULT 0,
			api_calls          INT DEFAULT 0,
			stats              JSONB,
			error_message      TEXT DEFAULT '',
			error_detail       JSONB
		);
		CREATE INDEX IF NOT EXISTS idx_runs_connection ON sync_runs(connection_id, started_at DESC);
		CREATE INDEX IF NOT EXISTS idx_runs_status ON sync_runs(status);
	`)
	return err
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// marshalJSON renders v as JSONB input, or nil for empty values so the
// column stays NULL instead of holding "null"/"[]" noise.
func marshalJSON(v any) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		if len(t) == 0 {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal json column: %w", err)
	}
	if string(data) == "null" || string(data) == "[]" {
		return nil, nil
	}
	return data, nil
}

func unmarshalJSON(data []byte, out any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
