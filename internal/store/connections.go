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

package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Walter-bl/nexsentia-sub003/internal/models"
)

const connectionColumns = `
	id, tenant_id, workspace_id, access_token, scopes, is_active,
	last_sync_at, last_successful_sync_at, failed_sync_attempts,
	last_sync_error, sync_interval_minutes, channel_kinds,
	created_at, updated_at`

// GetConnection retrieves a connection by id, scoped to the tenant.
// Returns nil when the connection does not exist or belongs to another
// tenant.
func (s *Store) GetConnection(ctx context.Context, tenantID string, id int64) (*models.Connection, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+connectionColumns+`
		FROM connections
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id)
	return scanConnection(row)
}

// ListActiveConnections returns every active connection across tenants,
// for the scheduler to evaluate.
func (s *Store) ListActiveConnections(ctx context.Context) ([]models.Connection, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+connectionColumns+`
		FROM connections
		WHERE is_active
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conns []models.Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, *c)
	}
	return conns, rows.Err()
}

// TouchSyncAttempt stamps last_sync_at so even a failed run records that
// an attempt was made.
func (s *Store) TouchSyncAttempt(ctx context.Context, id int64, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE connections
		SET last_sync_at = $1, updated_at = NOW()
		WHERE id = $2
	`, at, id)
	return err
}

// MarkSyncSuccess stamps last_successful_sync_at, resets the failure
// counter and clears the last error.
func (s *Store) MarkSyncSuccess(ctx context.Context, id int64, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE connections
		SET last_successful_sync_at = $1,
		    failed_sync_attempts = 0,
		    last_sync_error = '',
		    updated_at = NOW()
		WHERE id = $2
	`, at, id)
	return err
}

// MarkSyncFailure increments the failure counter and records the error.
func (s *Store) MarkSyncFailure(ctx context.Context, id int64, message string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE connections
		SET failed_sync_attempts = failed_sync_attempts + 1,
		    last_sync_error = $1,
		    updated_at = NOW()
		WHERE id = $2
	`, message, id)
	return err
}

// DeactivateConnection soft-deactivates a connection. History rows are
// kept; the scheduler stops picking the connection up.
func (s *Store) DeactivateConnection(ctx context.Context, tenantID string, id int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE connections
		SET is_active = FALSE, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id)
	return err
}

func scanConnection(row pgx.Row) (*models.Connection, error) {
	var c models.Connection
	var kinds []string
	err := row.Scan(
		&c.ID, &c.TenantID, &c.WorkspaceID, &c.AccessToken, &c.Scopes,
		&c.IsActive, &c.LastSyncAt, &c.LastSuccessfulSyncAt,
		&c.FailedSyncAttempts, &c.LastSyncError, &c.SyncIntervalMinutes,
		&kinds, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	for _, k := range kinds {
		c.ChannelKinds = append(c.ChannelKinds, models.ChannelKind(k))
	}
	return &c, nil
}
