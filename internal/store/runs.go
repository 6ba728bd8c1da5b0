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
	"fmt"
	"time"

	"github.com/Walter-bl/nexsentia-sub003/internal/models"
)

// CreateSyncRun appends a new run record. Called exactly once at run
// start with status in_progress.
func (s *Store) CreateSyncRun(ctx context.Context, run *models.SyncRun) error {
	stats, err := marshalJSON(run.Stats)
	if err != nil {
		return err
	}
	detail, err := marshalJSON(run.ErrorDetail)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO sync_runs
			(id, connection_id, tenant_id, kind, status, started_at,
			 completed_at, channels_processed, members_processed,
			 messages_created, messages_updated, messages_seen, api_calls,
			 stats, error_message, error_detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, run.ID, run.ConnectionID, run.TenantID, run.Kind, run.Status,
		run.StartedAt, run.CompletedAt, run.ChannelsProcessed,
		run.MembersProcessed, run.MessagesCreated, run.MessagesUpdated,
		run.MessagesSeen, run.APICalls, stats, run.ErrorMessage, detail)
	return err
}

// UpdateSyncRun writes the terminal state of a run. Terminal rows are
// immutable: an update is refused once status is completed or failed.
func (s *Store) UpdateSyncRun(ctx context.Context, run *models.SyncRun) error {
	stats, err := marshalJSON(run.Stats)
	if err != nil {
		return err
	}
	detail, err := marshalJSON(run.ErrorDetail)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE sync_runs
		SET status = $1, completed_at = $2, channels_processed = $3,
		    members_processed = $4, messages_created = $5,
		    messages_updated = $6, messages_seen = $7, api_calls = $8,
		    stats = $9, error_message = $10, error_detail = $11
		WHERE id = $12 AND status = 'in_progress'
	`, run.Status, run.CompletedAt, run.ChannelsProcessed,
		run.MembersProcessed, run.MessagesCreated, run.MessagesUpdated,
		run.MessagesSeen, run.APICalls, stats, run.ErrorMessage, detail, run.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sync run %s is not in progress", run.ID)
	}
	return nil
}

// ListSyncRuns returns a connection's most recent runs, newest first.
func (s *Store) ListSyncRuns(ctx context.Context, tenantID string, connectionID int64, limit int) ([]models.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, connection_id, tenant_id, kind, status, started_at,
		       completed_at, channels_processed, members_processed,
		       messages_created, messages_updated, messages_seen, api_calls,
		       stats, error_message, error_detail
		FROM sync_runs
		WHERE tenant_id = $1 AND connection_id = $2
		ORDER BY started_at DESC
		LIMIT $3
	`, tenantID, connectionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.SyncRun
	for rows.Next() {
		var r models.SyncRun
		var stats, detail []byte
		if err := rows.Scan(
			&r.ID, &r.ConnectionID, &r.TenantID, &r.Kind, &r.Status,
			&r.StartedAt, &r.CompletedAt, &r.ChannelsProcessed,
			&r.MembersProcessed, &r.MessagesCreated, &r.MessagesUpdated,
			&r.MessagesSeen, &r.APICalls, &stats, &r.ErrorMessage, &detail,
		); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(stats, &r.Stats); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(detail, &r.ErrorDetail); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// FailStaleRuns marks in_progress runs older than the cutoff as failed.
// A process crash mid-run abandons its run record; this sweeper, invoked
// at startup, keeps the history consistent.
func (s *Store) FailStaleRuns(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sync_runs
		SET status = 'failed',
		    completed_at = NOW(),
		    error_message = 'abandoned: process terminated mid-run'
		WHERE status = 'in_progress' AND started_at < NOW() - $1::interval
	`, fmt.Sprintf("%d seconds", int(olderThan.Seconds())))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
