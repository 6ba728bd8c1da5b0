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

	"github.com/jackc/pgx/v5"

	"github.com/Walter-bl/nexsentia-sub003/internal/models"
)

// UpsertMember creates or merges a member keyed on
// (connection_id, external_id). Replaying the same record any number of
// times leaves exactly one row reflecting the latest write.
func (s *Store) UpsertMember(ctx context.Context, m models.Member) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO members
			(connection_id, tenant_id, external_id, display_name, real_name,
			 email, avatar_url, deactivated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (connection_id, external_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			real_name    = EXCLUDED.real_name,
			email        = EXCLUDED.email,
			avatar_url   = EXCLUDED.avatar_url,
			deactivated  = EXCLUDED.deactivated,
			updated_at   = NOW()
	`, m.ConnectionID, m.TenantID, m.ExternalID, m.DisplayName, m.RealName,
		m.Email, m.AvatarURL, m.Deactivated)
	return err
}

// GetMember retrieves a member by external id, scoped to the tenant.
// Returns nil when unknown — direct-channel name resolution falls back
// to the raw external id in that case.
func (s *Store) GetMember(ctx context.Context, tenantID string, connectionID int64, externalID string) (*models.Member, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, connection_id, tenant_id, external_id, display_name,
		       real_name, email, avatar_url, deactivated, created_at, updated_at
		FROM members
		WHERE tenant_id = $1 AND connection_id = $2 AND external_id = $3
	`, tenantID, connectionID, externalID)

	var m models.Member
	err := row.Scan(
		&m.ID, &m.ConnectionID, &m.TenantID, &m.ExternalID, &m.DisplayName,
		&m.RealName, &m.Email, &m.AvatarURL, &m.Deactivated, &m.CreatedAt, &m.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// UpsertChannel creates or merges a channel keyed on
// (connection_id, external_id). The running message count is preserved
// across upserts and only changed by UpdateChannelMessageCount.
func (s *Store) UpsertChannel(ctx context.Context, ch models.Channel) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO channels
			(connection_id, tenant_id, external_id, name, kind, archived)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (connection_id, external_id) DO UPDATE SET
			name       = EXCLUDED.name,
			kind       = EXCLUDED.kind,
			archived   = EXCLUDED.archived,
			updated_at = NOW()
	`, ch.ConnectionID, ch.TenantID, ch.ExternalID, ch.Name, ch.Kind, ch.Archived)
	return err
}

// ListActiveChannels returns the connection's non-archived channels.
func (s *Store) ListActiveChannels(ctx context.Context, tenantID string, connectionID int64) ([]models.Channel, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, connection_id, tenant_id, external_id, name, kind,
		       archived, total_messages, last_synced_at, created_at, updated_at
		FROM channels
		WHERE tenant_id = $1 AND connection_id = $2 AND NOT archived
		ORDER BY external_id
	`, tenantID, connectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []models.Channel
	for rows.Next() {
		var ch models.Channel
		if err := rows.Scan(
			&ch.ID, &ch.ConnectionID, &ch.TenantID, &ch.ExternalID, &ch.Name,
			&ch.Kind, &ch.Archived, &ch.TotalMessages, &ch.LastSyncedAt,
			&ch.CreatedAt, &ch.UpdatedAt,
		); err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

// UpdateChannelMessageCount recomputes a channel's running message count
// from the messages table and stamps last_synced_at.
func (s *Store) UpdateChannelMessageCount(ctx context.Context, tenantID string, connectionID int64, channelExternalID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE channels
		SET total_messages = (
			SELECT COUNT(*) FROM messages
			WHERE tenant_id = $1 AND connection_id = $2 AND channel_external_id = $3
		),
		last_synced_at = NOW(),
		updated_at = NOW()
		WHERE tenant_id = $1 AND connection_id = $2 AND external_id = $3
	`, tenantID, connectionID, channelExternalID)
	return err
}

// UpsertMessage creates or merges a message keyed on
// (connection_id, external_id). Returns true when the row was newly
// created, so callers can split created/updated counters.
func (s *Store) UpsertMessage(ctx context.Context, m models.Message) (bool, error) {
	reactions, err := marshalJSON(m.Reactions)
	if err != nil {
		return false, err
	}
	attachments, err := marshalJSON(m.Attachments)
	if err != nil {
		return false, err
	}

	// xmax = 0 only for freshly inserted rows
	var created bool
	err = s.pool.QueryRow(ctx, `
		INSERT INTO messages
			(connection_id, tenant_id, channel_external_id, external_id,
			 thread_id, author_id, body, reactions, attachments, edited,
			 pinned, posted_at, last_synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		ON CONFLICT (connection_id, external_id) DO UPDATE SET
			thread_id      = EXCLUDED.thread_id,
			author_id      = EXCLUDED.author_id,
			body           = EXCLUDED.body,
			reactions      = EXCLUDED.reactions,
			attachments    = EXCLUDED.attachments,
			edited         = EXCLUDED.edited,
			pinned         = EXCLUDED.pinned,
			posted_at      = EXCLUDED.posted_at,
			last_synced_at = NOW(),
			updated_at     = NOW()
		RETURNING (xmax = 0)
	`, m.ConnectionID, m.TenantID, m.ChannelExternalID, m.ExternalID,
		m.ThreadID, m.AuthorID, m.Text, reactions, attachments, m.Edited,
		m.Pinned, m.PostedAt).Scan(&created)
	if err != nil {
		return false, err
	}
	return created, nil
}

// CountChannelMessages returns the stored message count for a channel.
func (s *Store) CountChannelMessages(ctx context.Context, tenantID string, connectionID int64, channelExternalID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE tenant_id = $1 AND connection_id = $2 AND channel_external_id = $3
	`, tenantID, connectionID, channelExternalID).Scan(&n)
	return n, err
}
