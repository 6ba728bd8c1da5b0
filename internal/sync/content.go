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

package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Walter-bl/nexsentia-sub003/internal/models"
	"github.com/Walter-bl/nexsentia-sub003/internal/provider"
)

// syncContent syncs message history for every active channel, one
// channel at a time. A single channel's failure never aborts the run:
// permission-denied on a public channel is recovered by joining and
// retrying once, everything else is logged and skipped.
func (o *Orchestrator) syncContent(ctx context.Context, cred provider.Credential, conn *models.Connection, run *models.SyncRun, oldest time.Time) (processed, skipped []string, err error) {
	channels, err := o.entities.ListActiveChannels(ctx, conn.TenantID, conn.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list channels: %w", err)
	}

	for _, ch := range channels {
		err := o.syncChannelMessages(ctx, cred, conn, run, ch, oldest)
		if err == nil {
			processed = append(processed, ch.ExternalID)
			run.ChannelsProcessed++
			continue
		}

		if provider.IsPermissionDenied(err) {
			if !o.recoverPermission(ctx, cred, conn, run, ch, oldest) {
				skipped = append(skipped, ch.ExternalID)
				continue
			}
			processed = append(processed, ch.ExternalID)
			run.ChannelsProcessed++
			continue
		}

		slog.Error("channel sync failed, skipping",
			"run", run.ID,
			"channel", ch.ExternalID,
			"error", err,
		)
		skipped = append(skipped, ch.ExternalID)
	}

	return processed, skipped, nil
}

// recoverPermission applies the channel-scoped permission-denied policy:
// direct and group-direct channels cannot be joined; private channels
// are never joined; public channels get exactly one join and one retry.
// Returns true when the retry succeeded.
func (o *Orchestrator) recoverPermission(ctx context.Context, cred provider.Credential, conn *models.Connection, run *models.SyncRun, ch models.Channel, oldest time.Time) bool {
	switch ch.Kind {
	case models.ChannelDirect, models.ChannelGroupDirect:
		slog.Info("permission denied on direct channel, skipping",
			"run", run.ID,
			"channel", ch.ExternalID,
		)
		return false
	case models.ChannelPrivate:
		slog.Warn("permission denied on private channel, skipping",
			"run", run.ID,
			"channel", ch.ExternalID,
		)
		return false
	}

	slog.Info("permission denied on public channel, joining and retrying",
		"run", run.ID,
		"channel", ch.ExternalID,
	)

	err := o.provider.JoinChannel(ctx, cred, ch.ExternalID)
	run.APICalls++
	if err != nil {
		slog.Warn("join failed, skipping channel",
			"run", run.ID,
			"channel", ch.ExternalID,
			"error", err,
		)
		return false
	}

	// One retry from the start of the window; duplicate upserts from the
	// first attempt are absorbed by the natural-key merge.
	if err := o.syncChannelMessages(ctx, cred, conn, run, ch, oldest); err != nil {
		slog.Warn("retry after join failed, skipping channel",
			"run", run.ID,
			"channel", ch.ExternalID,
			"error", err,
		)
		return false
	}
	return true
}

// syncChannelMessages paginates a channel's history from the window
// start to exhaustion, upserting every message and counting created vs
// updated by pre-upsert existence.
func (o *Orchestrator) syncChannelMessages(ctx context.Context, cred provider.Credential, conn *models.Connection, run *models.SyncRun, ch models.Channel, oldest time.Time) error {
	cursor := ""
	for {
		messages, next, err := o.provider.ListMessages(ctx, cred, ch.ExternalID, oldest, cursor)
		run.APICalls++
		if err != nil {
			return err
		}

		for _, m := range messages {
			created, err := o.entities.UpsertMessage(ctx, models.Message{
				ConnectionID:      conn.ID,
				TenantID:          conn.TenantID,
				ChannelExternalID: ch.ExternalID,
				ExternalID:        m.ID,
				ThreadID:          m.ThreadID,
				AuthorID:          m.AuthorID,
				Text:              m.Text,
				Reactions:         m.Reactions,
				Attachments:       m.Attachments,
				Edited:            m.Edited,
				Pinned:            m.Pinned,
				PostedAt:          m.PostedAt,
			})
			if err != nil {
				return fmt.Errorf("upsert message %s: %w", m.ID, err)
			}

			run.MessagesSeen++
			if created {
				run.MessagesCreated++
				o.publishMessage(ctx, conn, run, ch, m)
			} else {
				run.MessagesUpdated++
			}
		}

		if next == "" {
			return nil
		}
		cursor = next
	}
}

// publishMessage emits a downstream event for a newly ingested message.
// The dedup filter absorbs boundary-second re-deliveries so consumers
// never see the same message twice. Publication failures are logged,
// never fatal.
func (o *Orchestrator) publishMessage(ctx context.Context, conn *models.Connection, run *models.SyncRun, ch models.Channel, m provider.Message) {
	if o.publisher == nil {
		return
	}

	if o.dedup != nil {
		eventID := fmt.Sprintf("%d:%s", conn.ID, m.ID)
		isNew, err := o.dedup.IsNew(ctx, eventID)
		if err != nil {
			slog.Warn("dedup check failed", "run", run.ID, "error", err)
		} else if !isNew {
			return
		}
	}

	event := &models.MessageEvent{
		MessageID:    m.ID,
		ChannelID:    ch.ExternalID,
		AuthorID:     m.AuthorID,
		ConnectionID: conn.ID,
		TenantID:     conn.TenantID,
		PostedAt:     m.PostedAt.UTC().Format(time.RFC3339),
		SyncRunID:    run.ID,
	}
	if err := o.publisher.PublishMessageEvent(ctx, event); err != nil {
		slog.Error("publish message event failed",
			"run", run.ID,
			"message", m.ID,
			"error", err,
		)
	}
}
