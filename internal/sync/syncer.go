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

// Package sync drives the per-connection synchronization lifecycle:
// members, then channels, then channel content, with single-flight
// enforcement per connection, incremental fetch windows, permission
// recovery via join-and-retry, and a durable run history.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Walter-bl/nexsentia-sub003/internal/models"
	"github.com/Walter-bl/nexsentia-sub003/internal/provider"
)

// ErrNotFound means the connection does not exist or belongs to a
// different tenant. No run record is created.
var ErrNotFound = errors.New("connection not found")

// ErrAlreadyInProgress means a sync for the same connection is already
// in flight. No run record is created; the existing run is unaffected.
var ErrAlreadyInProgress = errors.New("sync already in progress")

// Provider is the subset of the provider client the orchestrator needs.
type Provider interface {
	ListMembers(ctx context.Context, cred provider.Credential, cursor string) ([]provider.Member, string, error)
	ListChannels(ctx context.Context, cred provider.Credential, kinds []string, cursor string) ([]provider.Channel, string, error)
	ListMessages(ctx context.Context, cred provider.Credential, channelID string, oldest time.Time, cursor string) ([]provider.Message, string, error)
	JoinChannel(ctx context.Context, cred provider.Credential, channelID string) error
}

// ConnectionStore persists connection sync bookkeeping.
// Implemented by store.Store.
type ConnectionStore interface {
	GetConnection(ctx context.Context, tenantID string, id int64) (*models.Connection, error)
	TouchSyncAttempt(ctx context.Context, id int64, at time.Time) error
	MarkSyncSuccess(ctx context.Context, id int64, at time.Time) error
	MarkSyncFailure(ctx context.Context, id int64, message string) error
}

// EntityStore persists the synced entities. Implemented by store.Store.
type EntityStore interface {
	UpsertMember(ctx context.Context, m models.Member) error
	GetMember(ctx context.Context, tenantID string, connectionID int64, externalID string) (*models.Member, error)
	UpsertChannel(ctx context.Context, ch models.Channel) error
	ListActiveChannels(ctx context.Context, tenantID string, connectionID int64) ([]models.Channel, error)
	UpdateChannelMessageCount(ctx context.Context, tenantID string, connectionID int64, channelExternalID string) error
	UpsertMessage(ctx context.Context, m models.Message) (bool, error)
}

// RunStore records run history. Implemented by store.Store.
type RunStore interface {
	CreateSyncRun(ctx context.Context, run *models.SyncRun) error
	UpdateSyncRun(ctx context.Context, run *models.SyncRun) error
}

// Publisher sends events for newly ingested messages downstream.
// Implemented by queue.Publisher.
type Publisher interface {
	PublishMessageEvent(ctx context.Context, event *models.MessageEvent) error
}

// Dedup guards against publishing the same message event twice when
// incremental windows overlap. Implemented by dedup.Filter.
type Dedup interface {
	IsNew(ctx context.Context, eventID string) (bool, error)
}

// Orchestrator runs per-connection syncs. Publisher and Dedup are
// optional; a nil value disables downstream event publication.
type Orchestrator struct {
	provider    Provider
	connections ConnectionStore
	entities    EntityStore
	runs        RunStore
	publisher   Publisher
	dedup       Dedup

	// inFlight is the single-flight guard: at most one sync per
	// connection id at any instant. Process-local, not crash-durable.
	mu       sync.Mutex
	inFlight map[int64]bool
}

// Config holds the orchestrator dependencies.
type Config struct {
	Provider    Provider
	Connections ConnectionStore
	Entities    EntityStore
	Runs        RunStore
	Publisher   Publisher
	Dedup       Dedup
}

// NewOrchestrator creates a sync orchestrator.
func NewOrchestrator(cfg Config) *Orchestrator {
	return &Orchestrator{
		provider:    cfg.Provider,
		connections: cfg.Connections,
		entities:    cfg.Entities,
		runs:        cfg.Runs,
		publisher:   cfg.Publisher,
		dedup:       cfg.Dedup,
		inFlight:    make(map[int64]bool),
	}
}

// acquire atomically claims the single-flight slot for a connection.
func (o *Orchestrator) acquire(connectionID int64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inFlight[connectionID] {
		return false
	}
	o.inFlight[connectionID] = true
	return true
}

func (o *Orchestrator) release(connectionID int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, connectionID)
}

// RunSync executes one sync for the connection: members, then channels,
// then per-channel content. Returns the completed run, or an error after
// the run has been marked failed and the connection's failure counters
// updated. Channel-level content errors never fail the run.
func (o *Orchestrator) RunSync(ctx context.Context, connectionID int64, tenantID string, kind models.SyncKind) (*models.SyncRun, error) {
	conn, err := o.connections.GetConnection(ctx, tenantID, connectionID)
	if err != nil {
		return nil, fmt.Errorf("load connection %d: %w", connectionID, err)
	}
	if conn == nil {
		return nil, fmt.Errorf("connection %d (tenant %s): %w", connectionID, tenantID, ErrNotFound)
	}

	if !o.acquire(connectionID) {
		return nil, fmt.Errorf("connection %d: %w", connectionID, ErrAlreadyInProgress)
	}
	defer o.release(connectionID)

	started := time.Now().UTC()
	run := &models.SyncRun{
		ID:           uuid.New().String(),
		ConnectionID: connectionID,
		TenantID:     tenantID,
		Kind:         kind,
		Status:       models.RunInProgress,
		StartedAt:    started,
	}

	if err := o.runs.CreateSyncRun(ctx, run); err != nil {
		o.markConnectionFailed(ctx, connectionID, err)
		return nil, fmt.Errorf("record run start: %w", err)
	}

	slog.Info("sync run started",
		"run", run.ID,
		"tenant", tenantID,
		"connection", connectionID,
		"kind", kind,
	)

	if err := o.connections.TouchSyncAttempt(ctx, connectionID, started); err != nil {
		return run, o.failRun(ctx, run, fmt.Errorf("stamp sync attempt: %w", err))
	}

	cred := provider.Credential{Token: conn.AccessToken, WorkspaceID: conn.WorkspaceID}

	memberNames, err := o.syncMembers(ctx, cred, conn, run)
	if err != nil {
		return run, o.failRun(ctx, run, fmt.Errorf("sync members: %w", err))
	}

	if err := o.syncChannels(ctx, cred, conn, run, memberNames); err != nil {
		return run, o.failRun(ctx, run, fmt.Errorf("sync channels: %w", err))
	}

	oldest := fetchWindow(conn, kind)
	processed, skipped, err := o.syncContent(ctx, cred, conn, run, oldest)
	if err != nil {
		return run, o.failRun(ctx, run, err)
	}

	for _, channelID := range processed {
		if err := o.entities.UpdateChannelMessageCount(ctx, tenantID, connectionID, channelID); err != nil {
			return run, o.failRun(ctx, run, fmt.Errorf("update message count for %s: %w", channelID, err))
		}
	}

	completed := time.Now().UTC()
	run.Status = models.RunCompleted
	run.CompletedAt = &completed
	run.Stats = map[string]any{
		"duration_ms":        completed.Sub(started).Milliseconds(),
		"processed_channels": processed,
		"skipped_channels":   skipped,
	}
	if err := o.runs.UpdateSyncRun(ctx, run); err != nil {
		o.markConnectionFailed(ctx, connectionID, err)
		return run, fmt.Errorf("record run completion: %w", err)
	}

	if err := o.connections.MarkSyncSuccess(ctx, connectionID, completed); err != nil {
		return run, fmt.Errorf("stamp sync success: %w", err)
	}

	slog.Info("sync run completed",
		"run", run.ID,
		"tenant", tenantID,
		"connection", connectionID,
		"channels", run.ChannelsProcessed,
		"members", run.MembersProcessed,
		"created", run.MessagesCreated,
		"updated", run.MessagesUpdated,
		"api_calls", run.APICalls,
	)
	return run, nil
}

// fetchWindow picks the inclusive lower time bound for content fetches.
// Full mode, or no prior successful run, fetches all available history.
func fetchWindow(conn *models.Connection, kind models.SyncKind) time.Time {
	if kind == models.SyncIncremental && conn.LastSuccessfulSyncAt != nil {
		return *conn.LastSuccessfulSyncAt
	}
	return time.Time{}
}

// syncMembers fully paginates the member list and upserts every record.
// Member lists are cheap to refetch, so there is no incremental mode.
// Returns external id -> display name for channel name resolution.
func (o *Orchestrator) syncMembers(ctx context.Context, cred provider.Credential, conn *models.Connection, run *models.SyncRun) (map[string]string, error) {
	names := make(map[string]string)

	cursor := ""
	for {
		members, next, err := o.provider.ListMembers(ctx, cred, cursor)
		run.APICalls++
		if err != nil {
			return nil, err
		}

		for _, m := range members {
			if err := o.entities.UpsertMember(ctx, models.Member{
				ConnectionID: conn.ID,
				TenantID:     conn.TenantID,
				ExternalID:   m.ID,
				DisplayName:  m.DisplayName,
				RealName:     m.RealName,
				Email:        m.Email,
				AvatarURL:    m.AvatarURL,
				Deactivated:  m.Deactivated,
			}); err != nil {
				return nil, fmt.Errorf("upsert member %s: %w", m.ID, err)
			}
			names[m.ID] = m.DisplayName
			run.MembersProcessed++
		}

		if next == "" {
			return names, nil
		}
		cursor = next
	}
}

// syncChannels fully paginates the channel list, resolves direct-channel
// names through the member map, and upserts each channel.
func (o *Orchestrator) syncChannels(ctx context.Context, cred provider.Credential, conn *models.Connection, run *models.SyncRun, memberNames map[string]string) error {
	wanted := conn.ChannelKinds
	if len(wanted) == 0 {
		wanted = models.DefaultChannelKinds
	}
	kinds := make([]string, 0, len(wanted))
	for _, k := range wanted {
		kinds = append(kinds, kindFilter(k))
	}

	cursor := ""
	for {
		channels, next, err := o.provider.ListChannels(ctx, cred, kinds, cursor)
		run.APICalls++
		if err != nil {
			return err
		}

		for _, ch := range channels {
			name := ch.Name
			if ch.Kind == models.ChannelDirect {
				name = o.directChannelName(ctx, conn, ch, memberNames)
			}
			if err := o.entities.UpsertChannel(ctx, models.Channel{
				ConnectionID: conn.ID,
				TenantID:     conn.TenantID,
				ExternalID:   ch.ID,
				Name:         name,
				Kind:         ch.Kind,
				Archived:     ch.Archived,
			}); err != nil {
				return fmt.Errorf("upsert channel %s: %w", ch.ID, err)
			}
		}

		if next == "" {
			return nil
		}
		cursor = next
	}
}

// directChannelName resolves an IM channel's display name from its peer
// member. An unknown member falls back to the raw external id — name
// resolution never blocks the upsert.
func (o *Orchestrator) directChannelName(ctx context.Context, conn *models.Connection, ch provider.Channel, memberNames map[string]string) string {
	peer := ch.PeerMemberID
	if peer == "" {
		return ch.Name
	}

	display, ok := memberNames[peer]
	if !ok {
		if m, err := o.entities.GetMember(ctx, conn.TenantID, conn.ID, peer); err == nil && m != nil {
			display = m.DisplayName
		}
	}
	if display == "" {
		display = peer
	}
	return "DM: " + display
}

// kindFilter maps a channel kind to the provider's types filter token.
func kindFilter(k models.ChannelKind) string {
	switch k {
	case models.ChannelPublic:
		return "public_channel"
	case models.ChannelPrivate:
		return "private_channel"
	default:
		return string(k)
	}
}

// markConnectionFailed bumps the connection's failure bookkeeping.
// Best-effort: the triggering error has already been decided.
func (o *Orchestrator) markConnectionFailed(ctx context.Context, connectionID int64, cause error) {
	if err := o.connections.MarkSyncFailure(ctx, connectionID, cause.Error()); err != nil {
		slog.Error("failed to record connection sync failure",
			"connection", connectionID,
			"error", err,
		)
	}
}

// failRun transitions the run to failed with the triggering message and
// updates the connection's failure counters, then returns the cause.
func (o *Orchestrator) failRun(ctx context.Context, run *models.SyncRun, cause error) error {
	completed := time.Now().UTC()
	run.Status = models.RunFailed
	run.CompletedAt = &completed
	run.ErrorMessage = cause.Error()
	run.ErrorDetail = map[string]any{
		"permission_denied": provider.IsPermissionDenied(cause),
		"rate_limited":      provider.IsRateLimited(cause),
	}

	if err := o.runs.UpdateSyncRun(ctx, run); err != nil {
		slog.Error("failed to record run failure",
			"run", run.ID,
			"error", err,
		)
	}
	o.markConnectionFailed(ctx, run.ConnectionID, cause)

	slog.Error("sync run failed",
		"run", run.ID,
		"tenant", run.TenantID,
		"connection", run.ConnectionID,
		"error", cause,
	)
	return cause
}
