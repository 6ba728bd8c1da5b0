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

// Package models defines the normalized records shared across the
// workspace sync service. Every entity is tenant-scoped and owned by
// exactly one Connection.
package models

import "time"

// ChannelKind classifies a channel's visibility.
type ChannelKind string

const (
	ChannelPublic      ChannelKind = "public"
	ChannelPrivate     ChannelKind = "private"
	ChannelDirect      ChannelKind = "im"
	ChannelGroupDirect ChannelKind = "mpim"
)

// DefaultChannelKinds is the filter used when a connection does not
// restrict which channel kinds to sync.
var DefaultChannelKinds = []ChannelKind{
	ChannelPublic, ChannelPrivate, ChannelDirect, ChannelGroupDirect,
}

// Connection binds one tenant to one external provider workspace.
// Created by OAuth completion (outside this service); updated after
// every sync run; soft-deactivated, never hard-deleted while history
// exists.
type Connection struct {
	ID                   int64
	TenantID             string
	WorkspaceID          string
	AccessToken          string
	Scopes               []string
	IsActive             bool
	LastSyncAt           *time.Time
	LastSuccessfulSyncAt *time.Time
	FailedSyncAttempts   int
	LastSyncError        string
	SyncIntervalMinutes  int // 0 = use the service-wide default
	ChannelKinds         []ChannelKind
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Channel is a grouping unit for messages within a connection.
// ExternalID is unique within (tenant, connection).
type Channel struct {
	ID            int64
	ConnectionID  int64
	TenantID      string
	ExternalID    string
	Name          string
	Kind          ChannelKind
	Archived      bool
	TotalMessages int
	LastSyncedAt  *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Member is a workspace user. Used to resolve direct-channel display
// names and message authorship.
type Member struct {
	ID           int64
	ConnectionID int64
	TenantID     string
	ExternalID   string
	DisplayName  string
	RealName     string
	Email        string
	AvatarURL    string
	Deactivated  bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Reaction is an emoji reaction attached to a message.
type Reaction struct {
	Name  string   `json:"name"`
	Count int      `json:"count"`
	Users []string `json:"users,omitempty"`
}

// Attachment is a file or link attached to a message.
type Attachment struct {
	ExternalID string `json:"external_id,omitempty"`
	Name       string `json:"name,omitempty"`
	MimeType   string `json:"mime_type,omitempty"`
	Size       int64  `json:"size,omitempty"`
	URL        string `json:"url,omitempty"`
}

// Message is an individual synced record. ExternalID is the provider's
// own identifier and the sole dedup key — re-ingestion updates the
// existing row in place, never duplicates.
type Message struct {
	ID                int64
	ConnectionID      int64
	TenantID          string
	ChannelExternalID string
	ExternalID        string
	ThreadID          string
	AuthorID          string
	Text              string
	Reactions         []Reaction
	Attachments       []Attachment
	Edited            bool
	Pinned            bool
	PostedAt          time.Time
	LastSyncedAt      time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// SyncKind selects full or incremental fetch windows.
type SyncKind string

const (
	SyncFull        SyncKind = "full"
	SyncIncremental SyncKind = "incremental"
)

// Run statuses. Terminal states (completed, failed) are immutable.
const (
	RunInProgress = "in_progress"
	RunCompleted  = "completed"
	RunFailed     = "failed"
)

// SyncRun records one orchestrator invocation. Created with status
// in_progress at run start, mutated exactly once at the terminal
// transition, and consumed for observability only.
type SyncRun struct {
	ID                string         `json:"id"`
	ConnectionID      int64          `json:"connection_id"`
	TenantID          string         `json:"tenant_id"`
	Kind              SyncKind       `json:"kind"`
	Status            string         `json:"status"`
	StartedAt         time.Time      `json:"started_at"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
	ChannelsProcessed int            `json:"channels_processed"`
	MembersProcessed  int            `json:"members_processed"`
	MessagesCreated   int            `json:"messages_created"`
	MessagesUpdated   int            `json:"messages_updated"`
	MessagesSeen      int            `json:"messages_seen"`
	APICalls          int            `json:"api_calls"`
	Stats             map[string]any `json:"stats,omitempty"`
	ErrorMessage      string         `json:"error_message,omitempty"`
	ErrorDetail       map[string]any `json:"error_detail,omitempty"`
}

// MessageEvent is the JSON contract published to the downstream queue
// for each newly ingested message. KPI workers deserialise this shape.
type MessageEvent struct {
	MessageID    string `json:"message_id"`
	ChannelID    string `json:"channel_id"`
	AuthorID     string `json:"author_id"`
	ConnectionID int64  `json:"connection_id"`
	TenantID     string `json:"tenant_id"`
	PostedAt     string `json:"posted_at"`
	SyncRunID    string `json:"sync_run_id"`
}
