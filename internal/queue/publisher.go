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

// Package queue publishes message events to Redis for the downstream
// KPI workers that compute activity metrics from synced data.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Walter-bl/nexsentia-sub003/internal/models"
)

// Publisher sends message events to a Redis list.
type Publisher struct {
	rdb       *redis.Client
	queueName string
}

// NewPublisher creates a new Redis publisher targeting the specified queue.
func NewPublisher(rdb *redis.Client, queueName string) *Publisher {
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
	}
}

// task wraps an event for Redis transport. Workers BRPOP from the list
// and deserialise this exact JSON structure.
type task struct {
	ID          string               `json:"id"`
	Type        string               `json:"type"`
	Payload     *models.MessageEvent `json:"payload"`
	PublishedAt string               `json:"published_at"`
}

// PublishMessageEvent serialises a message event and pushes it onto the
// queue list.
func (p *Publisher) PublishMessageEvent(ctx context.Context, event *models.MessageEvent) error {
	t := task{
		ID:          uuid.New().String(),
		Type:        "message.ingested",
		Payload:     event,
		PublishedAt: time.Now().UTC().Format(time.RFC3339),
	}

	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal message event: %w", err)
	}

	if err := p.rdb.LPush(ctx, p.queueName, string(data)).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Debug("published message event",
		"task_id", t.ID,
		"message_id", event.MessageID,
		"tenant", event.TenantID,
		"queue", p.queueName,
	)

	return nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
