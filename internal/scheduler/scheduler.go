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

// Package scheduler runs a background loop that periodically finds
// connections whose sync interval has elapsed and triggers incremental
// syncs for them. Sync errors are logged, never propagated into the
// scheduling loop.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Walter-bl/nexsentia-sub003/internal/models"
	syncer "github.com/Walter-bl/nexsentia-sub003/internal/sync"
)

// Runner triggers a sync for one connection. Implemented by
// sync.Orchestrator.
type Runner interface {
	RunSync(ctx context.Context, connectionID int64, tenantID string, kind models.SyncKind) (*models.SyncRun, error)
}

// ConnectionLister lists the connections to evaluate. Implemented by
// store.Store.
type ConnectionLister interface {
	ListActiveConnections(ctx context.Context) ([]models.Connection, error)
}

// Scheduler periodically triggers incremental syncs for due connections.
type Scheduler struct {
	runner          Runner
	connections     ConnectionLister
	tick            time.Duration
	defaultInterval time.Duration
}

// New creates a scheduler. defaultInterval applies to connections that
// do not configure their own sync interval.
func New(runner Runner, connections ConnectionLister, tick, defaultInterval time.Duration) *Scheduler {
	return &Scheduler{
		runner:          runner,
		connections:     connections,
		tick:            tick,
		defaultInterval: defaultInterval,
	}
}

// Run starts the scheduling loop. It blocks until the context is
// cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("sync scheduler starting",
		"tick", s.tick,
		"default_interval", s.defaultInterval,
	)

	// Evaluate immediately on start
	s.evaluate(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("sync scheduler stopping")
			return
		case <-ticker.C:
			s.evaluate(ctx)
		}
	}
}

// evaluate triggers a sync for every due connection. Runs are fired
// without awaiting completion; the orchestrator's single-flight guard
// makes overlapping triggers harmless.
func (s *Scheduler) evaluate(ctx context.Context) {
	conns, err := s.connections.ListActiveConnections(ctx)
	if err != nil {
		slog.Error("failed to list connections", "error", err)
		return
	}

	now := time.Now().UTC()
	for _, conn := range conns {
		if !s.due(conn, now) {
			continue
		}

		go func(conn models.Connection) {
			_, err := s.runner.RunSync(ctx, conn.ID, conn.TenantID, models.SyncIncremental)
			if err != nil {
				if errors.Is(err, syncer.ErrAlreadyInProgress) {
					slog.Debug("sync already in flight",
						"tenant", conn.TenantID,
						"connection", conn.ID,
					)
					return
				}
				slog.Error("scheduled sync failed",
					"tenant", conn.TenantID,
					"connection", conn.ID,
					"error", err,
				)
			}
		}(conn)
	}
}

// due reports whether enough time has passed since the connection's last
// attempt (successful or not) to warrant a new sync.
func (s *Scheduler) due(conn models.Connection, now time.Time) bool {
	interval := s.defaultInterval
	if conn.SyncIntervalMinutes > 0 {
		interval = time.Duration(conn.SyncIntervalMinutes) * time.Minute
	}

	last := lastAttempt(conn)
	if last == nil {
		return true
	}
	return now.Sub(*last) > interval
}

// lastAttempt returns the later of the connection's last attempt and
// last success stamps, or nil if it has never synced.
func lastAttempt(conn models.Connection) *time.Time {
	last := conn.LastSyncAt
	if conn.LastSuccessfulSyncAt != nil &&
		(last == nil || conn.LastSuccessfulSyncAt.After(*last)) {
		last = conn.LastSuccessfulSyncAt
	}
	return last
}
