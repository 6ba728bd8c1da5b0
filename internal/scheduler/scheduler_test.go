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

package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Walter-bl/nexsentia-sub003/internal/models"
)

type fakeRunner struct {
	mu   sync.Mutex
	runs []int64
	done chan struct{}
}

func (r *fakeRunner) RunSync(_ context.Context, connectionID int64, _ string, kind models.SyncKind) (*models.SyncRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if kind != models.SyncIncremental {
		panic("scheduler must trigger incremental syncs")
	}
	r.runs = append(r.runs, connectionID)
	if r.done != nil {
		r.done <- struct{}{}
	}
	return &models.SyncRun{Status: models.RunCompleted}, nil
}

type fakeLister struct {
	conns []models.Connection
}

func (l *fakeLister) ListActiveConnections(_ context.Context) ([]models.Connection, error) {
	return l.conns, nil
}

func ptrTime(t time.Time) *time.Time { return &t }

// TestDue covers the interval computation against the connection's
// attempt and success stamps.
func TestDue(t *testing.T) {
	s := New(nil, nil, time.Minute, time.Hour)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		conn models.Connection
		want bool
	}{
		{
			name: "never synced",
			conn: models.Connection{},
			want: true,
		},
		{
			name: "attempt within default interval",
			conn: models.Connection{LastSyncAt: ptrTime(now.Add(-30 * time.Minute))},
			want: false,
		},
		{
			name: "attempt beyond default interval",
			conn: models.Connection{LastSyncAt: ptrTime(now.Add(-2 * time.Hour))},
			want: true,
		},
		{
			name: "custom interval shortens the default",
			conn: models.Connection{
				SyncIntervalMinutes: 15,
				LastSyncAt:          ptrTime(now.Add(-30 * time.Minute)),
			},
			want: true,
		},
		{
			name: "later success stamp wins over earlier attempt",
			conn: models.Connection{
				LastSyncAt:           ptrTime(now.Add(-3 * time.Hour)),
				LastSuccessfulSyncAt: ptrTime(now.Add(-10 * time.Minute)),
			},
			want: false,
		},
		{
			name: "recent failed attempt still defers",
			conn: models.Connection{
				LastSyncAt:           ptrTime(now.Add(-10 * time.Minute)),
				LastSuccessfulSyncAt: ptrTime(now.Add(-3 * time.Hour)),
			},
			want: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := s.due(tc.conn, now); got != tc.want {
				t.Errorf("due = %v, want %v", got, tc.want)
			}
		})
	}
}

// TestEvaluate verifies that only due connections are triggered.
func TestEvaluate(t *testing.T) {
	now := time.Now().UTC()
	runner := &fakeRunner{done: make(chan struct{}, 4)}
	lister := &fakeLister{conns: []models.Connection{
		{ID: 1, TenantID: "acme"}, // never synced: due
		{ID: 2, TenantID: "acme", LastSyncAt: ptrTime(now.Add(-10 * time.Minute))},  // fresh: not due
		{ID: 3, TenantID: "globex", LastSyncAt: ptrTime(now.Add(-2 * time.Hour))},   // stale: due
	}}

	s := New(runner, lister, time.Minute, time.Hour)
	s.evaluate(context.Background())

	triggered := map[int64]bool{}
	for range 2 {
		select {
		case <-runner.done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for triggered syncs")
		}
	}
	runner.mu.Lock()
	for _, id := range runner.runs {
		triggered[id] = true
	}
	runner.mu.Unlock()

	if !triggered[1] || !triggered[3] {
		t.Errorf("triggered = %v, want connections 1 and 3", triggered)
	}
	if triggered[2] {
		t.Error("connection 2 triggered despite a fresh attempt")
	}
}
